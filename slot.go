package bridge

import (
	"fmt"
	"time"

	"github.com/miekg/pkcs11"
	"github.com/niclabs/keychain-bridge/objects"
)

// CertificateSlot is the id of the slot that holds the trust chain.
const CertificateSlot = 254

const (
	certSlotLabel     = "Keychain Certificates"
	tokenManufacturer = "Unknown Manufacturer"
	tokenModel        = "Unknown Model"
	tokenSerial       = "000001"
	tokenUTCTime      = "1970010100000000"
	maxPinLen         = 255
	minPinLen         = 1
	// CK_EFFECTIVELY_INFINITE
	effectivelyInfinite = 0
)

// checkSlot validates a slot id. With present set, the slot must also
// hold a token. The slot table lock must be held.
func (m *Module) checkSlot(who string, id uint, present bool) error {
	if id == CertificateSlot {
		if !m.certSlotEnabled {
			return newError(who, "certificate slot disabled", pkcs11.CKR_SLOT_ID_INVALID)
		}
		if present && !m.certs.ready() {
			return newError(who, "certificate list not initialized yet", pkcs11.CKR_TOKEN_NOT_PRESENT)
		}
		return nil
	}
	if id >= uint(len(m.slots)) {
		return newError(who, "slot id invalid", pkcs11.CKR_SLOT_ID_INVALID)
	}
	if present && m.slots[id] == nil {
		return newError(who, "no token present", pkcs11.CKR_TOKEN_NOT_PRESENT)
	}
	return nil
}

// GetSlotList returns the ids of the slots, only those with a token if
// tokenPresent is set. The certificate slot, when enabled, always comes
// last.
func (m *Module) GetSlotList(tokenPresent bool) ([]uint, error) {
	if err := m.checkInitialized(); err != nil {
		return nil, rvError(err)
	}
	m.slotMu.Lock()
	defer m.slotMu.Unlock()
	list := make([]uint, 0, len(m.slots)+1)
	for i, token := range m.slots {
		if !tokenPresent || token != nil {
			list = append(list, uint(i))
		}
	}
	if m.certSlotEnabled {
		list = append(list, CertificateSlot)
	}
	return list, nil
}

func (m *Module) GetSlotInfo(id uint) (pkcs11.SlotInfo, error) {
	if err := m.checkInitialized(); err != nil {
		return pkcs11.SlotInfo{}, rvError(err)
	}
	m.slotMu.Lock()
	defer m.slotMu.Unlock()
	if err := m.checkSlot("Module.GetSlotInfo", id, false); err != nil {
		return pkcs11.SlotInfo{}, rvError(err)
	}
	info := pkcs11.SlotInfo{
		ManufacturerID:  m.conf.Criptoki.ManufacturerID,
		HardwareVersion: pkcs11.Version{Major: 1},
		FirmwareVersion: pkcs11.Version{Major: 1},
	}
	switch {
	case id == CertificateSlot:
		info.SlotDescription = certSlotLabel
		info.Flags = pkcs11.CKF_REMOVABLE_DEVICE
		if m.certs.ready() {
			info.Flags |= pkcs11.CKF_TOKEN_PRESENT
		}
	case m.slots[id] != nil:
		info.SlotDescription = m.slots[id].Label
		info.Flags = pkcs11.CKF_HW_SLOT | pkcs11.CKF_REMOVABLE_DEVICE | pkcs11.CKF_TOKEN_PRESENT
	default:
		info.SlotDescription = fmt.Sprintf("Keychain Bridge Library Virtual Slot #%d", id)
		info.Flags = pkcs11.CKF_HW_SLOT | pkcs11.CKF_REMOVABLE_DEVICE
	}
	return info, nil
}

// GetTokenInfo describes the token of a slot. The token is read only;
// its label is the subject of its first certificate.
func (m *Module) GetTokenInfo(id uint) (pkcs11.TokenInfo, error) {
	if err := m.checkInitialized(); err != nil {
		return pkcs11.TokenInfo{}, rvError(err)
	}
	m.slotMu.Lock()
	defer m.slotMu.Unlock()
	if err := m.checkSlot("Module.GetTokenInfo", id, true); err != nil {
		return pkcs11.TokenInfo{}, rvError(err)
	}
	info := pkcs11.TokenInfo{
		ManufacturerID:     tokenManufacturer,
		Model:              tokenModel,
		SerialNumber:       tokenSerial,
		Flags:              pkcs11.CKF_WRITE_PROTECTED | pkcs11.CKF_USER_PIN_INITIALIZED | pkcs11.CKF_TOKEN_INITIALIZED,
		MaxSessionCount:    effectivelyInfinite,
		SessionCount:       objects.UnavailableInformation,
		MaxPinLen:          maxPinLen,
		MinPinLen:          minPinLen,
		TotalPublicMemory:  objects.UnavailableInformation,
		FreePublicMemory:   objects.UnavailableInformation,
		TotalPrivateMemory: objects.UnavailableInformation,
		FreePrivateMemory:  objects.UnavailableInformation,
		HardwareVersion:    pkcs11.Version{Major: 1},
		FirmwareVersion:    pkcs11.Version{Major: 1},
		UTCTime:            tokenUTCTime,
	}
	if id == CertificateSlot {
		info.Label = certSlotLabel
		return info, nil
	}
	info.Label = objects.SubjectSummary(m.slots[id].Identities[0].Certificate)
	info.Flags |= pkcs11.CKF_LOGIN_REQUIRED
	if !m.conf.Criptoki.AskPin {
		info.Flags |= pkcs11.CKF_PROTECTED_AUTHENTICATION_PATH
	}
	return info, nil
}

// AddToken builds the token with the given id and puts it in the first
// empty slot. Tokens without usable identities are ignored. A token
// already present keeps its slot and is replaced only when its objects
// changed; sessions opened before keep the old objects.
func (m *Module) AddToken(id string) {
	if m.checkInitialized() != nil {
		return
	}
	started := time.Now()
	token, err := newToken(m.backend, id)
	if err != nil {
		logger.Errorf("adding token %s: %v", id, err)
		m.metrics.RecordOperation("add_token", err, started)
		return
	}
	if token == nil {
		return
	}

	m.slotMu.Lock()
	defer m.slotMu.Unlock()
	free := -1
	for i, t := range m.slots {
		if t == nil {
			if free < 0 {
				free = i
			}
		} else if t.ID == id {
			if t.Objects.Equals(token.Objects) {
				logger.Debugf("token %s already in slot %d", id, i)
				token.remove()
				return
			}
			m.slots[i] = token
			t.remove()
			logger.Infof("token %s refreshed in slot %d with %d identities", id, i, len(token.Identities))
			m.metrics.RecordOperation("add_token", nil, started)
			return
		}
	}
	if free < 0 {
		free = len(m.slots)
		m.slots = append(m.slots, nil)
	}
	m.slots[free] = token
	logger.Infof("token %s added at slot %d with %d identities", id, free, len(token.Identities))
	m.metrics.SetTokens(m.tokenCount())
	m.metrics.RecordOperation("add_token", nil, started)
}

// RemoveToken clears the slot of the token with the given id. Sessions
// on the token keep working with the objects they already have.
func (m *Module) RemoveToken(id string) {
	if m.checkInitialized() != nil {
		return
	}
	m.slotMu.Lock()
	defer m.slotMu.Unlock()
	for i, token := range m.slots {
		if token != nil && token.ID == id {
			m.slots[i] = nil
			token.remove()
			logger.Infof("token %s removed from slot %d", id, i)
			m.metrics.SetTokens(m.tokenCount())
			return
		}
	}
	logger.Debugf("token %s: no matching slot found", id)
}

// tokenCount returns the number of occupied slots. The slot table lock
// must be held.
func (m *Module) tokenCount() int {
	n := 0
	for _, token := range m.slots {
		if token != nil {
			n++
		}
	}
	return n
}
