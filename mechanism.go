package bridge

import (
	"github.com/miekg/pkcs11"
	"github.com/niclabs/keychain-bridge/mechanism"
)

// GetMechanismList returns every mechanism the module supports. The
// backend decides per key whether it can really run one.
func (m *Module) GetMechanismList(slotID uint) ([]*pkcs11.Mechanism, error) {
	if err := m.checkMechanismSlot("Module.GetMechanismList", slotID); err != nil {
		return nil, rvError(err)
	}
	types := mechanism.List()
	list := make([]*pkcs11.Mechanism, len(types))
	for i, t := range types {
		list[i] = pkcs11.NewMechanism(t, nil)
	}
	return list, nil
}

// GetMechanismInfo returns the key sizes and usage flags of a mechanism.
func (m *Module) GetMechanismInfo(slotID uint, mech uint) (pkcs11.MechanismInfo, error) {
	if err := m.checkMechanismSlot("Module.GetMechanismInfo", slotID); err != nil {
		return pkcs11.MechanismInfo{}, rvError(err)
	}
	info, ok := mechanism.Lookup(mech)
	if !ok {
		return pkcs11.MechanismInfo{}, rvError(newError("Module.GetMechanismInfo", "mechanism invalid", pkcs11.CKR_MECHANISM_INVALID))
	}
	return pkcs11.MechanismInfo{
		MinKeySize: info.MinKeySize,
		MaxKeySize: info.MaxKeySize,
		Flags:      info.Usage,
	}, nil
}

func (m *Module) checkMechanismSlot(who string, slotID uint) error {
	if err := m.checkInitialized(); err != nil {
		return err
	}
	m.slotMu.Lock()
	defer m.slotMu.Unlock()
	return m.checkSlot(who, slotID, true)
}
