package bridge

import (
	"sync"
	"time"

	"github.com/effective-security/xlog"
	"github.com/miekg/pkcs11"
	"github.com/niclabs/keychain-bridge/backend"
	"github.com/niclabs/keychain-bridge/digest"
	"github.com/niclabs/keychain-bridge/mechanism"
	"github.com/niclabs/keychain-bridge/objects"
)

// A Session is an open session on a slot. Its fields are guarded by its
// own lock, except the ones set at open time which never change.
type Session struct {
	sync.Mutex
	Handle pkcs11.SessionHandle
	SlotID uint
	// token is nil for sessions on the certificate slot
	token   *Token
	objects objects.CryptoObjects
	closed  bool
	// finding things
	findInitialized bool
	foundObjects    []pkcs11.ObjectHandle
	// crypto things
	state   opState
	key     backend.Key
	algs    *mechanism.Negotiated
	outSize int
	digest  *digest.Context
}

// getSession returns the session with the given handle, locked.
func (m *Module) getSession(who string, handle pkcs11.SessionHandle) (*Session, error) {
	session, err := m.lookupSession(who, handle)
	if err != nil {
		return nil, err
	}
	session.Lock()
	if session.closed {
		session.Unlock()
		return nil, newError(who, "session closed", pkcs11.CKR_SESSION_HANDLE_INVALID)
	}
	return session, nil
}

// lookupSession returns the session with the given handle without
// locking it. Only the fields set at open time may be read.
func (m *Module) lookupSession(who string, handle pkcs11.SessionHandle) (*Session, error) {
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	if handle == 0 || uint(handle) > uint(len(m.sessions)) || m.sessions[handle-1] == nil {
		return nil, newError(who, "session handle invalid", pkcs11.CKR_SESSION_HANDLE_INVALID)
	}
	return m.sessions[handle-1], nil
}

// OpenSession opens a read only session on a slot with a token. Sessions
// on the certificate slot see its objects only if the scan already
// finished when they are opened.
func (m *Module) OpenSession(slotID uint, flags uint) (pkcs11.SessionHandle, error) {
	started := time.Now()
	if err := m.checkInitialized(); err != nil {
		return 0, rvError(err)
	}
	logger.KV(xlog.DEBUG, "func", "C_OpenSession", "slot", slotID, "flags", flags)
	m.slotMu.Lock()
	defer m.slotMu.Unlock()
	if err := m.checkSlot("Module.OpenSession", slotID, slotID != CertificateSlot); err != nil {
		return 0, m.result("C_OpenSession", started, err)
	}
	if flags&pkcs11.CKF_SERIAL_SESSION == 0 {
		return 0, m.result("C_OpenSession", started,
			newError("Module.OpenSession", "parallel sessions not supported", pkcs11.CKR_SESSION_PARALLEL_NOT_SUPPORTED))
	}

	session := &Session{SlotID: slotID}
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	if slotID == CertificateSlot {
		session.objects = m.certs.snapshot()
	} else {
		token := m.slots[slotID]
		if err := token.retain(); err != nil {
			return 0, m.result("C_OpenSession", started, err)
		}
		session.token = token
		session.objects = token.Objects
	}

	index := len(m.sessions)
	for i, s := range m.sessions {
		if s == nil {
			index = i
			break
		}
	}
	if index == len(m.sessions) {
		m.sessions = append(m.sessions, nil)
	}
	session.Handle = pkcs11.SessionHandle(index + 1)
	m.sessions[index] = session
	m.metrics.SessionOpened()
	return session.Handle, m.result("C_OpenSession", started, nil)
}

// CloseSession closes a session, abandoning its pending operation.
func (m *Module) CloseSession(handle pkcs11.SessionHandle) error {
	started := time.Now()
	if err := m.checkInitialized(); err != nil {
		return rvError(err)
	}
	m.sessionMu.Lock()
	if handle == 0 || uint(handle) > uint(len(m.sessions)) || m.sessions[handle-1] == nil {
		m.sessionMu.Unlock()
		return m.result("C_CloseSession", started,
			newError("Module.CloseSession", "session handle invalid", pkcs11.CKR_SESSION_HANDLE_INVALID))
	}
	session := m.sessions[handle-1]
	m.sessions[handle-1] = nil
	m.sessionMu.Unlock()

	session.close()
	m.metrics.SessionsClosed(1)
	return m.result("C_CloseSession", started, nil)
}

// CloseAllSessions closes every session opened on a slot.
func (m *Module) CloseAllSessions(slotID uint) error {
	started := time.Now()
	if err := m.checkInitialized(); err != nil {
		return rvError(err)
	}
	m.slotMu.Lock()
	if err := m.checkSlot("Module.CloseAllSessions", slotID, false); err != nil {
		m.slotMu.Unlock()
		return m.result("C_CloseAllSessions", started, err)
	}
	m.sessionMu.Lock()
	var closing []*Session
	for i, s := range m.sessions {
		if s != nil && s.SlotID == slotID {
			closing = append(closing, s)
			m.sessions[i] = nil
		}
	}
	m.sessionMu.Unlock()
	m.slotMu.Unlock()

	for _, s := range closing {
		s.close()
	}
	m.metrics.SessionsClosed(len(closing))
	return m.result("C_CloseAllSessions", started, nil)
}

// close waits for the operation in progress, drops the pending one and
// releases the token.
func (session *Session) close() {
	session.Lock()
	session.closed = true
	session.reset()
	session.findInitialized = false
	session.foundObjects = nil
	session.Unlock()
	if session.token != nil {
		session.token.release()
	}
}

// GetSessionInfo reports the slot of a session and whether its token is
// logged in.
func (m *Module) GetSessionInfo(handle pkcs11.SessionHandle) (pkcs11.SessionInfo, error) {
	session, err := m.lookupSession("Module.GetSessionInfo", handle)
	if err != nil {
		return pkcs11.SessionInfo{}, rvError(err)
	}
	info := pkcs11.SessionInfo{
		SlotID: session.SlotID,
		State:  pkcs11.CKS_RO_PUBLIC_SESSION,
		Flags:  pkcs11.CKF_SERIAL_SESSION,
	}
	if session.token != nil && session.token.LoggedIn() {
		info.State = pkcs11.CKS_RO_USER_FUNCTIONS
	}
	return info, nil
}

// Login authenticates the token of the session. A nil pin lets the
// backend ask for it when a key is used. Sessions without a token
// succeed without doing anything.
func (m *Module) Login(handle pkcs11.SessionHandle, userType uint, pin []byte) error {
	started := time.Now()
	session, err := m.lookupSession("Module.Login", handle)
	if err != nil {
		return rvError(err)
	}
	logger.KV(xlog.DEBUG, "func", "C_Login", "session", handle, "user_type", userType, "pin", pin != nil)
	if session.token == nil {
		return m.result("C_Login", started, nil)
	}
	return m.result("C_Login", started, session.token.Login(pin))
}

// Logout drops the authentication of the token of the session.
func (m *Module) Logout(handle pkcs11.SessionHandle) error {
	session, err := m.lookupSession("Module.Logout", handle)
	if err != nil {
		return rvError(err)
	}
	if session.token != nil {
		session.token.Logout()
	}
	return nil
}

// GetAttributeValue fills the template with the attributes of an object.
// Every entry is processed even when some fail.
func (m *Module) GetAttributeValue(handle pkcs11.SessionHandle, object pkcs11.ObjectHandle, template []*objects.Request) error {
	session, err := m.getSession("Module.GetAttributeValue", handle)
	if err != nil {
		return rvError(err)
	}
	defer session.Unlock()
	obj, err := session.objects.Get(uint(object))
	if err != nil {
		return rvError(err)
	}
	return rvError(obj.Attributes.Retrieve(template))
}

// FindObjectsInit starts a search for the objects matching template. An
// empty template matches every object.
func (m *Module) FindObjectsInit(handle pkcs11.SessionHandle, template []*pkcs11.Attribute) error {
	session, err := m.getSession("Module.FindObjectsInit", handle)
	if err != nil {
		return rvError(err)
	}
	defer session.Unlock()
	return rvError(session.FindObjectsInit(template))
}

// FindObjects returns up to maxObjects handles of the search in progress.
func (m *Module) FindObjects(handle pkcs11.SessionHandle, maxObjects int) ([]pkcs11.ObjectHandle, error) {
	session, err := m.getSession("Module.FindObjects", handle)
	if err != nil {
		return nil, rvError(err)
	}
	defer session.Unlock()
	found, err := session.FindObjects(maxObjects)
	return found, rvError(err)
}

func (m *Module) FindObjectsFinal(handle pkcs11.SessionHandle) error {
	session, err := m.getSession("Module.FindObjectsFinal", handle)
	if err != nil {
		return rvError(err)
	}
	defer session.Unlock()
	return rvError(session.FindObjectsFinal())
}

func (session *Session) FindObjectsInit(template []*pkcs11.Attribute) error {
	if session.findInitialized {
		return newError("Session.FindObjectsInit", "operation already initialized", pkcs11.CKR_OPERATION_ACTIVE)
	}
	session.foundObjects = make([]pkcs11.ObjectHandle, 0)
	for _, object := range session.objects {
		if object.Match(template) {
			session.foundObjects = append(session.foundObjects, pkcs11.ObjectHandle(object.Handle))
		}
	}
	session.findInitialized = true
	return nil
}

func (session *Session) FindObjects(maxObjects int) ([]pkcs11.ObjectHandle, error) {
	if maxObjects <= 0 {
		return nil, newError("Session.FindObjects", "max object count is zero", pkcs11.CKR_ARGUMENTS_BAD)
	}
	if !session.findInitialized {
		return nil, newError("Session.FindObjects", "operation not initialized", pkcs11.CKR_OPERATION_NOT_INITIALIZED)
	}
	limit := len(session.foundObjects)
	if maxObjects < limit {
		limit = maxObjects
	}
	result := session.foundObjects[:limit]
	session.foundObjects = session.foundObjects[limit:]
	return result, nil
}

func (session *Session) FindObjectsFinal() error {
	if !session.findInitialized {
		return newError("Session.FindObjectsFinal", "operation not initialized", pkcs11.CKR_OPERATION_NOT_INITIALIZED)
	}
	session.findInitialized = false
	session.foundObjects = nil
	return nil
}
