package bridge

import (
	"time"

	"github.com/effective-security/xlog"
	"github.com/miekg/pkcs11"
	"github.com/niclabs/keychain-bridge/backend"
	"github.com/niclabs/keychain-bridge/digest"
	"github.com/niclabs/keychain-bridge/mechanism"
	"github.com/niclabs/keychain-bridge/objects"
)

// opState is the cryptographic operation pending on a session.
type opState int

const (
	stateIdle opState = iota
	stateEncryptInit
	stateDecryptInit
	stateSignInit
	stateSignUpdate
	stateVerifyInit
	stateVerifyUpdate
)

var stateNames = map[opState]string{
	stateIdle:         "IDLE",
	stateEncryptInit:  "E_INIT",
	stateDecryptInit:  "D_INIT",
	stateSignInit:     "S_INIT",
	stateSignUpdate:   "S_UPDATE",
	stateVerifyInit:   "V_INIT",
	stateVerifyUpdate: "V_UPDATE",
}

func (s opState) String() string {
	return stateNames[s]
}

// State returns the name of the pending operation.
func (session *Session) State() string {
	return session.state.String()
}

// reset ends the pending operation, releasing its key and discarding a
// half computed digest.
func (session *Session) reset() {
	if session.key != nil {
		session.key.Release()
		session.key = nil
	}
	session.algs = nil
	session.digest = nil
	session.outSize = 0
	session.state = stateIdle
}

// begin stores a negotiated operation and retains its key.
func (session *Session) begin(state opState, key backend.Key, algs *mechanism.Negotiated, blockSize int) {
	key.Retain()
	session.key = key
	session.algs = algs
	session.outSize = 0
	if algs.Info.BlockSizeOut {
		session.outSize = blockSize
	}
	session.state = state
}

// keyObject returns the object behind a key handle.
func (session *Session) keyObject(who string, handle pkcs11.ObjectHandle) (*objects.CryptoObject, error) {
	object, err := session.objects.Get(uint(handle))
	if err != nil {
		return nil, newError(who, "key handle invalid", pkcs11.CKR_KEY_HANDLE_INVALID)
	}
	return object, nil
}

// probe answers the calls made with a nil output buffer or with one
// smaller than the known output size. done is false when the operation
// has to run.
func (session *Session) probe(who string, out []byte) (n int, done bool, err error) {
	switch {
	case out == nil && session.outSize == 0:
		return 0, true, newError(who, "output size unknown", pkcs11.CKR_BUFFER_TOO_SMALL)
	case out == nil:
		return session.outSize, true, nil
	case session.outSize > len(out):
		return session.outSize, true, newError(who, "output buffer too small", pkcs11.CKR_BUFFER_TOO_SMALL)
	}
	return 0, false, nil
}

// oneShot runs a single part operation in state want and writes its
// result to out.
func (session *Session) oneShot(who string, want opState, out []byte, run func() ([]byte, error)) (int, error) {
	if session.state != want {
		return 0, newError(who, "operation not initialized", pkcs11.CKR_OPERATION_NOT_INITIALIZED)
	}
	if n, done, err := session.probe(who, out); done {
		return n, err
	}
	result, err := run()
	if err != nil {
		logger.Errorf("%s: %v", who, err)
		session.reset()
		return 0, newError(who, "backend operation failed", pkcs11.CKR_GENERAL_ERROR)
	}
	if len(result) > len(out) {
		return len(result), newError(who, "output buffer too small", pkcs11.CKR_BUFFER_TOO_SMALL)
	}
	copy(out, result)
	session.reset()
	return len(result), nil
}

// initCheck validates a key for an operation. Encryption and decryption
// check the key class before the identity; signatures do it the other
// way around.
type initCheck struct {
	who        string
	state      opState
	class      uint
	usage      uint
	classFirst bool
	permitted  func(backend.Capabilities) bool
}

func (session *Session) initOperation(c *initCheck, mech *pkcs11.Mechanism, handle pkcs11.ObjectHandle) error {
	if mech == nil {
		return newError(c.who, "got nil mechanism", pkcs11.CKR_MECHANISM_INVALID)
	}
	var (
		object *objects.CryptoObject
		err    error
	)
	if c.classFirst {
		if object, err = session.keyObject(c.who, handle); err != nil {
			return err
		}
		if session.state != stateIdle {
			return newError(c.who, "operation active", pkcs11.CKR_OPERATION_ACTIVE)
		}
		if object.Class != c.class {
			return newError(c.who, "key type inconsistent", pkcs11.CKR_KEY_TYPE_INCONSISTENT)
		}
		if object.Identity == nil {
			return newError(c.who, "object has no identity", pkcs11.CKR_ARGUMENTS_BAD)
		}
		if !c.permitted(object.Identity.Capabilities) {
			return newError(c.who, "key function not permitted", pkcs11.CKR_KEY_FUNCTION_NOT_PERMITTED)
		}
	} else {
		if session.state != stateIdle {
			return newError(c.who, "operation active", pkcs11.CKR_OPERATION_ACTIVE)
		}
		if object, err = session.keyObject(c.who, handle); err != nil {
			return err
		}
		if object.Identity == nil {
			return newError(c.who, "object has no identity", pkcs11.CKR_ARGUMENTS_BAD)
		}
		if !c.permitted(object.Identity.Capabilities) {
			return newError(c.who, "key function not permitted", pkcs11.CKR_KEY_FUNCTION_NOT_PERMITTED)
		}
		if object.Class != c.class {
			return newError(c.who, "key type inconsistent", pkcs11.CKR_KEY_TYPE_INCONSISTENT)
		}
	}

	algs, err := mechanism.Negotiate(mech.Mechanism, mech.Parameter, c.usage)
	if err != nil {
		return err
	}
	id := object.Identity
	key := id.Source.PublicKey()
	if c.class == pkcs11.CKO_PRIVATE_KEY {
		key = id.Source.PrivateKey()
	}
	logger.KV(xlog.DEBUG, "func", c.who, "session", session.Handle, "key", handle, "mechanism", mech.Mechanism)
	session.begin(c.state, key, algs, id.BlockSize)
	return nil
}

var (
	encryptCheck = &initCheck{
		who: "Session.EncryptInit", state: stateEncryptInit, class: pkcs11.CKO_PUBLIC_KEY,
		usage: pkcs11.CKF_ENCRYPT, classFirst: true,
		permitted: func(c backend.Capabilities) bool { return c.Encrypt },
	}
	decryptCheck = &initCheck{
		who: "Session.DecryptInit", state: stateDecryptInit, class: pkcs11.CKO_PRIVATE_KEY,
		usage: pkcs11.CKF_DECRYPT, classFirst: true,
		permitted: func(c backend.Capabilities) bool { return c.Decrypt },
	}
	signCheck = &initCheck{
		who: "Session.SignInit", state: stateSignInit, class: pkcs11.CKO_PRIVATE_KEY,
		usage:     pkcs11.CKF_SIGN,
		permitted: func(c backend.Capabilities) bool { return c.Sign },
	}
	verifyCheck = &initCheck{
		who: "Session.VerifyInit", state: stateVerifyInit, class: pkcs11.CKO_PUBLIC_KEY,
		usage:     pkcs11.CKF_VERIFY,
		permitted: func(c backend.Capabilities) bool { return c.Verify },
	}
)

func (session *Session) EncryptInit(mech *pkcs11.Mechanism, key pkcs11.ObjectHandle) error {
	return session.initOperation(encryptCheck, mech, key)
}

func (session *Session) Encrypt(data, out []byte) (int, error) {
	return session.oneShot("Session.Encrypt", stateEncryptInit, out, func() ([]byte, error) {
		return session.key.Encrypt(session.algs.Encrypt, data)
	})
}

func (session *Session) DecryptInit(mech *pkcs11.Mechanism, key pkcs11.ObjectHandle) error {
	return session.initOperation(decryptCheck, mech, key)
}

func (session *Session) Decrypt(data, out []byte) (int, error) {
	return session.oneShot("Session.Decrypt", stateDecryptInit, out, func() ([]byte, error) {
		return session.key.Decrypt(session.algs.Encrypt, data)
	})
}

func (session *Session) SignInit(mech *pkcs11.Mechanism, key pkcs11.ObjectHandle) error {
	return session.initOperation(signCheck, mech, key)
}

// Sign signs data in one step. It is not available once SignUpdate was
// called.
func (session *Session) Sign(data, out []byte) (int, error) {
	return session.oneShot("Session.Sign", stateSignInit, out, func() ([]byte, error) {
		return session.key.Sign(session.algs.Sign, data)
	})
}

// update feeds a multi part operation, starting its digest on the first
// call.
func (session *Session) update(who string, initState, updateState opState, data []byte) error {
	if session.state != initState && session.state != updateState {
		return newError(who, "operation not initialized", pkcs11.CKR_OPERATION_NOT_INITIALIZED)
	}
	if session.algs.DigestSign == "" || session.algs.Digest == 0 {
		return newError(who, "mechanism does not support multi part operations", pkcs11.CKR_DATA_LEN_RANGE)
	}
	if session.state == initState {
		ctx, err := digest.Init(session.algs.Digest)
		if err != nil {
			logger.Errorf("%s: %v", who, err)
			session.reset()
			return newError(who, "digest init failed", pkcs11.CKR_GENERAL_ERROR)
		}
		session.digest = ctx
		session.state = updateState
	}
	if err := session.digest.Update(data); err != nil {
		logger.Errorf("%s: %v", who, err)
		session.reset()
		return newError(who, "digest update failed", pkcs11.CKR_GENERAL_ERROR)
	}
	return nil
}

func (session *Session) SignUpdate(data []byte) error {
	return session.update("Session.SignUpdate", stateSignInit, stateSignUpdate, data)
}

// SignFinal signs the digest of every part. The operation ends whatever
// the outcome, except for the output size probes.
func (session *Session) SignFinal(out []byte) (int, error) {
	const who = "Session.SignFinal"
	if session.state != stateSignUpdate {
		return 0, newError(who, "operation not initialized", pkcs11.CKR_OPERATION_NOT_INITIALIZED)
	}
	if n, done, err := session.probe(who, out); done {
		return n, err
	}
	defer session.reset()
	sum, err := session.digest.Final()
	if err != nil {
		logger.Errorf("%s: %v", who, err)
		return 0, newError(who, "digest final failed", pkcs11.CKR_FUNCTION_FAILED)
	}
	signature, err := session.key.Sign(session.algs.DigestSign, sum)
	if err != nil {
		logger.Errorf("%s: %v", who, err)
		return 0, newError(who, "backend operation failed", pkcs11.CKR_FUNCTION_FAILED)
	}
	if len(signature) > len(out) {
		return len(signature), newError(who, "signature longer than output buffer", pkcs11.CKR_FUNCTION_FAILED)
	}
	copy(out, signature)
	return len(signature), nil
}

func (session *Session) VerifyInit(mech *pkcs11.Mechanism, key pkcs11.ObjectHandle) error {
	return session.initOperation(verifyCheck, mech, key)
}

// Verify checks a signature over data in one step. The operation ends
// whatever the outcome.
func (session *Session) Verify(data, signature []byte) error {
	const who = "Session.Verify"
	if session.state != stateVerifyInit {
		return newError(who, "operation not initialized", pkcs11.CKR_OPERATION_NOT_INITIALIZED)
	}
	defer session.reset()
	if err := session.key.Verify(session.algs.Sign, data, signature); err != nil {
		logger.KV(xlog.DEBUG, "func", who, "session", session.Handle, "err", err.Error())
		return newError(who, "signature invalid", pkcs11.CKR_SIGNATURE_INVALID)
	}
	return nil
}

func (session *Session) VerifyUpdate(data []byte) error {
	return session.update("Session.VerifyUpdate", stateVerifyInit, stateVerifyUpdate, data)
}

// VerifyFinal checks a signature over the digest of every part. The
// operation ends whatever the outcome.
func (session *Session) VerifyFinal(signature []byte) error {
	const who = "Session.VerifyFinal"
	if session.state != stateVerifyUpdate {
		return newError(who, "operation not initialized", pkcs11.CKR_OPERATION_NOT_INITIALIZED)
	}
	defer session.reset()
	sum, err := session.digest.Final()
	if err != nil {
		logger.Errorf("%s: %v", who, err)
		return newError(who, "digest final failed", pkcs11.CKR_FUNCTION_FAILED)
	}
	if err := session.key.Verify(session.algs.DigestSign, sum, signature); err != nil {
		logger.KV(xlog.DEBUG, "func", who, "session", session.Handle, "err", err.Error())
		return newError(who, "signature invalid", pkcs11.CKR_SIGNATURE_INVALID)
	}
	return nil
}

// withSession runs op on the locked session and records the call.
func (m *Module) withSession(operation string, handle pkcs11.SessionHandle, op func(*Session) error) error {
	started := time.Now()
	session, err := m.getSession("Module."+operation[2:], handle)
	if err != nil {
		return rvError(err)
	}
	defer session.Unlock()
	return m.result(operation, started, op(session))
}

// withOutput is withSession for the calls that write an output buffer.
func (m *Module) withOutput(operation string, handle pkcs11.SessionHandle, op func(*Session) (int, error)) (int, error) {
	var n int
	err := m.withSession(operation, handle, func(session *Session) (err error) {
		n, err = op(session)
		return err
	})
	return n, err
}

// EncryptInit starts an encryption with a public key.
func (m *Module) EncryptInit(handle pkcs11.SessionHandle, mech *pkcs11.Mechanism, key pkcs11.ObjectHandle) error {
	return m.withSession("C_EncryptInit", handle, func(s *Session) error { return s.EncryptInit(mech, key) })
}

// Encrypt encrypts data into out and returns the length of the result. A
// nil out only asks for the length.
func (m *Module) Encrypt(handle pkcs11.SessionHandle, data, out []byte) (int, error) {
	return m.withOutput("C_Encrypt", handle, func(s *Session) (int, error) { return s.Encrypt(data, out) })
}

// DecryptInit starts a decryption with a private key.
func (m *Module) DecryptInit(handle pkcs11.SessionHandle, mech *pkcs11.Mechanism, key pkcs11.ObjectHandle) error {
	return m.withSession("C_DecryptInit", handle, func(s *Session) error { return s.DecryptInit(mech, key) })
}

func (m *Module) Decrypt(handle pkcs11.SessionHandle, data, out []byte) (int, error) {
	return m.withOutput("C_Decrypt", handle, func(s *Session) (int, error) { return s.Decrypt(data, out) })
}

// SignInit starts a signature with a private key.
func (m *Module) SignInit(handle pkcs11.SessionHandle, mech *pkcs11.Mechanism, key pkcs11.ObjectHandle) error {
	return m.withSession("C_SignInit", handle, func(s *Session) error { return s.SignInit(mech, key) })
}

func (m *Module) Sign(handle pkcs11.SessionHandle, data, out []byte) (int, error) {
	return m.withOutput("C_Sign", handle, func(s *Session) (int, error) { return s.Sign(data, out) })
}

func (m *Module) SignUpdate(handle pkcs11.SessionHandle, data []byte) error {
	return m.withSession("C_SignUpdate", handle, func(s *Session) error { return s.SignUpdate(data) })
}

func (m *Module) SignFinal(handle pkcs11.SessionHandle, out []byte) (int, error) {
	return m.withOutput("C_SignFinal", handle, func(s *Session) (int, error) { return s.SignFinal(out) })
}

// VerifyInit starts a verification with a public key.
func (m *Module) VerifyInit(handle pkcs11.SessionHandle, mech *pkcs11.Mechanism, key pkcs11.ObjectHandle) error {
	return m.withSession("C_VerifyInit", handle, func(s *Session) error { return s.VerifyInit(mech, key) })
}

func (m *Module) Verify(handle pkcs11.SessionHandle, data, signature []byte) error {
	return m.withSession("C_Verify", handle, func(s *Session) error { return s.Verify(data, signature) })
}

func (m *Module) VerifyUpdate(handle pkcs11.SessionHandle, data []byte) error {
	return m.withSession("C_VerifyUpdate", handle, func(s *Session) error { return s.VerifyUpdate(data) })
}

func (m *Module) VerifyFinal(handle pkcs11.SessionHandle, signature []byte) error {
	return m.withSession("C_VerifyFinal", handle, func(s *Session) error { return s.VerifyFinal(signature) })
}
