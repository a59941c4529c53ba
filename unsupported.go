package bridge

import "github.com/miekg/pkcs11"

// The module cannot create, change or derive objects, and it only runs
// single part encryption and decryption. These calls report
// CKR_FUNCTION_NOT_SUPPORTED once the module is initialized.

func (m *Module) notSupported(function string) error {
	if err := m.checkInitialized(); err != nil {
		return rvError(err)
	}
	logger.Debugf("function %s returning NOT SUPPORTED", function)
	return pkcs11.Error(pkcs11.CKR_FUNCTION_NOT_SUPPORTED)
}

func (m *Module) InitToken(uint, string, string) error {
	return m.notSupported("C_InitToken")
}

func (m *Module) InitPIN(pkcs11.SessionHandle, string) error {
	return m.notSupported("C_InitPIN")
}

func (m *Module) SetPIN(pkcs11.SessionHandle, string, string) error {
	return m.notSupported("C_SetPIN")
}

func (m *Module) GetOperationState(pkcs11.SessionHandle) ([]byte, error) {
	return nil, m.notSupported("C_GetOperationState")
}

func (m *Module) SetOperationState(pkcs11.SessionHandle, []byte, pkcs11.ObjectHandle, pkcs11.ObjectHandle) error {
	return m.notSupported("C_SetOperationState")
}

func (m *Module) CreateObject(pkcs11.SessionHandle, []*pkcs11.Attribute) (pkcs11.ObjectHandle, error) {
	return 0, m.notSupported("C_CreateObject")
}

func (m *Module) CopyObject(pkcs11.SessionHandle, pkcs11.ObjectHandle, []*pkcs11.Attribute) (pkcs11.ObjectHandle, error) {
	return 0, m.notSupported("C_CopyObject")
}

func (m *Module) DestroyObject(pkcs11.SessionHandle, pkcs11.ObjectHandle) error {
	return m.notSupported("C_DestroyObject")
}

func (m *Module) GetObjectSize(pkcs11.SessionHandle, pkcs11.ObjectHandle) (uint, error) {
	return 0, m.notSupported("C_GetObjectSize")
}

func (m *Module) SetAttributeValue(pkcs11.SessionHandle, pkcs11.ObjectHandle, []*pkcs11.Attribute) error {
	return m.notSupported("C_SetAttributeValue")
}

func (m *Module) EncryptUpdate(pkcs11.SessionHandle, []byte) ([]byte, error) {
	return nil, m.notSupported("C_EncryptUpdate")
}

func (m *Module) EncryptFinal(pkcs11.SessionHandle) ([]byte, error) {
	return nil, m.notSupported("C_EncryptFinal")
}

func (m *Module) DecryptUpdate(pkcs11.SessionHandle, []byte) ([]byte, error) {
	return nil, m.notSupported("C_DecryptUpdate")
}

func (m *Module) DecryptFinal(pkcs11.SessionHandle) ([]byte, error) {
	return nil, m.notSupported("C_DecryptFinal")
}

func (m *Module) DigestInit(pkcs11.SessionHandle, []*pkcs11.Mechanism) error {
	return m.notSupported("C_DigestInit")
}

func (m *Module) Digest(pkcs11.SessionHandle, []byte) ([]byte, error) {
	return nil, m.notSupported("C_Digest")
}

func (m *Module) DigestUpdate(pkcs11.SessionHandle, []byte) error {
	return m.notSupported("C_DigestUpdate")
}

func (m *Module) DigestKey(pkcs11.SessionHandle, pkcs11.ObjectHandle) error {
	return m.notSupported("C_DigestKey")
}

func (m *Module) DigestFinal(pkcs11.SessionHandle) ([]byte, error) {
	return nil, m.notSupported("C_DigestFinal")
}

func (m *Module) SignRecoverInit(pkcs11.SessionHandle, []*pkcs11.Mechanism, pkcs11.ObjectHandle) error {
	return m.notSupported("C_SignRecoverInit")
}

func (m *Module) SignRecover(pkcs11.SessionHandle, []byte) ([]byte, error) {
	return nil, m.notSupported("C_SignRecover")
}

func (m *Module) VerifyRecoverInit(pkcs11.SessionHandle, []*pkcs11.Mechanism, pkcs11.ObjectHandle) error {
	return m.notSupported("C_VerifyRecoverInit")
}

func (m *Module) VerifyRecover(pkcs11.SessionHandle, []byte) ([]byte, error) {
	return nil, m.notSupported("C_VerifyRecover")
}

func (m *Module) DigestEncryptUpdate(pkcs11.SessionHandle, []byte) ([]byte, error) {
	return nil, m.notSupported("C_DigestEncryptUpdate")
}

func (m *Module) DecryptDigestUpdate(pkcs11.SessionHandle, []byte) ([]byte, error) {
	return nil, m.notSupported("C_DecryptDigestUpdate")
}

func (m *Module) SignEncryptUpdate(pkcs11.SessionHandle, []byte) ([]byte, error) {
	return nil, m.notSupported("C_SignEncryptUpdate")
}

func (m *Module) DecryptVerifyUpdate(pkcs11.SessionHandle, []byte) ([]byte, error) {
	return nil, m.notSupported("C_DecryptVerifyUpdate")
}

func (m *Module) GenerateKey(pkcs11.SessionHandle, []*pkcs11.Mechanism, []*pkcs11.Attribute) (pkcs11.ObjectHandle, error) {
	return 0, m.notSupported("C_GenerateKey")
}

func (m *Module) GenerateKeyPair(pkcs11.SessionHandle, []*pkcs11.Mechanism, []*pkcs11.Attribute, []*pkcs11.Attribute) (pkcs11.ObjectHandle, pkcs11.ObjectHandle, error) {
	return 0, 0, m.notSupported("C_GenerateKeyPair")
}

func (m *Module) WrapKey(pkcs11.SessionHandle, []*pkcs11.Mechanism, pkcs11.ObjectHandle, pkcs11.ObjectHandle) ([]byte, error) {
	return nil, m.notSupported("C_WrapKey")
}

func (m *Module) UnwrapKey(pkcs11.SessionHandle, []*pkcs11.Mechanism, pkcs11.ObjectHandle, []byte, []*pkcs11.Attribute) (pkcs11.ObjectHandle, error) {
	return 0, m.notSupported("C_UnwrapKey")
}

func (m *Module) DeriveKey(pkcs11.SessionHandle, []*pkcs11.Mechanism, pkcs11.ObjectHandle, []*pkcs11.Attribute) (pkcs11.ObjectHandle, error) {
	return 0, m.notSupported("C_DeriveKey")
}

func (m *Module) SeedRandom(pkcs11.SessionHandle, []byte) error {
	return m.notSupported("C_SeedRandom")
}

func (m *Module) GenerateRandom(pkcs11.SessionHandle, int) ([]byte, error) {
	return nil, m.notSupported("C_GenerateRandom")
}

func (m *Module) GetFunctionStatus(pkcs11.SessionHandle) error {
	return m.notSupported("C_GetFunctionStatus")
}

func (m *Module) CancelFunction(pkcs11.SessionHandle) error {
	return m.notSupported("C_CancelFunction")
}

func (m *Module) WaitForSlotEvent(uint) (uint, error) {
	return 0, m.notSupported("C_WaitForSlotEvent")
}
