package bridge

import (
	"testing"

	"github.com/miekg/pkcs11"
	"github.com/niclabs/keychain-bridge/backend/soft"
	"github.com/niclabs/keychain-bridge/internal/testcerts"
	"github.com/niclabs/keychain-bridge/mechanism"
	"github.com/niclabs/keychain-bridge/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotInfo(t *testing.T) {
	f := newFixture(t)

	slots, err := f.module.GetSlotList(false)
	require.NoError(t, err)
	assert.Equal(t, []uint{0}, slots)

	info, err := f.module.GetSlotInfo(0)
	require.NoError(t, err)
	assert.Equal(t, "rsa user", info.SlotDescription)
	assert.Equal(t, uint(pkcs11.CKF_HW_SLOT|pkcs11.CKF_REMOVABLE_DEVICE|pkcs11.CKF_TOKEN_PRESENT), info.Flags)

	_, err = f.module.GetSlotInfo(3)
	assert.Equal(t, pkcs11.Error(pkcs11.CKR_SLOT_ID_INVALID), err)
	_, err = f.module.GetSlotInfo(CertificateSlot)
	assert.Equal(t, pkcs11.Error(pkcs11.CKR_SLOT_ID_INVALID), err)
}

func TestTokenInfo(t *testing.T) {
	f := newFixture(t)

	info, err := f.module.GetTokenInfo(0)
	require.NoError(t, err)
	assert.Equal(t, "rsa user", info.Label)
	assert.Equal(t, "000001", info.SerialNumber)
	assert.NotZero(t, info.Flags&pkcs11.CKF_LOGIN_REQUIRED)
	assert.NotZero(t, info.Flags&pkcs11.CKF_WRITE_PROTECTED)
	assert.Zero(t, info.Flags&pkcs11.CKF_PROTECTED_AUTHENTICATION_PATH)
	assert.Equal(t, uint(1), info.MinPinLen)
	assert.Equal(t, uint(255), info.MaxPinLen)

	f.module.RemoveToken(f.tokenID)
	_, err = f.module.GetTokenInfo(0)
	assert.Equal(t, pkcs11.Error(pkcs11.CKR_TOKEN_NOT_PRESENT), err)
}

func TestTokenInfo_NoPinPrompt(t *testing.T) {
	f := newStoreFixture(t)
	conf := testConfig()
	conf.Criptoki.AskPin = false
	f.start(t, conf)

	info, err := f.module.GetTokenInfo(0)
	require.NoError(t, err)
	assert.NotZero(t, info.Flags&pkcs11.CKF_PROTECTED_AUTHENTICATION_PATH)
}

func TestAddRemoveToken(t *testing.T) {
	f := newFixture(t)
	second := storage.NewTokenID()
	f.saveToken(t, second)

	f.module.AddToken(second)
	f.module.AddToken(second)
	slots, err := f.module.GetSlotList(true)
	require.NoError(t, err)
	assert.Equal(t, []uint{0, 1}, slots)

	f.module.RemoveToken(f.tokenID)
	f.module.RemoveToken("not-a-token")
	slots, err = f.module.GetSlotList(true)
	require.NoError(t, err)
	assert.Equal(t, []uint{1}, slots)
	slots, err = f.module.GetSlotList(false)
	require.NoError(t, err)
	assert.Equal(t, []uint{0, 1}, slots)

	info, err := f.module.GetSlotInfo(0)
	require.NoError(t, err)
	assert.Zero(t, info.Flags&pkcs11.CKF_TOKEN_PRESENT)

	// the first free slot is reused
	f.module.AddToken(f.tokenID)
	slots, err = f.module.GetSlotList(true)
	require.NoError(t, err)
	assert.Equal(t, []uint{0, 1}, slots)
}

func TestAddToken_WithoutIdentities(t *testing.T) {
	f := newFixture(t)
	empty := storage.NewTokenID()
	require.NoError(t, f.store.SaveToken(&storage.Token{ID: empty, Label: "empty"}))

	f.module.AddToken(empty)
	slots, err := f.module.GetSlotList(false)
	require.NoError(t, err)
	assert.Equal(t, []uint{0}, slots)
}

func TestAddToken_Refresh(t *testing.T) {
	f := newFixture(t)
	old := f.module.slots[0]
	s := f.openSession(t, 0)

	// the same objects leave the slot alone
	f.module.AddToken(f.tokenID)
	assert.Same(t, old, f.module.slots[0])

	extra := testcerts.New(t, "third user", false, testcerts.ECKey(t), nil)
	rec, err := soft.NewIdentityRecord(f.tokenID, "third user", extra.Certificate, extra.Key, nil)
	require.NoError(t, err)
	require.NoError(t, f.store.SaveIdentity(rec))

	f.module.AddToken(f.tokenID)
	refreshed := f.module.slots[0]
	require.NotSame(t, old, refreshed)
	assert.Len(t, refreshed.Objects, 9)
	slots, err := f.module.GetSlotList(true)
	require.NoError(t, err)
	assert.Equal(t, []uint{0}, slots)

	// the open session keeps the objects it started with
	assert.Equal(t, 1, old.Refs())
	require.NoError(t, f.module.FindObjectsInit(s, nil))
	found, err := f.module.FindObjects(s, 20)
	require.NoError(t, err)
	assert.Len(t, found, 6)
	require.NoError(t, f.module.FindObjectsFinal(s))
	require.NoError(t, f.module.CloseSession(s))
	assert.True(t, old.Freed())

	s = f.openSession(t, 0)
	require.NoError(t, f.module.FindObjectsInit(s, nil))
	found, err = f.module.FindObjects(s, 20)
	require.NoError(t, err)
	assert.Len(t, found, 9)
}

func TestTokenRefCount(t *testing.T) {
	f := newFixture(t)
	token := f.module.slots[0]
	require.NotNil(t, token)
	assert.Equal(t, 1, token.Refs())

	a := f.openSession(t, 0)
	b := f.openSession(t, 0)
	assert.Equal(t, 3, token.Refs())

	require.NoError(t, f.module.CloseSession(a))
	assert.Equal(t, 2, token.Refs())

	// removal only drops the slot reference
	f.module.RemoveToken(f.tokenID)
	assert.Equal(t, 1, token.Refs())
	assert.False(t, token.Freed())
	require.NoError(t, f.module.FindObjectsInit(b, nil))
	found, err := f.module.FindObjects(b, 10)
	require.NoError(t, err)
	assert.Len(t, found, 6)
	require.NoError(t, f.module.FindObjectsFinal(b))

	_, err = f.module.OpenSession(0, pkcs11.CKF_SERIAL_SESSION)
	assert.Equal(t, pkcs11.Error(pkcs11.CKR_TOKEN_NOT_PRESENT), err)
	assert.Equal(t, pkcs11.Error(pkcs11.CKR_DEVICE_REMOVED), f.module.Login(b, pkcs11.CKU_USER, []byte(testPIN)))

	require.NoError(t, f.module.CloseSession(b))
	assert.Equal(t, 0, token.Refs())
	assert.True(t, token.Freed())
}

func TestTokenRefCount_Finalize(t *testing.T) {
	f := newFixture(t)
	token := f.module.slots[0]
	f.openSession(t, 0)
	f.openSession(t, 0)

	require.NoError(t, f.module.Finalize())
	assert.True(t, token.Freed())
}

func TestMechanisms(t *testing.T) {
	f := newFixture(t)

	list, err := f.module.GetMechanismList(0)
	require.NoError(t, err)
	require.Len(t, list, len(mechanism.List()))
	assert.Equal(t, uint(pkcs11.CKM_RSA_PKCS), list[0].Mechanism)

	info, err := f.module.GetMechanismInfo(0, pkcs11.CKM_RSA_PKCS_OAEP)
	require.NoError(t, err)
	assert.Equal(t, uint(1024), info.MinKeySize)
	assert.Equal(t, uint(pkcs11.CKF_ENCRYPT|pkcs11.CKF_DECRYPT), info.Flags)

	info, err = f.module.GetMechanismInfo(0, pkcs11.CKM_ECDSA_SHA256)
	require.NoError(t, err)
	assert.Equal(t, uint(pkcs11.CKF_SIGN|pkcs11.CKF_VERIFY), info.Flags)

	_, err = f.module.GetMechanismInfo(0, pkcs11.CKM_AES_CBC)
	assert.Equal(t, pkcs11.Error(pkcs11.CKR_MECHANISM_INVALID), err)
	_, err = f.module.GetMechanismList(9)
	assert.Equal(t, pkcs11.Error(pkcs11.CKR_SLOT_ID_INVALID), err)
}
