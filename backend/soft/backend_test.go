package soft

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/niclabs/keychain-bridge/backend"
	"github.com/niclabs/keychain-bridge/internal/testcerts"
	"github.com/niclabs/keychain-bridge/storage"
	"github.com/niclabs/keychain-bridge/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPIN = "1234"

type fixture struct {
	store   *memory.Store
	backend *Backend
	tokenID string
	rsa     *testcerts.Cert
	ec      *testcerts.Cert
}

// newFixture stores one token holding an RSA identity encrypted with
// testPIN and a plaintext EC identity.
func newFixture(t *testing.T) *fixture {
	f := &fixture{store: memory.New(), tokenID: storage.NewTokenID()}
	require.NoError(t, f.store.InitStorage())
	require.NoError(t, f.store.SaveToken(&storage.Token{ID: f.tokenID, Label: "card"}))

	f.rsa = testcerts.New(t, "rsa user", false, testcerts.RSAKey(t), nil)
	rec, err := NewIdentityRecord(f.tokenID, "rsa user", f.rsa.Certificate, f.rsa.Key, []byte(testPIN))
	require.NoError(t, err)
	require.NoError(t, f.store.SaveIdentity(rec))

	f.ec = testcerts.New(t, "ec user", false, testcerts.ECKey(t), nil)
	rec, err = NewIdentityRecord(f.tokenID, "ec user", f.ec.Certificate, f.ec.Key, nil)
	require.NoError(t, err)
	require.NoError(t, f.store.SaveIdentity(rec))

	f.backend = New(f.store)
	return f
}

func (f *fixture) identities(t *testing.T) []backend.Identity {
	ids, err := f.backend.Identities(f.tokenID, nil)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	return ids
}

func TestBackend_Identities(t *testing.T) {
	f := newFixture(t)
	var _ backend.Backend = f.backend

	tokens, err := f.backend.TokenIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{f.tokenID}, tokens)

	ids := f.identities(t)
	assert.Equal(t, "rsa user", ids[0].Label())
	assert.Equal(t, f.rsa.Certificate.Raw, ids[0].Certificate().Raw)
	assert.Equal(t, backend.Capabilities{Sign: true, Verify: true, Decrypt: true, Encrypt: true, Wrap: true}, ids[0].Capabilities())
	assert.Equal(t, backend.Capabilities{Sign: true, Verify: true}, ids[1].Capabilities())
	assert.Equal(t, 256, ids[0].PublicKey().BlockSize())
	assert.Equal(t, 64, ids[1].PrivateKey().BlockSize())

	data, err := ids[1].PublicKey().ExternalRepresentation()
	require.NoError(t, err)
	assert.Len(t, data, 65)
	assert.Equal(t, byte(4), data[0])
}

func TestBackend_SkipsBrokenRows(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SaveIdentity(&storage.Identity{
		TokenID:     f.tokenID,
		Label:       "broken",
		Certificate: []byte("not a certificate"),
		PrivateKey:  []byte{1},
	}))
	f.identities(t)
}

func TestBackend_AuthContext(t *testing.T) {
	f := newFixture(t)
	auth, err := f.backend.NewAuthContext(f.tokenID)
	require.NoError(t, err)
	require.NotNil(t, auth)

	plain := storage.NewTokenID()
	rec, err := NewIdentityRecord(plain, "plain", f.ec.Certificate, f.ec.Key, nil)
	require.NoError(t, err)
	require.NoError(t, f.store.SaveIdentity(rec))
	none, err := f.backend.NewAuthContext(plain)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestBackend_LoginUnlocksKey(t *testing.T) {
	f := newFixture(t)
	ids := f.identities(t)
	auth, err := f.backend.NewAuthContext(f.tokenID)
	require.NoError(t, err)

	priv := ids[0].PrivateKey()
	digest := make([]byte, 32)
	_, err = priv.Sign(backend.RSASignatureDigestPKCS1v15SHA256, digest)
	assert.True(t, errors.Is(err, backend.ErrKeyLocked))

	err = auth.Authenticate(ids[0].AccessControl(), []byte("0000"), backend.UsageSign)
	assert.True(t, errors.Is(err, backend.ErrPINIncorrect))
	err = auth.Authenticate(ids[0].AccessControl(), nil, backend.UsageSign)
	assert.True(t, errors.Is(err, backend.ErrPINIncorrect))

	require.NoError(t, auth.Authenticate(ids[0].AccessControl(), []byte(testPIN), backend.UsageSign))
	sig, err := priv.Sign(backend.RSASignatureDigestPKCS1v15SHA256, digest)
	require.NoError(t, err)
	require.NoError(t, ids[0].PublicKey().Verify(backend.RSASignatureDigestPKCS1v15SHA256, digest, sig))

	auth.Logout()
	auth.Logout()
	_, err = priv.Sign(backend.RSASignatureDigestPKCS1v15SHA256, digest)
	assert.True(t, errors.Is(err, backend.ErrKeyLocked))

	// plaintext keys never lock
	_, err = ids[1].PrivateKey().Sign(backend.ECDSASignatureDigestX962SHA256, digest)
	assert.NoError(t, err)
}

func TestBackend_TrustedCertificates(t *testing.T) {
	f := newFixture(t)
	root := testcerts.New(t, "Root", true, testcerts.ECKey(t), nil)
	require.NoError(t, f.store.AddTrustedCertificate(root.Certificate.Raw))
	require.NoError(t, f.store.AddTrustedCertificate([]byte("garbage")))

	certs, err := f.backend.TrustedCertificates()
	require.NoError(t, err)
	require.Len(t, certs, 3)
	assert.Equal(t, root.Certificate.Raw, certs[0].Certificate.Raw)
	assert.Empty(t, certs[0].AccessGroup)
	assert.Equal(t, backend.TokenAccessGroup, certs[1].AccessGroup)
	assert.Equal(t, backend.TokenAccessGroup, certs[2].AccessGroup)
}

func TestKey_RefCount(t *testing.T) {
	f := newFixture(t)
	key := f.identities(t)[0].PrivateKey().(*PrivateKey)
	key.Retain()
	key.Retain()
	assert.Equal(t, 2, key.Refs())
	key.Release()
	key.Release()
	assert.Equal(t, 0, key.Refs())
}

func TestKey_WrongHalf(t *testing.T) {
	f := newFixture(t)
	id := f.identities(t)[1]
	_, err := id.PublicKey().Sign(backend.ECDSASignatureDigestX962, nil)
	assert.True(t, errors.Is(err, backend.ErrUnsupportedAlgorithm))
	_, err = id.PrivateKey().Encrypt(backend.RSAEncryptionPKCS1, nil)
	assert.True(t, errors.Is(err, backend.ErrUnsupportedAlgorithm))
	_, err = id.PublicKey().Encrypt(backend.RSAEncryptionPKCS1, nil)
	assert.True(t, errors.Is(err, backend.ErrUnsupportedAlgorithm))
	_, err = id.PrivateKey().Decrypt(backend.RSAEncryptionPKCS1, nil)
	assert.True(t, errors.Is(err, backend.ErrUnsupportedAlgorithm))
}

func TestCapabilities(t *testing.T) {
	signer := testcerts.New(t, "ca", true, testcerts.ECKey(t), nil)
	assert.Equal(t, backend.Capabilities{Sign: true, Verify: true}, capabilities(signer.Certificate, false))

	cert := *signer.Certificate
	cert.KeyUsage = 0
	assert.Equal(t, backend.Capabilities{Sign: true, Verify: true, Decrypt: true, Encrypt: true, Wrap: true}, capabilities(&cert, true))
}
