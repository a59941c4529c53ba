package objects

import (
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"math/big"
	"testing"

	"github.com/miekg/pkcs11"
	"github.com/niclabs/keychain-bridge/backend"
	"github.com/niclabs/keychain-bridge/internal/testcerts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rsaIdentity(t *testing.T, label string) *Identity {
	key := testcerts.RSAKey(t)
	cert := testcerts.New(t, label, false, key, nil)
	return &Identity{
		Label:       label,
		Certificate: cert.Certificate,
		KeyType:     pkcs11.CKK_RSA,
		Capabilities: backend.Capabilities{
			Sign: true, Decrypt: true, Verify: true, Encrypt: true,
		},
		BlockSize:     key.Size(),
		PublicKeyData: x509.MarshalPKCS1PublicKey(&key.PublicKey),
	}
}

func ulong(v uint) []byte {
	return pkcs11.NewAttribute(pkcs11.CKA_CLASS, v).Value
}

func TestBuildIdentityObjects(t *testing.T) {
	ids := []*Identity{rsaIdentity(t, "alice"), rsaIdentity(t, "bob")}
	objs := BuildIdentityObjects(ids)
	require.Len(t, objs, 6)

	classes := []uint{pkcs11.CKO_CERTIFICATE, pkcs11.CKO_PUBLIC_KEY, pkcs11.CKO_PRIVATE_KEY}
	for i, obj := range objs {
		assert.Equal(t, uint(i+1), obj.Handle)
		assert.Equal(t, classes[i%3], obj.Class)
		assert.Equal(t, ulong(classes[i%3]), obj.Attributes.Find(pkcs11.CKA_CLASS).Value)
		assert.Equal(t, IndexBytes(uint(i/3)), obj.Attributes.Find(pkcs11.CKA_ID).Value)
		assert.Same(t, ids[i/3], obj.Identity)

		got, err := objs.Get(obj.Handle)
		require.NoError(t, err)
		assert.Same(t, obj, got)
	}

	cert := objs[0]
	assert.Equal(t, ids[0].Certificate.Raw, cert.Attributes.Find(pkcs11.CKA_VALUE).Value)
	assert.Equal(t, ids[0].Certificate.RawSubject, cert.Attributes.Find(pkcs11.CKA_SUBJECT).Value)
	assert.Equal(t, ids[0].Certificate.RawIssuer, cert.Attributes.Find(pkcs11.CKA_ISSUER).Value)
	assert.Equal(t, []byte("alice"), cert.Attributes.Find(pkcs11.CKA_LABEL).Value)
	serial := cert.Attributes.Find(pkcs11.CKA_SERIAL_NUMBER).Value
	require.NotEmpty(t, serial)
	assert.Equal(t, byte(0x02), serial[0])

	pub := objs[1]
	pubKey := ids[0].Certificate.PublicKey.(*rsa.PublicKey)
	assert.Equal(t, pubKey.N.Bytes(), pub.Attributes.Find(pkcs11.CKA_MODULUS).Value)
	assert.Equal(t, big.NewInt(int64(pubKey.E)).Bytes(), pub.Attributes.Find(pkcs11.CKA_PUBLIC_EXPONENT).Value)
	assert.Equal(t, ulong(2048), pub.Attributes.Find(pkcs11.CKA_MODULUS_BITS).Value)
	assert.Equal(t, []byte{1}, pub.Attributes.Find(pkcs11.CKA_VERIFY).Value)
	assert.Equal(t, []byte{0}, pub.Attributes.Find(pkcs11.CKA_WRAP).Value)

	priv := objs[2]
	assert.Equal(t, []byte{1}, priv.Attributes.Find(pkcs11.CKA_PRIVATE).Value)
	assert.Equal(t, []byte{1}, priv.Attributes.Find(pkcs11.CKA_SIGN).Value)
	assert.Equal(t, []byte{0}, priv.Attributes.Find(pkcs11.CKA_EXTRACTABLE).Value)
	assert.NotNil(t, priv.Attributes.Find(pkcs11.CKA_MODULUS))
	assert.Nil(t, priv.Attributes.Find(pkcs11.CKA_VALUE))

	_, err := objs.Get(0)
	assert.Equal(t, pkcs11.Error(pkcs11.CKR_OBJECT_HANDLE_INVALID), errCode(t, err))
	_, err = objs.Get(7)
	assert.Equal(t, pkcs11.Error(pkcs11.CKR_OBJECT_HANDLE_INVALID), errCode(t, err))
}

func TestBuildIdentityObjects_EC(t *testing.T) {
	key := testcerts.ECKey(t)
	cert := testcerts.New(t, "ec", false, key, nil)
	id := &Identity{
		Label:         "ec",
		Certificate:   cert.Certificate,
		KeyType:       pkcs11.CKK_EC,
		Capabilities:  backend.Capabilities{Sign: true, Verify: true},
		BlockSize:     64,
		PublicKeyData: elliptic.Marshal(key.Curve, key.X, key.Y),
	}
	objs := BuildIdentityObjects([]*Identity{id})
	require.Len(t, objs, 3)

	params := objs[1].Attributes.Find(pkcs11.CKA_EC_PARAMS)
	require.NotNil(t, params)
	assert.Equal(t, []byte{0x06, 0x08, 0x2a, 0x86, 0x48, 0xce, 0x3d, 0x03, 0x01, 0x07}, params.Value)
	point := objs[1].Attributes.Find(pkcs11.CKA_EC_POINT)
	require.NotNil(t, point)
	assert.Equal(t, byte(0x04), point.Value[0])
	assert.Equal(t, id.PublicKeyData, point.Value[2:])
	assert.Nil(t, objs[2].Attributes.Find(pkcs11.CKA_EC_POINT))
	assert.Nil(t, objs[1].Attributes.Find(pkcs11.CKA_MODULUS))
}

func TestBuildCertificateObjects(t *testing.T) {
	rootKey := testcerts.RSAKey(t)
	root := testcerts.New(t, "Root-A", true, rootKey, nil)
	leaf := testcerts.New(t, "leaf", false, testcerts.ECKey(t), root)

	objs := BuildCertificateObjects([]*x509.Certificate{root.Certificate, leaf.Certificate})
	require.Len(t, objs, 4)

	assert.Equal(t, uint(pkcs11.CKO_CERTIFICATE), objs[0].Class)
	assert.Equal(t, uint(CKO_NSS_TRUST), objs[1].Class)
	assert.Equal(t, []byte("Root-A"), objs[0].Attributes.Find(pkcs11.CKA_LABEL).Value)
	assert.Equal(t, []byte{0x01}, objs[2].Attributes.Find(pkcs11.CKA_ID).Value)
	for _, obj := range objs {
		assert.Nil(t, obj.Identity)
	}

	rootTrust := objs[1]
	hash := sha1.Sum(root.Certificate.Raw)
	assert.Equal(t, hash[:], rootTrust.Attributes.Find(CKA_CERT_SHA1_HASH).Value)
	assert.Equal(t, root.Certificate.RawIssuer, rootTrust.Attributes.Find(pkcs11.CKA_ISSUER).Value)
	assert.Nil(t, rootTrust.Attributes.Find(pkcs11.CKA_ID))
	delegator := ulong(CKT_NSS_TRUSTED_DELEGATOR)
	for _, attrType := range []uint{CKA_TRUST_SERVER_AUTH, CKA_TRUST_CLIENT_AUTH, CKA_TRUST_EMAIL_PROTECTION, CKA_TRUST_CODE_SIGNING} {
		attr := rootTrust.Attributes.Find(attrType)
		require.NotNil(t, attr)
		assert.Equal(t, delegator, attr.Value)
	}

	leafTrust := objs[3]
	assert.NotNil(t, leafTrust.Attributes.Find(CKA_CERT_SHA1_HASH))
	assert.Nil(t, leafTrust.Attributes.Find(CKA_TRUST_SERVER_AUTH))
}
