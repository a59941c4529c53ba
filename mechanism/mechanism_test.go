package mechanism

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/miekg/pkcs11"
	"github.com/niclabs/keychain-bridge/backend"
	"github.com/niclabs/keychain-bridge/digest"
	"github.com/niclabs/keychain-bridge/objects"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codeOf(t *testing.T, err error) pkcs11.Error {
	t.Helper()
	var tcbErr *objects.TcbError
	require.True(t, errors.As(err, &tcbErr), "expected a coded error, got %v", err)
	return tcbErr.Code
}

func TestNegotiate_NoParam(t *testing.T) {
	n, err := Negotiate(pkcs11.CKM_SHA256_RSA_PKCS, nil, pkcs11.CKF_SIGN)
	require.NoError(t, err)
	assert.Equal(t, backend.RSASignatureMessagePKCS1v15SHA256, n.Sign)
	assert.Equal(t, backend.RSASignatureDigestPKCS1v15SHA256, n.DigestSign)
	assert.Equal(t, uint(pkcs11.CKM_SHA256), n.Digest)
	assert.Empty(t, n.Encrypt)

	_, err = Negotiate(pkcs11.CKM_SHA256_RSA_PKCS, []byte{1}, pkcs11.CKF_SIGN)
	assert.Equal(t, pkcs11.Error(pkcs11.CKR_MECHANISM_PARAM_INVALID), codeOf(t, err))

	n, err = Negotiate(pkcs11.CKM_RSA_PKCS, nil, pkcs11.CKF_ENCRYPT)
	require.NoError(t, err)
	assert.Equal(t, backend.RSAEncryptionPKCS1, n.Encrypt)
	assert.Zero(t, n.Digest)
	assert.Empty(t, n.DigestSign)
}

func TestNegotiate_UnknownOrWrongUsage(t *testing.T) {
	_, err := Negotiate(pkcs11.CKM_AES_CBC, nil, pkcs11.CKF_ENCRYPT)
	assert.Equal(t, pkcs11.Error(pkcs11.CKR_MECHANISM_INVALID), codeOf(t, err))

	_, err = Negotiate(pkcs11.CKM_SHA256_RSA_PKCS, nil, pkcs11.CKF_ENCRYPT)
	assert.Equal(t, pkcs11.Error(pkcs11.CKR_MECHANISM_INVALID), codeOf(t, err))

	_, err = Negotiate(pkcs11.CKM_RSA_PKCS_OAEP, nil, pkcs11.CKF_SIGN)
	assert.Equal(t, pkcs11.Error(pkcs11.CKR_MECHANISM_INVALID), codeOf(t, err))
}

func TestNegotiate_OAEP(t *testing.T) {
	param := EncodeOAEPParams(&pkcs11.OAEPParams{
		HashAlg:    pkcs11.CKM_SHA256,
		MGF:        pkcs11.CKG_MGF1_SHA256,
		SourceType: pkcs11.CKZ_DATA_SPECIFIED,
	})
	n, err := Negotiate(pkcs11.CKM_RSA_PKCS_OAEP, param, pkcs11.CKF_DECRYPT)
	require.NoError(t, err)
	assert.Equal(t, backend.RSAEncryptionOAEPSHA256, n.Encrypt)

	param = EncodeOAEPParams(&pkcs11.OAEPParams{HashAlg: pkcs11.CKM_SHA_1, MGF: pkcs11.CKG_MGF1_SHA1})
	n, err = Negotiate(pkcs11.CKM_RSA_PKCS_OAEP, param, pkcs11.CKF_ENCRYPT)
	require.NoError(t, err)
	assert.Equal(t, backend.RSAEncryptionOAEPSHA1, n.Encrypt)

	tests := []struct {
		name  string
		param []byte
	}{
		{"missing", nil},
		{"truncated", param[:len(param)-1]},
		{"mismatched mgf", EncodeOAEPParams(&pkcs11.OAEPParams{HashAlg: pkcs11.CKM_SHA256, MGF: pkcs11.CKG_MGF1_SHA1})},
		{"source data", EncodeOAEPParams(&pkcs11.OAEPParams{
			HashAlg: pkcs11.CKM_SHA256, MGF: pkcs11.CKG_MGF1_SHA256,
			SourceType: pkcs11.CKZ_DATA_SPECIFIED, SourceData: []byte("label"),
		})},
		{"unknown source", EncodeOAEPParams(&pkcs11.OAEPParams{
			HashAlg: pkcs11.CKM_SHA256, MGF: pkcs11.CKG_MGF1_SHA256, SourceType: 7,
		})},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Negotiate(pkcs11.CKM_RSA_PKCS_OAEP, tc.param, pkcs11.CKF_ENCRYPT)
			assert.Equal(t, pkcs11.Error(pkcs11.CKR_MECHANISM_PARAM_INVALID), codeOf(t, err))
		})
	}
}

func TestNegotiate_PSS(t *testing.T) {
	param := EncodePSSParams(&PSSParams{HashAlg: pkcs11.CKM_SHA256, MGF: pkcs11.CKG_MGF1_SHA256, SaltLength: 32})
	n, err := Negotiate(pkcs11.CKM_SHA256_RSA_PKCS_PSS, param, pkcs11.CKF_SIGN)
	require.NoError(t, err)
	assert.Equal(t, backend.RSASignatureMessagePSSSHA256, n.Sign)
	assert.Equal(t, backend.RSASignatureDigestPSSSHA256, n.DigestSign)
	assert.Equal(t, uint(pkcs11.CKM_SHA256), n.Digest)

	n, err = Negotiate(pkcs11.CKM_RSA_PKCS_PSS, param, pkcs11.CKF_VERIFY)
	require.NoError(t, err)
	assert.Equal(t, backend.RSASignatureDigestPSSSHA256, n.Sign)
	assert.Empty(t, n.DigestSign)
	assert.Zero(t, n.Digest)

	for _, salt := range []uint{0, 20, 31, 33, 64} {
		param := EncodePSSParams(&PSSParams{HashAlg: pkcs11.CKM_SHA256, MGF: pkcs11.CKG_MGF1_SHA256, SaltLength: salt})
		_, err := Negotiate(pkcs11.CKM_SHA256_RSA_PKCS_PSS, param, pkcs11.CKF_SIGN)
		assert.Equal(t, pkcs11.Error(pkcs11.CKR_MECHANISM_PARAM_INVALID), codeOf(t, err), "salt %d", salt)
	}

	// the hash must match the mechanism
	param = EncodePSSParams(&PSSParams{HashAlg: pkcs11.CKM_SHA384, MGF: pkcs11.CKG_MGF1_SHA384, SaltLength: 48})
	_, err = Negotiate(pkcs11.CKM_SHA256_RSA_PKCS_PSS, param, pkcs11.CKF_SIGN)
	assert.Equal(t, pkcs11.Error(pkcs11.CKR_MECHANISM_PARAM_INVALID), codeOf(t, err))

	_, err = Negotiate(pkcs11.CKM_SHA256_RSA_PKCS_PSS, append(param, 0), pkcs11.CKF_SIGN)
	assert.Equal(t, pkcs11.Error(pkcs11.CKR_MECHANISM_PARAM_INVALID), codeOf(t, err))
}

func TestParamsRoundTrip(t *testing.T) {
	p, err := DecodePSSParams(EncodePSSParams(&PSSParams{HashAlg: 1, MGF: 2, SaltLength: 3}))
	require.NoError(t, err)
	assert.Equal(t, &PSSParams{HashAlg: 1, MGF: 2, SaltLength: 3}, p)

	source := &pkcs11.OAEPParams{HashAlg: 1, MGF: 2, SourceType: 1, SourceData: []byte{9, 9}}
	o, err := DecodeOAEPParams(EncodeOAEPParams(source))
	require.NoError(t, err)
	assert.Equal(t, uint(1), o.SourceType)
	assert.Equal(t, uint(2), o.SourceDataLen)
	assert.NotZero(t, o.SourceData)

	assert.Equal(t, EncodePSSParams(&PSSParams{HashAlg: 1, MGF: 2, SaltLength: 3}), pkcs11.NewPSSParams(1, 2, 3))
}

func TestDecodeOAEPParams_SourcePair(t *testing.T) {
	tests := []struct {
		name        string
		data, size  uint
		sourceType  uint
		valid       bool
		negotiateOK bool
	}{
		{"no source", 0, 0, pkcs11.CKZ_DATA_SPECIFIED, true, true},
		{"length without pointer", 0, 5, pkcs11.CKZ_DATA_SPECIFIED, false, false},
		{"pointer without length", 0x1000, 0, pkcs11.CKZ_DATA_SPECIFIED, false, false},
		{"specified data", 0x1000, 5, pkcs11.CKZ_DATA_SPECIFIED, true, false},
		{"data with source 0", 0x1000, 5, 0, true, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			param := writeWords(pkcs11.CKM_SHA256, pkcs11.CKG_MGF1_SHA256, tc.sourceType, tc.data, tc.size)
			p, err := DecodeOAEPParams(param)
			if !tc.valid {
				assert.Equal(t, pkcs11.Error(pkcs11.CKR_MECHANISM_PARAM_INVALID), codeOf(t, err))
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.size, p.SourceDataLen)
			}

			_, err = Negotiate(pkcs11.CKM_RSA_PKCS_OAEP, param, pkcs11.CKF_ENCRYPT)
			if tc.negotiateOK {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, pkcs11.Error(pkcs11.CKR_MECHANISM_PARAM_INVALID), codeOf(t, err))
			}
		})
	}
}

func TestListAndLookup(t *testing.T) {
	list := List()
	assert.Contains(t, list, uint(pkcs11.CKM_RSA_PKCS))
	assert.Contains(t, list, uint(pkcs11.CKM_ECDSA_SHA256))
	for _, mech := range list {
		info, ok := Lookup(mech)
		require.True(t, ok)
		assert.NotZero(t, info.Usage)
		assert.LessOrEqual(t, info.MinKeySize, info.MaxKeySize)
	}
	_, ok := Lookup(pkcs11.CKM_AES_CBC)
	assert.False(t, ok)
}

// multi-part operations hash with Digest and sign the sum with DigestSign,
// so both must name the same hash
func TestTable_DigestMatchesDigestSign(t *testing.T) {
	check := func(mech uint, digestSign backend.Algorithm) {
		info, ok := Lookup(mech)
		require.True(t, ok)
		h, ok := digest.HashFor(info.Digest)
		require.True(t, ok, "mechanism 0x%x", mech)
		spec, ok := backend.Describe(digestSign)
		require.True(t, ok, "mechanism 0x%x", mech)
		assert.Equal(t, h, spec.Hash, "mechanism 0x%x", mech)
		assert.False(t, spec.Message, "mechanism 0x%x", mech)
	}
	for _, info := range mechanisms {
		if info.Digest == 0 {
			assert.Empty(t, info.DigestSign, "mechanism 0x%x", info.Type)
		} else if info.Params == ParamNone {
			check(info.Type, info.DigestSign)
		}
	}
	for _, row := range paramRows {
		if row.digestSign != "" {
			check(row.mech, row.digestSign)
		}
	}
}
