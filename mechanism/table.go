package mechanism

import (
	"github.com/miekg/pkcs11"
	"github.com/niclabs/keychain-bridge/backend"
)

// ParamKind is the shape of the parameter a mechanism accepts.
type ParamKind int

const (
	ParamNone ParamKind = iota
	ParamOAEP
	ParamPSS
)

const (
	usageCrypt = pkcs11.CKF_ENCRYPT | pkcs11.CKF_DECRYPT
	usageSign  = pkcs11.CKF_SIGN | pkcs11.CKF_VERIFY
)

// Info is one row of the mechanism table.
type Info struct {
	Type       uint
	Params     ParamKind
	Usage      uint
	MinKeySize uint
	MaxKeySize uint
	// BlockSizeOut is set when the output size of an operation is the
	// block size of the key.
	BlockSizeOut bool
	Encrypt      backend.Algorithm
	Sign         backend.Algorithm
	// DigestSign signs a digest computed by the multi-part operations.
	DigestSign backend.Algorithm
	// Digest is the digest mechanism of multi-part operations, 0 if the
	// mechanism has none.
	Digest uint
}

// paramRow is a supported combination of parameters for an OAEP or PSS
// mechanism. SaltLen is ignored for OAEP rows.
type paramRow struct {
	mech       uint
	hash       uint
	mgf        uint
	saltLen    uint
	encrypt    backend.Algorithm
	sign       backend.Algorithm
	digestSign backend.Algorithm
}

var mechanisms = []*Info{
	{
		Type: pkcs11.CKM_RSA_PKCS, Params: ParamNone, Usage: usageCrypt | usageSign,
		MinKeySize: 1024, MaxKeySize: 8192, BlockSizeOut: true,
		Encrypt: backend.RSAEncryptionPKCS1, Sign: backend.RSASignatureDigestPKCS1v15Raw,
	},
	{
		Type: pkcs11.CKM_RSA_X_509, Params: ParamNone, Usage: usageCrypt | usageSign,
		MinKeySize: 1024, MaxKeySize: 8192, BlockSizeOut: true,
		Encrypt: backend.RSAEncryptionRaw, Sign: backend.RSASignatureRaw,
	},
	{
		Type: pkcs11.CKM_RSA_PKCS_OAEP, Params: ParamOAEP, Usage: usageCrypt,
		MinKeySize: 1024, MaxKeySize: 8192, BlockSizeOut: true,
	},
	{
		Type: pkcs11.CKM_RSA_PKCS_PSS, Params: ParamPSS, Usage: usageSign,
		MinKeySize: 1024, MaxKeySize: 8192, BlockSizeOut: true,
	},
	rsaPKCS(pkcs11.CKM_SHA1_RSA_PKCS, pkcs11.CKM_SHA_1,
		backend.RSASignatureMessagePKCS1v15SHA1, backend.RSASignatureDigestPKCS1v15SHA1),
	rsaPKCS(pkcs11.CKM_SHA224_RSA_PKCS, pkcs11.CKM_SHA224,
		backend.RSASignatureMessagePKCS1v15SHA224, backend.RSASignatureDigestPKCS1v15SHA224),
	rsaPKCS(pkcs11.CKM_SHA256_RSA_PKCS, pkcs11.CKM_SHA256,
		backend.RSASignatureMessagePKCS1v15SHA256, backend.RSASignatureDigestPKCS1v15SHA256),
	rsaPKCS(pkcs11.CKM_SHA384_RSA_PKCS, pkcs11.CKM_SHA384,
		backend.RSASignatureMessagePKCS1v15SHA384, backend.RSASignatureDigestPKCS1v15SHA384),
	rsaPKCS(pkcs11.CKM_SHA512_RSA_PKCS, pkcs11.CKM_SHA512,
		backend.RSASignatureMessagePKCS1v15SHA512, backend.RSASignatureDigestPKCS1v15SHA512),
	rsaPSS(pkcs11.CKM_SHA1_RSA_PKCS_PSS, pkcs11.CKM_SHA_1),
	rsaPSS(pkcs11.CKM_SHA224_RSA_PKCS_PSS, pkcs11.CKM_SHA224),
	rsaPSS(pkcs11.CKM_SHA256_RSA_PKCS_PSS, pkcs11.CKM_SHA256),
	rsaPSS(pkcs11.CKM_SHA384_RSA_PKCS_PSS, pkcs11.CKM_SHA384),
	rsaPSS(pkcs11.CKM_SHA512_RSA_PKCS_PSS, pkcs11.CKM_SHA512),
	{
		Type: pkcs11.CKM_ECDSA, Params: ParamNone, Usage: usageSign,
		MinKeySize: 256, MaxKeySize: 521, BlockSizeOut: true,
		Sign: backend.ECDSASignatureDigestX962,
	},
	ecdsa(pkcs11.CKM_ECDSA_SHA1, pkcs11.CKM_SHA_1,
		backend.ECDSASignatureMessageX962SHA1, backend.ECDSASignatureDigestX962SHA1),
	ecdsa(pkcs11.CKM_ECDSA_SHA224, pkcs11.CKM_SHA224,
		backend.ECDSASignatureMessageX962SHA224, backend.ECDSASignatureDigestX962SHA224),
	ecdsa(pkcs11.CKM_ECDSA_SHA256, pkcs11.CKM_SHA256,
		backend.ECDSASignatureMessageX962SHA256, backend.ECDSASignatureDigestX962SHA256),
	ecdsa(pkcs11.CKM_ECDSA_SHA384, pkcs11.CKM_SHA384,
		backend.ECDSASignatureMessageX962SHA384, backend.ECDSASignatureDigestX962SHA384),
	ecdsa(pkcs11.CKM_ECDSA_SHA512, pkcs11.CKM_SHA512,
		backend.ECDSASignatureMessageX962SHA512, backend.ECDSASignatureDigestX962SHA512),
}

var paramRows = []paramRow{
	{mech: pkcs11.CKM_RSA_PKCS_OAEP, hash: pkcs11.CKM_SHA_1, mgf: pkcs11.CKG_MGF1_SHA1, encrypt: backend.RSAEncryptionOAEPSHA1},
	{mech: pkcs11.CKM_RSA_PKCS_OAEP, hash: pkcs11.CKM_SHA224, mgf: pkcs11.CKG_MGF1_SHA224, encrypt: backend.RSAEncryptionOAEPSHA224},
	{mech: pkcs11.CKM_RSA_PKCS_OAEP, hash: pkcs11.CKM_SHA256, mgf: pkcs11.CKG_MGF1_SHA256, encrypt: backend.RSAEncryptionOAEPSHA256},
	{mech: pkcs11.CKM_RSA_PKCS_OAEP, hash: pkcs11.CKM_SHA384, mgf: pkcs11.CKG_MGF1_SHA384, encrypt: backend.RSAEncryptionOAEPSHA384},
	{mech: pkcs11.CKM_RSA_PKCS_OAEP, hash: pkcs11.CKM_SHA512, mgf: pkcs11.CKG_MGF1_SHA512, encrypt: backend.RSAEncryptionOAEPSHA512},

	{mech: pkcs11.CKM_RSA_PKCS_PSS, hash: pkcs11.CKM_SHA_1, mgf: pkcs11.CKG_MGF1_SHA1, saltLen: 20, sign: backend.RSASignatureDigestPSSSHA1},
	{mech: pkcs11.CKM_RSA_PKCS_PSS, hash: pkcs11.CKM_SHA224, mgf: pkcs11.CKG_MGF1_SHA224, saltLen: 28, sign: backend.RSASignatureDigestPSSSHA224},
	{mech: pkcs11.CKM_RSA_PKCS_PSS, hash: pkcs11.CKM_SHA256, mgf: pkcs11.CKG_MGF1_SHA256, saltLen: 32, sign: backend.RSASignatureDigestPSSSHA256},
	{mech: pkcs11.CKM_RSA_PKCS_PSS, hash: pkcs11.CKM_SHA384, mgf: pkcs11.CKG_MGF1_SHA384, saltLen: 48, sign: backend.RSASignatureDigestPSSSHA384},
	{mech: pkcs11.CKM_RSA_PKCS_PSS, hash: pkcs11.CKM_SHA512, mgf: pkcs11.CKG_MGF1_SHA512, saltLen: 64, sign: backend.RSASignatureDigestPSSSHA512},

	{mech: pkcs11.CKM_SHA1_RSA_PKCS_PSS, hash: pkcs11.CKM_SHA_1, mgf: pkcs11.CKG_MGF1_SHA1, saltLen: 20,
		sign: backend.RSASignatureMessagePSSSHA1, digestSign: backend.RSASignatureDigestPSSSHA1},
	{mech: pkcs11.CKM_SHA224_RSA_PKCS_PSS, hash: pkcs11.CKM_SHA224, mgf: pkcs11.CKG_MGF1_SHA224, saltLen: 28,
		sign: backend.RSASignatureMessagePSSSHA224, digestSign: backend.RSASignatureDigestPSSSHA224},
	{mech: pkcs11.CKM_SHA256_RSA_PKCS_PSS, hash: pkcs11.CKM_SHA256, mgf: pkcs11.CKG_MGF1_SHA256, saltLen: 32,
		sign: backend.RSASignatureMessagePSSSHA256, digestSign: backend.RSASignatureDigestPSSSHA256},
	{mech: pkcs11.CKM_SHA384_RSA_PKCS_PSS, hash: pkcs11.CKM_SHA384, mgf: pkcs11.CKG_MGF1_SHA384, saltLen: 48,
		sign: backend.RSASignatureMessagePSSSHA384, digestSign: backend.RSASignatureDigestPSSSHA384},
	{mech: pkcs11.CKM_SHA512_RSA_PKCS_PSS, hash: pkcs11.CKM_SHA512, mgf: pkcs11.CKG_MGF1_SHA512, saltLen: 64,
		sign: backend.RSASignatureMessagePSSSHA512, digestSign: backend.RSASignatureDigestPSSSHA512},
}

func rsaPKCS(mech, digest uint, sign, digestSign backend.Algorithm) *Info {
	return &Info{
		Type: mech, Params: ParamNone, Usage: usageSign,
		MinKeySize: 1024, MaxKeySize: 8192, BlockSizeOut: true,
		Sign: sign, DigestSign: digestSign, Digest: digest,
	}
}

func rsaPSS(mech, digest uint) *Info {
	return &Info{
		Type: mech, Params: ParamPSS, Usage: usageSign,
		MinKeySize: 1024, MaxKeySize: 8192, BlockSizeOut: true,
		Digest: digest,
	}
}

func ecdsa(mech, digest uint, sign, digestSign backend.Algorithm) *Info {
	return &Info{
		Type: mech, Params: ParamNone, Usage: usageSign,
		MinKeySize: 256, MaxKeySize: 521, BlockSizeOut: true,
		Sign: sign, DigestSign: digestSign, Digest: digest,
	}
}
