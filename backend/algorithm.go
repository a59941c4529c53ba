package backend

import "crypto"

// Algorithm names a concrete backend operation.
type Algorithm string

// Padding is the padding or signature scheme of an algorithm.
type Padding int

const (
	PaddingRaw Padding = iota
	PaddingPKCS1v15
	PaddingPSS
	PaddingOAEP
	PaddingX962
)

const (
	RSAEncryptionRaw        Algorithm = "rsa-encryption-raw"
	RSAEncryptionPKCS1      Algorithm = "rsa-encryption-pkcs1"
	RSAEncryptionOAEPSHA1   Algorithm = "rsa-encryption-oaep-sha1"
	RSAEncryptionOAEPSHA224 Algorithm = "rsa-encryption-oaep-sha224"
	RSAEncryptionOAEPSHA256 Algorithm = "rsa-encryption-oaep-sha256"
	RSAEncryptionOAEPSHA384 Algorithm = "rsa-encryption-oaep-sha384"
	RSAEncryptionOAEPSHA512 Algorithm = "rsa-encryption-oaep-sha512"

	RSASignatureRaw                  Algorithm = "rsa-signature-raw"
	RSASignatureDigestPKCS1v15Raw    Algorithm = "rsa-signature-digest-pkcs1v15-raw"
	RSASignatureDigestPKCS1v15SHA1   Algorithm = "rsa-signature-digest-pkcs1v15-sha1"
	RSASignatureDigestPKCS1v15SHA224 Algorithm = "rsa-signature-digest-pkcs1v15-sha224"
	RSASignatureDigestPKCS1v15SHA256 Algorithm = "rsa-signature-digest-pkcs1v15-sha256"
	RSASignatureDigestPKCS1v15SHA384 Algorithm = "rsa-signature-digest-pkcs1v15-sha384"
	RSASignatureDigestPKCS1v15SHA512 Algorithm = "rsa-signature-digest-pkcs1v15-sha512"

	RSASignatureMessagePKCS1v15SHA1   Algorithm = "rsa-signature-message-pkcs1v15-sha1"
	RSASignatureMessagePKCS1v15SHA224 Algorithm = "rsa-signature-message-pkcs1v15-sha224"
	RSASignatureMessagePKCS1v15SHA256 Algorithm = "rsa-signature-message-pkcs1v15-sha256"
	RSASignatureMessagePKCS1v15SHA384 Algorithm = "rsa-signature-message-pkcs1v15-sha384"
	RSASignatureMessagePKCS1v15SHA512 Algorithm = "rsa-signature-message-pkcs1v15-sha512"

	RSASignatureDigestPSSSHA1   Algorithm = "rsa-signature-digest-pss-sha1"
	RSASignatureDigestPSSSHA224 Algorithm = "rsa-signature-digest-pss-sha224"
	RSASignatureDigestPSSSHA256 Algorithm = "rsa-signature-digest-pss-sha256"
	RSASignatureDigestPSSSHA384 Algorithm = "rsa-signature-digest-pss-sha384"
	RSASignatureDigestPSSSHA512 Algorithm = "rsa-signature-digest-pss-sha512"

	RSASignatureMessagePSSSHA1   Algorithm = "rsa-signature-message-pss-sha1"
	RSASignatureMessagePSSSHA224 Algorithm = "rsa-signature-message-pss-sha224"
	RSASignatureMessagePSSSHA256 Algorithm = "rsa-signature-message-pss-sha256"
	RSASignatureMessagePSSSHA384 Algorithm = "rsa-signature-message-pss-sha384"
	RSASignatureMessagePSSSHA512 Algorithm = "rsa-signature-message-pss-sha512"

	ECDSASignatureDigestX962       Algorithm = "ecdsa-signature-digest-x962"
	ECDSASignatureDigestX962SHA1   Algorithm = "ecdsa-signature-digest-x962-sha1"
	ECDSASignatureDigestX962SHA224 Algorithm = "ecdsa-signature-digest-x962-sha224"
	ECDSASignatureDigestX962SHA256 Algorithm = "ecdsa-signature-digest-x962-sha256"
	ECDSASignatureDigestX962SHA384 Algorithm = "ecdsa-signature-digest-x962-sha384"
	ECDSASignatureDigestX962SHA512 Algorithm = "ecdsa-signature-digest-x962-sha512"

	ECDSASignatureMessageX962SHA1   Algorithm = "ecdsa-signature-message-x962-sha1"
	ECDSASignatureMessageX962SHA224 Algorithm = "ecdsa-signature-message-x962-sha224"
	ECDSASignatureMessageX962SHA256 Algorithm = "ecdsa-signature-message-x962-sha256"
	ECDSASignatureMessageX962SHA384 Algorithm = "ecdsa-signature-message-x962-sha384"
	ECDSASignatureMessageX962SHA512 Algorithm = "ecdsa-signature-message-x962-sha512"
)

// AlgorithmSpec describes how an algorithm treats its input.
type AlgorithmSpec struct {
	Padding Padding
	// Hash is the digest the input is (Message false) or will be
	// (Message true) hashed with. Zero for raw operations.
	Hash    crypto.Hash
	Message bool
	EC      bool
}

var algorithmSpecs = map[Algorithm]AlgorithmSpec{
	RSAEncryptionRaw:        {Padding: PaddingRaw},
	RSAEncryptionPKCS1:      {Padding: PaddingPKCS1v15},
	RSAEncryptionOAEPSHA1:   {Padding: PaddingOAEP, Hash: crypto.SHA1},
	RSAEncryptionOAEPSHA224: {Padding: PaddingOAEP, Hash: crypto.SHA224},
	RSAEncryptionOAEPSHA256: {Padding: PaddingOAEP, Hash: crypto.SHA256},
	RSAEncryptionOAEPSHA384: {Padding: PaddingOAEP, Hash: crypto.SHA384},
	RSAEncryptionOAEPSHA512: {Padding: PaddingOAEP, Hash: crypto.SHA512},

	RSASignatureRaw:                  {Padding: PaddingRaw},
	RSASignatureDigestPKCS1v15Raw:    {Padding: PaddingPKCS1v15},
	RSASignatureDigestPKCS1v15SHA1:   {Padding: PaddingPKCS1v15, Hash: crypto.SHA1},
	RSASignatureDigestPKCS1v15SHA224: {Padding: PaddingPKCS1v15, Hash: crypto.SHA224},
	RSASignatureDigestPKCS1v15SHA256: {Padding: PaddingPKCS1v15, Hash: crypto.SHA256},
	RSASignatureDigestPKCS1v15SHA384: {Padding: PaddingPKCS1v15, Hash: crypto.SHA384},
	RSASignatureDigestPKCS1v15SHA512: {Padding: PaddingPKCS1v15, Hash: crypto.SHA512},

	RSASignatureMessagePKCS1v15SHA1:   {Padding: PaddingPKCS1v15, Hash: crypto.SHA1, Message: true},
	RSASignatureMessagePKCS1v15SHA224: {Padding: PaddingPKCS1v15, Hash: crypto.SHA224, Message: true},
	RSASignatureMessagePKCS1v15SHA256: {Padding: PaddingPKCS1v15, Hash: crypto.SHA256, Message: true},
	RSASignatureMessagePKCS1v15SHA384: {Padding: PaddingPKCS1v15, Hash: crypto.SHA384, Message: true},
	RSASignatureMessagePKCS1v15SHA512: {Padding: PaddingPKCS1v15, Hash: crypto.SHA512, Message: true},

	RSASignatureDigestPSSSHA1:   {Padding: PaddingPSS, Hash: crypto.SHA1},
	RSASignatureDigestPSSSHA224: {Padding: PaddingPSS, Hash: crypto.SHA224},
	RSASignatureDigestPSSSHA256: {Padding: PaddingPSS, Hash: crypto.SHA256},
	RSASignatureDigestPSSSHA384: {Padding: PaddingPSS, Hash: crypto.SHA384},
	RSASignatureDigestPSSSHA512: {Padding: PaddingPSS, Hash: crypto.SHA512},

	RSASignatureMessagePSSSHA1:   {Padding: PaddingPSS, Hash: crypto.SHA1, Message: true},
	RSASignatureMessagePSSSHA224: {Padding: PaddingPSS, Hash: crypto.SHA224, Message: true},
	RSASignatureMessagePSSSHA256: {Padding: PaddingPSS, Hash: crypto.SHA256, Message: true},
	RSASignatureMessagePSSSHA384: {Padding: PaddingPSS, Hash: crypto.SHA384, Message: true},
	RSASignatureMessagePSSSHA512: {Padding: PaddingPSS, Hash: crypto.SHA512, Message: true},

	ECDSASignatureDigestX962:       {Padding: PaddingX962, EC: true},
	ECDSASignatureDigestX962SHA1:   {Padding: PaddingX962, Hash: crypto.SHA1, EC: true},
	ECDSASignatureDigestX962SHA224: {Padding: PaddingX962, Hash: crypto.SHA224, EC: true},
	ECDSASignatureDigestX962SHA256: {Padding: PaddingX962, Hash: crypto.SHA256, EC: true},
	ECDSASignatureDigestX962SHA384: {Padding: PaddingX962, Hash: crypto.SHA384, EC: true},
	ECDSASignatureDigestX962SHA512: {Padding: PaddingX962, Hash: crypto.SHA512, EC: true},

	ECDSASignatureMessageX962SHA1:   {Padding: PaddingX962, Hash: crypto.SHA1, Message: true, EC: true},
	ECDSASignatureMessageX962SHA224: {Padding: PaddingX962, Hash: crypto.SHA224, Message: true, EC: true},
	ECDSASignatureMessageX962SHA256: {Padding: PaddingX962, Hash: crypto.SHA256, Message: true, EC: true},
	ECDSASignatureMessageX962SHA384: {Padding: PaddingX962, Hash: crypto.SHA384, Message: true, EC: true},
	ECDSASignatureMessageX962SHA512: {Padding: PaddingX962, Hash: crypto.SHA512, Message: true, EC: true},
}

// Describe returns the spec of a known algorithm.
func Describe(alg Algorithm) (AlgorithmSpec, bool) {
	spec, ok := algorithmSpecs[alg]
	return spec, ok
}
