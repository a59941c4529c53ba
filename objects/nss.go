package objects

import "github.com/miekg/pkcs11"

// Mozilla NSS vendor values used by the trust records of the certificate slot.
const (
	NSSCK_VENDOR_NSS   = 0x4E534350
	CKO_NSS            = pkcs11.CKO_VENDOR_DEFINED | NSSCK_VENDOR_NSS
	CKA_NSS            = pkcs11.CKA_VENDOR_DEFINED | NSSCK_VENDOR_NSS
	CKA_TRUST          = CKA_NSS + 0x2000
	CKT_VENDOR_DEFINED = 0x80000000
	CKT_NSS            = CKT_VENDOR_DEFINED | NSSCK_VENDOR_NSS

	CKO_NSS_TRUST              = CKO_NSS + 3
	CKA_TRUST_SERVER_AUTH      = CKA_TRUST + 8
	CKA_TRUST_CLIENT_AUTH      = CKA_TRUST + 9
	CKA_TRUST_CODE_SIGNING     = CKA_TRUST + 10
	CKA_TRUST_EMAIL_PROTECTION = CKA_TRUST + 11
	CKA_CERT_SHA1_HASH         = CKA_TRUST + 100

	CKT_NSS_TRUSTED_DELEGATOR = CKT_NSS + 2
)
