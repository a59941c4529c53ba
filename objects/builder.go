package objects

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	encasn1 "encoding/asn1"
	"math/big"

	"github.com/effective-security/xlog"
	"github.com/miekg/pkcs11"
	"github.com/niclabs/keychain-bridge/digest"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

var logger = xlog.NewPackageLogger("github.com/niclabs/keychain-bridge", "objects")

var curveOIDs = map[elliptic.Curve]encasn1.ObjectIdentifier{
	elliptic.P224(): {1, 3, 132, 0, 33},
	elliptic.P256(): {1, 2, 840, 10045, 3, 1, 7},
	elliptic.P384(): {1, 3, 132, 0, 34},
	elliptic.P521(): {1, 3, 132, 0, 35},
}

// BuildIdentityObjects returns, for each identity, its certificate, public
// key and private key objects in that order.
func BuildIdentityObjects(ids []*Identity) CryptoObjects {
	objects := make(CryptoObjects, 0, 3*len(ids))
	for i, id := range ids {
		objID := IndexBytes(uint(i))
		subject, issuer, serial := certificateInfo(id.Certificate)

		cert := objects.add(pkcs11.CKO_CERTIFICATE)
		cert.Identity = id
		cert.Attributes.Store(pkcs11.CKA_ID, objID)
		cert.Attributes.Set(pkcs11.CKA_CERTIFICATE_TYPE, uint(pkcs11.CKC_X_509))
		cert.Attributes.Set(pkcs11.CKA_TOKEN, true)
		cert.Attributes.Set(pkcs11.CKA_LABEL, id.Label)
		cert.Attributes.Store(pkcs11.CKA_VALUE, id.Certificate.Raw)
		storeIfPresent(&cert.Attributes, pkcs11.CKA_SUBJECT, subject)
		storeIfPresent(&cert.Attributes, pkcs11.CKA_ISSUER, issuer)
		storeIfPresent(&cert.Attributes, pkcs11.CKA_SERIAL_NUMBER, serial)

		pub := objects.add(pkcs11.CKO_PUBLIC_KEY)
		pub.Identity = id
		pub.Attributes.Store(pkcs11.CKA_ID, objID)
		pub.Attributes.Set(pkcs11.CKA_KEY_TYPE, id.KeyType)
		pub.Attributes.Set(pkcs11.CKA_TOKEN, true)
		pub.Attributes.Set(pkcs11.CKA_LOCAL, true)
		pub.Attributes.Set(pkcs11.CKA_ENCRYPT, id.Capabilities.Encrypt)
		pub.Attributes.Set(pkcs11.CKA_VERIFY, id.Capabilities.Verify)
		storeIfPresent(&pub.Attributes, pkcs11.CKA_SUBJECT, subject)
		pub.Attributes.Set(pkcs11.CKA_LABEL, id.Label)
		pub.Attributes.Set(pkcs11.CKA_MODULUS_BITS, uint(id.BlockSize*8))
		publicKeyAttributes(&pub.Attributes, id, true)
		pub.Attributes.Set(pkcs11.CKA_WRAP, false)
		pub.Attributes.Set(pkcs11.CKA_DERIVE, false)

		priv := objects.add(pkcs11.CKO_PRIVATE_KEY)
		priv.Identity = id
		priv.Attributes.Store(pkcs11.CKA_ID, objID)
		priv.Attributes.Set(pkcs11.CKA_KEY_TYPE, id.KeyType)
		priv.Attributes.Set(pkcs11.CKA_TOKEN, true)
		priv.Attributes.Set(pkcs11.CKA_PRIVATE, true)
		priv.Attributes.Set(pkcs11.CKA_DECRYPT, id.Capabilities.Decrypt)
		priv.Attributes.Set(pkcs11.CKA_SIGN, id.Capabilities.Sign)
		storeIfPresent(&priv.Attributes, pkcs11.CKA_SUBJECT, subject)
		priv.Attributes.Set(pkcs11.CKA_LABEL, id.Label)
		publicKeyAttributes(&priv.Attributes, id, false)
		priv.Attributes.Set(pkcs11.CKA_SENSITIVE, true)
		priv.Attributes.Set(pkcs11.CKA_ALWAYS_SENSITIVE, true)
		priv.Attributes.Set(pkcs11.CKA_NEVER_EXTRACTABLE, true)
		priv.Attributes.Set(pkcs11.CKA_LOCAL, true)
		priv.Attributes.Set(pkcs11.CKA_ALWAYS_AUTHENTICATE, false)
		priv.Attributes.Set(pkcs11.CKA_UNWRAP, false)
		priv.Attributes.Set(pkcs11.CKA_DERIVE, false)
		priv.Attributes.Set(pkcs11.CKA_EXTRACTABLE, false)
	}
	return objects
}

// BuildCertificateObjects returns a certificate object and an NSS trust
// object for each certificate. Only CA certificates are trusted as
// delegators.
func BuildCertificateObjects(certs []*x509.Certificate) CryptoObjects {
	objects := make(CryptoObjects, 0, 2*len(certs))
	for i, c := range certs {
		subject, issuer, serial := certificateInfo(c)

		cert := objects.add(pkcs11.CKO_CERTIFICATE)
		cert.Attributes.Store(pkcs11.CKA_ID, IndexBytes(uint(i)))
		cert.Attributes.Set(pkcs11.CKA_CERTIFICATE_TYPE, uint(pkcs11.CKC_X_509))
		cert.Attributes.Set(pkcs11.CKA_TOKEN, true)
		cert.Attributes.Set(pkcs11.CKA_LABEL, SubjectSummary(c))
		cert.Attributes.Store(pkcs11.CKA_VALUE, c.Raw)
		storeIfPresent(&cert.Attributes, pkcs11.CKA_SUBJECT, subject)
		storeIfPresent(&cert.Attributes, pkcs11.CKA_ISSUER, issuer)
		storeIfPresent(&cert.Attributes, pkcs11.CKA_SERIAL_NUMBER, serial)

		trust := objects.add(uint(CKO_NSS_TRUST))
		trust.Attributes.Set(pkcs11.CKA_TOKEN, true)
		storeIfPresent(&trust.Attributes, pkcs11.CKA_ISSUER, issuer)
		storeIfPresent(&trust.Attributes, pkcs11.CKA_SERIAL_NUMBER, serial)
		if hash, err := digest.Sum(pkcs11.CKM_SHA_1, c.Raw); err == nil {
			trust.Attributes.Store(uint(CKA_CERT_SHA1_HASH), hash)
		}
		if c.BasicConstraintsValid && c.IsCA {
			for _, attrType := range []uint{
				CKA_TRUST_SERVER_AUTH,
				CKA_TRUST_CLIENT_AUTH,
				CKA_TRUST_EMAIL_PROTECTION,
				CKA_TRUST_CODE_SIGNING,
			} {
				trust.Attributes.Set(attrType, uint(CKT_NSS_TRUSTED_DELEGATOR))
			}
		}
	}
	return objects
}

// SubjectSummary returns a short printable name for a certificate.
func SubjectSummary(cert *x509.Certificate) string {
	if cert.Subject.CommonName != "" {
		return cert.Subject.CommonName
	}
	return cert.Subject.String()
}

func storeIfPresent(attributes *Attributes, attrType uint, value []byte) {
	if value != nil {
		attributes.Store(attrType, value)
	}
}

// certificateInfo returns the DER subject, issuer and serial number
// (encoded as an INTEGER) of a certificate.
func certificateInfo(cert *x509.Certificate) (subject, issuer, serial []byte) {
	subject = cert.RawSubject
	issuer = cert.RawIssuer
	if cert.SerialNumber != nil {
		var b cryptobyte.Builder
		b.AddASN1BigInt(cert.SerialNumber)
		der, err := b.Bytes()
		if err != nil {
			logger.KV(xlog.DEBUG, "reason", "serial", "err", err.Error())
		} else {
			serial = der
		}
	}
	return
}

// publicKeyAttributes adds the RSA modulus and exponent, or the EC
// parameters (and the point on public keys).
func publicKeyAttributes(attributes *Attributes, id *Identity, public bool) {
	switch id.KeyType {
	case pkcs11.CKK_RSA:
		modulus, exponent, ok := parseRSAPublicKey(id.PublicKeyData)
		if ok {
			attributes.Store(pkcs11.CKA_MODULUS, modulus)
			attributes.Store(pkcs11.CKA_PUBLIC_EXPONENT, exponent)
		}
	case pkcs11.CKK_EC:
		pub, ok := id.Certificate.PublicKey.(*ecdsa.PublicKey)
		if !ok {
			return
		}
		if oid, ok := curveOIDs[pub.Curve]; ok {
			var b cryptobyte.Builder
			b.AddASN1ObjectIdentifier(oid)
			if params, err := b.Bytes(); err == nil {
				attributes.Store(pkcs11.CKA_EC_PARAMS, params)
			}
		}
		if public && id.PublicKeyData != nil {
			var b cryptobyte.Builder
			b.AddASN1OctetString(id.PublicKeyData)
			if point, err := b.Bytes(); err == nil {
				attributes.Store(pkcs11.CKA_EC_POINT, point)
			}
		}
	}
}

// parseRSAPublicKey reads a PKCS#1 RSAPublicKey.
func parseRSAPublicKey(der []byte) (modulus, exponent []byte, ok bool) {
	if der == nil {
		return nil, nil, false
	}
	input := cryptobyte.String(der)
	var seq cryptobyte.String
	n, e := new(big.Int), new(big.Int)
	if !input.ReadASN1(&seq, asn1.SEQUENCE) ||
		!seq.ReadASN1Integer(n) ||
		!seq.ReadASN1Integer(e) {
		return nil, nil, false
	}
	return n.Bytes(), e.Bytes(), true
}
