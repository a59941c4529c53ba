package soft

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"

	"github.com/cockroachdb/errors"
	"github.com/niclabs/keychain-bridge/backend"
	"github.com/niclabs/keychain-bridge/storage"
	"github.com/youmark/pkcs8"
)

type identity struct {
	label string
	cert  *x509.Certificate
	caps  backend.Capabilities
	priv  *PrivateKey
	pub   *PublicKey
}

func newIdentity(rec *storage.Identity) (*identity, error) {
	cert, err := x509.ParseCertificate(rec.Certificate)
	if err != nil {
		return nil, errors.Wrap(err, "parse certificate")
	}
	_, isRSA := cert.PublicKey.(*rsa.PublicKey)
	if _, isEC := cert.PublicKey.(*ecdsa.PublicKey); !isRSA && !isEC {
		return nil, errors.Newf("unsupported public key %T", cert.PublicKey)
	}
	if len(rec.PrivateKey) == 0 {
		return nil, errors.New("missing private key")
	}
	return &identity{
		label: rec.Label,
		cert:  cert,
		caps:  capabilities(cert, isRSA),
		priv:  newPrivateKey(rec.PrivateKey, cert.PublicKey),
		pub:   &PublicKey{pub: cert.PublicKey},
	}, nil
}

// capabilities derives the key capabilities from the certificate key usage.
// A certificate without key usage allows every operation.
func capabilities(cert *x509.Certificate, isRSA bool) backend.Capabilities {
	usage := cert.KeyUsage
	if usage == 0 {
		return backend.Capabilities{Sign: true, Verify: true, Decrypt: isRSA, Encrypt: isRSA, Wrap: isRSA}
	}
	sign := usage&(x509.KeyUsageDigitalSignature|x509.KeyUsageContentCommitment) != 0
	encipher := isRSA && usage&(x509.KeyUsageKeyEncipherment|x509.KeyUsageDataEncipherment) != 0
	return backend.Capabilities{
		Sign:    sign,
		Verify:  sign,
		Decrypt: encipher,
		Encrypt: encipher,
		Wrap:    isRSA && usage&x509.KeyUsageKeyEncipherment != 0,
	}
}

func (id *identity) Label() string { return id.label }
func (id *identity) Certificate() *x509.Certificate { return id.cert }
func (id *identity) Capabilities() backend.Capabilities { return id.caps }
func (id *identity) AccessControl() backend.AccessControl { return id.priv }
func (id *identity) PrivateKey() backend.Key { return id.priv }
func (id *identity) PublicKey() backend.Key { return id.pub }

func parseKey(der []byte) (interface{}, error) {
	key, err := pkcs8.ParsePKCS8PrivateKey(der)
	return key, errors.WithStack(err)
}
