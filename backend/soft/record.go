package soft

import (
	"crypto"
	"crypto/x509"

	"github.com/cockroachdb/errors"
	"github.com/niclabs/keychain-bridge/storage"
	"github.com/youmark/pkcs8"
)

// NewIdentityRecord encodes a certificate and its key for storage. The key
// is encrypted with pin unless pin is empty.
func NewIdentityRecord(tokenID, label string, cert *x509.Certificate, key crypto.Signer, pin []byte) (*storage.Identity, error) {
	if len(pin) == 0 {
		pin = nil
	}
	der, err := pkcs8.MarshalPrivateKey(key, pin, nil)
	if err != nil {
		return nil, errors.Wrap(err, "marshal private key")
	}
	return &storage.Identity{
		TokenID:     tokenID,
		Label:       label,
		Certificate: cert.Raw,
		PrivateKey:  der,
	}, nil
}
