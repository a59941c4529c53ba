package objects

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/miekg/pkcs11"
	"github.com/niclabs/keychain-bridge/backend"
)

// Identity is a certificate paired with its keys, as materialized for a
// token. It is immutable after creation.
type Identity struct {
	Label        string
	Certificate  *x509.Certificate
	KeyType      uint
	Capabilities backend.Capabilities
	// BlockSize is the output size of the keys in bytes.
	BlockSize int
	// PublicKeyData is the external representation of the public key, nil
	// when the backend could not export it.
	PublicKeyData []byte
	Source        backend.Identity
}

// NewIdentity reads everything the object builder needs from a backend
// identity.
func NewIdentity(src backend.Identity) (*Identity, error) {
	cert := src.Certificate()
	if cert == nil {
		return nil, errors.Newf("identity %q has no certificate", src.Label())
	}
	id := &Identity{
		Label:        src.Label(),
		Certificate:  cert,
		Capabilities: src.Capabilities(),
		Source:       src,
	}
	switch cert.PublicKey.(type) {
	case *rsa.PublicKey:
		id.KeyType = pkcs11.CKK_RSA
	case *ecdsa.PublicKey:
		id.KeyType = pkcs11.CKK_EC
	default:
		return nil, errors.Newf("identity %q: unsupported key type %T", src.Label(), cert.PublicKey)
	}
	if id.Capabilities.Wrap {
		id.Capabilities.Encrypt = true
	}
	pub := src.PublicKey()
	if pub == nil || src.PrivateKey() == nil {
		return nil, errors.Newf("identity %q has no key pair", src.Label())
	}
	id.BlockSize = pub.BlockSize()
	data, err := pub.ExternalRepresentation()
	if err != nil {
		logger.KV(xlog.DEBUG, "reason", "external_representation", "label", id.Label, "err", err.Error())
	} else {
		id.PublicKeyData = data
	}
	return id, nil
}
