// Package backend defines the credential source the bridge exposes: the
// identities of every token, the trusted certificate store and the key
// operations performed on behalf of sessions.
package backend

import (
	"crypto/x509"

	"github.com/cockroachdb/errors"
)

// TokenAccessGroup is the access group of certificates that belong to a
// hardware token. They are only reachable through their own token.
const TokenAccessGroup = "token"

var (
	// ErrPINIncorrect is returned by an AuthContext when the secret is rejected.
	ErrPINIncorrect = errors.New("pin incorrect")
	// ErrKeyLocked is returned by key operations that need an authenticated key.
	ErrKeyLocked = errors.New("key is locked")
	// ErrUnsupportedAlgorithm is returned when a key cannot run an algorithm.
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
)

// Usage is the operation class an access control is evaluated for.
type Usage int

const (
	UsageSign Usage = iota
	UsageDecrypt
)

func (u Usage) String() string {
	if u == UsageSign {
		return "sign"
	}
	return "decrypt"
}

// Capabilities are the operations the keys of an identity allow.
type Capabilities struct {
	Sign    bool
	Decrypt bool
	Verify  bool
	Encrypt bool
	Wrap    bool
}

// AccessControl is the opaque object an AuthContext authenticates against.
type AccessControl interface{}

// AuthContext authenticates the identities of one token.
type AuthContext interface {
	// Authenticate unlocks the access control with the secret for the given
	// usage. It may block while the user is prompted.
	Authenticate(ac AccessControl, secret []byte, usage Usage) error
	// Logout drops every authentication made through the context. It is
	// idempotent.
	Logout()
}

// Key is a reference counted handle to a backend key.
type Key interface {
	// BlockSize returns the output size of the key in bytes.
	BlockSize() int
	// ExternalRepresentation returns PKCS#1 RSAPublicKey for RSA keys and
	// the uncompressed point for EC keys.
	ExternalRepresentation() ([]byte, error)
	Sign(alg Algorithm, data []byte) ([]byte, error)
	Verify(alg Algorithm, data, signature []byte) error
	Encrypt(alg Algorithm, data []byte) ([]byte, error)
	Decrypt(alg Algorithm, data []byte) ([]byte, error)
	Retain()
	Release()
}

// Identity is a certificate paired with its keys.
type Identity interface {
	Label() string
	Certificate() *x509.Certificate
	Capabilities() Capabilities
	AccessControl() AccessControl
	PrivateKey() Key
	PublicKey() Key
}

// Certificate is one entry of the trusted certificate store.
type Certificate struct {
	Certificate *x509.Certificate
	AccessGroup string
}

// Backend is the credential source.
type Backend interface {
	// TokenIDs returns the ids of the tokens present right now.
	TokenIDs() ([]string, error)
	// NewAuthContext returns the authentication context of a token, or nil
	// if the token does not authenticate.
	NewAuthContext(tokenID string) (AuthContext, error)
	// Identities returns the identities of a token bound to auth.
	Identities(tokenID string, auth AuthContext) ([]Identity, error)
	// TrustedCertificates returns every certificate of the trust store.
	TrustedCertificates() ([]*Certificate, error)
}
