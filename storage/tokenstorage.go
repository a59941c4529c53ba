// Package storage defines the persistent credential store behind the
// software backend.
package storage

import "github.com/google/uuid"

// Storage keeps tokens, their identities and the trusted certificates.
type Storage interface {
	// Executes the logic necessary to initialize the storage.
	InitStorage() error

	// Saves a token, replacing its label if it already exists.
	SaveToken(*Token) error

	// Retrieves a token from the storage or returns an error.
	GetToken(id string) (*Token, error)

	// Returns the ids of every stored token.
	TokenIDs() ([]string, error)

	// Removes a token and all of its identities.
	RemoveToken(id string) error

	// Appends an identity to a token. The index of the identity is set by
	// the storage.
	SaveIdentity(*Identity) error

	// Returns the identities of a token ordered by index.
	GetIdentities(tokenID string) ([]*Identity, error)

	// Adds a DER certificate to the trust store. Adding it twice is a no-op.
	AddTrustedCertificate(der []byte) error

	// Returns every trusted certificate.
	GetTrustedCertificates() ([][]byte, error)

	// Finalizes the use of the storage. The storage is not usable
	// If this method is called.
	CloseStorage() error
}

// A Token is a named set of identities.
type Token struct {
	ID    string
	Label string
}

// An Identity is a certificate and its PKCS#8 private key. The key may be
// encrypted with the token PIN.
type Identity struct {
	TokenID     string
	Index       int
	Label       string
	Certificate []byte
	PrivateKey  []byte
}

// NewTokenID returns a fresh token id.
func NewTokenID() string {
	return uuid.NewString()
}
