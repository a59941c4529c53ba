// Package soft is a software credential backend. Identities live in a
// storage.Storage as certificates with PKCS#8 private keys; encrypted keys
// are unlocked with the token PIN through the token's AuthContext.
package soft

import (
	"crypto/x509"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/niclabs/keychain-bridge/backend"
	"github.com/niclabs/keychain-bridge/storage"
)

var logger = xlog.NewPackageLogger("github.com/niclabs/keychain-bridge", "soft")

// Backend serves the identities of a storage.
type Backend struct {
	store storage.Storage
}

// New returns a backend over an initialized storage.
func New(store storage.Storage) *Backend {
	return &Backend{store: store}
}

func (b *Backend) TokenIDs() ([]string, error) {
	ids, err := b.store.TokenIDs()
	return ids, errors.WithStack(err)
}

// NewAuthContext returns nil when no key of the token is encrypted.
func (b *Backend) NewAuthContext(tokenID string) (backend.AuthContext, error) {
	records, err := b.store.GetIdentities(tokenID)
	if err != nil {
		return nil, errors.Wrapf(err, "identities of token %s", tokenID)
	}
	for _, rec := range records {
		if _, err := parseKey(rec.PrivateKey); err != nil {
			return NewAuthContext(), nil
		}
	}
	return nil, nil
}

// Identities returns the identities of a token. Rows that cannot be parsed
// are logged and skipped. Keys are unlocked through their access control,
// so auth is not consulted here.
func (b *Backend) Identities(tokenID string, auth backend.AuthContext) ([]backend.Identity, error) {
	records, err := b.store.GetIdentities(tokenID)
	if err != nil {
		return nil, errors.Wrapf(err, "identities of token %s", tokenID)
	}
	ids := make([]backend.Identity, 0, len(records))
	for _, rec := range records {
		id, err := newIdentity(rec)
		if err != nil {
			logger.Warningf("token=%s index=%d: %v", tokenID, rec.Index, err)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// TrustedCertificates returns the trust store followed by the certificates
// of every token, the latter in the token access group.
func (b *Backend) TrustedCertificates() ([]*backend.Certificate, error) {
	ders, err := b.store.GetTrustedCertificates()
	if err != nil {
		return nil, errors.Wrap(err, "trusted certificates")
	}
	certs := make([]*backend.Certificate, 0, len(ders))
	for _, der := range ders {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			logger.Warningf("skipping trusted certificate: %v", err)
			continue
		}
		certs = append(certs, &backend.Certificate{Certificate: cert})
	}
	tokens, err := b.store.TokenIDs()
	if err != nil {
		return nil, errors.Wrap(err, "token ids")
	}
	for _, tokenID := range tokens {
		records, err := b.store.GetIdentities(tokenID)
		if err != nil {
			return nil, errors.Wrapf(err, "identities of token %s", tokenID)
		}
		for _, rec := range records {
			cert, err := x509.ParseCertificate(rec.Certificate)
			if err != nil {
				continue
			}
			certs = append(certs, &backend.Certificate{
				Certificate: cert,
				AccessGroup: backend.TokenAccessGroup,
			})
		}
	}
	return certs, nil
}
