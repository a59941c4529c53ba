// Package memory is a storage.Storage kept in process memory. It backs
// tests and short lived tools.
package memory

import (
	"bytes"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/niclabs/keychain-bridge/storage"
)

// Store is an in-memory storage.Storage.
type Store struct {
	mu         sync.Mutex
	tokens     []*storage.Token
	identities map[string][]*storage.Identity
	trusted    [][]byte
	closed     bool
}

func New() *Store {
	return &Store{identities: make(map[string][]*storage.Identity)}
}

func (s *Store) InitStorage() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = false
	return nil
}

func (s *Store) check() error {
	if s.closed {
		return errors.New("storage closed")
	}
	return nil
}

func (s *Store) SaveToken(token *storage.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	if token == nil || token.ID == "" {
		return errors.New("token without id")
	}
	for _, t := range s.tokens {
		if t.ID == token.ID {
			t.Label = token.Label
			return nil
		}
	}
	s.tokens = append(s.tokens, &storage.Token{ID: token.ID, Label: token.Label})
	return nil
}

func (s *Store) GetToken(id string) (*storage.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	for _, t := range s.tokens {
		if t.ID == id {
			return &storage.Token{ID: t.ID, Label: t.Label}, nil
		}
	}
	return nil, errors.Newf("token %s not found", id)
}

func (s *Store) TokenIDs() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(s.tokens))
	for _, t := range s.tokens {
		ids = append(ids, t.ID)
	}
	return ids, nil
}

func (s *Store) RemoveToken(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	for i, t := range s.tokens {
		if t.ID == id {
			s.tokens = append(s.tokens[:i], s.tokens[i+1:]...)
			break
		}
	}
	delete(s.identities, id)
	return nil
}

func (s *Store) SaveIdentity(identity *storage.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	if identity == nil || identity.TokenID == "" {
		return errors.New("identity without token")
	}
	list := s.identities[identity.TokenID]
	identity.Index = len(list)
	saved := *identity
	s.identities[identity.TokenID] = append(list, &saved)
	return nil
}

func (s *Store) GetIdentities(tokenID string) ([]*storage.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	list := s.identities[tokenID]
	out := make([]*storage.Identity, 0, len(list))
	for _, id := range list {
		cp := *id
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) AddTrustedCertificate(der []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	for _, c := range s.trusted {
		if bytes.Equal(c, der) {
			return nil
		}
	}
	s.trusted = append(s.trusted, append([]byte(nil), der...))
	return nil
}

func (s *Store) GetTrustedCertificates() ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	return append([][]byte(nil), s.trusted...), nil
}

func (s *Store) CloseStorage() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
