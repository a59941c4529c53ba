package soft

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/niclabs/keychain-bridge/backend"
)

// AuthContext unlocks the private keys of one token with its PIN and locks
// them again on Logout.
type AuthContext struct {
	mu       sync.Mutex
	unlocked []*PrivateKey
}

func NewAuthContext() *AuthContext {
	return &AuthContext{}
}

// Authenticate unlocks the private key behind ac. The software backend
// accepts the same secret for every usage.
func (a *AuthContext) Authenticate(ac backend.AccessControl, secret []byte, usage backend.Usage) error {
	key, ok := ac.(*PrivateKey)
	if !ok {
		return errors.Newf("unknown access control %T", ac)
	}
	if err := key.unlock(secret); err != nil {
		return errors.WithMessagef(err, "authenticate for %s", usage)
	}
	a.mu.Lock()
	a.unlocked = append(a.unlocked, key)
	a.mu.Unlock()
	return nil
}

func (a *AuthContext) Logout() {
	a.mu.Lock()
	keys := a.unlocked
	a.unlocked = nil
	a.mu.Unlock()
	for _, key := range keys {
		key.lock()
	}
}
