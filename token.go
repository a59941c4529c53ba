package bridge

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/miekg/pkcs11"
	"github.com/niclabs/keychain-bridge/backend"
	"github.com/niclabs/keychain-bridge/objects"
)

// DefaultTokenLabel is the label of a token whose identities have none.
const DefaultTokenLabel = "Hardware token"

// A Token is an inserted credential source bound to a slot.
//
// The token starts with one reference held by its slot entry and gets one
// more per open session. It is logged out when the count drops back to
// one and freed when it reaches zero.
type Token struct {
	sync.Mutex
	ID         string
	Label      string
	Identities []*objects.Identity
	// Objects is built once and only read afterwards, so sessions share it
	// without holding the token lock.
	Objects objects.CryptoObjects

	backend  backend.Backend
	auth     backend.AuthContext
	loggedIn bool
	removed  bool
	freed    bool
	refs     int
}

// newToken materializes the identities of a token. It returns nil if
// none of them can be used.
func newToken(b backend.Backend, id string) (*Token, error) {
	auth, err := b.NewAuthContext(id)
	if err != nil {
		return nil, err
	}
	sources, err := b.Identities(id, auth)
	if err != nil {
		return nil, err
	}
	logger.KV(xlog.DEBUG, "token", id, "identities", len(sources))
	ids := make([]*objects.Identity, 0, len(sources))
	for i, src := range sources {
		identity, err := objects.NewIdentity(src)
		if err != nil {
			logger.KV(xlog.DEBUG, "token", id, "identity", i+1, "err", err.Error())
			continue
		}
		ids = append(ids, identity)
	}
	if len(ids) == 0 {
		logger.Debugf("no identities added, not creating token %s", id)
		if auth != nil {
			auth.Logout()
		}
		return nil, nil
	}
	label := ids[0].Label
	if label == "" {
		label = DefaultTokenLabel
	}
	return &Token{
		ID:         id,
		Label:      label,
		Identities: ids,
		Objects:    objects.BuildIdentityObjects(ids),
		backend:    b,
		auth:       auth,
		refs:       1,
	}, nil
}

// retain takes a session reference. A removed token takes no new ones.
func (token *Token) retain() error {
	token.Lock()
	defer token.Unlock()
	if token.removed || token.freed {
		return newError("Token.retain", "token removed", pkcs11.CKR_TOKEN_NOT_PRESENT)
	}
	token.refs++
	return nil
}

// release drops one reference and returns true if it was the last one.
func (token *Token) release() bool {
	token.Lock()
	defer token.Unlock()
	if token.freed {
		return true
	}
	token.refs--
	switch {
	case token.refs == 1:
		token.logout()
	case token.refs <= 0:
		token.free()
		return true
	}
	return false
}

// remove drops the reference of the slot entry.
func (token *Token) remove() bool {
	token.Lock()
	token.removed = true
	token.Unlock()
	return token.release()
}

func (token *Token) free() {
	if token.auth != nil {
		token.auth.Logout()
		token.auth = nil
	}
	token.loggedIn = false
	token.freed = true
	logger.Debugf("token %s freed", token.ID)
}

// logout tears the auth context down and replaces it with a fresh one.
// The token lock must be held.
func (token *Token) logout() {
	if token.auth != nil {
		token.auth.Logout()
		auth, err := token.backend.NewAuthContext(token.ID)
		if err != nil {
			logger.Errorf("token %s: new auth context: %v", token.ID, err)
		}
		token.auth = auth
	}
	token.loggedIn = false
}

// Login authenticates every identity of the token with pin. A nil pin
// leaves the prompting to the backend. The first failure aborts. A token
// without an auth context accepts any pin but is not marked logged in.
func (token *Token) Login(pin []byte) error {
	token.Lock()
	defer token.Unlock()
	if token.removed || token.freed {
		return newError("Token.Login", "token removed", pkcs11.CKR_DEVICE_REMOVED)
	}
	if pin == nil {
		token.loggedIn = true
		return nil
	}
	if token.auth == nil {
		logger.Debugf("token %s does not authenticate", token.ID)
		return nil
	}
	for _, id := range token.Identities {
		usage := backend.UsageDecrypt
		if id.Capabilities.Sign {
			usage = backend.UsageSign
		}
		if err := token.auth.Authenticate(id.Source.AccessControl(), pin, usage); err != nil {
			logger.KV(xlog.DEBUG, "token", token.ID, "identity", id.Label, "err", err.Error())
			if errors.Is(err, backend.ErrPINIncorrect) {
				return newError("Token.Login", "pin incorrect", pkcs11.CKR_PIN_INCORRECT)
			}
			return errors.Wrapf(err, "authenticate %q", id.Label)
		}
	}
	token.loggedIn = true
	return nil
}

func (token *Token) Logout() {
	token.Lock()
	defer token.Unlock()
	token.logout()
}

func (token *Token) LoggedIn() bool {
	token.Lock()
	defer token.Unlock()
	return token.loggedIn
}

// Refs returns the number of references held on the token.
func (token *Token) Refs() int {
	token.Lock()
	defer token.Unlock()
	return token.refs
}

// Freed tells whether the last reference was dropped.
func (token *Token) Freed() bool {
	token.Lock()
	defer token.Unlock()
	return token.freed
}
