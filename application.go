// Package bridge exposes the identities of a credential backend as a
// PKCS#11 token. A Module owns the slot table, the session table and the
// certificate slot built from the trust store.
package bridge

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/miekg/pkcs11"
	"github.com/niclabs/keychain-bridge/backend"
	"github.com/niclabs/keychain-bridge/backend/soft"
	"github.com/niclabs/keychain-bridge/config"
	"github.com/niclabs/keychain-bridge/metrics"
	"github.com/niclabs/keychain-bridge/network"
	"github.com/niclabs/keychain-bridge/storage"
)

// Cryptoki version implemented by the module.
const (
	CryptokiVersionMajor = 2
	CryptokiVersionMinor = 40
)

// An Option customizes a Module.
type Option func(*Module)

// WithBackend serves the identities of b instead of the configured store.
func WithBackend(b backend.Backend) Option {
	return func(m *Module) {
		m.backend = b
	}
}

// WithProgramName sets the process name matched against the certificate
// slot applications. It defaults to os.Args[0].
func WithProgramName(name string) Option {
	return func(m *Module) {
		m.progName = name
	}
}

// Module is one instance of the bridge. Every method but Initialize
// returns CKR_CRYPTOKI_NOT_INITIALIZED until Initialize succeeds. Errors
// returned by the methods are always pkcs11.Error values.
type Module struct {
	lifecycle   sync.Mutex
	initialized atomic.Bool

	conf     *config.Config
	progName string
	backend  backend.Backend
	// store is closed on Finalize when the module opened it
	store   storage.Storage
	watcher network.Watcher
	metrics *metrics.Metrics

	certSlotEnabled bool
	certs           trustChain

	// lock tiers, outermost first: slotMu, sessionMu, Token, Session
	slotMu    sync.Mutex
	slots     []*Token
	sessionMu sync.Mutex
	sessions  []*Session
}

// NewModule returns a module ready to be initialized.
func NewModule(opts ...Option) *Module {
	m := &Module{progName: os.Args[0]}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize loads the backend, adds the tokens already present, starts
// the device watcher and, when the process gets the certificate slot,
// the trust chain scan.
func (m *Module) Initialize(conf *config.Config) error {
	started := time.Now()
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.initialized.Load() {
		return pkcs11.Error(pkcs11.CKR_CRYPTOKI_ALREADY_INITIALIZED)
	}
	if conf == nil {
		conf = config.Default()
	}
	m.conf = conf
	if conf.Metrics.Enabled && m.metrics == nil {
		m.metrics = metrics.New()
	}

	if m.backend == nil {
		store, err := NewStorage(conf)
		if err != nil {
			return m.result("C_Initialize", started, newError("Module.Initialize", err.Error(), pkcs11.CKR_DEVICE_ERROR))
		}
		m.store = store
		m.backend = soft.New(store)
	}

	m.slots = []*Token{nil}
	m.sessions = nil
	m.certs.reset()

	m.certSlotEnabled = conf.Criptoki.CertSlotEnabled(m.progName)
	if m.certSlotEnabled {
		logger.Infof("program %q has the certificate slot enabled", m.progName)
		m.certs.start(m.backend, conf.Criptoki.Roots())
	} else {
		logger.Debugf("program %q has the certificate slot disabled", m.progName)
	}

	// the watcher may call back as soon as it starts
	m.initialized.Store(true)

	ids, err := m.backend.TokenIDs()
	if err != nil {
		logger.Errorf("listing tokens: %v", err)
	}
	for _, id := range ids {
		m.AddToken(id)
	}

	watcher, err := NewWatcher(conf, m)
	if err == nil {
		err = watcher.Start(context.Background())
	}
	if err != nil {
		m.initialized.Store(false)
		m.certs.wait()
		_ = m.teardown()
		return m.result("C_Initialize", started, newError("Module.Initialize", err.Error(), pkcs11.CKR_DEVICE_ERROR))
	}
	m.watcher = watcher
	return m.result("C_Initialize", started, nil)
}

// Finalize stops the watcher, closes every session and frees every token.
func (m *Module) Finalize() error {
	started := time.Now()
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if !m.initialized.Load() {
		return pkcs11.Error(pkcs11.CKR_CRYPTOKI_NOT_INITIALIZED)
	}
	if m.watcher != nil {
		if err := m.watcher.Stop(); err != nil {
			logger.Errorf("stopping watcher: %v", err)
		}
		m.watcher = nil
	}
	m.initialized.Store(false)
	m.certs.wait()
	err := m.teardown()
	return m.result("C_Finalize", started, err)
}

// teardown releases every session and token and closes an owned store.
func (m *Module) teardown() error {
	m.slotMu.Lock()
	m.sessionMu.Lock()
	sessions := m.sessions
	m.sessions = nil
	m.sessionMu.Unlock()
	slots := m.slots
	m.slots = []*Token{nil}
	m.slotMu.Unlock()

	closed := 0
	for _, session := range sessions {
		if session != nil {
			session.close()
			closed++
		}
	}
	m.metrics.SessionsClosed(closed)
	for _, token := range slots {
		if token != nil {
			token.remove()
		}
	}
	m.metrics.SetTokens(0)
	m.certs.reset()

	if m.store == nil {
		return nil
	}
	err := m.store.CloseStorage()
	m.store = nil
	m.backend = nil
	return errors.Wrap(err, "close storage")
}

// Metrics returns the metrics of the module, nil when they are disabled.
func (m *Module) Metrics() *metrics.Metrics {
	return m.metrics
}

func (m *Module) checkInitialized() error {
	if !m.initialized.Load() {
		return newError("Module", "not initialized", pkcs11.CKR_CRYPTOKI_NOT_INITIALIZED)
	}
	return nil
}

// GetInfo returns the general information of the library.
func (m *Module) GetInfo() (pkcs11.Info, error) {
	if err := m.checkInitialized(); err != nil {
		return pkcs11.Info{}, rvError(err)
	}
	c := &m.conf.Criptoki
	return pkcs11.Info{
		CryptokiVersion:    pkcs11.Version{Major: CryptokiVersionMajor, Minor: CryptokiVersionMinor},
		ManufacturerID:     c.ManufacturerID,
		LibraryDescription: c.Description,
		LibraryVersion:     pkcs11.Version{Major: c.VersionMajor, Minor: c.VersionMinor},
	}, nil
}
