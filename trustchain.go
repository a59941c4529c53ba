package bridge

import (
	"bytes"
	"crypto/x509"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/miekg/pkcs11"
	"github.com/niclabs/keychain-bridge/backend"
	"github.com/niclabs/keychain-bridge/digest"
	"github.com/niclabs/keychain-bridge/objects"
)

const (
	certsUninitialized int32 = iota
	certsInitializing
	certsInitialized
)

// trustChain is the object space of the certificate slot. It is built
// once in the background; until then it reads as empty.
type trustChain struct {
	status atomic.Int32
	wg     sync.WaitGroup
	// set before status becomes certsInitialized
	certs   []*x509.Certificate
	objects objects.CryptoObjects
}

// start launches the scan unless one already ran or is running.
func (tc *trustChain) start(b backend.Backend, roots []string) {
	if !tc.status.CompareAndSwap(certsUninitialized, certsInitializing) {
		return
	}
	tc.wg.Add(1)
	go func() {
		defer tc.wg.Done()
		tc.scan(b, roots)
	}()
}

func (tc *trustChain) scan(b backend.Backend, roots []string) {
	if len(roots) == 0 {
		logger.Debugf("no trust roots configured, not importing certificates")
	} else if all, err := b.TrustedCertificates(); err != nil {
		logger.Errorf("trusted certificates: %v", err)
	} else {
		tc.certs = BuildTrustChain(all, roots)
	}
	tc.objects = objects.BuildCertificateObjects(tc.certs)
	logger.Infof("%d certificates added to the certificate slot", len(tc.certs))
	tc.status.Store(certsInitialized)
}

func (tc *trustChain) ready() bool {
	return tc.status.Load() == certsInitialized
}

// snapshot returns the object list, empty until the scan finished.
func (tc *trustChain) snapshot() objects.CryptoObjects {
	if !tc.ready() {
		return nil
	}
	return tc.objects
}

func (tc *trustChain) wait() {
	tc.wg.Wait()
}

// reset forgets the list. No scan may be running.
func (tc *trustChain) reset() {
	tc.certs = nil
	tc.objects = nil
	tc.status.Store(certsUninitialized)
}

// BuildTrustChain returns the certificates whose common name contains one
// of roots, followed depth first by every certificate they issued,
// transitively. Certificates of hardware tokens are left out and
// certificates sharing a public key are kept once.
func BuildTrustChain(all []*backend.Certificate, roots []string) []*x509.Certificate {
	working := make([]*backend.Certificate, 0, len(all))
	for _, c := range all {
		if c != nil && c.Certificate != nil {
			working = append(working, c)
		}
	}
	var (
		out  []*x509.Certificate
		seen = make(map[string]bool)
	)
	take := func(i int) *backend.Certificate {
		c := working[i]
		working = append(working[:i], working[i+1:]...)
		return c
	}
	indexOf := func(c *backend.Certificate) int {
		for i, w := range working {
			if w == c {
				return i
			}
		}
		return -1
	}

	var add func(c *backend.Certificate)
	add = func(c *backend.Certificate) {
		if i := indexOf(c); i >= 0 {
			take(i)
		}
		if c.AccessGroup == backend.TokenAccessGroup {
			logger.Debugf("certificate %q is on a hardware token, skipping", objects.SubjectSummary(c.Certificate))
			return
		}
		hash := publicKeyHash(c.Certificate)
		if seen[hash] {
			logger.Debugf("certificate %q is already in the list, skipping", objects.SubjectSummary(c.Certificate))
			return
		}
		seen[hash] = true
		out = append(out, c.Certificate)

		var issued []*backend.Certificate
		for _, w := range working {
			if bytes.Equal(w.Certificate.RawIssuer, c.Certificate.RawSubject) {
				issued = append(issued, w)
			}
		}
		for _, child := range issued {
			add(child)
		}
	}

	var matched []*backend.Certificate
	for _, c := range working {
		if matchesRoot(c.Certificate, roots) {
			matched = append(matched, c)
		}
	}
	for _, c := range matched {
		add(c)
	}
	return out
}

func matchesRoot(cert *x509.Certificate, roots []string) bool {
	cn := cert.Subject.CommonName
	if cn == "" {
		return false
	}
	for _, root := range roots {
		if root != "" && strings.Contains(cn, root) {
			return true
		}
	}
	return false
}

func publicKeyHash(cert *x509.Certificate) string {
	hash, err := digest.Sum(pkcs11.CKM_SHA_1, cert.RawSubjectPublicKeyInfo)
	if err != nil {
		return string(cert.RawSubjectPublicKeyInfo)
	}
	return string(hash)
}
