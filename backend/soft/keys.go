package soft

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/niclabs/keychain-bridge/backend"
	"github.com/youmark/pkcs8"
)

// refCount implements Retain and Release for the backend keys.
type refCount struct {
	refs int32
}

func (r *refCount) Retain() {
	atomic.AddInt32(&r.refs, 1)
}

func (r *refCount) Release() {
	if atomic.AddInt32(&r.refs, -1) < 0 {
		logger.Warningf("key released more times than retained")
	}
}

// Refs returns the number of references held by operations.
func (r *refCount) Refs() int {
	return int(atomic.LoadInt32(&r.refs))
}

// PublicKey is the public half of a stored identity.
type PublicKey struct {
	refCount
	pub crypto.PublicKey
}

// PrivateKey is a PKCS#8 private key that stays locked until an
// AuthContext authenticates it, unless it is stored unencrypted.
type PrivateKey struct {
	refCount
	pub       crypto.PublicKey
	der       []byte
	encrypted bool

	mu     sync.Mutex
	signer crypto.Signer
}

func newPrivateKey(der []byte, pub crypto.PublicKey) *PrivateKey {
	key := &PrivateKey{pub: pub, der: der}
	parsed, err := pkcs8.ParsePKCS8PrivateKey(der)
	if err != nil {
		key.encrypted = true
		return key
	}
	if signer, ok := parsed.(crypto.Signer); ok {
		key.signer = signer
	}
	return key
}

func (key *PrivateKey) unlock(secret []byte) error {
	key.mu.Lock()
	defer key.mu.Unlock()
	if !key.encrypted {
		return nil
	}
	if len(secret) == 0 {
		return errors.Mark(errors.New("empty pin"), backend.ErrPINIncorrect)
	}
	parsed, err := pkcs8.ParsePKCS8PrivateKey(key.der, secret)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "decrypt private key"), backend.ErrPINIncorrect)
	}
	signer, ok := parsed.(crypto.Signer)
	if !ok {
		return errors.Newf("unsupported private key %T", parsed)
	}
	key.signer = signer
	return nil
}

func (key *PrivateKey) lock() {
	key.mu.Lock()
	defer key.mu.Unlock()
	if key.encrypted {
		key.signer = nil
	}
}

func (key *PrivateKey) unlocked() (crypto.Signer, error) {
	key.mu.Lock()
	defer key.mu.Unlock()
	if key.signer == nil {
		return nil, backend.ErrKeyLocked
	}
	return key.signer, nil
}

func (key *PrivateKey) BlockSize() int {
	return blockSize(key.pub)
}

func (key *PrivateKey) ExternalRepresentation() ([]byte, error) {
	return externalRepresentation(key.pub)
}

func (key *PrivateKey) Sign(alg backend.Algorithm, data []byte) ([]byte, error) {
	signer, err := key.unlocked()
	if err != nil {
		return nil, err
	}
	return sign(signer, alg, data)
}

func (key *PrivateKey) Decrypt(alg backend.Algorithm, data []byte) ([]byte, error) {
	signer, err := key.unlocked()
	if err != nil {
		return nil, err
	}
	priv, ok := signer.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.Wrapf(backend.ErrUnsupportedAlgorithm, "%s on %T", alg, signer)
	}
	return decrypt(priv, alg, data)
}

func (key *PrivateKey) Verify(alg backend.Algorithm, data, signature []byte) error {
	return errors.Wrap(backend.ErrUnsupportedAlgorithm, "verify with a private key")
}

func (key *PrivateKey) Encrypt(alg backend.Algorithm, data []byte) ([]byte, error) {
	return nil, errors.Wrap(backend.ErrUnsupportedAlgorithm, "encrypt with a private key")
}

func (key *PublicKey) BlockSize() int {
	return blockSize(key.pub)
}

func (key *PublicKey) ExternalRepresentation() ([]byte, error) {
	return externalRepresentation(key.pub)
}

func (key *PublicKey) Verify(alg backend.Algorithm, data, signature []byte) error {
	return verify(key.pub, alg, data, signature)
}

func (key *PublicKey) Encrypt(alg backend.Algorithm, data []byte) ([]byte, error) {
	pub, ok := key.pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.Wrapf(backend.ErrUnsupportedAlgorithm, "%s on %T", alg, key.pub)
	}
	return encrypt(pub, alg, data)
}

func (key *PublicKey) Sign(alg backend.Algorithm, data []byte) ([]byte, error) {
	return nil, errors.Wrap(backend.ErrUnsupportedAlgorithm, "sign with a public key")
}

func (key *PublicKey) Decrypt(alg backend.Algorithm, data []byte) ([]byte, error) {
	return nil, errors.Wrap(backend.ErrUnsupportedAlgorithm, "decrypt with a public key")
}

func blockSize(pub crypto.PublicKey) int {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return k.Size()
	case *ecdsa.PublicKey:
		return 2 * coordinateSize(k.Curve)
	}
	return 0
}

func coordinateSize(curve elliptic.Curve) int {
	return (curve.Params().BitSize + 7) / 8
}

func externalRepresentation(pub crypto.PublicKey) ([]byte, error) {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return x509.MarshalPKCS1PublicKey(k), nil
	case *ecdsa.PublicKey:
		return elliptic.Marshal(k.Curve, k.X, k.Y), nil
	}
	return nil, errors.Newf("unsupported public key %T", pub)
}
