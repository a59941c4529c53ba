// Package digest runs the hash functions behind the digest mechanisms used
// by multi-part signatures.
package digest

import (
	"crypto"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"hash"

	"github.com/cockroachdb/errors"
	"github.com/miekg/pkcs11"
)

var hashes = map[uint]crypto.Hash{
	pkcs11.CKM_SHA_1:  crypto.SHA1,
	pkcs11.CKM_SHA224: crypto.SHA224,
	pkcs11.CKM_SHA256: crypto.SHA256,
	pkcs11.CKM_SHA384: crypto.SHA384,
	pkcs11.CKM_SHA512: crypto.SHA512,
}

// HashFor returns the hash function of a digest mechanism.
func HashFor(mech uint) (crypto.Hash, bool) {
	h, ok := hashes[mech]
	return h, ok
}

// Context is one in-flight digest.
type Context struct {
	mech uint
	h    hash.Hash
}

// Init starts a digest with the given mechanism.
func Init(mech uint) (*Context, error) {
	h, ok := HashFor(mech)
	if !ok || !h.Available() {
		return nil, errors.Newf("digest mechanism 0x%x not supported", mech)
	}
	return &Context{mech: mech, h: h.New()}, nil
}

// Mechanism returns the mechanism the context was started with.
func (ctx *Context) Mechanism() uint {
	return ctx.mech
}

func (ctx *Context) Update(data []byte) error {
	if ctx.h == nil {
		return errors.New("digest already finalized")
	}
	_, err := ctx.h.Write(data)
	return errors.WithStack(err)
}

// Final returns the digest. The context cannot be used afterwards.
func (ctx *Context) Final() ([]byte, error) {
	if ctx.h == nil {
		return nil, errors.New("digest already finalized")
	}
	sum := ctx.h.Sum(nil)
	ctx.h = nil
	return sum, nil
}

// Sum hashes data in one step.
func Sum(mech uint, data []byte) ([]byte, error) {
	ctx, err := Init(mech)
	if err != nil {
		return nil, err
	}
	if err := ctx.Update(data); err != nil {
		return nil, err
	}
	return ctx.Final()
}
