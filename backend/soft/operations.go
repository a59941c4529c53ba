package soft

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/subtle"
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/niclabs/keychain-bridge/backend"
)

var errVerification = errors.New("signature verification failed")

func describe(alg backend.Algorithm) (backend.AlgorithmSpec, error) {
	spec, ok := backend.Describe(alg)
	if !ok {
		return spec, errors.Wrapf(backend.ErrUnsupportedAlgorithm, "%s", alg)
	}
	return spec, nil
}

// digestInput returns the digest an algorithm signs: the hash of data for
// message algorithms, data itself otherwise.
func digestInput(spec backend.AlgorithmSpec, data []byte) ([]byte, error) {
	if !spec.Message {
		if spec.Hash != 0 && len(data) != spec.Hash.Size() {
			return nil, errors.Newf("digest length %d does not match %s", len(data), spec.Hash)
		}
		return data, nil
	}
	h := spec.Hash.New()
	h.Write(data)
	return h.Sum(nil), nil
}

func sign(signer crypto.Signer, alg backend.Algorithm, data []byte) ([]byte, error) {
	spec, err := describe(alg)
	if err != nil {
		return nil, err
	}
	digest, err := digestInput(spec, data)
	if err != nil {
		return nil, err
	}
	switch priv := signer.(type) {
	case *rsa.PrivateKey:
		switch spec.Padding {
		case backend.PaddingRaw:
			return rawPrivate(priv, data)
		case backend.PaddingPKCS1v15:
			sig, err := rsa.SignPKCS1v15(rand.Reader, priv, spec.Hash, digest)
			return sig, errors.WithStack(err)
		case backend.PaddingPSS:
			sig, err := rsa.SignPSS(rand.Reader, priv, spec.Hash, digest,
				&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
			return sig, errors.WithStack(err)
		}
	case *ecdsa.PrivateKey:
		if spec.Padding == backend.PaddingX962 {
			r, s, err := ecdsa.Sign(rand.Reader, priv, digest)
			if err != nil {
				return nil, errors.WithStack(err)
			}
			size := coordinateSize(priv.Curve)
			sig := make([]byte, 2*size)
			r.FillBytes(sig[:size])
			s.FillBytes(sig[size:])
			return sig, nil
		}
	}
	return nil, errors.Wrapf(backend.ErrUnsupportedAlgorithm, "%s on %T", alg, signer)
}

func verify(pub crypto.PublicKey, alg backend.Algorithm, data, signature []byte) error {
	spec, err := describe(alg)
	if err != nil {
		return err
	}
	digest, err := digestInput(spec, data)
	if err != nil {
		return err
	}
	switch key := pub.(type) {
	case *rsa.PublicKey:
		switch spec.Padding {
		case backend.PaddingRaw:
			out, err := rawPublic(key, signature)
			if err != nil {
				return err
			}
			if subtle.ConstantTimeCompare(out, leftPad(data, key.Size())) != 1 {
				return errVerification
			}
			return nil
		case backend.PaddingPKCS1v15:
			return errors.WithStack(rsa.VerifyPKCS1v15(key, spec.Hash, digest, signature))
		case backend.PaddingPSS:
			return errors.WithStack(rsa.VerifyPSS(key, spec.Hash, digest, signature,
				&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}))
		}
	case *ecdsa.PublicKey:
		if spec.Padding == backend.PaddingX962 {
			size := coordinateSize(key.Curve)
			if len(signature) != 2*size {
				return errVerification
			}
			r := new(big.Int).SetBytes(signature[:size])
			s := new(big.Int).SetBytes(signature[size:])
			if !ecdsa.Verify(key, digest, r, s) {
				return errVerification
			}
			return nil
		}
	}
	return errors.Wrapf(backend.ErrUnsupportedAlgorithm, "%s on %T", alg, pub)
}

func encrypt(pub *rsa.PublicKey, alg backend.Algorithm, data []byte) ([]byte, error) {
	spec, err := describe(alg)
	if err != nil {
		return nil, err
	}
	switch spec.Padding {
	case backend.PaddingRaw:
		return rawPublic(pub, data)
	case backend.PaddingPKCS1v15:
		out, err := rsa.EncryptPKCS1v15(rand.Reader, pub, data)
		return out, errors.WithStack(err)
	case backend.PaddingOAEP:
		out, err := rsa.EncryptOAEP(spec.Hash.New(), rand.Reader, pub, data, nil)
		return out, errors.WithStack(err)
	}
	return nil, errors.Wrapf(backend.ErrUnsupportedAlgorithm, "%s", alg)
}

func decrypt(priv *rsa.PrivateKey, alg backend.Algorithm, data []byte) ([]byte, error) {
	spec, err := describe(alg)
	if err != nil {
		return nil, err
	}
	switch spec.Padding {
	case backend.PaddingRaw:
		return rawPrivate(priv, data)
	case backend.PaddingPKCS1v15:
		out, err := rsa.DecryptPKCS1v15(rand.Reader, priv, data)
		return out, errors.WithStack(err)
	case backend.PaddingOAEP:
		out, err := rsa.DecryptOAEP(spec.Hash.New(), rand.Reader, priv, data, nil)
		return out, errors.WithStack(err)
	}
	return nil, errors.Wrapf(backend.ErrUnsupportedAlgorithm, "%s", alg)
}

// rawPublic computes data^e mod n.
func rawPublic(pub *rsa.PublicKey, data []byte) ([]byte, error) {
	m := new(big.Int).SetBytes(data)
	if m.Cmp(pub.N) >= 0 {
		return nil, errors.New("input out of range")
	}
	c := new(big.Int).Exp(m, big.NewInt(int64(pub.E)), pub.N)
	return c.FillBytes(make([]byte, pub.Size())), nil
}

// rawPrivate computes data^d mod n.
func rawPrivate(priv *rsa.PrivateKey, data []byte) ([]byte, error) {
	c := new(big.Int).SetBytes(data)
	if c.Cmp(priv.N) >= 0 {
		return nil, errors.New("input out of range")
	}
	m := new(big.Int).Exp(c, priv.D, priv.N)
	return m.FillBytes(make([]byte, priv.Size())), nil
}

func leftPad(data []byte, size int) []byte {
	if len(data) >= size {
		return data
	}
	out := make([]byte, size)
	copy(out[size-len(data):], data)
	return out
}
