package cli

import (
	"crypto"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/miekg/pkcs11"
	bridge "github.com/niclabs/keychain-bridge"
	"github.com/niclabs/keychain-bridge/config"
	"github.com/niclabs/keychain-bridge/objects"
	"github.com/youmark/pkcs8"
)

// withModule runs fn on an initialized bridge module. The tool does not
// follow device events, so the watcher is always off.
func withModule(fn func(m *bridge.Module) error) error {
	c := *conf
	c.Watcher.Type = config.None
	m := bridge.NewModule(bridge.WithProgramName("bridgectl"))
	if err := m.Initialize(&c); err != nil {
		return errors.Wrap(err, "initialize bridge")
	}
	defer func() {
		if err := m.Finalize(); err != nil {
			logger.Errorf("finalize bridge: %v", err)
		}
	}()
	return fn(m)
}

// withSession opens a session on slot, logging in when pin is set.
func withSession(m *bridge.Module, slot uint, pin string, fn func(s pkcs11.SessionHandle) error) error {
	s, err := m.OpenSession(slot, pkcs11.CKF_SERIAL_SESSION)
	if err != nil {
		return errors.Wrapf(err, "open session on slot %d", slot)
	}
	defer func() { _ = m.CloseSession(s) }()
	if pin != "" {
		if err := m.Login(s, pkcs11.CKU_USER, []byte(pin)); err != nil {
			return errors.Wrap(err, "login")
		}
	}
	return fn(s)
}

func findAll(m *bridge.Module, s pkcs11.SessionHandle, template []*pkcs11.Attribute) ([]pkcs11.ObjectHandle, error) {
	if err := m.FindObjectsInit(s, template); err != nil {
		return nil, errors.Wrap(err, "find objects")
	}
	defer func() { _ = m.FindObjectsFinal(s) }()
	var all []pkcs11.ObjectHandle
	for {
		found, err := m.FindObjects(s, 64)
		if err != nil {
			return nil, errors.Wrap(err, "find objects")
		}
		if len(found) == 0 {
			return all, nil
		}
		all = append(all, found...)
	}
}

// attribute reads one attribute, asking for its length first.
func attribute(m *bridge.Module, s pkcs11.SessionHandle, o pkcs11.ObjectHandle, attrType uint) ([]byte, error) {
	req := &objects.Request{Type: attrType}
	if err := m.GetAttributeValue(s, o, []*objects.Request{req}); err != nil {
		return nil, err
	}
	req.Buffer = make([]byte, req.Length)
	if err := m.GetAttributeValue(s, o, []*objects.Request{req}); err != nil {
		return nil, err
	}
	return req.Buffer[:req.Length], nil
}

// ulong decodes a CK_ULONG attribute value.
func ulong(b []byte) uint {
	switch len(b) {
	case 8:
		return uint(binary.NativeEndian.Uint64(b))
	case 4:
		return uint(binary.NativeEndian.Uint32(b))
	}
	return 0
}

// readCertificates returns every certificate of a PEM or DER file.
func readCertificates(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, errors.Wrapf(err, "parse certificate in %s", path)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		cert, err := x509.ParseCertificate(data)
		if err != nil {
			return nil, errors.Wrapf(err, "no certificate in %s", path)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// readPrivateKey reads a PEM private key. PKCS#8 keys may be encrypted
// with password.
func readPrivateKey(path string, password []byte) (crypto.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.Newf("no PEM block in %s", path)
	}
	var key interface{}
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	default:
		if len(password) > 0 {
			key, err = pkcs8.ParsePKCS8PrivateKey(block.Bytes, password)
		} else {
			key, err = pkcs8.ParsePKCS8PrivateKey(block.Bytes)
		}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parse private key in %s", path)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, errors.Newf("unsupported private key %T", key)
	}
	return signer, nil
}
