package cli

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/miekg/pkcs11"
	bridge "github.com/niclabs/keychain-bridge"
	"github.com/spf13/cobra"
)

var signMechanisms = map[string]uint{
	"CKM_RSA_PKCS":        pkcs11.CKM_RSA_PKCS,
	"CKM_RSA_X_509":       pkcs11.CKM_RSA_X_509,
	"CKM_SHA1_RSA_PKCS":   pkcs11.CKM_SHA1_RSA_PKCS,
	"CKM_SHA224_RSA_PKCS": pkcs11.CKM_SHA224_RSA_PKCS,
	"CKM_SHA256_RSA_PKCS": pkcs11.CKM_SHA256_RSA_PKCS,
	"CKM_SHA384_RSA_PKCS": pkcs11.CKM_SHA384_RSA_PKCS,
	"CKM_SHA512_RSA_PKCS": pkcs11.CKM_SHA512_RSA_PKCS,
	"CKM_ECDSA":           pkcs11.CKM_ECDSA,
	"CKM_ECDSA_SHA1":      pkcs11.CKM_ECDSA_SHA1,
	"CKM_ECDSA_SHA224":    pkcs11.CKM_ECDSA_SHA224,
	"CKM_ECDSA_SHA256":    pkcs11.CKM_ECDSA_SHA256,
	"CKM_ECDSA_SHA384":    pkcs11.CKM_ECDSA_SHA384,
	"CKM_ECDSA_SHA512":    pkcs11.CKM_ECDSA_SHA512,
}

var signFlags struct {
	slot uint
	id   string
	mech string
	in   string
	pin  string
}

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a file with the private key of a token and print the signature in hex",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := &signFlags
		mech, ok := signMechanisms[strings.ToUpper(f.mech)]
		if !ok {
			return errors.Newf("unknown mechanism %s, use one of %s", f.mech, strings.Join(mechanismNames(), ", "))
		}
		id, err := hex.DecodeString(f.id)
		if err != nil {
			return errors.Wrap(err, "key id")
		}
		data, err := readInput(f.in)
		if err != nil {
			return err
		}
		return withModule(func(m *bridge.Module) error {
			return withSession(m, f.slot, f.pin, func(s pkcs11.SessionHandle) error {
				keys, err := findAll(m, s, []*pkcs11.Attribute{
					pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
					pkcs11.NewAttribute(pkcs11.CKA_ID, id),
				})
				if err != nil {
					return err
				}
				if len(keys) == 0 {
					return errors.Newf("no private key with id %s in slot %d", f.id, f.slot)
				}
				if err := m.SignInit(s, pkcs11.NewMechanism(mech, nil), keys[0]); err != nil {
					return errors.Wrap(err, "sign init")
				}
				n, err := m.Sign(s, data, nil)
				if err != nil {
					return errors.Wrap(err, "signature length")
				}
				sig := make([]byte, n)
				if n, err = m.Sign(s, data, sig); err != nil {
					return errors.Wrap(err, "sign")
				}
				fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(sig[:n]))
				return nil
			})
		})
	},
}

func init() {
	f := signCmd.Flags()
	f.UintVar(&signFlags.slot, "slot", 0, "slot id")
	f.StringVar(&signFlags.id, "id", "00", "CKA_ID of the key in hex")
	f.StringVar(&signFlags.mech, "mech", "CKM_SHA256_RSA_PKCS", "signature mechanism")
	f.StringVar(&signFlags.in, "in", "-", "file to sign, - for stdin")
	f.StringVar(&signFlags.pin, "pin", "", "log in with this pin")
}

func mechanismNames() []string {
	names := make([]string, 0, len(signMechanisms))
	for name := range signMechanisms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return data, errors.WithStack(err)
	}
	data, err := os.ReadFile(path)
	return data, errors.WithStack(err)
}
