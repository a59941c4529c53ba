package cli

import (
	"bytes"
	"crypto"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	bridge "github.com/niclabs/keychain-bridge"
	"github.com/niclabs/keychain-bridge/backend/soft"
	"github.com/niclabs/keychain-bridge/network/zmq"
	"github.com/niclabs/keychain-bridge/objects"
	"github.com/niclabs/keychain-bridge/storage"
	"github.com/spf13/cobra"
)

// subscribers need a moment to connect to a fresh publisher
const notifyDelay = 300 * time.Millisecond

func withStorage(fn func(store storage.Storage) error) error {
	store, err := bridge.NewStorage(conf)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.CloseStorage(); err != nil {
			logger.Errorf("close storage: %v", err)
		}
	}()
	return fn(store)
}

// notify publishes a device event for the bridges listening on the
// configured endpoint.
func notify(ev *zmq.Event) error {
	zconf, err := zmq.GetConfig(v)
	if err != nil {
		return err
	}
	pub, err := zmq.NewPublisher(zconf.Endpoint)
	if err != nil {
		return err
	}
	defer pub.Close()
	time.Sleep(notifyDelay)
	logger.Infof("publishing %s event for token %s on %s", ev.Type, ev.TokenID, zconf.Endpoint)
	return pub.Publish(ev)
}

var importFlags struct {
	token   string
	label   string
	cert    string
	key     string
	keyPass string
	pin     string
	notify  bool
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Store an identity in a token",
	Long: `import stores a certificate and its private key as an identity. The
key is encrypted with the pin, if one is given. Without --token a new
token is created and its id printed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := &importFlags
		certs, err := readCertificates(f.cert)
		if err != nil {
			return err
		}
		cert := certs[0]
		key, err := readPrivateKey(f.key, []byte(f.keyPass))
		if err != nil {
			return err
		}
		pub, ok := key.Public().(interface{ Equal(crypto.PublicKey) bool })
		if !ok || !pub.Equal(cert.PublicKey) {
			return errors.New("the private key does not match the certificate")
		}
		label := f.label
		if label == "" {
			label = objects.SubjectSummary(cert)
		}

		tokenID := f.token
		err = withStorage(func(store storage.Storage) error {
			if tokenID == "" {
				tokenID = storage.NewTokenID()
				if err := store.SaveToken(&storage.Token{ID: tokenID, Label: label}); err != nil {
					return err
				}
			} else if _, err := store.GetToken(tokenID); err != nil {
				return errors.Wrapf(err, "token %s", tokenID)
			}
			rec, err := soft.NewIdentityRecord(tokenID, label, cert, key, []byte(f.pin))
			if err != nil {
				return err
			}
			return store.SaveIdentity(rec)
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tokenID)
		if f.notify {
			return notify(&zmq.Event{Type: zmq.Add, TokenID: tokenID})
		}
		return nil
	},
}

var removeNotify bool

var removeCmd = &cobra.Command{
	Use:   "remove <token-id>",
	Short: "Delete a token and its identities",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		err := withStorage(func(store storage.Storage) error {
			return store.RemoveToken(args[0])
		})
		if err != nil {
			return err
		}
		if removeNotify {
			return notify(&zmq.Event{Type: zmq.Remove, TokenID: args[0]})
		}
		return nil
	},
}

var trustCmd = &cobra.Command{
	Use:   "trust",
	Short: "Manage the trusted certificate store",
}

var trustAddCmd = &cobra.Command{
	Use:   "add <cert-file>...",
	Short: "Add the certificates of PEM or DER files to the trust store",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStorage(func(store storage.Storage) error {
			for _, path := range args {
				certs, err := readCertificates(path)
				if err != nil {
					return err
				}
				for _, cert := range certs {
					if err := store.AddTrustedCertificate(cert.Raw); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", objects.SubjectSummary(cert))
				}
			}
			return nil
		})
	},
}

var trustListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the trust store, roots first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStorage(func(store storage.Storage) error {
			certs, err := soft.New(store).TrustedCertificates()
			if err != nil {
				return err
			}
			for _, c := range certs {
				if c.AccessGroup != "" {
					continue
				}
				marker := " "
				if bytes.Equal(c.Certificate.RawIssuer, c.Certificate.RawSubject) {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, objects.SubjectSummary(c.Certificate))
			}
			return nil
		})
	},
}

func init() {
	f := importCmd.Flags()
	f.StringVar(&importFlags.token, "token", "", "id of an existing token")
	f.StringVar(&importFlags.label, "label", "", "identity label (default is the certificate common name)")
	f.StringVar(&importFlags.cert, "cert", "", "certificate file")
	f.StringVar(&importFlags.key, "key", "", "PEM private key file")
	f.StringVar(&importFlags.keyPass, "key-pass", "", "password of an encrypted PKCS#8 key file")
	f.StringVar(&importFlags.pin, "pin", "", "encrypt the stored key with this pin")
	f.BoolVar(&importFlags.notify, "notify", false, "publish an add event for the token")
	_ = importCmd.MarkFlagRequired("cert")
	_ = importCmd.MarkFlagRequired("key")

	removeCmd.Flags().BoolVar(&removeNotify, "notify", false, "publish a remove event for the token")

	trustCmd.AddCommand(trustAddCmd)
	trustCmd.AddCommand(trustListCmd)
}
