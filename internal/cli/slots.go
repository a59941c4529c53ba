package cli

import (
	"encoding/hex"
	"fmt"
	"text/tabwriter"

	"github.com/miekg/pkcs11"
	bridge "github.com/niclabs/keychain-bridge"
	"github.com/niclabs/keychain-bridge/objects"
	"github.com/spf13/cobra"
)

var slotsCmd = &cobra.Command{
	Use:   "slots",
	Short: "List the slots and the tokens in them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withModule(func(m *bridge.Module) error {
			ids, err := m.GetSlotList(false)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SLOT\tDESCRIPTION\tTOKEN\tFLAGS")
			for _, id := range ids {
				slot, err := m.GetSlotInfo(id)
				if err != nil {
					return err
				}
				label := "-"
				if token, err := m.GetTokenInfo(id); err == nil {
					label = token.Label
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t0x%x\n", id, slot.SlotDescription, label, slot.Flags)
			}
			return w.Flush()
		})
	},
}

var objectsFlags struct {
	slot uint
	pin  string
}

var objectsCmd = &cobra.Command{
	Use:   "objects",
	Short: "List the objects of a token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withModule(func(m *bridge.Module) error {
			return withSession(m, objectsFlags.slot, objectsFlags.pin, func(s pkcs11.SessionHandle) error {
				handles, err := findAll(m, s, nil)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "HANDLE\tCLASS\tID\tLABEL")
				for _, h := range handles {
					class, err := attribute(m, s, h, pkcs11.CKA_CLASS)
					if err != nil {
						return err
					}
					// trust records have neither
					id, _ := attribute(m, s, h, pkcs11.CKA_ID)
					label, _ := attribute(m, s, h, pkcs11.CKA_LABEL)
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", h, className(ulong(class)), hex.EncodeToString(id), label)
				}
				return w.Flush()
			})
		})
	},
}

func init() {
	objectsCmd.Flags().UintVar(&objectsFlags.slot, "slot", 0, "slot id")
	objectsCmd.Flags().StringVar(&objectsFlags.pin, "pin", "", "log in with this pin")
}

func className(class uint) string {
	switch class {
	case pkcs11.CKO_CERTIFICATE:
		return "certificate"
	case pkcs11.CKO_PUBLIC_KEY:
		return "public key"
	case pkcs11.CKO_PRIVATE_KEY:
		return "private key"
	case objects.CKO_NSS_TRUST:
		return "nss trust"
	}
	return fmt.Sprintf("0x%x", class)
}
