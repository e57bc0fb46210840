package cli

import (
	"fmt"

	"github.com/nidhogg/demiurge/internal/signing"
	"github.com/spf13/cobra"
)

func (a *app) keygenCmd() *cobra.Command {
	var phrase string
	var index uint32

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing key",
		Long:  "Generate a random key, or derive one from --phrase and --index. The seed is printed once; store it or use `keys add`.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var kp *signing.KeyPair
			if phrase != "" {
				kp = signing.KeyFromPhrase(phrase, index)
			} else {
				var err error
				if kp, err = signing.GenerateKey(); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			return a.emit(out, map[string]string{"address": kp.AddressHex(), "seed": kp.SeedHex()}, func() {
				field(out, "Address", kp.AddressHex())
				field(out, "Seed", kp.SeedHex())
				fmt.Fprintln(out, warnColor.Sprint("Keep the seed secret; anyone holding it controls the account."))
			})
		},
	}
	cmd.Flags().StringVar(&phrase, "phrase", "", "derive from a phrase instead of random bytes")
	cmd.Flags().Uint32Var(&index, "index", 0, "derivation index for --phrase")
	return cmd
}

func (a *app) keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage the local keystore",
	}
	cmd.AddCommand(a.keysAddCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := a.keystore()
			if err != nil {
				return err
			}
			entries, err := ks.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return a.emit(out, entries, func() {
				if len(entries) == 0 {
					fmt.Fprintln(out, "No keys stored.")
					return
				}
				for _, e := range entries {
					fmt.Fprintf(out, "%s  %s\n", labelColor.Sprintf("%-16s", e.Name), e.Address)
				}
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <name>",
		Short: "Show a stored key's address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := a.keystore()
			if err != nil {
				return err
			}
			e, err := ks.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return a.emit(out, e, func() {
				field(out, "Name", e.Name)
				field(out, "Address", e.Address)
				field(out, "Created", e.CreatedAt.Format("2006-01-02 15:04:05"))
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a stored key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := a.keystore()
			if err != nil {
				return err
			}
			if err := ks.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okColor.Sprint("Deleted"), args[0])
			return nil
		},
	})
	return cmd
}

func (a *app) keysAddCmd() *cobra.Command {
	var seedHex, phrase string
	var index uint32

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Store a key sealed with DEMIURGE_PASSPHRASE",
		Long:  "Store a key from --seed, from --phrase/--index, or a fresh random one when neither is given.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var kp *signing.KeyPair
			var err error
			switch {
			case seedHex != "" && phrase != "":
				return fmt.Errorf("use either --seed or --phrase")
			case seedHex != "":
				kp, err = signing.KeyPairFromHex(seedHex)
			case phrase != "":
				kp = signing.KeyFromPhrase(phrase, index)
			default:
				kp, err = signing.GenerateKey()
			}
			if err != nil {
				return err
			}

			ks, err := a.keystore()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.cfg.Passphrase == "" {
				fmt.Fprintln(cmd.ErrOrStderr(), warnColor.Sprint("DEMIURGE_PASSPHRASE is empty; the key is sealed with an empty passphrase."))
			}
			e, err := ks.Add(cmd.Context(), args[0], kp, a.cfg.Passphrase)
			if err != nil {
				return err
			}
			return a.emit(out, e, func() {
				fmt.Fprintf(out, "%s %s\n", okColor.Sprint("Stored"), e.Name)
				field(out, "Address", e.Address)
			})
		},
	}
	cmd.Flags().StringVar(&seedHex, "seed", "", "hex seed or private key")
	cmd.Flags().StringVar(&phrase, "phrase", "", "derive from a phrase")
	cmd.Flags().Uint32Var(&index, "index", 0, "derivation index for --phrase")
	return cmd
}
