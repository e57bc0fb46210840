// Package cli implements the demiurge command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"

	"github.com/fatih/color"
	"github.com/nidhogg/demiurge/internal/chain"
	"github.com/nidhogg/demiurge/internal/config"
	"github.com/nidhogg/demiurge/internal/keystore"
	"github.com/nidhogg/demiurge/sdk"
	"github.com/spf13/cobra"
)

var (
	labelColor = color.New(color.FgCyan)
	okColor    = color.New(color.FgGreen)
	warnColor  = color.New(color.FgYellow)
	errColor   = color.New(color.FgRed)
)

// app is shared by every command.
type app struct {
	cfg    *config.CLI
	asJSON bool
	client *sdk.Client
	keys   *keystore.Store
}

// NewRoot builds the command tree.
func NewRoot(cfg *config.CLI) *cobra.Command {
	a := &app{cfg: cfg}
	if cfg.NoColor {
		color.NoColor = true
	}

	root := &cobra.Command{
		Use:           "demiurge",
		Short:         "Demiurge chain client",
		Long:          "demiurge talks to a Demiurge node over JSON-RPC and keeps signing keys in a local keystore.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	root.PersistentFlags().StringVar(&cfg.RPCURL, "rpc", cfg.RPCURL, "node JSON-RPC URL")
	root.PersistentFlags().BoolVar(&a.asJSON, "json", false, "print raw JSON")

	root.AddCommand(a.keygenCmd())
	root.AddCommand(a.keysCmd())
	root.AddCommand(a.urgeidCmd())
	root.AddCommand(a.cgtCmd())
	root.AddCommand(a.nftCmd())
	root.AddCommand(a.marketCmd())
	root.AddCommand(a.archonCmd())
	root.AddCommand(a.statusCmd())
	return root
}

func (a *app) node() *sdk.Client {
	if a.client == nil {
		opts := []sdk.Option{sdk.WithRetries(a.cfg.Retries), sdk.WithTimeout(a.cfg.Timeout)}
		if a.cfg.Token != "" {
			opts = append(opts, sdk.WithBearerToken(a.cfg.Token))
		}
		a.client = sdk.NewClient(a.cfg.RPCURL, opts...)
	}
	return a.client
}

func (a *app) keystore() (*keystore.Store, error) {
	if a.keys == nil {
		ks, err := keystore.Open(a.cfg.Keystore)
		if err != nil {
			return nil, err
		}
		a.keys = ks
	}
	return a.keys, nil
}

func (a *app) close() error {
	if a.keys != nil {
		err := a.keys.Close()
		a.keys = nil
		return err
	}
	return nil
}

// address accepts a hex address or the name of a stored key.
func (a *app) address(ctx context.Context, arg string) (string, error) {
	if addr, err := sdk.ValidateAddress(arg); err == nil {
		return addr, nil
	}
	ks, err := a.keystore()
	if err != nil {
		return "", err
	}
	e, err := ks.Get(ctx, arg)
	if err != nil {
		return "", fmt.Errorf("%q is neither an address nor a stored key", arg)
	}
	return e.Address, nil
}

// emit prints v as JSON with --json, else runs pretty.
func (a *app) emit(w io.Writer, v any, pretty func()) error {
	if a.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	pretty()
	return nil
}

func field(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "%s %v\n", labelColor.Sprintf("%-14s", label+":"), value)
}

func cgt(v *big.Int) string { return chain.FormatCGT(v) + " CGT" }

func cgtString(s string) string {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return s
	}
	return cgt(v)
}
