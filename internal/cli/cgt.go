package cli

import (
	"fmt"
	"strconv"

	"github.com/nidhogg/demiurge/internal/chain"
	"github.com/spf13/cobra"
)

func (a *app) cgtCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cgt",
		Short: "CGT token queries and transfers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "balance <address|key>",
		Short: "Show an account balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := a.address(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			bal, err := a.node().CGT().Balance(cmd.Context(), addr)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return a.emit(out, map[string]string{"address": addr, "balance": bal.String()}, func() {
				field(out, "Address", addr)
				field(out, "Balance", okColor.Sprint(cgt(bal)))
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "nonce <address|key>",
		Short: "Show the next nonce for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := a.address(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			n, err := a.node().CGT().Nonce(cmd.Context(), addr)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return a.emit(out, map[string]any{"address": addr, "nonce": n}, func() {
				field(out, "Nonce", n)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "metadata",
		Short: "Show token metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.node().CGT().Metadata(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return a.emit(out, m, func() {
				field(out, "Name", m.Name)
				field(out, "Symbol", m.Symbol)
				field(out, "Decimals", m.Decimals)
				field(out, "Max supply", cgtString(m.MaxSupply))
				field(out, "Total supply", cgtString(m.TotalSupply))
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "supply",
		Short: "Show the circulating supply",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.node().CGT().TotalSupply(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return a.emit(out, map[string]string{"total_supply": s.String()}, func() {
				field(out, "Total supply", cgt(s))
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "chain-info",
		Short: "Show the chain head",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := a.node().CGT().ChainInfo(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return a.emit(out, info, func() {
				field(out, "Height", info.Height)
				field(out, "Block hash", info.BlockHash)
			})
		},
	})
	cmd.AddCommand(a.transferCmd())
	cmd.AddCommand(a.historyCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "faucet <address|key>",
		Short: "Mint test CGT (dev-mode nodes only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := a.address(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			res, err := a.node().CGT().DevFaucet(cmd.Context(), addr)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return a.emit(out, res, func() {
				field(out, "New balance", okColor.Sprint(cgtString(res.NewBalance)))
			})
		},
	})
	return cmd
}

func (a *app) transferCmd() *cobra.Command {
	var fromKey, to, amount string
	var fee uint64

	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Sign and send a CGT transfer",
		Long:  "Unlock --from-key with DEMIURGE_PASSPHRASE, sign the transfer locally and submit it. --amount is in CGT, e.g. 12.5.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			units, err := chain.ParseCGT(amount)
			if err != nil {
				return err
			}
			dest, err := a.address(ctx, to)
			if err != nil {
				return err
			}
			ks, err := a.keystore()
			if err != nil {
				return err
			}
			kp, err := ks.Unlock(ctx, fromKey, a.cfg.Passphrase)
			if err != nil {
				return err
			}
			res, err := a.node().CGT().Transfer(ctx, kp, dest, units, fee)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return a.emit(out, res, func() {
				status := okColor.Sprint("accepted")
				if !res.Accepted {
					status = errColor.Sprint("rejected")
				}
				fmt.Fprintf(out, "Transfer of %s to %s %s\n", cgt(units), dest, status)
				field(out, "Tx hash", res.TxHash)
			})
		},
	}
	cmd.Flags().StringVar(&fromKey, "from-key", "", "keystore name of the sender")
	cmd.Flags().StringVar(&to, "to", "", "recipient address or key name")
	cmd.Flags().StringVar(&amount, "amount", "", "amount in CGT")
	cmd.Flags().Uint64Var(&fee, "fee", 0, "fee in base units")
	for _, f := range []string{"from-key", "to", "amount"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func (a *app) historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <address|key>",
		Short: "List an account's transactions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := a.address(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			txs, err := a.node().CGT().History(cmd.Context(), addr, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return a.emit(out, txs, func() {
				if len(txs) == 0 {
					fmt.Fprintln(out, "No transactions.")
					return
				}
				for _, tx := range txs {
					dir := warnColor.Sprint("out")
					if tx.From != addr {
						dir = okColor.Sprint("in ")
					}
					fmt.Fprintf(out, "%s #%-6s %s %s.%s %s\n",
						dir, strconv.FormatUint(tx.Height, 10), tx.Hash, tx.ModuleID, tx.CallID,
						tx.Timestamp.Format("2006-01-02 15:04:05"))
				}
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum transactions")
	return cmd
}
