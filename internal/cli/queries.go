package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func (a *app) urgeidCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "urgeid",
		Short: "UrgeID profile queries",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "profile <address|key>",
		Short: "Show a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := a.address(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			p, err := a.node().UrgeID().Profile(cmd.Context(), addr)
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("no profile for %s", addr)
			}
			out := cmd.OutOrStdout()
			return a.emit(out, p, func() {
				field(out, "Address", p.Address)
				field(out, "Name", p.DisplayName)
				if p.Handle != "" {
					field(out, "Handle", "@"+p.Handle)
				}
				if p.Bio != "" {
					field(out, "Bio", p.Bio)
				}
				field(out, "Level", p.Level)
				field(out, "Syzygy", p.SyzygyScore)
				field(out, "Rewards", cgtString(p.RewardsEarned))
				if len(p.Badges) > 0 {
					field(out, "Badges", strings.Join(p.Badges, ", "))
				}
				if p.IsArchon {
					field(out, "Archon", okColor.Sprint("yes"))
				}
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "progress <address|key>",
		Short: "Show level progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := a.address(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			p, err := a.node().UrgeID().Progress(cmd.Context(), addr)
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("no profile for %s", addr)
			}
			out := cmd.OutOrStdout()
			return a.emit(out, p, func() {
				field(out, "Level", p.Level)
				field(out, "Syzygy", fmt.Sprintf("%d (%d..%d)", p.SyzygyScore, p.CurrentLevelThreshold, p.NextLevelThreshold))
				field(out, "Progress", fmt.Sprintf("%.0f%%", p.ProgressRatio*100))
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "resolve <handle>",
		Short: "Find the profile holding a handle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.node().UrgeID().ByHandle(cmd.Context(), strings.TrimPrefix(args[0], "@"))
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("handle %s is not registered", args[0])
			}
			out := cmd.OutOrStdout()
			return a.emit(out, p, func() {
				field(out, "Handle", "@"+p.Handle)
				field(out, "Address", p.Address)
				field(out, "Name", p.DisplayName)
			})
		},
	})
	cmd.AddCommand(a.oversightCmds()...)
	return cmd
}

func (a *app) nftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nft",
		Short: "NFT queries",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "by-owner <address|key>",
		Short: "List NFTs held by an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := a.address(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			nfts, err := a.node().CGT().NftsByOwner(cmd.Context(), addr)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return a.emit(out, nfts, func() {
				if len(nfts) == 0 {
					fmt.Fprintln(out, "No NFTs.")
					return
				}
				for _, n := range nfts {
					fmt.Fprintf(out, "%s %s royalty %d bps, minted at %d\n",
						labelColor.Sprintf("#%-4d", n.ID), n.Name, n.RoyaltyBps, n.MintedAtHeight)
				}
			})
		},
	})
	cmd.AddCommand(a.oversightCmds()...)
	return cmd
}

func (a *app) marketCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "market",
		Short: "Abyss marketplace queries",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List active listings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ls, err := a.node().Abyss().AllListings(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return a.emit(out, ls, func() {
				if len(ls) == 0 {
					fmt.Fprintln(out, "No active listings.")
					return
				}
				for _, l := range ls {
					fmt.Fprintf(out, "%s token %d for %s by %s\n",
						labelColor.Sprintf("#%-4d", l.ID), l.TokenID, okColor.Sprint(cgtString(l.Price)), l.Seller)
				}
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "get <listing-id>",
		Short: "Show a listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("listing id: %w", err)
			}
			l, err := a.node().Abyss().Listing(cmd.Context(), id)
			if err != nil {
				return err
			}
			if l == nil {
				return fmt.Errorf("listing %d not found", id)
			}
			out := cmd.OutOrStdout()
			return a.emit(out, l, func() {
				field(out, "Listing", l.ID)
				field(out, "Token", l.TokenID)
				field(out, "Seller", l.Seller)
				field(out, "Price", cgtString(l.Price))
				field(out, "Status", l.Status)
				if l.Buyer != "" {
					field(out, "Buyer", l.Buyer)
				}
			})
		},
	})
	cmd.AddCommand(a.oversightCmds()...)
	return cmd
}

func (a *app) archonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archon",
		Short: "Archon state queries",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "state",
		Short: "Show the node's archon state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.node().Archon().State(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return a.emit(out, st, func() {
				field(out, "Health", healthColor(st.Health).Sprintf("%s (%.2f)", st.Health, st.HealthScore))
				if v := st.StateVector; v != nil {
					field(out, "Node", v.NodeID)
					field(out, "Height", v.BlockHeight)
					field(out, "State root", v.StateRoot)
					field(out, "Invariants", okOrFail(v.InvariantsOK))
				}
				field(out, "Coherence", fmt.Sprintf("%.2f", st.Core.Coherence))
				field(out, "Stability", fmt.Sprintf("%.2f", st.Core.Stability))
				field(out, "Peers", st.Peers)
				for _, t := range st.Diagnostics {
					fmt.Fprintf(out, "  %s %s %s\n", healthColor(t.Result).Sprintf("%-7s", t.Result), t.Name, t.Message)
				}
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "is-archon <address|key>",
		Short: "Check whether an account holds archon status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := a.address(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			ok, err := a.node().CGT().IsArchon(cmd.Context(), addr)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return a.emit(out, map[string]any{"address": addr, "is_archon": ok}, func() {
				if ok {
					fmt.Fprintf(out, "%s is %s\n", addr, okColor.Sprint("an archon"))
				} else {
					fmt.Fprintf(out, "%s is not an archon\n", addr)
				}
			})
		},
	})
	cmd.AddCommand(a.oversightCmds()...)
	return cmd
}
