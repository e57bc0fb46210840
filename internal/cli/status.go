package cli

import (
	"fmt"
	"math/big"

	"github.com/fatih/color"
	"github.com/nidhogg/demiurge/sdk"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func healthColor(result string) *color.Color {
	switch result {
	case "pass":
		return okColor
	case "warning", "not_applicable":
		return warnColor
	default:
		return errColor
	}
}

func okOrFail(ok bool) string {
	if ok {
		return okColor.Sprint("ok")
	}
	return errColor.Sprint("violated")
}

type nodeStatus struct {
	URL      string           `json:"url"`
	Chain    *sdk.ChainInfo   `json:"chain"`
	Supply   string           `json:"total_supply"`
	Archon   *sdk.ArchonState `json:"archon"`
	Topology *sdk.Topology    `json:"topology"`
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize the node: chain head, supply, archon health and mesh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.node()
			st := nodeStatus{URL: c.URL()}
			var supply *big.Int

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() (err error) {
				st.Chain, err = c.CGT().ChainInfo(ctx)
				return err
			})
			g.Go(func() (err error) {
				supply, err = c.CGT().TotalSupply(ctx)
				return err
			})
			g.Go(func() (err error) {
				st.Archon, err = c.Archon().State(ctx)
				return err
			})
			g.Go(func() (err error) {
				st.Topology, err = c.Archon().Topology(ctx)
				return err
			})
			if err := g.Wait(); err != nil {
				return fmt.Errorf("node %s: %w", c.URL(), err)
			}
			st.Supply = supply.String()

			out := cmd.OutOrStdout()
			return a.emit(out, st, func() {
				fmt.Fprintf(out, "%s %s\n\n", color.New(color.Bold).Sprint("Demiurge node"), st.URL)
				field(out, "Height", st.Chain.Height)
				field(out, "Head", st.Chain.BlockHash)
				field(out, "Supply", cgt(supply))
				if st.Archon != nil {
					field(out, "Archon", healthColor(st.Archon.Health).Sprintf("%s (%.2f)", st.Archon.Health, st.Archon.HealthScore))
					field(out, "Peers", st.Archon.Peers)
				}
				if t := st.Topology; t != nil {
					field(out, "Mesh", fmt.Sprintf("%d nodes, %d links, stability %.2f, %s", t.NodeCount, t.LinkCount, t.Stability, t.Convergence))
				}
			})
		},
	}
}
