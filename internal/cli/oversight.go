package cli

import (
	"fmt"
	"io"

	"github.com/nidhogg/demiurge/internal/archon"
	"github.com/nidhogg/demiurge/internal/signing"
	"github.com/nidhogg/demiurge/sdk"
	"github.com/spf13/cobra"
)

func (a *app) oversightCmds() []*cobra.Command {
	var limit int
	anomalies := &cobra.Command{
		Use:   "anomalies",
		Short: "List anomalies detected by the node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := a.node().Archon().Anomalies(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return a.emit(out, list, func() {
				if len(list) == 0 {
					fmt.Fprintln(out, okColor.Sprint("No anomalies."))
					return
				}
				for _, an := range list {
					fmt.Fprintf(out, "%s %s %-24s %-10s %s\n",
						an.Timestamp.Format("2006-01-02 15:04:05"),
						warnColor.Sprintf("%.2f", an.Severity), an.Type, an.Subsystem, an.Description)
				}
			})
		},
	}
	anomalies.Flags().IntVar(&limit, "limit", 20, "maximum anomalies")

	var journalLimit int
	journal := &cobra.Command{
		Use:   "journal",
		Short: "Show the improvement journal and verify its hash chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.node().Archon().Journal(cmd.Context(), journalLimit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return a.emit(out, j, func() {
				field(out, "Root", j.Root)
				field(out, "Chain", okOrFail(j.Verified))
				for _, e := range j.Entries {
					fmt.Fprintf(out, "  %s %s %s\n", e.ID, e.ArtifactID, e.Result)
				}
			})
		},
	}
	journal.Flags().IntVar(&journalLimit, "limit", 20, "maximum entries")

	return []*cobra.Command{anomalies, journal, a.voteCmd(), a.proposalCmd()}
}

func (a *app) voteCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "vote <proposal> <approve|reject|abstain>",
		Short: "Cast a signed ascension vote",
		Long:  "Unlock --key with DEMIURGE_PASSPHRASE and sign the vote. The voter is the key's public key.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ks, err := a.keystore()
			if err != nil {
				return err
			}
			kp, err := ks.Unlock(ctx, key, a.cfg.Passphrase)
			if err != nil {
				return err
			}
			proposal, choice := args[0], archon.Choice(args[1])
			res, err := a.node().Archon().SubmitVote(ctx, sdk.Vote{
				Voter:      signing.EncodeHex(kp.PublicKey()),
				ProposalID: proposal,
				Choice:     string(choice),
				Signature:  kp.SignMessageHex(archon.VoteMessage(proposal, choice)),
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return a.emit(out, res, func() { printProposal(out, res) })
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "keystore name of the voter")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func (a *app) proposalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "proposal <id>",
		Short: "Show an ascension proposal's tally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.node().Archon().Proposal(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return a.emit(out, res, func() { printProposal(out, res) })
		},
	}
}

func printProposal(out io.Writer, p *sdk.Proposal) {
	status := warnColor.Sprint("pending")
	if p.Approved {
		status = okColor.Sprint("approved")
	}
	field(out, "Proposal", p.ProposalID)
	field(out, "Status", status)
	field(out, "Votes", fmt.Sprintf("%d approve, %d reject, %d abstain", p.Approve, p.Reject, p.Abstain))
	field(out, "Participation", fmt.Sprintf("%.0f%%", p.Participation*100))
}
