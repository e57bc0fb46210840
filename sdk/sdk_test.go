package sdk_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nidhogg/demiurge/internal/archon"
	"github.com/nidhogg/demiurge/internal/chain"
	"github.com/nidhogg/demiurge/internal/fabric"
	"github.com/nidhogg/demiurge/internal/rpc"
	"github.com/nidhogg/demiurge/internal/signing"
	"github.com/nidhogg/demiurge/sdk"
	"go.uber.org/zap"
)

func startNode(t *testing.T, archonKey sdk.Signer) *sdk.Client {
	t.Helper()
	logger := zap.NewNop()
	node := chain.NewNode(chain.Config{
		NodeID:          "sdk-node",
		DevMode:         true,
		GenesisArchon:   chain.Address(archonKey.Address()),
		GenesisBalance:  chain.CGT(1000),
		DevFaucetAmount: chain.CGT(100),
	}, logger)
	if err := node.Genesis(context.Background()); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	daemon := archon.NewDaemon(node, archon.DaemonConfig{
		Diagnostics: archon.DiagnosticsConfig{RequiredMethods: sdk.RequiredMethods},
	}, logger)
	srv := rpc.NewServer(node, daemon, fabric.NewMesh("sdk-node", 0, logger), nil, logger)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return sdk.NewClient(ts.URL+"/rpc", sdk.WithRetries(0), sdk.WithTimeout(5*time.Second))
}

func TestClientAgainstNode(t *testing.T) {
	ctx := context.Background()
	archonKey := sdk.KeyFromPhrase("sdk test phrase", 0)
	bob := sdk.KeyFromPhrase("sdk test phrase", 1)
	c := startNode(t, archonKey)

	md, err := c.CGT().Metadata(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if md.Symbol != "CGT" {
		t.Fatalf("metadata = %+v", md)
	}

	res, err := c.CGT().Transfer(ctx, archonKey, sdk.AddressOf(bob), chain.CGT(40), 0)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !res.Accepted {
		t.Fatalf("transfer = %+v", res)
	}
	bal, err := c.CGT().Balance(ctx, sdk.AddressOf(bob))
	if err != nil {
		t.Fatal(err)
	}
	if bal.Cmp(chain.CGT(40)) != 0 {
		t.Fatalf("bob balance = %s", bal)
	}

	// The second transfer picks up the advanced nonce.
	if _, err := c.CGT().Transfer(ctx, archonKey, sdk.AddressOf(bob), chain.CGT(1), 0); err != nil {
		t.Fatalf("second transfer: %v", err)
	}
	hist, err := c.CGT().History(ctx, sdk.AddressOf(bob), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 {
		t.Fatalf("history = %d entries", len(hist))
	}
	tx, err := c.CGT().Transaction(ctx, res.TxHash)
	if err != nil || tx == nil || tx.Hash != res.TxHash {
		t.Fatalf("transaction = %+v, %v", tx, err)
	}

	prof, err := c.UrgeID().Profile(ctx, sdk.AddressOf(bob))
	if err != nil || prof != nil {
		t.Fatalf("missing profile = %+v, %v", prof, err)
	}
	if _, err := c.UrgeID().Create(ctx, sdk.AddressOf(bob), "Bob", "builder"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := c.UrgeID().SetHandle(ctx, bob, "bob", 0); err != nil {
		t.Fatalf("set handle: %v", err)
	}
	prof, err = c.UrgeID().ByHandle(ctx, "@BOB")
	if err != nil || prof == nil || prof.DisplayName != "Bob" {
		t.Fatalf("by handle = %+v, %v", prof, err)
	}

	listings, err := c.Abyss().AllListings(ctx)
	if err != nil || len(listings) != 0 {
		t.Fatalf("listings = %+v, %v", listings, err)
	}
	if l, err := c.Abyss().Listing(ctx, 1); err != nil || l != nil {
		t.Fatalf("listing = %+v, %v", l, err)
	}

	st, err := c.Archon().State(ctx)
	if err != nil || st.StateVector == nil {
		t.Fatalf("archon state = %+v, %v", st, err)
	}
	topo, err := c.Archon().Topology(ctx)
	if err != nil || topo.NodeCount != 1 {
		t.Fatalf("topology = %+v, %v", topo, err)
	}
}

func TestArchonOversight(t *testing.T) {
	ctx := context.Background()
	archonKey := signing.KeyFromPhrase("sdk oversight phrase", 0)
	c := startNode(t, archonKey)

	j, err := c.Archon().Journal(ctx, 0)
	if err != nil || !j.Verified || j.Root != "genesis" {
		t.Fatalf("journal = %+v, %v", j, err)
	}

	res, err := c.Archon().SubmitVote(ctx, sdk.Vote{
		Voter:      signing.EncodeHex(archonKey.PublicKey()),
		ProposalID: "p1",
		Choice:     "reject",
		Signature:  archonKey.SignMessageHex(archon.VoteMessage("p1", archon.Oppose)),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Approved || res.Reject != 1 {
		t.Fatalf("vote result = %+v", res)
	}
	p, err := c.Archon().Proposal(ctx, "p1")
	if err != nil || len(p.Votes) != 1 || p.Votes[0].Choice != "reject" || p.Votes[0].Voter != "sdk-node" {
		t.Fatalf("proposal = %+v, %v", p, err)
	}

	// node-a never submitted a state vector, so it cannot vote.
	_, err = c.Archon().SubmitVote(ctx, sdk.Vote{Voter: "node-a", ProposalID: "p1", Choice: "reject"})
	if sdk.RPCCode(err) != -32602 {
		t.Fatalf("unknown voter err = %v", err)
	}
	_, err = c.Archon().SubmitVote(ctx, sdk.Vote{Voter: "node-a", ProposalID: "p1", Choice: "maybe"})
	if sdk.RPCCode(err) != -32602 {
		t.Fatalf("bad vote err = %v", err)
	}

	// No palace is attached to this node.
	if _, err := c.Archon().Chambers(ctx); err == nil {
		t.Fatal("chambers without palace succeeded")
	}
}
