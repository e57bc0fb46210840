package chain

import (
	"context"
	"errors"
	"math"
	"math/big"
	"testing"
)

func TestCalculateReward(t *testing.T) {
	cases := []struct {
		name     string
		depth    float64
		activeMs uint64
		want     *big.Int
	}{
		// 10*100 + 5*0.1 = 1000.5 CGT
		{"depth and time", 10, 5000, big.NewInt(1000_50000000)},
		{"time only", 0, 1000, big.NewInt(10000000)},
		{"capped", MaxDepthMetric, 1_000_000_000, MaxRewardPerClaim},
		{"nan", math.NaN(), 1000, new(big.Int)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CalculateReward(tc.depth, tc.activeMs); got.Cmp(tc.want) != 0 {
				t.Fatalf("reward = %s, want %s", got, tc.want)
			}
		})
	}
	if CalculateReward(MaxDepthMetric, 0) == MaxRewardPerClaim {
		t.Fatal("capped reward aliases MaxRewardPerClaim")
	}
}

func TestWorkClaimValidate(t *testing.T) {
	valid := WorkClaimParams{GameID: "mandelbrot", SessionID: "session_123", DepthMetric: 10, ActiveMs: 5000}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid claim: %v", err)
	}
	cases := map[string]func(p *WorkClaimParams){
		"short session":  func(p *WorkClaimParams) { p.ActiveMs = 500 },
		"negative depth": func(p *WorkClaimParams) { p.DepthMetric = -1 },
		"nan depth":      func(p *WorkClaimParams) { p.DepthMetric = math.NaN() },
		"huge depth":     func(p *WorkClaimParams) { p.DepthMetric = MaxDepthMetric + 1 },
		"no game":        func(p *WorkClaimParams) { p.GameID = " " },
		"no session":     func(p *WorkClaimParams) { p.SessionID = "" },
	}
	for name, mutate := range cases {
		p := valid
		mutate(&p)
		if err := p.Validate(); !errors.Is(err, ErrInvalidClaim) {
			t.Errorf("%s: got %v, want ErrInvalidClaim", name, err)
		}
	}
}

func TestSubmitWorkClaimMintsOnce(t *testing.T) {
	l := NewLedger()
	miner := addr(1)
	p := WorkClaimParams{GameID: "mandelbrot", SessionID: "s-1", DepthMetric: 10, ActiveMs: 5000}

	reward, err := l.SubmitWorkClaim(miner, p)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if l.Balance(miner).Cmp(reward) != 0 || l.TotalSupply().Cmp(reward) != 0 {
		t.Fatalf("balance = %s supply = %s, want %s", l.Balance(miner), l.TotalSupply(), reward)
	}
	if !l.ClaimSubmitted(miner, "mandelbrot", "s-1") {
		t.Fatal("claim not recorded")
	}
	if _, err := l.SubmitWorkClaim(miner, p); !errors.Is(err, ErrClaimSubmitted) {
		t.Fatalf("resubmit: got %v, want ErrClaimSubmitted", err)
	}

	// The same session id belongs to each miner separately.
	if _, err := l.SubmitWorkClaim(addr(2), p); err != nil {
		t.Fatalf("other miner: %v", err)
	}
	if err := l.VerifyInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestWorkClaimThroughRuntime(t *testing.T) {
	archon, miner := testKey(0), testKey(5)
	n := newTestNode(t, archon)
	ctx := context.Background()
	p := WorkClaimParams{GameID: "mandelbrot", SessionID: "run-9", DepthMetric: 2, ActiveMs: 10_000}

	supply := n.TotalSupply()
	if _, err := n.SubmitTransaction(ctx, signedTx(t, miner, 0, ModuleWork, CallSubmit, p, 0)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	want := CalculateReward(2, 10_000)
	if got := n.Balance(Address(miner.Address())); got.Cmp(want) != 0 {
		t.Fatalf("miner balance = %s, want %s", got, want)
	}
	if got := new(big.Int).Sub(n.TotalSupply(), supply); got.Cmp(want) != 0 {
		t.Fatalf("supply grew by %s, want %s", got, want)
	}
	if !n.ClaimSubmitted(Address(miner.Address()), "mandelbrot", "run-9") {
		t.Fatal("claim not visible on the node")
	}

	if _, err := n.SubmitTransaction(ctx, signedTx(t, miner, 1, ModuleWork, CallSubmit, p, 0)); !errors.Is(err, ErrClaimSubmitted) {
		t.Fatalf("duplicate: got %v, want ErrClaimSubmitted", err)
	}
	bad := p
	bad.SessionID, bad.ActiveMs = "run-10", 10
	if _, err := n.SubmitTransaction(ctx, signedTx(t, miner, 1, ModuleWork, CallSubmit, bad, 0)); !errors.Is(err, ErrInvalidClaim) {
		t.Fatalf("short claim: got %v, want ErrInvalidClaim", err)
	}
	if n.Nonce(Address(miner.Address())) != 1 {
		t.Fatal("rejected claims consumed a nonce")
	}
}

func TestFabricPool(t *testing.T) {
	l := NewLedger()
	owner, seeder, stranger := addr(1), addr(2), addr(3)
	root := [32]byte{0xfa, 0xb1}
	if err := l.Mint(owner, CGT(100), MintGenesis); err != nil {
		t.Fatal(err)
	}

	if err := l.RegisterAsset(owner, root, CGT(500)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("overdrawn pool: got %v, want ErrInsufficientBalance", err)
	}
	if err := l.RegisterAsset(owner, root, CGT(40)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := l.RegisterAsset(stranger, root, new(big.Int)); !errors.Is(err, ErrAssetExists) {
		t.Fatalf("duplicate: got %v, want ErrAssetExists", err)
	}
	if got := l.TotalSupply(); got.Cmp(CGT(60)) != 0 {
		t.Fatalf("supply = %s, want pool out of circulation", got)
	}

	if err := l.RewardSeeder(stranger, root, seeder, CGT(1)); !errors.Is(err, ErrNotAssetOwner) {
		t.Fatalf("stranger payout: got %v, want ErrNotAssetOwner", err)
	}
	if err := l.RewardSeeder(owner, [32]byte{1}, seeder, CGT(1)); !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("unknown asset: got %v, want ErrAssetNotFound", err)
	}
	if err := l.RewardSeeder(owner, root, seeder, CGT(25)); err != nil {
		t.Fatalf("reward: %v", err)
	}
	if err := l.RewardSeeder(owner, root, seeder, CGT(16)); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("overdrawn: got %v, want ErrPoolExhausted", err)
	}

	a, ok := l.FabricAsset(root)
	if !ok || a.Owner != owner || a.PoolTotal.Cmp(CGT(40)) != 0 || a.PoolRemaining.Cmp(CGT(15)) != 0 {
		t.Fatalf("asset = %+v", a)
	}
	a.PoolRemaining.SetInt64(0)
	if again, _ := l.FabricAsset(root); again.PoolRemaining.Sign() == 0 {
		t.Fatal("FabricAsset returned shared state")
	}
	if l.Balance(seeder).Cmp(CGT(25)) != 0 {
		t.Fatalf("seeder = %s", l.Balance(seeder))
	}
	if err := l.VerifyInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestFabricStateInRoot(t *testing.T) {
	l := NewLedger()
	_ = l.Mint(addr(1), CGT(10), MintGenesis)
	before, err := l.StateRoot()
	if err != nil {
		t.Fatal(err)
	}
	c := l.Clone()
	if err := c.RegisterAsset(addr(1), [32]byte{7}, CGT(1)); err != nil {
		t.Fatal(err)
	}
	after, _ := c.StateRoot()
	if after == before {
		t.Fatal("asset registration did not move the state root")
	}
	if again, _ := l.StateRoot(); again != before {
		t.Fatal("clone shares fabric state with its source")
	}
}
