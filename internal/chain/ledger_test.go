package chain

import (
	"errors"
	"math/big"
	"testing"
)

func addr(b byte) Address {
	var a Address
	a[0] = b
	a[31] = b
	return a
}

func TestMintRespectsWhitelistAndMaxSupply(t *testing.T) {
	l := NewLedger()
	alice := addr(1)

	if err := l.Mint(alice, CGT(10), "rogue_module"); !errors.Is(err, ErrUnauthorizedMint) {
		t.Fatalf("got %v, want ErrUnauthorizedMint", err)
	}
	if err := l.Mint(alice, big.NewInt(0), MintGenesis); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("got %v, want ErrInvalidAmount", err)
	}
	if err := l.Mint(alice, CGTMaxSupply, MintGenesis); err != nil {
		t.Fatalf("mint max: %v", err)
	}
	if err := l.Mint(alice, big.NewInt(1), MintWorkClaim); !errors.Is(err, ErrMaxSupply) {
		t.Fatalf("got %v, want ErrMaxSupply", err)
	}
	if l.TotalSupply().Cmp(CGTMaxSupply) != 0 {
		t.Fatalf("supply = %s, want %s", l.TotalSupply(), CGTMaxSupply)
	}
	if err := l.VerifyInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestTransferAndBurn(t *testing.T) {
	l := NewLedger()
	alice, bob := addr(1), addr(2)
	if err := l.Mint(alice, CGT(100), MintGenesis); err != nil {
		t.Fatal(err)
	}

	if err := l.Transfer(alice, bob, CGT(30)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := l.Balance(bob); got.Cmp(CGT(30)) != 0 {
		t.Fatalf("bob = %s, want %s", got, CGT(30))
	}
	if err := l.Transfer(bob, alice, CGT(31)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}
	if err := l.Transfer(bob, alice, big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("got %v, want ErrInvalidAmount", err)
	}

	if err := l.Burn(alice, CGT(10), MintWorkClaim); !errors.Is(err, ErrUnauthorizedBurn) {
		t.Fatalf("got %v, want ErrUnauthorizedBurn", err)
	}
	if err := l.Burn(alice, CGT(10), MintSystem); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if got := l.TotalSupply(); got.Cmp(CGT(90)) != 0 {
		t.Fatalf("supply = %s, want %s", got, CGT(90))
	}
	if err := l.VerifyInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestBalanceIsACopy(t *testing.T) {
	l := NewLedger()
	alice := addr(1)
	_ = l.Mint(alice, CGT(1), MintGenesis)
	b := l.Balance(alice)
	b.SetInt64(0)
	if l.Balance(alice).Sign() == 0 {
		t.Fatal("caller mutated ledger balance")
	}
}

func TestHandles(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"Alice", "alice", false},
		{"  @bob_99 ", "bob_99", false},
		{"ab", "", true},
		{"has space", "", true},
		{"UPPER-dash", "", true},
		{"abcdefghijklmnopqrstuvwxyz0123456", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeHandle(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("NormalizeHandle(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("NormalizeHandle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestProfileLifecycle(t *testing.T) {
	l := NewLedger()
	alice, bob := addr(1), addr(2)

	if err := l.CreateProfile(alice, "Alice", "hi", 3); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := l.CreateProfile(alice, "Again", "", 4); !errors.Is(err, ErrProfileExists) {
		t.Fatalf("got %v, want ErrProfileExists", err)
	}
	if err := l.CreateProfile(bob, "   ", "", 4); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("got %v, want ErrInvalidName", err)
	}
	_ = l.CreateProfile(bob, "Bob", "", 4)

	if err := l.SetHandle(alice, "Seeker"); err != nil {
		t.Fatalf("set handle: %v", err)
	}
	if err := l.SetHandle(bob, "seeker"); !errors.Is(err, ErrHandleTaken) {
		t.Fatalf("got %v, want ErrHandleTaken", err)
	}
	if err := l.SetHandle(alice, "oracle"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, ok := l.ProfileByHandle("seeker"); ok {
		t.Fatal("old handle still resolves")
	}
	if err := l.SetHandle(bob, "seeker"); err != nil {
		t.Fatalf("released handle: %v", err)
	}
	p, ok := l.ProfileByHandle("@Oracle")
	if !ok || p.Address != alice {
		t.Fatalf("ProfileByHandle = %v, %v", p, ok)
	}
	if err := l.SetHandle(addr(9), "nobody"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("got %v, want ErrProfileNotFound", err)
	}
	if err := l.VerifyInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestLevelCurve(t *testing.T) {
	tests := []struct {
		score uint64
		level uint32
	}{
		{0, 1},
		{999, 1},
		{1000, 2},
		{2999, 2},
		{3000, 3},
		{6000, 4},
		{10000, 5},
	}
	for _, tt := range tests {
		if got := LevelForScore(tt.score); got != tt.level {
			t.Fatalf("LevelForScore(%d) = %d, want %d", tt.score, got, tt.level)
		}
	}
}

func TestRecordSyzygyRewards(t *testing.T) {
	l := NewLedger()
	alice := addr(1)
	_ = l.CreateProfile(alice, "Alice", "", 0)

	gained, err := l.RecordSyzygy(alice, 3000)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if gained != 2 {
		t.Fatalf("gained = %d, want 2", gained)
	}
	// Level 2 pays 20 CGT and level 3 pays 30 CGT.
	if got := l.Balance(alice); got.Cmp(CGT(50)) != 0 {
		t.Fatalf("balance = %s, want %s", got, CGT(50))
	}

	prog, err := l.Progress(alice)
	if err != nil {
		t.Fatal(err)
	}
	if prog.Level != 3 || prog.CurrentLevelThreshold != 3000 || prog.NextLevelThreshold != 6000 {
		t.Fatalf("progress = %+v", prog)
	}
	if prog.ProgressRatio != 0 {
		t.Fatalf("ratio = %v, want 0", prog.ProgressRatio)
	}
	if prog.RewardsEarned.Cmp(CGT(50)) != 0 {
		t.Fatalf("rewards = %s", prog.RewardsEarned)
	}

	if _, err := l.RecordSyzygy(alice, 7000); err != nil {
		t.Fatal(err)
	}
	p, _ := l.Profile(alice)
	if !p.hasBadge(BadgeLuminary) {
		t.Fatalf("badges = %v, want Luminary", p.Badges)
	}
	if _, err := l.RecordSyzygy(alice, ^uint64(0)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("got %v, want ErrOverflow", err)
	}
	if err := l.VerifyInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func marketFixture(t *testing.T, royaltyBps uint16) (*Ledger, Address, Address, Address, uint64) {
	t.Helper()
	l := NewLedger()
	creator, seller, buyer := addr(1), addr(2), addr(3)
	_ = l.CreateProfile(creator, "Creator", "", 0)
	if _, err := l.MintNFT(seller, seller, [32]byte{}, 0, "x", 0); !errors.Is(err, ErrNotArchon) {
		t.Fatalf("got %v, want ErrNotArchon", err)
	}
	if err := l.ClaimArchon(creator); err != nil {
		t.Fatal(err)
	}
	id, err := l.MintNFT(creator, seller, [32]byte{7}, royaltyBps, "Genesis Shard", 1)
	if err != nil {
		t.Fatalf("mint nft: %v", err)
	}
	if err := l.Mint(buyer, CGT(1000), MintGenesis); err != nil {
		t.Fatal(err)
	}
	return l, creator, seller, buyer, id
}

func TestMarketplaceSale(t *testing.T) {
	l, creator, seller, buyer, token := marketFixture(t, 500)

	if _, err := l.CreateListing(buyer, token, CGT(100), 2); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("got %v, want ErrNotOwner", err)
	}
	if _, err := l.CreateListing(seller, token, big.NewInt(0), 2); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("got %v, want ErrInvalidAmount", err)
	}
	id, err := l.CreateListing(seller, token, CGT(100), 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, err := l.CreateListing(seller, token, CGT(100), 2); !errors.Is(err, ErrAlreadyListed) {
		t.Fatalf("got %v, want ErrAlreadyListed", err)
	}
	if _, err := l.BuyListing(seller, id); !errors.Is(err, ErrSelfPurchase) {
		t.Fatalf("got %v, want ErrSelfPurchase", err)
	}

	sale, err := l.BuyListing(buyer, id)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if sale.Royalty.Cmp(CGT(5)) != 0 || sale.Proceeds.Cmp(CGT(95)) != 0 {
		t.Fatalf("sale = royalty %s proceeds %s", sale.Royalty, sale.Proceeds)
	}
	if got := l.Balance(creator); got.Cmp(CGT(5)) != 0 {
		t.Fatalf("creator = %s", got)
	}
	if got := l.Balance(seller); got.Cmp(CGT(95)) != 0 {
		t.Fatalf("seller = %s", got)
	}
	if got := l.Balance(buyer); got.Cmp(CGT(900)) != 0 {
		t.Fatalf("buyer = %s", got)
	}
	n, _ := l.NFT(token)
	if n.Owner != buyer {
		t.Fatalf("owner = %s, want buyer", n.Owner)
	}
	li, _ := l.Listing(id)
	if li.Status != ListingSold || li.Buyer == nil || *li.Buyer != buyer {
		t.Fatalf("listing = %+v", li)
	}
	if _, err := l.BuyListing(buyer, id); !errors.Is(err, ErrListingInactive) {
		t.Fatalf("got %v, want ErrListingInactive", err)
	}
	if len(l.ActiveListings()) != 0 {
		t.Fatal("sold listing still active")
	}
	if err := l.VerifyInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestMarketplaceFullRoyaltyAndCancel(t *testing.T) {
	l, creator, seller, buyer, token := marketFixture(t, MaxRoyaltyBps)

	id, _ := l.CreateListing(seller, token, CGT(10), 2)
	if err := l.CancelListing(buyer, id); !errors.Is(err, ErrNotSeller) {
		t.Fatalf("got %v, want ErrNotSeller", err)
	}
	if err := l.CancelListing(seller, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := l.CancelListing(seller, id); !errors.Is(err, ErrListingInactive) {
		t.Fatalf("got %v, want ErrListingInactive", err)
	}

	id, _ = l.CreateListing(seller, token, CGT(10), 3)
	sale, err := l.BuyListing(buyer, id)
	if err != nil {
		t.Fatal(err)
	}
	if sale.Royalty.Cmp(CGT(10)) != 0 || sale.Proceeds.Sign() != 0 {
		t.Fatalf("sale = royalty %s proceeds %s", sale.Royalty, sale.Proceeds)
	}
	if l.Balance(creator).Cmp(CGT(10)) != 0 {
		t.Fatalf("creator = %s", l.Balance(creator))
	}
}

func TestBuyFailsWhenSellerNoLongerOwns(t *testing.T) {
	l, _, seller, buyer, token := marketFixture(t, 0)
	id, _ := l.CreateListing(seller, token, CGT(1), 2)
	l.nfts[token].Owner = addr(8)
	if _, err := l.BuyListing(buyer, id); !errors.Is(err, ErrSellerNotOwner) {
		t.Fatalf("got %v, want ErrSellerNotOwner", err)
	}
	if l.Balance(buyer).Cmp(CGT(1000)) != 0 {
		t.Fatal("buyer charged for failed purchase")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	l, _, seller, _, token := marketFixture(t, 100)
	before, err := l.StateRoot()
	if err != nil {
		t.Fatal(err)
	}
	c := l.Clone()
	after, _ := c.StateRoot()
	if before != after {
		t.Fatal("clone has a different state root")
	}

	_, _ = c.CreateListing(seller, token, CGT(1), 5)
	_ = c.Mint(seller, CGT(1), MintGenesis)
	if root, _ := l.StateRoot(); root != before {
		t.Fatal("mutating the clone changed the original")
	}
	if root, _ := c.StateRoot(); root == before {
		t.Fatal("clone root did not change")
	}
}
