package chain

import (
	"crypto/sha256"
	"fmt"
	"math/big"
)

type accountEntry struct {
	_       struct{} `cbor:",toarray"`
	Address Address
	Balance string
	Nonce   uint64
}

type profileEntry struct {
	_           struct{} `cbor:",toarray"`
	Address     Address
	DisplayName string
	Bio         string
	Handle      string
	Syzygy      uint64
	Level       uint32
	Badges      []string
	IsArchon    bool
	Rewards     string
	CreatedAt   uint64
}

type nftEntry struct {
	_          struct{} `cbor:",toarray"`
	ID         uint64
	Owner      Address
	Creator    Address
	FabricRoot [32]byte
	RoyaltyBps uint16
	Name       string
	MintedAt   uint64
}

type listingEntry struct {
	_         struct{} `cbor:",toarray"`
	ID        uint64
	TokenID   uint64
	Seller    Address
	Price     string
	Status    string
	CreatedAt uint64
	Buyer     []byte
}

type assetEntry struct {
	_             struct{} `cbor:",toarray"`
	RootHash      [32]byte
	Owner         Address
	PoolTotal     string
	PoolRemaining string
}

type stateSnapshot struct {
	_           struct{} `cbor:",toarray"`
	Supply      string
	Accounts    []accountEntry
	Profiles    []profileEntry
	NFTs        []nftEntry
	Listings    []listingEntry
	NextNFT     uint64
	NextListing uint64
	Claims      [][32]byte
	Assets      []assetEntry
}

func (l *Ledger) snapshot() stateSnapshot {
	s := stateSnapshot{
		Supply:      l.supply.String(),
		NextNFT:     l.nextNFT,
		NextListing: l.nextListing,
	}

	seen := make(map[Address]struct{}, len(l.balances)+len(l.nonces))
	for a := range l.balances {
		seen[a] = struct{}{}
	}
	for a := range l.nonces {
		seen[a] = struct{}{}
	}
	for _, a := range sortedAddresses(seen) {
		s.Accounts = append(s.Accounts, accountEntry{Address: a, Balance: l.Balance(a).String(), Nonce: l.nonces[a]})
	}

	for _, a := range sortedAddresses(l.profiles) {
		p := l.profiles[a]
		rewards := "0"
		badges := p.Badges
		if badges == nil {
			badges = []string{}
		}
		if p.RewardsEarned != nil {
			rewards = p.RewardsEarned.String()
		}
		s.Profiles = append(s.Profiles, profileEntry{
			Address:     p.Address,
			DisplayName: p.DisplayName,
			Bio:         p.Bio,
			Handle:      p.Handle,
			Syzygy:      p.SyzygyScore,
			Level:       p.Level,
			Badges:      badges,
			IsArchon:    p.IsArchon,
			Rewards:     rewards,
			CreatedAt:   p.CreatedAtHeight,
		})
	}

	for _, id := range sortedIDs(l.nfts) {
		n := l.nfts[id]
		s.NFTs = append(s.NFTs, nftEntry{
			ID:         n.ID,
			Owner:      n.Owner,
			Creator:    n.Creator,
			FabricRoot: n.FabricRootHash,
			RoyaltyBps: n.RoyaltyBps,
			Name:       n.Name,
			MintedAt:   n.MintedAtHeight,
		})
	}

	for _, id := range sortedIDs(l.listings) {
		li := l.listings[id]
		var buyer []byte
		if li.Buyer != nil {
			buyer = li.Buyer[:]
		}
		s.Listings = append(s.Listings, listingEntry{
			ID:        li.ID,
			TokenID:   li.TokenID,
			Seller:    li.Seller,
			Price:     li.Price.String(),
			Status:    string(li.Status),
			CreatedAt: li.CreatedAtHeight,
			Buyer:     buyer,
		})
	}

	s.Claims = sortedHashes(l.claims)
	for _, root := range sortedHashes(l.assets) {
		a := l.assets[root]
		s.Assets = append(s.Assets, assetEntry{
			RootHash:      root,
			Owner:         a.Owner,
			PoolTotal:     a.PoolTotal.String(),
			PoolRemaining: a.PoolRemaining.String(),
		})
	}
	return s
}

// StateRoot is sha256 over the deterministic encoding of the sorted state.
func (l *Ledger) StateRoot() ([32]byte, error) {
	b, err := encMode.Marshal(l.snapshot())
	if err != nil {
		return [32]byte{}, fmt.Errorf("encode state: %w", err)
	}
	return sha256.Sum256(b), nil
}

// VerifyInvariants checks supply bounds and that balances add up to supply.
func (l *Ledger) VerifyInvariants() error {
	if l.supply.Sign() < 0 {
		return fmt.Errorf("invariant: negative supply %s", l.supply)
	}
	if l.supply.Cmp(CGTMaxSupply) > 0 {
		return fmt.Errorf("invariant: supply %s exceeds max %s", l.supply, CGTMaxSupply)
	}
	sum := new(big.Int)
	for a, b := range l.balances {
		if b.Sign() < 0 {
			return fmt.Errorf("invariant: negative balance for %s", a)
		}
		sum.Add(sum, b)
	}
	if sum.Cmp(l.supply) != 0 {
		return fmt.Errorf("invariant: balances sum %s != supply %s", sum, l.supply)
	}
	for h, a := range l.handles {
		if p, ok := l.profiles[a]; !ok || p.Handle != h {
			return fmt.Errorf("invariant: handle %q points at %s without a matching profile", h, a)
		}
	}
	for root, a := range l.assets {
		if a.PoolRemaining.Sign() < 0 || a.PoolRemaining.Cmp(a.PoolTotal) > 0 {
			return fmt.Errorf("invariant: fabric pool %x holds %s of %s", root, a.PoolRemaining, a.PoolTotal)
		}
	}
	return nil
}
