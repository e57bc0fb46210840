package chain

import (
	"bytes"
	"math/big"
	"sort"
)

// Ledger is the full chain state. It is not safe for concurrent use; Node
// serializes access and executes each call against a clone.
type Ledger struct {
	balances map[Address]*big.Int
	nonces   map[Address]uint64
	supply   *big.Int

	profiles map[Address]*Profile
	handles  map[string]Address

	nfts        map[uint64]*NFT
	nextNFT     uint64
	listings    map[uint64]*Listing
	nextListing uint64

	claims map[[32]byte]struct{}
	assets map[[32]byte]*FabricAsset
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances:    make(map[Address]*big.Int),
		nonces:      make(map[Address]uint64),
		supply:      new(big.Int),
		profiles:    make(map[Address]*Profile),
		handles:     make(map[string]Address),
		nfts:        make(map[uint64]*NFT),
		nextNFT:     1,
		listings:    make(map[uint64]*Listing),
		nextListing: 1,
		claims:      make(map[[32]byte]struct{}),
		assets:      make(map[[32]byte]*FabricAsset),
	}
}

// Clone deep-copies the ledger.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{
		balances:    make(map[Address]*big.Int, len(l.balances)),
		nonces:      make(map[Address]uint64, len(l.nonces)),
		supply:      new(big.Int).Set(l.supply),
		profiles:    make(map[Address]*Profile, len(l.profiles)),
		handles:     make(map[string]Address, len(l.handles)),
		nfts:        make(map[uint64]*NFT, len(l.nfts)),
		nextNFT:     l.nextNFT,
		listings:    make(map[uint64]*Listing, len(l.listings)),
		nextListing: l.nextListing,
		claims:      make(map[[32]byte]struct{}, len(l.claims)),
		assets:      make(map[[32]byte]*FabricAsset, len(l.assets)),
	}
	for a, b := range l.balances {
		c.balances[a] = new(big.Int).Set(b)
	}
	for a, n := range l.nonces {
		c.nonces[a] = n
	}
	for a, p := range l.profiles {
		c.profiles[a] = p.clone()
	}
	for h, a := range l.handles {
		c.handles[h] = a
	}
	for id, n := range l.nfts {
		cp := *n
		c.nfts[id] = &cp
	}
	for id, li := range l.listings {
		c.listings[id] = li.clone()
	}
	for k := range l.claims {
		c.claims[k] = struct{}{}
	}
	for root, a := range l.assets {
		c.assets[root] = a.clone()
	}
	return c
}

func sortedAddresses[V any](m map[Address]V) []Address {
	out := make([]Address, 0, len(m))
	for a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

func sortedHashes[V any](m map[[32]byte]V) [][32]byte {
	out := make([][32]byte, 0, len(m))
	for h := range m {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

func sortedIDs[V any](m map[uint64]V) []uint64 {
	out := make([]uint64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
