package chain

import (
	"fmt"
	"math/big"
)

// FabricAsset anchors a fabric root hash and the CGT pool its owner set aside
// for seeders.
type FabricAsset struct {
	Owner         Address  `json:"owner"`
	RootHash      [32]byte `json:"-"`
	PoolTotal     *big.Int `json:"-"`
	PoolRemaining *big.Int `json:"-"`
}

func (a *FabricAsset) clone() *FabricAsset {
	cp := *a
	cp.PoolTotal = new(big.Int).Set(a.PoolTotal)
	cp.PoolRemaining = new(big.Int).Set(a.PoolRemaining)
	return &cp
}

type RegisterAssetParams struct {
	FabricRootHash [32]byte `cbor:"fabric_root_hash"`
	InitialPool    string   `cbor:"initial_pool"`
}

type RewardSeederParams struct {
	FabricRootHash [32]byte `cbor:"fabric_root_hash"`
	Seeder         Address  `cbor:"seeder"`
	Amount         string   `cbor:"amount"`
}

// FabricAsset returns a copy of the asset anchored at root.
func (l *Ledger) FabricAsset(root [32]byte) (*FabricAsset, bool) {
	a, ok := l.assets[root]
	if !ok {
		return nil, false
	}
	return a.clone(), true
}

// RegisterAsset anchors root for owner. The pool leaves circulation until it
// is paid out to seeders.
func (l *Ledger) RegisterAsset(owner Address, root [32]byte, pool *big.Int) error {
	if pool.Sign() < 0 {
		return fmt.Errorf("%w: pool must not be negative", ErrInvalidAmount)
	}
	if _, ok := l.assets[root]; ok {
		return fmt.Errorf("%w: %x", ErrAssetExists, root)
	}
	if pool.Sign() > 0 {
		if err := l.burn(owner, pool); err != nil {
			return fmt.Errorf("seed fabric pool: %w", err)
		}
	}
	l.assets[root] = &FabricAsset{
		Owner:         owner,
		RootHash:      root,
		PoolTotal:     new(big.Int).Set(pool),
		PoolRemaining: new(big.Int).Set(pool),
	}
	return nil
}

// RewardSeeder pays amount out of the asset pool. Only the asset owner may
// direct payouts.
func (l *Ledger) RewardSeeder(caller Address, root [32]byte, seeder Address, amount *big.Int) error {
	a, ok := l.assets[root]
	if !ok {
		return fmt.Errorf("%w: %x", ErrAssetNotFound, root)
	}
	if a.Owner != caller {
		return fmt.Errorf("%w: %s", ErrNotAssetOwner, caller)
	}
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: reward must be positive", ErrInvalidAmount)
	}
	if a.PoolRemaining.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrPoolExhausted, a.PoolRemaining, amount)
	}
	if err := l.Mint(seeder, amount, MintFabricManager); err != nil {
		return err
	}
	a.PoolRemaining.Sub(a.PoolRemaining, amount)
	return nil
}

func execRegisterAsset(l *Ledger, tx *Transaction, _ uint64) error {
	var p RegisterAssetParams
	if err := tx.DecodePayload(&p); err != nil {
		return err
	}
	pool, err := ParseAmount(p.InitialPool)
	if err != nil {
		return err
	}
	return l.RegisterAsset(tx.From, p.FabricRootHash, pool)
}

func execRewardSeeder(l *Ledger, tx *Transaction, _ uint64) error {
	var p RewardSeederParams
	if err := tx.DecodePayload(&p); err != nil {
		return err
	}
	amt, err := parsePositive(p.Amount)
	if err != nil {
		return err
	}
	return l.RewardSeeder(tx.From, p.FabricRootHash, p.Seeder, amt)
}
