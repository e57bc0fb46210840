package chain

import (
	"fmt"
	"math/big"
)

const (
	CGTName     = "Creator God Token"
	CGTSymbol   = "CGT"
	CGTDecimals = 8
)

// CGTMaxSupply is 369 billion CGT in base units.
var CGTMaxSupply = CGT(369_000_000_000)

// Mint sources. Anything else is rejected.
const (
	MintGenesis            = "genesis"
	MintSystem             = "system"
	MintFabricManager      = ModuleFabric
	MintUrgeIDLevelRewards = "urgeid_level_rewards"
	MintWorkClaim          = ModuleWork
)

var allowedMinters = map[string]bool{
	MintGenesis:            true,
	MintSystem:             true,
	MintFabricManager:      true,
	MintUrgeIDLevelRewards: true,
	MintWorkClaim:          true,
}

// Balance returns a copy of the CGT balance of a.
func (l *Ledger) Balance(a Address) *big.Int {
	if b, ok := l.balances[a]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Nonce returns the next expected nonce for a.
func (l *Ledger) Nonce(a Address) uint64 { return l.nonces[a] }

// TotalSupply returns a copy of the circulating supply.
func (l *Ledger) TotalSupply() *big.Int { return new(big.Int).Set(l.supply) }

func (l *Ledger) credit(a Address, amount *big.Int) {
	b, ok := l.balances[a]
	if !ok {
		b = new(big.Int)
		l.balances[a] = b
	}
	b.Add(b, amount)
}

func (l *Ledger) debit(a Address, amount *big.Int) error {
	b := l.balances[a]
	if b == nil || b.Cmp(amount) < 0 {
		have := "0"
		if b != nil {
			have = b.String()
		}
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, have, amount)
	}
	b.Sub(b, amount)
	if b.Sign() == 0 {
		delete(l.balances, a)
	}
	return nil
}

// Mint creates new CGT for to on behalf of a whitelisted source.
func (l *Ledger) Mint(to Address, amount *big.Int, source string) error {
	if !allowedMinters[source] {
		return fmt.Errorf("%w: %q", ErrUnauthorizedMint, source)
	}
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: mint amount must be positive", ErrInvalidAmount)
	}
	next := new(big.Int).Add(l.supply, amount)
	if next.Cmp(CGTMaxSupply) > 0 {
		return fmt.Errorf("%w: supply would reach %s", ErrMaxSupply, next)
	}
	l.supply = next
	l.credit(to, amount)
	return nil
}

// Burn destroys CGT held by from. Only the system source may burn.
func (l *Ledger) Burn(from Address, amount *big.Int, source string) error {
	if source != MintSystem {
		return fmt.Errorf("%w: %q", ErrUnauthorizedBurn, source)
	}
	return l.burn(from, amount)
}

func (l *Ledger) burn(from Address, amount *big.Int) error {
	if err := l.debit(from, amount); err != nil {
		return err
	}
	l.supply.Sub(l.supply, amount)
	return nil
}

// Transfer moves amount from one account to another.
func (l *Ledger) Transfer(from, to Address, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: transfer amount must be positive", ErrInvalidAmount)
	}
	if err := l.debit(from, amount); err != nil {
		return err
	}
	l.credit(to, amount)
	return nil
}
