package chain

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// Address is an Ed25519 public key identifying an account.
type Address [32]byte

// GenesisAuthority is the all-zero address used for genesis and system mints.
var GenesisAuthority Address

// ParseAddress decodes 64 hex characters, with or without a 0x prefix.
func ParseAddress(s string) (Address, error) {
	var a Address
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 64 {
		return a, fmt.Errorf("%w: expected 64 hex chars, got %d", ErrInvalidAddress, len(s))
	}
	if _, err := hex.Decode(a[:], []byte(s)); err != nil {
		return a, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return a, nil
}

// String renders the address as lowercase hex without a prefix.
func (a Address) String() string { return hex.EncodeToString(a[:]) }

// IsZero reports whether a is the genesis authority.
func (a Address) IsZero() bool { return a == GenesisAuthority }

func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Address) UnmarshalText(b []byte) error {
	parsed, err := ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// CGT base units per whole token (10^8).
var unitsPerCGT = big.NewInt(100_000_000)

// CGT returns n whole tokens in base units.
func CGT(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), unitsPerCGT)
}

// ParseAmount parses a non-negative decimal amount of base units.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative", ErrInvalidAmount)
	}
	return v, nil
}

// FormatCGT renders base units as a decimal CGT amount, e.g. "12.5".
func FormatCGT(v *big.Int) string {
	if v == nil {
		return "0"
	}
	neg := v.Sign() < 0
	q, r := new(big.Int).QuoRem(new(big.Int).Abs(v), unitsPerCGT, new(big.Int))
	s := q.String()
	if r.Sign() != 0 {
		frac := strings.TrimRight(fmt.Sprintf("%08d", r.Int64()), "0")
		s += "." + frac
	}
	if neg {
		s = "-" + s
	}
	return s
}

// ParseCGT parses a non-negative decimal CGT amount with at most eight
// fractional digits into base units.
func ParseCGT(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	if len(frac) > 8 {
		return nil, fmt.Errorf("%w: %q has more than 8 decimals", ErrInvalidAmount, s)
	}
	units, err := ParseAmount(whole + frac + strings.Repeat("0", 8-len(frac)))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return units, nil
}
