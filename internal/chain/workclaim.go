package chain

import (
	"crypto/sha256"
	"fmt"
	"math"
	"math/big"
	"strings"
)

// Work claim limits.
const (
	DepthFactor    = 100.0 // CGT per unit of depth
	TimeFactor     = 0.1   // CGT per second of activity
	MinActiveMs    = 1000
	MaxDepthMetric = 1_000_000.0
	maxClaimField  = 128
)

// MaxRewardPerClaim is 1M CGT in base units.
var MaxRewardPerClaim = CGT(1_000_000)

// WorkClaimParams reports one arcade mining session.
type WorkClaimParams struct {
	GameID      string  `cbor:"game_id"`
	SessionID   string  `cbor:"session_id"`
	DepthMetric float64 `cbor:"depth_metric"`
	ActiveMs    uint64  `cbor:"active_ms"`
	Extra       string  `cbor:"extra"`
}

// CalculateReward converts work metrics into base units:
// depth*DepthFactor + seconds*TimeFactor CGT, capped at MaxRewardPerClaim.
func CalculateReward(depthMetric float64, activeMs uint64) *big.Int {
	cgt := depthMetric*DepthFactor + float64(activeMs)/1000*TimeFactor
	switch {
	case math.IsNaN(cgt) || cgt <= 0:
		return new(big.Int)
	case cgt >= 1_000_000:
		return new(big.Int).Set(MaxRewardPerClaim)
	}
	base := new(big.Int).SetUint64(uint64(cgt * 1e8))
	if base.Cmp(MaxRewardPerClaim) > 0 {
		base.Set(MaxRewardPerClaim)
	}
	return base
}

// Validate checks the claim bounds.
func (p WorkClaimParams) Validate() error {
	switch {
	case p.ActiveMs < MinActiveMs:
		return fmt.Errorf("%w: active_ms %d is below minimum %d", ErrInvalidClaim, p.ActiveMs, MinActiveMs)
	case math.IsNaN(p.DepthMetric) || p.DepthMetric < 0:
		return fmt.Errorf("%w: depth_metric must be non-negative", ErrInvalidClaim)
	case p.DepthMetric > MaxDepthMetric:
		return fmt.Errorf("%w: depth_metric %g exceeds maximum %g", ErrInvalidClaim, p.DepthMetric, MaxDepthMetric)
	case strings.TrimSpace(p.GameID) == "":
		return fmt.Errorf("%w: game_id is required", ErrInvalidClaim)
	case strings.TrimSpace(p.SessionID) == "":
		return fmt.Errorf("%w: session_id is required", ErrInvalidClaim)
	case len(p.GameID) > maxClaimField || len(p.SessionID) > maxClaimField:
		return fmt.Errorf("%w: game_id and session_id are limited to %d bytes", ErrInvalidClaim, maxClaimField)
	}
	return nil
}

func claimKey(a Address, gameID, sessionID string) [32]byte {
	h := sha256.New()
	h.Write(a[:])
	h.Write([]byte(gameID))
	h.Write([]byte{0})
	h.Write([]byte(sessionID))
	return [32]byte(h.Sum(nil))
}

// ClaimSubmitted reports whether a already claimed the session.
func (l *Ledger) ClaimSubmitted(a Address, gameID, sessionID string) bool {
	_, ok := l.claims[claimKey(a, gameID, sessionID)]
	return ok
}

// SubmitWorkClaim mints the reward for one session to its miner. Each
// (miner, game, session) pays out once.
func (l *Ledger) SubmitWorkClaim(miner Address, p WorkClaimParams) (*big.Int, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	key := claimKey(miner, p.GameID, p.SessionID)
	if _, ok := l.claims[key]; ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrClaimSubmitted, p.GameID, p.SessionID)
	}
	reward := CalculateReward(p.DepthMetric, p.ActiveMs)
	if err := l.Mint(miner, reward, MintWorkClaim); err != nil {
		return nil, err
	}
	l.claims[key] = struct{}{}
	return reward, nil
}

func execWorkClaim(l *Ledger, tx *Transaction, _ uint64) error {
	var p WorkClaimParams
	if err := tx.DecodePayload(&p); err != nil {
		return err
	}
	_, err := l.SubmitWorkClaim(tx.From, p)
	return err
}
