package chain

import (
	"fmt"
	"math"
	"math/big"
	"strings"
)

const (
	// LuminaryThreshold is the syzygy score that earns the Luminary badge.
	LuminaryThreshold uint64 = 10_000
	BadgeLuminary            = "Luminary"
	BadgeArchon              = "Archon"

	handleMinLen = 3
	handleMaxLen = 32
	nameMaxLen   = 64
)

// Profile is an UrgeID identity.
type Profile struct {
	Address         Address  `json:"address"`
	DisplayName     string   `json:"display_name"`
	Bio             string   `json:"bio,omitempty"`
	Handle          string   `json:"handle,omitempty"`
	SyzygyScore     uint64   `json:"syzygy_score"`
	Level           uint32   `json:"level"`
	Badges          []string `json:"badges"`
	IsArchon        bool     `json:"is_archon"`
	CreatedAtHeight uint64   `json:"created_at_height"`
	// RewardsEarned is the CGT minted to this profile by level rewards.
	RewardsEarned *big.Int `json:"-"`
}

func (p *Profile) clone() *Profile {
	cp := *p
	cp.Badges = make([]string, len(p.Badges))
	copy(cp.Badges, p.Badges)
	if p.RewardsEarned != nil {
		cp.RewardsEarned = new(big.Int).Set(p.RewardsEarned)
	}
	return &cp
}

func (p *Profile) hasBadge(b string) bool {
	for _, have := range p.Badges {
		if have == b {
			return true
		}
	}
	return false
}

// Progress describes how far a profile is through its current level.
type Progress struct {
	Address               Address  `json:"address"`
	Level                 uint32   `json:"level"`
	SyzygyScore           uint64   `json:"syzygy_score"`
	CurrentLevelThreshold uint64   `json:"current_level_threshold"`
	NextLevelThreshold    uint64   `json:"next_level_threshold"`
	ProgressRatio         float64  `json:"progress_ratio"`
	RewardsEarned         *big.Int `json:"-"`
}

// LevelThreshold is the syzygy score needed to reach level.
// Level 1 starts at 0, level 2 at 1000, level 3 at 3000.
func LevelThreshold(level uint32) uint64 {
	if level <= 1 {
		return 0
	}
	l := uint64(level)
	return 500 * l * (l - 1)
}

// LevelForScore returns the highest level whose threshold is <= score.
func LevelForScore(score uint64) uint32 {
	// threshold(L) <= score  <=>  L(L-1) <= score/500
	q := score / 500
	l := uint64((1 + math.Sqrt(1+4*float64(q))) / 2)
	if l < 1 {
		l = 1
	}
	for l > 1 && l*(l-1) > q {
		l--
	}
	for (l+1)*l <= q {
		l++
	}
	if l > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(l)
}

// LevelReward is the CGT minted when a profile reaches level.
func LevelReward(level uint32) *big.Int {
	return CGT(10 * int64(level))
}

// NormalizeHandle lowercases and trims h and validates its charset and length.
func NormalizeHandle(h string) (string, error) {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(h), "@")))
	if len(h) < handleMinLen || len(h) > handleMaxLen {
		return "", fmt.Errorf("%w: length must be %d-%d", ErrInvalidHandle, handleMinLen, handleMaxLen)
	}
	for _, r := range h {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '_' {
			return "", fmt.Errorf("%w: %q contains %q", ErrInvalidHandle, h, r)
		}
	}
	return h, nil
}

// Profile returns a copy of the profile for a.
func (l *Ledger) Profile(a Address) (*Profile, bool) {
	p, ok := l.profiles[a]
	if !ok {
		return nil, false
	}
	return p.clone(), true
}

// ProfileByHandle resolves a handle to its profile.
func (l *Ledger) ProfileByHandle(h string) (*Profile, bool) {
	norm, err := NormalizeHandle(h)
	if err != nil {
		return nil, false
	}
	a, ok := l.handles[norm]
	if !ok {
		return nil, false
	}
	return l.Profile(a)
}

// IsArchon reports whether a holds the archon flag.
func (l *Ledger) IsArchon(a Address) bool {
	p, ok := l.profiles[a]
	return ok && p.IsArchon
}

// CreateProfile registers a new UrgeID.
func (l *Ledger) CreateProfile(a Address, displayName, bio string, height uint64) error {
	if _, ok := l.profiles[a]; ok {
		return fmt.Errorf("%w: %s", ErrProfileExists, a)
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" || len(displayName) > nameMaxLen {
		return fmt.Errorf("%w: must be 1-%d chars", ErrInvalidName, nameMaxLen)
	}
	l.profiles[a] = &Profile{
		Address:         a,
		DisplayName:     displayName,
		Bio:             strings.TrimSpace(bio),
		Level:           1,
		Badges:          []string{},
		CreatedAtHeight: height,
		RewardsEarned:   new(big.Int),
	}
	return nil
}

// SetHandle assigns a unique handle, releasing any previous one.
func (l *Ledger) SetHandle(a Address, handle string) error {
	p, ok := l.profiles[a]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, a)
	}
	norm, err := NormalizeHandle(handle)
	if err != nil {
		return err
	}
	if owner, taken := l.handles[norm]; taken {
		if owner == a {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrHandleTaken, norm)
	}
	if p.Handle != "" {
		delete(l.handles, p.Handle)
	}
	p.Handle = norm
	l.handles[norm] = a
	return nil
}

// RecordSyzygy adds to a profile's score, awarding badges and level rewards.
// It returns the levels gained.
func (l *Ledger) RecordSyzygy(a Address, amount uint64) (uint32, error) {
	p, ok := l.profiles[a]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrProfileNotFound, a)
	}
	if p.SyzygyScore > math.MaxUint64-amount {
		return 0, fmt.Errorf("%w: syzygy score", ErrOverflow)
	}
	p.SyzygyScore += amount
	if p.SyzygyScore >= LuminaryThreshold && !p.hasBadge(BadgeLuminary) {
		p.Badges = append(p.Badges, BadgeLuminary)
	}

	newLevel := LevelForScore(p.SyzygyScore)
	gained := uint32(0)
	for lvl := p.Level + 1; lvl <= newLevel; lvl++ {
		reward := LevelReward(lvl)
		if err := l.Mint(a, reward, MintUrgeIDLevelRewards); err != nil {
			return 0, fmt.Errorf("level %d reward: %w", lvl, err)
		}
		if p.RewardsEarned == nil {
			p.RewardsEarned = new(big.Int)
		}
		p.RewardsEarned.Add(p.RewardsEarned, reward)
		gained++
	}
	if newLevel > p.Level {
		p.Level = newLevel
	}
	return gained, nil
}

// ClaimArchon marks a profile as an archon.
func (l *Ledger) ClaimArchon(a Address) error {
	p, ok := l.profiles[a]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, a)
	}
	p.IsArchon = true
	if !p.hasBadge(BadgeArchon) {
		p.Badges = append(p.Badges, BadgeArchon)
	}
	return nil
}

// Progress returns level progress for a.
func (l *Ledger) Progress(a Address) (*Progress, error) {
	p, ok := l.profiles[a]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, a)
	}
	cur := LevelThreshold(p.Level)
	next := LevelThreshold(p.Level + 1)
	ratio := 1.0
	if next > cur {
		ratio = float64(p.SyzygyScore-cur) / float64(next-cur)
		if ratio > 1 {
			ratio = 1
		}
	}
	rewards := new(big.Int)
	if p.RewardsEarned != nil {
		rewards.Set(p.RewardsEarned)
	}
	return &Progress{
		Address:               a,
		Level:                 p.Level,
		SyzygyScore:           p.SyzygyScore,
		CurrentLevelThreshold: cur,
		NextLevelThreshold:    next,
		ProgressRatio:         ratio,
		RewardsEarned:         rewards,
	}, nil
}
