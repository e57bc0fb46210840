package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/nidhogg/demiurge/internal/chain"
	"github.com/nidhogg/demiurge/sdk"
)

type buildWorkClaimParams struct {
	buildParams
	GameID      string  `json:"game_id"`
	SessionID   string  `json:"session_id"`
	DepthMetric float64 `json:"depth_metric"`
	ActiveMs    uint64  `json:"active_ms"`
	Extra       string  `json:"extra,omitempty"`
}

type rootParams struct {
	FabricRootHash string `json:"fabric_root_hash"`
}

type buildRegisterAssetParams struct {
	buildParams
	FabricRootHash string `json:"fabric_root_hash"`
	InitialPool    string `json:"initial_pool"`
}

type buildRewardSeederParams struct {
	buildParams
	FabricRootHash string `json:"fabric_root_hash"`
	Seeder         string `json:"seeder"`
	Amount         string `json:"amount"`
}

func (s *Server) registerWork() {
	s.register("cgt_buildWorkClaimTx", s.buildWorkClaim)
	s.register("fabric_getAsset", s.fabricAsset)
	s.register("fabric_buildRegisterAssetTx", s.buildRegisterAsset)
	s.register("fabric_buildRewardSeederTx", s.buildRewardSeeder)
}

func parseRoot(s string) ([32]byte, error) {
	var root [32]byte
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(root) {
		return root, invalidParams("fabric_root_hash must be 32 hex bytes")
	}
	copy(root[:], raw)
	return root, nil
}

// buildWorkClaim rejects out-of-range metrics before building.
func (s *Server) buildWorkClaim(_ context.Context, raw json.RawMessage) (any, error) {
	var p buildWorkClaimParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	claim := chain.WorkClaimParams{
		GameID:      p.GameID,
		SessionID:   p.SessionID,
		DepthMetric: p.DepthMetric,
		ActiveMs:    p.ActiveMs,
		Extra:       p.Extra,
	}
	if err := claim.Validate(); err != nil {
		return nil, err
	}
	out, err := s.build(p.buildParams, chain.ModuleWork, chain.CallSubmit, claim)
	if err != nil {
		return nil, err
	}
	return sdk.WorkClaimTx{
		TxHex:          out.(sdk.UnsignedTx).TxHex,
		RewardEstimate: chain.CalculateReward(p.DepthMetric, p.ActiveMs).String(),
	}, nil
}

// fabricAsset returns null for unknown roots.
func (s *Server) fabricAsset(_ context.Context, raw json.RawMessage) (any, error) {
	var p rootParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	root, err := parseRoot(p.FabricRootHash)
	if err != nil {
		return nil, err
	}
	a, ok := s.node.FabricAsset(root)
	if !ok {
		return nil, nil
	}
	v := assetView(a)
	return &v, nil
}

func (s *Server) buildRegisterAsset(_ context.Context, raw json.RawMessage) (any, error) {
	var p buildRegisterAssetParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	root, err := parseRoot(p.FabricRootHash)
	if err != nil {
		return nil, err
	}
	pool, err := chain.ParseAmount(p.InitialPool)
	if err != nil {
		return nil, err
	}
	return s.build(p.buildParams, chain.ModuleFabric, chain.CallRegisterAsset, chain.RegisterAssetParams{FabricRootHash: root, InitialPool: pool.String()})
}

func (s *Server) buildRewardSeeder(_ context.Context, raw json.RawMessage) (any, error) {
	var p buildRewardSeederParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	root, err := parseRoot(p.FabricRootHash)
	if err != nil {
		return nil, err
	}
	seeder, err := parseAddress("seeder", p.Seeder)
	if err != nil {
		return nil, err
	}
	amt, err := chain.ParseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	if amt.Sign() == 0 {
		return nil, invalidParams("amount must be positive")
	}
	return s.build(p.buildParams, chain.ModuleFabric, chain.CallRewardSeeder, chain.RewardSeederParams{FabricRootHash: root, Seeder: seeder, Amount: amt.String()})
}
