package rpc

import (
	"encoding/hex"
	"math/big"

	"github.com/nidhogg/demiurge/internal/archon"
	"github.com/nidhogg/demiurge/internal/chain"
	"github.com/nidhogg/demiurge/sdk"
)

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func profileView(p *chain.Profile) *sdk.Profile {
	badges := p.Badges
	if badges == nil {
		badges = []string{}
	}
	return &sdk.Profile{
		Address:         p.Address.String(),
		DisplayName:     p.DisplayName,
		Bio:             p.Bio,
		Handle:          p.Handle,
		Level:           p.Level,
		SyzygyScore:     p.SyzygyScore,
		RewardsEarned:   amount(p.RewardsEarned),
		Badges:          badges,
		IsArchon:        p.IsArchon,
		CreatedAtHeight: p.CreatedAtHeight,
	}
}

func progressView(p *chain.Progress) *sdk.Progress {
	return &sdk.Progress{
		Address:               p.Address.String(),
		Level:                 p.Level,
		SyzygyScore:           p.SyzygyScore,
		CurrentLevelThreshold: p.CurrentLevelThreshold,
		NextLevelThreshold:    p.NextLevelThreshold,
		ProgressRatio:         p.ProgressRatio,
		RewardsEarned:         amount(p.RewardsEarned),
	}
}

func nftView(n *chain.NFT) sdk.NFT {
	return sdk.NFT{
		ID:             n.ID,
		Owner:          n.Owner.String(),
		Creator:        n.Creator.String(),
		FabricRootHash: hex.EncodeToString(n.FabricRootHash[:]),
		RoyaltyBps:     n.RoyaltyBps,
		Name:           n.Name,
		MintedAtHeight: n.MintedAtHeight,
	}
}

func assetView(a *chain.FabricAsset) sdk.FabricAsset {
	return sdk.FabricAsset{
		FabricRootHash: hex.EncodeToString(a.RootHash[:]),
		Owner:          a.Owner.String(),
		PoolTotal:      amount(a.PoolTotal),
		PoolRemaining:  amount(a.PoolRemaining),
	}
}

func listingView(l *chain.Listing) sdk.Listing {
	v := sdk.Listing{
		ID:              l.ID,
		TokenID:         l.TokenID,
		Seller:          l.Seller.String(),
		Price:           amount(l.Price),
		Status:          string(l.Status),
		CreatedAtHeight: l.CreatedAtHeight,
	}
	if l.Buyer != nil {
		v.Buyer = l.Buyer.String()
	}
	return v
}

func txView(r *chain.TxRecord) sdk.Transaction {
	v := sdk.Transaction{
		Hash:      r.Hash,
		From:      r.From.String(),
		Nonce:     r.Nonce,
		ModuleID:  r.ModuleID,
		CallID:    r.CallID,
		Fee:       r.Fee,
		System:    r.System,
		Height:    r.Height,
		Timestamp: r.Timestamp,
	}
	if r.To != nil {
		v.To = r.To.String()
	}
	if r.Tx != nil {
		v.Payload = hex.EncodeToString(r.Tx.Payload)
		v.Signature = hex.EncodeToString(r.Tx.Signature)
	}
	return v
}

func vectorView(v *archon.StateVector) *sdk.StateVector {
	if v == nil {
		return nil
	}
	return &sdk.StateVector{
		RuntimeVersion:       v.RuntimeVersion,
		StateRoot:            v.StateRoot,
		NodeID:               v.NodeID,
		InvariantsOK:         v.InvariantsOK,
		IntegrityHash:        v.IntegrityHash,
		BlockHeight:          v.BlockHeight,
		Timestamp:            v.Timestamp,
		RuntimeRegistryHash:  v.RuntimeRegistryHash,
		SDKCompatibilityHash: v.SDKCompatibilityHash,
		SovereigntySealHash:  v.SovereigntySealHash,
	}
}

func vectorFromView(v *sdk.StateVector) *archon.StateVector {
	return &archon.StateVector{
		RuntimeVersion:       v.RuntimeVersion,
		StateRoot:            v.StateRoot,
		NodeID:               v.NodeID,
		InvariantsOK:         v.InvariantsOK,
		IntegrityHash:        v.IntegrityHash,
		BlockHeight:          v.BlockHeight,
		Timestamp:            v.Timestamp,
		RuntimeRegistryHash:  v.RuntimeRegistryHash,
		SDKCompatibilityHash: v.SDKCompatibilityHash,
		SovereigntySealHash:  v.SovereigntySealHash,
	}
}

func directiveView(d archon.Directive) sdk.Directive {
	return sdk.Directive{
		Code:        string(d.Code),
		Detail:      d.Detail,
		Description: d.Description(),
		Priority:    d.Priority(),
	}
}
