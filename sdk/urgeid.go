package sdk

import (
	"context"

	"github.com/nidhogg/demiurge/internal/chain"
)

// UrgeIDAPI wraps the urgeid_* methods.
type UrgeIDAPI struct{ c *Client }

// Profile returns nil when address has no profile.
func (a *UrgeIDAPI) Profile(ctx context.Context, address string) (*Profile, error) {
	addr, err := ValidateAddress(address)
	if err != nil {
		return nil, err
	}
	var out *Profile
	if err := a.c.Call(ctx, "urgeid_get", addressArg{addr}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *UrgeIDAPI) ByHandle(ctx context.Context, handle string) (*Profile, error) {
	var out *Profile
	if err := a.c.Call(ctx, "urgeid_getByHandle", map[string]string{"handle": handle}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *UrgeIDAPI) Progress(ctx context.Context, address string) (*Progress, error) {
	addr, err := ValidateAddress(address)
	if err != nil {
		return nil, err
	}
	var out *Progress
	if err := a.c.Call(ctx, "urgeid_getProgress", addressArg{addr}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create registers a profile directly. Dev-mode nodes only.
func (a *UrgeIDAPI) Create(ctx context.Context, address, displayName, bio string) (*Profile, error) {
	addr, err := ValidateAddress(address)
	if err != nil {
		return nil, err
	}
	var out Profile
	params := map[string]string{"address": addr, "display_name": displayName, "bio": bio}
	if err := a.c.Call(ctx, "urgeid_create", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetHandle signs and submits a handle claim.
func (a *UrgeIDAPI) SetHandle(ctx context.Context, from Signer, handle string, fee uint64) (*SendResult, error) {
	norm, err := chain.NormalizeHandle(handle)
	if err != nil {
		return nil, &Error{Kind: KindTransaction, Message: handle, Err: err}
	}
	cgt := a.c.CGT()
	nonce, err := cgt.Nonce(ctx, AddressOf(from))
	if err != nil {
		return nil, err
	}
	raw, err := signTx(from, nonce, chain.ModuleUrgeID, chain.CallSetHandle, chain.SetHandleParams{Handle: norm}, fee)
	if err != nil {
		return nil, err
	}
	return cgt.SendRawTransaction(ctx, raw)
}
