package sdk

import (
	"context"

	"github.com/nidhogg/demiurge/internal/chain"
)

// AbyssAPI wraps the marketplace methods.
type AbyssAPI struct{ c *Client }

func (a *AbyssAPI) AllListings(ctx context.Context) ([]Listing, error) {
	var out struct {
		Listings []Listing `json:"listings"`
	}
	if err := a.c.Call(ctx, "abyss_getAllListings", nil, &out); err != nil {
		return nil, err
	}
	return out.Listings, nil
}

// Listing returns nil for unknown ids.
func (a *AbyssAPI) Listing(ctx context.Context, id uint64) (*Listing, error) {
	var out *Listing
	if err := a.c.Call(ctx, "abyss_getListing", map[string]uint64{"listing_id": id}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Buy signs and submits a purchase of listing id.
func (a *AbyssAPI) Buy(ctx context.Context, buyer Signer, id uint64, fee uint64) (*SendResult, error) {
	cgt := a.c.CGT()
	nonce, err := cgt.Nonce(ctx, AddressOf(buyer))
	if err != nil {
		return nil, err
	}
	raw, err := signTx(buyer, nonce, chain.ModuleAbyss, chain.CallBuyListing, chain.ListingParams{ListingID: id}, fee)
	if err != nil {
		return nil, err
	}
	return cgt.SendRawTransaction(ctx, raw)
}
