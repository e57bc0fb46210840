package rpc

import (
	"context"
	"encoding/json"

	"github.com/nidhogg/demiurge/internal/chain"
	"github.com/nidhogg/demiurge/sdk"
)

type listingIDParams struct {
	ListingID uint64 `json:"listing_id"`
}

type buildListingParams struct {
	buildParams
	TokenID uint64 `json:"token_id"`
	Price   string `json:"price"`
}

type buildListingIDParams struct {
	buildParams
	ListingID uint64 `json:"listing_id"`
}

func (s *Server) registerAbyss() {
	s.register("abyss_getAllListings", s.allListings, "cgt_getAllListings")
	s.register("abyss_getListing", s.listing, "cgt_getListing")
	s.register("cgt_buildCreateListingTx", s.buildCreateListing)
	s.register("cgt_buildCancelListingTx", s.buildListingCall(chain.CallCancelListing))
	s.register("cgt_buildBuyListingTx", s.buildListingCall(chain.CallBuyListing))
}

func (s *Server) allListings(context.Context, json.RawMessage) (any, error) {
	listings := s.node.ActiveListings()
	out := make([]sdk.Listing, 0, len(listings))
	for _, l := range listings {
		out = append(out, listingView(l))
	}
	return map[string][]sdk.Listing{"listings": out}, nil
}

// listing returns null for unknown ids.
func (s *Server) listing(_ context.Context, raw json.RawMessage) (any, error) {
	var p listingIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	l, ok := s.node.Listing(p.ListingID)
	if !ok {
		return nil, nil
	}
	v := listingView(l)
	return &v, nil
}

func (s *Server) buildCreateListing(_ context.Context, raw json.RawMessage) (any, error) {
	var p buildListingParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	price, err := chain.ParseAmount(p.Price)
	if err != nil {
		return nil, err
	}
	if price.Sign() == 0 {
		return nil, invalidParams("price must be positive")
	}
	return s.build(p.buildParams, chain.ModuleAbyss, chain.CallCreateListing, chain.CreateListingParams{TokenID: p.TokenID, Price: price.String()})
}

func (s *Server) buildListingCall(call string) Handler {
	return func(_ context.Context, raw json.RawMessage) (any, error) {
		var p buildListingIDParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return s.build(p.buildParams, chain.ModuleAbyss, call, chain.ListingParams{ListingID: p.ListingID})
	}
}
