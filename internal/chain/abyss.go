package chain

import (
	"fmt"
	"math/big"
	"strings"
)

// MaxRoyaltyBps is 100%.
const MaxRoyaltyBps = 10_000

// NFT is a D-GEN token minted by an archon.
type NFT struct {
	ID             uint64   `json:"id"`
	Owner          Address  `json:"owner"`
	Creator        Address  `json:"creator"`
	FabricRootHash [32]byte `json:"-"`
	RoyaltyBps     uint16   `json:"royalty_bps"`
	Name           string   `json:"name"`
	MintedAtHeight uint64   `json:"minted_at_height"`
}

// ListingStatus is the lifecycle state of a marketplace listing.
type ListingStatus string

const (
	ListingActive    ListingStatus = "active"
	ListingSold      ListingStatus = "sold"
	ListingCancelled ListingStatus = "cancelled"
)

// Listing is an Abyss marketplace offer for one NFT.
type Listing struct {
	ID              uint64        `json:"id"`
	TokenID         uint64        `json:"token_id"`
	Seller          Address       `json:"seller"`
	Price           *big.Int      `json:"-"`
	Status          ListingStatus `json:"status"`
	CreatedAtHeight uint64        `json:"created_at_height"`
	Buyer           *Address      `json:"buyer,omitempty"`
}

func (li *Listing) clone() *Listing {
	cp := *li
	cp.Price = new(big.Int).Set(li.Price)
	if li.Buyer != nil {
		b := *li.Buyer
		cp.Buyer = &b
	}
	return &cp
}

// Active reports whether the listing can still be bought.
func (li *Listing) Active() bool { return li.Status == ListingActive }

// Sale is the settlement of a purchase.
type Sale struct {
	ListingID uint64   `json:"listing_id"`
	Price     *big.Int `json:"-"`
	Royalty   *big.Int `json:"-"`
	Proceeds  *big.Int `json:"-"`
}

// MintNFT creates a token. Only archons may mint.
func (l *Ledger) MintNFT(creator, owner Address, fabricRoot [32]byte, royaltyBps uint16, name string, height uint64) (uint64, error) {
	if !l.IsArchon(creator) {
		return 0, fmt.Errorf("%w: %s", ErrNotArchon, creator)
	}
	if royaltyBps > MaxRoyaltyBps {
		return 0, fmt.Errorf("%w: %d", ErrInvalidRoyalty, royaltyBps)
	}
	id := l.nextNFT
	l.nextNFT++
	l.nfts[id] = &NFT{
		ID:             id,
		Owner:          owner,
		Creator:        creator,
		FabricRootHash: fabricRoot,
		RoyaltyBps:     royaltyBps,
		Name:           strings.TrimSpace(name),
		MintedAtHeight: height,
	}
	return id, nil
}

// NFT returns a copy of the token.
func (l *Ledger) NFT(id uint64) (*NFT, bool) {
	n, ok := l.nfts[id]
	if !ok {
		return nil, false
	}
	cp := *n
	return &cp, true
}

// NFTsByOwner lists tokens owned by a, ordered by id.
func (l *Ledger) NFTsByOwner(a Address) []*NFT {
	var out []*NFT
	for _, id := range sortedIDs(l.nfts) {
		if n := l.nfts[id]; n.Owner == a {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out
}

func (l *Ledger) activeListingFor(tokenID uint64) (*Listing, bool) {
	for _, li := range l.listings {
		if li.TokenID == tokenID && li.Active() {
			return li, true
		}
	}
	return nil, false
}

// CreateListing offers an owned NFT for price.
func (l *Ledger) CreateListing(seller Address, tokenID uint64, price *big.Int, height uint64) (uint64, error) {
	n, ok := l.nfts[tokenID]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrNFTNotFound, tokenID)
	}
	if n.Owner != seller {
		return 0, fmt.Errorf("%w: token %d", ErrNotOwner, tokenID)
	}
	if price == nil || price.Sign() <= 0 {
		return 0, fmt.Errorf("%w: price must be positive", ErrInvalidAmount)
	}
	if existing, listed := l.activeListingFor(tokenID); listed {
		return 0, fmt.Errorf("%w: listing %d", ErrAlreadyListed, existing.ID)
	}
	id := l.nextListing
	l.nextListing++
	l.listings[id] = &Listing{
		ID:              id,
		TokenID:         tokenID,
		Seller:          seller,
		Price:           new(big.Int).Set(price),
		Status:          ListingActive,
		CreatedAtHeight: height,
	}
	return id, nil
}

// CancelListing withdraws an active listing. Only the seller may cancel.
func (l *Ledger) CancelListing(caller Address, id uint64) error {
	li, ok := l.listings[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrListingNotFound, id)
	}
	if li.Seller != caller {
		return fmt.Errorf("%w: listing %d", ErrNotSeller, id)
	}
	if !li.Active() {
		return fmt.Errorf("%w: listing %d is %s", ErrListingInactive, id, li.Status)
	}
	li.Status = ListingCancelled
	return nil
}

// BuyListing settles a purchase: the creator receives the royalty, capped at
// the price, and the seller the remainder.
func (l *Ledger) BuyListing(buyer Address, id uint64) (*Sale, error) {
	li, ok := l.listings[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrListingNotFound, id)
	}
	if !li.Active() {
		return nil, fmt.Errorf("%w: listing %d is %s", ErrListingInactive, id, li.Status)
	}
	if li.Seller == buyer {
		return nil, ErrSelfPurchase
	}
	n, ok := l.nfts[li.TokenID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNFTNotFound, li.TokenID)
	}
	if n.Owner != li.Seller {
		return nil, fmt.Errorf("%w: token %d", ErrSellerNotOwner, n.ID)
	}

	royalty := new(big.Int).Mul(li.Price, big.NewInt(int64(n.RoyaltyBps)))
	royalty.Quo(royalty, big.NewInt(MaxRoyaltyBps))
	if royalty.Cmp(li.Price) > 0 {
		royalty.Set(li.Price)
	}
	proceeds := new(big.Int).Sub(li.Price, royalty)

	if err := l.debit(buyer, li.Price); err != nil {
		return nil, err
	}
	if royalty.Sign() > 0 {
		l.credit(n.Creator, royalty)
	}
	if proceeds.Sign() > 0 {
		l.credit(li.Seller, proceeds)
	}
	n.Owner = buyer
	li.Status = ListingSold
	b := buyer
	li.Buyer = &b

	return &Sale{ListingID: id, Price: new(big.Int).Set(li.Price), Royalty: royalty, Proceeds: proceeds}, nil
}

// Listing returns a copy of a listing.
func (l *Ledger) Listing(id uint64) (*Listing, bool) {
	li, ok := l.listings[id]
	if !ok {
		return nil, false
	}
	return li.clone(), true
}

// ActiveListings returns active listings ordered by id.
func (l *Ledger) ActiveListings() []*Listing {
	var out []*Listing
	for _, id := range sortedIDs(l.listings) {
		if li := l.listings[id]; li.Active() {
			out = append(out, li.clone())
		}
	}
	return out
}
