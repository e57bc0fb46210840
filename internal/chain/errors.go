// Package chain implements the CGT ledger, its runtime modules and the
// single-node block producer.
package chain

import "errors"

var (
	ErrInvalidAddress      = errors.New("invalid address")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidPayload      = errors.New("invalid payload")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBadNonce            = errors.New("bad nonce")
	ErrReplay              = errors.New("transaction replay")
	ErrMaxSupply           = errors.New("max supply exceeded")
	ErrUnauthorizedMint    = errors.New("module not allowed to mint")
	ErrUnauthorizedBurn    = errors.New("module not allowed to burn")
	ErrOverflow            = errors.New("arithmetic overflow")
	ErrUnknownCall         = errors.New("unknown runtime call")

	ErrProfileExists   = errors.New("profile already exists")
	ErrProfileNotFound = errors.New("profile not found")
	ErrInvalidHandle   = errors.New("invalid handle")
	ErrHandleTaken     = errors.New("handle already taken")
	ErrInvalidName     = errors.New("invalid display name")
	ErrNotArchon       = errors.New("caller is not an archon")

	ErrNFTNotFound     = errors.New("nft not found")
	ErrInvalidRoyalty  = errors.New("royalty exceeds 10000 bps")
	ErrNotOwner        = errors.New("caller does not own the nft")
	ErrListingNotFound = errors.New("listing not found")
	ErrListingInactive = errors.New("listing is not active")
	ErrAlreadyListed   = errors.New("nft already listed")
	ErrNotSeller       = errors.New("caller is not the seller")
	ErrSelfPurchase    = errors.New("seller cannot buy own listing")
	ErrSellerNotOwner  = errors.New("seller no longer owns the nft")

	ErrInvalidClaim   = errors.New("invalid work claim")
	ErrClaimSubmitted = errors.New("work claim already submitted")
	ErrAssetExists    = errors.New("fabric asset already registered")
	ErrAssetNotFound  = errors.New("fabric asset not found")
	ErrNotAssetOwner  = errors.New("caller does not own the fabric asset")
	ErrPoolExhausted  = errors.New("fabric pool has insufficient cgt")

	ErrTxNotFound      = errors.New("transaction not found")
	ErrDevModeDisabled = errors.New("dev mode disabled")
	ErrBlockNotFound   = errors.New("block not found")
)
