package chain

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"sort"
)

// Runtime modules.
const (
	ModuleBank   = "bank_cgt"
	ModuleUrgeID = "urgeid_registry"
	ModuleNFT    = "nft_dgen"
	ModuleAbyss  = "abyss_registry"
	ModuleWork   = "work_claim"
	ModuleFabric = "fabric_manager"
)

// Calls.
const (
	CallTransfer      = "transfer"
	CallMintTo        = "mint_to"
	CallCreate        = "create"
	CallSetHandle     = "set_handle"
	CallRecordSyzygy  = "record_syzygy"
	CallClaimArchon   = "claim_archon"
	CallMint          = "mint"
	CallCreateListing = "create_listing"
	CallCancelListing = "cancel_listing"
	CallBuyListing    = "buy_listing"
	CallSubmit        = "submit"
	CallRegisterAsset = "register_asset"
	CallRewardSeeder  = "reward_seeder"
)

// callFunc executes one call against a scratch ledger.
type callFunc func(l *Ledger, tx *Transaction, height uint64) error

// Runtime dispatches transactions by (module, call).
type Runtime struct {
	signed map[string]callFunc
	system map[string]callFunc
}

func callKey(module, call string) string { return module + "." + call }

// NewRuntime registers the built-in modules.
func NewRuntime() *Runtime {
	r := &Runtime{
		signed: make(map[string]callFunc),
		system: make(map[string]callFunc),
	}
	r.signed[callKey(ModuleBank, CallTransfer)] = execTransfer
	r.signed[callKey(ModuleUrgeID, CallCreate)] = execCreateProfile
	r.signed[callKey(ModuleUrgeID, CallSetHandle)] = execSetHandle
	r.signed[callKey(ModuleUrgeID, CallRecordSyzygy)] = execRecordSyzygy
	r.signed[callKey(ModuleNFT, CallMint)] = execMintNFT
	r.signed[callKey(ModuleAbyss, CallCreateListing)] = execCreateListing
	r.signed[callKey(ModuleAbyss, CallCancelListing)] = execCancelListing
	r.signed[callKey(ModuleAbyss, CallBuyListing)] = execBuyListing
	r.signed[callKey(ModuleWork, CallSubmit)] = execWorkClaim
	r.signed[callKey(ModuleFabric, CallRegisterAsset)] = execRegisterAsset
	r.signed[callKey(ModuleFabric, CallRewardSeeder)] = execRewardSeeder

	// System calls run on behalf of the genesis authority and carry no signature.
	r.system[callKey(ModuleBank, CallMintTo)] = execSystemMint
	r.system[callKey(ModuleUrgeID, CallCreate)] = execSystemCreateProfile
	r.system[callKey(ModuleUrgeID, CallClaimArchon)] = execClaimArchon
	return r
}

// Calls lists the signed calls, sorted.
func (r *Runtime) Calls() []string {
	out := make([]string, 0, len(r.signed))
	for k := range r.signed {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// RegistryHash fingerprints the set of registered calls.
func (r *Runtime) RegistryHash() [32]byte {
	h := sha256.New()
	for _, k := range r.Calls() {
		h.Write([]byte(k))
		h.Write([]byte{0})
	}
	return [32]byte(h.Sum(nil))
}

// Apply executes a signed transaction. On success the returned ledger holds
// the new state; on failure the input ledger is untouched and nothing is charged.
func (r *Runtime) Apply(l *Ledger, tx *Transaction, height uint64) (*Ledger, error) {
	fn, ok := r.signed[callKey(tx.ModuleID, tx.CallID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownCall, tx.ModuleID, tx.CallID)
	}
	if tx.From.IsZero() {
		return nil, fmt.Errorf("%w: genesis authority cannot sign", ErrInvalidAddress)
	}
	if err := tx.VerifySignature(); err != nil {
		return nil, err
	}
	if want := l.Nonce(tx.From); tx.Nonce != want {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrBadNonce, tx.Nonce, want)
	}

	next := l.Clone()
	if tx.Fee > 0 {
		if err := next.burn(tx.From, new(big.Int).SetUint64(tx.Fee)); err != nil {
			return nil, fmt.Errorf("fee: %w", err)
		}
	}
	if err := fn(next, tx, height); err != nil {
		return nil, err
	}
	next.nonces[tx.From]++
	return next, nil
}

// ApplySystem executes an unsigned genesis-authority call.
func (r *Runtime) ApplySystem(l *Ledger, tx *Transaction, height uint64) (*Ledger, error) {
	fn, ok := r.system[callKey(tx.ModuleID, tx.CallID)]
	if !ok {
		return nil, fmt.Errorf("%w: system %s.%s", ErrUnknownCall, tx.ModuleID, tx.CallID)
	}
	if !tx.From.IsZero() {
		return nil, fmt.Errorf("%w: system calls come from the genesis authority", ErrUnauthorizedMint)
	}
	next := l.Clone()
	if err := fn(next, tx, height); err != nil {
		return nil, err
	}
	return next, nil
}

func parsePositive(s string) (*big.Int, error) {
	amt, err := ParseAmount(s)
	if err != nil {
		return nil, err
	}
	if amt.Sign() <= 0 {
		return nil, fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}
	return amt, nil
}

func execTransfer(l *Ledger, tx *Transaction, _ uint64) error {
	var p TransferParams
	if err := tx.DecodePayload(&p); err != nil {
		return err
	}
	amt, err := parsePositive(p.Amount)
	if err != nil {
		return err
	}
	return l.Transfer(tx.From, p.To, amt)
}

func execCreateProfile(l *Ledger, tx *Transaction, height uint64) error {
	var p CreateProfileParams
	if err := tx.DecodePayload(&p); err != nil {
		return err
	}
	return l.CreateProfile(tx.From, p.DisplayName, p.Bio, height)
}

func execSetHandle(l *Ledger, tx *Transaction, _ uint64) error {
	var p SetHandleParams
	if err := tx.DecodePayload(&p); err != nil {
		return err
	}
	return l.SetHandle(tx.From, p.Handle)
}

// record_syzygy is attested by an archon on behalf of the target profile.
func execRecordSyzygy(l *Ledger, tx *Transaction, _ uint64) error {
	var p RecordSyzygyParams
	if err := tx.DecodePayload(&p); err != nil {
		return err
	}
	if !l.IsArchon(tx.From) {
		return fmt.Errorf("%w: %s", ErrNotArchon, tx.From)
	}
	_, err := l.RecordSyzygy(p.Address, p.Amount)
	return err
}

func execMintNFT(l *Ledger, tx *Transaction, height uint64) error {
	var p MintNFTParams
	if err := tx.DecodePayload(&p); err != nil {
		return err
	}
	owner := p.Owner
	if owner.IsZero() {
		owner = tx.From
	}
	_, err := l.MintNFT(tx.From, owner, p.FabricRootHash, p.RoyaltyBps, p.Name, height)
	return err
}

func execCreateListing(l *Ledger, tx *Transaction, height uint64) error {
	var p CreateListingParams
	if err := tx.DecodePayload(&p); err != nil {
		return err
	}
	price, err := parsePositive(p.Price)
	if err != nil {
		return err
	}
	_, err = l.CreateListing(tx.From, p.TokenID, price, height)
	return err
}

func execCancelListing(l *Ledger, tx *Transaction, _ uint64) error {
	var p ListingParams
	if err := tx.DecodePayload(&p); err != nil {
		return err
	}
	return l.CancelListing(tx.From, p.ListingID)
}

func execBuyListing(l *Ledger, tx *Transaction, _ uint64) error {
	var p ListingParams
	if err := tx.DecodePayload(&p); err != nil {
		return err
	}
	_, err := l.BuyListing(tx.From, p.ListingID)
	return err
}

func execSystemMint(l *Ledger, tx *Transaction, _ uint64) error {
	var p MintParams
	if err := tx.DecodePayload(&p); err != nil {
		return err
	}
	amt, err := parsePositive(p.Amount)
	if err != nil {
		return err
	}
	return l.Mint(p.To, amt, MintGenesis)
}

// SystemProfileParams registers a profile for another address.
type SystemProfileParams struct {
	Address     Address `cbor:"address"`
	DisplayName string  `cbor:"display_name"`
	Bio         string  `cbor:"bio"`
}

// ArchonParams names the address to elevate.
type ArchonParams struct {
	Address Address `cbor:"address"`
}

func execSystemCreateProfile(l *Ledger, tx *Transaction, height uint64) error {
	var p SystemProfileParams
	if err := tx.DecodePayload(&p); err != nil {
		return err
	}
	return l.CreateProfile(p.Address, p.DisplayName, p.Bio, height)
}

func execClaimArchon(l *Ledger, tx *Transaction, _ uint64) error {
	var p ArchonParams
	if err := tx.DecodePayload(&p); err != nil {
		return err
	}
	return l.ClaimArchon(p.Address)
}
