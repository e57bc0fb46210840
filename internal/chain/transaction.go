package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/nidhogg/demiurge/internal/signing"
)

var (
	encMode = mustEncMode()
	decMode = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor enc mode: %v", err))
	}
	return em
}

func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor dec mode: %v", err))
	}
	return dm
}

// Transaction is a signed call into a runtime module.
type Transaction struct {
	_         struct{} `cbor:",toarray"`
	From      Address  `json:"from"`
	Nonce     uint64   `json:"nonce"`
	ModuleID  string   `json:"module_id"`
	CallID    string   `json:"call_id"`
	Payload   []byte   `json:"payload"`
	Fee       uint64   `json:"fee"`
	Signature []byte   `json:"signature"`
}

// NewTransaction encodes params as the call payload.
func NewTransaction(from Address, nonce uint64, module, call string, params any, fee uint64) (*Transaction, error) {
	payload, err := encMode.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s.%s payload: %w", module, call, err)
	}
	return &Transaction{
		From:     from,
		Nonce:    nonce,
		ModuleID: module,
		CallID:   call,
		Payload:  payload,
		Fee:      fee,
	}, nil
}

// DecodeTransaction parses the canonical encoding.
func DecodeTransaction(b []byte) (*Transaction, error) {
	var tx Transaction
	if err := decMode.Unmarshal(b, &tx); err != nil {
		return nil, fmt.Errorf("%w: decode transaction: %v", ErrInvalidPayload, err)
	}
	return &tx, nil
}

// DecodeTransactionHex parses a hex-encoded transaction, 0x prefix optional.
func DecodeTransactionHex(s string) (*Transaction, error) {
	raw, err := signing.DecodeHex(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return DecodeTransaction(raw)
}

// Encode returns the canonical bytes including the signature.
func (tx *Transaction) Encode() ([]byte, error) {
	return encMode.Marshal(tx)
}

// EncodeHex is Encode in hex.
func (tx *Transaction) EncodeHex() (string, error) {
	b, err := tx.Encode()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// SigningBytes is the canonical encoding with the signature cleared.
func (tx *Transaction) SigningBytes() ([]byte, error) {
	unsigned := *tx
	unsigned.Signature = nil
	return encMode.Marshal(&unsigned)
}

// Hash is sha256 over the full encoding.
func (tx *Transaction) Hash() ([32]byte, error) {
	b, err := tx.Encode()
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(b), nil
}

// HashHex is Hash in hex.
func (tx *Transaction) HashHex() (string, error) {
	h, err := tx.Hash()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h[:]), nil
}

// Sign signs the transaction with kp. The key must match From.
func (tx *Transaction) Sign(kp *signing.KeyPair) error {
	if kp.Address() != [32]byte(tx.From) {
		return fmt.Errorf("%w: signer %s does not match from %s", signing.ErrInvalidKey, signing.EncodeHex(kp.PublicKey()), tx.From)
	}
	msg, err := tx.SigningBytes()
	if err != nil {
		return fmt.Errorf("encode signing bytes: %w", err)
	}
	tx.Signature = kp.SignTransaction(msg)
	return nil
}

// VerifySignature checks the signature against From.
func (tx *Transaction) VerifySignature() error {
	msg, err := tx.SigningBytes()
	if err != nil {
		return fmt.Errorf("encode signing bytes: %w", err)
	}
	return signing.VerifyTransaction(tx.From[:], msg, tx.Signature)
}

// DecodePayload decodes the call payload into v.
func (tx *Transaction) DecodePayload(v any) error {
	if err := decMode.Unmarshal(tx.Payload, v); err != nil {
		return fmt.Errorf("%w: %s.%s: %v", ErrInvalidPayload, tx.ModuleID, tx.CallID, err)
	}
	return nil
}

// Call payloads. Amounts are decimal strings of base units.

type TransferParams struct {
	To     Address `cbor:"to"`
	Amount string  `cbor:"amount"`
}

type MintParams struct {
	To     Address `cbor:"to"`
	Amount string  `cbor:"amount"`
}

type CreateProfileParams struct {
	DisplayName string `cbor:"display_name"`
	Bio         string `cbor:"bio"`
}

type SetHandleParams struct {
	Handle string `cbor:"handle"`
}

type RecordSyzygyParams struct {
	Address Address `cbor:"address"`
	Amount  uint64  `cbor:"amount"`
}

type MintNFTParams struct {
	Owner          Address  `cbor:"owner"`
	FabricRootHash [32]byte `cbor:"fabric_root_hash"`
	RoyaltyBps     uint16   `cbor:"royalty_bps"`
	Name           string   `cbor:"name"`
}

type CreateListingParams struct {
	TokenID uint64 `cbor:"token_id"`
	Price   string `cbor:"price"`
}

type ListingParams struct {
	ListingID uint64 `cbor:"listing_id"`
}
