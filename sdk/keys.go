package sdk

import (
	"github.com/nidhogg/demiurge/internal/chain"
	"github.com/nidhogg/demiurge/internal/signing"
)

// Signer holds an account key.
type Signer interface {
	Address() [32]byte
	SignTransaction(txBytes []byte) []byte
}

// KeyFromSeedHex loads a signer from a hex seed or private key.
func KeyFromSeedHex(s string) (Signer, error) {
	kp, err := signing.KeyPairFromHex(s)
	if err != nil {
		return nil, &Error{Kind: KindSigning, Message: "load key", Err: err}
	}
	return kp, nil
}

// KeyFromPhrase derives the index-th signer of a phrase.
func KeyFromPhrase(phrase string, index uint32) Signer {
	return signing.KeyFromPhrase(phrase, index)
}

// GenerateKey creates a random signer and returns its seed hex.
func GenerateKey() (Signer, string, error) {
	kp, err := signing.GenerateKey()
	if err != nil {
		return nil, "", &Error{Kind: KindSigning, Message: "generate key", Err: err}
	}
	return kp, kp.SeedHex(), nil
}

// AddressOf renders a signer's address.
func AddressOf(s Signer) string { return chain.Address(s.Address()).String() }

// ValidateAddress normalizes a 64-hex address, 0x prefix optional.
func ValidateAddress(s string) (string, error) {
	a, err := chain.ParseAddress(s)
	if err != nil {
		return "", &Error{Kind: KindInvalidAddress, Message: s, Err: err}
	}
	return a.String(), nil
}

// signTx builds and signs a call from s and returns its hex encoding.
func signTx(s Signer, nonce uint64, module, call string, params any, fee uint64) (string, error) {
	tx, err := chain.NewTransaction(chain.Address(s.Address()), nonce, module, call, params, fee)
	if err != nil {
		return "", &Error{Kind: KindTransaction, Message: "build " + module + "." + call, Err: err}
	}
	msg, err := tx.SigningBytes()
	if err != nil {
		return "", &Error{Kind: KindSigning, Message: "encode signing bytes", Err: err}
	}
	tx.Signature = s.SignTransaction(msg)
	raw, err := tx.EncodeHex()
	if err != nil {
		return "", &Error{Kind: KindTransaction, Message: "encode transaction", Err: err}
	}
	return raw, nil
}
