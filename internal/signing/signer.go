package signing

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidKey       = errors.New("invalid ed25519 key")
	ErrInvalidSignature = errors.New("invalid ed25519 signature")
	ErrInvalidHex       = errors.New("invalid hex string")
)

// KeyPair is an Ed25519 signing key with its public half.
type KeyPair struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// GenerateKey creates a random key pair.
func GenerateKey() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return &KeyPair{priv: priv, pub: pub}, nil
}

// KeyPairFromSeed derives a key pair from a 32-byte seed.
func KeyPairFromSeed(seed [32]byte) *KeyPair {
	priv := ed25519.NewKeyFromSeed(seed[:])
	return &KeyPair{priv: priv, pub: priv.Public().(ed25519.PublicKey)}
}

// KeyPairFromHex accepts either a 32-byte seed or a 64-byte private key. The
// public half of a 64-byte key must match the one derived from its seed.
func KeyPairFromHex(s string) (*KeyPair, error) {
	raw, err := DecodeHex(s)
	if err != nil {
		return nil, err
	}
	switch len(raw) {
	case ed25519.SeedSize:
		var seed [32]byte
		copy(seed[:], raw)
		return KeyPairFromSeed(seed), nil
	case ed25519.PrivateKeySize:
		priv := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
		pub := priv.Public().(ed25519.PublicKey)
		if !bytes.Equal(raw[ed25519.SeedSize:], pub) {
			return nil, fmt.Errorf("%w: public key does not match seed", ErrInvalidKey)
		}
		return &KeyPair{priv: priv, pub: pub}, nil
	default:
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidKey, len(raw))
	}
}

// PublicKey returns the 32-byte public key.
func (k *KeyPair) PublicKey() ed25519.PublicKey { return k.pub }

// Seed returns the 32-byte private seed.
func (k *KeyPair) Seed() []byte { return k.priv.Seed() }

// SeedHex is the hex form of Seed, the format the keystore persists.
func (k *KeyPair) SeedHex() string { return hex.EncodeToString(k.priv.Seed()) }

// Address returns the public key as a fixed array.
func (k *KeyPair) Address() [32]byte {
	var a [32]byte
	copy(a[:], k.pub)
	return a
}

// AddressHex is the 0x-prefixed address used by wallets.
func (k *KeyPair) AddressHex() string { return DeriveAddress(k.pub) }

// DeriveAddress renders a public key as a 0x-prefixed lowercase hex address.
func DeriveAddress(pub ed25519.PublicKey) string {
	return "0x" + hex.EncodeToString(pub)
}

// SignMessage signs msg directly.
func (k *KeyPair) SignMessage(msg []byte) []byte {
	return ed25519.Sign(k.priv, msg)
}

// SignMessageHex signs msg and returns the hex signature.
func (k *KeyPair) SignMessageHex(msg []byte) string {
	return hex.EncodeToString(k.SignMessage(msg))
}

// SignTransaction signs the SHA-256 digest of the canonical transaction bytes.
func (k *KeyPair) SignTransaction(txBytes []byte) []byte {
	digest := sha256.Sum256(txBytes)
	return ed25519.Sign(k.priv, digest[:])
}

// SignTransactionHex accepts hex-encoded transaction bytes and returns a hex signature.
func (k *KeyPair) SignTransactionHex(txHex string) (string, error) {
	raw, err := DecodeHex(txHex)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(k.SignTransaction(raw)), nil
}

// Verify checks a plain message signature.
func Verify(pub []byte, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}

// VerifyTransaction checks a signature produced by SignTransaction.
func VerifyTransaction(pub []byte, txBytes, sig []byte) error {
	if len(sig) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidSignature)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("%w: length %d, want %d", ErrInvalidSignature, len(sig), ed25519.SignatureSize)
	}
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: public key length %d", ErrInvalidKey, len(pub))
	}
	digest := sha256.Sum256(txBytes)
	if !ed25519.Verify(ed25519.PublicKey(pub), digest[:], sig) {
		return fmt.Errorf("%w: verification failed", ErrInvalidSignature)
	}
	return nil
}

// DecodeHex strips an optional 0x prefix and decodes.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	return b, nil
}

// EncodeHex is the inverse of DecodeHex, without a prefix.
func EncodeHex(b []byte) string { return hex.EncodeToString(b) }
