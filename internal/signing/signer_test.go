package signing

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestDeriveAddressPrefix(t *testing.T) {
	kp, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	addr := kp.AddressHex()
	if !strings.HasPrefix(addr, "0x") {
		t.Errorf("address %q missing 0x prefix", addr)
	}
	if len(addr) != 66 {
		t.Errorf("address length: got %d, want 66", len(addr))
	}
}

func TestKeyPairFromHexRoundTrip(t *testing.T) {
	kp := KeyFromPhrase("genesis archon", 0)

	fromSeed, err := KeyPairFromHex("0x" + kp.SeedHex())
	if err != nil {
		t.Fatalf("from seed: %v", err)
	}
	if !bytes.Equal(fromSeed.PublicKey(), kp.PublicKey()) {
		t.Error("seed import changed public key")
	}

	full := append(kp.Seed(), kp.PublicKey()...)
	fromFull, err := KeyPairFromHex(EncodeHex(full))
	if err != nil {
		t.Fatalf("from private key: %v", err)
	}
	if !bytes.Equal(fromFull.PublicKey(), kp.PublicKey()) {
		t.Error("private key import changed public key")
	}

	if _, err := KeyPairFromHex("abcd"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("short key: got %v, want ErrInvalidKey", err)
	}
	if _, err := KeyPairFromHex("zz"); !errors.Is(err, ErrInvalidHex) {
		t.Errorf("bad hex: got %v, want ErrInvalidHex", err)
	}
}

func TestKeyPairFromHexMismatchedPublicKey(t *testing.T) {
	kp := KeyFromPhrase("genesis archon", 0)
	other := KeyFromPhrase("genesis archon", 1)
	forged := append(kp.Seed(), other.PublicKey()...)
	if _, err := KeyPairFromHex(EncodeHex(forged)); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("mismatched key: got %v, want ErrInvalidKey", err)
	}
}

func TestSignAndVerifyTransaction(t *testing.T) {
	kp := KeyFromPhrase("alice", 1)
	tx := []byte("transfer 10 cgt")

	sig := kp.SignTransaction(tx)
	if len(sig) != 64 {
		t.Fatalf("signature length: got %d, want 64", len(sig))
	}
	if err := VerifyTransaction(kp.PublicKey(), tx, sig); err != nil {
		t.Fatalf("verify: %v", err)
	}

	// A transaction signature is over the digest, not the raw bytes.
	if Verify(kp.PublicKey(), tx, sig) {
		t.Error("raw-message verify should not accept a digest signature")
	}

	tampered := append([]byte(nil), tx...)
	tampered[0] ^= 0xff
	if err := VerifyTransaction(kp.PublicKey(), tampered, sig); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("tampered: got %v, want ErrInvalidSignature", err)
	}
	if err := VerifyTransaction(kp.PublicKey(), tx, nil); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("empty sig: got %v, want ErrInvalidSignature", err)
	}
	if err := VerifyTransaction(kp.PublicKey(), tx, sig[:10]); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("short sig: got %v, want ErrInvalidSignature", err)
	}
}

func TestSignTransactionHex(t *testing.T) {
	kp := KeyFromPhrase("bob", 0)
	sigHex, err := kp.SignTransactionHex("0xdeadbeef")
	if err != nil {
		t.Fatalf("sign hex: %v", err)
	}
	sig, _ := DecodeHex(sigHex)
	if err := VerifyTransaction(kp.PublicKey(), []byte{0xde, 0xad, 0xbe, 0xef}, sig); err != nil {
		t.Errorf("verify hex-signed tx: %v", err)
	}
}

func TestSignMessage(t *testing.T) {
	kp := KeyFromPhrase("carol", 0)
	msg := []byte("hello god-net")
	sig := kp.SignMessage(msg)
	if !Verify(kp.PublicKey(), msg, sig) {
		t.Error("message signature did not verify")
	}
	if Verify(kp.PublicKey()[:31], msg, sig) {
		t.Error("truncated public key should not verify")
	}
}
