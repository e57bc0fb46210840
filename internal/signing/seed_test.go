package signing

import (
	"bytes"
	"regexp"
	"testing"
)

func TestSeedDeterministic(t *testing.T) {
	a := Seed("demiurge/test", []byte("x"), []byte("y"))
	b := Seed("demiurge/test", []byte("x"), []byte("y"))
	if a != b {
		t.Fatal("same inputs produced different seeds")
	}
	if Seed("demiurge/other", []byte("x"), []byte("y")) == a {
		t.Error("domain separation failed")
	}
	// Length prefixes keep part boundaries significant.
	if Seed("demiurge/test", []byte("xy")) == Seed("demiurge/test", []byte("x"), []byte("y")) {
		t.Error("part boundaries collapsed")
	}
}

func TestStream(t *testing.T) {
	seed := Seed("demiurge/stream")
	s1 := Stream(seed, 100)
	s2 := Stream(seed, 100)
	if len(s1) != 100 {
		t.Fatalf("length: got %d, want 100", len(s1))
	}
	if !bytes.Equal(s1, s2) {
		t.Error("stream not deterministic")
	}
	if !bytes.Equal(Stream(seed, 40), s1[:40]) {
		t.Error("shorter stream is not a prefix of the longer one")
	}
}

func TestStreamNonPositiveLength(t *testing.T) {
	seed := Seed("demiurge/stream")
	for _, n := range []int{0, -1, -64} {
		if got := Stream(seed, n); got == nil || len(got) != 0 {
			t.Errorf("Stream(seed, %d) = %v, want empty", n, got)
		}
	}
}

func TestKeyFromPhraseNormalizes(t *testing.T) {
	a := KeyFromPhrase("Prime  Archon", 0)
	b := KeyFromPhrase("prime archon", 0)
	if a.AddressHex() != b.AddressHex() {
		t.Error("whitespace/case should not change the derived key")
	}
	if KeyFromPhrase("prime archon", 1).AddressHex() == a.AddressHex() {
		t.Error("index should change the derived key")
	}
}

func TestNewID(t *testing.T) {
	id := NewID("ARCHON", []byte("PRIME_ARCHON"), []byte{1, 2, 3})
	if !regexp.MustCompile(`^ARCHON_[0-9A-F]{32}$`).MatchString(id) {
		t.Errorf("unexpected id format %q", id)
	}
	if id != NewID("ARCHON", []byte("PRIME_ARCHON"), []byte{1, 2, 3}) {
		t.Error("id not deterministic")
	}
}

func TestUnitRange(t *testing.T) {
	seed := Seed("demiurge/unit-test")
	for _, label := range []string{"a", "b", "c", "d", "e"} {
		u := Unit(seed, label)
		if u < 0 || u >= 1 {
			t.Errorf("Unit(%q) = %v, out of [0,1)", label, u)
		}
	}
}
