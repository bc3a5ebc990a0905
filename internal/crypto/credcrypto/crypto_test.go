package credcrypto

import (
	"bytes"
	"crypto/subtle"
	"testing"
)

func TestRand_LengthUniq(t *testing.T) {
	t.Parallel()
	const n = 48
	a, err := Rand(n)
	if err != nil {
		t.Fatalf("Rand: %v", err)
	}
	if len(a) != n {
		t.Fatalf("len=%d, want=%d", len(a), n)
	}
	b, _ := Rand(n)
	if bytes.Equal(a, b) {
		t.Fatalf("Rand produced equal slices")
	}
}

func TestDeriveKey_DeterministicAndPurposeBound(t *testing.T) {
	t.Parallel()
	master, _ := Rand(KeyLen)
	k1, err := DeriveKey(master, "credential")
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	k2, _ := DeriveKey(master, "credential")
	if subtle.ConstantTimeCompare(k1, k2) != 1 {
		t.Fatalf("DeriveKey not deterministic")
	}
	k3, _ := DeriveKey(master, "other")
	if subtle.ConstantTimeCompare(k1, k3) != 0 {
		t.Fatalf("DeriveKey must change with purpose")
	}
}

func TestSealOpen_RoundTrip(t *testing.T) {
	t.Parallel()
	key, _ := Rand(KeyLen)
	plain := []byte(`{"access_token":"a","refresh_token":"r"}`)

	blob, err := Seal(key, plain)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	got, err := Open(key, blob)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("round trip mismatch")
	}

	// tamper: any flipped ciphertext byte must fail authentication
	blob[len(blob)-1] ^= 0x01
	if _, err := Open(key, blob); err == nil {
		t.Fatalf("Open must fail on tampered blob")
	}
}

func TestOpen_ShortBlob(t *testing.T) {
	t.Parallel()
	key, _ := Rand(KeyLen)
	if _, err := Open(key, []byte("short")); err == nil {
		t.Fatalf("Open must reject short blob")
	}
}

func TestSealOpen_WrongKey(t *testing.T) {
	t.Parallel()
	k1, _ := Rand(KeyLen)
	k2, _ := Rand(KeyLen)
	blob, err := Seal(k1, []byte("payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := Open(k2, blob); err == nil {
		t.Fatalf("Open must fail with wrong key")
	}
}
