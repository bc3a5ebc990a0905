package credstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Hafees-J/rk-onlineshopping-fe/internal/model"
)

func sampleCred() *model.Credential {
	return &model.Credential{
		AccessToken:  "acc",
		RefreshToken: "ref",
		Subject:      "alice",
		Role:         model.RoleCustomer,
		ExpiresAt:    time.Now().Add(15 * time.Minute).UTC(),
	}
}

func TestFile_RoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := NewFile(dir)

	// nothing stored yet
	c, err := s.Load()
	if err != nil {
		t.Fatalf("Load empty: %v", err)
	}
	if c != nil {
		t.Fatalf("Load empty: want nil, got %+v", c)
	}

	want := sampleCred()
	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || got.AccessToken != want.AccessToken || got.RefreshToken != want.RefreshToken ||
		got.Subject != want.Subject || got.Role != want.Role {
		t.Fatalf("Load mismatch: got %+v", got)
	}
}

func TestFile_OnDiskIsSealed(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := NewFile(dir)
	if err := s.Save(sampleCred()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, credFile))
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}
	for _, tok := range []string{"acc", "ref", "alice"} {
		if containsStr(raw, tok) {
			t.Fatalf("credential file leaks %q in plaintext", tok)
		}
	}
}

func containsStr(b []byte, s string) bool {
	for i := 0; i+len(s) <= len(b); i++ {
		if string(b[i:i+len(s)]) == s {
			return true
		}
	}
	return false
}

func TestFile_TamperFailsLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := NewFile(dir)
	if err := s.Save(sampleCred()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	p := filepath.Join(dir, credFile)
	raw, _ := os.ReadFile(p)
	raw[len(raw)-1] ^= 0x01
	if err := os.WriteFile(p, raw, 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if _, err := s.Load(); err == nil {
		t.Fatalf("Load must fail on tampered file")
	}
}

func TestValidate_BothOrNeither(t *testing.T) {
	t.Parallel()
	s := NewMemory()

	if err := s.Save(nil); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("Save(nil): want ErrInvalidCredential, got %v", err)
	}
	if err := s.Save(&model.Credential{AccessToken: "a"}); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("access only: want ErrInvalidCredential, got %v", err)
	}
	if err := s.Save(&model.Credential{RefreshToken: "r"}); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("refresh only: want ErrInvalidCredential, got %v", err)
	}
	if err := s.Save(&model.Credential{}); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("empty pair: want ErrInvalidCredential, got %v", err)
	}
	if err := s.Save(sampleCred()); err != nil {
		t.Fatalf("valid pair: %v", err)
	}
}

func TestFile_Clear(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := NewFile(dir)
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear on empty store: %v", err)
	}
	if err := s.Save(sampleCred()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	c, err := s.Load()
	if err != nil || c != nil {
		t.Fatalf("Load after Clear: cred=%+v err=%v", c, err)
	}
}

func TestMemory_CopiesOnLoad(t *testing.T) {
	t.Parallel()
	s := NewMemory()
	if err := s.Save(sampleCred()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	a, _ := s.Load()
	a.AccessToken = "mutated"
	b, _ := s.Load()
	if b.AccessToken != "acc" {
		t.Fatalf("Load must return a copy")
	}
}
