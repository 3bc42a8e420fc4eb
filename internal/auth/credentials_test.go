package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func hashOf(t *testing.T, secret string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}
	return string(hash)
}

func TestPasswordVerifier(t *testing.T) {
	v := NewPasswordVerifier([]Account{
		{Name: "Maria", PasswordHash: hashOf(t, "s3cret"), Categories: []string{"demolition", "animals"}},
	})
	ctx := context.Background()

	identity, err := v.Verify(ctx, "Maria", "s3cret")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if identity.Name != "Maria" || identity.Canonical != "maria" {
		t.Errorf("unexpected identity %+v", identity)
	}
	if !identity.AllowsCategory("demolition") || identity.AllowsCategory("objects") {
		t.Error("category grants wrong")
	}

	// Sign-in matches by canonical name.
	if _, err := v.Verify(ctx, "  MARIA ", "s3cret"); err != nil {
		t.Errorf("canonical name match failed: %v", err)
	}

	if _, err := v.Verify(ctx, "Maria", "wrong"); !errors.Is(err, ErrRejected) {
		t.Errorf("wrong secret: expected ErrRejected, got %v", err)
	}
	if _, err := v.Verify(ctx, "Nobody", "s3cret"); !errors.Is(err, ErrRejected) {
		t.Errorf("unknown name: expected ErrRejected, got %v", err)
	}
}

func TestLoadPasswordVerifier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	content := `accounts:
  - name: Maria
    password_hash: "` + hashOf(t, "s3cret") + `"
    categories: [demolition]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write accounts file: %v", err)
	}

	v, err := LoadPasswordVerifier(path)
	if err != nil {
		t.Fatalf("LoadPasswordVerifier failed: %v", err)
	}
	if _, err := v.Verify(context.Background(), "maria", "s3cret"); err != nil {
		t.Errorf("Verify failed: %v", err)
	}
}

func TestLoadPasswordVerifierEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	if err := os.WriteFile(path, []byte("accounts: []\n"), 0o600); err != nil {
		t.Fatalf("write accounts file: %v", err)
	}
	if _, err := LoadPasswordVerifier(path); err == nil {
		t.Fatal("empty accounts file must be rejected")
	}
}
