package auth

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"tripletfilter/api/internal/annotation"
)

// ErrRejected is returned for any credential failure. Unknown names and
// wrong secrets are deliberately indistinguishable.
var ErrRejected = errors.New("invalid credentials")

// Identity is a verified annotator.
type Identity struct {
	Name       string
	Canonical  string
	Categories []string
}

// AllowsCategory reports whether the identity may work on a category.
func (i Identity) AllowsCategory(category string) bool {
	for _, c := range i.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Verifier decides whether a (name, secret) pair names a known annotator.
type Verifier interface {
	Verify(ctx context.Context, name, secret string) (Identity, error)
}

// Account is one annotator entry in the accounts file. PasswordHash is a
// bcrypt hash; plaintext never lives in configuration.
type Account struct {
	Name         string   `yaml:"name"`
	PasswordHash string   `yaml:"password_hash"`
	Categories   []string `yaml:"categories"`
}

// PasswordVerifier verifies credentials against a static accounts table,
// matched by canonical identity and checked with bcrypt.
type PasswordVerifier struct {
	accounts map[string]Account
}

func NewPasswordVerifier(accounts []Account) *PasswordVerifier {
	table := make(map[string]Account, len(accounts))
	for _, acct := range accounts {
		table[annotation.Canonical(acct.Name)] = acct
	}
	return &PasswordVerifier{accounts: table}
}

// LoadPasswordVerifier reads the accounts table from a YAML file.
func LoadPasswordVerifier(path string) (*PasswordVerifier, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open accounts file: %w", err)
	}
	defer file.Close()

	var wrapper struct {
		Accounts []Account `yaml:"accounts"`
	}
	if err := yaml.NewDecoder(file).Decode(&wrapper); err != nil {
		return nil, fmt.Errorf("decode accounts file: %w", err)
	}
	if len(wrapper.Accounts) == 0 {
		return nil, fmt.Errorf("accounts file %s defines no accounts", path)
	}
	return NewPasswordVerifier(wrapper.Accounts), nil
}

func (v *PasswordVerifier) Verify(ctx context.Context, name, secret string) (Identity, error) {
	acct, ok := v.accounts[annotation.Canonical(name)]
	if !ok {
		return Identity{}, ErrRejected
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(secret)); err != nil {
		return Identity{}, ErrRejected
	}
	return Identity{
		Name:       acct.Name,
		Canonical:  annotation.Canonical(acct.Name),
		Categories: append([]string(nil), acct.Categories...),
	}, nil
}
