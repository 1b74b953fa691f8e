// Package apikey mints and checks the bearer keys used by the API.
package apikey

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/nsstatus/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	rawPrefix = "nsk_"
	// PrefixLen is the number of leading characters stored in clear for lookup.
	PrefixLen = 8
	secretLen = 24
)

// ValidScopes lists the scopes a key may carry.
var ValidScopes = []string{models.ScopeRead, models.ScopeSubmit, models.ScopeAdmin}

// New creates a key record and returns it with the raw key. The raw key is
// not stored anywhere and must be shown to the caller once.
func New(name string, scopes []string) (*models.APIKey, string, error) {
	for _, s := range scopes {
		if !slices.Contains(ValidScopes, s) {
			return nil, "", fmt.Errorf("unknown scope %q", s)
		}
	}

	secret := make([]byte, secretLen)
	if _, err := rand.Read(secret); err != nil {
		return nil, "", fmt.Errorf("generating key: %w", err)
	}
	raw := rawPrefix + hex.EncodeToString(secret)

	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hashing key: %w", err)
	}

	now := time.Now().UTC()
	return &models.APIKey{
		ID:        uuid.New(),
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: raw[:PrefixLen],
		Scopes:    slices.Clone(scopes),
		CreatedAt: now,
		UpdatedAt: now,
	}, raw, nil
}

// Matches reports whether raw is the key behind k.
func Matches(k *models.APIKey, raw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(raw)) == nil
}
