package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

// Token is a stored calendar credential. It is owned by the token store and
// mutated only by the refresh procedure; it is never embedded in a session
// message.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
	UserEmail    string    `json:"user_email,omitempty"`
	ConnectedAt  time.Time `json:"connected_at"`

	// Invalid is set when a refresh fails; the user must re-authorize.
	Invalid bool `json:"invalid,omitempty"`
}

// TokenStore persists one token file per user id under dir/tokens.
type TokenStore struct {
	mu  sync.Mutex
	dir string
}

func NewTokenStore(dataDir string) (*TokenStore, error) {
	dir := filepath.Join(dataDir, "tokens")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create token dir: %w", err)
	}
	return &TokenStore{dir: dir}, nil
}

func (t *TokenStore) path(userID string) string {
	return filepath.Join(t.dir, userID+".json")
}

// Load returns the stored token for the user, or (nil, nil) when the user
// has never connected.
func (t *TokenStore) Load(userID string) (*Token, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := os.ReadFile(t.path(userID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}
	var tok Token
	if err := sonic.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return &tok, nil
}

// Save writes the token with owner-only permissions.
func (t *TokenStore) Save(userID string, tok *Token) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := sonic.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.WriteFile(t.path(userID), data, 0o600); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	return nil
}

// Delete removes the stored credential on explicit disconnect.
func (t *TokenStore) Delete(userID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := os.Remove(t.path(userID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}
