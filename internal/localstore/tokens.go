package localstore

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/oauth2"
)

// TokenKey is the metadata key holding the Drive access token.
const TokenKey = "gdrive_token"

// TokenStore persists the OAuth token in the metadata table. It satisfies auth.TokenStore.
type TokenStore struct {
	store *Store
}

// TokenStore returns a token store backed by s.
func (s *Store) TokenStore() *TokenStore {
	return &TokenStore{store: s}
}

// Load returns the saved token, or nil when there is none.
func (t *TokenStore) Load(ctx context.Context) (*oauth2.Token, error) {
	raw, err := t.store.Get(ctx, TokenKey)
	if err != nil || raw == nil {
		return nil, err
	}
	var token oauth2.Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("failed to decode saved token: %w", err)
	}
	return &token, nil
}

func (t *TokenStore) Save(ctx context.Context, token *oauth2.Token) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	return t.store.Set(ctx, TokenKey, raw)
}

func (t *TokenStore) Clear(ctx context.Context) error {
	return t.store.Delete(ctx, TokenKey)
}
