package services

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"
)

// Denylist records logged-out tokens until they expire on their own.
type Denylist interface {
	Revoke(ctx context.Context, token string, until time.Time) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

type revokedTokenStore interface {
	RevokeToken(ctx context.Context, tokenHash string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, tokenHash string) (bool, error)
	PurgeRevokedTokens(ctx context.Context, now time.Time) (int64, error)
}

// DBDenylist keeps revoked token hashes in the revoked_tokens table.
type DBDenylist struct {
	store revokedTokenStore
}

func NewDBDenylist(store revokedTokenStore) *DBDenylist {
	return &DBDenylist{store: store}
}

func (d *DBDenylist) Revoke(ctx context.Context, token string, until time.Time) error {
	return d.store.RevokeToken(ctx, HashToken(token), until)
}

func (d *DBDenylist) IsRevoked(ctx context.Context, token string) (bool, error) {
	return d.store.IsTokenRevoked(ctx, HashToken(token))
}

// Purge drops entries for tokens that have expired anyway.
func (d *DBDenylist) Purge(ctx context.Context) (int64, error) {
	return d.store.PurgeRevokedTokens(ctx, time.Now())
}

func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", h)
}
