// Package session holds the client's persisted key/value state: in practice
// the raw session token under TokenKey.
package session

import (
	"context"
	"errors"
)

// TokenKey is the fixed key the session token is stored under.
const TokenKey = "user"

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("session key not found")

// Store is a small persistent key/value store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Token reads the session token from s, returning "" when none is stored or
// the store cannot be read.
func Token(ctx context.Context, s Store) string {
	v, err := s.Get(ctx, TokenKey)
	if err != nil {
		return ""
	}
	return v
}
