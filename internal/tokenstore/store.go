// Package tokenstore persists the access token, refresh token and serialized
// user between runs.
package tokenstore

import (
	"context"
	"errors"
)

type Key string

const (
	KeyAccessToken  Key = "access_token"
	KeyRefreshToken Key = "refresh_token"
	KeyUser         Key = "user"
)

var ErrNotFound = errors.New("token store: key not found")

func Keys() []Key {
	return []Key{KeyAccessToken, KeyRefreshToken, KeyUser}
}

// Store writes and deletes are all-or-nothing across the keys of one call.
type Store interface {
	Get(ctx context.Context, key Key) (string, error)
	Set(ctx context.Context, values map[Key]string) error
	Delete(ctx context.Context, keys ...Key) error
}

func Clear(ctx context.Context, store Store) error {
	return store.Delete(ctx, Keys()...)
}
