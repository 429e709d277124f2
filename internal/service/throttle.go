package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginThrottle counts login attempts per email in Redis. A nil client
// disables throttling.
type LoginThrottle struct {
	client      *redis.Client
	maxAttempts int
	window      time.Duration
}

func NewLoginThrottle(client *redis.Client, maxAttempts int, window time.Duration) *LoginThrottle {
	return &LoginThrottle{client: client, maxAttempts: maxAttempts, window: window}
}

func (t *LoginThrottle) key(email string) string {
	return fmt.Sprintf("login:fail:%s", strings.ToLower(email))
}

func (t *LoginThrottle) enabled() bool {
	return t != nil && t.client != nil && t.maxAttempts > 0
}

// Attempt counts a login attempt and reports whether it may proceed. The
// counter is bumped before the password is checked, so concurrent attempts
// each see a distinct count and at most maxAttempts get through per window.
// A successful login calls Reset.
func (t *LoginThrottle) Attempt(ctx context.Context, email string) (bool, error) {
	if !t.enabled() {
		return true, nil
	}
	key := t.key(email)
	count, err := t.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("record login attempt: %w", err)
	}
	if count == 1 {
		if err := t.client.Expire(ctx, key, t.window).Err(); err != nil {
			return false, fmt.Errorf("expire login attempts: %w", err)
		}
	}
	return count <= int64(t.maxAttempts), nil
}

func (t *LoginThrottle) Reset(ctx context.Context, email string) error {
	if !t.enabled() {
		return nil
	}
	return t.client.Del(ctx, t.key(email)).Err()
}
