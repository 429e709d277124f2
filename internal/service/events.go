package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TaskAuthEvent      = "auth.event"
	TaskSessionCleanup = "sessions.cleanup"

	EventLogin        = "auth.login"
	EventLoginFailed  = "auth.login_failed"
	EventLogout       = "auth.logout"
	EventRefresh      = "auth.refresh"
	EventUserCreated  = "auth.user_created"
	EventLoginBlocked = "auth.login_blocked"
	EventUserStatus   = "auth.user_status"
)

type AuthEvent struct {
	Name      string
	UserID    string
	Email     string
	IPAddress string
	At        time.Time
}

type EventPublisher interface {
	Publish(ctx context.Context, event AuthEvent)
}

// StreamPublisher appends audit events to the worker task stream. Publishing
// never fails the request; errors are logged.
type StreamPublisher struct {
	client *redis.Client
	stream string
	log    zerolog.Logger
}

func NewStreamPublisher(client *redis.Client, stream string, log zerolog.Logger) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream, log: log}
}

func (p *StreamPublisher) Publish(ctx context.Context, event AuthEvent) {
	if p == nil || p.client == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: 100000,
		Approx: true,
		Values: map[string]any{
			"type":    TaskAuthEvent,
			"event":   event.Name,
			"user_id": event.UserID,
			"email":   event.Email,
			"ip":      event.IPAddress,
			"at":      event.At.Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		p.log.Warn().Err(err).Str("event", event.Name).Msg("publish auth event failed")
	}
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, AuthEvent) {}
