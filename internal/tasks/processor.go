package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"collectdesk/internal/service"
)

type SessionCleaner interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type Processor struct {
	sessions SessionCleaner
	logger   zerolog.Logger
	now      func() time.Time
}

// TaskPayload mirrors the flat field set written to the task stream.
type TaskPayload struct {
	Type   string `json:"type"`
	Event  string `json:"event"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	IP     string `json:"ip"`
	At     string `json:"at"`
}

func NewProcessor(sessions SessionCleaner, logger zerolog.Logger) *Processor {
	return &Processor{
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var payload TaskPayload
	if err := decodePayload(msg.Values, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch payload.Type {
	case service.TaskSessionCleanup:
		return p.handleSessionCleanup(ctx)
	case service.TaskAuthEvent:
		return p.handleAuthEvent(msg.ID, payload)
	default:
		p.logger.Warn().Str("type", payload.Type).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

func decodePayload(values map[string]interface{}, out *TaskPayload) error {
	bytes, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}

func (p *Processor) handleSessionCleanup(ctx context.Context) error {
	if p.sessions == nil {
		return nil
	}
	deleted, err := p.sessions.DeleteExpired(ctx, p.now())
	if err != nil {
		return fmt.Errorf("delete expired sessions: %w", err)
	}
	p.logger.Info().Int64("deleted", deleted).Msg("expired sessions removed")
	return nil
}

func (p *Processor) handleAuthEvent(id string, payload TaskPayload) error {
	p.logger.Info().
		Str("audit", payload.Event).
		Str("user_id", payload.UserID).
		Str("email", payload.Email).
		Str("ip", payload.IP).
		Str("at", payload.At).
		Str("message_id", id).
		Msg("auth event")
	return nil
}
