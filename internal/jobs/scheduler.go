package jobs

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"collectdesk/internal/service"
)

// SessionCleanupSpec runs at the top of every hour (seconds field first).
const SessionCleanupSpec = "0 0 * * * *"

type Scheduler struct {
	cron   *cron.Cron
	queue  *redis.Client
	stream string
	log    zerolog.Logger
}

func NewScheduler(queue *redis.Client, stream string, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:   c,
		queue:  queue,
		stream: stream,
		log:    log,
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil {
		return nil
	}

	if _, err := s.cron.AddFunc(SessionCleanupSpec, s.enqueueSessionCleanup); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("scheduler started")
	return nil
}

// Stop waits up to five seconds for running jobs.
func (s *Scheduler) Stop() {
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) enqueueSessionCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.EnqueueSessionCleanup(ctx); err != nil {
		s.log.Error().Err(err).Msg("enqueue session cleanup failed")
	}
}

func (s *Scheduler) EnqueueSessionCleanup(ctx context.Context) error {
	return s.enqueueTask(ctx, map[string]any{
		"type": service.TaskSessionCleanup,
		"at":   time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Scheduler) enqueueTask(ctx context.Context, payload map[string]any) error {
	if s.queue == nil {
		return nil
	}
	_, err := s.queue.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: payload,
	}).Result()
	return err
}
