// Package cloudsync pushes the latest bundle to a broker topic on a
// best-effort basis. Delivery is retried on a fixed delay and never blocks
// the caller's session.
package cloudsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Options tune a Syncer.
type Options struct {
	RetryDelay  time.Duration
	MaxAttempts int
	Retained    bool
}

// DefaultOptions retries three times, five seconds apart, and asks the
// broker to retain the last bundle for late viewers.
func DefaultOptions() Options {
	return Options{RetryDelay: 5 * time.Second, MaxAttempts: 3, Retained: true}
}

// Syncer publishes payloads to one topic.
type Syncer struct {
	pub  Publisher
	opts Options
	log  *zap.SugaredLogger

	mu    sync.Mutex
	state State

	cron *cron.Cron
	wg   sync.WaitGroup
	now  func() time.Time
}

// NewSyncer creates a syncer for topic.
func NewSyncer(pub Publisher, topic string, opts Options, logger *zap.SugaredLogger) *Syncer {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Syncer{
		pub:   pub,
		opts:  opts,
		log:   logger,
		state: *NewState(topic),
		cron:  cron.New(cron.WithLocation(time.UTC)),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// State returns a snapshot of the push state.
func (s *Syncer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Topic is the topic payloads are published to.
func (s *Syncer) Topic() string {
	return s.State().Topic
}

// Push publishes p, retrying on failure up to MaxAttempts times.
func (s *Syncer) Push(ctx context.Context, p Payload) error {
	topic := s.Topic()
	var err error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		err = s.pub.Publish(ctx, topic, p.JSON, s.opts.Retained)
		if err == nil {
			s.mu.Lock()
			s.state.RecordSuccess(s.now(), p.Bundle.ID)
			s.mu.Unlock()
			s.log.Infow("bundle synced", "topic", topic, "bundle_id", p.Bundle.ID, "attempt", attempt)
			return nil
		}

		s.mu.Lock()
		s.state.RecordError(err.Error())
		s.mu.Unlock()
		s.log.Warnw("sync attempt failed", "topic", topic, "attempt", attempt, "error", err)

		if attempt == s.opts.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.opts.RetryDelay):
		}
	}
	return fmt.Errorf("sync to %s failed after %d attempts: %w", topic, s.opts.MaxAttempts, err)
}

// PushAsync runs Push in the background. Failures are logged only.
func (s *Syncer) PushAsync(ctx context.Context, p Payload) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Push(ctx, p); err != nil {
			s.log.Errorw("sync gave up", "error", err)
		}
	}()
}

// Wait blocks until background pushes finish.
func (s *Syncer) Wait() {
	s.wg.Wait()
}

// Schedule re-pushes whatever build returns on the cron spec.
func (s *Syncer) Schedule(spec string, build func(ctx context.Context) (Payload, error)) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		p, err := build(ctx)
		if err != nil {
			s.log.Warnw("scheduled sync skipped", "error", err)
			return
		}
		if err := s.Push(ctx, p); err != nil {
			s.log.Errorw("scheduled sync failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to register sync job: %w", err)
	}
	return nil
}

// Start begins scheduled pushes.
func (s *Syncer) Start() {
	s.cron.Start()
	s.log.Infow("sync scheduler started", "topic", s.Topic())
}

// Stop ends scheduled pushes and waits for running jobs and background pushes.
func (s *Syncer) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.wg.Wait()
	s.log.Info("sync scheduler stopped")
}
