package game

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"leverclick/internal/metrics"
)

// Clock supplies the time a runner ticks against.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock only moves when Advance is called. Used for tutorial runs and tests.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Publisher receives the view of a match after every tick.
type Publisher interface {
	Publish(ctx context.Context, update MatchUpdate) error
}

// ResultSink archives the standings of a finished match.
type ResultSink interface {
	SaveResult(ctx context.Context, result MatchResult) error
}

type RunnerConfig struct {
	TickEvery  time.Duration
	Clock      Clock
	Publishers []Publisher
	Results    ResultSink
}

// Runner drives one match: tick, publish, and finish once the duration elapses.
type Runner struct {
	match *Match
	cfg   RunnerConfig
	log   *slog.Logger
	last  time.Time
}

func NewRunner(m *Match, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.TickEvery <= 0 {
		cfg.TickEvery = 100 * time.Millisecond
	}
	return &Runner{
		match: m,
		cfg:   cfg,
		log:   logger.With("match_id", m.ID.String()),
		last:  cfg.Clock.Now(),
	}
}

// Run ticks until the match finishes or ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.TickEvery)
	defer ticker.Stop()

	r.log.Info("runner started", "tick_every", r.cfg.TickEvery.String())
	for {
		select {
		case <-ctx.Done():
			r.log.Info("runner shutdown", "err", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			if _, done := r.Step(ctx); done {
				return nil
			}
		}
	}
}

// Step applies one tick using the time elapsed on the clock since the last
// step. It reports true once the match has finished.
func (r *Runner) Step(ctx context.Context) (TickReport, bool) {
	now := r.cfg.Clock.Now()
	dt := now.Sub(r.last)
	r.last = now

	if r.match.Status() == MatchFinished {
		return TickReport{}, true
	}
	report := r.match.Tick(dt, now)
	r.publish(ctx, r.match.Update(now))

	if !r.match.Expired(now) {
		return report, false
	}
	r.finish(ctx, now)
	return report, true
}

func (r *Runner) finish(ctx context.Context, now time.Time) {
	result := r.match.Finish(now)
	if r.cfg.Results != nil {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := r.cfg.Results.SaveResult(saveCtx, result); err != nil {
			r.log.Error("archive result failed", "err", err)
		}
		cancel()
	}
	r.publish(ctx, r.match.Update(now))
	if len(result.Standings) > 0 {
		r.log.Info("match result", "winner", result.Standings[0].Name, "net_worth", result.Standings[0].NetWorth.StringFixed(2), "ticks", result.Ticks)
	}
}

func (r *Runner) publish(ctx context.Context, update MatchUpdate) {
	for _, p := range r.cfg.Publishers {
		if err := p.Publish(ctx, update); err != nil && !errors.Is(err, context.Canceled) {
			metrics.PublishFailures.WithLabelValues(publisherName(p)).Inc()
			r.log.Warn("publish update failed", "tick", update.Tick, "err", err)
		}
	}
}

type namedPublisher interface {
	Name() string
}

func publisherName(p Publisher) string {
	if n, ok := p.(namedPublisher); ok {
		return n.Name()
	}
	return "unknown"
}
