// Package feed publishes match events to NATS JetStream for downstream
// consumers such as replay viewers and analytics.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"leverclick/internal/game"
	"leverclick/internal/metrics"
)

const (
	StreamName    = "LEVERCLICK_EVENTS"
	subjectPrefix = "leverclick.match"
)

// Envelope is the wire form of one published match event.
type Envelope struct {
	MatchID string     `json:"match_id"`
	Tick    int64      `json:"tick"`
	Event   game.Event `json:"event"`
}

// StreamPublisher is the part of jetstream.JetStream the feed needs.
type StreamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

var errFeedBacklogged = errors.New("nats feed backlogged, update dropped")

const (
	defaultQueueSize  = 256
	defaultAckTimeout = 2 * time.Second
)

// Publisher forwards the events of every MatchUpdate, one message per event,
// on leverclick.match.{event_type}.{match_id}. Publish only enqueues; Run
// talks to JetStream, so a slow or absent broker never stalls a tick.
type Publisher struct {
	js         StreamPublisher
	log        *slog.Logger
	queue      chan game.MatchUpdate
	ackTimeout time.Duration
	done       chan struct{}
}

func NewPublisher(js StreamPublisher, logger *slog.Logger) *Publisher {
	return newPublisher(js, logger, defaultQueueSize, defaultAckTimeout)
}

func newPublisher(js StreamPublisher, logger *slog.Logger, queueSize int, ackTimeout time.Duration) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		js:         js,
		log:        logger,
		queue:      make(chan game.MatchUpdate, queueSize),
		ackTimeout: ackTimeout,
		done:       make(chan struct{}),
	}
}

func (p *Publisher) Name() string { return "nats" }

// Publish queues the update's events. A full queue drops the update.
func (p *Publisher) Publish(_ context.Context, update game.MatchUpdate) error {
	if len(update.Events) == 0 {
		return nil
	}
	select {
	case p.queue <- update:
		return nil
	case <-p.done:
		return nil
	default:
		return errFeedBacklogged
	}
}

// Run sends queued updates until ctx is cancelled, then flushes what is left
// under a short deadline. Must be called in a goroutine.
func (p *Publisher) Run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			p.flush(context.WithoutCancel(ctx))
			return
		case update := <-p.queue:
			p.send(ctx, update)
		}
	}
}

func (p *Publisher) flush(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.ackTimeout)
	defer cancel()
	for {
		select {
		case update := <-p.queue:
			p.send(ctx, update)
		default:
			return
		}
	}
}

// send publishes every event of update, each under its own ack deadline.
// A failed event is counted and skipped. It returns the number of failures.
func (p *Publisher) send(ctx context.Context, update game.MatchUpdate) int {
	matchID := update.MatchID.String()
	failed := 0
	for i, evt := range update.Events {
		if ctx.Err() != nil {
			failed += len(update.Events) - i
			break
		}
		if err := p.sendEvent(ctx, matchID, update.Tick, evt); err != nil {
			failed++
			metrics.PublishFailures.WithLabelValues(p.Name()).Inc()
			p.log.Warn("publish event failed", "match_id", matchID, "seq", evt.Seq, "err", err)
		}
	}
	if sent := len(update.Events) - failed; sent > 0 {
		p.log.Debug("events published", "match_id", matchID, "tick", update.Tick, "count", sent)
	}
	return failed
}

func (p *Publisher) sendEvent(ctx context.Context, matchID string, tick int64, evt game.Event) error {
	data, err := json.Marshal(Envelope{MatchID: matchID, Tick: tick, Event: evt})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.ackTimeout)
	defer cancel()
	subject := Subject(evt.Type, matchID)
	msgID := fmt.Sprintf("%s-%d", matchID, evt.Seq)
	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(msgID)); err != nil {
		return fmt.Errorf("publish %s seq=%d: %w", subject, evt.Seq, err)
	}
	return nil
}

func Subject(eventType game.EventType, matchID string) string {
	return fmt.Sprintf("%s.%s.%s", subjectPrefix, eventType, matchID)
}

// EnsureStream creates or updates the event stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{subjectPrefix + ".>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     72 * time.Hour,
		Duplicates: 2 * time.Minute,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	return nil
}

// Connect dials NATS with unlimited reconnects and opens a JetStream context.
func Connect(url string, logger *slog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("leverclick-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}
