package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"leverclick/internal/game"
)

func TestSubject(t *testing.T) {
	tests := []struct {
		typ  game.EventType
		want string
	}{
		{typ: game.EventPositionLiquidated, want: "leverclick.match.position_liquidated.m1"},
		{typ: game.EventBankruptcy, want: "leverclick.match.bankruptcy.m1"},
	}
	for _, tc := range tests {
		if got := Subject(tc.typ, "m1"); got != tc.want {
			t.Fatalf("got %q want %q", got, tc.want)
		}
	}
}

// fakeStream records every publish attempt. failSubject is rejected and
// release, when set, holds each call until it is closed or ctx expires.
type fakeStream struct {
	mu          sync.Mutex
	subjects    []string
	failSubject string
	release     chan struct{}
	attempts    chan string
}

func newFakeStream() *fakeStream {
	return &fakeStream{attempts: make(chan string, 64)}
}

func (f *fakeStream) Publish(ctx context.Context, subject string, _ []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.attempts <- subject
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if subject == f.failSubject {
		return nil, errors.New("nats: no responders available for request")
	}
	f.mu.Lock()
	f.subjects = append(f.subjects, subject)
	f.mu.Unlock()
	return &jetstream.PubAck{Stream: StreamName}, nil
}

func (f *fakeStream) published() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subjects...)
}

func waitAttempts(t *testing.T, f *fakeStream, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-f.attempts:
		case <-deadline:
			t.Fatalf("saw %d publish attempts, want %d", i, n)
		}
	}
}

func testUpdate(id uuid.UUID, types ...game.EventType) game.MatchUpdate {
	update := game.MatchUpdate{MatchID: id, Tick: 7}
	for i, typ := range types {
		update.Events = append(update.Events, game.Event{Seq: int64(i + 1), Type: typ})
	}
	return update
}

func TestPublisherKeepsSendingAfterFailedEvent(t *testing.T) {
	id := uuid.New()
	stream := newFakeStream()
	stream.failSubject = Subject(game.EventPositionLiquidated, id.String())
	p := newPublisher(stream, nil, 4, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	update := testUpdate(id, game.EventPositionOpened, game.EventPositionLiquidated, game.EventBankruptcy)
	if err := p.Publish(ctx, update); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitAttempts(t, stream, 3)

	cancel()
	<-p.done
	got := stream.published()
	want := []string{
		Subject(game.EventPositionOpened, id.String()),
		Subject(game.EventBankruptcy, id.String()),
	}
	if len(got) != len(want) {
		t.Fatalf("published %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("published[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPublishDoesNotWaitOnStalledStream(t *testing.T) {
	stream := newFakeStream()
	stream.release = make(chan struct{})
	p := newPublisher(stream, nil, 1, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	id := uuid.New()
	if err := p.Publish(ctx, testUpdate(id, game.EventPositionOpened)); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	waitAttempts(t, stream, 1)

	start := time.Now()
	if err := p.Publish(ctx, testUpdate(id, game.EventPositionOpened)); err != nil {
		t.Fatalf("queued publish: %v", err)
	}
	err := p.Publish(ctx, testUpdate(id, game.EventPositionOpened))
	if !errors.Is(err, errFeedBacklogged) {
		t.Fatalf("publish on full queue = %v, want errFeedBacklogged", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("publish blocked for %s behind a stalled stream", elapsed)
	}

	close(stream.release)
	deadline := time.Now().Add(2 * time.Second)
	for len(stream.published()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("published %d events, want 2", len(stream.published()))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPublisherBoundsEachEventByAckTimeout(t *testing.T) {
	stream := newFakeStream()
	stream.release = make(chan struct{})
	defer close(stream.release)
	p := newPublisher(stream, nil, 4, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	id := uuid.New()
	update := testUpdate(id, game.EventPositionOpened, game.EventPositionClosed, game.EventBankruptcy)
	if err := p.Publish(ctx, update); err != nil {
		t.Fatalf("publish: %v", err)
	}
	// Every event gets its own attempt even though each one times out.
	waitAttempts(t, stream, 3)
}

func TestPublishSkipsEmptyUpdate(t *testing.T) {
	stream := newFakeStream()
	p := newPublisher(stream, nil, 1, time.Second)
	for i := 0; i < 3; i++ {
		if err := p.Publish(context.Background(), game.MatchUpdate{MatchID: uuid.New()}); err != nil {
			t.Fatalf("publish empty update: %v", err)
		}
	}
	if len(p.queue) != 0 {
		t.Fatalf("queued %d empty updates", len(p.queue))
	}
}
