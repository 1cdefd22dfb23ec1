package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type recordingPublisher struct {
	mu      sync.Mutex
	updates []MatchUpdate
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, update MatchUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, update)
	return p.err
}

type recordingSink struct {
	results []MatchResult
}

func (s *recordingSink) SaveResult(_ context.Context, result MatchResult) error {
	s.results = append(s.results, result)
	return nil
}

func TestRunnerStepFinishesMatch(t *testing.T) {
	clock := NewManualClock(t0)
	m := NewMatch(MatchConfig{Rules: DefaultRules(), Duration: time.Second}, nil, clock.Now())
	for _, name := range []string{"alice", "bob"} {
		if _, err := m.Join(name, clock.Now()); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	if _, err := m.BuyGenerator("alice", "intern", clock.Now()); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := m.Start(clock.Now()); err != nil {
		t.Fatalf("start: %v", err)
	}

	pub := &recordingPublisher{}
	failing := &recordingPublisher{err: errors.New("broker down")}
	sink := &recordingSink{}
	runner := NewRunner(m, RunnerConfig{Clock: clock, Publishers: []Publisher{pub, failing}, Results: sink}, nil)
	ctx := context.Background()

	clock.Advance(500 * time.Millisecond)
	if _, done := runner.Step(ctx); done {
		t.Fatalf("match finished early")
	}
	if got := balanceOf(m, "alice"); got != "400.5" {
		t.Fatalf("alice=%s want 400.5 after half a second", got)
	}

	clock.Advance(600 * time.Millisecond)
	if _, done := runner.Step(ctx); !done {
		t.Fatalf("expected match to finish once duration elapsed")
	}
	if m.Status() != MatchFinished {
		t.Fatalf("status=%s", m.Status())
	}
	if len(sink.results) != 1 || sink.results[0].Standings[0].Name != "bob" {
		t.Fatalf("archived results: %+v", sink.results)
	}
	// two tick updates plus the final one; a failing publisher does not stop the others
	if len(pub.updates) != 3 || len(failing.updates) != 3 {
		t.Fatalf("updates=%d failing=%d", len(pub.updates), len(failing.updates))
	}
	last := pub.updates[len(pub.updates)-1]
	if last.Status != MatchFinished {
		t.Fatalf("final update status=%s", last.Status)
	}

	if _, done := runner.Step(ctx); !done {
		t.Fatalf("finished match must stay done")
	}
}

func TestRunnerRunStopsOnCancel(t *testing.T) {
	m := NewMatch(MatchConfig{Rules: DefaultRules(), Duration: time.Hour}, nil, time.Now())
	if _, err := m.Start(time.Now()); err != nil {
		t.Fatalf("start: %v", err)
	}
	runner := NewRunner(m, RunnerConfig{TickEvery: time.Millisecond}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := runner.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if m.View(time.Now()).Tick == 0 {
		t.Fatalf("runner never ticked")
	}
}

func TestServiceRegistry(t *testing.T) {
	clock := NewManualClock(t0)
	svc := NewService(ServiceConfig{Rules: DefaultRules(), Duration: time.Minute, Runner: RunnerConfig{Clock: clock, TickEvery: time.Millisecond}}, nil)
	defer svc.Shutdown()

	m := svc.CreateMatch(0)
	got, err := svc.Match(m.ID)
	if err != nil || got != m {
		t.Fatalf("lookup: %v", err)
	}
	if _, err := svc.Match(uuid.New()); !errors.Is(err, ErrMatchNotFound) {
		t.Fatalf("expected ErrMatchNotFound, got %v", err)
	}
	if list := svc.ListMatches(); len(list) != 1 || list[0].Duration != time.Minute {
		t.Fatalf("list: %+v", list)
	}

	if err := svc.StartMatch(m.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if m.Status() != MatchRunning {
		t.Fatalf("status=%s", m.Status())
	}
	if err := svc.StartMatch(m.ID); err != nil {
		t.Fatalf("restart must be a no-op: %v", err)
	}

	if err := svc.RemoveMatch(m.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if m.Status() != MatchFinished {
		t.Fatalf("removed match must be finished")
	}
	if err := svc.RemoveMatch(m.ID); !errors.Is(err, ErrMatchNotFound) {
		t.Fatalf("expected ErrMatchNotFound, got %v", err)
	}
}

func TestMatchStartTransitionsOnce(t *testing.T) {
	m := NewMatch(MatchConfig{Rules: DefaultRules(), Duration: time.Minute}, nil, t0)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.Start(t0)
			if err != nil {
				t.Errorf("start: %v", err)
				return
			}
			if ok {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if started != 1 {
		t.Fatalf("%d callers saw the transition, want 1", started)
	}
	if ok, err := m.Start(t0); ok || err != nil {
		t.Fatalf("second start: ok=%v err=%v", ok, err)
	}
}

func TestConcurrentStartMatchLaunchesOneRunner(t *testing.T) {
	clock := NewManualClock(t0)
	svc := NewService(ServiceConfig{
		Rules:    DefaultRules(),
		Duration: time.Hour,
		Runner:   RunnerConfig{Clock: clock, TickEvery: 20 * time.Millisecond},
	}, nil)
	defer svc.Shutdown()
	m := svc.CreateMatch(0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.StartMatch(m.ID); err != nil {
				t.Errorf("start: %v", err)
			}
		}()
	}
	wg.Wait()

	time.Sleep(200 * time.Millisecond)
	// one runner manages about 10 ticks in this window, eight would manage about 80
	if tick := m.View(clock.Now()).Tick; tick > 25 {
		t.Fatalf("%d ticks in 200ms at a 20ms period: more than one runner", tick)
	}
}

func TestFinishedMatchIsRetired(t *testing.T) {
	clock := NewManualClock(t0)
	svc := NewService(ServiceConfig{
		Rules:    DefaultRules(),
		Duration: time.Second,
		Runner:   RunnerConfig{Clock: clock, TickEvery: 2 * time.Millisecond},
		Retain:   10 * time.Millisecond,
	}, nil)
	defer svc.Shutdown()

	removed := make(chan uuid.UUID, 1)
	svc.OnRemove(func(id uuid.UUID) { removed <- id })

	m := svc.CreateMatch(0)
	if err := svc.StartMatch(m.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(2 * time.Second)

	select {
	case id := <-removed:
		if id != m.ID {
			t.Fatalf("removed %s want %s", id, m.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("finished match was never retired")
	}
	if m.Status() != MatchFinished {
		t.Fatalf("status=%s", m.Status())
	}
	if _, err := svc.Match(m.ID); !errors.Is(err, ErrMatchNotFound) {
		t.Fatalf("retired match still listed: %v", err)
	}
}

func TestPendingEventsAreBounded(t *testing.T) {
	m := NewMatch(MatchConfig{Rules: DefaultRules(), Duration: time.Minute}, nil, t0)
	if _, err := m.Join("alice", t0); err != nil {
		t.Fatalf("join: %v", err)
	}
	for i := 0; i < maxEventRing*2; i++ {
		m.mu.Lock()
		m.record(Event{Type: EventGeneratorBought, At: t0})
		m.mu.Unlock()
	}
	update := m.Update(t0)
	if len(update.Events) != maxEventRing {
		t.Fatalf("pending=%d want %d", len(update.Events), maxEventRing)
	}
	if last := update.Events[len(update.Events)-1]; last.Seq != m.seq {
		t.Fatalf("newest event dropped: last seq %d want %d", last.Seq, m.seq)
	}
}

func TestRemoveMatchRunsEveryHook(t *testing.T) {
	svc := NewService(ServiceConfig{Rules: DefaultRules(), Duration: time.Minute}, nil)
	defer svc.Shutdown()

	var got []string
	svc.OnRemove(func(id uuid.UUID) { got = append(got, "tokens:"+id.String()) })
	svc.OnRemove(func(id uuid.UUID) { got = append(got, "cache:"+id.String()) })

	m := svc.CreateMatch(0)
	if err := svc.RemoveMatch(m.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	want := []string{"tokens:" + m.ID.String(), "cache:" + m.ID.String()}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("hooks=%v want %v", got, want)
	}
	if m.Status() != MatchFinished {
		t.Fatalf("status=%s", m.Status())
	}
	if err := svc.RemoveMatch(m.ID); !errors.Is(err, ErrMatchNotFound) {
		t.Fatalf("second remove: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("hooks ran again on a missing match: %v", got)
	}
}
