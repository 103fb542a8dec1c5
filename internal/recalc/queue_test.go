// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

package recalc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/mahiru/internal/cache"
	"github.com/tomtom215/mahiru/internal/config"
	"github.com/tomtom215/mahiru/internal/models"
	"github.com/tomtom215/mahiru/internal/notify"
	"github.com/tomtom215/mahiru/internal/scoring"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakePlayers struct {
	mu      sync.Mutex
	players map[string]*models.Player
	scores  map[string][]models.Score
	saved   []models.Recalculation
	getErr  error
}

func newFakePlayers(ids ...string) *fakePlayers {
	p := &fakePlayers{
		players: make(map[string]*models.Player),
		scores:  make(map[string][]models.Score),
	}
	for _, id := range ids {
		p.add(id, false)
	}
	return p
}

func (p *fakePlayers) add(id string, archived bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.players[id] = &models.Player{ID: id, Username: "player" + id, Archived: archived}
	p.scores[id] = []models.Score{
		{ID: id + "-a", PlayerID: id, BeatmapHash: "map-" + id + "-a", Mods: []string{"HD"}, MaxCombo: 100, Accuracy: 0.90},
		{ID: id + "-b", PlayerID: id, BeatmapHash: "map-" + id + "-b", Mods: []string{"DT", "HD"}, MaxCombo: 200, Accuracy: 0.99},
	}
}

func (p *fakePlayers) GetPlayer(_ context.Context, id string) (*models.Player, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return nil, p.getErr
	}
	player, ok := p.players[id]
	if !ok {
		return nil, nil
	}
	cp := *player
	return &cp, nil
}

func (p *fakePlayers) ListPlayerIDs(_ context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.players))
	for id := range p.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (p *fakePlayers) ListScores(_ context.Context, playerID string) ([]models.Score, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Score(nil), p.scores[playerID]...), nil
}

func (p *fakePlayers) SaveRecalculation(_ context.Context, rec models.Recalculation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = append(p.saved, rec)
	return nil
}

func (p *fakePlayers) savedFor(userID string) []models.Recalculation {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.Recalculation
	for _, r := range p.saved {
		if r.PlayerID == userID {
			out = append(out, r)
		}
	}
	return out
}

// countingEngine values a score at its max combo and records concurrency.
type countingEngine struct {
	difficultyCalls  atomic.Int64
	performanceCalls atomic.Int64
	active           atomic.Int64
	maxActive        atomic.Int64
	failHash         string
}

func (e *countingEngine) enter() func() {
	n := e.active.Add(1)
	for {
		m := e.maxActive.Load()
		if n <= m || e.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	return func() { e.active.Add(-1) }
}

func (e *countingEngine) Difficulty(_ context.Context, req scoring.DifficultyRequest) (scoring.Attributes, error) {
	defer e.enter()()
	e.difficultyCalls.Add(1)
	if req.BeatmapHash == e.failHash {
		return scoring.Attributes{}, errors.New("calculator crashed")
	}
	return scoring.Attributes{StarRating: 5, MaxCombo: 1000}, nil
}

func (e *countingEngine) Performance(_ context.Context, req scoring.PerformanceRequest) (float64, error) {
	defer e.enter()()
	e.performanceCalls.Add(1)
	return float64(req.Score.MaxCombo), nil
}

func (e *countingEngine) calls() int64 {
	return e.difficultyCalls.Load() + e.performanceCalls.Load()
}

type recordingSink struct {
	ch chan notify.Outcome
}

func newRecordingSink() *recordingSink {
	return &recordingSink{ch: make(chan notify.Outcome, 100)}
}

func (s *recordingSink) Notify(_ context.Context, _ notify.Origin, o notify.Outcome) {
	s.ch <- o
}

func (s *recordingSink) next(t *testing.T) notify.Outcome {
	t.Helper()
	select {
	case o := <-s.ch:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for outcome")
		return notify.Outcome{}
	}
}

type fixture struct {
	q       *Queue
	players *fakePlayers
	engine  *countingEngine
	catalog *scoring.ReworkCatalog
	sink    *recordingSink
}

func newFixture(t *testing.T, cfg Config, players *fakePlayers, opts ...Option) *fixture {
	t.Helper()

	catalog := scoring.NewReworkCatalog(config.ReworkConfig{
		Active: "v2",
		Catalog: map[string]config.ReworkEntry{
			"v1": {Description: "retired"},
			"v2": {Params: map[string]float64{"aim_weight": 1.1}},
		},
	})
	engine := &countingEngine{}
	router, err := scoring.NewRouter(catalog, cache.New[scoring.Attributes](1000, nil), map[scoring.Variant]scoring.Engine{
		scoring.VariantLive:      engine,
		scoring.VariantRebalance: engine,
	})
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}

	sink := newRecordingSink()
	q := New(players, router, sink, cfg, opts...)
	t.Cleanup(q.Close)

	return &fixture{q: q, players: players, engine: engine, catalog: catalog, sink: sink}
}

// startWorker runs the queue worker until the test ends.
func startWorker(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	})
}

func waitIdle(t *testing.T, q *Queue) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap := q.Snapshot()
		if snap.Running == nil && len(snap.Pending) == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("queue did not drain")
}

// ---------------------------------------------------------------------------
// Enqueue
// ---------------------------------------------------------------------------

func TestEnqueue_DuplicateRejectedWhileInFlight(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, newFakePlayers("42"))
	ctx := context.Background()

	if err := f.q.Enqueue(ctx, Job{UserID: "42", Rework: "live"}); err != nil {
		t.Fatalf("first Enqueue() error = %v", err)
	}
	err := f.q.Enqueue(ctx, Job{UserID: "42", Rework: "live"})
	if !errors.Is(err, ErrDuplicateInFlight) {
		t.Fatalf("second Enqueue() error = %v, want ErrDuplicateInFlight", err)
	}

	// Same user under another rework is a different key.
	if err := f.q.Enqueue(ctx, Job{UserID: "42", Rework: "v2"}); err != nil {
		t.Fatalf("Enqueue(v2) error = %v", err)
	}

	startWorker(t, f.q)

	first := f.sink.next(t)
	if first.Status != notify.StatusSuccess || first.Rework != "live" {
		t.Fatalf("first outcome = %+v, want live success", first)
	}
	if first.TotalPerformance != 295 {
		t.Errorf("TotalPerformance = %v, want 295", first.TotalPerformance)
	}
	if second := f.sink.next(t); second.Rework != "v2" {
		t.Errorf("second outcome rework = %q, want v2", second.Rework)
	}

	waitIdle(t, f.q)
	if err := f.q.Enqueue(ctx, Job{UserID: "42", Rework: "live"}); err != nil {
		t.Errorf("Enqueue() after completion error = %v", err)
	}
}

func TestEnqueue_RetiredReworkRejectedWithoutEngineCall(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, newFakePlayers("42"))
	ctx := context.Background()

	err := f.q.Enqueue(ctx, Job{UserID: "42", Rework: "v1"})
	if !errors.Is(err, scoring.ErrInactiveRework) {
		t.Fatalf("Enqueue(v1) error = %v, want ErrInactiveRework", err)
	}
	if got := Classify(err); got != KindInactiveRework {
		t.Errorf("Classify() = %q, want %q", got, KindInactiveRework)
	}

	err = f.q.Enqueue(ctx, Job{UserID: "42", Rework: "no-such-rework"})
	if !errors.Is(err, scoring.ErrUnknownRework) {
		t.Fatalf("Enqueue(unknown) error = %v, want ErrUnknownRework", err)
	}

	if n := f.engine.calls(); n != 0 {
		t.Errorf("engine called %d times, want 0", n)
	}
	if snap := f.q.Snapshot(); len(snap.Pending) != 0 {
		t.Errorf("pending = %d, want 0", len(snap.Pending))
	}
}

func TestEnqueue_PlayerChecks(t *testing.T) {
	t.Parallel()

	players := newFakePlayers("1")
	players.add("archived", true)
	f := newFixture(t, Config{}, players)

	tests := []struct {
		name string
		job  Job
		want error
	}{
		{"missing player", Job{UserID: "nobody", Rework: "live"}, ErrPlayerNotFound},
		{"archived player", Job{UserID: "archived", Rework: "live"}, ErrPlayerArchived},
		{"no user", Job{Rework: "live"}, ErrInvalidJob},
		{"no rework", Job{UserID: "1"}, ErrInvalidJob},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.q.Enqueue(context.Background(), tt.job); !errors.Is(err, tt.want) {
				t.Errorf("Enqueue() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEnqueue_StoreErrorRejects(t *testing.T) {
	t.Parallel()

	players := newFakePlayers("1")
	players.getErr = errors.New("connection refused")
	f := newFixture(t, Config{}, players)

	err := f.q.Enqueue(context.Background(), Job{UserID: "1", Rework: "live"})
	if !errors.Is(err, ErrStore) {
		t.Fatalf("Enqueue() error = %v, want ErrStore", err)
	}
	if got := Classify(err); got != KindStore {
		t.Errorf("Classify() = %q, want %q", got, KindStore)
	}
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

func TestRun_CompletesInSubmissionOrder(t *testing.T) {
	t.Parallel()

	ids := []string{"d", "b", "a", "c", "e"}
	f := newFixture(t, Config{}, newFakePlayers(ids...))
	for _, id := range ids {
		if err := f.q.Enqueue(context.Background(), Job{UserID: id, Rework: "live"}); err != nil {
			t.Fatalf("Enqueue(%s) error = %v", id, err)
		}
	}

	snap := f.q.Snapshot()
	for i, job := range snap.Pending {
		if job.UserID != ids[i] {
			t.Errorf("pending[%d] = %s, want %s", i, job.UserID, ids[i])
		}
		if i > 0 && job.Seq <= snap.Pending[i-1].Seq {
			t.Errorf("pending[%d].Seq = %d not increasing", i, job.Seq)
		}
	}

	startWorker(t, f.q)

	for _, want := range ids {
		if got := f.sink.next(t); got.UserID != want {
			t.Errorf("completed %s, want %s", got.UserID, want)
		}
	}
	if m := f.engine.maxActive.Load(); m != 1 {
		t.Errorf("max concurrent engine calls = %d, want 1", m)
	}
}

func TestRun_JobFailureDoesNotStopWorker(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, newFakePlayers("a", "b", "c"))
	f.engine.failHash = "map-b-a"

	for _, id := range []string{"a", "b", "c"} {
		if err := f.q.Enqueue(context.Background(), Job{UserID: id, Rework: "live"}); err != nil {
			t.Fatalf("Enqueue(%s) error = %v", id, err)
		}
	}
	startWorker(t, f.q)

	wants := []struct {
		user   string
		status notify.Status
		reason string
	}{
		{"a", notify.StatusSuccess, ""},
		{"b", notify.StatusFailure, string(KindEngine)},
		{"c", notify.StatusSuccess, ""},
	}
	for _, want := range wants {
		got := f.sink.next(t)
		if got.UserID != want.user || got.Status != want.status || got.Reason != want.reason {
			t.Errorf("outcome = {%s %s %s}, want {%s %s %s}", got.UserID, got.Status, got.Reason, want.user, want.status, want.reason)
		}
	}

	if saved := f.players.savedFor("b"); len(saved) != 0 {
		t.Errorf("failed job persisted %d results", len(saved))
	}
	waitIdle(t, f.q)
	if snap := f.q.Snapshot(); snap.Processed != 2 || snap.Failed != 1 {
		t.Errorf("processed/failed = %d/%d, want 2/1", snap.Processed, snap.Failed)
	}
}

func TestRun_ReworkRetiredAfterAcceptance(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, newFakePlayers("42"))
	if err := f.q.Enqueue(context.Background(), Job{UserID: "42", Rework: "v2"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := f.catalog.SetActive(""); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}
	startWorker(t, f.q)

	got := f.sink.next(t)
	if got.Status != notify.StatusFailure || got.Reason != string(KindInactiveRework) {
		t.Errorf("outcome = %+v, want inactive_rework failure", got)
	}
	if n := f.engine.calls(); n != 0 {
		t.Errorf("engine called %d times, want 0", n)
	}
}

func TestRun_PersistsWeightedResult(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, newFakePlayers("42"))
	if err := f.q.Enqueue(context.Background(), Job{UserID: "42", Rework: "live"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	startWorker(t, f.q)
	f.sink.next(t)

	saved := f.players.savedFor("42")
	if len(saved) != 1 {
		t.Fatalf("saved %d results, want 1", len(saved))
	}
	rec := saved[0]
	if rec.Scores[0].ScoreID != "42-b" {
		t.Errorf("best score = %s, want 42-b", rec.Scores[0].ScoreID)
	}
	if rec.Scores[0].StarRating != 5 {
		t.Errorf("StarRating = %v, want 5", rec.Scores[0].StarRating)
	}
}

func TestRun_CorruptedStateIsFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, newFakePlayers("1"))
	if err := f.q.Enqueue(context.Background(), Job{UserID: "1", Rework: "live"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	e, err := f.q.next(context.Background())
	if err != nil {
		t.Fatalf("next() error = %v", err)
	}
	f.q.mu.Lock()
	delete(f.q.inFlight, e.job.key())
	f.q.mu.Unlock()

	if err := f.q.finish(e, false); !errors.Is(err, ErrQueueCorrupted) {
		t.Errorf("finish() error = %v, want ErrQueueCorrupted", err)
	}
}

func TestRun_ResumesJobAfterWorkerRestart(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, newFakePlayers("1", "2"))
	for _, id := range []string{"1", "2"} {
		if err := f.q.Enqueue(context.Background(), Job{UserID: id, Rework: "live"}); err != nil {
			t.Fatalf("Enqueue(%s) error = %v", id, err)
		}
	}
	// Simulate a worker that died holding job 1.
	if _, err := f.q.next(context.Background()); err != nil {
		t.Fatalf("next() error = %v", err)
	}

	startWorker(t, f.q)
	if got := f.sink.next(t); got.UserID != "1" {
		t.Errorf("first completed = %s, want 1", got.UserID)
	}
	if got := f.sink.next(t); got.UserID != "2" {
		t.Errorf("second completed = %s, want 2", got.UserID)
	}
}

// resubmittingSink enqueues the same key again as soon as it hears that a
// job succeeded, the way an impatient requester would.
type resubmittingSink struct {
	*recordingSink
	q    *Queue
	once sync.Once
	errs chan error
}

func (s *resubmittingSink) Notify(ctx context.Context, origin notify.Origin, o notify.Outcome) {
	if o.Status == notify.StatusSuccess {
		s.once.Do(func() {
			s.errs <- s.q.Enqueue(ctx, Job{UserID: o.UserID, Rework: o.Rework, Origin: origin})
		})
	}
	s.recordingSink.Notify(ctx, origin, o)
}

func TestRun_KeyReleasedBeforeOutcomeIsReported(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, newFakePlayers("42"))
	sink := &resubmittingSink{recordingSink: newRecordingSink(), q: f.q, errs: make(chan error, 1)}
	f.q.sink = sink

	if err := f.q.Enqueue(context.Background(), Job{UserID: "42", Rework: "live"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	startWorker(t, f.q)

	select {
	case err := <-sink.errs:
		if err != nil {
			t.Fatalf("resubmission from Notify error = %v, want accepted", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("sink never saw a success")
	}

	for i := 0; i < 2; i++ {
		if o := sink.next(t); o.Status != notify.StatusSuccess || o.UserID != "42" {
			t.Errorf("outcome %d = %+v, want success for 42", i, o)
		}
	}
}

// blockingCalc accepts every rework and blocks scoring until the job's
// context ends.
type blockingCalc struct {
	started chan struct{}
	once    sync.Once
}

func (c *blockingCalc) Resolve(rework string) (scoring.Rework, error) {
	return scoring.Rework{Name: rework, Variant: scoring.VariantLive}, nil
}

func (c *blockingCalc) Performance(ctx context.Context, _ models.Score, _ string) (models.ScorePerformance, error) {
	c.once.Do(func() { close(c.started) })
	<-ctx.Done()
	return models.ScorePerformance{}, ctx.Err()
}

func TestRun_InterruptedJobStaysJournaledWithoutOutcome(t *testing.T) {
	t.Parallel()

	journal := NewBadgerJournal(openTestBadger(t))
	calc := &blockingCalc{started: make(chan struct{})}
	sink := newRecordingSink()
	q := New(newFakePlayers("1"), calc, sink, Config{}, WithJournal(journal))
	t.Cleanup(q.Close)

	if err := q.Enqueue(context.Background(), Job{UserID: "1", Rework: "live"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	waitClosed(t, calc.started, "job to start")
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}

	select {
	case o := <-sink.ch:
		t.Errorf("interrupted job reported %+v, want no outcome", o)
	default:
	}

	jobs, err := journal.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(jobs) != 1 || jobs[0].UserID != "1" {
		t.Errorf("journal = %+v, want the interrupted job", jobs)
	}
}

func TestEnqueue_AfterCloseRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, newFakePlayers("1"))
	f.q.Close()
	if err := f.q.Enqueue(context.Background(), Job{UserID: "1", Rework: "live"}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Enqueue() error = %v, want ErrQueueClosed", err)
	}
}

// ---------------------------------------------------------------------------
// Full sweep
// ---------------------------------------------------------------------------

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestFullSweep_SkipsPlayerWithJobInFlight(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{ConflictPolicy: ConflictSkip}, newFakePlayers("1", "2", "3"))
	ctx := context.Background()

	if err := f.q.Enqueue(ctx, Job{UserID: "2", Rework: "live", Origin: notify.Origin{Kind: "discord"}}); err != nil {
		t.Fatalf("Enqueue(2) error = %v", err)
	}
	ticket, err := f.q.EnqueueFullSweep(ctx, "live", notify.Origin{Kind: "system"})
	if err != nil {
		t.Fatalf("EnqueueFullSweep() error = %v", err)
	}
	waitClosed(t, ticket.Enumerated(), "enumeration")

	if _, err := f.q.EnqueueFullSweep(ctx, "live", notify.Origin{}); !errors.Is(err, ErrSweepInProgress) {
		t.Errorf("second EnqueueFullSweep() error = %v, want ErrSweepInProgress", err)
	}

	snap := f.q.Snapshot()
	var order []string
	for _, j := range snap.Pending {
		order = append(order, j.UserID+"/"+j.SweepID)
	}
	want := []string{"2/", "1/" + ticket.ID, "3/" + ticket.ID}
	if fmt.Sprint(order) != fmt.Sprint(want) {
		t.Errorf("pending = %v, want %v", order, want)
	}

	startWorker(t, f.q)
	waitClosed(t, ticket.Done(), "sweep completion")

	var aggregate *notify.Outcome
	for i := 0; i < 4; i++ {
		o := f.sink.next(t)
		if o.Aggregate {
			aggregate = &o
		}
	}
	if aggregate == nil {
		t.Fatal("no aggregate outcome")
	}
	wantCounts := notify.Counts{Accepted: 2, Skipped: 1, Succeeded: 2}
	if *aggregate.Counts != wantCounts {
		t.Errorf("counts = %+v, want %+v", *aggregate.Counts, wantCounts)
	}
	if len(f.players.savedFor("2")) != 1 {
		t.Errorf("player 2 recalculated %d times, want 1", len(f.players.savedFor("2")))
	}
}

func TestFullSweep_WaitPolicyEnqueuesAfterConflict(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{ConflictPolicy: ConflictWait}, newFakePlayers("1", "2", "3"))
	ctx := context.Background()

	if err := f.q.Enqueue(ctx, Job{UserID: "2", Rework: "live"}); err != nil {
		t.Fatalf("Enqueue(2) error = %v", err)
	}
	ticket, err := f.q.EnqueueFullSweep(ctx, "live", notify.Origin{Kind: "system"})
	if err != nil {
		t.Fatalf("EnqueueFullSweep() error = %v", err)
	}

	// Player 2's targeted job blocks enumeration until a worker runs it.
	select {
	case <-ticket.Enumerated():
		t.Fatal("enumeration finished while a conflicting job was queued")
	case <-time.After(50 * time.Millisecond):
	}

	startWorker(t, f.q)
	waitClosed(t, ticket.Done(), "sweep completion")

	var aggregate notify.Outcome
	for i := 0; i < 5; i++ {
		if o := f.sink.next(t); o.Aggregate {
			aggregate = o
		}
	}
	wantCounts := notify.Counts{Accepted: 3, Succeeded: 3}
	if aggregate.Counts == nil || *aggregate.Counts != wantCounts {
		t.Errorf("counts = %+v, want %+v", aggregate.Counts, wantCounts)
	}
	if n := len(f.players.savedFor("2")); n != 2 {
		t.Errorf("player 2 recalculated %d times, want 2", n)
	}
}

func TestFullSweep_SkipsArchivedPlayers(t *testing.T) {
	t.Parallel()

	players := newFakePlayers("1", "2")
	players.add("3", true)
	f := newFixture(t, Config{}, players)

	ticket, err := f.q.EnqueueFullSweep(context.Background(), "v2", notify.Origin{Kind: "system"})
	if err != nil {
		t.Fatalf("EnqueueFullSweep() error = %v", err)
	}
	startWorker(t, f.q)
	waitClosed(t, ticket.Done(), "sweep completion")

	var aggregate notify.Outcome
	for i := 0; i < 3; i++ {
		if o := f.sink.next(t); o.Aggregate {
			aggregate = o
		}
	}
	if aggregate.Counts == nil || aggregate.Counts.Skipped != 1 || aggregate.Counts.Succeeded != 2 {
		t.Errorf("counts = %+v, want 2 succeeded 1 skipped", aggregate.Counts)
	}
	if aggregate.Status != notify.StatusSuccess {
		t.Errorf("aggregate status = %s", aggregate.Status)
	}
}

func TestFullSweep_EmptyPlayerBaseStillReports(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, newFakePlayers())
	ticket, err := f.q.EnqueueFullSweep(context.Background(), "live", notify.Origin{})
	if err != nil {
		t.Fatalf("EnqueueFullSweep() error = %v", err)
	}
	waitClosed(t, ticket.Done(), "sweep completion")

	o := f.sink.next(t)
	if !o.Aggregate || o.Counts.Accepted != 0 {
		t.Errorf("outcome = %+v, want empty aggregate", o)
	}
	if snap := f.q.Snapshot(); len(snap.Sweeps) != 0 {
		t.Errorf("sweeps = %d after completion, want 0", len(snap.Sweeps))
	}
}

func TestFullSweep_RejectsInactiveRework(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, newFakePlayers("1"))
	if _, err := f.q.EnqueueFullSweep(context.Background(), "v1", notify.Origin{}); !errors.Is(err, scoring.ErrInactiveRework) {
		t.Errorf("EnqueueFullSweep(v1) error = %v, want ErrInactiveRework", err)
	}
}

// ---------------------------------------------------------------------------
// Journal
// ---------------------------------------------------------------------------

func openTestBadger(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir())
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("Failed to open BadgerDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestJournal_RecoverResumesInOrder(t *testing.T) {
	t.Parallel()

	journal := NewBadgerJournal(openTestBadger(t))
	players := newFakePlayers("a", "b", "c")

	first := newFixture(t, Config{}, players, WithJournal(journal))
	for _, id := range []string{"c", "a", "b"} {
		if err := first.q.Enqueue(context.Background(), Job{UserID: id, Rework: "live"}); err != nil {
			t.Fatalf("Enqueue(%s) error = %v", id, err)
		}
	}
	first.q.Close()

	jobs, err := journal.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("journaled %d jobs, want 3", len(jobs))
	}

	second := newFixture(t, Config{}, players, WithJournal(journal))
	n, err := second.q.Recover(context.Background())
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("Recover() = %d, want 3", n)
	}

	startWorker(t, second.q)
	for _, want := range []string{"c", "a", "b"} {
		if got := second.sink.next(t); got.UserID != want {
			t.Errorf("completed %s, want %s", got.UserID, want)
		}
	}
	waitIdle(t, second.q)

	left, err := journal.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(left) != 0 {
		t.Errorf("journal holds %d jobs after completion, want 0", len(left))
	}
}

func TestJournal_RecoverDropsInadmissibleJobs(t *testing.T) {
	t.Parallel()

	journal := NewBadgerJournal(openTestBadger(t))
	players := newFakePlayers("a", "b")

	first := newFixture(t, Config{}, players, WithJournal(journal))
	for _, id := range []string{"a", "b"} {
		if err := first.q.Enqueue(context.Background(), Job{UserID: id, Rework: "live"}); err != nil {
			t.Fatalf("Enqueue(%s) error = %v", id, err)
		}
	}
	first.q.Close()

	players.add("b", true)
	second := newFixture(t, Config{}, players, WithJournal(journal))
	n, err := second.q.Recover(context.Background())
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Recover() = %d, want 1", n)
	}
	left, _ := journal.Load()
	if len(left) != 1 || left[0].UserID != "a" {
		t.Errorf("journal = %+v, want only a", left)
	}
}

// ---------------------------------------------------------------------------
// Aggregate and Classify
// ---------------------------------------------------------------------------

func TestAggregate_WeightsByRank(t *testing.T) {
	t.Parallel()

	scores := []models.Score{
		{ID: "low", Accuracy: 0.80},
		{ID: "high", Accuracy: 1.00},
		{ID: "mid", Accuracy: 0.90},
	}
	perf := []models.ScorePerformance{
		{ScoreID: "low", Performance: 100},
		{ScoreID: "high", Performance: 300},
		{ScoreID: "mid", Performance: 200},
	}
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rec := Aggregate("42", "live", scores, perf, at)

	wantTotal := 300 + 200*0.95 + 100*0.95*0.95
	if math.Abs(rec.TotalPerformance-wantTotal) > 1e-9 {
		t.Errorf("TotalPerformance = %v, want %v", rec.TotalPerformance, wantTotal)
	}
	wantAcc := (1.00 + 0.90*0.95 + 0.80*0.9025) / (1 + 0.95 + 0.9025)
	if math.Abs(rec.Accuracy-wantAcc) > 1e-9 {
		t.Errorf("Accuracy = %v, want %v", rec.Accuracy, wantAcc)
	}
	if rec.Scores[0].ScoreID != "high" || rec.Scores[2].ScoreID != "low" {
		t.Errorf("scores not ranked: %+v", rec.Scores)
	}
	if !rec.CalculatedAt.Equal(at) {
		t.Errorf("CalculatedAt = %v", rec.CalculatedAt)
	}
}

func TestAggregate_NoScores(t *testing.T) {
	t.Parallel()

	rec := Aggregate("42", "live", nil, nil, time.Now())
	if rec.TotalPerformance != 0 || rec.Accuracy != 0 {
		t.Errorf("empty aggregate = %+v", rec)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want FailureKind
	}{
		{fmt.Errorf("x: %w", ErrPlayerArchived), KindPlayerArchived},
		{fmt.Errorf("x: %w", ErrPlayerNotFound), KindPlayerNotFound},
		{fmt.Errorf("%w: %w", scoring.ErrEngine, context.Canceled), KindCancelled},
		{fmt.Errorf("%w: boom", scoring.ErrEngine), KindEngine},
		{context.DeadlineExceeded, KindTimeout},
		{fmt.Errorf("%w: down", ErrStore), KindStore},
		{ErrDuplicateInFlight, KindDuplicate},
		{errors.New("unexpected"), KindInternal},
	}

	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
