package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/clock"
	"github.com/stemsi/exstem-assessment/internal/judge"
	"github.com/stemsi/exstem-assessment/internal/lock"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/repository"
)

var t0 = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

type fakeInvitations map[string]*model.Invitation

func (f fakeInvitations) GetByToken(_ context.Context, token string) (*model.Invitation, error) {
	inv, ok := f[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *inv
	return &c, nil
}

type fakeCatalog struct {
	durations map[string]int64
	cases     map[string][]model.TestCase
	err       error
}

func (f *fakeCatalog) GetTestDuration(_ context.Context, testID string) (int64, error) {
	d, ok := f.durations[testID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return d, nil
}

func (f *fakeCatalog) GetQuestionTestCases(_ context.Context, _ string, questionKey string) ([]model.TestCase, error) {
	if f.err != nil {
		return nil, f.err
	}
	cases, ok := f.cases[questionKey]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cases, nil
}

type executorFunc func(ctx context.Context, req judge.ExecuteRequest) ([]judge.ExecutionResult, error)

func (f executorFunc) Execute(ctx context.Context, req judge.ExecuteRequest) ([]judge.ExecutionResult, error) {
	return f(ctx, req)
}

type recordingSink struct {
	mu     sync.Mutex
	events []model.ViolationEvent
}

func (r *recordingSink) PublishViolation(_ context.Context, e model.ViolationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type harness struct {
	svc      *SessionService
	store    *repository.MemorySessionRepository
	clock    *clock.Fake
	catalog  *fakeCatalog
	sink     *recordingSink
	executor executorFunc
}

// newHarness wires a service around one invitation "tok" for test "test-1"
// with a 600 second duration and the coding question "sum".
func newHarness(threshold int) *harness {
	h := &harness{
		store: repository.NewMemorySessionRepository(),
		clock: clock.NewFake(t0),
		catalog: &fakeCatalog{
			durations: map[string]int64{"test-1": 600},
			cases: map[string][]model.TestCase{
				"sum": {
					{Input: "1 2", ExpectedOutput: "3"},
					{Input: "2 2", ExpectedOutput: "4"},
				},
			},
		},
		sink: &recordingSink{},
	}
	h.executor = func(_ context.Context, req judge.ExecuteRequest) ([]judge.ExecutionResult, error) {
		out := make([]judge.ExecutionResult, len(req.TestCases))
		for i, tc := range req.TestCases {
			out[i] = judge.ExecutionResult{Output: tc.ExpectedOutput}
		}
		return out, nil
	}

	invitations := fakeInvitations{
		"tok":     {ID: "inv-1", Token: "tok", TestID: "test-1"},
		"revoked": {ID: "inv-2", Token: "revoked", TestID: "test-1", Revoked: true},
		"stale":   {ID: "inv-3", Token: "stale", TestID: "test-1", ValidUntil: ptrTime(t0.Add(-time.Hour))},
	}

	h.svc = NewSessionService(SessionDeps{
		Sessions:    h.store,
		Invitations: invitations,
		Catalog:     h.catalog,
		Executor: executorFunc(func(ctx context.Context, req judge.ExecuteRequest) ([]judge.ExecutionResult, error) {
			return h.executor(ctx, req)
		}),
		Locker: lock.NewKeyedMutex(),
		Clock:  h.clock,
		Sink:   h.sink,
		Policy: ViolationPolicy{Threshold: threshold},
	}, zerolog.Nop())
	return h
}

func ptrTime(t time.Time) *time.Time { return &t }

func ptrString(s string) *string { return &s }

func ptrInt64(n int64) *int64 { return &n }

var actor = model.Actor{CandidateID: "cand-1", RequestID: "req-1"}
