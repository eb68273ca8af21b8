package service

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/lock"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/repository"
)

func TestStartFixesDeadline(t *testing.T) {
	h := newHarness(3)
	ctx := context.Background()

	snap, err := h.svc.Start(ctx, actor, "tok")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if snap.State != model.SessionStateInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", snap.State)
	}
	if !snap.ExpiresAt.Equal(t0.Add(600 * time.Second)) {
		t.Fatalf("unexpected expiry %s", snap.ExpiresAt)
	}
	if snap.RemainingSeconds != 600 {
		t.Fatalf("expected 600 remaining, got %d", snap.RemainingSeconds)
	}

	// Later catalog edits must not move the deadline.
	h.catalog.durations["test-1"] = 60
	h.clock.Advance(30 * time.Second)
	if _, err := h.svc.ReportProgress(ctx, actor, "tok", model.ProgressRequest{Notes: ptrString("n")}); err != nil {
		t.Fatalf("progress: %v", err)
	}
	stored, _ := h.store.GetByToken(ctx, "tok")
	if !stored.ExpiresAt.Equal(stored.StartedAt.Add(time.Duration(stored.DurationSeconds) * time.Second)) {
		t.Fatalf("expiresAt drifted: %+v", stored)
	}
	if stored.DurationSeconds != 600 {
		t.Fatalf("duration snapshot changed to %d", stored.DurationSeconds)
	}
}

func TestStartErrors(t *testing.T) {
	h := newHarness(3)
	ctx := context.Background()

	if _, err := h.svc.Start(ctx, actor, "unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := h.svc.Start(ctx, actor, "revoked"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for revoked invitation, got %v", err)
	}
	if _, err := h.svc.Start(ctx, actor, "stale"); !errors.Is(err, ErrInvitationExpired) {
		t.Fatalf("expected ErrInvitationExpired, got %v", err)
	}

	if _, err := h.svc.Start(ctx, actor, "tok"); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err := h.svc.Start(ctx, actor, "tok")
	if !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
	if SnapshotOf(err) == nil {
		t.Fatalf("expected snapshot on ErrAlreadyStarted")
	}
}

func TestConcurrentStartHasOneWinner(t *testing.T) {
	h := newHarness(3)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		already int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Start(ctx, actor, "tok")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrAlreadyStarted):
				already++
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 || already != 7 {
		t.Fatalf("expected 1 winner and 7 rejections, got %d/%d", wins, already)
	}
}

func TestGetStateBeforeStart(t *testing.T) {
	h := newHarness(3)
	snap, err := h.svc.GetState(context.Background(), "tok")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if snap.State != model.SessionStateCreated || snap.RemainingSeconds != 600 || snap.ExpiresAt != nil {
		t.Fatalf("unexpected created snapshot %+v", snap)
	}
	if _, err := h.svc.GetState(context.Background(), "unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExpiryForcesAutoSubmit(t *testing.T) {
	h := newHarness(3)
	ctx := context.Background()
	if _, err := h.svc.Start(ctx, actor, "tok"); err != nil {
		t.Fatalf("start: %v", err)
	}

	h.clock.Advance(700 * time.Second)

	snap, err := h.svc.GetState(ctx, "tok")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if snap.RemainingSeconds != 0 {
		t.Fatalf("expected 0 remaining, got %d", snap.RemainingSeconds)
	}
	if snap.State != model.SessionStateInProgress {
		t.Fatalf("GetState must not force expiry, got %s", snap.State)
	}

	_, err = h.svc.ReportProgress(ctx, actor, "tok", model.ProgressRequest{
		Answers: map[string]model.AnswerValue{"q1": model.TextAnswer("A")},
	})
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if s := SnapshotOf(err); s == nil || s.State != model.SessionStateAutoSubmitted {
		t.Fatalf("expected AUTO_SUBMITTED snapshot, got %+v", s)
	}

	stored, _ := h.store.GetByToken(ctx, "tok")
	if stored.State != model.SessionStateAutoSubmitted || stored.AutoSubmittedAt == nil {
		t.Fatalf("expected auto-submit marker, got %+v", stored)
	}
	if stored.CompletedAt != nil || stored.TerminatedAt != nil {
		t.Fatalf("completedAt and terminatedAt must stay unset")
	}
	if _, ok := stored.Answers["q1"]; ok {
		t.Fatalf("the triggering update must not be applied")
	}

	// Already auto-submitted: further calls are closed and change nothing.
	before := stored.Clone()
	_, err = h.svc.ReportProgress(ctx, actor, "tok", model.ProgressRequest{Notes: ptrString("x")})
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	after, _ := h.store.GetByToken(ctx, "tok")
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("auto-submitted record changed")
	}
}

func TestExpiryCheckIsStrictAtDeadline(t *testing.T) {
	h := newHarness(3)
	ctx := context.Background()
	if _, err := h.svc.Start(ctx, actor, "tok"); err != nil {
		t.Fatalf("start: %v", err)
	}

	h.clock.Set(t0.Add(600 * time.Second))
	if _, err := h.svc.ReportProgress(ctx, actor, "tok", model.ProgressRequest{Notes: ptrString("on time")}); err != nil {
		t.Fatalf("update at the deadline must be accepted: %v", err)
	}

	h.clock.Advance(time.Nanosecond)
	if _, err := h.svc.ReportProgress(ctx, actor, "tok", model.ProgressRequest{Notes: ptrString("late")}); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired one tick late, got %v", err)
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	h := newHarness(3)
	ctx := context.Background()
	if _, err := h.svc.Start(ctx, actor, "tok"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.svc.ReportProgress(ctx, actor, "tok", model.ProgressRequest{
		Answers: map[string]model.AnswerValue{"q1": model.TextAnswer("A")},
	}); err != nil {
		t.Fatalf("progress: %v", err)
	}

	h.clock.Advance(time.Minute)
	first, err := h.svc.Complete(ctx, actor, "tok", model.CompleteRequest{
		Answers: map[string]model.AnswerValue{"q2": model.ChoiceAnswer("B", "C")},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if first.State != model.SessionStateCompleted || first.CompletedAt == nil {
		t.Fatalf("unexpected completion snapshot %+v", first)
	}
	if _, ok := first.Answers["q1"]; !ok {
		t.Fatalf("final answers must merge, not replace")
	}
	if first.RemainingSeconds != 0 {
		t.Fatalf("finished sessions report no remaining time")
	}

	h.clock.Advance(time.Minute)
	second, err := h.svc.Complete(ctx, actor, "tok", model.CompleteRequest{
		Answers: map[string]model.AnswerValue{"q3": model.TextAnswer("late")},
	})
	if err != nil {
		t.Fatalf("second complete must not error: %v", err)
	}
	if !second.CompletedAt.Equal(*first.CompletedAt) {
		t.Fatalf("completedAt moved on second call")
	}
	if _, ok := second.Answers["q3"]; ok {
		t.Fatalf("second complete must not merge payloads")
	}
}

func TestTerminalRecordIsFrozen(t *testing.T) {
	h := newHarness(3)
	ctx := context.Background()
	if _, err := h.svc.Start(ctx, actor, "tok"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.svc.Complete(ctx, actor, "tok", model.CompleteRequest{}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	before, _ := h.store.GetByToken(ctx, "tok")

	h.clock.Advance(time.Hour)
	_, err := h.svc.ReportProgress(ctx, actor, "tok", model.ProgressRequest{Notes: ptrString("x")})
	if !errors.Is(err, ErrSessionClosed) || SnapshotOf(err) == nil {
		t.Fatalf("expected ErrSessionClosed with snapshot, got %v", err)
	}
	if _, err := h.svc.ReportViolation(ctx, actor, "tok", model.ViolationRequest{}); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if _, err := h.svc.SubmitCode(ctx, actor, "tok", model.SubmitCodeRequest{QuestionKey: "sum", Code: "x", Language: "go"}); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if ok, err := h.svc.Expire(ctx, "tok"); err != nil || ok {
		t.Fatalf("expire on terminal session must be a no-op, got %v %v", ok, err)
	}

	after, _ := h.store.GetByToken(ctx, "tok")
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("terminal record changed:\nbefore=%+v\nafter=%+v", before, after)
	}
	if h.sink.count() != 0 {
		t.Fatalf("no violation may be published for a closed session")
	}
}

func TestMutationsOnUnknownToken(t *testing.T) {
	h := newHarness(3)
	ctx := context.Background()
	if _, err := h.svc.ReportProgress(ctx, actor, "tok", model.ProgressRequest{Notes: ptrString("x")}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before start, got %v", err)
	}
	if _, err := h.svc.Complete(ctx, actor, "nope", model.CompleteRequest{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExpireOverdue(t *testing.T) {
	h := newHarness(3)
	ctx := context.Background()
	if _, err := h.svc.Start(ctx, actor, "tok"); err != nil {
		t.Fatalf("start: %v", err)
	}

	if n, err := h.svc.ExpireOverdue(ctx, 10); err != nil || n != 0 {
		t.Fatalf("nothing is overdue yet, got %d %v", n, err)
	}

	h.clock.Advance(601 * time.Second)
	n, err := h.svc.ExpireOverdue(ctx, 10)
	if err != nil || n != 1 {
		t.Fatalf("expected one expiry, got %d %v", n, err)
	}
	stored, _ := h.store.GetByToken(ctx, "tok")
	if stored.State != model.SessionStateAutoSubmitted {
		t.Fatalf("expected AUTO_SUBMITTED, got %s", stored.State)
	}
	if n, _ := h.svc.ExpireOverdue(ctx, 10); n != 0 {
		t.Fatalf("second sweep must be a no-op, got %d", n)
	}
}

// frozenStore rejects every update as frozen and fails reads once armed,
// leaving the service unable to describe the closed session.
type frozenStore struct {
	*repository.MemorySessionRepository
	mu    sync.Mutex
	reads int
}

func (s *frozenStore) GetByToken(ctx context.Context, token string) (*model.AssessmentSession, error) {
	s.mu.Lock()
	s.reads++
	n := s.reads
	s.mu.Unlock()
	if n > 1 {
		return nil, errors.New("connection reset")
	}
	return s.MemorySessionRepository.GetByToken(ctx, token)
}

func (s *frozenStore) Update(context.Context, *model.AssessmentSession) error {
	return repository.ErrFrozen
}

func TestCompleteWithoutSnapshotReturnsError(t *testing.T) {
	h := newHarness(3)
	ctx := context.Background()
	if _, err := h.svc.Start(ctx, actor, "tok"); err != nil {
		t.Fatalf("start: %v", err)
	}

	store := &frozenStore{MemorySessionRepository: h.store}
	svc := NewSessionService(SessionDeps{
		Sessions:    store,
		Invitations: fakeInvitations{"tok": {ID: "inv-1", Token: "tok", TestID: "test-1"}},
		Catalog:     h.catalog,
		Locker:      lock.NewKeyedMutex(),
		Clock:       h.clock,
		Sink:        h.sink,
		Policy:      ViolationPolicy{Threshold: 3},
	}, zerolog.Nop())

	snap, err := svc.Complete(ctx, actor, "tok", model.CompleteRequest{})
	if snap != nil {
		t.Fatalf("expected no snapshot, got %+v", snap)
	}
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}
