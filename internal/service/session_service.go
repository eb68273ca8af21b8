package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/clock"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/judge"
	"github.com/stemsi/exstem-assessment/internal/lock"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/repository"
)

// SessionDeps groups the collaborators of SessionService.
type SessionDeps struct {
	Sessions    SessionStore
	Invitations InvitationIssuer
	Catalog     TestCatalog
	Executor    judge.Executor
	Locker      lock.Locker
	Clock       clock.Clock
	// Sink is optional; violation events are dropped when nil.
	Sink   ViolationSink
	Policy ViolationPolicy
}

// SessionService is the lifecycle controller of assessment sessions. Every
// mutating call goes through guardedMutate, which serialises per token and
// applies the server-side deadline before anything else.
type SessionService struct {
	sessions    SessionStore
	invitations InvitationIssuer
	catalog     TestCatalog
	executor    judge.Executor
	locker      lock.Locker
	clock       clock.Clock
	sink        ViolationSink
	policy      ViolationPolicy
	log         zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(deps SessionDeps, log zerolog.Logger) *SessionService {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewKeyedMutex()
	}
	return &SessionService{
		sessions:    deps.Sessions,
		invitations: deps.Invitations,
		catalog:     deps.Catalog,
		executor:    deps.Executor,
		locker:      deps.Locker,
		clock:       deps.Clock,
		sink:        deps.Sink,
		policy:      deps.Policy,
		log:         log.With().Str("component", "session_service").Logger(),
	}
}

// mutation applies one operation to a loaded, live session. Returning an
// error aborts the call without persisting anything.
type mutation func(sess *model.AssessmentSession, now time.Time) error

// Start opens the attempt behind token.
func (s *SessionService) Start(ctx context.Context, actor model.Actor, token string) (*model.SessionSnapshot, error) {
	inv, err := s.invitation(ctx, token)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lock(ctx, token)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.clock.Now()

	existing, err := s.sessions.GetByToken(ctx, token)
	switch {
	case err == nil:
		return nil, &SessionError{Err: ErrAlreadyStarted, Snapshot: Snapshot(existing, now)}
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("check existing session: %w", err)
	}

	if inv.ValidUntil != nil && now.After(*inv.ValidUntil) {
		return nil, ErrInvitationExpired
	}

	duration, err := s.catalog.GetTestDuration(ctx, inv.TestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: test %s not found", ErrInvalidTestDefinition, inv.TestID)
		}
		return nil, fmt.Errorf("get test duration: %w", err)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("%w: test %s has duration %d", ErrInvalidTestDefinition, inv.TestID, duration)
	}

	invitationID := inv.ID
	sess := model.NewSession(token, inv.TestID, &invitationID, now, clock.ExpiresAt(now, duration), duration)

	if err := s.sessions.Create(ctx, sess); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			// Another instance won the race.
			return nil, ErrAlreadyStarted
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.requestLog(actor, token).Info().
		Str("test_id", sess.TestID).
		Int64("duration_seconds", duration).
		Time("expires_at", sess.ExpiresAt).
		Msg("Assessment started")

	return Snapshot(sess, now), nil
}

// GetState is read-only: it reports the computed remaining time but never
// forces the expiry transition.
func (s *SessionService) GetState(ctx context.Context, token string) (*model.SessionSnapshot, error) {
	now := s.clock.Now()

	sess, err := s.sessions.GetByToken(ctx, token)
	if err == nil {
		return Snapshot(sess, now), nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("get session: %w", err)
	}

	// Not started yet: describe the pending attempt from its invitation.
	inv, err := s.invitation(ctx, token)
	if err != nil {
		return nil, err
	}
	duration, err := s.catalog.GetTestDuration(ctx, inv.TestID)
	if err != nil {
		return nil, fmt.Errorf("get test duration: %w", err)
	}
	return &model.SessionSnapshot{
		Token:            token,
		TestID:           inv.TestID,
		State:            model.SessionStateCreated,
		DurationSeconds:  duration,
		RemainingSeconds: duration,
		Answers:          map[string]model.AnswerValue{},
		Codes:            map[string]string{},
		SubmissionCounts: map[string]int{},
	}, nil
}

// Complete merges the final payloads and closes the session. Calling it on
// an already finished session returns that session's snapshot without error.
func (s *SessionService) Complete(ctx context.Context, actor model.Actor, token string, req model.CompleteRequest) (*model.SessionSnapshot, error) {
	sess, err := s.guardedMutate(ctx, token, func(sess *model.AssessmentSession, now time.Time) error {
		mergeAnswers(sess, req.Answers)
		mergeCodes(sess, req.Codes)
		sess.MarkCompleted(now)
		return nil
	})
	if err != nil {
		if snap := SnapshotOf(err); snap != nil && errors.Is(err, ErrSessionClosed) {
			return snap, nil
		}
		return nil, err
	}

	s.requestLog(actor, token).Info().
		Int("answers", len(sess.Answers)).
		Int("codes", len(sess.Codes)).
		Msg("Assessment completed")

	return Snapshot(sess, s.clock.Now()), nil
}

// Expire forces the AUTO_SUBMITTED transition on a live session whose
// deadline has passed. It reports whether a transition happened.
func (s *SessionService) Expire(ctx context.Context, token string) (bool, error) {
	unlock, err := s.lock(ctx, token)
	if err != nil {
		return false, err
	}
	defer unlock()

	sess, err := s.load(ctx, token)
	if err != nil {
		return false, err
	}
	now := s.clock.Now()
	if sess.IsTerminal() || !clock.Expired(sess.ExpiresAt, now) {
		return false, nil
	}
	if err := s.autoSubmit(ctx, sess, now); err != nil {
		return false, err
	}
	return true, nil
}

// ExpireOverdue expires up to limit overdue sessions and returns how many
// were transitioned.
func (s *SessionService) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	tokens, err := s.sessions.ListExpiredInProgress(ctx, s.clock.Now(), limit)
	if err != nil {
		return 0, fmt.Errorf("list expired sessions: %w", err)
	}

	expired := 0
	for _, token := range tokens {
		ok, err := s.Expire(ctx, token)
		if err != nil {
			s.log.Error().Err(err).Str("token", token).Msg("Expire failed")
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

// guardedMutate loads the session under its lock, rejects closed sessions,
// forces expiry when the deadline has passed, then applies op and persists.
func (s *SessionService) guardedMutate(ctx context.Context, token string, op mutation) (*model.AssessmentSession, error) {
	unlock, err := s.lock(ctx, token)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, now, err := s.loadLive(ctx, token)
	if err != nil {
		return nil, err
	}

	if err := op(sess, now); err != nil {
		return nil, err
	}
	sess.LastActivityAt = now

	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, s.persistError(ctx, token, err)
	}
	return sess, nil
}

// loadLive must run under the session lock. It returns the session only if
// it still accepts mutations at the current instant.
func (s *SessionService) loadLive(ctx context.Context, token string) (*model.AssessmentSession, time.Time, error) {
	sess, err := s.load(ctx, token)
	if err != nil {
		return nil, time.Time{}, err
	}

	now := s.clock.Now()
	if sess.IsTerminal() {
		return nil, now, &SessionError{Err: ErrSessionClosed, Snapshot: Snapshot(sess, now)}
	}
	if clock.Expired(sess.ExpiresAt, now) {
		if err := s.autoSubmit(ctx, sess, now); err != nil {
			return nil, now, err
		}
		return nil, now, &SessionError{Err: ErrSessionExpired, Snapshot: Snapshot(sess, now)}
	}
	return sess, now, nil
}

func (s *SessionService) autoSubmit(ctx context.Context, sess *model.AssessmentSession, now time.Time) error {
	sess.MarkAutoSubmitted(now)
	if err := s.sessions.Update(ctx, sess); err != nil && !errors.Is(err, repository.ErrFrozen) {
		return fmt.Errorf("auto-submit session: %w", err)
	}
	s.log.Info().
		Str("token", sess.Token).
		Time("expires_at", sess.ExpiresAt).
		Msg("Session auto-submitted after deadline")
	return nil
}

// persistError maps a failed write. A frozen row means the session closed
// underneath us; report it like any other closed session.
func (s *SessionService) persistError(ctx context.Context, token string, err error) error {
	if !errors.Is(err, repository.ErrFrozen) {
		return fmt.Errorf("persist session: %w", err)
	}
	latest, loadErr := s.load(ctx, token)
	if loadErr != nil {
		return &SessionError{Err: ErrSessionClosed}
	}
	return &SessionError{Err: ErrSessionClosed, Snapshot: Snapshot(latest, s.clock.Now())}
}

func (s *SessionService) load(ctx context.Context, token string) (*model.AssessmentSession, error) {
	sess, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *SessionService) invitation(ctx context.Context, token string) (*model.Invitation, error) {
	inv, err := s.invitations.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	if inv.Revoked {
		return nil, ErrNotFound
	}
	return inv, nil
}

func (s *SessionService) lock(ctx context.Context, token string) (func(), error) {
	unlock, err := s.locker.Lock(ctx, config.CacheKey.SessionLockKey(token))
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	return unlock, nil
}

func (s *SessionService) requestLog(actor model.Actor, token string) *zerolog.Logger {
	l := s.log.With().
		Str("token", token).
		Str("candidate_id", actor.CandidateID).
		Str("request_id", actor.RequestID).
		Logger()
	return &l
}

// Snapshot renders the client view of sess at now. Finished sessions report
// no remaining time.
func Snapshot(sess *model.AssessmentSession, now time.Time) *model.SessionSnapshot {
	startedAt := sess.StartedAt
	expiresAt := sess.ExpiresAt

	snap := &model.SessionSnapshot{
		Token:            sess.Token,
		TestID:           sess.TestID,
		State:            sess.State,
		StartedAt:        &startedAt,
		ExpiresAt:        &expiresAt,
		DurationSeconds:  sess.DurationSeconds,
		TabSwitchCount:   sess.TabSwitchCount,
		CurrentSection:   sess.CurrentSection,
		CurrentQuestion:  sess.CurrentQuestion,
		CompletedAt:      sess.CompletedAt,
		AutoSubmittedAt:  sess.AutoSubmittedAt,
		TerminatedAt:     sess.TerminatedAt,
		Answers:          make(map[string]model.AnswerValue, len(sess.Answers)),
		Codes:            make(map[string]string, len(sess.Codes)),
		Notes:            sess.Notes,
		SubmissionCounts: make(map[string]int, len(sess.CodeSubmissions)),
	}
	if !sess.IsTerminal() {
		snap.RemainingSeconds = clock.RemainingSeconds(sess.ExpiresAt, now)
	}
	for k, v := range sess.Answers {
		snap.Answers[k] = v.Clone()
	}
	for k, v := range sess.Codes {
		snap.Codes[k] = v
	}
	for k, subs := range sess.CodeSubmissions {
		snap.SubmissionCounts[k] = len(subs)
	}
	return snap
}
