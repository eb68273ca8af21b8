package service

import (
	"context"
	"time"

	"github.com/stemsi/exstem-assessment/internal/model"
)

// DefaultViolationThreshold is used when no threshold is configured.
const DefaultViolationThreshold = 3

// ViolationPolicy decides when integrity violations end the attempt.
type ViolationPolicy struct {
	Threshold int
}

func (p ViolationPolicy) threshold() int {
	if p.Threshold <= 0 {
		return DefaultViolationThreshold
	}
	return p.Threshold
}

// ShouldTerminate reports whether count reaches the termination threshold.
func (p ViolationPolicy) ShouldTerminate(count int) bool {
	return count >= p.threshold()
}

// ReportViolation records exactly one violation. The increment and, when the
// threshold is reached, the TERMINATED transition are persisted together.
func (s *SessionService) ReportViolation(ctx context.Context, actor model.Actor, token string, req model.ViolationRequest) (*model.ViolationResult, error) {
	kind := req.Kind
	if kind == "" {
		kind = model.ViolationTabSwitch
	}

	var terminated bool
	sess, err := s.guardedMutate(ctx, token, func(sess *model.AssessmentSession, now time.Time) error {
		sess.TabSwitchCount++
		if s.policy.ShouldTerminate(sess.TabSwitchCount) {
			sess.MarkTerminated(now)
			terminated = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	threshold := s.policy.threshold()
	result := &model.ViolationResult{
		TabSwitchCount: sess.TabSwitchCount,
		Threshold:      threshold,
		Remaining:      max(0, threshold-sess.TabSwitchCount),
		Terminated:     terminated,
	}

	l := s.requestLog(actor, token)
	if terminated {
		l.Warn().Int("tab_switch_count", sess.TabSwitchCount).Str("kind", string(kind)).Msg("Session terminated for violations")
	} else {
		l.Info().Int("tab_switch_count", sess.TabSwitchCount).Str("kind", string(kind)).Msg("Violation recorded")
	}

	s.publishViolation(ctx, model.ViolationEvent{
		Token:          token,
		TestID:         sess.TestID,
		CandidateID:    actor.CandidateID,
		Kind:           string(kind),
		Detail:         req.Detail,
		TabSwitchCount: sess.TabSwitchCount,
		Terminated:     terminated,
		RecordedAtMs:   sess.LastActivityAt.UnixMilli(),
	})

	return result, nil
}

// publishViolation is best-effort; the session record is already persisted.
func (s *SessionService) publishViolation(ctx context.Context, event model.ViolationEvent) {
	if s.sink == nil {
		return
	}
	if err := s.sink.PublishViolation(ctx, event); err != nil {
		s.log.Error().Err(err).Str("token", event.Token).Msg("Failed to queue violation event")
	}
}
