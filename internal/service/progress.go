package service

import (
	"context"
	"fmt"
	"time"

	"github.com/stemsi/exstem-assessment/internal/model"
)

// ReportProgress merges a partial update into the session. Only supplied
// fields change; answers and codes are upserted key by key.
func (s *SessionService) ReportProgress(ctx context.Context, actor model.Actor, token string, req model.ProgressRequest) (*model.SessionSnapshot, error) {
	if req.Empty() {
		return nil, fmt.Errorf("%w: progress update carries no fields", ErrValidation)
	}
	if req.CursorSeq != nil && !req.MovesCursor() {
		return nil, fmt.Errorf("%w: cursor_seq requires section or question", ErrValidation)
	}

	sess, err := s.guardedMutate(ctx, token, func(sess *model.AssessmentSession, _ time.Time) error {
		applyProgress(sess, &req)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.requestLog(actor, token).Debug().
		Int("answers", len(req.Answers)).
		Int("codes", len(req.Codes)).
		Bool("notes", req.Notes != nil).
		Msg("Progress recorded")

	return Snapshot(sess, s.clock.Now()), nil
}

func applyProgress(sess *model.AssessmentSession, req *model.ProgressRequest) {
	applyCursor(sess, req)
	mergeAnswers(sess, req.Answers)
	mergeCodes(sess, req.Codes)
	if req.Notes != nil {
		sess.Notes = *req.Notes
	}
}

// applyCursor is last-writer-wins, except that an update carrying a sequence
// number older than the stored one is dropped as a stale retry.
func applyCursor(sess *model.AssessmentSession, req *model.ProgressRequest) {
	if !req.MovesCursor() {
		return
	}
	if req.CursorSeq != nil {
		if *req.CursorSeq <= sess.CursorSeq {
			return
		}
		sess.CursorSeq = *req.CursorSeq
	}
	if req.Section != nil {
		sess.CurrentSection = *req.Section
	}
	if req.Question != nil {
		sess.CurrentQuestion = *req.Question
	}
}

func mergeAnswers(sess *model.AssessmentSession, answers map[string]model.AnswerValue) {
	if len(answers) == 0 {
		return
	}
	if sess.Answers == nil {
		sess.Answers = make(map[string]model.AnswerValue, len(answers))
	}
	for k, v := range answers {
		sess.Answers[k] = v.Clone()
	}
}

func mergeCodes(sess *model.AssessmentSession, codes map[string]string) {
	if len(codes) == 0 {
		return
	}
	if sess.Codes == nil {
		sess.Codes = make(map[string]string, len(codes))
	}
	for k, v := range codes {
		sess.Codes[k] = v
	}
}
