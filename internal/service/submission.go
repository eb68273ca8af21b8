package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stemsi/exstem-assessment/internal/judge"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/repository"
)

// SubmitCode judges code against the question's hidden test cases and
// appends the result to the question's history.
//
// The session lock is held twice: once to admit the request (closed and
// expiry checks) and once to append the judged entry. The executor call in
// between runs unlocked so a slow judge does not block the session.
func (s *SessionService) SubmitCode(ctx context.Context, actor model.Actor, token string, req model.SubmitCodeRequest) (*model.SubmissionResult, error) {
	req.QuestionKey = strings.TrimSpace(req.QuestionKey)
	req.Language = strings.ToLower(strings.TrimSpace(req.Language))
	if req.QuestionKey == "" || req.Language == "" || strings.TrimSpace(req.Code) == "" {
		return nil, fmt.Errorf("%w: question_key, code and language are required", ErrValidation)
	}

	testID, submittedAt, err := s.admit(ctx, token)
	if err != nil {
		return nil, err
	}

	cases, err := s.catalog.GetQuestionTestCases(ctx, testID, req.QuestionKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: question %q does not accept code submissions", ErrValidation, req.QuestionKey)
		}
		return nil, err
	}

	l := s.requestLog(actor, token)
	started := time.Now()
	results, err := s.executor.Execute(ctx, judge.ExecuteRequest{
		Code:      req.Code,
		Language:  req.Language,
		TestCases: cases,
	})
	if err != nil {
		l.Warn().Err(err).Str("question_key", req.QuestionKey).Msg("Code execution failed")
		if errors.Is(err, judge.ErrExecutionRejected) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, err
	}

	sub := buildSubmission(req, cases, results, submittedAt)

	unlock, err := s.lock(ctx, token)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.load(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess.IsTerminal() {
		// Closed while the judge was running; the result is not recorded.
		return nil, &SessionError{Err: ErrSessionClosed, Snapshot: Snapshot(sess, s.clock.Now())}
	}

	sub.Sequence = len(sess.CodeSubmissions[req.QuestionKey]) + 1
	if sess.CodeSubmissions == nil {
		sess.CodeSubmissions = make(map[string][]model.CodeSubmission)
	}
	sess.CodeSubmissions[req.QuestionKey] = append(sess.CodeSubmissions[req.QuestionKey], sub)
	mergeCodes(sess, map[string]string{req.QuestionKey: req.Code})
	sess.LastActivityAt = s.clock.Now()

	if err := s.sessions.AppendSubmission(ctx, sess, req.QuestionKey, sub); err != nil {
		return nil, s.persistError(ctx, token, err)
	}

	l.Info().
		Str("question_key", req.QuestionKey).
		Str("language", req.Language).
		Int("passed", sub.PassedCount).
		Int("total", sub.TotalCount).
		Int("attempt", sub.Sequence).
		Dur("judge_latency", time.Since(started)).
		Msg("Code submission judged")

	return &model.SubmissionResult{
		QuestionKey: req.QuestionKey,
		Submission:  sub.Clone(),
		Attempts:    sub.Sequence,
	}, nil
}

// admit runs the closed/expiry guard under the session lock without
// changing the session, and returns what the judge phase needs.
func (s *SessionService) admit(ctx context.Context, token string) (string, time.Time, error) {
	unlock, err := s.lock(ctx, token)
	if err != nil {
		return "", time.Time{}, err
	}
	defer unlock()

	sess, now, err := s.loadLive(ctx, token)
	if err != nil {
		return "", time.Time{}, err
	}
	return sess.TestID, now, nil
}

// buildSubmission pairs each test case with its result. results is aligned
// index-for-index with cases.
func buildSubmission(req model.SubmitCodeRequest, cases []model.TestCase, results []judge.ExecutionResult, at time.Time) model.CodeSubmission {
	sub := model.CodeSubmission{
		Code:        req.Code,
		Language:    req.Language,
		SubmittedAt: at,
		Outcomes:    make([]model.TestCaseOutcome, len(cases)),
		TotalCount:  len(cases),
	}

	for i, tc := range cases {
		outcome := model.TestCaseOutcome{
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
		}
		if i < len(results) {
			res := results[i]
			outcome.ActualOutput = res.Output
			if res.Error != nil && *res.Error != "" {
				e := *res.Error
				outcome.Error = &e
			}
			outcome.Passed = outcome.Error == nil && outputsMatch(tc.ExpectedOutput, res.Output)
		}
		if outcome.Passed {
			sub.PassedCount++
		}
		sub.Outcomes[i] = outcome
	}

	sub.AllPassed = sub.PassedCount == sub.TotalCount
	return sub
}

// outputsMatch compares program output ignoring line-ending style and
// trailing whitespace on each line and at the end.
func outputsMatch(expected, actual string) bool {
	return normalizeOutput(expected) == normalizeOutput(actual)
}

func normalizeOutput(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}
