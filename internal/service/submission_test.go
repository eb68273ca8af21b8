package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/judge"
	"github.com/stemsi/exstem-assessment/internal/lock"
	"github.com/stemsi/exstem-assessment/internal/model"
)

func submitSum(h *harness, code string) (*model.SubmissionResult, error) {
	return h.svc.SubmitCode(context.Background(), actor, "tok", model.SubmitCodeRequest{
		QuestionKey: "sum",
		Code:        code,
		Language:    "Python",
	})
}

func TestSubmitCodePartialPass(t *testing.T) {
	h := newHarness(3)
	ctx := context.Background()
	if _, err := h.svc.Start(ctx, actor, "tok"); err != nil {
		t.Fatalf("start: %v", err)
	}

	h.executor = func(_ context.Context, req judge.ExecuteRequest) ([]judge.ExecutionResult, error) {
		if req.Language != "python" {
			return nil, fmt.Errorf("language not normalised: %q", req.Language)
		}
		return []judge.ExecutionResult{{Output: "3\n"}, {Output: "5"}}, nil
	}

	res, err := submitSum(h, "print(sum)")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	sub := res.Submission
	if sub.TotalCount != 2 || sub.PassedCount != 1 || sub.AllPassed {
		t.Fatalf("unexpected counts %+v", sub)
	}
	if !sub.Outcomes[0].Passed || sub.Outcomes[1].Passed {
		t.Fatalf("unexpected outcomes %+v", sub.Outcomes)
	}
	if sub.Outcomes[1].ActualOutput != "5" || sub.Outcomes[1].ExpectedOutput != "4" {
		t.Fatalf("outcome lost its outputs: %+v", sub.Outcomes[1])
	}
	if res.Attempts != 1 || sub.Sequence != 1 {
		t.Fatalf("expected first attempt, got %d/%d", res.Attempts, sub.Sequence)
	}

	stored, _ := h.store.GetByToken(ctx, "tok")
	if len(stored.CodeSubmissions["sum"]) != 1 {
		t.Fatalf("expected one history entry, got %d", len(stored.CodeSubmissions["sum"]))
	}
	if stored.Codes["sum"] != "print(sum)" {
		t.Fatalf("latest code not recorded: %q", stored.Codes["sum"])
	}
}

func TestSubmitCodeAppendsHistory(t *testing.T) {
	h := newHarness(3)
	ctx := context.Background()
	if _, err := h.svc.Start(ctx, actor, "tok"); err != nil {
		t.Fatalf("start: %v", err)
	}

	for i := 1; i <= 3; i++ {
		res, err := submitSum(h, fmt.Sprintf("attempt %d", i))
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if res.Attempts != i || !res.Submission.AllPassed {
			t.Fatalf("submit %d: unexpected result %+v", i, res)
		}
	}

	stored, _ := h.store.GetByToken(ctx, "tok")
	history := stored.CodeSubmissions["sum"]
	if len(history) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(history))
	}
	for i, sub := range history {
		if sub.Sequence != i+1 || sub.Code != fmt.Sprintf("attempt %d", i+1) {
			t.Fatalf("entry %d out of order: %+v", i, sub)
		}
	}
}

func TestSubmitCodeJudgeFailureAppendsNothing(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"timeout", judge.ErrExecutionTimeout, ErrExecutionTimeout},
		{"unavailable", judge.ErrExecutionUnavailable, ErrExecutionUnavailable},
		{"rejected", fmt.Errorf("%w: unsupported language", judge.ErrExecutionRejected), ErrValidation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(3)
			ctx := context.Background()
			if _, err := h.svc.Start(ctx, actor, "tok"); err != nil {
				t.Fatalf("start: %v", err)
			}
			h.executor = func(context.Context, judge.ExecuteRequest) ([]judge.ExecutionResult, error) {
				return nil, tc.err
			}

			_, err := submitSum(h, "loop()")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			stored, _ := h.store.GetByToken(ctx, "tok")
			if len(stored.CodeSubmissions["sum"]) != 0 {
				t.Fatalf("failed execution must not append history")
			}
			if _, ok := stored.Codes["sum"]; ok {
				t.Fatalf("failed execution must not record code")
			}
		})
	}
}

func TestSubmitCodeValidation(t *testing.T) {
	h := newHarness(3)
	ctx := context.Background()
	if _, err := h.svc.Start(ctx, actor, "tok"); err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err := h.svc.SubmitCode(ctx, actor, "tok", model.SubmitCodeRequest{QuestionKey: "sum", Code: "  ", Language: "go"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for blank code, got %v", err)
	}

	_, err = h.svc.SubmitCode(ctx, actor, "tok", model.SubmitCodeRequest{QuestionKey: "missing", Code: "x", Language: "go"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown question, got %v", err)
	}

	h.catalog.err = fmt.Errorf("%w: test_cases is empty", ErrInvalidQuestionDefinition)
	_, err = submitSum(h, "x")
	if !errors.Is(err, ErrInvalidQuestionDefinition) {
		t.Fatalf("expected ErrInvalidQuestionDefinition, got %v", err)
	}
}

func TestSubmitCodeAfterDeadline(t *testing.T) {
	h := newHarness(3)
	ctx := context.Background()
	if _, err := h.svc.Start(ctx, actor, "tok"); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.clock.Advance(601 * time.Second)

	called := false
	h.executor = func(context.Context, judge.ExecuteRequest) ([]judge.ExecutionResult, error) {
		called = true
		return nil, nil
	}

	if _, err := submitSum(h, "x"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if called {
		t.Fatalf("judge must not run for an expired session")
	}
}

func TestSubmitCodeSessionClosedDuringJudging(t *testing.T) {
	h := newHarness(3)
	ctx := context.Background()
	if _, err := h.svc.Start(ctx, actor, "tok"); err != nil {
		t.Fatalf("start: %v", err)
	}

	// The session lock is not held while judging, so Complete can run here.
	h.executor = func(_ context.Context, req judge.ExecuteRequest) ([]judge.ExecutionResult, error) {
		if _, err := h.svc.Complete(ctx, actor, "tok", model.CompleteRequest{}); err != nil {
			return nil, err
		}
		out := make([]judge.ExecutionResult, len(req.TestCases))
		for i, tc := range req.TestCases {
			out[i] = judge.ExecutionResult{Output: tc.ExpectedOutput}
		}
		return out, nil
	}

	_, err := submitSum(h, "x")
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	stored, _ := h.store.GetByToken(ctx, "tok")
	if stored.State != model.SessionStateCompleted || len(stored.CodeSubmissions["sum"]) != 0 {
		t.Fatalf("closed session must not gain history: %+v", stored)
	}
}

func TestBuildSubmissionCarriesErrors(t *testing.T) {
	cases := []model.TestCase{{Input: "1", ExpectedOutput: "1"}}
	msg := "runtime error: index out of range"
	sub := buildSubmission(
		model.SubmitCodeRequest{QuestionKey: "k", Code: "c", Language: "go"},
		cases,
		[]judge.ExecutionResult{{Output: "1", Error: &msg}},
		t0,
	)
	if sub.Outcomes[0].Passed || sub.Outcomes[0].Error == nil || *sub.Outcomes[0].Error != msg {
		t.Fatalf("errored case must fail and carry its error: %+v", sub.Outcomes[0])
	}
	if sub.AllPassed || sub.PassedCount != 0 {
		t.Fatalf("unexpected counts %+v", sub)
	}
	if !sub.SubmittedAt.Equal(t0) {
		t.Fatalf("submittedAt not set")
	}
}

func TestOutputsMatch(t *testing.T) {
	cases := []struct {
		expected, actual string
		want             bool
	}{
		{"3", "3", true},
		{"3", "3\n", true},
		{"a\nb", "a\r\nb\r\n", true},
		{"a b", "a b  \t", true},
		{"a\nb", "a \nb", true},
		{"3", "4", false},
		{"a\nb", "a\n\nb", false},
		{" 3", "3", false},
	}
	for _, tc := range cases {
		if got := outputsMatch(tc.expected, tc.actual); got != tc.want {
			t.Errorf("outputsMatch(%q, %q) = %v, want %v", tc.expected, tc.actual, got, tc.want)
		}
	}
}

func TestSubmitCodeToNonCodingQuestion(t *testing.T) {
	rdb := unreachableRedis()
	defer rdb.Close()

	h := newHarness(3)
	src := &stubCatalogSource{
		duration: 600,
		cases:    map[string]json.RawMessage{"pick-one": nil},
	}
	h.svc = NewSessionService(SessionDeps{
		Sessions:    h.store,
		Invitations: fakeInvitations{"tok": {ID: "inv-1", Token: "tok", TestID: "test-1"}},
		Catalog:     NewCatalogService(src, rdb, time.Minute, zerolog.Nop()),
		Executor: executorFunc(func(context.Context, judge.ExecuteRequest) ([]judge.ExecutionResult, error) {
			t.Fatal("judge must not run for a question without test cases")
			return nil, nil
		}),
		Locker: lock.NewKeyedMutex(),
		Clock:  h.clock,
		Sink:   h.sink,
		Policy: ViolationPolicy{Threshold: 3},
	}, zerolog.Nop())

	ctx := context.Background()
	if _, err := h.svc.Start(ctx, actor, "tok"); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err := h.svc.SubmitCode(ctx, actor, "tok", model.SubmitCodeRequest{QuestionKey: "pick-one", Code: "print(1)", Language: "python"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if errors.Is(err, ErrInvalidQuestionDefinition) {
		t.Fatalf("client mistake reported as catalog defect: %v", err)
	}
	stored, _ := h.store.GetByToken(ctx, "tok")
	if len(stored.CodeSubmissions["pick-one"]) != 0 {
		t.Fatalf("history must stay empty")
	}
}
