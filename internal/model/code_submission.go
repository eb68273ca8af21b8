package model

import "time"

// TestCase is one hidden input/expected-output pair of a coding question.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
}

// TestCaseOutcome is the judged result of one test case.
type TestCaseOutcome struct {
	Input          string  `json:"input"`
	ExpectedOutput string  `json:"expected_output"`
	ActualOutput   string  `json:"actual_output"`
	Passed         bool    `json:"passed"`
	Error          *string `json:"error,omitempty"`
}

// CodeSubmission is one judged attempt. Entries are appended to a question's
// history and never edited afterwards.
type CodeSubmission struct {
	Sequence    int               `json:"sequence"`
	Code        string            `json:"code"`
	Language    string            `json:"language"`
	SubmittedAt time.Time         `json:"submitted_at"`
	Outcomes    []TestCaseOutcome `json:"outcomes"`
	AllPassed   bool              `json:"all_passed"`
	PassedCount int               `json:"passed_count"`
	TotalCount  int               `json:"total_count"`
}

func (c CodeSubmission) Clone() CodeSubmission {
	outcomes := make([]TestCaseOutcome, len(c.Outcomes))
	for i, o := range c.Outcomes {
		if o.Error != nil {
			e := *o.Error
			o.Error = &e
		}
		outcomes[i] = o
	}
	c.Outcomes = outcomes
	return c
}

// SubmissionResult is returned to the caller after a judged submission.
type SubmissionResult struct {
	QuestionKey string         `json:"question_key"`
	Submission  CodeSubmission `json:"submission"`
	Attempts    int            `json:"attempts"`
}
