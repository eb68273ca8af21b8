package service

import (
	"context"
	"time"

	"github.com/stemsi/exstem-assessment/internal/model"
)

// SessionStore is the single source of truth for session state.
type SessionStore interface {
	Create(ctx context.Context, s *model.AssessmentSession) error
	GetByToken(ctx context.Context, token string) (*model.AssessmentSession, error)
	Update(ctx context.Context, s *model.AssessmentSession) error
	AppendSubmission(ctx context.Context, s *model.AssessmentSession, questionKey string, sub model.CodeSubmission) error
	ListExpiredInProgress(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// InvitationIssuer resolves tokens handed out at invitation time.
type InvitationIssuer interface {
	GetByToken(ctx context.Context, token string) (*model.Invitation, error)
}

// TestCatalog exposes the parts of a test definition the engine needs.
type TestCatalog interface {
	GetTestDuration(ctx context.Context, testID string) (int64, error)
	GetQuestionTestCases(ctx context.Context, testID, questionKey string) ([]model.TestCase, error)
}

// ViolationSink receives violation audit events after they are persisted.
type ViolationSink interface {
	PublishViolation(ctx context.Context, event model.ViolationEvent) error
}
