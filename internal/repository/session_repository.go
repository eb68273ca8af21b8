package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// SessionRepository persists assessment sessions in PostgreSQL. The session
// row holds mutable state; judged submissions live in code_submissions,
// which is insert-only.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `token, invitation_id, test_id, state, started_at, duration_seconds, expires_at,
	last_activity_at, completed_at, auto_submitted_at, terminated_at, tab_switch_count,
	current_section, current_question, cursor_seq, answers, codes, notes`

// Create inserts a freshly started session.
func (r *SessionRepository) Create(ctx context.Context, s *model.AssessmentSession) error {
	answers, codes, err := encodeMaps(s)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx,
		`INSERT INTO assessment_sessions (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16::jsonb, $17::jsonb, $18)
		 ON CONFLICT (token) DO NOTHING`,
		s.Token, s.InvitationID, s.TestID, s.State, s.StartedAt, s.DurationSeconds, s.ExpiresAt,
		s.LastActivityAt, s.CompletedAt, s.AutoSubmittedAt, s.TerminatedAt, s.TabSwitchCount,
		s.CurrentSection, s.CurrentQuestion, s.CursorSeq, answers, codes, s.Notes,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// GetByToken loads a session and its full submission history.
func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*model.AssessmentSession, error) {
	s := &model.AssessmentSession{}
	var answers, codes []byte
	err := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM assessment_sessions WHERE token = $1`, token,
	).Scan(
		&s.Token, &s.InvitationID, &s.TestID, &s.State, &s.StartedAt, &s.DurationSeconds, &s.ExpiresAt,
		&s.LastActivityAt, &s.CompletedAt, &s.AutoSubmittedAt, &s.TerminatedAt, &s.TabSwitchCount,
		&s.CurrentSection, &s.CurrentQuestion, &s.CursorSeq, &answers, &codes, &s.Notes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select session: %w", err)
	}

	s.Answers = map[string]model.AnswerValue{}
	if err := json.Unmarshal(answers, &s.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	s.Codes = map[string]string{}
	if err := json.Unmarshal(codes, &s.Codes); err != nil {
		return nil, fmt.Errorf("decode codes: %w", err)
	}

	subs, err := r.listSubmissions(ctx, token)
	if err != nil {
		return nil, err
	}
	s.CodeSubmissions = subs
	return s, nil
}

func (r *SessionRepository) listSubmissions(ctx context.Context, token string) (map[string][]model.CodeSubmission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_key, sequence, code, language, submitted_at, outcomes, all_passed, passed_count, total_count
		 FROM code_submissions
		 WHERE token = $1
		 ORDER BY question_key, sequence`, token,
	)
	if err != nil {
		return nil, fmt.Errorf("select submissions: %w", err)
	}
	defer rows.Close()

	subs := make(map[string][]model.CodeSubmission)
	for rows.Next() {
		var (
			key      string
			sub      model.CodeSubmission
			outcomes []byte
		)
		if err := rows.Scan(&key, &sub.Sequence, &sub.Code, &sub.Language, &sub.SubmittedAt,
			&outcomes, &sub.AllPassed, &sub.PassedCount, &sub.TotalCount); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(outcomes, &sub.Outcomes); err != nil {
			return nil, fmt.Errorf("decode outcomes: %w", err)
		}
		subs[key] = append(subs[key], sub)
	}
	return subs, rows.Err()
}

// Update writes every mutable column. Rows already stored in a terminal
// state are never touched; ErrFrozen is returned instead.
func (r *SessionRepository) Update(ctx context.Context, s *model.AssessmentSession) error {
	return r.update(ctx, r.pool, s)
}

// rowExecer is satisfied by both the pool and a transaction.
type rowExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (r *SessionRepository) update(ctx context.Context, db rowExecer, s *model.AssessmentSession) error {
	answers, codes, err := encodeMaps(s)
	if err != nil {
		return err
	}

	tag, err := db.Exec(ctx,
		`UPDATE assessment_sessions
		 SET state = $2, last_activity_at = $3, completed_at = $4, auto_submitted_at = $5,
		     terminated_at = $6, tab_switch_count = $7, current_section = $8,
		     current_question = $9, cursor_seq = $10, answers = $11::jsonb,
		     codes = $12::jsonb, notes = $13
		 WHERE token = $1 AND state = $14 AND tab_switch_count <= $7`,
		s.Token, s.State, s.LastActivityAt, s.CompletedAt, s.AutoSubmittedAt,
		s.TerminatedAt, s.TabSwitchCount, s.CurrentSection,
		s.CurrentQuestion, s.CursorSeq, answers,
		codes, s.Notes, model.SessionStateInProgress,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFrozen
	}
	return nil
}

// AppendSubmission stores the session row and inserts the newest entry of
// history[questionKey] in one transaction.
func (r *SessionRepository) AppendSubmission(ctx context.Context, s *model.AssessmentSession, questionKey string, sub model.CodeSubmission) error {
	outcomes, err := json.Marshal(sub.Outcomes)
	if err != nil {
		return fmt.Errorf("encode outcomes: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := r.update(ctx, tx, s); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO code_submissions
		   (token, question_key, sequence, code, language, submitted_at, outcomes, all_passed, passed_count, total_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10)`,
		s.Token, questionKey, sub.Sequence, sub.Code, sub.Language, sub.SubmittedAt,
		outcomes, sub.AllPassed, sub.PassedCount, sub.TotalCount,
	); err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}

	return tx.Commit(ctx)
}

// ListExpiredInProgress returns tokens of in-progress sessions past their deadline.
func (r *SessionRepository) ListExpiredInProgress(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT token FROM assessment_sessions
		 WHERE state = $1 AND expires_at < $2
		 ORDER BY expires_at
		 LIMIT $3`,
		model.SessionStateInProgress, now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

func encodeMaps(s *model.AssessmentSession) ([]byte, []byte, error) {
	answers := s.Answers
	if answers == nil {
		answers = map[string]model.AnswerValue{}
	}
	codes := s.Codes
	if codes == nil {
		codes = map[string]string{}
	}
	a, err := json.Marshal(answers)
	if err != nil {
		return nil, nil, fmt.Errorf("encode answers: %w", err)
	}
	c, err := json.Marshal(codes)
	if err != nil {
		return nil, nil, fmt.Errorf("encode codes: %w", err)
	}
	return a, c, nil
}
