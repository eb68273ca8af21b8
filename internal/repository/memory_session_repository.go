package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stemsi/exstem-assessment/internal/model"
)

// MemorySessionRepository keeps sessions in process memory. It honours the
// same contract as SessionRepository and hands out deep copies only.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*model.AssessmentSession
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[string]*model.AssessmentSession)}
}

func (r *MemorySessionRepository) Create(_ context.Context, s *model.AssessmentSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.Token]; ok {
		return ErrAlreadyExists
	}
	r.sessions[s.Token] = s.Clone()
	return nil
}

func (r *MemorySessionRepository) GetByToken(_ context.Context, token string) (*model.AssessmentSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (r *MemorySessionRepository) Update(_ context.Context, s *model.AssessmentSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.writable(s)
	if err != nil {
		return err
	}
	next := s.Clone()
	// History is owned by AppendSubmission.
	next.CodeSubmissions = stored.CodeSubmissions
	r.sessions[s.Token] = next
	return nil
}

func (r *MemorySessionRepository) AppendSubmission(_ context.Context, s *model.AssessmentSession, questionKey string, sub model.CodeSubmission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.writable(s)
	if err != nil {
		return err
	}
	history := stored.CodeSubmissions[questionKey]
	if sub.Sequence != len(history)+1 {
		return fmt.Errorf("submission %s/%d out of sequence: %w", questionKey, sub.Sequence, ErrAlreadyExists)
	}

	next := s.Clone()
	next.CodeSubmissions = stored.CodeSubmissions
	next.CodeSubmissions[questionKey] = append(history, sub.Clone())
	r.sessions[s.Token] = next
	return nil
}

func (r *MemorySessionRepository) ListExpiredInProgress(_ context.Context, now time.Time, limit int) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	expired := make([]*model.AssessmentSession, 0)
	for _, s := range r.sessions {
		if s.State == model.SessionStateInProgress && s.ExpiresAt.Before(now) {
			expired = append(expired, s)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ExpiresAt.Before(expired[j].ExpiresAt) })

	tokens := make([]string, 0, len(expired))
	for _, s := range expired {
		if limit > 0 && len(tokens) == limit {
			break
		}
		tokens = append(tokens, s.Token)
	}
	return tokens, nil
}

// writable mirrors the SQL guard: only in-progress rows accept writes and
// the violation counter never moves backwards.
func (r *MemorySessionRepository) writable(s *model.AssessmentSession) (*model.AssessmentSession, error) {
	stored, ok := r.sessions[s.Token]
	if !ok {
		return nil, ErrNotFound
	}
	if stored.State != model.SessionStateInProgress || s.TabSwitchCount < stored.TabSwitchCount {
		return nil, ErrFrozen
	}
	return stored, nil
}
