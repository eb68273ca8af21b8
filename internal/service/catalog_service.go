package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/repository"
)

// CatalogSource is the persistent side of the test catalog.
type CatalogSource interface {
	GetTestDuration(ctx context.Context, testID string) (int64, error)
	GetQuestionTestCases(ctx context.Context, testID, questionKey string) (json.RawMessage, error)
	ListCodingQuestionKeys(ctx context.Context, testID string) ([]string, error)
	ListOpenTestIDs(ctx context.Context, now time.Time) ([]string, error)
}

// CatalogService serves test durations and hidden test cases from Redis,
// falling back to the catalog tables on a miss and healing the cache.
type CatalogService struct {
	source CatalogSource
	rdb    *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(source CatalogSource, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *CatalogService {
	return &CatalogService{
		source: source,
		rdb:    rdb,
		ttl:    ttl,
		log:    log.With().Str("component", "catalog_service").Logger(),
	}
}

// GetTestDuration returns the allotted duration of a test in seconds.
func (s *CatalogService) GetTestDuration(ctx context.Context, testID string) (int64, error) {
	key := config.CacheKey.TestDurationKey(testID)

	val, err := s.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		seconds, parseErr := strconv.ParseInt(val, 10, 64)
		if parseErr == nil {
			return seconds, nil
		}
		s.log.Warn().Str("key", key).Msg("Invalid duration in cache, reloading")
	case !errors.Is(err, redis.Nil):
		// Redis trouble should not block a start; read through.
		s.log.Warn().Err(err).Msg("Redis error reading duration")
	}

	seconds, err := s.source.GetTestDuration(ctx, testID)
	if err != nil {
		return 0, err
	}
	_ = s.rdb.Set(ctx, key, seconds, s.ttl).Err()
	return seconds, nil
}

// GetQuestionTestCases returns the validated hidden test cases of a question.
func (s *CatalogService) GetQuestionTestCases(ctx context.Context, testID, questionKey string) ([]model.TestCase, error) {
	key := config.CacheKey.QuestionTestCasesKey(testID, questionKey)

	cached, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var cases []model.TestCase
		if jsonErr := json.Unmarshal(cached, &cases); jsonErr == nil && len(cases) > 0 {
			return cases, nil
		}
		s.log.Warn().Str("key", key).Msg("Invalid test cases in cache, reloading")
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("Redis error reading test cases")
	}

	raw, err := s.source.GetQuestionTestCases(ctx, testID, questionKey)
	if err != nil {
		return nil, err
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("%w: question %q has no test cases", repository.ErrNotFound, questionKey)
	}
	cases, err := DecodeTestCases(raw)
	if err != nil {
		s.log.Error().Err(err).
			Str("test_id", testID).
			Str("question_key", questionKey).
			Msg("Malformed test case definition")
		return nil, err
	}

	if payload, err := json.Marshal(cases); err == nil {
		_ = s.rdb.Set(ctx, key, payload, s.ttl).Err()
	}
	return cases, nil
}

// Prewarm loads the duration and every coding question of a test into Redis.
func (s *CatalogService) Prewarm(ctx context.Context, testID string) error {
	if _, err := s.GetTestDuration(ctx, testID); err != nil {
		return fmt.Errorf("warm duration: %w", err)
	}
	keys, err := s.source.ListCodingQuestionKeys(ctx, testID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	for _, k := range keys {
		if _, err := s.GetQuestionTestCases(ctx, testID, k); err != nil {
			return fmt.Errorf("warm question %s: %w", k, err)
		}
	}
	s.log.Debug().Str("test_id", testID).Int("questions", len(keys)).Msg("Catalog cache warmed")
	return nil
}

// PrewarmOpen warms every test that still has usable invitations. Failures
// are logged per test; a cold entry only costs one database read later.
func (s *CatalogService) PrewarmOpen(ctx context.Context) error {
	ids, err := s.source.ListOpenTestIDs(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("list open tests: %w", err)
	}
	for _, id := range ids {
		if err := s.Prewarm(ctx, id); err != nil {
			s.log.Warn().Err(err).Str("test_id", id).Msg("Catalog prewarm failed")
		}
	}
	s.log.Info().Int("tests", len(ids)).Msg("Catalog prewarm finished")
	return nil
}

// DecodeTestCases parses a stored test case document. Anything other than a
// non-empty array of objects carrying both input and expected_output is an
// ErrInvalidQuestionDefinition.
func DecodeTestCases(raw json.RawMessage) ([]model.TestCase, error) {
	var entries []struct {
		Input          *string `json:"input"`
		ExpectedOutput *string `json:"expected_output"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuestionDefinition, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no test cases", ErrInvalidQuestionDefinition)
	}

	cases := make([]model.TestCase, len(entries))
	for i, e := range entries {
		if e.Input == nil || e.ExpectedOutput == nil {
			return nil, fmt.Errorf("%w: test case %d is missing input or expected_output", ErrInvalidQuestionDefinition, i)
		}
		cases[i] = model.TestCase{Input: *e.Input, ExpectedOutput: *e.ExpectedOutput}
	}
	return cases, nil
}
