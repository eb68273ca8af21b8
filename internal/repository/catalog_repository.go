package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogRepository reads test definitions owned by the test catalog.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// GetTestDuration returns the allotted duration of a test in seconds.
func (r *CatalogRepository) GetTestDuration(ctx context.Context, testID string) (int64, error) {
	var seconds int64
	err := r.pool.QueryRow(ctx,
		`SELECT duration_seconds FROM tests WHERE id = $1`, testID,
	).Scan(&seconds)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return seconds, err
}

// GetQuestionTestCases returns the raw hidden test case document of a
// question. Questions without test cases (choice, essay) are ErrNotFound.
// Decoding and validation belong to the caller.
func (r *CatalogRepository) GetQuestionTestCases(ctx context.Context, testID, questionKey string) (json.RawMessage, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT test_cases FROM test_questions
		 WHERE test_id = $1 AND question_key = $2 AND test_cases IS NOT NULL`,
		testID, questionKey,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select test cases: %w", err)
	}
	return raw, nil
}

// ListCodingQuestionKeys returns the keys of every question carrying test cases.
func (r *CatalogRepository) ListCodingQuestionKeys(ctx context.Context, testID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_key FROM test_questions
		 WHERE test_id = $1 AND test_cases IS NOT NULL
		 ORDER BY question_key`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ListOpenTestIDs returns tests that still have usable invitations.
func (r *CatalogRepository) ListOpenTestIDs(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT test_id FROM invitations
		 WHERE revoked_at IS NULL AND (valid_until IS NULL OR valid_until > $1)`, now,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
