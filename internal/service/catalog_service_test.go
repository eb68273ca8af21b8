package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/repository"
)

type stubCatalogSource struct {
	duration int64
	cases    map[string]json.RawMessage
	reads    int
}

func (s *stubCatalogSource) GetTestDuration(context.Context, string) (int64, error) {
	s.reads++
	return s.duration, nil
}

func (s *stubCatalogSource) GetQuestionTestCases(_ context.Context, _ string, key string) (json.RawMessage, error) {
	s.reads++
	raw, ok := s.cases[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return raw, nil
}

func (s *stubCatalogSource) ListOpenTestIDs(context.Context, time.Time) ([]string, error) {
	return []string{"test-1"}, nil
}

func (s *stubCatalogSource) ListCodingQuestionKeys(context.Context, string) ([]string, error) {
	keys := make([]string, 0, len(s.cases))
	for k := range s.cases {
		keys = append(keys, k)
	}
	return keys, nil
}

// unreachableRedis returns a client whose every command fails fast.
func unreachableRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestCatalogReadsThroughWhenRedisIsDown(t *testing.T) {
	rdb := unreachableRedis()
	defer rdb.Close()

	src := &stubCatalogSource{
		duration: 900,
		cases: map[string]json.RawMessage{
			"sum": json.RawMessage(`[{"input":"1 2","expected_output":"3"}]`),
			"bad": json.RawMessage(`{"input":"1"}`),
		},
	}
	svc := NewCatalogService(src, rdb, time.Minute, zerolog.Nop())
	ctx := context.Background()

	d, err := svc.GetTestDuration(ctx, "test-1")
	if err != nil || d != 900 {
		t.Fatalf("expected 900, got %d %v", d, err)
	}

	cases, err := svc.GetQuestionTestCases(ctx, "test-1", "sum")
	if err != nil {
		t.Fatalf("test cases: %v", err)
	}
	if len(cases) != 1 || cases[0].ExpectedOutput != "3" {
		t.Fatalf("unexpected cases %+v", cases)
	}

	if _, err := svc.GetQuestionTestCases(ctx, "test-1", "bad"); !errors.Is(err, ErrInvalidQuestionDefinition) {
		t.Fatalf("expected ErrInvalidQuestionDefinition, got %v", err)
	}
	if _, err := svc.GetQuestionTestCases(ctx, "test-1", "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := svc.Prewarm(ctx, "test-1"); err == nil {
		t.Fatalf("prewarm must report the malformed question")
	}
	if err := svc.PrewarmOpen(ctx); err != nil {
		t.Fatalf("prewarm of open tests logs per-test failures: %v", err)
	}
}

func TestDecodeTestCases(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    int
		invalid bool
	}{
		{"valid", `[{"input":"1","expected_output":"1"},{"input":"","expected_output":""}]`, 2, false},
		{"extra fields", `[{"input":"1","expected_output":"1","weight":2}]`, 1, false},
		{"empty array", `[]`, 0, true},
		{"null", `null`, 0, true},
		{"object", `{"input":"1","expected_output":"1"}`, 0, true},
		{"missing expected", `[{"input":"1"}]`, 0, true},
		{"missing input", `[{"expected_output":"1"}]`, 0, true},
		{"wrong type", `[{"input":1,"expected_output":"1"}]`, 0, true},
		{"garbage", `not json`, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeTestCases(json.RawMessage(tc.raw))
			if tc.invalid {
				if !errors.Is(err, ErrInvalidQuestionDefinition) {
					t.Fatalf("expected ErrInvalidQuestionDefinition, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(got) != tc.want {
				t.Fatalf("expected %d cases, got %d", tc.want, len(got))
			}
		})
	}
}

func TestCatalogQuestionWithoutTestCasesIsNotFound(t *testing.T) {
	rdb := unreachableRedis()
	defer rdb.Close()

	src := &stubCatalogSource{
		duration: 900,
		cases: map[string]json.RawMessage{
			"essay":  nil,
			"choice": json.RawMessage(` null `),
		},
	}
	svc := NewCatalogService(src, rdb, time.Minute, zerolog.Nop())

	for _, key := range []string{"essay", "choice"} {
		_, err := svc.GetQuestionTestCases(context.Background(), "test-1", key)
		if !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound, got %v", key, err)
		}
		if errors.Is(err, ErrInvalidQuestionDefinition) {
			t.Fatalf("%s: reported as a catalog defect: %v", key, err)
		}
	}
}
