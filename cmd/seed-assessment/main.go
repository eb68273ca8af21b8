package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/database"
	"github.com/stemsi/exstem-assessment/internal/logger"
	"github.com/stemsi/exstem-assessment/internal/service"
)

const sumCases = `[
	{"input": "1 2", "expected_output": "3"},
	{"input": "10 -4", "expected_output": "6"},
	{"input": "0 0", "expected_output": "0"}
]`

func main() {
	var (
		testID     string
		duration   int
		candidates int
		tokenTTL   time.Duration
	)
	flag.StringVar(&testID, "test", "demo-sum", "Test id to create or reuse")
	flag.IntVar(&duration, "duration", 3600, "Test duration in seconds")
	flag.IntVar(&candidates, "n", 5, "Number of invitations to issue")
	flag.DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "Lifetime of the printed candidate JWTs")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	fmt.Printf("=== Seeding test %s (%ds) ===\n", testID, duration)

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`INSERT INTO tests (id, title, duration_seconds) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET duration_seconds = EXCLUDED.duration_seconds`,
		testID, "Demo: sum two integers", duration,
	); err != nil {
		log.Fatal().Err(err).Msg("Failed to upsert test")
	}

	batch := &pgx.Batch{}
	batch.Queue(
		`INSERT INTO test_questions (test_id, question_key, kind, position, test_cases)
		 VALUES ($1, 'sum', 'coding', 1, $2::jsonb)
		 ON CONFLICT (test_id, question_key) DO UPDATE SET test_cases = EXCLUDED.test_cases`,
		testID, sumCases,
	)
	batch.Queue(
		`INSERT INTO test_questions (test_id, question_key, kind, position)
		 VALUES ($1, 'intro', 'choice', 0)
		 ON CONFLICT (test_id, question_key) DO NOTHING`,
		testID,
	)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed questions")
	}

	auth := service.NewAuthService(cfg.JWTSecret)
	type issued struct{ token, candidate, jwt string }
	out := make([]issued, 0, candidates)

	for i := 0; i < candidates; i++ {
		candidate := fmt.Sprintf("candidate-%03d", i+1)
		token := uuid.NewString()

		if _, err := tx.Exec(ctx,
			`INSERT INTO invitations (token, test_id, candidate_id) VALUES ($1, $2, $3)`,
			token, testID, candidate,
		); err != nil {
			log.Fatal().Err(err).Str("candidate", candidate).Msg("Failed to create invitation")
		}

		signed, err := auth.IssueCandidateToken(candidate, token, tokenTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to sign candidate token")
		}
		out = append(out, issued{token: token, candidate: candidate, jwt: signed})
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to commit seed")
	}

	for _, o := range out {
		fmt.Printf("\n%s\n  invitation: %s\n  jwt:        %s\n", o.candidate, o.token, o.jwt)
	}
	fmt.Printf("\nSeed completed! Issued %d invitations for %s.\n", len(out), testID)
}
