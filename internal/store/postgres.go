package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	// Use advisory lock to prevent concurrent migrations from multiple services.
	// Note: In production, use dedicated migration tools (e.g., golang-migrate/migrate)
	// that run as a separate deployment step before app services start.
	const lockID = 874120339 // arbitrary number for this application's migration lock

	var acquired bool
	err := s.db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	if !acquired {
		// Another service is running migrations; wait briefly and skip
		time.Sleep(2 * time.Second)
		return nil
	}

	defer func() {
		_, _ = s.db.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
	}()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS evaluation_runs (
			id UUID PRIMARY KEY,
			evaluator TEXT,
			score FLOAT8,
			individual_scores FLOAT8[],
			created_at TIMESTAMPTZ DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS evaluation_results (
			run_id UUID REFERENCES evaluation_runs(id) ON DELETE CASCADE,
			ord INT,
			question TEXT,
			contexts TEXT[],
			relevant_statements TEXT[],
			score FLOAT8,
			PRIMARY KEY (run_id, ord)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, run EvaluationRun) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO evaluation_runs (id, evaluator, score, individual_scores) VALUES ($1, $2, $3, $4)`,
		run.ID, run.Evaluator, run.Score, pq.Array(run.IndividualScores),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, res := range run.Results {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO evaluation_results (run_id, ord, question, contexts, relevant_statements, score)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			run.ID, res.Ord, res.Question, pq.Array(res.Contexts), pq.Array(res.RelevantStatements), res.Score,
		)
		if err != nil {
			return fmt.Errorf("failed to insert result %d: %w", res.Ord, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) GetRun(ctx context.Context, id uuid.UUID) (EvaluationRun, error) {
	var run EvaluationRun
	var scores pq.Float64Array
	err := s.db.QueryRowContext(ctx,
		`SELECT id, evaluator, score, individual_scores, created_at FROM evaluation_runs WHERE id = $1`, id,
	).Scan(&run.ID, &run.Evaluator, &run.Score, &scores, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return EvaluationRun{}, ErrRunNotFound
	}
	if err != nil {
		return EvaluationRun{}, err
	}
	run.IndividualScores = scores

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, ord, question, contexts, relevant_statements, score
		 FROM evaluation_results WHERE run_id = $1 ORDER BY ord`, id,
	)
	if err != nil {
		return EvaluationRun{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var res EvaluationResult
		var contexts, statements pq.StringArray
		if err := rows.Scan(&res.RunID, &res.Ord, &res.Question, &contexts, &statements, &res.Score); err != nil {
			return EvaluationRun{}, err
		}
		res.Contexts = contexts
		res.RelevantStatements = statements
		run.Results = append(run.Results, res)
	}
	if err := rows.Err(); err != nil {
		return EvaluationRun{}, err
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]EvaluationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, evaluator, score, individual_scores, created_at
		 FROM evaluation_runs ORDER BY created_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []EvaluationRun
	for rows.Next() {
		var run EvaluationRun
		var scores pq.Float64Array
		if err := rows.Scan(&run.ID, &run.Evaluator, &run.Score, &scores, &run.CreatedAt); err != nil {
			return nil, err
		}
		run.IndividualScores = scores
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
