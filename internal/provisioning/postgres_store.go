package provisioning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRunStore implements RunStore using PostgreSQL
type PostgresRunStore struct {
	pool *pgxpool.Pool
}

// NewPostgresRunStore creates a new PostgreSQL-backed run store
func NewPostgresRunStore(pool *pgxpool.Pool) *PostgresRunStore {
	return &PostgresRunStore{pool: pool}
}

const runColumns = `id, user_id, session_id, trigger, state, steps, poll_attempts,
	redirect_url, error_message, created_at, updated_at, completed_at`

// SaveRun persists a new run
func (s *PostgresRunStore) SaveRun(ctx context.Context, run *Run) error {
	stepsJSON, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal run steps: %w", err)
	}

	query := `
		INSERT INTO provisioning_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query,
		run.ID,
		run.UserID,
		nullable(run.SessionID),
		string(run.Trigger),
		string(run.State),
		stepsJSON,
		run.PollAttempts,
		nullable(run.RedirectURL),
		nullable(run.ErrorMessage),
		run.CreatedAt,
		run.UpdatedAt,
		run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunExists
	}
	return nil
}

// UpdateRun replaces an existing run
func (s *PostgresRunStore) UpdateRun(ctx context.Context, run *Run) error {
	stepsJSON, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal run steps: %w", err)
	}

	query := `
		UPDATE provisioning_runs
		SET state = $2,
			steps = $3,
			poll_attempts = $4,
			redirect_url = $5,
			error_message = $6,
			updated_at = $7,
			completed_at = $8
		WHERE id = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		run.ID,
		string(run.State),
		stepsJSON,
		run.PollAttempts,
		nullable(run.RedirectURL),
		nullable(run.ErrorMessage),
		run.UpdatedAt,
		run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetRun retrieves a run by id
func (s *PostgresRunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM provisioning_runs WHERE id = $1`
	return scanRun(s.pool.QueryRow(ctx, query, id))
}

// ListRunsByUser returns one page of a user's runs, newest first
func (s *PostgresRunStore) ListRunsByUser(ctx context.Context, userID string, limit, offset int) ([]*Run, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM provisioning_runs WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	query := `
		SELECT ` + runColumns + `
		FROM provisioning_runs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*Run, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, total, nil
}

func scanRun(row pgx.Row) (*Run, error) {
	var run Run
	var trigger, state string
	var sessionID, redirectURL, errorMessage *string
	var stepsJSON []byte

	err := row.Scan(
		&run.ID,
		&run.UserID,
		&sessionID,
		&trigger,
		&state,
		&stepsJSON,
		&run.PollAttempts,
		&redirectURL,
		&errorMessage,
		&run.CreatedAt,
		&run.UpdatedAt,
		&run.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Trigger = Trigger(trigger)
	run.State = RunState(state)
	if sessionID != nil {
		run.SessionID = *sessionID
	}
	if redirectURL != nil {
		run.RedirectURL = *redirectURL
	}
	if errorMessage != nil {
		run.ErrorMessage = *errorMessage
	}

	run.Steps = make([]StepResult, 0)
	if len(stepsJSON) > 0 {
		if err := json.Unmarshal(stepsJSON, &run.Steps); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run steps: %w", err)
		}
	}

	return &run, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
