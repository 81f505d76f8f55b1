package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"promptsmith/shared"
)

// ErrRunNotFound is returned by GetRun for an unknown workflow id.
var ErrRunNotFound = errors.New("run not found")

// RunStore persists durable automate runs in the runs table.
type RunStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewRunStore(db *sql.DB, logger *zap.Logger) *RunStore {
	return &RunStore{db: db, logger: logger.Named("runs")}
}

// CreatePending inserts the initial PENDING record if none exists yet.
func (s *RunStore) CreatePending(ctx context.Context, workflowID, request string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO runs (workflow_id, request, status, step, created_at, updated_at) VALUES (?, ?, ?, 0, ?, ?)`,
		workflowID, request, shared.RunStatusPending, now, now)
	if err != nil {
		s.logger.Error("Error creating pending run", zap.String("workflowID", workflowID), zap.Error(err))
		return fmt.Errorf("failed to create pending run: %w", err)
	}
	return nil
}

// SaveRun upserts rec. Blank text columns and a zero step keep the stored
// value; status and error details always overwrite.
func (s *RunStore) SaveRun(ctx context.Context, rec shared.RunRecord) error {
	query := `
    INSERT INTO runs (workflow_id, request, status, step, directives, initial_prompt, advice, final_prompt, commit_hash, error_details, created_at, updated_at)
    VALUES (?, NULLIF(?, ''), ?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, ?)
    ON CONFLICT(workflow_id) DO UPDATE SET
        request        = COALESCE(excluded.request, runs.request),
        status         = excluded.status,
        step           = CASE WHEN excluded.step > 0 THEN excluded.step ELSE runs.step END,
        directives     = COALESCE(excluded.directives, runs.directives),
        initial_prompt = COALESCE(excluded.initial_prompt, runs.initial_prompt),
        advice         = COALESCE(excluded.advice, runs.advice),
        final_prompt   = COALESCE(excluded.final_prompt, runs.final_prompt),
        commit_hash    = COALESCE(excluded.commit_hash, runs.commit_hash),
        error_details  = excluded.error_details,
        updated_at     = excluded.updated_at;
    `
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query,
		rec.WorkflowID, rec.Request, rec.Status, rec.Step,
		rec.Directives, rec.InitialPrompt, rec.Advice, rec.FinalPrompt, rec.CommitHash, rec.ErrorDetails,
		now, now,
	)
	if err != nil {
		s.logger.Error("Error saving run", zap.String("workflowID", rec.WorkflowID), zap.String("status", rec.Status), zap.Error(err))
		return fmt.Errorf("failed to save run: %w", err)
	}
	s.logger.Debug("Run saved", zap.String("workflowID", rec.WorkflowID), zap.String("status", rec.Status), zap.Int("step", rec.Step))
	return nil
}

const runColumns = `workflow_id, request, status, step, directives, initial_prompt, advice, final_prompt, commit_hash, error_details, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (shared.RunRecord, error) {
	var (
		rec                                                       shared.RunRecord
		request, directives, initial, advice, final, hash, errDet sql.NullString
	)
	err := row.Scan(&rec.WorkflowID, &request, &rec.Status, &rec.Step, &directives, &initial, &advice, &final, &hash, &errDet, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return rec, err
	}
	rec.Request = request.String
	rec.Directives = directives.String
	rec.InitialPrompt = initial.String
	rec.Advice = advice.String
	rec.FinalPrompt = final.String
	rec.CommitHash = hash.String
	rec.ErrorDetails = errDet.String
	return rec, nil
}

// GetRun returns the stored record for workflowID.
func (s *RunStore) GetRun(ctx context.Context, workflowID string) (shared.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE workflow_id = ?`, workflowID)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, ErrRunNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("failed to query run %s: %w", workflowID, err)
	}
	return rec, nil
}

// ListRuns returns the most recently updated runs first.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]shared.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY updated_at DESC, workflow_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []shared.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
