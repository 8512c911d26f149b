package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alphalens/alphalens/internal/adapters/database"
	"github.com/alphalens/alphalens/pkg/models"
)

// PostgresStore implements Store on the analysis_jobs table
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates the Postgres-backed job store
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// jobRow maps the table shape; JSONB columns carry the serialized
// tool-call list and recommendation
type jobRow struct {
	ID              string         `db:"id"`
	OwnerID         string         `db:"owner_id"`
	Symbol          string         `db:"symbol"`
	AnalysisType    string         `db:"analysis_type"`
	Status          string         `db:"status"`
	Progress        int            `db:"progress"`
	CurrentStep     string         `db:"current_step"`
	ToolsCalled     []byte         `db:"tools_called"`
	InitialAnalysis sql.NullString `db:"initial_analysis"`
	Critique        sql.NullString `db:"critique"`
	FinalResult     []byte         `db:"final_result"`
	Error           sql.NullString `db:"error"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (r *jobRow) toModel() (*models.AnalysisJob, error) {
	job := &models.AnalysisJob{
		ID:           r.ID,
		OwnerID:      r.OwnerID,
		Symbol:       r.Symbol,
		AnalysisType: models.AnalysisType(r.AnalysisType),
		Status:       models.JobStatus(r.Status),
		Progress:     r.Progress,
		CurrentStep:  r.CurrentStep,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}

	if r.InitialAnalysis.Valid {
		job.InitialAnalysis = &r.InitialAnalysis.String
	}
	if r.Critique.Valid {
		job.Critique = &r.Critique.String
	}
	if r.Error.Valid {
		job.Error = &r.Error.String
	}
	if len(r.ToolsCalled) > 0 {
		if err := json.Unmarshal(r.ToolsCalled, &job.ToolCalls); err != nil {
			return nil, fmt.Errorf("decode tools_called for job %s: %w", r.ID, err)
		}
	}
	if len(r.FinalResult) > 0 {
		job.FinalResult = &models.TradeRecommendation{}
		if err := json.Unmarshal(r.FinalResult, job.FinalResult); err != nil {
			return nil, fmt.Errorf("decode final_result for job %s: %w", r.ID, err)
		}
	}

	return job, nil
}

// Create inserts a new pending job
func (s *PostgresStore) Create(ctx context.Context, job *models.AnalysisJob) error {
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO analysis_jobs (id, owner_id, symbol, analysis_type, status, progress, current_step, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, job.ID, job.OwnerID, job.Symbol, string(job.AnalysisType), string(job.Status), job.Progress, job.CurrentStep, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// Get fetches one job by id; a missing job returns (nil, nil)
func (s *PostgresStore) Get(ctx context.Context, id string) (*models.AnalysisJob, error) {
	var row jobRow
	err := s.db.DB().GetContext(ctx, &row, `
		SELECT id, owner_id, symbol, analysis_type, status, progress, current_step,
		       tools_called, initial_analysis, critique, final_result, error, created_at, updated_at
		FROM analysis_jobs
		WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return row.toModel()
}

// List returns an owner's jobs, newest first
func (s *PostgresStore) List(ctx context.Context, ownerID string, limit int) ([]models.AnalysisJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var rows []jobRow
	err := s.db.DB().SelectContext(ctx, &rows, `
		SELECT id, owner_id, symbol, analysis_type, status, progress, current_step,
		       tools_called, initial_analysis, critique, final_result, error, created_at, updated_at
		FROM analysis_jobs
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]models.AnalysisJob, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

// Update applies the patch fields that are set. Writes are
// last-writer-wins with no optimistic concurrency check.
func (s *PostgresStore) Update(ctx context.Context, id string, patch Patch) error {
	sets := []string{"updated_at = now()"}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if patch.Status != nil {
		sets = append(sets, "status = "+arg(string(*patch.Status)))
	}
	if patch.Progress != nil {
		sets = append(sets, "progress = "+arg(*patch.Progress))
	}
	if patch.CurrentStep != nil {
		sets = append(sets, "current_step = "+arg(*patch.CurrentStep))
	}
	if patch.ToolCalls != nil {
		encoded, err := json.Marshal(patch.ToolCalls)
		if err != nil {
			return fmt.Errorf("encode tools_called: %w", err)
		}
		sets = append(sets, "tools_called = "+arg(encoded))
	}
	if patch.InitialAnalysis != nil {
		sets = append(sets, "initial_analysis = "+arg(*patch.InitialAnalysis))
	}
	if patch.Critique != nil {
		sets = append(sets, "critique = "+arg(*patch.Critique))
	}
	if patch.FinalResult != nil {
		encoded, err := json.Marshal(patch.FinalResult)
		if err != nil {
			return fmt.Errorf("encode final_result: %w", err)
		}
		sets = append(sets, "final_result = "+arg(encoded))
	}
	if patch.Error != nil {
		sets = append(sets, "error = "+arg(*patch.Error))
	}

	query := "UPDATE analysis_jobs SET " + strings.Join(sets, ", ") + " WHERE id = " + arg(id)
	result, err := s.db.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("job %s not found", id)
	}
	return nil
}

// DeleteOlderThan removes terminal jobs last updated before the cutoff
func (s *PostgresStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.DB().ExecContext(ctx, `
		DELETE FROM analysis_jobs
		WHERE status IN ('completed', 'failed', 'cancelled') AND updated_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old jobs: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}

// FailStale sweeps running jobs abandoned by a crashed process
func (s *PostgresStore) FailStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.DB().ExecContext(ctx, `
		UPDATE analysis_jobs
		SET status = 'failed',
		    current_step = 'Failed',
		    error = 'Run timed out without progress',
		    updated_at = now()
		WHERE status = 'running' AND updated_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale jobs: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}
