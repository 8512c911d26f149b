// Package jobs owns the analysis job lifecycle: creation, background
// execution through the agent orchestrator, progress persistence,
// cancellation and retention cleanup.
package jobs

import (
	"context"
	"time"

	"github.com/alphalens/alphalens/pkg/models"
)

// Patch is a partial update to a job record. Nil fields are left
// untouched; the store always refreshes updated_at.
type Patch struct {
	Status          *models.JobStatus
	Progress        *int
	CurrentStep     *string
	ToolCalls       []models.ToolCall
	InitialAnalysis *string
	Critique        *string
	FinalResult     *models.TradeRecommendation
	Error           *string
}

// Store persists analysis jobs. Implemented by the Postgres repository
// in production and by an in-memory store in tests.
type Store interface {
	Create(ctx context.Context, job *models.AnalysisJob) error
	Get(ctx context.Context, id string) (*models.AnalysisJob, error)
	List(ctx context.Context, ownerID string, limit int) ([]models.AnalysisJob, error)
	Update(ctx context.Context, id string, patch Patch) error
	// DeleteOlderThan removes terminal jobs whose last update precedes
	// the cutoff, returning how many were removed
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	// FailStale marks running jobs with no update since the cutoff as
	// failed, returning how many were swept
	FailStale(ctx context.Context, cutoff time.Time) (int64, error)
}

func statusPtr(s models.JobStatus) *models.JobStatus { return &s }
func intPtr(i int) *int                              { return &i }
func strPtr(s string) *string                        { return &s }
