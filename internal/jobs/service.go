package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alphalens/alphalens/internal/adapters/config"
	"github.com/alphalens/alphalens/internal/agent"
	"github.com/alphalens/alphalens/pkg/logger"
	"github.com/alphalens/alphalens/pkg/models"
)

var (
	// ErrNotFound marks lookups for jobs that do not exist or belong
	// to another owner.
	ErrNotFound = errors.New("job not found")
	// ErrTerminal marks state changes rejected because the job already
	// reached a terminal status.
	ErrTerminal = errors.New("job is already terminal")
)

// Runner executes one analysis run to completion
type Runner interface {
	Run(ctx context.Context, req agent.RunRequest) *models.AgentResult
}

// Notifier is told about finished jobs. Implementations must not block
// for long; notification failures are logged, never propagated.
type Notifier interface {
	NotifyJobFinished(job *models.AnalysisJob)
}

// SubmitRequest describes a new analysis job
type SubmitRequest struct {
	OwnerID      string
	Symbol       string
	AnalysisType models.AnalysisType
	UserContext  string
	Timeframe    string
}

// Service owns the job lifecycle: creation, background execution with a
// concurrency cap, progress persistence and cancellation
type Service struct {
	store    Store
	runner   Runner
	notifier Notifier
	sem      chan struct{}
}

// NewService creates the job service. notifier may be nil.
func NewService(store Store, runner Runner, notifier Notifier, cfg config.AgentConfig) *Service {
	return &Service{
		store:    store,
		runner:   runner,
		notifier: notifier,
		sem:      make(chan struct{}, cfg.MaxConcurrentRuns),
	}
}

// Submit validates the request, persists a pending job and schedules the
// run in the background. The returned job is immediately pollable.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*models.AnalysisJob, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if req.OwnerID == "" {
		return nil, fmt.Errorf("owner is required")
	}
	if !req.AnalysisType.Valid() {
		return nil, fmt.Errorf("unknown analysis type: %s", req.AnalysisType)
	}

	now := time.Now().UTC()
	job := &models.AnalysisJob{
		ID:           uuid.NewString(),
		OwnerID:      req.OwnerID,
		Symbol:       symbol,
		AnalysisType: req.AnalysisType,
		Status:       models.JobPending,
		Progress:     0,
		CurrentStep:  "Queued",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.Create(ctx, job); err != nil {
		return nil, err
	}

	go s.run(job.ID, agent.RunRequest{
		Symbol:       symbol,
		AnalysisType: req.AnalysisType,
		UserContext:  req.UserContext,
		Timeframe:    req.Timeframe,
	})

	return job, nil
}

// Get returns the job if it exists and belongs to ownerID
func (s *Service) Get(ctx context.Context, id, ownerID string) (*models.AnalysisJob, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil || job.OwnerID != ownerID {
		return nil, nil
	}
	return job, nil
}

// List returns an owner's recent jobs
func (s *Service) List(ctx context.Context, ownerID string, limit int) ([]models.AnalysisJob, error) {
	return s.store.List(ctx, ownerID, limit)
}

// Cancel marks a pending or running job cancelled. An in-flight run is
// not interrupted; its final write is discarded because the job is
// already terminal.
func (s *Service) Cancel(ctx context.Context, id, ownerID string) error {
	job, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrNotFound
	}
	if !job.Status.CanTransitionTo(models.JobCancelled) {
		return fmt.Errorf("%w: status %s", ErrTerminal, job.Status)
	}
	return s.store.Update(ctx, id, Patch{
		Status:      statusPtr(models.JobCancelled),
		CurrentStep: strPtr("Cancelled"),
	})
}

// run executes one job inside the concurrency cap and persists the
// outcome. It uses a background context so the run outlives the
// submitting HTTP request.
func (s *Service) run(jobID string, req agent.RunRequest) {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	ctx := context.Background()

	job, err := s.store.Get(ctx, jobID)
	if err != nil || job == nil {
		logger.Error("failed to load job before run",
			zap.String("job_id", jobID),
			zap.Error(err))
		return
	}
	if job.Status != models.JobPending {
		// Cancelled while queued
		return
	}

	if err := s.store.Update(ctx, jobID, Patch{
		Status:      statusPtr(models.JobRunning),
		CurrentStep: strPtr("Starting analysis"),
	}); err != nil {
		logger.Error("failed to mark job running",
			zap.String("job_id", jobID),
			zap.Error(err))
		return
	}

	req.Progress = func(progress int, step string, toolCalls []models.ToolCall) {
		patch := Patch{
			Progress:    intPtr(progress),
			CurrentStep: strPtr(step),
		}
		if len(toolCalls) > 0 {
			patch.ToolCalls = toolCalls
		}
		if err := s.store.Update(ctx, jobID, patch); err != nil {
			logger.Warn("failed to persist job progress",
				zap.String("job_id", jobID),
				zap.Int("progress", progress),
				zap.Error(err))
		}
	}

	result := s.runner.Run(ctx, req)
	s.finish(ctx, jobID, result)
}

// finish writes the terminal state unless a concurrent cancellation got
// there first
func (s *Service) finish(ctx context.Context, jobID string, result *models.AgentResult) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil || job == nil {
		logger.Error("failed to load job after run",
			zap.String("job_id", jobID),
			zap.Error(err))
		return
	}
	if job.Status.IsTerminal() {
		logger.Info("discarding run result for terminal job",
			zap.String("job_id", jobID),
			zap.String("status", string(job.Status)))
		return
	}

	patch := Patch{ToolCalls: result.ToolCalls}
	if result.InitialAnalysis != "" {
		patch.InitialAnalysis = strPtr(result.InitialAnalysis)
	}
	if result.Critique != "" {
		patch.Critique = strPtr(result.Critique)
	}

	if result.Error != "" {
		patch.Status = statusPtr(models.JobFailed)
		patch.CurrentStep = strPtr("Failed")
		patch.Error = strPtr(result.Error)
	} else {
		patch.Status = statusPtr(models.JobCompleted)
		patch.Progress = intPtr(100)
		patch.CurrentStep = strPtr("Complete")
		patch.FinalResult = result.Recommendation
	}

	if err := s.store.Update(ctx, jobID, patch); err != nil {
		logger.Error("failed to persist job result",
			zap.String("job_id", jobID),
			zap.Error(err))
		return
	}

	if s.notifier != nil {
		if finished, err := s.store.Get(ctx, jobID); err == nil && finished != nil {
			s.notifier.NotifyJobFinished(finished)
		}
	}
}
