package models

import (
	"encoding/json"
	"time"
)

// JobStatus represents lifecycle state of an analysis job
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the status is final
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// CanTransitionTo enforces the monotonic pending -> running -> terminal order.
// Terminal states never revert.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case JobPending:
		return next == JobRunning || next.IsTerminal()
	case JobRunning:
		return next.IsTerminal()
	}
	return false
}

// AnalysisType selects the prompt and tool set for a run
type AnalysisType string

const (
	AnalysisStock        AnalysisType = "stock"
	AnalysisForex        AnalysisType = "forex"
	AnalysisTechnical    AnalysisType = "technical"
	AnalysisFundamentals AnalysisType = "fundamentals"
	AnalysisEarnings     AnalysisType = "earnings"
	AnalysisNews         AnalysisType = "news"
	AnalysisSmartMoney   AnalysisType = "smart_money"
)

// Valid reports whether t is a known analysis type
func (t AnalysisType) Valid() bool {
	switch t {
	case AnalysisStock, AnalysisForex, AnalysisTechnical, AnalysisFundamentals,
		AnalysisEarnings, AnalysisNews, AnalysisSmartMoney:
		return true
	}
	return false
}

// ToolCall is one audit record of a tool the agent executed.
// Append-only within a job's lifetime.
type ToolCall struct {
	Name       string                 `json:"name"`
	Arguments  map[string]interface{} `json:"arguments"`
	Result     json.RawMessage        `json:"result,omitempty"`
	Error      string                 `json:"error,omitempty"`
	DurationMs int64                  `json:"duration_ms,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// AnalysisJob is the persisted job record polled by the UI.
// Mutated only by the orchestrator's progress writes and explicit
// user cancellation.
type AnalysisJob struct {
	ID              string               `db:"id" json:"id"`
	OwnerID         string               `db:"owner_id" json:"owner_id"`
	Symbol          string               `db:"symbol" json:"symbol"`
	AnalysisType    AnalysisType         `db:"analysis_type" json:"analysis_type"`
	Status          JobStatus            `db:"status" json:"status"`
	Progress        int                  `db:"progress" json:"progress"`
	CurrentStep     string               `db:"current_step" json:"current_step"`
	ToolCalls       []ToolCall           `db:"-" json:"tools_called,omitempty"`
	InitialAnalysis *string              `db:"initial_analysis" json:"initial_analysis,omitempty"`
	Critique        *string              `db:"critique" json:"critique,omitempty"`
	FinalResult     *TradeRecommendation `db:"-" json:"final_result,omitempty"`
	Error           *string              `db:"error" json:"error,omitempty"`
	CreatedAt       time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time            `db:"updated_at" json:"updated_at"`
}

// AgentResult is everything a single orchestrator run produces.
// A run either carries a recommendation (possibly "wait") or an error
// string, never a raised exception.
type AgentResult struct {
	Recommendation  *TradeRecommendation `json:"recommendation"`
	ToolCalls       []ToolCall           `json:"tool_calls"`
	InitialAnalysis string               `json:"initial_analysis,omitempty"`
	Critique        string               `json:"critique,omitempty"`
	Error           string               `json:"error,omitempty"`
}
