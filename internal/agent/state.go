package agent

import (
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alphalens/alphalens/pkg/models"
)

// Phase is the orchestrator's position in a run
type Phase string

const (
	PhaseGathering  Phase = "gathering"
	PhaseAnalyzing  Phase = "analyzing"
	PhaseReflecting Phase = "reflecting"
	PhaseFinalizing Phase = "finalizing"
)

// validTransitions is the exhaustive transition table. The forced
// jump from gathering straight to finalizing covers the tool-budget
// guard.
var validTransitions = map[Phase][]Phase{
	PhaseGathering:  {PhaseAnalyzing, PhaseFinalizing},
	PhaseAnalyzing:  {PhaseReflecting, PhaseFinalizing},
	PhaseReflecting: {PhaseFinalizing},
	PhaseFinalizing: {},
}

// State holds everything one run accumulates. It lives for exactly one
// orchestrator run and is never persisted or shared.
type State struct {
	Phase         Phase
	Messages      []openai.ChatCompletionMessage
	ToolCallCount int

	maxToolCalls    int
	forceFinalizeAt int

	// GatheredData maps tool name to its last successful result,
	// consumed by reflection as context
	GatheredData map[string]json.RawMessage

	// Audit accumulates tool-call records across iterations
	Audit []models.ToolCall
}

// NewState seeds a run with its system and user prompts
func NewState(systemPrompt, userPrompt string, maxToolCalls, forceFinalizeAt int) *State {
	return &State{
		Phase: PhaseGathering,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		maxToolCalls:    maxToolCalls,
		forceFinalizeAt: forceFinalizeAt,
		GatheredData:    make(map[string]json.RawMessage),
	}
}

// TransitionTo moves to the next phase, rejecting anything the
// transition table does not allow
func (s *State) TransitionTo(next Phase) error {
	for _, allowed := range validTransitions[s.Phase] {
		if next == allowed {
			s.Phase = next
			return nil
		}
	}
	return fmt.Errorf("invalid phase transition %s -> %s", s.Phase, next)
}

// ShouldForceFinalize reports whether the run has spent enough of its
// tool budget that the next LLM call must come without tools
func (s *State) ShouldForceFinalize() bool {
	return s.ToolCallCount >= s.forceFinalizeAt
}

// RemainingToolBudget returns how many more tool calls the run may make
func (s *State) RemainingToolBudget() int {
	remaining := s.maxToolCalls - s.ToolCallCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Append adds a message to the conversation
func (s *State) Append(msg openai.ChatCompletionMessage) {
	s.Messages = append(s.Messages, msg)
}

// RecordToolRound folds one executor batch into the state: messages
// for the model, audit records for the job, and successful results
// into the gathered-data map
func (s *State) RecordToolRound(messages []openai.ChatCompletionMessage, audit []models.ToolCall) {
	s.Messages = append(s.Messages, messages...)
	s.Audit = append(s.Audit, audit...)
	s.ToolCallCount += len(audit)

	for _, record := range audit {
		if record.Error == "" && record.Result != nil {
			s.GatheredData[record.Name] = record.Result
		}
	}
}

// GatheredSummary renders the gathered-data map as a compact context
// block for the reflection prompt. Oversized results are truncated per
// tool so one verbose tool cannot crowd out the rest.
func (s *State) GatheredSummary(perToolLimit int) string {
	if len(s.GatheredData) == 0 {
		return ""
	}
	if perToolLimit <= 0 {
		perToolLimit = 2000
	}

	// Iterate audit order so the summary is deterministic
	seen := make(map[string]bool, len(s.GatheredData))
	out := ""
	for _, record := range s.Audit {
		data, ok := s.GatheredData[record.Name]
		if !ok || seen[record.Name] {
			continue
		}
		seen[record.Name] = true

		body := string(data)
		if len(body) > perToolLimit {
			body = body[:perToolLimit] + "...(truncated)"
		}
		out += record.Name + ": " + body + "\n"
	}
	return out
}
