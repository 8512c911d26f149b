package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		AI: AIConfig{
			Primary: AIProviderConfig{APIKey: "test-key"},
		},
		Agent: AgentConfig{
			MaxIterations:     10,
			MaxToolCalls:      15,
			ForceFinalizeAt:   8,
			ToolTimeout:       15 * time.Second,
			MaxConcurrentRuns: 4,
		},
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid config passes", func(t *testing.T) {
		if err := validConfig().Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
	})

	t.Run("fallback without primary is rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.AI.Primary.APIKey = ""
		cfg.AI.Fallback.APIKey = "fallback-key"
		err := cfg.Validate()
		if err == nil {
			t.Fatal("expected error for fallback-only AI config")
		}
		if !strings.Contains(err.Error(), "primary AI provider") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("force finalize beyond tool budget is rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Agent.ForceFinalizeAt = cfg.Agent.MaxToolCalls + 1
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for force_finalize_at above max_tool_calls")
		}
	})
}
