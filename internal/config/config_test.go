package config

import (
	"os"
	"testing"
)

func TestLoadFromBytesExpandsEnv(t *testing.T) {
	os.Setenv("TEST_STEPWISE_KEY", "sk-test-123")
	defer os.Unsetenv("TEST_STEPWISE_KEY")

	cfg, err := LoadFromBytes([]byte(`
transport: anthropic
anthropic_api_key: ${TEST_STEPWISE_KEY}
models:
  action: [model-big, model-small]
  verify: [model-small]
snapshot:
  budget: 8000
  verify_budget: 4000
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transport != "anthropic" {
		t.Errorf("transport: %q", cfg.Transport)
	}
	if cfg.AnthropicAPIKey != "sk-test-123" {
		t.Errorf("env expansion broken: %q", cfg.AnthropicAPIKey)
	}
	if len(cfg.Models.Action) != 2 || cfg.Models.Action[0] != "model-big" {
		t.Errorf("model list: %v", cfg.Models.Action)
	}
	if cfg.Snapshot.VerifyBudget != 4000 {
		t.Errorf("verify budget: %d", cfg.Snapshot.VerifyBudget)
	}
	// Defaults survive partial files.
	if cfg.Run.ArtifactDir != "artifacts" {
		t.Errorf("default artifact dir lost: %q", cfg.Run.ArtifactDir)
	}
}
