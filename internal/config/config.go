// Package config loads the YAML configuration with environment variable
// expansion, so API keys can live in the environment while model lists
// and budgets live in the file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full file shape. Model identifiers always come from here;
// nothing in the codebase hardcodes one.
type Config struct {
	Transport       string `yaml:"transport"` // "openai" or "anthropic"
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`

	Models struct {
		Action     []string `yaml:"action"`
		Verify     []string `yaml:"verify"`
		Synthesize []string `yaml:"synthesize"`
	} `yaml:"models"`

	Oracle struct {
		MaxRetries       int `yaml:"max_retries"`
		InitialBackoffMS int `yaml:"initial_backoff_ms"`
		MaxTokens        int `yaml:"max_tokens"`
	} `yaml:"oracle"`

	Snapshot struct {
		Budget       int `yaml:"budget"`
		VerifyBudget int `yaml:"verify_budget"`
		Reserve      int `yaml:"reserve"`
	} `yaml:"snapshot"`

	Run struct {
		MaxVerifyAttempts  int    `yaml:"max_verify_attempts"`
		VerifyRetryDelayMS int    `yaml:"verify_retry_delay_ms"`
		ActionTimeoutMS    int    `yaml:"action_timeout_ms"`
		PostActionDelayMS  int    `yaml:"post_action_delay_ms"`
		ArtifactDir        string `yaml:"artifact_dir"`
		VideoDir           string `yaml:"video_dir"`
	} `yaml:"run"`

	DatabasePath   string `yaml:"database_path"`
	SecretsEnvFile string `yaml:"secrets_env_file"`
}

// Default returns the zero-file configuration.
func Default() Config {
	var c Config
	c.Transport = "openai"
	c.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	c.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	c.Run.ArtifactDir = "artifacts"
	c.DatabasePath = "stepwise.db"
	c.SecretsEnvFile = ".env"
	return c
}

// Load reads a YAML file, expanding ${VAR} references before parsing.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses YAML config bytes with environment expansion.
func LoadFromBytes(data []byte) (Config, error) {
	c := Default()
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &c); err != nil {
		return c, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}
