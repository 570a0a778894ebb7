package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds all engram configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Scoring  ScoringConfig  `toml:"scoring"`
	Query    QueryConfig    `toml:"query"`
	LLM      LLMConfig      `toml:"llm"`
}

type ServerConfig struct {
	Bind string `toml:"bind"`
	Port int    `toml:"port"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// ScoringConfig carries the activation recurrence parameters. Keys absent
// from the file keep their defaults; Load layers the file over Default().
type ScoringConfig struct {
	BaseDecay         float64 `toml:"base_decay"`
	ResonanceFactor   float64 `toml:"resonance_factor"`
	FeedbackWeight    float64 `toml:"feedback_weight"`
	ConceptBoost      float64 `toml:"concept_boost"`
	MultiTurnWeight   float64 `toml:"multi_turn_weight"`
	SemanticThreshold float64 `toml:"semantic_threshold"`
	SaturationLimit   float64 `toml:"saturation_limit"`
}

// QueryConfig holds the run-time retrieval settings. These are the initial
// values; PUT /api/settings can change them while serving.
type QueryConfig struct {
	Results   int     `toml:"results"`
	Window    int     `toml:"window"`
	Threshold float64 `toml:"threshold"`
}

type LLMConfig struct {
	Provider       string `toml:"provider"` // "anthropic", "ollama", "mock"
	Model          string `toml:"model"`
	AnthropicKey   string `toml:"anthropic_key"`
	OllamaURL      string `toml:"ollama_url"`
	OllamaModel    string `toml:"ollama_model"`    // e.g. "llama3.2"
	EmbeddingModel string `toml:"embedding_model"` // e.g. "nomic-embed-text"
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37997,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Scoring: ScoringConfig{
			BaseDecay:         0.05,
			ResonanceFactor:   1.2,
			FeedbackWeight:    0.7,
			ConceptBoost:      1.1,
			MultiTurnWeight:   0.6,
			SemanticThreshold: 0.0,
			SaturationLimit:   5000,
		},
		Query: QueryConfig{
			Results:   5,
			Window:    2,
			Threshold: 0.3,
		},
		LLM: LLMConfig{
			Provider:       "ollama",
			Model:          "claude-haiku-4-5",
			OllamaURL:      "http://localhost:11434",
			OllamaModel:    "llama3.2",
			EmbeddingModel: "nomic-embed-text",
		},
	}
}

// DefaultPath returns ~/.engram/config.toml, or "" if the home directory
// cannot be resolved.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".engram", "config.toml")
}

// Load reads TOML config from path, layered over Default(). A missing file
// is not an error: callers always get a fully populated Config. Fields set
// in the file override the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config TOML: %w", err)
	}
	return cfg, nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
