package config

import "fmt"

// Config holds all marginalia configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Oracle   OracleConfig   `toml:"oracle"`
	Rollout  RolloutConfig  `toml:"rollout"`
}

type ServerConfig struct {
	Bind string `toml:"bind"`
	Port int    `toml:"port"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// OracleConfig configures the judgment oracle provider.
type OracleConfig struct {
	Provider       string `toml:"provider"` // "anthropic", "openai", "ollama"
	Model          string `toml:"model"`
	AnthropicKey   string `toml:"anthropic_key"`
	OpenAIKey      string `toml:"openai_key"`
	OpenAIBaseURL  string `toml:"openai_base_url"`
	OllamaURL      string `toml:"ollama_url"`
	OllamaModel    string `toml:"ollama_model"`
	EmbeddingModel string `toml:"embedding_model"` // e.g. "nomic-embed-text"
}

// RolloutConfig holds the margin-nudge rollout allow-lists, resolved from
// MARGINALIA_NUDGE_USERS / MARGINALIA_SHADOW_USERS in the serve command.
type RolloutConfig struct {
	EnabledUsers []string `toml:"enabled_users"`
	ShadowUsers  []string `toml:"shadow_users"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37779,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Oracle: OracleConfig{
			Provider: "anthropic",
		},
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
