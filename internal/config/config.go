package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the main metagen configuration.
//
// A Config is built once at startup and passed by value to every component;
// nothing reads the process environment after Load returns.
type Config struct {
	// LLM backend used by the agent session
	LLM LLMConfig `json:"llm" mapstructure:"llm"`

	// Tool server and tool client transport
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`

	// Orchestration limits
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Vector index for the rag commands
	RAG RAGConfig `json:"rag" mapstructure:"rag"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
}

// LLMConfig holds the LLM backend settings
type LLMConfig struct {
	Provider       string  `json:"provider" mapstructure:"provider"` // ollama, openai, anthropic
	BaseURL        string  `json:"base_url" mapstructure:"base_url"`
	Model          string  `json:"model" mapstructure:"model"`
	TimeoutSeconds float64 `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	Thinking       bool    `json:"thinking" mapstructure:"thinking"`
	Temperature    float64 `json:"temperature" mapstructure:"temperature"`
	ContextWindow  int     `json:"context_window" mapstructure:"context_window"`
	APIKey         string  `json:"api_key" mapstructure:"api_key"`
	MaxTokens      int     `json:"max_tokens" mapstructure:"max_tokens"`
}

// DefaultOllamaURL is the default llm.base_url
const DefaultOllamaURL = "http://localhost:11434"

// EndpointURL returns the base URL the provider should call. Hosted
// providers left on the Ollama default use their SDK's own endpoint, so an
// empty string is returned.
func (c LLMConfig) EndpointURL() string {
	if c.Provider != "ollama" && c.BaseURL == DefaultOllamaURL {
		return ""
	}
	return c.BaseURL
}

// Timeout returns the per-request LLM timeout
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}

// ToolsConfig holds tool server and client settings
type ToolsConfig struct {
	URL                string  `json:"url" mapstructure:"url"`
	ListenAddr         string  `json:"listen_addr" mapstructure:"listen_addr"`
	DataDir            string  `json:"data_dir" mapstructure:"data_dir"`
	CallTimeoutSeconds float64 `json:"call_timeout_seconds" mapstructure:"call_timeout_seconds"`
}

// CallTimeout returns the per-request tool call timeout
func (c ToolsConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds * float64(time.Second))
}

// AgentConfig holds orchestration settings
type AgentConfig struct {
	MaxIterations int `json:"max_iterations" mapstructure:"max_iterations"`
}

// RAGConfig holds vector index settings
type RAGConfig struct {
	DocumentsDir   string `json:"documents_dir" mapstructure:"documents_dir"`
	EmbeddingModel string `json:"embedding_model" mapstructure:"embedding_model"`
	EmbeddingDim   int    `json:"embedding_dim" mapstructure:"embedding_dim"`
	PGURI          string `json:"pg_uri" mapstructure:"pg_uri"`
	PGDBName       string `json:"pg_db_name" mapstructure:"pg_db_name"`
	PGTableName    string `json:"pg_table_name" mapstructure:"pg_table_name"`
	SQLitePath     string `json:"sqlite_path" mapstructure:"sqlite_path"`
}

// UsePostgres reports whether the Postgres store is configured
func (c RAGConfig) UsePostgres() bool {
	return c.PGURI != ""
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"service_name" mapstructure:"service_name"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() Config {
	return Config{
		LLM: LLMConfig{
			Provider:       "ollama",
			BaseURL:        DefaultOllamaURL,
			Model:          "qwen3:8b",
			TimeoutSeconds: 120,
			Thinking:       false,
			Temperature:    0.3,
			ContextWindow:  38192,
			MaxTokens:      4096,
		},
		Tools: ToolsConfig{
			URL:                "ws://127.0.0.1:5337/ws",
			ListenAddr:         "127.0.0.1:5337",
			DataDir:            ".",
			CallTimeoutSeconds: 30,
		},
		Agent: AgentConfig{
			MaxIterations: 20,
		},
		RAG: RAGConfig{
			DocumentsDir:   "data",
			EmbeddingModel: "nomic-embed-text",
			EmbeddingDim:   768,
			PGDBName:       "metagen",
			PGTableName:    "documents",
			SQLitePath:     "metagen-rag.db",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			Redaction: true,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "metagen",
		},
	}
}

// Validate validates the configuration
func (c Config) Validate() error {
	v := NewValidator()

	if err := v.ValidateProvider(c.LLM.Provider); err != nil {
		return err
	}
	if err := v.ValidateURL(c.LLM.BaseURL, "http", "https"); err != nil {
		return fmt.Errorf("llm base url: %w", err)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm model cannot be empty")
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return fmt.Errorf("llm timeout must be positive")
	}
	if err := v.ValidateTemperature(c.LLM.Temperature); err != nil {
		return err
	}
	if c.LLM.ContextWindow <= 0 {
		return fmt.Errorf("llm context window must be positive")
	}
	if c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		return fmt.Errorf("llm api key is required for provider %s", c.LLM.Provider)
	}

	if err := v.ValidateURL(c.Tools.URL, "ws", "wss"); err != nil {
		return fmt.Errorf("tools url: %w", err)
	}
	if c.Tools.ListenAddr == "" {
		return fmt.Errorf("tools listen address cannot be empty")
	}
	if c.Tools.CallTimeoutSeconds <= 0 {
		return fmt.Errorf("tools call timeout must be positive")
	}

	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("agent max iterations must be at least 1")
	}

	if c.RAG.EmbeddingDim <= 0 {
		return fmt.Errorf("rag embedding dimension must be positive")
	}
	if c.RAG.UsePostgres() {
		if err := v.ValidateIdentifier(c.RAG.PGTableName); err != nil {
			return fmt.Errorf("rag table name: %w", err)
		}
	}

	if err := v.ValidateLogLevel(c.Logging.Level); err != nil {
		return err
	}

	return nil
}

// String returns the config as indented JSON with secrets masked
func (c Config) String() string {
	masked := c
	if masked.LLM.APIKey != "" {
		masked.LLM.APIKey = "****"
	}
	if masked.RAG.PGURI != "" {
		masked.RAG.PGURI = "****"
	}
	data, err := json.MarshalIndent(masked, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", masked)
	}
	return string(data)
}
