package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// envBindings maps config keys to the environment variable names operators
// already use for them. Keys not listed here are still overridable through
// the METAGEN_ prefix (for example METAGEN_LOGGING_LEVEL).
var envBindings = map[string]string{
	"llm.provider":               "METAGEN_LLM_PROVIDER",
	"llm.base_url":               "OLLAMA_BASE_URL",
	"llm.model":                  "OLLAMA_MODEL",
	"llm.timeout_seconds":        "OLLAMA_TIMEOUT",
	"llm.thinking":               "OLLAMA_THINKING",
	"llm.temperature":            "OLLAMA_TEMPERATURE",
	"llm.context_window":         "OLLAMA_CONTEXT_WINDOW",
	"llm.api_key":                "METAGEN_LLM_API_KEY",
	"llm.max_tokens":             "METAGEN_LLM_MAX_TOKENS",
	"tools.url":                  "MCP_CLIENT_URL",
	"tools.listen_addr":          "METAGEN_TOOLS_LISTEN_ADDR",
	"tools.data_dir":             "METAGEN_TOOLS_DATA_DIR",
	"tools.call_timeout_seconds": "METAGEN_TOOLS_CALL_TIMEOUT_SECONDS",
	"agent.max_iterations":       "AGENT_MAX_ITERATIONS",
	"rag.documents_dir":          "METAGEN_RAG_DOCUMENTS_DIR",
	"rag.embedding_model":        "OLLAMA_EMBEDDING_MODEL",
	"rag.embedding_dim":          "OLLAMA_EMBEDDING_MODEL_DIM",
	"rag.pg_uri":                 "PG_URI",
	"rag.pg_db_name":             "PG_DB_NAME",
	"rag.pg_table_name":          "PG_TABLE_NAME",
	"rag.sqlite_path":            "METAGEN_RAG_SQLITE_PATH",
	"logging.level":              "METAGEN_LOG_LEVEL",
	"logging.file":               "METAGEN_LOG_FILE",
	"logging.pretty":             "METAGEN_LOG_PRETTY",
	"logging.redaction":          "METAGEN_LOG_REDACTION",
	"tracing.enabled":            "METAGEN_TRACING_ENABLED",
	"tracing.service_name":       "METAGEN_TRACING_SERVICE_NAME",
}

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load builds the configuration from defaults, the optional config file and
// the environment, in increasing order of precedence.
func (l *Loader) Load() (Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix("METAGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	configPath := l.GetConfigPath()
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if ext := strings.TrimPrefix(filepath.Ext(configPath), "."); ext != "" {
				v.SetConfigType(ext)
			}
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".metagen", "metagen.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("llm.provider", cfg.LLM.Provider)
	v.SetDefault("llm.base_url", cfg.LLM.BaseURL)
	v.SetDefault("llm.model", cfg.LLM.Model)
	v.SetDefault("llm.timeout_seconds", cfg.LLM.TimeoutSeconds)
	v.SetDefault("llm.thinking", cfg.LLM.Thinking)
	v.SetDefault("llm.temperature", cfg.LLM.Temperature)
	v.SetDefault("llm.context_window", cfg.LLM.ContextWindow)
	v.SetDefault("llm.api_key", cfg.LLM.APIKey)
	v.SetDefault("llm.max_tokens", cfg.LLM.MaxTokens)

	v.SetDefault("tools.url", cfg.Tools.URL)
	v.SetDefault("tools.listen_addr", cfg.Tools.ListenAddr)
	v.SetDefault("tools.data_dir", cfg.Tools.DataDir)
	v.SetDefault("tools.call_timeout_seconds", cfg.Tools.CallTimeoutSeconds)

	v.SetDefault("agent.max_iterations", cfg.Agent.MaxIterations)

	v.SetDefault("rag.documents_dir", cfg.RAG.DocumentsDir)
	v.SetDefault("rag.embedding_model", cfg.RAG.EmbeddingModel)
	v.SetDefault("rag.embedding_dim", cfg.RAG.EmbeddingDim)
	v.SetDefault("rag.pg_uri", cfg.RAG.PGURI)
	v.SetDefault("rag.pg_db_name", cfg.RAG.PGDBName)
	v.SetDefault("rag.pg_table_name", cfg.RAG.PGTableName)
	v.SetDefault("rag.sqlite_path", cfg.RAG.SQLitePath)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.pretty", cfg.Logging.Pretty)
	v.SetDefault("logging.redaction", cfg.Logging.Redaction)

	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("tracing.service_name", cfg.Tracing.ServiceName)
}
