package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the opsdesk service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	LLM        LLMConfig        `yaml:"llm"`
	Validation ValidationConfig `yaml:"validation"`
	Documents  DocumentsConfig  `yaml:"documents"`
	Index      IndexConfig      `yaml:"index"`
	Tools      ToolsConfig      `yaml:"tools"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Port    int    `yaml:"port"`
	MCPPort int    `yaml:"mcp_port"`
	Token   string `yaml:"token"`
}

type LLMConfig struct {
	BaseURL    string        `yaml:"base_url"`
	ChatModel  string        `yaml:"chat_model"`
	EmbedModel string        `yaml:"embed_model"`
	Timeout    time.Duration `yaml:"timeout"`
}

type ValidationConfig struct {
	MinQueryLength int    `yaml:"min_query_length"`
	MaxQueryLength int    `yaml:"max_query_length"`
	AllowedChars   string `yaml:"allowed_chars"`
}

type DocumentsConfig struct {
	ITPath      string `yaml:"it_path"`
	FinancePath string `yaml:"finance_path"`
	Watch       bool   `yaml:"watch"`
}

type IndexConfig struct {
	CacheDir       string        `yaml:"cache_dir"`
	ChunkSize      int           `yaml:"chunk_size"`
	ChunkOverlap   int           `yaml:"chunk_overlap"`
	MinChunkChars  int           `yaml:"min_chunk_chars"`
	EmbedBatchSize int           `yaml:"embed_batch_size"`
	EmbedBatchGap  time.Duration `yaml:"embed_batch_gap"`
	EmbedTimeout   time.Duration `yaml:"embed_timeout"`
	TopK           int           `yaml:"top_k"`
	ContextBudget  int           `yaml:"context_budget"`
}

type ToolsConfig struct {
	WebSearch WebSearchConfig `yaml:"web_search"`
}

type WebSearchConfig struct {
	Enabled    bool          `yaml:"enabled"`
	BaseURL    string        `yaml:"base_url"`
	MaxResults int           `yaml:"max_results"`
	Timeout    time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// allowedChars is the default character allow-list applied during query
// sanitization: alphanumerics plus common punctuation.
const allowedChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789" +
	" .!?@#$%^&*()_+-=[]{}|;':\",./<>?`~"

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    4600,
			MCPPort: 4601,
		},
		LLM: LLMConfig{
			BaseURL:    "http://localhost:11434",
			ChatModel:  "mistral-nemo",
			EmbedModel: "nomic-embed-text",
			Timeout:    60 * time.Second,
		},
		Validation: ValidationConfig{
			MinQueryLength: 5,
			MaxQueryLength: 1000,
			AllowedChars:   allowedChars,
		},
		Documents: DocumentsConfig{
			ITPath:      "docs/it",
			FinancePath: "docs/finance",
			Watch:       false,
		},
		Index: IndexConfig{
			CacheDir:       "cache",
			ChunkSize:      1000,
			ChunkOverlap:   200,
			MinChunkChars:  50,
			EmbedBatchSize: 10,
			EmbedBatchGap:  100 * time.Millisecond,
			EmbedTimeout:   30 * time.Second,
			TopK:           5,
			ContextBudget:  4000,
		},
		Tools: ToolsConfig{
			WebSearch: WebSearchConfig{
				Enabled:    true,
				BaseURL:    "https://duckduckgo.com",
				MaxResults: 5,
				Timeout:    10 * time.Second,
			},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration in three layers: built-in defaults, an optional
// YAML file, then OPSDESK_* environment variable overrides. A missing config
// file is not an error; defaults apply.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// fall through to env overrides
		case err != nil:
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultPath returns ./opsdesk.yaml if present, otherwise the user config
// location under $XDG_CONFIG_HOME (or ~/.config).
func DefaultPath() string {
	if _, err := os.Stat("opsdesk.yaml"); err == nil {
		return "opsdesk.yaml"
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "opsdesk.yaml"
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "opsdesk", "config.yaml")
}

func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = strings.EqualFold(v, "true") || v == "1"
		}
	}

	setInt("OPSDESK_PORT", &cfg.Server.Port)
	setInt("OPSDESK_MCP_PORT", &cfg.Server.MCPPort)
	setString("OPSDESK_TOKEN", &cfg.Server.Token)
	setString("OPSDESK_LLM_BASE_URL", &cfg.LLM.BaseURL)
	setString("OPSDESK_CHAT_MODEL", &cfg.LLM.ChatModel)
	setString("OPSDESK_EMBED_MODEL", &cfg.LLM.EmbedModel)
	setString("OPSDESK_IT_DOCS", &cfg.Documents.ITPath)
	setString("OPSDESK_FINANCE_DOCS", &cfg.Documents.FinancePath)
	setBool("OPSDESK_WATCH_DOCS", &cfg.Documents.Watch)
	setString("OPSDESK_CACHE_DIR", &cfg.Index.CacheDir)
	setBool("OPSDESK_WEB_SEARCH", &cfg.Tools.WebSearch.Enabled)
	setString("OPSDESK_LOG_LEVEL", &cfg.Log.Level)
}

func validate(cfg Config) error {
	if cfg.Validation.MinQueryLength < 1 {
		return fmt.Errorf("validation.min_query_length must be positive, got %d", cfg.Validation.MinQueryLength)
	}
	if cfg.Validation.MaxQueryLength <= cfg.Validation.MinQueryLength {
		return fmt.Errorf("validation.max_query_length (%d) must exceed min_query_length (%d)",
			cfg.Validation.MaxQueryLength, cfg.Validation.MinQueryLength)
	}
	if cfg.Index.ChunkSize <= 0 {
		return fmt.Errorf("index.chunk_size must be positive, got %d", cfg.Index.ChunkSize)
	}
	if cfg.Index.ChunkOverlap < 0 || cfg.Index.ChunkOverlap >= cfg.Index.ChunkSize {
		return fmt.Errorf("index.chunk_overlap (%d) must be non-negative and smaller than chunk_size (%d)",
			cfg.Index.ChunkOverlap, cfg.Index.ChunkSize)
	}
	if cfg.Index.EmbedBatchSize <= 0 {
		return fmt.Errorf("index.embed_batch_size must be positive, got %d", cfg.Index.EmbedBatchSize)
	}
	if cfg.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required")
	}
	return nil
}
