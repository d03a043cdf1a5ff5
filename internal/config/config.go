// Package config loads the kernel configuration from an optional YAML file
// with environment variable overrides (LECTERN_*).
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP kernel server.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ProviderConfig selects and configures the LLM/embedding backend.
type ProviderConfig struct {
	Type        string `yaml:"type"` // "ollama" or "openai"
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	EmbedModel  string `yaml:"embed_model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// IndexConfig locates the persisted index and fixes the encoding convention.
// QueryPrefix and PassagePrefix are the single configuration point for the
// asymmetric E5-style encoding: lectern-index applies PassagePrefix at build
// time and the retriever applies QueryPrefix at query time, so the convention
// cannot drift between the two.
type IndexConfig struct {
	Dir           string `yaml:"dir"`
	IndexFile     string `yaml:"index_file"`
	MetaFile      string `yaml:"meta_file"`
	QueryPrefix   string `yaml:"query_prefix"`
	PassagePrefix string `yaml:"passage_prefix"`
}

// IndexPath returns the full path of the vector index file.
func (c IndexConfig) IndexPath() string {
	return filepath.Join(c.Dir, c.IndexFile)
}

// MetaPath returns the full path of the metadata sidecar.
func (c IndexConfig) MetaPath() string {
	return filepath.Join(c.Dir, c.MetaFile)
}

// AgentConfig bounds the orchestration loop.
type AgentConfig struct {
	MaxToolCalls int `yaml:"max_tool_calls"`
	DefaultTopK  int `yaml:"default_top_k"`
}

// TraceConfig configures run trace persistence.
type TraceConfig struct {
	DBPath string `yaml:"db_path"`
}

// Config is the root kernel configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Provider ProviderConfig `yaml:"provider"`
	Index    IndexConfig    `yaml:"index"`
	Agent    AgentConfig    `yaml:"agent"`
	Trace    TraceConfig    `yaml:"trace"`
}

// Load reads the config from path. A missing file yields defaults; env
// overrides are applied either way.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8001,
			AllowedOrigins: []string{"*"},
		},
		Provider: ProviderConfig{
			Type:        "ollama",
			APIKeyEnv:   "OPENAI_API_KEY",
			TimeoutSecs: 120,
		},
		Index: IndexConfig{
			Dir:           filepath.Join("data", "indexes"),
			IndexFile:     "index.gob",
			MetaFile:      "store.json",
			QueryPrefix:   "query: ",
			PassagePrefix: "passage: ",
		},
		Agent: AgentConfig{
			MaxToolCalls: 2,
			DefaultTopK:  4,
		},
		Trace: TraceConfig{
			DBPath: "lectern.db",
		},
	}
}

func applyDefaults(cfg *Config) {
	def := defaultConfig()
	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = def.Server.Host
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = def.Server.AllowedOrigins
	}
	if cfg.Provider.Type == "" {
		cfg.Provider.Type = def.Provider.Type
	}
	if cfg.Provider.APIKeyEnv == "" {
		cfg.Provider.APIKeyEnv = def.Provider.APIKeyEnv
	}
	if cfg.Provider.TimeoutSecs == 0 {
		cfg.Provider.TimeoutSecs = def.Provider.TimeoutSecs
	}
	if cfg.Index.Dir == "" {
		cfg.Index.Dir = def.Index.Dir
	}
	if cfg.Index.IndexFile == "" {
		cfg.Index.IndexFile = def.Index.IndexFile
	}
	if cfg.Index.MetaFile == "" {
		cfg.Index.MetaFile = def.Index.MetaFile
	}
	if cfg.Index.QueryPrefix == "" {
		cfg.Index.QueryPrefix = def.Index.QueryPrefix
	}
	if cfg.Index.PassagePrefix == "" {
		cfg.Index.PassagePrefix = def.Index.PassagePrefix
	}
	if cfg.Agent.MaxToolCalls == 0 {
		cfg.Agent.MaxToolCalls = def.Agent.MaxToolCalls
	}
	if cfg.Agent.DefaultTopK == 0 {
		cfg.Agent.DefaultTopK = def.Agent.DefaultTopK
	}
	if cfg.Trace.DBPath == "" {
		cfg.Trace.DBPath = def.Trace.DBPath
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LECTERN_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LECTERN_PROVIDER"); v != "" {
		cfg.Provider.Type = v
	}
	if v := os.Getenv("LECTERN_PROVIDER_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("LECTERN_MODEL"); v != "" {
		cfg.Provider.Model = v
	}
	if v := os.Getenv("LECTERN_EMBED_MODEL"); v != "" {
		cfg.Provider.EmbedModel = v
	}
	if v := os.Getenv("LECTERN_INDEX_DIR"); v != "" {
		cfg.Index.Dir = v
	}
	if v := os.Getenv("LECTERN_TRACE_DB"); v != "" {
		cfg.Trace.DBPath = v
	}
}
