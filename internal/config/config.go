package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL           string `yaml:"base_url"`
	APIKeyEnv         string `yaml:"api_key_env"`
	Model             string `yaml:"model"`
	TimeoutSecs       int    `yaml:"timeout_secs"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string                `yaml:"type"`
	Dimension int                   `yaml:"dimension"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// LLMConfig configures the OpenAI-compatible chat model used for answers.
type LLMConfig struct {
	BaseURL           string `yaml:"base_url"`
	APIKeyEnv         string `yaml:"api_key_env"`
	Model             string `yaml:"model"`
	TimeoutSecs       int    `yaml:"timeout_secs"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// ChunkerConfig configures how documents are split into chunks. Sizes are in
// runes. An explicit overlap of 0 disables overlap.
type ChunkerConfig struct {
	Type      string `yaml:"type"`
	ChunkSize int    `yaml:"chunk_size"`
	Overlap   *int   `yaml:"overlap"`
}

// OverlapRunes returns the configured overlap.
func (c ChunkerConfig) OverlapRunes() int {
	if c.Overlap == nil {
		return defaultOverlap
	}
	return *c.Overlap
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type       string          `yaml:"type"`
	Collection string          `yaml:"collection"`
	Qdrant     *QdrantConfig   `yaml:"qdrant,omitempty"`
	SQLite     *SQLiteConfig   `yaml:"sqlite,omitempty"`
	PGVector   *PGVectorConfig `yaml:"pgvector,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// SQLiteConfig points at the database file of the sqlite store.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PGVectorConfig holds the Postgres connection string.
type PGVectorConfig struct {
	DSN string `yaml:"dsn"`
}

// TemporalConfig locates the Temporal frontend and the task queue.
type TemporalConfig struct {
	Address   string `yaml:"address"`
	Namespace string `yaml:"namespace"`
	TaskQueue string `yaml:"task_queue"`
}

// GatewayConfig configures the event API server.
type GatewayConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// FrontendConfig configures the clients that emit events and poll runs.
type FrontendConfig struct {
	APIBase         string `yaml:"api_base"`
	UploadsDir      string `yaml:"uploads_dir"`
	TopK            *int   `yaml:"top_k"`
	PollIntervalMs  int    `yaml:"poll_interval_ms"`
	PollTimeoutSecs int    `yaml:"poll_timeout_secs"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	LLM         LLMConfig         `yaml:"llm"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Temporal    TemporalConfig    `yaml:"temporal"`
	Gateway     GatewayConfig     `yaml:"gateway"`
	Frontend    FrontendConfig    `yaml:"frontend"`
}

// QueryTopK returns the top_k sent with questions. An explicit 0 asks
// without retrieval.
func (c FrontendConfig) QueryTopK() int {
	if c.TopK == nil {
		return defaultTopK
	}
	return *c.TopK
}

// PollInterval returns the frontend poll interval.
func (c FrontendConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// PollTimeout returns the frontend poll deadline.
func (c FrontendConfig) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutSecs) * time.Second
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/rag/config.yaml.
// If neither exists, it writes defaults to ~/.config/rag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnvOverrides(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "rag", "config.yaml"), nil
}

const (
	defaultOverlap = 200
	defaultTopK    = 5
)

func intPtr(v int) *int { return &v }

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "openai"},
		Chunker:     ChunkerConfig{Type: "sentence"},
		VectorStore: VectorStoreConfig{Type: "qdrant"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "openai"
	}
	if cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 3072
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-large"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}

	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 120
	}

	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "sentence"
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 1000
	}
	if cfg.Chunker.Overlap == nil {
		cfg.Chunker.Overlap = intPtr(defaultOverlap)
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "qdrant"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "docs"
	}
	switch cfg.VectorStore.Type {
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 30
		}
	case "sqlite":
		if cfg.VectorStore.SQLite == nil {
			cfg.VectorStore.SQLite = &SQLiteConfig{}
		}
		if cfg.VectorStore.SQLite.Path == "" {
			cfg.VectorStore.SQLite.Path = "vectors.db"
		}
	case "pgvector":
		if cfg.VectorStore.PGVector == nil {
			cfg.VectorStore.PGVector = &PGVectorConfig{}
		}
	}

	if cfg.Temporal.Address == "" {
		cfg.Temporal.Address = "127.0.0.1:7233"
	}
	if cfg.Temporal.Namespace == "" {
		cfg.Temporal.Namespace = "default"
	}
	if cfg.Temporal.TaskQueue == "" {
		cfg.Temporal.TaskQueue = "ragflow"
	}

	if cfg.Gateway.ListenAddr == "" {
		cfg.Gateway.ListenAddr = ":8288"
	}

	if cfg.Frontend.APIBase == "" {
		cfg.Frontend.APIBase = "http://127.0.0.1:8288/v1"
	}
	if cfg.Frontend.UploadsDir == "" {
		cfg.Frontend.UploadsDir = "uploads"
	}
	if cfg.Frontend.TopK == nil {
		cfg.Frontend.TopK = intPtr(defaultTopK)
	}
	if cfg.Frontend.PollIntervalMs == 0 {
		cfg.Frontend.PollIntervalMs = 500
	}
	if cfg.Frontend.PollTimeoutSecs == 0 {
		cfg.Frontend.PollTimeoutSecs = 120
	}
}

// applyEnvOverrides lets deployments point at their services without editing the file.
func applyEnvOverrides(cfg *AppConfig) {
	if cfg.VectorStore.Qdrant != nil {
		cfg.VectorStore.Qdrant.URL = getEnv("QDRANT_URL", cfg.VectorStore.Qdrant.URL)
		cfg.VectorStore.Qdrant.APIKey = getEnv("QDRANT_API_KEY", cfg.VectorStore.Qdrant.APIKey)
	}
	if cfg.VectorStore.PGVector != nil {
		cfg.VectorStore.PGVector.DSN = getEnv("PGVECTOR_DSN", cfg.VectorStore.PGVector.DSN)
	}
	cfg.Temporal.Address = getEnv("TEMPORAL_ADDRESS", cfg.Temporal.Address)
	cfg.Temporal.Namespace = getEnv("TEMPORAL_NAMESPACE", cfg.Temporal.Namespace)
	cfg.Temporal.TaskQueue = getEnv("TEMPORAL_TASK_QUEUE", cfg.Temporal.TaskQueue)
	cfg.Gateway.ListenAddr = getEnv("RAG_LISTEN_ADDR", cfg.Gateway.ListenAddr)
	cfg.Frontend.APIBase = getEnv("RAG_API_BASE", cfg.Frontend.APIBase)
	cfg.Frontend.UploadsDir = getEnv("RAG_UPLOADS_DIR", cfg.Frontend.UploadsDir)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
