package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Embedder.Type)
	assert.Equal(t, 3072, cfg.Embedder.Dimension)
	require.NotNil(t, cfg.Embedder.OpenAI)
	assert.Equal(t, "text-embedding-3-large", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, 1000, cfg.Chunker.ChunkSize)
	assert.Equal(t, 200, cfg.Chunker.OverlapRunes())
	assert.Equal(t, "qdrant", cfg.VectorStore.Type)
	assert.Equal(t, "docs", cfg.VectorStore.Collection)
	assert.Equal(t, 5, cfg.Frontend.QueryTopK())
	assert.Equal(t, 500*time.Millisecond, cfg.Frontend.PollInterval())
	assert.Equal(t, 120*time.Second, cfg.Frontend.PollTimeout())
}

func TestLoad_FileValuesAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
embedder:
  type: hashing
  dimension: 256
vector_store:
  type: sqlite
  collection: papers
frontend:
  top_k: 3
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hashing", cfg.Embedder.Type)
	assert.Equal(t, 256, cfg.Embedder.Dimension)
	assert.Nil(t, cfg.Embedder.OpenAI)
	assert.Equal(t, "papers", cfg.VectorStore.Collection)
	require.NotNil(t, cfg.VectorStore.SQLite)
	assert.Equal(t, "vectors.db", cfg.VectorStore.SQLite.Path)
	assert.Equal(t, 3, cfg.Frontend.QueryTopK())
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "ragflow", cfg.Temporal.TaskQueue)
}

func TestLoad_ExplicitZeroesAreKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chunker:
  overlap: 0
frontend:
  top_k: 0
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Chunker.OverlapRunes())
	assert.Equal(t, 0, cfg.Frontend.QueryTopK())
	assert.Equal(t, 1000, cfg.Chunker.ChunkSize)

	var zero FrontendConfig
	assert.Equal(t, 5, zero.QueryTopK())
	assert.Equal(t, 200, ChunkerConfig{}.OverlapRunes())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("QDRANT_URL", "http://qdrant:6333")
	t.Setenv("TEMPORAL_ADDRESS", "temporal:7233")
	t.Setenv("RAG_API_BASE", "http://gateway:8288/v1")
	t.Setenv("RAG_UPLOADS_DIR", "/data/uploads")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://qdrant:6333", cfg.VectorStore.Qdrant.URL)
	assert.Equal(t, "temporal:7233", cfg.Temporal.Address)
	assert.Equal(t, "http://gateway:8288/v1", cfg.Frontend.APIBase)
	assert.Equal(t, "/data/uploads", cfg.Frontend.UploadsDir)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedder: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.VectorStore.Collection = "saved"
	cfg.Frontend.TopK = intPtr(0)
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "saved", loaded.VectorStore.Collection)
	assert.Equal(t, 0, loaded.Frontend.QueryTopK())
}
