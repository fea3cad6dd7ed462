package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"

	"ragflow/internal/chunker"
	"ragflow/internal/config"
	"ragflow/internal/domain"
	"ragflow/internal/embedding/hashing"
	embopenai "ragflow/internal/embedding/openai"
	"ragflow/internal/frontend"
	llmopenai "ragflow/internal/llm/openai"
	"ragflow/internal/vectorstore"
	"ragflow/internal/vectorstore/memory"
	"ragflow/internal/vectorstore/pgvector"
	"ragflow/internal/vectorstore/qdrant"
	"ragflow/internal/vectorstore/sqlite"
)

func newEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "hashing":
		return hashing.NewEmbedder(cfg.Embedder.Dimension), nil
	case "openai", "":
		if cfg.Embedder.OpenAI == nil {
			return nil, errors.New("openai embedder config missing")
		}
		return embopenai.NewClient(embopenai.Config{
			BaseURL:           cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv:         cfg.Embedder.OpenAI.APIKeyEnv,
			Model:             cfg.Embedder.OpenAI.Model,
			Dimension:         cfg.Embedder.Dimension,
			Timeout:           time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
			RequestsPerMinute: cfg.Embedder.OpenAI.RequestsPerMinute,
		})
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

func newChatModel(cfg *config.AppConfig) (domain.ChatModel, error) {
	return llmopenai.NewClient(llmopenai.Config{
		BaseURL:           cfg.LLM.BaseURL,
		APIKeyEnv:         cfg.LLM.APIKeyEnv,
		Model:             cfg.LLM.Model,
		Timeout:           time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
	})
}

func newChunker(cfg *config.AppConfig) (domain.Chunker, error) {
	switch cfg.Chunker.Type {
	case "sentence", "":
		return chunker.NewSentenceChunker(cfg.Chunker.ChunkSize, cfg.Chunker.OverlapRunes()), nil
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Chunker.Type)
	}
}

func newBackend(ctx context.Context, cfg *config.AppConfig) (vectorstore.Backend, error) {
	vs := cfg.VectorStore
	switch vs.Type {
	case "memory":
		return memory.NewStorage(), nil
	case "qdrant", "":
		if vs.Qdrant == nil {
			return nil, errors.New("qdrant config missing")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:     vs.Qdrant.URL,
			APIKey:  vs.Qdrant.APIKey,
			Timeout: time.Duration(vs.Qdrant.TimeoutSecs) * time.Second,
		}), nil
	case "sqlite":
		if vs.SQLite == nil {
			return nil, errors.New("sqlite config missing")
		}
		return sqlite.Open(ctx, vs.SQLite.Path)
	case "pgvector":
		if vs.PGVector == nil || vs.PGVector.DSN == "" {
			return nil, errors.New("pgvector dsn missing")
		}
		return pgvector.Open(ctx, vs.PGVector.DSN)
	default:
		return nil, fmt.Errorf("unknown vector store: %s", vs.Type)
	}
}

func newStore(ctx context.Context, cfg *config.AppConfig) (*vectorstore.Store, error) {
	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return vectorstore.NewStore(backend, cfg.VectorStore.Collection, cfg.Embedder.Dimension), nil
}

func dialTemporal(cfg *config.AppConfig) (client.Client, error) {
	logger.Info("connecting to temporal", "address", cfg.Temporal.Address, "namespace", cfg.Temporal.Namespace)
	return client.Dial(client.Options{
		HostPort:  cfg.Temporal.Address,
		Namespace: cfg.Temporal.Namespace,
		Logger:    tlog.NewStructuredLogger(logger),
	})
}

func newFrontend(cfg *config.AppConfig) *frontend.Client {
	return frontend.NewClient(frontend.Config{
		BaseURL:      cfg.Frontend.APIBase,
		UploadsDir:   cfg.Frontend.UploadsDir,
		PollInterval: cfg.Frontend.PollInterval(),
		PollTimeout:  cfg.Frontend.PollTimeout(),
	}, logger)
}
