package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/worker"

	"ragflow/internal/loader"
	"ragflow/internal/workflow"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Temporal worker that executes ingest and query workflows",
	Args:  cobra.NoArgs,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	emb, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	chat, err := newChatModel(cfg)
	if err != nil {
		return err
	}
	ch, err := newChunker(cfg)
	if err != nil {
		return err
	}
	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	c, err := dialTemporal(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	workflow.Register(w, workflow.NewActivities(loader.New(), ch, emb, store, chat))

	logger.Info("worker started",
		"queue", cfg.Temporal.TaskQueue,
		"embedder", emb.Name(),
		"model", chat.ModelName(),
		"store", cfg.VectorStore.Type,
		"collection", store.Collection())
	return w.Run(worker.InterruptCh())
}
