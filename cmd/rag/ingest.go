package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"ragflow/internal/frontend"
	"ragflow/internal/workflow"
)

var ingestWait bool

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Upload documents and trigger their ingestion",
	Long: `Copies each file into the uploads directory and emits a rag/ingest_pdf
event for it. With --wait the command blocks until every run has finished.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVarP(&ingestWait, "wait", "w", false, "wait for ingestion to finish")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	fe := newFrontend(cfg)

	for _, path := range expandPaths(args) {
		saved, err := uploadFile(fe, path)
		if err != nil {
			return err
		}
		id, err := fe.IngestFile(ctx, saved)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: queued (event %s)\n", filepath.Base(saved), id)
		if !ingestWait {
			continue
		}
		out, err := fe.WaitForRunOutput(ctx, id)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		var res workflow.UpsertResult
		if err := json.Unmarshal(out, &res); err != nil {
			return fmt.Errorf("decode ingest result: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ingested %d chunks\n", filepath.Base(saved), res.Ingested)
	}
	return nil
}

func uploadFile(fe *frontend.Client, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return fe.SaveUpload(filepath.Base(path), f)
}

// expandPaths resolves shell-style globs; arguments that match nothing are kept
// so the open error names them.
func expandPaths(args []string) []string {
	var paths []string
	for _, p := range args {
		matches, _ := filepath.Glob(p)
		if matches == nil {
			matches = []string{p}
		}
		paths = append(paths, matches...)
	}
	return paths
}
