// Command lectern-index builds the vector index from a JSON chunk file
// produced by the ingestion pipeline. Each chunk is embedded with the
// passage prefix and written together with its metadata sidecar.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/lectern-ai/lectern/internal/adapters/index"
	"github.com/lectern-ai/lectern/internal/adapters/providers"
	"github.com/lectern-ai/lectern/internal/config"
	"github.com/lectern-ai/lectern/internal/core/domain"
	"github.com/lectern-ai/lectern/internal/core/ports"
)

const embedBatchSize = 32

type chunkRecord struct {
	Text       string `json:"text"`
	PageNumber int    `json:"page_number"`
	BookName   string `json:"book_name"`
	Filename   string `json:"filename"`
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	chunksPath := flag.String("chunks", "", "path to the chunk JSON file (required)")
	cfgPath := flag.String("config", "lectern.yaml", "path to the config file")
	flag.Parse()

	if *chunksPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(context.Background(), logger, *chunksPath, *cfgPath); err != nil {
		logger.Error("index build failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, chunksPath, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	_, embedder, err := providers.Build(cfg.Provider)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}

	records, err := readChunks(chunksPath)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("chunk file %s contains no chunks", chunksPath)
	}
	logger.Info("embedding chunks", "count", len(records), "batch_size", embedBatchSize)

	chunks := make([]string, len(records))
	meta := make([]domain.PassageMetadata, len(records))
	for i, rec := range records {
		chunks[i] = rec.Text
		meta[i] = domain.PassageMetadata{
			PageNumber: rec.PageNumber,
			BookName:   rec.BookName,
			Filename:   rec.Filename,
		}
	}

	vectors, err := embedAll(ctx, embedder, chunks, cfg.Index.PassagePrefix)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	if err := index.Write(cfg.Index.IndexPath(), cfg.Index.MetaPath(), vectors, chunks, meta); err != nil {
		return fmt.Errorf("write index: %w", err)
	}

	logger.Info("index written",
		"index", cfg.Index.IndexPath(),
		"meta", cfg.Index.MetaPath(),
		"vectors", len(vectors),
		"dim", len(vectors[0]),
	)
	return nil
}

func readChunks(path string) ([]chunkRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chunk file: %w", err)
	}
	var records []chunkRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse chunk file %s: %w", path, err)
	}
	return records, nil
}

// embedAll embeds the chunks in parallel batches while keeping the output
// aligned with the input order.
func embedAll(ctx context.Context, embedder ports.Embedder, chunks []string, passagePrefix string) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		g.Go(func() error {
			batch := make([]string, end-start)
			for i, text := range chunks[start:end] {
				batch[i] = passagePrefix + text
			}
			embedded, err := embedder.Embed(gCtx, batch)
			if err != nil {
				return fmt.Errorf("batch %d-%d: %w", start, end, err)
			}
			copy(vectors[start:], embedded)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
