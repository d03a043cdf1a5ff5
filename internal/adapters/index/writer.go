package index

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lectern-ai/lectern/internal/core/domain"
)

// Write persists an index and its metadata sidecar to disk. Vectors must be
// L2-normalized and share one dimension; metadata must be empty or aligned
// one-to-one with chunks. Used by lectern-index and by test fixtures.
func Write(indexPath, metaPath string, vectors [][]float32, chunks []string, meta []domain.PassageMetadata) error {
	if len(vectors) == 0 {
		return fmt.Errorf("nothing to index: no vectors")
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("have %d vectors but %d chunks", len(vectors), len(chunks))
	}
	if len(meta) != 0 && len(meta) != len(chunks) {
		return fmt.Errorf("have %d chunks but %d metadata entries", len(chunks), len(meta))
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}

	for _, path := range []string{indexPath, metaPath} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create index dir: %w", err)
		}
	}

	f, err := os.Create(indexPath)
	if err != nil {
		return fmt.Errorf("create index %s: %w", indexPath, err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(indexFile{Dim: dim, Vectors: vectors}); err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}

	raw, err := json.MarshalIndent(sidecarFile{Chunks: chunks, Metadata: meta}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}
	if err := os.WriteFile(metaPath, raw, 0o644); err != nil {
		return fmt.Errorf("write sidecar %s: %w", metaPath, err)
	}
	return nil
}
