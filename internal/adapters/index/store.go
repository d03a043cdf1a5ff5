// Package index implements the persisted flat vector index: an inner-product
// similarity index over L2-normalized embeddings, stored on disk next to a
// JSON metadata sidecar that is positionally aligned with the index rows.
package index

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/lectern-ai/lectern/internal/core/domain"
)

// indexFile is the on-disk layout of the vector index (gob encoded).
type indexFile struct {
	Dim     int
	Vectors [][]float32
}

// sidecarFile is the on-disk layout of the metadata sidecar (JSON).
// Metadata may be empty for indexes built before provenance was recorded.
type sidecarFile struct {
	Chunks   []string                 `json:"chunks"`
	Metadata []domain.PassageMetadata `json:"metadata"`
}

// Store loads a persisted index plus sidecar and answers nearest-neighbor
// queries. Loading happens at most once; after a successful load the store is
// immutable, so concurrent Search calls are safe without locking.
type Store struct {
	indexPath string
	metaPath  string
	logger    *slog.Logger

	once    sync.Once
	loadErr error

	dim     int
	vectors [][]float32
	chunks  []string
	meta    []domain.PassageMetadata
}

// NewStore creates a store for the given file paths. Nothing is read from
// disk until Load or the first Search.
func NewStore(indexPath, metaPath string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		indexPath: indexPath,
		metaPath:  metaPath,
		logger:    logger,
	}
}

// Load reads the index and sidecar from disk. It is idempotent: concurrent
// and repeated calls perform the read once and share the outcome.
func (s *Store) Load() error {
	s.once.Do(s.load)
	return s.loadErr
}

func (s *Store) load() {
	for _, path := range []string{s.indexPath, s.metaPath} {
		if _, err := os.Stat(path); err != nil {
			s.loadErr = &domain.IndexNotFoundError{Path: path}
			return
		}
	}

	f, err := os.Open(s.indexPath)
	if err != nil {
		s.loadErr = fmt.Errorf("open index %s: %w", s.indexPath, err)
		return
	}
	defer f.Close()

	var idx indexFile
	if err := gob.NewDecoder(f).Decode(&idx); err != nil {
		s.loadErr = fmt.Errorf("decode index %s: %w", s.indexPath, err)
		return
	}

	raw, err := os.ReadFile(s.metaPath)
	if err != nil {
		s.loadErr = fmt.Errorf("read sidecar %s: %w", s.metaPath, err)
		return
	}
	var sidecar sidecarFile
	if err := json.Unmarshal(raw, &sidecar); err != nil {
		s.loadErr = fmt.Errorf("decode sidecar %s: %w", s.metaPath, err)
		return
	}

	// Alignment invariant: every index row has a chunk, and the metadata
	// list is either absent or aligned one-to-one. A mismatch means the
	// files were built from different ingestion runs.
	if len(sidecar.Chunks) != len(idx.Vectors) {
		s.loadErr = fmt.Errorf("index corrupt: %d vectors but %d chunks in sidecar", len(idx.Vectors), len(sidecar.Chunks))
		return
	}
	if len(sidecar.Metadata) != 0 && len(sidecar.Metadata) != len(sidecar.Chunks) {
		s.loadErr = fmt.Errorf("index corrupt: %d chunks but %d metadata entries in sidecar", len(sidecar.Chunks), len(sidecar.Metadata))
		return
	}
	for i, v := range idx.Vectors {
		if len(v) != idx.Dim {
			s.loadErr = fmt.Errorf("index corrupt: vector %d has dimension %d, want %d", i, len(v), idx.Dim)
			return
		}
	}

	s.dim = idx.Dim
	s.vectors = idx.Vectors
	s.chunks = sidecar.Chunks
	s.meta = sidecar.Metadata

	s.logger.Info("index loaded",
		"vectors", len(s.vectors),
		"dimension", s.dim,
		"has_metadata", len(s.meta) > 0)
}

// Search returns up to k passages ordered by descending similarity score.
// Internal ids that resolve to the sentinel "no match" value are dropped.
// The store is loaded lazily on first use.
func (s *Store) Search(queryVec []float32, k int) ([]domain.Passage, error) {
	if err := s.Load(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("search k must be positive, got %d", k)
	}
	if len(queryVec) != s.dim {
		return nil, fmt.Errorf("query vector has dimension %d, index expects %d", len(queryVec), s.dim)
	}

	scores := make([]float64, len(s.vectors))
	for i, v := range s.vectors {
		scores[i] = dot(v, queryVec)
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	// Mirror the flat-index result shape: k slots, missing ones marked with
	// the sentinel id, which callers never see as passages.
	ids := make([]int, k)
	for i := range ids {
		ids[i] = noMatchID
	}
	copy(ids, order[:min(k, len(order))])

	hits := make([]domain.Passage, 0, k)
	for _, id := range ids {
		if id == noMatchID {
			continue
		}
		p := domain.Passage{
			Text:  s.chunks[id],
			Score: scores[id],
		}
		if len(s.meta) > 0 {
			p.Metadata = s.meta[id]
		}
		hits = append(hits, p)
	}
	return hits, nil
}

// Count returns the number of indexed vectors, loading the index if needed.
func (s *Store) Count() (int, error) {
	if err := s.Load(); err != nil {
		return 0, err
	}
	return len(s.vectors), nil
}

// noMatchID is the sentinel id for an unfilled result slot.
const noMatchID = -1

func dot(a []float32, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
