// Package vectorindex implements the content-addressed POI store from
// spec.md §4.2: idempotent insert keyed by poi_id, cosine similarity search
// by text or vector, with lazy collection initialization.
package vectorindex

import (
	"context"

	"github.com/FACorreiaa/go-poi-au-suggestions/internal/travelmodel"
)

// Candidate is a similarity-search hit: the reconstructed record plus its
// relevance score (1 - cosine distance, clamped to [0,1]).
type Candidate struct {
	Record    travelmodel.PoiRecord
	Relevance float64
}

// Embedder produces a vector embedding for a text string. The vector index
// depends on this narrow interface rather than any particular embedding
// model, per spec.md §1's external-collaborator boundary.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the contract used by the POI Orchestrator (spec.md §4.2).
type VectorIndex interface {
	// Add inserts record, a no-op if its PoiID already exists.
	Add(ctx context.Context, record travelmodel.PoiRecord) error
	// AddBatch inserts records idempotently: in-batch duplicates keep the
	// first occurrence, and IDs already present in the index are filtered
	// before insertion. Returns the count actually inserted.
	AddBatch(ctx context.Context, records []travelmodel.PoiRecord) (int, error)
	// SearchByText embeds query and returns up to k hits in descending
	// similarity, optionally restricted to cityFilter.
	SearchByText(ctx context.Context, query string, k int, cityFilter string) ([]Candidate, error)
	// SearchByVector searches directly on a precomputed embedding.
	SearchByVector(ctx context.Context, vec []float32, k int, cityFilter string) ([]Candidate, error)
	// Size returns the number of records currently stored.
	Size(ctx context.Context) (int, error)
}

// VectorIndexError wraps storage failures per spec.md §7: logged, reads
// degrade to empty, writes are best-effort.
type VectorIndexError struct {
	Op  string
	Err error
}

func (e *VectorIndexError) Error() string { return "vectorindex: " + e.Op + ": " + e.Err.Error() }
func (e *VectorIndexError) Unwrap() error { return e.Err }

// clampRelevance enforces the [0,1] bound from spec.md §4.2.
func clampRelevance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
