// Package index provides the similarity index over memory embeddings:
// owner-scoped top-k nearest-neighbor queries by cosine similarity,
// backed by chromem-go, an embedded pure-Go vector database.
//
// The index also carries every entry's owner and creation time, so a
// query with no vector (degraded mode, or a store built without an
// embedder) transparently falls back to recency ordering with the same
// scoping and the same best-match-first contract.
package index

import (
	"context"
	"fmt"
	"sort"
	"time"

	chromem "github.com/philippgille/chromem-go"
)

// OwnerAll is the sentinel owner id whose entries are eligible in
// every owner-scoped query.
const OwnerAll = "all"

// Entry is one indexed memory.
type Entry struct {
	ID        string
	OwnerID   string
	Text      string
	CreatedAt time.Time

	// Vector is the record's embedding. Entries with a missing or
	// wrong-dimension vector are kept but participate only in the
	// recency fallback path.
	Vector []float32
}

// Hit is one query result, best match first.
type Hit struct {
	ID         string
	Similarity float64
}

// Index maps record ids to embeddings and answers scoped top-k
// queries. Dimensionality is fixed at construction.
type Index struct {
	db          *chromem.DB
	dims        int
	collections map[string]*chromem.Collection
	entries     map[string]Entry
}

// New creates an index for vectors of the given dimensionality.
// With dims 0 the index never stores vectors and every query uses the
// recency fallback.
func New(dims int) *Index {
	return &Index{
		db:          chromem.NewDB(),
		dims:        dims,
		collections: make(map[string]*chromem.Collection),
		entries:     make(map[string]Entry),
	}
}

// Dimensions returns the fixed vector size, 0 for a fallback-only index.
func (ix *Index) Dimensions() int { return ix.dims }

// Len returns the number of indexed entries, including fallback-only ones.
func (ix *Index) Len() int { return len(ix.entries) }

// collection returns the chromem collection for an owner, creating it
// on first use. One collection per owner keeps scoped queries cheap.
func (ix *Index) collection(ownerID string) (*chromem.Collection, error) {
	if col, ok := ix.collections[ownerID]; ok {
		return col, nil
	}
	col, err := ix.db.CreateCollection("owner_"+ownerID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection for %q: %w", ownerID, err)
	}
	ix.collections[ownerID] = col
	return col, nil
}

// Insert adds an entry. Entries whose vector does not match the index
// dimensionality are accepted but remain fallback-only.
func (ix *Index) Insert(ctx context.Context, e Entry) error {
	ix.entries[e.ID] = e

	if ix.dims == 0 || len(e.Vector) != ix.dims {
		return nil
	}
	col, err := ix.collection(e.OwnerID)
	if err != nil {
		return err
	}
	doc := chromem.Document{
		ID:        e.ID,
		Content:   e.Text,
		Embedding: e.Vector,
		Metadata: map[string]string{
			"owner_id":   e.OwnerID,
			"created_at": e.CreatedAt.Format(time.RFC3339Nano),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("index %s: %w", e.ID, err)
	}
	return nil
}

// Remove deletes an entry. Removing an unknown id is a no-op.
func (ix *Index) Remove(ctx context.Context, id string) error {
	e, ok := ix.entries[id]
	if !ok {
		return nil
	}
	delete(ix.entries, id)

	if ix.dims == 0 || len(e.Vector) != ix.dims {
		return nil
	}
	col, ok := ix.collections[e.OwnerID]
	if !ok {
		return nil
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("unindex %s: %w", id, err)
	}
	return nil
}

// Query returns up to k hits for the vector, restricted to ownerID and
// the shared OwnerAll entries. An empty ownerID means no scoping. A nil
// vector selects the fallback path: hits ordered by creation time
// descending, same scoping, similarity reported as 0.
//
// In the similarity path, ties are broken by most recent creation time.
func (ix *Index) Query(ctx context.Context, vector []float32, ownerID string, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	if ix.dims == 0 || len(vector) == 0 {
		return ix.recent(ownerID, k), nil
	}
	if len(vector) != ix.dims {
		return nil, fmt.Errorf("query vector has %d dimensions, index holds %d", len(vector), ix.dims)
	}

	var results []chromem.Result
	for _, owner := range ix.scope(ownerID) {
		col, ok := ix.collections[owner]
		if !ok {
			continue
		}
		n := k
		if c := col.Count(); c < n {
			n = c
		}
		if n == 0 {
			continue
		}
		res, err := col.QueryEmbedding(ctx, vector, n, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("query collection for %q: %w", owner, err)
		}
		results = append(results, res...)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return ix.entries[results[i].ID].CreatedAt.After(ix.entries[results[j].ID].CreatedAt)
	})
	if len(results) > k {
		results = results[:k]
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{ID: r.ID, Similarity: float64(r.Similarity)}
	}
	return hits, nil
}

// scope lists the owner collections a query may touch.
func (ix *Index) scope(ownerID string) []string {
	switch ownerID {
	case "":
		owners := make([]string, 0, len(ix.collections))
		for owner := range ix.collections {
			owners = append(owners, owner)
		}
		sort.Strings(owners)
		return owners
	case OwnerAll:
		return []string{OwnerAll}
	default:
		return []string{ownerID, OwnerAll}
	}
}

// eligible reports whether an entry owned by recOwner is visible to a
// query scoped to ownerID.
func eligible(ownerID, recOwner string) bool {
	return ownerID == "" || recOwner == OwnerAll || recOwner == ownerID
}

// recent is the fallback ranking: creation time descending, ties by id
// for determinism.
func (ix *Index) recent(ownerID string, k int) []Hit {
	var scoped []Entry
	for _, e := range ix.entries {
		if eligible(ownerID, e.OwnerID) {
			scoped = append(scoped, e)
		}
	}
	sort.Slice(scoped, func(i, j int) bool {
		if !scoped[i].CreatedAt.Equal(scoped[j].CreatedAt) {
			return scoped[i].CreatedAt.After(scoped[j].CreatedAt)
		}
		return scoped[i].ID < scoped[j].ID
	})
	if len(scoped) > k {
		scoped = scoped[:k]
	}

	hits := make([]Hit, len(scoped))
	for i, e := range scoped {
		hits[i] = Hit{ID: e.ID}
	}
	return hits
}
