package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fablemill/reverie/memory/index"
)

// ErrDuplicateID is returned by Add when a record with the same id is
// already present. Last-write-wins is deliberately not the policy: the
// caller must pick a new id or Remove the old record first.
var ErrDuplicateID = errors.New("duplicate memory id")

// errEmbedderUnavailable marks an embedding attempt that was skipped
// or failed; the operation falls back to recency ranking.
var errEmbedderUnavailable = errors.New("embedder unavailable")

// Store owns the memory records of one game session: the record table,
// the similarity index, and the durable copy on disk.
//
// Construct one Store per session and pass it to every collaborator
// that needs it; there is no ambient global instance. The store is
// turn-synchronous and not safe for concurrent use.
type Store struct {
	cfg      Config
	embedder Embedder
	index    *index.Index

	records map[string]Record
	order   []string // insertion order, for stable ListAll

	clock func() time.Time

	embedderDown bool      // set after a failure when CacheUnavailable
	degradedOnce sync.Once // logs the degradation once per session
}

// Stats summarizes the store contents.
type Stats struct {
	Total    int
	Episodic int
	Semantic int

	// Similarity reports whether similarity search is available, as
	// opposed to fallback-only recency ranking.
	Similarity bool
}

// New creates a Store. The embedder may be nil, in which case every
// retrieval uses the recency fallback. A nil config uses DefaultConfig.
func New(embedder Embedder, cfg *Config) *Store {
	if cfg == nil {
		cfg = DefaultConfig
	}
	c := *cfg
	c.PruneThreshold = clamp01(c.PruneThreshold)
	if c.SimilarityWeight == 0 && c.StrengthWeight == 0 {
		c.SimilarityWeight = DefaultConfig.SimilarityWeight
		c.StrengthWeight = DefaultConfig.StrengthWeight
	}
	if c.EmbedTimeout == 0 {
		c.EmbedTimeout = DefaultConfig.EmbedTimeout
	}
	clock := c.Clock
	if clock == nil {
		clock = time.Now
	}

	dims := 0
	if embedder != nil {
		dims = embedder.Dimensions()
	}

	return &Store{
		cfg:      c,
		embedder: embedder,
		index:    index.New(dims),
		records:  make(map[string]Record),
		clock:    clock,
	}
}

// Add inserts a record built by the event classifier. The record's
// bounded fields are clamped to [0,1] and its kind tag is forced to
// match its shape. Fails with ErrDuplicateID if the id is taken; the
// store is left unchanged in that case.
//
// If the record carries no embedding, one is computed best-effort; an
// embedding failure is non-fatal and leaves the record ranked by
// recency only.
func (s *Store) Add(ctx context.Context, rec Record) error {
	if rec == nil {
		return fmt.Errorf("add: nil record")
	}
	if err := normalizeRecord(rec); err != nil {
		return fmt.Errorf("add: %w", err)
	}

	h := rec.Head()
	if _, ok := s.records[h.ID]; ok {
		return fmt.Errorf("add %s: %w", h.ID, ErrDuplicateID)
	}

	if len(h.Embedding) == 0 {
		if vec, err := s.embed(ctx, h.Text); err == nil {
			h.Embedding = vec
		}
	}

	s.records[h.ID] = rec
	s.order = append(s.order, h.ID)
	if err := s.index.Insert(ctx, s.entry(rec)); err != nil {
		// The record still serves the fallback path.
		log.Printf("[MEMORY] index insert failed for %s: %v", h.ID, err)
	}
	return nil
}

// Remove deletes a record from the table and the index. Removing an
// unknown id is a no-op. This is the only way a semantic record leaves
// the store.
func (s *Store) Remove(ctx context.Context, id string) error {
	if _, ok := s.records[id]; !ok {
		return nil
	}
	delete(s.records, id)
	s.compactOrder()
	if err := s.index.Remove(ctx, id); err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	return nil
}

// Get returns the record with the given id.
func (s *Store) Get(id string) (Record, bool) {
	rec, ok := s.records[id]
	return rec, ok
}

// ListAll returns every record visible to the owner, in insertion
// order. An empty ownerID lists the whole store.
func (s *Store) ListAll(ownerID string) []Record {
	var out []Record
	for _, id := range s.order {
		rec := s.records[id]
		if ownerVisible(ownerID, rec.Head().OwnerID) {
			out = append(out, rec)
		}
	}
	return out
}

// Stats returns record counts and whether similarity search is live.
func (s *Store) Stats() Stats {
	st := Stats{Total: len(s.records), Similarity: s.similarityLive()}
	for _, rec := range s.records {
		switch rec.(type) {
		case *Episodic:
			st.Episodic++
		case *Semantic:
			st.Semantic++
		}
	}
	return st
}

// similarityLive reports whether queries can take the similarity path.
func (s *Store) similarityLive() bool {
	return s.embedder != nil && !s.embedderDown
}

// embed runs the embedder under the configured timeout. Failures are
// logged once per session and surface as errEmbedderUnavailable so the
// caller degrades that one operation; the provider is not disabled
// unless CacheUnavailable is set.
func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	if !s.similarityLive() {
		return nil, errEmbedderUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.EmbedTimeout)
	defer cancel()

	vec, err := s.embedder.Embed(ctx, text)
	if err == nil && len(vec) != s.embedder.Dimensions() {
		err = fmt.Errorf("embedding has %d dimensions, want %d", len(vec), s.embedder.Dimensions())
	}
	if err != nil {
		s.degradedOnce.Do(func() {
			log.Printf("[MEMORY] embedding unavailable, degrading to recency ranking: %v", err)
		})
		if s.cfg.CacheUnavailable {
			s.embedderDown = true
		}
		return nil, fmt.Errorf("%w: %v", errEmbedderUnavailable, err)
	}
	return vec, nil
}

// entry builds the index entry for a record.
func (s *Store) entry(rec Record) index.Entry {
	h := rec.Head()
	return index.Entry{
		ID:        h.ID,
		OwnerID:   h.OwnerID,
		Text:      h.Text,
		CreatedAt: h.CreatedAt,
		Vector:    h.Embedding,
	}
}

// compactOrder rebuilds the insertion-order slice after removals.
func (s *Store) compactOrder() {
	kept := s.order[:0]
	for _, id := range s.order {
		if _, ok := s.records[id]; ok {
			kept = append(kept, id)
		}
	}
	s.order = kept
}

// ownerVisible reports whether a record owned by recOwner is visible
// to a query scoped to ownerID.
func ownerVisible(ownerID, recOwner string) bool {
	return ownerID == "" || recOwner == OwnerAll || recOwner == ownerID
}
