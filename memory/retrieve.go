package memory

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Result is one retrieved record with its ranking metadata. The caller
// formats Record.Head().Text and the kind-specific fields for display;
// Strength is the single normalized number to show next to it.
type Result struct {
	Record Record

	// Similarity is the cosine similarity to the query. Zero when the
	// operation ran in fallback mode or did not involve a query.
	Similarity float64

	// Strength is the display number: current strength for episodic
	// records, confidence for semantic ones.
	Strength float64

	// Score is the value the results were ranked by.
	Score float64
}

// overfetch is how many index candidates are pulled per requested
// result, so the strength gate does not starve the final cut.
const overfetch = 3

// RetrieveBySimilarity returns up to n records relevant to the query
// text, scoped to ownerID plus the shared OwnerAll records.
//
// The query is embedded and matched against the index; each candidate
// is ranked by
//
//	score = similarity*SimilarityWeight + strength*StrengthWeight
//
// where semantic records use strength 1 in the formula. Episodic
// records whose current strength sits below the prune threshold are
// excluded (strength is computed transiently, never written back).
// Ties break by most recent creation.
//
// If the embedder is unavailable or times out, the operation degrades
// transparently: same signature, results ordered by creation time
// descending instead of similarity.
func (s *Store) RetrieveBySimilarity(ctx context.Context, query string, ownerID string, n int) ([]Result, error) {
	if n <= 0 {
		return nil, nil
	}
	now := s.clock()

	vec, embErr := s.embed(ctx, query)
	hits, err := s.index.Query(ctx, vec, ownerID, n*overfetch)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	ranked := embErr == nil

	var results []Result
	for _, hit := range hits {
		rec, ok := s.records[hit.ID]
		if !ok {
			continue // index lag; record was removed
		}
		strength := Strength(rec, now)
		if _, episodic := rec.(*Episodic); episodic && strength < s.cfg.PruneThreshold {
			continue
		}
		r := Result{
			Record:     rec,
			Similarity: hit.Similarity,
			Strength:   displayStrength(rec, now),
		}
		if ranked {
			r.Score = hit.Similarity*s.cfg.SimilarityWeight + strength*s.cfg.StrengthWeight
		}
		results = append(results, r)
	}

	if ranked {
		sort.SliceStable(results, func(i, j int) bool {
			if results[i].Score != results[j].Score {
				return results[i].Score > results[j].Score
			}
			return results[i].Record.Head().CreatedAt.After(results[j].Record.Head().CreatedAt)
		})
	}
	// Fallback hits arrive already ordered by creation time descending.

	if len(results) > n {
		results = results[:n]
	}
	return results, nil
}

// RetrieveByImportance returns up to n records for the owner whose
// importance (episodic) or confidence (semantic) is at least
// minImportance, ordered by that value descending, ties by most recent
// creation. Episodic records weaker than the prune threshold are
// excluded. No embedding is involved, so the operation never degrades.
func (s *Store) RetrieveByImportance(ownerID string, minImportance float64, n int) []Result {
	if n <= 0 {
		return nil
	}
	now := s.clock()

	var results []Result
	for _, id := range s.order {
		rec := s.records[id]
		if !ownerVisible(ownerID, rec.Head().OwnerID) {
			continue
		}

		var rank float64
		switch r := rec.(type) {
		case *Episodic:
			if r.Importance < minImportance {
				continue
			}
			if Strength(r, now) < s.cfg.PruneThreshold {
				continue
			}
			rank = r.Importance
		case *Semantic:
			if r.Confidence < minImportance {
				continue
			}
			rank = r.Confidence
		}

		results = append(results, Result{
			Record:   rec,
			Strength: displayStrength(rec, now),
			Score:    rank,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Record.Head().CreatedAt.After(results[j].Record.Head().CreatedAt)
	})
	if len(results) > n {
		results = results[:n]
	}
	return results
}

// displayStrength is the normalized number shown alongside a record:
// current strength for episodic records, confidence for semantic ones.
func displayStrength(rec Record, now time.Time) float64 {
	if sem, ok := rec.(*Semantic); ok {
		return sem.Confidence
	}
	return Strength(rec, now)
}
