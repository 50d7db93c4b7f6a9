package memory

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"
)

// decayTimeScale is the normalization constant K in the decay exponent.
// Elapsed time is measured in hours of game time, so with K = 100 a
// record with decay rate 0.05 sits at importance * e^-0.05 (about 95%
// of its importance) after 100 hours, and a rate-0.3 record is nearly
// gone after a few hundred hours. K is fixed; tune per-record speed
// through DecayRate.
const decayTimeScale = 100.0

// Strength returns the current effective weight of a record at the
// given time.
//
// For episodic records:
//
//	strength = importance * exp(-decayRate * hours / K)
//
// so strength(0) = importance, strength never exceeds importance, and
// a zero decay rate keeps strength constant. Elapsed time before the
// record's creation is clamped to zero, so a record is never stronger
// than freshly created.
//
// Semantic records always report strength 1 regardless of time.
//
// Strength is derived, never stored: callers recompute it from the
// record and a caller-supplied time, which keeps decay reproducible.
func Strength(rec Record, now time.Time) float64 {
	switch r := rec.(type) {
	case *Episodic:
		if r.DecayRate == 0 {
			return r.Importance
		}
		elapsed := now.Sub(r.CreatedAt).Hours()
		if elapsed < 0 {
			elapsed = 0
		}
		return r.Importance * math.Exp(-r.DecayRate*elapsed/decayTimeScale)
	case *Semantic:
		return 1
	}
	return 0
}

// DecayAndPrune recomputes the strength of every episodic record at
// currentTime and removes, from both the record table and the
// similarity index, those whose strength has fallen below the prune
// threshold. Semantic records are never touched.
//
// This is the only place a decay transition is persisted; retrieval
// computes strength transiently and never removes anything. Callers
// typically invoke it every few turns to amortize the sweep.
//
// Returns the number of records pruned.
func (s *Store) DecayAndPrune(ctx context.Context, currentTime time.Time) (int, error) {
	var pruned []string
	for _, id := range s.order {
		rec := s.records[id]
		if _, ok := rec.(*Episodic); !ok {
			continue
		}
		if Strength(rec, currentTime) < s.cfg.PruneThreshold {
			pruned = append(pruned, id)
		}
	}

	for _, id := range pruned {
		delete(s.records, id)
		if err := s.index.Remove(ctx, id); err != nil {
			return 0, fmt.Errorf("prune %s: %w", id, err)
		}
	}
	s.compactOrder()

	if len(pruned) > 0 {
		log.Printf("[MEMORY] pruned %d weak memories", len(pruned))
	}
	return len(pruned), nil
}
