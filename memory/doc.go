// Package memory implements the agent memory subsystem for narrative
// role-playing sessions: a decay-weighted, similarity-ranked store of
// past events and facts that non-player characters consult when
// deciding how to respond.
//
// Records come in two kinds. Episodic records describe specific events
// with an emotional valence and an importance; their strength decays
// exponentially with game time, and records that fall under a prune
// threshold are removed. Semantic records are persistent facts with a
// confidence level and never decay.
//
// Architecture:
//   - Record: tagged variant (Episodic | Semantic) sharing a common Header
//   - Embedder: text-to-vector capability, may be unavailable (degraded mode)
//   - index.Index: owner-scoped cosine top-k over embeddings, with a
//     transparent recency fallback when no vectors are available
//   - Store: orchestrates the record table, the index, decay and pruning,
//     and crash-safe JSON persistence
//
// The store is turn-synchronous: a single caller invokes it once per
// game turn, so no internal locking is needed. Decay and pruning run
// only when the caller asks (typically every few turns), never as a
// side effect of retrieval.
package memory
