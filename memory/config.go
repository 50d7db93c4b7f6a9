package memory

import "time"

// Config holds Store configuration.
type Config struct {
	// PruneThreshold is the strength below which an episodic record
	// is removed by DecayAndPrune and hidden from retrieval.
	// Clamped to [0,1]. Default: 0.1.
	PruneThreshold float64

	// SimilarityWeight and StrengthWeight combine similarity and
	// current strength into the retrieval ranking score:
	//
	//	score = similarity*SimilarityWeight + strength*StrengthWeight
	//
	// Defaults: 0.6 and 0.4.
	SimilarityWeight float64
	StrengthWeight   float64

	// EmbedTimeout bounds each embedding call. On timeout the
	// operation degrades to recency ranking. Default: 5s.
	EmbedTimeout time.Duration

	// CacheUnavailable, when true, treats the first embedding failure
	// as permanent for the session instead of retrying on every
	// operation. Default: false (a later call may succeed).
	CacheUnavailable bool

	// Path is where Persist writes the durable JSON copy and Load
	// reads it from. Empty disables persistence.
	Path string

	// Clock supplies the current time for lazy strength computation
	// during retrieval, so a game engine can drive game time.
	// Default: time.Now. DecayAndPrune takes its time explicitly.
	Clock func() time.Time
}

// DefaultConfig holds the defaults for a local session.
var DefaultConfig = &Config{
	PruneThreshold:   0.1,
	SimilarityWeight: 0.6,
	StrengthWeight:   0.4,
	EmbedTimeout:     5 * time.Second,
}
