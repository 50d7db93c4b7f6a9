package memory

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fablemill/reverie/memory/index"
)

// Kind tags a record as episodic or semantic.
type Kind string

const (
	KindEpisodic Kind = "episodic"
	KindSemantic Kind = "semantic"
)

// OwnerAll is the sentinel owner id for memories shared by every agent.
// Shared records are eligible in every owner-scoped query.
const OwnerAll = index.OwnerAll

// Emotion is the emotional valence attached to an episodic record.
type Emotion string

const (
	EmotionGratitude Emotion = "gratitude"
	EmotionFear      Emotion = "fear"
	EmotionAnger     Emotion = "anger"
	EmotionJoy       Emotion = "joy"
	EmotionNeutral   Emotion = "neutral"
	EmotionSadness   Emotion = "sadness"
)

// Valid reports whether e is one of the known emotions.
func (e Emotion) Valid() bool {
	switch e {
	case EmotionGratitude, EmotionFear, EmotionAnger, EmotionJoy, EmotionNeutral, EmotionSadness:
		return true
	}
	return false
}

// FactType classifies what a semantic record asserts about its subject.
type FactType string

const (
	FactProfession   FactType = "profession"
	FactRelationship FactType = "relationship"
	FactReputation   FactType = "reputation"
	FactQuestStatus  FactType = "quest_status"
	FactGeneral      FactType = "general"
)

// Valid reports whether f is one of the known fact types.
func (f FactType) Valid() bool {
	switch f {
	case FactProfession, FactRelationship, FactReputation, FactQuestStatus, FactGeneral:
		return true
	}
	return false
}

// Header holds the fields common to both record kinds.
//
// Embedding is optional: records created while the embedder was
// unavailable carry none and participate only in the recency fallback
// ranking path. Everything except Embedding is immutable after Add.
type Header struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// Record is the closed set of memory shapes. Only *Episodic and
// *Semantic implement it; kind-specific logic dispatches on the
// concrete type, never on field presence.
type Record interface {
	// Head returns the common header fields.
	Head() *Header

	record() // seals the interface to this package's two shapes
}

// Episodic is a record of a specific event. Its strength decays with
// game time according to DecayRate; see Strength.
//
// Example: "The player saved me from bandits in the forest".
type Episodic struct {
	Header

	// Importance is how significant the event was, in [0,1].
	// Supplied by the external event classifier, clamped on Add.
	Importance float64 `json:"importance"`

	// Emotion is the valence the classifier assigned to the event.
	Emotion Emotion `json:"emotion"`

	// Location is where the event occurred.
	Location string `json:"location,omitempty"`

	// Participants are the ids of everyone involved.
	Participants []string `json:"participants,omitempty"`

	// DecayRate controls how fast strength falls, in [0,1].
	// Zero means the record never decays.
	DecayRate float64 `json:"decay_rate"`
}

// Head returns the common header fields.
func (e *Episodic) Head() *Header { return &e.Header }

func (e *Episodic) record() {}

// Semantic is a persistent fact about an agent or the world. It is not
// subject to time decay; its effective strength is always 1.
//
// Example: "The player is known as a thief in the market district".
type Semantic struct {
	Header

	// FactType classifies the fact.
	FactType FactType `json:"fact_type"`

	// Subject is the id of whoever or whatever the fact is about.
	Subject string `json:"subject"`

	// Confidence is how certain the fact is, in [0,1]. It may be
	// edited by the caller but never decays with time.
	Confidence float64 `json:"confidence"`

	// Source records where this knowledge came from.
	Source string `json:"source,omitempty"`
}

// Head returns the common header fields.
func (s *Semantic) Head() *Header { return &s.Header }

func (s *Semantic) record() {}

// NewRecordID generates a unique record id in the form "mem_" followed
// by eight hex characters. The event classifier normally assigns ids;
// this is a convenience for callers that do not have their own scheme.
func NewRecordID() string {
	u := uuid.New()
	return fmt.Sprintf("mem_%x", u[:4])
}

// clamp01 clamps v to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// normalizeRecord validates required fields and clamps bounded values
// in place. It also forces the kind tag to match the concrete shape,
// so a mislabeled record can never be stored. Runs on Add and on each
// record read back during Load.
func normalizeRecord(rec Record) error {
	h := rec.Head()
	if h.ID == "" {
		return fmt.Errorf("record has no id")
	}
	if h.OwnerID == "" {
		return fmt.Errorf("record %s has no owner", h.ID)
	}
	if h.CreatedAt.IsZero() {
		return fmt.Errorf("record %s has no creation time", h.ID)
	}

	switch r := rec.(type) {
	case *Episodic:
		h.Kind = KindEpisodic
		r.Importance = clamp01(r.Importance)
		r.DecayRate = clamp01(r.DecayRate)
		if r.Emotion == "" {
			r.Emotion = EmotionNeutral
		}
		if !r.Emotion.Valid() {
			return fmt.Errorf("record %s has unknown emotion %q", h.ID, r.Emotion)
		}
	case *Semantic:
		h.Kind = KindSemantic
		r.Confidence = clamp01(r.Confidence)
		if r.FactType == "" {
			r.FactType = FactGeneral
		}
		if !r.FactType.Valid() {
			return fmt.Errorf("record %s has unknown fact type %q", h.ID, r.FactType)
		}
	}

	return nil
}
