package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/fablemill/reverie/memory/index"
)

// saveFile is the durable on-disk shape: one entry per record, the
// common header plus the kind-specific fields, timestamps in RFC 3339.
// Embeddings are stored so a reload needs no embedder; a record saved
// without one is re-embedded best-effort on load.
type saveFile struct {
	Memories []json.RawMessage `json:"memories"`
}

// kindProbe reads just the tag so Load can pick the concrete shape.
type kindProbe struct {
	Kind Kind `json:"kind"`
}

// Persist writes the full store state to Config.Path. The write is
// atomic with respect to a crash: the new state goes to a temporary
// file first and replaces the previous copy with a rename, so a crash
// mid-write never leaves a corrupt file readable on the next Load.
//
// On failure the in-memory state is untouched and the session can
// continue unsaved.
func (s *Store) Persist() error {
	if s.cfg.Path == "" {
		return fmt.Errorf("persist: no save path configured")
	}

	doc := saveFile{Memories: make([]json.RawMessage, 0, len(s.order))}
	for _, id := range s.order {
		raw, err := json.Marshal(s.records[id])
		if err != nil {
			return fmt.Errorf("persist %s: %w", id, err)
		}
		doc.Memories = append(doc.Memories, raw)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("persist: %w", err)
	}

	if dir := filepath.Dir(s.cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("persist: %w", err)
		}
	}

	tmp := s.cfg.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	if err := os.Rename(tmp, s.cfg.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("persist: %w", err)
	}
	return nil
}

// Load replaces the store contents with the durable copy at
// Config.Path. A missing file is not an error; the store is simply
// left empty. A record with an unrecognized kind or a missing required
// field is skipped with a diagnostic rather than aborting the load;
// the number of skipped records is returned.
//
// Records persisted without an embedding are re-embedded best-effort.
// Recomputation never changes the id or any stored field.
func (s *Store) Load(ctx context.Context) (skipped int, err error) {
	if s.cfg.Path == "" {
		return 0, fmt.Errorf("load: no save path configured")
	}

	data, err := os.ReadFile(s.cfg.Path)
	if os.IsNotExist(err) {
		log.Printf("[MEMORY] no save file at %s", s.cfg.Path)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load: %w", err)
	}

	var doc saveFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("load: %w", err)
	}

	// Rebuild from scratch; a load replaces the session's memory.
	s.records = make(map[string]Record, len(doc.Memories))
	s.order = s.order[:0]
	s.index = index.New(s.index.Dimensions())

	for i, raw := range doc.Memories {
		rec, err := decodeRecord(raw)
		if err == nil {
			err = normalizeRecord(rec)
		}
		if err == nil {
			if _, ok := s.records[rec.Head().ID]; ok {
				err = fmt.Errorf("%w", ErrDuplicateID)
			}
		}
		if err != nil {
			log.Printf("[MEMORY] skipping record %d in %s: %v", i, s.cfg.Path, err)
			skipped++
			continue
		}

		h := rec.Head()
		if len(h.Embedding) == 0 {
			if vec, embErr := s.embed(ctx, h.Text); embErr == nil {
				h.Embedding = vec
			}
		}
		s.records[h.ID] = rec
		s.order = append(s.order, h.ID)
		if err := s.index.Insert(ctx, s.entry(rec)); err != nil {
			log.Printf("[MEMORY] index insert failed for %s: %v", h.ID, err)
		}
	}

	log.Printf("[MEMORY] loaded %d memories from %s (%d skipped)", len(s.order), s.cfg.Path, skipped)
	return skipped, nil
}

// decodeRecord unmarshals one persisted record into its concrete shape.
func decodeRecord(raw json.RawMessage) (Record, error) {
	var probe kindProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}
	switch probe.Kind {
	case KindEpisodic:
		var rec Episodic
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, err
		}
		return &rec, nil
	case KindSemantic:
		var rec Semantic
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, err
		}
		return &rec, nil
	default:
		return nil, fmt.Errorf("unrecognized kind %q", probe.Kind)
	}
}
