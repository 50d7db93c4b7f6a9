package memory_test

import (
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/fablemill/reverie/memory"
)

// drawEpisodic generates an arbitrary valid episodic record.
func drawEpisodic(t *rapid.T) *memory.Episodic {
	return episodic(
		"mem_prop",
		"npc_1",
		rapid.Float64Range(0, 1).Draw(t, "importance"),
		rapid.Float64Range(0, 1).Draw(t, "decayRate"),
		t0,
	)
}

func TestStrength_Monotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rec := drawEpisodic(t)
		h1 := rapid.Float64Range(0, 100000).Draw(t, "t1")
		h2 := rapid.Float64Range(h1, 100000).Draw(t, "t2")

		s1 := memory.Strength(rec, t0.Add(time.Duration(h1*float64(time.Hour))))
		s2 := memory.Strength(rec, t0.Add(time.Duration(h2*float64(time.Hour))))
		if s2 > s1 {
			t.Fatalf("strength grew with time: s(%v)=%v, s(%v)=%v", h1, s1, h2, s2)
		}
	})
}

func TestStrength_BoundedByImportance(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rec := drawEpisodic(t)
		h := rapid.Float64Range(0, 100000).Draw(t, "hours")

		s := memory.Strength(rec, t0.Add(time.Duration(h*float64(time.Hour))))
		if s > rec.Importance {
			t.Fatalf("strength %v exceeds importance %v at %vh", s, rec.Importance, h)
		}
		if s < 0 {
			t.Fatalf("strength %v went negative", s)
		}
	})
}

func TestStrength_ZeroRateIsConstant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		imp := rapid.Float64Range(0, 1).Draw(t, "importance")
		rec := episodic("mem_prop", "npc_1", imp, 0, t0)
		h := rapid.Float64Range(0, 1e6).Draw(t, "hours")

		if s := memory.Strength(rec, t0.Add(time.Duration(h*float64(time.Hour)))); s != imp {
			t.Fatalf("zero decay rate: strength %v, want %v", s, imp)
		}
	})
}
