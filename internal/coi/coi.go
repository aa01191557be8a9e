// Package coi implements the Center-of-Interest engine (C2): per-user
// interest points learned from reactions and view time, scored against
// candidate documents with temporal decay. Pure functions, no I/O — callers
// own persistence (internal/store) and concurrency control (the per-user
// row lock taken by internal/store.UpdateInteractions).
package coi

import (
	"math"
	"time"

	"github.com/google/uuid"

	"centroid/internal/embedding"
)

// Config holds the tunables spec.md enumerates for the CoI engine.
type Config struct {
	ShiftFactor float64       // weight towards the new point on update, (0,1)
	Threshold   float64       // cosine below which a new CoI is created, (0,1)
	MinCoIs     int           // minimum CoIs for personalization to activate
	Horizon     time.Duration // duration after which a CoI's contribution decays to ~0
}

// Stats tracks a CoI's activity.
type Stats struct {
	ViewCount int
	ViewTime  time.Duration
	LastView  time.Time
}

// CoI is one entry of a user's learned taste. Point is always unit-length.
type CoI struct {
	ID    string
	Point embedding.Vector
	Stats Stats
}

// LogReaction finds the CoI with maximum cosine similarity to e. If that
// similarity is at or above cfg.Threshold, the CoI's point shifts towards e
// and its stats advance; otherwise a fresh CoI is appended. Returns the
// updated slice; cois itself is not mutated, so callers persist the result.
func LogReaction(cfg Config, cois []CoI, e embedding.Vector, now time.Time) []CoI {
	if len(cois) == 0 {
		return []CoI{newCoI(e, now)}
	}

	best, sim := bestMatch(cois, e)
	if sim < cfg.Threshold {
		return append(cloneAll(cois), newCoI(e, now))
	}

	out := cloneAll(cois)
	target := out[best]
	shifted := make([]float32, len(target.Point))
	for i := range shifted {
		var te, ee float32
		if i < len(target.Point) {
			te = target.Point[i]
		}
		if i < len(e) {
			ee = e[i]
		}
		shifted[i] = float32((1-cfg.ShiftFactor)*float64(te) + cfg.ShiftFactor*float64(ee))
	}
	norm, err := embedding.Normalize("coi", shifted)
	if err != nil {
		// near-zero vector: leave the old CoI unchanged per spec.
		return out
	}
	target.Point = norm
	target.Stats.ViewCount++
	target.Stats.LastView = now
	out[best] = target
	return out
}

// LogViewTime adds duration to the nearest CoI's view_time without shifting
// its point.
func LogViewTime(cois []CoI, e embedding.Vector, duration time.Duration) []CoI {
	if len(cois) == 0 {
		return cois
	}
	best, _ := bestMatch(cois, e)
	out := cloneAll(cois)
	out[best].Stats.ViewTime += duration
	return out
}

// Score returns a similarity score in [0, 1] per snippet ID. Score of
// document d is the maximum, over the user's CoIs, of
// (e_d . coi.point) * decay(now - last_view, horizon) * relevance(coi, ...).
// Returns an empty map if cois is empty.
func Score(cfg Config, documents map[string]embedding.Vector, cois []CoI, now time.Time) map[string]float64 {
	out := make(map[string]float64, len(documents))
	if len(cois) == 0 {
		return out
	}
	relevances := relevance(cfg, cois, now)
	for id, e := range documents {
		var best float64
		for i, c := range cois {
			sim := embedding.Dot(c.Point, e)
			if sim <= 0 {
				continue
			}
			d := decay(now.Sub(c.Stats.LastView), cfg.Horizon)
			s := sim * d * relevances[i]
			if s > best {
				best = s
			}
		}
		out[id] = best
	}
	return out
}

// decay(delta, horizon) = exp(-ln2 * delta/horizon), clamped to [0, 1].
func decay(delta, horizon time.Duration) float64 {
	if horizon <= 0 || delta <= 0 {
		return 1
	}
	v := math.Exp(-math.Ln2 * delta.Seconds() / horizon.Seconds())
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// relevance assigns each CoI a weight in [0, 1] from its recent activity
// (view_count weighted by recency decay), normalized to sum to <= 1 across
// the user's CoIs.
func relevance(cfg Config, cois []CoI, now time.Time) []float64 {
	weights := make([]float64, len(cois))
	var total float64
	for i, c := range cois {
		w := float64(c.Stats.ViewCount) * decay(now.Sub(c.Stats.LastView), cfg.Horizon)
		if w < 0 {
			w = 0
		}
		weights[i] = w
		total += w
	}
	if total <= 0 {
		even := 1.0 / float64(len(cois))
		for i := range weights {
			weights[i] = even
		}
		return weights
	}
	for i := range weights {
		weights[i] /= total
	}
	return weights
}

// bestMatch returns the index of, and cosine similarity to, the CoI closest
// to e, breaking ties by the earliest CoI ID lexicographically.
func bestMatch(cois []CoI, e embedding.Vector) (int, float64) {
	best := 0
	bestSim := embedding.Dot(cois[0].Point, e)
	for i := 1; i < len(cois); i++ {
		sim := embedding.Dot(cois[i].Point, e)
		if sim > bestSim || (sim == bestSim && cois[i].ID < cois[best].ID) {
			best = i
			bestSim = sim
		}
	}
	return best, bestSim
}

func newCoI(e embedding.Vector, now time.Time) CoI {
	return CoI{
		ID:    uuid.NewString(),
		Point: append(embedding.Vector(nil), e...),
		Stats: Stats{ViewCount: 1, LastView: now},
	}
}

func cloneAll(cois []CoI) []CoI {
	out := make([]CoI, len(cois))
	copy(out, cois)
	return out
}
