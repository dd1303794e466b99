// Package cyclememory implements C13: a ring buffer of past
// sense-making cycles with effectiveness scoring and similarity lookup
// (spec §4.13). A single-owner cache on the internal agent, not a
// process-wide singleton (spec §9).
package cyclememory

import (
	"math"
	"time"

	"entity/internal/domain"
)

// aggregateKey groups cycles by (priority, action) for suggestAction's
// per-pair mean effectiveness.
type aggregateKey struct {
	priority domain.Priority
	action   string
}

type aggregate struct {
	sum   float64
	count int
}

// Memory is the ring buffer plus its derived aggregates.
type Memory struct {
	maxCycles  int
	threshold  float64
	records    []domain.CycleRecord
	aggregates map[aggregateKey]*aggregate
}

// New constructs an empty Memory capped at maxCycles with the given
// L-infinity similarity threshold (spec §4.13).
func New(maxCycles int, similarityThreshold float64) *Memory {
	if maxCycles <= 0 {
		maxCycles = 200
	}
	if similarityThreshold <= 0 {
		similarityThreshold = 0.15
	}
	return &Memory{maxCycles: maxCycles, threshold: similarityThreshold, aggregates: make(map[aggregateKey]*aggregate)}
}

// Effectiveness computes the improvement in feeling across one cycle as
// 0.4*energy gain + 0.4*V reduction + 0.2*surprise reduction (spec
// §4.13). The weights are fixed; they do not vary with the cycle's
// priority.
func Effectiveness(before, after domain.Feeling) (effectiveness, surpriseReduction float64) {
	energyGain := after.Energy - before.Energy
	vReduction := before.LyapunovV - after.LyapunovV
	surpriseReduction = before.Surprise - after.Surprise
	return 0.4*energyGain + 0.4*vReduction + 0.2*surpriseReduction, surpriseReduction
}

// RecordCycle appends a new cycle record, computing its effectiveness,
// updating the per-(priority,action) aggregate, and dropping the oldest
// record once the ring is full (spec §4.13).
func (m *Memory) RecordCycle(now time.Time, before domain.Feeling, priority domain.Priority, action string, blocked bool, after domain.Feeling, energyCost float64) domain.CycleRecord {
	eff, surpriseReduction := Effectiveness(before, after)
	rec := domain.CycleRecord{
		ID:                domain.NewID(),
		Timestamp:         now,
		FeelingBefore:     before,
		Priority:          priority,
		Action:            action,
		ActionBlocked:     blocked,
		FeelingAfter:      after,
		Effectiveness:     eff,
		SurpriseReduction: surpriseReduction,
		EnergyCost:        energyCost,
	}
	m.append(rec)
	return rec
}

func (m *Memory) append(rec domain.CycleRecord) {
	m.records = append(m.records, rec)
	key := aggregateKey{priority: rec.Priority, action: rec.Action}
	agg, ok := m.aggregates[key]
	if !ok {
		agg = &aggregate{}
		m.aggregates[key] = agg
	}
	agg.sum += rec.Effectiveness
	agg.count++

	if over := len(m.records) - m.maxCycles; over > 0 {
		dropped := m.records[:over]
		m.records = m.records[over:]
		for _, d := range dropped {
			dk := aggregateKey{priority: d.Priority, action: d.Action}
			if a, ok := m.aggregates[dk]; ok {
				a.sum -= d.Effectiveness
				a.count--
				if a.count <= 0 {
					delete(m.aggregates, dk)
				}
			}
		}
	}
}

// vector is the (energy, V, integrityFraction) similarity space (spec
// §4.13).
func vector(f domain.Feeling) [3]float64 {
	return [3]float64{f.Energy, f.LyapunovV, f.IntegrityFraction()}
}

// FindSimilar returns past records whose (energy, V, integrityFraction)
// vector is within the L-infinity threshold of feeling, optionally
// filtered by priority (spec §4.13).
func (m *Memory) FindSimilar(feeling domain.Feeling, priority *domain.Priority) []domain.CycleRecord {
	target := vector(feeling)
	var out []domain.CycleRecord
	for _, rec := range m.records {
		if priority != nil && rec.Priority != *priority {
			continue
		}
		cand := vector(rec.FeelingBefore)
		if linf(target, cand) <= m.threshold {
			out = append(out, rec)
		}
	}
	return out
}

func linf(a, b [3]float64) float64 {
	max := 0.0
	for i := range a {
		d := math.Abs(a[i] - b[i])
		if d > max {
			max = d
		}
	}
	return max
}

// SuggestAction returns the candidate among candidates with the highest
// mean effectiveness among matches with at least 3 supporting cycles,
// or ("", false) if no candidate clears that bar (spec §4.13).
func (m *Memory) SuggestAction(feeling domain.Feeling, priority domain.Priority, candidates []string) (string, bool) {
	similar := m.FindSimilar(feeling, &priority)
	if len(similar) == 0 {
		return "", false
	}
	sums := make(map[string]float64, len(candidates))
	counts := make(map[string]int, len(candidates))
	for _, rec := range similar {
		sums[rec.Action] += rec.Effectiveness
		counts[rec.Action]++
	}

	best := ""
	bestMean := math.Inf(-1)
	found := false
	for _, action := range candidates {
		if counts[action] < 3 {
			continue
		}
		mean := sums[action] / float64(counts[action])
		if !found || mean > bestMean {
			best, bestMean, found = action, mean, true
		}
	}
	return best, found
}

// Records returns a copy of all retained cycle records, oldest first.
func (m *Memory) Records() []domain.CycleRecord {
	return append([]domain.CycleRecord(nil), m.records...)
}
