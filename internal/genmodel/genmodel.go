// Package genmodel implements C12: the learned action-effect table and
// the Expected Free Energy chooser that selects among candidate actions
// (spec §4.12). Grounded on the teacher's general "small owned cache
// struct, not a singleton" shape (spec §9) applied to a new domain-model
// problem the teacher itself has no direct analogue for.
package genmodel

import (
	"math"

	"entity/internal/domain"
)

// ActionModel is the learned effect estimate for one action name.
type ActionModel struct {
	EnergyDelta      float64
	VDelta           float64
	ObservationCount int
	Confidence       float64
}

// Observation is fed back from a completed sense-making cycle (spec
// §4.14 step 5).
type Observation struct {
	Action       string
	EnergyBefore float64
	EnergyAfter  float64
	VBefore      float64
	VAfter       float64
}

// PredictedState is Predict's output, clamped to valid ranges.
type PredictedState struct {
	Energy float64
	V      float64
}

// Model is the single-owner generative model cache (spec §9: "Model
// them as fields of the owning component").
type Model struct {
	actions     map[string]*ActionModel
	history     []Observation
	historySize int
	lr          float64
}

// New seeds a Model with a handful of defaults (spec §4.12) and a
// bounded observation history.
func New(historySize int, learningRate float64) *Model {
	if historySize <= 0 {
		historySize = 100
	}
	if learningRate <= 0 {
		learningRate = 0.3
	}
	m := &Model{actions: make(map[string]*ActionModel), historySize: historySize, lr: learningRate}
	m.seedDefaults()
	return m
}

func (m *Model) seedDefaults() {
	defaults := map[string]ActionModel{
		"null":           {EnergyDelta: 0.01, VDelta: 0, ObservationCount: 1, Confidence: 0.5},
		"state.summary":  {EnergyDelta: 0, VDelta: 0, ObservationCount: 1, Confidence: 0.5},
		"system.health":  {EnergyDelta: 0, VDelta: -0.01, ObservationCount: 1, Confidence: 0.5},
		"energy.status":  {EnergyDelta: -0.03, VDelta: 0, ObservationCount: 1, Confidence: 0.5},
		"memory.add":     {EnergyDelta: -0.01, VDelta: 0, ObservationCount: 1, Confidence: 0.5},
	}
	for name, am := range defaults {
		v := am
		m.actions[name] = &v
	}
}

func (m *Model) modelFor(action string) *ActionModel {
	am, ok := m.actions[action]
	if !ok {
		am = &ActionModel{Confidence: 0}
		m.actions[action] = am
	}
	return am
}

// Predict projects the effect of action on current, clamping Energy to
// [0,1] and V to >= 0 (spec §4.12).
func (m *Model) Predict(action string, current domain.Feeling) PredictedState {
	am := m.modelFor(action)
	energy := current.Energy + am.EnergyDelta
	if energy < 0 {
		energy = 0
	}
	if energy > 1 {
		energy = 1
	}
	v := current.LyapunovV + am.VDelta
	if v < 0 {
		v = 0
	}
	return PredictedState{Energy: energy, V: v}
}

// Confidence returns the current confidence for action (0 if never
// observed).
func (m *Model) Confidence(action string) float64 {
	return m.modelFor(action).Confidence
}

// Update folds obs into the exponential moving average for its action
// and recomputes confidence = min(0.95, 1 - 1/(n+1)) (spec §4.12).
func (m *Model) Update(obs Observation) {
	am := m.modelFor(obs.Action)
	energyDelta := obs.EnergyAfter - obs.EnergyBefore
	vDelta := obs.VAfter - obs.VBefore

	if am.ObservationCount == 0 {
		am.EnergyDelta = energyDelta
		am.VDelta = vDelta
	} else {
		am.EnergyDelta += m.lr * (energyDelta - am.EnergyDelta)
		am.VDelta += m.lr * (vDelta - am.VDelta)
	}
	am.ObservationCount++
	am.Confidence = math.Min(0.95, 1-1/(float64(am.ObservationCount)+1))

	m.history = append(m.history, obs)
	if over := len(m.history) - m.historySize; over > 0 {
		m.history = m.history[over:]
	}
}
