package invariant

import (
	"time"

	"golang.org/x/sync/singleflight"

	"entity/internal/domain"
	"entity/internal/eventlog"
	"entity/internal/statestore"
)

// Verifier loads events + state and runs Verify against them. It never
// mutates (spec §4.5); RunRecording wraps the same check in an
// AppendAtomic(Verification, ...) so the observation itself is logged.
type Verifier struct {
	Log     *eventlog.Log
	Store   *statestore.Store
	Weights Weights
	Now     func() time.Time

	sf singleflight.Group
}

// New constructs a Verifier with DefaultWeights and time.Now.
func New(log *eventlog.Log, store *statestore.Store) *Verifier {
	return &Verifier{Log: log, Store: store, Weights: DefaultWeights, Now: time.Now}
}

// Run loads the current log and state and evaluates all five invariants.
// A check that cannot run because of a dependency failure (e.g. the log
// is unreadable) reports satisfied=false with a descriptive Details
// rather than returning an error (spec §4.5). Concurrent callers (a CLI
// poll and the maintenance monitor's own sweep landing at the same
// moment) collapse into a single underlying run via singleflight.
func (v *Verifier) Run() Result {
	result, _, _ := v.sf.Do("verify", func() (any, error) {
		return v.runOnce(), nil
	})
	return result.(Result)
}

func (v *Verifier) runOnce() Result {
	events, err := v.Log.Load()
	if err != nil {
		return Result{
			Timestamp: v.Now().UTC(),
			Invariants: []Check{
				{ID: INV001, Name: Names[INV001], Details: "log unreadable: " + err.Error()},
				{ID: INV002, Name: Names[INV002], Details: "log unreadable: " + err.Error()},
				{ID: INV003, Name: Names[INV003], Details: "log unreadable: " + err.Error()},
				{ID: INV004, Name: Names[INV004], Details: "log unreadable: " + err.Error()},
				{ID: INV005, Name: Names[INV005], Details: "log unreadable: " + err.Error()},
			},
		}
	}
	state, _ := v.Store.Read()
	return Verify(events, state, v.Weights, v.Now())
}

// RunRecording performs Run and also appends a Verification event
// summarising the outcome, via AppendAtomic so the observation is itself
// part of the hash chain.
func (v *Verifier) RunRecording() (Result, domain.Event, error) {
	result := v.Run()
	violated := 0
	for _, c := range result.Invariants {
		if !c.Satisfied {
			violated++
		}
	}
	data := domain.Record{
		"all_satisfied": result.AllSatisfied,
		"violations":    float64(violated),
		"lyapunov_v":    result.LyapunovV,
	}
	ev, _, err := v.Store.AppendAtomic(domain.EventVerification, data, domain.CategoryOperational, func(state domain.State, appended domain.Event) domain.State {
		state.Integrity.InvariantViolations = violated
		state.Integrity.LastVerification = appended.Timestamp
		state.Lyapunov.VPrevious = state.Lyapunov.V
		state.Lyapunov.V = result.LyapunovV
		return state
	})
	return result, ev, err
}
