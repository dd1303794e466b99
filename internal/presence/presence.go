// Package presence implements C16: a rate-limited outward signal stream
// derived from polled state deltas (spec §4.16). Rate limiting is
// backed by golang.org/x/time/rate, the same library the teacher uses
// for its per-IP auth rate limiter (internal/server/ratelimit.go),
// repurposed here as two fixed-key limiters (one per signal class)
// rather than one per remote address.
package presence

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"entity/internal/domain"
	"entity/internal/invariant"
	"entity/internal/logging"
	"entity/internal/statestore"
)

// SignalType is the closed set of outward signals (spec §4.16).
type SignalType string

const (
	SignalStatusChanged    SignalType = "STATUS_CHANGED"
	SignalEnergyWarning    SignalType = "ENERGY_WARNING"
	SignalCouplingRequested SignalType = "COUPLING_REQUESTED"
	SignalHeartbeat        SignalType = "HEARTBEAT"
)

// epsilonMin is the default surprise floor beneath which a heartbeat is
// suppressed under REST_DOMINANCE (spec §4.16).
const epsilonMin = 0.001

// guard reasons, surfaced in the domain.KindGuardViolation error.
const (
	guardSilenced       = "SILENCED"
	guardRateLimit      = "RATE_LIMIT"
	guardRestDominance  = "REST_DOMINANCE"
	guardNoChange       = "NO_CHANGE"
)

// Snapshot is the small state summary a signal is derived from (spec
// §4.16).
type Snapshot struct {
	Energy              float64
	LyapunovV           float64
	InvariantsSatisfied int
	Status              domain.IntegrityStatus
	PendingCouplings    int
	UrgentCouplings     int
	Surprise            float64
}

// Signal is one emitted presence event, already sequenced.
type Signal struct {
	Type     SignalType `json:"type"`
	Seq      uint64     `json:"seq"`
	Snapshot Snapshot   `json:"-"`
	OrgHash  domain.Digest `json:"-"`
	Timestamp time.Time `json:"ts"`
}

// Broadcaster polls state on an interval, derives signals, and passes
// each through the SILENCED -> RATE_LIMIT -> REST_DOMINANCE -> NO_CHANGE
// guard chain in that order (spec §4.16).
type Broadcaster struct {
	store    *statestore.Store
	verifier *invariant.Verifier
	logger   *slog.Logger

	pollInterval time.Duration

	snapshotLimiter *rate.Limiter // STATUS_CHANGED/ENERGY_WARNING/COUPLING_REQUESTED: 1/60s
	heartbeatLimiter *rate.Limiter // HEARTBEAT: 1/300s

	mu           sync.Mutex
	silencedUntil time.Time
	last         *Snapshot
	seq          uint64
	subscribers  map[chan Signal]struct{}

	stop chan struct{}
	done chan struct{}
}

// Config wires a Broadcaster.
type Config struct {
	Store        *statestore.Store
	Verifier     *invariant.Verifier
	PollInterval time.Duration
	Logger       *slog.Logger
}

func New(cfg Config) *Broadcaster {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	return &Broadcaster{
		store:            cfg.Store,
		verifier:         cfg.Verifier,
		logger:           logging.Default(cfg.Logger).With("component", "presence"),
		pollInterval:     cfg.PollInterval,
		snapshotLimiter:  rate.NewLimiter(rate.Every(60*time.Second), 1),
		heartbeatLimiter: rate.NewLimiter(rate.Every(300*time.Second), 1),
		subscribers:      make(map[chan Signal]struct{}),
	}
}

// Silence suppresses all signals until until (spec §4.16 guard 1).
func (b *Broadcaster) Silence(until time.Time) {
	b.mu.Lock()
	b.silencedUntil = until
	b.mu.Unlock()
}

// Subscribe registers a channel to receive emitted signals until
// Unsubscribe is called. Used by the SSE handler; the channel must be
// drained promptly or signals are dropped (buffered, size 16).
func (b *Broadcaster) Subscribe() chan Signal {
	ch := make(chan Signal, 16)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broadcaster) Unsubscribe(ch chan Signal) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	b.mu.Unlock()
	close(ch)
}

// Start begins the poll loop in its own task.
func (b *Broadcaster) Start() {
	b.mu.Lock()
	if b.stop != nil {
		b.mu.Unlock()
		return
	}
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	b.mu.Unlock()

	go func() {
		defer close(b.done)
		ticker := time.NewTicker(b.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-b.stop:
				return
			case <-ticker.C:
				b.poll()
			}
		}
	}()
}

func (b *Broadcaster) Stop() {
	b.mu.Lock()
	stop := b.stop
	done := b.done
	b.stop = nil
	b.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (b *Broadcaster) poll() {
	state, ok := b.store.Read()
	if !ok {
		return
	}
	result := b.verifier.Run()
	satisfied := 0
	for _, c := range result.Invariants {
		if c.Satisfied {
			satisfied++
		}
	}

	pending, urgent := 0, 0
	if state.Coupling.Queue != nil {
		pending = len(state.Coupling.Queue.Pending)
		for _, e := range state.Coupling.Queue.Pending {
			if e.Priority == domain.RequestUrgent {
				urgent++
			}
		}
	}

	snap := Snapshot{
		Energy: state.Energy.Current, LyapunovV: result.LyapunovV,
		InvariantsSatisfied: satisfied, Status: state.Integrity.Status,
		PendingCouplings: pending, UrgentCouplings: urgent,
	}

	typ := b.classify(snap)
	if typ == "" {
		return
	}
	b.emit(typ, snap, state.OrganizationHash)
}

// classify picks the signal type from the delta against the last
// snapshot, without yet applying the guard chain.
func (b *Broadcaster) classify(snap Snapshot) SignalType {
	b.mu.Lock()
	last := b.last
	b.mu.Unlock()

	if last == nil {
		return SignalStatusChanged
	}
	if snap.PendingCouplings > last.PendingCouplings {
		return SignalCouplingRequested
	}
	if snap.Energy <= 0.1 && last.Energy > 0.1 {
		return SignalEnergyWarning
	}
	if snap.Status != last.Status || snap.InvariantsSatisfied != last.InvariantsSatisfied {
		return SignalStatusChanged
	}
	return SignalHeartbeat
}

// emit runs the guard chain and, if the signal survives, sequences and
// publishes it (spec §4.16: SILENCED -> RATE_LIMIT -> REST_DOMINANCE ->
// NO_CHANGE, in that order).
func (b *Broadcaster) emit(typ SignalType, snap Snapshot, orgHash domain.Digest) {
	now := time.Now()

	b.mu.Lock()
	silenced := !b.silencedUntil.IsZero() && b.silencedUntil.After(now)
	b.mu.Unlock()
	if silenced {
		b.logger.Debug("signal guarded", "guard", guardSilenced, "type", typ)
		return
	}

	var limiter *rate.Limiter
	if typ == SignalHeartbeat {
		limiter = b.heartbeatLimiter
	} else {
		limiter = b.snapshotLimiter
	}
	if !limiter.Allow() {
		b.logger.Debug("signal guarded", "guard", guardRateLimit, "type", typ)
		return
	}

	if typ == SignalHeartbeat && snap.LyapunovV == 0 && snap.Surprise <= epsilonMin {
		b.logger.Debug("signal guarded", "guard", guardRestDominance, "type", typ)
		return
	}

	b.mu.Lock()
	unchanged := typ == SignalStatusChanged && b.last != nil && *b.last == snap
	b.mu.Unlock()
	if unchanged {
		b.logger.Debug("signal guarded", "guard", guardNoChange, "type", typ)
		return
	}

	b.mu.Lock()
	b.seq++
	seq := b.seq
	snapCopy := snap
	b.last = &snapCopy
	b.mu.Unlock()

	sig := Signal{Type: typ, Seq: seq, Snapshot: snap, OrgHash: orgHash, Timestamp: now.UTC()}

	if _, _, err := b.store.AppendAtomic(domain.EventPresenceSignalEmitted, domain.Record{
		"signal_type": string(typ),
		"signal_seq":  float64(seq),
	}, domain.CategoryAudit, func(st domain.State, _ domain.Event) domain.State { return st }); err != nil {
		b.logger.Warn("failed to record presence signal", "error", err, "type", typ)
	}

	b.mu.Lock()
	for ch := range b.subscribers {
		select {
		case ch <- sig:
		default:
			b.logger.Warn("subscriber channel full, dropping signal", "type", typ)
		}
	}
	b.mu.Unlock()
}
