// Package catalog implements C8: a declarative table of named effects,
// each carrying an energy cost and coupling requirement, dispatched by a
// closed switch rather than an open plugin mechanism (spec §4.8, §9:
// "Prefer tagged variants with exhaustive matching over open
// inheritance"). Grounded on internal/query/registry.go's name->factory
// table shape.
package catalog

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"entity/internal/couplingqueue"
	"entity/internal/domain"
	"entity/internal/statestore"
)

// Outcome is a handler's result, fed back into Invoke's state mutation.
type Outcome struct {
	Success      bool
	Message      string
	StateChanges domain.Record // merged into state by name (see applyChanges)
	Effects      []string
}

// Handler computes an Outcome from the current state and caller params.
// Handlers never touch the store directly; Invoke owns the mutation.
type Handler func(state domain.State, params map[string]string) Outcome

// Entry is one catalog row (spec §4.8).
type Entry struct {
	ID               string
	Name             string
	Category         string
	Complexity       int
	EnergyCost       float64
	RequiresCoupling bool
	Handler          Handler `json:"-"`
}

// Catalog is the name-keyed table of operations, single-owner state on
// whatever component constructs it (spec §9: "avoid process-wide
// singletons").
type Catalog struct {
	mu          sync.RWMutex
	entries     map[string]Entry
	store       *statestore.Store
	now         func() time.Time
	couplingCfg couplingqueue.Config
}

// New constructs an empty Catalog bound to a state store.
func New(store *statestore.Store, now func() time.Time) *Catalog {
	if now == nil {
		now = time.Now
	}
	return &Catalog{entries: make(map[string]Entry), store: store, now: now, couplingCfg: couplingqueue.DefaultConfig()}
}

// SetCouplingConfig overrides the coupling-queue tunables used when a
// handler's StateChanges asks to enqueue a request (see applyChanges).
func (c *Catalog) SetCouplingConfig(cfg couplingqueue.Config) {
	c.mu.Lock()
	c.couplingCfg = cfg
	c.mu.Unlock()
}

// Register adds or replaces an entry. Extending the catalog is the only
// sanctioned way to add an operation (spec §9).
func (c *Catalog) Register(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.ID] = e
}

// Get returns the entry for id.
func (c *Catalog) Get(id string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e, ok
}

// List returns every entry, sorted by id, for `op list`.
func (c *Catalog) List() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Invoke runs the named operation against the current state, under the
// three guards of spec §4.8: unknown-id, coupling-required, and
// would-go-below-energy-floor. On success it mutates state via the
// store, debits energy, and appends an Operation event; on rejection it
// appends a Block event and returns a ConstitutionalBlock error (except
// for UnknownOperation, which never touches the log).
func (c *Catalog) Invoke(id string, params map[string]string) (Outcome, error) {
	entry, ok := c.Get(id)
	if !ok {
		return Outcome{}, domain.NewError(domain.KindUnknownOperation, fmt.Sprintf("no such operation: %s", id), nil)
	}

	state, ok := c.store.Read()
	if !ok {
		return Outcome{}, domain.NewError(domain.KindStateIo, "no state available", nil)
	}

	if reason, blocked := c.checkGuards(entry, state); blocked {
		c.recordBlock(entry, reason)
		return Outcome{}, domain.NewError(domain.KindConstitutionalBlock, reason, nil)
	}

	outcome := entry.Handler(state, params)
	if !outcome.Success {
		c.recordBlock(entry, outcome.Message)
		return outcome, nil
	}

	data := domain.Record{
		"operation_id": entry.ID,
		"energy_cost":  entry.EnergyCost,
		"message":      outcome.Message,
	}
	// coupling_active/coupling_partner are projected fields (spec §4.4,
	// INV-002): they must ride the event itself rather than live only in
	// the in-memory StateChanges the updater below applies, or replaying
	// the log would never reproduce them (projector.applyOperation mirrors
	// this same pair of keys).
	if v, ok := outcome.StateChanges["coupling_active"]; ok {
		data["coupling_active"] = v
	}
	if v, ok := outcome.StateChanges["coupling_partner"]; ok {
		data["coupling_partner"] = v
	}
	c.mu.RLock()
	couplingCfg := c.couplingCfg
	c.mu.RUnlock()
	now := c.now

	if _, _, err := c.store.AppendAtomic(domain.EventOperation, data, domain.CategoryOperational, func(st domain.State, ev domain.Event) domain.State {
		st.Energy.Current = clamp01(st.Energy.Current - entry.EnergyCost)
		st = applyChanges(st, outcome.StateChanges, ev.Timestamp)
		return applyCouplingEnqueue(st, outcome.StateChanges, couplingCfg, now())
	}); err != nil {
		return Outcome{}, err
	}
	return outcome, nil
}

// applyCouplingEnqueue handles the "enqueue_coupling_*" StateChanges keys
// a handler uses to ask C8 to push a request onto C11's queue (spec
// §4.8's catalog composing C11, grounded on couplingqueue.Enqueue).
func applyCouplingEnqueue(st domain.State, changes domain.Record, cfg couplingqueue.Config, now time.Time) domain.State {
	reason, ok := changes["enqueue_coupling_reason"].(string)
	if !ok || reason == "" {
		return st
	}
	priority, _ := changes["enqueue_coupling_priority"].(string)
	if priority == "" {
		priority = string(domain.RequestNormal)
	}
	context, _ := changes["enqueue_coupling_context"].(string)

	if st.Coupling.Queue == nil {
		st.Coupling.Queue = &domain.QueueState{}
	}
	couplingqueue.Enqueue(st.Coupling.Queue, cfg, domain.CouplingRequest{
		ID:       domain.NewID(),
		Priority: domain.Priority(priority),
		Reason:   reason,
		Context:  context,
	}, now)
	return st
}

// checkGuards evaluates the coupling and energy-floor guards (spec
// §4.8). Unknown-operation is handled by the caller before this runs.
func (c *Catalog) checkGuards(entry Entry, state domain.State) (reason string, blocked bool) {
	if entry.RequiresCoupling && !state.Coupling.Active {
		return fmt.Sprintf("operation %s requires an active coupling session", entry.ID), true
	}
	if state.Energy.Current-entry.EnergyCost < state.Energy.Min {
		return fmt.Sprintf("operation %s would drive energy below floor (%.4f - %.4f < %.4f)", entry.ID, state.Energy.Current, entry.EnergyCost, state.Energy.Min), true
	}
	return "", false
}

func (c *Catalog) recordBlock(entry Entry, reason string) {
	data := domain.Record{"operation_id": entry.ID, "reason": reason}
	_, _, _ = c.store.AppendAtomic(domain.EventBlock, data, domain.CategoryOperational, func(st domain.State, _ domain.Event) domain.State { return st })
}

// applyChanges merges a handler's declared field changes into state. The
// key set is closed to the fields catalog handlers are allowed to touch
// (spec §4.8's "merging stateChanges"); anything else is ignored. at is
// the appended event's timestamp, used to stamp Coupling.Since the same
// way projector.applyOperation does when replaying the same keys.
func applyChanges(st domain.State, changes domain.Record, at time.Time) domain.State {
	if v, ok := changes["human_name"].(string); ok {
		st.Human.Name = v
	}
	if v, ok := changes["human_context"].(string); ok {
		st.Human.Context = v
	}
	if v, ok := changes["important_memory_add"].(string); ok {
		st.ImportantMemory = append(st.ImportantMemory, v)
	}
	if v, ok := changes["coupling_active"].(bool); ok {
		st.Coupling.Active = v
		if v {
			st.Coupling.Since = at
		}
	}
	if v, ok := changes["coupling_partner"].(string); ok {
		st.Coupling.Partner = v
	}
	return st
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
