// Package restapi implements the read-only REST surface of spec §6: GET
// /, GET /observe, GET /verify. Grounded on the teacher's stdlib
// net/http.ServeMux server shape (internal/server/server.go) rather than
// the teacher's Connect-RPC services, since this surface is plain JSON
// over HTTP, not an RPC protocol.
package restapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"entity/internal/agent"
	"entity/internal/domain"
	"entity/internal/invariant"
	"entity/internal/logging"
	"entity/internal/statestore"
)

// Config wires the handler's collaborators.
type Config struct {
	Store    *statestore.Store
	Verifier *invariant.Verifier
	Agent    *agent.Agent
	Now      func() time.Time
	Logger   *slog.Logger
}

// Handler serves spec §6's REST API.
type Handler struct {
	store    *statestore.Store
	verifier *invariant.Verifier
	agent    *agent.Agent
	now      func() time.Time
	logger   *slog.Logger
}

func New(cfg Config) *Handler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Handler{
		store: cfg.Store, verifier: cfg.Verifier, agent: cfg.Agent, now: cfg.Now,
		logger: logging.Default(cfg.Logger).With("component", "restapi"),
	}
}

// Mux builds the ServeMux for this handler (spec §6: "Only GET and
// OPTIONS are accepted; other methods return 405").
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.guard(h.handleRoot))
	mux.HandleFunc("/observe", h.guard(h.handleObserve))
	mux.HandleFunc("/verify", h.guard(h.handleVerify))
	return mux
}

func (h *Handler) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if err := h.recordObservation(r); err != nil {
			h.logger.Warn("failed to record observation", "error", err)
		}
		next(w, r)
	}
}

// recordObservation appends the ObservationReceived audit event every
// REST call incurs (spec §6: "Every call appends one ObservationReceived
// event tagged category: audit").
func (h *Handler) recordObservation(r *http.Request) error {
	observer := r.Header.Get("X-Observer")
	_, _, err := h.store.AppendAtomic(domain.EventObservationReceived, domain.Record{
		"path":     r.URL.Path,
		"observer": observer,
	}, domain.CategoryAudit, func(st domain.State, _ domain.Event) domain.State { return st })
	return err
}

type metaResponse struct {
	OrganizationHash string `json:"organization_hash"`
	Created          time.Time `json:"created"`
	Status           string `json:"status"`
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	state, ok := h.store.Read()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no state available")
		return
	}
	writeJSON(w, http.StatusOK, metaResponse{
		OrganizationHash: state.OrganizationHash.String(),
		Created:          state.Created,
		Status:           string(state.Integrity.Status),
	})
}

type observeResponse struct {
	Timestamp time.Time       `json:"timestamp"`
	State     domain.State    `json:"state"`
	Feeling   domain.Feeling  `json:"feeling"`
	Coupling  domain.Coupling `json:"coupling"`
	Events    uint64          `json:"events"`
	Memories  []string        `json:"memories"`
	Observed  observedMeta    `json:"observed"`
}

type observedMeta struct {
	Hash     string `json:"hash"`
	Observer string `json:"observer"`
	Channel  string `json:"channel"`
}

func (h *Handler) handleObserve(w http.ResponseWriter, r *http.Request) {
	state, ok := h.store.Read()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no state available")
		return
	}
	feeling, err := h.agent.Feeling()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, observeResponse{
		Timestamp: h.now().UTC(),
		State:     state,
		Feeling:   feeling,
		Coupling:  state.Coupling,
		Events:    state.Memory.EventCount,
		Memories:  state.ImportantMemory,
		Observed: observedMeta{
			Hash: state.OrganizationHash.String(), Observer: r.Header.Get("X-Observer"), Channel: "rest",
		},
	})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.verifier.Run())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
