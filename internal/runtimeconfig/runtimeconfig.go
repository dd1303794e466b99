// Package runtimeconfig loads and live-reloads the daemon's tunable
// thresholds (lock timeout, V weights, EFE weights, coupling queue
// limits, maintenance intervals, presence rate limits) from a single
// config.json file under the home directory.
//
// Grounded on internal/config/file's versioned-envelope + atomic
// temp-file-then-rename pattern, and internal/cert's fsnotify-watched
// reload so edits to the file take effect without restarting the
// daemon (spec SPEC_FULL.md "AMBIENT STACK / Configuration").
package runtimeconfig

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"entity/internal/invariant"
	"entity/internal/logging"
)

const currentVersion = 1

// Values holds every externally tunable knob named across spec §4.
type Values struct {
	LockTimeoutMs int `json:"lock_timeout_ms"`

	LyapunovWeights invariant.Weights `json:"lyapunov_weights"`

	// EFE epistemic/pragmatic weight pairs, keyed by cycle priority.
	EFEWeights map[string][2]float64 `json:"efe_weights"`

	CouplingMaxPending     int   `json:"coupling_max_pending"`
	CouplingDedupeWindowMs int64 `json:"coupling_dedupe_window_ms"`
	CouplingCooldownMs     int64 `json:"coupling_cooldown_ms"`
	CouplingHistorySize    int   `json:"coupling_history_size"`
	CouplingTTLUrgentMs    int64 `json:"coupling_ttl_urgent_ms"`
	CouplingTTLNormalMs    int64 `json:"coupling_ttl_normal_ms"`
	CouplingTTLLowMs       int64 `json:"coupling_ttl_low_ms"`

	MaintenanceCheckIntervalMs  int64   `json:"maintenance_check_interval_ms"`
	MaintenanceSnapshotInterval int64   `json:"maintenance_snapshot_interval_ms"`
	EnergyLowThreshold          float64 `json:"energy_low_threshold"`
	EnergyCriticalThreshold     float64 `json:"energy_critical_threshold"`
	AutoRecovery                bool    `json:"auto_recovery"`

	PresencePollIntervalMs  int64   `json:"presence_poll_interval_ms"`
	PresenceRateLimitedMs   int64   `json:"presence_rate_limited_ms"`
	PresenceHeartbeatMs     int64   `json:"presence_heartbeat_ms"`
	PresenceEpsilonMin      float64 `json:"presence_epsilon_min"`

	CycleMemoryMaxCycles         int     `json:"cycle_memory_max_cycles"`
	CycleMemorySimilarityThresh  float64 `json:"cycle_memory_similarity_threshold"`
}

// Defaults matches the fixed defaults spec §4.12/§4.11/§4.10/§4.13/§4.16
// name, exposed here as knobs per spec §9's open question.
func Defaults() Values {
	return Values{
		LockTimeoutMs:   5000,
		LyapunovWeights: invariant.DefaultWeights,
		EFEWeights: map[string][2]float64{
			"survival":  {0, 1},
			"integrity": {0.1, 0.9},
			"stability": {0.2, 0.8},
			"growth":    {0.5, 0.5},
			"rest":      {0.6, 0.4},
		},
		CouplingMaxPending:     5,
		CouplingDedupeWindowMs: int64(30 * time.Minute / time.Millisecond),
		CouplingCooldownMs:     int64(5 * time.Minute / time.Millisecond),
		CouplingHistorySize:    20,
		CouplingTTLUrgentMs:    int64(time.Hour / time.Millisecond),
		CouplingTTLNormalMs:    int64(4 * time.Hour / time.Millisecond),
		CouplingTTLLowMs:       int64(24 * time.Hour / time.Millisecond),

		MaintenanceCheckIntervalMs:  60_000,
		MaintenanceSnapshotInterval: int64(6 * time.Hour / time.Millisecond),
		EnergyLowThreshold:          0.2,
		EnergyCriticalThreshold:     0.05,
		AutoRecovery:                true,

		PresencePollIntervalMs: 10_000,
		PresenceRateLimitedMs:  60_000,
		PresenceHeartbeatMs:    300_000,
		PresenceEpsilonMin:     0.001,

		CycleMemoryMaxCycles:        200,
		CycleMemorySimilarityThresh: 0.15,
	}
}

type envelope struct {
	Version int    `json:"version"`
	Config  Values `json:"config"`
}

// Manager owns the live-reloaded Values, watching path for edits.
type Manager struct {
	path    string
	logger  *slog.Logger
	current atomic.Pointer[Values]
	watcher *fsnotify.Watcher
	stop    chan struct{}
}

// Load reads path if present (seeding it with Defaults() if absent) and
// starts watching it for changes.
func Load(path string, logger *slog.Logger) (*Manager, error) {
	m := &Manager{path: path, logger: logging.Default(logger).With("component", "runtimeconfig"), stop: make(chan struct{})}

	vals, err := m.readOrSeed()
	if err != nil {
		return nil, err
	}
	m.current.Store(&vals)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.logger.Warn("config watcher unavailable, live reload disabled", "error", err)
		return m, nil
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		m.logger.Warn("could not watch config directory", "error", err)
		_ = watcher.Close()
		return m, nil
	}
	m.watcher = watcher
	go m.watchLoop()
	return m, nil
}

// Get returns the current values (lock-free).
func (m *Manager) Get() Values {
	return *m.current.Load()
}

// Close stops the watcher goroutine.
func (m *Manager) Close() {
	if m.watcher == nil {
		return
	}
	close(m.stop)
	_ = m.watcher.Close()
}

func (m *Manager) readOrSeed() (Values, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		vals := Defaults()
		if werr := m.write(vals); werr != nil {
			return Values{}, werr
		}
		return vals, nil
	}
	if err != nil {
		return Values{}, fmt.Errorf("read config file: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Values{}, fmt.Errorf("parse config file: %w", err)
	}
	if env.Version == 0 || env.Version > currentVersion {
		return Values{}, fmt.Errorf("unsupported config version %d", env.Version)
	}
	return env.Config, nil
}

func (m *Manager) write(vals Values) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(envelope{Version: currentVersion, Config: vals}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	return os.Rename(tmp, m.path)
}

func (m *Manager) watchLoop() {
	for {
		select {
		case <-m.stop:
			return
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(m.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			vals, err := m.readOrSeed()
			if err != nil {
				m.logger.Warn("reload config failed, keeping previous values", "error", err)
				continue
			}
			m.current.Store(&vals)
			m.logger.Info("reloaded config")
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("config watcher error", "error", err)
		}
	}
}
