// Package daemon implements C15: the supervisor owning the scheduler
// (C9), maintenance monitor (C10), and internal agent (C14), plus a
// request/response command channel and the pidfile-based singleton
// guard (spec §4.15). Ordered shutdown (agent sleep -> maintenance stop
// -> scheduler stop) is sequenced with golang.org/x/sync/errgroup,
// grounded on the teacher's general use of errgroup-style fan-in for
// ordered lifecycle steps (internal/server/lifecycle.go).
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"entity/internal/agent"
	"entity/internal/logging"
	"entity/internal/maintenance"
	"entity/internal/scheduler"
)

// Command is one request on the supervisor's command channel.
type Command struct {
	Type    string
	Payload map[string]string
	Reply   chan Response
}

// Response is what every Command gets back.
type Response struct {
	Result any
	Err    error
}

// Supervisor is the daemon's single instance, guarding exclusivity via a
// pidfile (spec §4.15: "a second start that observes a live process for
// the recorded pid must refuse").
type Supervisor struct {
	dir        string
	pidPath    string
	scheduler  *scheduler.Scheduler
	maintenance *maintenance.Monitor
	agent      *agent.Agent
	logger     *slog.Logger

	commands chan Command
	stop     chan struct{}
	agentStop chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// Config wires the Supervisor's collaborators.
type Config struct {
	Dir         string
	Scheduler   *scheduler.Scheduler
	Maintenance *maintenance.Monitor
	Agent       *agent.Agent
	Logger      *slog.Logger
}

func New(cfg Config) *Supervisor {
	return &Supervisor{
		dir:         cfg.Dir,
		pidPath:     filepath.Join(cfg.Dir, "daemon.pid"),
		scheduler:   cfg.Scheduler,
		maintenance: cfg.Maintenance,
		agent:       cfg.Agent,
		logger:      logging.Default(cfg.Logger).With("component", "daemon"),
		commands:    make(chan Command),
	}
}

// Start acquires the pidfile singleton, starts the scheduler, wakes the
// agent, and begins serving commands. It returns immediately; callers
// block on their own (cmd/entityd waits for a signal) and then call Stop.
func (s *Supervisor) Start() error {
	if err := s.claimPidfile(); err != nil {
		return err
	}

	if err := s.scheduler.Start(); err != nil {
		return err
	}
	s.maintenance.Start()
	if err := s.agent.Wake(); err != nil {
		return err
	}

	s.agentStop = make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.agent.RunLoop(s.agentStop)
	}()

	s.stop = make(chan struct{})
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.serve()
	}()
	return nil
}

// serve is the supervisor's single command-processing task (spec §5:
// "any externally visible method is called from that task's context"
// for the in-memory scheduler/coupling-queue maps it owns).
func (s *Supervisor) serve() {
	for {
		select {
		case <-s.stop:
			return
		case cmd, ok := <-s.commands:
			if !ok {
				return
			}
			s.dispatch(cmd)
		}
	}
}

func (s *Supervisor) dispatch(cmd Command) {
	var resp Response
	switch cmd.Type {
	case "status":
		resp = Response{Result: s.Status()}
	case "tasks":
		resp = Response{Result: s.scheduler.List()}
	case "maintenance.run":
		s.maintenance.RunOnce()
		resp = Response{Result: "ran"}
	case "agent.wake":
		resp = Response{Err: s.agent.Wake()}
	case "agent.sleep":
		resp = Response{Err: s.agent.Sleep()}
	case "agent.cycle":
		res, err := s.agent.ForceCycle()
		resp = Response{Result: res, Err: err}
	case "agent.feeling":
		f, err := s.agent.Feeling()
		resp = Response{Result: f, Err: err}
	case "agent.records":
		resp = Response{Result: s.agent.Records()}
	case "agent.suggest":
		action, found, err := s.agent.Suggest()
		resp = Response{Result: map[string]any{"action": action, "found": found}, Err: err}
	default:
		resp = Response{Err: fmt.Errorf("unknown command: %s", cmd.Type)}
	}
	if cmd.Reply != nil {
		cmd.Reply <- resp
	}
}

// Submit sends cmd to the supervisor's task and blocks for a reply
// within timeout (spec §5's 5s IPC response timeout applies at the
// transport layer; Submit itself takes the caller's timeout).
func (s *Supervisor) Submit(ctx context.Context, typ string, payload map[string]string) (any, error) {
	reply := make(chan Response, 1)
	cmd := Command{Type: typ, Payload: payload, Reply: reply}
	select {
	case s.commands <- cmd:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.Result, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// StatusInfo is the supervisor's own top-level status (spec §4.15).
type StatusInfo struct {
	Running bool `json:"running"`
	PID     int  `json:"pid"`
	AgentAwake bool `json:"agent_awake"`
}

func (s *Supervisor) Status() StatusInfo {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return StatusInfo{Running: running, PID: os.Getpid(), AgentAwake: s.agent.Awake()}
}

// Stop performs the ordered shutdown of spec §4.15: agent sleep, then
// maintenance stop, then scheduler stop, then close the channel, then
// remove the pidfile.
func (s *Supervisor) Stop(ctx context.Context) error {
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { return s.agent.Sleep() })
	if err := g.Wait(); err != nil {
		s.logger.Warn("agent sleep failed during shutdown", "error", err)
	}
	if s.agentStop != nil {
		close(s.agentStop)
	}

	s.maintenance.Stop()
	if err := s.scheduler.Stop(); err != nil {
		s.logger.Warn("scheduler stop failed during shutdown", "error", err)
	}

	if s.stop != nil {
		close(s.stop)
	}
	close(s.commands)
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	return s.releasePidfile()
}

func (s *Supervisor) claimPidfile() error {
	if b, err := os.ReadFile(s.pidPath); err == nil {
		if pid, perr := strconv.Atoi(strings.TrimSpace(string(b))); perr == nil && processAlive(pid) {
			return fmt.Errorf("daemon already running with pid %d", pid)
		}
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return err
	}
	return os.WriteFile(s.pidPath, []byte(strconv.Itoa(os.Getpid())), 0o640)
}

func (s *Supervisor) releasePidfile() error {
	err := os.Remove(s.pidPath)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
