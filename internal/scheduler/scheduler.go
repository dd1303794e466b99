// Package scheduler implements C9: a persistent list of periodic tasks
// invoking catalog operations (spec §4.9), as a thin wrapper around
// gocron almost structurally unchanged from internal/orchestrator's
// Scheduler (JobProgress-style run counters, Rebuild() from a persisted
// task table, relative-delay first run).
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"entity/internal/atomicfile"
	"entity/internal/catalog"
	"entity/internal/domain"
	"entity/internal/logging"
)

// Task is one persisted periodic entry (spec §4.9).
type Task struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Operation string            `json:"operation"`
	Params    map[string]string `json:"params,omitempty"`
	Interval  time.Duration     `json:"interval"`
	Enabled   bool              `json:"enabled"`
	LastRun   time.Time         `json:"last_run,omitzero"`
	NextRun   time.Time         `json:"next_run,omitzero"`
	RunCount  int               `json:"run_count"`
	FailCount int               `json:"fail_count"`
}

type table struct {
	Tasks    []Task    `json:"tasks"`
	LastSave time.Time `json:"last_save"`
}

// Scheduler owns state/scheduler.json and a gocron.Scheduler instance
// used only for the timer mechanics; the Task table is the source of
// truth persisted to disk.
type Scheduler struct {
	mu      sync.Mutex
	path    string
	catalog *catalog.Catalog
	gocron  gocron.Scheduler
	jobs    map[string]gocron.Job
	tasks   map[string]*Task
	now     func() time.Time
	logger  *slog.Logger
}

// Config configures a Scheduler.
type Config struct {
	Dir     string
	Catalog *catalog.Catalog
	Now     func() time.Time
	Logger  *slog.Logger
}

func New(cfg Config) (*Scheduler, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, domain.NewError(domain.KindStateIo, "create gocron scheduler", err)
	}
	s := &Scheduler{
		path:    cfg.Dir + "/state/scheduler.json",
		catalog: cfg.Catalog,
		gocron:  sched,
		jobs:    make(map[string]gocron.Job),
		tasks:   make(map[string]*Task),
		now:     cfg.Now,
		logger:  logging.Default(cfg.Logger).With("component", "scheduler"),
	}
	return s, nil
}

// Start loads the persisted table and schedules each enabled task using
// a relative delay computed from NextRun (spec §4.9).
func (s *Scheduler) Start() error {
	var t table
	ok, err := atomicfile.ReadJSON(s.path, &t)
	if err != nil {
		return domain.NewError(domain.KindStateIo, "read scheduler table", err)
	}
	if ok {
		for i := range t.Tasks {
			task := t.Tasks[i]
			s.tasks[task.ID] = &task
		}
	}
	s.gocron.Start()
	for _, task := range s.tasks {
		if task.Enabled {
			if err := s.arm(task); err != nil {
				s.logger.Warn("failed to arm task", "task", task.ID, "error", err)
			}
		}
	}
	return nil
}

// Stop shuts down the underlying gocron scheduler; it does not block
// past the currently running job (spec §5: "timers are cancelled").
func (s *Scheduler) Stop() error {
	return s.gocron.Shutdown()
}

func (s *Scheduler) arm(task *Task) error {
	delay := time.Duration(0)
	if !task.NextRun.IsZero() {
		if d := task.NextRun.Sub(s.now()); d > 0 {
			delay = d
		}
	}
	job, err := s.gocron.NewJob(
		gocron.DurationJob(task.Interval),
		gocron.NewTask(func() { s.run(task.ID) }),
		gocron.WithStartAt(gocron.WithStartDateTime(s.now().Add(delay))),
	)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.jobs[task.ID] = job
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) run(id string) {
	s.mu.Lock()
	task, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	_, err := s.catalog.Invoke(task.Operation, task.Params)

	s.mu.Lock()
	task.LastRun = s.now().UTC()
	task.NextRun = task.LastRun.Add(task.Interval)
	task.RunCount++
	if err != nil {
		task.FailCount++
		s.logger.Warn("scheduled task failed", "task", id, "operation", task.Operation, "error", err)
	}
	s.mu.Unlock()
	_ = s.persist()
}

// Add registers and, if enabled, arms a new task, persisting the table.
func (s *Scheduler) Add(task Task) error {
	s.mu.Lock()
	s.tasks[task.ID] = &task
	s.mu.Unlock()
	if task.Enabled {
		if err := s.arm(&task); err != nil {
			return err
		}
	}
	return s.persist()
}

// Remove unschedules and deletes a task.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	job, hasJob := s.jobs[id]
	delete(s.jobs, id)
	delete(s.tasks, id)
	s.mu.Unlock()
	if hasJob {
		_ = s.gocron.RemoveJob(job.ID())
	}
	return s.persist()
}

// SetEnabled toggles a task, arming or disarming its timer.
func (s *Scheduler) SetEnabled(id string, enabled bool) error {
	s.mu.Lock()
	task, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown task %q", id)
	}
	task.Enabled = enabled
	job, hasJob := s.jobs[id]
	s.mu.Unlock()

	if !enabled && hasJob {
		_ = s.gocron.RemoveJob(job.ID())
		s.mu.Lock()
		delete(s.jobs, id)
		s.mu.Unlock()
	}
	if enabled && !hasJob {
		if err := s.arm(task); err != nil {
			return err
		}
	}
	return s.persist()
}

// List returns a snapshot of every task.
func (s *Scheduler) List() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	return out
}

func (s *Scheduler) persist() error {
	s.mu.Lock()
	t := table{LastSave: s.now().UTC()}
	for _, task := range s.tasks {
		t.Tasks = append(t.Tasks, *task)
	}
	s.mu.Unlock()
	if err := atomicfile.WriteJSON(s.path, t, 0o640); err != nil {
		return domain.NewError(domain.KindStateIo, "write scheduler table", err)
	}
	return nil
}
