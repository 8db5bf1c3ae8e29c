package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn is a periodic task. ctx is cancelled when the task is removed or
// the scheduler stops.
type TaskFn func(ctx context.Context)

// TaskInfo is a snapshot of one registered task.
type TaskInfo struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
	Runs     int64         `json:"runs"`
	Panics   int64         `json:"panics"`
	LastRun  time.Time     `json:"last_run,omitempty"`
}

// Scheduler runs named tasks on fixed intervals.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]*task
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

type task struct {
	info   TaskInfo
	cancel context.CancelFunc
}

// New creates a new Scheduler.
func New(logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tasks:  make(map[string]*task),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// AddTicker registers fn to run every interval, replacing any task with
// the same name.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.tasks[name]; ok {
		old.cancel()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	t := &task{info: TaskInfo{Name: name, Interval: interval}, cancel: cancel}
	s.tasks[name] = t

	go s.loop(ctx, t, fn)
	s.logger.Info("scheduler task registered", zap.String("name", name), zap.Duration("interval", interval))
}

func (s *Scheduler) loop(ctx context.Context, t *task, fn TaskFn) {
	ticker := time.NewTicker(t.info.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.run(ctx, t, fn)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) run(ctx context.Context, t *task, fn TaskFn) {
	defer func() {
		if r := recover(); r != nil {
			s.mu.Lock()
			t.info.Panics++
			s.mu.Unlock()
			s.logger.Error("scheduler task panicked",
				zap.String("task", t.info.Name),
				zap.Any("recover", r))
		}
	}()
	s.mu.Lock()
	t.info.Runs++
	t.info.LastRun = time.Now()
	s.mu.Unlock()
	fn(ctx)
}

// Remove stops and removes a task by name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[name]; ok {
		t.cancel()
		delete(s.tasks, name)
	}
}

// Stop stops all tasks. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.cancel()
}

// Tasks returns a snapshot of registered tasks ordered by name.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	out := make([]TaskInfo, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.info)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
