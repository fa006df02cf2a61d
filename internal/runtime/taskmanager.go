package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"geminivoice-go/internal/monitoring"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrCapacityExceeded is returned by Start when MaxConcurrent tasks are already running.
	// Work is rejected rather than queued.
	ErrCapacityExceeded = errors.New("task capacity exceeded")
	ErrTaskExists       = errors.New("task already running")
	ErrTaskNotFound     = errors.New("task not found")
)

// Task is a snapshot of a background task.
type Task struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Status      TaskStatus `json:"status"`
	Error       string     `json:"error,omitempty"`
}

// TaskStatus represents the status of a task
type TaskStatus string

const (
	TaskStatusRunning  TaskStatus = "running"
	TaskStatusStopped  TaskStatus = "stopped"
	TaskStatusFailed   TaskStatus = "failed"
	TaskStatusCanceled TaskStatus = "canceled"
)

// TaskFunc is a function that runs as a background task
type TaskFunc func(ctx context.Context) error

type task struct {
	Task
	cancel context.CancelFunc
	done   chan struct{}
}

// TaskManager runs named background tasks with a concurrency cap.
type TaskManager struct {
	mu      sync.RWMutex
	tasks   map[string]*task
	running int
	limit   int

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewTaskManager creates a task manager bound to ctx. maxConcurrent <= 0 means no cap.
func NewTaskManager(ctx context.Context, maxConcurrent int) *TaskManager {
	ctx, cancel := context.WithCancel(ctx)
	return &TaskManager{
		tasks:  make(map[string]*task),
		limit:  maxConcurrent,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches fn under name. A finished task's name can be reused.
func (tm *TaskManager) Start(name, description string, fn TaskFunc) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if t, exists := tm.tasks[name]; exists && t.Status == TaskStatusRunning {
		return fmt.Errorf("%w: %s", ErrTaskExists, name)
	}
	if tm.limit > 0 && tm.running >= tm.limit {
		monitoring.TaskRejections.Inc()
		log.WithFields(log.Fields{"task": name, "limit": tm.limit}).Warn("task rejected, capacity reached")
		return fmt.Errorf("%w: %d running", ErrCapacityExceeded, tm.running)
	}
	if err := tm.ctx.Err(); err != nil {
		return err
	}

	taskCtx, taskCancel := context.WithCancel(tm.ctx)
	t := &task{
		Task: Task{
			Name:        name,
			Description: description,
			StartTime:   time.Now(),
			Status:      TaskStatusRunning,
		},
		cancel: taskCancel,
		done:   make(chan struct{}),
	}
	tm.tasks[name] = t
	tm.running++
	monitoring.TasksRunning.Inc()

	tm.wg.Add(1)
	go tm.run(taskCtx, t, fn)
	return nil
}

func (tm *TaskManager) run(ctx context.Context, t *task, fn TaskFunc) {
	defer tm.wg.Done()
	defer close(t.done)

	var err error
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{"task": t.Name, "panic": r}).Error("task panicked")
			err = fmt.Errorf("panic: %v", r)
		}
		tm.finish(ctx, t, err)
	}()

	log.WithFields(log.Fields{"task": t.Name, "description": t.Description}).Debug("task started")
	err = fn(ctx)
}

func (tm *TaskManager) finish(ctx context.Context, t *task, err error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	now := time.Now()
	t.EndTime = &now
	switch {
	case err == nil:
		t.Status = TaskStatusStopped
		log.WithField("task", t.Name).Debug("task stopped")
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		t.Status = TaskStatusCanceled
	default:
		t.Status = TaskStatusFailed
		t.Error = err.Error()
		log.WithError(err).WithField("task", t.Name).Error("task failed")
	}
	t.cancel()
	tm.running--
	monitoring.TasksRunning.Dec()
}

// Stop cancels a running task and waits for it to return or ctx to end.
func (tm *TaskManager) Stop(ctx context.Context, name string) error {
	tm.mu.RLock()
	t, exists := tm.tasks[name]
	tm.mu.RUnlock()
	if !exists {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	t.cancel()
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StopAll stops all running tasks
func (tm *TaskManager) StopAll() {
	tm.cancel()
}

// Wait waits for all tasks to complete
func (tm *TaskManager) Wait() {
	tm.wg.Wait()
}

// GetTask returns a snapshot of the named task.
func (tm *TaskManager) GetTask(name string) (Task, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	t, exists := tm.tasks[name]
	if !exists {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	return t.Task, nil
}

// ListTasks returns snapshots of all tasks sorted by name.
func (tm *TaskManager) ListTasks() []Task {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	out := make([]Task, 0, len(tm.tasks))
	for _, t := range tm.tasks {
		out = append(out, t.Task)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// TaskStats contains statistics about tasks
type TaskStats struct {
	Total    int `json:"total"`
	Running  int `json:"running"`
	Stopped  int `json:"stopped"`
	Failed   int `json:"failed"`
	Canceled int `json:"canceled"`
	Capacity int `json:"capacity"`
}

// GetStats returns statistics about tasks
func (tm *TaskManager) GetStats() TaskStats {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	stats := TaskStats{Total: len(tm.tasks), Capacity: tm.limit}
	for _, t := range tm.tasks {
		switch t.Status {
		case TaskStatusRunning:
			stats.Running++
		case TaskStatusStopped:
			stats.Stopped++
		case TaskStatusFailed:
			stats.Failed++
		case TaskStatusCanceled:
			stats.Canceled++
		}
	}
	return stats
}

// StartPeriodic runs fn immediately and then every interval. Failures are logged and
// do not stop the task.
func (tm *TaskManager) StartPeriodic(name, description string, interval time.Duration, fn TaskFunc) error {
	if interval <= 0 {
		return fmt.Errorf("task %s: interval must be positive", name)
	}
	return tm.Start(name, description, func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).WithField("task", name).Warn("periodic task execution failed")
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}
