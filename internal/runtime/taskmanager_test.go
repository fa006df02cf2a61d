package runtime

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestTaskManager_Start(t *testing.T) {
	tm := NewTaskManager(context.Background(), 0)

	var called atomic.Bool
	if err := tm.Start("health-sweep", "credential health sweep", func(ctx context.Context) error {
		called.Store(true)
		return nil
	}); err != nil {
		t.Fatalf("Failed to start task: %v", err)
	}
	tm.Wait()

	if !called.Load() {
		t.Error("Task function was not called")
	}
	task, err := tm.GetTask("health-sweep")
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}
	if task.Status != TaskStatusStopped || task.EndTime == nil {
		t.Errorf("Expected stopped task with end time, got %+v", task)
	}
}

func TestTaskManager_StartDuplicateWhileRunning(t *testing.T) {
	tm := NewTaskManager(context.Background(), 0)
	defer func() { tm.StopAll(); tm.Wait() }()

	if err := tm.Start("watchdog", "", blockUntilDone); err != nil {
		t.Fatalf("Failed to start first task: %v", err)
	}
	err := tm.Start("watchdog", "", blockUntilDone)
	if !errors.Is(err, ErrTaskExists) {
		t.Errorf("Expected ErrTaskExists, got %v", err)
	}
}

func TestTaskManager_NameReusableAfterFinish(t *testing.T) {
	tm := NewTaskManager(context.Background(), 0)
	noop := func(context.Context) error { return nil }
	if err := tm.Start("once", "", noop); err != nil {
		t.Fatal(err)
	}
	tm.Wait()
	if err := tm.Start("once", "", noop); err != nil {
		t.Fatalf("Expected finished task name to be reusable: %v", err)
	}
	tm.Wait()
}

func TestTaskManager_CapacityRejects(t *testing.T) {
	tm := NewTaskManager(context.Background(), 2)
	defer func() { tm.StopAll(); tm.Wait() }()

	for _, name := range []string{"a", "b"} {
		if err := tm.Start(name, "", blockUntilDone); err != nil {
			t.Fatalf("start %s: %v", name, err)
		}
	}
	if err := tm.Start("c", "", blockUntilDone); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("Expected ErrCapacityExceeded, got %v", err)
	}
	if _, err := tm.GetTask("c"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Rejected task must not be recorded, got %v", err)
	}

	if err := tm.Stop(context.Background(), "a"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := tm.Start("c", "", blockUntilDone); err != nil {
		t.Fatalf("Expected slot to free up after stop: %v", err)
	}
	if stats := tm.GetStats(); stats.Running != 2 || stats.Canceled != 1 || stats.Capacity != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestTaskManager_StopUnknown(t *testing.T) {
	tm := NewTaskManager(context.Background(), 0)
	if err := tm.Stop(context.Background(), "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Expected ErrTaskNotFound, got %v", err)
	}
}

func TestTaskManager_StopAll(t *testing.T) {
	tm := NewTaskManager(context.Background(), 0)
	for _, name := range []string{"one", "two", "three"} {
		if err := tm.Start(name, "", blockUntilDone); err != nil {
			t.Fatal(err)
		}
	}
	tm.StopAll()
	tm.Wait()

	for _, task := range tm.ListTasks() {
		if task.Status != TaskStatusCanceled {
			t.Errorf("task %s: expected canceled, got %s", task.Name, task.Status)
		}
	}
	if err := tm.Start("late", "", blockUntilDone); err == nil {
		t.Error("Expected Start to fail after StopAll")
	}
}

func TestTaskManager_TaskErrorAndPanic(t *testing.T) {
	tm := NewTaskManager(context.Background(), 0)
	_ = tm.Start("fails", "", func(context.Context) error { return errors.New("boom") })
	_ = tm.Start("panics", "", func(context.Context) error { panic("kaboom") })
	tm.Wait()

	for _, name := range []string{"fails", "panics"} {
		task, err := tm.GetTask(name)
		if err != nil {
			t.Fatal(err)
		}
		if task.Status != TaskStatusFailed || task.Error == "" {
			t.Errorf("%s: expected failed with error, got %+v", name, task)
		}
	}
	if stats := tm.GetStats(); stats.Running != 0 || stats.Failed != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestTaskManager_ListTasksSorted(t *testing.T) {
	tm := NewTaskManager(context.Background(), 0)
	for _, name := range []string{"c", "a", "b"} {
		_ = tm.Start(name, "", func(context.Context) error { return nil })
	}
	tm.Wait()
	tasks := tm.ListTasks()
	if len(tasks) != 3 || tasks[0].Name != "a" || tasks[2].Name != "c" {
		t.Errorf("unexpected order %+v", tasks)
	}
}

func TestTaskManager_StartPeriodic(t *testing.T) {
	tm := NewTaskManager(context.Background(), 0)
	var runs atomic.Int32
	err := tm.StartPeriodic("tick", "", 10*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return errors.New("logged and ignored")
	})
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return runs.Load() >= 3 })
	tm.StopAll()
	tm.Wait()

	if err := tm.StartPeriodic("bad", "", 0, nil); err == nil {
		t.Error("Expected zero interval to be rejected")
	}
}
