package lab

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Supervisor runs named tasks in the background and tracks how they ended.
// Tasks are one-shot: a failed run stays failed and its error is retained
// for inspection, a canceled run is treated as a deliberate stop.
type Supervisor struct {
	mu       sync.Mutex
	tasks    map[string]*supervisedTask
	finished map[string]TaskStatus
}

type supervisedTask struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

// TaskStatus reports one supervised task, either still running or finished
// with an error.
type TaskStatus struct {
	Name      string `json:"name"`
	Running   bool   `json:"running"`
	LastError string `json:"last_error,omitempty"`
}

func NewSupervisor() *Supervisor {
	return &Supervisor{
		tasks:    make(map[string]*supervisedTask),
		finished: make(map[string]TaskStatus),
	}
}

// Start launches run under name. Names are unique among active tasks;
// restarting a finished name clears its retained status.
func (s *Supervisor) Start(name string, run func(ctx context.Context) error) error {
	if name == "" {
		return errors.New("task name is required")
	}
	if run == nil {
		return errors.New("task runner is required")
	}

	s.mu.Lock()
	if _, exists := s.tasks[name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("task already running: %s", name)
	}
	delete(s.finished, name)
	ctx, cancel := context.WithCancel(context.Background())
	task := &supervisedTask{
		name:   name,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.tasks[name] = task
	s.mu.Unlock()

	go s.runTask(ctx, task, run)
	return nil
}

func (s *Supervisor) runTask(ctx context.Context, task *supervisedTask, run func(ctx context.Context) error) {
	err := run(ctx)

	s.mu.Lock()
	if current, ok := s.tasks[task.name]; ok && current == task {
		delete(s.tasks, task.name)
		if err != nil && ctx.Err() == nil {
			s.finished[task.name] = TaskStatus{Name: task.name, LastError: err.Error()}
		}
	}
	s.mu.Unlock()
	close(task.done)
}

// Stop cancels the named task and waits for it to finish. Stopping an
// unknown name is a no-op.
func (s *Supervisor) Stop(name string) {
	s.mu.Lock()
	task, ok := s.tasks[name]
	delete(s.finished, name)
	s.mu.Unlock()
	if !ok {
		return
	}
	task.cancel()
	<-task.done
}

// StopAll cancels every active task, waits for them, and drops retained
// statuses.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	tasks := make([]*supervisedTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task)
	}
	s.finished = make(map[string]TaskStatus)
	s.mu.Unlock()

	for _, task := range tasks {
		task.cancel()
	}
	for _, task := range tasks {
		<-task.done
	}
}

// Tasks lists active task names in sorted order.
func (s *Supervisor) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Status lists active tasks and retained failures, sorted by name.
func (s *Supervisor) Status() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.tasks)+len(s.finished))
	for name := range s.tasks {
		names = append(names, name)
	}
	for name := range s.finished {
		if _, active := s.tasks[name]; active {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]TaskStatus, 0, len(names))
	for _, name := range names {
		if _, ok := s.tasks[name]; ok {
			out = append(out, TaskStatus{Name: name, Running: true})
			continue
		}
		out = append(out, s.finished[name])
	}
	return out
}
