// Copyright 2024 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2024 Institute of the Czech National Corpus,
//                Faculty of Arts, Charles University
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package worker runs named background tasks (frequency and collocation
// calculations, concordance registration, ARF database builds ...)
// and provides future-like handles to their results.
package worker

import (
	"concbench/apperr"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	TaskCalculateFreqs   = "calculate_freqs"
	TaskCalculateFreqsCT = "calculate_freqs_ct"
	TaskCalculateColls   = "calculate_colls"
	TaskConcRegister     = "conc_register"
	TaskBuildArfDB       = "build_arf_db"

	// TaskPquerySubtask names a frequency calculation of a paradigmatic
	// query (these run within the query, not in the pool)
	TaskPquerySubtask = "pquery_freqs"

	cleanupInterval = 61 * time.Second
)

// TaskFunc is a task body. It should respect the context
// (the context expires once the task time limit is reached).
type TaskFunc func(ctx context.Context) (any, error)

type TaskStatus struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Created  time.Time `json:"created"`
	Finished bool      `json:"finished"`
	Error    string    `json:"error,omitempty"`
}

// Future is a handle of a submitted task
type Future struct {
	id       string
	name     string
	key      string
	created  time.Time
	done     chan struct{}
	mu       sync.Mutex
	result   any
	err      error
	finished time.Time
}

func (f *Future) ID() string {
	return f.id
}

func (f *Future) Name() string {
	return f.name
}

func (f *Future) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the task finishes or the context is cancelled.
// Cancelling the context does not affect the task.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WaitTimeout is like Wait but with a time limit. On expiration,
// apperr.TaskTimeout is returned.
func (f *Future) WaitTimeout(timeout time.Duration) (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ans, err := f.Wait(ctx)
	if err == context.DeadlineExceeded {
		return nil, apperr.NewTaskTimeout(f.name, int(timeout.Seconds()))
	}
	return ans, err
}

func (f *Future) Status() TaskStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	ans := TaskStatus{
		ID:       f.id,
		Name:     f.name,
		Created:  f.created,
		Finished: f.Done(),
	}
	if f.err != nil {
		ans.Error = f.err.Error()
	}
	return ans
}

func (f *Future) resolve(result any, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.done:
		return
	default:
	}
	f.result = result
	f.err = err
	f.finished = time.Now()
	close(f.done)
}

// NewResolvedFuture creates an already finished future
// (useful for results available without any computation)
func NewResolvedFuture(name string, result any, err error) *Future {
	ans := &Future{
		id:      uuid.New().String(),
		name:    name,
		created: time.Now(),
		done:    make(chan struct{}),
	}
	ans.resolve(result, err)
	return ans
}

func errFromPanic(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("task panicked: %w", err)
	}
	return fmt.Errorf("task panicked: %v", r)
}

// ---------------------------

// Pool runs tasks with limited concurrency. Tasks run independently
// of requests which submitted them.
type Pool struct {
	conf     *Conf
	sem      chan struct{}
	tasks    map[string]*Future
	byKey    map[string]*Future
	mu       sync.Mutex
	baseCtx  context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func (p *Pool) run(fut *Future, fn TaskFunc) {
	defer p.wg.Done()
	tasksWaiting.Inc()
	select {
	case p.sem <- struct{}{}:
		tasksWaiting.Dec()
	case <-p.baseCtx.Done():
		tasksWaiting.Dec()
		fut.resolve(nil, p.baseCtx.Err())
		return
	}
	defer func() { <-p.sem }()
	tasksRunning.Inc()
	defer tasksRunning.Dec()

	t0 := time.Now()
	ctx, cancel := context.WithTimeout(p.baseCtx, p.conf.TaskTimeLimit())
	defer cancel()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Any("panic", r).Str("task", fut.name).Msg("worker task panicked")
				fut.resolve(nil, apperr.NewEngineError(errFromPanic(r)))
			}
		}()
		ans, err := fn(ctx)
		fut.resolve(ans, err)
	}()
	select {
	case <-fut.done:
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			fut.resolve(nil, apperr.NewTaskTimeout(fut.name, p.conf.TaskTimeLimitSecs))

		} else {
			fut.resolve(nil, ctx.Err())
		}
	}
	result := "ok"
	if _, err := fut.Wait(context.Background()); err != nil {
		result = "error"
		log.Warn().Err(err).Str("task", fut.name).Str("taskId", fut.id).Msg("worker task failed")
	}
	tasksTotal.WithLabelValues(fut.name, result).Inc()
	taskDuration.WithLabelValues(fut.name).Observe(time.Since(t0).Seconds())
}

// Submit starts a new task
func (p *Pool) Submit(name string, fn TaskFunc) *Future {
	return p.SubmitUnique("", name, fn)
}

// SubmitUnique starts a new task unless an unfinished task with the same
// key exists. In such case, the existing future is returned.
func (p *Pool) SubmitUnique(key string, name string, fn TaskFunc) *Future {
	p.mu.Lock()
	defer p.mu.Unlock()
	if key != "" {
		if fut, ok := p.byKey[key]; ok && !fut.Done() {
			return fut
		}
	}
	fut := &Future{
		id:      uuid.New().String(),
		name:    name,
		key:     key,
		created: time.Now(),
		done:    make(chan struct{}),
	}
	p.tasks[fut.id] = fut
	if key != "" {
		p.byKey[key] = fut
	}
	p.wg.Add(1)
	go p.run(fut, fn)
	log.Debug().Str("task", name).Str("taskId", fut.id).Msg("submitted worker task")
	return fut
}

// Get returns a future of a task submitted earlier
func (p *Pool) Get(taskID string) (*Future, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fut, ok := p.tasks[taskID]
	return fut, ok
}

// NumTasks returns number of tracked tasks (both running and finished)
func (p *Pool) NumTasks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

func (p *Pool) removeOldFinished(maxAge time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ans int
	for id, fut := range p.tasks {
		if !fut.Done() {
			continue
		}
		fut.mu.Lock()
		old := time.Since(fut.finished) > maxAge
		fut.mu.Unlock()
		if old {
			delete(p.tasks, id)
			if fut.key != "" && p.byKey[fut.key] == fut {
				delete(p.byKey, fut.key)
			}
			ans++
		}
	}
	return ans
}

func (p *Pool) Start(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				log.Info().Msg("about to close worker pool cleanup")
				return
			case <-ticker.C:
				n := p.removeOldFinished(p.conf.FinishedTasksMaxAgeDur())
				if n > 0 {
					log.Debug().Int("numRemoved", n).Msg("removed old finished tasks")
				}
			}
		}
	}()
}

// Stop cancels running tasks and waits for them to finish
// (or for the context to expire)
func (p *Pool) Stop(ctx context.Context) error {
	log.Warn().Msg("stopping worker pool")
	p.stopOnce.Do(p.cancel)
	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func NewPool(conf *Conf) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		conf:    conf,
		sem:     make(chan struct{}, conf.NumWorkers),
		tasks:   make(map[string]*Future),
		byKey:   make(map[string]*Future),
		baseCtx: ctx,
		cancel:  cancel,
	}
}
