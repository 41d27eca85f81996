// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package bridge implements the Concurrency Bridge: a single long-lived
// goroutine that owns every tool-provider connection's I/O, fed by a
// thread-safe work queue. Synchronous callers submit a thunk and block on a
// future with a deadline; dropping that future never cancels the in-flight
// work, matching the Go rendering of the original asyncio-loop-in-a-thread
// design (run_coroutine_threadsafe / _start_loop_in_thread).
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matsci/orchestrator/pkg/observability"
	"github.com/matsci/orchestrator/pkg/orcherr"
)

// DefaultDeadline is the submission deadline applied when callers don't
// specify one, per spec §4.C.
const DefaultDeadline = 60 * time.Second

// ErrClosed is returned by Submit once the bridge has been stopped.
var ErrClosed = errors.New("bridge: closed")

// Result is the outcome of a submitted thunk.
type Result struct {
	Value any
	Err   error
}

type job struct {
	fn     func(ctx context.Context) (any, error)
	result chan Result
}

// Bridge is the single worker-goroutine event loop. It must be started once
// per process and lives for the supervisor's lifetime.
type Bridge struct {
	queue  chan job
	done   chan struct{}
	stopCh chan struct{}

	metrics *observability.Metrics
}

// New creates and starts the bridge loop. queueSize bounds how many pending
// submissions may be buffered before Submit blocks; 0 uses a sensible
// default.
func New(queueSize int) *Bridge {
	if queueSize <= 0 {
		queueSize = 64
	}
	b := &Bridge{
		queue:  make(chan job, queueSize),
		done:   make(chan struct{}),
		stopCh: make(chan struct{}),
	}
	go b.run()
	return b
}

// SetMetrics attaches a gauge the bridge keeps current with its in-flight
// submission count. Safe to call once, before any concurrent Submit.
func (b *Bridge) SetMetrics(m *observability.Metrics) {
	b.metrics = m
}

func (b *Bridge) run() {
	defer close(b.done)
	for {
		select {
		case j, ok := <-b.queue:
			if !ok {
				return
			}
			value, err := j.fn(context.Background())
			if b.metrics != nil {
				b.metrics.InFlightSubmissions.Dec()
			}
			j.result <- Result{Value: value, Err: err}
		case <-b.stopCh:
			// Drain remaining queued work before exiting so no submitter is
			// left waiting forever; in-flight items still run to completion.
			for {
				select {
				case j, ok := <-b.queue:
					if !ok {
						return
					}
					value, err := j.fn(context.Background())
					if b.metrics != nil {
						b.metrics.InFlightSubmissions.Dec()
					}
					j.result <- Result{Value: value, Err: err}
				default:
					return
				}
			}
		}
	}
}

// Submit enqueues fn to run on the loop goroutine and returns a future
// channel that receives exactly one Result. fn runs to completion
// regardless of whether the caller ever reads the result.
func (b *Bridge) Submit(fn func(ctx context.Context) (any, error)) (<-chan Result, error) {
	resultCh := make(chan Result, 1)
	select {
	case <-b.stopCh:
		return nil, ErrClosed
	default:
	}
	select {
	case b.queue <- job{fn: fn, result: resultCh}:
		if b.metrics != nil {
			b.metrics.InFlightSubmissions.Inc()
		}
		return resultCh, nil
	case <-b.stopCh:
		return nil, ErrClosed
	}
}

// SubmitWithDeadline submits fn and blocks until it completes or deadline
// elapses, whichever comes first. On timeout it returns an *orcherr.Error of
// KindTimeout without cancelling fn; the loop goroutine finishes fn and
// discards the result.
func (b *Bridge) SubmitWithDeadline(ctx context.Context, deadline time.Duration, fn func(ctx context.Context) (any, error)) (any, error) {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	resultCh, err := b.Submit(fn)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		return res.Value, res.Err
	case <-timer.C:
		return nil, orcherr.Timeout(fmt.Sprintf("submission exceeded %s", deadline), nil)
	case <-ctx.Done():
		return nil, orcherr.Timeout("caller context cancelled", ctx.Err())
	}
}

// Stop signals the loop to drain its queue and exit, then waits for it to
// finish. Stop does not cancel in-flight or queued work; it only stops
// accepting new submissions and returns once the goroutine has exited.
func (b *Bridge) Stop() {
	select {
	case <-b.stopCh:
		return
	default:
		close(b.stopCh)
	}
	<-b.done
}
