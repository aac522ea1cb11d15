// Package runtime hosts the subscription workers and their supervision.
// It restarts failing subscriptions with exponential backoff and reports
// exhausted retry budgets, without containing any domain rules itself.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chat-sync/contract"
	"chat-sync/errors"
)

const (
	defaultBaseDelay = 200 * time.Millisecond
	defaultMaxDelay  = 10 * time.Second
)

// Supervisor owns a context and a cancel function, runs each worker in a
// goroutine, recovers panics, and restarts workers with a growing delay.
// When a worker exhausts its retry budget the failure is handed to the
// OnExhausted hook; the session treats that as terminal.
type Supervisor struct {
	Cancel  context.CancelFunc
	wg      *sync.WaitGroup
	log     *slog.Logger
	workers []contract.Worker

	baseDelay   time.Duration
	maxDelay    time.Duration
	maxRestarts int

	// OnExhausted runs when a worker fails more than maxRestarts times
	// in a row. Nil means failures only log.
	OnExhausted func(name string, err error)
}

// NewSupervisor builds a supervisor with the given consecutive-failure
// budget. maxRestarts <= 0 means retry forever.
func NewSupervisor(log *slog.Logger, maxRestarts int) *Supervisor {
	return &Supervisor{
		wg:          &sync.WaitGroup{},
		log:         log,
		baseDelay:   defaultBaseDelay,
		maxDelay:    defaultMaxDelay,
		maxRestarts: maxRestarts,
	}
}

// Run starts every registered worker and blocks until all of them have
// finished. A local cancellation trigger is tied to the parent ctx: if
// the parent cancels, all workers stop; if Stop is called, only the
// supervised workers stop.
func (s *Supervisor) Run(ctx context.Context) {
	supervisedCtx, cancel := context.WithCancel(ctx)
	s.Cancel = cancel
	defer s.Cancel()

	for _, worker := range s.workers {
		s.Start(supervisedCtx, worker)
	}
	s.wg.Wait()
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Start runs a worker under supervision in a dedicated goroutine. If its
// Run method panics, the supervisor recovers and restarts it after the
// current backoff delay. A failure in one worker must not stop the
// supervisor itself. The delay doubles on each consecutive failure up to
// maxDelay and resets after a clean stop.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	workerName := contract.GetWorkerName(worker)

	go func() {
		defer s.wg.Done()

		delay := s.baseDelay
		failures := 0

		for {
			if ctx.Err() != nil {
				s.log.Info(fmt.Sprintf("Stopping : %s", workerName))
				return
			}

			started := time.Now()
			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
					}
				}()
				return worker.Run(ctx)
			}()

			if err == nil {
				// Terminated properly, never restart.
				s.log.Info(fmt.Sprintf("Worker finished : %s", workerName))
				return
			}

			if ctx.Err() != nil {
				s.log.Info("Worker stopped (context canceled)", "name", workerName)
				return
			}

			// A worker that held its subscription for a while before
			// failing gets its budget back.
			if time.Since(started) > s.maxDelay {
				failures = 0
				delay = s.baseDelay
			}

			failures++
			if s.maxRestarts > 0 && failures > s.maxRestarts {
				s.log.Error("Worker retry budget exhausted", "name", workerName, "failures", failures, "error", err)
				if s.OnExhausted != nil {
					s.OnExhausted(workerName, fmt.Errorf("%w: %v", errors.ErrSubscriptionLost, err))
				}
				return
			}

			s.log.Warn("Worker crashed, restarting with backoff", "name", workerName, "delay", delay, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > s.maxDelay {
				delay = s.maxDelay
			}
		}
	}()
}

// Stop cancels all supervised workers. Run keeps waiting for the
// goroutines to drain.
func (s *Supervisor) Stop() {
	if s.Cancel != nil {
		s.Cancel()
	}
}
