/*
Copyright 2025 Driftcap Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package driftcap

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/driftcap/driftcap/config"
)

// Worker runs one component cycle on a fixed interval under supervision: a
// panicked or failed cycle is logged and the loop keeps going, backing off
// while failures are consecutive. Multiple instances of the same worker may
// run concurrently across processes; the shared store and the lock table
// carry all coordination.
type Worker struct {
	name     string
	interval time.Duration
	cycle    func(ctx context.Context) error
}

func NewWorker(name string, interval time.Duration, cycle func(ctx context.Context) error) *Worker {
	return &Worker{name: name, interval: interval, cycle: cycle}
}

// Run loops until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = w.interval
	bo.MaxInterval = 5 * time.Minute
	bo.MaxElapsedTime = 0

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	logrus.Infof("%s worker started (interval=%s)", w.name, w.interval)
	for {
		select {
		case <-ctx.Done():
			logrus.Infof("%s worker stopped", w.name)
			return
		case <-ticker.C:
			if err := w.runCycle(ctx); err != nil {
				delay := bo.NextBackOff()
				logrus.Errorf("%s cycle failed, backing off %s: %v", w.name, delay, err)
				select {
				case <-ctx.Done():
				case <-time.After(delay):
				}
				continue
			}
			bo.Reset()
		}
	}
}

// runCycle converts a panic into an error so one bad item can never take the
// loop down.
func (w *Worker) runCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s cycle: %v", w.name, r)
		}
	}()
	return w.cycle(ctx)
}

// Workers builds the full set of processing loops for this instance. The
// lock sweeper is started separately by the caller via Locks().RunSweeper.
func (d *Driftcap) Workers() ([]*Worker, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	interval := cnf.PollInterval()
	return []*Worker{
		NewWorker("monitor", interval, d.MonitorCompletion),
		NewWorker("extraction", interval, d.ExtractChanges),
		NewWorker("assembler", interval, d.AssembleDocuments),
		NewWorker("dispatcher", interval, d.DispatchDocuments),
		NewWorker("executor", interval, d.ExecuteTasks),
	}, nil
}
