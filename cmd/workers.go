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

package main

import (
	"context"
	"log"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/driftcap/driftcap"
)

// startWorkers runs every processing loop plus the lock lease sweeper until
// ctx is cancelled, then waits for in-flight cycles to drain.
func startWorkers(ctx context.Context, workers []*driftcap.Worker, d *driftcap.Driftcap) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.Locks().RunSweeper(ctx)
	}()

	for _, w := range workers {
		wg.Add(1)
		go func(w *driftcap.Worker) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}

	<-ctx.Done()
	logrus.Info("shutdown signal received, draining workers")
	wg.Wait()
}

// workerCommands defines the "workers" command that starts the polling loops:
// monitor, extraction, assembler, dispatcher and executor.
func workerCommands(b *driftcapInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start driftcap workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			workers, err := b.driftcap.Workers()
			if err != nil {
				log.Fatal("Error building workers:", err)
			}

			startWorkers(ctx, workers, b.driftcap)
			logrus.Info("workers stopped")
		},
	}

	return cmd
}
