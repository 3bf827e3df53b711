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

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/driftcap/driftcap/model"
)

// MonitorCompletion is one monitor cycle, run behind a tenant-scoped lock so
// only one worker advances the request lifecycle at a time. With no request
// executing it starts the next INITIAL one; with one executing it checks the
// drain conditions and marks the request finished when everything referencing
// it has settled.
func (d *Driftcap) MonitorCompletion(ctx context.Context) error {
	ctx, span := otel.Tracer("driftcap.monitor").Start(ctx, "Monitoring request completion")
	defer span.End()

	resource := fmt.Sprintf("monitor:%s", d.tenantID)
	acquired, err := d.locks.TryAcquire(ctx, resource, d.tenantID)
	if err != nil {
		return err
	}
	if !acquired {
		return nil
	}
	defer func() {
		if err := d.locks.Release(ctx, resource); err != nil {
			logrus.Warnf("failed to release lock %s: %v", resource, err)
		}
	}()

	executing, err := d.datasource.GetExecutingTrigger(ctx, d.tenantID)
	if err != nil {
		return err
	}
	if executing == nil {
		return d.startNextTrigger(ctx)
	}
	return d.settleTrigger(ctx, executing)
}

// startNextTrigger promotes the oldest INITIAL request to EXECUTING and
// builds its cascade. A failed build reverts the request so it stays
// retryable.
func (d *Driftcap) startNextTrigger(ctx context.Context) error {
	next, err := d.datasource.GetNextInitialTrigger(ctx, d.tenantID)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}

	if err := d.datasource.UpdateTriggerStatus(ctx, next.RequestID, model.StatusExecuting); err != nil {
		return err
	}
	if err := d.BuildCascade(ctx, next); err != nil {
		logrus.Errorf("cascade build failed for request %s: %v", next.RequestID, err)
		if revertErr := d.datasource.UpdateTriggerStatus(ctx, next.RequestID, model.StatusInitial); revertErr != nil {
			logrus.Errorf("failed to revert request %s: %v", next.RequestID, revertErr)
		}
		return err
	}
	logrus.Infof("started trigger request %s (%s)", next.RequestID, next.Kind)
	return nil
}

// settleTrigger propagates finished flags bottom-up, then checks the drain
// conditions: every module run finished and no active record, document or
// task still references the request.
func (d *Driftcap) settleTrigger(ctx context.Context, req *model.TriggerRequest) error {
	runs, err := d.datasource.GetModuleRuns(ctx, req.RequestID)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		// A crash between the status flip and cascade creation leaves an
		// EXECUTING request with nothing underneath it. Rebuild instead of
		// settling, otherwise the request would finish having done no work.
		logrus.Warnf("request %s is executing with no module runs, rebuilding cascade", req.RequestID)
		return d.BuildCascade(ctx, req)
	}

	if err := d.datasource.SettleFinishedFlags(ctx, req.RequestID); err != nil {
		return err
	}

	finished, err := d.datasource.AllModuleRunsFinished(ctx, req.RequestID)
	if err != nil {
		return err
	}
	if !finished {
		return nil
	}

	records, err := d.datasource.CountActiveRecords(ctx, req.RequestID)
	if err != nil {
		return err
	}
	if records > 0 {
		return nil
	}
	documents, err := d.datasource.CountUnpostedDocuments(ctx, req.RequestID)
	if err != nil {
		return err
	}
	if documents > 0 {
		return nil
	}
	tasks, err := d.datasource.CountActiveTasks(ctx, req.RequestID)
	if err != nil {
		return err
	}
	if tasks > 0 {
		return nil
	}

	if err := d.datasource.MarkTriggerFinished(ctx, req.RequestID, model.StatusSuccess); err != nil {
		return err
	}
	logrus.Infof("trigger request %s finished", req.RequestID)
	return nil
}
