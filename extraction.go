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

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/driftcap/driftcap/config"
	"github.com/driftcap/driftcap/internal/apierror"
	"github.com/driftcap/driftcap/model"
)

// ExtractChanges is one extraction cycle: scan unextracted table runs, claim
// each behind a table-run lock, diff the source window against previously
// captured keys and capture one change record per delta row. Contention on
// the lock is not an error; another worker owns that table run.
func (d *Driftcap) ExtractChanges(ctx context.Context) error {
	ctx, span := otel.Tracer("driftcap.extraction").Start(ctx, "Extracting source changes")
	defer span.End()

	cnf, err := config.Fetch()
	if err != nil {
		return err
	}
	tableRuns, err := d.datasource.GetUnextractedTableRuns(ctx, d.tenantID, cnf.Worker.BatchSize)
	if err != nil {
		return err
	}

	for _, tableRun := range tableRuns {
		if err := d.extractTableRun(ctx, tableRun); err != nil {
			logrus.Errorf("extraction failed for table run %s (%s): %v", tableRun.RunID, tableRun.TableName, err)
		}
	}
	return nil
}

func (d *Driftcap) extractTableRun(ctx context.Context, tableRun *model.TableRun) error {
	resource := fmt.Sprintf("table_run:%s", tableRun.RunID)
	acquired, err := d.locks.TryAcquire(ctx, resource, tableRun.TenantID)
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

	req, err := d.datasource.GetTriggerRequest(ctx, tableRun.RequestID)
	if err != nil {
		return err
	}
	tableConfig, err := d.datasource.GetTableConfig(ctx, tableRun.TenantID, tableRun.TableName)
	if err != nil {
		return err
	}

	fetchedKeys, err := d.datasource.FetchChangedKeys(ctx, tableConfig, req.StartTime, req.EndTime)
	if err != nil {
		return err
	}

	// A retry may find keys captured by an earlier, partially completed
	// attempt. Only the set difference becomes new records.
	capturedKeys, err := d.datasource.GetCapturedKeys(ctx, tableRun.RunID)
	if err != nil {
		return err
	}
	captured := make(map[string]struct{}, len(capturedKeys))
	for _, key := range capturedKeys {
		captured[key] = struct{}{}
	}

	var created int
	for _, key := range fetchedKeys {
		if _, ok := captured[key]; ok {
			continue
		}
		rec := &model.ChangeRecord{
			RecordID:   model.GenerateUUIDWithSuffix("rec"),
			RequestID:  tableRun.RequestID,
			TenantID:   tableRun.TenantID,
			TableRunID: tableRun.RunID,
			TableName:  tableRun.TableName,
			ModelName:  tableRun.ModelName,
			RecordKey:  key,
			Status:     model.StatusInitial,
			CreatedAt:  time.Now(),
		}
		if err := d.datasource.CreateChangeRecord(ctx, rec); err != nil {
			// A concurrent capture of the same key is a no-op, not a failure.
			if apierror.IsCode(err, apierror.ErrConflict) {
				continue
			}
			return err
		}
		created++
	}

	if err := d.datasource.MarkTableRunExtracted(ctx, tableRun.RunID, len(fetchedKeys)); err != nil {
		return err
	}
	logrus.Infof("extracted table run %s (%s): %d fetched, %d new", tableRun.RunID, tableRun.TableName, len(fetchedKeys), created)
	return nil
}
