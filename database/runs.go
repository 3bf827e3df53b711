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
package database

import (
	"context"

	"github.com/driftcap/driftcap/internal/apierror"
	"github.com/driftcap/driftcap/model"
)

// CreateCascade records the full module -> model -> table hierarchy for one
// trigger request, plus any pre-supplied change records (explicit-records
// triggers). Everything commits or nothing does, so a failed build leaves the
// request retryable.
func (d Datasource) CreateCascade(ctx context.Context, modules []*model.ModuleRun, models []*model.ModelRun, tables []*model.TableRun, records []*model.ChangeRecord) error {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin cascade transaction", err)
	}

	for _, m := range modules {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO module_runs (run_id, request_id, tenant_id, module_name, priority, finished, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, m.RunID, m.RequestID, m.TenantID, m.ModuleName, m.Priority, m.Finished, m.CreatedAt)
		if err != nil {
			_ = tx.Rollback()
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create module run", err)
		}
	}

	for _, m := range models {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO model_runs (run_id, module_run_id, request_id, tenant_id, model_name, priority, parallel, finished, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, m.RunID, m.ModuleRunID, m.RequestID, m.TenantID, m.ModelName, m.Priority, m.Parallel, m.Finished, m.CreatedAt)
		if err != nil {
			_ = tx.Rollback()
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create model run", err)
		}
	}

	for _, t := range tables {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO table_runs (run_id, model_run_id, request_id, tenant_id, model_name, table_name, extracted, fetched_count, finished, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, t.RunID, t.ModelRunID, t.RequestID, t.TenantID, t.ModelName, t.TableName, t.Extracted, t.FetchedCount, t.Finished, t.CreatedAt)
		if err != nil {
			_ = tx.Rollback()
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create table run", err)
		}
	}

	for _, r := range records {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO change_records (record_id, request_id, tenant_id, table_run_id, table_name, model_name, record_key, merged, status, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, r.RecordID, r.RequestID, r.TenantID, r.TableRunID, r.TableName, r.ModelName, r.RecordKey, r.Merged, r.Status, r.CreatedAt)
		if err != nil {
			_ = tx.Rollback()
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create explicit change record", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit cascade", err)
	}
	return nil
}

func (d Datasource) GetUnextractedTableRuns(ctx context.Context, tenantID string, limit int) ([]*model.TableRun, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT run_id, model_run_id, request_id, tenant_id, model_name, table_name, extracted, fetched_count, finished, created_at
		FROM table_runs
		WHERE tenant_id = $1 AND extracted = FALSE
		ORDER BY created_at ASC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve unextracted table runs", err)
	}
	defer rows.Close()

	var runs []*model.TableRun
	for rows.Next() {
		r := &model.TableRun{}
		err = rows.Scan(&r.RunID, &r.ModelRunID, &r.RequestID, &r.TenantID, &r.ModelName, &r.TableName, &r.Extracted, &r.FetchedCount, &r.Finished, &r.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan table run", err)
		}
		runs = append(runs, r)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over table runs", err)
	}
	return runs, nil
}

func (d Datasource) MarkTableRunExtracted(ctx context.Context, runID string, fetched int) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE table_runs
		SET extracted = TRUE, fetched_count = $2
		WHERE run_id = $1 AND extracted = FALSE
	`, runID, fetched)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark table run extracted", err)
	}
	return nil
}

func (d Datasource) GetModuleRuns(ctx context.Context, requestID string) ([]*model.ModuleRun, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT run_id, request_id, tenant_id, module_name, priority, finished, created_at
		FROM module_runs
		WHERE request_id = $1
		ORDER BY priority ASC, module_name ASC
	`, requestID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve module runs", err)
	}
	defer rows.Close()

	var runs []*model.ModuleRun
	for rows.Next() {
		r := &model.ModuleRun{}
		err = rows.Scan(&r.RunID, &r.RequestID, &r.TenantID, &r.ModuleName, &r.Priority, &r.Finished, &r.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan module run", err)
		}
		runs = append(runs, r)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over module runs", err)
	}
	return runs, nil
}

func (d Datasource) GetModelRuns(ctx context.Context, moduleRunID string) ([]*model.ModelRun, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT run_id, module_run_id, request_id, tenant_id, model_name, priority, parallel, finished, created_at
		FROM model_runs
		WHERE module_run_id = $1
		ORDER BY priority ASC, model_name ASC
	`, moduleRunID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve model runs", err)
	}
	defer rows.Close()

	var runs []*model.ModelRun
	for rows.Next() {
		r := &model.ModelRun{}
		err = rows.Scan(&r.RunID, &r.ModuleRunID, &r.RequestID, &r.TenantID, &r.ModelName, &r.Priority, &r.Parallel, &r.Finished, &r.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan model run", err)
		}
		runs = append(runs, r)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over model runs", err)
	}
	return runs, nil
}

// SettleFinishedFlags propagates completion bottom-up in one transaction:
// a table run finishes when extracted and drained of active records, a model
// run when all of its table runs finished, a module run when all of its model
// runs finished. Flags only ever flip false -> true.
func (d Datasource) SettleFinishedFlags(ctx context.Context, requestID string) error {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin settle transaction", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE table_runs t
		SET finished = TRUE
		WHERE t.request_id = $1 AND t.finished = FALSE AND t.extracted = TRUE
		AND NOT EXISTS (SELECT 1 FROM change_records r WHERE r.table_run_id = t.run_id)
	`, requestID)
	if err != nil {
		_ = tx.Rollback()
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to settle table runs", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE model_runs m
		SET finished = TRUE
		WHERE m.request_id = $1 AND m.finished = FALSE
		AND NOT EXISTS (SELECT 1 FROM table_runs t WHERE t.model_run_id = m.run_id AND t.finished = FALSE)
	`, requestID)
	if err != nil {
		_ = tx.Rollback()
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to settle model runs", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE module_runs mo
		SET finished = TRUE
		WHERE mo.request_id = $1 AND mo.finished = FALSE
		AND NOT EXISTS (SELECT 1 FROM model_runs m WHERE m.module_run_id = mo.run_id AND m.finished = FALSE)
	`, requestID)
	if err != nil {
		_ = tx.Rollback()
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to settle module runs", err)
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit settle", err)
	}
	return nil
}

// AllModuleRunsFinished requires at least one module run: a request with
// none never had its cascade built and must not settle as finished.
func (d Datasource) AllModuleRunsFinished(ctx context.Context, requestID string) (bool, error) {
	var total, unfinished int64
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE finished = FALSE) FROM module_runs WHERE request_id = $1
	`, requestID).Scan(&total, &unfinished)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count unfinished module runs", err)
	}
	return total > 0 && unfinished == 0, nil
}
