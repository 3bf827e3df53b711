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
	"database/sql"

	"github.com/lib/pq"

	"github.com/driftcap/driftcap/internal/apierror"
	"github.com/driftcap/driftcap/model"
)

func (d Datasource) CreateChangeRecord(ctx context.Context, rec *model.ChangeRecord) error {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO change_records (record_id, request_id, tenant_id, table_run_id, table_name, model_name, record_key, merged, status, root_table, root_key, result, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, rec.RecordID, rec.RequestID, rec.TenantID, rec.TableRunID, rec.TableName, rec.ModelName, rec.RecordKey, rec.Merged, rec.Status, rec.RootTable, rec.RootKey, rec.Result, rec.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return apierror.NewAPIError(apierror.ErrConflict, "Change record already captured", err)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create change record", err)
	}
	return nil
}

// GetCapturedKeys returns every composite key already captured for a table
// run, from both the active and the history table, so a retried extraction
// only emits the delta.
func (d Datasource) GetCapturedKeys(ctx context.Context, tableRunID string) ([]string, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT record_key FROM change_records WHERE table_run_id = $1
		UNION
		SELECT record_key FROM change_records_history WHERE table_run_id = $1
	`, tableRunID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve captured keys", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan captured key", err)
		}
		keys = append(keys, key)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over captured keys", err)
	}
	return keys, nil
}

// LockPendingRecords flips a batch of unmerged INITIAL records to EXECUTING
// inside one short transaction, so concurrent assemblers never pick up the
// same record. Returned records carry the EXECUTING status.
func (d Datasource) LockPendingRecords(ctx context.Context, tenantID string, limit int) ([]*model.ChangeRecord, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin record lock transaction", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT record_id, request_id, tenant_id, table_run_id, table_name, model_name, record_key, merged, status, COALESCE(root_table,''), COALESCE(root_key,''), COALESCE(result,''), created_at
		FROM change_records
		WHERE tenant_id = $1 AND merged = FALSE AND status = $2
		ORDER BY created_at ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`, tenantID, model.StatusInitial, limit)
	if err != nil {
		_ = tx.Rollback()
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to select pending records", err)
	}

	var records []*model.ChangeRecord
	var ids []string
	for rows.Next() {
		r := &model.ChangeRecord{}
		err = rows.Scan(&r.RecordID, &r.RequestID, &r.TenantID, &r.TableRunID, &r.TableName, &r.ModelName, &r.RecordKey, &r.Merged, &r.Status, &r.RootTable, &r.RootKey, &r.Result, &r.CreatedAt)
		if err != nil {
			rows.Close()
			_ = tx.Rollback()
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan pending record", err)
		}
		r.Status = model.StatusExecuting
		records = append(records, r)
		ids = append(ids, r.RecordID)
	}
	if err = rows.Err(); err != nil {
		rows.Close()
		_ = tx.Rollback()
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over pending records", err)
	}
	rows.Close()

	if len(ids) > 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE change_records SET status = $1, locked_at = NOW() WHERE record_id = ANY($2)
		`, model.StatusExecuting, pq.Array(ids))
		if err != nil {
			_ = tx.Rollback()
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to lock pending records", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit record lock", err)
	}
	return records, nil
}

// ArchiveChangeRecord moves a record to history with the given terminal
// status. Used for duplicate discards and failed records; the normal merge
// path archives inside CreateDocumentAndArchiveRecord instead.
func (d Datasource) ArchiveChangeRecord(ctx context.Context, rec *model.ChangeRecord, status, result string) error {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin record archive transaction", err)
	}
	if err := archiveRecordTx(ctx, tx, rec, status, result); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit record archive", err)
	}
	return nil
}

// archiveRecordTx inserts the history row and deletes the active one inside
// the caller's transaction. A SUCCESS archive implies the record was merged.
func archiveRecordTx(ctx context.Context, tx execer, rec *model.ChangeRecord, status, result string) error {
	merged := status == model.StatusSuccess
	_, err := tx.ExecContext(ctx, `
		INSERT INTO change_records_history (record_id, request_id, tenant_id, table_run_id, table_name, model_name, record_key, merged, status, root_table, root_key, result, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, rec.RecordID, rec.RequestID, rec.TenantID, rec.TableRunID, rec.TableName, rec.ModelName, rec.RecordKey, merged, status, rec.RootTable, rec.RootKey, result, rec.CreatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert change record history", err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM change_records WHERE record_id = $1`, rec.RecordID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to delete archived change record", err)
	}
	return nil
}

func (d Datasource) CountActiveRecords(ctx context.Context, requestID string) (int64, error) {
	var count int64
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM change_records WHERE request_id = $1
	`, requestID).Scan(&count)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count active records", err)
	}
	return count, nil
}

func (d Datasource) CountActiveRecordsForModel(ctx context.Context, requestID, modelName string) (int64, error) {
	var count int64
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM change_records WHERE request_id = $1 AND model_name = $2
	`, requestID, modelName).Scan(&count)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count active records for model", err)
	}
	return count, nil
}

// execer is satisfied by *sql.Tx and *sql.DB; archive helpers take it so the
// same statement set serves both standalone and composed transactions.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}
