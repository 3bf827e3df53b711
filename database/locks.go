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
	"time"

	"github.com/lib/pq"

	"github.com/driftcap/driftcap/internal/apierror"
	"github.com/driftcap/driftcap/model"
)

// InsertLock claims a resource by inserting into the unique-constrained locks
// table. A duplicate key means another holder owns the resource and is not an
// error.
func (d Datasource) InsertLock(ctx context.Context, lockID, resourceID, tenantID string, registeredAt time.Time) (bool, error) {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO locks (lock_id, resource_id, tenant_id, registered_at)
		VALUES ($1, $2, $3, $4)
	`, lockID, resourceID, tenantID, registeredAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return false, nil
		}
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert lock", err)
	}
	return true, nil
}

func (d Datasource) DeleteLock(ctx context.Context, resourceID string) error {
	_, err := d.Conn.ExecContext(ctx, `DELETE FROM locks WHERE resource_id = $1`, resourceID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to delete lock", err)
	}
	return nil
}

// DeleteExpiredLocks reclaims leases abandoned by crashed workers.
func (d Datasource) DeleteExpiredLocks(ctx context.Context, before time.Time) (int64, error) {
	result, err := d.Conn.ExecContext(ctx, `DELETE FROM locks WHERE registered_at < $1`, before)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to delete expired locks", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count reclaimed locks", err)
	}
	return deleted, nil
}

// ReleaseStaleClaims returns records and tasks stuck EXECUTING since before
// the cutoff to INITIAL. A claimant that is still alive archives or reverts
// its rows well inside the lease window, so anything older belongs to a
// crashed worker.
func (d Datasource) ReleaseStaleClaims(ctx context.Context, before time.Time) (int64, error) {
	var released int64
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE change_records SET status = $1, locked_at = NULL
		WHERE status = $2 AND locked_at < $3
	`, model.StatusInitial, model.StatusExecuting, before)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to release stale record claims", err)
	}
	records, err := result.RowsAffected()
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count released record claims", err)
	}
	released += records

	result, err = d.Conn.ExecContext(ctx, `
		UPDATE scheduled_tasks SET status = $1, locked_at = NULL
		WHERE status = $2 AND locked_at < $3
	`, model.StatusInitial, model.StatusExecuting, before)
	if err != nil {
		return released, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to release stale task claims", err)
	}
	tasks, err := result.RowsAffected()
	if err != nil {
		return released, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count released task claims", err)
	}
	return released + tasks, nil
}
