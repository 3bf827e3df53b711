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
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/driftcap/driftcap/internal/apierror"
	"github.com/driftcap/driftcap/model"
)

func (d Datasource) CreateTriggerRequest(ctx context.Context, req *model.TriggerRequest) error {
	recordsJSON, err := json.Marshal(req.Records)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal trigger records", err)
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO trigger_requests (request_id, tenant_id, kind, start_time, end_time, table_name, records, finished, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, req.RequestID, req.TenantID, req.Kind, req.StartTime, req.EndTime, req.TableName, recordsJSON, req.Finished, req.Status, req.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return apierror.NewAPIError(apierror.ErrConflict, "Trigger request already exists", err)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create trigger request", err)
	}
	return nil
}

func (d Datasource) GetTriggerRequest(ctx context.Context, requestID string) (*model.TriggerRequest, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT request_id, tenant_id, kind, start_time, end_time, table_name, records, finished, status, created_at
		FROM trigger_requests
		WHERE request_id = $1
	`, requestID)

	req, err := scanTriggerRequest(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Trigger request with ID '%s' not found", requestID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve trigger request", err)
	}
	return req, nil
}

// GetNextInitialTrigger returns the oldest INITIAL request for the tenant, or
// nil when the backlog is empty.
func (d Datasource) GetNextInitialTrigger(ctx context.Context, tenantID string) (*model.TriggerRequest, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT request_id, tenant_id, kind, start_time, end_time, table_name, records, finished, status, created_at
		FROM trigger_requests
		WHERE tenant_id = $1 AND status = $2
		ORDER BY created_at ASC
		LIMIT 1
	`, tenantID, model.StatusInitial)

	req, err := scanTriggerRequest(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve next initial trigger", err)
	}
	return req, nil
}

// GetExecutingTrigger returns the tenant's in-flight request, or nil when no
// request is executing.
func (d Datasource) GetExecutingTrigger(ctx context.Context, tenantID string) (*model.TriggerRequest, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT request_id, tenant_id, kind, start_time, end_time, table_name, records, finished, status, created_at
		FROM trigger_requests
		WHERE tenant_id = $1 AND status = $2
		ORDER BY created_at ASC
		LIMIT 1
	`, tenantID, model.StatusExecuting)

	req, err := scanTriggerRequest(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve executing trigger", err)
	}
	return req, nil
}

func (d Datasource) UpdateTriggerStatus(ctx context.Context, requestID, status string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE trigger_requests
		SET status = $2
		WHERE request_id = $1
	`, requestID, status)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update trigger status", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Trigger request with ID '%s' not found", requestID), nil)
	}
	return nil
}

// MarkTriggerFinished flips finished and records the terminal status. The
// finished flag never goes back to false.
func (d Datasource) MarkTriggerFinished(ctx context.Context, requestID, status string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE trigger_requests
		SET finished = TRUE, status = $2
		WHERE request_id = $1 AND finished = FALSE
	`, requestID, status)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark trigger finished", err)
	}
	return nil
}

func (d Datasource) GetTriggerCounts(ctx context.Context, requestID string) (*model.TriggerCounts, error) {
	counts := &model.TriggerCounts{RequestID: requestID}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT t.status, t.finished,
			(SELECT COUNT(*) FROM change_records r WHERE r.request_id = t.request_id),
			(SELECT COUNT(*) FROM change_documents c WHERE c.request_id = t.request_id),
			(SELECT COUNT(*) FROM scheduled_tasks s WHERE s.request_id = t.request_id)
		FROM trigger_requests t
		WHERE t.request_id = $1
	`, requestID).Scan(&counts.Status, &counts.Finished, &counts.Records, &counts.Documents, &counts.Tasks)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Trigger request with ID '%s' not found", requestID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve trigger counts", err)
	}
	return counts, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTriggerRequest(row rowScanner) (*model.TriggerRequest, error) {
	req := &model.TriggerRequest{}
	var startTime, endTime sql.NullTime
	var tableName sql.NullString
	var recordsJSON []byte
	err := row.Scan(&req.RequestID, &req.TenantID, &req.Kind, &startTime, &endTime, &tableName, &recordsJSON, &req.Finished, &req.Status, &req.CreatedAt)
	if err != nil {
		return nil, err
	}
	if startTime.Valid {
		req.StartTime = startTime.Time
	}
	if endTime.Valid {
		req.EndTime = endTime.Time
	}
	req.TableName = tableName.String
	if len(recordsJSON) > 0 {
		if err := json.Unmarshal(recordsJSON, &req.Records); err != nil {
			return nil, err
		}
	}
	return req, nil
}
