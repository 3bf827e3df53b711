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
	"errors"

	"go.opentelemetry.io/otel"

	"github.com/lib/pq"

	"github.com/driftcap/driftcap/internal/apierror"
	"github.com/driftcap/driftcap/model"
)

func (d Datasource) TaskResourceExists(ctx context.Context, resourceID string) (bool, error) {
	var exists bool
	err := d.Conn.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM scheduled_tasks WHERE resource_id = $1
			UNION
			SELECT 1 FROM scheduled_tasks_history WHERE resource_id = $1
		)
	`, resourceID).Scan(&exists)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check task resource", err)
	}
	return exists, nil
}

// CreateTaskAndArchiveDocument posts a document: the scheduled task and the
// document's archival commit in one transaction.
func (d Datasource) CreateTaskAndArchiveDocument(ctx context.Context, t *model.ScheduledTask, doc *model.ChangeDocument) error {
	ctx, span := otel.Tracer("driftcap.dispatcher").Start(ctx, "Posting change document")
	defer span.End()

	contentJSON, err := json.Marshal(t.Content)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal task content", err)
	}
	dependsOnJSON, err := json.Marshal(t.DependsOn)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal task dependencies", err)
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin task transaction", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scheduled_tasks (task_id, resource_id, request_id, tenant_id, model_name, object_id, kind, target_code, pipeline_id, content, parent_task_ids, depends_on, sequence, finished, status, result, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, t.TaskID, t.ResourceID, t.RequestID, t.TenantID, t.ModelName, t.ObjectID, t.Kind, t.TargetCode, t.PipelineID, contentJSON, pq.Array(t.ParentTaskIDs), dependsOnJSON, t.Sequence, t.Finished, t.Status, t.Result, t.CreatedAt)
	if err != nil {
		_ = tx.Rollback()
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return apierror.NewAPIError(apierror.ErrConflict, "Scheduled task already exists for resource", err)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create scheduled task", err)
	}

	if err := archiveDocumentTx(ctx, tx, doc, model.StatusSuccess); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit task transaction", err)
	}
	return nil
}

func (d Datasource) GetInitialTasks(ctx context.Context, tenantID string, limit int) ([]*model.ScheduledTask, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT task_id, resource_id, request_id, tenant_id, model_name, object_id, kind, target_code, pipeline_id, content, parent_task_ids, depends_on, sequence, finished, status, result, created_at
		FROM scheduled_tasks
		WHERE tenant_id = $1 AND status = $2
		ORDER BY created_at ASC
		LIMIT $3
	`, tenantID, model.StatusInitial, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve initial tasks", err)
	}
	defer rows.Close()

	var tasks []*model.ScheduledTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over tasks", err)
	}
	return tasks, nil
}

// GetActiveTask returns nil when the task has already been archived, which
// callers treat as finished.
func (d Datasource) GetActiveTask(ctx context.Context, taskID string) (*model.ScheduledTask, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT task_id, resource_id, request_id, tenant_id, model_name, object_id, kind, target_code, pipeline_id, content, parent_task_ids, depends_on, sequence, finished, status, result, created_at
		FROM scheduled_tasks WHERE task_id = $1
	`, taskID)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve task", err)
	}
	return t, nil
}

// LockTask flips an INITIAL task to EXECUTING. Returns false when another
// worker won the race.
func (d Datasource) LockTask(ctx context.Context, taskID string) (bool, error) {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE scheduled_tasks SET status = $2, locked_at = NOW() WHERE task_id = $1 AND status = $3
	`, taskID, model.StatusExecuting, model.StatusInitial)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to lock task", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check lock result", err)
	}
	return affected == 1, nil
}

// RevertTask returns a claimed task to the pool so another cycle can retry it
// once its dependencies settle.
func (d Datasource) RevertTask(ctx context.Context, taskID string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE scheduled_tasks SET status = $2, locked_at = NULL WHERE task_id = $1 AND status = $3
	`, taskID, model.StatusInitial, model.StatusExecuting)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to revert task", err)
	}
	return nil
}

func (d Datasource) GetTasksByDependency(ctx context.Context, requestID, modelName, objectID string) ([]*model.ScheduledTask, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT task_id, resource_id, request_id, tenant_id, model_name, object_id, kind, target_code, pipeline_id, content, parent_task_ids, depends_on, sequence, finished, status, result, created_at
		FROM scheduled_tasks
		WHERE request_id = $1 AND model_name = $2 AND object_id = $3
		ORDER BY sequence ASC
	`, requestID, modelName, objectID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve dependency tasks", err)
	}
	defer rows.Close()

	var tasks []*model.ScheduledTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over dependency tasks", err)
	}
	return tasks, nil
}

// GetTaskIDsForObjectBefore lists task ids for the same object with a lower
// sequence, across active and archived tasks. These become the parent chain of
// the next task for that object.
func (d Datasource) GetTaskIDsForObjectBefore(ctx context.Context, requestID, modelName, objectID string, sequence int) ([]string, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT task_id FROM (
			SELECT task_id, sequence FROM scheduled_tasks WHERE request_id = $1 AND model_name = $2 AND object_id = $3
			UNION ALL
			SELECT task_id, sequence FROM scheduled_tasks_history WHERE request_id = $1 AND model_name = $2 AND object_id = $3
		) t
		WHERE sequence < $4
		ORDER BY sequence ASC
	`, requestID, modelName, objectID, sequence)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve prior task ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan task id", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over task ids", err)
	}
	return ids, nil
}

// ArchiveTask finalizes an executed task into history with its terminal status
// and truncated result.
func (d Datasource) ArchiveTask(ctx context.Context, t *model.ScheduledTask, status, result string) error {
	contentJSON, err := json.Marshal(t.Content)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal task content", err)
	}
	dependsOnJSON, err := json.Marshal(t.DependsOn)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal task dependencies", err)
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin task archive transaction", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scheduled_tasks_history (task_id, resource_id, request_id, tenant_id, model_name, object_id, kind, target_code, pipeline_id, content, parent_task_ids, depends_on, sequence, finished, status, result, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, t.TaskID, t.ResourceID, t.RequestID, t.TenantID, t.ModelName, t.ObjectID, t.Kind, t.TargetCode, t.PipelineID, contentJSON, pq.Array(t.ParentTaskIDs), dependsOnJSON, t.Sequence, true, status, result, t.CreatedAt)
	if err != nil {
		_ = tx.Rollback()
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert task history", err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM scheduled_tasks WHERE task_id = $1`, t.TaskID)
	if err != nil {
		_ = tx.Rollback()
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to delete archived task", err)
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit task archive", err)
	}
	return nil
}

func (d Datasource) CountActiveTasks(ctx context.Context, requestID string) (int64, error) {
	var count int64
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM scheduled_tasks WHERE request_id = $1
	`, requestID).Scan(&count)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count active tasks", err)
	}
	return count, nil
}

func scanTask(row rowScanner) (*model.ScheduledTask, error) {
	t := &model.ScheduledTask{}
	var contentJSON, dependsOnJSON []byte
	err := row.Scan(&t.TaskID, &t.ResourceID, &t.RequestID, &t.TenantID, &t.ModelName, &t.ObjectID, &t.Kind, &t.TargetCode, &t.PipelineID, &contentJSON, pq.Array(&t.ParentTaskIDs), &dependsOnJSON, &t.Sequence, &t.Finished, &t.Status, &t.Result, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(contentJSON) > 0 {
		if err := json.Unmarshal(contentJSON, &t.Content); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal task content", err)
		}
	}
	if len(dependsOnJSON) > 0 {
		if err := json.Unmarshal(dependsOnJSON, &t.DependsOn); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal task dependencies", err)
		}
	}
	return t, nil
}
