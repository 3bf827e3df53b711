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
	"encoding/json"

	"go.opentelemetry.io/otel"

	"github.com/lib/pq"

	"github.com/driftcap/driftcap/internal/apierror"
	"github.com/driftcap/driftcap/model"
)

func (d Datasource) DocumentResourceExists(ctx context.Context, resourceID string) (bool, error) {
	var exists bool
	err := d.Conn.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM change_documents WHERE resource_id = $1
			UNION
			SELECT 1 FROM change_documents_history WHERE resource_id = $1
		)
	`, resourceID).Scan(&exists)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check document resource", err)
	}
	return exists, nil
}

// NextDocumentSequence allocates the next per-object sequence number within a
// request, counting both active and archived documents so the chain survives
// posting.
func (d Datasource) NextDocumentSequence(ctx context.Context, requestID, modelName, objectID string) (int, error) {
	var next int
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sequence), 0) + 1 FROM (
			SELECT sequence FROM change_documents WHERE request_id = $1 AND model_name = $2 AND object_id = $3
			UNION ALL
			SELECT sequence FROM change_documents_history WHERE request_id = $1 AND model_name = $2 AND object_id = $3
		) s
	`, requestID, modelName, objectID).Scan(&next)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to allocate document sequence", err)
	}
	return next, nil
}

// CreateDocumentAndArchiveRecord is the assembler's atomic move: the new
// document and the record's archival commit together, so a crash can never
// lose a record between capture and document. A duplicate resource id rolls
// the whole unit back and surfaces as ErrConflict.
func (d Datasource) CreateDocumentAndArchiveRecord(ctx context.Context, doc *model.ChangeDocument, rec *model.ChangeRecord) error {
	ctx, span := otel.Tracer("driftcap.assembler").Start(ctx, "Persisting change document")
	defer span.End()

	contentJSON, err := json.Marshal(doc.Content)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal document content", err)
	}
	dependsOnJSON, err := json.Marshal(doc.DependsOn)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal document dependencies", err)
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin document transaction", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO change_documents (document_id, resource_id, request_id, tenant_id, model_name, object_id, root_table, content, depends_on, sequence, posted, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, doc.DocumentID, doc.ResourceID, doc.RequestID, doc.TenantID, doc.ModelName, doc.ObjectID, doc.RootTable, contentJSON, dependsOnJSON, doc.Sequence, doc.Posted, doc.Status, doc.CreatedAt)
	if err != nil {
		_ = tx.Rollback()
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return apierror.NewAPIError(apierror.ErrConflict, "Change document already exists for resource", err)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create change document", err)
	}

	if err := archiveRecordTx(ctx, tx, rec, model.StatusSuccess, ""); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit document transaction", err)
	}
	return nil
}

func (d Datasource) GetUnpostedDocuments(ctx context.Context, requestID, modelName string, limit int) ([]*model.ChangeDocument, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT document_id, resource_id, request_id, tenant_id, model_name, object_id, root_table, content, depends_on, sequence, posted, status, created_at
		FROM change_documents
		WHERE request_id = $1 AND model_name = $2 AND posted = FALSE AND status != $3
		ORDER BY sequence ASC, created_at ASC
		LIMIT $4
	`, requestID, modelName, model.StatusFail, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve unposted documents", err)
	}
	defer rows.Close()

	var docs []*model.ChangeDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over documents", err)
	}
	return docs, nil
}

// HasLowerSequenceUnposted reports whether an earlier document for the same
// object is still waiting, which gates posting in non-parallel models.
func (d Datasource) HasLowerSequenceUnposted(ctx context.Context, requestID, modelName, objectID string, sequence int) (bool, error) {
	var exists bool
	err := d.Conn.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM change_documents
			WHERE request_id = $1 AND model_name = $2 AND object_id = $3 AND posted = FALSE AND sequence < $4
		)
	`, requestID, modelName, objectID, sequence).Scan(&exists)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check lower sequences", err)
	}
	return exists, nil
}

func (d Datasource) UpdateDocumentStatus(ctx context.Context, documentID, status string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE change_documents SET status = $2 WHERE document_id = $1
	`, documentID, status)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update document status", err)
	}
	return nil
}

// ArchiveDocument moves a document to history without creating a task. Used
// when a duplicate task resource is detected at posting time.
func (d Datasource) ArchiveDocument(ctx context.Context, doc *model.ChangeDocument, status string) error {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin document archive transaction", err)
	}
	if err := archiveDocumentTx(ctx, tx, doc, status); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit document archive", err)
	}
	return nil
}

func archiveDocumentTx(ctx context.Context, tx execer, doc *model.ChangeDocument, status string) error {
	contentJSON, err := json.Marshal(doc.Content)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal document content", err)
	}
	dependsOnJSON, err := json.Marshal(doc.DependsOn)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal document dependencies", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO change_documents_history (document_id, resource_id, request_id, tenant_id, model_name, object_id, root_table, content, depends_on, sequence, posted, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, doc.DocumentID, doc.ResourceID, doc.RequestID, doc.TenantID, doc.ModelName, doc.ObjectID, doc.RootTable, contentJSON, dependsOnJSON, doc.Sequence, true, status, doc.CreatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert document history", err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM change_documents WHERE document_id = $1`, doc.DocumentID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to delete archived document", err)
	}
	return nil
}

func (d Datasource) CountUnpostedDocuments(ctx context.Context, requestID string) (int64, error) {
	var count int64
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM change_documents WHERE request_id = $1 AND posted = FALSE
	`, requestID).Scan(&count)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count unposted documents", err)
	}
	return count, nil
}

func (d Datasource) CountUnpostedDocumentsForModel(ctx context.Context, requestID, modelName string) (int64, error) {
	var count int64
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM change_documents WHERE request_id = $1 AND model_name = $2 AND posted = FALSE
	`, requestID, modelName).Scan(&count)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count unposted documents for model", err)
	}
	return count, nil
}

func scanDocument(rows rowScanner) (*model.ChangeDocument, error) {
	doc := &model.ChangeDocument{}
	var contentJSON, dependsOnJSON []byte
	err := rows.Scan(&doc.DocumentID, &doc.ResourceID, &doc.RequestID, &doc.TenantID, &doc.ModelName, &doc.ObjectID, &doc.RootTable, &contentJSON, &dependsOnJSON, &doc.Sequence, &doc.Posted, &doc.Status, &doc.CreatedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan change document", err)
	}
	if err := json.Unmarshal(contentJSON, &doc.Content); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal document content", err)
	}
	if len(dependsOnJSON) > 0 {
		if err := json.Unmarshal(dependsOnJSON, &doc.DependsOn); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal document dependencies", err)
		}
	}
	return doc, nil
}
