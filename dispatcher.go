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
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/driftcap/driftcap/config"
	"github.com/driftcap/driftcap/internal/apierror"
	"github.com/driftcap/driftcap/model"
)

// DispatchDocuments is one dispatch cycle: walk the executing request's
// module runs in priority order and post eligible documents as scheduled
// tasks. Gates are re-evaluated from persisted state every cycle, never
// cached.
func (d *Driftcap) DispatchDocuments(ctx context.Context) error {
	ctx, span := otel.Tracer("driftcap.dispatcher").Start(ctx, "Dispatching change documents")
	defer span.End()

	req, err := d.datasource.GetExecutingTrigger(ctx, d.tenantID)
	if err != nil {
		return err
	}
	if req == nil {
		return nil
	}

	cnf, err := config.Fetch()
	if err != nil {
		return err
	}

	moduleRuns, err := d.datasource.GetModuleRuns(ctx, req.RequestID)
	if err != nil {
		return err
	}

	for _, moduleRun := range moduleRuns {
		// A module proceeds only once every strictly lower priority module
		// on the request has finished. Runs arrive priority ascending, so
		// the first unfinished priority blocks everything above it.
		if blocked(moduleRuns, moduleRun.Priority) {
			break
		}
		if err := d.dispatchModule(ctx, moduleRun, cnf.Worker.BatchSize); err != nil {
			logrus.Errorf("dispatch failed for module run %s (%s): %v", moduleRun.RunID, moduleRun.ModuleName, err)
		}
	}
	return nil
}

// blocked reports whether any run with strictly lower priority is unfinished.
func blocked(runs []*model.ModuleRun, priority int) bool {
	for _, run := range runs {
		if run.Priority < priority && !run.Finished {
			return true
		}
	}
	return false
}

func (d *Driftcap) dispatchModule(ctx context.Context, moduleRun *model.ModuleRun, batchSize int) error {
	modelRuns, err := d.datasource.GetModelRuns(ctx, moduleRun.RunID)
	if err != nil {
		return err
	}

	for _, modelRun := range modelRuns {
		eligible, err := d.lowerModelsFullyPosted(ctx, modelRuns, modelRun.Priority)
		if err != nil {
			return err
		}
		if !eligible {
			break
		}
		if err := d.dispatchModel(ctx, modelRun, batchSize); err != nil {
			return err
		}
	}
	return nil
}

// lowerModelsFullyPosted is the model gate: every sibling model run with
// strictly lower priority must have finished extraction, drained its records
// and posted all of its documents.
func (d *Driftcap) lowerModelsFullyPosted(ctx context.Context, modelRuns []*model.ModelRun, priority int) (bool, error) {
	for _, run := range modelRuns {
		if run.Priority >= priority {
			continue
		}
		if !run.Finished {
			return false, nil
		}
		activeRecords, err := d.datasource.CountActiveRecordsForModel(ctx, run.RequestID, run.ModelName)
		if err != nil {
			return false, err
		}
		if activeRecords > 0 {
			return false, nil
		}
		unposted, err := d.datasource.CountUnpostedDocumentsForModel(ctx, run.RequestID, run.ModelName)
		if err != nil {
			return false, err
		}
		if unposted > 0 {
			return false, nil
		}
	}
	return true, nil
}

func (d *Driftcap) dispatchModel(ctx context.Context, modelRun *model.ModelRun, batchSize int) error {
	docs, err := d.datasource.GetUnpostedDocuments(ctx, modelRun.RequestID, modelRun.ModelName, batchSize)
	if err != nil {
		return err
	}

	for _, doc := range docs {
		if !modelRun.Parallel {
			// Per-object sequence gate: an earlier document for the same
			// object must post first.
			earlier, err := d.datasource.HasLowerSequenceUnposted(ctx, doc.RequestID, doc.ModelName, doc.ObjectID, doc.Sequence)
			if err != nil {
				return err
			}
			if earlier {
				continue
			}
		}
		if err := d.postDocument(ctx, doc, modelRun); err != nil {
			logrus.Errorf("posting failed for document %s (%s/%s): %v", doc.DocumentID, doc.ModelName, doc.ObjectID, err)
		}
	}
	return nil
}

// postDocument converts a document into a scheduled task and archives the
// document in the same transaction. Duplicate task resources archive the
// document without creating anything.
func (d *Driftcap) postDocument(ctx context.Context, doc *model.ChangeDocument, modelRun *model.ModelRun) error {
	resourceID := model.TaskResourceID(doc.DocumentID, doc.RequestID)
	exists, err := d.datasource.TaskResourceExists(ctx, resourceID)
	if err != nil {
		return err
	}
	if exists {
		return d.datasource.ArchiveDocument(ctx, doc, model.StatusSuccess)
	}

	modelConfig, err := d.datasource.GetModelConfigByName(ctx, doc.TenantID, doc.ModelName)
	if err != nil {
		// A document whose model configuration is gone can never post. Mark
		// it FAIL so the dispatcher stops re-selecting it each cycle;
		// operators reset the status after restoring the configuration.
		if apierror.IsCode(err, apierror.ErrNotFound) || apierror.IsCode(err, apierror.ErrConfiguration) {
			if updateErr := d.datasource.UpdateDocumentStatus(ctx, doc.DocumentID, model.StatusFail); updateErr != nil {
				logrus.Errorf("failed to mark document %s FAIL: %v", doc.DocumentID, updateErr)
			}
		}
		return err
	}

	kind := model.TaskKindDirect
	if modelConfig.PipelineID != "" {
		kind = model.TaskKindPipeline
	}

	// Non-parallel models chain each task to every earlier task for the
	// same object, so the executor honors the ordering explicitly.
	var parentTaskIDs []string
	if !modelRun.Parallel && doc.Sequence > 1 {
		parentTaskIDs, err = d.datasource.GetTaskIDsForObjectBefore(ctx, doc.RequestID, doc.ModelName, doc.ObjectID, doc.Sequence)
		if err != nil {
			return err
		}
	}

	task := &model.ScheduledTask{
		TaskID:        model.GenerateUUIDWithSuffix("tsk"),
		ResourceID:    resourceID,
		RequestID:     doc.RequestID,
		TenantID:      doc.TenantID,
		ModelName:     doc.ModelName,
		ObjectID:      doc.ObjectID,
		Kind:          kind,
		TargetCode:    modelConfig.RawTarget,
		PipelineID:    modelConfig.PipelineID,
		Content:       doc.Content,
		ParentTaskIDs: parentTaskIDs,
		DependsOn:     doc.DependsOn,
		Sequence:      doc.Sequence,
		Status:        model.StatusInitial,
		CreatedAt:     time.Now(),
	}

	err = d.datasource.CreateTaskAndArchiveDocument(ctx, task, doc)
	if err != nil && apierror.IsCode(err, apierror.ErrConflict) {
		return d.datasource.ArchiveDocument(ctx, doc, model.StatusSuccess)
	}
	return err
}
