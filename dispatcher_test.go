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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/driftcap/driftcap/internal/apierror"
	"github.com/driftcap/driftcap/model"
)

func executingRequest() *model.TriggerRequest {
	return &model.TriggerRequest{
		RequestID: "req_1",
		TenantID:  "tenant-1",
		Kind:      model.KindWindow,
		Status:    model.StatusExecuting,
	}
}

func unpostedDocument(objectID string, sequence int) *model.ChangeDocument {
	return &model.ChangeDocument{
		DocumentID: model.GenerateUUIDWithSuffix("doc"),
		ResourceID: objectID + ",orders,order,req_1",
		RequestID:  "req_1",
		TenantID:   "tenant-1",
		ModelName:  "order",
		ObjectID:   objectID,
		RootTable:  "orders",
		Content:    map[string]interface{}{"id": objectID},
		Sequence:   sequence,
		Status:     model.StatusInitial,
		CreatedAt:  time.Now(),
	}
}

func TestDispatchDocuments_ModulePriorityGate(t *testing.T) {
	d, datasource, _ := newTestDriftcap(t)

	datasource.On("GetExecutingTrigger", mock.Anything, "tenant-1").Return(executingRequest(), nil)
	datasource.On("GetModuleRuns", mock.Anything, "req_1").Return([]*model.ModuleRun{
		{RunID: "mod_1", RequestID: "req_1", TenantID: "tenant-1", ModuleName: "risk", Priority: 0, Finished: false},
		{RunID: "mod_2", RequestID: "req_1", TenantID: "tenant-1", ModuleName: "billing", Priority: 1, Finished: false},
	}, nil)
	// Priority 0 dispatches; priority 1 is blocked behind it.
	datasource.On("GetModelRuns", mock.Anything, "mod_1").Return([]*model.ModelRun{}, nil)

	err := d.DispatchDocuments(context.Background())
	assert.NoError(t, err)
	datasource.AssertNotCalled(t, "GetModelRuns", mock.Anything, "mod_2")
}

func TestDispatchDocuments_PostsDocumentAsTask(t *testing.T) {
	d, datasource, _ := newTestDriftcap(t)
	doc := unpostedDocument("42", 1)

	datasource.On("GetExecutingTrigger", mock.Anything, "tenant-1").Return(executingRequest(), nil)
	datasource.On("GetModuleRuns", mock.Anything, "req_1").Return([]*model.ModuleRun{
		{RunID: "mod_1", RequestID: "req_1", TenantID: "tenant-1", ModuleName: "risk", Priority: 0, Finished: false},
	}, nil)
	datasource.On("GetModelRuns", mock.Anything, "mod_1").Return([]*model.ModelRun{
		{RunID: "mdl_1", ModuleRunID: "mod_1", RequestID: "req_1", TenantID: "tenant-1", ModelName: "order", Priority: 0, Parallel: true},
	}, nil)
	datasource.On("GetUnpostedDocuments", mock.Anything, "req_1", "order", 100).Return([]*model.ChangeDocument{doc}, nil)
	datasource.On("TaskResourceExists", mock.Anything, model.TaskResourceID(doc.DocumentID, "req_1")).Return(false, nil)
	datasource.On("GetModelConfigByName", mock.Anything, "tenant-1", "order").Return(&model.ModelConfig{
		ModelID: "model_order", TenantID: "tenant-1", Name: "order", Parallel: true, RawTarget: "order-sync",
	}, nil)

	datasource.On("CreateTaskAndArchiveDocument", mock.Anything, mock.MatchedBy(func(task *model.ScheduledTask) bool {
		return task.Kind == model.TaskKindDirect &&
			task.TargetCode == "order-sync" &&
			task.ObjectID == "42" &&
			len(task.ParentTaskIDs) == 0
	}), doc).Return(nil)

	err := d.DispatchDocuments(context.Background())
	assert.NoError(t, err)
	datasource.AssertExpectations(t)
}

func TestDispatchDocuments_MissingModelConfigFailsDocument(t *testing.T) {
	d, datasource, _ := newTestDriftcap(t)
	doc := unpostedDocument("42", 1)

	datasource.On("GetExecutingTrigger", mock.Anything, "tenant-1").Return(executingRequest(), nil)
	datasource.On("GetModuleRuns", mock.Anything, "req_1").Return([]*model.ModuleRun{
		{RunID: "mod_1", RequestID: "req_1", TenantID: "tenant-1", ModuleName: "risk", Priority: 0, Finished: false},
	}, nil)
	datasource.On("GetModelRuns", mock.Anything, "mod_1").Return([]*model.ModelRun{
		{RunID: "mdl_1", ModuleRunID: "mod_1", RequestID: "req_1", TenantID: "tenant-1", ModelName: "order", Priority: 0, Parallel: true},
	}, nil)
	datasource.On("GetUnpostedDocuments", mock.Anything, "req_1", "order", 100).Return([]*model.ChangeDocument{doc}, nil)
	datasource.On("TaskResourceExists", mock.Anything, model.TaskResourceID(doc.DocumentID, "req_1")).Return(false, nil)
	datasource.On("GetModelConfigByName", mock.Anything, "tenant-1", "order").
		Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "Model config 'order' not found", nil))
	datasource.On("UpdateDocumentStatus", mock.Anything, doc.DocumentID, model.StatusFail).Return(nil)

	err := d.DispatchDocuments(context.Background())
	assert.NoError(t, err)
	datasource.AssertCalled(t, "UpdateDocumentStatus", mock.Anything, doc.DocumentID, model.StatusFail)
	datasource.AssertNotCalled(t, "CreateTaskAndArchiveDocument", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatchDocuments_SequenceChainForNonParallelModel(t *testing.T) {
	d, datasource, _ := newTestDriftcap(t)
	doc := unpostedDocument("42", 2)

	datasource.On("GetExecutingTrigger", mock.Anything, "tenant-1").Return(executingRequest(), nil)
	datasource.On("GetModuleRuns", mock.Anything, "req_1").Return([]*model.ModuleRun{
		{RunID: "mod_1", RequestID: "req_1", TenantID: "tenant-1", ModuleName: "risk", Priority: 0},
	}, nil)
	datasource.On("GetModelRuns", mock.Anything, "mod_1").Return([]*model.ModelRun{
		{RunID: "mdl_1", ModuleRunID: "mod_1", RequestID: "req_1", TenantID: "tenant-1", ModelName: "order", Priority: 0, Parallel: false},
	}, nil)
	datasource.On("GetUnpostedDocuments", mock.Anything, "req_1", "order", 100).Return([]*model.ChangeDocument{doc}, nil)
	datasource.On("HasLowerSequenceUnposted", mock.Anything, "req_1", "order", "42", 2).Return(false, nil)
	datasource.On("TaskResourceExists", mock.Anything, model.TaskResourceID(doc.DocumentID, "req_1")).Return(false, nil)
	datasource.On("GetModelConfigByName", mock.Anything, "tenant-1", "order").Return(&model.ModelConfig{
		ModelID: "model_order", TenantID: "tenant-1", Name: "order", Parallel: false, RawTarget: "order-sync", PipelineID: "pipe_9",
	}, nil)
	datasource.On("GetTaskIDsForObjectBefore", mock.Anything, "req_1", "order", "42", 2).Return([]string{"tsk_a"}, nil)

	// The second document's task chains to the first document's task and
	// inherits the pipeline shape.
	datasource.On("CreateTaskAndArchiveDocument", mock.Anything, mock.MatchedBy(func(task *model.ScheduledTask) bool {
		return task.Kind == model.TaskKindPipeline &&
			task.PipelineID == "pipe_9" &&
			len(task.ParentTaskIDs) == 1 && task.ParentTaskIDs[0] == "tsk_a"
	}), doc).Return(nil)

	err := d.DispatchDocuments(context.Background())
	assert.NoError(t, err)
	datasource.AssertExpectations(t)
}

func TestDispatchDocuments_SequenceGateHoldsDocument(t *testing.T) {
	d, datasource, _ := newTestDriftcap(t)
	doc := unpostedDocument("42", 2)

	datasource.On("GetExecutingTrigger", mock.Anything, "tenant-1").Return(executingRequest(), nil)
	datasource.On("GetModuleRuns", mock.Anything, "req_1").Return([]*model.ModuleRun{
		{RunID: "mod_1", RequestID: "req_1", TenantID: "tenant-1", ModuleName: "risk", Priority: 0},
	}, nil)
	datasource.On("GetModelRuns", mock.Anything, "mod_1").Return([]*model.ModelRun{
		{RunID: "mdl_1", ModuleRunID: "mod_1", RequestID: "req_1", TenantID: "tenant-1", ModelName: "order", Priority: 0, Parallel: false},
	}, nil)
	datasource.On("GetUnpostedDocuments", mock.Anything, "req_1", "order", 100).Return([]*model.ChangeDocument{doc}, nil)
	datasource.On("HasLowerSequenceUnposted", mock.Anything, "req_1", "order", "42", 2).Return(true, nil)

	err := d.DispatchDocuments(context.Background())
	assert.NoError(t, err)
	datasource.AssertNotCalled(t, "CreateTaskAndArchiveDocument", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatchDocuments_DuplicateTaskArchivesDocument(t *testing.T) {
	d, datasource, _ := newTestDriftcap(t)
	doc := unpostedDocument("42", 1)

	datasource.On("GetExecutingTrigger", mock.Anything, "tenant-1").Return(executingRequest(), nil)
	datasource.On("GetModuleRuns", mock.Anything, "req_1").Return([]*model.ModuleRun{
		{RunID: "mod_1", RequestID: "req_1", TenantID: "tenant-1", ModuleName: "risk", Priority: 0},
	}, nil)
	datasource.On("GetModelRuns", mock.Anything, "mod_1").Return([]*model.ModelRun{
		{RunID: "mdl_1", ModuleRunID: "mod_1", RequestID: "req_1", TenantID: "tenant-1", ModelName: "order", Priority: 0, Parallel: true},
	}, nil)
	datasource.On("GetUnpostedDocuments", mock.Anything, "req_1", "order", 100).Return([]*model.ChangeDocument{doc}, nil)
	datasource.On("TaskResourceExists", mock.Anything, model.TaskResourceID(doc.DocumentID, "req_1")).Return(true, nil)
	datasource.On("ArchiveDocument", mock.Anything, doc, model.StatusSuccess).Return(nil)

	err := d.DispatchDocuments(context.Background())
	assert.NoError(t, err)
	datasource.AssertNotCalled(t, "CreateTaskAndArchiveDocument", mock.Anything, mock.Anything, mock.Anything)
	datasource.AssertExpectations(t)
}
