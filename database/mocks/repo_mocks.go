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
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/driftcap/driftcap/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Trigger methods

func (m *MockDataSource) CreateTriggerRequest(ctx context.Context, req *model.TriggerRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockDataSource) GetTriggerRequest(ctx context.Context, requestID string) (*model.TriggerRequest, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TriggerRequest), args.Error(1)
}

func (m *MockDataSource) GetNextInitialTrigger(ctx context.Context, tenantID string) (*model.TriggerRequest, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TriggerRequest), args.Error(1)
}

func (m *MockDataSource) GetExecutingTrigger(ctx context.Context, tenantID string) (*model.TriggerRequest, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TriggerRequest), args.Error(1)
}

func (m *MockDataSource) UpdateTriggerStatus(ctx context.Context, requestID, status string) error {
	args := m.Called(ctx, requestID, status)
	return args.Error(0)
}

func (m *MockDataSource) MarkTriggerFinished(ctx context.Context, requestID, status string) error {
	args := m.Called(ctx, requestID, status)
	return args.Error(0)
}

func (m *MockDataSource) GetTriggerCounts(ctx context.Context, requestID string) (*model.TriggerCounts, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TriggerCounts), args.Error(1)
}

// Run methods

func (m *MockDataSource) CreateCascade(ctx context.Context, modules []*model.ModuleRun, models []*model.ModelRun, tables []*model.TableRun, records []*model.ChangeRecord) error {
	args := m.Called(ctx, modules, models, tables, records)
	return args.Error(0)
}

func (m *MockDataSource) GetUnextractedTableRuns(ctx context.Context, tenantID string, limit int) ([]*model.TableRun, error) {
	args := m.Called(ctx, tenantID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.TableRun), args.Error(1)
}

func (m *MockDataSource) MarkTableRunExtracted(ctx context.Context, runID string, fetched int) error {
	args := m.Called(ctx, runID, fetched)
	return args.Error(0)
}

func (m *MockDataSource) GetModuleRuns(ctx context.Context, requestID string) ([]*model.ModuleRun, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ModuleRun), args.Error(1)
}

func (m *MockDataSource) GetModelRuns(ctx context.Context, moduleRunID string) ([]*model.ModelRun, error) {
	args := m.Called(ctx, moduleRunID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ModelRun), args.Error(1)
}

func (m *MockDataSource) SettleFinishedFlags(ctx context.Context, requestID string) error {
	args := m.Called(ctx, requestID)
	return args.Error(0)
}

func (m *MockDataSource) AllModuleRunsFinished(ctx context.Context, requestID string) (bool, error) {
	args := m.Called(ctx, requestID)
	return args.Bool(0), args.Error(1)
}

// Change record methods

func (m *MockDataSource) CreateChangeRecord(ctx context.Context, rec *model.ChangeRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockDataSource) GetCapturedKeys(ctx context.Context, tableRunID string) ([]string, error) {
	args := m.Called(ctx, tableRunID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockDataSource) LockPendingRecords(ctx context.Context, tenantID string, limit int) ([]*model.ChangeRecord, error) {
	args := m.Called(ctx, tenantID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ChangeRecord), args.Error(1)
}

func (m *MockDataSource) ArchiveChangeRecord(ctx context.Context, rec *model.ChangeRecord, status, result string) error {
	args := m.Called(ctx, rec, status, result)
	return args.Error(0)
}

func (m *MockDataSource) CountActiveRecords(ctx context.Context, requestID string) (int64, error) {
	args := m.Called(ctx, requestID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) CountActiveRecordsForModel(ctx context.Context, requestID, modelName string) (int64, error) {
	args := m.Called(ctx, requestID, modelName)
	return args.Get(0).(int64), args.Error(1)
}

// Document methods

func (m *MockDataSource) DocumentResourceExists(ctx context.Context, resourceID string) (bool, error) {
	args := m.Called(ctx, resourceID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) NextDocumentSequence(ctx context.Context, requestID, modelName, objectID string) (int, error) {
	args := m.Called(ctx, requestID, modelName, objectID)
	return args.Int(0), args.Error(1)
}

func (m *MockDataSource) CreateDocumentAndArchiveRecord(ctx context.Context, doc *model.ChangeDocument, rec *model.ChangeRecord) error {
	args := m.Called(ctx, doc, rec)
	return args.Error(0)
}

func (m *MockDataSource) GetUnpostedDocuments(ctx context.Context, requestID, modelName string, limit int) ([]*model.ChangeDocument, error) {
	args := m.Called(ctx, requestID, modelName, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ChangeDocument), args.Error(1)
}

func (m *MockDataSource) HasLowerSequenceUnposted(ctx context.Context, requestID, modelName, objectID string, sequence int) (bool, error) {
	args := m.Called(ctx, requestID, modelName, objectID, sequence)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) UpdateDocumentStatus(ctx context.Context, documentID, status string) error {
	args := m.Called(ctx, documentID, status)
	return args.Error(0)
}

func (m *MockDataSource) ArchiveDocument(ctx context.Context, doc *model.ChangeDocument, status string) error {
	args := m.Called(ctx, doc, status)
	return args.Error(0)
}

func (m *MockDataSource) CountUnpostedDocuments(ctx context.Context, requestID string) (int64, error) {
	args := m.Called(ctx, requestID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) CountUnpostedDocumentsForModel(ctx context.Context, requestID, modelName string) (int64, error) {
	args := m.Called(ctx, requestID, modelName)
	return args.Get(0).(int64), args.Error(1)
}

// Task methods

func (m *MockDataSource) TaskResourceExists(ctx context.Context, resourceID string) (bool, error) {
	args := m.Called(ctx, resourceID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) CreateTaskAndArchiveDocument(ctx context.Context, t *model.ScheduledTask, doc *model.ChangeDocument) error {
	args := m.Called(ctx, t, doc)
	return args.Error(0)
}

func (m *MockDataSource) GetInitialTasks(ctx context.Context, tenantID string, limit int) ([]*model.ScheduledTask, error) {
	args := m.Called(ctx, tenantID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ScheduledTask), args.Error(1)
}

func (m *MockDataSource) GetActiveTask(ctx context.Context, taskID string) (*model.ScheduledTask, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ScheduledTask), args.Error(1)
}

func (m *MockDataSource) LockTask(ctx context.Context, taskID string) (bool, error) {
	args := m.Called(ctx, taskID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) RevertTask(ctx context.Context, taskID string) error {
	args := m.Called(ctx, taskID)
	return args.Error(0)
}

func (m *MockDataSource) GetTasksByDependency(ctx context.Context, requestID, modelName, objectID string) ([]*model.ScheduledTask, error) {
	args := m.Called(ctx, requestID, modelName, objectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ScheduledTask), args.Error(1)
}

func (m *MockDataSource) GetTaskIDsForObjectBefore(ctx context.Context, requestID, modelName, objectID string, sequence int) ([]string, error) {
	args := m.Called(ctx, requestID, modelName, objectID, sequence)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockDataSource) ArchiveTask(ctx context.Context, t *model.ScheduledTask, status, result string) error {
	args := m.Called(ctx, t, status, result)
	return args.Error(0)
}

func (m *MockDataSource) CountActiveTasks(ctx context.Context, requestID string) (int64, error) {
	args := m.Called(ctx, requestID)
	return args.Get(0).(int64), args.Error(1)
}

// Lock methods

func (m *MockDataSource) InsertLock(ctx context.Context, lockID, resourceID, tenantID string, registeredAt time.Time) (bool, error) {
	args := m.Called(ctx, lockID, resourceID, tenantID, registeredAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) DeleteLock(ctx context.Context, resourceID string) error {
	args := m.Called(ctx, resourceID)
	return args.Error(0)
}

func (m *MockDataSource) DeleteExpiredLocks(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) ReleaseStaleClaims(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

// Configuration methods

func (m *MockDataSource) GetModuleConfigs(ctx context.Context, tenantID string) ([]*model.ModuleConfig, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ModuleConfig), args.Error(1)
}

func (m *MockDataSource) GetModuleConfigByID(ctx context.Context, moduleID string) (*model.ModuleConfig, error) {
	args := m.Called(ctx, moduleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ModuleConfig), args.Error(1)
}

func (m *MockDataSource) GetModelConfigs(ctx context.Context, moduleID string) ([]*model.ModelConfig, error) {
	args := m.Called(ctx, moduleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ModelConfig), args.Error(1)
}

func (m *MockDataSource) GetModelConfigByID(ctx context.Context, modelID string) (*model.ModelConfig, error) {
	args := m.Called(ctx, modelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ModelConfig), args.Error(1)
}

func (m *MockDataSource) GetModelConfigByName(ctx context.Context, tenantID, name string) (*model.ModelConfig, error) {
	args := m.Called(ctx, tenantID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ModelConfig), args.Error(1)
}

func (m *MockDataSource) GetTableConfigs(ctx context.Context, modelID string) ([]*model.TableConfig, error) {
	args := m.Called(ctx, modelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.TableConfig), args.Error(1)
}

func (m *MockDataSource) GetTableConfig(ctx context.Context, tenantID, tableName string) (*model.TableConfig, error) {
	args := m.Called(ctx, tenantID, tableName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TableConfig), args.Error(1)
}

func (m *MockDataSource) GetChildTableConfigs(ctx context.Context, tenantID, modelName, parentName string) ([]*model.TableConfig, error) {
	args := m.Called(ctx, tenantID, modelName, parentName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.TableConfig), args.Error(1)
}

// Source methods

func (m *MockDataSource) FetchChangedKeys(ctx context.Context, tc *model.TableConfig, start, end time.Time) ([]string, error) {
	args := m.Called(ctx, tc, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockDataSource) FetchSourceRows(ctx context.Context, tableName string, criteria map[string]interface{}) ([]map[string]interface{}, error) {
	args := m.Called(ctx, tableName, criteria)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]map[string]interface{}), args.Error(1)
}
