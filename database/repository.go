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

	"github.com/driftcap/driftcap/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	trigger       // Interface for trigger-request operations
	run           // Interface for module/model/table run operations
	record        // Interface for change-record operations
	document      // Interface for change-document operations
	task          // Interface for scheduled-task operations
	lockStore     // Interface for advisory-lock rows
	configuration // Interface for read-only configuration lookups
	source        // Interface for reads against the monitored source tables
}

// trigger defines methods for handling trigger requests.
type trigger interface {
	CreateTriggerRequest(ctx context.Context, req *model.TriggerRequest) error            // Records a new trigger request
	GetTriggerRequest(ctx context.Context, requestID string) (*model.TriggerRequest, error) // Retrieves a trigger request by id
	GetNextInitialTrigger(ctx context.Context, tenantID string) (*model.TriggerRequest, error) // Oldest INITIAL request, nil when none
	GetExecutingTrigger(ctx context.Context, tenantID string) (*model.TriggerRequest, error)   // Currently EXECUTING request, nil when none
	UpdateTriggerStatus(ctx context.Context, requestID, status string) error              // Updates the status of a trigger request
	MarkTriggerFinished(ctx context.Context, requestID, status string) error              // Flips finished and sets the terminal status
	GetTriggerCounts(ctx context.Context, requestID string) (*model.TriggerCounts, error) // Active row counts for the inspection surface
}

// run defines methods for handling the module/model/table run cascade.
type run interface {
	CreateCascade(ctx context.Context, modules []*model.ModuleRun, models []*model.ModelRun, tables []*model.TableRun, records []*model.ChangeRecord) error // Creates the full cascade in one transaction
	GetUnextractedTableRuns(ctx context.Context, tenantID string, limit int) ([]*model.TableRun, error)                                                    // Table runs awaiting extraction
	MarkTableRunExtracted(ctx context.Context, runID string, fetched int) error                                                                            // Flips extracted with the fetched count
	GetModuleRuns(ctx context.Context, requestID string) ([]*model.ModuleRun, error)                                                                       // Module runs for a request, priority ascending
	GetModelRuns(ctx context.Context, moduleRunID string) ([]*model.ModelRun, error)                                                                       // Model runs under a module run, priority ascending
	SettleFinishedFlags(ctx context.Context, requestID string) error                                                                                       // Propagates finished flags bottom-up
	AllModuleRunsFinished(ctx context.Context, requestID string) (bool, error)                                                                             // True when no unfinished module run remains
}

// record defines methods for handling change records.
type record interface {
	CreateChangeRecord(ctx context.Context, rec *model.ChangeRecord) error                              // Records a detected row change
	GetCapturedKeys(ctx context.Context, tableRunID string) ([]string, error)                           // Previously captured keys, active and history
	LockPendingRecords(ctx context.Context, tenantID string, limit int) ([]*model.ChangeRecord, error)  // Flips a batch of unmerged records to EXECUTING
	ArchiveChangeRecord(ctx context.Context, rec *model.ChangeRecord, status, result string) error      // Moves a record to history
	CountActiveRecords(ctx context.Context, requestID string) (int64, error)                           // Active records for a request
	CountActiveRecordsForModel(ctx context.Context, requestID, modelName string) (int64, error)        // Active records for one model
}

// document defines methods for handling change documents.
type document interface {
	DocumentResourceExists(ctx context.Context, resourceID string) (bool, error)                                  // Duplicate check against active and history
	NextDocumentSequence(ctx context.Context, requestID, modelName, objectID string) (int, error)                 // Next per-object sequence number
	CreateDocumentAndArchiveRecord(ctx context.Context, doc *model.ChangeDocument, rec *model.ChangeRecord) error // One atomic move: record -> document
	GetUnpostedDocuments(ctx context.Context, requestID, modelName string, limit int) ([]*model.ChangeDocument, error)
	HasLowerSequenceUnposted(ctx context.Context, requestID, modelName, objectID string, sequence int) (bool, error)
	UpdateDocumentStatus(ctx context.Context, documentID, status string) error
	ArchiveDocument(ctx context.Context, doc *model.ChangeDocument, status string) error // Moves a document to history without a task
	CountUnpostedDocuments(ctx context.Context, requestID string) (int64, error)
	CountUnpostedDocumentsForModel(ctx context.Context, requestID, modelName string) (int64, error)
}

// task defines methods for handling scheduled tasks.
type task interface {
	TaskResourceExists(ctx context.Context, resourceID string) (bool, error)                                   // Duplicate check against active and history
	CreateTaskAndArchiveDocument(ctx context.Context, t *model.ScheduledTask, doc *model.ChangeDocument) error // One atomic move: document -> task
	GetInitialTasks(ctx context.Context, tenantID string, limit int) ([]*model.ScheduledTask, error)
	GetActiveTask(ctx context.Context, taskID string) (*model.ScheduledTask, error) // nil when archived
	LockTask(ctx context.Context, taskID string) (bool, error)                      // INITIAL -> EXECUTING, false when lost
	RevertTask(ctx context.Context, taskID string) error                            // EXECUTING -> INITIAL
	GetTasksByDependency(ctx context.Context, requestID, modelName, objectID string) ([]*model.ScheduledTask, error)
	GetTaskIDsForObjectBefore(ctx context.Context, requestID, modelName, objectID string, sequence int) ([]string, error)
	ArchiveTask(ctx context.Context, t *model.ScheduledTask, status, result string) error // Moves a task to history with a terminal status
	CountActiveTasks(ctx context.Context, requestID string) (int64, error)
}

// lockStore defines the advisory-lock rows behind internal/lock.
type lockStore interface {
	InsertLock(ctx context.Context, lockID, resourceID, tenantID string, registeredAt time.Time) (bool, error) // false when the resource is held
	DeleteLock(ctx context.Context, resourceID string) error
	DeleteExpiredLocks(ctx context.Context, before time.Time) (int64, error)
	ReleaseStaleClaims(ctx context.Context, before time.Time) (int64, error)
}

// configuration defines read-only lookups of the administratively owned
// module/model/table definitions.
type configuration interface {
	GetModuleConfigs(ctx context.Context, tenantID string) ([]*model.ModuleConfig, error) // Ordered by priority
	GetModuleConfigByID(ctx context.Context, moduleID string) (*model.ModuleConfig, error)
	GetModelConfigs(ctx context.Context, moduleID string) ([]*model.ModelConfig, error) // Ordered by priority
	GetModelConfigByID(ctx context.Context, modelID string) (*model.ModelConfig, error)
	GetModelConfigByName(ctx context.Context, tenantID, name string) (*model.ModelConfig, error)
	GetTableConfigs(ctx context.Context, modelID string) ([]*model.TableConfig, error)
	GetTableConfig(ctx context.Context, tenantID, tableName string) (*model.TableConfig, error)
	GetChildTableConfigs(ctx context.Context, tenantID, modelName, parentName string) ([]*model.TableConfig, error)
}

// source defines reads against the monitored source tables.
type source interface {
	FetchChangedKeys(ctx context.Context, tc *model.TableConfig, start, end time.Time) ([]string, error)                   // Serialized primary keys changed in the window
	FetchSourceRows(ctx context.Context, tableName string, criteria map[string]interface{}) ([]map[string]interface{}, error) // Generic row fetch by equality criteria
}
