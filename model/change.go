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
package model

import "time"

// DependsOn is a cross-model reference carried by documents and tasks. The
// executor resolves it to the set of tasks for the same request whose model
// and object match, and waits for all of them to finish.
type DependsOn struct {
	ModelName string `json:"model_name"`
	ObjectID  string `json:"object_id"`
}

// ChangeRecord is one detected changed source row, keyed by its table run and
// delimited composite primary key. It is created by the extraction engine and
// consumed by the document assembler, which archives it to history as part of
// the same transaction that creates the document.
type ChangeRecord struct {
	RecordID   string    `json:"record_id"`
	RequestID  string    `json:"request_id"`
	TenantID   string    `json:"tenant_id"`
	TableRunID string    `json:"table_run_id"`
	TableName  string    `json:"table_name"`
	ModelName  string    `json:"model_name"`
	RecordKey  string    `json:"record_key"`
	Merged     bool      `json:"merged"`
	Status     string    `json:"status"`
	RootTable  string    `json:"root_table,omitempty"`
	RootKey    string    `json:"root_key,omitempty"`
	Result     string    `json:"result,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChangeDocument is one assembled root-entity document. ResourceID is the
// content-derived idempotency key; ObjectID is the serialized root primary
// key, used for per-object sequencing and cross-model dependency matching.
type ChangeDocument struct {
	DocumentID string                 `json:"document_id"`
	ResourceID string                 `json:"resource_id"`
	RequestID  string                 `json:"request_id"`
	TenantID   string                 `json:"tenant_id"`
	ModelName  string                 `json:"model_name"`
	ObjectID   string                 `json:"object_id"`
	RootTable  string                 `json:"root_table"`
	Content    map[string]interface{} `json:"content"`
	DependsOn  []DependsOn            `json:"depends_on,omitempty"`
	Sequence   int                    `json:"sequence"`
	Posted     bool                   `json:"posted"`
	Status     string                 `json:"status"`
	CreatedAt  time.Time              `json:"created_at"`
}

// TaskKind tags the invocation shape of a scheduled task. Direct tasks call
// the pipeline collaborator with (target, content, tenant); pipeline tasks
// additionally carry the pipeline id they execute under.
type TaskKind string

const (
	TaskKindDirect   TaskKind = "DIRECT"
	TaskKindPipeline TaskKind = "PIPELINE"
)

// ScheduledTask is the executable unit of work posted from a change document.
// ParentTaskIDs is the intra-model ordering chain (earlier sequences for the
// same object); DependsOn carries cross-model references. The executor
// archives the task with a terminal status instead of updating it in place.
type ScheduledTask struct {
	TaskID        string                 `json:"task_id"`
	ResourceID    string                 `json:"resource_id"`
	RequestID     string                 `json:"request_id"`
	TenantID      string                 `json:"tenant_id"`
	ModelName     string                 `json:"model_name"`
	ObjectID      string                 `json:"object_id"`
	Kind          TaskKind               `json:"kind"`
	TargetCode    string                 `json:"target_code"`
	PipelineID    string                 `json:"pipeline_id,omitempty"`
	Content       map[string]interface{} `json:"content"`
	ParentTaskIDs []string               `json:"parent_task_ids,omitempty"`
	DependsOn     []DependsOn            `json:"depends_on,omitempty"`
	Sequence      int                    `json:"sequence"`
	Finished      bool                   `json:"finished"`
	Status        string                 `json:"status"`
	Result        string                 `json:"result,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}
