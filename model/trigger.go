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

// TriggerKind selects how a trigger request is expanded into a cascade.
type TriggerKind string

const (
	// KindWindow captures every configured table over a [start,end) window.
	KindWindow TriggerKind = "WINDOW"
	// KindSingleTable captures one named table over the window.
	KindSingleTable TriggerKind = "SINGLE_TABLE"
	// KindExplicitRecords skips extraction entirely; the caller supplies the
	// changed primary keys for one named table.
	KindExplicitRecords TriggerKind = "EXPLICIT_RECORDS"
)

// TriggerRequest is the top-level unit of capture work. It is created once by
// the submission surface with status INITIAL and only ever mutated by the
// completion monitor.
type TriggerRequest struct {
	ID        int64       `json:"-"`
	RequestID string      `json:"request_id"`
	TenantID  string      `json:"tenant_id"`
	Kind      TriggerKind `json:"kind"`
	StartTime time.Time   `json:"start_time"`
	EndTime   time.Time   `json:"end_time"`
	TableName string      `json:"table_name,omitempty"`
	Records   [][]string  `json:"records,omitempty"`
	Finished  bool        `json:"finished"`
	Status    string      `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}

// ModuleRun is one configured module instantiated for a trigger request.
// Finished flips false->true once, when every model run under it is finished.
type ModuleRun struct {
	RunID      string    `json:"run_id"`
	RequestID  string    `json:"request_id"`
	TenantID   string    `json:"tenant_id"`
	ModuleName string    `json:"module_name"`
	Priority   int       `json:"priority"`
	Finished   bool      `json:"finished"`
	CreatedAt  time.Time `json:"created_at"`
}

// ModelRun is one configured model instantiated under a module run. Parallel
// is carried from configuration; non-parallel models post their documents in
// strict per-object sequence order.
type ModelRun struct {
	RunID       string    `json:"run_id"`
	ModuleRunID string    `json:"module_run_id"`
	RequestID   string    `json:"request_id"`
	TenantID    string    `json:"tenant_id"`
	ModelName   string    `json:"model_name"`
	Priority    int       `json:"priority"`
	Parallel    bool      `json:"parallel"`
	Finished    bool      `json:"finished"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableRun is one configured source table instantiated under a model run.
// Extracted flips once when the extraction engine has captured the table's
// window; Finished flips once when every captured record has been merged.
type TableRun struct {
	RunID        string    `json:"run_id"`
	ModelRunID   string    `json:"model_run_id"`
	RequestID    string    `json:"request_id"`
	TenantID     string    `json:"tenant_id"`
	ModelName    string    `json:"model_name"`
	TableName    string    `json:"table_name"`
	Extracted    bool      `json:"extracted"`
	FetchedCount int       `json:"fetched_count"`
	Finished     bool      `json:"finished"`
	CreatedAt    time.Time `json:"created_at"`
}

// TriggerCounts is the read-only inspection view of a request's in-flight
// state: how many active rows still reference it at each stage.
type TriggerCounts struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Finished  bool   `json:"finished"`
	Records   int64  `json:"change_records"`
	Documents int64  `json:"change_documents"`
	Tasks     int64  `json:"scheduled_tasks"`
}
