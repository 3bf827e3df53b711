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

// ModuleConfig is an administratively managed module definition. The core
// reads these; it never writes them.
type ModuleConfig struct {
	ModuleID string `json:"module_id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Priority int    `json:"priority"`
}

// ModelConfig is a model definition under a module. RawTarget is the code the
// pipeline collaborator executes for documents of this model; a non-empty
// PipelineID scopes execution to that pipeline and switches the task kind.
type ModelConfig struct {
	ModelID    string   `json:"model_id"`
	ModuleID   string   `json:"module_id"`
	TenantID   string   `json:"tenant_id"`
	Name       string   `json:"name"`
	Priority   int      `json:"priority"`
	Parallel   bool     `json:"parallel"`
	DependOn   []string `json:"depend_on,omitempty"`
	RawTarget  string   `json:"raw_target"`
	PipelineID string   `json:"pipeline_id,omitempty"`
}

// JoinKey maps a parent column to the child column that references it.
type JoinKey struct {
	Parent string `json:"parent"`
	Child  string `json:"child"`
}

// TableDependency declares that documents rooted at this table depend on
// another model's object. ObjectKey names the root-row column whose value
// identifies the foreign object.
type TableDependency struct {
	ModelName string `json:"model_name"`
	ObjectKey string `json:"object_key"`
}

// Condition is an extra filter applied when fetching changed rows. Value may
// reference the request-scoped variables {start_time} and {end_time}, which
// are substituted at query-build time; values that parse as datetimes are
// coerced before binding.
type Condition struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// TableConfig is a source-table definition under a model. ParentName and
// JoinKeys describe the configured entity tree walked by the assembler;
// an empty ParentName marks the root.
type TableConfig struct {
	TableID      string            `json:"table_id"`
	TenantID     string            `json:"tenant_id"`
	ModelID      string            `json:"model_id"`
	ModelName    string            `json:"model_name"`
	TableName    string            `json:"table_name"`
	PrimaryKey   []string          `json:"primary_key"`
	ParentName   string            `json:"parent_name,omitempty"`
	JoinKeys     []JoinKey         `json:"join_keys,omitempty"`
	DependOn     []TableDependency `json:"depend_on,omitempty"`
	AuditColumn  string            `json:"audit_column"`
	Conditions   []Condition       `json:"conditions,omitempty"`
	IgnorePaths  []string          `json:"ignore_paths,omitempty"`
	FlattenPaths []string          `json:"flatten_paths,omitempty"`
	JSONPaths    []string          `json:"json_paths,omitempty"`
}

// IsRoot reports whether this table is the top of its configured entity tree.
func (t *TableConfig) IsRoot() bool {
	return t.ParentName == ""
}
