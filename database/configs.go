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
	"time"

	"github.com/sirupsen/logrus"

	"github.com/driftcap/driftcap/internal/apierror"
	"github.com/driftcap/driftcap/model"
)

const configCacheTTL = 5 * time.Minute

// GetModuleConfigs returns a tenant's modules ordered by priority. Configs
// change rarely, so lookups go through the cache when one is attached.
func (d Datasource) GetModuleConfigs(ctx context.Context, tenantID string) ([]*model.ModuleConfig, error) {
	cacheKey := fmt.Sprintf("driftcap:module-configs:%s", tenantID)
	if d.Cache != nil {
		var cached []*model.ModuleConfig
		if err := d.Cache.Get(ctx, cacheKey, &cached); err == nil && len(cached) > 0 {
			return cached, nil
		}
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT module_id, tenant_id, name, priority
		FROM module_configs
		WHERE tenant_id = $1
		ORDER BY priority ASC, name ASC
	`, tenantID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve module configs", err)
	}
	defer rows.Close()

	var configs []*model.ModuleConfig
	for rows.Next() {
		mc := &model.ModuleConfig{}
		if err := rows.Scan(&mc.ModuleID, &mc.TenantID, &mc.Name, &mc.Priority); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan module config", err)
		}
		configs = append(configs, mc)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over module configs", err)
	}

	if d.Cache != nil && len(configs) > 0 {
		if err := d.Cache.Set(ctx, cacheKey, configs, configCacheTTL); err != nil {
			logrus.Warnf("failed to cache module configs for tenant %s: %v", tenantID, err)
		}
	}
	return configs, nil
}

func (d Datasource) GetModuleConfigByID(ctx context.Context, moduleID string) (*model.ModuleConfig, error) {
	mc := &model.ModuleConfig{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT module_id, tenant_id, name, priority FROM module_configs WHERE module_id = $1
	`, moduleID).Scan(&mc.ModuleID, &mc.TenantID, &mc.Name, &mc.Priority)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Module config with ID '%s' not found", moduleID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve module config", err)
	}
	return mc, nil
}

func (d Datasource) GetModelConfigs(ctx context.Context, moduleID string) ([]*model.ModelConfig, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT model_id, module_id, tenant_id, name, priority, parallel, depend_on, raw_target, pipeline_id
		FROM model_configs
		WHERE module_id = $1
		ORDER BY priority ASC, name ASC
	`, moduleID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve model configs", err)
	}
	defer rows.Close()

	var configs []*model.ModelConfig
	for rows.Next() {
		mc, err := scanModelConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, mc)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over model configs", err)
	}
	return configs, nil
}

func (d Datasource) GetModelConfigByID(ctx context.Context, modelID string) (*model.ModelConfig, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT model_id, module_id, tenant_id, name, priority, parallel, depend_on, raw_target, pipeline_id
		FROM model_configs WHERE model_id = $1
	`, modelID)
	mc, err := scanModelConfig(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Model config with ID '%s' not found", modelID), err)
		}
		return nil, err
	}
	return mc, nil
}

func (d Datasource) GetModelConfigByName(ctx context.Context, tenantID, name string) (*model.ModelConfig, error) {
	cacheKey := fmt.Sprintf("driftcap:model-config:%s:%s", tenantID, name)
	if d.Cache != nil {
		cached := &model.ModelConfig{}
		if err := d.Cache.Get(ctx, cacheKey, cached); err == nil && cached.ModelID != "" {
			return cached, nil
		}
	}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT model_id, module_id, tenant_id, name, priority, parallel, depend_on, raw_target, pipeline_id
		FROM model_configs WHERE tenant_id = $1 AND name = $2
	`, tenantID, name)
	mc, err := scanModelConfig(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Model config '%s' not found", name), err)
		}
		return nil, err
	}

	if d.Cache != nil {
		if err := d.Cache.Set(ctx, cacheKey, mc, configCacheTTL); err != nil {
			logrus.Warnf("failed to cache model config %s: %v", name, err)
		}
	}
	return mc, nil
}

func (d Datasource) GetTableConfigs(ctx context.Context, modelID string) ([]*model.TableConfig, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT table_id, tenant_id, model_id, model_name, table_name, primary_key, parent_name, join_keys, depend_on, audit_column, conditions, ignore_paths, flatten_paths, json_paths
		FROM table_configs
		WHERE model_id = $1
		ORDER BY table_name ASC
	`, modelID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve table configs", err)
	}
	defer rows.Close()
	return collectTableConfigs(rows)
}

// GetTableConfig resolves a table by name within a tenant. Cached because the
// assembler resolves the same tables on every cycle.
func (d Datasource) GetTableConfig(ctx context.Context, tenantID, tableName string) (*model.TableConfig, error) {
	cacheKey := fmt.Sprintf("driftcap:table-config:%s:%s", tenantID, tableName)
	if d.Cache != nil {
		cached := &model.TableConfig{}
		if err := d.Cache.Get(ctx, cacheKey, cached); err == nil && cached.TableID != "" {
			return cached, nil
		}
	}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT table_id, tenant_id, model_id, model_name, table_name, primary_key, parent_name, join_keys, depend_on, audit_column, conditions, ignore_paths, flatten_paths, json_paths
		FROM table_configs WHERE tenant_id = $1 AND table_name = $2
	`, tenantID, tableName)
	tc, err := scanTableConfig(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Table config '%s' not found", tableName), err)
		}
		return nil, err
	}

	if d.Cache != nil {
		if err := d.Cache.Set(ctx, cacheKey, tc, configCacheTTL); err != nil {
			logrus.Warnf("failed to cache table config %s: %v", tableName, err)
		}
	}
	return tc, nil
}

// GetChildTableConfigs lists tables whose parent is the given table, within
// the same model.
func (d Datasource) GetChildTableConfigs(ctx context.Context, tenantID, modelName, parentName string) ([]*model.TableConfig, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT table_id, tenant_id, model_id, model_name, table_name, primary_key, parent_name, join_keys, depend_on, audit_column, conditions, ignore_paths, flatten_paths, json_paths
		FROM table_configs
		WHERE tenant_id = $1 AND model_name = $2 AND parent_name = $3
		ORDER BY table_name ASC
	`, tenantID, modelName, parentName)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve child table configs", err)
	}
	defer rows.Close()
	return collectTableConfigs(rows)
}

func collectTableConfigs(rows *sql.Rows) ([]*model.TableConfig, error) {
	var configs []*model.TableConfig
	for rows.Next() {
		tc, err := scanTableConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over table configs", err)
	}
	return configs, nil
}

func scanModelConfig(row rowScanner) (*model.ModelConfig, error) {
	mc := &model.ModelConfig{}
	var dependOnJSON []byte
	var pipelineID sql.NullString
	err := row.Scan(&mc.ModelID, &mc.ModuleID, &mc.TenantID, &mc.Name, &mc.Priority, &mc.Parallel, &dependOnJSON, &mc.RawTarget, &pipelineID)
	if err != nil {
		return nil, err
	}
	mc.PipelineID = pipelineID.String
	if len(dependOnJSON) > 0 {
		if err := json.Unmarshal(dependOnJSON, &mc.DependOn); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal model dependencies", err)
		}
	}
	return mc, nil
}

func scanTableConfig(row rowScanner) (*model.TableConfig, error) {
	tc := &model.TableConfig{}
	var primaryKeyJSON, joinKeysJSON, dependOnJSON, conditionsJSON, ignoreJSON, flattenJSON, jsonPathsJSON []byte
	var parentName, auditColumn sql.NullString
	err := row.Scan(&tc.TableID, &tc.TenantID, &tc.ModelID, &tc.ModelName, &tc.TableName, &primaryKeyJSON, &parentName, &joinKeysJSON, &dependOnJSON, &auditColumn, &conditionsJSON, &ignoreJSON, &flattenJSON, &jsonPathsJSON)
	if err != nil {
		return nil, err
	}
	tc.ParentName = parentName.String
	tc.AuditColumn = auditColumn.String

	for _, field := range []struct {
		raw  []byte
		dest interface{}
	}{
		{primaryKeyJSON, &tc.PrimaryKey},
		{joinKeysJSON, &tc.JoinKeys},
		{dependOnJSON, &tc.DependOn},
		{conditionsJSON, &tc.Conditions},
		{ignoreJSON, &tc.IgnorePaths},
		{flattenJSON, &tc.FlattenPaths},
		{jsonPathsJSON, &tc.JSONPaths},
	} {
		if len(field.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(field.raw, field.dest); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal table config field", err)
		}
	}
	return tc, nil
}
