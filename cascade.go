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
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/driftcap/driftcap/internal/apierror"
	"github.com/driftcap/driftcap/model"
)

// SubmitTrigger validates and records a new trigger request with status
// INITIAL. The request is not expanded here; the completion monitor starts it
// once no other request for the tenant is executing.
func (d *Driftcap) SubmitTrigger(ctx context.Context, req *model.TriggerRequest) (*model.TriggerRequest, error) {
	if req.RequestID == "" {
		req.RequestID = model.GenerateUUIDWithSuffix("req")
	}
	if req.TenantID == "" {
		req.TenantID = d.tenantID
	}
	req.Status = model.StatusInitial
	req.Finished = false
	req.CreatedAt = time.Now()

	if err := validateTrigger(req); err != nil {
		return nil, err
	}
	if err := d.datasource.CreateTriggerRequest(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// GetTrigger returns a trigger request by id.
func (d *Driftcap) GetTrigger(ctx context.Context, requestID string) (*model.TriggerRequest, error) {
	return d.datasource.GetTriggerRequest(ctx, requestID)
}

// GetTriggerCounts returns the read-only inspection view of a request: its
// status plus the number of active records, documents and tasks still
// referencing it.
func (d *Driftcap) GetTriggerCounts(ctx context.Context, requestID string) (*model.TriggerCounts, error) {
	return d.datasource.GetTriggerCounts(ctx, requestID)
}

func validateTrigger(req *model.TriggerRequest) error {
	switch req.Kind {
	case model.KindWindow:
		if req.StartTime.IsZero() || req.EndTime.IsZero() {
			return apierror.NewAPIError(apierror.ErrBadRequest, "Window triggers require start_time and end_time", nil)
		}
		if !req.EndTime.After(req.StartTime) {
			return apierror.NewAPIError(apierror.ErrBadRequest, "end_time must be after start_time", nil)
		}
	case model.KindSingleTable:
		if req.TableName == "" {
			return apierror.NewAPIError(apierror.ErrBadRequest, "Single-table triggers require a table_name", nil)
		}
		if req.StartTime.IsZero() || req.EndTime.IsZero() {
			return apierror.NewAPIError(apierror.ErrBadRequest, "Single-table triggers require start_time and end_time", nil)
		}
	case model.KindExplicitRecords:
		if req.TableName == "" {
			return apierror.NewAPIError(apierror.ErrBadRequest, "Explicit-record triggers require a table_name", nil)
		}
		if len(req.Records) == 0 {
			return apierror.NewAPIError(apierror.ErrBadRequest, "Explicit-record triggers require at least one record", nil)
		}
	default:
		return apierror.NewAPIError(apierror.ErrBadRequest, fmt.Sprintf("Unknown trigger kind '%s'", req.Kind), nil)
	}
	return nil
}

// BuildCascade expands a trigger request into its module, model and table
// runs. Everything is created in one transaction; on failure the request
// stays retryable.
func (d *Driftcap) BuildCascade(ctx context.Context, req *model.TriggerRequest) error {
	ctx, span := otel.Tracer("driftcap.cascade").Start(ctx, "Building trigger cascade")
	defer span.End()

	switch req.Kind {
	case model.KindWindow:
		return d.buildWindowCascade(ctx, req)
	case model.KindSingleTable:
		return d.buildSingleChainCascade(ctx, req, nil)
	case model.KindExplicitRecords:
		return d.buildSingleChainCascade(ctx, req, req.Records)
	default:
		return apierror.NewAPIError(apierror.ErrBadRequest, fmt.Sprintf("Unknown trigger kind '%s'", req.Kind), nil)
	}
}

// buildWindowCascade creates runs for every configured module, model and
// table of the tenant.
func (d *Driftcap) buildWindowCascade(ctx context.Context, req *model.TriggerRequest) error {
	moduleConfigs, err := d.datasource.GetModuleConfigs(ctx, req.TenantID)
	if err != nil {
		return err
	}
	if len(moduleConfigs) == 0 {
		return apierror.NewAPIError(apierror.ErrConfiguration, fmt.Sprintf("No modules configured for tenant '%s'", req.TenantID), nil)
	}

	var modules []*model.ModuleRun
	var models []*model.ModelRun
	var tables []*model.TableRun
	for _, moduleConfig := range moduleConfigs {
		moduleRun := newModuleRun(req, moduleConfig)
		modules = append(modules, moduleRun)

		modelConfigs, err := d.datasource.GetModelConfigs(ctx, moduleConfig.ModuleID)
		if err != nil {
			return err
		}
		for _, modelConfig := range modelConfigs {
			modelRun := newModelRun(req, moduleRun, modelConfig)
			models = append(models, modelRun)

			tableConfigs, err := d.datasource.GetTableConfigs(ctx, modelConfig.ModelID)
			if err != nil {
				return err
			}
			for _, tableConfig := range tableConfigs {
				tables = append(tables, newTableRun(req, modelRun, tableConfig))
			}
		}
	}
	return d.datasource.CreateCascade(ctx, modules, models, tables, nil)
}

// buildSingleChainCascade resolves the one module/model/table chain owning
// the named table. When explicit records are supplied the table run is
// created already extracted and one change record is pre-captured per row.
func (d *Driftcap) buildSingleChainCascade(ctx context.Context, req *model.TriggerRequest, records [][]string) error {
	tableConfig, err := d.datasource.GetTableConfig(ctx, req.TenantID, req.TableName)
	if err != nil {
		return err
	}
	modelConfig, err := d.datasource.GetModelConfigByID(ctx, tableConfig.ModelID)
	if err != nil {
		return err
	}
	moduleConfig, err := d.datasource.GetModuleConfigByID(ctx, modelConfig.ModuleID)
	if err != nil {
		return err
	}

	moduleRun := newModuleRun(req, moduleConfig)
	modelRun := newModelRun(req, moduleRun, modelConfig)
	tableRun := newTableRun(req, modelRun, tableConfig)

	var changeRecords []*model.ChangeRecord
	if len(records) > 0 {
		tableRun.Extracted = true
		tableRun.FetchedCount = len(records)
		for _, record := range records {
			changeRecords = append(changeRecords, &model.ChangeRecord{
				RecordID:   model.GenerateUUIDWithSuffix("rec"),
				RequestID:  req.RequestID,
				TenantID:   req.TenantID,
				TableRunID: tableRun.RunID,
				TableName:  tableConfig.TableName,
				ModelName:  tableConfig.ModelName,
				RecordKey:  model.SerializeKey(record),
				Status:     model.StatusInitial,
				CreatedAt:  time.Now(),
			})
		}
	}

	return d.datasource.CreateCascade(ctx,
		[]*model.ModuleRun{moduleRun},
		[]*model.ModelRun{modelRun},
		[]*model.TableRun{tableRun},
		changeRecords)
}

func newModuleRun(req *model.TriggerRequest, mc *model.ModuleConfig) *model.ModuleRun {
	return &model.ModuleRun{
		RunID:      model.GenerateUUIDWithSuffix("mod"),
		RequestID:  req.RequestID,
		TenantID:   req.TenantID,
		ModuleName: mc.Name,
		Priority:   mc.Priority,
	}
}

func newModelRun(req *model.TriggerRequest, moduleRun *model.ModuleRun, mc *model.ModelConfig) *model.ModelRun {
	return &model.ModelRun{
		RunID:       model.GenerateUUIDWithSuffix("mdl"),
		ModuleRunID: moduleRun.RunID,
		RequestID:   req.RequestID,
		TenantID:    req.TenantID,
		ModelName:   mc.Name,
		Priority:    mc.Priority,
		Parallel:    mc.Parallel,
	}
}

func newTableRun(req *model.TriggerRequest, modelRun *model.ModelRun, tc *model.TableConfig) *model.TableRun {
	return &model.TableRun{
		RunID:      model.GenerateUUIDWithSuffix("tbl"),
		ModelRunID: modelRun.RunID,
		RequestID:  req.RequestID,
		TenantID:   req.TenantID,
		ModelName:  tc.ModelName,
		TableName:  tc.TableName,
	}
}
