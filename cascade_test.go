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

func TestSubmitTrigger_Window(t *testing.T) {
	d, datasource, _ := newTestDriftcap(t)

	datasource.On("CreateTriggerRequest", mock.Anything, mock.AnythingOfType("*model.TriggerRequest")).Return(nil)

	req, err := d.SubmitTrigger(context.Background(), &model.TriggerRequest{
		Kind:      model.KindWindow,
		StartTime: time.Now().Add(-time.Hour),
		EndTime:   time.Now(),
	})
	assert.NoError(t, err)
	assert.NotEmpty(t, req.RequestID)
	assert.Equal(t, "tenant-1", req.TenantID)
	assert.Equal(t, model.StatusInitial, req.Status)
	datasource.AssertExpectations(t)
}

func TestSubmitTrigger_WindowWithoutBounds(t *testing.T) {
	d, _, _ := newTestDriftcap(t)

	_, err := d.SubmitTrigger(context.Background(), &model.TriggerRequest{Kind: model.KindWindow})
	assert.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.ErrBadRequest))
}

func TestSubmitTrigger_ExplicitRecordsWithoutRows(t *testing.T) {
	d, _, _ := newTestDriftcap(t)

	_, err := d.SubmitTrigger(context.Background(), &model.TriggerRequest{
		Kind:      model.KindExplicitRecords,
		TableName: "orders",
	})
	assert.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.ErrBadRequest))
}

func TestBuildCascade_Window(t *testing.T) {
	d, datasource, _ := newTestDriftcap(t)

	req := &model.TriggerRequest{
		RequestID: "req_1",
		TenantID:  "tenant-1",
		Kind:      model.KindWindow,
		StartTime: time.Now().Add(-time.Hour),
		EndTime:   time.Now(),
	}

	datasource.On("GetModuleConfigs", mock.Anything, "tenant-1").Return([]*model.ModuleConfig{
		{ModuleID: "module_risk", TenantID: "tenant-1", Name: "risk", Priority: 0},
	}, nil)
	datasource.On("GetModelConfigs", mock.Anything, "module_risk").Return([]*model.ModelConfig{
		{ModelID: "model_order", ModuleID: "module_risk", TenantID: "tenant-1", Name: "order", Priority: 0, Parallel: true, RawTarget: "order-sync"},
	}, nil)
	datasource.On("GetTableConfigs", mock.Anything, "model_order").Return([]*model.TableConfig{
		{TableID: "table_orders", TenantID: "tenant-1", ModelID: "model_order", ModelName: "order", TableName: "orders", PrimaryKey: []string{"id"}, AuditColumn: "updated_at"},
		{TableID: "table_items", TenantID: "tenant-1", ModelID: "model_order", ModelName: "order", TableName: "order_items", PrimaryKey: []string{"id"}, ParentName: "orders", AuditColumn: "updated_at"},
	}, nil)

	datasource.On("CreateCascade", mock.Anything,
		mock.MatchedBy(func(modules []*model.ModuleRun) bool {
			return len(modules) == 1 && modules[0].ModuleName == "risk"
		}),
		mock.MatchedBy(func(models []*model.ModelRun) bool {
			return len(models) == 1 && models[0].ModelName == "order"
		}),
		mock.MatchedBy(func(tables []*model.TableRun) bool {
			return len(tables) == 2
		}),
		mock.Anything).Return(nil)

	err := d.BuildCascade(context.Background(), req)
	assert.NoError(t, err)
	datasource.AssertExpectations(t)
}

func TestBuildCascade_ExplicitRecords(t *testing.T) {
	d, datasource, _ := newTestDriftcap(t)

	req := &model.TriggerRequest{
		RequestID: "req_1",
		TenantID:  "tenant-1",
		Kind:      model.KindExplicitRecords,
		TableName: "orders",
		Records:   [][]string{{"41"}, {"42"}},
	}

	datasource.On("GetTableConfig", mock.Anything, "tenant-1", "orders").Return(&model.TableConfig{
		TableID: "table_orders", TenantID: "tenant-1", ModelID: "model_order", ModelName: "order",
		TableName: "orders", PrimaryKey: []string{"id"}, AuditColumn: "updated_at",
	}, nil)
	datasource.On("GetModelConfigByID", mock.Anything, "model_order").Return(&model.ModelConfig{
		ModelID: "model_order", ModuleID: "module_risk", TenantID: "tenant-1", Name: "order", Parallel: true, RawTarget: "order-sync",
	}, nil)
	datasource.On("GetModuleConfigByID", mock.Anything, "module_risk").Return(&model.ModuleConfig{
		ModuleID: "module_risk", TenantID: "tenant-1", Name: "risk",
	}, nil)

	datasource.On("CreateCascade", mock.Anything, mock.Anything, mock.Anything,
		mock.MatchedBy(func(tables []*model.TableRun) bool {
			return len(tables) == 1 && tables[0].Extracted && tables[0].FetchedCount == 2
		}),
		mock.MatchedBy(func(records []*model.ChangeRecord) bool {
			return len(records) == 2 && records[0].RecordKey == "41" && records[1].RecordKey == "42"
		})).Return(nil)

	err := d.BuildCascade(context.Background(), req)
	assert.NoError(t, err)
	datasource.AssertExpectations(t)
}

func TestBuildCascade_NoModulesConfigured(t *testing.T) {
	d, datasource, _ := newTestDriftcap(t)

	datasource.On("GetModuleConfigs", mock.Anything, "tenant-1").Return([]*model.ModuleConfig{}, nil)

	err := d.BuildCascade(context.Background(), &model.TriggerRequest{
		RequestID: "req_1",
		TenantID:  "tenant-1",
		Kind:      model.KindWindow,
	})
	assert.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.ErrConfiguration))
}
