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

	"github.com/driftcap/driftcap/model"
)

func extractionFixtures() (*model.TableRun, *model.TriggerRequest, *model.TableConfig) {
	tableRun := &model.TableRun{
		RunID:      "tbl_1",
		ModelRunID: "mdl_1",
		RequestID:  "req_1",
		TenantID:   "tenant-1",
		ModelName:  "order",
		TableName:  "orders",
	}
	req := &model.TriggerRequest{
		RequestID: "req_1",
		TenantID:  "tenant-1",
		Kind:      model.KindWindow,
		StartTime: time.Now().Add(-time.Hour),
		EndTime:   time.Now(),
		Status:    model.StatusExecuting,
	}
	tc := &model.TableConfig{
		TableID:     "table_orders",
		TenantID:    "tenant-1",
		ModelID:     "model_order",
		ModelName:   "order",
		TableName:   "orders",
		PrimaryKey:  []string{"id"},
		AuditColumn: "updated_at",
	}
	return tableRun, req, tc
}

func TestExtractChanges_DiffAgainstPriorCapture(t *testing.T) {
	d, datasource, _ := newTestDriftcap(t)
	tableRun, req, tc := extractionFixtures()

	datasource.On("GetUnextractedTableRuns", mock.Anything, "tenant-1", 100).Return([]*model.TableRun{tableRun}, nil)
	datasource.On("InsertLock", mock.Anything, mock.Anything, "table_run:tbl_1", "tenant-1", mock.Anything).Return(true, nil)
	datasource.On("GetTriggerRequest", mock.Anything, "req_1").Return(req, nil)
	datasource.On("GetTableConfig", mock.Anything, "tenant-1", "orders").Return(tc, nil)
	datasource.On("FetchChangedKeys", mock.Anything, tc, mock.Anything, mock.Anything).Return([]string{"1", "2", "3"}, nil)
	datasource.On("GetCapturedKeys", mock.Anything, "tbl_1").Return([]string{"1", "2"}, nil)

	// Only key (3) is new relative to the prior capture.
	datasource.On("CreateChangeRecord", mock.Anything, mock.MatchedBy(func(rec *model.ChangeRecord) bool {
		return rec.RecordKey == "3" && rec.TableRunID == "tbl_1" && rec.Status == model.StatusInitial
	})).Return(nil).Once()

	datasource.On("MarkTableRunExtracted", mock.Anything, "tbl_1", 3).Return(nil)
	datasource.On("DeleteLock", mock.Anything, "table_run:tbl_1").Return(nil)

	err := d.ExtractChanges(context.Background())
	assert.NoError(t, err)
	datasource.AssertExpectations(t)
	datasource.AssertNumberOfCalls(t, "CreateChangeRecord", 1)
}

func TestExtractChanges_SkipsLockedTableRun(t *testing.T) {
	d, datasource, _ := newTestDriftcap(t)
	tableRun, _, _ := extractionFixtures()

	datasource.On("GetUnextractedTableRuns", mock.Anything, "tenant-1", 100).Return([]*model.TableRun{tableRun}, nil)
	datasource.On("InsertLock", mock.Anything, mock.Anything, "table_run:tbl_1", "tenant-1", mock.Anything).Return(false, nil)

	err := d.ExtractChanges(context.Background())
	assert.NoError(t, err)
	datasource.AssertNotCalled(t, "FetchChangedKeys", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	datasource.AssertNotCalled(t, "MarkTableRunExtracted", mock.Anything, mock.Anything, mock.Anything)
}

func TestExtractChanges_FreshRunCapturesEverything(t *testing.T) {
	d, datasource, _ := newTestDriftcap(t)
	tableRun, req, tc := extractionFixtures()

	datasource.On("GetUnextractedTableRuns", mock.Anything, "tenant-1", 100).Return([]*model.TableRun{tableRun}, nil)
	datasource.On("InsertLock", mock.Anything, mock.Anything, "table_run:tbl_1", "tenant-1", mock.Anything).Return(true, nil)
	datasource.On("GetTriggerRequest", mock.Anything, "req_1").Return(req, nil)
	datasource.On("GetTableConfig", mock.Anything, "tenant-1", "orders").Return(tc, nil)
	datasource.On("FetchChangedKeys", mock.Anything, tc, mock.Anything, mock.Anything).Return([]string{"1", "2"}, nil)
	datasource.On("GetCapturedKeys", mock.Anything, "tbl_1").Return([]string{}, nil)
	datasource.On("CreateChangeRecord", mock.Anything, mock.Anything).Return(nil)
	datasource.On("MarkTableRunExtracted", mock.Anything, "tbl_1", 2).Return(nil)
	datasource.On("DeleteLock", mock.Anything, "table_run:tbl_1").Return(nil)

	err := d.ExtractChanges(context.Background())
	assert.NoError(t, err)
	datasource.AssertNumberOfCalls(t, "CreateChangeRecord", 2)
}
