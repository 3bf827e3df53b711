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

package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/driftcap/driftcap"
	model2 "github.com/driftcap/driftcap/api/model"
	"github.com/driftcap/driftcap/config"
	"github.com/driftcap/driftcap/database/mocks"
	"github.com/driftcap/driftcap/internal/request"
	"github.com/driftcap/driftcap/model"
)

type TestRequest struct {
	Payload  io.Reader
	Router   *gin.Engine
	Response interface{}
	Method   string
	Route    string
	Header   map[string]string
}

func SetUpTestRequest(s TestRequest) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(s.Method, s.Route, s.Payload)
	for key, value := range s.Header {
		req.Header.Set(key, value)
	}
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	s.Router.ServeHTTP(resp, req)

	err := json.NewDecoder(resp.Body).Decode(&s.Response)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func setupRouter(t *testing.T) (*gin.Engine, *mocks.MockDataSource) {
	t.Helper()
	config.MockConfig(&config.Configuration{
		TenantID: "tenant-1",
		Redis:    config.RedisConfig{Dns: "localhost:6379"},
	})
	datasource := new(mocks.MockDataSource)
	d, err := driftcap.NewDriftcap(datasource, nil)
	if err != nil {
		t.Fatalf("Failed to setup driftcap: %v", err)
	}
	router := NewAPI(d).Router()
	return router, datasource
}

func TestSubmitTrigger(t *testing.T) {
	router, datasource := setupRouter(t)
	datasource.On("CreateTriggerRequest", mock.Anything, mock.Anything).Return(nil)

	tests := []struct {
		name         string
		payload      model2.SubmitTrigger
		expectedCode int
	}{
		{
			name: "Valid window trigger",
			payload: model2.SubmitTrigger{
				Kind:      string(model.KindWindow),
				StartTime: "2026-08-01T00:00:00Z",
				EndTime:   "2026-08-02T00:00:00Z",
			},
			expectedCode: http.StatusCreated,
		},
		{
			name:         "Window trigger without bounds",
			payload:      model2.SubmitTrigger{Kind: string(model.KindWindow)},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "Explicit records without table",
			payload: model2.SubmitTrigger{
				Kind:    string(model.KindExplicitRecords),
				Records: [][]string{{"42"}},
			},
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payloadBytes, _ := request.ToJsonReq(&tt.payload)
			var response model.TriggerRequest
			testRequest := TestRequest{
				Payload:  payloadBytes,
				Response: &response,
				Method:   "POST",
				Route:    "/triggers",
				Router:   router,
			}

			resp, err := SetUpTestRequest(testRequest)
			if err != nil {
				t.Fatalf("SetUpTestRequest() error = %v", err)
			}
			assert.Equal(t, tt.expectedCode, resp.Code)

			if tt.expectedCode == http.StatusCreated {
				assert.NotEmpty(t, response.RequestID)
				assert.Equal(t, model.StatusInitial, response.Status)
				assert.Equal(t, "tenant-1", response.TenantID)
			}
		})
	}
}

func TestGetTriggerCounts(t *testing.T) {
	router, datasource := setupRouter(t)
	datasource.On("GetTriggerCounts", mock.Anything, "req_1").Return(&model.TriggerCounts{
		RequestID: "req_1",
		Status:    model.StatusExecuting,
		Records:   2,
		Documents: 1,
		Tasks:     4,
	}, nil)

	var response model.TriggerCounts
	testRequest := TestRequest{
		Response: &response,
		Method:   "GET",
		Route:    fmt.Sprintf("/triggers/%s/counts", "req_1"),
		Router:   router,
	}

	resp, err := SetUpTestRequest(testRequest)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, int64(2), response.Records)
	assert.Equal(t, int64(4), response.Tasks)
}
