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

package request_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/driftcap/driftcap/internal/request"
)

func TestToJsonReq_Success(t *testing.T) {
	payload := map[string]string{"target_code": "risk-score"}
	buf, err := request.ToJsonReq(&payload)
	assert.NoError(t, err)
	assert.JSONEq(t, `{"target_code":"risk-score"}`, buf.String())
}

func TestToJsonReq_Fail(t *testing.T) {
	_, err := request.ToJsonReq(make(chan int))
	assert.Error(t, err)
}

func TestCall_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"accepted"}`))
	}))
	defer server.Close()

	req, _ := http.NewRequest("POST", server.URL, nil)
	var response map[string]string
	resp, err := request.Call(req, &response)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "accepted", response["status"])
}

func TestCall_EmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	req, _ := http.NewRequest("POST", server.URL, nil)
	var response map[string]string
	resp, err := request.Call(req, &response)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestCall_Fail_DoRequest(t *testing.T) {
	req, _ := http.NewRequest("POST", "http://localhost:0", nil)
	var response map[string]string
	_, err := request.Call(req, &response)
	assert.Error(t, err)
}
