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
	"net/http"

	"github.com/driftcap/driftcap/config"
	"github.com/driftcap/driftcap/internal/request"
)

// TaskInvocation is the payload posted to the executor endpoint for every
// task. Pipeline tasks carry the pipeline id alongside the target code.
type TaskInvocation struct {
	Event      string                 `json:"event"`
	TargetCode string                 `json:"target_code"`
	TenantID   string                 `json:"tenant_id"`
	PipelineID string                 `json:"pipeline_id,omitempty"`
	Data       map[string]interface{} `json:"data"`
}

// WebhookRunner delivers task invocations to the configured executor
// endpoint over HTTP. A non-2XX response fails the invocation so the task is
// archived FAIL rather than silently dropped.
type WebhookRunner struct{}

func NewWebhookRunner() *WebhookRunner {
	return &WebhookRunner{}
}

func (r *WebhookRunner) Run(ctx context.Context, targetCode string, content map[string]interface{}, tenantID string) error {
	return r.post(ctx, TaskInvocation{
		Event:      "task.direct",
		TargetCode: targetCode,
		TenantID:   tenantID,
		Data:       content,
	})
}

func (r *WebhookRunner) RunPipeline(ctx context.Context, targetCode string, content map[string]interface{}, tenantID, pipelineID string) error {
	return r.post(ctx, TaskInvocation{
		Event:      "task.pipeline",
		TargetCode: targetCode,
		TenantID:   tenantID,
		PipelineID: pipelineID,
		Data:       content,
	})
}

func (r *WebhookRunner) post(ctx context.Context, invocation TaskInvocation) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Executor.Url == "" {
		return fmt.Errorf("executor url is not configured")
	}

	payload, err := request.ToJsonReq(&invocation)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, conf.Executor.Url, payload)
	if err != nil {
		return err
	}
	for key, value := range conf.Executor.Headers {
		req.Header.Set(key, value)
	}

	var response map[string]interface{}
	resp, err := request.Call(req, &response)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("executor returned status %d for %s", resp.StatusCode, invocation.TargetCode)
	}
	return nil
}
