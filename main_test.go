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

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/driftcap/driftcap/config"
	"github.com/driftcap/driftcap/database/mocks"
)

// mockRunner is a testify mock of the execution collaborator.
type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, targetCode string, content map[string]interface{}, tenantID string) error {
	args := m.Called(ctx, targetCode, content, tenantID)
	return args.Error(0)
}

func (m *mockRunner) RunPipeline(ctx context.Context, targetCode string, content map[string]interface{}, tenantID, pipelineID string) error {
	args := m.Called(ctx, targetCode, content, tenantID, pipelineID)
	return args.Error(0)
}

func newTestDriftcap(t *testing.T) (*Driftcap, *mocks.MockDataSource, *mockRunner) {
	t.Helper()
	config.MockConfig(&config.Configuration{
		TenantID: "tenant-1",
		Redis:    config.RedisConfig{Dns: "localhost:6379"},
		Worker: config.WorkerConfig{
			PollIntervalSec:     1,
			BatchSize:           100,
			LockLeaseTimeoutSec: 300,
			LockSweepIntvSec:    60,
			MaxDependencyDepth:  10,
			ResultMaxLength:     2048,
		},
	})

	datasource := new(mocks.MockDataSource)
	runner := new(mockRunner)
	d, err := NewDriftcap(datasource, runner)
	require.NoError(t, err)
	return d, datasource, runner
}
