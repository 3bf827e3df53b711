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
package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateAndAddDefaults(t *testing.T) {
	cnf := &Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost:5432/driftcap"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
	}
	assert.NoError(t, cnf.validateAndAddDefaults())

	assert.Equal(t, "Driftcap Server", cnf.ProjectName)
	assert.Equal(t, "default", cnf.TenantID)
	assert.Equal(t, DEFAULT_PORT, cnf.Server.Port)
	assert.Equal(t, "postgres", cnf.Source.Driver)
	assert.Equal(t, 5, cnf.Worker.PollIntervalSec)
	assert.Equal(t, 100, cnf.Worker.BatchSize)
	assert.Equal(t, 300, cnf.Worker.LockLeaseTimeoutSec)
	assert.Equal(t, 10, cnf.Worker.MaxDependencyDepth)
	assert.Equal(t, 2048, cnf.Worker.ResultMaxLength)
	assert.Equal(t, 5*time.Second, cnf.PollInterval())
	assert.Equal(t, 5*time.Minute, cnf.LockLeaseTimeout())
}

func TestValidateRequiresDataSource(t *testing.T) {
	cnf := &Configuration{Redis: RedisConfig{Dns: "localhost:6379"}}
	assert.Error(t, cnf.validateAndAddDefaults())
}

func TestValidateRequiresRedis(t *testing.T) {
	cnf := &Configuration{DataSource: DataSourceConfig{Dns: "postgres://localhost/d"}}
	assert.Error(t, cnf.validateAndAddDefaults())
}

func TestValidateRejectsUnknownSourceDriver(t *testing.T) {
	cnf := &Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost/d"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
		Source:     SourceConfig{Driver: "oracle"},
	}
	assert.Error(t, cnf.validateAndAddDefaults())
}

func TestValidateRequiresSecretKeyWhenSecure(t *testing.T) {
	cnf := &Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost/d"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
		Server:     ServerConfig{Secure: true},
	}
	assert.Error(t, cnf.validateAndAddDefaults())

	cnf.Server.SecretKey = "secret-key-1"
	assert.NoError(t, cnf.validateAndAddDefaults())
}

func TestEnvOverrides(t *testing.T) {
	os.Setenv("DRIFTCAP_DATA_SOURCE_DNS", "postgres://env:5432/driftcap")
	os.Setenv("DRIFTCAP_REDIS_DNS", "env:6379")
	os.Setenv("DRIFTCAP_TENANT_ID", "tenant-env")
	os.Setenv("DRIFTCAP_WORKER_BATCH_SIZE", "7")
	defer func() {
		os.Unsetenv("DRIFTCAP_DATA_SOURCE_DNS")
		os.Unsetenv("DRIFTCAP_REDIS_DNS")
		os.Unsetenv("DRIFTCAP_TENANT_ID")
		os.Unsetenv("DRIFTCAP_WORKER_BATCH_SIZE")
	}()

	assert.NoError(t, loadConfigFromFile("does-not-exist.json"))

	cnf, err := Fetch()
	assert.NoError(t, err)
	assert.Equal(t, "postgres://env:5432/driftcap", cnf.DataSource.Dns)
	assert.Equal(t, "tenant-env", cnf.TenantID)
	assert.Equal(t, 7, cnf.Worker.BatchSize)
}

func TestMockConfig(t *testing.T) {
	MockConfig(&Configuration{ProjectName: "mock"})
	cnf, err := Fetch()
	assert.NoError(t, err)
	assert.Equal(t, "mock", cnf.ProjectName)
}
