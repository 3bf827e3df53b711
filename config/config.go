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
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5400"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	Port      string `json:"port" envconfig:"DRIFTCAP_SERVER_PORT"`
	Secure    bool   `json:"secure" envconfig:"DRIFTCAP_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"DRIFTCAP_SERVER_SECRET_KEY"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"DRIFTCAP_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"DRIFTCAP_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"DRIFTCAP_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"DRIFTCAP_DATA_SOURCE_DNS"`
}

// SourceConfig points at the database holding the monitored source tables.
// When Dns is empty the shared store connection is reused.
type SourceConfig struct {
	Dns    string `json:"dns" envconfig:"DRIFTCAP_SOURCE_DNS"`
	Driver string `json:"driver" envconfig:"DRIFTCAP_SOURCE_DRIVER"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"DRIFTCAP_REDIS_DNS"`
}

// ExecutorConfig points at the HTTP endpoint that receives task invocations.
type ExecutorConfig struct {
	Url     string            `json:"url" envconfig:"DRIFTCAP_EXECUTOR_URL"`
	Headers map[string]string `json:"headers"`
}

type WorkerConfig struct {
	PollIntervalSec     int `json:"poll_interval_sec" envconfig:"DRIFTCAP_WORKER_POLL_INTERVAL_SEC"`
	BatchSize           int `json:"batch_size" envconfig:"DRIFTCAP_WORKER_BATCH_SIZE"`
	LockLeaseTimeoutSec int `json:"lock_lease_timeout_sec" envconfig:"DRIFTCAP_WORKER_LOCK_LEASE_TIMEOUT_SEC"`
	LockSweepIntvSec    int `json:"lock_sweep_interval_sec" envconfig:"DRIFTCAP_WORKER_LOCK_SWEEP_INTERVAL_SEC"`
	MaxDependencyDepth  int `json:"max_dependency_depth" envconfig:"DRIFTCAP_WORKER_MAX_DEPENDENCY_DEPTH"`
	ResultMaxLength     int `json:"result_max_length" envconfig:"DRIFTCAP_WORKER_RESULT_MAX_LENGTH"`
}

type Configuration struct {
	ProjectName string           `json:"project_name" envconfig:"DRIFTCAP_PROJECT_NAME"`
	TenantID    string           `json:"tenant_id" envconfig:"DRIFTCAP_TENANT_ID"`
	Server      ServerConfig     `json:"server"`
	DataSource  DataSourceConfig `json:"data_source"`
	Source      SourceConfig     `json:"source"`
	Redis       RedisConfig      `json:"redis"`
	Executor    ExecutorConfig   `json:"executor"`
	RateLimit   RateLimitConfig  `json:"rate_limit"`
	Worker      WorkerConfig     `json:"worker"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("driftcap", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called driftcap.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Driftcap Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	if cnf.TenantID == "" {
		log.Println("Warning: Tenant id is empty. Setting default tenant.")
		cnf.TenantID = "default"
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.TenantID = strings.TrimSpace(cnf.TenantID)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Source.Dns = strings.TrimSpace(cnf.Source.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Source.Driver == "" {
		cnf.Source.Driver = "postgres"
	}
	if cnf.Source.Driver != "postgres" && cnf.Source.Driver != "mysql" {
		return errors.New("source driver must be postgres or mysql")
	}

	if cnf.Server.Secure && cnf.Server.SecretKey == "" {
		return errors.New("secret key is required when the server is secure")
	}

	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	if cnf.Worker.PollIntervalSec <= 0 {
		cnf.Worker.PollIntervalSec = 5
	}
	if cnf.Worker.BatchSize <= 0 {
		cnf.Worker.BatchSize = 100
	}
	if cnf.Worker.LockLeaseTimeoutSec <= 0 {
		cnf.Worker.LockLeaseTimeoutSec = 300
	}
	if cnf.Worker.LockSweepIntvSec <= 0 {
		cnf.Worker.LockSweepIntvSec = 60
	}
	if cnf.Worker.MaxDependencyDepth <= 0 {
		cnf.Worker.MaxDependencyDepth = 10
	}
	if cnf.Worker.ResultMaxLength <= 0 {
		cnf.Worker.ResultMaxLength = 2048
	}

	return nil
}

// PollInterval is the fixed interval of every polling loop.
func (cnf *Configuration) PollInterval() time.Duration {
	return time.Duration(cnf.Worker.PollIntervalSec) * time.Second
}

// LockLeaseTimeout bounds how long a crashed worker can hold a lock.
func (cnf *Configuration) LockLeaseTimeout() time.Duration {
	return time.Duration(cnf.Worker.LockLeaseTimeoutSec) * time.Second
}

// LockSweepInterval is how often expired leases are recovered.
func (cnf *Configuration) LockSweepInterval() time.Duration {
	return time.Duration(cnf.Worker.LockSweepIntvSec) * time.Second
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
