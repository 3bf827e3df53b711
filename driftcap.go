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

	"github.com/driftcap/driftcap/config"
	"github.com/driftcap/driftcap/database"
	"github.com/driftcap/driftcap/internal/lock"
)

// PipelineRunner is the boundary to the execution backend. Direct tasks call
// Run with the target code; pipeline tasks additionally carry the pipeline id
// that groups their stages.
type PipelineRunner interface {
	Run(ctx context.Context, targetCode string, content map[string]interface{}, tenantID string) error
	RunPipeline(ctx context.Context, targetCode string, content map[string]interface{}, tenantID, pipelineID string) error
}

// Driftcap represents the main struct for the Driftcap application. All of
// the worker loops hang off this one instance and coordinate exclusively
// through the shared store.
type Driftcap struct {
	datasource database.IDataSource
	locks      *lock.Manager
	runner     PipelineRunner
	tenantID   string
}

// NewDriftcap initializes a new instance of Driftcap with the provided
// datasource and pipeline runner. It fetches the configuration and wires the
// lock manager.
//
// Parameters:
// - db database.IDataSource: The datasource for database operations.
// - runner PipelineRunner: The execution backend for scheduled tasks.
//
// Returns:
// - *Driftcap: A pointer to the newly created Driftcap instance.
// - error: An error if any of the initialization steps fail.
func NewDriftcap(db database.IDataSource, runner PipelineRunner) (*Driftcap, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	locks := lock.NewManager(db, configuration.LockLeaseTimeout(), configuration.LockSweepInterval())
	newDriftcap := &Driftcap{
		datasource: db,
		locks:      locks,
		runner:     runner,
		tenantID:   configuration.TenantID,
	}
	return newDriftcap, nil
}

// Locks exposes the lock manager so the worker entrypoint can start the
// lease sweeper alongside the processing loops.
func (d *Driftcap) Locks() *lock.Manager {
	return d.locks
}
