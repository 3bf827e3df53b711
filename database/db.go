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
package database

import (
	"database/sql"
	"log"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/driftcap/driftcap/config"
	"github.com/driftcap/driftcap/internal/cache"
)

// Datasource carries the shared-store connection, the (possibly separate)
// source-database connection the extraction engine reads from, and the cache
// backing configuration lookups.
type Datasource struct {
	Conn         *sql.DB
	Source       *sql.DB
	SourceDriver string
	Cache        cache.Cache
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	conn, err := ConnectDB(configuration.DataSource.Dns)
	if err != nil {
		return nil, err
	}

	// The monitored source tables may live in a different database; default
	// to the shared store when no separate source DSN is configured.
	source := conn
	sourceDriver := "postgres"
	if configuration.Source.Dns != "" {
		sourceDriver = configuration.Source.Driver
		source, err = sql.Open(sourceDriver, configuration.Source.Dns)
		if err != nil {
			return nil, err
		}
		if err := source.Ping(); err != nil {
			log.Printf("source database connection error ❌: %v", err)
			return nil, err
		}
	}

	configCache, err := cache.NewCache()
	if err != nil {
		return nil, err
	}

	return &Datasource{Conn: conn, Source: source, SourceDriver: sourceDriver, Cache: configCache}, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	if err := CreateTables(db); err != nil {
		return nil, err
	}
	return db, nil
}

// CreateTables creates every table the core owns. Configuration tables are
// included so a fresh deployment is usable; the administrative surface that
// populates them lives elsewhere.
func CreateTables(db *sql.DB) error {
	creators := []func(*sql.DB) error{
		createTriggerRequestTable,
		createRunTables,
		createChangeRecordTables,
		createChangeDocumentTables,
		createScheduledTaskTables,
		createLockTable,
		createConfigTables,
	}
	for _, create := range creators {
		if err := create(db); err != nil {
			return err
		}
	}
	return nil
}

func createTriggerRequestTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trigger_requests (
			id SERIAL PRIMARY KEY,
			request_id TEXT NOT NULL UNIQUE,
			tenant_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			start_time TIMESTAMP,
			end_time TIMESTAMP,
			table_name TEXT,
			records JSONB,
			finished BOOLEAN NOT NULL DEFAULT FALSE,
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating trigger_requests table: %v", err)
	}
	return err
}

func createRunTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS module_runs (
			id SERIAL PRIMARY KEY,
			run_id TEXT NOT NULL UNIQUE,
			request_id TEXT NOT NULL REFERENCES trigger_requests(request_id),
			tenant_id TEXT NOT NULL,
			module_name TEXT NOT NULL,
			priority INT NOT NULL DEFAULT 0,
			finished BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating module_runs table: %v", err)
		return err
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS model_runs (
			id SERIAL PRIMARY KEY,
			run_id TEXT NOT NULL UNIQUE,
			module_run_id TEXT NOT NULL REFERENCES module_runs(run_id),
			request_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			model_name TEXT NOT NULL,
			priority INT NOT NULL DEFAULT 0,
			parallel BOOLEAN NOT NULL DEFAULT TRUE,
			finished BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating model_runs table: %v", err)
		return err
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS table_runs (
			id SERIAL PRIMARY KEY,
			run_id TEXT NOT NULL UNIQUE,
			model_run_id TEXT NOT NULL REFERENCES model_runs(run_id),
			request_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			model_name TEXT NOT NULL,
			table_name TEXT NOT NULL,
			extracted BOOLEAN NOT NULL DEFAULT FALSE,
			fetched_count INT NOT NULL DEFAULT 0,
			finished BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating table_runs table: %v", err)
	}
	return err
}

func createChangeRecordTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS change_records (
			id SERIAL PRIMARY KEY,
			record_id TEXT NOT NULL UNIQUE,
			request_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			table_run_id TEXT NOT NULL,
			table_name TEXT NOT NULL,
			model_name TEXT NOT NULL,
			record_key TEXT NOT NULL,
			merged BOOLEAN NOT NULL DEFAULT FALSE,
			status TEXT NOT NULL,
			root_table TEXT,
			root_key TEXT,
			result TEXT,
			locked_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE (table_run_id, record_key)
		)
	`)
	if err != nil {
		log.Printf("Error creating change_records table: %v", err)
		return err
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS change_records_history (
			id SERIAL PRIMARY KEY,
			record_id TEXT NOT NULL,
			request_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			table_run_id TEXT NOT NULL,
			table_name TEXT NOT NULL,
			model_name TEXT NOT NULL,
			record_key TEXT NOT NULL,
			merged BOOLEAN NOT NULL,
			status TEXT NOT NULL,
			root_table TEXT,
			root_key TEXT,
			result TEXT,
			created_at TIMESTAMP NOT NULL,
			archived_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating change_records_history table: %v", err)
	}
	return err
}

func createChangeDocumentTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS change_documents (
			id SERIAL PRIMARY KEY,
			document_id TEXT NOT NULL UNIQUE,
			resource_id TEXT NOT NULL UNIQUE,
			request_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			model_name TEXT NOT NULL,
			object_id TEXT NOT NULL,
			root_table TEXT NOT NULL,
			content JSONB NOT NULL,
			depends_on JSONB,
			sequence INT NOT NULL DEFAULT 1,
			posted BOOLEAN NOT NULL DEFAULT FALSE,
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating change_documents table: %v", err)
		return err
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS change_documents_history (
			id SERIAL PRIMARY KEY,
			document_id TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			request_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			model_name TEXT NOT NULL,
			object_id TEXT NOT NULL,
			root_table TEXT NOT NULL,
			content JSONB NOT NULL,
			depends_on JSONB,
			sequence INT NOT NULL,
			posted BOOLEAN NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			archived_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating change_documents_history table: %v", err)
	}
	return err
}

func createScheduledTaskTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS scheduled_tasks (
			id SERIAL PRIMARY KEY,
			task_id TEXT NOT NULL UNIQUE,
			resource_id TEXT NOT NULL UNIQUE,
			request_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			model_name TEXT NOT NULL,
			object_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			target_code TEXT NOT NULL,
			pipeline_id TEXT,
			content JSONB NOT NULL,
			parent_task_ids TEXT[],
			depends_on JSONB,
			sequence INT NOT NULL DEFAULT 1,
			finished BOOLEAN NOT NULL DEFAULT FALSE,
			status TEXT NOT NULL,
			result TEXT,
			locked_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating scheduled_tasks table: %v", err)
		return err
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS scheduled_tasks_history (
			id SERIAL PRIMARY KEY,
			task_id TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			request_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			model_name TEXT NOT NULL,
			object_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			target_code TEXT NOT NULL,
			pipeline_id TEXT,
			content JSONB NOT NULL,
			parent_task_ids TEXT[],
			depends_on JSONB,
			sequence INT NOT NULL,
			finished BOOLEAN NOT NULL,
			status TEXT NOT NULL,
			result TEXT,
			created_at TIMESTAMP NOT NULL,
			archived_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating scheduled_tasks_history table: %v", err)
	}
	return err
}

func createLockTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS locks (
			id SERIAL PRIMARY KEY,
			lock_id TEXT NOT NULL,
			resource_id TEXT NOT NULL UNIQUE,
			tenant_id TEXT NOT NULL,
			registered_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating locks table: %v", err)
	}
	return err
}

func createConfigTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS module_configs (
			id SERIAL PRIMARY KEY,
			module_id TEXT NOT NULL UNIQUE,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			priority INT NOT NULL DEFAULT 0,
			UNIQUE (tenant_id, name)
		)
	`)
	if err != nil {
		log.Printf("Error creating module_configs table: %v", err)
		return err
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS model_configs (
			id SERIAL PRIMARY KEY,
			model_id TEXT NOT NULL UNIQUE,
			module_id TEXT NOT NULL REFERENCES module_configs(module_id),
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			priority INT NOT NULL DEFAULT 0,
			parallel BOOLEAN NOT NULL DEFAULT TRUE,
			depend_on JSONB,
			raw_target TEXT NOT NULL,
			pipeline_id TEXT,
			UNIQUE (tenant_id, name)
		)
	`)
	if err != nil {
		log.Printf("Error creating model_configs table: %v", err)
		return err
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS table_configs (
			id SERIAL PRIMARY KEY,
			table_id TEXT NOT NULL UNIQUE,
			tenant_id TEXT NOT NULL,
			model_id TEXT NOT NULL REFERENCES model_configs(model_id),
			model_name TEXT NOT NULL,
			table_name TEXT NOT NULL,
			primary_key JSONB NOT NULL,
			parent_name TEXT,
			join_keys JSONB,
			depend_on JSONB,
			audit_column TEXT NOT NULL,
			conditions JSONB,
			ignore_paths JSONB,
			flatten_paths JSONB,
			json_paths JSONB,
			UNIQUE (tenant_id, table_name)
		)
	`)
	if err != nil {
		log.Printf("Error creating table_configs table: %v", err)
	}
	return err
}
