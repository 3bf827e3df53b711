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
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/driftcap/driftcap/model"
)

func TestReleaseStaleClaims_RevertsRecordsAndTasks(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	cutoff := time.Now().Add(-5 * time.Minute)

	mock.ExpectExec("UPDATE change_records SET status = \\$1, locked_at = NULL").
		WithArgs(model.StatusInitial, model.StatusExecuting, cutoff).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("UPDATE scheduled_tasks SET status = \\$1, locked_at = NULL").
		WithArgs(model.StatusInitial, model.StatusExecuting, cutoff).
		WillReturnResult(sqlmock.NewResult(0, 1))

	released, err := ds.ReleaseStaleClaims(context.Background(), cutoff)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseStaleClaims_NothingStale(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	cutoff := time.Now().Add(-5 * time.Minute)

	mock.ExpectExec("UPDATE change_records SET status = \\$1, locked_at = NULL").
		WithArgs(model.StatusInitial, model.StatusExecuting, cutoff).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE scheduled_tasks SET status = \\$1, locked_at = NULL").
		WithArgs(model.StatusInitial, model.StatusExecuting, cutoff).
		WillReturnResult(sqlmock.NewResult(0, 0))

	released, err := ds.ReleaseStaleClaims(context.Background(), cutoff)
	assert.NoError(t, err)
	assert.Zero(t, released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteExpiredLocks_CountsReclaimed(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	cutoff := time.Now().Add(-5 * time.Minute)

	mock.ExpectExec("DELETE FROM locks WHERE registered_at").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	deleted, err := ds.DeleteExpiredLocks(context.Background(), cutoff)
	assert.NoError(t, err)
	assert.Equal(t, int64(4), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
