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

// Package lock implements the advisory-lock primitive shared by every worker
// process. A lock is a row in the store with a unique resource id; whoever
// wins the insert owns the resource. There is no heartbeat: a lease is valid
// until the background sweeper removes rows older than the configured
// timeout, which is how locks held by crashed workers are recovered.
package lock

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/driftcap/driftcap/model"
)

// Store is the persistence surface the manager needs. InsertLock returns
// false, nil when the resource is already held by someone else.
// ReleaseStaleClaims covers claims made outside the locks table: rows a
// worker flipped to EXECUTING and never finished because it crashed.
type Store interface {
	InsertLock(ctx context.Context, lockID, resourceID, tenantID string, registeredAt time.Time) (bool, error)
	DeleteLock(ctx context.Context, resourceID string) error
	DeleteExpiredLocks(ctx context.Context, before time.Time) (int64, error)
	ReleaseStaleClaims(ctx context.Context, before time.Time) (int64, error)
}

// Manager hands out named locks and sweeps expired leases.
type Manager struct {
	store         Store
	leaseTimeout  time.Duration
	sweepInterval time.Duration
}

func NewManager(store Store, leaseTimeout, sweepInterval time.Duration) *Manager {
	return &Manager{
		store:         store,
		leaseTimeout:  leaseTimeout,
		sweepInterval: sweepInterval,
	}
}

// TryAcquire attempts to take the named resource. Contention is not an error:
// the caller gets false and is expected to skip and retry next cycle.
func (m *Manager) TryAcquire(ctx context.Context, resourceID, tenantID string) (bool, error) {
	lockID := model.GenerateUUIDWithSuffix("loc")
	return m.store.InsertLock(ctx, lockID, resourceID, tenantID, time.Now())
}

// Release frees the named resource. Deleting a lock that no longer exists is
// a no-op, so Release is safe to call from a defer regardless of outcome.
func (m *Manager) Release(ctx context.Context, resourceID string) error {
	return m.store.DeleteLock(ctx, resourceID)
}

// Sweep reclaims everything abandoned past the lease timeout: expired lock
// rows are deleted and rows stuck EXECUTING since before the cutoff go back
// to INITIAL, so work claimed by a crashed worker re-enters the pool. Returns
// how many leases and claims were recovered.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-m.leaseTimeout)
	expired, err := m.store.DeleteExpiredLocks(ctx, cutoff)
	if err != nil {
		return expired, err
	}
	released, err := m.store.ReleaseStaleClaims(ctx, cutoff)
	return expired + released, err
}

// RunSweeper loops until ctx is cancelled, sweeping on a fixed interval.
// A failed sweep is logged and the loop keeps going; the sweeper must outlive
// any individual storage hiccup or crashed holders stay locked out forever.
func (m *Manager) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	logrus.Infof("lock sweeper started (lease=%s, interval=%s)", m.leaseTimeout, m.sweepInterval)
	for {
		select {
		case <-ctx.Done():
			logrus.Info("lock sweeper stopped")
			return
		case <-ticker.C:
			recovered, err := m.Sweep(ctx)
			if err != nil {
				logrus.Errorf("lock sweep failed: %v", err)
				continue
			}
			if recovered > 0 {
				logrus.Infof("lock sweep recovered %d expired lease(s)", recovered)
			}
		}
	}
}
