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
package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"

	"github.com/driftcap/driftcap/model"
)

func newTestCache(t *testing.T) *RedisCache {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := newRedisCache([]string{mr.Addr()})
	assert.NoError(t, err)
	return c
}

func TestSetAndGet(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	in := []*model.ModuleConfig{
		{ModuleID: "mod_1", TenantID: "tenant-a", Name: "sales", Priority: 0},
	}
	assert.NoError(t, c.Set(ctx, "configs:modules:tenant-a", in, time.Minute))

	var out []*model.ModuleConfig
	assert.NoError(t, c.Get(ctx, "configs:modules:tenant-a", &out))
	assert.Len(t, out, 1)
	assert.Equal(t, "sales", out[0].Name)
}

func TestGetMissLeavesTargetEmpty(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	var out []*model.ModuleConfig
	assert.NoError(t, c.Get(ctx, "configs:modules:nobody", &out))
	assert.Empty(t, out)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	assert.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	assert.NoError(t, c.Delete(ctx, "k"))

	var out string
	assert.NoError(t, c.Get(ctx, "k", &out))
	assert.Empty(t, out)
}
