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

package redis_db

import (
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Redis holds the client and the addresses it was built from. A single
// address yields a plain client, multiple addresses a cluster client.
type Redis struct {
	addresses []string
	client    redis.UniversalClient
}

// ParseRedisURL accepts both full redis:// URLs and docker-style host:port
// addresses.
func ParseRedisURL(rawURL string) (*redis.Options, error) {
	if strings.Count(rawURL, ":") == 1 && !strings.Contains(rawURL, "@") && !strings.Contains(rawURL, "//") {
		return &redis.Options{Addr: rawURL}, nil
	}
	return redis.ParseURL(rawURL)
}

// NewRedisClient connects to the given addresses and returns a wrapper around
// the universal client.
func NewRedisClient(addresses []string) (*Redis, error) {
	if len(addresses) == 0 {
		return nil, errors.New("redis addresses list cannot be empty")
	}

	if len(addresses) == 1 {
		opts, err := ParseRedisURL(addresses[0])
		if err != nil {
			return nil, err
		}
		return &Redis{addresses: addresses, client: redis.NewClient(opts)}, nil
	}

	hosts := make([]string, 0, len(addresses))
	for _, address := range addresses {
		opts, err := ParseRedisURL(address)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, opts.Addr)
	}
	client := redis.NewClusterClient(&redis.ClusterOptions{Addrs: hosts})
	return &Redis{addresses: addresses, client: client}, nil
}

// Client exposes the underlying universal client.
func (r *Redis) Client() redis.UniversalClient {
	return r.client
}

// MakeRedisClient satisfies libraries that construct their own connection
// from an existing client.
func (r *Redis) MakeRedisClient() interface{} {
	return r.client
}
