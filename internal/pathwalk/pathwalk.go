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

// Package pathwalk applies dot-path transforms to assembled documents.
//
// All transforms share one traversal: the path is split into segments and
// walked recursively over the generic map/list/scalar tree. When a segment
// lands on a list, the remaining path is mapped over every element instead of
// erroring, so "order_items.price" reaches into each item of an array.
package pathwalk

import (
	"encoding/json"
	"fmt"
	"strings"
)

// walk descends node following segments and calls visit with the map holding
// the final segment. Missing segments are a no-op.
func walk(node interface{}, segments []string, visit func(container map[string]interface{}, key string)) {
	if len(segments) == 0 {
		return
	}
	switch n := node.(type) {
	case map[string]interface{}:
		if len(segments) == 1 {
			if _, ok := n[segments[0]]; ok {
				visit(n, segments[0])
			}
			return
		}
		walk(n[segments[0]], segments[1:], visit)
	case []interface{}:
		for _, item := range n {
			walk(item, segments, visit)
		}
	}
}

// IgnorePath removes the field at path everywhere it occurs in doc.
func IgnorePath(doc interface{}, path string) {
	walk(doc, strings.Split(path, "."), func(container map[string]interface{}, key string) {
		delete(container, key)
	})
}

// FlattenPath replaces a list value at path with a delimiter-joined string.
// Stringified JSON arrays (a common shape for audit columns) flatten too;
// scalar values are left untouched.
func FlattenPath(doc interface{}, path, delimiter string) {
	walk(doc, strings.Split(path, "."), func(container map[string]interface{}, key string) {
		switch v := container[key].(type) {
		case []interface{}:
			container[key] = joinList(v, delimiter)
		case string:
			var list []interface{}
			if err := json.Unmarshal([]byte(v), &list); err == nil {
				container[key] = joinList(list, delimiter)
			}
		}
	})
}

// ParseJSONPath parses a stringified JSON field at path into its structured
// value. Fields that do not hold valid JSON are left as-is.
func ParseJSONPath(doc interface{}, path string) {
	walk(doc, strings.Split(path, "."), func(container map[string]interface{}, key string) {
		raw, ok := container[key].(string)
		if !ok {
			return
		}
		var parsed interface{}
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			container[key] = parsed
		}
	})
}

func joinList(list []interface{}, delimiter string) string {
	parts := make([]string, 0, len(list))
	for _, v := range list {
		parts = append(parts, fmt.Sprintf("%v", v))
	}
	return strings.Join(parts, delimiter)
}
