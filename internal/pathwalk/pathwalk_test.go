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
package pathwalk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIgnorePath(t *testing.T) {
	doc := map[string]interface{}{
		"id": "42",
		"customer": map[string]interface{}{
			"name":   "ada",
			"secret": "x",
		},
	}
	IgnorePath(doc, "customer.secret")
	customer := doc["customer"].(map[string]interface{})
	assert.NotContains(t, customer, "secret")
	assert.Equal(t, "ada", customer["name"])
}

func TestIgnorePathDescendsIntoLists(t *testing.T) {
	doc := map[string]interface{}{
		"order_items": []interface{}{
			map[string]interface{}{"sku": "a", "cost": 1},
			map[string]interface{}{"sku": "b", "cost": 2},
		},
	}
	IgnorePath(doc, "order_items.cost")
	for _, item := range doc["order_items"].([]interface{}) {
		assert.NotContains(t, item.(map[string]interface{}), "cost")
	}
}

func TestIgnorePathMissingFieldIsNoop(t *testing.T) {
	doc := map[string]interface{}{"id": "42"}
	IgnorePath(doc, "nope.deeper")
	assert.Equal(t, map[string]interface{}{"id": "42"}, doc)
}

func TestFlattenPathList(t *testing.T) {
	doc := map[string]interface{}{
		"tags": []interface{}{"a", "b", "c"},
	}
	FlattenPath(doc, "tags", ",")
	assert.Equal(t, "a,b,c", doc["tags"])
}

func TestFlattenPathStringifiedList(t *testing.T) {
	doc := map[string]interface{}{
		"tags": `["a","b"]`,
	}
	FlattenPath(doc, "tags", ",")
	assert.Equal(t, "a,b", doc["tags"])
}

func TestFlattenPathScalarUntouched(t *testing.T) {
	doc := map[string]interface{}{"tags": "plain"}
	FlattenPath(doc, "tags", ",")
	assert.Equal(t, "plain", doc["tags"])
}

func TestParseJSONPath(t *testing.T) {
	doc := map[string]interface{}{
		"payload": `{"a":1,"b":[2,3]}`,
	}
	ParseJSONPath(doc, "payload")
	parsed := doc["payload"].(map[string]interface{})
	assert.Equal(t, float64(1), parsed["a"])
}

func TestParseJSONPathInvalidLeftAsIs(t *testing.T) {
	doc := map[string]interface{}{"payload": "{not json"}
	ParseJSONPath(doc, "payload")
	assert.Equal(t, "{not json", doc["payload"])
}
