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
package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Lifecycle statuses shared by trigger requests, change records, change
// documents and scheduled tasks. A row only ever moves forward:
// INITIAL -> EXECUTING -> SUCCESS | FAIL.
const (
	StatusInitial   = "INITIAL"
	StatusExecuting = "EXECUTING"
	StatusSuccess   = "SUCCESS"
	StatusFail      = "FAIL"
)

// KeyDelimiter joins the values of a composite source primary key into a
// single lookup string, e.g. "v1,v2,v3".
const KeyDelimiter = ","

// GenerateUUIDWithSuffix generates a new UUID prefixed with the given module
// short code, e.g. "req_7f9c...".
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", module, id.String())
}

// SerializeKey turns composite primary-key values into their delimited form.
func SerializeKey(values []string) string {
	return strings.Join(values, KeyDelimiter)
}

// ParseKey is the inverse of SerializeKey.
func ParseKey(key string) []string {
	if key == "" {
		return nil
	}
	return strings.Split(key, KeyDelimiter)
}

// DocumentResourceID derives the deterministic idempotency key of a change
// document from the root's primary-key values, the root table, the owning
// model and the trigger request. The same source change resubmitted in the
// same request always maps to the same id, which is how duplicates are
// detected across retries.
func DocumentResourceID(rootKey []string, rootTable, modelName, requestID string) string {
	parts := make([]string, 0, len(rootKey)+3)
	parts = append(parts, rootKey...)
	parts = append(parts, rootTable, modelName, requestID)
	return strings.Join(parts, KeyDelimiter)
}

// TaskResourceID derives a scheduled task's idempotency key from the document
// it was posted from.
func TaskResourceID(documentID, requestID string) string {
	return fmt.Sprintf("%s%s%s", documentID, KeyDelimiter, requestID)
}

// TruncateError renders an error for persistence in a result column, bounded
// to max bytes so oversized driver messages cannot break the insert.
func TruncateError(err error, max int) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if max > 0 && len(msg) > max {
		return msg[:max]
	}
	return msg
}
