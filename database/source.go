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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/driftcap/driftcap/internal/apierror"
	"github.com/driftcap/driftcap/model"
)

// placeholder renders the n-th (1-based) bind marker for the configured
// source driver.
func (d Datasource) placeholder(n int) string {
	if d.SourceDriver == "mysql" {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

// FetchChangedKeys scans a monitored table for rows whose audit column falls
// inside the window, applying the table's configured conditions. The
// {start_time} and {end_time} markers in condition values bind to the window
// bounds. Returns serialized primary keys.
func (d Datasource) FetchChangedKeys(ctx context.Context, tc *model.TableConfig, start, end time.Time) ([]string, error) {
	if len(tc.PrimaryKey) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrConfiguration, fmt.Sprintf("Table '%s' has no primary key configured", tc.TableName), nil)
	}
	if tc.AuditColumn == "" {
		return nil, apierror.NewAPIError(apierror.ErrConfiguration, fmt.Sprintf("Table '%s' has no audit column configured", tc.TableName), nil)
	}

	args := []interface{}{start, end}
	clauses := []string{
		fmt.Sprintf("%s >= %s", tc.AuditColumn, d.placeholder(1)),
		fmt.Sprintf("%s < %s", tc.AuditColumn, d.placeholder(2)),
	}
	for _, cond := range tc.Conditions {
		value, err := resolveConditionValue(cond.Value, start, end)
		if err != nil {
			return nil, err
		}
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s %s %s", cond.Column, cond.Operator, d.placeholder(len(args))))
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(tc.PrimaryKey, ", "), tc.TableName, strings.Join(clauses, " AND "))

	rows, err := d.Source.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, fmt.Sprintf("Failed to scan source table '%s'", tc.TableName), err)
	}
	defer rows.Close()

	var keys []string
	values := make([]interface{}, len(tc.PrimaryKey))
	scanTargets := make([]interface{}, len(tc.PrimaryKey))
	for i := range values {
		scanTargets[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan source key", err)
		}
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = stringifyValue(v)
		}
		keys = append(keys, model.SerializeKey(parts))
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over source keys", err)
	}
	return keys, nil
}

// FetchSourceRows reads full rows from a source table matching the criteria
// map (column -> value, ANDed equality).
func (d Datasource) FetchSourceRows(ctx context.Context, tableName string, criteria map[string]interface{}) ([]map[string]interface{}, error) {
	var clauses []string
	var args []interface{}
	for column, value := range criteria {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = %s", column, d.placeholder(len(args))))
	}

	query := fmt.Sprintf("SELECT * FROM %s", tableName)
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := d.Source.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, fmt.Sprintf("Failed to read source table '%s'", tableName), err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read source columns", err)
	}

	var results []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		scanTargets := make([]interface{}, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan source row", err)
		}
		row := make(map[string]interface{}, len(columns))
		for i, column := range columns {
			// Drivers hand text columns back as []byte; normalize so the
			// assembler sees plain strings.
			if b, ok := values[i].([]byte); ok {
				row[column] = string(b)
			} else {
				row[column] = values[i]
			}
		}
		results = append(results, row)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over source rows", err)
	}
	return results, nil
}

// conditionTimeLayouts are the datetime shapes recognized in condition
// values, tried in order.
var conditionTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func resolveConditionValue(raw string, start, end time.Time) (interface{}, error) {
	switch raw {
	case "{start_time}":
		return start, nil
	case "{end_time}":
		return end, nil
	}
	if strings.Contains(raw, "{start_time}") || strings.Contains(raw, "{end_time}") {
		return nil, apierror.NewAPIError(apierror.ErrConfiguration, "Time markers must be the entire condition value", nil)
	}
	// Condition values arrive as strings; a datetime literal must bind as
	// time.Time or the comparison degrades to text collation on some
	// drivers.
	for _, layout := range conditionTimeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return raw, nil
}

func stringifyValue(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(value)
	case string:
		return value
	case int64:
		return strconv.FormatInt(value, 10)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case time.Time:
		return value.Format(time.RFC3339)
	case bool:
		return strconv.FormatBool(value)
	default:
		return fmt.Sprintf("%v", value)
	}
}
