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
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/driftcap/driftcap/config"
	"github.com/driftcap/driftcap/internal/apierror"
	"github.com/driftcap/driftcap/internal/pathwalk"
	"github.com/driftcap/driftcap/model"
)

// AssembleDocuments is one assembly cycle: claim a batch of pending change
// records and turn each into a nested change document rooted at the top of
// its configured entity graph. A record that cannot be assembled is archived
// FAIL with a truncated error instead of stopping the batch.
func (d *Driftcap) AssembleDocuments(ctx context.Context) error {
	ctx, span := otel.Tracer("driftcap.assembler").Start(ctx, "Assembling change documents")
	defer span.End()

	cnf, err := config.Fetch()
	if err != nil {
		return err
	}
	records, err := d.datasource.LockPendingRecords(ctx, d.tenantID, cnf.Worker.BatchSize)
	if err != nil {
		return err
	}

	for _, rec := range records {
		if err := d.assembleRecord(ctx, rec); err != nil {
			logrus.Errorf("assembly failed for record %s (%s key=%s): %v", rec.RecordID, rec.TableName, rec.RecordKey, err)
			result := model.TruncateError(err, cnf.Worker.ResultMaxLength)
			if archiveErr := d.datasource.ArchiveChangeRecord(ctx, rec, model.StatusFail, result); archiveErr != nil {
				logrus.Errorf("failed to archive record %s: %v", rec.RecordID, archiveErr)
			}
		}
	}
	return nil
}

func (d *Driftcap) assembleRecord(ctx context.Context, rec *model.ChangeRecord) error {
	tableConfig, err := d.datasource.GetTableConfig(ctx, rec.TenantID, rec.TableName)
	if err != nil {
		return err
	}

	rootConfig, rootRow, err := d.resolveRoot(ctx, tableConfig, model.ParseKey(rec.RecordKey))
	if err != nil {
		return err
	}

	rootKey := make([]string, len(rootConfig.PrimaryKey))
	for i, column := range rootConfig.PrimaryKey {
		rootKey[i] = fmt.Sprintf("%v", rootRow[column])
	}
	objectID := model.SerializeKey(rootKey)
	resourceID := model.DocumentResourceID(rootKey, rootConfig.TableName, rootConfig.ModelName, rec.RequestID)

	// Stamp the resolved root on the record so its history row carries it.
	rec.RootTable = rootConfig.TableName
	rec.RootKey = objectID

	// The same root can be reached from several changed rows in one window.
	// Only the first arrival produces a document.
	exists, err := d.datasource.DocumentResourceExists(ctx, resourceID)
	if err != nil {
		return err
	}
	if exists {
		return d.datasource.ArchiveChangeRecord(ctx, rec, model.StatusSuccess, "duplicate resource")
	}

	content, err := d.buildDocument(ctx, rootConfig, rootRow)
	if err != nil {
		return err
	}
	applyPathTransforms(content, rootConfig)

	dependsOn, err := resolveDependencies(rootConfig, rootRow)
	if err != nil {
		return err
	}

	sequence, err := d.datasource.NextDocumentSequence(ctx, rec.RequestID, rootConfig.ModelName, objectID)
	if err != nil {
		return err
	}

	doc := &model.ChangeDocument{
		DocumentID: model.GenerateUUIDWithSuffix("doc"),
		ResourceID: resourceID,
		RequestID:  rec.RequestID,
		TenantID:   rec.TenantID,
		ModelName:  rootConfig.ModelName,
		ObjectID:   objectID,
		RootTable:  rootConfig.TableName,
		Content:    content,
		DependsOn:  dependsOn,
		Sequence:   sequence,
		Status:     model.StatusInitial,
		CreatedAt:  time.Now(),
	}

	err = d.datasource.CreateDocumentAndArchiveRecord(ctx, doc, rec)
	if err != nil && apierror.IsCode(err, apierror.ErrConflict) {
		// Another worker assembled the same root concurrently.
		return d.datasource.ArchiveChangeRecord(ctx, rec, model.StatusSuccess, "duplicate resource")
	}
	return err
}

// resolveRoot walks parentName/joinKeys upward from the changed row until it
// reaches a table config with no parent, returning that config and the root
// row. A join that yields zero or multiple rows is a configuration error.
func (d *Driftcap) resolveRoot(ctx context.Context, tc *model.TableConfig, keyParts []string) (*model.TableConfig, map[string]interface{}, error) {
	if len(keyParts) != len(tc.PrimaryKey) {
		return nil, nil, apierror.NewAPIError(apierror.ErrConfiguration,
			fmt.Sprintf("Record key has %d parts but table '%s' has %d primary key columns", len(keyParts), tc.TableName, len(tc.PrimaryKey)), nil)
	}
	criteria := make(map[string]interface{}, len(tc.PrimaryKey))
	for i, column := range tc.PrimaryKey {
		criteria[column] = keyParts[i]
	}

	row, err := d.fetchExactlyOne(ctx, tc.TableName, criteria)
	if err != nil {
		return nil, nil, err
	}

	for tc.ParentName != "" {
		parentConfig, err := d.datasource.GetTableConfig(ctx, tc.TenantID, tc.ParentName)
		if err != nil {
			return nil, nil, err
		}
		criteria = make(map[string]interface{}, len(tc.JoinKeys))
		for _, jk := range tc.JoinKeys {
			criteria[jk.Parent] = row[jk.Child]
		}
		if len(criteria) == 0 {
			return nil, nil, apierror.NewAPIError(apierror.ErrConfiguration,
				fmt.Sprintf("Table '%s' names parent '%s' but has no join keys", tc.TableName, tc.ParentName), nil)
		}
		row, err = d.fetchExactlyOne(ctx, parentConfig.TableName, criteria)
		if err != nil {
			return nil, nil, err
		}
		tc = parentConfig
	}
	return tc, row, nil
}

func (d *Driftcap) fetchExactlyOne(ctx context.Context, tableName string, criteria map[string]interface{}) (map[string]interface{}, error) {
	rows, err := d.datasource.FetchSourceRows(ctx, tableName, criteria)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, apierror.NewAPIError(apierror.ErrConfiguration,
			fmt.Sprintf("Expected exactly one row in '%s' for %v, found %d", tableName, criteria, len(rows)), nil)
	}
	return rows[0], nil
}

// buildDocument attaches every configured child table's matching rows under
// the parent, depth-first. Parent/child is a configured tree, so there is no
// cycle to guard against.
func (d *Driftcap) buildDocument(ctx context.Context, tc *model.TableConfig, row map[string]interface{}) (map[string]interface{}, error) {
	content := make(map[string]interface{}, len(row))
	for column, value := range row {
		content[column] = value
	}

	children, err := d.datasource.GetChildTableConfigs(ctx, tc.TenantID, tc.ModelName, tc.TableName)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		criteria := make(map[string]interface{}, len(child.JoinKeys))
		for _, jk := range child.JoinKeys {
			criteria[jk.Child] = row[jk.Parent]
		}
		if len(criteria) == 0 {
			return nil, apierror.NewAPIError(apierror.ErrConfiguration,
				fmt.Sprintf("Child table '%s' of '%s' has no join keys", child.TableName, tc.TableName), nil)
		}
		childRows, err := d.datasource.FetchSourceRows(ctx, child.TableName, criteria)
		if err != nil {
			return nil, err
		}
		nested := make([]interface{}, 0, len(childRows))
		for _, childRow := range childRows {
			childContent, err := d.buildDocument(ctx, child, childRow)
			if err != nil {
				return nil, err
			}
			nested = append(nested, childContent)
		}
		content[child.TableName] = nested
	}
	return content, nil
}

func applyPathTransforms(content map[string]interface{}, tc *model.TableConfig) {
	for _, path := range tc.IgnorePaths {
		pathwalk.IgnorePath(content, path)
	}
	for _, path := range tc.FlattenPaths {
		pathwalk.FlattenPath(content, path, model.KeyDelimiter)
	}
	for _, path := range tc.JSONPaths {
		pathwalk.ParseJSONPath(content, path)
	}
}

// resolveDependencies maps the root table's declared cross-model dependencies
// to concrete {modelName, objectId} pairs using the root row's column values.
func resolveDependencies(tc *model.TableConfig, row map[string]interface{}) ([]model.DependsOn, error) {
	var deps []model.DependsOn
	for _, dep := range tc.DependOn {
		value, ok := row[dep.ObjectKey]
		if !ok || value == nil {
			return nil, apierror.NewAPIError(apierror.ErrConfiguration,
				fmt.Sprintf("Dependency column '%s' missing on table '%s'", dep.ObjectKey, tc.TableName), nil)
		}
		deps = append(deps, model.DependsOn{
			ModelName: dep.ModelName,
			ObjectID:  fmt.Sprintf("%v", value),
		})
	}
	return deps, nil
}
