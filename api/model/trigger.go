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
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/driftcap/driftcap/model"
)

// SubmitTrigger is the request payload for creating a trigger request.
// Window bounds are RFC3339 timestamps; Records carries the composite
// primary keys of an explicit-record trigger, one key-part slice per row.
type SubmitTrigger struct {
	Kind      string     `json:"kind"`
	TenantID  string     `json:"tenant_id"`
	StartTime string     `json:"start_time"`
	EndTime   string     `json:"end_time"`
	TableName string     `json:"table_name"`
	Records   [][]string `json:"records"`
}

func validateDateFormat(value string) error {
	_, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return errors.New("please format the timestamp as 'YYYY-MM-DDTHH:MM:SS+00:00' (e.g., 2024-04-22T15:28:03+00:00)")
	}
	return nil
}

func rfc3339Rule(value interface{}) error {
	dateStr, ok := value.(string)
	if !ok {
		return errors.New("invalid type for timestamp")
	}
	return validateDateFormat(dateStr)
}

func (t *SubmitTrigger) needsWindow() bool {
	kind := model.TriggerKind(t.Kind)
	return kind == model.KindWindow || kind == model.KindSingleTable
}

func (t *SubmitTrigger) ValidateSubmitTrigger() error {
	kind := model.TriggerKind(t.Kind)
	return validation.ValidateStruct(t,
		validation.Field(&t.Kind, validation.Required, validation.In(
			string(model.KindWindow),
			string(model.KindSingleTable),
			string(model.KindExplicitRecords),
		)),
		validation.Field(&t.StartTime, validation.When(t.needsWindow(), validation.Required, validation.By(rfc3339Rule))),
		validation.Field(&t.EndTime, validation.When(t.needsWindow(), validation.Required, validation.By(rfc3339Rule))),
		validation.Field(&t.TableName, validation.When(kind != model.KindWindow, validation.Required)),
		validation.Field(&t.Records, validation.When(kind == model.KindExplicitRecords, validation.Required, validation.By(func(value interface{}) error {
			records, ok := value.([][]string)
			if !ok {
				return errors.New("invalid type for records")
			}
			for _, record := range records {
				if len(record) == 0 {
					return errors.New("every record needs at least one key part")
				}
			}
			return nil
		}))),
	)
}

// ToTriggerRequest converts the validated payload. Timestamps parse cleanly
// because validation already checked the format.
func (t *SubmitTrigger) ToTriggerRequest() *model.TriggerRequest {
	start, _ := time.Parse(time.RFC3339, t.StartTime)
	end, _ := time.Parse(time.RFC3339, t.EndTime)
	return &model.TriggerRequest{
		Kind:      model.TriggerKind(t.Kind),
		TenantID:  t.TenantID,
		StartTime: start,
		EndTime:   end,
		TableName: t.TableName,
		Records:   t.Records,
	}
}
