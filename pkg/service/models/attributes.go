// Copyright 2024 The saturn.io Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package models

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"gorm.io/gorm/schema"
)

// IdentityFields never leave the row they belong to: they are stripped before copying
// attributes to another resource and before restoring attributes from a snapshot.
var IdentityFields = []string{
	"id", "uuid",
	"created_at", "updated_at", "deleted_at",
	"environment_id", "destination_id", "destination_type",
	"status",
}

var schemaCache = &sync.Map{}

func parseSchema(v interface{}) (*schema.Schema, error) {
	return schema.Parse(v, schemaCache, schema.NamingStrategy{})
}

// AttributesOf returns the column values of a resource keyed by column name.
func AttributesOf(r Resource) (map[string]interface{}, error) {
	s, err := parseSchema(r)
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(r)
	ret := make(map[string]interface{}, len(s.Fields))
	for _, field := range s.Fields {
		if field.DBName == "" {
			continue
		}
		val, _ := field.ValueOf(context.Background(), rv)
		ret[field.DBName] = val
	}
	return ret, nil
}

// SetAttributes assigns column values onto r, unknown columns are errors.
func SetAttributes(r Resource, attrs map[string]interface{}) error {
	s, err := parseSchema(r)
	if err != nil {
		return err
	}
	rv := reflect.ValueOf(r)
	for k, v := range attrs {
		field := s.LookUpField(k)
		if field == nil || field.DBName == "" {
			return fmt.Errorf("unknown attribute %s of %s", k, r.Kind())
		}
		if err := field.Set(context.Background(), rv, v); err != nil {
			return fmt.Errorf("set attribute %s: %w", k, err)
		}
	}
	return nil
}

func Without(attrs map[string]interface{}, fields ...string) map[string]interface{} {
	ret := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		ret[k] = v
	}
	for _, f := range fields {
		delete(ret, f)
	}
	return ret
}

func Only(attrs map[string]interface{}, fields ...string) map[string]interface{} {
	ret := map[string]interface{}{}
	for _, f := range fields {
		if v, ok := attrs[f]; ok {
			ret[f] = v
		}
	}
	return ret
}

// UpdatableAttributes are the attributes copied from a source resource onto a clone or an existing target.
func UpdatableAttributes(attrs map[string]interface{}) map[string]interface{} {
	return Without(attrs, IdentityFields...)
}

// SafeRestoreAttributes are the snapshot attributes a rollback may write back.
func SafeRestoreAttributes(attrs map[string]interface{}) map[string]interface{} {
	return Without(attrs, IdentityFields...)
}

// DecodeAttributes turns a json object of column values back into typed values of kind,
// keeping only the keys present in raw.
func DecodeAttributes(kind ResourceKind, raw json.RawMessage) (map[string]interface{}, error) {
	spec, ok := Kinds[kind]
	if !ok {
		return nil, fmt.Errorf("unknown resource kind %q", kind)
	}
	keys := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, err
	}
	r := spec.New()
	if err := json.Unmarshal(raw, r); err != nil {
		return nil, err
	}
	all, err := AttributesOf(r)
	if err != nil {
		return nil, err
	}
	ret := map[string]interface{}{}
	for k := range keys {
		if v, ok := all[k]; ok {
			ret[k] = v
		}
	}
	return ret, nil
}

// SortedKeys returns the keys of attrs in lexical order.
func SortedKeys(attrs map[string]interface{}) []string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
