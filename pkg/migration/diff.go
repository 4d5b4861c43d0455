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

package migration

import (
	"fmt"
	"sort"
	"strings"

	"saturn.io/saturn/pkg/service/models"
)

const (
	DiffActionCreate = "create_new"
	DiffActionUpdate = "update"
)

type AttributeChange struct {
	Old interface{} `json:"old"`
	New interface{} `json:"new"`
}

type EnvVarDiff struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Changed []string `json:"changed"`
}

type VolumeChanges struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

type VolumeDiff struct {
	Persistent VolumeChanges `json:"persistent"`
}

// DiffResult previews what a migration would change on the target, secrets masked.
type DiffResult struct {
	Action       string                     `json:"action"`
	ResourceName string                     `json:"resource_name"`
	EnvVarCount  int                        `json:"env_vars_count,omitempty"`
	VolumeCount  int                        `json:"volumes_count,omitempty"`
	Attributes   map[string]AttributeChange `json:"attributes,omitempty"`
	EnvVars      *EnvVarDiff                `json:"env_vars,omitempty"`
	Volumes      *VolumeDiff                `json:"volumes,omitempty"`
}

// DiffInput holds the loaded source and, when it exists, target state.
type DiffInput struct {
	Source        models.Resource
	SourceEnvVars []models.EnvironmentVariable
	SourceVolumes []models.LocalPersistentVolume
	Target        models.Resource
	TargetEnvVars []models.EnvironmentVariable
	TargetVolumes []models.LocalPersistentVolume
	UpdateMode    string
}

// Diff is pure: it reads the input only.
func Diff(in DiffInput) (*DiffResult, error) {
	if in.Target == nil {
		return &DiffResult{
			Action:       DiffActionCreate,
			ResourceName: in.Source.GetName(),
			EnvVarCount:  len(in.SourceEnvVars),
			VolumeCount:  len(in.SourceVolumes),
		}, nil
	}
	src, err := models.AttributesOf(in.Source)
	if err != nil {
		return nil, err
	}
	dst, err := models.AttributesOf(in.Target)
	if err != nil {
		return nil, err
	}
	spec, _ := in.Source.Kind().Spec()
	attrs := map[string]AttributeChange{}
	for field, val := range overlayAttributes(spec, src, in.UpdateMode) {
		if fmt.Sprint(val) == fmt.Sprint(dst[field]) {
			continue
		}
		attrs[field] = AttributeChange{Old: maskField(field, dst[field]), New: maskField(field, val)}
	}
	return &DiffResult{
		Action:       DiffActionUpdate,
		ResourceName: in.Target.GetName(),
		Attributes:   attrs,
		EnvVars:      diffEnvVars(in.SourceEnvVars, in.TargetEnvVars),
		Volumes:      &VolumeDiff{Persistent: diffVolumes(in.SourceVolumes, in.TargetVolumes)},
	}, nil
}

// diffEnvVars lists keys only, values are never revealed.
func diffEnvVars(source, target []models.EnvironmentVariable) *EnvVarDiff {
	dst := map[string]string{}
	for _, v := range target {
		dst[v.Key] = v.Value
	}
	ret := &EnvVarDiff{Added: []string{}, Removed: []string{}, Changed: []string{}}
	seen := map[string]bool{}
	for _, v := range source {
		seen[v.Key] = true
		old, ok := dst[v.Key]
		switch {
		case !ok:
			ret.Added = append(ret.Added, v.Key)
		case old != v.Value:
			ret.Changed = append(ret.Changed, v.Key)
		}
	}
	for _, v := range target {
		if !seen[v.Key] {
			ret.Removed = append(ret.Removed, v.Key)
		}
	}
	sort.Strings(ret.Added)
	sort.Strings(ret.Removed)
	sort.Strings(ret.Changed)
	return ret
}

func diffVolumes(source, target []models.LocalPersistentVolume) VolumeChanges {
	dst := map[string]bool{}
	for _, v := range target {
		dst[v.MountPath] = true
	}
	ret := VolumeChanges{Added: []string{}, Removed: []string{}}
	src := map[string]bool{}
	for _, v := range source {
		src[v.MountPath] = true
		if !dst[v.MountPath] {
			ret.Added = append(ret.Added, v.MountPath)
		}
	}
	for _, v := range target {
		if !src[v.MountPath] {
			ret.Removed = append(ret.Removed, v.MountPath)
		}
	}
	sort.Strings(ret.Added)
	sort.Strings(ret.Removed)
	return ret
}

// overlayAttributes are the source attributes written onto an existing target.
// Credentials and environment bound fields stay with the target.
func overlayAttributes(spec models.KindSpec, src map[string]interface{}, mode string) map[string]interface{} {
	if mode == models.UpdateModeConfig {
		return models.Only(src, spec.ConfigFields...)
	}
	attrs := models.Without(models.UpdatableAttributes(src), spec.EnvironmentBoundFields...)
	return models.Without(attrs, accessColumns(attrs)...)
}

// cloneAttributes are the source attributes of a new resource in the target environment.
func cloneAttributes(spec models.KindSpec, src map[string]interface{}) map[string]interface{} {
	return models.Without(models.UpdatableAttributes(src), spec.EnvironmentBoundFields...)
}

var accessColumnPrefixes = []string{
	"postgres_", "mysql_", "mariadb_", "mongo_initdb_", "redis_", "keydb_", "dragonfly_", "clickhouse_",
}

// accessColumns are the user, password and database name columns of a database.
func accessColumns(attrs map[string]interface{}) []string {
	cols := []string{}
	for k := range attrs {
		for _, prefix := range accessColumnPrefixes {
			if strings.HasPrefix(k, prefix) {
				cols = append(cols, k)
				break
			}
		}
	}
	return cols
}
