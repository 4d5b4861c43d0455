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
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"saturn.io/saturn/pkg/service/models"
)

// Snapshot is the state of the target before a migration touched it.
// A snapshot of a new resource only records which resource was created.
type Snapshot struct {
	IsNew                bool                           `json:"is_new"`
	TargetType           models.ResourceKind            `json:"target_type"`
	TargetID             uint                           `json:"target_id,omitempty"`
	Attributes           json.RawMessage                `json:"attributes,omitempty"`
	EnvironmentVariables []models.EnvironmentVariable   `json:"environment_variables,omitempty"`
	PersistentVolumes    []models.LocalPersistentVolume `json:"persistent_volumes,omitempty"`
	FileVolumes          []models.LocalFileVolume       `json:"file_volumes,omitempty"`
	Settings             map[string]interface{}         `json:"settings,omitempty"`
}

// TakeSnapshot captures target, nil target means the migration creates a new resource of kind.
func TakeSnapshot(store *Store, kind models.ResourceKind, target models.Resource) (*Snapshot, error) {
	if target == nil {
		return &Snapshot{IsNew: true, TargetType: kind}, nil
	}
	ref := models.RefOf(target)
	attrs, err := json.Marshal(target)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{TargetType: ref.Kind, TargetID: ref.ID, Attributes: attrs}
	if snap.EnvironmentVariables, err = store.EnvironmentVariables(ref); err != nil {
		return nil, err
	}
	if snap.PersistentVolumes, err = store.PersistentVolumes(ref); err != nil {
		return nil, err
	}
	if snap.FileVolumes, err = store.FileVolumes(ref); err != nil {
		return nil, err
	}
	if ref.Kind == models.KindApplication {
		setting, err := store.ApplicationSetting(ref.ID)
		if err != nil {
			return nil, err
		}
		if setting != nil {
			all := map[string]interface{}{}
			raw, _ := json.Marshal(setting)
			if err := json.Unmarshal(raw, &all); err != nil {
				return nil, err
			}
			snap.Settings = models.Only(all, models.RollbackSettingFields...)
		}
	}
	return snap, nil
}

// saveSnapshot writes the snapshot of m once, a second write is a no-op.
func saveSnapshot(db *gorm.DB, m *models.EnvironmentMigration, snap *Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	ret := db.Model(&models.EnvironmentMigration{}).
		Where("id = ? AND rollback_snapshot IS NULL", m.ID).
		Update("rollback_snapshot", datatypes.JSON(raw))
	if ret.Error != nil {
		return ret.Error
	}
	if ret.RowsAffected > 0 {
		m.RollbackSnapshot = datatypes.JSON(raw)
	}
	return nil
}

// LoadSnapshot decodes the stored snapshot of m, nil when none was stored.
func LoadSnapshot(m *models.EnvironmentMigration) (*Snapshot, error) {
	if len(m.RollbackSnapshot) == 0 || string(m.RollbackSnapshot) == "null" {
		return nil, nil
	}
	snap := &Snapshot{}
	if err := json.Unmarshal(m.RollbackSnapshot, snap); err != nil {
		return nil, WrapKind(ErrorKindInvalid, err, "corrupted rollback snapshot")
	}
	return snap, nil
}
