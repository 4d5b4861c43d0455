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
	"context"

	"gorm.io/gorm"
	"saturn.io/saturn/pkg/log"
	"saturn.io/saturn/pkg/service/models"
)

// allowedTargetTypes are the only types a rollback may delete or restore.
var allowedTargetTypes = map[models.ResourceKind]bool{
	models.KindApplication: true,
	models.KindService:     true,
	models.KindPostgreSQL:  true,
	models.KindMySQL:       true,
	models.KindMariaDB:     true,
	models.KindMongoDB:     true,
	models.KindRedis:       true,
	models.KindKeyDB:       true,
	models.KindDragonfly:   true,
	models.KindClickHouse:  true,
}

func IsRollbackTarget(kind models.ResourceKind) bool {
	return allowedTargetTypes[kind]
}

type RollbackResult struct {
	Action       string              `json:"action"`
	TargetType   models.ResourceKind `json:"target_type"`
	TargetID     uint                `json:"target_id"`
	RestoredVars int                 `json:"restored_env_vars,omitempty"`
}

// Rollback reverts a completed migration from its snapshot and marks it rolled back.
// It refuses anything it cannot fully restore.
func Rollback(ctx context.Context, store *Store, m *models.EnvironmentMigration) (*RollbackResult, error) {
	if m.Status != models.MigrationStatusCompleted {
		return nil, Forbidden("Only completed migrations can be rolled back, migration is %s.", m.Status)
	}
	snap, err := LoadSnapshot(m)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, Forbidden("Migration has no rollback snapshot.")
	}
	if m.TargetID == nil {
		return nil, Forbidden("Migration has no recorded target.")
	}
	if !IsRollbackTarget(snap.TargetType) || snap.TargetType != m.TargetType {
		return nil, Forbidden("Rollback of %q is not allowed.", snap.TargetType)
	}
	if !snap.IsNew && snap.TargetID != *m.TargetID {
		return nil, Forbidden("Rollback snapshot does not belong to the migration target.")
	}
	ref := models.ResourceRef{Kind: snap.TargetType, ID: *m.TargetID}
	log := log.FromContextOrDiscard(ctx).WithValues("migration", m.UUID, "target", ref)

	var result *RollbackResult
	err = store.WithContext(ctx).DB.Transaction(func(tx *gorm.DB) error {
		var err error
		if result, err = revertTarget(tx, snap, ref); err != nil {
			return err
		}
		return m.Transition(tx, models.MigrationStatusRolledBack, nil)
	})
	if err != nil {
		return nil, err
	}
	log.Info("migration rolled back", "action", result.Action)
	return result, nil
}

// revertFailed puts the target of a failed execution back to its snapshot.
// A target created by the execution is deleted and detached from the migration.
func revertFailed(ctx context.Context, store *Store, m *models.EnvironmentMigration, snap *Snapshot) (*RollbackResult, error) {
	if snap == nil || m.TargetID == nil {
		return nil, Forbidden("Migration has no rollback snapshot.")
	}
	ref := models.ResourceRef{Kind: snap.TargetType, ID: *m.TargetID}
	var result *RollbackResult
	err := store.WithContext(ctx).DB.Transaction(func(tx *gorm.DB) error {
		var err error
		if result, err = revertTarget(tx, snap, ref); err != nil {
			return err
		}
		if !snap.IsNew {
			return nil
		}
		return tx.Model(&models.EnvironmentMigration{}).Where("id = ?", m.ID).
			Updates(map[string]interface{}{"target_id": nil}).Error
	})
	if err != nil {
		return nil, err
	}
	if snap.IsNew {
		m.TargetID = nil
	}
	return result, nil
}

// revertTarget deletes a created target or restores an updated one from snap.
func revertTarget(tx *gorm.DB, snap *Snapshot, ref models.ResourceRef) (*RollbackResult, error) {
	result := &RollbackResult{TargetType: ref.Kind, TargetID: ref.ID}
	target, err := (&Store{DB: tx}).Find(ref)
	if err != nil {
		return nil, err
	}
	if snap.IsNew {
		result.Action = "deleted"
		return result, deleteResource(tx, target)
	}
	result.Action = "restored"
	if result.RestoredVars, err = restoreResource(tx, target, snap); err != nil {
		return nil, err
	}
	return result, nil
}

// deleteResource removes a resource created by a migration with everything it owns.
func deleteResource(tx *gorm.DB, r models.Resource) error {
	ref := models.RefOf(r)
	for _, owned := range []interface{}{&models.EnvironmentVariable{}, &models.LocalPersistentVolume{}, &models.LocalFileVolume{}} {
		if err := tx.Scopes(models.ScopeResource(ref)).Delete(owned).Error; err != nil {
			return err
		}
	}
	if err := tx.Where("(source_type = ? AND source_id = ?) OR (target_type = ? AND target_id = ?)", ref.Kind, ref.ID, ref.Kind, ref.ID).
		Delete(&models.ResourceLink{}).Error; err != nil {
		return err
	}
	if ref.Kind == models.KindApplication {
		if err := tx.Where("application_id = ?", ref.ID).Delete(&models.ApplicationSetting{}).Error; err != nil {
			return err
		}
	}
	return tx.Unscoped().Delete(r).Error
}

// restoreResource writes back the safe attributes, variables, volumes and settings of the snapshot.
func restoreResource(tx *gorm.DB, r models.Resource, snap *Snapshot) (int, error) {
	ref := models.RefOf(r)
	attrs, err := models.DecodeAttributes(ref.Kind, snap.Attributes)
	if err != nil {
		return 0, WrapKind(ErrorKindInvalid, err, "decode snapshot attributes")
	}
	if restore := models.SafeRestoreAttributes(attrs); len(restore) > 0 {
		if err := tx.Model(r).Updates(restore).Error; err != nil {
			return 0, err
		}
	}

	if err := tx.Scopes(models.ScopeResource(ref)).Delete(&models.EnvironmentVariable{}).Error; err != nil {
		return 0, err
	}
	for _, v := range snap.EnvironmentVariables {
		v.ID, v.ResourceType, v.ResourceID = 0, ref.Kind, ref.ID
		if err := tx.Create(&v).Error; err != nil {
			return 0, err
		}
	}
	if err := tx.Scopes(models.ScopeResource(ref)).Delete(&models.LocalPersistentVolume{}).Error; err != nil {
		return 0, err
	}
	for _, v := range snap.PersistentVolumes {
		v.ID, v.ResourceType, v.ResourceID = 0, ref.Kind, ref.ID
		if err := tx.Create(&v).Error; err != nil {
			return 0, err
		}
	}
	if err := tx.Scopes(models.ScopeResource(ref)).Delete(&models.LocalFileVolume{}).Error; err != nil {
		return 0, err
	}
	for _, v := range snap.FileVolumes {
		v.ID, v.ResourceType, v.ResourceID = 0, ref.Kind, ref.ID
		if err := tx.Create(&v).Error; err != nil {
			return 0, err
		}
	}

	if ref.Kind == models.KindApplication && len(snap.Settings) > 0 {
		settings := restorableSettings(snap.Settings)
		if len(settings) > 0 {
			if err := tx.Model(&models.ApplicationSetting{}).Where("application_id = ?", ref.ID).Updates(settings).Error; err != nil {
				return 0, err
			}
		}
	}
	return len(snap.EnvironmentVariables), nil
}

// restorableSettings keeps the whitelisted boolean toggles only.
func restorableSettings(raw map[string]interface{}) map[string]interface{} {
	ret := map[string]interface{}{}
	for k, v := range models.Only(raw, models.RollbackSettingFields...) {
		if b, ok := v.(bool); ok {
			ret[k] = b
		}
	}
	return ret
}
