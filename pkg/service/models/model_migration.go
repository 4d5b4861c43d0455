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
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type MigrationStatus string

const (
	MigrationStatusPending         MigrationStatus = "pending"
	MigrationStatusPendingApproval MigrationStatus = "pending_approval"
	MigrationStatusApproved        MigrationStatus = "approved"
	MigrationStatusRejected        MigrationStatus = "rejected"
	MigrationStatusInProgress      MigrationStatus = "in_progress"
	MigrationStatusCompleted       MigrationStatus = "completed"
	MigrationStatusFailed          MigrationStatus = "failed"
	MigrationStatusCancelled       MigrationStatus = "cancelled"
	MigrationStatusRolledBack      MigrationStatus = "rolled_back"
)

// migrationTransitions allowed next states of each state
var migrationTransitions = map[MigrationStatus][]MigrationStatus{
	MigrationStatusPending:         {MigrationStatusInProgress, MigrationStatusCancelled},
	MigrationStatusPendingApproval: {MigrationStatusApproved, MigrationStatusRejected, MigrationStatusCancelled},
	MigrationStatusApproved:        {MigrationStatusInProgress, MigrationStatusCancelled},
	MigrationStatusInProgress:      {MigrationStatusCompleted, MigrationStatusFailed},
	MigrationStatusCompleted:       {MigrationStatusRolledBack},
}

var AllMigrationStatuses = []MigrationStatus{
	MigrationStatusPending, MigrationStatusPendingApproval, MigrationStatusApproved, MigrationStatusRejected,
	MigrationStatusInProgress, MigrationStatusCompleted, MigrationStatusFailed, MigrationStatusCancelled,
	MigrationStatusRolledBack,
}

func (s MigrationStatus) Valid() bool {
	for _, v := range AllMigrationStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func (s MigrationStatus) IsTerminal() bool {
	switch s {
	case MigrationStatusCompleted, MigrationStatusFailed, MigrationStatusCancelled,
		MigrationStatusRejected, MigrationStatusRolledBack:
		return true
	}
	return false
}

func (s MigrationStatus) CanTransitionTo(next MigrationStatus) bool {
	for _, v := range migrationTransitions[s] {
		if v == next {
			return true
		}
	}
	return false
}

// TransitionSources returns every state allowed to move to next.
func TransitionSources(next MigrationStatus) []MigrationStatus {
	ret := []MigrationStatus{}
	for _, from := range AllMigrationStatuses {
		if from.CanTransitionTo(next) {
			ret = append(ret, from)
		}
	}
	return ret
}

// ActiveMigrationStatuses are the non terminal states.
func ActiveMigrationStatuses() []MigrationStatus {
	ret := []MigrationStatus{}
	for _, s := range AllMigrationStatuses {
		if !s.IsTerminal() {
			ret = append(ret, s)
		}
	}
	return ret
}

const (
	UpdateModeConfig = "config"
	UpdateModeFull   = "full"
)

// MigrationOptions stored as json in environment_migrations.options
type MigrationOptions struct {
	CopyEnvVars       bool   `json:"copy_env_vars"`
	CopyVolumes       bool   `json:"copy_volumes"`
	CopyData          bool   `json:"copy_data"`
	WaitForReady      bool   `json:"wait_for_ready"`
	UpdateMode        string `json:"update_mode,omitempty" binding:"omitempty,oneof=config full"`
	FQDN              string `json:"fqdn,omitempty"`
	RotateCredentials *bool  `json:"rotate_credentials,omitempty"`
}

func (m MigrationOptions) Value() (driver.Value, error) {
	ba, err := json.Marshal(m)
	return string(ba), err
}

func (m *MigrationOptions) Scan(val interface{}) error {
	var ba []byte
	switch v := val.(type) {
	case nil:
		*m = MigrationOptions{}
		return nil
	case []byte:
		ba = v
	case string:
		ba = []byte(v)
	default:
		return errors.New(fmt.Sprint("failed to unmarshal migration options:", val))
	}
	t := MigrationOptions{}
	err := json.Unmarshal(ba, &t)
	*m = t
	return err
}

func (MigrationOptions) GormDataType() string {
	return "text"
}

// EnvironmentMigration moves one resource from its environment to the next one of the chain.
type EnvironmentMigration struct {
	ID                  uint             `gorm:"primarykey" json:"id"`
	UUID                string           `gorm:"type:varchar(36);uniqueIndex" json:"uuid"`
	TeamID              uint             `gorm:"index" json:"team_id"`
	BatchUUID           string           `gorm:"type:varchar(36);index" json:"batch_uuid,omitempty"`
	SourceType          ResourceKind     `gorm:"type:varchar(30);index:idx_migration_source" json:"source_type"`
	SourceID            uint             `gorm:"index:idx_migration_source" json:"source_id"`
	SourceEnvironmentID uint             `json:"source_environment_id"`
	TargetEnvironmentID uint             `json:"target_environment_id"`
	TargetServerID      uint             `json:"target_server_id"`
	TargetType          ResourceKind     `gorm:"type:varchar(30)" json:"target_type,omitempty"`
	TargetID            *uint            `json:"target_id,omitempty"`
	Options             MigrationOptions `json:"options"`
	Status              MigrationStatus  `gorm:"type:varchar(30);index" json:"status"`
	RequiresApproval    bool             `json:"requires_approval"`
	RequestedBy         uint             `json:"requested_by"`
	ApprovedBy          *uint            `json:"approved_by,omitempty"`
	ApprovedAt          *time.Time       `json:"approved_at,omitempty"`
	RejectionReason     string           `gorm:"type:text" json:"rejection_reason,omitempty"`
	ErrorMessage        string           `gorm:"type:text" json:"error_message,omitempty"`
	Result              datatypes.JSON   `json:"result,omitempty"`
	RollbackSnapshot    datatypes.JSON   `json:"-"`
	// ActiveLock is "<source_type>:<source_id>" while the migration is not terminal and NULL after,
	// the unique index allows one active migration per source.
	ActiveLock  *string    `gorm:"type:varchar(64);uniqueIndex" json:"-"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (m *EnvironmentMigration) Source() ResourceRef {
	return ResourceRef{Kind: m.SourceType, ID: m.SourceID}
}

func ActiveLockOf(ref ResourceRef) *string {
	lock := fmt.Sprintf("%s:%d", ref.Kind, ref.ID)
	return &lock
}

// ErrTransitionConflict is returned when the row left the expected states before the update.
var ErrTransitionConflict = errors.New("migration status changed concurrently")

// Transition moves the migration to next with a conditional update on the current allowed states,
// extra columns are written in the same statement. The in memory record is updated on success.
func (m *EnvironmentMigration) Transition(db *gorm.DB, next MigrationStatus, extra map[string]interface{}) error {
	updates := map[string]interface{}{"status": next}
	for k, v := range extra {
		updates[k] = v
	}
	if next.IsTerminal() {
		updates["active_lock"] = nil
	}
	now := time.Now()
	switch next {
	case MigrationStatusInProgress:
		updates["started_at"] = now
	case MigrationStatusCompleted, MigrationStatusFailed, MigrationStatusRolledBack:
		updates["completed_at"] = now
	}
	ret := db.Model(&EnvironmentMigration{}).
		Where("id = ? AND status IN ?", m.ID, TransitionSources(next)).
		Updates(updates)
	if ret.Error != nil {
		return ret.Error
	}
	if ret.RowsAffected == 0 {
		return ErrTransitionConflict
	}
	return db.First(m, m.ID).Error
}
