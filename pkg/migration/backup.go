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
	"fmt"

	"saturn.io/saturn/pkg/service/models"
)

// BackupTrigger starts the standard backup of a database.
type BackupTrigger interface {
	Trigger(ctx context.Context, db *models.Database, teamID uint, databaseName string) (*models.BackupExecution, error)
}

type BackupResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	ExecutionUUID string `json:"execution_uuid,omitempty"`
}

// DefaultBackupDatabase is the database name a backup of db covers.
func DefaultBackupDatabase(db *models.Database) string {
	spec, ok := db.Engine.Spec()
	if !ok || spec.DatabaseField == "" {
		return ""
	}
	if spec.DatabaseField == models.AllDatabases {
		return models.AllDatabases
	}
	attrs, err := models.AttributesOf(db)
	if err != nil {
		return ""
	}
	name, _ := attrs[spec.DatabaseField].(string)
	return name
}

// CreatePreMigrationBackup backs up r before a migration overwrites it.
// Resources without a dump tool need no backup, that is a success.
func CreatePreMigrationBackup(ctx context.Context, trigger BackupTrigger, r models.Resource, m *models.EnvironmentMigration) *BackupResult {
	spec, ok := r.Kind().Spec()
	db, isDatabase := r.(*models.Database)
	if !ok || !isDatabase || !spec.Backupable {
		return &BackupResult{Success: true, Message: "backup not required for this resource type"}
	}
	if trigger == nil {
		return &BackupResult{Message: "backups are not configured"}
	}
	execution, err := trigger.Trigger(ctx, db, m.TeamID, DefaultBackupDatabase(db))
	if err != nil {
		return &BackupResult{Message: fmt.Sprintf("backup could not be started: %v", err)}
	}
	return &BackupResult{
		Success:       true,
		Message:       fmt.Sprintf("backup of %s started", db.Name),
		ExecutionUUID: execution.UUID,
	}
}
