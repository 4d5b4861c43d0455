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

import "time"

type BackupStatus string

const (
	BackupStatusRunning BackupStatus = "running"
	BackupStatusSuccess BackupStatus = "success"
	BackupStatusFailed  BackupStatus = "failed"
)

type ScheduledDatabaseBackup struct {
	ID                uint         `gorm:"primarykey" json:"id"`
	UUID              string       `gorm:"type:varchar(36);uniqueIndex" json:"uuid"`
	TeamID            uint         `gorm:"index" json:"team_id"`
	DatabaseType      ResourceKind `gorm:"type:varchar(30)" json:"database_type"`
	DatabaseID        uint         `gorm:"index" json:"database_id"`
	Frequency         string       `gorm:"type:varchar(64)" json:"frequency"`
	DatabasesToBackup string       `gorm:"type:text" json:"databases_to_backup"`
	Enabled           bool         `json:"enabled"`
	SaveS3            bool         `gorm:"column:save_s3" json:"save_s3"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

type BackupExecution struct {
	ID                        uint         `gorm:"primarykey" json:"id"`
	UUID                      string       `gorm:"type:varchar(36);uniqueIndex" json:"uuid"`
	ScheduledDatabaseBackupID uint         `gorm:"index" json:"scheduled_database_backup_id"`
	DatabaseName              string       `gorm:"type:varchar(191)" json:"database_name"`
	Status                    BackupStatus `gorm:"type:varchar(20)" json:"status"`
	Message                   string       `gorm:"type:text" json:"message"`
	Filename                  string       `gorm:"type:varchar(255)" json:"filename"`
	Size                      int64        `json:"size"`
	S3Key                     string       `gorm:"column:s3_key;type:varchar(255)" json:"s3_key"`
	FinishedAt                *time.Time   `json:"finished_at"`
	CreatedAt                 time.Time    `json:"created_at"`
	UpdatedAt                 time.Time    `json:"updated_at"`
}
