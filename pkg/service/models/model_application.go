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
	"time"

	"gorm.io/gorm"
)

type Application struct {
	ID                  uint           `gorm:"primarykey" json:"id"`
	UUID                string         `gorm:"type:varchar(36);uniqueIndex" json:"uuid"`
	Name                string         `gorm:"type:varchar(191)" json:"name"`
	Description         string         `gorm:"type:text" json:"description"`
	FQDN                string         `gorm:"column:fqdn;type:varchar(255)" json:"fqdn"`
	GitRepository       string         `gorm:"type:varchar(255)" json:"git_repository"`
	GitBranch           string         `gorm:"type:varchar(191)" json:"git_branch"`
	GitCommitSha        string         `gorm:"type:varchar(64);default:HEAD" json:"git_commit_sha"`
	BuildPack           string         `gorm:"type:varchar(30);default:nixpacks" json:"build_pack"`
	Dockerfile          string         `gorm:"type:text" json:"dockerfile"`
	DockerComposeRaw    string         `gorm:"type:text" json:"docker_compose_raw"`
	BaseDirectory       string         `gorm:"type:varchar(255);default:/" json:"base_directory"`
	PublishDirectory    string         `gorm:"type:varchar(255)" json:"publish_directory"`
	InstallCommand      string         `gorm:"type:text" json:"install_command"`
	BuildCommand        string         `gorm:"type:text" json:"build_command"`
	StartCommand        string         `gorm:"type:text" json:"start_command"`
	PortsExposes        string         `gorm:"type:varchar(255)" json:"ports_exposes"`
	PortsMappings       string         `gorm:"type:varchar(255)" json:"ports_mappings"`
	HealthCheckEnabled  bool           `json:"health_check_enabled"`
	HealthCheckPath     string         `gorm:"type:varchar(255);default:/" json:"health_check_path"`
	HealthCheckPort     string         `gorm:"type:varchar(10)" json:"health_check_port"`
	CustomLabels        string         `gorm:"type:text" json:"custom_labels"`
	LimitsMemory        string         `gorm:"type:varchar(20);default:0" json:"limits_memory"`
	LimitsCpus          string         `gorm:"type:varchar(20);default:0" json:"limits_cpus"`
	ManualWebhookSecret string         `gorm:"type:varchar(191)" json:"manual_webhook_secret"`
	Status              string         `gorm:"type:varchar(64);default:exited" json:"status"`
	EnvironmentID       uint           `gorm:"index" json:"environment_id"`
	DestinationID       uint           `gorm:"index" json:"destination_id"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"deleted_at"`

	Settings *ApplicationSetting `json:"-"`
}

func (a *Application) Kind() ResourceKind     { return KindApplication }
func (a *Application) GetID() uint            { return a.ID }
func (a *Application) GetUUID() string        { return a.UUID }
func (a *Application) GetName() string        { return a.Name }
func (a *Application) GetEnvironmentID() uint { return a.EnvironmentID }
func (a *Application) GetDestinationID() uint { return a.DestinationID }
func (a *Application) GetStatus() string      { return a.Status }

// ApplicationSetting toggles of one application
type ApplicationSetting struct {
	ID                          uint      `gorm:"primarykey" json:"id"`
	ApplicationID               uint      `gorm:"uniqueIndex" json:"application_id"`
	IsAutoDeployEnabled         bool      `json:"is_auto_deploy_enabled"`
	IsForceHTTPSEnabled         bool      `gorm:"column:is_force_https_enabled" json:"is_force_https_enabled"`
	IsPreviewDeploymentsEnabled bool      `json:"is_preview_deployments_enabled"`
	IsRollbackEnabled           bool      `json:"is_rollback_enabled"`
	IsAutoRollbackEnabled       bool      `json:"is_auto_rollback_enabled"`
	IsBuildServerEnabled        bool      `json:"is_build_server_enabled"`
	IsDebugEnabled              bool      `json:"is_debug_enabled"`
	CreatedAt                   time.Time `json:"created_at"`
	UpdatedAt                   time.Time `json:"updated_at"`
}

// RollbackSettingFields are the setting columns a migration rollback restores.
var RollbackSettingFields = []string{
	"is_rollback_enabled",
	"is_auto_rollback_enabled",
	"is_build_server_enabled",
	"is_debug_enabled",
}

type DeploymentStatus string

const (
	DeploymentStatusPendingApproval DeploymentStatus = "pending_approval"
	DeploymentStatusQueued          DeploymentStatus = "queued"
	DeploymentStatusInProgress      DeploymentStatus = "in_progress"
	DeploymentStatusFinished        DeploymentStatus = "finished"
	DeploymentStatusFailed          DeploymentStatus = "failed"
	DeploymentStatusCancelled       DeploymentStatus = "cancelled"
)

// ApplicationDeploymentQueue one deployment of an application
type ApplicationDeploymentQueue struct {
	ID            uint             `gorm:"primarykey" json:"id"`
	UUID          string           `gorm:"type:varchar(36);uniqueIndex" json:"deployment_uuid"`
	ApplicationID uint             `gorm:"index" json:"application_id"`
	Application   *Application     `gorm:"constraint:OnUpdate:RESTRICT,OnDelete:CASCADE;" json:"-"`
	ServerID      uint             `json:"server_id"`
	TeamID        uint             `gorm:"index" json:"team_id"`
	CommitSha     string           `gorm:"type:varchar(64);default:HEAD" json:"commit"`
	ForceRebuild  bool             `json:"force_rebuild"`
	Status        DeploymentStatus `gorm:"type:varchar(30);index" json:"status"`
	RequestedBy   uint             `json:"requested_by"`
	Message       string           `gorm:"type:text" json:"message"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}
