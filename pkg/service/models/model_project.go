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

type EnvironmentType string

const (
	EnvironmentTypeDevelopment EnvironmentType = "development"
	EnvironmentTypeUAT         EnvironmentType = "uat"
	EnvironmentTypeProduction  EnvironmentType = "production"
)

type Project struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	UUID      string    `gorm:"type:varchar(36);uniqueIndex" json:"uuid"`
	Name      string    `gorm:"type:varchar(100)" json:"name"`
	TeamID    uint      `gorm:"index" json:"team_id"`
	Team      *Team     `gorm:"constraint:OnUpdate:RESTRICT,OnDelete:CASCADE;" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Environment belongs to a project, project id and name are unique together
type Environment struct {
	ID               uint            `gorm:"primarykey" json:"id"`
	UUID             string          `gorm:"type:varchar(36);uniqueIndex" json:"uuid"`
	Name             string          `gorm:"type:varchar(100);uniqueIndex:uniq_idx_project_env" json:"name"`
	Type             EnvironmentType `gorm:"type:varchar(20);default:development" json:"type"`
	RequiresApproval bool            `json:"requires_approval"`
	ProjectID        uint            `gorm:"uniqueIndex:uniq_idx_project_env" json:"project_id"`
	Project          *Project        `gorm:"constraint:OnUpdate:RESTRICT,OnDelete:CASCADE;" json:"-"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (e *Environment) IsProduction() bool {
	return e.Type == EnvironmentTypeProduction
}
