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

// Service a docker compose based stack
type Service struct {
	ID                     uint           `gorm:"primarykey" json:"id"`
	UUID                   string         `gorm:"type:varchar(36);uniqueIndex" json:"uuid"`
	Name                   string         `gorm:"type:varchar(191)" json:"name"`
	Description            string         `gorm:"type:text" json:"description"`
	DockerComposeRaw       string         `gorm:"type:text" json:"docker_compose_raw"`
	DockerCompose          string         `gorm:"type:text" json:"docker_compose"`
	ConnectToDockerNetwork bool           `json:"connect_to_docker_network"`
	PortsMappings          string         `gorm:"type:varchar(255)" json:"ports_mappings"`
	Status                 string         `gorm:"type:varchar(64);default:exited" json:"status"`
	EnvironmentID          uint           `gorm:"index" json:"environment_id"`
	DestinationID          uint           `gorm:"index" json:"destination_id"`
	CreatedAt              time.Time      `json:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at"`
	DeletedAt              gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

func (s *Service) Kind() ResourceKind     { return KindService }
func (s *Service) GetID() uint            { return s.ID }
func (s *Service) GetUUID() string        { return s.UUID }
func (s *Service) GetName() string        { return s.Name }
func (s *Service) GetEnvironmentID() uint { return s.EnvironmentID }
func (s *Service) GetDestinationID() uint { return s.DestinationID }
func (s *Service) GetStatus() string      { return s.Status }
