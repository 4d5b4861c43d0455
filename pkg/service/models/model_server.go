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

	"saturn.io/saturn/pkg/utils/remote"
)

type Server struct {
	ID          uint   `gorm:"primarykey" json:"id"`
	UUID        string `gorm:"type:varchar(36);uniqueIndex" json:"uuid"`
	Name        string `gorm:"type:varchar(100)" json:"name"`
	IP          string `gorm:"type:varchar(255)" json:"ip"`
	Port        int    `gorm:"default:22" json:"port"`
	User        string `gorm:"type:varchar(64);default:root" json:"user"`
	PrivateKey  string `gorm:"type:text" json:"-"`
	IsReachable bool   `json:"is_reachable"`
	IsUsable    bool   `json:"is_usable"`
	TeamID      uint   `gorm:"index" json:"team_id"`
	// Destinations docker networks on this server resources are deployed into
	Destinations []Destination `json:"-"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// IsFunctional reports the last known health of the server.
func (s *Server) IsFunctional() bool {
	return s.IsReachable && s.IsUsable
}

func (s *Server) Target() remote.Target {
	return remote.Target{
		Name:       s.Name,
		Host:       s.IP,
		Port:       s.Port,
		User:       s.User,
		PrivateKey: s.PrivateKey,
	}
}

type Destination struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	UUID      string    `gorm:"type:varchar(36);uniqueIndex" json:"uuid"`
	Name      string    `gorm:"type:varchar(100)" json:"name"`
	Network   string    `gorm:"type:varchar(100)" json:"network"`
	ServerID  uint      `gorm:"index" json:"server_id"`
	Server    *Server   `gorm:"constraint:OnUpdate:RESTRICT,OnDelete:CASCADE;" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
