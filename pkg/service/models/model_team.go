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

const (
	RoleOwner     = "owner"
	RoleAdmin     = "admin"
	RoleDeveloper = "developer"
	RoleMember    = "member"
)

// Team is the tenant boundary, every resource belongs to exactly one team.
type Team struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Name      string    `gorm:"type:varchar(100);uniqueIndex" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type User struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Name      string    `gorm:"type:varchar(100)" json:"name"`
	Email     string    `gorm:"type:varchar(191);uniqueIndex" json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TeamMember team id and user id are unique together
type TeamMember struct {
	ID     uint   `gorm:"primarykey" json:"id"`
	TeamID uint   `gorm:"uniqueIndex:uniq_idx_team_user" json:"team_id"`
	UserID uint   `gorm:"uniqueIndex:uniq_idx_team_user" json:"user_id"`
	Role   string `gorm:"type:varchar(30)" json:"role"`
	Team   *Team  `gorm:"constraint:OnUpdate:RESTRICT,OnDelete:CASCADE;" json:"-"`
	User   *User  `gorm:"constraint:OnUpdate:RESTRICT,OnDelete:CASCADE;" json:"-"`
}
