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

type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

const (
	ApprovableMigration  = "migration"
	ApprovableDeployment = "deployment"
)

// Approval gates a migration or a deployment into a protected environment,
// approvable type and id are unique together.
type Approval struct {
	ID              uint           `gorm:"primarykey" json:"id"`
	UUID            string         `gorm:"type:varchar(36);uniqueIndex" json:"uuid"`
	TeamID          uint           `gorm:"index" json:"team_id"`
	ApprovableType  string         `gorm:"type:varchar(30);uniqueIndex:uniq_idx_approvable" json:"approvable_type"`
	ApprovableID    uint           `gorm:"uniqueIndex:uniq_idx_approvable" json:"approvable_id"`
	Status          ApprovalStatus `gorm:"type:varchar(20);index" json:"status"`
	RequestedBy     uint           `json:"requested_by"`
	ApprovedBy      *uint          `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time     `json:"approved_at,omitempty"`
	Note            string         `gorm:"type:text" json:"note,omitempty"`
	RejectionReason string         `gorm:"type:text" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (a *Approval) IsDecided() bool {
	return a.Status != ApprovalStatusPending
}
