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

// Resource is a deployable thing living in an environment: an application, a service or a database.
type Resource interface {
	Kind() ResourceKind
	GetID() uint
	GetUUID() string
	GetName() string
	GetEnvironmentID() uint
	GetDestinationID() uint
	GetStatus() string
}

// ResourceRef is a typed handle of a resource.
type ResourceRef struct {
	Kind ResourceKind `json:"type"`
	ID   uint         `json:"id"`
}

func RefOf(r Resource) ResourceRef {
	return ResourceRef{Kind: r.Kind(), ID: r.GetID()}
}

// EnvironmentVariable belongs to one resource, resource and key are unique together
type EnvironmentVariable struct {
	ID           uint         `gorm:"primarykey" json:"id"`
	Key          string       `gorm:"type:varchar(191);uniqueIndex:uniq_idx_resource_key" json:"key"`
	Value        string       `gorm:"type:text" json:"value"`
	IsBuildTime  bool         `json:"is_build_time"`
	IsPreview    bool         `json:"is_preview"`
	ResourceType ResourceKind `gorm:"type:varchar(30);uniqueIndex:uniq_idx_resource_key" json:"resource_type"`
	ResourceID   uint         `gorm:"uniqueIndex:uniq_idx_resource_key" json:"resource_id"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

type LocalPersistentVolume struct {
	ID           uint         `gorm:"primarykey" json:"id"`
	Name         string       `gorm:"type:varchar(191)" json:"name"`
	MountPath    string       `gorm:"type:varchar(255)" json:"mount_path"`
	HostPath     string       `gorm:"type:varchar(255)" json:"host_path"`
	ResourceType ResourceKind `gorm:"type:varchar(30);index:idx_pv_resource" json:"resource_type"`
	ResourceID   uint         `gorm:"index:idx_pv_resource" json:"resource_id"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

type LocalFileVolume struct {
	ID           uint         `gorm:"primarykey" json:"id"`
	FsPath       string       `gorm:"type:varchar(255)" json:"fs_path"`
	MountPath    string       `gorm:"type:varchar(255)" json:"mount_path"`
	Content      string       `gorm:"type:text" json:"content"`
	IsDirectory  bool         `json:"is_directory"`
	ResourceType ResourceKind `gorm:"type:varchar(30);index:idx_fv_resource" json:"resource_type"`
	ResourceID   uint         `gorm:"index:idx_fv_resource" json:"resource_id"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// ResourceLink connects a source resource to a target resource in one environment,
// e.g. an application consuming a database. The target is injected into the source as an env var.
type ResourceLink struct {
	ID             uint         `gorm:"primarykey" json:"id"`
	SourceType     ResourceKind `gorm:"type:varchar(30);uniqueIndex:uniq_idx_link" json:"source_type"`
	SourceID       uint         `gorm:"uniqueIndex:uniq_idx_link" json:"source_id"`
	TargetType     ResourceKind `gorm:"type:varchar(30);uniqueIndex:uniq_idx_link" json:"target_type"`
	TargetID       uint         `gorm:"uniqueIndex:uniq_idx_link" json:"target_id"`
	EnvironmentID  uint         `gorm:"uniqueIndex:uniq_idx_link" json:"environment_id"`
	InjectAs       string       `gorm:"type:varchar(191)" json:"inject_as"`
	AutoInject     bool         `json:"auto_inject"`
	UseExternalURL bool         `json:"use_external_url"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func (l ResourceLink) Source() ResourceRef { return ResourceRef{Kind: l.SourceType, ID: l.SourceID} }
func (l ResourceLink) Target() ResourceRef { return ResourceRef{Kind: l.TargetType, ID: l.TargetID} }

// ScopeResource filters polymorphic rows owned by ref.
func ScopeResource(ref ResourceRef) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where("resource_type = ? AND resource_id = ?", ref.Kind, ref.ID)
	}
}
