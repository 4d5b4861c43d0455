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

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"saturn.io/saturn/pkg/authorization"
	"saturn.io/saturn/pkg/log"
	"saturn.io/saturn/pkg/service/models"
)

type BatchSource struct {
	SourceType models.ResourceKind `json:"source_type" binding:"required,resource_kind"`
	SourceUUID string              `json:"source_uuid" binding:"required"`
}

type BatchRequest struct {
	Resources           []BatchSource           `json:"resources" binding:"required,min=1,dive"`
	TargetEnvironmentID uint                    `json:"target_environment_id" binding:"required"`
	TargetServerID      uint                    `json:"target_server_id" binding:"required"`
	Options             models.MigrationOptions `json:"options"`
}

type BatchFailure struct {
	SourceType models.ResourceKind `json:"source_type"`
	SourceUUID string              `json:"source_uuid"`
	Error      string              `json:"error"`
	Details    interface{}         `json:"details,omitempty"`
}

type BatchResult struct {
	BatchUUID  string                         `json:"batch_uuid"`
	Migrations []*models.EnvironmentMigration `json:"migrations"`
	Failures   []BatchFailure                 `json:"failures"`
}

// CreateBatch creates one migration per resource, a failing resource does not stop the others.
func (s *Service) CreateBatch(ctx context.Context, actor Actor, req BatchRequest) (*BatchResult, error) {
	if err := s.require(actor, authorization.PermMigrationCreate); err != nil {
		return nil, err
	}
	ret := &BatchResult{
		BatchUUID:  uuid.NewString(),
		Migrations: []*models.EnvironmentMigration{},
		Failures:   []BatchFailure{},
	}
	log := log.FromContextOrDiscard(ctx).WithValues("batch", ret.BatchUUID)
	for _, item := range req.Resources {
		created, err := s.Create(ctx, actor, CreateRequest{
			SourceType:          item.SourceType,
			SourceUUID:          item.SourceUUID,
			TargetEnvironmentID: req.TargetEnvironmentID,
			TargetServerID:      req.TargetServerID,
			Options:             req.Options,
			BatchUUID:           ret.BatchUUID,
		})
		if err != nil {
			failure := BatchFailure{SourceType: item.SourceType, SourceUUID: item.SourceUUID, Error: err.Error()}
			var e *Error
			if errors.As(err, &e) {
				failure.Details = e.Details
			}
			log.Info("batch item failed", "source", item.SourceUUID, "error", err.Error())
			ret.Failures = append(ret.Failures, failure)
			continue
		}
		ret.Migrations = append(ret.Migrations, created.Migration)
	}
	return ret, nil
}
