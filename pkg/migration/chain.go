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
	"fmt"

	"saturn.io/saturn/pkg/authorization"
	"saturn.io/saturn/pkg/service/models"
)

type ChainResult struct {
	Valid      bool                   `json:"valid"`
	SourceType models.EnvironmentType `json:"source_type"`
	TargetType models.EnvironmentType `json:"target_type"`
	Error      string                 `json:"error,omitempty"`
}

// ValidateChain checks source may be migrated into target, it has no side effects.
func ValidateChain(source, target *models.Environment) ChainResult {
	result := ChainResult{SourceType: source.Type, TargetType: target.Type}
	switch {
	case source.ID == target.ID:
		result.Error = "Cannot migrate to the same environment."
	case source.ProjectID != target.ProjectID:
		result.Error = "Source and target environments must be in the same project."
	case !authorization.IsValidMigrationChain(source.Type, target.Type):
		if next, ok := authorization.NextEnvironmentType(source.Type); ok {
			result.Error = fmt.Sprintf("Invalid migration chain: %s cannot be migrated to %s, the allowed next step is %s.", source.Type, target.Type, next)
		} else {
			result.Error = fmt.Sprintf("%s is a final environment and cannot be a migration source.", source.Type)
		}
	default:
		result.Valid = true
	}
	return result
}
