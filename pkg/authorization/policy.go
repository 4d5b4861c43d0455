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

package authorization

import "saturn.io/saturn/pkg/service/models"

// IsApproverRole owners and admins approve, and never need approval themselves.
func IsApproverRole(role string) bool {
	return role == models.RoleOwner || role == models.RoleAdmin
}

// RequiresApprovalForEnvironment reports whether a member with role must have its
// migrations or deployments into env approved first.
func RequiresApprovalForEnvironment(role string, env *models.Environment) bool {
	if IsApproverRole(role) {
		return false
	}
	return env.RequiresApproval
}

// CanCancelMigration the requester or an approver may cancel before execution starts.
func CanCancelMigration(userID uint, role string, m *models.EnvironmentMigration) bool {
	if !m.Status.CanTransitionTo(models.MigrationStatusCancelled) {
		return false
	}
	return m.RequestedBy == userID || IsApproverRole(role)
}

// CanDecide reports whether an approval may still be approved or rejected by role.
// A decided approval is never decided again.
func CanDecide(role string, approval *models.Approval) bool {
	return IsApproverRole(role) && !approval.IsDecided()
}
