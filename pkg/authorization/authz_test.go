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

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"saturn.io/saturn/pkg/service/models"
)

func TestWildcardMatch(t *testing.T) {
	tests := []struct {
		expr  string
		perm  string
		match bool
	}{
		{expr: "", perm: "migrations:read", match: false},
		{expr: "migrations:read", perm: "", match: false},
		{expr: "**", perm: "migrations:approve", match: true},
		{expr: "migrations:*", perm: "migrations:approve", match: true},
		{expr: "migrations:read,create", perm: "migrations:create", match: true},
		{expr: "migrations:read,create", perm: "migrations:approve", match: false},
		{expr: "migrations:read", perm: "deployments:read", match: false},
		{expr: "migrations", perm: "migrations:read", match: false},
		{expr: "migrations:*:*", perm: "migrations:read", match: true},
		{expr: "migrations:read:x", perm: "migrations:read", match: false},
	}
	for _, tt := range tests {
		t.Run(tt.expr+"|"+tt.perm, func(t *testing.T) {
			if got := WildcardMatch(tt.expr, tt.perm); got != tt.match {
				t.Errorf("WildcardMatch() = %v, want %v", got, tt.match)
			}
		})
	}
}

func TestCasbinPermissionChecker(t *testing.T) {
	checker, err := NewCasbinPermissionChecker(context.Background(), nil)
	require.NoError(t, err)

	tests := []struct {
		role string
		perm string
		want bool
	}{
		{models.RoleOwner, PermMigrationApprove, true},
		{models.RoleAdmin, PermDeploymentReject, true},
		{models.RoleDeveloper, PermMigrationCreate, true},
		{models.RoleDeveloper, PermMigrationCancel, true},
		{models.RoleDeveloper, PermMigrationApprove, false},
		{models.RoleDeveloper, PermMigrationRollback, false},
		{models.RoleMember, PermMigrationRead, true},
		{models.RoleMember, PermMigrationCreate, false},
		{"stranger", PermMigrationRead, false},
	}
	for _, tt := range tests {
		got, err := checker.HasPermission(tt.role, tt.perm)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s %s", tt.role, tt.perm)
	}

	require.NoError(t, checker.Grant(models.RoleDeveloper, PermMigrationRollback))
	ok, _ := checker.HasPermission(models.RoleDeveloper, PermMigrationRollback)
	assert.True(t, ok)
	require.NoError(t, checker.Revoke(models.RoleDeveloper, PermMigrationRollback))
	ok, _ = checker.HasPermission(models.RoleDeveloper, PermMigrationRollback)
	assert.False(t, ok)
}

func TestCasbinPermissionCheckerPersisted(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:casbin?mode=memory&cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	first, err := NewCasbinPermissionChecker(context.Background(), db)
	require.NoError(t, err)
	require.NoError(t, first.Grant("auditor", PermMigrationRead))

	// a second checker sees the stored policies
	second, err := NewCasbinPermissionChecker(context.Background(), db)
	require.NoError(t, err)
	ok, err := second.HasPermission("auditor", PermMigrationRead)
	require.NoError(t, err)
	assert.True(t, ok)
}
