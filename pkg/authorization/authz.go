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

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
	"saturn.io/saturn/pkg/log"
	"saturn.io/saturn/pkg/service/models"
)

const (
	PermMigrationRead     = "migrations:read"
	PermMigrationCreate   = "migrations:create"
	PermMigrationApprove  = "migrations:approve"
	PermMigrationReject   = "migrations:reject"
	PermMigrationCancel   = "migrations:cancel"
	PermMigrationRollback = "migrations:rollback"
	PermDeploymentRead    = "deployments:read"
	PermDeploymentCreate  = "deployments:create"
	PermDeploymentApprove = "deployments:approve"
	PermDeploymentReject  = "deployments:reject"
	PermBackupCreate      = "backups:create"
)

// DefaultPolicies role to permission expressions seeded on startup.
var DefaultPolicies = map[string][]string{
	models.RoleOwner:     {"**"},
	models.RoleAdmin:     {"**"},
	models.RoleDeveloper: {"migrations:read,create,cancel", "deployments:read,create", "backups:create"},
	models.RoleMember:    {"migrations:read", "deployments:read"},
}

const casbinModel = `
[request_definition]
r = sub, perm

[policy_definition]
p = sub, perm

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && wildcardMatch(r.perm, p.perm)
`

type PermissionChecker interface {
	// HasPermission("developer", "migrations:approve")
	HasPermission(role string, perm string) (bool, error)
}

var _ PermissionChecker = &CasbinPermissionChecker{}

type CasbinPermissionChecker struct {
	enforcer *casbin.Enforcer
}

// NewCasbinPermissionChecker loads policies from db, or keeps them in memory when db is nil,
// and seeds DefaultPolicies.
func NewCasbinPermissionChecker(ctx context.Context, db *gorm.DB) (*CasbinPermissionChecker, error) {
	casmodel, err := model.NewModelFromString(casbinModel)
	if err != nil {
		return nil, err
	}
	var enforcer *casbin.Enforcer
	if db != nil {
		casadapter, err := gormadapter.NewAdapterByDB(db)
		if err != nil {
			return nil, err
		}
		if enforcer, err = casbin.NewEnforcer(casmodel, casadapter); err != nil {
			return nil, err
		}
	} else {
		if enforcer, err = casbin.NewEnforcer(casmodel); err != nil {
			return nil, err
		}
	}
	enforcer.AddFunction("wildcardMatch", wildcardMatchFunc)
	if db != nil {
		if err := enforcer.LoadPolicy(); err != nil {
			return nil, err
		}
	}
	checker := &CasbinPermissionChecker{enforcer: enforcer}
	if err := checker.seed(ctx); err != nil {
		return nil, err
	}
	return checker, nil
}

func (c *CasbinPermissionChecker) seed(ctx context.Context) error {
	log := log.FromContextOrDiscard(ctx)
	for role, perms := range DefaultPolicies {
		for _, perm := range perms {
			added, err := c.enforcer.AddPolicy(role, perm)
			if err != nil {
				return err
			}
			if added {
				log.V(1).Info("seed policy", "role", role, "perm", perm)
			}
		}
	}
	return nil
}

func (c *CasbinPermissionChecker) HasPermission(role string, perm string) (bool, error) {
	return c.enforcer.Enforce(role, perm)
}

// Grant adds a permission expression to role.
func (c *CasbinPermissionChecker) Grant(role string, perm string) error {
	_, err := c.enforcer.AddPolicy(role, perm)
	return err
}

// Revoke removes a permission expression from role.
func (c *CasbinPermissionChecker) Revoke(role string, perm string) error {
	_, err := c.enforcer.RemovePolicy(role, perm)
	return err
}
