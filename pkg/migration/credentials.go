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
	"fmt"
	"sort"
	"strings"

	"saturn.io/saturn/pkg/log"
	"saturn.io/saturn/pkg/service/models"
	"saturn.io/saturn/pkg/utils"
	"saturn.io/saturn/pkg/utils/remote"
)

const generatedPasswordLength = 32

// SupportsRotation reports whether the credentials of r can be rotated.
func SupportsRotation(r models.Resource) bool {
	spec, ok := r.Kind().Spec()
	return ok && spec.SupportsRotation
}

// CredentialFields maps credential roles to the columns of r holding them, nil when rotation is unsupported.
func CredentialFields(r models.Resource) map[string]string {
	if !SupportsRotation(r) {
		return nil
	}
	spec, _ := r.Kind().Spec()
	ret := make(map[string]string, len(spec.CredentialFields))
	for role, field := range spec.CredentialFields {
		ret[role] = field
	}
	return ret
}

type RotationResult struct {
	Rotated          []string `json:"rotated"`
	AppliedLive      bool     `json:"applied_live"`
	UpdatedVariables []string `json:"updated_variables,omitempty"`
	Message          string   `json:"message,omitempty"`
}

// Rotator gives a database new random credentials.
type Rotator struct {
	store   *Store
	exec    remote.Executor
	options *Options
}

func NewRotator(store *Store, exec remote.Executor, options *Options) *Rotator {
	return &Rotator{store: store, exec: exec, options: options}
}

// Rotate generates new credentials for r in env. A running database is changed in place first,
// then the columns are saved and variables of linked resources carrying the old secrets are rewritten.
func (r *Rotator) Rotate(ctx context.Context, res models.Resource, env *models.Environment) (*RotationResult, error) {
	fields := CredentialFields(res)
	if fields == nil {
		return nil, Invalid("Credential rotation is not supported for %s.", res.Kind())
	}
	db, ok := res.(*models.Database)
	if !ok {
		return nil, Invalid("Credential rotation is only supported for databases.")
	}
	log := log.FromContextOrDiscard(ctx).WithValues("database", db.UUID)

	attrs, err := models.AttributesOf(db)
	if err != nil {
		return nil, err
	}
	roles := make([]string, 0, len(fields))
	for role := range fields {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	olds := map[string]string{}
	news := map[string]string{}
	updates := map[string]interface{}{}
	for _, role := range roles {
		field := fields[role]
		password, err := utils.RandomString(generatedPasswordLength)
		if err != nil {
			return nil, err
		}
		olds[role], _ = attrs[field].(string)
		news[role] = password
		updates[field] = password
	}

	result := &RotationResult{Rotated: roles}
	if isRunning(db.Status) {
		if err := r.applyLive(ctx, db, olds, news); err != nil {
			return nil, WrapKind(ErrorKindInvalid, err, "apply new credentials")
		}
		result.AppliedLive = true
	} else {
		result.Message = "Database is not running, new credentials apply on next start."
	}

	if err := r.store.DB.Model(db).Updates(updates).Error; err != nil {
		return nil, err
	}
	if err := models.SetAttributes(db, updates); err != nil {
		return nil, err
	}

	replacements := []string{}
	for _, role := range roles {
		if olds[role] != "" && olds[role] != news[role] {
			replacements = append(replacements, olds[role], news[role])
		}
	}
	if len(replacements) > 0 {
		updated, err := r.substituteLinkedVariables(db, env, strings.NewReplacer(replacements...), olds)
		if err != nil {
			return nil, err
		}
		result.UpdatedVariables = updated
	}
	log.Info("credentials rotated", "fields", roles, "live", result.AppliedLive)
	return result, nil
}

// substituteLinkedVariables rewrites old secrets in variables of resources linked to db in env.
func (r *Rotator) substituteLinkedVariables(db *models.Database, env *models.Environment, replacer *strings.Replacer, olds map[string]string) ([]string, error) {
	links := []models.ResourceLink{}
	if err := r.store.DB.Where("target_type = ? AND target_id = ? AND environment_id = ?", db.Engine, db.ID, env.ID).
		Find(&links).Error; err != nil {
		return nil, err
	}
	updated := []string{}
	for _, link := range links {
		vars, err := r.store.EnvironmentVariables(link.Source())
		if err != nil {
			return nil, err
		}
		for _, v := range vars {
			if !containsAny(v.Value, olds) {
				continue
			}
			if err := r.store.DB.Model(&models.EnvironmentVariable{}).Where("id = ?", v.ID).
				Update("value", replacer.Replace(v.Value)).Error; err != nil {
				return nil, err
			}
			updated = append(updated, v.Key)
		}
	}
	return updated, nil
}

func containsAny(s string, values map[string]string) bool {
	for _, v := range values {
		if v != "" && strings.Contains(s, v) {
			return true
		}
	}
	return false
}

func isRunning(status string) bool {
	return strings.Contains(strings.ToLower(status), "running")
}

func (r *Rotator) applyLive(ctx context.Context, db *models.Database, olds, news map[string]string) error {
	server, err := r.store.ServerOfDestination(db.DestinationID)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, r.options.CommandTimeout)
	defer cancel()
	cmd, err := rotateCommand(db, olds, news)
	if err != nil {
		return err
	}
	_, err = r.exec.Run(ctx, server.Target(), cmd)
	return err
}

// rotateCommand changes the passwords inside the database container.
func rotateCommand(db *models.Database, olds, news map[string]string) (string, error) {
	user, _, dbname := db.Credentials()
	password := news[models.CredentialPassword]
	switch db.Engine {
	case models.KindPostgreSQL:
		sql := fmt.Sprintf(`ALTER USER "%s" WITH PASSWORD '%s';`, user, password)
		return fmt.Sprintf("docker exec %s psql -U %s -d %s -c %s",
			db.UUID, utils.ShellQuote(user), utils.ShellQuote(dbname), utils.ShellQuote(sql)), nil
	case models.KindMySQL, models.KindMariaDB:
		client := "mysql"
		if db.Engine == models.KindMariaDB {
			client = "mariadb"
		}
		stmts := []string{fmt.Sprintf("ALTER USER '%s'@'%%' IDENTIFIED BY '%s';", user, password)}
		if root, ok := news[models.CredentialRootPassword]; ok {
			stmts = append(stmts, fmt.Sprintf("ALTER USER 'root'@'%%' IDENTIFIED BY '%s';", root))
		}
		stmts = append(stmts, "FLUSH PRIVILEGES;")
		return fmt.Sprintf("docker exec %s %s -u root -p%s -e %s",
			db.UUID, client, utils.ShellQuote(olds[models.CredentialRootPassword]), utils.ShellQuote(strings.Join(stmts, " "))), nil
	case models.KindMongoDB:
		js := fmt.Sprintf(`db.getSiblingDB("admin").changeUserPassword("%s", "%s")`, user, password)
		return fmt.Sprintf("docker exec %s mongosh --quiet -u %s -p %s --authenticationDatabase admin --eval %s",
			db.UUID, utils.ShellQuote(user), utils.ShellQuote(olds[models.CredentialPassword]), utils.ShellQuote(js)), nil
	}
	return "", Invalid("Credential rotation is not supported for %s.", db.Engine)
}

// needsRotation is true when target still shares a credential with source.
func needsRotation(source, target models.Resource) bool {
	fields := CredentialFields(target)
	if fields == nil {
		return false
	}
	src, err := models.AttributesOf(source)
	if err != nil {
		return false
	}
	dst, err := models.AttributesOf(target)
	if err != nil {
		return false
	}
	for _, field := range fields {
		if v, _ := dst[field].(string); v != "" && v == src[field] {
			return true
		}
	}
	return false
}
