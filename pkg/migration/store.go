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

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"saturn.io/saturn/pkg/service/models"
	"saturn.io/saturn/pkg/utils/database"
)

// Store loads and saves resources of any kind.
type Store struct {
	DB *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) WithContext(ctx context.Context) *Store {
	return &Store{DB: s.DB.WithContext(ctx)}
}

func scopeKind(kind models.ResourceKind) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if kind.IsDatabase() {
			return tx.Where("engine = ?", kind)
		}
		return tx
	}
}

func (s *Store) newResource(kind models.ResourceKind) (models.Resource, error) {
	spec, ok := kind.Spec()
	if !ok {
		return nil, Invalid("unsupported resource type %q", kind)
	}
	return spec.New(), nil
}

func (s *Store) Find(ref models.ResourceRef) (models.Resource, error) {
	r, err := s.newResource(ref.Kind)
	if err != nil {
		return nil, err
	}
	if err := s.DB.Scopes(scopeKind(ref.Kind)).First(r, ref.ID).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, NotFound("%s %d not found", ref.Kind, ref.ID)
		}
		return nil, err
	}
	return r, nil
}

// FindByUUID loads a resource of kind owned by team, resources of other teams are not found.
func (s *Store) FindByUUID(kind models.ResourceKind, uuid string, teamID uint) (models.Resource, error) {
	r, err := s.newResource(kind)
	if err != nil {
		return nil, err
	}
	err = s.DB.Scopes(scopeKind(kind)).
		Where("uuid = ?", uuid).
		Where("environment_id IN (?)", s.teamEnvironments(teamID)).
		First(r).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, NotFound("%s %s not found", kind, uuid)
		}
		return nil, err
	}
	return r, nil
}

// FindInEnvironment returns the resource of kind named name in environment envID, nil if none.
func (s *Store) FindInEnvironment(kind models.ResourceKind, name string, envID uint) (models.Resource, error) {
	r, err := s.newResource(kind)
	if err != nil {
		return nil, err
	}
	err = s.DB.Scopes(scopeKind(kind)).Where("name = ? AND environment_id = ?", name, envID).First(r).Error
	if database.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) teamEnvironments(teamID uint) *gorm.DB {
	return s.DB.Model(&models.Environment{}).
		Select("environments.id").
		Joins("JOIN projects ON projects.id = environments.project_id").
		Where("projects.team_id = ?", teamID)
}

// Environment loads an environment with its project, scoped to team.
func (s *Store) Environment(id uint, teamID uint) (*models.Environment, error) {
	env := &models.Environment{}
	err := s.DB.Preload("Project").
		Joins("JOIN projects ON projects.id = environments.project_id").
		Where("environments.id = ? AND projects.team_id = ?", id, teamID).
		First(env).Error
	if database.IsNotFound(err) {
		return nil, NotFound("environment %d not found", id)
	}
	return env, err
}

// Server loads a server of team with its destinations.
func (s *Store) Server(id uint, teamID uint) (*models.Server, error) {
	server := &models.Server{}
	err := s.DB.Preload("Destinations").Where("id = ? AND team_id = ?", id, teamID).First(server).Error
	if database.IsNotFound(err) {
		return nil, NotFound("server %d not found", id)
	}
	return server, err
}

// ServerOfDestination returns the server hosting a destination.
func (s *Store) ServerOfDestination(destinationID uint) (*models.Server, error) {
	dest := &models.Destination{}
	if err := s.DB.Preload("Server").First(dest, destinationID).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, NotFound("destination %d not found", destinationID)
		}
		return nil, err
	}
	if dest.Server == nil {
		return nil, NotFound("server of destination %d not found", destinationID)
	}
	return dest.Server, nil
}

func (s *Store) EnvironmentVariables(ref models.ResourceRef) ([]models.EnvironmentVariable, error) {
	vars := []models.EnvironmentVariable{}
	err := s.DB.Scopes(models.ScopeResource(ref)).Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).Find(&vars).Error
	return vars, err
}

func (s *Store) PersistentVolumes(ref models.ResourceRef) ([]models.LocalPersistentVolume, error) {
	vols := []models.LocalPersistentVolume{}
	err := s.DB.Scopes(models.ScopeResource(ref)).Order("mount_path").Find(&vols).Error
	return vols, err
}

func (s *Store) FileVolumes(ref models.ResourceRef) ([]models.LocalFileVolume, error) {
	vols := []models.LocalFileVolume{}
	err := s.DB.Scopes(models.ScopeResource(ref)).Order("mount_path").Find(&vols).Error
	return vols, err
}

func (s *Store) ApplicationSetting(applicationID uint) (*models.ApplicationSetting, error) {
	setting := &models.ApplicationSetting{}
	err := s.DB.Where("application_id = ?", applicationID).First(setting).Error
	if database.IsNotFound(err) {
		return nil, nil
	}
	return setting, err
}

// ResourcesInEnvironment lists every resource of every kind in an environment.
func (s *Store) ResourcesInEnvironment(envID uint) ([]models.Resource, error) {
	ret := []models.Resource{}
	apps := []*models.Application{}
	if err := s.DB.Where("environment_id = ?", envID).Find(&apps).Error; err != nil {
		return nil, err
	}
	for _, a := range apps {
		ret = append(ret, a)
	}
	services := []*models.Service{}
	if err := s.DB.Where("environment_id = ?", envID).Find(&services).Error; err != nil {
		return nil, err
	}
	for _, svc := range services {
		ret = append(ret, svc)
	}
	dbs := []*models.Database{}
	if err := s.DB.Where("environment_id = ?", envID).Find(&dbs).Error; err != nil {
		return nil, err
	}
	for _, d := range dbs {
		ret = append(ret, d)
	}
	return ret, nil
}

// ResourcesOnServer lists resources deployed to any destination of a server.
func (s *Store) ResourcesOnServer(serverID uint) ([]models.Resource, error) {
	destinations := s.DB.Model(&models.Destination{}).Select("id").Where("server_id = ?", serverID)
	ret := []models.Resource{}
	apps := []*models.Application{}
	if err := s.DB.Where("destination_id IN (?)", destinations).Find(&apps).Error; err != nil {
		return nil, err
	}
	for _, a := range apps {
		ret = append(ret, a)
	}
	services := []*models.Service{}
	if err := s.DB.Where("destination_id IN (?)", destinations).Find(&services).Error; err != nil {
		return nil, err
	}
	for _, svc := range services {
		ret = append(ret, svc)
	}
	dbs := []*models.Database{}
	if err := s.DB.Where("destination_id IN (?)", destinations).Find(&dbs).Error; err != nil {
		return nil, err
	}
	for _, d := range dbs {
		ret = append(ret, d)
	}
	return ret, nil
}

// ActiveMigration returns the non terminal migration of a source, nil if none.
func (s *Store) ActiveMigration(ref models.ResourceRef) (*models.EnvironmentMigration, error) {
	m := &models.EnvironmentMigration{}
	err := s.DB.Where("source_type = ? AND source_id = ? AND status IN ?", ref.Kind, ref.ID, models.ActiveMigrationStatuses()).
		First(m).Error
	if database.IsNotFound(err) {
		return nil, nil
	}
	return m, err
}

// Migration loads a migration of team by uuid.
func (s *Store) Migration(uuid string, teamID uint) (*models.EnvironmentMigration, error) {
	m := &models.EnvironmentMigration{}
	err := s.DB.Where("uuid = ? AND team_id = ?", uuid, teamID).First(m).Error
	if database.IsNotFound(err) {
		return nil, NotFound("migration %s not found", uuid)
	}
	return m, errors.WithStack(err)
}

// PortsMappingOf returns the ports mapping of resources exposing host ports.
func PortsMappingOf(r models.Resource) string {
	switch v := r.(type) {
	case *models.Application:
		return v.PortsMappings
	case *models.Service:
		return v.PortsMappings
	case *models.Database:
		return v.PortsMappings
	}
	return ""
}
