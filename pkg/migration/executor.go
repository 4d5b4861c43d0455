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
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"saturn.io/saturn/pkg/log"
	"saturn.io/saturn/pkg/service/models"
	"saturn.io/saturn/pkg/utils/remote"
)

const (
	ActionCreated = "created"
	ActionUpdated = "updated"
)

const webhookReminder = "Webhooks are not cloned, configure the deploy webhooks of the new application manually."

// Deployer queues a deployment of a migrated application.
type Deployer interface {
	DeployMigrated(ctx context.Context, app *models.Application, teamID, requestedBy uint) (string, error)
}

// ExecuteResult is stored on the migration once it finished.
type ExecuteResult struct {
	Action         string              `json:"action"`
	TargetType     models.ResourceKind `json:"target_type"`
	TargetUUID     string              `json:"target_uuid"`
	EnvVarsSynced  int                 `json:"env_vars_synced"`
	VolumesSynced  int                 `json:"volumes_synced"`
	Backup         *BackupResult       `json:"backup,omitempty"`
	DataCopy       *CopyResult         `json:"data_copy,omitempty"`
	Links          *LinksResult        `json:"links,omitempty"`
	Rewired        []RewireChange      `json:"rewired,omitempty"`
	Domain         *DomainResult       `json:"domain,omitempty"`
	Credentials    *RotationResult     `json:"credentials,omitempty"`
	DeploymentUUID string              `json:"deployment_uuid,omitempty"`
	Health         *HealthResult       `json:"health,omitempty"`
	Reverted       *RollbackResult     `json:"reverted,omitempty"`
	Notes          []string            `json:"notes,omitempty"`
}

type Executor struct {
	store    *Store
	options  *Options
	copier   *DataCopier
	rotator  *Rotator
	health   *HealthChecker
	backups  BackupTrigger
	deployer Deployer
}

type ExecutorOption func(e *Executor)

func WithBackupTrigger(trigger BackupTrigger) ExecutorOption {
	return func(e *Executor) { e.backups = trigger }
}

func WithDeployer(deployer Deployer) ExecutorOption {
	return func(e *Executor) { e.deployer = deployer }
}

func WithHealthChecker(health *HealthChecker) ExecutorOption {
	return func(e *Executor) { e.health = health }
}

func NewExecutor(store *Store, exec remote.Executor, options *Options, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store:   store,
		options: options,
		copier:  NewDataCopier(store, exec, options),
		rotator: NewRotator(store, exec, options),
		health:  NewHealthChecker(options),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute applies an in progress migration to its target environment.
// siblings maps source uuids of already migrated resources of the same batch to their target uuids.
// A failure after the target was written reverts the target to its snapshot.
func (e *Executor) Execute(ctx context.Context, m *models.EnvironmentMigration, siblings map[string]string) (result *ExecuteResult, err error) {
	log := log.FromContextOrDiscard(ctx).WithValues("migration", m.UUID)
	store := e.store.WithContext(ctx)

	source, err := store.Find(m.Source())
	if err != nil {
		return nil, err
	}
	sourceEnv, err := store.Environment(m.SourceEnvironmentID, m.TeamID)
	if err != nil {
		return nil, err
	}
	targetEnv, err := store.Environment(m.TargetEnvironmentID, m.TeamID)
	if err != nil {
		return nil, err
	}
	server, err := store.Server(m.TargetServerID, m.TeamID)
	if err != nil {
		return nil, err
	}
	existing, err := store.FindInEnvironment(source.Kind(), source.GetName(), targetEnv.ID)
	if err != nil {
		return nil, err
	}
	if m.Options.CopyData && source.Kind().IsDatabase() && existing == nil {
		return nil, errCopyIntoNewDatabase(source, targetEnv)
	}

	snap, err := TakeSnapshot(store, source.Kind(), existing)
	if err != nil {
		return nil, err
	}
	if err := saveSnapshot(store.DB, m, snap); err != nil {
		return nil, err
	}

	result = &ExecuteResult{TargetType: source.Kind(), Notes: []string{}}
	if existing != nil {
		result.Backup = CreatePreMigrationBackup(ctx, e.backups, existing, m)
		log.Info("pre-migration backup", "success", result.Backup.Success, "message", result.Backup.Message)
	}

	var target models.Resource
	err = store.DB.Transaction(func(tx *gorm.DB) error {
		txstore := &Store{DB: tx}
		var err error
		if existing == nil {
			target, err = e.clone(txstore, source, targetEnv, server, m.Options, result)
		} else {
			target = existing
			err = e.update(txstore, source, existing, m.Options, result)
		}
		if err != nil {
			return err
		}
		return tx.Model(&models.EnvironmentMigration{}).Where("id = ?", m.ID).
			Updates(map[string]interface{}{"target_type": target.Kind(), "target_id": target.GetID()}).Error
	})
	if err != nil {
		return nil, err
	}
	targetID := target.GetID()
	m.TargetType, m.TargetID = target.Kind(), &targetID
	defer func() {
		if err == nil {
			return
		}
		reverted, rerr := revertFailed(ctx, store, m, snap)
		if rerr != nil {
			log.Error(rerr, "revert target of failed migration")
			result.Notes = append(result.Notes, fmt.Sprintf("Target could not be reverted: %v", rerr))
			return
		}
		log.Info("target reverted after failure", "action", reverted.Action)
		result.Reverted = reverted
		result.Notes = append(result.Notes, fmt.Sprintf("Target %s after the failure.", reverted.Action))
	}()
	if target, err = store.Find(models.RefOf(target)); err != nil {
		return result, err
	}
	result.TargetUUID = target.GetUUID()
	log.Info("target resource ready", "action", result.Action, "target", result.TargetUUID)

	if m.Options.CopyData && source.Kind().IsDatabase() {
		result.DataCopy = e.copier.Copy(ctx, source, target, targetEnv)
		if !result.DataCopy.Success {
			return result, Invalid("%s", result.DataCopy.Error)
		}
	}

	if result.Links, err = CloneLinks(store, source, target, sourceEnv, targetEnv); err != nil {
		return result, err
	}
	uuidMap := map[string]string{source.GetUUID(): target.GetUUID()}
	for old, counterpart := range result.Links.Counterparts {
		uuidMap[old] = counterpart
	}
	for old, migrated := range siblings {
		uuidMap[old] = migrated
	}
	if result.Rewired, err = RewireConnections(store, target, uuidMap); err != nil {
		return result, err
	}

	if m.Options.FQDN != "" && targetEnv.IsProduction() {
		if result.Domain, err = AssignProductionDomain(store, target, m.Options.FQDN); err != nil {
			return result, err
		}
	}

	if e.shouldRotate(m, targetEnv) && needsRotation(source, target) {
		if result.Credentials, err = e.rotator.Rotate(ctx, target, targetEnv); err != nil {
			return result, err
		}
	}

	if app, ok := target.(*models.Application); ok {
		if existing == nil {
			result.Notes = append(result.Notes, webhookReminder)
		}
		if e.deployer != nil {
			deployment, err := e.deployer.DeployMigrated(ctx, app, m.TeamID, m.RequestedBy)
			if err != nil {
				log.Error(err, "queue deployment of migrated application")
				result.Notes = append(result.Notes, fmt.Sprintf("Deployment could not be queued: %v", err))
			}
			result.DeploymentUUID = deployment
		}
		if m.Options.WaitForReady {
			result.Health = e.health.Wait(ctx, app)
		}
	}
	return result, nil
}

func (e *Executor) shouldRotate(m *models.EnvironmentMigration, targetEnv *models.Environment) bool {
	if !targetEnv.IsProduction() {
		return false
	}
	if m.Options.RotateCredentials != nil {
		return *m.Options.RotateCredentials
	}
	return e.options.RotateCredentials
}

// clone creates a copy of source in env on the first destination of server.
func (e *Executor) clone(store *Store, source models.Resource, env *models.Environment, server *models.Server, opts models.MigrationOptions, result *ExecuteResult) (models.Resource, error) {
	if len(server.Destinations) == 0 {
		return nil, Invalid("Target server %s has no destination.", server.Name)
	}
	spec, _ := source.Kind().Spec()
	attrs, err := models.AttributesOf(source)
	if err != nil {
		return nil, err
	}
	target := spec.New()
	if err := models.SetAttributes(target, cloneAttributes(spec, attrs)); err != nil {
		return nil, err
	}
	if err := models.SetAttributes(target, map[string]interface{}{
		"uuid":           uuid.NewString(),
		"environment_id": env.ID,
		"destination_id": server.Destinations[0].ID,
		"status":         "exited",
	}); err != nil {
		return nil, err
	}
	if err := store.DB.Create(target).Error; err != nil {
		return nil, err
	}
	result.Action = ActionCreated

	if source.Kind() == models.KindApplication {
		setting, err := store.ApplicationSetting(source.GetID())
		if err != nil {
			return nil, err
		}
		if setting != nil {
			clone := *setting
			clone.ID, clone.ApplicationID = 0, target.GetID()
			if err := store.DB.Create(&clone).Error; err != nil {
				return nil, err
			}
		}
	}
	if opts.CopyEnvVars {
		if result.EnvVarsSynced, err = syncEnvironmentVariables(store, source, target); err != nil {
			return nil, err
		}
	}
	if opts.CopyVolumes {
		if result.VolumesSynced, err = syncVolumeConfigurations(store, source, target); err != nil {
			return nil, err
		}
	}
	return target, nil
}

// update overlays source onto existing, config mode copies configuration fields only.
func (e *Executor) update(store *Store, source, existing models.Resource, opts models.MigrationOptions, result *ExecuteResult) error {
	spec, _ := source.Kind().Spec()
	attrs, err := models.AttributesOf(source)
	if err != nil {
		return err
	}
	mode := opts.UpdateMode
	if mode == "" {
		mode = models.UpdateModeConfig
	}
	if overlay := overlayAttributes(spec, attrs, mode); len(overlay) > 0 {
		if err := store.DB.Model(existing).Updates(overlay).Error; err != nil {
			return err
		}
	}
	result.Action = ActionUpdated
	if opts.CopyEnvVars {
		if result.EnvVarsSynced, err = syncEnvironmentVariables(store, source, existing); err != nil {
			return err
		}
	}
	if opts.CopyVolumes {
		if result.VolumesSynced, err = syncVolumeConfigurations(store, source, existing); err != nil {
			return err
		}
	}
	return nil
}

// syncEnvironmentVariables upserts the variables of source into target by key.
// Connection variables already present on target keep their value, they point at target environment services.
func syncEnvironmentVariables(store *Store, source, target models.Resource) (int, error) {
	srcVars, err := store.EnvironmentVariables(models.RefOf(source))
	if err != nil {
		return 0, err
	}
	dstVars, err := store.EnvironmentVariables(models.RefOf(target))
	if err != nil {
		return 0, err
	}
	byKey := make(map[string]models.EnvironmentVariable, len(dstVars))
	for _, v := range dstVars {
		byKey[v.Key] = v
	}
	ref := models.RefOf(target)
	synced := 0
	for _, v := range srcVars {
		cur, ok := byKey[v.Key]
		if !ok {
			created := models.EnvironmentVariable{
				Key:          v.Key,
				Value:        v.Value,
				IsBuildTime:  v.IsBuildTime,
				IsPreview:    v.IsPreview,
				ResourceType: ref.Kind,
				ResourceID:   ref.ID,
			}
			if err := store.DB.Create(&created).Error; err != nil {
				return synced, err
			}
			synced++
			continue
		}
		value := v.Value
		if IsConnectionVariable(v.Key) && cur.Value != "" {
			value = cur.Value
		}
		if cur.Value == value && cur.IsBuildTime == v.IsBuildTime && cur.IsPreview == v.IsPreview {
			continue
		}
		if err := store.DB.Model(&models.EnvironmentVariable{}).Where("id = ?", cur.ID).Updates(map[string]interface{}{
			"value":         value,
			"is_build_time": v.IsBuildTime,
			"is_preview":    v.IsPreview,
		}).Error; err != nil {
			return synced, err
		}
		synced++
	}
	return synced, nil
}

// syncVolumeConfigurations adds volumes of source missing on target by mount path, names follow the target uuid.
func syncVolumeConfigurations(store *Store, source, target models.Resource) (int, error) {
	srcRef, dstRef := models.RefOf(source), models.RefOf(target)
	rename := strings.NewReplacer(source.GetUUID(), target.GetUUID())
	synced := 0

	srcPersistent, err := store.PersistentVolumes(srcRef)
	if err != nil {
		return 0, err
	}
	dstPersistent, err := store.PersistentVolumes(dstRef)
	if err != nil {
		return 0, err
	}
	mounted := map[string]bool{}
	for _, v := range dstPersistent {
		mounted[v.MountPath] = true
	}
	for _, v := range srcPersistent {
		if mounted[v.MountPath] {
			continue
		}
		created := models.LocalPersistentVolume{
			Name:         rename.Replace(v.Name),
			MountPath:    v.MountPath,
			HostPath:     rename.Replace(v.HostPath),
			ResourceType: dstRef.Kind,
			ResourceID:   dstRef.ID,
		}
		if err := store.DB.Create(&created).Error; err != nil {
			return synced, err
		}
		synced++
	}

	srcFiles, err := store.FileVolumes(srcRef)
	if err != nil {
		return synced, err
	}
	dstFiles, err := store.FileVolumes(dstRef)
	if err != nil {
		return synced, err
	}
	files := map[string]models.LocalFileVolume{}
	for _, v := range dstFiles {
		files[v.MountPath] = v
	}
	for _, v := range srcFiles {
		cur, ok := files[v.MountPath]
		if !ok {
			created := models.LocalFileVolume{
				FsPath:       rename.Replace(v.FsPath),
				MountPath:    v.MountPath,
				Content:      v.Content,
				IsDirectory:  v.IsDirectory,
				ResourceType: dstRef.Kind,
				ResourceID:   dstRef.ID,
			}
			if err := store.DB.Create(&created).Error; err != nil {
				return synced, err
			}
			synced++
			continue
		}
		if cur.Content == v.Content && cur.IsDirectory == v.IsDirectory {
			continue
		}
		if err := store.DB.Model(&models.LocalFileVolume{}).Where("id = ?", cur.ID).
			Updates(map[string]interface{}{"content": v.Content, "is_directory": v.IsDirectory}).Error; err != nil {
			return synced, err
		}
		synced++
	}
	return synced, nil
}
