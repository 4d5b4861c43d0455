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
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"saturn.io/saturn/pkg/authorization"
	"saturn.io/saturn/pkg/log"
	"saturn.io/saturn/pkg/notify"
	"saturn.io/saturn/pkg/service/models"
	"saturn.io/saturn/pkg/utils/database"
	"saturn.io/saturn/pkg/utils/remote"
)

// Actor is the authenticated team member calling the service.
type Actor struct {
	UserID uint
	TeamID uint
	Role   string
}

type CreateRequest struct {
	SourceType          models.ResourceKind     `json:"source_type" binding:"required,resource_kind"`
	SourceUUID          string                  `json:"source_uuid" binding:"required"`
	TargetEnvironmentID uint                    `json:"target_environment_id" binding:"required"`
	TargetServerID      uint                    `json:"target_server_id" binding:"required"`
	Options             models.MigrationOptions `json:"options"`
	DryRun              bool                    `json:"dry_run"`
	BatchUUID           string                  `json:"-"`
}

// DefaultCreateRequest has the options a request leaves out.
func DefaultCreateRequest() CreateRequest {
	return CreateRequest{Options: models.MigrationOptions{CopyEnvVars: true, CopyVolumes: true}}
}

type CreateResult struct {
	DryRun    bool                         `json:"dry_run"`
	Migration *models.EnvironmentMigration `json:"migration,omitempty"`
	PreChecks *PreCheckResult              `json:"pre_checks"`
	Diff      *DiffResult                  `json:"diff,omitempty"`
}

type Service struct {
	store        *Store
	options      *Options
	prechecker   *PreChecker
	executor     *Executor
	permissions  authorization.PermissionChecker
	notifier     notify.Notifier
	dispatcher   Dispatcher
	executorOpts []ExecutorOption
}

type ServiceOption func(s *Service)

func WithNotifier(notifier notify.Notifier) ServiceOption {
	return func(s *Service) { s.notifier = notifier }
}

func WithDispatcher(dispatcher Dispatcher) ServiceOption {
	return func(s *Service) { s.dispatcher = dispatcher }
}

func WithExecutorOptions(opts ...ExecutorOption) ServiceOption {
	return func(s *Service) { s.executorOpts = append(s.executorOpts, opts...) }
}

func NewService(db *gorm.DB, exec remote.Executor, options *Options, permissions authorization.PermissionChecker, opts ...ServiceOption) *Service {
	store := NewStore(db)
	s := &Service{
		store:       store,
		options:     options,
		prechecker:  NewPreChecker(store, exec, options),
		permissions: permissions,
		notifier:    notify.LogNotifier{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.executor = NewExecutor(store, exec, options, s.executorOpts...)
	if s.dispatcher == nil {
		s.dispatcher = &InlineDispatcher{Runner: s}
	}
	return s
}

func (s *Service) Store() *Store {
	return s.store
}

func (s *Service) require(actor Actor, perm string) error {
	ok, err := s.permissions.HasPermission(actor.Role, perm)
	if err != nil {
		return err
	}
	if !ok {
		return Forbidden("Role %s is not allowed to %s.", actor.Role, perm)
	}
	return nil
}

// plan holds the environments and server a migration of one source involves.
type plan struct {
	source    models.Resource
	sourceEnv *models.Environment
	targetEnv *models.Environment
	server    *models.Server
}

func (s *Service) resolve(store *Store, actor Actor, kind models.ResourceKind, sourceUUID string, targetEnvID uint) (*plan, error) {
	if !kind.Valid() {
		return nil, Invalid("Unsupported source type %q.", kind)
	}
	source, err := store.FindByUUID(kind, sourceUUID, actor.TeamID)
	if err != nil {
		return nil, err
	}
	sourceEnv, err := store.Environment(source.GetEnvironmentID(), actor.TeamID)
	if err != nil {
		return nil, err
	}
	targetEnv, err := store.Environment(targetEnvID, actor.TeamID)
	if err != nil {
		return nil, err
	}
	return &plan{source: source, sourceEnv: sourceEnv, targetEnv: targetEnv}, nil
}

// normalizeOptions fills defaults and forces copy_data off for production targets.
func (s *Service) normalizeOptions(ctx context.Context, opts models.MigrationOptions, source models.Resource, targetEnv *models.Environment) (models.MigrationOptions, error) {
	log := log.FromContextOrDiscard(ctx)
	if opts.CopyData && targetEnv.IsProduction() {
		log.Info("copy_data disabled, production data is never overwritten by a migration",
			"source", source.GetUUID(), "environment", targetEnv.Name)
		opts.CopyData = false
	}
	switch opts.UpdateMode {
	case "":
		opts.UpdateMode = models.UpdateModeConfig
	case models.UpdateModeConfig, models.UpdateModeFull:
	default:
		return opts, Invalid("Unknown update mode %q.", opts.UpdateMode)
	}
	if opts.FQDN != "" {
		if source.Kind() != models.KindApplication {
			return opts, Invalid("Assigning a domain is only supported for applications.")
		}
		fqdn, err := NormalizeFQDN(opts.FQDN)
		if err != nil {
			return opts, err
		}
		opts.FQDN = fqdn
	}
	if opts.RotateCredentials == nil {
		rotate := s.options.RotateCredentials
		opts.RotateCredentials = &rotate
	}
	return opts, nil
}

// Create validates and records a migration, migrations not needing approval are dispatched at once.
// A dry run returns pre checks and diff and records nothing.
func (s *Service) Create(ctx context.Context, actor Actor, req CreateRequest) (*CreateResult, error) {
	if err := s.require(actor, authorization.PermMigrationCreate); err != nil {
		return nil, err
	}
	store := s.store.WithContext(ctx)
	p, err := s.resolve(store, actor, req.SourceType, req.SourceUUID, req.TargetEnvironmentID)
	if err != nil {
		return nil, err
	}
	if chain := ValidateChain(p.sourceEnv, p.targetEnv); !chain.Valid {
		return nil, ChainViolation(chain.Error)
	}
	if p.server, err = store.Server(req.TargetServerID, actor.TeamID); err != nil {
		return nil, err
	}
	opts, err := s.normalizeOptions(ctx, req.Options, p.source, p.targetEnv)
	if err != nil {
		return nil, err
	}
	if opts.CopyData && p.source.Kind().IsDatabase() {
		existing, err := store.FindInEnvironment(p.source.Kind(), p.source.GetName(), p.targetEnv.ID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, errCopyIntoNewDatabase(p.source, p.targetEnv)
		}
	}

	checks, err := s.prechecker.Run(ctx, PreCheckInput{
		Source:       p.source,
		SourceEnv:    p.sourceEnv,
		TargetEnv:    p.targetEnv,
		TargetServer: p.server,
	})
	if err != nil {
		return nil, err
	}
	observePreCheck(checks)

	if req.DryRun {
		diff, err := s.diff(store, p.source, p.targetEnv, opts.UpdateMode)
		if err != nil {
			return nil, err
		}
		return &CreateResult{DryRun: true, PreChecks: checks, Diff: diff}, nil
	}
	if !checks.Pass {
		return nil, PreCheckFailed(checks)
	}

	requiresApproval := authorization.RequiresApprovalForEnvironment(actor.Role, p.targetEnv)
	m := &models.EnvironmentMigration{
		UUID:                uuid.NewString(),
		TeamID:              actor.TeamID,
		BatchUUID:           req.BatchUUID,
		SourceType:          p.source.Kind(),
		SourceID:            p.source.GetID(),
		SourceEnvironmentID: p.sourceEnv.ID,
		TargetEnvironmentID: p.targetEnv.ID,
		TargetServerID:      p.server.ID,
		Options:             opts,
		Status:              models.MigrationStatusPending,
		RequiresApproval:    requiresApproval,
		RequestedBy:         actor.UserID,
		ActiveLock:          models.ActiveLockOf(models.RefOf(p.source)),
	}
	if requiresApproval {
		m.Status = models.MigrationStatusPendingApproval
	}
	err = store.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			if database.IsDuplicateKey(err) {
				return Conflict("%s already has an active migration.", p.source.GetName())
			}
			return err
		}
		if !requiresApproval {
			return nil
		}
		return tx.Create(&models.Approval{
			UUID:           uuid.NewString(),
			TeamID:         actor.TeamID,
			ApprovableType: models.ApprovableMigration,
			ApprovableID:   m.ID,
			Status:         models.ApprovalStatusPending,
			RequestedBy:    actor.UserID,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	if requiresApproval {
		approvers := (&database.DatabaseHelper{DB: store.DB}).TeamApprovers(actor.TeamID)
		notify.Send(ctx, s.notifier, &notify.Notification{
			MessageType:  notify.Approve,
			Event:        notify.EventApprovalRequested,
			ResourceType: notify.Migration,
			ResourceUUID: m.UUID,
			TeamID:       m.TeamID,
			From:         actor.UserID,
			To:           approvers,
			Detail:       fmt.Sprintf("Migration of %s into %s awaits approval.", p.source.GetName(), p.targetEnv.Name),
		})
	} else {
		s.dispatch(ctx, m)
	}
	if err := store.DB.First(m, m.ID).Error; err != nil {
		return nil, err
	}
	return &CreateResult{Migration: m, PreChecks: checks}, nil
}

func (s *Service) dispatch(ctx context.Context, m *models.EnvironmentMigration) {
	if err := s.dispatcher.Dispatch(ctx, m); err != nil {
		log.FromContextOrDiscard(ctx).Error(err, "dispatch migration", "migration", m.UUID)
	}
}

func (s *Service) diff(store *Store, source models.Resource, targetEnv *models.Environment, mode string) (*DiffResult, error) {
	in := DiffInput{Source: source, UpdateMode: mode}
	var err error
	if in.SourceEnvVars, err = store.EnvironmentVariables(models.RefOf(source)); err != nil {
		return nil, err
	}
	if in.SourceVolumes, err = store.PersistentVolumes(models.RefOf(source)); err != nil {
		return nil, err
	}
	if in.Target, err = store.FindInEnvironment(source.Kind(), source.GetName(), targetEnv.ID); err != nil {
		return nil, err
	}
	if in.Target != nil {
		if in.TargetEnvVars, err = store.EnvironmentVariables(models.RefOf(in.Target)); err != nil {
			return nil, err
		}
		if in.TargetVolumes, err = store.PersistentVolumes(models.RefOf(in.Target)); err != nil {
			return nil, err
		}
	}
	return Diff(in)
}

type CheckRequest struct {
	SourceType          models.ResourceKind `json:"source_type" binding:"required,resource_kind"`
	SourceUUID          string              `json:"source_uuid" binding:"required"`
	TargetEnvironmentID uint                `json:"target_environment_id" binding:"required"`
}

type EligibilitySource struct {
	UUID            string                 `json:"uuid"`
	Name            string                 `json:"name"`
	Type            models.ResourceKind    `json:"type"`
	EnvironmentID   uint                   `json:"environment_id"`
	EnvironmentType models.EnvironmentType `json:"environment_type"`
}

type EligibilityTarget struct {
	EnvironmentID   uint                   `json:"environment_id"`
	EnvironmentName string                 `json:"environment_name"`
	EnvironmentType models.EnvironmentType `json:"environment_type"`
	Exists          bool                   `json:"exists"`
}

type Eligibility struct {
	Allowed          bool              `json:"allowed"`
	RequiresApproval bool              `json:"requires_approval"`
	Reason           string            `json:"reason,omitempty"`
	Source           EligibilitySource `json:"source"`
	Target           EligibilityTarget `json:"target"`
}

// Check tells whether source could be migrated into the target environment, nothing is recorded.
func (s *Service) Check(ctx context.Context, actor Actor, req CheckRequest) (*Eligibility, error) {
	if err := s.require(actor, authorization.PermMigrationRead); err != nil {
		return nil, err
	}
	store := s.store.WithContext(ctx)
	p, err := s.resolve(store, actor, req.SourceType, req.SourceUUID, req.TargetEnvironmentID)
	if err != nil {
		return nil, err
	}
	existing, err := store.FindInEnvironment(p.source.Kind(), p.source.GetName(), p.targetEnv.ID)
	if err != nil {
		return nil, err
	}
	ret := &Eligibility{
		Allowed:          true,
		RequiresApproval: authorization.RequiresApprovalForEnvironment(actor.Role, p.targetEnv),
		Source: EligibilitySource{
			UUID:            p.source.GetUUID(),
			Name:            p.source.GetName(),
			Type:            p.source.Kind(),
			EnvironmentID:   p.sourceEnv.ID,
			EnvironmentType: p.sourceEnv.Type,
		},
		Target: EligibilityTarget{
			EnvironmentID:   p.targetEnv.ID,
			EnvironmentName: p.targetEnv.Name,
			EnvironmentType: p.targetEnv.Type,
			Exists:          existing != nil,
		},
	}
	if chain := ValidateChain(p.sourceEnv, p.targetEnv); !chain.Valid {
		ret.Allowed, ret.Reason = false, chain.Error
		return ret, nil
	}
	active, err := store.ActiveMigration(models.RefOf(p.source))
	if err != nil {
		return nil, err
	}
	if active != nil {
		ret.Allowed, ret.Reason = false, fmt.Sprintf("Resource already has an active migration %s.", active.UUID)
	}
	return ret, nil
}

type TargetEnvironment struct {
	models.Environment
	RequiresApproval bool `json:"requires_approval_for_you"`
}

type Targets struct {
	Environments []TargetEnvironment `json:"environments"`
	Servers      []models.Server     `json:"servers"`
}

// Targets lists the environments source may be migrated into and the team servers able to host it.
func (s *Service) Targets(ctx context.Context, actor Actor, kind models.ResourceKind, sourceUUID string) (*Targets, error) {
	if err := s.require(actor, authorization.PermMigrationRead); err != nil {
		return nil, err
	}
	store := s.store.WithContext(ctx)
	if !kind.Valid() {
		return nil, Invalid("Unsupported source type %q.", kind)
	}
	source, err := store.FindByUUID(kind, sourceUUID, actor.TeamID)
	if err != nil {
		return nil, err
	}
	sourceEnv, err := store.Environment(source.GetEnvironmentID(), actor.TeamID)
	if err != nil {
		return nil, err
	}
	envs := []models.Environment{}
	if err := store.DB.Where("project_id = ?", sourceEnv.ProjectID).Order("id").Find(&envs).Error; err != nil {
		return nil, err
	}
	ret := &Targets{Environments: []TargetEnvironment{}, Servers: []models.Server{}}
	for i := range envs {
		if !ValidateChain(sourceEnv, &envs[i]).Valid {
			continue
		}
		ret.Environments = append(ret.Environments, TargetEnvironment{
			Environment:      envs[i],
			RequiresApproval: authorization.RequiresApprovalForEnvironment(actor.Role, &envs[i]),
		})
	}
	servers := []models.Server{}
	if err := store.DB.Preload("Destinations").Where("team_id = ?", actor.TeamID).Order("id").Find(&servers).Error; err != nil {
		return nil, err
	}
	for _, server := range servers {
		if server.IsFunctional() && len(server.Destinations) > 0 {
			ret.Servers = append(ret.Servers, server)
		}
	}
	return ret, nil
}

type ListOptions struct {
	Status models.MigrationStatus
	Page   int
	Size   int
}

// List returns one page of the migrations of the team, newest first.
func (s *Service) List(ctx context.Context, actor Actor, opts ListOptions) ([]models.EnvironmentMigration, int64, error) {
	if err := s.require(actor, authorization.PermMigrationRead); err != nil {
		return nil, 0, err
	}
	if opts.Status != "" && !opts.Status.Valid() {
		return nil, 0, Invalid("Unknown status %q.", opts.Status)
	}
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Size < 1 {
		opts.Size = 10
	}
	q := s.store.WithContext(ctx).DB.Model(&models.EnvironmentMigration{}).Where("team_id = ?", actor.TeamID)
	if opts.Status != "" {
		q = q.Where("status = ?", opts.Status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	list := []models.EnvironmentMigration{}
	err := q.Order("id DESC").Offset((opts.Page - 1) * opts.Size).Limit(opts.Size).Find(&list).Error
	return list, total, err
}

func (s *Service) Get(ctx context.Context, actor Actor, uuid string) (*models.EnvironmentMigration, error) {
	if err := s.require(actor, authorization.PermMigrationRead); err != nil {
		return nil, err
	}
	return s.store.WithContext(ctx).Migration(uuid, actor.TeamID)
}

// Pending lists the migrations of the team awaiting approval, oldest first.
func (s *Service) Pending(ctx context.Context, actor Actor) ([]models.EnvironmentMigration, error) {
	if err := s.require(actor, authorization.PermMigrationRead); err != nil {
		return nil, err
	}
	list := []models.EnvironmentMigration{}
	err := s.store.WithContext(ctx).DB.
		Where("team_id = ? AND status = ?", actor.TeamID, models.MigrationStatusPendingApproval).
		Order("id").Find(&list).Error
	return list, err
}

// Execute runs an execution eligible migration, a migration in any other state is left alone.
// The returned error is the reason the migration failed.
func (s *Service) Execute(ctx context.Context, uuid string) error {
	store := s.store.WithContext(ctx)
	m := &models.EnvironmentMigration{}
	if err := store.DB.Where("uuid = ?", uuid).First(m).Error; err != nil {
		if database.IsNotFound(err) {
			return NotFound("migration %s not found", uuid)
		}
		return err
	}
	logger := log.FromContextOrDiscard(ctx).WithValues("migration", m.UUID)
	ctx = log.NewContext(ctx, logger)
	if m.Status != models.MigrationStatusPending && m.Status != models.MigrationStatusApproved {
		logger.Info("migration not execution eligible, skipped", "status", m.Status)
		return nil
	}
	if err := m.Transition(store.DB, models.MigrationStatusInProgress, nil); err != nil {
		if errors.Is(err, models.ErrTransitionConflict) {
			logger.Info("migration taken over by another executor")
			return nil
		}
		return err
	}
	start := time.Now()
	result, err := s.execute(ctx, store, m)
	migrationDuration.Observe(time.Since(start).Seconds())
	return s.finish(ctx, store, m, result, err)
}

func (s *Service) execute(ctx context.Context, store *Store, m *models.EnvironmentMigration) (*ExecuteResult, error) {
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
	// things may have changed while the migration waited for approval
	checks, err := s.prechecker.Run(ctx, PreCheckInput{
		Source:            source,
		SourceEnv:         sourceEnv,
		TargetEnv:         targetEnv,
		TargetServer:      server,
		IgnoreMigrationID: m.ID,
	})
	if err != nil {
		return nil, err
	}
	observePreCheck(checks)
	if !checks.Pass {
		return nil, PreCheckFailed(checks)
	}
	siblings, err := s.batchSiblings(store, m)
	if err != nil {
		return nil, err
	}
	return s.executor.Execute(ctx, m, siblings)
}

func (s *Service) finish(ctx context.Context, store *Store, m *models.EnvironmentMigration, result *ExecuteResult, execErr error) error {
	log := log.FromContextOrDiscard(ctx)
	extra := map[string]interface{}{}
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return err
		}
		extra["result"] = datatypes.JSON(raw)
	}
	next := models.MigrationStatusCompleted
	event := notify.EventMigrationCompleted
	detail := fmt.Sprintf("Migration %s completed.", m.UUID)
	if execErr != nil {
		next = models.MigrationStatusFailed
		event = notify.EventMigrationFailed
		extra["error_message"] = failureMessage(execErr)
		detail = fmt.Sprintf("Migration %s failed: %s", m.UUID, extra["error_message"])
		log.Error(execErr, "migration failed")
	}
	if err := m.Transition(store.DB, next, extra); err != nil {
		return err
	}
	migrationsTotal.WithLabelValues(string(next)).Inc()
	log.Info("migration finished", "status", next)
	notify.Send(ctx, s.notifier, &notify.Notification{
		MessageType:  notify.Message,
		Event:        event,
		ResourceType: notify.Migration,
		ResourceUUID: m.UUID,
		TeamID:       m.TeamID,
		To:           []uint{m.RequestedBy},
		Detail:       detail,
	})
	return execErr
}

// failureMessage is persisted on the migration, pre check failures list their errors.
func failureMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind == ErrorKindPreCheckFailed {
		if checks, ok := e.Details.(*PreCheckResult); ok {
			return "Pre-migration checks failed: " + strings.Join(checks.Errors, " ")
		}
	}
	return err.Error()
}

// batchSiblings maps source uuids to target uuids of the completed migrations sharing the batch of m.
func (s *Service) batchSiblings(store *Store, m *models.EnvironmentMigration) (map[string]string, error) {
	ret := map[string]string{}
	if m.BatchUUID == "" {
		return ret, nil
	}
	siblings := []models.EnvironmentMigration{}
	if err := store.DB.Where("batch_uuid = ? AND id <> ? AND status = ? AND target_id IS NOT NULL",
		m.BatchUUID, m.ID, models.MigrationStatusCompleted).Find(&siblings).Error; err != nil {
		return nil, err
	}
	for _, sibling := range siblings {
		source, err := store.Find(sibling.Source())
		if err != nil {
			continue
		}
		target, err := store.Find(models.ResourceRef{Kind: sibling.TargetType, ID: *sibling.TargetID})
		if err != nil {
			continue
		}
		ret[source.GetUUID()] = target.GetUUID()
	}
	return ret, nil
}

// ReapStale fails in progress migrations older than the configured age.
func (s *Service) ReapStale(ctx context.Context) (int, error) {
	store := s.store.WithContext(ctx)
	stale := []models.EnvironmentMigration{}
	deadline := time.Now().Add(-s.options.StaleAfter)
	if err := store.DB.Where("status = ? AND started_at < ?", models.MigrationStatusInProgress, deadline).
		Find(&stale).Error; err != nil {
		return 0, err
	}
	reaped := 0
	for i := range stale {
		m := &stale[i]
		err := m.Transition(store.DB, models.MigrationStatusFailed, map[string]interface{}{
			"error_message": fmt.Sprintf("Migration did not finish within %s.", s.options.StaleAfter),
		})
		if errors.Is(err, models.ErrTransitionConflict) {
			continue
		}
		if err != nil {
			return reaped, err
		}
		migrationsTotal.WithLabelValues(string(models.MigrationStatusFailed)).Inc()
		reaped++
	}
	if reaped > 0 {
		log.FromContextOrDiscard(ctx).Info("reaped stale migrations", "count", reaped)
	}
	return reaped, nil
}
