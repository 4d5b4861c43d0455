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

package deployment

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"gorm.io/gorm"
	"saturn.io/saturn/pkg/authorization"
	"saturn.io/saturn/pkg/log"
	"saturn.io/saturn/pkg/migration"
	"saturn.io/saturn/pkg/notify"
	"saturn.io/saturn/pkg/service/models"
	"saturn.io/saturn/pkg/utils"
	"saturn.io/saturn/pkg/utils/database"
	"saturn.io/saturn/pkg/utils/remote"
	"saturn.io/saturn/pkg/utils/workflow"
)

const (
	TaskGroup             = "deployment"
	TaskApplicationDeploy = "application-deploy"
)

type Options struct {
	Dir     string        `json:"dir" description:"directory on the server holding application compose projects"`
	Timeout time.Duration `json:"timeout" description:"timeout of one deployment"`
}

func NewDefaultOptions() *Options {
	return &Options{
		Dir:     "/data/saturn/applications",
		Timeout: 30 * time.Minute,
	}
}

func (o *Options) RegistFlags(prefix string, fs *pflag.FlagSet) {
	fs.StringVar(&o.Dir, utils.JoinFlagName(prefix, "dir"), o.Dir, "directory on the server holding application compose projects")
	fs.DurationVar(&o.Timeout, utils.JoinFlagName(prefix, "timeout"), o.Timeout, "timeout of one deployment")
}

// Service queues application deployments, deployments into protected environments wait for approval.
type Service struct {
	db          *gorm.DB
	exec        remote.Executor
	options     *Options
	permissions authorization.PermissionChecker
	notifier    notify.Notifier
	client      *workflow.Client
}

var _ migration.Deployer = &Service{}

// NewService creates a deployment service, a nil client deploys before returning.
func NewService(db *gorm.DB, exec remote.Executor, options *Options, permissions authorization.PermissionChecker, notifier notify.Notifier, client *workflow.Client) *Service {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Service{
		db:          db,
		exec:        exec,
		options:     options,
		permissions: permissions,
		notifier:    notifier,
		client:      client,
	}
}

func (s *Service) require(actor migration.Actor, perm string) error {
	ok, err := s.permissions.HasPermission(actor.Role, perm)
	if err != nil {
		return err
	}
	if !ok {
		return migration.Forbidden("Role %s is not allowed to %s.", actor.Role, perm)
	}
	return nil
}

type QueueRequest struct {
	ApplicationUUID string `json:"application_uuid" binding:"required"`
	CommitSha       string `json:"commit"`
	ForceRebuild    bool   `json:"force_rebuild"`
}

// Queue records a deployment of an application of the team.
func (s *Service) Queue(ctx context.Context, actor migration.Actor, req QueueRequest) (*models.ApplicationDeploymentQueue, error) {
	if err := s.require(actor, authorization.PermDeploymentCreate); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	app, err := migration.NewStore(db).FindByUUID(models.KindApplication, req.ApplicationUUID, actor.TeamID)
	if err != nil {
		return nil, err
	}
	env := &models.Environment{}
	if err := db.First(env, app.GetEnvironmentID()).Error; err != nil {
		return nil, err
	}
	requiresApproval := authorization.RequiresApprovalForEnvironment(actor.Role, env)
	return s.queue(ctx, app.(*models.Application), actor.TeamID, actor.UserID, req.CommitSha, req.ForceRebuild, requiresApproval)
}

// DeployMigrated queues a deployment of an application a migration just produced.
// The migration itself went through approval so the deployment does not.
func (s *Service) DeployMigrated(ctx context.Context, app *models.Application, teamID uint, requestedBy uint) (string, error) {
	d, err := s.queue(ctx, app, teamID, requestedBy, app.GitCommitSha, false, false)
	if err != nil {
		return "", err
	}
	return d.UUID, nil
}

func (s *Service) queue(ctx context.Context, app *models.Application, teamID, requestedBy uint, commit string, force, requiresApproval bool) (*models.ApplicationDeploymentQueue, error) {
	db := s.db.WithContext(ctx)
	server, err := migration.NewStore(db).ServerOfDestination(app.DestinationID)
	if err != nil {
		return nil, err
	}
	if commit == "" {
		commit = "HEAD"
	}
	d := &models.ApplicationDeploymentQueue{
		UUID:          uuid.NewString(),
		ApplicationID: app.ID,
		ServerID:      server.ID,
		TeamID:        teamID,
		CommitSha:     commit,
		ForceRebuild:  force,
		Status:        models.DeploymentStatusQueued,
		RequestedBy:   requestedBy,
	}
	if requiresApproval {
		d.Status = models.DeploymentStatusPendingApproval
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(d).Error; err != nil {
			return err
		}
		if !requiresApproval {
			return nil
		}
		return tx.Create(&models.Approval{
			UUID:           uuid.NewString(),
			TeamID:         teamID,
			ApprovableType: models.ApprovableDeployment,
			ApprovableID:   d.ID,
			Status:         models.ApprovalStatusPending,
			RequestedBy:    requestedBy,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	if requiresApproval {
		notify.Send(ctx, s.notifier, &notify.Notification{
			MessageType:  notify.Approve,
			Event:        notify.EventApprovalRequested,
			ResourceType: notify.Deployment,
			ResourceUUID: d.UUID,
			TeamID:       teamID,
			From:         requestedBy,
			To:           (&database.DatabaseHelper{DB: db}).TeamApprovers(teamID),
			Detail:       fmt.Sprintf("Deployment of %s awaits approval.", app.Name),
		})
		return d, nil
	}
	if err := s.dispatch(ctx, d); err != nil {
		return nil, err
	}
	return d, db.First(d, d.ID).Error
}

func (s *Service) dispatch(ctx context.Context, d *models.ApplicationDeploymentQueue) error {
	if s.client == nil {
		if err := s.Deploy(ctx, d.UUID); err != nil {
			log.FromContextOrDiscard(ctx).Error(err, "deployment failed", "deployment", d.UUID)
		}
		return nil
	}
	return s.client.SubmitTask(ctx, workflow.Task{
		Name:  TaskApplicationDeploy,
		Group: TaskGroup,
		Steps: []workflow.Step{
			{
				Name:     "deploy",
				Function: TaskApplicationDeploy,
				Args:     workflow.ArgsOf(d.UUID),
				Timeout:  s.options.Timeout,
			},
		},
		Addtionals: map[string]string{"deployment": d.UUID},
	})
}

// PendingApproval is a deployment awaiting a decision.
type PendingApproval struct {
	Approval        models.Approval                   `json:"approval"`
	Deployment      models.ApplicationDeploymentQueue `json:"deployment"`
	ApplicationUUID string                            `json:"application_uuid"`
	ApplicationName string                            `json:"application_name"`
}

// PendingApprovals lists the deployments of the team awaiting approval, oldest first.
func (s *Service) PendingApprovals(ctx context.Context, actor migration.Actor) ([]PendingApproval, error) {
	if err := s.require(actor, authorization.PermDeploymentRead); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	approvals := []models.Approval{}
	if err := db.Where("team_id = ? AND approvable_type = ? AND status = ?",
		actor.TeamID, models.ApprovableDeployment, models.ApprovalStatusPending).
		Order("id").Find(&approvals).Error; err != nil {
		return nil, err
	}
	ret := make([]PendingApproval, 0, len(approvals))
	for _, approval := range approvals {
		d := models.ApplicationDeploymentQueue{}
		if err := db.Preload("Application").First(&d, approval.ApprovableID).Error; err != nil {
			if database.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		item := PendingApproval{Approval: approval, Deployment: d}
		if d.Application != nil {
			item.ApplicationUUID, item.ApplicationName = d.Application.UUID, d.Application.Name
		}
		ret = append(ret, item)
	}
	return ret, nil
}

func (s *Service) approval(db *gorm.DB, actor migration.Actor, approvalUUID string) (*models.Approval, *models.ApplicationDeploymentQueue, error) {
	approval := &models.Approval{}
	err := db.Where("uuid = ? AND team_id = ? AND approvable_type = ?",
		approvalUUID, actor.TeamID, models.ApprovableDeployment).First(approval).Error
	if database.IsNotFound(err) {
		return nil, nil, migration.NotFound("approval %s not found", approvalUUID)
	}
	if err != nil {
		return nil, nil, err
	}
	d := &models.ApplicationDeploymentQueue{}
	if err := db.First(d, approval.ApprovableID).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, nil, migration.NotFound("deployment of approval %s not found", approvalUUID)
		}
		return nil, nil, err
	}
	if !authorization.CanDecide(actor.Role, approval) {
		return nil, nil, migration.Forbidden("You cannot decide this approval.")
	}
	return approval, d, nil
}

// Approve queues a deployment awaiting approval.
func (s *Service) Approve(ctx context.Context, actor migration.Actor, approvalUUID string, note string) (*models.ApplicationDeploymentQueue, error) {
	if err := s.require(actor, authorization.PermDeploymentApprove); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	approval, d, err := s.approval(db, actor, approvalUUID)
	if err != nil {
		return nil, err
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := migration.DecideApproval(tx, approval, models.ApprovalStatusApproved, actor.UserID, note, ""); err != nil {
			return err
		}
		return transition(tx, d, models.DeploymentStatusPendingApproval, models.DeploymentStatusQueued, "")
	})
	if err != nil {
		return nil, err
	}
	s.notifyDecision(ctx, actor, d, "approved")
	if err := s.dispatch(ctx, d); err != nil {
		return nil, err
	}
	return d, db.First(d, d.ID).Error
}

// Reject cancels a deployment awaiting approval.
func (s *Service) Reject(ctx context.Context, actor migration.Actor, approvalUUID string, reason string) (*models.ApplicationDeploymentQueue, error) {
	if err := s.require(actor, authorization.PermDeploymentReject); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, migration.Invalid("A reason is required to reject a deployment.")
	}
	db := s.db.WithContext(ctx)
	approval, d, err := s.approval(db, actor, approvalUUID)
	if err != nil {
		return nil, err
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := migration.DecideApproval(tx, approval, models.ApprovalStatusRejected, actor.UserID, "", reason); err != nil {
			return err
		}
		return transition(tx, d, models.DeploymentStatusPendingApproval, models.DeploymentStatusCancelled, "Rejected: "+reason)
	})
	if err != nil {
		return nil, err
	}
	s.notifyDecision(ctx, actor, d, "rejected: "+reason)
	return d, nil
}

func (s *Service) notifyDecision(ctx context.Context, actor migration.Actor, d *models.ApplicationDeploymentQueue, decision string) {
	notify.Send(ctx, s.notifier, &notify.Notification{
		MessageType:  notify.Message,
		Event:        notify.EventApprovalDecided,
		ResourceType: notify.Deployment,
		ResourceUUID: d.UUID,
		TeamID:       d.TeamID,
		From:         actor.UserID,
		To:           []uint{d.RequestedBy},
		Detail:       fmt.Sprintf("Deployment %s was %s.", d.UUID, decision),
	})
}

// transition moves d from one status to the next, losing a race to another transition is a conflict.
func transition(db *gorm.DB, d *models.ApplicationDeploymentQueue, from, to models.DeploymentStatus, message string) error {
	updates := map[string]interface{}{"status": to}
	if message != "" {
		updates["message"] = message
	}
	ret := db.Model(&models.ApplicationDeploymentQueue{}).Where("id = ? AND status = ?", d.ID, from).Updates(updates)
	if ret.Error != nil {
		return ret.Error
	}
	if ret.RowsAffected == 0 {
		return migration.Conflict("Deployment %s is no longer %s.", d.UUID, from)
	}
	d.Status = to
	if message != "" {
		d.Message = message
	}
	return nil
}

func (s *Service) ProvideFuntions() map[string]interface{} {
	return map[string]interface{}{
		TaskApplicationDeploy: s.Deploy,
	}
}

// Deploy brings up the compose project of a queued deployment on its server.
func (s *Service) Deploy(ctx context.Context, deploymentUUID string) error {
	db := s.db.WithContext(ctx)
	d := &models.ApplicationDeploymentQueue{}
	if err := db.Preload("Application").Where("uuid = ?", deploymentUUID).First(d).Error; err != nil {
		return err
	}
	log := log.FromContextOrDiscard(ctx).WithValues("deployment", d.UUID)
	if err := transition(db, d, models.DeploymentStatusQueued, models.DeploymentStatusInProgress, ""); err != nil {
		log.Info("deployment not queued, skipped", "status", d.Status)
		return nil
	}
	if d.Application == nil {
		return transition(db, d, models.DeploymentStatusInProgress, models.DeploymentStatusFailed, "Application no longer exists.")
	}
	server := &models.Server{}
	if err := db.First(server, d.ServerID).Error; err != nil {
		return transition(db, d, models.DeploymentStatusInProgress, models.DeploymentStatusFailed, err.Error())
	}
	out, err := s.exec.Run(ctx, server.Target(), DeployCommand(s.options.Dir, d))
	if err != nil {
		log.Error(err, "deploy application", "output", out)
		return transition(db, d, models.DeploymentStatusInProgress, models.DeploymentStatusFailed, fmt.Sprintf("Deployment failed: %v", err))
	}
	if err := db.Model(d.Application).Update("status", "running").Error; err != nil {
		return err
	}
	log.Info("application deployed", "application", d.Application.UUID)
	return transition(db, d, models.DeploymentStatusInProgress, models.DeploymentStatusFinished, "Deployment finished.")
}

// DeployCommand rebuilds and restarts the compose project of the application of d.
func DeployCommand(dir string, d *models.ApplicationDeploymentQueue) string {
	project := path.Join(dir, d.Application.UUID)
	build := ""
	if d.ForceRebuild {
		build = " --build --force-recreate"
	}
	return fmt.Sprintf("cd %s && SOURCE_COMMIT=%s docker compose up -d --remove-orphans%s",
		utils.ShellQuote(project), utils.ShellQuote(d.CommitSha), build)
}
