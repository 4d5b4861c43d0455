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
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"saturn.io/saturn/pkg/authorization"
	"saturn.io/saturn/pkg/notify"
	"saturn.io/saturn/pkg/service/models"
	"saturn.io/saturn/pkg/utils/database"
)

// approvalOf returns the approval record of a migration.
func approvalOf(db *gorm.DB, m *models.EnvironmentMigration) (*models.Approval, error) {
	approval := &models.Approval{}
	err := db.Where("approvable_type = ? AND approvable_id = ?", models.ApprovableMigration, m.ID).First(approval).Error
	if database.IsNotFound(err) {
		return nil, NotFound("approval of migration %s not found", m.UUID)
	}
	return approval, err
}

// DecideApproval moves a pending approval to status, a decided approval is never decided again.
func DecideApproval(tx *gorm.DB, approval *models.Approval, status models.ApprovalStatus, by uint, note, reason string) error {
	now := time.Now()
	ret := tx.Model(&models.Approval{}).
		Where("id = ? AND status = ?", approval.ID, models.ApprovalStatusPending).
		Updates(map[string]interface{}{
			"status":           status,
			"approved_by":      by,
			"approved_at":      now,
			"note":             note,
			"rejection_reason": reason,
		})
	if ret.Error != nil {
		return ret.Error
	}
	if ret.RowsAffected == 0 {
		return Forbidden("Approval has already been decided.")
	}
	approval.Status, approval.ApprovedBy, approval.ApprovedAt = status, &by, &now
	approval.Note, approval.RejectionReason = note, reason
	return nil
}

func transitionError(err error, m *models.EnvironmentMigration) error {
	if errors.Is(err, models.ErrTransitionConflict) {
		return Conflict("Migration %s changed concurrently, retry.", m.UUID)
	}
	return err
}

// Approve lets an approver release a migration awaiting approval for execution.
func (s *Service) Approve(ctx context.Context, actor Actor, uuid string, note string) (*models.EnvironmentMigration, error) {
	if err := s.require(actor, authorization.PermMigrationApprove); err != nil {
		return nil, err
	}
	store := s.store.WithContext(ctx)
	m, err := store.Migration(uuid, actor.TeamID)
	if err != nil {
		return nil, err
	}
	if m.Status != models.MigrationStatusPendingApproval {
		return nil, Forbidden("Migration is %s, only migrations awaiting approval can be approved.", m.Status)
	}
	approval, err := approvalOf(store.DB, m)
	if err != nil {
		return nil, err
	}
	if !authorization.CanDecide(actor.Role, approval) {
		return nil, Forbidden("You cannot decide this approval.")
	}
	err = store.DB.Transaction(func(tx *gorm.DB) error {
		if err := DecideApproval(tx, approval, models.ApprovalStatusApproved, actor.UserID, note, ""); err != nil {
			return err
		}
		return m.Transition(tx, models.MigrationStatusApproved, map[string]interface{}{
			"approved_by": actor.UserID,
			"approved_at": approval.ApprovedAt,
		})
	})
	if err != nil {
		return nil, transitionError(err, m)
	}
	s.notifyDecision(ctx, actor, m, "approved")
	s.dispatch(ctx, m)
	if err := store.DB.First(m, m.ID).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// Reject declines a migration awaiting approval, the migration is cancelled.
func (s *Service) Reject(ctx context.Context, actor Actor, uuid string, reason string) (*models.EnvironmentMigration, error) {
	if err := s.require(actor, authorization.PermMigrationReject); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, Invalid("A reason is required to reject a migration.")
	}
	store := s.store.WithContext(ctx)
	m, err := store.Migration(uuid, actor.TeamID)
	if err != nil {
		return nil, err
	}
	if m.Status != models.MigrationStatusPendingApproval {
		return nil, Forbidden("Migration is %s, only migrations awaiting approval can be rejected.", m.Status)
	}
	approval, err := approvalOf(store.DB, m)
	if err != nil {
		return nil, err
	}
	if !authorization.CanDecide(actor.Role, approval) {
		return nil, Forbidden("You cannot decide this approval.")
	}
	err = store.DB.Transaction(func(tx *gorm.DB) error {
		if err := DecideApproval(tx, approval, models.ApprovalStatusRejected, actor.UserID, "", reason); err != nil {
			return err
		}
		return m.Transition(tx, models.MigrationStatusCancelled, map[string]interface{}{
			"rejection_reason": reason,
		})
	})
	if err != nil {
		return nil, transitionError(err, m)
	}
	migrationsTotal.WithLabelValues(string(models.MigrationStatusCancelled)).Inc()
	s.notifyDecision(ctx, actor, m, "rejected: "+reason)
	return m, nil
}

// Cancel stops a migration before its execution started.
func (s *Service) Cancel(ctx context.Context, actor Actor, uuid string) (*models.EnvironmentMigration, error) {
	if err := s.require(actor, authorization.PermMigrationCancel); err != nil {
		return nil, err
	}
	store := s.store.WithContext(ctx)
	m, err := store.Migration(uuid, actor.TeamID)
	if err != nil {
		return nil, err
	}
	if !authorization.CanCancelMigration(actor.UserID, actor.Role, m) {
		return nil, Forbidden("Migration is %s and cannot be cancelled by you.", m.Status)
	}
	err = store.DB.Transaction(func(tx *gorm.DB) error {
		if m.Status == models.MigrationStatusPendingApproval {
			approval, err := approvalOf(tx, m)
			if err != nil && !IsKind(err, ErrorKindNotFound) {
				return err
			}
			if approval != nil && !approval.IsDecided() {
				if err := DecideApproval(tx, approval, models.ApprovalStatusRejected, actor.UserID, "", "Migration cancelled."); err != nil {
					return err
				}
			}
		}
		return m.Transition(tx, models.MigrationStatusCancelled, nil)
	})
	if err != nil {
		return nil, transitionError(err, m)
	}
	migrationsTotal.WithLabelValues(string(models.MigrationStatusCancelled)).Inc()
	return m, nil
}

// Rollback reverts a completed migration and tells its requester.
func (s *Service) Rollback(ctx context.Context, actor Actor, uuid string) (*models.EnvironmentMigration, *RollbackResult, error) {
	if err := s.require(actor, authorization.PermMigrationRollback); err != nil {
		return nil, nil, err
	}
	store := s.store.WithContext(ctx)
	m, err := store.Migration(uuid, actor.TeamID)
	if err != nil {
		return nil, nil, err
	}
	result, err := Rollback(ctx, store, m)
	if err != nil {
		return nil, nil, transitionError(err, m)
	}
	migrationsTotal.WithLabelValues(string(models.MigrationStatusRolledBack)).Inc()
	notify.Send(ctx, s.notifier, &notify.Notification{
		MessageType:  notify.Message,
		Event:        notify.EventMigrationRolledBack,
		ResourceType: notify.Migration,
		ResourceUUID: m.UUID,
		TeamID:       m.TeamID,
		From:         actor.UserID,
		To:           []uint{m.RequestedBy},
		Detail:       fmt.Sprintf("Migration %s was rolled back, target %s.", m.UUID, result.Action),
	})
	return m, result, nil
}

func (s *Service) notifyDecision(ctx context.Context, actor Actor, m *models.EnvironmentMigration, decision string) {
	notify.Send(ctx, s.notifier, &notify.Notification{
		MessageType:  notify.Message,
		Event:        notify.EventApprovalDecided,
		ResourceType: notify.Migration,
		ResourceUUID: m.UUID,
		TeamID:       m.TeamID,
		From:         actor.UserID,
		To:           []uint{m.RequestedBy},
		Detail:       fmt.Sprintf("Migration %s was %s.", m.UUID, decision),
	})
}
