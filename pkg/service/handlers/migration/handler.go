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

package migrationhandler

import (
	"github.com/gin-gonic/gin"
	"saturn.io/saturn/pkg/migration"
	"saturn.io/saturn/pkg/service/handlers"
	"saturn.io/saturn/pkg/service/models"
)

// ListMigrations list the migrations of the team
// @Tags        Migration
// @Summary     list the migrations of the team, newest first
// @Accept      json
// @Produce     json
// @Param       status query    string                                                                     false "filter by status"
// @Param       page   query    int                                                                        false "page"
// @Param       size   query    int                                                                        false "page size"
// @Success     200    {object} handlers.ResponseStruct{Data=handlers.PageData{List=[]models.EnvironmentMigration}} "migrations"
// @Router      /v1/migrations [get]
// @Security    JWT
func (h *MigrationHandler) ListMigrations(c *gin.Context) {
	actor, ok := h.MustGetActor(c)
	if !ok {
		return
	}
	q, err := handlers.GetQuery(c)
	if err != nil {
		handlers.NotOK(c, err)
		return
	}
	list, total, err := h.Service.List(c.Request.Context(), actor, migration.ListOptions{
		Status: models.MigrationStatus(c.Query("status")),
		Page:   int(q.PageNumber()),
		Size:   int(q.PageSize()),
	})
	if err != nil {
		handlers.NotOK(c, err)
		return
	}
	handlers.OK(c, handlers.NewPage(total, list, q.PageNumber(), q.PageSize()))
}

// RetrieveMigration get one migration
// @Tags        Migration
// @Summary     get one migration of the team
// @Accept      json
// @Produce     json
// @Param       uuid path     string                                                  true "migration uuid"
// @Success     200  {object} handlers.ResponseStruct{Data=models.EnvironmentMigration} "migration"
// @Router      /v1/migrations/{uuid} [get]
// @Security    JWT
func (h *MigrationHandler) RetrieveMigration(c *gin.Context) {
	actor, ok := h.MustGetActor(c)
	if !ok {
		return
	}
	m, err := h.Service.Get(c.Request.Context(), actor, c.Param("uuid"))
	if err != nil {
		handlers.NotOK(c, err)
		return
	}
	handlers.OK(c, m)
}

// ListPendingMigrations list migrations awaiting approval
// @Tags        Migration
// @Summary     list the migrations of the team awaiting approval
// @Accept      json
// @Produce     json
// @Success     200 {object} handlers.ResponseStruct{Data=[]models.EnvironmentMigration} "migrations"
// @Router      /v1/migrations/pending [get]
// @Security    JWT
func (h *MigrationHandler) ListPendingMigrations(c *gin.Context) {
	actor, ok := h.MustGetActor(c)
	if !ok {
		return
	}
	list, err := h.Service.Pending(c.Request.Context(), actor)
	if err != nil {
		handlers.NotOK(c, err)
		return
	}
	handlers.OK(c, list)
}

// CreateMigration create a migration
// @Tags        Migration
// @Summary     migrate a resource into the next environment, a dry run only reports checks and diff
// @Accept      json
// @Produce     json
// @Param       param body     migration.CreateRequest                                true "migration"
// @Success     200   {object} handlers.ResponseStruct{Data=migration.CreateResult} "dry run result"
// @Success     201   {object} handlers.ResponseStruct{Data=migration.CreateResult} "created migration"
// @Router      /v1/migrations [post]
// @Security    JWT
func (h *MigrationHandler) CreateMigration(c *gin.Context) {
	actor, ok := h.MustGetActor(c)
	if !ok {
		return
	}
	req := migration.DefaultCreateRequest()
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.NotOK(c, err)
		return
	}
	req.BatchUUID = ""
	ret, err := h.Service.Create(c.Request.Context(), actor, req)
	if err != nil {
		handlers.NotOK(c, err)
		return
	}
	if ret.DryRun {
		handlers.OK(c, ret)
		return
	}
	handlers.Created(c, ret)
}

// CheckMigration check a prospective migration
// @Tags        Migration
// @Summary     tell whether a resource could be migrated into an environment without creating anything
// @Accept      json
// @Produce     json
// @Param       param body     migration.CheckRequest                                true "source and target"
// @Success     200   {object} handlers.ResponseStruct{Data=migration.Eligibility} "eligibility"
// @Router      /v1/migrations/check [post]
// @Security    JWT
func (h *MigrationHandler) CheckMigration(c *gin.Context) {
	actor, ok := h.MustGetActor(c)
	if !ok {
		return
	}
	req := migration.CheckRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.NotOK(c, err)
		return
	}
	ret, err := h.Service.Check(c.Request.Context(), actor, req)
	if err != nil {
		handlers.NotOK(c, err)
		return
	}
	handlers.OK(c, ret)
}

// ListMigrationTargets list migration targets
// @Tags        Migration
// @Summary     list the environments and servers a resource may be migrated to
// @Accept      json
// @Produce     json
// @Param       source_type path     string                                             true "resource type"
// @Param       source_uuid path     string                                             true "resource uuid"
// @Success     200         {object} handlers.ResponseStruct{Data=migration.Targets} "targets"
// @Router      /v1/migrations/targets/{source_type}/{source_uuid} [get]
// @Security    JWT
func (h *MigrationHandler) ListMigrationTargets(c *gin.Context) {
	actor, ok := h.MustGetActor(c)
	if !ok {
		return
	}
	ret, err := h.Service.Targets(c.Request.Context(), actor, models.ResourceKind(c.Param("source_type")), c.Param("source_uuid"))
	if err != nil {
		handlers.NotOK(c, err)
		return
	}
	handlers.OK(c, ret)
}

// CreateBatchMigration create migrations of several resources
// @Tags        Migration
// @Summary     migrate several resources of one environment together
// @Accept      json
// @Produce     json
// @Param       param body     migration.BatchRequest                                true "resources and target"
// @Success     201   {object} handlers.ResponseStruct{Data=migration.BatchResult} "batch result"
// @Router      /v1/migrations/batch [post]
// @Security    JWT
func (h *MigrationHandler) CreateBatchMigration(c *gin.Context) {
	actor, ok := h.MustGetActor(c)
	if !ok {
		return
	}
	req := migration.BatchRequest{Options: migration.DefaultCreateRequest().Options}
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.NotOK(c, err)
		return
	}
	ret, err := h.Service.CreateBatch(c.Request.Context(), actor, req)
	if err != nil {
		handlers.NotOK(c, err)
		return
	}
	handlers.Created(c, ret)
}

type ApproveForm struct {
	Note string `json:"note"`
}

// ApproveMigration approve a migration
// @Tags        Migration
// @Summary     approve a migration awaiting approval, it starts executing
// @Accept      json
// @Produce     json
// @Param       uuid  path     string                                                  true  "migration uuid"
// @Param       param body     ApproveForm                                             false "approval note"
// @Success     200   {object} handlers.ResponseStruct{Data=models.EnvironmentMigration} "migration"
// @Router      /v1/migrations/{uuid}/approve [post]
// @Security    JWT
func (h *MigrationHandler) ApproveMigration(c *gin.Context) {
	actor, ok := h.MustGetActor(c)
	if !ok {
		return
	}
	form := ApproveForm{}
	if err := handlers.BindOptionalJSON(c, &form); err != nil {
		handlers.NotOK(c, err)
		return
	}
	m, err := h.Service.Approve(c.Request.Context(), actor, c.Param("uuid"), form.Note)
	if err != nil {
		handlers.NotOK(c, err)
		return
	}
	handlers.OK(c, m)
}

type RejectForm struct {
	Reason string `json:"reason" binding:"required"`
}

// RejectMigration reject a migration
// @Tags        Migration
// @Summary     reject a migration awaiting approval
// @Accept      json
// @Produce     json
// @Param       uuid  path     string                                                  true "migration uuid"
// @Param       param body     RejectForm                                              true "rejection reason"
// @Success     200   {object} handlers.ResponseStruct{Data=models.EnvironmentMigration} "migration"
// @Router      /v1/migrations/{uuid}/reject [post]
// @Security    JWT
func (h *MigrationHandler) RejectMigration(c *gin.Context) {
	actor, ok := h.MustGetActor(c)
	if !ok {
		return
	}
	form := RejectForm{}
	if err := handlers.BindOptionalJSON(c, &form); err != nil {
		handlers.NotOK(c, err)
		return
	}
	m, err := h.Service.Reject(c.Request.Context(), actor, c.Param("uuid"), form.Reason)
	if err != nil {
		handlers.NotOK(c, err)
		return
	}
	handlers.OK(c, m)
}

// CancelMigration cancel a migration
// @Tags        Migration
// @Summary     cancel a migration that has not started executing
// @Accept      json
// @Produce     json
// @Param       uuid path     string                                                  true "migration uuid"
// @Success     200  {object} handlers.ResponseStruct{Data=models.EnvironmentMigration} "migration"
// @Router      /v1/migrations/{uuid}/cancel [post]
// @Security    JWT
func (h *MigrationHandler) CancelMigration(c *gin.Context) {
	actor, ok := h.MustGetActor(c)
	if !ok {
		return
	}
	m, err := h.Service.Cancel(c.Request.Context(), actor, c.Param("uuid"))
	if err != nil {
		handlers.NotOK(c, err)
		return
	}
	handlers.OK(c, m)
}

type RollbackResponse struct {
	Migration *models.EnvironmentMigration `json:"migration"`
	Rollback  *migration.RollbackResult    `json:"rollback"`
}

// RollbackMigration rollback a migration
// @Tags        Migration
// @Summary     restore the target of a completed migration from its snapshot
// @Accept      json
// @Produce     json
// @Param       uuid path     string                                          true "migration uuid"
// @Success     200  {object} handlers.ResponseStruct{Data=RollbackResponse} "rollback result"
// @Router      /v1/migrations/{uuid}/rollback [post]
// @Security    JWT
func (h *MigrationHandler) RollbackMigration(c *gin.Context) {
	actor, ok := h.MustGetActor(c)
	if !ok {
		return
	}
	m, result, err := h.Service.Rollback(c.Request.Context(), actor, c.Param("uuid"))
	if err != nil {
		handlers.NotOK(c, err)
		return
	}
	handlers.OK(c, RollbackResponse{Migration: m, Rollback: result})
}
