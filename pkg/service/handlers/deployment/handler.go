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

package deploymenthandler

import (
	"github.com/gin-gonic/gin"
	"saturn.io/saturn/pkg/deployment"
	"saturn.io/saturn/pkg/service/handlers"
)

// QueueDeployment queue a deployment
// @Tags        Deployment
// @Summary     queue a deployment of an application, protected environments wait for approval
// @Accept      json
// @Produce     json
// @Param       param body     deployment.QueueRequest                                         true "deployment"
// @Success     201   {object} handlers.ResponseStruct{Data=models.ApplicationDeploymentQueue} "deployment"
// @Router      /v1/deployments [post]
// @Security    JWT
func (h *DeploymentHandler) QueueDeployment(c *gin.Context) {
	actor, ok := h.MustGetActor(c)
	if !ok {
		return
	}
	req := deployment.QueueRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.NotOK(c, err)
		return
	}
	d, err := h.Service.Queue(c.Request.Context(), actor, req)
	if err != nil {
		handlers.NotOK(c, err)
		return
	}
	handlers.Created(c, d)
}

// ListDeploymentApprovals list deployments awaiting approval
// @Tags        Deployment
// @Summary     list the deployments of the team awaiting approval
// @Accept      json
// @Produce     json
// @Success     200 {object} handlers.ResponseStruct{Data=[]deployment.PendingApproval} "approvals"
// @Router      /v1/deployments/approvals [get]
// @Security    JWT
func (h *DeploymentHandler) ListDeploymentApprovals(c *gin.Context) {
	actor, ok := h.MustGetActor(c)
	if !ok {
		return
	}
	list, err := h.Service.PendingApprovals(c.Request.Context(), actor)
	if err != nil {
		handlers.NotOK(c, err)
		return
	}
	handlers.OK(c, list)
}

type DecisionForm struct {
	Note string `json:"note"`
}

type RejectForm struct {
	Reason string `json:"reason" binding:"required"`
}

// ApproveDeployment approve a deployment
// @Tags        Deployment
// @Summary     approve a deployment, it is queued for execution
// @Accept      json
// @Produce     json
// @Param       uuid  path     string                                                         true  "approval uuid"
// @Param       param body     DecisionForm                                                   false "approval note"
// @Success     200   {object} handlers.ResponseStruct{Data=models.ApplicationDeploymentQueue} "deployment"
// @Router      /v1/deployments/approvals/{uuid}/approve [post]
// @Security    JWT
func (h *DeploymentHandler) ApproveDeployment(c *gin.Context) {
	actor, ok := h.MustGetActor(c)
	if !ok {
		return
	}
	form := DecisionForm{}
	if err := handlers.BindOptionalJSON(c, &form); err != nil {
		handlers.NotOK(c, err)
		return
	}
	d, err := h.Service.Approve(c.Request.Context(), actor, c.Param("uuid"), form.Note)
	if err != nil {
		handlers.NotOK(c, err)
		return
	}
	handlers.OK(c, d)
}

// RejectDeployment reject a deployment
// @Tags        Deployment
// @Summary     reject a deployment, it is cancelled
// @Accept      json
// @Produce     json
// @Param       uuid  path     string                                                         true "approval uuid"
// @Param       param body     RejectForm                                                     true "rejection reason"
// @Success     200   {object} handlers.ResponseStruct{Data=models.ApplicationDeploymentQueue} "deployment"
// @Router      /v1/deployments/approvals/{uuid}/reject [post]
// @Security    JWT
func (h *DeploymentHandler) RejectDeployment(c *gin.Context) {
	actor, ok := h.MustGetActor(c)
	if !ok {
		return
	}
	form := RejectForm{}
	if err := handlers.BindOptionalJSON(c, &form); err != nil {
		handlers.NotOK(c, err)
		return
	}
	d, err := h.Service.Reject(c.Request.Context(), actor, c.Param("uuid"), form.Reason)
	if err != nil {
		handlers.NotOK(c, err)
		return
	}
	handlers.OK(c, d)
}
