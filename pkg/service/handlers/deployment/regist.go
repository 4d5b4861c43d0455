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
	"saturn.io/saturn/pkg/service/handlers/base"
)

type DeploymentHandler struct {
	base.BaseHandler
	Service *deployment.Service
}

func (h *DeploymentHandler) RegistRouter(rg *gin.RouterGroup) {
	rg.POST("/deployments", h.QueueDeployment)
	rg.GET("/deployments/approvals", h.ListDeploymentApprovals)
	rg.POST("/deployments/approvals/:uuid/approve", h.ApproveDeployment)
	rg.POST("/deployments/approvals/:uuid/reject", h.RejectDeployment)
}
