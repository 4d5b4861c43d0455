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
	"saturn.io/saturn/pkg/service/handlers/base"
)

type MigrationHandler struct {
	base.BaseHandler
	Service *migration.Service
}

func (h *MigrationHandler) RegistRouter(rg *gin.RouterGroup) {
	rg.GET("/migrations", h.ListMigrations)
	rg.GET("/migrations/pending", h.ListPendingMigrations)
	rg.POST("/migrations", h.CreateMigration)
	rg.POST("/migrations/check", h.CheckMigration)
	rg.POST("/migrations/batch", h.CreateBatchMigration)
	rg.GET("/migrations/targets/:source_type/:source_uuid", h.ListMigrationTargets)
	rg.GET("/migrations/:uuid", h.RetrieveMigration)
	rg.POST("/migrations/:uuid/approve", h.ApproveMigration)
	rg.POST("/migrations/:uuid/reject", h.RejectMigration)
	rg.POST("/migrations/:uuid/cancel", h.CancelMigration)
	rg.POST("/migrations/:uuid/rollback", h.RollbackMigration)
}
