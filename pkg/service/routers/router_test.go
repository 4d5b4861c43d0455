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

package routers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"saturn.io/saturn/pkg/authorization"
	"saturn.io/saturn/pkg/deployment"
	"saturn.io/saturn/pkg/migration"
	"saturn.io/saturn/pkg/service/aaa"
	"saturn.io/saturn/pkg/service/aaa/auth"
	"saturn.io/saturn/pkg/service/models"
	"saturn.io/saturn/pkg/service/models/validate"
	"saturn.io/saturn/pkg/utils/jwt"
	"saturn.io/saturn/pkg/utils/remote"
)

type apiFixture struct {
	db     *gorm.DB
	router *gin.Engine
	jwt    *jwt.JWT
	uat    *models.Environment
	server *models.Server
	devDB  *models.Database
}

type apiBody struct {
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	ErrorData json.RawMessage `json:"errorData"`
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validate.InitValidator()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent), TranslateError: true})
	require.NoError(t, err)
	sqldb, err := db.DB()
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	require.NoError(t, models.MigrateModels(db))

	f := &apiFixture{db: db}
	for _, v := range []interface{}{
		&models.Team{ID: 1, Name: "acme"},
		&models.Team{ID: 2, Name: "globex"},
		&models.User{ID: 1, Name: "olivia", Email: "olivia@acme.io"},
		&models.User{ID: 2, Name: "dev", Email: "dev@acme.io"},
		&models.User{ID: 9, Name: "mallory", Email: "mallory@globex.io"},
		&models.TeamMember{TeamID: 1, UserID: 1, Role: models.RoleOwner},
		&models.TeamMember{TeamID: 1, UserID: 2, Role: models.RoleDeveloper},
		&models.TeamMember{TeamID: 2, UserID: 9, Role: models.RoleOwner},
	} {
		require.NoError(t, db.Create(v).Error)
	}
	project := &models.Project{UUID: "project-1", Name: "shop", TeamID: 1}
	require.NoError(t, db.Create(project).Error)
	dev := &models.Environment{UUID: "env-dev", Name: "dev", Type: models.EnvironmentTypeDevelopment, ProjectID: project.ID}
	f.uat = &models.Environment{UUID: "env-uat", Name: "uat", Type: models.EnvironmentTypeUAT, RequiresApproval: true, ProjectID: project.ID}
	require.NoError(t, db.Create(dev).Error)
	require.NoError(t, db.Create(f.uat).Error)
	f.server = &models.Server{UUID: "uat-1", Name: "uat-1", IP: "10.0.0.2", TeamID: 1, IsReachable: true, IsUsable: true}
	require.NoError(t, db.Create(f.server).Error)
	dest := &models.Destination{UUID: "uat-1-dest", Name: "default", Network: "saturn", ServerID: f.server.ID}
	require.NoError(t, db.Create(dest).Error)
	f.devDB = &models.Database{
		UUID:             "dev-db-0001",
		Name:             "shop-db",
		Engine:           models.KindPostgreSQL,
		Image:            "postgres:15-alpine",
		PostgresUser:     "shop",
		PostgresPassword: "devpass",
		PostgresDB:       "shop",
		Status:           "running:healthy",
		EnvironmentID:    dev.ID,
		DestinationID:    dest.ID,
	}
	require.NoError(t, db.Create(f.devDB).Error)

	exec := remote.NewFakeExecutor()
	exec.Handler = func(target remote.Target, cmd string) (string, error) {
		if strings.HasPrefix(cmd, "df ") {
			return "42\n", nil
		}
		return "", nil
	}
	perms, err := authorization.NewCasbinPermissionChecker(context.Background(), nil)
	require.NoError(t, err)

	f.jwt, err = (&jwt.Options{Secret: "test-secret"}).ToJWT()
	require.NoError(t, err)
	actors := aaa.NewActorInfoHandler()
	f.router = NewRouter()
	RegistRouter(f.router, Services{
		Actors:     actors,
		Migration:  migration.NewService(db, exec, migration.NewDefaultOptions(), perms),
		Deployment: deployment.NewService(db, exec, deployment.NewDefaultOptions(), perms, nil, nil),
	}, auth.NewAuthMiddleware(f.jwt, db, actors).FilterFunc)
	return f
}

func (f *apiFixture) token(t *testing.T, userID, teamID uint) string {
	t.Helper()
	token, _, err := f.jwt.GenerateToken(jwt.Payload{UserID: userID, TeamID: teamID}, time.Hour)
	require.NoError(t, err)
	return token
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) (int, apiBody) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	ret := apiBody{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ret), rec.Body.String())
	}
	return rec.Code, ret
}

func (f *apiFixture) createRequest(dryRun bool) map[string]interface{} {
	return map[string]interface{}{
		"source_type":           "postgresql",
		"source_uuid":           f.devDB.UUID,
		"target_environment_id": f.uat.ID,
		"target_server_id":      f.server.ID,
		"dry_run":               dryRun,
	}
}

func TestPublicRoutes(t *testing.T) {
	f := setupAPI(t)
	for _, path := range []string{"/healthz", "/version", "/v1/version"} {
		code, _ := f.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, code, path)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "saturn_migration_duration_seconds")
}

func TestAuthentication(t *testing.T) {
	f := setupAPI(t)
	other, err := (&jwt.Options{Secret: "other-secret"}).ToJWT()
	require.NoError(t, err)
	forged, _, err := other.GenerateToken(jwt.Payload{UserID: 1, TeamID: 1}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{name: "no token", token: "", want: http.StatusUnauthorized},
		{name: "garbage", token: "not-a-jwt", want: http.StatusUnauthorized},
		{name: "wrong signature", token: forged, want: http.StatusUnauthorized},
		{name: "not a member of the team", token: f.token(t, 9, 1), want: http.StatusUnauthorized},
		{name: "member", token: f.token(t, 2, 1), want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := f.do(t, http.MethodGet, "/v1/migrations", tt.token, nil)
			assert.Equal(t, tt.want, code)
		})
	}

	t.Run("token in query", func(t *testing.T) {
		code, _ := f.do(t, http.MethodGet, "/v1/migrations?token="+f.token(t, 1, 1), "", nil)
		assert.Equal(t, http.StatusOK, code)
	})
}

func TestCreateMigrationValidation(t *testing.T) {
	f := setupAPI(t)
	token := f.token(t, 1, 1)

	tests := []struct {
		name       string
		body       map[string]interface{}
		wantFields []string
	}{
		{
			name:       "empty body",
			body:       map[string]interface{}{},
			wantFields: []string{"source_type", "source_uuid", "target_environment_id", "target_server_id"},
		},
		{
			name: "unknown source type",
			body: func() map[string]interface{} {
				b := f.createRequest(false)
				b["source_type"] = "server"
				return b
			}(),
			wantFields: []string{"source_type"},
		},
		{
			name: "unknown update mode",
			body: func() map[string]interface{} {
				b := f.createRequest(false)
				b["options"] = map[string]interface{}{"update_mode": "partial"}
				return b
			}(),
			wantFields: []string{"options.update_mode"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := f.do(t, http.MethodPost, "/v1/migrations", token, tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, code)
			fields := map[string]string{}
			require.NoError(t, json.Unmarshal(body.ErrorData, &fields))
			for _, field := range tt.wantFields {
				assert.Contains(t, fields, field)
			}
		})
	}

	t.Run("unknown source", func(t *testing.T) {
		b := f.createRequest(false)
		b["source_uuid"] = "missing"
		code, _ := f.do(t, http.MethodPost, "/v1/migrations", token, b)
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("backwards chain", func(t *testing.T) {
		dev := &models.Environment{}
		require.NoError(t, f.db.Where("uuid = ?", "env-dev").First(dev).Error)
		uatDB := &models.Database{UUID: "uat-db-0001", Name: "cache", Engine: models.KindRedis, Status: "running:healthy", EnvironmentID: f.uat.ID}
		require.NoError(t, f.db.Create(uatDB).Error)
		code, _ := f.do(t, http.MethodPost, "/v1/migrations", token, map[string]interface{}{
			"source_type":           "redis",
			"source_uuid":           uatDB.UUID,
			"target_environment_id": dev.ID,
			"target_server_id":      f.server.ID,
		})
		assert.Equal(t, http.StatusBadRequest, code)
	})
}

func TestMigrationLifecycle(t *testing.T) {
	f := setupAPI(t)
	token := f.token(t, 1, 1)

	code, body := f.do(t, http.MethodPost, "/v1/migrations", token, f.createRequest(true))
	require.Equal(t, http.StatusOK, code, string(body.ErrorData))
	dryrun := map[string]json.RawMessage{}
	require.NoError(t, json.Unmarshal(body.Data, &dryrun))
	assert.Contains(t, dryrun, "pre_checks")
	assert.Contains(t, dryrun, "diff")
	assert.NotContains(t, dryrun, "migration")
	var count int64
	require.NoError(t, f.db.Model(&models.EnvironmentMigration{}).Count(&count).Error)
	assert.Zero(t, count)

	code, body = f.do(t, http.MethodPost, "/v1/migrations", token, f.createRequest(false))
	require.Equal(t, http.StatusCreated, code, string(body.ErrorData))
	created := migration.CreateResult{}
	require.NoError(t, json.Unmarshal(body.Data, &created))
	require.NotNil(t, created.Migration)
	assert.Equal(t, models.MigrationStatusCompleted, created.Migration.Status)
	uuid := created.Migration.UUID

	code, body = f.do(t, http.MethodGet, "/v1/migrations/"+uuid, token, nil)
	require.Equal(t, http.StatusOK, code)
	raw := map[string]json.RawMessage{}
	require.NoError(t, json.Unmarshal(body.Data, &raw))
	assert.NotContains(t, raw, "rollback_snapshot")
	assert.NotContains(t, raw, "RollbackSnapshot")

	t.Run("other team gets not found", func(t *testing.T) {
		code, _ := f.do(t, http.MethodGet, "/v1/migrations/"+uuid, f.token(t, 9, 2), nil)
		assert.Equal(t, http.StatusNotFound, code)
		code, _ = f.do(t, http.MethodPost, "/v1/migrations/"+uuid+"/rollback", f.token(t, 9, 2), nil)
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("list filters by status", func(t *testing.T) {
		code, body := f.do(t, http.MethodGet, "/v1/migrations?status=completed&page=1&size=5", token, nil)
		require.Equal(t, http.StatusOK, code)
		page := struct {
			Total int64 `json:"total"`
			Page  int64 `json:"page"`
			Size  int64 `json:"size"`
		}{}
		require.NoError(t, json.Unmarshal(body.Data, &page))
		assert.Equal(t, int64(1), page.Total)
		assert.Equal(t, int64(5), page.Size)

		code, _ = f.do(t, http.MethodGet, "/v1/migrations?status=failed", token, nil)
		assert.Equal(t, http.StatusOK, code)
		code, _ = f.do(t, http.MethodGet, "/v1/migrations?status=bogus", token, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, code)
	})

	t.Run("cancel a completed migration is forbidden", func(t *testing.T) {
		code, _ := f.do(t, http.MethodPost, "/v1/migrations/"+uuid+"/cancel", token, nil)
		assert.Equal(t, http.StatusForbidden, code)
	})

	t.Run("rollback once", func(t *testing.T) {
		code, body := f.do(t, http.MethodPost, "/v1/migrations/"+uuid+"/rollback", token, nil)
		require.Equal(t, http.StatusOK, code, body.Message)
		ret := RollbackResponseView{}
		require.NoError(t, json.Unmarshal(body.Data, &ret))
		assert.Equal(t, "deleted", ret.Rollback.Action)
		assert.Equal(t, models.MigrationStatusRolledBack, ret.Migration.Status)

		code, _ = f.do(t, http.MethodPost, "/v1/migrations/"+uuid+"/rollback", token, nil)
		assert.Equal(t, http.StatusForbidden, code)
	})
}

type RollbackResponseView struct {
	Migration models.EnvironmentMigration `json:"migration"`
	Rollback  migration.RollbackResult    `json:"rollback"`
}

func TestApprovalEndpoints(t *testing.T) {
	f := setupAPI(t)
	owner, developer := f.token(t, 1, 1), f.token(t, 2, 1)

	code, body := f.do(t, http.MethodPost, "/v1/migrations", developer, f.createRequest(false))
	require.Equal(t, http.StatusCreated, code, string(body.ErrorData))
	created := migration.CreateResult{}
	require.NoError(t, json.Unmarshal(body.Data, &created))
	assert.Equal(t, models.MigrationStatusPendingApproval, created.Migration.Status)
	uuid := created.Migration.UUID

	code, body = f.do(t, http.MethodGet, "/v1/migrations/pending", owner, nil)
	require.Equal(t, http.StatusOK, code)
	pending := []models.EnvironmentMigration{}
	require.NoError(t, json.Unmarshal(body.Data, &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, uuid, pending[0].UUID)

	code, body = f.do(t, http.MethodPost, "/v1/migrations/check", owner, map[string]interface{}{
		"source_type":           "postgresql",
		"source_uuid":           f.devDB.UUID,
		"target_environment_id": f.uat.ID,
	})
	require.Equal(t, http.StatusOK, code)
	eligibility := migration.Eligibility{}
	require.NoError(t, json.Unmarshal(body.Data, &eligibility))
	assert.False(t, eligibility.Allowed)
	assert.Contains(t, eligibility.Reason, uuid)

	code, _ = f.do(t, http.MethodPost, "/v1/migrations/"+uuid+"/approve", developer, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = f.do(t, http.MethodPost, "/v1/migrations/"+uuid+"/reject", owner, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	fields := map[string]string{}
	require.NoError(t, json.Unmarshal(body.ErrorData, &fields))
	assert.Contains(t, fields, "reason")

	code, body = f.do(t, http.MethodPost, "/v1/migrations/"+uuid+"/reject", owner, map[string]string{"reason": "not this week"})
	require.Equal(t, http.StatusOK, code, body.Message)
	rejected := models.EnvironmentMigration{}
	require.NoError(t, json.Unmarshal(body.Data, &rejected))
	assert.Equal(t, models.MigrationStatusCancelled, rejected.Status)

	code, _ = f.do(t, http.MethodPost, "/v1/migrations/"+uuid+"/approve", owner, map[string]string{"note": "too late"})
	assert.Equal(t, http.StatusForbidden, code)
}

func TestTargetsAndBatch(t *testing.T) {
	f := setupAPI(t)
	token := f.token(t, 1, 1)

	code, body := f.do(t, http.MethodGet, "/v1/migrations/targets/postgresql/"+f.devDB.UUID, token, nil)
	require.Equal(t, http.StatusOK, code)
	targets := migration.Targets{}
	require.NoError(t, json.Unmarshal(body.Data, &targets))
	require.Len(t, targets.Environments, 1)
	assert.Equal(t, f.uat.ID, targets.Environments[0].ID)
	require.Len(t, targets.Servers, 1)

	code, body = f.do(t, http.MethodPost, "/v1/migrations/batch", token, map[string]interface{}{"resources": []interface{}{}})
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, body = f.do(t, http.MethodPost, "/v1/migrations/batch", token, map[string]interface{}{
		"resources": []map[string]string{
			{"source_type": "postgresql", "source_uuid": f.devDB.UUID},
			{"source_type": "postgresql", "source_uuid": "missing"},
		},
		"target_environment_id": f.uat.ID,
		"target_server_id":      f.server.ID,
	})
	require.Equal(t, http.StatusCreated, code, body.Message)
	result := migration.BatchResult{}
	require.NoError(t, json.Unmarshal(body.Data, &result))
	assert.Len(t, result.Migrations, 1)
	assert.Len(t, result.Failures, 1)
}

func TestDeploymentApprovalRoutes(t *testing.T) {
	f := setupAPI(t)
	code, body := f.do(t, http.MethodGet, "/v1/deployments/approvals", f.token(t, 1, 1), nil)
	require.Equal(t, http.StatusOK, code)
	list := []deployment.PendingApproval{}
	require.NoError(t, json.Unmarshal(body.Data, &list))
	assert.Empty(t, list)

	code, _ = f.do(t, http.MethodPost, "/v1/deployments", f.token(t, 1, 1), map[string]string{})
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = f.do(t, http.MethodPost, "/v1/deployments/approvals/missing/reject", f.token(t, 1, 1), map[string]string{"reason": "no"})
	assert.Equal(t, http.StatusNotFound, code)
}
