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

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"saturn.io/saturn/pkg/migration"
	"saturn.io/saturn/pkg/service/models/validate"
)

func TestNotOK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "not found", err: migration.NotFound("migration %s not found", "x"), wantCode: http.StatusNotFound},
		{name: "invalid", err: migration.Invalid("bad"), wantCode: http.StatusUnprocessableEntity},
		{name: "chain", err: migration.ChainViolation("Cannot migrate from production to dev."), wantCode: http.StatusBadRequest},
		{name: "forbidden", err: migration.Forbidden("no"), wantCode: http.StatusForbidden},
		{name: "conflict", err: migration.Conflict("busy"), wantCode: http.StatusConflict},
		{name: "prechecks", err: migration.PreCheckFailed(&migration.PreCheckResult{}), wantCode: http.StatusUnprocessableEntity},
		{name: "wrapped domain error", err: fmt.Errorf("create: %w", migration.Forbidden("no")), wantCode: http.StatusForbidden},
		{name: "gorm not found", err: gorm.ErrRecordNotFound, wantCode: http.StatusNotFound},
		{name: "duplicate key", err: gorm.ErrDuplicatedKey, wantCode: http.StatusConflict},
		{name: "anything else", err: errors.New("boom"), wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			NotOK(c, tt.err)
			assert.Equal(t, tt.wantCode, rec.Code)
			body := Body{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Message)
			assert.Len(t, c.Errors, 1)
		})
	}
}

func TestNotOKValidationErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	validate.InitValidator()
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	req := migration.CheckRequest{}
	NotOK(c, BindOptionalJSON(c, &req))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := struct {
		ErrorData map[string]string `json:"errorData"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{
		"source_type":           "source_type is a required field",
		"source_uuid":           "source_uuid is a required field",
		"target_environment_id": "target_environment_id is a required field",
	}, body.ErrorData)
}

func TestGetQuery(t *testing.T) {
	tests := []struct {
		query    string
		wantPage int64
		wantSize int64
		wantErr  bool
	}{
		{query: "", wantPage: 1, wantSize: 10},
		{query: "page=3&size=20", wantPage: 3, wantSize: 20},
		{query: "page=0&size=-1", wantPage: 1, wantSize: 10},
		{query: "size=1000", wantPage: 1, wantSize: 100},
		{query: "page=abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			q, err := GetQuery(c)
			if tt.wantErr {
				assert.True(t, migration.IsKind(err, migration.ErrorKindInvalid))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPage, q.PageNumber())
			assert.Equal(t, tt.wantSize, q.PageSize())
		})
	}
}
