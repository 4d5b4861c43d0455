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

package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"saturn.io/saturn/pkg/log"
	"saturn.io/saturn/pkg/migration"
	"saturn.io/saturn/pkg/service/aaa"
	"saturn.io/saturn/pkg/service/handlers"
	"saturn.io/saturn/pkg/service/models"
	"saturn.io/saturn/pkg/utils/database"
	"saturn.io/saturn/pkg/utils/jwt"
)

var ErrNoCredentials = errors.New("missing bearer token")

// AuthMiddleware resolves the bearer token of a request into the team member making it.
type AuthMiddleware struct {
	loader *BearerTokenActorLoader
	aif    aaa.ContextActorOperator
}

func NewAuthMiddleware(j *jwt.JWT, db *gorm.DB, aif aaa.ContextActorOperator) *AuthMiddleware {
	return &AuthMiddleware{
		loader: &BearerTokenActorLoader{JWT: j, DB: db},
		aif:    aif,
	}
}

func (l *AuthMiddleware) FilterFunc(c *gin.Context) {
	actor, err := l.loader.GetActor(c.Request)
	if err != nil {
		log.FromContextOrDiscard(c.Request.Context()).V(5).Info("unauthorized request", "path", c.FullPath(), "reason", err.Error())
		handlers.Unauthorized(c, errors.New(handlers.MessageUnauthorized))
		return
	}
	l.aif.SetContextActor(c, actor)
	c.Next()
}

// BearerTokenActorLoader bearer type
type BearerTokenActorLoader struct {
	JWT *jwt.JWT
	DB  *gorm.DB
}

// GetActor validates the token and looks the membership up, the role always comes from the database.
func (l *BearerTokenActorLoader) GetActor(req *http.Request) (migration.Actor, error) {
	htype, token := parseAuthorizationHeader(req)
	if strings.ToLower(htype) != "bearer" || token == "" {
		return migration.Actor{}, ErrNoCredentials
	}
	claims, err := l.JWT.ParseToken(token)
	if err != nil {
		return migration.Actor{}, err
	}
	member := &models.TeamMember{}
	err = l.DB.WithContext(req.Context()).
		Where("team_id = ? AND user_id = ?", claims.Payload.TeamID, claims.Payload.UserID).
		First(member).Error
	if err != nil {
		if database.IsNotFound(err) {
			return migration.Actor{}, errors.New("not a member of the team")
		}
		return migration.Actor{}, err
	}
	return migration.Actor{UserID: member.UserID, TeamID: member.TeamID, Role: member.Role}, nil
}

func parseAuthorizationHeader(req *http.Request) (htype, token string) {
	authheader := req.Header.Get("Authorization")
	if authheader == "" {
		tkn := req.URL.Query().Get("token")
		if tkn == "" {
			return
		}
		htype = "Bearer"
		token = tkn
		q := req.URL.Query()
		q.Del("token")
		req.URL.RawQuery = q.Encode()
		return
	}
	seps := strings.Split(authheader, " ")
	if len(seps) != 2 {
		return
	}
	return seps[0], seps[1]
}
