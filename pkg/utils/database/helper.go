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

package database

import (
	"errors"
	"strings"

	"github.com/VividCortex/mysqlerr"
	driver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"saturn.io/saturn/pkg/log"
)

const pgUniqueViolation = "23505"

type DatabaseHelper struct {
	DB *gorm.DB
}

// TeamMembers returns user ids of the team having one of roles, all members when roles is empty.
func (h *DatabaseHelper) TeamMembers(teamID uint, roles ...string) []uint {
	var ret []uint
	q := h.DB.Table("team_members").Where("team_id = ?", teamID)
	if len(roles) > 0 {
		q = q.Where("role in ?", roles)
	}
	if err := q.Pluck("user_id", &ret).Error; err != nil {
		log.Error(err, "get team members", "team", teamID)
	}
	return ret
}

// TeamApprovers returns owners and admins of the team.
func (h *DatabaseHelper) TeamApprovers(teamID uint) []uint {
	return h.TeamMembers(teamID, "owner", "admin")
}

// IsDuplicateKey reports whether err is a unique constraint violation on any supported driver.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var me *driver.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlerr.ER_DUP_ENTRY
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsNotFound reports whether err is gorm's record not found.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
