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
	"fmt"
	"testing"

	driver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestOptions_ToDsn(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		want    string
		wantErr bool
	}{
		{
			name: "mysql",
			opts: Options{Driver: DriverMySQL, Addr: "db:3306", Username: "root", Password: "pw", Database: "saturn"},
			want: "root:pw@tcp(db:3306)/saturn",
		},
		{
			name: "postgres",
			opts: Options{Driver: DriverPostgres, Addr: "pg:5433", Username: "u", Password: "p", Database: "saturn"},
			want: "host=pg port=5433 user=u password=p dbname=saturn sslmode=disable TimeZone=UTC",
		},
		{
			name: "postgres without port",
			opts: Options{Driver: DriverPostgres, Addr: "pg", Username: "u", Password: "p", Database: "saturn"},
			want: "host=pg port=5432 user=u password=p dbname=saturn sslmode=disable TimeZone=UTC",
		},
		{
			name: "sqlite memory",
			opts: Options{Driver: DriverSQLite},
			want: "file::memory:?cache=shared",
		},
		{
			name:    "unknown",
			opts:    Options{Driver: "oracle"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.opts.Dialector()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Contains(t, tt.opts.ToDsn(), tt.want)
		})
	}
}

func TestNewDatabaseSQLite(t *testing.T) {
	db, err := NewDatabase(&Options{Driver: DriverSQLite, Addr: "file:helper?mode=memory&cache=shared"})
	assert.NoError(t, err)

	type teamMember struct {
		ID     uint
		TeamID uint
		UserID uint
		Role   string
	}
	assert.NoError(t, db.DB().Table("team_members").AutoMigrate(&teamMember{}))
	members := []teamMember{
		{TeamID: 1, UserID: 10, Role: "owner"},
		{TeamID: 1, UserID: 11, Role: "admin"},
		{TeamID: 1, UserID: 12, Role: "developer"},
		{TeamID: 2, UserID: 13, Role: "owner"},
	}
	assert.NoError(t, db.DB().Table("team_members").Create(&members).Error)

	assert.ElementsMatch(t, []uint{10, 11}, db.TeamApprovers(1))
	assert.ElementsMatch(t, []uint{10, 11, 12}, db.TeamMembers(1))
}

func TestIsDuplicateKey(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "gorm", err: fmt.Errorf("wrap: %w", gorm.ErrDuplicatedKey), want: true},
		{name: "mysql", err: &driver.MySQLError{Number: 1062, Message: "Duplicate entry"}, want: true},
		{name: "mysql other", err: &driver.MySQLError{Number: 1064}, want: false},
		{name: "postgres", err: &pgconn.PgError{Code: "23505"}, want: true},
		{name: "sqlite", err: errors.New("UNIQUE constraint failed: environment_migrations.active_lock"), want: true},
		{name: "other", err: errors.New("boom"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDuplicateKey(tt.err))
		})
	}
}
