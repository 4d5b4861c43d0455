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

package models

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"k8s.io/apimachinery/pkg/util/wait"
	"saturn.io/saturn/pkg/utils/database"
	"saturn.io/saturn/pkg/utils/redis"
)

func createDatabaseIfNotExists(ctx context.Context, opts *database.Options) (exists bool, err error) {
	log := logr.FromContextOrDiscard(ctx)

	cfg := opts.ToDriverConfig()
	dbname := cfg.DBName
	cfg.DBName = ""

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return false, err
	}

	tmpdb := sql.OpenDB(connector)
	defer tmpdb.Close()

	count := 0
	if err := tmpdb.QueryRowContext(ctx, "SELECT count(*) FROM INFORMATION_SCHEMA.SCHEMATA WHERE SCHEMA_NAME = ?", dbname).Scan(&count); err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}

	sqlStr := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` DEFAULT CHARACTER SET utf8mb4 COLLATE `%s`;", dbname, cfg.Collation)
	log.Info("create database", "sql", sqlStr)
	if _, err := tmpdb.ExecContext(ctx, sqlStr); err != nil {
		return false, err
	}
	return false, nil
}

// MigrateDatabaseAndInitData creates the schema (mysql only) and tables, and optionally the initial team.
func MigrateDatabaseAndInitData(ctx context.Context, opts *database.Options, initData bool) error {
	log := logr.FromContextOrDiscard(ctx)
	log.WithValues("driver", opts.Driver, "initData", initData).Info("migrate database and init data")

	if opts.Driver == database.DriverMySQL || opts.Driver == "" {
		if _, err := createDatabaseIfNotExists(ctx, opts); err != nil {
			return err
		}
	}
	db, err := database.NewDatabase(opts)
	if err != nil {
		return err
	}
	if err := MigrateModels(db.DB()); err != nil {
		return err
	}
	if initData {
		if err := InitBaseData(db.DB()); err != nil {
			return err
		}
	}
	return nil
}

// InitBaseData creates the default team and its owner.
func InitBaseData(db *gorm.DB) error {
	team := &Team{ID: 1, Name: "root"}
	admin := &User{ID: 1, Name: "admin", Email: "admin@saturn.local"}
	member := &TeamMember{ID: 1, TeamID: team.ID, UserID: admin.ID, Role: RoleOwner}
	if e := db.FirstOrCreate(team, team.ID).Error; e != nil {
		return e
	}
	if e := db.FirstOrCreate(admin, admin.ID).Error; e != nil {
		return e
	}
	if e := db.FirstOrCreate(member, member.ID).Error; e != nil {
		return e
	}
	return nil
}

func MigrateModels(db *gorm.DB) error {
	return db.AutoMigrate(
		// tenancy
		&Team{}, &User{}, &TeamMember{},
		// projects and environments
		&Project{}, &Environment{},
		// servers
		&Server{}, &Destination{},
		// resources
		&Application{}, &ApplicationSetting{}, &Service{}, &Database{},
		&EnvironmentVariable{}, &LocalPersistentVolume{}, &LocalFileVolume{}, &ResourceLink{},
		// deployments
		&ApplicationDeploymentQueue{},
		// migrations and approvals
		&EnvironmentMigration{}, &Approval{},
		// backups
		&ScheduledDatabaseBackup{}, &BackupExecution{},
	)
}

const WaitPerid = 5 * time.Second

func WaitDatabaseServer(ctx context.Context, opts *database.Options) error {
	log := logr.FromContextOrDiscard(ctx)
	return wait.PollUntilContextCancel(ctx, WaitPerid, true, func(ctx context.Context) (done bool, err error) {
		db, err := database.NewDatabase(opts)
		if err != nil {
			log.Error(err, "wait database")
			return false, nil
		}
		sqldb, err := db.DB().DB()
		if err != nil {
			return false, err
		}
		defer sqldb.Close()
		if err := sqldb.PingContext(ctx); err != nil {
			log.Error(err, "wait database")
			return false, nil
		}
		log.Info("database server ready")
		return true, nil
	})
}

func WaitRedis(ctx context.Context, redisopts *redis.Options) error {
	log := logr.FromContextOrDiscard(ctx)

	cli, err := redis.NewClient(redisopts)
	if err != nil {
		return err
	}
	defer cli.Close()

	return wait.PollUntilContextCancel(ctx, WaitPerid, true, func(ctx context.Context) (done bool, err error) {
		if err := cli.Ping(ctx); err != nil {
			log.Error(err, "wait redis")
			return false, nil
		}
		log.Info("redis ready")
		return true, nil
	})
}
