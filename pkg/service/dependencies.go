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

package service

import (
	"context"
	"fmt"

	"saturn.io/saturn/pkg/authorization"
	"saturn.io/saturn/pkg/backup"
	"saturn.io/saturn/pkg/deployment"
	"saturn.io/saturn/pkg/log"
	"saturn.io/saturn/pkg/migration"
	"saturn.io/saturn/pkg/notify"
	"saturn.io/saturn/pkg/service/options"
	"saturn.io/saturn/pkg/utils/database"
	"saturn.io/saturn/pkg/utils/objectstore"
	"saturn.io/saturn/pkg/utils/redis"
	"saturn.io/saturn/pkg/utils/remote"
	"saturn.io/saturn/pkg/utils/workflow"
)

// Dependencies are the clients and services shared by the api service and the worker.
type Dependencies struct {
	Options     *options.Options
	Redis       *redis.Client
	Database    *database.Database
	Executor    remote.Executor
	Workflow    *workflow.Client
	Permissions authorization.PermissionChecker
	Notifier    *notify.RedisNotifier
	Migration   *migration.Service
	Backup      *backup.Service
	Deployment  *deployment.Service
}

func PrepareDependencies(ctx context.Context, options *options.Options) (*Dependencies, error) {
	// logger
	log.SetLevel(options.LogLevel)

	// redis
	rediscli, err := redis.NewClient(options.Redis)
	if err != nil {
		return nil, err
	}
	if err := rediscli.Ping(ctx); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	// database
	db, err := database.NewDatabase(options.Database)
	if err != nil {
		return nil, err
	}
	// rbac
	permissions, err := authorization.NewCasbinPermissionChecker(ctx, db.DB())
	if err != nil {
		return nil, err
	}
	// backups go to object storage only when configured
	var uploader objectstore.Uploader
	if options.ObjectStore.Enabled() {
		s3uploader, err := objectstore.NewS3Uploader(ctx, options.ObjectStore)
		if err != nil {
			return nil, err
		}
		uploader = s3uploader
	}

	exec := remote.NewSSHExecutor(options.Remote)
	client := workflow.NewClientFromRedisClient(rediscli.Client)
	notifier := notify.NewRedisNotifier(rediscli.Client)

	backupService := backup.NewService(db.DB(), exec, options.Backup, uploader, client)
	deploymentService := deployment.NewService(db.DB(), exec, options.Deployment, permissions, notifier, client)
	migrationService := migration.NewService(db.DB(), exec, options.Migration, permissions,
		migration.WithNotifier(notifier),
		migration.WithDispatcher(migration.NewWorkflowDispatcher(client, options.Migration)),
		migration.WithExecutorOptions(
			migration.WithBackupTrigger(backupService),
			migration.WithDeployer(deploymentService),
			migration.WithHealthChecker(migration.NewHealthChecker(options.Migration)),
		),
	)
	return &Dependencies{
		Options:     options,
		Redis:       rediscli,
		Database:    db,
		Executor:    exec,
		Workflow:    client,
		Permissions: permissions,
		Notifier:    notifier,
		Migration:   migrationService,
		Backup:      backupService,
		Deployment:  deploymentService,
	}, nil
}
