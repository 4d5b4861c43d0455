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

package migration

import (
	"context"

	"github.com/go-redsync/redsync/v4"
	"saturn.io/saturn/pkg/log"
	"saturn.io/saturn/pkg/utils/redis"
	"saturn.io/saturn/pkg/utils/workflow"
)

// Tasks exposes migration execution and the stale reaper as workflow functions.
type Tasks struct {
	service *Service
	redis   *redis.Client
}

func NewTasks(service *Service, rediscli *redis.Client) *Tasks {
	return &Tasks{service: service, redis: rediscli}
}

func (t *Tasks) ProvideFuntions() map[string]interface{} {
	return map[string]interface{}{
		TaskMigrationExecute: t.ExecuteMigration,
		TaskMigrationReap:    t.ReapStale,
	}
}

func (t *Tasks) Crontasks() map[string]workflow.Task {
	return map[string]workflow.Task{
		"@every 5m": {
			Name:  TaskMigrationReap,
			Group: TaskGroup,
			Steps: []workflow.Step{{Name: "reap", Function: TaskMigrationReap}},
		},
	}
}

// ExecuteMigration runs one migration, holding a lock named after it so a redelivered task waits
// and then finds the migration no longer execution eligible.
func (t *Tasks) ExecuteMigration(ctx context.Context, uuid string) error {
	if t.redis == nil {
		return t.service.Execute(ctx, uuid)
	}
	mutex := t.redis.NewMutex("saturn-migration-"+uuid, redsync.WithExpiry(t.service.options.StaleAfter))
	if err := mutex.LockContext(ctx); err != nil {
		return err
	}
	defer func() {
		if _, err := mutex.UnlockContext(context.Background()); err != nil {
			log.FromContextOrDiscard(ctx).Error(err, "release migration lock", "migration", uuid)
		}
	}()
	return t.service.Execute(ctx, uuid)
}

func (t *Tasks) ReapStale(ctx context.Context) error {
	_, err := t.service.ReapStale(ctx)
	return err
}
