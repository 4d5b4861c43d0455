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
	"time"

	"saturn.io/saturn/pkg/service/models"
	"saturn.io/saturn/pkg/utils/workflow"
)

const (
	TaskGroup            = "migration"
	TaskMigrationExecute = "migration-execute"
	TaskMigrationReap    = "migration-reap-stale"
)

// Dispatcher hands an execution eligible migration over to whatever runs it.
type Dispatcher interface {
	Dispatch(ctx context.Context, m *models.EnvironmentMigration) error
}

type Runner interface {
	Execute(ctx context.Context, uuid string) error
}

// InlineDispatcher runs the migration before returning, for tests and single node installs.
type InlineDispatcher struct {
	Runner Runner
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, m *models.EnvironmentMigration) error {
	return d.Runner.Execute(ctx, m.UUID)
}

// WorkflowDispatcher submits a migration-execute task picked up by a worker.
type WorkflowDispatcher struct {
	client  *workflow.Client
	timeout time.Duration
}

func NewWorkflowDispatcher(client *workflow.Client, options *Options) *WorkflowDispatcher {
	// data copy and health polling both fit in one step
	return &WorkflowDispatcher{client: client, timeout: options.CommandTimeout + options.HealthCheckTimeout}
}

func (d *WorkflowDispatcher) Dispatch(ctx context.Context, m *models.EnvironmentMigration) error {
	return d.client.SubmitTask(ctx, workflow.Task{
		Name:  TaskMigrationExecute,
		Group: TaskGroup,
		Steps: []workflow.Step{
			{
				Name:     "execute",
				Function: TaskMigrationExecute,
				Args:     workflow.ArgsOf(m.UUID),
				Timeout:  d.timeout,
			},
		},
		Addtionals: map[string]string{"migration": m.UUID, "batch": m.BatchUUID},
	})
}
