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

package task

import (
	"context"
	"time"

	"saturn.io/saturn/pkg/log"
	"saturn.io/saturn/pkg/utils/workflow"
)

const (
	TaskGroupTasks           = "tasks"
	TaskFunctionArchiveTasks = "task-archive"
)

// TaskArchiverTasker drops finished task records older than the retention from the queue store.
type TaskArchiverTasker struct {
	taskcli   *workflow.Client
	retention time.Duration
}

func NewTaskArchiverTasker(cli *workflow.Client, retention time.Duration) *TaskArchiverTasker {
	return &TaskArchiverTasker{taskcli: cli, retention: retention}
}

func (t *TaskArchiverTasker) ArchiveOutdated(ctx context.Context) error {
	tasks, err := t.taskcli.ListTasks(ctx, "", "")
	if err != nil {
		return err
	}
	log := log.FromContextOrDiscard(ctx)
	for _, task := range tasks {
		if !task.Status.IsFinished() || time.Since(task.CreationTimestamp) < t.retention {
			continue
		}
		log.Info("archive task", "group", task.Group, "name", task.Name, "uid", task.UID,
			"status", task.Status.Status, "message", task.Status.Message, "created", task.CreationTimestamp)
		if err := t.taskcli.RemoveTask(ctx, task.Group, task.Name, task.UID); err != nil {
			log.Error(err, "remove expired task", "uid", task.UID)
		}
	}
	return nil
}

func (t *TaskArchiverTasker) ProvideFuntions() map[string]interface{} {
	return map[string]interface{}{
		TaskFunctionArchiveTasks: t.ArchiveOutdated,
	}
}

func (t *TaskArchiverTasker) Crontasks() map[string]Task {
	return map[string]Task{
		"@every 1h": {
			Name:  TaskFunctionArchiveTasks,
			Group: TaskGroupTasks,
			Steps: []workflow.Step{
				{
					Name:     "archive",
					Function: TaskFunctionArchiveTasks,
				},
			},
		},
	}
}
