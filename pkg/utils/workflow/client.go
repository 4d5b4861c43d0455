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

package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"saturn.io/saturn/pkg/log"
)

const submitQueue = "submit"

type Client struct {
	backend Backend
	crontab *cron.Cron
}

func NewClientFromRedisClient(cli *redis.Client) *Client {
	return NewClientFromBackend(NewRedisBackendFromClient(cli))
}

func NewClientFromBackend(backend Backend) *Client {
	return &Client{backend: backend}
}

// SubmitCronTask submits task on every tick of crontabexp until ctx is done.
func (c *Client) SubmitCronTask(ctx context.Context, task Task, crontabexp string) error {
	if c.crontab == nil {
		c.crontab = cron.New()
		c.crontab.Start()
		go func() {
			<-ctx.Done()
			c.crontab.Stop()
		}()
	}
	log := log.FromContextOrDiscard(ctx).WithValues("task", task.Name, "cron", crontabexp)
	log.Info("register cron task")
	_, err := c.crontab.AddFunc(crontabexp, func() {
		log.Info("trigger a cron task run", "now", time.Now())
		if err := c.SubmitTask(ctx, task); err != nil {
			log.Error(err, "run crontab task failed")
		}
	})
	return err
}

func (c *Client) SubmitTask(ctx context.Context, task Task) error {
	if task.Name == "" {
		return errors.New("empty task name")
	}
	task.CreationTimestamp = time.Now()
	if task.UID == "" {
		task.UID = uuid.New().String()
	}
	if task.Status == nil {
		task.Status = &TaskStatus{Status: TaskStatusPending}
	}
	content, err := json.Marshal(task)
	if err != nil {
		return err
	}
	if err := c.backend.Put(ctx, taskKey(task.Group, task.Name, task.UID), content); err != nil {
		return err
	}
	return c.backend.Pub(ctx, submitQueue, "", content)
}

func (c *Client) GetTask(ctx context.Context, group, name, uid string) (*Task, error) {
	val, err := c.backend.Get(ctx, taskKey(group, name, uid))
	if err != nil {
		return nil, err
	}
	task := &Task{}
	if err := json.Unmarshal(val, task); err != nil {
		return nil, err
	}
	return task, nil
}

// ListTasks returns tasks newest first.
func (c *Client) ListTasks(ctx context.Context, group, name string) ([]Task, error) {
	keyprefix := ""
	if group != "" || name != "" {
		keyprefix = group + "/" + name
	}
	kvs, err := c.backend.List(ctx, keyprefix)
	if err != nil {
		return nil, err
	}
	list := make([]Task, 0, len(kvs))
	for _, v := range kvs {
		task := Task{}
		if err := json.Unmarshal(v, &task); err != nil {
			continue
		}
		list = append(list, task)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreationTimestamp.After(list[j].CreationTimestamp)
	})
	return list, nil
}

func (c *Client) RemoveTask(ctx context.Context, group, name string, uid string) error {
	return c.backend.Del(ctx, taskKey(group, name, uid))
}

func taskKey(group, name, uid string) string {
	return path.Join(group, name, uid)
}
