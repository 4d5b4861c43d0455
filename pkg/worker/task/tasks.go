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
	"errors"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-redsync/redsync/v4"
	"golang.org/x/sync/errgroup"
	"saturn.io/saturn/pkg/log"
	"saturn.io/saturn/pkg/utils/redis"
	"saturn.io/saturn/pkg/utils/workflow"
)

type Tasker interface {
	ProvideFuntions() map[string]interface{}
}

// CronTasker is implemented by taskers that also submit periodic tasks.
type CronTasker interface {
	Crontasks() map[string]Task // cron expression -> task
}

type (
	Task     = workflow.Task
	CronTask struct {
		CronExp string
		Task    Task
	}
)

const (
	CronTaskLockName   = "crontask-client-lock"
	cronTaskLockExpiry = 30 * time.Second
)

// Run consumes the task queue with taskers registered until ctx is done.
func Run(ctx context.Context, rediscli *redis.Client, concurrency int, taskers ...Tasker) error {
	server := workflow.NewServerFromRedisClient(rediscli.Client)
	server.SetConcurrency(concurrency)
	p := &ProcessorContext{
		server:    server,
		client:    server.NewClient(),
		rediscli:  rediscli,
		crontasks: []CronTask{},
		Logger:    log.FromContextOrDiscard(ctx),
	}
	if err := p.RegisterTasker(taskers...); err != nil {
		return err
	}
	return p.Run(ctx)
}

type ProcessorContext struct {
	Logger    logr.Logger
	server    *workflow.Server
	client    *workflow.Client
	rediscli  *redis.Client
	crontasks []CronTask
}

func (p *ProcessorContext) RegisterTasker(taskers ...Tasker) error {
	for _, t := range taskers {
		if cront, ok := t.(CronTasker); ok {
			for cronexp, task := range cront.Crontasks() {
				p.crontasks = append(p.crontasks, CronTask{CronExp: cronexp, Task: task})
			}
		}
		for k, v := range t.ProvideFuntions() {
			if err := p.server.Register(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *ProcessorContext) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return p.server.Run(ctx)
	})
	eg.Go(func() error {
		return p.RunCronTasksWithLock(ctx)
	})
	return eg.Wait()
}

// RunCronTasksWithLock submits cron tasks from the one worker replica holding the lock,
// the other replicas block here until it goes away.
func (p *ProcessorContext) RunCronTasksWithLock(ctx context.Context) error {
	mutex := p.rediscli.NewMutex(CronTaskLockName, redsync.WithExpiry(cronTaskLockExpiry))
	if err := mutex.LockContext(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer func() {
		if _, err := mutex.UnlockContext(context.Background()); err != nil {
			p.Logger.Error(err, "release crontask lock")
		}
	}()

	for _, crontask := range p.crontasks {
		if err := p.client.SubmitCronTask(ctx, crontask.Task, crontask.CronExp); err != nil {
			p.Logger.Error(err, "submit crontask failed", "exp", crontask.CronExp)
		}
	}

	ticker := time.NewTicker(cronTaskLockExpiry / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if ok, err := mutex.ExtendContext(ctx); !ok {
				if ctx.Err() != nil {
					return nil
				}
				p.Logger.Error(err, "extend crontask lock")
				return errors.New("crontask lock lost")
			}
		}
	}
}
