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
	"fmt"
	"math"
	"os"
	"reflect"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/wait"
	"saturn.io/saturn/pkg/log"
	"saturn.io/saturn/pkg/utils/retry"
)

const (
	DefaultTaskTimeout = 5 * time.Minute
	// DefaultTaskTTL is how long task records stay in the kv store after the last update.
	DefaultTaskTTL = 7 * 24 * time.Hour
)

var resubscribeBackoff = wait.Backoff{
	Steps:    math.MaxInt32,
	Duration: 5 * time.Second,
	Factor:   1.1,
	Jitter:   0.1,
}

type Server struct {
	backend     Backend
	registered  map[string]interface{}
	executerid  string
	concurrency int
}

func NewServerFromRedisClient(cli *redis.Client) *Server {
	return NewServerFromBackend(NewRedisBackendFromClient(cli))
}

func NewServerFromBackend(backend Backend) *Server {
	executerid, _ := os.Hostname()
	return &Server{
		backend:     backend,
		registered:  map[string]interface{}{},
		executerid:  executerid,
		concurrency: 5,
	}
}

func (s *Server) SetConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

func (s *Server) NewClient() *Client {
	return NewClientFromBackend(s.backend)
}

func (s *Server) Run(ctx context.Context) error {
	log := log.FromContextOrDiscard(ctx)
	err := retry.OnError(ctx, resubscribeBackoff, retry.NotContextCancelError, func() error {
		log.Info("starting work consumer...")
		if err := s.backend.Sub(ctx, submitQueue, s.consume, WithConcurrency(s.concurrency), WithAutoACK(true)); err != nil {
			log.Error(err, "subscribe failed, retry...")
			return err
		}
		return nil
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Server) consume(ctx context.Context, _ string, val []byte) error {
	log := log.FromContextOrDiscard(ctx)

	task := &jsonArgsTask{}
	if err := json.Unmarshal(val, task); err != nil {
		log.Error(err, "decode task")
		return nil
	}
	log = log.WithValues("name", task.Name, "uid", task.UID)
	log.Info("consume task")
	ctx = logr.NewContext(ctx, log)

	if finished := s.process(ctx, task); !finished {
		content, err := json.Marshal(task)
		if err != nil {
			return err
		}
		log.V(1).Info("requeue task")
		return s.backend.Pub(ctx, submitQueue, "", content)
	}
	log.Info("finished task", "status", task.Status.Status)
	return nil
}

// process runs at most one function step of task and reports whether the task is done.
func (s *Server) process(ctx context.Context, task *jsonArgsTask) bool {
	if task.UID == "" {
		task.UID = uuid.New().String()
	}
	if task.Status.Status == "" || task.Status.Status == TaskStatusPending {
		task.Status.Status = TaskStatusRunning
		task.Status.StartTimestamp = time.Now()
		task.Status.Executer = s.executerid
	}
	if err := s.processone(ctx, task, task.Steps); err != nil {
		task.Status.FinishTimestamp = time.Now()
		task.Status.Status = TaskStatusError
		task.Status.Message = err.Error()
		_ = s.updateTask(ctx, task)
		return true
	}
	if isAllFinished(task.Steps) {
		task.Status.FinishTimestamp = time.Now()
		task.Status.Status = TaskStatusSuccess
		_ = s.updateTask(ctx, task)
		return true
	}
	return false
}

func isAllFinished(steps []*jsonArgsStep) bool {
	for _, step := range steps {
		if step.Status.Status != TaskStatusSuccess {
			return false
		}
		if !isAllFinished(step.SubSteps) {
			return false
		}
	}
	return true
}

// errStepDone stops the walk after one function step ran so the task gets requeued.
var errStepDone = errors.New("step done")

func (s *Server) processone(ctx context.Context, task *jsonArgsTask, steps []*jsonArgsStep) error {
	err := s.walk(WithValues(ctx, task.Addtionals), task, steps)
	if errors.Is(err, errStepDone) {
		return nil
	}
	return err
}

func (s *Server) walk(ctx context.Context, task *jsonArgsTask, steps []*jsonArgsStep) error {
	for _, step := range steps {
		switch step.Status.Status {
		case "", TaskStatusPending, TaskStatusRunning:
			step.Status = TaskStatus{
				Status:         TaskStatusRunning,
				StartTimestamp: time.Now(),
				Executer:       s.executerid,
			}
			if step.Function == "" {
				step.Status.FinishTimestamp = time.Now()
				step.Status.Status = TaskStatusSuccess
				break
			}
			_ = s.updateTask(ctx, task)
			err := s.execute(ctx, step)
			step.Status.FinishTimestamp = time.Now()
			if err != nil {
				step.Status.Status = TaskStatusError
				step.Status.Message = err.Error()
				_ = s.updateTask(ctx, task)
				return err
			}
			step.Status.Status = TaskStatusSuccess
			_ = s.updateTask(ctx, task)
			if len(step.SubSteps) == 0 {
				return errStepDone
			}
		case TaskStatusError:
			return errors.New(step.Status.Message)
		}
		if err := s.walk(ctx, task, step.SubSteps); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) updateTask(ctx context.Context, task *jsonArgsTask) error {
	content, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return s.backend.Put(ctx, taskKey(task.Group, task.Name, task.UID), content, DefaultTaskTTL)
}

func (s *Server) Register(name string, fun interface{}) error {
	t := reflect.ValueOf(fun).Type()
	if t.Kind() != reflect.Func {
		return fmt.Errorf("name [%s] fun [%v] not a function", name, fun)
	}
	if _, ok := s.registered[name]; ok {
		return fmt.Errorf("name [%s] fun [%v] already registered", name, fun)
	}
	s.registered[name] = fun
	return nil
}

var contextType = reflect.TypeOf((*context.Context)(nil)).Elem()

func (s *Server) execute(ctx context.Context, step *jsonArgsStep) (err error) {
	if step.Timeout == 0 {
		step.Timeout = DefaultTaskTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, step.Timeout)
	defer cancel()

	log := log.FromContextOrDiscard(ctx)
	log.Info("executing", "step", step.Name, "func", step.Function)

	fun, ok := s.registered[step.Function]
	if !ok {
		return fmt.Errorf("func %s not registered", step.Function)
	}

	defer func() {
		if e := recover(); e != nil {
			log.Info("executed panic", "step", step.Name, "func", step.Function, "err", e)
			switch e := e.(type) {
			case error:
				err = e
			case string:
				err = errors.New(e)
			default:
				err = errors.New("failed to execute")
			}
		}
	}()

	funv := reflect.ValueOf(fun)
	funt := funv.Type()

	argsv := []reflect.Value{}
	argsi := 0
	for i := 0; i < funt.NumIn(); i++ {
		argt := funt.In(i)
		if i == 0 && argt.Implements(contextType) {
			argsv = append(argsv, reflect.ValueOf(ctx))
			continue
		}
		arg := reflect.New(argt)
		// missing trailing args take their zero value
		if argsi < len(step.Args) {
			if err := json.Unmarshal(step.Args[argsi], arg.Interface()); err != nil {
				return err
			}
		}
		argsv = append(argsv, arg.Elem())
		argsi++
	}

	var rvs []reflect.Value
	if funt.IsVariadic() {
		rvs = funv.CallSlice(argsv)
	} else {
		rvs = funv.Call(argsv)
	}
	step.Status.Result = nil
	for _, result := range rvs {
		if result.Type().Implements(reflect.TypeOf((*error)(nil)).Elem()) {
			continue
		}
		if result.Kind() == reflect.Ptr && result.IsNil() {
			step.Status.Result = append(step.Status.Result, nil)
			continue
		}
		step.Status.Result = append(step.Status.Result, reflect.Indirect(result).Interface())
	}
	log.Info("executed", "step", step.Name, "func", step.Function)
	if len(rvs) > 0 {
		if e, ok := rvs[len(rvs)-1].Interface().(error); ok {
			err = e
		}
	}
	return err
}

type valuesKey string

func ValueFromConetxt(ctx context.Context, key string) string {
	if val, ok := ctx.Value(valuesKey(key)).(string); ok {
		return val
	}
	return ""
}

func WithValues(ctx context.Context, kvs map[string]string) context.Context {
	for k, v := range kvs {
		ctx = context.WithValue(ctx, valuesKey(k), v)
	}
	return ctx
}
