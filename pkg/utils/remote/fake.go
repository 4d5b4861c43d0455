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

package remote

import (
	"context"
	"io"
	"strings"
	"sync"
)

// FakeExecutor records commands and answers them with Handler, for tests.
type FakeExecutor struct {
	mu       sync.Mutex
	Commands []string
	Pipes    []string
	Handler  func(target Target, cmd string) (string, error)
	PingErr  map[string]error
}

var _ Executor = &FakeExecutor{}

func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{PingErr: map[string]error{}}
}

func (f *FakeExecutor) Run(ctx context.Context, target Target, cmd string) (string, error) {
	f.mu.Lock()
	f.Commands = append(f.Commands, target.Host+": "+cmd)
	handler := f.Handler
	f.mu.Unlock()
	if handler == nil {
		return "", nil
	}
	return handler(target, cmd)
}

func (f *FakeExecutor) Stream(ctx context.Context, target Target, cmd string, w io.Writer) error {
	out, err := f.Run(ctx, target, cmd)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, strings.NewReader(out))
	return err
}

func (f *FakeExecutor) Pipe(ctx context.Context, src Target, srcCmd string, dst Target, dstCmd string) error {
	f.mu.Lock()
	f.Pipes = append(f.Pipes, src.Host+": "+srcCmd+" | "+dst.Host+": "+dstCmd)
	handler := f.Handler
	f.mu.Unlock()
	if handler == nil {
		return nil
	}
	if _, err := handler(src, srcCmd); err != nil {
		return err
	}
	_, err := handler(dst, dstCmd)
	return err
}

func (f *FakeExecutor) Ping(ctx context.Context, target Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PingErr[target.Host]
}

func (f *FakeExecutor) Recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append(append([]string{}, f.Commands...), f.Pipes...)
}
