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
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

var _ Backend = &InmemoryBackend{}

type kv struct {
	val        []byte
	expireTime time.Time
}

// InmemoryBackend serves a single process, queued tasks are lost on restart.
type InmemoryBackend struct {
	lock   sync.RWMutex
	db     map[string]kv
	queues map[string]chan []byte
}

func NewInmemoryBackend() *InmemoryBackend {
	return &InmemoryBackend{
		db:     map[string]kv{},
		queues: map[string]chan []byte{},
	}
}

func (t *InmemoryBackend) queue(name string) chan []byte {
	t.lock.Lock()
	defer t.lock.Unlock()
	q, ok := t.queues[name]
	if !ok {
		q = make(chan []byte, 256)
		t.queues[name] = q
	}
	return q
}

func (t *InmemoryBackend) Sub(ctx context.Context, name string, onchange OnChangeFunc, opts ...SubOption) error {
	options := &SubOptions{Concurrency: 1}
	for _, opt := range opts {
		opt(options)
	}
	logr.FromContextOrDiscard(ctx).V(5).Info("sub", "name", name, "concurrency", options.Concurrency)

	q := t.queue(name)
	concurrency := make(chan struct{}, options.Concurrency)
	wg := sync.WaitGroup{}
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case val := <-q:
			select {
			case <-ctx.Done():
				return nil
			case concurrency <- struct{}{}:
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-concurrency }()
				_ = onchange(ctx, "", val)
			}()
		}
	}
}

func (t *InmemoryBackend) Pub(ctx context.Context, name string, key string, val []byte) error {
	select {
	case t.queue(name) <- val:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *InmemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	v, ok := t.db[key]
	if !ok || v.expired(time.Now()) {
		return nil, ErrNotFound
	}
	return v.val, nil
}

func (t *InmemoryBackend) Put(ctx context.Context, key string, val []byte, ttl ...time.Duration) error {
	item := kv{val: val}
	if len(ttl) > 0 && ttl[0] > 0 {
		item.expireTime = time.Now().Add(ttl[0])
	}
	t.lock.Lock()
	t.db[key] = item
	t.lock.Unlock()
	return nil
}

func (t *InmemoryBackend) Del(ctx context.Context, key string) error {
	t.lock.Lock()
	delete(t.db, key)
	t.lock.Unlock()
	return nil
}

func (t *InmemoryBackend) List(ctx context.Context, keyprefix string) (map[string][]byte, error) {
	ret := map[string][]byte{}
	now := time.Now()
	t.lock.RLock()
	defer t.lock.RUnlock()
	for k, v := range t.db {
		if strings.HasPrefix(k, keyprefix) && !v.expired(now) {
			ret[k] = v.val
		}
	}
	return ret, nil
}

func (v kv) expired(now time.Time) bool {
	return !v.expireTime.IsZero() && v.expireTime.Before(now)
}
