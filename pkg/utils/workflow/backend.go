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
	"errors"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	DefaultGroup = "saturn-workflow"
)

var ErrNotFound = errors.New("not found")

type OnChangeFunc func(ctx context.Context, key string, val []byte) error

// Backend provides a shared queue and a kv store.
type Backend interface {
	// Sub consumes the queue name, every message is delivered to exactly one subscriber.
	Sub(ctx context.Context, name string, onchange OnChangeFunc, opts ...SubOption) error
	Pub(ctx context.Context, name string, key string, val []byte) error

	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, val []byte, ttl ...time.Duration) error
	Del(ctx context.Context, key string) error
	List(ctx context.Context, keyprefix string) (map[string][]byte, error)
}

type RedisBackend struct {
	kvprefix     string
	streamprefix string
	cli          *redis.Client
}

func NewRedisBackendFromClient(c *redis.Client) *RedisBackend {
	return &RedisBackend{
		kvprefix:     "/saturn-workflow-store/",
		streamprefix: "/saturn-workflow-queue/",
		cli:          c,
	}
}

type SubOptions struct {
	AutoACK     bool // ack even when onchange returns an error
	Concurrency int
}

type SubOption func(o *SubOptions)

func WithConcurrency(con int) SubOption {
	return func(o *SubOptions) { o.Concurrency = con }
}

func WithAutoACK(ack bool) SubOption {
	return func(o *SubOptions) { o.AutoACK = ack }
}

func (b *RedisBackend) Sub(ctx context.Context, name string, onchange OnChangeFunc, opts ...SubOption) error {
	options := &SubOptions{Concurrency: 1}
	for _, opt := range opts {
		opt(options)
	}
	stream := b.streamprefix + name

	// https://redis.io/commands/xgroup-create
	if err := b.cli.XGroupCreateMkStream(ctx, stream, DefaultGroup, "0").Err(); err != nil {
		if !strings.Contains(err.Error(), "exists") {
			return err
		}
	}
	consumer, _ := os.Hostname()
	concurrentchan := make(chan struct{}, options.Concurrency)

	// the first read replays messages left unacked by a previous run of this consumer,
	// later reads block for new messages only.
	ids := "0"
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		result, err := b.cli.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    DefaultGroup,
			Consumer: consumer,
			Streams:  []string{stream, ids},
			Block:    time.Second,
		}).Result()
		ids = ">"
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for _, msgs := range result {
			for _, msg := range msgs.Messages {
				for k, v := range msg.Values {
					var val []byte
					switch data := v.(type) {
					case string:
						val = []byte(data)
					case []byte:
						val = data
					}
					select {
					case <-ctx.Done():
						return nil
					case concurrentchan <- struct{}{}:
						go func(streamName, id, k string, v []byte) {
							defer func() { <-concurrentchan }()
							if err := onchange(ctx, k, v); err == nil || options.AutoACK {
								b.cli.XAck(ctx, streamName, DefaultGroup, id)
							}
						}(msgs.Stream, msg.ID, k, val)
					}
				}
			}
		}
	}
}

func (b *RedisBackend) Pub(ctx context.Context, name string, key string, val []byte) error {
	return b.cli.XAdd(ctx, &redis.XAddArgs{
		Stream: b.streamprefix + name,
		Values: map[string]interface{}{key: val},
	}).Err()
}

func (b *RedisBackend) Put(ctx context.Context, key string, val []byte, ttl ...time.Duration) error {
	var expiration time.Duration
	if len(ttl) > 0 {
		expiration = ttl[0]
	}
	return b.cli.Set(ctx, b.kvprefix+key, val, expiration).Err()
}

func (b *RedisBackend) Del(ctx context.Context, key string) error {
	return b.cli.Del(ctx, b.kvprefix+key).Err()
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := b.cli.Get(ctx, b.kvprefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return val, err
}

func (b *RedisBackend) List(ctx context.Context, keyprefix string) (map[string][]byte, error) {
	prefixedKey := b.kvprefix + keyprefix
	iter := b.cli.Scan(ctx, 0, prefixedKey+"*", 0).Iterator()

	list := map[string][]byte{}
	for iter.Next(ctx) {
		key := iter.Val()
		val, err := b.cli.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		list[strings.TrimPrefix(key, b.kvprefix)] = val
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return list, nil
}
