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

package redis

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"
	"github.com/spf13/pflag"
	"saturn.io/saturn/pkg/utils"
)

type Options struct {
	Addr     string `json:"addr,omitempty" description:"redis address"`
	Password string `json:"password,omitempty" description:"redis password"`
	DB       int    `json:"db,omitempty" description:"redis db index"`
}

func (o *Options) RegistFlags(prefix string, fs *pflag.FlagSet) {
	fs.StringVar(&o.Addr, utils.JoinFlagName(prefix, "addr"), o.Addr, "redis address")
	fs.StringVar(&o.Password, utils.JoinFlagName(prefix, "password"), o.Password, "redis password")
	fs.IntVar(&o.DB, utils.JoinFlagName(prefix, "db"), o.DB, "redis db index")
}

func (o *Options) ToDsn() string {
	if len(o.Password) == 0 {
		return fmt.Sprintf("redis://%s/%v", o.Addr, o.DB)
	}
	return fmt.Sprintf("redis://:%s@%s/%v", o.Password, o.Addr, o.DB)
}

func NewDefaultOptions() *Options {
	return &Options{
		Addr:     "saturn-redis:6379",
		Password: "",
	}
}

type Client struct {
	*redis.Client
	rs *redsync.Redsync
}

func NewClient(options *Options) (*Client, error) {
	cli := redis.NewClient(&redis.Options{
		Addr:     options.Addr,
		Password: options.Password,
		DB:       options.DB,
	})
	return &Client{Client: cli, rs: redsync.New(goredis.NewPool(cli))}, nil
}

// Ping checks the connection, used as readiness probe at startup.
func (c *Client) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

// NewMutex returns a distributed mutex named name.
func (c *Client) NewMutex(name string, options ...redsync.Option) *redsync.Mutex {
	return c.rs.NewMutex(name, options...)
}
