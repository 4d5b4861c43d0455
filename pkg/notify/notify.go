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
// Package notify delivers migration and approval events to interested users.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"saturn.io/saturn/pkg/log"
)

type MessageType string

const (
	Approve MessageType = "approve" // someone has to act
	Message MessageType = "message" // informational
)

type Event string

const (
	EventApprovalRequested   Event = "approval_requested"
	EventApprovalDecided     Event = "approval_decided"
	EventMigrationCompleted  Event = "migration_completed"
	EventMigrationFailed     Event = "migration_failed"
	EventMigrationRolledBack Event = "migration_rolled_back"
)

type ResourceType string

const (
	Migration  ResourceType = "migration"
	Deployment ResourceType = "deployment"
)

type Notification struct {
	MessageType  MessageType  `json:"kind"`
	Event        Event        `json:"event"`
	ResourceType ResourceType `json:"resource_type"`
	ResourceUUID string       `json:"resource_uuid"`
	TeamID       uint         `json:"team_id"`
	From         uint         `json:"from,omitempty"`
	To           []uint       `json:"to"`
	Detail       string       `json:"detail"`
	CreatedAt    time.Time    `json:"created_at"`
}

type Notifier interface {
	Notify(ctx context.Context, n *Notification) error
}

// DefaultChannel is the redis pub/sub channel notifications are published on.
const DefaultChannel = "saturn:notifications"

type RedisNotifier struct {
	client  *redis.Client
	channel string
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client, channel: DefaultChannel}
}

func (r *RedisNotifier) Notify(ctx context.Context, n *Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	content, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, content).Err()
}

// Subscribe delivers notifications published on the channel until ctx is done.
func (r *RedisNotifier) Subscribe(ctx context.Context, onmessage func(n *Notification)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			n := &Notification{}
			if err := json.Unmarshal([]byte(msg.Payload), n); err != nil {
				log.Error(err, "decode notification")
				continue
			}
			onmessage(n)
		}
	}
}

// LogNotifier only logs, used when no redis is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, n *Notification) error {
	log.FromContextOrDiscard(ctx).Info("notification",
		"event", n.Event, "resource", n.ResourceUUID, "to", n.To, "detail", n.Detail)
	return nil
}

// Send notifies and logs a failed delivery instead of returning it, notifications never fail an action.
func Send(ctx context.Context, notifier Notifier, n *Notification) {
	if notifier == nil || len(n.To) == 0 {
		return
	}
	if err := notifier.Notify(ctx, n); err != nil {
		log.FromContextOrDiscard(ctx).Error(err, "send notification", "event", n.Event)
	}
}
