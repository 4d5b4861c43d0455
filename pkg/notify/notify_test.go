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

package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisNotifier(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	notifier := NewRedisNotifier(client)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan *Notification, 1)
	go func() {
		_ = notifier.Subscribe(ctx, func(n *Notification) {
			received <- n
		})
	}()

	// wait for the subscription before publishing
	require.Eventually(t, func() bool {
		return len(mr.PubSubChannels("")) > 0
	}, 3*time.Second, 10*time.Millisecond)

	Send(ctx, notifier, &Notification{
		MessageType:  Approve,
		Event:        EventApprovalRequested,
		ResourceType: Migration,
		ResourceUUID: "m1",
		To:           []uint{1, 2},
	})

	select {
	case n := <-received:
		assert.Equal(t, EventApprovalRequested, n.Event)
		assert.Equal(t, []uint{1, 2}, n.To)
		assert.False(t, n.CreatedAt.IsZero())
	case <-ctx.Done():
		t.Fatal("notification not received")
	}
}

type failingNotifier struct{ called int }

func (f *failingNotifier) Notify(ctx context.Context, n *Notification) error {
	f.called++
	return assert.AnError
}

func TestSendSkipsEmptyRecipients(t *testing.T) {
	f := &failingNotifier{}
	Send(context.Background(), f, &Notification{Event: EventMigrationCompleted})
	assert.Equal(t, 0, f.called)
	Send(context.Background(), f, &Notification{Event: EventMigrationCompleted, To: []uint{1}})
	assert.Equal(t, 1, f.called)
	Send(context.Background(), nil, &Notification{To: []uint{1}})
	assert.NoError(t, LogNotifier{}.Notify(context.Background(), &Notification{}))
}
