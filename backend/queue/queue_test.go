package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jghoshh/habitual/backend/apperrors"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	bodies [][]byte
	err    error
}

func (p *fakeProducer) Publish(body []byte) error {
	if p.err != nil {
		return p.err
	}
	p.bodies = append(p.bodies, body)
	return nil
}

type fakeCache struct {
	mu     sync.Mutex
	values map[string][]byte
	getErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: map[string][]byte{}}
}

func (c *fakeCache) Connect(string) error { return nil }
func (c *fakeCache) Disconnect() error    { return nil }

func (c *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.values[key] = b
	return nil
}

func (c *fakeCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return c.getErr
	}
	b, ok := c.values[key]
	if !ok {
		return apperrors.NotFound("cache key", key)
	}
	return json.Unmarshal(b, dest)
}

func (c *fakeCache) Incr(context.Context, string) (int64, error)    { return 0, nil }
func (c *fakeCache) Counter(context.Context, string) (int64, error) { return 0, nil }

func TestPublishRoundRobin(t *testing.T) {
	p1, p2 := &fakeProducer{}, &fakeProducer{}
	q := &Queue{Producers: []Producer{p1, p2}}

	for i := 0; i < 4; i++ {
		msg := &MilestoneMessage{Id: fmt.Sprint(i), To: "ada@example.com", HabitName: "Read", Streak: 7}
		require.NoError(t, PublishMilestone(msg, q))
	}

	require.Len(t, p1.bodies, 2)
	require.Len(t, p2.bodies, 2)

	var first MilestoneMessage
	require.NoError(t, json.Unmarshal(p1.bodies[0], &first))
	assert.Equal(t, "0", first.Id)
	assert.Equal(t, 7, first.Streak)

	var second MilestoneMessage
	require.NoError(t, json.Unmarshal(p2.bodies[0], &second))
	assert.Equal(t, "1", second.Id)
}

func TestPublishWithoutProducers(t *testing.T) {
	err := PublishMilestone(&MilestoneMessage{Id: "1"}, &Queue{})
	assert.Error(t, err)
}

func TestPublishProducerError(t *testing.T) {
	q := &Queue{Producers: []Producer{&fakeProducer{err: errors.New("channel closed")}}}
	err := PublishMilestone(&MilestoneMessage{Id: "1"}, q)
	assert.ErrorContains(t, err, "channel closed")
}

func TestNotifierDisabled(t *testing.T) {
	var n *Notifier
	assert.NoError(t, n.NotifyMilestone(context.Background(), MilestoneMessage{Id: "1"}))
	assert.NoError(t, (&Notifier{}).NotifyMilestone(context.Background(), MilestoneMessage{Id: "1"}))
}

func TestHandlerDeliversOnce(t *testing.T) {
	cache := newFakeCache()
	var sent []*MilestoneMessage
	h := &milestoneHandler{cache: cache, send: func(msg *MilestoneMessage) error {
		sent = append(sent, msg)
		return nil
	}}

	body, err := json.Marshal(MilestoneMessage{Id: "abc", To: "ada@example.com", HabitName: "Read", Streak: 30})
	require.NoError(t, err)

	assert.Equal(t, outcomeAck, h.handle(context.Background(), body))
	assert.Equal(t, outcomeAck, h.handle(context.Background(), body))

	require.Len(t, sent, 1)
	assert.Equal(t, "Read", sent[0].HabitName)
	assert.Equal(t, 30, sent[0].Streak)
}

func TestHandlerOutcomes(t *testing.T) {
	body, err := json.Marshal(MilestoneMessage{Id: "abc"})
	require.NoError(t, err)

	t.Run("malformed body is dropped", func(t *testing.T) {
		h := &milestoneHandler{cache: newFakeCache(), send: func(*MilestoneMessage) error { return nil }}
		assert.Equal(t, outcomeDrop, h.handle(context.Background(), []byte("{")))
	})

	t.Run("send failure is requeued", func(t *testing.T) {
		cache := newFakeCache()
		h := &milestoneHandler{cache: cache, send: func(*MilestoneMessage) error { return errors.New("smtp down") }}
		assert.Equal(t, outcomeRequeue, h.handle(context.Background(), body))
		assert.Empty(t, cache.values)
	})

	t.Run("cache failure is requeued", func(t *testing.T) {
		cache := newFakeCache()
		cache.getErr = apperrors.Store("redis get", errors.New("timeout"))
		called := false
		h := &milestoneHandler{cache: cache, send: func(*MilestoneMessage) error { called = true; return nil }}
		assert.Equal(t, outcomeRequeue, h.handle(context.Background(), body))
		assert.False(t, called)
	})
}

func TestConsumerFactoryNeedsCache(t *testing.T) {
	_, err := (&MilestoneConsumerFactory{}).CreateConsumer(nil, nil, nil)
	assert.Error(t, err)

	c, err := (&MilestoneConsumerFactory{Cache: newFakeCache()}).CreateConsumer(nil, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, c.(*MilestoneConsumer).handler.send)
}

func TestAwaitConfirm(t *testing.T) {
	acked := make(chan amqp.Confirmation, 1)
	acked <- amqp.Confirmation{DeliveryTag: 1, Ack: true}
	assert.NoError(t, awaitConfirm(acked, time.Second))

	nacked := make(chan amqp.Confirmation, 1)
	nacked <- amqp.Confirmation{DeliveryTag: 2, Ack: false}
	assert.ErrorContains(t, awaitConfirm(nacked, time.Second), "rejected message 2")

	closed := make(chan amqp.Confirmation)
	close(closed)
	assert.ErrorContains(t, awaitConfirm(closed, time.Second), "channel closed")

	silent := make(chan amqp.Confirmation)
	assert.ErrorContains(t, awaitConfirm(silent, 10*time.Millisecond), "no confirmation")
}
