package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jghoshh/habitual/backend/apperrors"
	"github.com/jghoshh/habitual/backend/server/notifications/email"
	storage "github.com/jghoshh/habitual/backend/storage/cache"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// MilestoneQueueName is the RabbitMQ queue carrying streak milestone notifications.
const MilestoneQueueName = "milestoneQueue"

// sentTTL is how long a delivered message id is remembered.
const sentTTL = 72 * time.Hour

// MilestoneMessage announces that a habit's streak reached a milestone.
type MilestoneMessage struct {
	Id        string `json:"id"`
	To        string `json:"to"`
	HabitName string `json:"habit_name"`
	Streak    int    `json:"streak"`
}

// SendFunc delivers one milestone message to its recipient.
type SendFunc func(msg *MilestoneMessage) error

// SendByEmail delivers msg through the SMTP email service.
func SendByEmail(msg *MilestoneMessage) error {
	return email.SendMilestoneEmail(msg.To, msg.HabitName, msg.Streak)
}

// SendToLog records msg in the log instead of delivering it.
func SendToLog(msg *MilestoneMessage) error {
	logrus.WithFields(logrus.Fields{
		"message_id": msg.Id,
		"habit":      msg.HabitName,
		"streak":     msg.Streak,
	}).Info("Milestone reached")
	return nil
}

// MilestoneProducerFactory creates MilestoneProducer instances.
type MilestoneProducerFactory struct{}

// MilestoneConsumerFactory creates MilestoneConsumer instances sharing one
// cache and sender.
type MilestoneConsumerFactory struct {
	Cache storage.CacheInterface
	Send  SendFunc
}

// confirmTimeout bounds the wait for the broker to confirm a publish.
const confirmTimeout = 5 * time.Second

// MilestoneProducer publishes JSON milestone messages to its queue on its own
// channel in confirm mode, one message at a time.
type MilestoneProducer struct {
	mu       sync.Mutex
	channel  *amqp.Channel
	queue    *amqp.Queue
	confirms chan amqp.Confirmation
}

// MilestoneConsumer reads milestone messages, skips the ones already
// delivered and sends the rest.
type MilestoneConsumer struct {
	channel *amqp.Channel
	queue   *amqp.Queue
	handler *milestoneHandler
}

// CreateProducer opens a confirm mode channel on conn and returns a
// MilestoneProducer publishing on it to queue.
func (f *MilestoneProducerFactory) CreateProducer(conn *amqp.Connection, _ *amqp.Channel, queue *amqp.Queue) (Producer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, err
	}
	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	return &MilestoneProducer{channel: ch, queue: queue, confirms: confirms}, nil
}

// CreateConsumer returns a MilestoneConsumer reading queue on ch.
func (f *MilestoneConsumerFactory) CreateConsumer(conn *amqp.Connection, ch *amqp.Channel, queue *amqp.Queue) (Consumer, error) {
	if f.Cache == nil {
		return nil, fmt.Errorf("milestone consumer needs a cache")
	}
	send := f.Send
	if send == nil {
		send = SendByEmail
	}
	return &MilestoneConsumer{
		channel: ch,
		queue:   queue,
		handler: &milestoneHandler{cache: f.Cache, send: send},
	}, nil
}

// Publish publishes body to the producer's queue as a persistent message and
// waits until the broker confirms it.
func (mp *MilestoneProducer) Publish(body []byte) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	err := mp.channel.Publish(
		"",            // exchange
		mp.queue.Name, // routing key
		false,         // mandatory
		false,         // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish a message: %w", err)
	}
	return awaitConfirm(mp.confirms, confirmTimeout)
}

// awaitConfirm waits for the broker's answer to the last publish.
func awaitConfirm(confirms <-chan amqp.Confirmation, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case confirm, ok := <-confirms:
		if !ok {
			return errors.New("channel closed before the message was confirmed")
		}
		if !confirm.Ack {
			return fmt.Errorf("broker rejected message %d", confirm.DeliveryTag)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("no confirmation within %s", timeout)
	}
}

// Consume registers on the queue and handles deliveries in a goroutine
// until ctx is cancelled or the delivery channel closes.
func (mc *MilestoneConsumer) Consume(ctx context.Context) (<-chan amqp.Delivery, error) {
	msgs, err := mc.channel.Consume(
		mc.queue.Name,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, err
	}

	go func() {
		for {
			select {
			case d, ok := <-msgs:
				if !ok {
					return
				}
				switch mc.handler.handle(ctx, d.Body) {
				case outcomeAck:
					d.Ack(false)
				case outcomeRequeue:
					d.Nack(false, true)
				case outcomeDrop:
					d.Nack(false, false)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return msgs, nil
}

type outcome int

const (
	outcomeAck outcome = iota
	outcomeRequeue
	outcomeDrop
)

type milestoneHandler struct {
	cache storage.CacheInterface
	send  SendFunc
}

func sentKey(id string) string {
	return "milestone:sent:" + id
}

// handle processes one delivery body and tells the consumer how to settle it.
func (h *milestoneHandler) handle(ctx context.Context, body []byte) outcome {
	message := &MilestoneMessage{}
	if err := json.Unmarshal(body, message); err != nil {
		logrus.WithError(err).Error("Failed to unmarshal milestone message")
		return outcomeDrop
	}
	log := logrus.WithField("message_id", message.Id)

	var sent bool
	err := h.cache.Get(ctx, sentKey(message.Id), &sent)
	switch {
	case err == nil && sent:
		log.Debug("Milestone message already delivered")
		return outcomeAck
	case err != nil && !errors.Is(err, apperrors.ErrNotFound):
		log.WithError(err).Error("Error checking cache")
		return outcomeRequeue
	}

	if err := h.send(message); err != nil {
		log.WithError(err).Error("Failed to send milestone notification")
		return outcomeRequeue
	}

	if err := h.cache.Set(ctx, sentKey(message.Id), true, sentTTL); err != nil {
		log.WithError(err).Warn("Failed to record delivered milestone message")
	}
	return outcomeAck
}

// BuildMilestoneQueue connects to RabbitMQ and builds the milestone queue
// with numProducers producers and numConsumers consumers.
func BuildMilestoneQueue(rabbitMQURL string, numProducers int, numConsumers int, cache storage.CacheInterface, send SendFunc) (*Queue, error) {
	prodFactories := make([]ProducerFactory, numProducers)
	for i := 0; i < numProducers; i++ {
		prodFactories[i] = &MilestoneProducerFactory{}
	}

	consFactories := make([]ConsumerFactory, numConsumers)
	for i := 0; i < numConsumers; i++ {
		consFactories[i] = &MilestoneConsumerFactory{Cache: cache, Send: send}
	}

	return InitQueue(rabbitMQURL, MilestoneQueueName, prodFactories, consFactories)
}

// PublishMilestone serializes msg and publishes it on q.
func PublishMilestone(msg *MilestoneMessage, q *Queue) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal milestone message: %w", err)
	}

	if err := q.Publish(body); err != nil {
		return fmt.Errorf("failed to publish milestone message: %w", err)
	}
	return nil
}

// Notifier publishes milestone messages on a queue. A nil Notifier or one
// without a queue drops every message.
type Notifier struct {
	Queue *Queue
}

// NotifyMilestone publishes msg, or does nothing when notifications are disabled.
func (n *Notifier) NotifyMilestone(ctx context.Context, msg MilestoneMessage) error {
	if n == nil || n.Queue == nil {
		return nil
	}
	return PublishMilestone(&msg, n.Queue)
}
