package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/avaldes/scribeflow/pkg/models"
)

// RabbitMQQueue is the durable queue backend. A single consumer feeds
// all workers through one Go channel; QoS prefetch bounds how many
// unacked jobs are in flight at once, and manual Ack/Nack gives
// at-least-once delivery across restarts.
type RabbitMQQueue struct {
	url       string
	queueName string
	prefetch  int
	closed    chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc

	publishConn    *amqp.Connection
	publishChannel *amqp.Channel
	publishMutex   sync.Mutex

	consumeConn    *amqp.Connection
	consumeChannel *amqp.Channel
	deliveries     <-chan amqp.Delivery

	// The consume channel is not safe for concurrent Ack/Nack.
	ackMutex sync.Mutex
}

// NewRabbitMQQueue connects publisher and consumer sides and declares
// the durable queue.
func NewRabbitMQQueue(url, queueName string, prefetch int) (*RabbitMQQueue, error) {
	if prefetch <= 0 {
		prefetch = 3
	}

	ctx, cancel := context.WithCancel(context.Background())
	rq := &RabbitMQQueue{
		url:       url,
		queueName: queueName,
		prefetch:  prefetch,
		closed:    make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}

	if err := rq.setupPublisher(); err != nil {
		cancel()
		return nil, fmt.Errorf("setup publisher: %w", err)
	}

	if err := rq.setupConsumer(); err != nil {
		cancel()
		rq.closePublisher()
		return nil, fmt.Errorf("setup consumer: %w", err)
	}

	log.Printf("rabbitmq queue ready (queue=%s prefetch=%d)", queueName, prefetch)
	return rq, nil
}

func (rq *RabbitMQQueue) setupPublisher() error {
	conn, err := amqp.Dial(rq.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		rq.queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declare queue: %w", err)
	}

	rq.publishConn = conn
	rq.publishChannel = ch
	return nil
}

func (rq *RabbitMQQueue) setupConsumer() error {
	conn, err := amqp.Dial(rq.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := ch.Qos(rq.prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		rq.queueName,
		"scribeflow-worker",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("start consume: %w", err)
	}

	rq.consumeConn = conn
	rq.consumeChannel = ch
	rq.deliveries = deliveries
	return nil
}

// Enqueue publishes the job as a persistent JSON message.
func (rq *RabbitMQQueue) Enqueue(job *models.Job) error {
	rq.publishMutex.Lock()
	defer rq.publishMutex.Unlock()

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	ctx, cancel := context.WithTimeout(rq.ctx, 5*time.Second)
	defer cancel()

	err = rq.publishChannel.PublishWithContext(
		ctx,
		"", // default exchange
		rq.queueName,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	return nil
}

// Dequeue blocks on the shared delivery channel. The delivery is kept
// on the job for the later Ack/Nack.
func (rq *RabbitMQQueue) Dequeue() (*models.Job, error) {
	select {
	case <-rq.closed:
		return nil, ErrQueueClosed
	case <-rq.ctx.Done():
		return nil, ErrQueueClosed
	case delivery, ok := <-rq.deliveries:
		if !ok {
			return nil, ErrQueueClosed
		}

		var job models.Job
		if err := json.Unmarshal(delivery.Body, &job); err != nil {
			// Poison message; drop it instead of cycling forever.
			rq.nackInternal(delivery.DeliveryTag, false)
			return nil, fmt.Errorf("unmarshal job: %w", err)
		}

		job.DeliveryTag = delivery.DeliveryTag
		job.Delivery = &delivery
		return &job, nil
	}
}

// Ack confirms the message.
func (rq *RabbitMQQueue) Ack(job *models.Job) error {
	delivery, ok := job.Delivery.(*amqp.Delivery)
	if !ok {
		return nil
	}
	return rq.ackInternal(delivery.DeliveryTag)
}

// Nack rejects the message, optionally requeueing it.
func (rq *RabbitMQQueue) Nack(job *models.Job, requeue bool) error {
	delivery, ok := job.Delivery.(*amqp.Delivery)
	if !ok {
		return nil
	}
	return rq.nackInternal(delivery.DeliveryTag, requeue)
}

func (rq *RabbitMQQueue) ackInternal(deliveryTag uint64) error {
	rq.ackMutex.Lock()
	defer rq.ackMutex.Unlock()
	return rq.consumeChannel.Ack(deliveryTag, false)
}

func (rq *RabbitMQQueue) nackInternal(deliveryTag uint64, requeue bool) error {
	rq.ackMutex.Lock()
	defer rq.ackMutex.Unlock()
	return rq.consumeChannel.Nack(deliveryTag, false, requeue)
}

// Close shuts both connections down.
func (rq *RabbitMQQueue) Close() error {
	select {
	case <-rq.closed:
		return nil
	default:
		close(rq.closed)
		rq.cancel()

		if rq.consumeChannel != nil {
			rq.consumeChannel.Close()
		}
		if rq.consumeConn != nil {
			rq.consumeConn.Close()
		}
		rq.closePublisher()
		return nil
	}
}

func (rq *RabbitMQQueue) closePublisher() {
	if rq.publishChannel != nil {
		rq.publishChannel.Close()
	}
	if rq.publishConn != nil {
		rq.publishConn.Close()
	}
}
