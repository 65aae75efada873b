// Package notify publishes analysis jobs to rabbitmq for the worker.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AnalysisJob asks the worker to build the daily report for one senior.
type AnalysisJob struct {
	SeniorID   string `json:"senior_id"`
	GuardianID string `json:"guardian_id"`
	Date       string `json:"date"` // YYYY-MM-DD
}

// Publisher keeps one connection and channel. The retry and dead-letter
// queues are declared alongside the main queue so a nacked job cycles
// through retry before landing in the dlq.
type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("notify: dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("notify: open channel: %w", err)
	}
	if err := DeclareQueues(ch, queue); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

// DLQName is the dead-letter queue paired with a job queue. Messages
// land there only when the consumer gives up on them explicitly.
func DLQName(queue string) string { return queue + "_dlq" }

// DeclareQueues sets up the main, retry and dead-letter queues. Both
// publisher and worker call it so either side can start first.
func DeclareQueues(ch *amqp.Channel, queue string) error {
	retryQueue := queue + "_retry"
	dlq := DLQName(queue)

	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("notify: declare %s: %w", dlq, err)
	}
	if _, err := ch.QueueDeclare(retryQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue,
		"x-message-ttl":             int32(30000),
	}); err != nil {
		return fmt.Errorf("notify: declare %s: %w", retryQueue, err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": retryQueue,
	}); err != nil {
		return fmt.Errorf("notify: declare %s: %w", queue, err)
	}
	return nil
}

// PublishAnalysisJob enqueues one job with a short timeout so a broker
// stall cannot hold up the request path.
func (p *Publisher) PublishAnalysisJob(ctx context.Context, seniorID, guardianID, date string) error {
	body, err := json.Marshal(AnalysisJob{SeniorID: seniorID, GuardianID: guardianID, Date: date})
	if err != nil {
		return fmt.Errorf("notify: marshal job: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("notify: publish job: %w", err)
	}
	return nil
}

func (p *Publisher) Close() {
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
