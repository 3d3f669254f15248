package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	pkglogger "github.com/BradenHooton/warden/pkg/logger"
)

// EmailJob is the message body published for an external mail worker
type EmailJob struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
	Purpose string `json:"purpose"`
}

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// QueueNotifier publishes rendered codes to a durable RabbitMQ queue
type QueueNotifier struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	publisher publisher
	queueName string
	appName   string
	logger    *slog.Logger
}

func NewQueueNotifier(url, queueName, appName string, logger *slog.Logger) (*QueueNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	return &QueueNotifier{
		conn:      conn,
		channel:   ch,
		publisher: ch,
		queueName: q.Name,
		appName:   appName,
		logger:    logger,
	}, nil
}

func (n *QueueNotifier) buildJob(msg OTPMessage, now time.Time) (*EmailJob, error) {
	content, err := render(n.appName, msg, now)
	if err != nil {
		return nil, err
	}
	return &EmailJob{
		To:      msg.To,
		Subject: content.Subject,
		Text:    content.Text,
		HTML:    content.HTML,
		Purpose: msg.Purpose,
	}, nil
}

func (n *QueueNotifier) SendOTP(ctx context.Context, msg OTPMessage) error {
	now := time.Now()
	job, err := n.buildJob(msg, now)
	if err != nil {
		return err
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode email job: %w", err)
	}

	ttl := msg.ExpiresAt.Sub(now).Milliseconds()
	if ttl < 0 {
		ttl = 0
	}

	err = n.publisher.PublishWithContext(ctx, "", n.queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    now,
		Expiration:   strconv.FormatInt(ttl, 10),
	})
	if err != nil {
		n.logger.Error("failed to publish otp email job",
			slog.String("email", pkglogger.SanitizedEmail(msg.To)),
			slog.Any("error", err))
		return fmt.Errorf("failed to publish email job: %w", err)
	}

	n.logger.Info("otp email job queued",
		slog.String("email", pkglogger.SanitizedEmail(msg.To)),
		slog.String("queue", n.queueName))
	return nil
}

func (n *QueueNotifier) Close() {
	if n.channel != nil {
		_ = n.channel.Close()
	}
	if n.conn != nil {
		_ = n.conn.Close()
	}
}
