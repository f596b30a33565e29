// Package notify delivers chat notifications produced by the attendance service.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"example.com/attendance/internal/events"
)

// Notification kinds.
const (
	KindSessionStarted   = "session_started"
	KindSessionCompleted = "session_completed"
	KindAreaStatus       = "area_status"
	KindWeeklyMid        = "weekly_mid"
	KindWeeklyFinal      = "weekly_final"
	KindMonthlyMid       = "monthly_mid"
	KindMonthlyFinal     = "monthly_final"
	KindDataReset        = "data_reset"
)

// ErrEmptyText is returned when a notification carries no text.
var ErrEmptyText = errors.New("notification text is empty")

// Notification is a single message to post to a chat channel.
type Notification struct {
	ID        string
	Channel   string
	Kind      string
	UserID    string
	Text      string
	CreatedAt time.Time
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// MessageWriter is the subset of kafka.Writer the notifier needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter builds the writer for the notification topic. Messages are
// keyed by channel and hashed, so one channel's notices keep their order.
// Batches flush quickly because every notice is a user-visible chat post.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           20 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
		AllowAutoTopicCreation: true,
	}
}

// KafkaNotifier publishes notification.requested events for the chat gateway.
type KafkaNotifier struct {
	writer MessageWriter
}

// NewKafkaNotifier constructs a KafkaNotifier over a writer bound to the
// notification topic.
func NewKafkaNotifier(writer MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: writer}
}

// Notify implements Notifier.
func (k *KafkaNotifier) Notify(ctx context.Context, n Notification) error {
	n, err := prepare(n)
	if err != nil {
		return err
	}
	body, err := json.Marshal(events.NotificationRequested{
		NotificationID: n.ID,
		Channel:        n.Channel,
		Kind:           n.Kind,
		UserID:         n.UserID,
		Text:           n.Text,
		CreatedAt:      n.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(n.Channel),
		Value: body,
		Time:  n.CreatedAt,
		Headers: []kafka.Header{
			{Key: events.HeaderEventType, Value: []byte(events.TypeNotificationRequested)},
			{Key: "notification_id", Value: []byte(n.ID)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish notification %s: %w", n.ID, err)
	}
	return nil
}

// LogNotifier writes notifications to a logger. Used when no broker is configured.
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier constructs a LogNotifier. A nil logger gets the "[notify] " default.
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.New(log.Writer(), "[notify] ", log.LstdFlags)
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	n, err := prepare(n)
	if err != nil {
		return err
	}
	l.logger.Printf("channel=%s kind=%s id=%s\n%s", n.Channel, n.Kind, n.ID, n.Text)
	return nil
}

func prepare(n Notification) (Notification, error) {
	if n.Text == "" {
		return n, ErrEmptyText
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return n, nil
}
