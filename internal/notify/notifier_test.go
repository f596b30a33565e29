package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/attendance/internal/events"
)

type stubWriter struct {
	msgs []kafka.Message
	err  error
}

func (s *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, msgs...)
	return nil
}

func TestKafkaNotifierPublishesEvent(t *testing.T) {
	writer := &stubWriter{}
	notifier := NewKafkaNotifier(writer)
	created := time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)

	err := notifier.Notify(context.Background(), Notification{
		Channel:   "general",
		Kind:      KindSessionStarted,
		UserID:    "u",
		Text:      "<@u> started working!",
		CreatedAt: created,
	})
	require.NoError(t, err)
	require.Len(t, writer.msgs, 1)

	msg := writer.msgs[0]
	require.Equal(t, []byte("general"), msg.Key)
	require.Equal(t, events.HeaderEventType, msg.Headers[0].Key)
	require.Equal(t, events.TypeNotificationRequested, string(msg.Headers[0].Value))

	var payload events.NotificationRequested
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	_, err = uuid.Parse(payload.NotificationID)
	require.NoError(t, err)
	require.Equal(t, "general", payload.Channel)
	require.Equal(t, KindSessionStarted, payload.Kind)
	require.True(t, created.Equal(payload.CreatedAt))
}

func TestKafkaNotifierWrapsWriteErrors(t *testing.T) {
	notifier := NewKafkaNotifier(&stubWriter{err: errors.New("leader not available")})
	err := notifier.Notify(context.Background(), Notification{Channel: "c", Text: "hi"})
	require.ErrorContains(t, err, "leader not available")
}

func TestNotifiersRejectEmptyText(t *testing.T) {
	require.ErrorIs(t, NewKafkaNotifier(&stubWriter{}).Notify(context.Background(), Notification{}), ErrEmptyText)
	require.ErrorIs(t, NewLogNotifier(nil).Notify(context.Background(), Notification{}), ErrEmptyText)
}

func TestLogNotifierWritesText(t *testing.T) {
	var buf bytes.Buffer
	notifier := NewLogNotifier(log.New(&buf, "", 0))
	require.NoError(t, notifier.Notify(context.Background(), Notification{Channel: "general", Kind: KindWeeklyMid, Text: "weekly report"}))
	require.Contains(t, buf.String(), "channel=general kind=weekly_mid")
	require.Contains(t, buf.String(), "weekly report")
}

func TestKafkaWriterHashesByChannel(t *testing.T) {
	writer := NewKafkaWriter([]string{"k1:9092", "k2:9092"}, "attendance.notifications")
	t.Cleanup(func() { _ = writer.Close() })

	require.Equal(t, "attendance.notifications", writer.Topic)
	require.IsType(t, &kafka.Hash{}, writer.Balancer)
	require.Equal(t, kafka.RequireAll, writer.RequiredAcks)
	require.Equal(t, "k1:9092,k2:9092", writer.Addr.String())
}
