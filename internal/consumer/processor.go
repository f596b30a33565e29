// Package consumer reads presence events from Kafka and feeds the session lifecycle.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/coder/quartz"
	"github.com/segmentio/kafka-go"

	"example.com/attendance/internal/events"
)

// ErrMalformedPayload marks messages that can never be handled and are committed anyway.
var ErrMalformedPayload = errors.New("malformed payload")

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages from Kafka.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is the decoded representation of a presence record.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       string
	Timestamp time.Time
	EventType string
	Payload   json.RawMessage
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithRetryBackoff sets the first and the largest delay between attempts at a
// message whose handler failed. Zero retries immediately.
func WithRetryBackoff(initial, maxDelay time.Duration) Option {
	return func(p *Processor) {
		p.retryInitial = initial
		p.retryMax = maxDelay
	}
}

// WithClock overrides the clock used to wait between retries.
func WithClock(clock quartz.Clock) Option {
	return func(p *Processor) {
		p.clock = clock
	}
}

// Processor pulls messages from Kafka, decodes them, and dispatches to a Handler.
// Messages of one partition are handled strictly in order. A failed message
// is retried before the next fetch, so no later commit covers its offset.
type Processor struct {
	reader       Reader
	handler      Handler
	logger       *log.Logger
	clock        quartz.Clock
	retryInitial time.Duration
	retryMax     time.Duration
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:       reader,
		handler:      handler,
		logger:       log.New(log.Writer(), "[consumer] ", log.LstdFlags|log.Lshortfile),
		clock:        quartz.NewReal(),
		retryInitial: 500 * time.Millisecond,
		retryMax:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts a blocking loop that processes Kafka messages until the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.logger.Printf("fetch error: %v", err)
			continue
		}

		event, decodeErr := decodeMessage(msg)
		if decodeErr != nil {
			p.logger.Printf("decode error (topic=%s, partition=%d, offset=%d): %v", msg.Topic, msg.Partition, msg.Offset, decodeErr)
			recordDecodeError(msg.Topic)
			p.commitPoison(ctx, msg)
			continue
		}

		if err := p.handle(ctx, msg, event); err != nil {
			return err
		}
	}
}

// handle dispatches one message, retrying with backoff until it is handled or
// rejected as malformed. It only returns an error when ctx ends.
func (p *Processor) handle(ctx context.Context, msg kafka.Message, event Message) error {
	delay := p.retryInitial
	for attempt := 1; ; attempt++ {
		handleErr := p.handler.Handle(ctx, event)
		if handleErr == nil {
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.logger.Printf("commit error: %v", commitErr)
			} else {
				recordProcessed(event)
			}
			return nil
		}

		p.logger.Printf("handler error (event_type=%s, key=%s, offset=%d, attempt=%d): %v", event.EventType, event.Key, event.Offset, attempt, handleErr)
		recordHandlerError(event)
		if errors.Is(handleErr, ErrMalformedPayload) {
			p.commitPoison(ctx, msg)
			return nil
		}

		if err := p.wait(ctx, delay); err != nil {
			return err
		}
		delay = min(delay*2, p.retryMax)
	}
}

func (p *Processor) wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := p.clock.NewTimer(delay, "consumer", "retry")
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// commitPoison commits a message that can never be handled to avoid poison-pill loops.
func (p *Processor) commitPoison(ctx context.Context, msg kafka.Message) {
	if err := p.reader.CommitMessages(ctx, msg); err != nil {
		p.logger.Printf("commit error after decode failure: %v", err)
	}
}

func decodeMessage(msg kafka.Message) (Message, error) {
	eventType, ok := headerValue(msg, events.HeaderEventType)
	if !ok || len(eventType) == 0 {
		return Message{}, errors.New("missing event_type header")
	}
	if !json.Valid(msg.Value) {
		return Message{}, fmt.Errorf("payload of %d bytes is not valid JSON", len(msg.Value))
	}

	return Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       string(msg.Key),
		Timestamp: msg.Time,
		EventType: string(eventType),
		Payload:   json.RawMessage(append([]byte(nil), msg.Value...)),
	}, nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
