package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderhub/internal/config"
)

// Header names attached to every outbound order event.
const (
	HeaderEventType = "event_type"
	HeaderTenantID  = "tenant_id"
)

// ErrNoTopic is returned when a message has no destination.
var ErrNoTopic = errors.New("messaging: topic is required")

// Message is a single record travelling over the bus. Topics are always the
// logical name; the configured prefix is applied and stripped by the client.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
	Offset  int64
	Time    time.Time
}

// Handler processes an inbound message. Returning an error makes the client
// retry the same message; its offset is committed only after a nil return.
type Handler func(context.Context, Message) error

// Client is the pluggable messaging abstraction.
type Client interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context, handler Handler) error
	Topics() []string
}

// Module wires the messaging client.
var Module = fx.Provide(NewClient)

// NewClient builds a messaging client based on configuration.
func NewClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Client, error) {
	if !cfg.Messaging.Enabled || cfg.Messaging.Driver == "noop" {
		logger.Info("messaging disabled; using noop client")
		return Noop(cfg.Messaging.Kafka.ConsumeTopics...), nil
	}

	switch cfg.Messaging.Driver {
	case "kafka":
		return newKafkaClient(lc, cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported messaging driver: %s", cfg.Messaging.Driver)
	}
}

// Noop returns a client that drops publishes and blocks in Consume until the
// context ends.
func Noop(topics ...string) Client {
	return noopClient{topics: topics}
}

type noopClient struct {
	topics []string
}

func (n noopClient) Publish(_ context.Context, msg Message) error {
	if msg.Topic == "" {
		return ErrNoTopic
	}
	return nil
}

func (n noopClient) Consume(ctx context.Context, _ Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (n noopClient) Topics() []string { return n.topics }

// groupReader is the part of *kafka.Reader the consumer loop drives.
type groupReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaClient struct {
	writer  *kafka.Writer
	reader  groupReader
	prefix  string
	topics  []string
	backoff time.Duration
	logger  *zap.Logger

	// Offsets are committed cumulatively, so fetch, handle and commit run one
	// message at a time even when several workers call Consume.
	consumeMu sync.Mutex
}

func newKafkaClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) *kafkaClient {
	kc := cfg.Messaging.Kafka
	client := &kafkaClient{
		prefix:  kc.TopicPrefix,
		topics:  kc.ConsumeTopics,
		backoff: time.Second,
		logger:  logger,
	}

	// Keys are tenant ids, so Hash keeps each tenant's events ordered on one partition.
	client.writer = &kafka.Writer{
		Addr:         kafka.TCP(kc.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Logger:       kafkaLogger{logger: logger},
		ErrorLogger:  kafkaLogger{logger: logger, errors: true},
	}

	if len(kc.ConsumeTopics) > 0 {
		groupTopics := make([]string, 0, len(kc.ConsumeTopics))
		for _, t := range kc.ConsumeTopics {
			groupTopics = append(groupTopics, client.prefix+t)
		}
		client.reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:        kc.Brokers,
			GroupID:        cfg.Messaging.ConsumerGroup,
			GroupTopics:    groupTopics,
			MinBytes:       kc.MinBytes,
			MaxBytes:       kc.MaxBytes,
			CommitInterval: kc.CommitInterval,
			Dialer: &kafka.Dialer{
				Timeout:  kc.ConnectTimeout,
				ClientID: kc.ClientID,
			},
		})
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("closing kafka client")
			return client.Close()
		},
	})
	return client
}

func (k *kafkaClient) Publish(ctx context.Context, msg Message) error {
	if msg.Topic == "" {
		return ErrNoTopic
	}
	return k.writer.WriteMessages(ctx, toKafka(k.prefix, msg))
}

func (k *kafkaClient) Consume(ctx context.Context, handler Handler) error {
	if k.reader == nil {
		return errors.New("messaging: no consume topics configured")
	}
	for {
		if err := k.consumeOne(ctx, handler); err != nil {
			return err
		}
	}
}

// consumeOne fetches a message, runs handler on it until it succeeds and then
// commits it. It only returns an error once ctx is done.
func (k *kafkaClient) consumeOne(ctx context.Context, handler Handler) error {
	k.consumeMu.Lock()
	defer k.consumeMu.Unlock()

	raw, err := k.reader.FetchMessage(ctx)
	for err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		k.logger.Error("kafka fetch failed", zap.Error(err))
		if err := wait(ctx, k.backoff); err != nil {
			return err
		}
		raw, err = k.reader.FetchMessage(ctx)
	}

	msg := fromKafka(k.prefix, raw)
	for attempt := 1; ; attempt++ {
		err := handler(ctx, msg)
		if err == nil {
			break
		}
		k.logger.Error("message handler failed; retrying",
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if err := wait(ctx, k.backoff); err != nil {
			return err
		}
	}

	if err := k.reader.CommitMessages(ctx, raw); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		k.logger.Warn("commit failed", zap.String("topic", msg.Topic), zap.Error(err))
	}
	return nil
}

func (k *kafkaClient) Topics() []string { return k.topics }

// Close flushes the writer before closing the reader.
func (k *kafkaClient) Close() error {
	err := k.writer.Close()
	if k.reader != nil {
		err = errors.Join(err, k.reader.Close())
	}
	return err
}

func toKafka(prefix string, msg Message) kafka.Message {
	out := kafka.Message{
		Topic: prefix + msg.Topic,
		Key:   msg.Key,
		Value: msg.Value,
	}
	for k, v := range msg.Headers {
		out.Headers = append(out.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}

func fromKafka(prefix string, raw kafka.Message) Message {
	msg := Message{
		Topic:  strings.TrimPrefix(raw.Topic, prefix),
		Key:    append([]byte(nil), raw.Key...),
		Value:  append([]byte(nil), raw.Value...),
		Offset: raw.Offset,
		Time:   raw.Time,
	}
	if len(raw.Headers) > 0 {
		msg.Headers = make(map[string]string, len(raw.Headers))
		for _, h := range raw.Headers {
			msg.Headers[h.Key] = string(h.Value)
		}
	}
	return msg
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type kafkaLogger struct {
	logger *zap.Logger
	errors bool
}

func (k kafkaLogger) Printf(msg string, args ...interface{}) {
	if k.errors {
		k.logger.Sugar().Warnf(msg, args...)
		return
	}
	k.logger.Sugar().Debugf(msg, args...)
}
