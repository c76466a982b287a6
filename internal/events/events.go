package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jayjaytrn/order-management-system/models"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

const traceparentHeader = "traceparent"

var tracer = otel.Tracer("github.com/jayjaytrn/order-management-system/internal/events")

// Publisher announces order status changes. Publishing is best effort; the
// order row stays the source of truth.
type Publisher interface {
	Publish(ctx context.Context, event models.OrderEvent) error
	Close()
}

type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	Logger *zap.SugaredLogger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.SugaredLogger) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProduceRequestTimeout(10*time.Second),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ClientID("order-management-system"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &KafkaPublisher{
		client: client,
		topic:  topic,
		Logger: logger,
	}, nil
}

// EnsureTopic creates the event topic when the cluster does not have it yet.
func (p *KafkaPublisher) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	ctx, span := tracer.Start(ctx, "KafkaPublisher.EnsureTopic")
	defer span.End()

	admin := kadm.NewClient(p.client)
	topics, err := admin.ListTopics(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to list topics: %w", err)
	}
	if topics.Has(p.topic) {
		span.SetAttributes(attribute.Bool("topic.exists", true))
		return nil
	}

	resp, err := admin.CreateTopic(ctx, partitions, replicationFactor, nil, p.topic)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create topic %s: %w", p.topic, err)
	}
	if resp.Err != nil {
		span.RecordError(resp.Err)
		return fmt.Errorf("failed to create topic %s: %w", p.topic, resp.Err)
	}
	span.SetAttributes(attribute.Bool("topic.created", true))
	p.Logger.Infow("kafka topic created", "topic", p.topic)
	return nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, event models.OrderEvent) error {
	ctx, span := tracer.Start(ctx, "KafkaPublisher.Publish")
	defer span.End()
	span.SetAttributes(
		attribute.String("kafka.topic", p.topic),
		attribute.String("order.id", event.OrderID),
		attribute.String("order.status", event.Status.String()),
	)

	record, err := NewRecord(ctx, event)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to produce order event: %w", err)
	}
	p.Logger.Debugw("order event published", "order_id", event.OrderID, "status", event.Status)
	return nil
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}

// NewRecord builds the Kafka record of an event: keyed by order id so all
// events of one order land on one partition, with the trace context of ctx
// in the traceparent header.
func NewRecord(ctx context.Context, event models.OrderEvent) (*kgo.Record, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order event: %w", err)
	}
	return &kgo.Record{
		Key:     []byte(event.OrderID),
		Value:   data,
		Headers: traceHeaders(ctx),
	}, nil
}

func traceHeaders(ctx context.Context) []kgo.RecordHeader {
	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)

	traceparent, ok := carrier[traceparentHeader]
	if !ok {
		return nil
	}
	return []kgo.RecordHeader{{Key: traceparentHeader, Value: []byte(traceparent)}}
}

// NopPublisher drops every event. It is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.OrderEvent) error { return nil }

func (NopPublisher) Close() {}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []models.OrderEvent
}

func (r *Recorder) Publish(_ context.Context, event models.OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Close() {}

func (r *Recorder) Events() []models.OrderEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.OrderEvent(nil), r.events...)
}
