package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/navid-fn/premiumradar/internal/models"
	"github.com/segmentio/kafka-go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter returns a synchronous writer so publish errors reach the
// caller.
func NewKafkaWriter(broker, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Zstd,
	}
}

// KafkaPublisher writes one message per market, keyed by market so a
// market's records stay ordered within a partition.
type KafkaPublisher struct {
	writer MessageWriter
}

func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Name() string { return "kafka" }

func (p *KafkaPublisher) Publish(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		value, err := EncodeRecord(r)
		if err != nil {
			return fmt.Errorf("encode %s: %w", r.Coin, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(r.Coin),
			Value: value,
		})
	}

	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }

// EncodeRecord serializes r as a protobuf Struct keyed by column name.
func EncodeRecord(r models.Record) ([]byte, error) {
	s, err := structpb.NewStruct(r.Fields())
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

// DecodeRecord is the inverse of EncodeRecord, returning the column map.
func DecodeRecord(data []byte) (map[string]any, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return s.AsMap(), nil
}
