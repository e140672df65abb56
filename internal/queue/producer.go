// Package queue is the alternate sink: instead of writing the store
// directly, each feed record is serialized onto the new_sales topic
// for a downstream consumer to reconcile.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/landreg/housesync/internal/feed"
)

// DefaultTopic is the topic downstream consumers read sales from.
const DefaultTopic = "new_sales"

// message is the wire shape of one record on the topic.
type message struct {
	TUI          string `json:"tui"`
	Price        string `json:"price"`
	Date         string `json:"date"`
	Postcode     string `json:"postcode"`
	PropertyType string `json:"property_type"`
	NewBuild     string `json:"new_build"`
	Tenure       string `json:"tenure"`
	PAON         string `json:"paon"`
	SAON         string `json:"saon"`
	Street       string `json:"street"`
	Locality     string `json:"locality"`
	Town         string `json:"town"`
	District     string `json:"district"`
	County       string `json:"county"`
	PPDCategory  string `json:"ppd_cat"`
	Action       string `json:"action"`
}

// Producer publishes feed records. Writes are synchronous: a full
// buffer blocks the batch engine instead of dropping records.
type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewProducer(bootstrap, topic string, logger *zap.Logger) *Producer {
	if topic == "" {
		topic = DefaultTopic
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(bootstrap),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 100 * time.Millisecond,
		Async:        false,
	}
	return &Producer{
		writer: writer,
		logger: logger.Named("queue"),
	}
}

// ApplyRecord publishes one record keyed by its tui, so every mutation
// for a transaction lands on the same partition in order.
func (p *Producer) ApplyRecord(ctx context.Context, rec feed.Record) error {
	value, err := json.Marshal(message{
		TUI:          rec.TUI,
		Price:        rec.Price,
		Date:         rec.Date,
		Postcode:     rec.Postcode,
		PropertyType: rec.PropertyType,
		NewBuild:     rec.NewBuild,
		Tenure:       rec.Tenure,
		PAON:         rec.PAON,
		SAON:         rec.SAON,
		Street:       rec.Street,
		Locality:     rec.Locality,
		Town:         rec.Town,
		District:     rec.District,
		County:       rec.County,
		PPDCategory:  rec.PPDCategory,
		Action:       string(rec.Action),
	})
	if err != nil {
		return fmt.Errorf("marshal record %q: %w", rec.TUI, err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rec.TUI),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("publish record %q: %w", rec.TUI, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
