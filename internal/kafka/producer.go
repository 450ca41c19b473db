package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/laimis/stock-analysis-sub003/internal/models"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of kafka.Writer the producer uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes alert and position events
type Producer struct {
	writer         messageWriter
	alertsTopic    string
	positionsTopic string
	now            func() time.Time
}

// NewProducer creates a producer writing to the alerts and positions topics
func NewProducer(brokers []string, alertsTopic, positionsTopic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}
	return newProducer(writer, alertsTopic, positionsTopic)
}

func newProducer(writer messageWriter, alertsTopic, positionsTopic string) *Producer {
	return &Producer{
		writer:         writer,
		alertsTopic:    alertsTopic,
		positionsTopic: positionsTopic,
		now:            time.Now,
	}
}

// PublishAlert publishes an ALERT_TRIGGERED event keyed by user
func (p *Producer) PublishAlert(ctx context.Context, alert *models.TriggeredAlert) error {
	event := models.AlertEvent{
		EventType: models.EventTypeAlertTriggered,
		Alert:     alert,
		Timestamp: p.now(),
	}
	return p.publish(ctx, p.alertsTopic, alert.UserID.String(), event)
}

// PublishPositionOpened publishes a POSITION_OPENED event
func (p *Producer) PublishPositionOpened(ctx context.Context, summary *models.PositionSummary) error {
	return p.publishPosition(ctx, models.EventTypePositionOpened, summary)
}

// PublishPositionClosed publishes a POSITION_CLOSED event
func (p *Producer) PublishPositionClosed(ctx context.Context, summary *models.PositionSummary) error {
	return p.publishPosition(ctx, models.EventTypePositionClosed, summary)
}

func (p *Producer) publishPosition(ctx context.Context, eventType string, summary *models.PositionSummary) error {
	event := models.PositionEvent{
		EventType: eventType,
		Position:  summary,
		Timestamp: p.now(),
	}
	return p.publish(ctx, p.positionsTopic, summary.UserID.String()+":"+summary.Ticker, event)
}

func (p *Producer) publish(ctx context.Context, topic, key string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
