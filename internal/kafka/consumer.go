package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/laimis/stock-analysis-sub003/internal/models"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TradeHandler applies a parsed fill to the user's positions
type TradeHandler interface {
	HandleTrade(ctx context.Context, trade models.Trade) error
}

// messageReader is the part of kafka.Reader the consumer uses
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
	Config() kafka.ReaderConfig
}

// Consumer reads trade events and hands each fill to a TradeHandler
type Consumer struct {
	reader  messageReader
	handler TradeHandler
	logger  *zap.Logger
	now     func() time.Time
}

// NewConsumer creates a new Kafka consumer for trade events
func NewConsumer(brokers []string, topic, groupID string, handler TradeHandler, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return newConsumer(reader, handler, logger)
}

func newConsumer(reader messageReader, handler TradeHandler, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{reader: reader, handler: handler, logger: logger, now: time.Now}
}

// Start consumes until ctx is cancelled. Bad messages are logged and skipped.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("starting trade consumer", zap.String("topic", c.reader.Config().Topic))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("trade consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return c.reader.Close()
				}
				c.logger.Error("error reading message", zap.Error(err))
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				c.logger.Error("error processing message",
					zap.Int("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
					zap.Error(err))
			}
		}
	}
}

// processMessage handles a single Kafka message
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event models.TradeEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal trade event: %w", err)
	}

	if event.EventType != models.EventTypeTradeDetected {
		c.logger.Debug("ignoring event", zap.String("event_type", event.EventType))
		return nil
	}

	trade, err := c.convertEventToTrade(event)
	if err != nil {
		return fmt.Errorf("failed to convert trade event: %w", err)
	}

	if err := c.handler.HandleTrade(ctx, trade); err != nil {
		return fmt.Errorf("failed to apply trade %s: %w", trade.OrderID, err)
	}

	c.logger.Info("applied trade",
		zap.String("order_id", trade.OrderID),
		zap.String("symbol", trade.Symbol),
		zap.String("side", trade.Side),
		zap.String("quantity", trade.Quantity.String()),
		zap.String("price", trade.Price.String()))
	return nil
}

// convertEventToTrade maps a TradeEvent to a Trade
func (c *Consumer) convertEventToTrade(event models.TradeEvent) (models.Trade, error) {
	data := event.Data

	userID, err := uuid.Parse(data.UserID)
	if err != nil {
		return models.Trade{}, fmt.Errorf("invalid user id %q: %w", data.UserID, err)
	}

	quantity, err := decimal.NewFromString(data.Quantity)
	if err != nil {
		return models.Trade{}, fmt.Errorf("invalid quantity %s: %w", data.Quantity, err)
	}

	price, err := decimal.NewFromString(data.AveragePrice)
	if err != nil {
		return models.Trade{}, fmt.Errorf("invalid price %s: %w", data.AveragePrice, err)
	}

	side := strings.ToUpper(data.Side)
	if side != models.TradeTypeBuy && side != models.TradeTypeSell {
		return models.Trade{}, fmt.Errorf("invalid trade side: %s", data.Side)
	}

	symbol := strings.ToUpper(strings.TrimSpace(data.Symbol))
	if symbol == "" {
		return models.Trade{}, fmt.Errorf("missing symbol in order %s", data.OrderID)
	}

	return models.Trade{
		OrderID:    data.OrderID,
		Source:     event.Source,
		UserID:     userID,
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		Price:      price,
		ExecutedAt: c.executedAt(data.ExecutedAt),
	}, nil
}

// executedAt accepts RFC3339 or a zone-less timestamp, falling back to now
func (c *Consumer) executedAt(raw *string) time.Time {
	if raw == nil || *raw == "" {
		return c.now()
	}
	if t, err := time.Parse(time.RFC3339, *raw); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05", *raw); err == nil {
		return t
	}
	return c.now()
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
