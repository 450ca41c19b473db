package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/laimis/stock-analysis-sub003/internal/models"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *mockWriter) Close() error { return nil }

func TestProducer(t *testing.T) {
	userID := uuid.New()
	now := time.Date(2024, 6, 5, 14, 0, 0, 0, time.UTC)

	newTestProducer := func() (*Producer, *mockWriter) {
		w := &mockWriter{}
		p := newProducer(w, "trading.alerts", "trading.positions")
		p.now = func() time.Time { return now }
		return p, w
	}

	t.Run("PublishAlert", func(t *testing.T) {
		p, w := newTestProducer()
		alert := &models.TriggeredAlert{
			ID:             uuid.New(),
			UserID:         userID,
			Ticker:         "AMD",
			Kind:           models.MonitorKindStopPrice,
			Description:    "Stop price",
			TriggeredValue: decimal.RequireFromString("27.1"),
			WatchedValue:   decimal.RequireFromString("27.5"),
			AlertType:      models.AlertTypeNegative,
			When:           now,
		}
		require.NoError(t, p.PublishAlert(context.Background(), alert))
		require.Len(t, w.msgs, 1)

		msg := w.msgs[0]
		assert.Equal(t, "trading.alerts", msg.Topic)
		assert.Equal(t, userID.String(), string(msg.Key))

		var event models.AlertEvent
		require.NoError(t, json.Unmarshal(msg.Value, &event))
		assert.Equal(t, models.EventTypeAlertTriggered, event.EventType)
		assert.Equal(t, "AMD", event.Alert.Ticker)
		assert.True(t, now.Equal(event.Timestamp))
	})

	t.Run("position events go to the positions topic", func(t *testing.T) {
		p, w := newTestProducer()
		summary := &models.PositionSummary{UserID: userID, Ticker: "NVDA", OpenQuantity: decimal.NewFromInt(5)}
		require.NoError(t, p.PublishPositionOpened(context.Background(), summary))
		require.NoError(t, p.PublishPositionClosed(context.Background(), summary))
		require.Len(t, w.msgs, 2)

		var opened, closed models.PositionEvent
		require.NoError(t, json.Unmarshal(w.msgs[0].Value, &opened))
		require.NoError(t, json.Unmarshal(w.msgs[1].Value, &closed))
		assert.Equal(t, models.EventTypePositionOpened, opened.EventType)
		assert.Equal(t, models.EventTypePositionClosed, closed.EventType)
		assert.Equal(t, "trading.positions", w.msgs[1].Topic)
		assert.Equal(t, userID.String()+":NVDA", string(w.msgs[1].Key))
	})

	t.Run("write errors are wrapped", func(t *testing.T) {
		p, w := newTestProducer()
		w.err = errors.New("broker down")
		err := p.PublishAlert(context.Background(), &models.TriggeredAlert{UserID: userID})
		assert.ErrorContains(t, err, "broker down")
	})
}
