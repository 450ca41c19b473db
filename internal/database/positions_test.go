package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/laimis/stock-analysis-sub003/internal/position"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPositionsRepository(t *testing.T) {
	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)

	ctx := context.Background()
	userID := uuid.New()
	opened := time.Date(2024, 2, 1, 15, 0, 0, 0, time.UTC)

	newPosition := func(t *testing.T, ticker string) *PositionRecord {
		p := position.NewInstance(ticker)
		require.NoError(t, p.Buy(d("10"), d("30"), opened, "o1"))
		require.NoError(t, p.Buy(d("10"), d("35"), opened.Add(time.Hour), "o2"))
		p.SetStopPrice(d("27.5"), opened)
		return &PositionRecord{ID: uuid.New(), UserID: userID, Position: p}
	}

	t.Run("SavePosition round-trips an open position", func(t *testing.T) {
		testDB.TruncateAll(t)
		rec := newPosition(t, "AMD")
		require.NoError(t, testDB.SavePosition(ctx, rec))

		got, err := testDB.GetOpenPosition(ctx, userID, "AMD")
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)

		p := got.Position
		assert.True(t, d("20").Equal(p.OpenQuantity()))
		assert.True(t, d("32.5").Equal(p.AverageCost()))
		require.NotNil(t, p.StopPrice)
		assert.True(t, d("27.5").Equal(*p.StopPrice))
		assert.True(t, d("100").Equal(p.RiskedAmount))
		assert.True(t, opened.Equal(p.Opened))
		assert.Len(t, p.Buys, 2)
	})

	t.Run("SavePosition appends new fills only", func(t *testing.T) {
		testDB.TruncateAll(t)
		rec := newPosition(t, "AMD")
		require.NoError(t, testDB.SavePosition(ctx, rec))

		require.NoError(t, rec.Position.Sell(d("5"), d("40"), opened.AddDate(0, 0, 3), "o3"))
		require.NoError(t, testDB.SavePosition(ctx, rec))
		require.NoError(t, testDB.SavePosition(ctx, rec))

		var count int
		err := testDB.GetRawConn().QueryRow(`SELECT COUNT(*) FROM position_transactions WHERE position_id = $1`, rec.ID).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		got, err := testDB.GetOpenPosition(ctx, userID, "AMD")
		require.NoError(t, err)
		assert.True(t, d("15").Equal(got.Position.OpenQuantity()))
		assert.True(t, d("37.5").Equal(got.Position.RealizedProfit()))
	})

	t.Run("closed positions keep their risk basis and grade", func(t *testing.T) {
		testDB.TruncateAll(t)
		rec := newPosition(t, "NVDA")
		p := rec.Position
		p.SetStopPrice(d("33"), opened.AddDate(0, 0, 1))
		require.NoError(t, p.Sell(d("20"), d("33"), opened.AddDate(0, 0, 2), "o3"))
		p.SetGrade("B", "took the stop")
		require.NoError(t, testDB.SavePosition(ctx, rec))

		_, err := testDB.GetOpenPosition(ctx, userID, "NVDA")
		assert.True(t, IsNotFound(err))

		got, err := testDB.GetLatestPosition(ctx, userID, "NVDA")
		require.NoError(t, err)
		assert.True(t, got.Position.IsClosed())
		assert.True(t, d("100").Equal(got.Position.RiskedAmount), "risk basis comes from the first stop")
		require.NotNil(t, got.Position.FirstStop)
		assert.True(t, d("27.5").Equal(*got.Position.FirstStop))
		assert.True(t, d("0.1").Equal(got.Position.RR()))
		assert.Equal(t, "B", got.Position.Grade)
		assert.Equal(t, "took the stop", got.Position.GradeNote)
	})

	t.Run("GetPositionsByUser filters closed positions", func(t *testing.T) {
		testDB.TruncateAll(t)
		open := newPosition(t, "AMD")
		require.NoError(t, testDB.SavePosition(ctx, open))

		closed := newPosition(t, "ZM")
		require.NoError(t, closed.Position.Sell(d("20"), d("40"), opened.AddDate(0, 0, 5), "o9"))
		require.NoError(t, testDB.SavePosition(ctx, closed))

		other := newPosition(t, "AMD")
		other.UserID = uuid.New()
		require.NoError(t, testDB.SavePosition(ctx, other))

		openOnly, err := testDB.GetPositionsByUser(ctx, userID, false)
		require.NoError(t, err)
		require.Len(t, openOnly, 1)
		assert.Equal(t, "AMD", openOnly[0].Position.Ticker)

		all, err := testDB.GetPositionsByUser(ctx, userID, true)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		everyone, err := testDB.GetAllOpenPositions(ctx)
		require.NoError(t, err)
		assert.Len(t, everyone, 2)
	})

	t.Run("DeletePosition removes transactions", func(t *testing.T) {
		testDB.TruncateAll(t)
		rec := newPosition(t, "AMD")
		require.NoError(t, testDB.SavePosition(ctx, rec))

		require.NoError(t, testDB.DeletePosition(ctx, rec.ID))
		assert.True(t, IsNotFound(testDB.DeletePosition(ctx, rec.ID)))

		var count int
		err := testDB.GetRawConn().QueryRow(`SELECT COUNT(*) FROM position_transactions`).Scan(&count)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("SavePosition rejects empty positions", func(t *testing.T) {
		err := testDB.SavePosition(ctx, &PositionRecord{ID: uuid.New(), UserID: userID, Position: position.NewInstance("AMD")})
		assert.Error(t, err)
	})
}
