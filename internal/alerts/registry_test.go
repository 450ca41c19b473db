package alerts

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/laimis/stock-analysis-sub003/internal/monitors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var (
	alice = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	bob   = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	t0    = time.Date(2024, 6, 5, 14, 0, 0, 0, time.UTC)
)

func TestRegistry_RegisterDedups(t *testing.T) {
	r := NewRegistry(0)

	assert.True(t, r.Register(monitors.NewPriceStopMonitor(alice, "AMD", d("27.5"))))
	assert.False(t, r.Register(monitors.NewPriceStopMonitor(alice, "AMD", d("27.50"))), "same threshold is the same monitor")
	assert.True(t, r.Register(monitors.NewPriceStopMonitor(alice, "AMD", d("26"))))
	assert.True(t, r.Register(monitors.NewPriceStopMonitor(bob, "AMD", d("27.5"))))
	assert.False(t, r.Register(nil))

	assert.Equal(t, 3, r.Len())
}

func TestRegistry_Deregister(t *testing.T) {
	r := NewRegistry(0)
	r.Register(monitors.NewPriceStopMonitor(alice, "AMD", d("27.5")))
	r.Register(monitors.NewPriceStopMonitor(alice, "AMD", d("26")))
	r.Register(monitors.NewPriceStopMonitor(alice, "NVDA", d("100")))
	r.Register(monitors.NewPriceStopMonitor(bob, "AMD", d("27.5")))

	assert.Equal(t, 2, r.Deregister("AMD", alice, monitors.KindStopPrice))
	assert.Equal(t, 0, r.Deregister("AMD", alice, monitors.KindStopPrice))
	assert.Equal(t, 0, r.Deregister("AMD", bob, monitors.KindProfitTarget))
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_SyncKeepsUnchangedMonitors(t *testing.T) {
	r := NewRegistry(0)
	kept := monitors.NewPriceStopMonitor(alice, "AMD", d("27.5"))
	r.Register(kept)
	r.Register(monitors.NewPriceStopMonitor(alice, "AMD", d("26")))
	r.Register(monitors.NewPriceStopMonitor(alice, "NVDA", d("100")))

	_, fired := r.Check(kept.Key(), "AMD", d("27"), t0)
	require.True(t, fired)

	added, removed := r.Sync("AMD", alice, []*monitors.Monitor{
		monitors.NewPriceStopMonitor(alice, "AMD", d("27.5")),
		monitors.NewPriceStopMonitor(alice, "AMD", d("25")),
	}, monitors.KindStopPrice, monitors.KindProfitTarget)
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 3, r.Len())

	_, fired = r.Check(kept.Key(), "AMD", d("26.5"), t0.Add(time.Minute))
	assert.False(t, fired, "kept monitor remembers it already fired")

	added, removed = r.Sync("AMD", alice, nil, monitors.KindProfitTarget)
	assert.Zero(t, added)
	assert.Zero(t, removed, "kinds outside the sync are left alone")
}

func TestRegistry_CheckRecordsHistoryOnce(t *testing.T) {
	r := NewRegistry(0)
	m := monitors.NewPriceStopMonitor(alice, "AMD", d("27.5"))
	r.Register(m)
	key := m.Key()

	_, fired := r.Check(key, "AMD", d("30"), t0)
	assert.False(t, fired)

	alert, fired := r.Check(key, "AMD", d("27"), t0.Add(time.Minute))
	require.True(t, fired)
	assert.Equal(t, "AMD", alert.Ticker)

	_, fired = r.Check(key, "AMD", d("26"), t0.Add(2*time.Minute))
	assert.False(t, fired, "still breached does not fire again")

	current := r.GetAlerts(alice)
	require.Len(t, current, 1)
	assert.True(t, d("26").Equal(current[0].TriggeredValue), "current alert follows the price")

	assert.Len(t, r.GetRecentlyTriggered(alice), 1)
	assert.Empty(t, r.GetRecentlyTriggered(bob))

	_, fired = r.Check(key, "AMD", d("29"), t0.Add(3*time.Minute))
	assert.False(t, fired)
	assert.Empty(t, r.GetAlerts(alice), "recovery clears the current alert")
	assert.Len(t, r.GetRecentlyTriggered(alice), 1, "history survives recovery")

	_, fired = r.Check("missing", "AMD", d("1"), t0)
	assert.False(t, fired)
}

func TestRegistry_HistoryLimit(t *testing.T) {
	r := NewRegistry(2)
	for i, price := range []string{"10", "20", "30"} {
		m := monitors.NewPriceStopMonitor(alice, "AMD", d(price))
		r.Register(m)
		_, fired := r.Check(m.Key(), "AMD", d("5"), t0.Add(time.Duration(i)*time.Minute))
		require.True(t, fired)
	}

	recent := r.GetRecentlyTriggered(alice)
	require.Len(t, recent, 2)
	assert.True(t, d("30").Equal(recent[0].WatchedValue), "most recent first")
	assert.True(t, d("20").Equal(recent[1].WatchedValue))
}

func TestRegistry_Ordering(t *testing.T) {
	r := NewRegistry(0)
	nvda := monitors.NewPriceStopMonitor(alice, "NVDA", d("100"))
	amd := monitors.NewPriceStopMonitor(alice, "AMD", d("27.5"))
	zm := monitors.NewPriceStopMonitor(alice, "ZM", d("60"))
	r.Register(nvda)
	r.Register(amd)
	r.Register(zm)

	r.Check(zm.Key(), "ZM", d("50"), t0)

	ms := r.GetMonitors(alice)
	require.Len(t, ms, 3)
	assert.Equal(t, "ZM", ms[0].Ticker, "triggered first")
	assert.Equal(t, "AMD", ms[1].Ticker)
	assert.Equal(t, "NVDA", ms[2].Ticker)

	r.Check(amd.Key(), "AMD", d("20"), t0)
	r.Check(nvda.Key(), "NVDA", d("90"), t0.Add(time.Minute))

	as := r.GetAlerts(alice)
	require.Len(t, as, 3)
	assert.Equal(t, "NVDA", as[0].Ticker, "most recent first")
	assert.Equal(t, "AMD", as[1].Ticker, "ties break on ticker")
	assert.Equal(t, "ZM", as[2].Ticker)
}

func TestRegistry_SnapshotsAreCopies(t *testing.T) {
	r := NewRegistry(0)
	r.Register(monitors.NewPriceStopMonitor(alice, "AMD", d("27.5")))
	r.Register(monitors.NewGapUpMonitor(alice, monitors.Gap{Ticker: "AMD", Date: t0, GapPct: d("0.05")}))

	snap := r.Snapshot(monitors.KindStopPrice)
	require.Len(t, snap, 1)
	snap[0].Threshold = d("1")
	snap[0].Triggered = true

	again := r.Snapshot(monitors.KindStopPrice)
	assert.True(t, d("27.5").Equal(again[0].Threshold))
	assert.False(t, again[0].Triggered)

	assert.Len(t, r.Snapshot(), 2)
}

func TestRegistry_ManualRunIsDebounced(t *testing.T) {
	r := NewRegistry(0)
	r.RequestManualRun()
	r.RequestManualRun()
	r.RequestManualRun()

	select {
	case <-r.ManualRuns():
	default:
		t.Fatal("expected a pending manual run")
	}

	select {
	case <-r.ManualRuns():
		t.Fatal("requests should collapse into one")
	default:
	}
}

func TestRegistry_PruneAnnounced(t *testing.T) {
	r := NewRegistry(0)
	old := monitors.NewGapUpMonitor(alice, monitors.Gap{Ticker: "AMD", Date: t0, GapPct: d("0.05")})
	fresh := monitors.NewGapUpMonitor(alice, monitors.Gap{Ticker: "NVDA", Date: t0, GapPct: d("0.03")})
	pending := monitors.NewGapUpMonitor(alice, monitors.Gap{Ticker: "ZM", Date: t0, GapPct: d("0.04")})
	r.Register(old)
	r.Register(fresh)
	r.Register(pending)
	r.Register(monitors.NewPriceStopMonitor(alice, "AMD", d("1")))

	r.Check(old.Key(), "AMD", d("10"), t0)
	r.Check(fresh.Key(), "NVDA", d("10"), t0.Add(48*time.Hour))

	assert.Equal(t, 1, r.PruneAnnounced(t0.Add(24*time.Hour)))
	assert.Equal(t, 3, r.Len())
}

func TestRegistry_Close(t *testing.T) {
	r := NewRegistry(0)
	r.Register(monitors.NewPriceStopMonitor(alice, "AMD", d("27.5")))
	r.Close()

	assert.Equal(t, 0, r.Len())
	assert.False(t, r.Register(monitors.NewPriceStopMonitor(alice, "AMD", d("27.5"))))
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry(0)
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m := monitors.NewPriceStopMonitor(alice, "AMD", decimal.NewFromInt(int64(i*100+j+1)))
				r.Register(m)
				r.Check(m.Key(), "AMD", d("150"), t0)
				r.GetAlerts(alice)
				r.Snapshot()
				r.RequestManualRun()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 400, r.Len())
}
