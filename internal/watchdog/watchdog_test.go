package watchdog

import (
	"testing"

	"github.com/dhruvilB01/PocketTrader/internal/store"
)

func TestWatchdog_StaleTransitions(t *testing.T) {
	st := store.Open("wd_transitions")
	w := NewWatchdog(Config{StaleThresholdNS: 500_000_000}, st)

	var now uint64 = 1_000_000_000
	w.nowNS = func() uint64 { return now }

	// 未连接的场所不参与巡检
	w.check()
	if w.wasStale[store.VenueEXA] {
		t.Error("Disconnected venue must not be flagged stale")
	}

	// 新鲜报价
	st.ApplyTick(store.VenueEXA, 100, 101, 1, now)
	w.check()
	if w.wasStale[store.VenueEXA] {
		t.Error("Fresh venue flagged stale")
	}

	// 超过阈值后进入stale
	now += 600_000_000
	w.check()
	if !w.wasStale[store.VenueEXA] {
		t.Error("Expected stale transition after threshold")
	}

	// 新行情到达即恢复
	st.ApplyTick(store.VenueEXA, 100, 101, 2, now)
	w.check()
	if w.wasStale[store.VenueEXA] {
		t.Error("Expected recovery after fresh tick")
	}
}

func TestWatchdog_ConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.normalize()

	if cfg.CheckInterval <= 0 {
		t.Error("Expected default check interval")
	}
	if cfg.StaleThresholdNS != 500_000_000 {
		t.Errorf("Expected default threshold 500ms, got %d", cfg.StaleThresholdNS)
	}
}
