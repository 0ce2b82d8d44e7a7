// Package watchdog 周期巡检两个场所的报价年龄，记录断流/恢复转换，
// 并刷新绩效类Prometheus指标。只做观测：交易路径的新鲜度闸门
// 由决策循环自己执行，看门狗不参与任何交易决策。
package watchdog

import (
	"context"
	"sync"
	"time"

	"github.com/dhruvilB01/PocketTrader/internal/clock"
	"github.com/dhruvilB01/PocketTrader/internal/metrics"
	"github.com/dhruvilB01/PocketTrader/internal/store"
	"github.com/rs/zerolog/log"
)

// Config 看门狗配置
type Config struct {
	CheckInterval    time.Duration
	StaleThresholdNS uint64
}

func (c *Config) normalize() {
	if c.CheckInterval <= 0 {
		c.CheckInterval = time.Second
	}
	if c.StaleThresholdNS == 0 {
		c.StaleThresholdNS = 500_000_000
	}
}

// Watchdog 行情断流看门狗
type Watchdog struct {
	cfg   Config
	store *store.Store
	nowNS func() uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup

	wasStale map[store.Venue]bool
}

// NewWatchdog 创建看门狗
func NewWatchdog(cfg Config, st *store.Store) *Watchdog {
	cfg.normalize()
	return &Watchdog{
		cfg:      cfg,
		store:    st,
		nowNS:    clock.NowNS,
		wasStale: make(map[store.Venue]bool),
	}
}

// Start 启动看门狗
func (w *Watchdog) Start(ctx context.Context) {
	childCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.runLoop(childCtx)
	}()
}

// Stop 停止看门狗
func (w *Watchdog) Stop() {
	if w.cancel != nil {
		w.cancel()
		w.wg.Wait()
	}
}

func (w *Watchdog) runLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watchdog) check() {
	snap := w.store.Snapshot()
	now := w.nowNS()

	w.checkVenue(store.VenueEXA, snap.EXA, now)
	w.checkVenue(store.VenueEXB, snap.EXB, now)

	metrics.UpdateVenueInterval(store.VenueEXA.String(), snap.AvgTickIntervalEXANS)
	metrics.UpdateVenueInterval(store.VenueEXB.String(), snap.AvgTickIntervalEXBNS)
	metrics.UpdatePerformance(snap.CumulativePNL, snap.EquityHigh, snap.MaxDrawdown)
	metrics.SetCircuitTripped(snap.CircuitTripped)
}

func (w *Watchdog) checkVenue(v store.Venue, q store.Quote, nowNS uint64) {
	if !q.Connected {
		return
	}

	stale := nowNS-q.LastUpdateNS >= w.cfg.StaleThresholdNS
	if stale && !w.wasStale[v] {
		log.Warn().
			Str("venue", v.String()).
			Uint64("age_ns", nowNS-q.LastUpdateNS).
			Msg("场所行情超时，报价已stale")
	} else if !stale && w.wasStale[v] {
		log.Info().Str("venue", v.String()).Msg("场所行情恢复")
	}
	w.wasStale[v] = stale
}
