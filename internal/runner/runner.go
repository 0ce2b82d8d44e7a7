package runner

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/dhruvilB01/PocketTrader/internal/config"
	"github.com/dhruvilB01/PocketTrader/internal/feed"
	"github.com/dhruvilB01/PocketTrader/internal/risk"
	"github.com/dhruvilB01/PocketTrader/internal/store"
	"github.com/dhruvilB01/PocketTrader/internal/strategy"
	"github.com/dhruvilB01/PocketTrader/internal/telemetry"
	"github.com/dhruvilB01/PocketTrader/internal/transport"
	"github.com/dhruvilB01/PocketTrader/internal/watchdog"
	"github.com/rs/zerolog/log"
)

// Runner 核心运行器：两个行情接收协程 + 一个决策循环 + 看门狗。
// 共享状态复合体是它们之间唯一的同步边界。
type Runner struct {
	cfg    *config.Config
	store  *store.Store
	sender *transport.TradeSender
	engine *strategy.Engine
	wd     *watchdog.Watchdog
	tel    *telemetry.LatencyLog

	exaConn *net.UDPConn
	exbConn *net.UDPConn

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	stopped bool
	mu      sync.Mutex
}

// NewRunner 创建Runner实例
func NewRunner(cfg *config.Config, st *store.Store) (*Runner, error) {
	sender, err := transport.NewTradeSender(cfg.Engine.TradePort)
	if err != nil {
		return nil, fmt.Errorf("创建交易发送器失败: %w", err)
	}

	tel := telemetry.OpenLatencyLog(cfg.Engine.LatencyLogPath)

	gates := risk.NewGates(
		cfg.StaleThresholdNS(),
		cfg.Strategy.MaxTradesPerSec,
		cfg.Strategy.PNLLimit,
	)

	return &Runner{
		cfg:    cfg,
		store:  st,
		sender: sender,
		engine: strategy.NewEngine(st, gates, sender, tel),
		wd: watchdog.NewWatchdog(watchdog.Config{
			StaleThresholdNS: cfg.StaleThresholdNS(),
		}, st),
		tel: tel,
	}, nil
}

// Start 启动Runner：绑定行情端口、拉起全部协程
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return fmt.Errorf("runner已停止，无法重新启动")
	}
	r.mu.Unlock()

	var err error
	if r.exaConn, err = transport.ListenUDP(r.cfg.Engine.EXAPort); err != nil {
		return fmt.Errorf("EXA行情端口绑定失败: %w", err)
	}
	if r.exbConn, err = transport.ListenUDP(r.cfg.Engine.EXBPort); err != nil {
		r.exaConn.Close()
		return fmt.Errorf("EXB行情端口绑定失败: %w", err)
	}

	log.Info().
		Int("exa_port", r.cfg.Engine.EXAPort).
		Int("exb_port", r.cfg.Engine.EXBPort).
		Int("trade_port", r.cfg.Engine.TradePort).
		Msg("行情端口绑定完成")

	childCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	// 每个场所一个独立接收协程
	receivers := []*feed.Receiver{
		feed.NewReceiver(store.VenueEXA, r.exaConn, r.store, r.sender),
		feed.NewReceiver(store.VenueEXB, r.exbConn, r.store, r.sender),
	}
	for _, rcv := range receivers {
		r.wg.Add(1)
		go func(rcv *feed.Receiver) {
			defer r.wg.Done()
			rcv.Run()
		}(rcv)
	}

	// 决策循环
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.engine.Run(childCtx)
	}()

	// 看门狗
	r.wd.Start(childCtx)

	log.Info().Msg("Runner启动完成")
	return nil
}

// Stop 停止Runner：关闭socket解除接收阻塞，等待全部协程退出
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}
	if r.exaConn != nil {
		r.exaConn.Close()
	}
	if r.exbConn != nil {
		r.exbConn.Close()
	}

	r.wd.Stop()
	r.wg.Wait()

	r.sender.Close()
	r.tel.Close()

	log.Info().Msg("Runner已停止")
}
