// Package strategy 实现决策循环：单协程紧轮询，每轮迭代对状态快照求值
// 双向价差，在各闸门放行后发送套利指令并提交绩效指标。
//
// 循环刻意不做任何休眠（只做调度让出），以保证tick-to-trade延迟有界可测。
package strategy

import (
	"context"
	"runtime"

	"github.com/dhruvilB01/PocketTrader/internal/clock"
	"github.com/dhruvilB01/PocketTrader/internal/metrics"
	"github.com/dhruvilB01/PocketTrader/internal/risk"
	"github.com/dhruvilB01/PocketTrader/internal/store"
	"github.com/dhruvilB01/PocketTrader/internal/telemetry"
	"github.com/dhruvilB01/PocketTrader/internal/transport"
	"github.com/rs/zerolog/log"
)

// TradeSender 交易指令发送能力。Ready 在目的地址学习到之前返回false。
type TradeSender interface {
	Ready() bool
	Send(payload []byte) error
}

// StepResult 单轮迭代的结果，用于测试与观测
type StepResult int

const (
	StepHalted      StepResult = iota // kill开关/熔断/模式OFF
	StepStale                         // 报价不新鲜
	StepNoTrade                       // 无套利机会
	StepRateLimited                   // 本秒限速
	StepNoDest                        // 交易目的地址未知
	StepSendFailed                    // 发送失败
	StepTraded                        // 已发送并提交
)

// Engine 决策循环
type Engine struct {
	store  *store.Store
	gates  *risk.Gates
	sender TradeSender
	tel    *telemetry.LatencyLog
	nowNS  func() uint64
}

// NewEngine 创建决策循环
func NewEngine(st *store.Store, gates *risk.Gates, sender TradeSender, tel *telemetry.LatencyLog) *Engine {
	return &Engine{
		store:  st,
		gates:  gates,
		sender: sender,
		tel:    tel,
		nowNS:  clock.NowNS,
	}
}

// Run 运行决策循环直到ctx取消。忙轮询+让出，不做阻塞等待。
func (e *Engine) Run(ctx context.Context) {
	log.Info().
		Uint64("stale_threshold_ns", e.gates.StaleThresholdNS).
		Int("max_trades_per_sec", e.gates.MaxTradesPerSec).
		Float64("pnl_floor", e.gates.PNLFloor).
		Msg("决策循环启动")

	for ctx.Err() == nil {
		e.Step()
		runtime.Gosched()
	}

	log.Info().Msg("决策循环退出")
}

// Step 执行一轮迭代。锁内只做状态拷贝与指标提交，发送等I/O全部在锁外。
func (e *Engine) Step() StepResult {
	nowNS := e.nowNS()

	// 1. 秒边界翻转：清零本秒计数，同时自清限速标志
	if e.gates.RollSecond(nowNS) {
		e.store.SetRateLimited(false)
	}

	// 2. 一致性快照，立即放锁
	snap := e.store.Snapshot()

	// 3. 停机类闸门
	if snap.KillSwitch || snap.CircuitTripped || snap.StrategyMode == store.ModeOff {
		return StepHalted
	}

	// 4. 新鲜度闸门：两个场所都必须在阈值内
	if !e.gates.Fresh(snap.EXA, nowNS) || !e.gates.Fresh(snap.EXB, nowNS) {
		return StepStale
	}

	// 5. 双向价差，无论是否成交都记录
	spreadEXAToEXB := snap.EXB.Bid - snap.EXA.Ask
	spreadEXBToEXA := snap.EXA.Bid - snap.EXB.Ask
	e.store.RecordSpreads(spreadEXAToEXB, spreadEXBToEXA)
	metrics.UpdateSpreads(spreadEXAToEXB, spreadEXBToEXA)

	// 6. 机会选择：先测EXA→EXB，首个满足即用，每轮至多一笔
	var ti transport.TradeInstruction
	switch {
	case spreadEXAToEXB >= snap.MinSpread:
		ti = transport.TradeInstruction{
			LegAVenue: store.VenueEXA.String(), LegASide: "BUY", LegAPrice: snap.EXA.Ask,
			LegBVenue: store.VenueEXB.String(), LegBSide: "SELL", LegBPrice: snap.EXB.Bid,
			Spread: spreadEXAToEXB,
		}
	case spreadEXBToEXA >= snap.MinSpread:
		ti = transport.TradeInstruction{
			LegAVenue: store.VenueEXB.String(), LegASide: "BUY", LegAPrice: snap.EXB.Ask,
			LegBVenue: store.VenueEXA.String(), LegBSide: "SELL", LegBPrice: snap.EXA.Bid,
			Spread: spreadEXBToEXA,
		}
	default:
		return StepNoTrade
	}

	// 7. 限速闸门：达到上限只置标志，不发送
	if e.gates.RateLimited() {
		e.store.SetRateLimited(true)
		metrics.RecordRateLimited()
		return StepRateLimited
	}

	// 8. 目的地址闸门
	if !e.sender.Ready() {
		return StepNoDest
	}

	// 9. 发送交易指令并测量tick-to-trade延迟
	sendNS := e.nowNS()
	lastTickNS := snap.EXA.LastUpdateNS
	if snap.EXB.LastUpdateNS > lastTickNS {
		lastTickNS = snap.EXB.LastUpdateNS
	}
	var tickToTradeNS uint64
	if sendNS > lastTickNS {
		tickToTradeNS = sendNS - lastTickNS
	}

	ti.Size = snap.TradeSize
	ti.SendTSNS = sendNS

	if err := e.sender.Send(ti.Encode()); err != nil {
		log.Error().Err(err).Msg("交易指令发送失败")
		metrics.RecordError("trade_send", "")
		return StepSendFailed
	}
	e.gates.CountTrade()

	// 10. 单临界区提交全部成交指标，含熔断检查
	pnl := (ti.LegBPrice - ti.LegAPrice) * snap.TradeSize
	tripped := e.store.CommitTrade(store.TradeCommit{
		SpreadEXAToEXB: spreadEXAToEXB,
		SpreadEXBToEXA: spreadEXBToEXA,
		TradeTSNS:      sendNS,
		TickToTradeNS:  tickToTradeNS,
		PNL:            pnl,
	}, e.gates.PNLFloor)

	metrics.RecordTrade(ti.LegAVenue, ti.LegBVenue, pnl, tickToTradeNS)
	if tripped {
		metrics.SetCircuitTripped(true)
	}

	log.Debug().
		Str("direction", ti.LegAVenue+"->"+ti.LegBVenue).
		Float64("spread", ti.Spread).
		Float64("pnl", pnl).
		Uint64("tick_to_trade_ns", tickToTradeNS).
		Msg("套利指令已发送")

	// 11. 遥测记录
	e.tel.Append(e.nowNS(), tickToTradeNS, snap.AvgTickIntervalEXANS, snap.AvgTickIntervalEXBNS)

	return StepTraded
}
