// Package risk 汇集决策循环的全部风险闸门：报价新鲜度、每秒交易限速、
// 累计PnL熔断下限。闸门本身不做I/O，由决策循环在每轮迭代里调用。
package risk

import "github.com/dhruvilB01/PocketTrader/internal/store"

const nsPerSecond = 1_000_000_000

// Gates 风险闸门。秒窗口计数只被决策循环单线程访问，不需要加锁。
type Gates struct {
	StaleThresholdNS uint64
	MaxTradesPerSec  int
	PNLFloor         float64

	secondStartNS  uint64
	tradesInSecond int
}

// NewGates 创建闸门集合
func NewGates(staleThresholdNS uint64, maxTradesPerSec int, pnlFloor float64) *Gates {
	return &Gates{
		StaleThresholdNS: staleThresholdNS,
		MaxTradesPerSec:  maxTradesPerSec,
		PNLFloor:         pnlFloor,
	}
}

// RollSecond 基于单调时钟的秒边界翻转。跨秒时清零本秒交易计数并返回true。
func (g *Gates) RollSecond(nowNS uint64) bool {
	if g.secondStartNS == 0 {
		g.secondStartNS = nowNS
		return false
	}
	if nowNS-g.secondStartNS >= nsPerSecond {
		g.secondStartNS = nowNS
		g.tradesInSecond = 0
		return true
	}
	return false
}

// Fresh 报价是否新鲜：已连接且年龄未超过阈值
func (g *Gates) Fresh(q store.Quote, nowNS uint64) bool {
	return q.Connected && nowNS-q.LastUpdateNS < g.StaleThresholdNS
}

// RateLimited 本秒交易数是否已达上限
func (g *Gates) RateLimited() bool {
	return g.tradesInSecond >= g.MaxTradesPerSec
}

// CountTrade 记入一笔已发送的交易
func (g *Gates) CountTrade() {
	g.tradesInSecond++
}

// TradesThisSecond 本秒已发送的交易数
func (g *Gates) TradesThisSecond() int {
	return g.tradesInSecond
}
