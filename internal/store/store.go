package store

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Venue 交易所标识（本系统固定两个场所）
type Venue int

const (
	VenueEXA Venue = iota
	VenueEXB
)

func (v Venue) String() string {
	if v == VenueEXA {
		return "EXA"
	}
	return "EXB"
}

// Mode 策略模式
type Mode int32

const (
	ModeOff     Mode = 0 // 停止交易
	ModeMonitor Mode = 1 // 仅监控
	ModeActive  Mode = 2 // 正常交易
)

func (m Mode) String() string {
	switch m {
	case ModeMonitor:
		return "MONITOR"
	case ModeActive:
		return "ACTIVE"
	default:
		return "OFF"
	}
}

// MarshalJSON 模式以字符串形式对外呈现
func (m Mode) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON 接受字符串形式的模式
func (m *Mode) UnmarshalJSON(b []byte) error {
	*m = ParseMode(strings.Trim(string(b), `"`))
	return nil
}

// ParseMode 解析模式字符串，未知值返回 ModeOff
func ParseMode(s string) Mode {
	switch s {
	case "MONITOR":
		return ModeMonitor
	case "ACTIVE":
		return ModeActive
	default:
		return ModeOff
	}
}

// Quote 单个场所的最新报价，仅由该场所的行情协程写入
type Quote struct {
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	Seq          uint64  `json:"seq"`
	LastUpdateNS uint64  `json:"last_update_ns"` // 本地单调时钟（ns）
	Connected    bool    `json:"connected"`
}

// EngineState 引擎共享状态复合体。
// 控制字段（MinSpread/StrategyMode/KillSwitch/TradeSize）允许外部控制端写入，
// 其余派生/指标字段仅由决策循环写入。所有访问都必须经过 Store 的锁。
type EngineState struct {
	EXA Quote `json:"exa"`
	EXB Quote `json:"exb"`

	// 控制参数（控制端可写）
	MinSpread    float64 `json:"min_spread"`
	StrategyMode Mode    `json:"strategy_mode"`
	KillSwitch   bool    `json:"kill_switch"`
	TradeSize    float64 `json:"trade_size"`

	// 价差与延迟指标（决策循环专属）
	LastSpreadEXAToEXB float64 `json:"last_spread_exa_to_exb"`
	LastSpreadEXBToEXA float64 `json:"last_spread_exb_to_exa"`
	LastTradeTSNS      uint64  `json:"last_trade_ts_ns"`
	LastTickToTradeNS  uint64  `json:"last_tick_to_trade_ns"`

	// 行情间隔统计（ns）
	LastTickIntervalEXANS uint64 `json:"last_tick_interval_exa_ns"`
	LastTickIntervalEXBNS uint64 `json:"last_tick_interval_exb_ns"`
	AvgTickIntervalEXANS  uint64 `json:"avg_tick_interval_exa_ns"`
	AvgTickIntervalEXBNS  uint64 `json:"avg_tick_interval_exb_ns"`

	// 绩效指标
	LastTradePNL  float64 `json:"last_trade_pnl"`
	CumulativePNL float64 `json:"cumulative_pnl"`
	TradeCount    uint32  `json:"trade_count"`
	GrossProfit   float64 `json:"gross_profit"`
	GrossLoss     float64 `json:"gross_loss"`
	WinningTrades uint32  `json:"winning_trades"`
	LosingTrades  uint32  `json:"losing_trades"`
	EquityHigh    float64 `json:"equity_high"`
	MaxDrawdown   float64 `json:"max_drawdown"` // cumulative_pnl - equity_high 的最小值，恒 <= 0

	// 安全标志
	CircuitTripped bool `json:"circuit_tripped"` // 粘滞，需外部显式清除
	RateLimited    bool `json:"rate_limited"`    // 每秒窗口自清
}

// 默认控制参数（创建共享区域时写入）
const (
	DefaultMinSpread = 0.10
	DefaultTradeSize = 0.01
)

// regionMagic 区域初始化完成的魔数标记 'PKTR'
const regionMagic uint32 = 0x504b5452

// Store 报价存储：一把粗粒度互斥锁保护整个 EngineState 复合体。
// 交易目标地址等其它共享资源各自持锁，不走这把锁。
type Store struct {
	mu    sync.Mutex
	state EngineState

	magic uint32
	ready uint32 // 原子标记：魔数写入后置1
	name  string
}

var (
	regionsMu sync.Mutex
	regions   = map[string]*Store{}
)

// Open 按名称打开共享状态区域。首个创建者负责初始化默认参数并发布魔数标记；
// 后续打开者轮询等待标记出现后才返回，保证不会看到半初始化的区域。
func Open(name string) *Store {
	regionsMu.Lock()
	s, exists := regions[name]
	if !exists {
		s = &Store{name: name}
		regions[name] = s
		regionsMu.Unlock()

		s.mu.Lock()
		s.state = EngineState{
			MinSpread:    DefaultMinSpread,
			StrategyMode: ModeActive,
			TradeSize:    DefaultTradeSize,
		}
		s.mu.Unlock()

		s.magic = regionMagic
		atomic.StoreUint32(&s.ready, 1)

		log.Info().Str("region", name).Msg("共享状态区域创建完成")
		return s
	}
	regionsMu.Unlock()

	// 有界休眠轮询，等待创建者发布魔数
	for atomic.LoadUint32(&s.ready) == 0 {
		time.Sleep(time.Millisecond)
	}
	return s
}

// Name 区域名称
func (s *Store) Name() string {
	return s.name
}

// Snapshot 持锁拷贝整个状态后立即放锁，调用方在锁外计算
func (s *Store) Snapshot() EngineState {
	s.mu.Lock()
	snap := s.state
	s.mu.Unlock()
	return snap
}

// emaNS 指数加权移动平均，alpha=0.1，首个样本直接采用
func emaNS(oldAvg, sample uint64) uint64 {
	if oldAvg == 0 {
		return sample
	}
	const alpha = 0.1
	return uint64((1.0-alpha)*float64(oldAvg) + alpha*float64(sample))
}

// ApplyTick 应用一条行情：更新报价、置连接标志、累计本场所的行情间隔EMA。
// 整个更新在一个临界区内完成。
func (s *Store) ApplyTick(v Venue, bid, ask float64, seq, recvNS uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := &s.state.EXA
	if v == VenueEXB {
		q = &s.state.EXB
	}

	var intervalNS uint64
	if q.LastUpdateNS != 0 && recvNS > q.LastUpdateNS {
		intervalNS = recvNS - q.LastUpdateNS
	}

	q.Bid = bid
	q.Ask = ask
	q.Seq = seq
	q.LastUpdateNS = recvNS
	q.Connected = true

	if intervalNS > 0 {
		if v == VenueEXA {
			s.state.LastTickIntervalEXANS = intervalNS
			s.state.AvgTickIntervalEXANS = emaNS(s.state.AvgTickIntervalEXANS, intervalNS)
		} else {
			s.state.LastTickIntervalEXBNS = intervalNS
			s.state.AvgTickIntervalEXBNS = emaNS(s.state.AvgTickIntervalEXBNS, intervalNS)
		}
	}
}

// RecordSpreads 记录双向价差（无论本轮是否成交都会调用）
func (s *Store) RecordSpreads(exaToEXB, exbToEXA float64) {
	s.mu.Lock()
	s.state.LastSpreadEXAToEXB = exaToEXB
	s.state.LastSpreadEXBToEXA = exbToEXA
	s.mu.Unlock()
}

// SetRateLimited 设置/清除限速标志
func (s *Store) SetRateLimited(limited bool) {
	s.mu.Lock()
	s.state.RateLimited = limited
	s.mu.Unlock()
}

// TradeCommit 一笔成交需要落入状态的全部字段
type TradeCommit struct {
	SpreadEXAToEXB float64
	SpreadEXBToEXA float64
	TradeTSNS      uint64
	TickToTradeNS  uint64
	PNL            float64
}

// CommitTrade 在单个临界区内提交全部成交指标：价差、时间戳、PnL累计、
// 胜负计数、权益高点与最大回撤，并检查熔断阈值。累计PnL跌破 pnlFloor 时
// 置熔断标志并强制策略模式归零，两者在同一临界区内翻转。
// 返回本次提交是否触发了熔断。
func (s *Store) CommitTrade(tc TradeCommit, pnlFloor float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &s.state
	st.LastSpreadEXAToEXB = tc.SpreadEXAToEXB
	st.LastSpreadEXBToEXA = tc.SpreadEXBToEXA
	st.LastTradeTSNS = tc.TradeTSNS
	st.LastTickToTradeNS = tc.TickToTradeNS

	st.LastTradePNL = tc.PNL
	st.CumulativePNL += tc.PNL
	st.TradeCount++

	if tc.PNL >= 0 {
		st.GrossProfit += tc.PNL
		st.WinningTrades++
	} else {
		st.GrossLoss += -tc.PNL
		st.LosingTrades++
	}

	// 权益曲线与最大回撤
	if st.TradeCount == 1 {
		st.EquityHigh = st.CumulativePNL
		st.MaxDrawdown = 0
	} else {
		if st.CumulativePNL > st.EquityHigh {
			st.EquityHigh = st.CumulativePNL
		}
		if dd := st.CumulativePNL - st.EquityHigh; dd < st.MaxDrawdown {
			st.MaxDrawdown = dd
		}
	}

	// P&L熔断
	if st.CumulativePNL < pnlFloor && !st.CircuitTripped {
		st.CircuitTripped = true
		st.StrategyMode = ModeOff
		log.Warn().
			Float64("cumulative_pnl", st.CumulativePNL).
			Float64("pnl_floor", pnlFloor).
			Msg("累计PnL跌破下限，熔断触发，策略已停止")
		return true
	}
	return false
}

// SetMinSpread 控制端写入：最小价差阈值
func (s *Store) SetMinSpread(v float64) {
	s.mu.Lock()
	s.state.MinSpread = v
	s.mu.Unlock()
}

// SetTradeSize 控制端写入：单笔交易量
func (s *Store) SetTradeSize(v float64) {
	s.mu.Lock()
	s.state.TradeSize = v
	s.mu.Unlock()
}

// SetStrategyMode 控制端写入：策略模式
func (s *Store) SetStrategyMode(m Mode) {
	s.mu.Lock()
	s.state.StrategyMode = m
	s.mu.Unlock()
}

// SetKillSwitch 控制端写入：紧急停止开关
func (s *Store) SetKillSwitch(on bool) {
	s.mu.Lock()
	s.state.KillSwitch = on
	s.mu.Unlock()
}

// ClearCircuitBreaker 控制端清除熔断：同时清零熔断标志与kill开关，
// 若策略模式为OFF则重新置为ACTIVE。整个清除是一个原子操作。
func (s *Store) ClearCircuitBreaker() {
	s.mu.Lock()
	s.state.CircuitTripped = false
	s.state.KillSwitch = false
	if s.state.StrategyMode == ModeOff {
		s.state.StrategyMode = ModeActive
	}
	s.mu.Unlock()

	log.Info().Str("region", s.name).Msg("熔断已清除，策略恢复")
}
