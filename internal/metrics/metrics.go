package metrics

import (
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	// 价差指标
	SpreadEXAToEXB = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pockettrader_spread_exa_to_exb",
			Help: "EXA买入/EXB卖出方向的最新价差",
		},
	)

	SpreadEXBToEXA = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pockettrader_spread_exb_to_exa",
			Help: "EXB买入/EXA卖出方向的最新价差",
		},
	)

	// 绩效指标
	CumulativePNL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pockettrader_cumulative_pnl",
			Help: "累计PnL",
		},
	)

	EquityHigh = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pockettrader_equity_high",
			Help: "权益高水位",
		},
	)

	MaxDrawdown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pockettrader_max_drawdown",
			Help: "最大回撤（恒为非正值）",
		},
	)

	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pockettrader_trades_total",
			Help: "已发送的套利指令数",
		},
		[]string{"direction"},
	)

	// 延迟指标
	TickToTrade = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pockettrader_tick_to_trade_seconds",
			Help:    "行情更新到交易指令发出的延迟",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		},
	)

	// 行情指标
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pockettrader_ticks_total",
			Help: "各场所收到的有效行情数",
		},
		[]string{"venue"},
	)

	VenueConnected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pockettrader_venue_connected",
			Help: "场所连接状态 (1=已收到行情)",
		},
		[]string{"venue"},
	)

	AvgTickInterval = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pockettrader_avg_tick_interval_seconds",
			Help: "各场所行情间隔EMA",
		},
		[]string{"venue"},
	)

	// 安全指标
	CircuitTripped = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pockettrader_circuit_tripped",
			Help: "熔断状态 (1=已触发)",
		},
	)

	RateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pockettrader_rate_limited_total",
			Help: "因每秒限速而被拦截的交易机会数",
		},
	)

	ErrorCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pockettrader_error_count_total",
			Help: "错误计数",
		},
		[]string{"type", "venue"},
	)
)

func init() {
	// 注册所有指标
	prometheus.MustRegister(
		SpreadEXAToEXB,
		SpreadEXBToEXA,
		CumulativePNL,
		EquityHigh,
		MaxDrawdown,
		TradesTotal,
		TickToTrade,
		TicksTotal,
		VenueConnected,
		AvgTickInterval,
		CircuitTripped,
		RateLimitedTotal,
		ErrorCount,
	)
}

// StartMetricsServer 启动Prometheus监控服务器，返回实际监听端口
func StartMetricsServer(port int) (int, error) {
	if port < 0 {
		port = 0
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("listen on %s failed: %w", addr, err)
	}

	actualPort := listener.Addr().(*net.TCPAddr).Port

	log.Info().Int("port", actualPort).Msg("启动Prometheus监控服务器")

	go func() {
		if err := http.Serve(listener, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Prometheus服务器退出")
		}
	}()

	return actualPort, nil
}

// RecordTick 记录一条有效行情
func RecordTick(venue string) {
	TicksTotal.WithLabelValues(venue).Inc()
	VenueConnected.WithLabelValues(venue).Set(1)
}

// RecordError 记录错误
func RecordError(errType, venue string) {
	ErrorCount.WithLabelValues(errType, venue).Inc()
}

// UpdateSpreads 更新双向价差
func UpdateSpreads(exaToEXB, exbToEXA float64) {
	SpreadEXAToEXB.Set(exaToEXB)
	SpreadEXBToEXA.Set(exbToEXA)
}

// RecordTrade 记录一笔已发送的套利指令
func RecordTrade(legAVenue, legBVenue string, pnl float64, tickToTradeNS uint64) {
	TradesTotal.WithLabelValues(legAVenue + "->" + legBVenue).Inc()
	TickToTrade.Observe(float64(tickToTradeNS) / 1e9)
}

// RecordRateLimited 记录一次限速拦截
func RecordRateLimited() {
	RateLimitedTotal.Inc()
}

// SetCircuitTripped 更新熔断状态
func SetCircuitTripped(tripped bool) {
	if tripped {
		CircuitTripped.Set(1)
	} else {
		CircuitTripped.Set(0)
	}
}

// UpdatePerformance 更新绩效指标（由全局监控周期刷新）
func UpdatePerformance(cumulativePNL, equityHigh, maxDrawdown float64) {
	CumulativePNL.Set(cumulativePNL)
	EquityHigh.Set(equityHigh)
	MaxDrawdown.Set(maxDrawdown)
}

// UpdateVenueInterval 更新场所行情间隔EMA
func UpdateVenueInterval(venue string, avgIntervalNS uint64) {
	AvgTickInterval.WithLabelValues(venue).Set(float64(avgIntervalNS) / 1e9)
}
