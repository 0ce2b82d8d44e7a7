// Package telemetry 维护逐笔延迟遥测日志：每执行一笔交易追加一行CSV。
// 日志打开失败只在启动时报告一次，之后静默跳过，绝不影响交易路径。
package telemetry

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

const csvHeader = "t_now_ns,tick_to_trade_ns,exa_avg_tick_interval_ns,exb_avg_tick_interval_ns\n"

// LatencyLog 追加式延迟日志
type LatencyLog struct {
	f        *os.File
	disabled bool
}

// OpenLatencyLog 打开（覆盖创建）延迟日志并写入表头。path为空或打开失败时
// 返回禁用状态的日志对象，Append 变为空操作。
func OpenLatencyLog(path string) *LatencyLog {
	if path == "" {
		return &LatencyLog{disabled: true}
	}

	f, err := os.Create(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("延迟日志打开失败，遥测记录将被跳过")
		return &LatencyLog{disabled: true}
	}

	if _, err := f.WriteString(csvHeader); err != nil {
		log.Error().Err(err).Str("path", path).Msg("延迟日志写表头失败，遥测记录将被跳过")
		f.Close()
		return &LatencyLog{disabled: true}
	}

	log.Info().Str("path", path).Msg("延迟日志已打开")
	return &LatencyLog{f: f}
}

// Append 追加一行遥测记录。写失败时禁用后续写入，不向调用方传播错误。
func (l *LatencyLog) Append(tNowNS, tickToTradeNS, avgTickEXANS, avgTickEXBNS uint64) {
	if l == nil || l.disabled {
		return
	}
	if _, err := fmt.Fprintf(l.f, "%d,%d,%d,%d\n",
		tNowNS, tickToTradeNS, avgTickEXANS, avgTickEXBNS); err != nil {
		log.Error().Err(err).Msg("延迟日志写入失败，停止遥测记录")
		l.disabled = true
	}
}

// Close 关闭日志文件
func (l *LatencyLog) Close() {
	if l == nil || l.f == nil {
		return
	}
	l.f.Close()
}
