// Package clock 提供进程内统一的单调纳秒时钟。
// 引擎里所有时间戳（行情接收、成交、延迟测量）都来自这里，不使用墙钟。
package clock

import "time"

var base = time.Now()

// NowNS 自进程启动起的单调纳秒数
func NowNS() uint64 {
	return uint64(time.Since(base).Nanoseconds())
}
