// venuesim 场所模拟器：按随机游走生成盘口报价并以TICK帧发送给核心引擎，
// 同时监听交易端口，把收到的TRADE指令打印出来。用于联调与演示。
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	venue      = flag.String("venue", "EXA", "场所标识 (<=7字符)")
	symbol     = flag.String("symbol", "BTCUSD", "品种 (<=15字符)")
	target     = flag.String("target", "127.0.0.1:6001", "核心引擎行情接收地址")
	tradePort  = flag.Int("trade-port", 7000, "交易指令监听端口 (0=不监听)")
	intervalMs = flag.Int("interval-ms", 10, "行情发送间隔 (ms)")
	basePrice  = flag.Float64("base-price", 30000.0, "初始中间价")
	volatility = flag.Float64("volatility", 2.0, "每步随机游走标准差")
	halfSpread = flag.Float64("half-spread", 0.5, "半个盘口价差")
)

func main() {
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	addr, err := net.ResolveUDPAddr("udp", *target)
	if err != nil {
		log.Fatal().Err(err).Msg("解析目标地址失败")
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		log.Fatal().Err(err).Msg("创建行情socket失败")
	}
	defer conn.Close()

	if *tradePort > 0 {
		go listenTrades(*tradePort)
	}

	log.Info().
		Str("venue", *venue).
		Str("target", *target).
		Int("interval_ms", *intervalMs).
		Msg("场所模拟器启动")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Duration(*intervalMs) * time.Millisecond)
	defer ticker.Stop()

	mid := *basePrice
	var seq uint64

	for {
		select {
		case <-sigCh:
			log.Info().Uint64("ticks_sent", seq).Msg("场所模拟器退出")
			return
		case <-ticker.C:
			mid += rand.NormFloat64() * *volatility
			if mid <= 0 {
				mid = *basePrice
			}
			seq++

			bid := mid - *halfSpread
			ask := mid + *halfSpread
			frame := fmt.Sprintf("TICK %s %s %.2f %.2f %d %d",
				*venue, *symbol, bid, ask, seq, time.Now().UnixNano())

			if _, err := conn.Write([]byte(frame)); err != nil {
				log.Error().Err(err).Msg("行情发送失败")
			}
		}
	}
}

// listenTrades 接收并打印核心引擎发来的交易指令
func listenTrades(port int) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		log.Error().Err(err).Int("port", port).Msg("交易端口监听失败")
		return
	}
	defer conn.Close()

	log.Info().Int("port", port).Msg("交易指令监听中")

	buf := make([]byte, 512)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		log.Info().
			Str("from", src.String()).
			Str("trade", string(buf[:n])).
			Msg("收到交易指令")
	}
}
