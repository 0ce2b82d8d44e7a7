package runner

import (
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/dhruvilB01/PocketTrader/internal/config"
	"github.com/dhruvilB01/PocketTrader/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Engine: config.EngineConfig{
			EXAPort:    26101,
			EXBPort:    26102,
			TradePort:  27100,
			RegionName: "runner_e2e",
		},
		Strategy: config.StrategyConfig{
			StaleThresholdMs: 500,
			MaxTradesPerSec:  20,
			PNLLimit:         -100.0,
			MinSpread:        0.10,
			TradeSize:        0.01,
			Mode:             "ACTIVE",
		},
	}
}

// TestRunner_EndToEnd 回环全链路：两个场所喂价差明显的行情，
// 验证核心引擎把TRADE指令发回首包来源的交易端口。
func TestRunner_EndToEnd(t *testing.T) {
	cfg := testConfig()

	// 先占住交易端口，再启动引擎
	tradeConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: cfg.Engine.TradePort})
	if err != nil {
		t.Skipf("trade port unavailable: %v", err)
	}
	defer tradeConn.Close()

	st := store.Open(cfg.Engine.RegionName)
	r, err := NewRunner(cfg, st)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Stop()

	exa, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: cfg.Engine.EXAPort})
	if err != nil {
		t.Fatalf("dial EXA failed: %v", err)
	}
	defer exa.Close()
	exb, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: cfg.Engine.EXBPort})
	if err != nil {
		t.Fatalf("dial EXB failed: %v", err)
	}
	defer exb.Close()

	// 持续喂价差远大于阈值的行情
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		var seq uint64
		for {
			select {
			case <-stop:
				return
			case <-time.After(5 * time.Millisecond):
				seq++
				ts := time.Now().UnixNano()
				exa.Write([]byte(fmt.Sprintf("TICK EXA BTCUSD 100.00 101.00 %d %d", seq, ts)))
				exb.Write([]byte(fmt.Sprintf("TICK EXB BTCUSD 105.00 106.00 %d %d", seq, ts)))
			}
		}
	}()

	tradeConn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 512)
	n, _, err := tradeConn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("No trade instruction received: %v", err)
	}

	frame := string(buf[:n])
	if !strings.HasPrefix(frame, "TRADE ARB1 EXA BUY") {
		t.Errorf("Unexpected trade frame: %s", frame)
	}

	// 成交指标已提交到共享状态
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st.Snapshot().TradeCount > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	snap := st.Snapshot()
	if snap.TradeCount == 0 {
		t.Fatal("Trade not committed to shared state")
	}
	if snap.LastTradePNL <= 0 {
		t.Errorf("Expected positive pnl on wide spread, got %.6f", snap.LastTradePNL)
	}
}

func TestRunner_StopIdempotent(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.EXAPort = 26111
	cfg.Engine.EXBPort = 26112
	cfg.Engine.RegionName = "runner_stop"

	st := store.Open(cfg.Engine.RegionName)
	r, err := NewRunner(cfg, st)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	r.Stop()
	r.Stop() // 重复调用安全

	// 停止后不可重启
	if err := r.Start(ctx); err == nil {
		t.Error("Expected restart after Stop to fail")
	}
}
