package metrics

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestStartMetricsServer(t *testing.T) {
	// 触发几个指标，确保抓取结果里有内容
	RecordTick("EXA")
	UpdateSpreads(1.5, -0.5)
	RecordTrade("EXA", "EXB", 0.04, 250_000)
	RecordRateLimited()
	SetCircuitTripped(true)
	UpdatePerformance(12.5, 20.0, -7.5)
	UpdateVenueInterval("EXB", 9_000_000)
	RecordError("tick_decode", "EXA")

	port, err := StartMetricsServer(0)
	if err != nil {
		t.Fatalf("StartMetricsServer failed: %v", err)
	}
	if port == 0 {
		t.Fatal("Expected a real listening port")
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/metrics", port))
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Read body failed: %v", err)
	}
	text := string(body)

	for _, name := range []string{
		"pockettrader_spread_exa_to_exb",
		"pockettrader_trades_total",
		"pockettrader_tick_to_trade_seconds",
		"pockettrader_ticks_total",
		"pockettrader_circuit_tripped",
		"pockettrader_rate_limited_total",
		"pockettrader_max_drawdown",
	} {
		if !strings.Contains(text, name) {
			t.Errorf("Metric %s missing from scrape", name)
		}
	}
}
