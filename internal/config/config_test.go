package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "core.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	return path
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := writeConfig(t, `
engine:
  exa_port: 16001
  exb_port: 16002
  trade_port: 17000
  region_name: test_region
  latency_log_path: ""

strategy:
  stale_threshold_ms: 250
  max_trades_per_sec: 5
  pnl_limit: -50.0
  min_spread: 0.25
  trade_size: 0.5
  mode: MONITOR
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Engine.EXAPort != 16001 || cfg.Engine.EXBPort != 16002 || cfg.Engine.TradePort != 17000 {
		t.Errorf("Ports wrong: %d/%d/%d", cfg.Engine.EXAPort, cfg.Engine.EXBPort, cfg.Engine.TradePort)
	}
	if cfg.Engine.RegionName != "test_region" {
		t.Errorf("Region wrong: %s", cfg.Engine.RegionName)
	}
	if cfg.Strategy.StaleThresholdMs != 250 || cfg.Strategy.MaxTradesPerSec != 5 {
		t.Errorf("Risk params wrong: %d/%d", cfg.Strategy.StaleThresholdMs, cfg.Strategy.MaxTradesPerSec)
	}
	if cfg.Strategy.Mode != "MONITOR" {
		t.Errorf("Mode wrong: %s", cfg.Strategy.Mode)
	}

	// 未提供的字段回落到默认值
	if cfg.Engine.MetricsPort != 9090 || cfg.Engine.ControlPort != 8080 {
		t.Errorf("Defaults not applied: %d/%d", cfg.Engine.MetricsPort, cfg.Engine.ControlPort)
	}

	if cfg.StaleThresholdNS() != 250_000_000 {
		t.Errorf("StaleThresholdNS wrong: %d", cfg.StaleThresholdNS())
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Missing file must not be fatal: %v", err)
	}

	if cfg.Engine.EXAPort != 6001 || cfg.Engine.EXBPort != 6002 || cfg.Engine.TradePort != 7000 {
		t.Errorf("Default ports wrong: %d/%d/%d", cfg.Engine.EXAPort, cfg.Engine.EXBPort, cfg.Engine.TradePort)
	}
	if cfg.Strategy.MinSpread != 0.10 || cfg.Strategy.TradeSize != 0.01 {
		t.Errorf("Default strategy params wrong: %.2f/%.4f", cfg.Strategy.MinSpread, cfg.Strategy.TradeSize)
	}
	if cfg.Strategy.PNLLimit != -100.0 || cfg.Strategy.MaxTradesPerSec != 20 {
		t.Errorf("Default risk params wrong: %.1f/%d", cfg.Strategy.PNLLimit, cfg.Strategy.MaxTradesPerSec)
	}
	if cfg.Strategy.Mode != "ACTIVE" {
		t.Errorf("Default mode wrong: %s", cfg.Strategy.Mode)
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"same feed ports", "engine:\n  exa_port: 6001\n  exb_port: 6001\n"},
		{"port out of range", "engine:\n  trade_port: 70000\n"},
		{"empty region", "engine:\n  region_name: \"\"\n"},
		{"non-negative pnl limit", "strategy:\n  pnl_limit: 10.0\n"},
		{"negative min spread", "strategy:\n  min_spread: -0.5\n"},
		{"zero trade size", "strategy:\n  trade_size: 0\n"},
		{"bad mode", "strategy:\n  mode: TURBO\n"},
		{"zero stale threshold", "strategy:\n  stale_threshold_ms: 0\n"},
		{"zero trade cap", "strategy:\n  max_trades_per_sec: 0\n"},
	}

	for _, c := range cases {
		path := writeConfig(t, c.yaml)
		if _, err := LoadConfig(path); err == nil {
			t.Errorf("%s: expected validation error", c.name)
		}
	}
}
