package control

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dhruvilB01/PocketTrader/internal/store"
	"github.com/gorilla/websocket"
)

func newTestServer(region string) (*Server, *store.Store, *httptest.Server) {
	st := store.Open(region)
	s := NewServer(st)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.HandleState)
	mux.HandleFunc("/api/control", s.HandleControl)
	mux.HandleFunc("/api/control/clear", s.HandleClearBreaker)
	mux.HandleFunc("/ws", s.HandleWS)

	return s, st, httptest.NewServer(mux)
}

func TestHandleState(t *testing.T) {
	_, st, ts := newTestServer("ctrl_state")
	defer ts.Close()

	st.SetMinSpread(0.42)
	st.ApplyTick(store.VenueEXA, 100.5, 101.5, 7, 999)

	resp, err := http.Get(ts.URL + "/api/state")
	if err != nil {
		t.Fatalf("GET /api/state failed: %v", err)
	}
	defer resp.Body.Close()

	var snap store.EngineState
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if snap.MinSpread != 0.42 {
		t.Errorf("Expected min_spread 0.42, got %.4f", snap.MinSpread)
	}
	if snap.EXA.Bid != 100.5 || snap.EXA.Seq != 7 {
		t.Errorf("Quote missing from snapshot: %.2f seq=%d", snap.EXA.Bid, snap.EXA.Seq)
	}
	if snap.StrategyMode != store.ModeActive {
		t.Errorf("Mode missing from snapshot: %v", snap.StrategyMode)
	}
}

func TestHandleControl_WritesControlFields(t *testing.T) {
	_, st, ts := newTestServer("ctrl_write")
	defer ts.Close()

	body := `{"min_spread": 0.33, "trade_size": 2.0, "strategy_mode": "MONITOR", "kill_switch": true}`
	resp, err := http.Post(ts.URL+"/api/control", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	snap := st.Snapshot()
	if snap.MinSpread != 0.33 || snap.TradeSize != 2.0 {
		t.Errorf("Params not written: %.4f/%.4f", snap.MinSpread, snap.TradeSize)
	}
	if snap.StrategyMode != store.ModeMonitor || !snap.KillSwitch {
		t.Error("Mode/kill switch not written")
	}
}

func TestHandleControl_PartialUpdate(t *testing.T) {
	_, st, ts := newTestServer("ctrl_partial")
	defer ts.Close()

	st.SetMinSpread(0.77)

	// 只提供trade_size，其它字段保持不变
	resp, err := http.Post(ts.URL+"/api/control", "application/json", strings.NewReader(`{"trade_size": 1.5}`))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()

	snap := st.Snapshot()
	if snap.TradeSize != 1.5 {
		t.Errorf("trade_size not written: %.4f", snap.TradeSize)
	}
	if snap.MinSpread != 0.77 {
		t.Errorf("min_spread must be untouched, got %.4f", snap.MinSpread)
	}
}

func TestHandleControl_RejectsInvalid(t *testing.T) {
	_, st, ts := newTestServer("ctrl_reject")
	defer ts.Close()

	cases := []string{
		`{"min_spread": -1.0}`,
		`{"trade_size": -0.5}`,
		`{"strategy_mode": "TURBO"}`,
		`not json`,
	}
	for _, body := range cases {
		resp, err := http.Post(ts.URL+"/api/control", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected 400 for %q, got %d", body, resp.StatusCode)
		}
	}

	// GET不允许写
	resp, _ := http.Get(ts.URL + "/api/control")
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET, got %d", resp.StatusCode)
	}

	if st.Snapshot().MinSpread != store.DefaultMinSpread {
		t.Error("Rejected request must not change state")
	}
}

func TestHandleControl_DerivedFieldsReadOnly(t *testing.T) {
	_, st, ts := newTestServer("ctrl_readonly")
	defer ts.Close()

	// 派生指标字段不在控制契约内，提供了也会被忽略
	body := `{"cumulative_pnl": 9999.0, "trade_count": 42, "min_spread": 0.2}`
	resp, err := http.Post(ts.URL+"/api/control", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()

	snap := st.Snapshot()
	if snap.CumulativePNL != 0 || snap.TradeCount != 0 {
		t.Error("Derived metrics must be read-only through the control API")
	}
	if snap.MinSpread != 0.2 {
		t.Errorf("Valid field in same request must apply, got %.4f", snap.MinSpread)
	}
}

func TestHandleClearBreaker(t *testing.T) {
	_, st, ts := newTestServer("ctrl_clear")
	defer ts.Close()

	st.SetKillSwitch(true)
	st.CommitTrade(store.TradeCommit{PNL: -500}, -100)

	resp, err := http.Post(ts.URL+"/api/control/clear", "application/json", nil)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	snap := st.Snapshot()
	if snap.CircuitTripped || snap.KillSwitch {
		t.Error("Expected breaker and kill switch cleared")
	}
	if snap.StrategyMode != store.ModeActive {
		t.Errorf("Expected mode re-armed, got %s", snap.StrategyMode)
	}
}

func TestWebSocket_PushAndControl(t *testing.T) {
	_, st, ts := newTestServer("ctrl_ws")
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("WebSocket dial failed: %v", err)
	}
	defer conn.Close()

	// 周期推送的状态快照
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snap store.EngineState
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("Expected a pushed snapshot: %v", err)
	}
	if snap.MinSpread != store.DefaultMinSpread {
		t.Errorf("Snapshot content wrong: %.4f", snap.MinSpread)
	}

	// 通过同一连接下发控制消息
	if err := conn.WriteJSON(map[string]any{"min_spread": 0.66}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st.Snapshot().MinSpread == 0.66 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("Control message over WebSocket not applied")
}
