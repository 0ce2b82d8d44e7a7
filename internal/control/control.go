// Package control 对外暴露共享状态的读写契约：可视化/控制进程通过HTTP与
// WebSocket读取完整状态快照，并只能写入控制字段（min_spread、trade_size、
// strategy_mode、kill_switch）以及执行熔断清除。派生指标字段对外只读。
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/dhruvilB01/PocketTrader/internal/store"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// statePushInterval WebSocket状态推送周期
const statePushInterval = 100 * time.Millisecond

// Server 控制API服务器
type Server struct {
	store    *store.Store
	upgrader websocket.Upgrader
	srv      *http.Server
}

// NewServer 创建控制服务器
func NewServer(st *store.Store) *Server {
	return &Server{
		store: st,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// 控制端运行在本机可信环境，不做Origin校验（传输不加密是明确的非目标）
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Request 控制端可写字段。指针字段区分"未提供"与零值。
type Request struct {
	MinSpread    *float64 `json:"min_spread,omitempty"`
	TradeSize    *float64 `json:"trade_size,omitempty"`
	StrategyMode *string  `json:"strategy_mode,omitempty"`
	KillSwitch   *bool    `json:"kill_switch,omitempty"`
}

// apply 校验并写入控制字段；字段之外的任何内容都不可写
func (s *Server) apply(req *Request) error {
	if req.MinSpread != nil {
		if *req.MinSpread < 0 {
			return fmt.Errorf("min_spread 必须 >= 0")
		}
		s.store.SetMinSpread(*req.MinSpread)
	}
	if req.TradeSize != nil {
		if *req.TradeSize < 0 {
			return fmt.Errorf("trade_size 必须 >= 0")
		}
		s.store.SetTradeSize(*req.TradeSize)
	}
	if req.StrategyMode != nil {
		switch *req.StrategyMode {
		case "OFF", "MONITOR", "ACTIVE":
		default:
			return fmt.Errorf("strategy_mode 必须是 OFF|MONITOR|ACTIVE")
		}
		s.store.SetStrategyMode(store.ParseMode(*req.StrategyMode))
	}
	if req.KillSwitch != nil {
		s.store.SetKillSwitch(*req.KillSwitch)
	}
	return nil
}

// HandleState GET /api/state 返回完整状态快照
func (s *Server) HandleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.store.Snapshot())
}

// HandleControl POST /api/control 写入控制字段
func (s *Server) HandleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.apply(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleClearBreaker POST /api/control/clear 清除熔断
func (s *Server) HandleClearBreaker(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.store.ClearCircuitBreaker()
	w.WriteHeader(http.StatusOK)
}

// HandleWS GET /ws 升级为WebSocket：固定周期推送状态快照，同时接受与
// POST /api/control 相同格式的控制消息。
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket升级失败")
		return
	}

	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("控制端已连接")

	done := make(chan struct{})

	// 读循环：控制消息
	go func() {
		defer close(done)
		for {
			var req Request
			if err := conn.ReadJSON(&req); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Debug().Err(err).Msg("控制端连接读取结束")
				}
				return
			}
			if err := s.apply(&req); err != nil {
				log.Warn().Err(err).Msg("拒绝非法控制消息")
			}
		}
	}()

	// 写循环：周期推送快照
	ticker := time.NewTicker(statePushInterval)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case <-done:
			log.Info().Str("remote", conn.RemoteAddr().String()).Msg("控制端已断开")
			return
		case <-ticker.C:
			if err := conn.WriteJSON(s.store.Snapshot()); err != nil {
				return
			}
		}
	}
}

// Start 启动控制服务器，返回实际监听端口
func (s *Server) Start(port int) (int, error) {
	if port < 0 {
		port = 0
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.HandleState)
	mux.HandleFunc("/api/control", s.HandleControl)
	mux.HandleFunc("/api/control/clear", s.HandleClearBreaker)
	mux.HandleFunc("/ws", s.HandleWS)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return 0, fmt.Errorf("控制API监听失败: %w", err)
	}

	actualPort := listener.Addr().(*net.TCPAddr).Port
	s.srv = &http.Server{Handler: mux}

	log.Info().Int("port", actualPort).Msg("控制API服务器启动")

	go func() {
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("控制API服务器退出")
		}
	}()

	return actualPort, nil
}

// Shutdown 优雅关闭控制服务器
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
