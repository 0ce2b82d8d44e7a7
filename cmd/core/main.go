package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dhruvilB01/PocketTrader/internal/config"
	"github.com/dhruvilB01/PocketTrader/internal/control"
	"github.com/dhruvilB01/PocketTrader/internal/metrics"
	"github.com/dhruvilB01/PocketTrader/internal/runner"
	"github.com/dhruvilB01/PocketTrader/internal/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	configFile = flag.String("config", "configs/core.yaml", "配置文件路径")
	logLevel   = flag.String("log", "", "日志级别 (debug, info, warn, error)，覆盖配置文件")
	exaPort    = flag.Int("exa-port", 0, "EXA行情端口，覆盖配置文件")
	exbPort    = flag.Int("exb-port", 0, "EXB行情端口，覆盖配置文件")
	tradePort  = flag.Int("trade-port", 0, "交易指令目的端口，覆盖配置文件")
)

func main() {
	flag.Parse()

	// 单实例锁，防止多进程同时争抢行情端口
	lockFile := "/tmp/pockettrader_core.lock"
	lock, err := os.OpenFile(lockFile, os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		log.Fatal().Err(err).Msg("创建锁文件失败")
	}
	if err := syscall.Flock(int(lock.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		log.Fatal().Msg("已有一个PocketTrader核心进程在运行")
	}
	defer func() {
		syscall.Flock(int(lock.Fd()), syscall.LOCK_UN)
		lock.Close()
		os.Remove(lockFile)
	}()

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})

	log.Info().Msg("PocketTrader套利引擎启动中...")

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("加载配置失败")
	}

	// 命令行覆盖
	if *exaPort > 0 {
		cfg.Engine.EXAPort = *exaPort
	}
	if *exbPort > 0 {
		cfg.Engine.EXBPort = *exbPort
	}
	if *tradePort > 0 {
		cfg.Engine.TradePort = *tradePort
	}
	if *logLevel != "" {
		cfg.Engine.LogLevel = *logLevel
	}
	setLogLevel(cfg.Engine.LogLevel)

	// 热重载时仅跟随日志级别；策略控制参数运行期只通过共享状态调整
	config.OnReload(func(c *config.Config) {
		setLogLevel(c.Engine.LogLevel)
	})

	// 打开共享状态区域并写入启动参数
	st := store.Open(cfg.Engine.RegionName)
	st.SetMinSpread(cfg.Strategy.MinSpread)
	st.SetTradeSize(cfg.Strategy.TradeSize)
	st.SetStrategyMode(store.ParseMode(cfg.Strategy.Mode))

	log.Info().
		Str("region", cfg.Engine.RegionName).
		Float64("min_spread", cfg.Strategy.MinSpread).
		Float64("trade_size", cfg.Strategy.TradeSize).
		Str("mode", cfg.Strategy.Mode).
		Msg("共享状态初始化完成")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Prometheus监控
	if _, err := metrics.StartMetricsServer(cfg.Engine.MetricsPort); err != nil {
		log.Error().Err(err).Msg("启动监控服务器失败")
	}

	// 控制API（可视化/控制进程的访问边界）
	ctrl := control.NewServer(st)
	if _, err := ctrl.Start(cfg.Engine.ControlPort); err != nil {
		log.Error().Err(err).Msg("启动控制API失败")
	}

	r, err := runner.NewRunner(cfg, st)
	if err != nil {
		log.Fatal().Err(err).Msg("创建Runner失败")
	}

	if err := r.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("启动Runner失败")
	}

	log.Info().Msg("PocketTrader启动完成，开始监控价差...")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	log.Info().Msg("收到退出信号，正在关闭...")

	cancel()
	r.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutdownCancel()
	ctrl.Shutdown(shutdownCtx)

	log.Info().Msg("PocketTrader已关闭")
}

// setLogLevel 设置日志级别
func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
