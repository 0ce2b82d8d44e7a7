package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Engine   EngineConfig   `mapstructure:"engine"`
	Strategy StrategyConfig `mapstructure:"strategy"`
}

// EngineConfig 进程与端口配置
type EngineConfig struct {
	EXAPort        int    `mapstructure:"exa_port"`         // EXA行情接收端口
	EXBPort        int    `mapstructure:"exb_port"`         // EXB行情接收端口
	TradePort      int    `mapstructure:"trade_port"`       // 交易指令目的端口
	RegionName     string `mapstructure:"region_name"`      // 共享状态区域名称
	MetricsPort    int    `mapstructure:"metrics_port"`     // Prometheus端口
	ControlPort    int    `mapstructure:"control_port"`     // 控制API端口
	LatencyLogPath string `mapstructure:"latency_log_path"` // 延迟CSV路径
	LogLevel       string `mapstructure:"log_level"`        // 日志级别
}

// StrategyConfig 策略启动参数。运行期的调整只通过共享状态进行，
// 这里只决定初始值与风险常量。
type StrategyConfig struct {
	StaleThresholdMs int     `mapstructure:"stale_threshold_ms"` // 报价新鲜度阈值 (ms)
	MaxTradesPerSec  int     `mapstructure:"max_trades_per_sec"` // 每秒交易上限
	PNLLimit         float64 `mapstructure:"pnl_limit"`          // 累计PnL熔断下限（负值）
	MinSpread        float64 `mapstructure:"min_spread"`         // 初始最小价差
	TradeSize        float64 `mapstructure:"trade_size"`         // 初始单笔交易量
	Mode             string  `mapstructure:"mode"`               // 初始策略模式 OFF|MONITOR|ACTIVE
}

var (
	globalConfig *Config
	reloadHook   func(*Config)
)

func setDefaults() {
	viper.SetDefault("engine.exa_port", 6001)
	viper.SetDefault("engine.exb_port", 6002)
	viper.SetDefault("engine.trade_port", 7000)
	viper.SetDefault("engine.region_name", "pockettrader")
	viper.SetDefault("engine.metrics_port", 9090)
	viper.SetDefault("engine.control_port", 8080)
	viper.SetDefault("engine.latency_log_path", "latency_log.csv")
	viper.SetDefault("engine.log_level", "info")
	viper.SetDefault("strategy.stale_threshold_ms", 500)
	viper.SetDefault("strategy.max_trades_per_sec", 20)
	viper.SetDefault("strategy.pnl_limit", -100.0)
	viper.SetDefault("strategy.min_spread", 0.10)
	viper.SetDefault("strategy.trade_size", 0.01)
	viper.SetDefault("strategy.mode", "ACTIVE")
}

// LoadConfig 加载配置文件。文件不存在时使用默认值，其它读取错误返回失败。
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")
	setDefaults()

	// 环境变量覆盖
	viper.AutomaticEnv()
	viper.SetEnvPrefix("POCKETTRADER")
	viper.BindEnv("engine.exa_port", "POCKETTRADER_EXA_PORT")
	viper.BindEnv("engine.exb_port", "POCKETTRADER_EXB_PORT")
	viper.BindEnv("engine.trade_port", "POCKETTRADER_TRADE_PORT")
	viper.BindEnv("engine.metrics_port", "POCKETTRADER_METRICS_PORT")
	viper.BindEnv("engine.control_port", "POCKETTRADER_CONTROL_PORT")

	fileFound := true
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			fileFound = false
			log.Warn().Str("path", path).Msg("配置文件不存在，使用默认配置")
		} else {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	globalConfig = &cfg

	// 文件存在时启动热重载监听
	if fileFound {
		go watchConfig()
	}

	log.Info().Str("path", path).Bool("from_file", fileFound).Msg("配置加载成功")
	return &cfg, nil
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	return globalConfig
}

// OnReload 注册热重载回调（用于把新控制参数推入共享状态）
func OnReload(fn func(*Config)) {
	reloadHook = fn
}

// validateConfig 验证配置有效性
func validateConfig(cfg *Config) error {
	ports := map[string]int{
		"engine.exa_port":   cfg.Engine.EXAPort,
		"engine.exb_port":   cfg.Engine.EXBPort,
		"engine.trade_port": cfg.Engine.TradePort,
	}
	for name, p := range ports {
		if p < 1 || p > 65535 {
			return fmt.Errorf("%s 必须在 1-65535 之间", name)
		}
	}
	if cfg.Engine.EXAPort == cfg.Engine.EXBPort {
		return fmt.Errorf("exa_port 和 exb_port 不能相同")
	}
	if cfg.Engine.RegionName == "" {
		return fmt.Errorf("region_name 不能为空")
	}

	if cfg.Strategy.StaleThresholdMs <= 0 {
		return fmt.Errorf("stale_threshold_ms 必须 > 0")
	}
	if cfg.Strategy.MaxTradesPerSec <= 0 {
		return fmt.Errorf("max_trades_per_sec 必须 > 0")
	}
	if cfg.Strategy.PNLLimit >= 0 {
		return fmt.Errorf("pnl_limit 必须 < 0（熔断下限）")
	}
	if cfg.Strategy.MinSpread < 0 {
		return fmt.Errorf("min_spread 必须 >= 0")
	}
	if cfg.Strategy.TradeSize <= 0 {
		return fmt.Errorf("trade_size 必须 > 0")
	}
	switch cfg.Strategy.Mode {
	case "OFF", "MONITOR", "ACTIVE":
	default:
		return fmt.Errorf("mode 必须是 OFF|MONITOR|ACTIVE, 实际 %q", cfg.Strategy.Mode)
	}

	return nil
}

// watchConfig 监听配置文件变化并热重载
func watchConfig() {
	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Str("file", e.Name).Msg("检测到配置文件变化，正在重载...")

		var newCfg Config
		if err := viper.Unmarshal(&newCfg); err != nil {
			log.Error().Err(err).Msg("重载配置失败")
			return
		}

		if err := validateConfig(&newCfg); err != nil {
			log.Error().Err(err).Msg("新配置验证失败，保持旧配置")
			return
		}

		globalConfig = &newCfg
		if reloadHook != nil {
			reloadHook(&newCfg)
		}
		log.Info().Msg("配置热重载成功")
	})
}

// StaleThreshold 新鲜度阈值
func (c *Config) StaleThreshold() time.Duration {
	return time.Duration(c.Strategy.StaleThresholdMs) * time.Millisecond
}

// StaleThresholdNS 新鲜度阈值（ns）
func (c *Config) StaleThresholdNS() uint64 {
	return uint64(c.Strategy.StaleThresholdMs) * 1_000_000
}
