package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig 进程级配置（来自 config.yaml + 环境变量覆盖）
// 与 TradingConfig 分离：这里是部署参数，不随交易决策变化。
type AppConfig struct {
	DataDir        string `yaml:"dataDir"`
	LogLevel       string `yaml:"logLevel"`
	LogFile        string `yaml:"logFile"`
	SecretStoreDir string `yaml:"secretStoreDir"`
	HistoryDBPath  string `yaml:"historyDbPath"`

	// AdminListen 管理接口监听地址（默认仅回环）
	AdminListen string `yaml:"adminListen"`

	// DebugListen expvar/pprof 监听地址（为空不启动）
	DebugListen string `yaml:"debugListen"`

	// BrokerBaseURL 券商 HTTP API 地址（live 模式）
	BrokerBaseURL string `yaml:"brokerBaseUrl"`

	// TelegramChatID 交易通知目标（0 关闭通知）
	TelegramChatID int64 `yaml:"telegramChatId"`

	// CycleMinutes 评估周期间隔
	CycleMinutes int `yaml:"cycleMinutes"`

	// ForceMarketOpen 纸面测试时跳过交易时段检查
	ForceMarketOpen bool `yaml:"forceMarketOpen"`
}

// ApplyDefaults 填充默认值
func (c *AppConfig) ApplyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFile == "" {
		c.LogFile = "logs/engine.log"
	}
	if c.SecretStoreDir == "" {
		c.SecretStoreDir = "data/secrets"
	}
	if c.HistoryDBPath == "" {
		c.HistoryDBPath = "data/history.db"
	}
	if c.AdminListen == "" {
		c.AdminListen = "127.0.0.1:8870"
	}
	if c.CycleMinutes <= 0 {
		c.CycleMinutes = 10
	}
}

// CycleInterval 周期间隔
func (c *AppConfig) CycleInterval() time.Duration {
	return time.Duration(c.CycleMinutes) * time.Minute
}

// LoadAppConfig 加载进程配置
// 文件不存在时返回默认配置；环境变量（STOCKBOT_ 前缀）覆盖文件值。
func LoadAppConfig(path string) (*AppConfig, error) {
	cfg := &AppConfig{}

	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		} else if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.ApplyDefaults()
	return cfg, nil
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("STOCKBOT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("STOCKBOT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STOCKBOT_ADMIN_LISTEN"); v != "" {
		cfg.AdminListen = v
	}
	if v := os.Getenv("STOCKBOT_DEBUG_LISTEN"); v != "" {
		cfg.DebugListen = v
	}
	if v := os.Getenv("STOCKBOT_BROKER_BASE_URL"); v != "" {
		cfg.BrokerBaseURL = v
	}
	if v := os.Getenv("STOCKBOT_TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.TelegramChatID = id
		}
	}
	if v := os.Getenv("STOCKBOT_CYCLE_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CycleMinutes = n
		}
	}
	if v := os.Getenv("STOCKBOT_FORCE_MARKET_OPEN"); v != "" {
		cfg.ForceMarketOpen = v == "1" || strings.EqualFold(v, "true")
	}
}
