package config

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/stockbot/gostock/pkg/persistence"
)

var log = logrus.WithField("module", "config")

// TradingConfigStoreName trading-config.json
const TradingConfigStoreName = "trading-config"

// Manager 交易配置管理器
// 启动时从磁盘加载；持久化状态损坏时回退到编译期默认值并继续运行，
// 绝不因坏的状态文件导致引擎启动失败。
type Manager struct {
	mu    sync.RWMutex
	cfg   *TradingConfig
	store persistence.Store
}

// NewManager 创建配置管理器并加载持久化配置
func NewManager(service persistence.Service) *Manager {
	m := &Manager{
		store: service.NewStore(TradingConfigStoreName),
	}
	m.cfg = m.load()
	return m
}

func (m *Manager) load() *TradingConfig {
	var cfg TradingConfig
	err := m.store.Load(&cfg)
	if err != nil {
		if errors.Is(err, persistence.ErrNotExists) {
			log.Info("未找到持久化配置，使用默认配置")
		} else {
			log.Warnf("⚠️ 持久化配置损坏，回退到默认配置: %v", err)
		}
		return DefaultTradingConfig()
	}
	cfg.ApplyDefaults()
	if verr := cfg.Validate(); verr != nil {
		log.Warnf("⚠️ 持久化配置校验失败，回退到默认配置: %v", verr)
		return DefaultTradingConfig()
	}
	return &cfg
}

// Get 返回当前配置的副本
func (m *Manager) Get() TradingConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.cfg
}

// Update 应用并持久化新配置（整体覆盖）
func (m *Manager) Update(mutate func(*TradingConfig)) (TradingConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := *m.cfg
	mutate(&next)
	next.ApplyDefaults()
	if err := next.Validate(); err != nil {
		return *m.cfg, err
	}
	if err := m.store.Save(&next); err != nil {
		return *m.cfg, err
	}
	m.cfg = &next
	log.Infof("配置已更新并落盘: enabled=%v mode=%s", next.Enabled, next.Mode)
	return next, nil
}

// SetEnabled 开关交易
func (m *Manager) SetEnabled(enabled bool) (TradingConfig, error) {
	return m.Update(func(c *TradingConfig) { c.Enabled = enabled })
}
