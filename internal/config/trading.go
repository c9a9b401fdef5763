package config

import (
	"fmt"
	"strings"

	"github.com/stockbot/gostock/internal/domain"
)

// 默认值
const (
	DefaultBuyThresholdMarketUp   = 6.5 // 市场方向为正时的买入阈值（宽松）
	DefaultBuyThresholdMarketDown = 7.5 // 市场方向为负时的买入阈值（严格）
	DefaultExtremeBuyThreshold    = 8.5
	DefaultSellThreshold          = 4.0
	DefaultExtremeSellThreshold   = 2.0
	DefaultTechnicalOverride      = 3.0
	DefaultProtectedPercent       = 6.0
	DefaultMaxPositions           = 8
	DefaultMaxDailyTrades         = 10
	DefaultMaxDayTrades           = 3
	DefaultCooldownMinutes        = 30
	DefaultMinHoldDays            = 3
	DefaultMaxRotationsPerWeek    = 4
	DefaultBuyDelayMinutes        = 5
	DefaultTopBuyCandidates       = 3
	DefaultDriftThreshold         = -0.75
	DefaultStagnationLookback     = 12
	DefaultStagnationRangePct     = 0.25
	DefaultStagnationScoreCutoff  = 6.0
	DefaultBenchmarkSymbol        = "SPY"
)

// GateMode 市场方向闸门的严格程度
type GateMode string

const (
	// GateModeStrict 要求多周期一致确认回升才放行（默认）
	GateModeStrict GateMode = "strict"
	// GateModeLenient 盘中走平或转正即放行
	GateModeLenient GateMode = "lenient"
)

// TradingConfig 交易引擎配置
// 进程启动时加载一次，通过显式更新调用修改，每次变更整体覆盖落盘。
type TradingConfig struct {
	Enabled bool             `json:"enabled"`
	Mode    domain.TradeMode `json:"mode"`

	// 信号阈值（0-10 分制）
	BuyThresholdMarketUp   float64 `json:"buyThresholdMarketUp"`
	BuyThresholdMarketDown float64 `json:"buyThresholdMarketDown"`
	ExtremeBuyThreshold    float64 `json:"extremeBuyThreshold"`
	SellThreshold          float64 `json:"sellThreshold"`
	ExtremeSellThreshold   float64 `json:"extremeSellThreshold"`
	// TechnicalOverrideThreshold 技术面恶化到该分数以下时，可以突破动量保护卖出
	TechnicalOverrideThreshold float64 `json:"technicalOverrideThreshold"`

	// 动量保护：任一持仓未实现收益 >= 该百分比时，暂停新买入并保护该持仓
	ProtectedPositionPercent  float64 `json:"protectedPositionPercent"`
	MomentumProtectionEnabled bool    `json:"momentumProtectionEnabled"`

	// 仓位/频率限制
	MaxPositions    int `json:"maxPositions"`
	MaxDailyTrades  int `json:"maxDailyTrades"`
	MaxDayTrades    int `json:"maxDayTrades"`
	CooldownMinutes int `json:"cooldownMinutes"`

	// 反频繁交易
	MinHoldDays         int `json:"minHoldDays"`
	MaxRotationsPerWeek int `json:"maxRotationsPerWeek"`

	// 延迟买入
	BuyDelayMinutes int `json:"buyDelayMinutes"`

	// 候选与名单
	TopBuyCandidates int      `json:"topBuyCandidates"`
	Watchlist        []string `json:"watchlist"`
	Blacklist        []string `json:"blacklist"`
	// DefensiveSymbols 防御性/反向标的白名单：闸门关闭时仍允许买入，
	// 市场转向时其延迟买入不会被取消
	DefensiveSymbols []string `json:"defensiveSymbols"`

	// 市场方向闸门
	BenchmarkSymbol string   `json:"benchmarkSymbol"`
	MarketGateMode  GateMode `json:"marketGateMode"`

	// 漂移/滞涨检测
	EnableDriftCheck       bool    `json:"enableDriftCheck"`
	DriftThreshold         float64 `json:"driftThreshold"`
	EnableStagnationCheck  bool    `json:"enableStagnationCheck"`
	StagnationLookbackBars int     `json:"stagnationLookbackBars"`
	StagnationRangePercent float64 `json:"stagnationRangePercent"`
	StagnationScoreCutoff  float64 `json:"stagnationScoreCutoff"`

	// 功能开关
	EnableTrailingStops bool `json:"enableTrailingStops"`
}

// DefaultTradingConfig 编译期默认配置
func DefaultTradingConfig() *TradingConfig {
	c := &TradingConfig{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults 填充零值字段的默认值
func (c *TradingConfig) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = domain.TradeModePaper
	}
	if c.BuyThresholdMarketUp == 0 {
		c.BuyThresholdMarketUp = DefaultBuyThresholdMarketUp
	}
	if c.BuyThresholdMarketDown == 0 {
		c.BuyThresholdMarketDown = DefaultBuyThresholdMarketDown
	}
	if c.ExtremeBuyThreshold == 0 {
		c.ExtremeBuyThreshold = DefaultExtremeBuyThreshold
	}
	if c.SellThreshold == 0 {
		c.SellThreshold = DefaultSellThreshold
	}
	if c.ExtremeSellThreshold == 0 {
		c.ExtremeSellThreshold = DefaultExtremeSellThreshold
	}
	if c.TechnicalOverrideThreshold == 0 {
		c.TechnicalOverrideThreshold = DefaultTechnicalOverride
	}
	if c.ProtectedPositionPercent == 0 {
		c.ProtectedPositionPercent = DefaultProtectedPercent
	}
	if c.MaxPositions == 0 {
		c.MaxPositions = DefaultMaxPositions
	}
	if c.MaxDailyTrades == 0 {
		c.MaxDailyTrades = DefaultMaxDailyTrades
	}
	if c.MaxDayTrades == 0 {
		c.MaxDayTrades = DefaultMaxDayTrades
	}
	if c.CooldownMinutes == 0 {
		c.CooldownMinutes = DefaultCooldownMinutes
	}
	if c.MinHoldDays == 0 {
		c.MinHoldDays = DefaultMinHoldDays
	}
	if c.MaxRotationsPerWeek == 0 {
		c.MaxRotationsPerWeek = DefaultMaxRotationsPerWeek
	}
	if c.BuyDelayMinutes == 0 {
		c.BuyDelayMinutes = DefaultBuyDelayMinutes
	}
	if c.TopBuyCandidates == 0 {
		c.TopBuyCandidates = DefaultTopBuyCandidates
	}
	if c.BenchmarkSymbol == "" {
		c.BenchmarkSymbol = DefaultBenchmarkSymbol
	}
	if c.MarketGateMode == "" {
		c.MarketGateMode = GateModeStrict
	}
	if c.DriftThreshold == 0 {
		c.DriftThreshold = DefaultDriftThreshold
	}
	if c.StagnationLookbackBars == 0 {
		c.StagnationLookbackBars = DefaultStagnationLookback
	}
	if c.StagnationRangePercent == 0 {
		c.StagnationRangePercent = DefaultStagnationRangePct
	}
	if c.StagnationScoreCutoff == 0 {
		c.StagnationScoreCutoff = DefaultStagnationScoreCutoff
	}
	if c.DefensiveSymbols == nil {
		c.DefensiveSymbols = []string{"SH", "SDS", "PSQ"}
	}
}

// Validate 校验配置
func (c *TradingConfig) Validate() error {
	if c.Mode != domain.TradeModePaper && c.Mode != domain.TradeModeLive {
		return fmt.Errorf("无效的 Mode: %s", c.Mode)
	}
	if c.MarketGateMode != GateModeStrict && c.MarketGateMode != GateModeLenient {
		return fmt.Errorf("无效的 MarketGateMode: %s", c.MarketGateMode)
	}
	if c.BuyThresholdMarketUp > c.BuyThresholdMarketDown {
		return fmt.Errorf("市场为正的买入阈值不应高于市场为负的买入阈值: %.1f > %.1f",
			c.BuyThresholdMarketUp, c.BuyThresholdMarketDown)
	}
	if c.ExtremeBuyThreshold < c.BuyThresholdMarketDown {
		return fmt.Errorf("ExtremeBuyThreshold 必须 >= BuyThresholdMarketDown")
	}
	if c.ExtremeSellThreshold > c.SellThreshold {
		return fmt.Errorf("ExtremeSellThreshold 必须 <= SellThreshold")
	}
	if c.TechnicalOverrideThreshold > c.SellThreshold {
		return fmt.Errorf("TechnicalOverrideThreshold 必须 <= SellThreshold")
	}
	for _, pair := range [][2]float64{
		{c.BuyThresholdMarketUp, 0}, {c.BuyThresholdMarketDown, 0},
		{c.ExtremeBuyThreshold, 0}, {c.SellThreshold, 0},
	} {
		if pair[0] < 0 || pair[0] > 10 {
			return fmt.Errorf("阈值必须在 [0,10] 区间内: %.2f", pair[0])
		}
	}
	if c.ProtectedPositionPercent <= 0 {
		return fmt.Errorf("ProtectedPositionPercent 必须 > 0")
	}
	if c.MaxPositions <= 0 || c.MaxDailyTrades <= 0 {
		return fmt.Errorf("仓位/交易上限必须 > 0")
	}
	if c.CooldownMinutes < 0 || c.BuyDelayMinutes < 0 {
		return fmt.Errorf("冷却/延迟分钟数不能为负")
	}
	if c.MinHoldDays < 0 || c.MaxRotationsPerWeek < 0 {
		return fmt.Errorf("反频繁交易参数不能为负")
	}
	return nil
}

// IsBlacklisted 标的是否在黑名单
func (c *TradingConfig) IsBlacklisted(symbol string) bool {
	return containsSymbol(c.Blacklist, symbol)
}

// InWatchlist 标的是否在关注列表（空列表视为不限制）
func (c *TradingConfig) InWatchlist(symbol string) bool {
	if len(c.Watchlist) == 0 {
		return true
	}
	return containsSymbol(c.Watchlist, symbol)
}

// IsDefensive 标的是否在防御性白名单
func (c *TradingConfig) IsDefensive(symbol string) bool {
	return containsSymbol(c.DefensiveSymbols, symbol)
}

func containsSymbol(list []string, symbol string) bool {
	for _, s := range list {
		if strings.EqualFold(s, symbol) {
			return true
		}
	}
	return false
}
