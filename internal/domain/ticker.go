package domain

import "time"

// MACDSeries MACD 指标序列
// Histogram 是最近若干日的 MACD 柱状值（新值在末尾）；Line 是当前 MACD 线；
// LineMin/LineMax 给出回看窗口内 MACD 线的范围，用于"区间位置"修正。
type MACDSeries struct {
	Histogram []float64 `json:"histogram"`
	Line      float64   `json:"line"`
	LineMin   float64   `json:"lineMin"`
	LineMax   float64   `json:"lineMax"`
	// Combined 预先合成的 30/60/120 日多周期加权得分（可选，存在时优先使用）
	Combined *float64 `json:"combined,omitempty"`
}

// Ticker 单只标的的行情快照（每个评估周期不可变）
// 可选输入用指针表示：nil 代表数据缺失，打分时回退到中性值而不是报错。
type Ticker struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"changePercent"`

	// 成交量统计：sigma 为相对滚动均值的标准差倍数
	VolumeSigma        *float64 `json:"volumeSigma,omitempty"`
	IntradayMultiplier float64  `json:"intradayMultiplier,omitempty"`
	// TrailingChangePercent 近段价格变化（用于识别缩量下跌中的假放量）
	TrailingChangePercent *float64 `json:"trailingChangePercent,omitempty"`

	MACD *MACDSeries `json:"macd,omitempty"`
	RSI  *float64    `json:"rsi,omitempty"`

	// 60 日价格区间
	Low60Day  *float64 `json:"low60Day,omitempty"`
	High60Day *float64 `json:"high60Day,omitempty"`

	// 预测分及其时效
	PredictionScore *float64 `json:"predictionScore,omitempty"`
	PredictionAge   int      `json:"predictionAge,omitempty"` // 天

	// 财报日期（可选）
	EarningsDate *time.Time `json:"earningsDate,omitempty"`
}

// Bar 一根 OHLCV K 线
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Account 账户快照（外部来源，只读）
type Account struct {
	BuyingPower float64 `json:"buyingPower"`
	Equity      float64 `json:"equity"`
	Cash        float64 `json:"cash"`
}
