package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stockbot/gostock/internal/domain"
)

var log = logrus.WithField("module", "scoring")

// 中性基线：任何输入缺失时各分项退回中性值，打分永不报错。
const (
	NeutralTechnical  = 6.0
	NeutralPrediction = 5.0

	// TimeDecayPerDay 预测时效惩罚：每天 0.6 分，最多 7 天（4.2 分）
	TimeDecayPerDay  = 0.6
	TimeDecayMaxDays = 7.0

	// 心理动量分区断点（单日涨跌幅绝对值，百分比）
	psychZone1End = 15.0
	psychZone2End = 25.0
	psychRate     = 0.25 // (|Δ|/2)×0.5

	// 超大波动惩罚
	movementPenaltyStart = 12.0
)

// Breakdown 分项明细（可解释性输出）
type Breakdown struct {
	Technical        float64 `json:"technical"`
	Prediction       float64 `json:"prediction"`
	Psychological    float64 `json:"psychological"`
	DirectionalBonus float64 `json:"directionalBonus"`
	PositiveBonus    float64 `json:"positiveBonus"`
	TimeDecayPenalty float64 `json:"timeDecayPenalty"`
	MACDAdjustment   float64 `json:"macdAdjustment"`
	VolumeScore      float64 `json:"volumeScore"`
	PricePosition    float64 `json:"pricePosition"`
	EarningsScore    float64 `json:"earningsScore"`
	MovementPenalty  float64 `json:"movementPenalty"`
	Total            float64 `json:"total"`
}

// String 便于塞进 reasoning 行
func (b Breakdown) String() string {
	return fmt.Sprintf("tech=%.2f pred=%.2f psych=%.2f macd=%.2f vol=%.2f pos=%.2f earn=%.2f move=%.2f total=%.2f",
		b.Technical, b.Prediction, b.Psychological, b.MACDAdjustment,
		b.VolumeScore, b.PricePosition, b.EarningsScore, b.MovementPenalty, b.Total)
}

// Scorer 综合打分器：把单只标的的行情快照映射到 [0,10] 的综合分。
type Scorer struct {
	loc *time.Location
	now func() time.Time
}

// NewScorer 创建打分器
// loc 为交易所本地时区（财报临近分的半日修正依赖它），nil 时使用纽约时区。
func NewScorer(loc *time.Location) *Scorer {
	if loc == nil {
		var err error
		loc, err = time.LoadLocation("America/New_York")
		if err != nil {
			log.Warnf("⚠️ 加载交易所时区失败，使用 UTC: %v", err)
			loc = time.UTC
		}
	}
	return &Scorer{loc: loc, now: time.Now}
}

// SetNowFunc 注入虚拟时钟（测试用）
func (s *Scorer) SetNowFunc(now func() time.Time) { s.now = now }

// Score 计算综合分，返回 [0,10] 的分数和分项明细。
// 任何缺失输入都按中性处理，不会返回错误。
func (s *Scorer) Score(t *domain.Ticker) (float64, Breakdown) {
	var b Breakdown
	if t == nil {
		b.Technical = NeutralTechnical
		b.Prediction = NeutralPrediction
		b.Total = clamp010((b.Technical + b.Prediction) / 2)
		return b.Total, b
	}

	b.Technical = s.technicalScore(t)
	b.Prediction = s.predictionScore(t)
	b.Psychological = s.psychologicalAdjustment(t.ChangePercent)
	b.DirectionalBonus = s.directionalBonus(t)
	b.PositiveBonus = s.positiveBonus(t.ChangePercent)
	b.TimeDecayPenalty = s.timeDecayPenalty(t)
	b.MACDAdjustment = s.macdAdjustment(t)
	b.VolumeScore = s.volumeScore(t)
	b.PricePosition = s.pricePositionScore(t)
	b.EarningsScore = s.earningsScore(t)
	b.MovementPenalty = s.movementPenalty(t.ChangePercent)

	total := (b.Technical+b.Prediction)/2 +
		b.Psychological +
		b.DirectionalBonus +
		b.PositiveBonus -
		b.TimeDecayPenalty +
		b.MACDAdjustment +
		b.VolumeScore +
		b.PricePosition*1.25 +
		b.EarningsScore*2.0 +
		b.MovementPenalty

	b.Total = clamp010(total)
	return b.Total, b
}

// technicalScore RSI 映射：(100 − |50 − rsi|)/10，缺失时 6.0
func (s *Scorer) technicalScore(t *domain.Ticker) float64 {
	if t.RSI == nil || math.IsNaN(*t.RSI) {
		return NeutralTechnical
	}
	rsi := clampF(*t.RSI, 0, 100)
	return (100 - math.Abs(50-rsi)) / 10
}

func (s *Scorer) predictionScore(t *domain.Ticker) float64 {
	if t.PredictionScore == nil || math.IsNaN(*t.PredictionScore) {
		return NeutralPrediction
	}
	return clamp010(*t.PredictionScore)
}

// psychologicalAdjustment 心理动量调整：均值回归偏置，涨幅压分、跌幅加分。
// 三个分区：0-15% 线性累积，15-25% 第一次反转（沿用已累积值后反向），
// >25% 第二次反转。断点 15/25 固定。
func (s *Scorer) psychologicalAdjustment(changePercent float64) float64 {
	abs := math.Abs(changePercent)
	if abs == 0 || math.IsNaN(abs) {
		return 0
	}

	var magnitude float64
	switch {
	case abs <= psychZone1End:
		magnitude = abs * psychRate
	case abs <= psychZone2End:
		// 第一次反转：从 zone1 顶点往回走
		magnitude = psychZone1End*psychRate - (abs-psychZone1End)*psychRate
	default:
		// 第二次反转：从 zone2 终点再度累积
		zone2End := psychZone1End*psychRate - (psychZone2End-psychZone1End)*psychRate
		magnitude = zone2End + (abs-psychZone2End)*psychRate
	}

	// 均值回归：上涨为负调整，下跌为正调整
	if changePercent > 0 {
		return -magnitude
	}
	return magnitude
}

// directionalBonus 下跌但 MACD 柱状转强时的小幅奖励（0.5）
func (s *Scorer) directionalBonus(t *domain.Ticker) float64 {
	if t.ChangePercent >= 0 || t.MACD == nil || len(t.MACD.Histogram) < 2 {
		return 0
	}
	n := len(t.MACD.Histogram)
	if t.MACD.Histogram[n-1] > t.MACD.Histogram[n-2] {
		return 0.5
	}
	return 0
}

// positiveBonus 温和健康上涨（0 < Δ <= 2%）奖励 0.25
func (s *Scorer) positiveBonus(changePercent float64) float64 {
	if changePercent > 0 && changePercent <= 2.0 {
		return 0.25
	}
	return 0
}

// timeDecayPenalty 预测时效惩罚：min(7, daysOld) × 0.6
func (s *Scorer) timeDecayPenalty(t *domain.Ticker) float64 {
	if t.PredictionScore == nil || t.PredictionAge <= 0 {
		return 0
	}
	days := math.Min(TimeDecayMaxDays, float64(t.PredictionAge))
	return days * TimeDecayPerDay
}

// movementPenalty 超大单日波动惩罚：12% 以内为 0；
// 超出部分下跌全额、上涨减半。
func (s *Scorer) movementPenalty(changePercent float64) float64 {
	abs := math.Abs(changePercent)
	if abs < movementPenaltyStart || math.IsNaN(abs) {
		return 0
	}
	excess := abs - movementPenaltyStart
	if changePercent < 0 {
		return -1 - excess/10
	}
	return -0.5 - excess/20
}

func clamp010(v float64) float64 {
	if math.IsNaN(v) {
		return 5
	}
	return clampF(v, 0, 10)
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
