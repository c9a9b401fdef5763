package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/stockbot/gostock/internal/domain"
)

func f(v float64) *float64 { return &v }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// TestScoreEmptyTicker 测试空快照：全部中性，分数落在 [0,10]
func TestScoreEmptyTicker(t *testing.T) {
	s := NewScorer(time.UTC)

	score, b := s.Score(&domain.Ticker{Symbol: "AAPL", Price: 100})
	if score < 0 || score > 10 {
		t.Fatalf("分数越界: %.2f", score)
	}
	if b.Technical != NeutralTechnical {
		t.Errorf("RSI 缺失时技术分应为 %.1f，实际为 %.2f", NeutralTechnical, b.Technical)
	}
	if b.Prediction != NeutralPrediction {
		t.Errorf("预测缺失时预测分应为 %.1f，实际为 %.2f", NeutralPrediction, b.Prediction)
	}
}

// TestScoreNeverThrowsAndClamped 测试极端/缺失输入下分数始终在 [0,10]
func TestScoreNeverThrowsAndClamped(t *testing.T) {
	s := NewScorer(time.UTC)

	cases := []*domain.Ticker{
		nil,
		{Symbol: "X", Price: 1, ChangePercent: 500},
		{Symbol: "X", Price: 1, ChangePercent: -500},
		{Symbol: "X", Price: 1, RSI: f(math.NaN())},
		{Symbol: "X", Price: 1, VolumeSigma: f(math.NaN())},
		{Symbol: "X", Price: 0, Low60Day: f(10), High60Day: f(10)},
		{Symbol: "X", Price: 1, PredictionScore: f(99), PredictionAge: 400},
		{Symbol: "X", Price: 1, MACD: &domain.MACDSeries{}},
	}
	for i, tc := range cases {
		score, _ := s.Score(tc)
		if score < 0 || score > 10 {
			t.Errorf("case %d: 分数越界: %.2f", i, score)
		}
	}
}

// TestTechnicalScoreRSI 测试 RSI 映射 (100−|50−rsi|)/10
func TestTechnicalScoreRSI(t *testing.T) {
	s := NewScorer(time.UTC)

	cases := []struct {
		rsi  float64
		want float64
	}{
		{50, 10.0},
		{70, 8.0},
		{30, 8.0},
		{100, 5.0},
		{0, 5.0},
	}
	for _, tc := range cases {
		got := s.technicalScore(&domain.Ticker{RSI: f(tc.rsi)})
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("rsi=%.0f: 期望 %.1f，实际 %.2f", tc.rsi, tc.want, got)
		}
	}
}

// TestPsychologicalZones 测试心理动量三分区与符号反转
func TestPsychologicalZones(t *testing.T) {
	s := NewScorer(time.UTC)

	// zone1: +10% → −2.5，−10% → +2.5
	if got := s.psychologicalAdjustment(10); math.Abs(got-(-2.5)) > 1e-9 {
		t.Errorf("+10%%: 期望 −2.5，实际 %.2f", got)
	}
	if got := s.psychologicalAdjustment(-10); math.Abs(got-2.5) > 1e-9 {
		t.Errorf("−10%%: 期望 +2.5，实际 %.2f", got)
	}

	// zone1 顶点：15% → 3.75
	if got := s.psychologicalAdjustment(-15); math.Abs(got-3.75) > 1e-9 {
		t.Errorf("−15%%: 期望 +3.75，实际 %.2f", got)
	}

	// zone2 反转：20% 时幅度应小于 15% 顶点
	z15 := math.Abs(s.psychologicalAdjustment(15))
	z20 := math.Abs(s.psychologicalAdjustment(20))
	if z20 >= z15 {
		t.Errorf("zone2 应反向累积: |adj(20)|=%.2f >= |adj(15)|=%.2f", z20, z15)
	}

	// zone3 再反转：30% 时幅度应大于 25% 终点
	z25 := math.Abs(s.psychologicalAdjustment(25))
	z30 := math.Abs(s.psychologicalAdjustment(30))
	if z30 <= z25 {
		t.Errorf("zone3 应再度累积: |adj(30)|=%.2f <= |adj(25)|=%.2f", z30, z25)
	}

	// 分区边界连续
	if d := math.Abs(s.psychologicalAdjustment(-psychZone1End) - s.psychologicalAdjustment(-psychZone1End-1e-9)); d > 1e-6 {
		t.Errorf("zone1/zone2 边界不连续: Δ=%.6f", d)
	}
}

// TestTimeDecayPenalty 测试预测时效惩罚上限 4.2
func TestTimeDecayPenalty(t *testing.T) {
	s := NewScorer(time.UTC)

	tk := &domain.Ticker{PredictionScore: f(8), PredictionAge: 3}
	if got := s.timeDecayPenalty(tk); math.Abs(got-1.8) > 1e-9 {
		t.Errorf("3 天: 期望 1.8，实际 %.2f", got)
	}
	tk.PredictionAge = 30
	if got := s.timeDecayPenalty(tk); math.Abs(got-4.2) > 1e-9 {
		t.Errorf("30 天应封顶 4.2，实际 %.2f", got)
	}
	// 无预测分时不惩罚
	if got := s.timeDecayPenalty(&domain.Ticker{PredictionAge: 10}); got != 0 {
		t.Errorf("无预测分时不应惩罚，实际 %.2f", got)
	}
}

// TestMovementPenalty 测试超大波动惩罚：下跌全额、上涨减半
func TestMovementPenalty(t *testing.T) {
	s := NewScorer(time.UTC)

	if got := s.movementPenalty(11.9); got != 0 {
		t.Errorf("12%% 以内不应惩罚，实际 %.2f", got)
	}
	// 下跌 22%：excess=10 → −1−1 = −2
	if got := s.movementPenalty(-22); math.Abs(got-(-2)) > 1e-9 {
		t.Errorf("−22%%: 期望 −2.0，实际 %.2f", got)
	}
	// 上涨 22%：excess=10 → −0.5−0.5 = −1
	if got := s.movementPenalty(22); math.Abs(got-(-1)) > 1e-9 {
		t.Errorf("+22%%: 期望 −1.0，实际 %.2f", got)
	}
}

// TestVolumeScore 测试量能分与假放量保护
func TestVolumeScore(t *testing.T) {
	s := NewScorer(time.UTC)

	// sigma=5: 2.5×4/10−1 = 0
	tk := &domain.Ticker{VolumeSigma: f(5)}
	if got := s.volumeScore(tk); math.Abs(got) > 1e-9 {
		t.Errorf("sigma=5: 期望 0，实际 %.2f", got)
	}

	// sigma=11 → 1.5（上限）
	tk = &domain.Ticker{VolumeSigma: f(11)}
	if got := s.volumeScore(tk); math.Abs(got-1.5) > 1e-9 {
		t.Errorf("sigma=11: 期望 1.5，实际 %.2f", got)
	}

	// 下跌保护：近段价格变化 −0.1% 时强制取负
	tk = &domain.Ticker{VolumeSigma: f(11), TrailingChangePercent: f(-0.1)}
	if got := s.volumeScore(tk); got > 0 {
		t.Errorf("下跌放量应取负，实际 %.2f", got)
	}

	// 盘中倍数先作用到 sigma
	tk = &domain.Ticker{VolumeSigma: f(5), IntradayMultiplier: 2}
	want := 2.5*(10-1)/10 - 1 // 1.25
	if got := s.volumeScore(tk); math.Abs(got-want) > 1e-9 {
		t.Errorf("盘中倍数: 期望 %.2f，实际 %.2f", want, got)
	}
}

// TestPricePositionScore 测试 60 日区间位置分
func TestPricePositionScore(t *testing.T) {
	s := NewScorer(time.UTC)

	cases := []struct {
		price float64
		want  float64
	}{
		{100, 1.5},  // 区间底部（0%）
		{105, 1.5},  // 5% ≤ 10% → 超卖
		{150, 0},    // 50% 中位
		{195, -1.5}, // 95% ≥ 90% → 超买
		{200, -1.5}, // 顶部
	}
	for _, tc := range cases {
		tk := &domain.Ticker{Price: tc.price, Low60Day: f(100), High60Day: f(200)}
		got := s.pricePositionScore(tk)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("price=%.0f: 期望 %.2f，实际 %.2f", tc.price, tc.want, got)
		}
	}

	// 区间退化（min==max）时中性
	tk := &domain.Ticker{Price: 100, Low60Day: f(100), High60Day: f(100)}
	if got := s.pricePositionScore(tk); got != 0 {
		t.Errorf("退化区间应中性，实际 %.2f", got)
	}
}

// TestMACDAdjustmentPriority 测试 MACD 调整的优先级与范围
func TestMACDAdjustmentPriority(t *testing.T) {
	s := NewScorer(time.UTC)

	// 1) 预合成分优先，并裁剪到 [−2.5, 2.5]
	tk := &domain.Ticker{MACD: &domain.MACDSeries{Combined: f(5.0), Histogram: []float64{-1, -2, -3}}}
	if got := s.macdAdjustment(tk); math.Abs(got-2.5) > 1e-9 {
		t.Errorf("Combined=5 应裁剪为 2.5，实际 %.2f", got)
	}

	// 2) 斜率×区间位置：线在区间中部时因子为 1.5
	tk = &domain.Ticker{MACD: &domain.MACDSeries{
		Histogram: []float64{0.0, 0.1, 0.2},
		Line:      0, LineMin: -1, LineMax: 1,
	}}
	got := s.macdAdjustment(tk)
	if got <= 0 || got > 2.5 {
		t.Errorf("上升柱状应为正且不超过 2.5，实际 %.2f", got)
	}

	// 线贴近极值时衰减
	tkEdge := &domain.Ticker{MACD: &domain.MACDSeries{
		Histogram: []float64{0.0, 0.1, 0.2},
		Line:      1, LineMin: -1, LineMax: 1,
	}}
	if edge := s.macdAdjustment(tkEdge); edge >= got {
		t.Errorf("贴近极值应衰减: edge=%.2f >= mid=%.2f", edge, got)
	}

	// 3) 启发式回退
	tk = &domain.Ticker{MACD: &domain.MACDSeries{Histogram: []float64{-0.2, -0.3}}}
	if got := s.macdAdjustment(tk); math.Abs(got-(-1.0)) > 1e-9 {
		t.Errorf("负值下行柱状期望 −1.0，实际 %.2f", got)
	}
}

// TestEarningsScore 测试财报临近分
func TestEarningsScore(t *testing.T) {
	s := NewScorer(time.UTC)
	// 固定在收盘后，避免半日修正干扰断言
	now := time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC)
	s.SetNowFunc(fixedClock(now))

	// 15 天后财报：((30−15)/30)² = 0.25
	ed := now.Add(15 * 24 * time.Hour)
	tk := &domain.Ticker{EarningsDate: &ed}
	if got := s.earningsScore(tk); math.Abs(got-0.25) > 1e-9 {
		t.Errorf("15 天: 期望 0.25，实际 %.4f", got)
	}

	// 45 天后：窗口外为 0
	far := now.Add(45 * 24 * time.Hour)
	tk = &domain.Ticker{EarningsDate: &far}
	if got := s.earningsScore(tk); got != 0 {
		t.Errorf("30 天外应为 0，实际 %.4f", got)
	}

	// 财报后 1 天：负值
	past := now.Add(-24 * time.Hour)
	tk = &domain.Ticker{EarningsDate: &past}
	if got := s.earningsScore(tk); got >= 0 {
		t.Errorf("财报后应为负，实际 %.4f", got)
	}

	// 财报后 5 天：衰减结束
	old := now.Add(-5 * 24 * time.Hour)
	tk = &domain.Ticker{EarningsDate: &old}
	if got := s.earningsScore(tk); got != 0 {
		t.Errorf("财报后 3 天外应为 0，实际 %.4f", got)
	}

	// 收盘前半日修正：同一财报日期在盘中应更接近
	s.SetNowFunc(fixedClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)))
	ed2 := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	tk = &domain.Ticker{EarningsDate: &ed2}
	intraday := s.earningsScore(tk)
	s.SetNowFunc(fixedClock(time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC)))
	afterClose := s.earningsScore(tk)
	if intraday <= afterClose {
		t.Errorf("盘中应高于收盘后: intraday=%.4f afterClose=%.4f", intraday, afterClose)
	}
}
