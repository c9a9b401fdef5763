package scoring

import (
	"math"
	"testing"
	"testing/quick"
	"time"

	"github.com/stockbot/gostock/internal/domain"
)

// **Property: 综合分有界**
// 对任意行情快照输入（含缺失字段与极端值），综合分始终落在 [0,10] 且不为 NaN。
func TestPropertyScoreAlwaysClamped(t *testing.T) {
	scorer := NewScorer(time.UTC)
	scorer.SetNowFunc(func() time.Time {
		return time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	})

	property := func(rsi, change, pred float64, predAge int, hasRSI, hasPred bool) bool {
		ticker := &domain.Ticker{
			Symbol:        "TEST",
			Price:         100,
			ChangePercent: math.Mod(change, 100),
		}
		if hasRSI {
			ticker.RSI = &rsi
		}
		if hasPred {
			ticker.PredictionScore = &pred
			ticker.PredictionAge = predAge % 30
		}

		total, b := scorer.Score(ticker)
		if math.IsNaN(total) || total < 0 || total > 10 {
			t.Logf("综合分越界: total=%.4f breakdown=%s", total, b)
			return false
		}
		if total != b.Total {
			t.Logf("返回值与明细不一致: %.4f vs %.4f", total, b.Total)
			return false
		}
		return true
	}

	if err := quick.Check(property, &quick.Config{MaxCount: 200}); err != nil {
		t.Errorf("属性测试失败: %v", err)
	}
}
