package stops

import (
	"math"
	"testing"
	"testing/quick"

	"github.com/stockbot/gostock/internal/domain"
	"github.com/stockbot/gostock/pkg/persistence"
)

// **Property: 止损档位有界且单调**
// 对任意收益率输入，档位满足：收益 ≤ 0 或非法时为 0；
// 收益 > 0 时落在 [1, max(1, gain/2)]，且随收益单调不减。
func TestPropertyStopTierBoundedMonotone(t *testing.T) {
	property := func(gain float64) bool {
		// 输入域约束：限制在现实的收益率范围
		if math.IsNaN(gain) || math.IsInf(gain, 0) {
			return calculateStopLossPercent(gain) == 0
		}
		gain = math.Mod(gain, 200)

		pct := calculateStopLossPercent(gain)
		if gain <= 0 {
			return pct == 0
		}
		upper := math.Max(1, gain/2)
		if pct < 1 || pct > upper {
			t.Logf("档位越界: gain=%.4f pct=%.4f upper=%.4f", gain, pct, upper)
			return false
		}
		// 单调性：略高的收益不应得到更低的档位
		if higher := calculateStopLossPercent(gain + 1); higher < pct {
			t.Logf("档位非单调: gain=%.4f pct=%.4f gain+1 pct=%.4f", gain, pct, higher)
			return false
		}
		return true
	}

	if err := quick.Check(property, &quick.Config{MaxCount: 100}); err != nil {
		t.Errorf("属性测试失败: %v", err)
	}
}

// **Property: 止损价只升不降（棘轮）**
// 对任意价格序列，逐步刷新止损后，同一标的的止损价永不下降。
func TestPropertyStopPriceRatchetsUp(t *testing.T) {
	property := func(prices []float64) bool {
		if len(prices) == 0 {
			return true
		}

		svc := persistence.NewJSONFileService(t.TempDir())
		eng, err := NewEngine(svc)
		if err != nil {
			t.Logf("创建引擎失败: %v", err)
			return false
		}

		const entry = 100.0
		lastStop := 0.0
		for _, raw := range prices {
			// 输入域约束：价格归一到 (0, 300]
			price := math.Abs(math.Mod(raw, 300))
			if price == 0 || math.IsNaN(price) {
				price = entry
			}
			pos := []domain.Position{{
				Symbol:        "AAPL",
				Quantity:      10,
				AvgEntryPrice: entry,
				CurrentPrice:  price,
			}}
			if err := eng.UpdateStops(pos); err != nil {
				t.Logf("刷新止损失败: %v", err)
				return false
			}
			stop := eng.Get("AAPL")
			if stop == nil {
				continue
			}
			if stop.StopPrice < lastStop {
				t.Logf("止损价下降: %.4f -> %.4f (price=%.4f)", lastStop, stop.StopPrice, price)
				return false
			}
			lastStop = stop.StopPrice
		}
		return true
	}

	if err := quick.Check(property, &quick.Config{MaxCount: 50}); err != nil {
		t.Errorf("属性测试失败: %v", err)
	}
}
