package marketdata

import "math"

// 本文件只实现决策引擎消费的几个指标，不是通用 TA 库。

// ema 指数移动平均序列，长度与输入一致，前 period-1 个值用 SMA 预热
func ema(values []float64, period int) []float64 {
	if len(values) == 0 || period <= 0 || len(values) < period {
		return nil
	}
	out := make([]float64, len(values))
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
		out[i] = sum / float64(i+1)
	}
	k := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// computeRSI 标准 14 日 RSI（Wilder 平滑）
// 数据不足时返回 (0, false)。
func computeRSI(closes []float64, period int) (float64, bool) {
	if len(closes) < period+1 {
		return 0, false
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}
	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// computeMACD 12/26/9 MACD：返回 线序列 与 柱状图序列（等长，已对齐）
func computeMACD(closes []float64) (line, histogram []float64) {
	fast := ema(closes, 12)
	slow := ema(closes, 26)
	if fast == nil || slow == nil {
		return nil, nil
	}
	line = make([]float64, len(closes))
	for i := range closes {
		line[i] = fast[i] - slow[i]
	}
	signal := ema(line, 9)
	if signal == nil {
		return line, nil
	}
	histogram = make([]float64, len(closes))
	for i := range closes {
		histogram[i] = line[i] - signal[i]
	}
	return line, histogram
}

// volumeSigma 最新成交量相对滚动均值的标准差倍数
// 样本不足或零方差时返回 (0, false)。
func volumeSigma(volumes []float64) (float64, bool) {
	if len(volumes) < 10 {
		return 0, false
	}
	hist := volumes[:len(volumes)-1]
	var sum float64
	for _, v := range hist {
		sum += v
	}
	mean := sum / float64(len(hist))
	var variance float64
	for _, v := range hist {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(hist))
	std := math.Sqrt(variance)
	if std == 0 {
		return 0, false
	}
	return (volumes[len(volumes)-1] - mean) / std, true
}

func minMax(values []float64) (min, max float64) {
	if len(values) == 0 {
		return 0, 0
	}
	min, max = values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}
