package risk

import (
	"math"

	"stockwatch/pkg/utils"
)

// Торговых дней в году, для аннуализации дневной волатильности
const tradingDaysPerYear = 252

// dailyReturns возвращает дневные доходности по ценам закрытия
func dailyReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns = append(returns, closes[i]/closes[i-1]-1)
	}
	return returns
}

// annualizedVol возвращает годовую волатильность по дневным доходностям
func annualizedVol(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	return utils.StdDev(returns) * math.Sqrt(tradingDaysPerYear)
}

// beta возвращает регрессионную чувствительность к бенчмарку
// cov(asset, bench) / var(bench); при нулевой дисперсии бенчмарка - 1
func beta(asset, bench []float64) float64 {
	n := len(asset)
	if len(bench) < n {
		n = len(bench)
	}
	if n < 2 {
		return 1
	}
	asset = asset[len(asset)-n:]
	bench = bench[len(bench)-n:]

	meanA := utils.Mean(asset)
	meanB := utils.Mean(bench)

	var cov, varB float64
	for i := 0; i < n; i++ {
		cov += (asset[i] - meanA) * (bench[i] - meanB)
		varB += (bench[i] - meanB) * (bench[i] - meanB)
	}
	if varB == 0 {
		return 1
	}
	return cov / varB
}

// maxDrawdown возвращает максимальную просадку от пика, в долях [0,1]
func maxDrawdown(closes []float64) float64 {
	if len(closes) < 2 {
		return 0
	}
	peak := closes[0]
	var worst float64
	for _, price := range closes {
		if price > peak {
			peak = price
		}
		if peak > 0 {
			dd := (peak - price) / peak
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// relativeStrength возвращает превышение доходности актива над бенчмарком
// за общий период, в долях
func relativeStrength(assetCloses, benchCloses []float64) float64 {
	if len(assetCloses) < 2 || len(benchCloses) < 2 {
		return 0
	}
	assetRet := assetCloses[len(assetCloses)-1]/assetCloses[0] - 1
	benchRet := benchCloses[len(benchCloses)-1]/benchCloses[0] - 1
	return assetRet - benchRet
}

// ============================================================
// Нормализация сигналов в [0,1], где 1 = выше риск
// Недоступный сигнал всегда представляется нейтральным 0.5
// ============================================================

// normVol: 0% годовой волатильности -> 0, 80%+ -> 1
func normVol(vol float64) float64 {
	return utils.Clamp01(vol / 0.80)
}

// normBeta: beta 0 -> 0, beta 2+ -> 1; рыночная beta 1 - нейтральные 0.5
func normBeta(b float64) float64 {
	return utils.Clamp01(b / 2.0)
}

// normDrawdown: просадка уже в [0,1], 50%+ считаем максимальным риском
func normDrawdown(dd float64) float64 {
	return utils.Clamp01(dd / 0.50)
}

// normLeverage: D/E 0 -> 0, D/E 3+ -> 1
func normLeverage(de float64) float64 {
	if de < 0 {
		return neutralSignal
	}
	return utils.Clamp01(de / 3.0)
}

// normCoverage: высокое покрытие процентов - низкий риск
// coverage 10+ -> 0, coverage 0 и ниже -> 1
func normCoverage(cov float64) float64 {
	if cov <= 0 {
		return 1
	}
	return utils.Clamp01(1 - cov/10.0)
}

// normSurprise: негативный сюрприз по EPS повышает риск
// промах на 20%+ -> 1, попадание в прогноз -> 0.5, превышение на 20%+ -> 0
func normSurprise(surprise float64) float64 {
	return utils.Clamp01(0.5 - surprise/0.40)
}

// normSentiment: bullish 100% -> 0, bullish 0% -> 1
func normSentiment(bullishPct float64) float64 {
	return utils.Clamp01(1 - bullishPct/100.0)
}

// normRelStrength: отставание от бенчмарка на 30%+ -> 1,
// опережение на 30%+ -> 0
func normRelStrength(rs float64) float64 {
	return utils.Clamp01(0.5 - rs/0.60)
}
