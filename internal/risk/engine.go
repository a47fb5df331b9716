// Package risk реализует композитный скоринг риска инструмента.
//
// Оценка собирается из нормализованных сигналов (волатильность, бета,
// просадка, долговая нагрузка, отчётность, сентимент) взвешенной
// суммой и отображается в целочисленную шкалу [1,10]. Отказ любого
// источника данных не роняет скоринг: недоступный сигнал считается
// нейтральным, полный отказ даёт ровно 5.
package risk

import (
	"context"
	"errors"
	"math"
	"time"

	"stockwatch/internal/provider"
	"stockwatch/pkg/utils"
)

const (
	// NeutralScore возвращается при полном отказе источников данных
	NeutralScore = 5

	// Нейтральное значение недоступного сигнала
	neutralSignal = 0.5
)

// Окна исторических данных
const (
	shortWindowDays  = 30
	mediumWindowDays = 90
	longWindowDays   = 365
)

// Веса сигналов, сумма равна 1
const (
	weightVolatility  = 0.20
	weightBeta        = 0.10
	weightDrawdown    = 0.15
	weightLeverage    = 0.10
	weightCoverage    = 0.10
	weightSurprise    = 0.10
	weightSentiment   = 0.10
	weightRelStrength = 0.10
	weightMarketVol   = 0.05
)

// Result - результат скоринга
type Result struct {
	Symbol string `json:"symbol"`
	// Итоговая оценка в [1,10], 10 - максимальный риск
	Score int `json:"riskScore"`
	// Нормализованные сигналы [0,1] по именам
	Factors map[string]float64 `json:"factors"`
	// Композит до округления, [0,1]
	Composite float64 `json:"composite"`
	// true когда оценка вырождена в нейтральную из-за отказа данных
	Degraded bool `json:"degraded,omitempty"`
	// Пояснение при деградации
	Explanation string    `json:"explanation,omitempty"`
	ComputedAt  time.Time `json:"computedAt"`
}

// Engine - движок скоринга
//
// Один Engine обслуживает все тикеры: собственного состояния по
// инструментам он не держит, кэширование результатов - забота
// вызывающего (см. monitor.RiskCache).
type Engine struct {
	data      provider.DataProvider
	benchmark string
	logger    *utils.Logger
}

// NewEngine создает движок скоринга
// benchmark - тикер индекса для беты и относительной силы (обычно SPY)
func NewEngine(data provider.DataProvider, benchmark string, logger *utils.Logger) *Engine {
	if benchmark == "" {
		benchmark = "SPY"
	}
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}
	return &Engine{
		data:      data,
		benchmark: benchmark,
		logger:    logger.WithComponent("risk"),
	}
}

// Score вычисляет композитную оценку риска
// Никогда не возвращает ошибку - при отказе данных оценка нейтральная
func (e *Engine) Score(ctx context.Context, symbol string, currentPrice float64) *Result {
	now := time.Now()
	factors := make(map[string]float64)

	candles, err := e.data.GetCandles(ctx, symbol, now.AddDate(0, 0, -longWindowDays), now)
	if err != nil || candles == nil || len(candles.Closes) < 2 {
		// Без исторических цен ни один ценовой сигнал не посчитать -
		// это полный отказ скоринга
		e.logger.Warn("scoring degraded to neutral",
			utils.Symbol(symbol),
			utils.Err(err))
		return &Result{
			Symbol:      symbol,
			Score:       NeutralScore,
			Factors:     factors,
			Composite:   neutralSignal,
			Degraded:    true,
			Explanation: "historical data unavailable, neutral score applied",
			ComputedAt:  now,
		}
	}

	benchCandles, benchErr := e.data.GetCandles(ctx, e.benchmark, now.AddDate(0, 0, -longWindowDays), now)

	// --- Волатильность по трём окнам ---
	factors["volatility"] = e.volatilitySignal(candles.Closes)

	// --- Бета и относительная сила против бенчмарка ---
	if benchErr == nil && benchCandles != nil && len(benchCandles.Closes) >= 2 {
		assetReturns := dailyReturns(candles.Closes)
		benchReturns := dailyReturns(benchCandles.Closes)
		factors["beta"] = normBeta(beta(assetReturns, benchReturns))
		factors["relativeStrength"] = normRelStrength(relativeStrength(candles.Closes, benchCandles.Closes))
		factors["marketVolatility"] = normVol(annualizedVol(tail(benchReturns, shortWindowDays)))
	} else {
		factors["beta"] = neutralSignal
		factors["relativeStrength"] = neutralSignal
		factors["marketVolatility"] = neutralSignal
	}

	// --- Максимальная просадка за длинное окно ---
	factors["drawdown"] = normDrawdown(maxDrawdown(candles.Closes))

	// --- Фундаментальные метрики ---
	if fund, err := e.data.GetFundamentals(ctx, symbol); err == nil && fund != nil {
		factors["leverage"] = normLeverage(fund.DebtToEquity)
		factors["coverage"] = normCoverage(fund.InterestCoverage)
	} else {
		factors["leverage"] = neutralSignal
		factors["coverage"] = neutralSignal
	}

	// --- Сюрприз последней отчётности ---
	if earnings, err := e.data.GetLatestEarnings(ctx, symbol); err == nil && earnings != nil {
		factors["earningsSurprise"] = normSurprise(earnings.Surprise())
	} else {
		factors["earningsSurprise"] = neutralSignal
	}

	// --- Сентимент: эндпоинт провайдера, иначе словарный fallback ---
	factors["sentiment"] = e.sentimentSignal(ctx, symbol, now)

	composite := weightVolatility*factors["volatility"] +
		weightBeta*factors["beta"] +
		weightDrawdown*factors["drawdown"] +
		weightLeverage*factors["leverage"] +
		weightCoverage*factors["coverage"] +
		weightSurprise*factors["earningsSurprise"] +
		weightSentiment*factors["sentiment"] +
		weightRelStrength*factors["relativeStrength"] +
		weightMarketVol*factors["marketVolatility"]

	composite = utils.Clamp01(composite)

	return &Result{
		Symbol:     symbol,
		Score:      compositeToScore(composite),
		Factors:    factors,
		Composite:  composite,
		ComputedAt: now,
	}
}

// volatilitySignal усредняет годовую волатильность по трём окнам
func (e *Engine) volatilitySignal(closes []float64) float64 {
	returns := dailyReturns(closes)
	if len(returns) < 2 {
		return neutralSignal
	}

	vols := []float64{
		annualizedVol(tail(returns, shortWindowDays)),
		annualizedVol(tail(returns, mediumWindowDays)),
		annualizedVol(returns),
	}
	return normVol(utils.Mean(vols))
}

// sentimentSignal берёт сентимент провайдера, при недоступности
// (премиум тариф) переключается на словарный анализ заголовков
func (e *Engine) sentimentSignal(ctx context.Context, symbol string, now time.Time) float64 {
	if sent, err := e.data.GetSentiment(ctx, symbol); err == nil && sent != nil {
		return normSentiment(sent.BullishScore)
	} else if err != nil && !errors.Is(err, provider.ErrUnsupported) {
		return neutralSignal
	}

	events, err := e.data.GetNews(ctx, symbol, now.AddDate(0, 0, -7), now)
	if err != nil || len(events) == 0 {
		return neutralSignal
	}

	headlines := make([]string, 0, len(events))
	for _, ev := range events {
		headlines = append(headlines, ev.Headline)
	}
	return normSentiment(keywordSentiment(headlines))
}

// compositeToScore отображает композит [0,1] в целую шкалу [1,10]
func compositeToScore(composite float64) int {
	score := int(math.Round(1 + composite*9))
	if score < 1 {
		return 1
	}
	if score > 10 {
		return 10
	}
	return score
}

// tail возвращает последние n элементов
func tail(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}
