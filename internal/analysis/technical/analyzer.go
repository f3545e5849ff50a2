package technical

import (
	"fmt"

	"github.com/markcheno/go-talib"
	"github.com/skalibog/sta/internal/config"
	"github.com/skalibog/sta/pkg/models"
)

// minCandles минимальное число свечей независимо от периодов
const minCandles = config.MinCandles

// Analyzer рассчитывает индикаторы по серии свечей
type Analyzer struct {
	config config.IndicatorConfig
}

// NewAnalyzer создает новый анализатор технических индикаторов
func NewAnalyzer(cfg config.IndicatorConfig) *Analyzer {
	return &Analyzer{
		config: cfg,
	}
}

// MinCandles количество свечей, при котором все индикаторы прошли прогрев.
// Первое значение %D появляется на свече rsi + (stoch-1) + (k-1) + (d-1).
func (a *Analyzer) MinCandles() int {
	return a.config.WarmupCandles()
}

// Analyze рассчитывает последние значения индикаторов.
// Свечи упорядочены от старой к новой, последняя считается текущей.
func (a *Analyzer) Analyze(candles []*models.Candle) (models.IndicatorSnapshot, error) {
	if need := a.MinCandles(); len(candles) < need {
		return models.IndicatorSnapshot{}, fmt.Errorf("%w: %d свечей (требуется %d)", models.ErrInsufficientData, len(candles), need)
	}

	closes := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		volumes[i] = c.Volume
	}

	rsi := talib.Rsi(closes, a.config.RSIPeriod)
	stochK, stochD := a.stochRSI(rsi[a.config.RSIPeriod:])
	emaFast := talib.Ema(closes, a.config.EMAFast)
	emaSlow := talib.Ema(closes, a.config.EMASlow)

	last := len(candles) - 1
	return models.IndicatorSnapshot{
		RSI:           rsi[last],
		StochK:        stochK,
		StochD:        stochD,
		EMAFast:       emaFast[last],
		EMASlow:       emaSlow[last],
		Close:         closes[last],
		CurrentVolume: volumes[last],
		MeanVolume:    mean(volumes[:last]),
		CandleCount:   len(candles),
	}, nil
}

// RSI последнее значение RSI, используется для вспомогательных активов
func (a *Analyzer) RSI(candles []*models.Candle) (float64, error) {
	if len(candles) <= a.config.RSIPeriod {
		return 0, fmt.Errorf("%w: %d свечей (требуется %d)", models.ErrInsufficientData, len(candles), a.config.RSIPeriod+1)
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	rsi := talib.Rsi(closes, a.config.RSIPeriod)
	return rsi[len(rsi)-1], nil
}

// stochRSI нормирует RSI по собственному диапазону и сглаживает %K и %D.
// На вход подаются только значения RSI после прогрева.
func (a *Analyzer) stochRSI(rsi []float64) (float64, float64) {
	period := a.config.StochPeriod

	highs := talib.Max(rsi, period)
	lows := talib.Min(rsi, period)

	raw := make([]float64, 0, len(rsi)-period+1)
	for i := period - 1; i < len(rsi); i++ {
		rng := highs[i] - lows[i]
		if rng == 0 {
			// RSI не менялся за окно, нейтральное значение
			raw = append(raw, 50)
			continue
		}
		raw = append(raw, 100*(rsi[i]-lows[i])/rng)
	}

	k := sma(raw, a.config.StochK)
	d := sma(k, a.config.StochD)
	return k[len(k)-1], d[len(d)-1]
}

// sma возвращает только значения после прогрева
func sma(values []float64, period int) []float64 {
	if period <= 1 {
		return values
	}
	return talib.Sma(values, period)[period-1:]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
