package signal

import (
	"fmt"

	"github.com/skalibog/sta/internal/config"
	"github.com/skalibog/sta/pkg/models"
)

// Indicator значение из снимка, с которым сравнивается порог
type Indicator int

const (
	IndicatorStochK Indicator = iota
	IndicatorRSI
	// IndicatorEMASpread разница быстрой и медленной EMA
	IndicatorEMASpread
	// IndicatorVolume объем текущей свечи, порог задается множителем к среднему
	IndicatorVolume
)

// Comparator сторона порога
type Comparator string

const (
	Below Comparator = "below"
	Above Comparator = "above"
)

// Condition одно сравнение (индикатор, сторона, порог)
type Condition struct {
	Indicator  Indicator
	Comparator Comparator
	Threshold  float64
}

// Rule флаг с условиями для каждого направления
type Rule struct {
	Name  string
	Long  Condition
	Short Condition
}

// Evaluator проверяет флаги по таблице правил
type Evaluator struct {
	rules []Rule
}

// NewEvaluator создает таблицу правил из конфигурации
func NewEvaluator(cfg config.SignalConfig) (*Evaluator, error) {
	table := map[string]Rule{
		config.FlagStochRSI: {
			Name:  config.FlagStochRSI,
			Long:  Condition{IndicatorStochK, Below, cfg.StochOversold},
			Short: Condition{IndicatorStochK, Above, cfg.StochOverbought},
		},
		config.FlagTrend: {
			Name:  config.FlagTrend,
			Long:  Condition{IndicatorEMASpread, Above, 0},
			Short: Condition{IndicatorEMASpread, Below, 0},
		},
		config.FlagRSIZone: {
			Name:  config.FlagRSIZone,
			Long:  Condition{IndicatorRSI, Below, cfg.RSILongBelow},
			Short: Condition{IndicatorRSI, Above, cfg.RSIShortAbove},
		},
		config.FlagVolumeSpike: {
			Name:  config.FlagVolumeSpike,
			Long:  Condition{IndicatorVolume, Above, cfg.VolumeMultiplier},
			Short: Condition{IndicatorVolume, Above, cfg.VolumeMultiplier},
		},
	}

	rules := make([]Rule, 0, len(cfg.Flags))
	seen := make(map[string]bool, len(cfg.Flags))
	for _, name := range cfg.Flags {
		rule, ok := table[name]
		if !ok {
			return nil, fmt.Errorf("неизвестный флаг %q", name)
		}
		// каждый флаг учитывается в сумме один раз
		if seen[name] {
			return nil, fmt.Errorf("флаг %q указан повторно", name)
		}
		seen[name] = true
		rules = append(rules, rule)
	}
	return &Evaluator{rules: rules}, nil
}

// Rules возвращает активные правила
func (e *Evaluator) Rules() []Rule {
	return e.rules
}

// Evaluate проверяет все флаги для направления.
// volumeMultiplier > 0 заменяет множитель объема из конфигурации.
func (e *Evaluator) Evaluate(snap models.IndicatorSnapshot, direction models.Direction, volumeMultiplier float64) (models.SignalResult, error) {
	if !direction.IsTradable() {
		return models.SignalResult{}, fmt.Errorf("%w: направление сигнала должно быть long или short, получено %q", models.ErrInvalidParameters, direction)
	}
	if volumeMultiplier < 0 {
		return models.SignalResult{}, fmt.Errorf("%w: отрицательный множитель объема %v", models.ErrInvalidParameters, volumeMultiplier)
	}

	result := models.SignalResult{
		Direction: direction,
		Flags:     make([]models.Flag, 0, len(e.rules)),
		MaxScore:  len(e.rules),
	}

	for _, rule := range e.rules {
		cond := rule.Long
		if direction == models.DirectionShort {
			cond = rule.Short
		}

		value, threshold := reading(snap, cond, volumeMultiplier)
		passed := compare(value, cond.Comparator, threshold)

		result.Flags = append(result.Flags, models.Flag{
			Name:       rule.Name,
			Passed:     passed,
			Value:      value,
			Comparator: string(cond.Comparator),
			Threshold:  threshold,
		})
		if passed {
			result.Score++
		}
	}

	return result, nil
}

// ShouldNotify решение об отправке уведомления
func ShouldNotify(result models.SignalResult, threshold int) bool {
	return threshold > 0 && result.Score >= threshold
}

func reading(snap models.IndicatorSnapshot, cond Condition, volumeMultiplier float64) (float64, float64) {
	switch cond.Indicator {
	case IndicatorStochK:
		return snap.StochK, cond.Threshold
	case IndicatorRSI:
		return snap.RSI, cond.Threshold
	case IndicatorEMASpread:
		return snap.EMAFast - snap.EMASlow, cond.Threshold
	case IndicatorVolume:
		multiplier := cond.Threshold
		if volumeMultiplier > 0 {
			multiplier = volumeMultiplier
		}
		return snap.CurrentVolume, snap.MeanVolume * multiplier
	}
	return 0, cond.Threshold
}

func compare(value float64, op Comparator, threshold float64) bool {
	switch op {
	case Below:
		return value < threshold
	case Above:
		return value > threshold
	}
	return false
}
