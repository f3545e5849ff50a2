package sizing

import (
	"fmt"
	"math"

	"github.com/skalibog/sta/internal/config"
	"github.com/skalibog/sta/pkg/models"
)

// Planner рассчитывает план набора позиции и цели сделки
type Planner struct {
	config config.SizingConfig
}

// NewPlanner создает планировщик с фазами из конфигурации
func NewPlanner(cfg config.SizingConfig) *Planner {
	return &Planner{
		config: cfg,
	}
}

// Plan рассчитывает план для текущей цены и направления.
//
// Объем позиции = R / (D/100): движение цены на D процентов против позиции
// дает убыток ровно R. При встречной позиции первая фаза дополнительно
// закрывает ее одним ордером.
func (p *Planner) Plan(price float64, direction models.Direction, risk models.RiskParameters, position models.PositionContext) (models.SizingPlan, models.TradeTargets, error) {
	if price <= 0 {
		return models.SizingPlan{}, models.TradeTargets{}, fmt.Errorf("%w: цена должна быть положительной: %v", models.ErrInvalidParameters, price)
	}
	if err := Validate(direction, risk, position); err != nil {
		return models.SizingPlan{}, models.TradeTargets{}, err
	}

	base := risk.Amount / (risk.StopLossPct / 100)
	total := base
	var rolled float64
	if position.RolloverProfit {
		rolled = position.UnrealizedPnL
		total = math.Max(base+rolled, 0)
	}

	plan := models.SizingPlan{
		Direction:     direction,
		BaseValue:     base,
		RolledOverPnL: rolled,
		TotalValue:    total,
		Phases:        make([]models.Phase, 0, len(p.config.Phases)),
	}

	var avgEntry float64
	for _, pc := range p.config.Phases {
		entry := entryPrice(price, direction, pc.OffsetPct)
		value := total * pc.Fraction
		plan.Phases = append(plan.Phases, models.Phase{
			Label:        pc.Label,
			DelayMinutes: pc.DelayMinutes,
			Fraction:     pc.Fraction,
			OffsetPct:    pc.OffsetPct,
			EntryPrice:   entry,
			Value:        value,
			Units:        value / entry,
		})
		avgEntry += pc.Fraction * entry
	}

	if position.Direction == direction.Opposite() && position.Size > 0 && len(plan.Phases) > 0 {
		plan.Flip = flipOrder(price, position, plan.Phases[0])
	}

	targets := models.TradeTargets{
		AverageEntry: avgEntry,
		RiskAmount:   risk.Amount,
		RewardAmount: risk.Amount * float64(risk.RewardRatio),
	}
	slMove := risk.StopLossPct / 100
	tpMove := risk.StopLossPct * float64(risk.RewardRatio) / 100
	if direction == models.DirectionLong {
		targets.StopLoss = avgEntry * (1 - slMove)
		targets.TakeProfit = avgEntry * (1 + tpMove)
	} else {
		targets.StopLoss = avgEntry * (1 + slMove)
		targets.TakeProfit = avgEntry * (1 - tpMove)
	}

	return plan, targets, nil
}

// entryPrice целевая цена фазы: ниже рынка для лонга, выше для шорта
func entryPrice(price float64, direction models.Direction, offsetPct float64) float64 {
	if direction == models.DirectionLong {
		return price * (1 - offsetPct/100)
	}
	return price * (1 + offsetPct/100)
}

// flipOrder объединяет закрытие встречной позиции с первой фазой
func flipOrder(price float64, position models.PositionContext, first models.Phase) *models.FlipOrder {
	closeValue := position.Size
	closeUnits := position.Size / price
	if position.Unit == models.UnitAsset {
		closeValue = position.Size * price
		closeUnits = position.Size
	}

	return &models.FlipOrder{
		CloseValue: closeValue,
		CloseUnits: closeUnits,
		OpenValue:  first.Value,
		OpenUnits:  first.Units,
		Value:      closeValue + first.Value,
		Units:      closeUnits + first.Units,
	}
}

// Validate проверяет параметры риска и позиции без рыночной цены
func Validate(direction models.Direction, risk models.RiskParameters, position models.PositionContext) error {
	switch {
	case risk.StopLossPct <= 0:
		return fmt.Errorf("%w: дистанция стопа должна быть положительной: %v", models.ErrInvalidParameters, risk.StopLossPct)
	case risk.StopLossPct >= 100:
		return fmt.Errorf("%w: дистанция стопа должна быть меньше 100%%: %v", models.ErrInvalidParameters, risk.StopLossPct)
	case risk.Amount < 0:
		return fmt.Errorf("%w: сумма риска не может быть отрицательной: %v", models.ErrInvalidParameters, risk.Amount)
	case risk.RewardRatio <= 0:
		return fmt.Errorf("%w: соотношение риск/прибыль должно быть положительным: %d", models.ErrInvalidParameters, risk.RewardRatio)
	case !direction.IsTradable():
		return fmt.Errorf("%w: направление сделки должно быть long или short, получено %q", models.ErrInvalidParameters, direction)
	case direction == models.DirectionShort && risk.StopLossPct*float64(risk.RewardRatio) >= 100:
		return fmt.Errorf("%w: тейк шорта уходит ниже нуля: %v%% x %d", models.ErrInvalidParameters, risk.StopLossPct, risk.RewardRatio)
	case position.Size < 0:
		return fmt.Errorf("%w: размер позиции не может быть отрицательным: %v", models.ErrInvalidParameters, position.Size)
	}

	switch position.Direction {
	case models.DirectionNone, models.DirectionLong, models.DirectionShort:
	default:
		return fmt.Errorf("%w: неизвестное направление позиции %q", models.ErrInvalidParameters, position.Direction)
	}
	switch position.Unit {
	case models.UnitAsset, models.UnitQuote:
	default:
		return fmt.Errorf("%w: неизвестная единица позиции %q", models.ErrInvalidParameters, position.Unit)
	}
	return nil
}
