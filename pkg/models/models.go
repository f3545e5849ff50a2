package models

import (
	"fmt"
	"strings"
	"time"
)

// Candle представляет свечу
type Candle struct {
	Symbol    string    `json:"symbol"`
	Interval  string    `json:"interval"`
	OpenTime  time.Time `json:"open_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	CloseTime time.Time `json:"close_time"`
}

// Direction направление сделки или удерживаемой позиции
type Direction string

const (
	DirectionNone  Direction = "none"
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// ParseDirection разбирает строковое направление
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case "", DirectionNone:
		return DirectionNone, nil
	case DirectionLong:
		return DirectionLong, nil
	case DirectionShort:
		return DirectionShort, nil
	}
	return "", fmt.Errorf("%w: неизвестное направление %q", ErrInvalidParameters, s)
}

// Opposite возвращает противоположное направление
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionLong:
		return DirectionShort
	case DirectionShort:
		return DirectionLong
	}
	return DirectionNone
}

// IsTradable true для long и short
func (d Direction) IsTradable() bool {
	return d == DirectionLong || d == DirectionShort
}

// SizeUnit единица измерения размера позиции
type SizeUnit string

const (
	UnitAsset SizeUnit = "asset"
	UnitQuote SizeUnit = "quote"
)

// IndicatorSnapshot последние значения индикаторов по серии свечей
type IndicatorSnapshot struct {
	RSI           float64 `json:"rsi"`
	StochK        float64 `json:"stoch_k"`
	StochD        float64 `json:"stoch_d"`
	EMAFast       float64 `json:"ema_fast"`
	EMASlow       float64 `json:"ema_slow"`
	Close         float64 `json:"close"`
	CurrentVolume float64 `json:"current_volume"`
	// MeanVolume среднее по всем свечам, кроме последней
	MeanVolume  float64 `json:"mean_volume"`
	CandleCount int     `json:"candle_count"`
}

// PositionContext текущая позиция пользователя
type PositionContext struct {
	Direction      Direction `json:"direction"`
	Size           float64   `json:"size"`
	Unit           SizeUnit  `json:"unit"`
	UnrealizedPnL  float64   `json:"unrealized_pnl"`
	RolloverProfit bool      `json:"rollover_profit"`
}

// RiskParameters параметры риска на сделку
type RiskParameters struct {
	Amount      float64 `json:"amount"`
	StopLossPct float64 `json:"stop_loss_pct"`
	RewardRatio int     `json:"reward_ratio"`
}

// Flag результат проверки одного условия
type Flag struct {
	Name       string  `json:"name"`
	Passed     bool    `json:"passed"`
	Value      float64 `json:"value"`
	Comparator string  `json:"comparator"`
	Threshold  float64 `json:"threshold"`
}

// SignalResult набор флагов и их сумма
type SignalResult struct {
	Direction Direction `json:"direction"`
	Flags     []Flag    `json:"flags"`
	Score     int       `json:"score"`
	MaxScore  int       `json:"max_score"`
}

// Phase одна фаза набора позиции
type Phase struct {
	Label        string  `json:"label"`
	DelayMinutes int     `json:"delay_minutes"`
	Fraction     float64 `json:"fraction"`
	OffsetPct    float64 `json:"offset_pct"`
	EntryPrice   float64 `json:"entry_price"`
	Value        float64 `json:"value"`
	Units        float64 `json:"units"`
}

// FlipOrder ордер, который закрывает встречную позицию и открывает первую фазу
type FlipOrder struct {
	CloseValue float64 `json:"close_value"`
	CloseUnits float64 `json:"close_units"`
	OpenValue  float64 `json:"open_value"`
	OpenUnits  float64 `json:"open_units"`
	Value      float64 `json:"value"`
	Units      float64 `json:"units"`
}

// SizingPlan план набора позиции
type SizingPlan struct {
	Direction Direction `json:"direction"`
	// BaseValue объем, при котором движение на стоп дает убыток ровно в сумму риска
	BaseValue     float64    `json:"base_value"`
	RolledOverPnL float64    `json:"rolled_over_pnl"`
	TotalValue    float64    `json:"total_value"`
	Phases        []Phase    `json:"phases"`
	Flip          *FlipOrder `json:"flip,omitempty"`
}

// FirstOrderValue объем первого ордера с учетом разворота
func (p SizingPlan) FirstOrderValue() float64 {
	if p.Flip != nil {
		return p.Flip.Value
	}
	if len(p.Phases) == 0 {
		return 0
	}
	return p.Phases[0].Value
}

// TradeTargets средняя цена входа, стоп и тейк
type TradeTargets struct {
	AverageEntry float64 `json:"average_entry"`
	StopLoss     float64 `json:"stop_loss"`
	TakeProfit   float64 `json:"take_profit"`
	RiskAmount   float64 `json:"risk_amount"`
	RewardAmount float64 `json:"reward_amount"`
}

// ConfluenceReading RSI вспомогательного актива
type ConfluenceReading struct {
	Symbol string  `json:"symbol"`
	Close  float64 `json:"close"`
	RSI    float64 `json:"rsi"`
}

// Analysis результат одного прогона анализа
type Analysis struct {
	RunID       string              `json:"run_id"`
	Symbol      string              `json:"symbol"`
	Interval    string              `json:"interval"`
	Timestamp   time.Time           `json:"timestamp"`
	Price       float64             `json:"price"`
	Indicators  IndicatorSnapshot   `json:"indicators"`
	Signal      SignalResult        `json:"signal"`
	Plan        SizingPlan          `json:"plan"`
	Targets     TradeTargets        `json:"targets"`
	Risk        RiskParameters      `json:"risk"`
	Confluence  []ConfluenceReading `json:"confluence,omitempty"`
	Notified    bool                `json:"notified"`
	NotifyError string              `json:"notify_error,omitempty"`
}
