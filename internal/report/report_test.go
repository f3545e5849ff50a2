package report

import (
	"strings"
	"testing"
	"time"

	"github.com/skalibog/sta/pkg/models"
)

func TestMoney(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "$0.00"},
		{10, "$10.00"},
		{125, "$125.00"},
		{1234.567, "$1,234.57"},
		{11933, "$11,933.00"},
		{1234567.891, "$1,234,567.89"},
		{-250.5, "-$250.50"},
		{-0.001, "$0.00"},
	}
	for _, tt := range tests {
		if got := Money(tt.in); got != tt.want {
			t.Errorf("Money(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPrice(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{420, "$420.00"},
		{411.6, "$411.60"},
		{67000.5, "$67,000.50"},
		{0.0421, "$0.042100"},
	}
	for _, tt := range tests {
		if got := Price(tt.in); got != tt.want {
			t.Errorf("Price(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUnits(t *testing.T) {
	if got := Units(28.8); got != "28.8000" {
		t.Errorf("Units = %q", got)
	}
}

func sampleAnalysis() *models.Analysis {
	return &models.Analysis{
		RunID:     "run-1",
		Symbol:    "ZECUSDT",
		Interval:  "15m",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Price:     410,
		Indicators: models.IndicatorSnapshot{
			RSI: 38, StochK: 12, StochD: 15, EMAFast: 411, EMASlow: 409,
			CurrentVolume: 2000, MeanVolume: 1000,
		},
		Signal: models.SignalResult{
			Direction: models.DirectionLong,
			Score:     3,
			MaxScore:  4,
			Flags: []models.Flag{
				{Name: "stoch_rsi", Passed: true, Value: 12, Comparator: "below", Threshold: 20},
				{Name: "trend", Passed: true, Value: 2, Comparator: "above", Threshold: 0},
				{Name: "rsi_zone", Passed: true, Value: 38, Comparator: "below", Threshold: 45},
				{Name: "volume_spike", Passed: false, Value: 1000, Comparator: "above", Threshold: 1300},
			},
		},
		Plan: models.SizingPlan{
			Direction:  models.DirectionLong,
			BaseValue:  500,
			TotalValue: 500,
			Phases: []models.Phase{
				{Label: "Phase 1 (Start)", Fraction: 0.25, EntryPrice: 410, Value: 125, Units: 125.0 / 410},
				{Label: "Phase 2 (+45m)", Fraction: 0.35, OffsetPct: 0.8, EntryPrice: 406.72, Value: 175, Units: 175 / 406.72},
				{Label: "Phase 3 (+90m)", Fraction: 0.40, OffsetPct: 1.5, EntryPrice: 403.85, Value: 200, Units: 200 / 403.85},
			},
			Flip: &models.FlipOrder{CloseValue: 11808, CloseUnits: 28.8, OpenValue: 125, Value: 11933},
		},
		Targets: models.TradeTargets{AverageEntry: 406.392, StopLoss: 398.26, TakeProfit: 430.78, RiskAmount: 10, RewardAmount: 30},
		Risk:    models.RiskParameters{Amount: 10, StopLossPct: 2, RewardRatio: 3},
		Confluence: []models.ConfluenceReading{
			{Symbol: "BTCUSDT", Close: 67000, RSI: 55.5},
		},
	}
}

func TestText(t *testing.T) {
	out := Text(sampleAnalysis())

	for _, want := range []string{
		"ZECUSDT 15m | LONG | цена $410.00",
		"Сигнал 3/4",
		"✅ stoch_rsi",
		"❌ volume_spike",
		"Phase 1 (Start)",
		"Phase 3 (+90m)",
		"$125.00",
		"$175.00",
		"$200.00",
		"итого первым ордером $11,933.00",
		"BTCUSDT: $67,000.00, RSI 55.50",
		"При срабатывании стопа: убыток $10.00",
		"При достижении тейка: прибыль $30.00 (1:3)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report does not contain %q\n%s", want, out)
		}
	}
}

func TestTextNotifyOutcome(t *testing.T) {
	a := sampleAnalysis()
	a.NotifyError = "telegram: status 401"
	if !strings.Contains(Text(a), "Ошибка уведомления: telegram: status 401") {
		t.Error("report must show the notification error")
	}

	a.NotifyError = ""
	a.Notified = true
	if !strings.Contains(Text(a), "Уведомление отправлено") {
		t.Error("report must show the notification outcome")
	}
}

func TestMessage(t *testing.T) {
	msg := Message(sampleAnalysis())

	title, _, _ := strings.Cut(msg, "\n")
	if title != "ZECUSDT 15m LONG: 3/4" {
		t.Errorf("title = %q", title)
	}
	if !strings.Contains(msg, "первый ордер $11,933.00") {
		t.Errorf("message must use the flip order value:\n%s", msg)
	}
}
