package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/shopspring/decimal"
	"github.com/skalibog/sta/pkg/models"
)

// Money форматирует сумму в долларах: $1,234.56
func Money(v float64) string {
	return dollars(v, 2)
}

// Price форматирует цену; для дешевых активов знаков больше
func Price(v float64) string {
	places := int32(2)
	if a := math.Abs(v); a > 0 && a < 1 {
		places = 6
	}
	return dollars(v, places)
}

func dollars(v float64, places int32) string {
	s := fixed(v, places)
	if strings.HasPrefix(s, "-") {
		return "-$" + s[1:]
	}
	return "$" + s
}

// Units форматирует количество базового актива
func Units(v float64) string {
	return fixed(v, 4)
}

// fixed округляет до places знаков и разделяет тысячи запятыми
func fixed(v float64, places int32) string {
	s := decimal.NewFromFloat(v).StringFixed(places)

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}

	out := b.String()
	if sign != "" && strings.Trim(out, "0.,") != "" {
		out = sign + out
	}
	return out
}

// FlagMark значок прохождения флага
func FlagMark(passed bool) string {
	if passed {
		return "✅"
	}
	return "❌"
}

// PhaseTable таблица фаз набора позиции
func PhaseTable(plan models.SizingPlan) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Фаза", "Объем (USDT)", "Цена входа", "Кол-во")
	for _, ph := range plan.Phases {
		t.Row(ph.Label, Money(ph.Value), Price(ph.EntryPrice), Units(ph.Units))
	}
	return t.Render()
}

// Text полный текстовый отчет анализа
func Text(a *models.Analysis) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s | %s | цена %s\n", a.Symbol, a.Interval, strings.ToUpper(string(a.Signal.Direction)), Price(a.Price))
	fmt.Fprintf(&b, "Запуск %s, %s\n\n", a.RunID, a.Timestamp.Format("02.01.2006 15:04:05"))

	ind := a.Indicators
	b.WriteString("Индикаторы\n")
	fmt.Fprintf(&b, "  RSI: %.2f\n", ind.RSI)
	fmt.Fprintf(&b, "  StochRSI %%K/%%D: %.2f / %.2f\n", ind.StochK, ind.StochD)
	fmt.Fprintf(&b, "  EMA fast/slow: %s / %s\n", Price(ind.EMAFast), Price(ind.EMASlow))
	fmt.Fprintf(&b, "  Объем: %s (среднее %s)\n", fixed(ind.CurrentVolume, 2), fixed(ind.MeanVolume, 2))

	if len(a.Confluence) > 0 {
		b.WriteString("\nКонфлюэнс\n")
		for _, c := range a.Confluence {
			fmt.Fprintf(&b, "  %s: %s, RSI %.2f\n", c.Symbol, Price(c.Close), c.RSI)
		}
	}

	fmt.Fprintf(&b, "\nСигнал %d/%d\n", a.Signal.Score, a.Signal.MaxScore)
	for _, f := range a.Signal.Flags {
		fmt.Fprintf(&b, "  %s %s: %.2f %s %.2f\n", FlagMark(f.Passed), f.Name, f.Value, f.Comparator, f.Threshold)
	}

	fmt.Fprintf(&b, "\nРасчет позиции на риск %s\n", Money(a.Risk.Amount))
	fmt.Fprintf(&b, "  Базовый объем: %s", Money(a.Plan.BaseValue))
	if a.Plan.RolledOverPnL != 0 {
		fmt.Fprintf(&b, " (PnL %s, итого %s)", Money(a.Plan.RolledOverPnL), Money(a.Plan.TotalValue))
	}
	b.WriteString("\n")
	b.WriteString(PhaseTable(a.Plan))
	b.WriteString("\n")

	if f := a.Plan.Flip; f != nil {
		fmt.Fprintf(&b, "  Разворот: закрыть %s (%s), открыть %s, итого первым ордером %s\n",
			Money(f.CloseValue), Units(f.CloseUnits), Money(f.OpenValue), Money(f.Value))
	}

	t := a.Targets
	b.WriteString("\nЦели\n")
	fmt.Fprintf(&b, "  Средний вход: %s\n", Price(t.AverageEntry))
	fmt.Fprintf(&b, "  Стоп-лосс: %s (-%.2f%%)\n", Price(t.StopLoss), a.Risk.StopLossPct)
	fmt.Fprintf(&b, "  Тейк-профит: %s (+%.2f%%)\n", Price(t.TakeProfit), a.Risk.StopLossPct*float64(a.Risk.RewardRatio))
	fmt.Fprintf(&b, "  При срабатывании стопа: убыток %s\n", Money(t.RiskAmount))
	fmt.Fprintf(&b, "  При достижении тейка: прибыль %s (1:%d)\n", Money(t.RewardAmount), a.Risk.RewardRatio)

	if a.Notified {
		b.WriteString("\nУведомление отправлено\n")
	} else if a.NotifyError != "" {
		fmt.Fprintf(&b, "\nОшибка уведомления: %s\n", a.NotifyError)
	}

	return b.String()
}

// Message короткое сообщение для уведомления; первая строка служит заголовком
func Message(a *models.Analysis) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s %s: %d/%d\n", a.Symbol, a.Interval, strings.ToUpper(string(a.Signal.Direction)), a.Signal.Score, a.Signal.MaxScore)
	for _, f := range a.Signal.Flags {
		fmt.Fprintf(&b, "%s %s %.2f\n", FlagMark(f.Passed), f.Name, f.Value)
	}
	fmt.Fprintf(&b, "Цена %s, первый ордер %s\n", Price(a.Price), Money(a.Plan.FirstOrderValue()))
	fmt.Fprintf(&b, "SL %s | TP %s | риск %s", Price(a.Targets.StopLoss), Price(a.Targets.TakeProfit), Money(a.Targets.RiskAmount))

	return b.String()
}
