package ui

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/skalibog/sta/internal/analysis/aggregator"
	"github.com/skalibog/sta/internal/config"
	"github.com/skalibog/sta/internal/report"
	"github.com/skalibog/sta/pkg/models"
)

// Стили UI
var (
	primaryColor   = lipgloss.Color("#0077cc")
	secondaryColor = lipgloss.Color("#333333")
	errorColor     = lipgloss.Color("#cc3300")
	successColor   = lipgloss.Color("#33cc33")
	warningColor   = lipgloss.Color("#cccc00")

	appStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor)
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(primaryColor).
			Padding(0, 1)
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(secondaryColor).
			Padding(0, 1)
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(secondaryColor).
			Padding(0, 1)
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#999999")).
			Padding(0, 1)
)

const logTimeLayout = "02.01.2006 - 15:04:05.000000000Z07:00"

// Runner выполняет один прогон анализа
type Runner interface {
	Run(ctx context.Context, req aggregator.Request) (*models.Analysis, error)
}

// TermUI терминальная панель: r пересчитывает, d меняет направление, q выход
type TermUI struct {
	model model
}

// Сообщения для обновления UI
type analysisMsg struct {
	analysis *models.Analysis
	err      error
}
type logsMsg []string
type tickMsg time.Time

type model struct {
	ctx      context.Context
	runner   Runner
	request  aggregator.Request
	logFile  string
	logLines int

	analysis *models.Analysis
	err      error
	loading  bool
	logs     []string
	width    int
	height   int
}

// NewTermUI создает терминальный интерфейс
func NewTermUI(ctx context.Context, cfg config.UIConfig, runner Runner, req aggregator.Request) *TermUI {
	return &TermUI{
		model: model{
			ctx:      ctx,
			runner:   runner,
			request:  req,
			logFile:  cfg.LogFile,
			logLines: cfg.LogLines,
			logs:     []string{"Нажмите R для расчета"},
			width:    120,
			height:   40,
		},
	}
}

// Start запускает UI и блокируется до выхода
func (ui *TermUI) Start() error {
	program := tea.NewProgram(ui.model, tea.WithAltScreen(), tea.WithContext(ui.model.ctx))
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("ошибка запуска UI: %w", err)
	}
	return nil
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.loadLogs(), tick())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			if m.loading {
				return m, nil
			}
			m.loading = true
			m.err = nil
			return m, m.run()
		case "d":
			m.request.Direction = m.request.Direction.Opposite()
		}

	case analysisMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.analysis = msg.analysis
		}
		return m, m.loadLogs()

	case logsMsg:
		if len(msg) > 0 {
			m.logs = msg
		}

	case tickMsg:
		return m, tea.Batch(m.loadLogs(), tick())

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}

	return m, nil
}

func (m model) View() string {
	title := titleStyle.Render(fmt.Sprintf("STA | %s %s | %s", m.request.Symbol, m.request.Interval, strings.ToUpper(string(m.request.Direction))))

	status := fmt.Sprintf("Риск %s, стоп %.2f%%, 1:%d", report.Money(m.request.Risk.Amount), m.request.Risk.StopLossPct, m.request.Risk.RewardRatio)
	switch {
	case m.loading:
		status += "  " + lipgloss.NewStyle().Foreground(warningColor).Render("Расчет...")
	case m.err != nil:
		status += "  " + lipgloss.NewStyle().Foreground(errorColor).Render("Ошибка: "+m.err.Error())
	}

	sections := []string{title, status, ""}
	if m.analysis == nil {
		sections = append(sections, sectionStyle.Render("  Нет данных"))
	} else {
		sections = append(sections,
			lipgloss.JoinHorizontal(lipgloss.Top,
				renderSignalSection(m.analysis),
				renderTargetsSection(m.analysis),
			),
			renderPlanSection(m.analysis),
		)
	}
	sections = append(sections,
		renderLogsSection(m.logs, m.logLines),
		footerStyle.Render("Клавиши: R - обновить и рассчитать, D - long/short, Q - выход"),
	)

	return appStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m model) run() tea.Cmd {
	ctx, runner, req := m.ctx, m.runner, m.request
	return func() tea.Msg {
		analysis, err := runner.Run(ctx, req)
		return analysisMsg{analysis: analysis, err: err}
	}
}

func (m model) loadLogs() tea.Cmd {
	path, n := m.logFile, m.logLines
	return func() tea.Msg {
		logs, err := readLogTail(path, n)
		if err != nil {
			return logsMsg{fmt.Sprintf("Ошибка загрузки логов: %v", err)}
		}
		return logsMsg(logs)
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func renderSignalSection(a *models.Analysis) string {
	var content strings.Builder

	ind := a.Indicators
	fmt.Fprintf(&content, "Цена %s\n", report.Price(a.Price))
	fmt.Fprintf(&content, "RSI %.2f | StochRSI %.2f/%.2f\n", ind.RSI, ind.StochK, ind.StochD)
	fmt.Fprintf(&content, "EMA %s / %s\n\n", report.Price(ind.EMAFast), report.Price(ind.EMASlow))

	for _, f := range a.Signal.Flags {
		line := fmt.Sprintf("%s %-13s %.2f", report.FlagMark(f.Passed), f.Name, f.Value)
		if f.Passed {
			line = lipgloss.NewStyle().Foreground(successColor).Render(line)
		}
		content.WriteString(line + "\n")
	}
	for _, c := range a.Confluence {
		fmt.Fprintf(&content, "%s RSI %.2f\n", c.Symbol, c.RSI)
	}

	header := headerStyle.Render(fmt.Sprintf("СИГНАЛ %d/%d", a.Signal.Score, a.Signal.MaxScore))
	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, content.String()))
}

func renderTargetsSection(a *models.Analysis) string {
	var content strings.Builder

	t := a.Targets
	fmt.Fprintf(&content, "Средний вход  %s\n", report.Price(t.AverageEntry))
	fmt.Fprintf(&content, "Стоп-лосс     %s\n", lipgloss.NewStyle().Foreground(errorColor).Render(report.Price(t.StopLoss)))
	fmt.Fprintf(&content, "Тейк-профит   %s\n\n", lipgloss.NewStyle().Foreground(successColor).Render(report.Price(t.TakeProfit)))
	fmt.Fprintf(&content, "Убыток по стопу  %s\n", report.Money(t.RiskAmount))
	fmt.Fprintf(&content, "Прибыль по тейку %s\n", report.Money(t.RewardAmount))

	if a.Notified {
		content.WriteString("\nУведомление отправлено\n")
	} else if a.NotifyError != "" {
		content.WriteString("\n" + lipgloss.NewStyle().Foreground(errorColor).Render("Уведомление не доставлено") + "\n")
	}

	header := headerStyle.Render("ЦЕЛИ")
	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, content.String()))
}

func renderPlanSection(a *models.Analysis) string {
	var content strings.Builder

	content.WriteString(report.PhaseTable(a.Plan))
	content.WriteString("\n")
	if f := a.Plan.Flip; f != nil {
		fmt.Fprintf(&content, "Разворот: закрыть %s + открыть %s = %s\n",
			report.Money(f.CloseValue), report.Money(f.OpenValue), report.Money(f.Value))
	}

	header := headerStyle.Render(fmt.Sprintf("ПЛАН %s", report.Money(a.Plan.TotalValue)))
	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, content.String()))
}

func renderLogsSection(logs []string, n int) string {
	var content strings.Builder

	start := 0
	if n > 0 && len(logs) > n {
		start = len(logs) - n
	}
	for _, log := range logs[start:] {
		switch {
		case strings.Contains(log, "[ERROR]"):
			log = lipgloss.NewStyle().Foreground(errorColor).Render(log)
		case strings.Contains(log, "[WARN]"):
			log = lipgloss.NewStyle().Foreground(warningColor).Render(log)
		case strings.Contains(log, "[INFO]"):
			log = lipgloss.NewStyle().Foreground(successColor).Render(log)
		}
		content.WriteString(log + "\n")
	}

	header := headerStyle.Render("ЛОГИ")
	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, content.String()))
}

// readLogTail читает последние n записей JSON-лога в читаемом виде
func readLogTail(path string, n int) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var logs []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		logs = append(logs, formatLogLine(scanner.Text()))
		if n > 0 && len(logs) > n {
			logs = logs[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func formatLogLine(line string) string {
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		return line
	}

	level, _ := entry["level"].(string)
	ts, _ := entry["ts"].(string)
	msg, _ := entry["msg"].(string)

	timestamp := ""
	if t, err := time.Parse(logTimeLayout, ts); err == nil {
		timestamp = t.Format("15:04:05")
	}

	keys := make([]string, 0, len(entry))
	for k := range entry {
		switch k {
		case "level", "ts", "msg", "caller":
		default:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	formatted := fmt.Sprintf("[%s] [%s] %s", timestamp, level, msg)
	for _, k := range keys {
		formatted += fmt.Sprintf(" (%s: %v)", k, entry[k])
	}
	return formatted
}
