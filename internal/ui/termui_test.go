package ui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/skalibog/sta/internal/analysis/aggregator"
	"github.com/skalibog/sta/internal/config"
	"github.com/skalibog/sta/pkg/models"
)

type fakeRunner struct {
	got aggregator.Request
	err error
}

func (f *fakeRunner) Run(_ context.Context, req aggregator.Request) (*models.Analysis, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return sampleAnalysis(req.Direction), nil
}

func sampleAnalysis(direction models.Direction) *models.Analysis {
	return &models.Analysis{
		RunID:    "run-1",
		Symbol:   "ZECUSDT",
		Interval: "15m",
		Price:    410,
		Signal: models.SignalResult{
			Direction: direction,
			Score:     1,
			MaxScore:  2,
			Flags: []models.Flag{
				{Name: "trend", Passed: true, Value: 2},
				{Name: "rsi_zone", Passed: false, Value: 60},
			},
		},
		Plan: models.SizingPlan{
			TotalValue: 500,
			Phases: []models.Phase{
				{Label: "Phase 1 (Start)", Value: 125, EntryPrice: 410, Units: 0.3049},
			},
			Flip: &models.FlipOrder{CloseValue: 11808, OpenValue: 125, Value: 11933},
		},
		Targets: models.TradeTargets{AverageEntry: 410, StopLoss: 401.8, TakeProfit: 434.6, RiskAmount: 10, RewardAmount: 30},
	}
}

func newTestModel(runner Runner) model {
	req := aggregator.Request{
		Symbol:    "ZECUSDT",
		Interval:  "15m",
		Direction: models.DirectionLong,
		Risk:      models.RiskParameters{Amount: 10, StopLossPct: 2, RewardRatio: 3},
	}
	return NewTermUI(context.Background(), config.UIConfig{LogLines: 3}, runner, req).model
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestToggleDirection(t *testing.T) {
	m := newTestModel(&fakeRunner{})

	next, _ := m.Update(key("d"))
	m = next.(model)
	if m.request.Direction != models.DirectionShort {
		t.Fatalf("direction = %s, want short", m.request.Direction)
	}
	if !strings.Contains(m.View(), "SHORT") {
		t.Error("view must show the selected direction")
	}

	next, _ = m.Update(key("d"))
	if next.(model).request.Direction != models.DirectionLong {
		t.Error("second toggle must return to long")
	}
}

func TestRefreshRunsAnalysis(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestModel(runner)

	next, cmd := m.Update(key("r"))
	m = next.(model)
	if !m.loading || cmd == nil {
		t.Fatal("refresh must start a run")
	}

	// повторное нажатие во время расчета игнорируется
	if _, again := m.Update(key("r")); again != nil {
		t.Error("refresh while loading must be ignored")
	}

	msg := cmd()
	res, ok := msg.(analysisMsg)
	if !ok {
		t.Fatalf("cmd returned %T", msg)
	}
	if runner.got.Symbol != "ZECUSDT" {
		t.Errorf("runner got %+v", runner.got)
	}

	next, _ = m.Update(res)
	m = next.(model)
	if m.loading || m.analysis == nil {
		t.Fatal("analysis must be stored")
	}

	view := m.View()
	for _, want := range []string{"СИГНАЛ 1/2", "✅ trend", "❌ rsi_zone", "Phase 1 (Start)", "$11,933.00", "$401.80"} {
		if !strings.Contains(view, want) {
			t.Errorf("view does not contain %q", want)
		}
	}
}

func TestRunErrorKeepsPreviousAnalysis(t *testing.T) {
	m := newTestModel(&fakeRunner{})
	m.analysis = sampleAnalysis(models.DirectionLong)

	next, _ := m.Update(analysisMsg{err: errors.New("нет свечей")})
	m = next.(model)
	if m.analysis == nil {
		t.Error("previous analysis must stay on error")
	}
	if !strings.Contains(m.View(), "Ошибка: нет свечей") {
		t.Error("view must show the error")
	}
}

func TestQuit(t *testing.T) {
	m := newTestModel(&fakeRunner{})
	_, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("q must return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q must quit")
	}
}

func TestReadLogTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.json.log")
	lines := []string{
		`{"level":"INFO","ts":"02.01.2026 - 03:04:05.000000000Z","caller":"a.go:1","msg":"first"}`,
		`{"level":"DEBUG","ts":"02.01.2026 - 03:04:06.000000000Z","msg":"second"}`,
		`{"level":"WARN","ts":"02.01.2026 - 03:04:07.000000000Z","msg":"third","symbol":"ZECUSDT","run_id":"x"}`,
		`plain text`,
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	logs, err := readLogTail(path, 2)
	if err != nil {
		t.Fatalf("readLogTail: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("logs = %v", logs)
	}
	if logs[0] != "[03:04:07] [WARN] third (run_id: x) (symbol: ZECUSDT)" {
		t.Errorf("formatted = %q", logs[0])
	}
	if logs[1] != "plain text" {
		t.Errorf("plain line = %q", logs[1])
	}

	missing, err := readLogTail(filepath.Join(t.TempDir(), "none.log"), 5)
	if err != nil || missing != nil {
		t.Errorf("missing file: %v, %v", missing, err)
	}
}
