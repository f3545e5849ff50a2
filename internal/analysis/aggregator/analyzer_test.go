package aggregator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/skalibog/sta/internal/config"
	"github.com/skalibog/sta/pkg/models"
)

type fakeMarket struct {
	candles map[string][]*models.Candle
	prices  map[string]float64
	calls   int
}

func (f *fakeMarket) GetKlines(_ context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	f.calls++
	c, ok := f.candles[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: нет свечей %s", models.ErrDataUnavailable, symbol)
	}
	if len(c) > limit {
		c = c[len(c)-limit:]
	}
	return c, nil
}

func (f *fakeMarket) GetLastPrice(_ context.Context, symbol string) (float64, error) {
	f.calls++
	p, ok := f.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: нет цены %s", models.ErrDataUnavailable, symbol)
	}
	return p, nil
}

type fakeNotifier struct {
	enabled bool
	err     error
	sent    []string
}

func (f *fakeNotifier) Send(_ context.Context, message string) error {
	f.sent = append(f.sent, message)
	return f.err
}

func (f *fakeNotifier) Name() string    { return "fake" }
func (f *fakeNotifier) IsEnabled() bool { return f.enabled }

// risingCandles монотонный рост цены со всплеском объема на последней свече
func risingCandles(symbol string, n int) []*models.Candle {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]*models.Candle, n)
	for i := range candles {
		volume := 100.0
		if i == n-1 {
			volume = 1000
		}
		open := start.Add(time.Duration(i) * 15 * time.Minute)
		candles[i] = &models.Candle{
			Symbol:    symbol,
			Interval:  "15m",
			OpenTime:  open,
			Open:      100 + float64(i),
			High:      101 + float64(i),
			Low:       99 + float64(i),
			Close:     100 + float64(i),
			Volume:    volume,
			CloseTime: open.Add(15*time.Minute - time.Millisecond),
		}
	}
	return candles
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("profile: intraday\n"))
	if err != nil {
		t.Fatalf("config.Parse: %v", err)
	}
	return cfg
}

func newTestAnalyzer(t *testing.T, market MarketData, notifier *fakeNotifier) (*Analyzer, Request) {
	t.Helper()
	cfg := testConfig(t)

	var a *Analyzer
	var err error
	if notifier == nil {
		a, err = NewAnalyzer(cfg, market, nil)
	} else {
		a, err = NewAnalyzer(cfg, market, notifier)
	}
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}

	req, err := RequestFromConfig(cfg)
	if err != nil {
		t.Fatalf("RequestFromConfig: %v", err)
	}
	return a, req
}

func defaultMarket() *fakeMarket {
	return &fakeMarket{
		candles: map[string][]*models.Candle{
			"ZECUSDT": risingCandles("ZECUSDT", 100),
			"BTCUSDT": risingCandles("BTCUSDT", 100),
		},
		prices: map[string]float64{"ZECUSDT": 410},
	}
}

func TestRequestFromConfig(t *testing.T) {
	req, err := RequestFromConfig(testConfig(t))
	if err != nil {
		t.Fatalf("RequestFromConfig: %v", err)
	}
	if req.Symbol != "ZECUSDT" || req.Interval != "15m" || req.Limit != 100 {
		t.Errorf("unexpected request %+v", req)
	}
	if req.Direction != models.DirectionLong || req.Position.Direction != models.DirectionNone {
		t.Errorf("directions = %s/%s", req.Direction, req.Position.Direction)
	}
	if req.VolumeMultiplier != 1.3 || req.NotifyThreshold != 3 {
		t.Errorf("multiplier/threshold = %v/%d", req.VolumeMultiplier, req.NotifyThreshold)
	}
	if req.Risk.Amount != 10 || req.Risk.StopLossPct != 2 || req.Risk.RewardRatio != 3 {
		t.Errorf("risk = %+v", req.Risk)
	}
}

func TestRunPipeline(t *testing.T) {
	market := defaultMarket()
	a, req := newTestAnalyzer(t, market, nil)

	res, err := a.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.RunID == "" {
		t.Error("run id must be set")
	}
	if res.Price != 410 || res.Indicators.Close != 199 {
		t.Errorf("price = %v, close = %v", res.Price, res.Indicators.Close)
	}
	if res.Indicators.CandleCount != 100 || res.Indicators.MeanVolume != 100 {
		t.Errorf("snapshot = %+v", res.Indicators)
	}

	// рост: тренд и объем проходят, RSI 100 и плоский StochRSI нет
	if res.Signal.Score != 2 || res.Signal.MaxScore != 4 {
		t.Errorf("score = %d/%d, want 2/4", res.Signal.Score, res.Signal.MaxScore)
	}
	if res.Plan.TotalValue != 500 || len(res.Plan.Phases) != 3 {
		t.Errorf("plan = %+v", res.Plan)
	}
	if res.Targets.StopLoss >= res.Targets.AverageEntry || res.Targets.TakeProfit <= res.Targets.AverageEntry {
		t.Errorf("targets = %+v", res.Targets)
	}
	if res.Notified || res.NotifyError != "" {
		t.Error("score below threshold must not notify")
	}
}

func TestRunNotifies(t *testing.T) {
	notifier := &fakeNotifier{enabled: true}
	a, req := newTestAnalyzer(t, defaultMarket(), notifier)
	req.NotifyThreshold = 2

	res, err := a.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Notified {
		t.Error("score 2 must reach threshold 2")
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(notifier.sent))
	}

	req.NotifyThreshold = 3
	notifier.sent = nil
	if _, err := a.Run(context.Background(), req); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Error("score 2 must not reach threshold 3")
	}
}

func TestRunNotificationFailureIsNotFatal(t *testing.T) {
	notifier := &fakeNotifier{
		enabled: true,
		err:     fmt.Errorf("%w: telegram: status 500", models.ErrNotificationFailure),
	}
	a, req := newTestAnalyzer(t, defaultMarket(), notifier)
	req.NotifyThreshold = 1

	res, err := a.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("notification failure must not abort the run: %v", err)
	}
	if res.Notified || res.NotifyError == "" {
		t.Errorf("notified = %v, error = %q", res.Notified, res.NotifyError)
	}
	if res.Plan.TotalValue != 500 {
		t.Error("result must be complete despite notification failure")
	}
}

func TestRunDisabledNotifier(t *testing.T) {
	notifier := &fakeNotifier{}
	a, req := newTestAnalyzer(t, defaultMarket(), notifier)
	req.NotifyThreshold = 1

	res, err := a.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Notified || len(notifier.sent) != 0 {
		t.Error("disabled notifier must not be called")
	}
}

func TestRunConfluence(t *testing.T) {
	a, req := newTestAnalyzer(t, defaultMarket(), nil)
	req.ConfluenceSymbols = []string{"BTCUSDT", "ZECUSDT"}

	res, err := a.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Confluence) != 1 {
		t.Fatalf("confluence = %+v, the primary symbol must be skipped", res.Confluence)
	}
	c := res.Confluence[0]
	if c.Symbol != "BTCUSDT" || c.Close != 199 || c.RSI != 100 {
		t.Errorf("reading = %+v", c)
	}

	req.ConfluenceSymbols = []string{"ETHUSDT"}
	if _, err := a.Run(context.Background(), req); !errors.Is(err, models.ErrDataUnavailable) {
		t.Errorf("missing confluence symbol: err = %v", err)
	}
}

func TestRunShortDirection(t *testing.T) {
	a, req := newTestAnalyzer(t, defaultMarket(), nil)
	req.Direction = models.DirectionShort

	res, err := a.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// RSI выше зоны и всплеск объема
	if res.Signal.Score != 2 {
		t.Errorf("short score = %d, want 2", res.Signal.Score)
	}
	if res.Targets.StopLoss <= res.Targets.AverageEntry {
		t.Errorf("short stop must be above entry: %+v", res.Targets)
	}
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Request, *fakeMarket)
		want    error
		noCalls bool
	}{
		{
			name:    "none direction",
			mutate:  func(r *Request, _ *fakeMarket) { r.Direction = models.DirectionNone },
			want:    models.ErrInvalidParameters,
			noCalls: true,
		},
		{
			name:    "zero stop distance",
			mutate:  func(r *Request, _ *fakeMarket) { r.Risk.StopLossPct = 0 },
			want:    models.ErrInvalidParameters,
			noCalls: true,
		},
		{
			name:    "empty symbol",
			mutate:  func(r *Request, _ *fakeMarket) { r.Symbol = "" },
			want:    models.ErrInvalidParameters,
			noCalls: true,
		},
		{
			name:    "limit too large",
			mutate:  func(r *Request, _ *fakeMarket) { r.Limit = 5000 },
			want:    models.ErrInvalidParameters,
			noCalls: true,
		},
		{
			name:   "unknown symbol",
			mutate: func(r *Request, _ *fakeMarket) { r.Symbol = "XYZUSDT" },
			want:   models.ErrDataUnavailable,
		},
		{
			name:   "too few candles",
			mutate: func(r *Request, _ *fakeMarket) { r.Limit = 20 },
			want:   models.ErrInsufficientData,
		},
		{
			name:   "no price",
			mutate: func(_ *Request, m *fakeMarket) { delete(m.prices, "ZECUSDT") },
			want:   models.ErrDataUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			market := defaultMarket()
			a, req := newTestAnalyzer(t, market, nil)
			tt.mutate(&req, market)

			res, err := a.Run(context.Background(), req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if res != nil {
				t.Error("failed run must not return a partial result")
			}
			if tt.noCalls && market.calls != 0 {
				t.Errorf("invalid request must not reach the market, calls = %d", market.calls)
			}
		})
	}
}
