package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/skalibog/sta/internal/analysis/signal"
	"github.com/skalibog/sta/internal/analysis/sizing"
	"github.com/skalibog/sta/internal/analysis/technical"
	"github.com/skalibog/sta/internal/config"
	"github.com/skalibog/sta/internal/notify"
	"github.com/skalibog/sta/internal/report"
	"github.com/skalibog/sta/pkg/logger"
	"github.com/skalibog/sta/pkg/models"
	"go.uber.org/zap"
)

// maxKlines ограничение Binance на одну выборку свечей
const maxKlines = 1500

// MarketData источник рыночных данных
type MarketData interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error)
	GetLastPrice(ctx context.Context, symbol string) (float64, error)
}

// Request параметры одного прогона анализа
type Request struct {
	Symbol            string                 `json:"symbol"`
	Interval          string                 `json:"interval"`
	Limit             int                    `json:"limit"`
	Direction         models.Direction       `json:"direction"`
	Risk              models.RiskParameters  `json:"risk"`
	Position          models.PositionContext `json:"position"`
	ConfluenceSymbols []string               `json:"confluence_symbols,omitempty"`
	VolumeMultiplier  float64                `json:"volume_multiplier"`
	NotifyThreshold   int                    `json:"notify_threshold"`
}

// RequestFromConfig собирает параметры прогона из конфигурации
func RequestFromConfig(cfg *config.Config) (Request, error) {
	direction, err := models.ParseDirection(cfg.Trading.Direction)
	if err != nil {
		return Request{}, err
	}
	held, err := models.ParseDirection(cfg.Position.Direction)
	if err != nil {
		return Request{}, err
	}

	return Request{
		Symbol:    cfg.Trading.Symbol,
		Interval:  cfg.Trading.Interval,
		Limit:     cfg.Trading.Limit,
		Direction: direction,
		Risk: models.RiskParameters{
			Amount:      cfg.Risk.Amount,
			StopLossPct: cfg.Risk.StopLossPct,
			RewardRatio: cfg.Risk.RewardRatio,
		},
		Position: models.PositionContext{
			Direction:      held,
			Size:           cfg.Position.Size,
			Unit:           models.SizeUnit(cfg.Position.Unit),
			UnrealizedPnL:  cfg.Position.UnrealizedPnL,
			RolloverProfit: cfg.Position.RolloverProfit,
		},
		ConfluenceSymbols: append([]string(nil), cfg.Trading.ConfluenceSymbols...),
		VolumeMultiplier:  cfg.Signal.VolumeMultiplier,
		NotifyThreshold:   cfg.Signal.NotifyThreshold,
	}, nil
}

// Validate проверяет параметры до обращения к бирже
func (r Request) Validate() error {
	switch {
	case r.Symbol == "":
		return fmt.Errorf("%w: не указан символ", models.ErrInvalidParameters)
	case r.Interval == "":
		return fmt.Errorf("%w: не указан интервал", models.ErrInvalidParameters)
	case r.Limit < 2 || r.Limit > maxKlines:
		return fmt.Errorf("%w: количество свечей должно быть от 2 до %d: %d", models.ErrInvalidParameters, maxKlines, r.Limit)
	case r.VolumeMultiplier < 0:
		return fmt.Errorf("%w: множитель объема не может быть отрицательным: %v", models.ErrInvalidParameters, r.VolumeMultiplier)
	case r.NotifyThreshold < 0:
		return fmt.Errorf("%w: порог уведомления не может быть отрицательным: %d", models.ErrInvalidParameters, r.NotifyThreshold)
	}
	return sizing.Validate(r.Direction, r.Risk, r.Position)
}

// Analyzer объединяет индикаторы, флаги и расчет позиции в один прогон
type Analyzer struct {
	market    MarketData
	notifier  notify.Notifier
	technical *technical.Analyzer
	evaluator *signal.Evaluator
	planner   *sizing.Planner
	now       func() time.Time
}

// NewAnalyzer создает анализатор. notifier может быть nil.
func NewAnalyzer(cfg *config.Config, market MarketData, notifier notify.Notifier) (*Analyzer, error) {
	evaluator, err := signal.NewEvaluator(cfg.Signal)
	if err != nil {
		return nil, err
	}

	return &Analyzer{
		market:    market,
		notifier:  notifier,
		technical: technical.NewAnalyzer(cfg.Indicators),
		evaluator: evaluator,
		planner:   sizing.NewPlanner(cfg.Sizing),
		now:       time.Now,
	}, nil
}

// Run выполняет прогон: свечи, индикаторы, цена, конфлюэнс, флаги, план и уведомление.
// Ошибка данных или параметров прерывает прогон без частичного результата;
// ошибка уведомления только записывается в результат.
func (a *Analyzer) Run(ctx context.Context, req Request) (*models.Analysis, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger.Info("Запуск анализа",
		zap.String("run_id", runID),
		zap.String("symbol", req.Symbol),
		zap.String("interval", req.Interval),
		zap.String("direction", string(req.Direction)))

	candles, err := a.market.GetKlines(ctx, req.Symbol, req.Interval, req.Limit)
	if err != nil {
		return nil, err
	}

	snapshot, err := a.technical.Analyze(candles)
	if err != nil {
		logger.Warn("Недостаточно данных для индикаторов",
			zap.String("run_id", runID),
			zap.String("symbol", req.Symbol),
			zap.Int("candles", len(candles)),
			zap.Int("required", a.technical.MinCandles()))
		return nil, err
	}

	price, err := a.market.GetLastPrice(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	confluence, err := a.confluence(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := a.evaluator.Evaluate(snapshot, req.Direction, req.VolumeMultiplier)
	if err != nil {
		return nil, err
	}

	plan, targets, err := a.planner.Plan(price, req.Direction, req.Risk, req.Position)
	if err != nil {
		return nil, err
	}

	analysis := &models.Analysis{
		RunID:      runID,
		Symbol:     req.Symbol,
		Interval:   req.Interval,
		Timestamp:  a.now(),
		Price:      price,
		Indicators: snapshot,
		Signal:     result,
		Plan:       plan,
		Targets:    targets,
		Risk:       req.Risk,
		Confluence: confluence,
	}

	logger.Info("Анализ завершен",
		zap.String("run_id", runID),
		zap.String("symbol", req.Symbol),
		zap.Int("score", result.Score),
		zap.Int("max_score", result.MaxScore),
		zap.Float64("price", price),
		zap.Float64("first_order", plan.FirstOrderValue()))

	if signal.ShouldNotify(result, req.NotifyThreshold) {
		a.notify(ctx, analysis)
	}

	return analysis, nil
}

// confluence считает RSI вспомогательных символов последовательно
func (a *Analyzer) confluence(ctx context.Context, req Request) ([]models.ConfluenceReading, error) {
	if len(req.ConfluenceSymbols) == 0 {
		return nil, nil
	}

	readings := make([]models.ConfluenceReading, 0, len(req.ConfluenceSymbols))
	for _, symbol := range req.ConfluenceSymbols {
		if symbol == req.Symbol {
			continue
		}

		candles, err := a.market.GetKlines(ctx, symbol, req.Interval, req.Limit)
		if err != nil {
			return nil, err
		}
		rsi, err := a.technical.RSI(candles)
		if err != nil {
			return nil, fmt.Errorf("конфлюэнс %s: %w", symbol, err)
		}

		readings = append(readings, models.ConfluenceReading{
			Symbol: symbol,
			Close:  candles[len(candles)-1].Close,
			RSI:    rsi,
		})
	}
	return readings, nil
}

func (a *Analyzer) notify(ctx context.Context, analysis *models.Analysis) {
	if a.notifier == nil || !a.notifier.IsEnabled() {
		logger.Debug("Уведомления отключены", zap.String("run_id", analysis.RunID))
		return
	}

	if err := a.notifier.Send(ctx, report.Message(analysis)); err != nil {
		analysis.NotifyError = err.Error()
		logger.Warn("Не удалось отправить уведомление",
			zap.String("run_id", analysis.RunID),
			zap.String("symbol", analysis.Symbol),
			zap.Error(err))
		return
	}

	analysis.Notified = true
	logger.Info("Уведомление отправлено",
		zap.String("run_id", analysis.RunID),
		zap.String("symbol", analysis.Symbol),
		zap.Int("score", analysis.Signal.Score))
}
