package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/skalibog/sta/internal/config"
	"github.com/skalibog/sta/pkg/logger"
	"github.com/skalibog/sta/pkg/models"
	"go.uber.org/zap"
)

var errEmptyResponse = errors.New("пустой ответ")

// BinanceClient клиент для получения рыночных данных Binance
type BinanceClient struct {
	market  string
	futures *futures.Client
	spot    *binance.Client
}

// NewBinanceClient создает новый клиент Binance
func NewBinanceClient(cfg config.BinanceConfig) (*BinanceClient, error) {
	switch cfg.Market {
	case "futures", "spot":
	default:
		return nil, fmt.Errorf("неизвестный рынок %q", cfg.Market)
	}

	if cfg.Testnet {
		futures.UseTestnet = true
		binance.UseTestnet = true
	}

	futuresClient := futures.NewClient(cfg.APIKey, cfg.APISecret)
	spotClient := binance.NewClient(cfg.APIKey, cfg.APISecret)

	if cfg.BaseURL != "" {
		futuresClient.BaseURL = cfg.BaseURL
		spotClient.BaseURL = cfg.BaseURL
	}

	return &BinanceClient{
		market:  cfg.Market,
		futures: futuresClient,
		spot:    spotClient,
	}, nil
}

// GetKlines получает исторические свечи, от старой к новой
func (c *BinanceClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	var (
		candles []*models.Candle
		err     error
	)
	if c.market == "spot" {
		candles, err = c.spotKlines(ctx, symbol, interval, limit)
	} else {
		candles, err = c.futuresKlines(ctx, symbol, interval, limit)
	}
	if err != nil {
		logger.Warn("Не удалось получить свечи",
			zap.String("symbol", symbol),
			zap.String("interval", interval),
			zap.Error(err))
		return nil, fmt.Errorf("%w: ошибка получения свечей %s: %w", models.ErrDataUnavailable, symbol, err)
	}

	logger.Debug("Получены свечи", zap.String("symbol", symbol), zap.Int("count", len(candles)))
	return candles, nil
}

// GetLastPrice получает последнюю цену символа
func (c *BinanceClient) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	var (
		raw string
		err error
	)
	if c.market == "spot" {
		var prices []*binance.SymbolPrice
		prices, err = c.spot.NewListPricesService().Symbol(symbol).Do(ctx)
		if err == nil {
			if len(prices) == 0 {
				err = errEmptyResponse
			} else {
				raw = prices[0].Price
			}
		}
	} else {
		var prices []*futures.SymbolPrice
		prices, err = c.futures.NewListPricesService().Symbol(symbol).Do(ctx)
		if err == nil {
			if len(prices) == 0 {
				err = errEmptyResponse
			} else {
				raw = prices[0].Price
			}
		}
	}
	if err != nil {
		logger.Warn("Не удалось получить цену", zap.String("symbol", symbol), zap.Error(err))
		return 0, fmt.Errorf("%w: ошибка получения цены %s: %w", models.ErrDataUnavailable, symbol, err)
	}

	price, err := strconv.ParseFloat(raw, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("%w: некорректная цена %s: %q", models.ErrDataUnavailable, symbol, raw)
	}
	return price, nil
}

func (c *BinanceClient) futuresKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	klines, err := c.futures.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, err
	}

	candles := make([]*models.Candle, len(klines))
	for i, k := range klines {
		candle, err := newCandle(symbol, interval, k.OpenTime, k.CloseTime, k.Open, k.High, k.Low, k.Close, k.Volume)
		if err != nil {
			return nil, err
		}
		candles[i] = candle
	}
	return candles, nil
}

func (c *BinanceClient) spotKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	klines, err := c.spot.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, err
	}

	candles := make([]*models.Candle, len(klines))
	for i, k := range klines {
		candle, err := newCandle(symbol, interval, k.OpenTime, k.CloseTime, k.Open, k.High, k.Low, k.Close, k.Volume)
		if err != nil {
			return nil, err
		}
		candles[i] = candle
	}
	return candles, nil
}

// newCandle разбирает строковые значения свечи
func newCandle(symbol, interval string, openTime, closeTime int64, fields ...string) (*models.Candle, error) {
	values := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("ошибка разбора свечи %s: %w", symbol, err)
		}
		values[i] = v
	}

	return &models.Candle{
		Symbol:    symbol,
		Interval:  interval,
		OpenTime:  time.UnixMilli(openTime),
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
		CloseTime: time.UnixMilli(closeTime),
	}, nil
}
