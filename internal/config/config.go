package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/skalibog/sta/pkg/logger"
	"github.com/skalibog/sta/pkg/models"
	"gopkg.in/yaml.v2"
)

// Профили порогов
const (
	ProfileIntraday = "intraday"
	ProfileSwing    = "swing"
)

// Имена флагов
const (
	FlagStochRSI    = "stoch_rsi"
	FlagTrend       = "trend"
	FlagRSIZone     = "rsi_zone"
	FlagVolumeSpike = "volume_spike"
)

// MinCandles минимальное число свечей независимо от периодов
const MinCandles = 15

// Config представляет полную конфигурацию приложения
type Config struct {
	Profile    string          `yaml:"profile"`
	Binance    BinanceConfig   `yaml:"binance"`
	Trading    TradingConfig   `yaml:"trading"`
	Indicators IndicatorConfig `yaml:"indicators"`
	Signal     SignalConfig    `yaml:"signal"`
	Sizing     SizingConfig    `yaml:"sizing"`
	Risk       RiskConfig      `yaml:"risk"`
	Position   PositionConfig  `yaml:"position"`
	Notify     NotifyConfig    `yaml:"notify"`
	Log        logger.Config   `yaml:"log"`
	Server     ServerConfig    `yaml:"server"`
	UI         UIConfig        `yaml:"ui"`
}

// BinanceConfig содержит настройки подключения к Binance
type BinanceConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
	// Market futures или spot
	Market  string `yaml:"market"`
	BaseURL string `yaml:"base_url"`
}

// TradingConfig содержит настройки инструмента
type TradingConfig struct {
	Symbol            string   `yaml:"symbol"`
	Interval          string   `yaml:"interval"`
	Limit             int      `yaml:"limit"`
	Direction         string   `yaml:"direction"`
	ConfluenceSymbols []string `yaml:"confluence_symbols"`
}

// IndicatorConfig периоды индикаторов
type IndicatorConfig struct {
	RSIPeriod   int `yaml:"rsi_period"`
	StochPeriod int `yaml:"stoch_period"`
	StochK      int `yaml:"stoch_k"`
	StochD      int `yaml:"stoch_d"`
	EMAFast     int `yaml:"ema_fast"`
	EMASlow     int `yaml:"ema_slow"`
}

// WarmupCandles количество свечей, при котором все индикаторы прошли прогрев.
// Первое значение %D появляется на свече rsi + (stoch-1) + (k-1) + (d-1).
func (c IndicatorConfig) WarmupCandles() int {
	n := c.RSIPeriod + c.StochPeriod + c.StochK + c.StochD - 2
	if c.EMASlow > n {
		n = c.EMASlow
	}
	if n < MinCandles {
		n = MinCandles
	}
	return n
}

// SignalConfig пороги флагов
type SignalConfig struct {
	Flags            []string `yaml:"flags"`
	StochOversold    float64  `yaml:"stoch_oversold"`
	StochOverbought  float64  `yaml:"stoch_overbought"`
	RSILongBelow     float64  `yaml:"rsi_long_below"`
	RSIShortAbove    float64  `yaml:"rsi_short_above"`
	VolumeMultiplier float64  `yaml:"volume_multiplier"`
	NotifyThreshold  int      `yaml:"notify_threshold"`
}

// PhaseConfig одна фаза набора позиции
type PhaseConfig struct {
	Label        string  `yaml:"label"`
	Fraction     float64 `yaml:"fraction"`
	OffsetPct    float64 `yaml:"offset_pct"`
	DelayMinutes int     `yaml:"delay_minutes"`
}

// SizingConfig фазы набора позиции
type SizingConfig struct {
	Phases []PhaseConfig `yaml:"phases"`
}

// RiskConfig риск на сделку
type RiskConfig struct {
	Amount      float64 `yaml:"amount"`
	StopLossPct float64 `yaml:"stop_loss_pct"`
	RewardRatio int     `yaml:"reward_ratio"`
}

// PositionConfig текущая позиция
type PositionConfig struct {
	Direction      string  `yaml:"direction"`
	Size           float64 `yaml:"size"`
	Unit           string  `yaml:"unit"`
	UnrealizedPnL  float64 `yaml:"unrealized_pnl"`
	RolloverProfit bool    `yaml:"rollover_profit"`
}

// NotifyConfig настройки уведомлений
type NotifyConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Discord  DiscordConfig  `yaml:"discord"`
}

// TelegramConfig настройки Telegram бота
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
	APIURL   string `yaml:"api_url"`
}

// DiscordConfig настройки Discord вебхука
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// ServerConfig настройки HTTP API
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// UIConfig настройки пользовательского интерфейса
type UIConfig struct {
	LogFile  string `yaml:"log_file"`
	LogLines int    `yaml:"log_lines"`
}

// Load загружает конфигурацию из файла
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}

	return Parse(data)
}

// Parse разбирает YAML, применяет значения по умолчанию, секреты из окружения и проверяет результат
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Profile == "" {
		c.Profile = ProfileIntraday
	}
	swing := c.Profile == ProfileSwing

	if c.Binance.Market == "" {
		c.Binance.Market = "futures"
	}

	if c.Trading.Symbol == "" {
		c.Trading.Symbol = "ZECUSDT"
	}
	if c.Trading.Interval == "" {
		if swing {
			c.Trading.Interval = "4h"
		} else {
			c.Trading.Interval = "15m"
		}
	}
	if c.Trading.Limit == 0 {
		c.Trading.Limit = 100
	}
	if c.Trading.Direction == "" {
		c.Trading.Direction = string(models.DirectionLong)
	}

	ind := &c.Indicators
	setInt(&ind.RSIPeriod, 14)
	setInt(&ind.StochPeriod, 14)
	setInt(&ind.StochK, 3)
	setInt(&ind.StochD, 3)
	setInt(&ind.EMAFast, 9)
	setInt(&ind.EMASlow, 21)

	sig := &c.Signal
	if len(sig.Flags) == 0 {
		if swing {
			sig.Flags = []string{FlagStochRSI, FlagTrend, FlagVolumeSpike}
		} else {
			sig.Flags = []string{FlagStochRSI, FlagTrend, FlagRSIZone, FlagVolumeSpike}
		}
	}
	setFloat(&sig.StochOversold, 20)
	setFloat(&sig.StochOverbought, 80)
	setFloat(&sig.RSILongBelow, 45)
	setFloat(&sig.RSIShortAbove, 55)
	if swing {
		setFloat(&sig.VolumeMultiplier, 2.5)
		setInt(&sig.NotifyThreshold, 2)
	} else {
		setFloat(&sig.VolumeMultiplier, 1.3)
		setInt(&sig.NotifyThreshold, 3)
	}

	if len(c.Sizing.Phases) == 0 {
		c.Sizing.Phases = []PhaseConfig{
			{Label: "Phase 1 (Start)", Fraction: 0.25, OffsetPct: 0, DelayMinutes: 0},
			{Label: "Phase 2 (+45m)", Fraction: 0.35, OffsetPct: 0.8, DelayMinutes: 45},
			{Label: "Phase 3 (+90m)", Fraction: 0.40, OffsetPct: 1.5, DelayMinutes: 90},
		}
	}

	setFloat(&c.Risk.Amount, 10)
	setFloat(&c.Risk.StopLossPct, 2)
	setInt(&c.Risk.RewardRatio, 3)

	if c.Position.Direction == "" {
		c.Position.Direction = string(models.DirectionNone)
	}
	if c.Position.Unit == "" {
		c.Position.Unit = string(models.UnitAsset)
	}

	if c.Notify.Telegram.APIURL == "" {
		c.Notify.Telegram.APIURL = "https://api.telegram.org"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	c.Log = c.Log.WithDefaults()
	if c.UI.LogFile == "" {
		c.UI.LogFile = c.Log.JSONFile
	}
	setInt(&c.UI.LogLines, 8)
}

// applyEnv подставляет секреты из окружения поверх файла
func (c *Config) applyEnv() {
	overlay(&c.Binance.APIKey, "BINANCE_API_KEY")
	overlay(&c.Binance.APISecret, "BINANCE_API_SECRET")
	overlay(&c.Notify.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	overlay(&c.Notify.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	overlay(&c.Notify.Discord.WebhookURL, "DISCORD_WEBHOOK_URL")
}

// Validate проверяет структурную корректность конфигурации.
// Параметры риска проверяются при каждом расчете, т.к. могут приходить из запроса.
func (c *Config) Validate() error {
	var errs []error

	if c.Profile != ProfileIntraday && c.Profile != ProfileSwing {
		errs = append(errs, fmt.Errorf("неизвестный профиль %q", c.Profile))
	}
	if c.Binance.Market != "futures" && c.Binance.Market != "spot" {
		errs = append(errs, fmt.Errorf("неизвестный рынок %q", c.Binance.Market))
	}
	if c.Trading.Limit < 2 {
		errs = append(errs, fmt.Errorf("limit должен быть не меньше 2: %d", c.Trading.Limit))
	}

	ind := c.Indicators
	for name, v := range map[string]int{
		"rsi_period":   ind.RSIPeriod,
		"stoch_period": ind.StochPeriod,
		"ema_fast":     ind.EMAFast,
		"ema_slow":     ind.EMASlow,
	} {
		if v < 2 {
			errs = append(errs, fmt.Errorf("период %s должен быть не меньше 2: %d", name, v))
		}
	}
	if ind.StochK < 1 || ind.StochD < 1 {
		errs = append(errs, fmt.Errorf("сглаживание stoch_k/stoch_d должно быть положительным: %d/%d", ind.StochK, ind.StochD))
	}
	if ind.EMAFast >= ind.EMASlow {
		errs = append(errs, fmt.Errorf("ema_fast (%d) должен быть меньше ema_slow (%d)", ind.EMAFast, ind.EMASlow))
	}
	if need := ind.WarmupCandles(); c.Trading.Limit >= 2 && c.Trading.Limit < need {
		errs = append(errs, fmt.Errorf("limit %d меньше прогрева индикаторов: требуется %d свечей", c.Trading.Limit, need))
	}

	seen := make(map[string]bool, len(c.Signal.Flags))
	for _, f := range c.Signal.Flags {
		switch f {
		case FlagStochRSI, FlagTrend, FlagRSIZone, FlagVolumeSpike:
		default:
			errs = append(errs, fmt.Errorf("неизвестный флаг %q", f))
		}
		if seen[f] {
			errs = append(errs, fmt.Errorf("флаг %q указан повторно", f))
		}
		seen[f] = true
	}
	if c.Signal.NotifyThreshold > len(c.Signal.Flags) {
		errs = append(errs, fmt.Errorf("notify_threshold %d больше числа флагов %d", c.Signal.NotifyThreshold, len(c.Signal.Flags)))
	}

	var sum float64
	for i, p := range c.Sizing.Phases {
		if p.Fraction <= 0 {
			errs = append(errs, fmt.Errorf("фаза %d: доля должна быть положительной", i+1))
		}
		if p.OffsetPct < 0 || p.OffsetPct >= 100 {
			errs = append(errs, fmt.Errorf("фаза %d: смещение вне диапазона [0, 100): %v", i+1, p.OffsetPct))
		}
		sum += p.Fraction
	}
	if math.Abs(sum-1) > 1e-9 {
		errs = append(errs, fmt.Errorf("сумма долей фаз должна быть 1.0, получено %v", sum))
	}

	if d, err := models.ParseDirection(c.Trading.Direction); err != nil {
		errs = append(errs, fmt.Errorf("trading.direction: %w", err))
	} else if !d.IsTradable() {
		errs = append(errs, fmt.Errorf("trading.direction: требуется long или short, получено %q", c.Trading.Direction))
	}
	if _, err := models.ParseDirection(c.Position.Direction); err != nil {
		errs = append(errs, fmt.Errorf("position.direction: %w", err))
	}
	if u := models.SizeUnit(c.Position.Unit); u != models.UnitAsset && u != models.UnitQuote {
		errs = append(errs, fmt.Errorf("position.unit: неизвестная единица %q", c.Position.Unit))
	}

	if len(errs) > 0 {
		return fmt.Errorf("некорректная конфигурация: %w", errors.Join(errs...))
	}
	return nil
}

func setInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func setFloat(v *float64, def float64) {
	if *v == 0 {
		*v = def
	}
}

func overlay(v *string, key string) {
	if env, ok := os.LookupEnv(key); ok && env != "" {
		*v = env
	}
}
