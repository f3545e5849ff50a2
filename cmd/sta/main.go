package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/skalibog/sta/internal/analysis/aggregator"
	"github.com/skalibog/sta/internal/api"
	"github.com/skalibog/sta/internal/config"
	"github.com/skalibog/sta/internal/exchange"
	"github.com/skalibog/sta/internal/notify"
	"github.com/skalibog/sta/internal/report"
	"github.com/skalibog/sta/internal/ui"
	"github.com/skalibog/sta/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	// Обработка флагов командной строки
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	once := flag.Bool("once", false, "выполнить один расчет и вывести отчет")
	serve := flag.Bool("serve", false, "запустить HTTP API вместо терминального интерфейса")
	flag.Parse()

	// Секреты из .env, если файл есть
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Ошибка чтения .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	logCfg := cfg.Log
	logCfg.Console = logCfg.Console && !*once
	if err := logger.Init(logCfg); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Загружена конфигурация",
		zap.String("path", *configPath),
		zap.String("profile", cfg.Profile),
		zap.String("symbol", cfg.Trading.Symbol),
		zap.String("interval", cfg.Trading.Interval))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := exchange.NewBinanceClient(cfg.Binance)
	if err != nil {
		logger.Fatal("Ошибка инициализации клиента биржи", zap.Error(err))
	}

	notifier := notify.NewManagerFromConfig(cfg.Notify)

	analyzer, err := aggregator.NewAnalyzer(cfg, client, notifier)
	if err != nil {
		logger.Fatal("Ошибка инициализации анализатора", zap.Error(err))
	}

	req, err := aggregator.RequestFromConfig(cfg)
	if err != nil {
		logger.Fatal("Некорректные параметры по умолчанию", zap.Error(err))
	}

	switch {
	case *once:
		analysis, err := analyzer.Run(ctx, req)
		if err != nil {
			logger.Error("Ошибка анализа", zap.Error(err))
			fmt.Fprintf(os.Stderr, "Ошибка анализа: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(report.Text(analysis))

	case *serve:
		server := api.NewServer(cfg.Server.Addr, analyzer, req)
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Ошибка остановки сервера", zap.Error(err))
			}
		}()
		if err := server.Start(); err != nil {
			logger.Fatal("Ошибка HTTP сервера", zap.Error(err))
		}

	default:
		// UI в основном потоке (блокирующий вызов)
		if err := ui.NewTermUI(ctx, cfg.UI, analyzer, req).Start(); err != nil {
			logger.Error("Ошибка UI", zap.Error(err))
			os.Exit(1)
		}
	}
}
