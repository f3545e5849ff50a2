package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skalibog/sta/internal/analysis/aggregator"
	"github.com/skalibog/sta/internal/report"
	"github.com/skalibog/sta/pkg/logger"
	"github.com/skalibog/sta/pkg/models"
	"go.uber.org/zap"
)

// Runner выполняет один прогон анализа
type Runner interface {
	Run(ctx context.Context, req aggregator.Request) (*models.Analysis, error)
}

// Server HTTP API поверх анализатора
type Server struct {
	runner     Runner
	defaults   aggregator.Request
	router     *gin.Engine
	httpServer *http.Server
}

// NewServer создает сервер; defaults используются для полей, не указанных в запросе
func NewServer(addr string, runner Runner, defaults aggregator.Request) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	s := &Server{
		runner:   runner,
		defaults: defaults,
		router:   router,
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
	s.setupRoutes()
	return s
}

// Handler маршрутизатор сервера
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/defaults", s.handleDefaults)
		api.POST("/analyze", s.handleAnalyze)
	}
}

// Start запускает HTTP сервер и блокируется до остановки
func (s *Server) Start() error {
	logger.Info("Запуск HTTP сервера", zap.String("addr", s.httpServer.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ошибка запуска сервера: %w", err)
	}
	return nil
}

// Shutdown останавливает сервер
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Остановка HTTP сервера")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleDefaults(c *gin.Context) {
	successResponse(c, s.defaults)
}

// handleAnalyze выполняет прогон. Тело запроса накладывается на параметры
// по умолчанию: отсутствующие поля берутся из конфигурации.
func (s *Server) handleAnalyze(c *gin.Context) {
	req := s.defaults
	req.ConfluenceSymbols = append([]string(nil), s.defaults.ConfluenceSymbols...)

	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		errorResponse(c, http.StatusBadRequest, fmt.Sprintf("некорректное тело запроса: %v", err))
		return
	}

	analysis, err := s.runner.Run(c.Request.Context(), req)
	if err != nil {
		status := statusFor(err)
		logger.Warn("Ошибка анализа", zap.String("symbol", req.Symbol), zap.Int("status", status), zap.Error(err))
		errorResponse(c, status, err.Error())
		return
	}

	if c.Query("format") == "text" {
		c.String(http.StatusOK, report.Text(analysis))
		return
	}
	successResponse(c, analysis)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidParameters):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrDataUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP запрос",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
