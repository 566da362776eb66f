package trader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"solana-trade-bot-go/internal/models"
)

// APIServer exposes the engine's trading actions over HTTP.
type APIServer struct {
	server    *http.Server
	router    *gin.Engine
	engine    *Engine
	logger    *zap.Logger
	startTime time.Time
}

// NewAPIServer creates a new APIServer listening on the configured control port.
func NewAPIServer(engine *Engine, logger *zap.Logger) *APIServer {
	gin.SetMode(gin.ReleaseMode)

	s := &APIServer{
		router:    gin.New(),
		engine:    engine,
		logger:    logger.Named("api-server"),
		startTime: engine.now(),
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", engine.cfg.Trading.APIPort),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *APIServer) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/status", s.statusHandler)

	api := s.router.Group("/api")
	{
		api.POST("/scan", s.scanHandler)
		api.POST("/quote", s.quoteHandler)
		api.POST("/swap", s.swapHandler)
		api.POST("/exits/check", s.checkExitsHandler)
		api.PUT("/positions/:token/limits", s.setLimitsHandler)
		api.GET("/positions", s.positionsHandler)
		api.GET("/portfolio", s.portfolioHandler)
		api.GET("/stats", s.statsHandler)
		api.GET("/memory", s.memoryHandler)
		api.POST("/learn", s.learnHandler)
	}
}

// Handler returns the HTTP handler of the server.
func (s *APIServer) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

func (s *APIServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("Handled request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// locked runs fn while holding the engine lock shared with the trading loop.
func (s *APIServer) locked(fn func()) {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	fn()
}

func (s *APIServer) healthHandler(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (s *APIServer) statusHandler(c *gin.Context) {
	cfg := s.engine.cfg.Trading
	c.JSON(http.StatusOK, gin.H{
		"wallet":     s.engine.wallet,
		"enabled":    cfg.Enabled,
		"autonomous": cfg.Autonomous,
		"dry_run":    cfg.DryRun,
		"start_time": s.startTime.Format(time.RFC3339),
		"uptime":     s.engine.now().Sub(s.startTime).String(),
	})
}

func (s *APIServer) scanHandler(c *gin.Context) {
	var res *ScanResult
	var err error
	s.locked(func() { res, err = s.engine.Scan(c.Request.Context()) })
	s.respond(c, res, err)
}

func (s *APIServer) quoteHandler(c *gin.Context) {
	var req QuoteRequest
	if !s.bind(c, &req) {
		return
	}
	quote, err := s.engine.GetQuote(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": quote})
}

func (s *APIServer) swapHandler(c *gin.Context) {
	var req SwapRequest
	if !s.bind(c, &req) {
		return
	}
	var res *SwapResult
	var err error
	s.locked(func() { res, err = s.engine.Swap(c.Request.Context(), req) })
	if err == nil && res.Sell != nil && res.Sell.NoPosition {
		c.JSON(http.StatusNotFound, gin.H{"error": res.String(), "result": res})
		return
	}
	s.respond(c, res, err)
}

func (s *APIServer) checkExitsHandler(c *gin.Context) {
	var res *ExitReport
	var err error
	s.locked(func() { res, err = s.engine.CheckExits(c.Request.Context()) })
	s.respond(c, res, err)
}

type limitsRequest struct {
	StopLossPct   float64 `json:"stop_loss_pct"`
	TakeProfitPct float64 `json:"take_profit_pct"`
}

func (s *APIServer) setLimitsHandler(c *gin.Context) {
	var req limitsRequest
	if !s.bind(c, &req) {
		return
	}
	token := c.Param("token")

	var pos *models.Position
	var err error
	s.locked(func() { pos, err = s.engine.SetLimits(c.Request.Context(), token, req.StopLossPct, req.TakeProfitPct) })
	if err != nil {
		s.fail(c, err)
		return
	}
	if pos == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("No open position for %s", token)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": pos})
}

func (s *APIServer) positionsHandler(c *gin.Context) {
	report, err := s.engine.PositionsReport(c.Request.Context())
	s.respondText(c, report, err)
}

func (s *APIServer) portfolioHandler(c *gin.Context) {
	res, err := s.engine.Portfolio(c.Request.Context())
	s.respond(c, res, err)
}

func (s *APIServer) statsHandler(c *gin.Context) {
	stats, err := s.engine.Stats()
	s.respondText(c, stats, err)
}

func (s *APIServer) memoryHandler(c *gin.Context) {
	text, err := s.engine.MemoryContext()
	s.respondText(c, text, err)
}

type learnRequest struct {
	Note string `json:"note"`
}

func (s *APIServer) learnHandler(c *gin.Context) {
	var req learnRequest
	if !s.bind(c, &req) {
		return
	}
	err := s.engine.Learn(c.Request.Context(), req.Note)
	s.respondText(c, "Noted: "+req.Note, err)
}

func (s *APIServer) bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

func (s *APIServer) respond(c *gin.Context, res fmt.Stringer, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res, "text": res.String()})
}

func (s *APIServer) respondText(c *gin.Context, text string, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": text})
}

func (s *APIServer) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, ErrTokenNotFound):
		status = http.StatusNotFound
	default:
		s.logger.Error("Request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
