package main

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"solana-trade-bot-go/internal/memory"
	"solana-trade-bot-go/internal/positions"
)

const (
	defaultTradeLimit = 50
	memoryListLimit   = 20
)

// APIHandler holds dependencies for the API endpoints. Every request reloads from the store so
// the dashboard follows the running agent.
type APIHandler struct {
	log       *zap.Logger
	positions *positions.Manager
	memory    *memory.Memory
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, pm *positions.Manager, mem *memory.Memory) *APIHandler {
	return &APIHandler{log: log, positions: pm, memory: mem}
}

// Register mounts the dashboard routes on r.
func (h *APIHandler) Register(r *gin.Engine) {
	r.GET("/health", h.HealthHandler)
	api := r.Group("/api")
	{
		api.GET("/positions", h.PositionsHandler)
		api.GET("/trades", h.TradesHandler)
		api.GET("/stats", h.StatsHandler)
		api.GET("/memory", h.MemoryHandler)
	}
}

// HealthHandler reports liveness.
func (h *APIHandler) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// PositionsHandler returns the open positions.
func (h *APIHandler) PositionsHandler(c *gin.Context) {
	h.positions.Reload(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"positions":    h.positions.OpenPositions(),
		"invested_sol": h.positions.TotalSOLInvested(),
	})
}

// TradesHandler returns the most recent trades, newest first.
func (h *APIHandler) TradesHandler(c *gin.Context) {
	limit := defaultTradeLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	h.positions.Reload(c.Request.Context())
	trades := h.positions.TradeHistory(limit)
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	c.JSON(http.StatusOK, trades)
}

// StatsHandler returns the aggregate trading statistics.
func (h *APIHandler) StatsHandler(c *gin.Context) {
	h.positions.Reload(c.Request.Context())
	c.JSON(http.StatusOK, h.positions.Stats())
}

// MemoryHandler returns the strategy memory digest and its recent entries.
func (h *APIHandler) MemoryHandler(c *gin.Context) {
	h.memory.Reload(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"context":  h.memory.BuildContext(),
		"lessons":  h.memory.Lessons(memoryListLimit),
		"patterns": h.memory.Patterns(),
		"notes":    h.memory.UserNotes(memoryListLimit),
		"reviews":  h.memory.Reviews(memoryListLimit),
	})
}
