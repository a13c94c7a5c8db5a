package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bingx-trading-bot/internal/engine"
	"bingx-trading-bot/internal/position"
)

type listPositionsQuery struct {
	Open bool `form:"open"`
}

type historyQuery struct {
	Limit int `form:"limit"`
}

func (q *historyQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// respondEngineError maps engine errors onto HTTP statuses.
func respondEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, position.ErrNotFound):
		respondError(c, http.StatusNotFound, "POSITION_NOT_FOUND", err.Error())
	case errors.Is(err, engine.ErrStrategyNotFound):
		respondError(c, http.StatusNotFound, "STRATEGY_NOT_FOUND", err.Error())
	case errors.Is(err, position.ErrInvalidTransition), errors.Is(err, engine.ErrPositionBusy):
		respondError(c, http.StatusConflict, "INVALID_STATE", err.Error())
	case errors.Is(err, engine.ErrNoJournal):
		respondError(c, http.StatusServiceUnavailable, "JOURNAL_DISABLED", err.Error())
	default:
		respondError(c, http.StatusBadGateway, "ENGINE_ERROR", err.Error())
	}
}

func positionID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, http.StatusBadRequest, "INVALID_ID", "position id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.GetSystemStatus(c.Request.Context()))
}

func (s *Server) getBalance(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.GetBalance(c.Request.Context()))
}

func (s *Server) getPositions(c *gin.Context) {
	var q listPositionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": s.Engine.GetPositions(c.Request.Context(), q.Open)})
}

func (s *Server) getPosition(c *gin.Context) {
	id, ok := positionID(c)
	if !ok {
		return
	}
	p, err := s.Engine.GetPosition(c.Request.Context(), id)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) closePosition(c *gin.Context) {
	id, ok := positionID(c)
	if !ok {
		return
	}
	p, err := s.Engine.ClosePosition(c.Request.Context(), id)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	s.log.Info().Str("operator", CurrentOperator(c)).Uint64("id", id).Msg("position closed by operator")
	c.JSON(http.StatusOK, p)
}

func (s *Server) getRiskMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.GetRiskMetrics(c.Request.Context()))
}

func (s *Server) resetEmergencyStop(c *gin.Context) {
	if err := s.Engine.ResetEmergencyStop(c.Request.Context()); err != nil {
		respondEngineError(c, err)
		return
	}
	s.log.Warn().Str("operator", CurrentOperator(c)).Msg("emergency stop reset")
	c.JSON(http.StatusOK, s.Engine.GetRiskMetrics(c.Request.Context()))
}

func (s *Server) getStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": s.Engine.ListStrategies(c.Request.Context())})
}

func (s *Server) enableStrategy(c *gin.Context)  { s.setStrategyEnabled(c, true) }
func (s *Server) disableStrategy(c *gin.Context) { s.setStrategyEnabled(c, false) }

func (s *Server) setStrategyEnabled(c *gin.Context, enabled bool) {
	id := c.Param("id")
	if err := s.Engine.SetStrategyEnabled(c.Request.Context(), id, enabled); err != nil {
		respondEngineError(c, err)
		return
	}
	s.log.Info().Str("operator", CurrentOperator(c)).Str("strategy", id).Bool("enabled", enabled).Msg("strategy toggled")
	c.JSON(http.StatusOK, gin.H{"id": id, "enabled": enabled})
}

func (s *Server) getHistory(c *gin.Context) {
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	q.normalize()
	h, err := s.Engine.GetHistory(c.Request.Context(), q.Limit)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, h)
}
