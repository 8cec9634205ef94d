package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fundarb/internal/application/port"
	"fundarb/internal/domain/model"
)

func (s *Server) handlePositions(c *gin.Context) {
	filter := port.PositionFilter{
		Status: model.PositionStatus(c.Query("status")),
		Limit:  queryInt(c, "limit", 0),
	}
	positions, err := s.records.Positions(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

func (s *Server) handlePosition(c *gin.Context) {
	position, err := s.records.Position(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, position)
}

func (s *Server) handlePositionOrders(c *gin.Context) {
	if _, err := s.records.Position(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	orders, err := s.records.OrdersForPosition(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) handleOrders(c *gin.Context) {
	filter := port.OrderFilter{
		Action: model.OrderAction(c.Query("action")),
		Limit:  queryInt(c, "limit", 0),
	}
	orders, err := s.records.Orders(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) handleRiskEvents(c *gin.Context) {
	filter := port.RiskFilter{
		Severity: model.Severity(c.Query("severity")),
		Limit:    queryInt(c, "limit", 0),
	}
	if raw := c.Query("resolved"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			filter.Resolved = &v
		}
	}
	events, err := s.records.RiskEvents(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"risk_events": events})
}

func (s *Server) handleRiskResolve(c *gin.Context) {
	event, err := s.records.ResolveRiskEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}
