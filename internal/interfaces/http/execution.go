package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fundarb/internal/application/service"
	"fundarb/internal/domain/fault"
	"fundarb/internal/domain/model"
)

func bindJSON(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		respondError(c, fault.Wrap(fault.KindValidation, err, "invalid request body"))
		return false
	}
	return true
}

func (s *Server) handlePreview(c *gin.Context) {
	var req service.PreviewRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := s.execution.Preview(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleOpen(c *gin.Context) {
	var req service.OpenRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := s.execution.Open(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleClose(c *gin.Context) {
	var req service.CloseRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.PositionID == "" {
		respondError(c, fault.New(fault.KindValidation, "position_id is required"))
		return
	}
	result, err := s.execution.Close(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleHedge(c *gin.Context) {
	var req service.HedgeRequest
	if !bindJSON(c, &req) {
		return
	}
	order, err := s.execution.Hedge(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (s *Server) handleEmergencyClose(c *gin.Context) {
	var req service.EmergencyCloseRequest
	// An empty body means sweep everything.
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	results, err := s.execution.EmergencyClose(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) handleConvert(c *gin.Context) {
	var req struct {
		Symbol      string         `json:"symbol"`
		NotionalUSD float64        `json:"notional_usd"`
		Exchange    model.Exchange `json:"exchange"`
	}
	if !bindJSON(c, &req) {
		return
	}
	symbol := model.NormalizeUSDTSymbol(req.Symbol)
	if symbol == "" {
		respondError(c, fault.New(fault.KindValidation, "symbol must be a USDT perpetual"))
		return
	}
	if req.NotionalUSD <= 0 {
		respondError(c, fault.New(fault.KindValidation, "notional_usd must be positive"))
		return
	}
	if req.Exchange != "" && !model.IsSupported(string(req.Exchange)) {
		respondError(c, fault.New(fault.KindValidation, "unknown exchange %q", req.Exchange))
		return
	}
	qty, markPrice, err := s.execution.ConvertNotional(c.Request.Context(), symbol, req.NotionalUSD, req.Exchange)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":       symbol,
		"notional_usd": req.NotionalUSD,
		"quantity":     qty,
		"mark_price":   markPrice,
	})
}
