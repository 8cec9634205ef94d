package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fundarb/internal/domain/fault"
	"fundarb/internal/domain/model"
	domsvc "fundarb/internal/domain/service"
)

func queryBool(c *gin.Context, name string) bool {
	v, err := strconv.ParseBool(c.DefaultQuery(name, "false"))
	return err == nil && v
}

func queryInt(c *gin.Context, name string, fallback int) int {
	v, err := strconv.Atoi(c.DefaultQuery(name, ""))
	if err != nil {
		return fallback
	}
	return v
}

func queryFloat(c *gin.Context, name string) float64 {
	v, err := strconv.ParseFloat(c.DefaultQuery(name, ""), 64)
	if err != nil {
		return 0
	}
	return v
}

func (s *Server) handleSnapshots(c *gin.Context) {
	data, err := s.board.Snapshots(c.Request.Context(), queryBool(c, "force_refresh"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"snapshots": data.Snapshots,
		"meta":      data.Meta,
	})
}

func (s *Server) handleBoard(c *gin.Context) {
	filter := domsvc.BoardFilter{
		Limit:                  queryInt(c, "limit", 0),
		MinSpreadRate1yNominal: queryFloat(c, "min_spread_rate_1y_nominal"),
		MinNextCycleScore:      queryFloat(c, "min_next_cycle_score"),
		Symbol:                 c.Query("symbol"),
	}
	for _, name := range c.QueryArray("exchanges") {
		if !model.IsSupported(name) {
			respondError(c, fault.New(fault.KindValidation, "unknown exchange %q", name))
			return
		}
		filter.Exchanges = append(filter.Exchanges, model.Exchange(name))
	}

	view, err := s.board.Board(c.Request.Context(), filter, queryBool(c, "force_refresh"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleOpportunities(c *gin.Context) {
	data, err := s.board.Snapshots(c.Request.Context(), queryBool(c, "force_refresh"))
	if err != nil {
		respondError(c, err)
		return
	}
	opportunities := domsvc.ScanOpportunities(data.Snapshots, queryFloat(c, "min_spread_rate_1y_nominal"))
	c.JSON(http.StatusOK, gin.H{
		"opportunities": opportunities,
		"meta":          data.Meta,
	})
}
