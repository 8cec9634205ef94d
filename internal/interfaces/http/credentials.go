package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fundarb/internal/domain/fault"
	"fundarb/internal/domain/model"
)

func exchangeParam(c *gin.Context) (model.Exchange, bool) {
	name := c.Param("exchange")
	if !model.IsSupported(name) {
		respondError(c, fault.New(fault.KindValidation, "unknown exchange %q", name))
		return "", false
	}
	return model.Exchange(name), true
}

func (s *Server) handleCredentialStatus(c *gin.Context) {
	statuses, err := s.credential.Status(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"vault_enabled": s.credential.Enabled(),
		"credentials":   statuses,
	})
}

func (s *Server) handleCredentialUpsert(c *gin.Context) {
	exchange, ok := exchangeParam(c)
	if !ok {
		return
	}
	var req struct {
		APIKey          string `json:"api_key"`
		APISecret       string `json:"api_secret"`
		Passphrase      string `json:"passphrase"`
		Testnet         bool   `json:"testnet"`
		PortfolioMargin bool   `json:"portfolio_margin"`
	}
	if !bindJSON(c, &req) {
		return
	}
	status, err := s.credential.Upsert(c.Request.Context(), exchange, model.Credential{
		APIKey:          req.APIKey,
		APISecret:       req.APISecret,
		Passphrase:      req.Passphrase,
		Testnet:         req.Testnet,
		PortfolioMargin: req.PortfolioMargin,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleCredentialDelete(c *gin.Context) {
	exchange, ok := exchangeParam(c)
	if !ok {
		return
	}
	deleted, err := s.credential.Delete(c.Request.Context(), exchange)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
