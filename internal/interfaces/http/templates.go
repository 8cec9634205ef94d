package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fundarb/internal/domain/model"
)

func (s *Server) handleTemplateList(c *gin.Context) {
	templates, err := s.templates.List(c.Request.Context(), queryInt(c, "limit", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

func (s *Server) handleTemplateCreate(c *gin.Context) {
	var req model.StrategyTemplate
	if !bindJSON(c, &req) {
		return
	}
	created, err := s.templates.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) handleTemplateGet(c *gin.Context) {
	template, err := s.templates.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, template)
}

func (s *Server) handleTemplateUpdate(c *gin.Context) {
	var req model.StrategyTemplate
	if !bindJSON(c, &req) {
		return
	}
	updated, err := s.templates.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleTemplateDelete(c *gin.Context) {
	if err := s.templates.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
