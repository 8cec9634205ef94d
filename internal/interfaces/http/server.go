package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fundarb/internal/application/service"
	"fundarb/internal/infrastructure/config"
)

// Server owns the gin engine and the service handles behind it.
type Server struct {
	engine *gin.Engine

	board      *service.BoardService
	execution  *service.ExecutionService
	credential *service.CredentialService
	records    *service.RecordService
	templates  *service.TemplateService
}

func NewServer(cfg *config.Config,
	board *service.BoardService,
	execution *service.ExecutionService,
	credential *service.CredentialService,
	records *service.RecordService,
	templates *service.TemplateService,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware(cfg.CORSOriginList()))

	s := &Server{
		engine:     engine,
		board:      board,
		execution:  execution,
		credential: credential,
		records:    records,
		templates:  templates,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.engine.Group("/api")

	market := api.Group("/market")
	market.GET("/snapshots", s.handleSnapshots)
	market.GET("/board", s.handleBoard)
	api.GET("/opportunities", s.handleOpportunities)

	execution := api.Group("/execution")
	execution.POST("/preview", s.handlePreview)
	execution.POST("/open", s.handleOpen)
	execution.POST("/close", s.handleClose)
	execution.POST("/hedge", s.handleHedge)
	execution.POST("/emergency-close", s.handleEmergencyClose)
	execution.POST("/convert", s.handleConvert)

	api.GET("/credentials", s.handleCredentialStatus)
	api.PUT("/credentials/:exchange", s.handleCredentialUpsert)
	api.DELETE("/credentials/:exchange", s.handleCredentialDelete)

	api.GET("/positions", s.handlePositions)
	api.GET("/positions/:id", s.handlePosition)
	api.GET("/positions/:id/orders", s.handlePositionOrders)
	api.GET("/orders", s.handleOrders)

	api.GET("/risk-events", s.handleRiskEvents)
	api.POST("/risk-events/:id/resolve", s.handleRiskResolve)

	api.GET("/templates", s.handleTemplateList)
	api.POST("/templates", s.handleTemplateCreate)
	api.GET("/templates/:id", s.handleTemplateGet)
	api.PUT("/templates/:id", s.handleTemplateUpdate)
	api.DELETE("/templates/:id", s.handleTemplateDelete)
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		allowed[origin] = struct{}{}
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if _, ok := allowed[origin]; ok {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
