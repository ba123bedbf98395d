package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) registerHealthRoutes() {
	s.engine.GET("/health/detailed", s.DetailedHealth)
}

func (s *Server) DetailedHealth(c *gin.Context) {
	resp := gin.H{
		"status":  "ok",
		"service": s.cfg.AppName,
		"version": s.cfg.AppVersion,
		"time":    time.Now().UTC().Format(time.RFC3339),
	}

	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		resp["status"] = "degraded"
		resp["database"] = "unreachable"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	resp["database"] = "ok"

	c.JSON(http.StatusOK, resp)
}
