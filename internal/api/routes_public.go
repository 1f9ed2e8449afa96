package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "starx",
		"version": s.deps.Version,
	})
}

// handleVersion returns the daemon version.
func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":     s.deps.Version,
		"name":        "starx",
		"instance_id": s.cfg.InstanceID,
	})
}
