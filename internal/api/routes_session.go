package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/starx-project/starx/internal/connector"
	"github.com/starx-project/starx/internal/db"
	"github.com/starx-project/starx/internal/util"
)

const maxJournalLimit = 1000

// sendRequest is the body of POST /api/request and /api/notify.
type sendRequest struct {
	Route   string          `json:"route" binding:"required"`
	Payload json.RawMessage `json:"payload"`
}

// handleStatus reports the session state, counters and host information.
func (s *Server) handleStatus(c *gin.Context) {
	sess := s.deps.Session
	c.JSON(http.StatusOK, gin.H{
		"state":         sess.State(),
		"url":           sess.URL(),
		"heartbeat_sec": sess.HeartbeatInterval().Seconds(),
		"routes":        len(sess.Routes()),
		"stats":         sess.Stats(),
		"host":          util.GetSystemInfo(),
		"process":       util.GetProcessStats(),
	})
}

// handleRoutes returns the route dictionary negotiated at handshake.
func (s *Server) handleRoutes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"routes": s.deps.Session.Routes(),
	})
}

// handleRequest forwards a request upstream and waits for the response.
func (s *Server) handleRequest(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Payload) > 0 && !json.Valid(req.Payload) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payload is not valid JSON"})
		return
	}

	timeout := time.Duration(s.cfg.GetAPI().RequestTimeout) * time.Second
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.deps.Relay.Request(ctx, req.Route, req.Payload)
	if err != nil {
		status := requestErrorStatus(err)
		log.Warn().Err(err).Str("route", req.Route).Int("status", status).Msg("API: request failed")
		c.JSON(status, gin.H{"error": err.Error(), "route": req.Route})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"route":       req.Route,
		"response":    resp,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

// handleNotify forwards a notify upstream.
func (s *Server) handleNotify(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Payload) > 0 && !json.Valid(req.Payload) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payload is not valid JSON"})
		return
	}
	if st := s.deps.Session.State(); st != connector.StateConnected {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session not connected", "state": st})
		return
	}

	if err := s.deps.Relay.Notify(req.Route, req.Payload); err != nil {
		c.JSON(requestErrorStatus(err), gin.H{"error": err.Error(), "route": req.Route})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status": "sent",
		"route":  req.Route,
	})
}

// handleJournal returns recent journal entries, newest first.
func (s *Server) handleJournal(c *gin.Context) {
	if s.deps.Journal == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "journal is disabled"})
		return
	}

	q := db.Query{
		Route: c.Query("route"),
		Kind:  c.Query("kind"),
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		q.Limit = min(limit, maxJournalLimit)
	}

	entries, err := s.deps.Journal.Query(q)
	if err != nil {
		log.Error().Err(err).Msg("API: journal query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "journal query failed"})
		return
	}
	if entries == nil {
		entries = []db.Entry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(entries),
		"entries": entries,
	})
}

// requestErrorStatus maps session errors to HTTP status codes.
func requestErrorStatus(err error) int {
	switch {
	case errors.Is(err, connector.ErrEmptyRoute), errors.Is(err, connector.ErrRouteTooLong):
		return http.StatusBadRequest
	case errors.Is(err, connector.ErrNotConnected), errors.Is(err, connector.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, connector.ErrRequestTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
