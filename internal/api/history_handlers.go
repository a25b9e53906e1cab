package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/phenodx-server/internal/domain"
	"github.com/phenodx-server/internal/middleware"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

func (s *Server) historyEnabled(c *gin.Context) bool {
	if s.deps.History == nil {
		s.respondError(c, fmt.Errorf("history store: %w", domain.ErrNotFound))
		return false
	}
	return true
}

// handleListHistory pages through the analyses of the caller's session
func (s *Server) handleListHistory(c *gin.Context) {
	if !s.historyEnabled(c) {
		return
	}

	limit, err := queryInt(c, "limit", defaultHistoryLimit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	sessionID := c.GetString(middleware.SessionIDKey)
	ctx := c.Request.Context()

	entries, err := s.deps.History.List(ctx, sessionID, limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}
	total, err := s.deps.History.Count(ctx, sessionID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

func (s *Server) handleGetHistory(c *gin.Context) {
	if !s.historyEnabled(c) {
		return
	}
	entry, err := s.ownedEntry(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": entry})
}

func (s *Server) handleDeleteHistory(c *gin.Context) {
	if !s.historyEnabled(c) {
		return
	}
	entry, err := s.ownedEntry(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.deps.History.Delete(c.Request.Context(), entry.ID); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleClearHistory removes every analysis of the caller's session
func (s *Server) handleClearHistory(c *gin.Context) {
	if !s.historyEnabled(c) {
		return
	}
	removed, err := s.deps.History.Clear(c.Request.Context(), c.GetString(middleware.SessionIDKey))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// ownedEntry loads the :id entry. Entries of other sessions are reported
// as missing.
func (s *Server) ownedEntry(c *gin.Context) (*domain.HistoryEntry, error) {
	id := c.Param("id")
	entry, err := s.deps.History.Get(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if entry.SessionID != c.GetString(middleware.SessionIDKey) {
		return nil, fmt.Errorf("history entry %s: %w", id, domain.ErrNotFound)
	}
	return entry, nil
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(key, "must be an integer", raw)
	}
	return n, nil
}
