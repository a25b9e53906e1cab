package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/phenodx-server/internal/auth"
	"github.com/phenodx-server/internal/domain"
	"github.com/phenodx-server/internal/middleware"
)

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt int64        `json:"expires_at"`
	SessionID string       `json:"session_id"`
	User      *domain.User `json:"user"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req auth.RegisterRequest
	if err := bind(c, &req); err != nil {
		s.respondError(c, err)
		return
	}

	user, err := s.deps.Auth.Register(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// handleLogin checks credentials, opens a session and issues its token
func (s *Server) handleLogin(c *gin.Context) {
	var req auth.LoginRequest
	if err := bind(c, &req); err != nil {
		s.respondError(c, err)
		return
	}

	user, err := s.deps.Auth.Login(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return
	}

	sess := s.deps.Sessions.Create(user.ID)
	token, expiresAt, err := s.deps.Tokens.Issue(user, sess.ID)
	if err != nil {
		s.deps.Sessions.Delete(sess.ID)
		s.respondError(c, err)
		return
	}

	s.log.WithFields(logrus.Fields{
		"user_id":    user.ID,
		"session_id": sess.ID,
	}).Info("User logged in")

	c.JSON(http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt.Unix(),
		SessionID: sess.ID,
		User:      user,
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		s.respondError(c, auth.ErrMissingToken)
		return
	}

	s.deps.Tokens.Revoke(claims)
	s.deps.Sessions.Delete(claims.SessionID)
	c.Status(http.StatusNoContent)
}
