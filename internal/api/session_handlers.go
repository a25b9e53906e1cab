package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/phenodx-server/internal/domain"
	"github.com/phenodx-server/internal/export"
	"github.com/phenodx-server/internal/middleware"
	"github.com/phenodx-server/internal/session"
)

const sessionKey = "session"

// loadSession resolves the session named by the token. A token whose
// session has expired or been closed is rejected with 401.
func (s *Server) loadSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := s.deps.Sessions.Get(c.GetString(middleware.SessionIDKey))
		if err != nil {
			s.respondError(c, fmt.Errorf("session expired: %w", domain.ErrUnauthorized))
			return
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

func currentSession(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}

type addSymptomRequest struct {
	ID       string           `json:"id" binding:"required"`
	Name     string           `json:"name"`
	Severity *domain.Severity `json:"severity"`
}

type pinRequest struct {
	NodeID string   `json:"node_id" binding:"required"`
	X      *float64 `json:"x" binding:"required"`
	Y      *float64 `json:"y" binding:"required"`
}

func (s *Server) handleListSymptoms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"symptoms": currentSession(c).Symptoms().List()})
}

// handleAddSymptom attaches a catalog term to the patient. Terms outside
// the catalog are accepted when the caller supplies their name, which is
// how remote suggestions are added.
func (s *Server) handleAddSymptom(c *gin.Context) {
	var req addSymptomRequest
	if err := bind(c, &req); err != nil {
		s.respondError(c, err)
		return
	}

	term, ok := s.deps.Catalog.Get(req.ID)
	if !ok {
		if req.Name == "" {
			s.respondError(c, fmt.Errorf("term %s: %w", req.ID, domain.ErrNotFound))
			return
		}
		term = domain.VocabularyTerm{ID: req.ID, Name: req.Name}
	}

	severity := domain.DefaultSeverity
	if req.Severity != nil {
		severity = *req.Severity
	}

	symptoms := currentSession(c).Symptoms()
	added := symptoms.Add(term, severity)
	sym, _ := symptoms.Get(req.ID)

	status := http.StatusCreated
	if !added {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"symptom": sym, "added": added})
}

// handleUpdateSymptom merges annotations into a symptom. Updating an absent
// id is a no-op.
func (s *Server) handleUpdateSymptom(c *gin.Context) {
	var upd domain.SymptomUpdate
	if err := bind(c, &upd); err != nil {
		s.respondError(c, err)
		return
	}

	id := c.Param("id")
	symptoms := currentSession(c).Symptoms()
	if !symptoms.Update(id, upd) {
		c.JSON(http.StatusOK, gin.H{"updated": false})
		return
	}
	sym, _ := symptoms.Get(id)
	c.JSON(http.StatusOK, gin.H{"symptom": sym, "updated": true})
}

// handleRemoveSymptom deletes a symptom. Removing an absent id is a no-op.
func (s *Server) handleRemoveSymptom(c *gin.Context) {
	if !currentSession(c).Symptoms().Remove(c.Param("id")) {
		c.JSON(http.StatusOK, gin.H{"removed": false})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleClearSymptoms(c *gin.Context) {
	currentSession(c).Symptoms().Clear()
	c.Status(http.StatusNoContent)
}

type analyzeResponse struct {
	Ranking         domain.RankingState     `json:"ranking"`
	Suggestions     []domain.VocabularyTerm `json:"suggestions"`
	SuggestionError *domain.APIError        `json:"suggestion_error,omitempty"`
	HistoryID       string                  `json:"history_id,omitempty"`
}

// handleAnalyze ranks the current symptoms. Remote suggestions are fetched
// alongside; their failure is reported but does not fail the analysis.
// With ?async=true the ranking runs in the background and progress is
// delivered on the event stream.
func (s *Server) handleAnalyze(c *gin.Context) {
	sess := currentSession(c)

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		token := sess.StartAnalysis(context.WithoutCancel(c.Request.Context()))
		c.JSON(http.StatusAccepted, gin.H{"token": token, "status": domain.RankingLoading})
		return
	}

	symptoms := sess.Symptoms().List()
	var (
		state       domain.RankingState
		suggestions = []domain.VocabularyTerm{}
		suggestErr  error
	)

	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() error {
		var err error
		state, err = sess.Analyze(ctx)
		return err
	})
	if s.deps.Suggestions != nil && len(symptoms) > 0 {
		g.Go(func() error {
			found, err := s.deps.Suggestions.Suggest(ctx, symptoms)
			if err != nil {
				suggestErr = err
				return nil
			}
			suggestions = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.respondError(c, err)
		return
	}

	resp := analyzeResponse{Ranking: state, Suggestions: suggestions}
	if suggestErr != nil && !errors.Is(suggestErr, context.Canceled) {
		resp.SuggestionError = domain.NewAPIError(domain.ErrorCode(suggestErr), messageFor(domain.ErrorCode(suggestErr)), suggestErr.Error(), c.GetString(middleware.CorrelationKey))
		resp.SuggestionError.Retryable = domain.IsRetryable(suggestErr)
	}
	resp.HistoryID = s.recordHistory(c.Request.Context(), sess.ID, symptoms, state.Diagnoses)

	c.JSON(http.StatusOK, resp)
}

// recordHistory saves a completed analysis. Storage failures are logged
// and do not affect the response.
func (s *Server) recordHistory(ctx context.Context, sessionID string, symptoms []domain.PatientSymptom, diagnoses []domain.Diagnosis) string {
	if s.deps.History == nil || len(symptoms) == 0 {
		return ""
	}
	entry := &domain.HistoryEntry{SessionID: sessionID, Symptoms: symptoms, Diagnoses: diagnoses}
	if err := s.deps.History.Save(ctx, entry); err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Warn("Failed to record analysis history")
		return ""
	}
	return entry.ID
}

func (s *Server) handleCancelAnalysis(c *gin.Context) {
	sess := currentSession(c)
	sess.CancelAnalysis()
	c.JSON(http.StatusOK, gin.H{"ranking": sess.Ranking()})
}

func (s *Server) handleGetDiagnoses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ranking": currentSession(c).Ranking()})
}

func (s *Server) handleGetGraph(c *gin.Context) {
	c.JSON(http.StatusOK, currentSession(c).Graph())
}

func (s *Server) handlePinNode(c *gin.Context) {
	var req pinRequest
	if err := bind(c, &req); err != nil {
		s.respondError(c, err)
		return
	}

	g, err := currentSession(c).PinNode(req.NodeID, *req.X, *req.Y)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (s *Server) handleReleaseNode(c *gin.Context) {
	g, err := currentSession(c).ReleaseNode(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// handleSuggestions returns phenotypes worth asking about: the unmatched
// findings of the current diagnoses and, when configured, the remote
// backend's proposals.
func (s *Server) handleSuggestions(c *gin.Context) {
	if s.deps.Suggestions == nil {
		c.JSON(http.StatusOK, gin.H{"local": []domain.VocabularyTerm{}, "remote": []domain.VocabularyTerm{}})
		return
	}

	sess := currentSession(c)
	symptoms := sess.Symptoms().List()
	resp := gin.H{
		"local":  s.deps.Suggestions.Local(sess.Ranking().Diagnoses, symptoms),
		"remote": []domain.VocabularyTerm{},
	}

	remote, err := s.deps.Suggestions.Suggest(c.Request.Context(), symptoms)
	if err != nil {
		apiErr := domain.NewAPIError(domain.ErrorCode(err), messageFor(domain.ErrorCode(err)), err.Error(), c.GetString(middleware.CorrelationKey))
		apiErr.Retryable = domain.IsRetryable(err)
		resp["remote_error"] = apiErr
	} else {
		resp["remote"] = remote
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleExportJSON(c *gin.Context) {
	data, err := export.MarshalSymptoms(currentSession(c).Symptoms().List())
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+export.JSONFilename+`"`)
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// handleImportJSON replaces the symptom set with an exported document.
func (s *Server) handleImportJSON(c *gin.Context) {
	body, closer, err := uploadBody(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	defer closer.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		s.respondError(c, domain.NewValidationError("body", "request body too large or unreadable", nil))
		return
	}

	imported, err := export.UnmarshalSymptoms(data)
	if err != nil {
		s.respondError(c, err)
		return
	}

	symptoms := currentSession(c).Symptoms()
	symptoms.Replace(imported)

	s.log.WithFields(logrus.Fields{
		"session_id": currentSession(c).ID,
		"imported":   len(imported),
	}).Info("Imported symptoms")

	c.JSON(http.StatusOK, gin.H{"symptoms": symptoms.List()})
}

func (s *Server) handleGetProfile(c *gin.Context) {
	p, err := currentSession(c).Profile()
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": p})
}

func (s *Server) handlePutProfile(c *gin.Context) {
	var p domain.PatientProfile
	if err := bind(c, &p); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": currentSession(c).SetProfile(p)})
}

func (s *Server) handlePatchProfile(c *gin.Context) {
	var upd domain.ProfileUpdate
	if err := bind(c, &upd); err != nil {
		s.respondError(c, err)
		return
	}

	p, err := currentSession(c).UpdateProfile(upd)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": p})
}
