package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/phenodx-server/internal/catalog"
	"github.com/phenodx-server/internal/domain"
	"github.com/phenodx-server/internal/export"
)

// maxUploadBytes bounds import bodies
const maxUploadBytes = 5 << 20

type extractRequest struct {
	Text string `json:"text" binding:"required"`
}

type termsRequest struct {
	Terms []domain.VocabularyTerm `json:"terms" binding:"required,min=1,dive"`
}

// handleSearchTerms answers type-ahead queries. Queries shorter than the
// minimum return an empty list without touching the catalog.
func (s *Server) handleSearchTerms(c *gin.Context) {
	query := c.Query("q")
	if !catalog.ShouldSearch(query) {
		c.JSON(http.StatusOK, gin.H{"terms": []domain.VocabularyTerm{}})
		return
	}

	terms, err := s.deps.Catalog.Search(c.Request.Context(), query)
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordSearch(err == nil)
	}
	if errors.Is(err, domain.ErrCatalogUnavailable) {
		s.log.WithError(err).Warn("Term search while catalog unavailable")
		c.JSON(http.StatusOK, gin.H{"terms": []domain.VocabularyTerm{}, "retryable": true})
		return
	}
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"terms": terms})
}

func (s *Server) handleExtractTerms(c *gin.Context) {
	var req extractRequest
	if err := bind(c, &req); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"terms":      s.deps.Catalog.Extract(req.Text),
		"highlights": s.deps.Catalog.Highlights(req.Text),
	})
}

func (s *Server) handleExportCSV(c *gin.Context) {
	var req termsRequest
	if err := bind(c, &req); err != nil {
		s.respondError(c, err)
		return
	}

	data, err := export.MarshalTermsCSV(req.Terms)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+export.CSVFilename+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

// handleImportCSV accepts the CSV either as the raw body or as the "file"
// field of a multipart form.
func (s *Server) handleImportCSV(c *gin.Context) {
	body, closer, err := uploadBody(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	defer closer.Close()

	terms, err := export.ReadTermsCSV(body)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"terms": terms})
}

func uploadBody(c *gin.Context) (io.Reader, io.Closer, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	mediaType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
	if !strings.HasPrefix(mediaType, "multipart/") {
		return c.Request.Body, c.Request.Body, nil
	}

	header, err := c.FormFile("file")
	if err != nil {
		return nil, nil, domain.NewValidationError("file", "multipart field 'file' is required", nil)
	}
	f, err := header.Open()
	if err != nil {
		return nil, nil, err
	}
	return f, f, nil
}
