package mcp

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenodx-server/internal/catalog"
	"github.com/phenodx-server/internal/config"
	"github.com/phenodx-server/internal/domain"
	"github.com/phenodx-server/internal/history"
	"github.com/phenodx-server/internal/service"
)

type recorder struct {
	calls map[string][]bool
}

func (r *recorder) RecordToolInvocation(tool string, success bool) {
	if r.calls == nil {
		r.calls = make(map[string][]bool)
	}
	r.calls[tool] = append(r.calls[tool], success)
}

type failingRanker struct{}

func (failingRanker) Rank(ctx context.Context, symptoms []domain.PatientSymptom) ([]domain.Diagnosis, error) {
	return nil, fmt.Errorf("backend down: %w", domain.ErrRankingUnavailable)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestServer(t *testing.T, ranker domain.DiagnosisRanker) (*Server, *recorder, history.Store) {
	t.Helper()
	logger := testLogger()

	terms, err := catalog.Open(catalog.Config{}, logger)
	require.NoError(t, err)

	store, err := history.NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"), 0)
	require.NoError(t, err)

	if ranker == nil {
		ranker = service.NewReferenceRanker(logger)
	}
	rec := &recorder{}
	s := NewServer("phenodx-test", "v0.0.0", Dependencies{
		Catalog:  terms,
		Ranker:   ranker,
		History:  store,
		Recorder: rec,
	}, logger)
	t.Cleanup(func() { _ = s.Close() })
	return s, rec, store
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestSearchTermsTool(t *testing.T) {
	s, rec, _ := newTestServer(t, nil)
	ctx := context.Background()

	res, out, err := s.handleSearchTerms(ctx, &mcp.CallToolRequest{}, SearchTermsParams{Query: "ab"})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	result := out.(SearchTermsResult)
	assert.NotEmpty(t, result.Terms)
	for _, term := range result.Terms {
		assert.Contains(t, strings.ToLower(term.Name), "ab")
	}

	_, out, err = s.handleSearchTerms(ctx, &mcp.CallToolRequest{}, SearchTermsParams{Query: "ab", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, out.(SearchTermsResult).Terms, 1)

	_, out, err = s.handleSearchTerms(ctx, &mcp.CallToolRequest{}, SearchTermsParams{Query: "a"})
	require.NoError(t, err)
	assert.Empty(t, out.(SearchTermsResult).Terms)

	assert.Equal(t, []bool{true, true, true}, rec.calls[ToolSearchTerms])
}

func TestRankDiagnosesTool(t *testing.T) {
	s, rec, store := newTestServer(t, nil)
	ctx := context.Background()

	res, out, err := s.handleRankDiagnoses(ctx, &mcp.CallToolRequest{}, RankDiagnosesParams{
		SymptomIDs: []string{"HP:0001250", "HP:0001257", "HP:0001250", "HP:9999999"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	result := out.(RankDiagnosesResult)
	require.Len(t, result.Diagnoses, 3)
	assert.Equal(t, "D002", result.Diagnoses[0].ID)
	assert.Equal(t, 90.0, result.Diagnoses[0].ConfidenceScore)
	assert.Equal(t, "D004", result.Diagnoses[1].ID)
	assert.Equal(t, 80.0, result.Diagnoses[1].ConfidenceScore)
	assert.Equal(t, []string{"HP:9999999"}, result.UnknownIDs)
	require.NotEmpty(t, result.HistoryID)
	assert.Contains(t, text(t, res), `"D002"`)

	entry, err := store.Get(ctx, result.HistoryID)
	require.NoError(t, err)
	assert.Equal(t, historySession, entry.SessionID)
	assert.Len(t, entry.Symptoms, 2)

	assert.Equal(t, []bool{true}, rec.calls[ToolRankDiagnoses])
}

func TestRankDiagnosesToolRejectsUnknownOnly(t *testing.T) {
	s, rec, _ := newTestServer(t, nil)

	res, out, err := s.handleRankDiagnoses(context.Background(), &mcp.CallToolRequest{}, RankDiagnosesParams{SymptomIDs: []string{"HP:9999999"}})

	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Nil(t, out)
	assert.Contains(t, text(t, res), "no known symptom ids")
	assert.Equal(t, []bool{false}, rec.calls[ToolRankDiagnoses])

	res, _, err = s.handleRankDiagnoses(context.Background(), &mcp.CallToolRequest{}, RankDiagnosesParams{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestRankDiagnosesToolReportsRankerFailure(t *testing.T) {
	s, _, _ := newTestServer(t, failingRanker{})

	res, _, err := s.handleRankDiagnoses(context.Background(), &mcp.CallToolRequest{}, RankDiagnosesParams{SymptomIDs: []string{"HP:0001250"}})

	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "Ranking failed")
}

func TestBuildGraphTool(t *testing.T) {
	s, _, _ := newTestServer(t, nil)

	res, out, err := s.handleBuildGraph(context.Background(), &mcp.CallToolRequest{}, RankDiagnosesParams{
		SymptomIDs: []string{"HP:0002094", "HP:0001945"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	result := out.(BuildGraphResult)
	require.Len(t, result.Diagnoses, 1)
	assert.Len(t, result.Graph.Nodes, 3)
	assert.Len(t, result.Graph.Edges, 2)
	for _, e := range result.Graph.Edges {
		assert.Equal(t, "D003", e.Source)
	}
}

func TestExtractTermsTool(t *testing.T) {
	s, _, _ := newTestServer(t, nil)

	res, out, err := s.handleExtractTerms(context.Background(), &mcp.CallToolRequest{}, ExtractTermsParams{
		Text: "Presented with ataxia and NYSTAGMUS.",
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	var ids []string
	for _, term := range out.(ExtractTermsResult).Terms {
		ids = append(ids, term.ID)
	}
	assert.Equal(t, []string{"HP:0001251", "HP:0000639"}, ids)

	res, _, err = s.handleExtractTerms(context.Background(), &mcp.CallToolRequest{}, ExtractTermsParams{Text: "  "})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestNewLiteServer(t *testing.T) {
	cfg := config.DefaultLiteConfig()
	cfg.DataDir = t.TempDir()

	s, err := NewLiteServer(cfg, WithLogger(testLogger()))
	require.NoError(t, err)
	defer s.Close()

	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.deps.History)
	assert.FileExists(t, cfg.HistoryDBPath())
}

func TestNewLiteServerRemoteModeRequiresURL(t *testing.T) {
	cfg := config.DefaultLiteConfig()
	cfg.DataDir = t.TempDir()
	cfg.RankingMode = domain.RankingModeRemote

	_, err := NewLiteServer(cfg, WithLogger(testLogger()))
	assert.Error(t, err)
}
