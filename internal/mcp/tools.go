package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/phenodx-server/internal/catalog"
	"github.com/phenodx-server/internal/domain"
)

// Tool names
const (
	ToolSearchTerms   = "search_terms"
	ToolRankDiagnoses = "rank_diagnoses"
	ToolBuildGraph    = "build_graph"
	ToolExtractTerms  = "extract_terms"
)

// historySession groups analyses recorded through the tools
const historySession = "mcp"

// SearchTermsParams defines parameters for the search_terms tool
type SearchTermsParams struct {
	Query string `json:"query" jsonschema:"case-insensitive substring of the term name"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of terms to return; 0 returns all"`
}

// SearchTermsResult is the output of search_terms
type SearchTermsResult struct {
	Query string                  `json:"query"`
	Terms []domain.VocabularyTerm `json:"terms"`
}

// RankDiagnosesParams defines parameters for rank_diagnoses and build_graph
type RankDiagnosesParams struct {
	SymptomIDs []string `json:"symptom_ids" jsonschema:"HPO term ids observed in the patient"`
	SessionID  string   `json:"session_id,omitempty" jsonschema:"groups the recorded analysis in history"`
}

// RankDiagnosesResult is the output of rank_diagnoses
type RankDiagnosesResult struct {
	Diagnoses  []domain.Diagnosis `json:"diagnoses"`
	UnknownIDs []string           `json:"unknown_ids,omitempty"`
	HistoryID  string             `json:"history_id,omitempty"`
}

// BuildGraphResult is the output of build_graph
type BuildGraphResult struct {
	Graph      domain.Graph       `json:"graph"`
	Diagnoses  []domain.Diagnosis `json:"diagnoses"`
	UnknownIDs []string           `json:"unknown_ids,omitempty"`
}

// ExtractTermsParams defines parameters for the extract_terms tool
type ExtractTermsParams struct {
	Text string `json:"text" jsonschema:"free clinical text"`
}

// ExtractTermsResult is the output of extract_terms
type ExtractTermsResult struct {
	Terms []domain.VocabularyTerm `json:"terms"`
}

func (s *Server) handleSearchTerms(ctx context.Context, req *mcp.CallToolRequest, params SearchTermsParams) (*mcp.CallToolResult, any, error) {
	ctx, op := s.ops.Start(ctx, "tool", ToolSearchTerms, map[string]interface{}{
		"query": params.Query,
		"limit": params.Limit,
	})

	result := SearchTermsResult{Query: params.Query, Terms: []domain.VocabularyTerm{}}
	if !catalog.ShouldSearch(params.Query) {
		op.End(0, nil)
		return s.jsonResult(ToolSearchTerms, result)
	}

	terms, err := s.deps.Catalog.Search(ctx, params.Query)
	op.End(len(terms), err)
	if err != nil {
		return s.createErrorResult(ToolSearchTerms, "Search failed", err), nil, nil
	}
	if params.Limit > 0 && len(terms) > params.Limit {
		terms = terms[:params.Limit]
	}
	result.Terms = terms
	return s.jsonResult(ToolSearchTerms, result)
}

func (s *Server) handleRankDiagnoses(ctx context.Context, req *mcp.CallToolRequest, params RankDiagnosesParams) (*mcp.CallToolResult, any, error) {
	ctx, op := s.ops.Start(ctx, "tool", ToolRankDiagnoses, map[string]interface{}{
		"symptom_ids": params.SymptomIDs,
		"session_id":  params.SessionID,
	})

	symptoms, unknown, err := s.resolveSymptoms(params.SymptomIDs)
	if err != nil {
		op.End(0, err)
		return s.createErrorResult(ToolRankDiagnoses, "Invalid parameters", err), nil, nil
	}

	diagnoses, err := s.rank(ctx, symptoms)
	op.End(len(diagnoses), err)
	if err != nil {
		return s.createErrorResult(ToolRankDiagnoses, "Ranking failed", err), nil, nil
	}

	result := RankDiagnosesResult{Diagnoses: diagnoses, UnknownIDs: unknown}
	result.HistoryID = s.record(ctx, params.SessionID, symptoms, diagnoses)
	return s.jsonResult(ToolRankDiagnoses, result)
}

func (s *Server) handleBuildGraph(ctx context.Context, req *mcp.CallToolRequest, params RankDiagnosesParams) (*mcp.CallToolResult, any, error) {
	ctx, op := s.ops.Start(ctx, "tool", ToolBuildGraph, map[string]interface{}{
		"symptom_ids": params.SymptomIDs,
		"session_id":  params.SessionID,
	})

	symptoms, unknown, err := s.resolveSymptoms(params.SymptomIDs)
	if err != nil {
		op.End(0, err)
		return s.createErrorResult(ToolBuildGraph, "Invalid parameters", err), nil, nil
	}

	diagnoses, err := s.rank(ctx, symptoms)
	op.End(len(diagnoses), err)
	if err != nil {
		return s.createErrorResult(ToolBuildGraph, "Ranking failed", err), nil, nil
	}

	return s.jsonResult(ToolBuildGraph, BuildGraphResult{
		Graph:      s.deps.Graphs.Build(diagnoses, symptoms),
		Diagnoses:  diagnoses,
		UnknownIDs: unknown,
	})
}

func (s *Server) handleExtractTerms(ctx context.Context, req *mcp.CallToolRequest, params ExtractTermsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolExtractTerms).Debug("Tool invoked")

	if strings.TrimSpace(params.Text) == "" {
		return s.createErrorResult(ToolExtractTerms, "Missing required parameter", fmt.Errorf("text is required")), nil, nil
	}
	return s.jsonResult(ToolExtractTerms, ExtractTermsResult{Terms: s.deps.Catalog.Extract(params.Text)})
}

// resolveSymptoms maps ids to catalog terms with the default severity.
// Duplicates are collapsed; ids missing from the catalog are returned
// separately.
func (s *Server) resolveSymptoms(ids []string) ([]domain.PatientSymptom, []string, error) {
	if len(ids) == 0 {
		return nil, nil, domain.NewValidationError("symptom_ids", "at least one symptom id is required", nil)
	}

	seen := make(map[string]bool, len(ids))
	symptoms := make([]domain.PatientSymptom, 0, len(ids))
	var unknown []string
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		term, ok := s.deps.Catalog.Get(id)
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		symptoms = append(symptoms, domain.PatientSymptom{VocabularyTerm: term, Severity: domain.DefaultSeverity})
	}

	if len(symptoms) == 0 {
		return nil, unknown, domain.NewValidationError("symptom_ids", "no known symptom ids", ids)
	}
	return symptoms, unknown, nil
}

func (s *Server) rank(ctx context.Context, symptoms []domain.PatientSymptom) ([]domain.Diagnosis, error) {
	if s.deps.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deps.Timeout)
		defer cancel()
	}
	return s.deps.Ranker.Rank(ctx, symptoms)
}

// record stores the analysis in history. Failures are logged only.
func (s *Server) record(ctx context.Context, sessionID string, symptoms []domain.PatientSymptom, diagnoses []domain.Diagnosis) string {
	if s.deps.History == nil {
		return ""
	}
	if sessionID == "" {
		sessionID = historySession
	}

	entry := &domain.HistoryEntry{SessionID: sessionID, Symptoms: symptoms, Diagnoses: diagnoses}
	if err := s.deps.History.Save(ctx, entry); err != nil {
		s.logger.WithError(err).Warn("Failed to record analysis history")
		return ""
	}
	return entry.ID
}

// jsonResult returns out both as structured content and as JSON text for
// clients that only read text content.
func (s *Server) jsonResult(tool string, out any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return s.createErrorResult(tool, "Failed to encode result", err), nil, nil
	}
	s.recordInvocation(tool, true)
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, out, nil
}

// createErrorResult creates a standardized error result for tool calls
func (s *Server) createErrorResult(tool, message string, err error) *mcp.CallToolResult {
	s.recordInvocation(tool, false)

	errorText := fmt.Sprintf("Error: %s", message)
	if err != nil {
		errorText += fmt.Sprintf(" - %v", err)
		s.logger.WithFields(logrus.Fields{
			"tool": tool,
			"code": domain.ErrorCode(err),
		}).WithError(err).Warn("Tool call failed")
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: errorText},
		},
		IsError: true,
	}
}

func (s *Server) recordInvocation(tool string, success bool) {
	if s.deps.Recorder != nil {
		s.deps.Recorder.RecordToolInvocation(tool, success)
	}
}
