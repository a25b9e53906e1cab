package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/phenodx-server/internal/domain"
	"github.com/phenodx-server/pkg/external"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func symptom(id, name string) domain.PatientSymptom {
	return domain.PatientSymptom{
		VocabularyTerm: domain.VocabularyTerm{ID: id, Name: name},
		Severity:       domain.DefaultSeverity,
		DateAdded:      time.Now(),
	}
}

// gatedRanker blocks each call until its gate is released
type gatedRanker struct {
	mu     sync.Mutex
	calls  int
	gates  []chan struct{}
	result func(call int) ([]domain.Diagnosis, error)
}

func newGatedRanker(result func(call int) ([]domain.Diagnosis, error)) *gatedRanker {
	return &gatedRanker{result: result}
}

func (g *gatedRanker) Rank(ctx context.Context, symptoms []domain.PatientSymptom) ([]domain.Diagnosis, error) {
	g.mu.Lock()
	call := g.calls
	g.calls++
	gate := make(chan struct{})
	g.gates = append(g.gates, gate)
	g.mu.Unlock()

	<-gate
	return g.result(call)
}

func (g *gatedRanker) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *gatedRanker) release(call int) {
	for {
		g.mu.Lock()
		if call < len(g.gates) {
			gate := g.gates[call]
			g.mu.Unlock()
			close(gate)
			return
		}
		g.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
}

// stubRanker returns a fixed answer
type stubRanker struct {
	diagnoses []domain.Diagnosis
	err       error
	calls     int
}

func (s *stubRanker) Rank(ctx context.Context, symptoms []domain.PatientSymptom) ([]domain.Diagnosis, error) {
	s.calls++
	return s.diagnoses, s.err
}

type fakeRankingAPI struct {
	resp *external.AnalyzeResponse
	err  error
	last *external.AnalyzeRequest
}

func (f *fakeRankingAPI) AnalyzeSymptoms(ctx context.Context, req *external.AnalyzeRequest) (*external.AnalyzeResponse, error) {
	f.last = req
	return f.resp, f.err
}

type fakeSuggestionAPI struct {
	resp *external.SuggestResponse
	err  error
	last *external.SuggestRequest
}

func (f *fakeSuggestionAPI) SuggestSymptoms(ctx context.Context, req *external.SuggestRequest) (*external.SuggestResponse, error) {
	f.last = req
	return f.resp, f.err
}

// countingObserver records observer callbacks
type countingObserver struct {
	mu          sync.Mutex
	rankings    int
	stale       int
	fallbacks   int
	suggestions map[bool]int
}

func (c *countingObserver) RecordRanking(string, time.Duration, bool) {
	c.mu.Lock()
	c.rankings++
	c.mu.Unlock()
}

func (c *countingObserver) RecordStaleDiscard() {
	c.mu.Lock()
	c.stale++
	c.mu.Unlock()
}

func (c *countingObserver) RecordFallback() {
	c.mu.Lock()
	c.fallbacks++
	c.mu.Unlock()
}

func (c *countingObserver) RecordSuggestion(ok bool) {
	c.mu.Lock()
	if c.suggestions == nil {
		c.suggestions = map[bool]int{}
	}
	c.suggestions[ok]++
	c.mu.Unlock()
}

func (c *countingObserver) staleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stale
}
