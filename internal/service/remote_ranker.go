package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/phenodx-server/internal/domain"
	"github.com/phenodx-server/pkg/external"
)

// RemoteRanker delegates ranking to the disease ranking backend
type RemoteRanker struct {
	client     external.RankingAPI
	maxResults int
	logger     *logrus.Logger
}

// NewRemoteRanker creates a ranker backed by client. maxResults <= 0 keeps
// every returned disease.
func NewRemoteRanker(client external.RankingAPI, maxResults int, logger *logrus.Logger) *RemoteRanker {
	return &RemoteRanker{client: client, maxResults: maxResults, logger: logger}
}

// Rank posts symptom names with their frequency labels. The backend does not
// report per-symptom matches, so every submitted symptom is treated as
// matched with a weight proportional to the similarity score.
func (r *RemoteRanker) Rank(ctx context.Context, symptoms []domain.PatientSymptom) ([]domain.Diagnosis, error) {
	if len(symptoms) == 0 {
		return []domain.Diagnosis{}, nil
	}

	req := &external.AnalyzeRequest{
		Symptoms:  make([]string, len(symptoms)),
		Frequency: make([]string, len(symptoms)),
	}
	for i, s := range symptoms {
		req.Symptoms[i] = s.Name
		req.Frequency[i] = s.Severity.Label()
	}

	resp, err := r.client.AnalyzeSymptoms(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
			return nil, ctxErr
		} else if ctxErr != nil {
			return nil, fmt.Errorf("ranking backend timed out: %w: %w", domain.ErrRankingUnavailable, ctxErr)
		}
		return nil, fmt.Errorf("%v: %w", err, domain.ErrRankingUnavailable)
	}

	ranking := resp.DiseaseRanking
	if r.maxResults > 0 && len(ranking) > r.maxResults {
		ranking = ranking[:r.maxResults]
	}

	results := make([]domain.Diagnosis, 0, len(ranking))
	for i, d := range ranking {
		score := domain.ClampScore(d.SimilarityScore)
		id := d.MIM
		if id == "" {
			id = fmt.Sprintf("R%03d", i+1)
		}

		matched := make([]domain.MatchedSymptom, len(symptoms))
		for j, s := range symptoms {
			matched[j] = domain.MatchedSymptom{SymptomID: s.ID, Weight: score / 100}
		}

		diag := domain.Diagnosis{
			ID:                id,
			Name:              d.Disease,
			ConfidenceScore:   score,
			MatchedSymptoms:   matched,
			UnmatchedSymptoms: []string{},
			Source:            domain.SourceRemote,
		}
		if d.MIM != "" {
			diag.References = []domain.Reference{{
				Title: "OMIM " + d.MIM,
				URL:   "https://omim.org/entry/" + d.MIM,
			}}
		}
		results = append(results, diag)
	}

	r.logger.WithFields(logrus.Fields{
		"symptoms":   len(symptoms),
		"candidates": len(results),
	}).Debug("Remote ranking complete")

	return results, nil
}

// fallbackTimeout bounds the fallback when the caller's deadline already passed
const fallbackTimeout = 5 * time.Second

// FallbackRanker tries primary and, when it reports ErrRankingUnavailable,
// answers from fallback instead. A cancelled caller gets no fallback.
type FallbackRanker struct {
	primary  domain.DiagnosisRanker
	fallback domain.DiagnosisRanker
	observer Observer
	logger   *logrus.Logger
}

// NewFallbackRanker creates a ranker that degrades to fallback
func NewFallbackRanker(primary, fallback domain.DiagnosisRanker, observer Observer, logger *logrus.Logger) *FallbackRanker {
	if observer == nil {
		observer = NopObserver{}
	}
	return &FallbackRanker{primary: primary, fallback: fallback, observer: observer, logger: logger}
}

// Rank implements domain.DiagnosisRanker
func (f *FallbackRanker) Rank(ctx context.Context, symptoms []domain.PatientSymptom) ([]domain.Diagnosis, error) {
	results, err := f.primary.Rank(ctx, symptoms)
	if err == nil || !errors.Is(err, domain.ErrRankingUnavailable) || errors.Is(ctx.Err(), context.Canceled) {
		return results, err
	}

	f.logger.WithError(err).Warn("Ranking backend unavailable, using reference table")
	f.observer.RecordFallback()
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), fallbackTimeout)
		defer cancel()
	}
	return f.fallback.Rank(ctx, symptoms)
}

// NewRanker assembles the ranker for mode. remote may be nil only for
// RankingModeReference.
func NewRanker(mode domain.RankingMode, remote external.RankingAPI, maxResults int, observer Observer, logger *logrus.Logger) (domain.DiagnosisRanker, error) {
	reference := NewReferenceRanker(logger)
	switch mode {
	case domain.RankingModeReference:
		return reference, nil
	case domain.RankingModeRemote:
		if remote == nil {
			return nil, fmt.Errorf("ranking mode %s requires a backend client", mode)
		}
		return NewRemoteRanker(remote, maxResults, logger), nil
	case domain.RankingModeRemoteWithFallback:
		if remote == nil {
			return nil, fmt.Errorf("ranking mode %s requires a backend client", mode)
		}
		return NewFallbackRanker(NewRemoteRanker(remote, maxResults, logger), reference, observer, logger), nil
	default:
		return nil, fmt.Errorf("unknown ranking mode: %s", mode)
	}
}
