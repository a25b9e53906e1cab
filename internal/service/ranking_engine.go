package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/phenodx-server/internal/domain"
)

// ErrStaleResult is returned by Analyze when a newer request, a symptom
// change or a cancellation superseded it before it finished.
var ErrStaleResult = errors.New("ranking result superseded")

// RankingEngine coordinates ranking requests for one session. Every request
// takes a new token; a completion is applied only while its token is
// current, so the latest request always wins.
type RankingEngine struct {
	ranker   domain.DiagnosisRanker
	timeout  time.Duration
	observer Observer
	logger   *logrus.Logger

	mu        sync.Mutex
	token     uint64
	cancel    context.CancelFunc
	state     domain.RankingState
	listeners []func(domain.RankingState)
}

// NewRankingEngine creates an idle engine. timeout <= 0 disables the per-request deadline.
func NewRankingEngine(ranker domain.DiagnosisRanker, timeout time.Duration, observer Observer, logger *logrus.Logger) *RankingEngine {
	if observer == nil {
		observer = NopObserver{}
	}
	return &RankingEngine{
		ranker:   ranker,
		timeout:  timeout,
		observer: observer,
		logger:   logger,
		state: domain.RankingState{
			Status:    domain.RankingIdle,
			Diagnoses: []domain.Diagnosis{},
			UpdatedAt: time.Now(),
		},
	}
}

// OnChange registers fn to be called after every state transition. fn runs
// outside the engine lock.
func (e *RankingEngine) OnChange(fn func(domain.RankingState)) {
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

// State returns a snapshot of the current state
func (e *RankingEngine) State() domain.RankingState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneState(e.state)
}

// Analyze ranks symptoms and applies the result if no newer request has
// started meanwhile. Superseded requests return ErrStaleResult and leave
// the state untouched.
func (e *RankingEngine) Analyze(ctx context.Context, symptoms []domain.PatientSymptom) (domain.RankingState, error) {
	runCtx, token := e.begin(ctx, false)
	defer e.release(token)
	return e.run(runCtx, token, symptoms)
}

// Start runs the request in the background and returns its token.
func (e *RankingEngine) Start(ctx context.Context, symptoms []domain.PatientSymptom) uint64 {
	return e.start(ctx, symptoms, false)
}

func (e *RankingEngine) start(ctx context.Context, symptoms []domain.PatientSymptom, discard bool) uint64 {
	runCtx, token := e.begin(ctx, discard)
	go func() {
		defer e.release(token)
		_, _ = e.run(runCtx, token, symptoms)
	}()
	return token
}

func (e *RankingEngine) run(ctx context.Context, token uint64, symptoms []domain.PatientSymptom) (domain.RankingState, error) {
	start := time.Now()
	diagnoses, err := e.ranker.Rank(ctx, symptoms)
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrRankingUnavailable) {
		err = fmt.Errorf("ranking timed out after %s: %w: %w", e.timeout, domain.ErrRankingUnavailable, err)
	}
	source := sourceOf(diagnoses)

	e.mu.Lock()
	if token != e.token {
		e.mu.Unlock()
		e.observer.RecordStaleDiscard()
		e.logger.WithField("token", token).Debug("Discarding stale ranking result")
		return domain.RankingState{}, ErrStaleResult
	}

	e.state.Token = token
	e.state.UpdatedAt = time.Now()
	if err != nil {
		e.state.Status = domain.RankingFailed
		e.state.Error = err.Error()
		e.state.Source = ""
		e.state.Diagnoses = []domain.Diagnosis{}
	} else {
		e.state.Status = domain.RankingSucceeded
		e.state.Error = ""
		e.state.Source = source
		e.state.Diagnoses = diagnoses
	}
	snapshot := cloneState(e.state)
	listeners := e.listeners
	e.mu.Unlock()

	e.observer.RecordRanking(string(source), time.Since(start), err == nil)
	notify(listeners, snapshot)

	if err != nil {
		e.logger.WithError(err).WithField("token", token).Warn("Ranking failed")
		return snapshot, err
	}
	return snapshot, nil
}

// begin issues a new token, cancels the previous request and moves to
// loading. With discard set the previous diagnoses are dropped as well.
func (e *RankingEngine) begin(parent context.Context, discard bool) (context.Context, uint64) {
	var ctx context.Context
	var cancel context.CancelFunc
	if e.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.WithoutCancel(parent), e.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.WithoutCancel(parent))
	}
	// Still honour the caller's cancellation
	stop := context.AfterFunc(parent, cancel)

	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.token++
	token := e.token
	e.cancel = func() {
		stop()
		cancel()
	}
	e.state.Status = domain.RankingLoading
	e.state.Token = token
	e.state.Error = ""
	if discard {
		e.state.Source = ""
		e.state.Diagnoses = []domain.Diagnosis{}
	}
	e.state.UpdatedAt = time.Now()
	snapshot := cloneState(e.state)
	listeners := e.listeners
	e.mu.Unlock()

	notify(listeners, snapshot)
	return ctx, token
}

// release frees the context of a finished request if it is still current.
func (e *RankingEngine) release(token uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if token == e.token && e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

// Cancel invalidates any in-flight request and cancels its context. A
// loading state returns to idle with the previous diagnoses kept.
func (e *RankingEngine) Cancel() {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.token++
	changed := e.state.Status == domain.RankingLoading
	if changed {
		e.state.Status = domain.RankingIdle
		e.state.UpdatedAt = time.Now()
	}
	e.state.Token = e.token
	snapshot := cloneState(e.state)
	listeners := e.listeners
	e.mu.Unlock()

	if changed {
		notify(listeners, snapshot)
	}
}

// Invalidate handles a change of the symptom set: diagnoses ranked for the
// previous set are dropped and symptoms are ranked again in the background.
// An empty set resets the engine.
func (e *RankingEngine) Invalidate(ctx context.Context, symptoms []domain.PatientSymptom) uint64 {
	if len(symptoms) == 0 {
		e.Reset()
		return e.State().Token
	}
	return e.start(ctx, symptoms, true)
}

// Reset cancels work and clears diagnoses.
func (e *RankingEngine) Reset() {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.token++
	e.state = domain.RankingState{
		Status:    domain.RankingIdle,
		Token:     e.token,
		Diagnoses: []domain.Diagnosis{},
		UpdatedAt: time.Now(),
	}
	snapshot := cloneState(e.state)
	listeners := e.listeners
	e.mu.Unlock()

	notify(listeners, snapshot)
}

func notify(listeners []func(domain.RankingState), state domain.RankingState) {
	for _, fn := range listeners {
		fn(state)
	}
}

func sourceOf(diagnoses []domain.Diagnosis) domain.RankingSource {
	if len(diagnoses) == 0 {
		return ""
	}
	return diagnoses[0].Source
}

func cloneState(s domain.RankingState) domain.RankingState {
	out := s
	out.Diagnoses = make([]domain.Diagnosis, len(s.Diagnoses))
	copy(out.Diagnoses, s.Diagnoses)
	return out
}
