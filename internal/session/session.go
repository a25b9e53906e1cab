package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/phenodx-server/internal/domain"
	"github.com/phenodx-server/internal/service"
)

// Session is one clinician's working state. It is passed explicitly to the
// handlers and tools that need it.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time

	symptoms *SymptomSet
	engine   *service.RankingEngine
	graphs   *service.GraphBuilder
	events   *Broadcaster

	mu         sync.Mutex
	lastAccess time.Time
	profile    *domain.PatientProfile
	graph      *domain.Graph
	graphToken uint64
}

// New creates a session around engine. graphs may be shared between sessions.
func New(id, userID string, engine *service.RankingEngine, graphs *service.GraphBuilder) *Session {
	now := time.Now()
	s := &Session{
		ID:         id,
		UserID:     userID,
		CreatedAt:  now,
		engine:     engine,
		graphs:     graphs,
		events:     NewBroadcaster(32),
		lastAccess: now,
	}
	s.symptoms = NewSymptomSet(s.onSymptomsChanged)
	engine.OnChange(s.onRankingChanged)
	return s
}

// Symptoms returns the patient's symptom set. Mutations invalidate any
// in-flight ranking and the cached graph.
func (s *Session) Symptoms() *SymptomSet {
	return s.symptoms
}

// Events returns the session event stream.
func (s *Session) Events() *Broadcaster {
	return s.events
}

// onSymptomsChanged re-ranks the new symptom set so diagnoses never refer
// to a previous one.
func (s *Session) onSymptomsChanged(kind ChangeKind) {
	s.mu.Lock()
	s.graph = nil
	s.mu.Unlock()

	symptoms := s.symptoms.List()
	s.events.Publish(Event{
		Type:      EventSymptomsChanged,
		SessionID: s.ID,
		Data:      map[string]interface{}{"change": kind, "count": len(symptoms)},
	})

	if kind == ChangeClear {
		s.engine.Reset()
		return
	}
	s.engine.Invalidate(context.Background(), symptoms)
}

func (s *Session) onRankingChanged(state domain.RankingState) {
	s.events.Publish(Event{
		Type:      EventRankingStatus,
		SessionID: s.ID,
		Data: map[string]interface{}{
			"status": state.Status,
			"token":  state.Token,
			"source": state.Source,
			"error":  state.Error,
		},
	})
}

// Analyze ranks the current symptoms and waits for the result.
func (s *Session) Analyze(ctx context.Context) (domain.RankingState, error) {
	s.Touch()
	return s.engine.Analyze(ctx, s.symptoms.List())
}

// StartAnalysis ranks the current symptoms in the background.
func (s *Session) StartAnalysis(ctx context.Context) uint64 {
	s.Touch()
	return s.engine.Start(ctx, s.symptoms.List())
}

// CancelAnalysis discards any in-flight ranking.
func (s *Session) CancelAnalysis() {
	s.engine.Cancel()
}

// Ranking returns the current ranking state.
func (s *Session) Ranking() domain.RankingState {
	return s.engine.State()
}

// Graph returns the relationship graph for the current diagnoses and
// symptoms, rebuilding it when either changed since the last call.
func (s *Session) Graph() domain.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneGraph(*s.graphLocked())
}

// graphLocked returns the cached graph, rebuilding it if stale. s.mu must be held.
func (s *Session) graphLocked() *domain.Graph {
	state := s.engine.State()
	if s.graph == nil || s.graphToken != state.Token {
		g := s.graphs.Build(state.Diagnoses, s.symptoms.List())
		s.graph = &g
		s.graphToken = state.Token
	}
	return s.graph
}

// PinNode fixes a node of the current graph at (x, y).
func (s *Session) PinNode(nodeID string, x, y float64) (domain.Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.graphLocked()
	if err := s.graphs.Pin(g, nodeID, x, y); err != nil {
		return domain.Graph{}, err
	}
	return cloneGraph(*g), nil
}

// ReleaseNode unpins a node of the current graph.
func (s *Session) ReleaseNode(nodeID string) (domain.Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.graphLocked()
	if err := s.graphs.Release(g, nodeID); err != nil {
		return domain.Graph{}, err
	}
	return cloneGraph(*g), nil
}

// Profile returns the patient profile.
func (s *Session) Profile() (domain.PatientProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil {
		return domain.PatientProfile{}, fmt.Errorf("patient profile: %w", domain.ErrNotFound)
	}
	return *s.profile, nil
}

// SetProfile replaces the patient profile.
func (s *Session) SetProfile(p domain.PatientProfile) domain.PatientProfile {
	s.mu.Lock()
	if p.ID == "" {
		p.ID = s.ID
	}
	s.profile = &p
	s.mu.Unlock()

	s.events.Publish(Event{Type: EventProfileChanged, SessionID: s.ID})
	return p
}

// UpdateProfile merges upd into the existing profile.
func (s *Session) UpdateProfile(upd domain.ProfileUpdate) (domain.PatientProfile, error) {
	s.mu.Lock()
	if s.profile == nil {
		s.mu.Unlock()
		return domain.PatientProfile{}, fmt.Errorf("patient profile: %w", domain.ErrNotFound)
	}
	upd.Apply(s.profile)
	p := *s.profile
	s.mu.Unlock()

	s.events.Publish(Event{Type: EventProfileChanged, SessionID: s.ID})
	return p, nil
}

// Touch records activity on the session.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastAccess = time.Now()
	s.mu.Unlock()
}

// LastAccess returns the time of the last recorded activity.
func (s *Session) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

// Close cancels work in flight and disconnects subscribers.
func (s *Session) Close() {
	s.engine.Cancel()
	s.events.Publish(Event{Type: EventSessionClosed, SessionID: s.ID})
	s.events.Close()
}

func cloneGraph(g domain.Graph) domain.Graph {
	out := domain.Graph{
		Nodes: make([]domain.Node, len(g.Nodes)),
		Edges: make([]domain.Edge, len(g.Edges)),
	}
	copy(out.Nodes, g.Nodes)
	copy(out.Edges, g.Edges)
	for i, n := range out.Nodes {
		if n.FixedPosition != nil {
			p := *n.FixedPosition
			out.Nodes[i].FixedPosition = &p
		}
	}
	return out
}
