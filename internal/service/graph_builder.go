package service

import (
	"fmt"
	"hash/fnv"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/phenodx-server/internal/domain"
)

// GraphConfig sizes the layout canvas
type GraphConfig struct {
	Width  float64
	Height float64
	Ticks  int
}

// DefaultGraphConfig matches an 800x600 canvas relaxed for 300 ticks
func DefaultGraphConfig() GraphConfig {
	return GraphConfig{Width: 800, Height: 600, Ticks: 300}
}

// GraphBuilder derives the symptom-diagnosis relationship graph
type GraphBuilder struct {
	config GraphConfig
	logger *logrus.Logger
}

// NewGraphBuilder creates a graph builder
func NewGraphBuilder(config GraphConfig, logger *logrus.Logger) *GraphBuilder {
	if config.Width <= 0 || config.Height <= 0 {
		config.Width, config.Height = 800, 600
	}
	if config.Ticks <= 0 {
		config.Ticks = 300
	}
	return &GraphBuilder{config: config, logger: logger}
}

// Build creates one node per diagnosis and per selected symptom, and an edge
// for every matched symptom that is also selected. Matched ids the patient
// does not have produce neither node nor edge.
func (b *GraphBuilder) Build(diagnoses []domain.Diagnosis, symptoms []domain.PatientSymptom) domain.Graph {
	selected := make(map[string]bool, len(symptoms))
	for _, s := range symptoms {
		selected[s.ID] = true
	}

	g := domain.Graph{
		Nodes: make([]domain.Node, 0, len(diagnoses)+len(symptoms)),
		Edges: make([]domain.Edge, 0),
	}

	for _, d := range diagnoses {
		g.Nodes = append(g.Nodes, domain.Node{
			ID:     d.ID,
			Type:   domain.NodeDiagnosis,
			Label:  d.Name,
			Radius: 40 + d.ConfidenceScore/10,
			Color:  ConfidenceColor(d.ConfidenceScore),
		})
	}
	for _, s := range symptoms {
		g.Nodes = append(g.Nodes, domain.Node{
			ID:     s.ID,
			Type:   domain.NodeSymptom,
			Label:  s.Name,
			Radius: 25,
			Color:  s.Severity.Color(),
		})
	}

	for _, d := range diagnoses {
		for _, m := range d.MatchedSymptoms {
			if !selected[m.SymptomID] {
				continue
			}
			g.Edges = append(g.Edges, domain.Edge{
				Source:      d.ID,
				Target:      m.SymptomID,
				Weight:      m.Weight,
				StrokeWidth: 2 + 4*m.Weight,
			})
		}
	}

	b.layout(&g, layoutSeed(symptoms))

	b.logger.WithFields(logrus.Fields{
		"nodes": len(g.Nodes),
		"edges": len(g.Edges),
	}).Debug("Relationship graph built")

	return g
}

// Pin fixes a node at (x, y) and relaxes the rest of the graph around it.
func (b *GraphBuilder) Pin(g *domain.Graph, nodeID string, x, y float64) error {
	n := g.Node(nodeID)
	if n == nil {
		return fmt.Errorf("graph node %s: %w", nodeID, domain.ErrNotFound)
	}
	n.FixedPosition = &domain.Point{X: x, Y: y}
	n.X, n.Y = x, y
	b.relax(g, b.config.Ticks/3)
	return nil
}

// Release unpins a node.
func (b *GraphBuilder) Release(g *domain.Graph, nodeID string) error {
	n := g.Node(nodeID)
	if n == nil {
		return fmt.Errorf("graph node %s: %w", nodeID, domain.ErrNotFound)
	}
	n.FixedPosition = nil
	b.relax(g, b.config.Ticks/3)
	return nil
}

// layoutSeed derives a stable seed from symptom insertion order so the
// same session lays out the same way twice.
func layoutSeed(symptoms []domain.PatientSymptom) uint64 {
	h := fnv.New64a()
	for _, s := range symptoms {
		h.Write([]byte(s.ID))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// rdYlGn approximates the red-yellow-green diverging ramp
var rdYlGn = [][3]float64{
	{165, 0, 38}, {215, 48, 39}, {244, 109, 67}, {253, 174, 97}, {254, 224, 139},
	{255, 255, 191}, {217, 239, 139}, {166, 217, 106}, {102, 189, 99}, {26, 152, 80}, {0, 104, 55},
}

// ConfidenceColor maps a 0-100 confidence onto the red-to-green ramp.
func ConfidenceColor(confidence float64) string {
	t := domain.ClampScore(confidence) / 100
	pos := t * float64(len(rdYlGn)-1)
	i := int(math.Floor(pos))
	if i >= len(rdYlGn)-1 {
		i = len(rdYlGn) - 2
	}
	frac := pos - float64(i)
	a, c := rdYlGn[i], rdYlGn[i+1]
	r := a[0] + (c[0]-a[0])*frac
	gr := a[1] + (c[1]-a[1])*frac
	bl := a[2] + (c[2]-a[2])*frac
	return fmt.Sprintf("#%02X%02X%02X", int(math.Round(r)), int(math.Round(gr)), int(math.Round(bl)))
}
