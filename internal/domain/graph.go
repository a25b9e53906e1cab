package domain

// NodeType distinguishes the two kinds of graph vertices.
type NodeType string

const (
	NodeDiagnosis NodeType = "diagnosis"
	NodeSymptom   NodeType = "symptom"
)

// Point is a 2D layout position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a vertex in the symptom-diagnosis graph.
type Node struct {
	ID            string   `json:"id"`
	Type          NodeType `json:"type"`
	Label         string   `json:"label"`
	Radius        float64  `json:"radius"`
	Color         string   `json:"color"`
	X             float64  `json:"x"`
	Y             float64  `json:"y"`
	FixedPosition *Point   `json:"fixed_position,omitempty"`
}

// Edge connects a diagnosis node to a symptom node.
type Edge struct {
	Source      string  `json:"source"`
	Target      string  `json:"target"`
	Weight      float64 `json:"weight"`
	StrokeWidth float64 `json:"stroke_width"`
}

// Graph is the bipartite relationship graph between diagnoses and symptoms.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node returns the node with id, or nil.
func (g *Graph) Node(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// Neighbors returns the ids linked to id in edge order.
func (g *Graph) Neighbors(id string) []string {
	var out []string
	for _, e := range g.Edges {
		switch id {
		case e.Source:
			out = append(out, e.Target)
		case e.Target:
			out = append(out, e.Source)
		}
	}
	return out
}
