package service

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenodx-server/internal/domain"
)

func graphFixture() ([]domain.Diagnosis, []domain.PatientSymptom) {
	symptoms := []domain.PatientSymptom{
		symptom("HP:0001250", "Seizure"),
		symptom("HP:0001251", "Ataxia"),
		symptom("HP:0002315", "Headache"),
	}
	symptoms[0].Severity = domain.SeverityObligate

	diagnoses := []domain.Diagnosis{
		{
			ID:              "D002",
			Name:            "Epilepsy",
			ConfidenceScore: 90,
			MatchedSymptoms: []domain.MatchedSymptom{
				{SymptomID: "HP:0001250", Weight: 0.95},
				{SymptomID: "HP:0001251", Weight: 0.4},
				{SymptomID: "HP:0002353", Weight: 0.8},
			},
		},
		{
			ID:              "D001",
			Name:            "Migraine",
			ConfidenceScore: 40,
			MatchedSymptoms: []domain.MatchedSymptom{
				{SymptomID: "HP:0002315", Weight: 0.9},
			},
		},
	}
	return diagnoses, symptoms
}

func TestGraphBuilder_Build(t *testing.T) {
	b := NewGraphBuilder(DefaultGraphConfig(), testLogger())
	diagnoses, symptoms := graphFixture()

	g := b.Build(diagnoses, symptoms)

	require.Len(t, g.Nodes, 5)
	require.Len(t, g.Edges, 3)

	epilepsy := g.Node("D002")
	require.NotNil(t, epilepsy)
	assert.Equal(t, domain.NodeDiagnosis, epilepsy.Type)
	assert.Equal(t, 49.0, epilepsy.Radius)
	assert.Equal(t, ConfidenceColor(90), epilepsy.Color)

	seizure := g.Node("HP:0001250")
	require.NotNil(t, seizure)
	assert.Equal(t, domain.NodeSymptom, seizure.Type)
	assert.Equal(t, 25.0, seizure.Radius)
	assert.Equal(t, domain.SeverityObligate.Color(), seizure.Color)

	assert.Nil(t, g.Node("HP:0002353"), "matched but unselected symptoms get no node")

	assert.Equal(t, domain.Edge{Source: "D002", Target: "HP:0001250", Weight: 0.95, StrokeWidth: 2 + 4*0.95}, g.Edges[0])
	assert.ElementsMatch(t, []string{"D002"}, g.Neighbors("HP:0001251"))
	assert.ElementsMatch(t, []string{"HP:0002315"}, g.Neighbors("D001"))

	for _, n := range g.Nodes {
		assert.False(t, math.IsNaN(n.X) || math.IsNaN(n.Y), n.ID)
		assert.False(t, math.IsInf(n.X, 0) || math.IsInf(n.Y, 0), n.ID)
	}
}

func TestGraphBuilder_UnreferencedSymptomIsIsolated(t *testing.T) {
	b := NewGraphBuilder(DefaultGraphConfig(), testLogger())
	symptoms := []domain.PatientSymptom{
		symptom("HP:0002094", "Dyspnea"),
		symptom("HP:0001945", "Fever"),
		symptom("HP:0000639", "Nystagmus"),
	}
	diagnoses := []domain.Diagnosis{
		{
			ID:              "D003",
			Name:            "Pneumonia",
			ConfidenceScore: 75,
			MatchedSymptoms: []domain.MatchedSymptom{{SymptomID: "HP:0002094", Weight: 0.8}},
		},
		{
			ID:              "DX",
			Name:            "Influenza",
			ConfidenceScore: 50,
			MatchedSymptoms: []domain.MatchedSymptom{{SymptomID: "HP:0001945", Weight: 0.7}},
		},
	}

	g := b.Build(diagnoses, symptoms)

	require.Len(t, g.Nodes, 5)
	require.Len(t, g.Edges, 2)
	assert.Equal(t, "D003", g.Edges[0].Source)
	assert.Equal(t, "HP:0002094", g.Edges[0].Target)
	assert.Equal(t, "DX", g.Edges[1].Source)
	assert.Equal(t, "HP:0001945", g.Edges[1].Target)

	isolated := g.Node("HP:0000639")
	require.NotNil(t, isolated)
	assert.Equal(t, domain.NodeSymptom, isolated.Type)
	assert.Empty(t, g.Neighbors("HP:0000639"))
}

func TestGraphBuilder_SymptomsWithoutDiagnoses(t *testing.T) {
	b := NewGraphBuilder(DefaultGraphConfig(), testLogger())
	_, symptoms := graphFixture()

	g := b.Build(nil, symptoms)

	assert.Len(t, g.Nodes, 3)
	assert.Empty(t, g.Edges)
}

func TestGraphBuilder_EmptyGraph(t *testing.T) {
	b := NewGraphBuilder(DefaultGraphConfig(), testLogger())

	g := b.Build(nil, nil)

	assert.Empty(t, g.Nodes)
	assert.NotNil(t, g.Edges)
}

func TestGraphBuilder_LayoutIsDeterministic(t *testing.T) {
	b := NewGraphBuilder(DefaultGraphConfig(), testLogger())
	diagnoses, symptoms := graphFixture()

	first := b.Build(diagnoses, symptoms)
	second := b.Build(diagnoses, symptoms)

	assert.Equal(t, first, second)
}

func TestGraphBuilder_PinAndRelease(t *testing.T) {
	b := NewGraphBuilder(DefaultGraphConfig(), testLogger())
	diagnoses, symptoms := graphFixture()
	g := b.Build(diagnoses, symptoms)

	require.NoError(t, b.Pin(&g, "D002", 100, 120))
	n := g.Node("D002")
	assert.Equal(t, 100.0, n.X)
	assert.Equal(t, 120.0, n.Y)
	require.NotNil(t, n.FixedPosition)

	require.NoError(t, b.Release(&g, "D002"))
	assert.Nil(t, g.Node("D002").FixedPosition)

	assert.ErrorIs(t, b.Pin(&g, "missing", 0, 0), domain.ErrNotFound)
	assert.ErrorIs(t, b.Release(&g, "missing"), domain.ErrNotFound)
}

func TestConfidenceColor(t *testing.T) {
	assert.Equal(t, "#A50026", ConfidenceColor(0))
	assert.Equal(t, "#FFFFBF", ConfidenceColor(50))
	assert.Equal(t, "#006837", ConfidenceColor(100))
	assert.Equal(t, "#006837", ConfidenceColor(250))
}
