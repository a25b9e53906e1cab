package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSeverityBands(t *testing.T) {
	tests := []struct {
		severity Severity
		code     string
		label    string
		min, max int
		color    string
	}{
		{SeverityExcluded, "EXCLUDED", "Excluded (0%)", 0, 0, "#A0AEC0"},
		{SeverityVeryRare, "VERY_RARE", "Very rare (<4-1%)", 1, 4, "#4299E1"},
		{SeverityOccasional, "OCCASIONAL", "Occasional (29-5%)", 5, 29, "#48BB78"},
		{SeverityFrequent, "FREQUENT", "Frequent (79-30%)", 30, 79, "#ECC94B"},
		{SeverityVeryFrequent, "VERY_FREQUENT", "Very frequent (99-80%)", 80, 99, "#ED8936"},
		{SeverityObligate, "OBLIGATE", "Obligate (100%)", 100, 100, "#E53E3E"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if tt.severity.Code() != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, tt.severity.Code())
			}
			if tt.severity.String() != tt.label {
				t.Errorf("Expected label %s, got %s", tt.label, tt.severity.String())
			}
			min, max := tt.severity.Range()
			if min != tt.min || max != tt.max {
				t.Errorf("Expected range %d-%d, got %d-%d", tt.min, tt.max, min, max)
			}
			if tt.severity.Color() != tt.color {
				t.Errorf("Expected color %s, got %s", tt.color, tt.severity.Color())
			}
		})
	}
}

func TestSeverityOrdering(t *testing.T) {
	bands := Severities()
	if len(bands) != 6 {
		t.Fatalf("Expected 6 bands, got %d", len(bands))
	}
	for i := 1; i < len(bands); i++ {
		_, prevMax := bands[i-1].Range()
		min, _ := bands[i].Range()
		if min <= prevMax {
			t.Errorf("Band %s overlaps %s", bands[i].Code(), bands[i-1].Code())
		}
	}
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		input    string
		expected Severity
		wantErr  bool
	}{
		{"FREQUENT", SeverityFrequent, false},
		{"very_rare", SeverityVeryRare, false},
		{"Obligate (100%)", SeverityObligate, false},
		{"  Occasional (29-5%) ", SeverityOccasional, false},
		{"sometimes", SeverityUnknown, true},
		{"", SeverityUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSeverity(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSeverity) {
					t.Errorf("Expected ErrInvalidSeverity, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestSeverityJSON(t *testing.T) {
	sym := PatientSymptom{
		VocabularyTerm: VocabularyTerm{ID: "HP:0001250", Name: "Seizure"},
		Severity:       SeverityVeryFrequent,
	}

	data, err := json.Marshal(sym)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if raw["severity"] != "Very frequent (99-80%)" {
		t.Errorf("Expected label on the wire, got %v", raw["severity"])
	}

	var decoded PatientSymptom
	if err := json.Unmarshal([]byte(`{"id":"HP:0001250","name":"Seizure","severity":"OBLIGATE"}`), &decoded); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if decoded.Severity != SeverityObligate {
		t.Errorf("Expected OBLIGATE, got %v", decoded.Severity)
	}

	if _, err := json.Marshal(SeverityUnknown); err == nil {
		t.Errorf("Expected error marshalling unknown severity")
	}
}

func TestSymptomUpdateApply(t *testing.T) {
	sym := PatientSymptom{
		VocabularyTerm: VocabularyTerm{ID: "HP:0002315", Name: "Headache"},
		Severity:       SeverityFrequent,
		Duration:       "2 days",
	}
	sev := SeverityObligate
	onset := "acute"

	SymptomUpdate{Severity: &sev, Onset: &onset}.Apply(&sym)

	if sym.Severity != SeverityObligate {
		t.Errorf("Expected severity to be updated, got %v", sym.Severity)
	}
	if sym.Onset != "acute" {
		t.Errorf("Expected onset to be updated, got %s", sym.Onset)
	}
	if sym.Duration != "2 days" {
		t.Errorf("Expected duration to be unchanged, got %s", sym.Duration)
	}
}

func TestClampScore(t *testing.T) {
	cases := map[float64]float64{-5: 0, 0: 0, 42.5: 42.5, 100: 100, 180: 100}
	for in, want := range cases {
		if got := ClampScore(in); got != want {
			t.Errorf("ClampScore(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestGraphNeighbors(t *testing.T) {
	g := Graph{
		Nodes: []Node{{ID: "D001"}, {ID: "HP:0002315"}, {ID: "HP:0001250"}},
		Edges: []Edge{{Source: "D001", Target: "HP:0002315", Weight: 0.9}},
	}

	if n := g.Neighbors("D001"); len(n) != 1 || n[0] != "HP:0002315" {
		t.Errorf("Unexpected neighbors %v", n)
	}
	if n := g.Neighbors("HP:0001250"); len(n) != 0 {
		t.Errorf("Expected dangling node to have no neighbors, got %v", n)
	}
	if g.Node("missing") != nil {
		t.Errorf("Expected nil for unknown node")
	}
}
