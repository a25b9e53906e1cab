package service

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/phenodx-server/internal/domain"
)

// Association is a phenotype typically seen with a reference condition,
// weighted by how characteristic it is.
type Association struct {
	SymptomID string
	Weight    float64
}

// ReferenceCondition is one row of the reference table. A condition scores
// HighConfidence when every discriminating phenotype is present and
// LowConfidence otherwise.
type ReferenceCondition struct {
	ID             string
	Name           string
	Description    string
	Discriminating []string
	HighConfidence float64
	LowConfidence  float64
	Associations   []Association
	References     []domain.Reference
}

// ReferenceTable returns the built-in conditions in their fixed order.
func ReferenceTable() []ReferenceCondition {
	return []ReferenceCondition{
		{
			ID:             "D001",
			Name:           "Migraine",
			Description:    "A neurological condition characterized by recurrent headaches.",
			Discriminating: []string{"HP:0002315"},
			HighConfidence: 85,
			LowConfidence:  40,
			Associations: []Association{
				{"HP:0002315", 0.9},
				{"HP:0001251", 0.3},
				{"HP:0002018", 0.7},
				{"HP:0000639", 0.4},
			},
			References: []domain.Reference{
				{Title: "Migraine: Diagnosis and Management", URL: "https://www.ncbi.nlm.nih.gov/books/NBK560787/"},
			},
		},
		{
			ID:             "D002",
			Name:           "Epilepsy",
			Description:    "A neurological disorder characterized by recurrent seizures.",
			Discriminating: []string{"HP:0001250"},
			HighConfidence: 90,
			LowConfidence:  30,
			Associations: []Association{
				{"HP:0001250", 0.95},
				{"HP:0001251", 0.4},
				{"HP:0002353", 0.8},
				{"HP:0001347", 0.6},
			},
			References: []domain.Reference{
				{Title: "Epilepsy - Diagnosis and Treatment", URL: "https://www.mayoclinic.org/diseases-conditions/epilepsy/diagnosis-treatment/drc-20350098"},
			},
		},
		{
			ID:             "D003",
			Name:           "Pneumonia",
			Description:    "An infection that inflames the air sacs in one or both lungs.",
			Discriminating: []string{"HP:0002094", "HP:0001945"},
			HighConfidence: 75,
			LowConfidence:  25,
			Associations: []Association{
				{"HP:0002094", 0.8},
				{"HP:0001945", 0.7},
			},
			References: []domain.Reference{
				{Title: "Pneumonia - Diagnosis and Treatment", URL: "https://www.mayoclinic.org/diseases-conditions/pneumonia/diagnosis-treatment/drc-20354210"},
			},
		},
		{
			ID:             "D004",
			Name:           "Cerebral Palsy",
			Description:    "A group of disorders that affect movement and muscle tone or posture.",
			Discriminating: []string{"HP:0001250", "HP:0001257"},
			HighConfidence: 80,
			LowConfidence:  30,
			Associations: []Association{
				{"HP:0001250", 0.7},
				{"HP:0001257", 0.9},
				{"HP:0002169", 0.6},
				{"HP:0001347", 0.5},
			},
			References: []domain.Reference{
				{Title: "Cerebral Palsy - Symptoms and Causes", URL: "https://www.mayoclinic.org/diseases-conditions/cerebral-palsy/symptoms-causes/syc-20353999"},
			},
		},
		{
			ID:             "D005",
			Name:           "Chiari Malformation",
			Description:    "A condition in which brain tissue extends into the spinal canal.",
			Discriminating: []string{"HP:0002315", "HP:0000256"},
			HighConfidence: 70,
			LowConfidence:  25,
			Associations: []Association{
				{"HP:0002315", 0.8},
				{"HP:0000256", 0.7},
				{"HP:0002169", 0.5},
				{"HP:0002650", 0.4},
			},
			References: []domain.Reference{
				{Title: "Chiari Malformation - Diagnosis and Treatment", URL: "https://www.mayoclinic.org/diseases-conditions/chiari-malformation/diagnosis-treatment/drc-20354015"},
			},
		},
		{
			ID:             "D006",
			Name:           "Tuberous Sclerosis",
			Description:    "A rare genetic disease that causes benign tumors to grow in the brain and other organs.",
			Discriminating: []string{"HP:0001250", "HP:0001249"},
			HighConfidence: 65,
			LowConfidence:  20,
			Associations: []Association{
				{"HP:0001250", 0.8},
				{"HP:0001249", 0.7},
				{"HP:0002007", 0.6},
				{"HP:0001508", 0.5},
			},
			References: []domain.Reference{
				{Title: "Tuberous Sclerosis - Symptoms and Causes", URL: "https://www.mayoclinic.org/diseases-conditions/tuberous-sclerosis/symptoms-causes/syc-20365969"},
			},
		},
	}
}

// ReferenceRanker scores the patient's symptoms against a fixed table of
// conditions. It needs no network and is used as the offline fallback.
type ReferenceRanker struct {
	table  []ReferenceCondition
	logger *logrus.Logger
}

// NewReferenceRanker creates a ranker over the built-in table
func NewReferenceRanker(logger *logrus.Logger) *ReferenceRanker {
	return NewReferenceRankerWithTable(ReferenceTable(), logger)
}

// NewReferenceRankerWithTable creates a ranker over a custom table
func NewReferenceRankerWithTable(table []ReferenceCondition, logger *logrus.Logger) *ReferenceRanker {
	return &ReferenceRanker{table: table, logger: logger}
}

// Rank returns every condition sharing at least one phenotype with the
// patient, highest confidence first. Ties keep table order.
func (r *ReferenceRanker) Rank(ctx context.Context, symptoms []domain.PatientSymptom) ([]domain.Diagnosis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	present := make(map[string]bool, len(symptoms))
	for _, s := range symptoms {
		present[s.ID] = true
	}

	results := make([]domain.Diagnosis, 0)
	if len(present) == 0 {
		return results, nil
	}

	for _, cond := range r.table {
		if !r.overlaps(cond, present) {
			continue
		}
		results = append(results, r.evaluate(cond, present))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].ConfidenceScore > results[j].ConfidenceScore
	})

	r.logger.WithFields(logrus.Fields{
		"symptoms":   len(symptoms),
		"candidates": len(results),
	}).Debug("Reference ranking complete")

	return results, nil
}

func (r *ReferenceRanker) overlaps(cond ReferenceCondition, present map[string]bool) bool {
	for _, a := range cond.Associations {
		if present[a.SymptomID] {
			return true
		}
	}
	return false
}

func (r *ReferenceRanker) evaluate(cond ReferenceCondition, present map[string]bool) domain.Diagnosis {
	confidence := cond.HighConfidence
	for _, id := range cond.Discriminating {
		if !present[id] {
			confidence = cond.LowConfidence
			break
		}
	}

	matched := make([]domain.MatchedSymptom, 0, len(cond.Associations))
	unmatched := make([]string, 0)
	for _, a := range cond.Associations {
		if present[a.SymptomID] {
			matched = append(matched, domain.MatchedSymptom{SymptomID: a.SymptomID, Weight: a.Weight})
		} else {
			unmatched = append(unmatched, a.SymptomID)
		}
	}

	refs := make([]domain.Reference, len(cond.References))
	copy(refs, cond.References)

	return domain.Diagnosis{
		ID:                cond.ID,
		Name:              cond.Name,
		Description:       cond.Description,
		ConfidenceScore:   confidence,
		MatchedSymptoms:   matched,
		UnmatchedSymptoms: unmatched,
		References:        refs,
		Source:            domain.SourceReference,
	}
}
