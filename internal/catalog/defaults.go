package catalog

import "github.com/phenodx-server/internal/domain"

// DefaultTerms is the bundled vocabulary used when no catalog file is configured.
func DefaultTerms() []domain.VocabularyTerm {
	return []domain.VocabularyTerm{
		{ID: "HP:0001250", Name: "Seizure"},
		{ID: "HP:0002315", Name: "Headache"},
		{ID: "HP:0001251", Name: "Ataxia"},
		{ID: "HP:0002094", Name: "Dyspnea"},
		{ID: "HP:0001945", Name: "Fever"},
		{ID: "HP:0000256", Name: "Macrocephaly"},
		{ID: "HP:0001249", Name: "Intellectual disability"},
		{ID: "HP:0001257", Name: "Spasticity"},
		{ID: "HP:0001274", Name: "Agenesis of corpus callosum"},
		{ID: "HP:0001347", Name: "Hyperreflexia"},
		{ID: "HP:0002060", Name: "Megalencephaly"},
		{ID: "HP:0001508", Name: "Failure to thrive"},
		{ID: "HP:0002007", Name: "Frontal bossing"},
		{ID: "HP:0002018", Name: "Nausea and vomiting"},
		{ID: "HP:0002167", Name: "Abnormality of speech or vocalization"},
		{ID: "HP:0002169", Name: "Clonus"},
		{ID: "HP:0002353", Name: "EEG abnormality"},
		{ID: "HP:0002360", Name: "Sleep abnormality"},
		{ID: "HP:0002650", Name: "Scoliosis"},
		{ID: "HP:0002460", Name: "Abnormal pyramidal sign"},
		{ID: "HP:0000154", Name: "Large face"},
		{ID: "HP:0000496", Name: "Abnormality of eye movement"},
		{ID: "HP:0000508", Name: "Ptosis"},
		{ID: "HP:0000639", Name: "Nystagmus"},
	}
}
