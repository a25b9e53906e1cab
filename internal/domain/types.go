// Package domain contains the core entities for phenotype intake and differential diagnosis:
// vocabulary terms from the Human Phenotype Ontology, the patient's annotated symptoms,
// ranked candidate diagnoses and the relationship graph derived from them.
//
// Reference: Köhler et al. (2021) The Human Phenotype Ontology in 2021.
// Nucleic Acids Res. 49(D1):D1207-D1217. doi: 10.1093/nar/gkaa1043
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Severity is the frequency band of a phenotypic finding, following the HPO
// frequency subontology (HP:0040279 - HP:0040285). The numeric range is kept
// apart from the display label so comparisons never parse the label.
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityExcluded
	SeverityVeryRare
	SeverityOccasional
	SeverityFrequent
	SeverityVeryFrequent
	SeverityObligate
)

// DefaultSeverity is applied to a term when it is first attached to a patient.
const DefaultSeverity = SeverityFrequent

type severityInfo struct {
	code  string
	label string
	min   int
	max   int
	color string
}

var severityTable = map[Severity]severityInfo{
	SeverityExcluded:     {"EXCLUDED", "Excluded (0%)", 0, 0, "#A0AEC0"},
	SeverityVeryRare:     {"VERY_RARE", "Very rare (<4-1%)", 1, 4, "#4299E1"},
	SeverityOccasional:   {"OCCASIONAL", "Occasional (29-5%)", 5, 29, "#48BB78"},
	SeverityFrequent:     {"FREQUENT", "Frequent (79-30%)", 30, 79, "#ECC94B"},
	SeverityVeryFrequent: {"VERY_FREQUENT", "Very frequent (99-80%)", 80, 99, "#ED8936"},
	SeverityObligate:     {"OBLIGATE", "Obligate (100%)", 100, 100, "#E53E3E"},
}

// Severities lists every valid band in ascending frequency order.
func Severities() []Severity {
	return []Severity{
		SeverityExcluded,
		SeverityVeryRare,
		SeverityOccasional,
		SeverityFrequent,
		SeverityVeryFrequent,
		SeverityObligate,
	}
}

// ErrInvalidSeverity is returned when a severity code or label is not recognised.
var ErrInvalidSeverity = errors.New("invalid severity band")

// ParseSeverity accepts either the stable code ("FREQUENT") or the display
// label ("Frequent (79-30%)"), case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	s = strings.TrimSpace(s)
	for sev, info := range severityTable {
		if strings.EqualFold(s, info.code) || strings.EqualFold(s, info.label) {
			return sev, nil
		}
	}
	return SeverityUnknown, fmt.Errorf("%w: %q", ErrInvalidSeverity, s)
}

// IsValid reports whether s is one of the six bands.
func (s Severity) IsValid() bool {
	_, ok := severityTable[s]
	return ok
}

// Code returns the stable identifier of the band.
func (s Severity) Code() string {
	return severityTable[s].code
}

// Label returns the display label, which is also the wire value.
func (s Severity) Label() string {
	return severityTable[s].label
}

// String returns the display label.
func (s Severity) String() string {
	if !s.IsValid() {
		return "Unknown"
	}
	return s.Label()
}

// Range returns the inclusive frequency bounds of the band in percent.
func (s Severity) Range() (min, max int) {
	info := severityTable[s]
	return info.min, info.max
}

// Color is the display color used for symptom nodes.
func (s Severity) Color() string {
	if !s.IsValid() {
		return "#A0AEC0"
	}
	return severityTable[s].color
}

// MarshalJSON encodes the band as its display label.
func (s Severity) MarshalJSON() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("marshal severity: %w", ErrInvalidSeverity)
	}
	return json.Marshal(s.Label())
}

// UnmarshalJSON accepts a code or label.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal severity: %w", err)
	}
	parsed, err := ParseSeverity(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// VocabularyTerm is an immutable entry of the phenotype catalog.
type VocabularyTerm struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Definition string   `json:"definition,omitempty"`
	Synonyms   []string `json:"synonyms,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// PatientSymptom is a vocabulary term attached to a patient with clinical annotations.
type PatientSymptom struct {
	VocabularyTerm
	Severity  Severity  `json:"severity"`
	Duration  string    `json:"duration"`
	Onset     string    `json:"onset"`
	Notes     string    `json:"notes,omitempty"`
	DateAdded time.Time `json:"date_added"`
}

// SymptomUpdate carries a partial update; nil fields are left unchanged.
type SymptomUpdate struct {
	Severity *Severity `json:"severity,omitempty"`
	Duration *string   `json:"duration,omitempty"`
	Onset    *string   `json:"onset,omitempty"`
	Notes    *string   `json:"notes,omitempty"`
}

// Apply merges the update into sym.
func (u SymptomUpdate) Apply(sym *PatientSymptom) {
	if u.Severity != nil && u.Severity.IsValid() {
		sym.Severity = *u.Severity
	}
	if u.Duration != nil {
		sym.Duration = *u.Duration
	}
	if u.Onset != nil {
		sym.Onset = *u.Onset
	}
	if u.Notes != nil {
		sym.Notes = *u.Notes
	}
}

// SymptomIDs returns the ids of symptoms in order.
func SymptomIDs(symptoms []PatientSymptom) []string {
	ids := make([]string, len(symptoms))
	for i, s := range symptoms {
		ids[i] = s.ID
	}
	return ids
}

// Sex of a patient profile.
type Sex string

const (
	SexMale   Sex = "male"
	SexFemale Sex = "female"
	SexOther  Sex = "other"
)

// IsValid reports whether the sex value is accepted.
func (s Sex) IsValid() bool {
	switch s {
	case SexMale, SexFemale, SexOther:
		return true
	default:
		return false
	}
}

// PatientProfile is the demographic record attached to a session.
type PatientProfile struct {
	ID             string   `json:"id"`
	Name           string   `json:"name" binding:"required"`
	Age            int      `json:"age" binding:"gte=0,lte=150"`
	Sex            Sex      `json:"sex" binding:"required,oneof=male female other"`
	MedicalHistory []string `json:"medical_history,omitempty"`
	Medications    []string `json:"medications,omitempty"`
	Allergies      []string `json:"allergies,omitempty"`
}

// ProfileUpdate is a partial profile update.
type ProfileUpdate struct {
	Name           *string  `json:"name,omitempty"`
	Age            *int     `json:"age,omitempty" binding:"omitempty,gte=0,lte=150"`
	Sex            *Sex     `json:"sex,omitempty" binding:"omitempty,oneof=male female other"`
	MedicalHistory []string `json:"medical_history,omitempty"`
	Medications    []string `json:"medications,omitempty"`
	Allergies      []string `json:"allergies,omitempty"`
}

// Apply merges the update into p.
func (u ProfileUpdate) Apply(p *PatientProfile) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Age != nil {
		p.Age = *u.Age
	}
	if u.Sex != nil {
		p.Sex = *u.Sex
	}
	if u.MedicalHistory != nil {
		p.MedicalHistory = u.MedicalHistory
	}
	if u.Medications != nil {
		p.Medications = u.Medications
	}
	if u.Allergies != nil {
		p.Allergies = u.Allergies
	}
}

// User is a registered clinician account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
