// Package export converts symptom sets to and from the JSON and CSV
// formats clinicians exchange.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/phenodx-server/internal/domain"
)

const (
	// JSONFilename is the suggested download name of a symptom export
	JSONFilename = "hpo_symptoms.json"
	// CSVFilename is the suggested download name of an extracted term list
	CSVFilename = "extracted_hpo_terms.csv"
)

var csvHeader = []string{"HPO ID", "Term Name"}

// Record is one exported symptom
type Record struct {
	HPOID     string `json:"hpo_id" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Frequency string `json:"frequency" validate:"required"`
}

var validate = validator.New()

// MarshalSymptoms renders symptoms as an indented JSON array.
func MarshalSymptoms(symptoms []domain.PatientSymptom) ([]byte, error) {
	records := make([]Record, len(symptoms))
	for i, s := range symptoms {
		records[i] = Record{HPOID: s.ID, Name: s.Name, Frequency: s.Severity.Label()}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal symptoms: %w", err)
	}
	return data, nil
}

// UnmarshalSymptoms parses a JSON export. Every record needs an id, a name
// and a known frequency band.
func UnmarshalSymptoms(data []byte) ([]domain.PatientSymptom, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &domain.ImportFormatError{Format: "json", Reason: err.Error()}
	}

	out := make([]domain.PatientSymptom, 0, len(records))
	for i, r := range records {
		r.HPOID = strings.TrimSpace(r.HPOID)
		r.Name = strings.TrimSpace(r.Name)
		if err := validate.Struct(r); err != nil {
			return nil, &domain.ImportFormatError{Format: "json", Line: i + 1, Reason: describe(err)}
		}
		sev, err := domain.ParseSeverity(r.Frequency)
		if err != nil {
			return nil, &domain.ImportFormatError{Format: "json", Line: i + 1, Reason: err.Error()}
		}
		out = append(out, domain.PatientSymptom{
			VocabularyTerm: domain.VocabularyTerm{ID: r.HPOID, Name: r.Name},
			Severity:       sev,
		})
	}
	return out, nil
}

// WriteTermsCSV writes terms with the "HPO ID,Term Name" header.
func WriteTermsCSV(w io.Writer, terms []domain.VocabularyTerm) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, t := range terms {
		if err := cw.Write([]string{t.ID, t.Name}); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalTermsCSV renders terms as CSV.
func MarshalTermsCSV(terms []domain.VocabularyTerm) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteTermsCSV(&buf, terms); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadTermsCSV parses a term list. The header row is required and every row
// must have exactly two non-empty columns.
func ReadTermsCSV(r io.Reader) ([]domain.VocabularyTerm, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &domain.ImportFormatError{Format: "csv", Reason: "missing header"}
	}
	if err != nil {
		return nil, &domain.ImportFormatError{Format: "csv", Line: 1, Reason: err.Error()}
	}
	if len(header) != 2 || !strings.EqualFold(strings.TrimSpace(header[0]), csvHeader[0]) ||
		!strings.EqualFold(strings.TrimSpace(header[1]), csvHeader[1]) {
		return nil, &domain.ImportFormatError{Format: "csv", Line: 1, Reason: "expected header \"HPO ID,Term Name\""}
	}

	terms := make([]domain.VocabularyTerm, 0)
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, &domain.ImportFormatError{Format: "csv", Line: line, Reason: err.Error()}
		}
		if len(row) != 2 {
			return nil, &domain.ImportFormatError{Format: "csv", Line: line, Reason: fmt.Sprintf("expected 2 columns, got %d", len(row))}
		}
		id, name := strings.TrimSpace(row[0]), strings.TrimSpace(row[1])
		if id == "" || name == "" {
			return nil, &domain.ImportFormatError{Format: "csv", Line: line, Reason: "empty id or name"}
		}
		terms = append(terms, domain.VocabularyTerm{ID: id, Name: name})
	}
	return terms, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Sprintf("field %s failed %s", strings.ToLower(verrs[0].Field()), verrs[0].Tag())
	}
	return err.Error()
}
