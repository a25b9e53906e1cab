// Package session holds the per-user working state: the patient's symptom
// set, the ranking engine bound to it, the derived graph and the profile.
package session

import (
	"sync"
	"time"

	"github.com/phenodx-server/internal/domain"
)

// ChangeKind names a symptom set mutation
type ChangeKind string

const (
	ChangeAdd     ChangeKind = "add"
	ChangeUpdate  ChangeKind = "update"
	ChangeRemove  ChangeKind = "remove"
	ChangeClear   ChangeKind = "clear"
	ChangeReplace ChangeKind = "replace"
)

// SymptomSet is an insertion-ordered set of patient symptoms keyed by term id.
type SymptomSet struct {
	mu       sync.RWMutex
	items    []domain.PatientSymptom
	index    map[string]int
	onChange func(ChangeKind)
	now      func() time.Time
}

// NewSymptomSet creates an empty set. onChange, if set, runs after every
// effective mutation, outside the set lock.
func NewSymptomSet(onChange func(ChangeKind)) *SymptomSet {
	return &SymptomSet{
		index:    make(map[string]int),
		onChange: onChange,
		now:      time.Now,
	}
}

// Add appends term with severity unless its id is already present. Invalid
// severities fall back to the default band. Reports whether the set changed.
func (s *SymptomSet) Add(term domain.VocabularyTerm, severity domain.Severity) bool {
	if !severity.IsValid() {
		severity = domain.DefaultSeverity
	}

	s.mu.Lock()
	if _, ok := s.index[term.ID]; ok {
		s.mu.Unlock()
		return false
	}
	s.index[term.ID] = len(s.items)
	s.items = append(s.items, domain.PatientSymptom{
		VocabularyTerm: term,
		Severity:       severity,
		DateAdded:      s.now(),
	})
	s.mu.Unlock()

	s.changed(ChangeAdd)
	return true
}

// Update merges upd into the symptom with id. Absent ids are ignored.
func (s *SymptomSet) Update(id string, upd domain.SymptomUpdate) bool {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	upd.Apply(&s.items[i])
	s.mu.Unlock()

	s.changed(ChangeUpdate)
	return true
}

// Remove deletes the symptom with id. Absent ids are ignored.
func (s *SymptomSet) Remove(id string) bool {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	s.reindex()
	s.mu.Unlock()

	s.changed(ChangeRemove)
	return true
}

// Clear empties the set.
func (s *SymptomSet) Clear() {
	s.mu.Lock()
	s.items = nil
	s.index = make(map[string]int)
	s.mu.Unlock()

	s.changed(ChangeClear)
}

// Replace swaps the whole content, keeping the first occurrence of each id.
func (s *SymptomSet) Replace(symptoms []domain.PatientSymptom) {
	items := make([]domain.PatientSymptom, 0, len(symptoms))
	seen := make(map[string]bool, len(symptoms))
	for _, sym := range symptoms {
		if sym.ID == "" || seen[sym.ID] {
			continue
		}
		seen[sym.ID] = true
		if !sym.Severity.IsValid() {
			sym.Severity = domain.DefaultSeverity
		}
		if sym.DateAdded.IsZero() {
			sym.DateAdded = s.now()
		}
		items = append(items, sym)
	}

	s.mu.Lock()
	s.items = items
	s.reindex()
	s.mu.Unlock()

	s.changed(ChangeReplace)
}

// List returns a copy of the symptoms in insertion order.
func (s *SymptomSet) List() []domain.PatientSymptom {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PatientSymptom, len(s.items))
	copy(out, s.items)
	return out
}

// Get returns the symptom with id.
func (s *SymptomSet) Get(id string) (domain.PatientSymptom, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return domain.PatientSymptom{}, false
	}
	return s.items[i], true
}

// Contains reports whether id is in the set.
func (s *SymptomSet) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[id]
	return ok
}

// Len returns the number of symptoms.
func (s *SymptomSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *SymptomSet) reindex() {
	s.index = make(map[string]int, len(s.items))
	for i, item := range s.items {
		s.index[item.ID] = i
	}
}

func (s *SymptomSet) changed(kind ChangeKind) {
	if s.onChange != nil {
		s.onChange(kind)
	}
}
