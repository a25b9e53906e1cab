package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenodx-server/internal/domain"
)

func TestSymptomSet_AddIsIdempotent(t *testing.T) {
	var changes []ChangeKind
	set := NewSymptomSet(func(k ChangeKind) { changes = append(changes, k) })

	assert.True(t, set.Add(seizure, domain.SeverityObligate))
	assert.False(t, set.Add(seizure, domain.SeverityVeryRare))

	got, ok := set.Get(seizure.ID)
	require.True(t, ok)
	assert.Equal(t, domain.SeverityObligate, got.Severity)
	assert.False(t, got.DateAdded.IsZero())
	assert.Equal(t, 1, set.Len())
	assert.Equal(t, []ChangeKind{ChangeAdd}, changes)
}

func TestSymptomSet_InvalidSeverityUsesDefault(t *testing.T) {
	set := NewSymptomSet(nil)
	set.Add(seizure, domain.SeverityUnknown)

	got, _ := set.Get(seizure.ID)
	assert.Equal(t, domain.DefaultSeverity, got.Severity)
}

func TestSymptomSet_PreservesInsertionOrder(t *testing.T) {
	set := NewSymptomSet(nil)
	set.Add(headache, domain.SeverityFrequent)
	set.Add(seizure, domain.SeverityFrequent)
	set.Add(ataxia, domain.SeverityFrequent)

	assert.Equal(t, []string{"HP:0002315", "HP:0001250", "HP:0001251"}, domain.SymptomIDs(set.List()))

	set.Remove(seizure.ID)
	assert.Equal(t, []string{"HP:0002315", "HP:0001251"}, domain.SymptomIDs(set.List()))
	assert.True(t, set.Contains(ataxia.ID))
	assert.False(t, set.Contains(seizure.ID))
}

func TestSymptomSet_UpdateAndRemoveAbsentAreNoOps(t *testing.T) {
	var changes []ChangeKind
	set := NewSymptomSet(func(k ChangeKind) { changes = append(changes, k) })
	set.Add(seizure, domain.SeverityFrequent)
	before := set.List()

	duration := "3 weeks"
	assert.False(t, set.Update("HP:9999999", domain.SymptomUpdate{Duration: &duration}))
	assert.False(t, set.Remove("HP:9999999"))

	assert.Equal(t, before, set.List())
	assert.Equal(t, []ChangeKind{ChangeAdd}, changes)
}

func TestSymptomSet_Update(t *testing.T) {
	set := NewSymptomSet(nil)
	set.Add(seizure, domain.SeverityFrequent)

	sev := domain.SeverityVeryFrequent
	onset := "childhood"
	assert.True(t, set.Update(seizure.ID, domain.SymptomUpdate{Severity: &sev, Onset: &onset}))

	got, _ := set.Get(seizure.ID)
	assert.Equal(t, domain.SeverityVeryFrequent, got.Severity)
	assert.Equal(t, "childhood", got.Onset)
	assert.Empty(t, got.Duration)
}

func TestSymptomSet_ReplaceDeduplicates(t *testing.T) {
	set := NewSymptomSet(nil)
	set.Add(headache, domain.SeverityFrequent)

	set.Replace([]domain.PatientSymptom{
		{VocabularyTerm: seizure, Severity: domain.SeverityObligate},
		{VocabularyTerm: seizure, Severity: domain.SeverityVeryRare},
		{VocabularyTerm: ataxia},
		{VocabularyTerm: domain.VocabularyTerm{Name: "no id"}},
	})

	list := set.List()
	require.Len(t, list, 2)
	assert.Equal(t, domain.SeverityObligate, list[0].Severity)
	assert.Equal(t, domain.DefaultSeverity, list[1].Severity)
	assert.False(t, list[1].DateAdded.IsZero())
	assert.False(t, set.Contains(headache.ID))
}

func TestSymptomSet_Clear(t *testing.T) {
	set := NewSymptomSet(nil)
	set.Add(seizure, domain.SeverityFrequent)

	set.Clear()

	assert.Equal(t, 0, set.Len())
	assert.Empty(t, set.List())
	assert.True(t, set.Add(seizure, domain.SeverityFrequent))
}
