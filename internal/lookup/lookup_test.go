package lookup

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelled-needs-server/internal/domain"
)

func TestResolver_Conditions(t *testing.T) {
	r := NewResolver()

	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{"Single condition", []string{"Coronary Heart Disease", ""}, []string{"chd"}},
		{"Two conditions in table order", []string{"Hypertension", "Diabetes"}, []string{"diabetes", "hypertension"}},
		{"Unknown falls back to raw input", []string{"smoker", ""}, []string{"smoker"}},
		{"Second matched only", []string{"not-a-condition", "COPD"}, []string{"copd"}},
		{"Empty first uses second raw", []string{"", "frailty"}, []string{"frailty"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Conditions(tt.input...))
		})
	}
}

func TestResolver_Area(t *testing.T) {
	r := NewResolver()

	id, err := r.Area("GP Practice")
	require.NoError(t, err)
	assert.Equal(t, "gpp_name", id)

	id, err = r.Area("Primary Care Network")
	require.NoError(t, err)
	assert.Equal(t, "pcn", id)

	_, err = r.Area("Parish")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrLookupMiss))
}

func TestResolver_AreaFirstMatchWins(t *testing.T) {
	r := NewResolverWithTables(nil, Table{
		{FullName: "CCG", ShortName: "ccg"},
		{FullName: "CCG", ShortName: "ccg_name"},
	}, nil)

	id, err := r.Area("CCG")
	require.NoError(t, err)
	assert.Equal(t, "ccg", id)
}

func TestResolver_Predictors(t *testing.T) {
	r := NewResolver()

	got := r.Predictors([]string{"Sex", "Shoe Size", "Age"})
	require.Len(t, got, 3)

	assert.Equal(t, Resolution{Name: "Sex", ID: "sex", Found: true}, got[0])
	assert.Equal(t, Resolution{Name: "Shoe Size"}, got[1])
	assert.Equal(t, Resolution{Name: "Age", ID: "age", Found: true}, got[2])
}

func TestTablesHaveUniqueNames(t *testing.T) {
	for name, table := range NewResolver().Tables() {
		seen := map[string]bool{}
		for _, e := range table {
			assert.False(t, seen[e.FullName], "%s: duplicate full name %q", name, e.FullName)
			seen[e.FullName] = true
			assert.NotEmpty(t, e.ShortName)
		}
	}
}
