package domain

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelRequest_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		req     ModelRequest
		wantErr bool
		check   func(t *testing.T, r ModelRequest)
	}{
		{
			name: "Defaults applied",
			req: ModelRequest{
				ResponseFilter1: "Coronary Heart Disease",
				Predictors:      []string{"Age", "Sex"},
				FilterAreas:     []string{},
			},
			check: func(t *testing.T, r ModelRequest) {
				assert.Equal(t, DefaultAreaLevel, r.AreaLevel)
				assert.Equal(t, "N", r.AgeAsAFactor)
			},
		},
		{
			name: "Lower case age factor accepted",
			req: ModelRequest{
				ResponseFilter1: "Diabetes",
				Predictors:      []string{"Age"},
				FilterAreas:     []string{"00Q"},
				AgeAsAFactor:    "y",
			},
			check: func(t *testing.T, r ModelRequest) {
				assert.Equal(t, "Y", r.AgeAsAFactor)
			},
		},
		{
			name:    "No condition",
			req:     ModelRequest{Predictors: []string{"Age"}, FilterAreas: []string{}},
			wantErr: true,
		},
		{
			name:    "Missing predictors",
			req:     ModelRequest{ResponseFilter1: "Asthma", FilterAreas: []string{}},
			wantErr: true,
		},
		{
			name:    "Missing filter areas",
			req:     ModelRequest{ResponseFilter1: "Asthma", Predictors: []string{"Age"}},
			wantErr: true,
		},
		{
			name: "Bad age factor",
			req: ModelRequest{
				ResponseFilter1: "Asthma",
				Predictors:      []string{"Age"},
				FilterAreas:     []string{},
				AgeAsAFactor:    "maybe",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			err := req.Normalize()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidInput))
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, req)
			}
		})
	}
}

func TestModelRequest_MissingKeysDecodeAsNil(t *testing.T) {
	var req ModelRequest
	require.NoError(t, json.Unmarshal([]byte(`{"response_filter_1":"Asthma","filter_areas":[]}`), &req))

	assert.Nil(t, req.Predictors)
	assert.NotNil(t, req.FilterAreas)
	assert.Error(t, req.Normalize())
}

func TestFinite(t *testing.T) {
	assert.Nil(t, Finite(math.NaN()))
	assert.Nil(t, Finite(math.Inf(1)))
	assert.Nil(t, Finite(math.Inf(-1)))
	require.NotNil(t, Finite(1.5))
	assert.Equal(t, 1.5, *Finite(1.5))
}

func TestAreaAggregate_MarshalsMissingAsNull(t *testing.T) {
	agg := AreaAggregate{
		AreaVar:     "P1",
		Expected:    0,
		Observed:    0,
		MatchRatio:  Finite(math.NaN()),
		Significant: SignificantNo,
	}

	data, err := json.Marshal(agg)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "match_ratio")
	assert.Nil(t, decoded["match_ratio"])
	assert.Equal(t, "No", decoded["significant"])
}

func TestPatientTable_Index(t *testing.T) {
	table := &PatientTable{Columns: []string{"chd", "age", "sex"}}
	assert.Equal(t, 1, table.Index("age"))
	assert.Equal(t, -1, table.Index("pcn"))
}
