package service

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelled-needs-server/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress logs during testing
	return logger
}

func areaRecord(area, pcn, ccg string) domain.FormattedRecord {
	return domain.FormattedRecord{
		AreaVar: area,
		Fields:  map[string]any{NetworkField: pcn, CCGField: ccg},
	}
}

func TestCanonicalAreaName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Fylde and Wyre", "Fylde & Wyre"},
		{"NHS Fylde and Wyre CCG", "NHS Fylde & Wyre CCG"},
		{"F and W North PCN", "F&W North PCN"},
		{"Ansdell and St Annes", "Ansdell & St Annes"},
		{"Blackpool", "Blackpool"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CanonicalAreaName(tt.in))
	}
}

func TestTrainingRecords(t *testing.T) {
	table := &domain.FormattedTable{Records: []domain.FormattedRecord{
		areaRecord("P1", "Fylde & Wyre PCN", "00Q"),
		areaRecord("P2", "Blackpool PCN", "00R"),
		areaRecord("P3", "", "00R"),
	}}

	t.Run("No train areas keeps all records", func(t *testing.T) {
		assert.Len(t, TrainingRecords(table, nil, "gpp_name"), 3)
		assert.Len(t, TrainingRecords(table, []string{}, "gpp_name"), 3)
	})

	t.Run("Practice level matches network or ccg", func(t *testing.T) {
		got := TrainingRecords(table, []string{"00Q"}, "gpp_name")
		require.Len(t, got, 1)
		assert.Equal(t, "P1", got[0].AreaVar)

		got = TrainingRecords(table, []string{"Blackpool PCN"}, "gpp_name")
		require.Len(t, got, 1)
		assert.Equal(t, "P2", got[0].AreaVar)
	})

	t.Run("Aliases are equivalent", func(t *testing.T) {
		a := TrainingRecords(table, []string{"Fylde and Wyre PCN"}, "gpp_name")
		b := TrainingRecords(table, []string{"Fylde & Wyre PCN"}, "gpp_name")
		require.Len(t, a, 1)
		assert.Equal(t, b, a)
	})

	t.Run("Empty names never match missing fields", func(t *testing.T) {
		assert.Empty(t, TrainingRecords(table, []string{""}, "gpp_name"))
	})

	t.Run("Network level compares area and ccg", func(t *testing.T) {
		pcnTable := &domain.FormattedTable{Records: []domain.FormattedRecord{
			{AreaVar: "N1", Fields: map[string]any{CCGField: "00Q"}},
			{AreaVar: "N2", Fields: map[string]any{CCGField: "00R"}},
		}}
		got := TrainingRecords(pcnTable, []string{"N2"}, NetworkField)
		require.Len(t, got, 1)
		assert.Equal(t, "N2", got[0].AreaVar)

		got = TrainingRecords(pcnTable, []string{"00Q"}, NetworkField)
		require.Len(t, got, 1)
		assert.Equal(t, "N1", got[0].AreaVar)
	})

	t.Run("CCG level compares network and area", func(t *testing.T) {
		ccgTable := &domain.FormattedTable{Records: []domain.FormattedRecord{
			{AreaVar: "00Q", Fields: map[string]any{NetworkField: "N1"}},
			{AreaVar: "00R", Fields: map[string]any{NetworkField: "N2"}},
		}}
		got := TrainingRecords(ccgTable, []string{"00R"}, CCGField)
		require.Len(t, got, 1)
		assert.Equal(t, "00R", got[0].AreaVar)

		got = TrainingRecords(ccgTable, []string{"N1"}, CCGField)
		require.Len(t, got, 1)
		assert.Equal(t, "00Q", got[0].AreaVar)
	})
}

func TestModelFitter_Fit(t *testing.T) {
	fitter := NewModelFitter(testLogger(), nil)
	table := sampleFormattedTable(t)

	model, err := fitter.Fit(table, nil, "gpp_name", []string{"age", "sex"})
	require.NoError(t, err)
	assert.Equal(t, "predict_var ~ age + sex", model.Formula)
	assert.Equal(t, table.Len(), model.NObs)

	_, err = fitter.Fit(table, []string{"nowhere"}, "gpp_name", []string{"age", "sex"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrModelFit))
}

func TestModelFitter_FitSeparated(t *testing.T) {
	table := &domain.FormattedTable{}
	for i := 0; i < 20; i++ {
		rec := domain.FormattedRecord{AreaVar: "P1", Fields: map[string]any{"age": int64(20 + i)}}
		if i >= 10 {
			rec.PredictVar = 1
		}
		table.Records = append(table.Records, rec)
	}

	_, err := NewModelFitter(testLogger(), nil).Fit(table, nil, "gpp_name", []string{"age"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrModelFit))
}

func sampleFormattedTable(t *testing.T) *domain.FormattedTable {
	t.Helper()
	out, err := FormatGLMData(samplePatientTable(), "gpp_name", []string{"chd"}, "N")
	require.NoError(t, err)
	return out
}
