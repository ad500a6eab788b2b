package service

import (
	"fmt"
	"math"

	"github.com/modelled-needs-server/internal/domain"
	"github.com/modelled-needs-server/internal/glm"
)

// Age banding parameters
const (
	MinAge       = 0
	MaxAge       = 90
	AgeBandWidth = 5
	AgeColumn    = "age"
)

// FormatGLMData turns the raw patient table into model-ready records.
// The input table is not modified.
func FormatGLMData(table *domain.PatientTable, areaGroup string, responses []string, ageFactor string) (*domain.FormattedTable, error) {
	if table == nil {
		return nil, fmt.Errorf("no patient table: %w", domain.ErrData)
	}

	areaIdx := table.Index(areaGroup)
	if areaIdx < 0 {
		return nil, fmt.Errorf("area column %q not in result: %w", areaGroup, domain.ErrData)
	}
	responseIdx := make([]int, len(responses))
	dropped := map[int]bool{areaIdx: true}
	for i, r := range responses {
		idx := table.Index(r)
		if idx < 0 {
			return nil, fmt.Errorf("condition column %q not in result: %w", r, domain.ErrData)
		}
		responseIdx[i] = idx
		dropped[idx] = true
	}

	out := &domain.FormattedTable{Records: make([]domain.FormattedRecord, 0, len(table.Rows))}
	for rowNum, row := range table.Rows {
		predict, ok, err := predictVar(row, responseIdx)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", rowNum, err)
		}
		area, hasArea := areaValue(row[areaIdx])
		if !ok || !hasArea {
			continue
		}

		fields := make(map[string]any, len(table.Columns)-len(dropped))
		for i, col := range table.Columns {
			if dropped[i] {
				continue
			}
			fields[col] = coerceBool(row[i])
		}

		if ageFactor == "Y" {
			if err := bandAgeField(fields); err != nil {
				return nil, err
			}
		}

		out.Records = append(out.Records, domain.FormattedRecord{
			AreaVar:    area,
			PredictVar: predict,
			Fields:     fields,
		})
	}
	return out, nil
}

// predictVar is 1 when the product of the condition flags equals 1. A null
// or NaN flag leaves the row without a response.
func predictVar(row []any, idx []int) (float64, bool, error) {
	product := 1.0
	for _, i := range idx {
		v := row[i]
		if isMissing(v) {
			return 0, false, nil
		}
		f, ok := glm.ToFloat(v)
		if !ok {
			return 0, false, fmt.Errorf("condition value %v is not numeric: %w", v, domain.ErrData)
		}
		product *= f
	}
	if product == 1 {
		return 1, true, nil
	}
	return 0, true, nil
}

func isMissing(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	}
	return false
}

func areaValue(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case []byte:
		return string(x), true
	case float64:
		if math.IsNaN(x) {
			return "", false
		}
		return fmt.Sprint(x), true
	default:
		return fmt.Sprint(x), true
	}
}

func coerceBool(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

func bandAgeField(fields map[string]any) error {
	raw, ok := fields[AgeColumn]
	if !ok {
		return fmt.Errorf("age banding requested but %q was not selected: %w", AgeColumn, domain.ErrData)
	}
	if raw == nil {
		return nil
	}
	age, ok := glm.ToFloat(raw)
	if !ok {
		return fmt.Errorf("age value %v is not numeric: %w", raw, domain.ErrData)
	}
	fields[AgeColumn] = BandAge(age)
	return nil
}

// BandAge clips age into [MinAge, MaxAge] and rounds it up to the next
// multiple of AgeBandWidth
func BandAge(age float64) int64 {
	clipped := math.Min(math.Max(age, MinAge), MaxAge)
	return int64(AgeBandWidth * math.Ceil(clipped/AgeBandWidth))
}
