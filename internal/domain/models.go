package domain

import (
	"math"
	"strings"
)

// DefaultAreaLevel is used when a request names no area level
const DefaultAreaLevel = "GP Practice"

// Significance verdicts
const (
	SignificantYes = "Yes"
	SignificantNo  = "No"
)

// ModelRequest is the query accepted by every entry point
type ModelRequest struct {
	ResponseFilter1 string   `json:"response_filter_1"`
	ResponseFilter2 string   `json:"response_filter_2,omitempty"`
	Predictors      []string `json:"predictors"`
	AreaLevel       string   `json:"area_level,omitempty"`
	FilterAreas     []string `json:"filter_areas"`
	TrainAreas      []string `json:"train_areas,omitempty"`
	AgeAsAFactor    string   `json:"age_as_a_factor,omitempty"`
}

// Normalize applies defaults and checks required fields. A nil slice means
// the key was absent (or null) in the request; an empty slice is allowed
// for filter_areas.
func (r *ModelRequest) Normalize() error {
	if strings.TrimSpace(r.ResponseFilter1) == "" && strings.TrimSpace(r.ResponseFilter2) == "" {
		return NewValidationError("response_filter_1", "select a long-term condition, cohort, or count variable to predict", r.ResponseFilter1)
	}
	if r.Predictors == nil {
		return NewValidationError("predictors", "predictors is required", nil)
	}
	if len(r.Predictors) == 0 {
		return NewValidationError("predictors", "at least one predictor is required", r.Predictors)
	}
	if r.FilterAreas == nil {
		return NewValidationError("filter_areas", "filter_areas is required (use an empty list for no filter)", nil)
	}
	if r.AreaLevel == "" {
		r.AreaLevel = DefaultAreaLevel
	}
	switch strings.ToUpper(r.AgeAsAFactor) {
	case "":
		r.AgeAsAFactor = "N"
	case "Y", "N":
		r.AgeAsAFactor = strings.ToUpper(r.AgeAsAFactor)
	default:
		return NewValidationError("age_as_a_factor", "must be Y or N", r.AgeAsAFactor)
	}
	return nil
}

// ModelResponse is the uniform wire response
type ModelResponse struct {
	ModelMatch []AreaAggregate `json:"model_match"`
	Status     int             `json:"status"`
}

// AreaAggregate is one row of the output comparison. Pointer fields are
// nil when the value is not a finite number and marshal as null.
type AreaAggregate struct {
	AreaVar        string   `json:"area_var"`
	Expected       float64  `json:"expected"`
	Observed       float64  `json:"observed"`
	MatchRatio     *float64 `json:"match_ratio"`
	ChiSquare      *float64 `json:"chi_square"`
	MatchLower     *float64 `json:"match_lower"`
	MatchHigher    *float64 `json:"match_higher"`
	ExpectedLower  *float64 `json:"expected_lower"`
	ExpectedHigher *float64 `json:"expected_higher"`
	Significant    string   `json:"significant"`
	Significance   *float64 `json:"significance"`
}

// Finite returns a pointer to v, or nil if v is NaN or infinite
func Finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// PatientQuery describes the columns and areas a fetch should return
type PatientQuery struct {
	Columns     []string
	FilterAreas []string
}

// PatientTable is a rectangular patient-level table as read from the
// database. Values are nil, bool, int64, float64 or string.
type PatientTable struct {
	Columns []string
	Rows    [][]any
}

// Index returns the position of a column, or -1
func (t *PatientTable) Index(column string) int {
	for i, c := range t.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// FormattedRecord is one model-ready patient row
type FormattedRecord struct {
	AreaVar    string
	PredictVar float64
	Fields     map[string]any
}

// FormattedTable is the output of the data formatter
type FormattedTable struct {
	Records []FormattedRecord
}

// Len returns the number of records
func (t *FormattedTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}
