package service

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/modelled-needs-server/internal/domain"
	"github.com/modelled-needs-server/internal/glm"
)

// DefaultMinAreaSize is the row count an area must exceed to be reported
const DefaultMinAreaSize = 10

// Confidence levels for the ratio interval
const (
	lowerQuantile = 0.05
	upperQuantile = 0.95
)

// ScoringMode produces the predicted column for a set of records
type ScoringMode interface {
	Kind() string
	Score(records []domain.FormattedRecord) ([]float64, error)
}

// LogisticScoring scores records with fitted logistic probabilities
type LogisticScoring struct {
	Model *glm.Model
}

// Kind implements ScoringMode
func (LogisticScoring) Kind() string { return "logistic" }

// Score implements ScoringMode
func (s LogisticScoring) Score(records []domain.FormattedRecord) ([]float64, error) {
	if s.Model == nil {
		return nil, fmt.Errorf("logistic scoring without a model: %w", domain.ErrModelFit)
	}
	out := make([]float64, len(records))
	for i, rec := range records {
		out[i] = s.Model.Predict(rec.Fields)
	}
	return out, nil
}

// CountPredictor is an externally trained model predicting counts from a
// numeric feature matrix
type CountPredictor interface {
	Predict(features [][]float64) ([]float64, error)
}

// CountScoring scores records with an externally supplied count model.
// Text features are passed as the index of the value among the sorted
// distinct values of that feature.
type CountScoring struct {
	Model    CountPredictor
	Features []string
}

// Kind implements ScoringMode
func (CountScoring) Kind() string { return "count" }

// Score implements ScoringMode
func (s CountScoring) Score(records []domain.FormattedRecord) ([]float64, error) {
	if s.Model == nil {
		return nil, fmt.Errorf("count scoring without a model: %w", domain.ErrModelFit)
	}

	codes := make(map[string]map[string]float64, len(s.Features))
	for _, f := range s.Features {
		codes[f] = categoryCodes(records, f)
	}

	matrix := make([][]float64, len(records))
	for i, rec := range records {
		row := make([]float64, len(s.Features))
		for j, f := range s.Features {
			raw := rec.Fields[f]
			if v, ok := glm.ToFloat(raw); ok {
				row[j] = v
			} else if str, ok := raw.(string); ok {
				row[j] = codes[f][str]
			} else {
				row[j] = math.NaN()
			}
		}
		matrix[i] = row
	}

	predicted, err := s.Model.Predict(matrix)
	if err != nil {
		return nil, fmt.Errorf("count model prediction: %v: %w", err, domain.ErrModelFit)
	}
	if len(predicted) != len(records) {
		return nil, fmt.Errorf("count model returned %d predictions for %d rows: %w", len(predicted), len(records), domain.ErrModelFit)
	}
	return predicted, nil
}

func categoryCodes(records []domain.FormattedRecord, field string) map[string]float64 {
	seen := map[string]bool{}
	for _, rec := range records {
		if s, ok := rec.Fields[field].(string); ok {
			seen[s] = true
		}
	}
	levels := make([]string, 0, len(seen))
	for l := range seen {
		levels = append(levels, l)
	}
	sort.Strings(levels)

	out := make(map[string]float64, len(levels))
	for i, l := range levels {
		out[l] = float64(i)
	}
	return out
}

// Comparator aggregates predicted against observed outcomes per area
type Comparator struct {
	MinAreaSize int
}

// NewComparator creates a comparator; areas with minAreaSize rows or fewer
// are left out of the result
func NewComparator(minAreaSize int) *Comparator {
	if minAreaSize <= 0 {
		minAreaSize = DefaultMinAreaSize
	}
	return &Comparator{MinAreaSize: minAreaSize}
}

type areaTotals struct {
	rows     int
	expected float64
	observed float64
}

// Compare scores every record and returns one aggregate per qualifying
// area, ordered by area name. Rows that cannot be scored add nothing to
// the expected total but still count toward the area size and observed
// total.
func (c *Comparator) Compare(table *domain.FormattedTable, mode ScoringMode) ([]domain.AreaAggregate, error) {
	if table == nil {
		return nil, fmt.Errorf("no formatted table: %w", domain.ErrData)
	}
	predicted, err := mode.Score(table.Records)
	if err != nil {
		return nil, err
	}

	totals := map[string]*areaTotals{}
	for i, rec := range table.Records {
		t, ok := totals[rec.AreaVar]
		if !ok {
			t = &areaTotals{}
			totals[rec.AreaVar] = t
		}
		t.rows++
		if !math.IsNaN(predicted[i]) {
			t.expected += predicted[i]
		}
		t.observed += rec.PredictVar
	}

	areas := make([]string, 0, len(totals))
	for area, t := range totals {
		if t.rows > c.MinAreaSize {
			areas = append(areas, area)
		}
	}
	sort.Strings(areas)

	out := make([]domain.AreaAggregate, 0, len(areas))
	for _, area := range areas {
		t := totals[area]
		out = append(out, Aggregate(area, t.expected, t.observed))
	}
	return out, nil
}

// Aggregate computes the match ratio, its 95% interval and the
// significance verdict for one area
func Aggregate(area string, expected, observed float64) domain.AreaAggregate {
	ratio := observed / expected
	chiSquare := (observed - expected) * (observed - expected) / expected

	lower := ChiSquareQuantile(lowerQuantile, 2*observed) / (2 * expected)
	higher := ChiSquareQuantile(upperQuantile, 2*observed+2) / (2 * expected)
	expectedLower := observed / lower
	expectedHigher := observed / higher

	significant := sign((higher-1)/(ratio-1)) == 1 && sign((lower-1)/(ratio-1)) == 1

	agg := domain.AreaAggregate{
		AreaVar:        area,
		Expected:       expected,
		Observed:       observed,
		MatchRatio:     domain.Finite(ratio),
		ChiSquare:      domain.Finite(chiSquare),
		MatchLower:     domain.Finite(lower),
		MatchHigher:    domain.Finite(higher),
		ExpectedLower:  domain.Finite(expectedLower),
		ExpectedHigher: domain.Finite(expectedHigher),
		Significant:    domain.SignificantNo,
		Significance:   domain.Finite(0),
	}
	if significant {
		agg.Significant = domain.SignificantYes
		agg.Significance = domain.Finite(math.Min(math.Abs(higher-1), math.Abs(lower-1)))
	}
	return agg
}

// ChiSquareQuantile is the inverse CDF of the chi-square distribution.
// Zero or invalid degrees of freedom give NaN.
func ChiSquareQuantile(p, df float64) float64 {
	if math.IsNaN(df) || math.IsInf(df, 0) || df <= 0 {
		return math.NaN()
	}
	return distuv.ChiSquared{K: df}.Quantile(p)
}

// sign returns -1, 0 or 1, and NaN for NaN
func sign(x float64) float64 {
	switch {
	case math.IsNaN(x):
		return math.NaN()
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
