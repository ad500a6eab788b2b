// Package glm fits binomial generalized linear models with a logit link
// and scores new observations with the fitted coefficients.
package glm

import (
	"fmt"
	"math"
)

// Observation is one row offered to the fitter
type Observation struct {
	Response float64
	Fields   map[string]any
}

// Model is a fitted logistic regression
type Model struct {
	Formula    string
	Design     *Design
	Params     []float64
	Iterations int
	Deviance   float64
	NObs       int
}

// FitLogistic fits response ~ predictors over the complete cases of obs
func FitLogistic(response string, predictors []string, obs []Observation, cfg *Config) (*Model, error) {
	complete := make([]map[string]any, 0, len(obs))
	y := make([]float64, 0, len(obs))
	for _, o := range obs {
		if !hasAll(o.Fields, predictors) {
			continue
		}
		complete = append(complete, o.Fields)
		y = append(y, o.Response)
	}
	if len(complete) == 0 {
		return nil, ErrEmptyData
	}

	design, err := NewDesign(predictors, complete)
	if err != nil {
		return nil, err
	}

	x := make([][]float64, len(complete))
	for i, fields := range complete {
		row, ok := design.Encode(fields)
		if !ok {
			return nil, fmt.Errorf("encoding observation %d", i)
		}
		x[i] = row
	}
	if len(x) < design.Width() {
		return nil, fmt.Errorf("%w: %d observations for %d parameters", ErrSingular, len(x), design.Width())
	}

	params, iterations, deviance, err := FitBinomial(x, y, cfg)
	if err != nil {
		return nil, err
	}

	return &Model{
		Formula:    Formula(response, predictors),
		Design:     design,
		Params:     params,
		Iterations: iterations,
		Deviance:   deviance,
		NObs:       len(x),
	}, nil
}

// Predict returns the fitted probability for one observation, or NaN when
// the observation cannot be encoded
func (m *Model) Predict(fields map[string]any) float64 {
	row, ok := m.Design.Encode(fields)
	if !ok {
		return math.NaN()
	}
	eta := 0.0
	for i, v := range row {
		eta += v * m.Params[i]
	}
	return Logistic(eta)
}

// Coefficients pairs each design column with its estimate
func (m *Model) Coefficients() map[string]float64 {
	out := make(map[string]float64, len(m.Params))
	for i, name := range m.Design.ColumnNames() {
		out[name] = m.Params[i]
	}
	return out
}

func hasAll(fields map[string]any, names []string) bool {
	for _, n := range names {
		v, ok := fields[n]
		if !ok || v == nil {
			return false
		}
		if f, isFloat := v.(float64); isFloat && math.IsNaN(f) {
			return false
		}
	}
	return true
}
