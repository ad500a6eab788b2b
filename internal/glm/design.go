package glm

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Kind distinguishes how a predictor enters the design matrix
type Kind int

const (
	// Numeric predictors enter as a single column
	Numeric Kind = iota
	// Categorical predictors use treatment coding against the first sorted level
	Categorical
)

// InterceptName is the label of the constant column
const InterceptName = "Intercept"

// Variable describes one predictor of the model formula
type Variable struct {
	Name   string
	Kind   Kind
	Levels []string
}

// Design encodes field maps into rows of the design matrix
type Design struct {
	Variables []Variable
}

// NewDesign infers variable kinds from the given rows. Rows must already be
// complete cases for names. A variable whose values mix numbers and
// strings, or that takes a single value, is rejected.
func NewDesign(names []string, rows []map[string]any) (*Design, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("no predictors in formula")
	}

	d := &Design{Variables: make([]Variable, 0, len(names))}
	for _, name := range names {
		v, err := inferVariable(name, rows)
		if err != nil {
			return nil, err
		}
		d.Variables = append(d.Variables, v)
	}
	return d, nil
}

func inferVariable(name string, rows []map[string]any) (Variable, error) {
	var numeric, text int
	levels := map[string]bool{}
	lo, hi := math.Inf(1), math.Inf(-1)

	for _, row := range rows {
		raw := row[name]
		if f, ok := ToFloat(raw); ok {
			numeric++
			lo = math.Min(lo, f)
			hi = math.Max(hi, f)
			continue
		}
		if s, ok := raw.(string); ok {
			text++
			levels[s] = true
			continue
		}
		return Variable{}, fmt.Errorf("predictor %q has unsupported value %v", name, raw)
	}

	switch {
	case numeric > 0 && text > 0:
		return Variable{}, fmt.Errorf("predictor %q mixes numeric and text values", name)
	case text > 0:
		if len(levels) < 2 {
			return Variable{}, fmt.Errorf("predictor %q is constant", name)
		}
		sorted := make([]string, 0, len(levels))
		for l := range levels {
			sorted = append(sorted, l)
		}
		sort.Strings(sorted)
		return Variable{Name: name, Kind: Categorical, Levels: sorted}, nil
	case numeric > 0:
		if lo == hi {
			return Variable{}, fmt.Errorf("predictor %q is constant", name)
		}
		return Variable{Name: name, Kind: Numeric}, nil
	default:
		return Variable{}, fmt.Errorf("predictor %q has no values", name)
	}
}

// Width is the number of design matrix columns including the intercept
func (d *Design) Width() int {
	w := 1
	for _, v := range d.Variables {
		if v.Kind == Categorical {
			w += len(v.Levels) - 1
		} else {
			w++
		}
	}
	return w
}

// ColumnNames labels the design matrix columns the way formula tools do
func (d *Design) ColumnNames() []string {
	names := []string{InterceptName}
	for _, v := range d.Variables {
		if v.Kind == Categorical {
			for _, l := range v.Levels[1:] {
				names = append(names, fmt.Sprintf("%s[T.%s]", v.Name, l))
			}
			continue
		}
		names = append(names, v.Name)
	}
	return names
}

// Encode builds one design row. It reports false when a predictor is
// missing, has the wrong type or holds a level unseen during fitting.
func (d *Design) Encode(fields map[string]any) ([]float64, bool) {
	row := make([]float64, 0, d.Width())
	row = append(row, 1)

	for _, v := range d.Variables {
		raw := fields[v.Name]
		if v.Kind == Numeric {
			f, ok := ToFloat(raw)
			if !ok {
				return nil, false
			}
			row = append(row, f)
			continue
		}

		s, ok := raw.(string)
		if !ok {
			return nil, false
		}
		idx := sort.SearchStrings(v.Levels, s)
		if idx == len(v.Levels) || v.Levels[idx] != s {
			return nil, false
		}
		for i := 1; i < len(v.Levels); i++ {
			if i == idx {
				row = append(row, 1)
			} else {
				row = append(row, 0)
			}
		}
	}
	return row, true
}

// Formula renders the model formula for logs
func Formula(response string, names []string) string {
	return response + " ~ " + strings.Join(names, " + ")
}

// ToFloat converts numeric and boolean values to float64
func ToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x)
	case float32:
		return float64(x), !math.IsNaN(float64(x))
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
