// Package lookup translates the human-readable names used in requests into
// the column identifiers of the population dataset.
package lookup

import (
	"fmt"

	"github.com/modelled-needs-server/internal/domain"
)

// Entry maps a full name onto a short column identifier
type Entry struct {
	FullName  string `json:"full_name"`
	ShortName string `json:"short_name"`
}

// Table is an ordered lookup table
type Table []Entry

// Resolution is the outcome of looking up a single predictor name
type Resolution struct {
	Name  string
	ID    string
	Found bool
}

// Resolver resolves condition, area and predictor names
type Resolver struct {
	conditions Table
	areas      Table
	predictors Table
}

// NewResolver creates a resolver over the built-in tables
func NewResolver() *Resolver {
	return NewResolverWithTables(ConditionTable(), AreaTable(), PredictorTable())
}

// NewResolverWithTables creates a resolver over custom tables
func NewResolverWithTables(conditions, areas, predictors Table) *Resolver {
	return &Resolver{
		conditions: conditions,
		areas:      areas,
		predictors: predictors,
	}
}

// Conditions returns the identifiers of every condition whose full name is
// one of names, in table order. When nothing matches the first name is
// returned unchanged so raw column names can be queried directly.
func (r *Resolver) Conditions(names ...string) []string {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if n != "" {
			want[n] = true
		}
	}

	var ids []string
	for _, e := range r.conditions {
		if want[e.FullName] {
			ids = append(ids, e.ShortName)
		}
	}
	if len(ids) == 0 {
		for _, n := range names {
			if n != "" {
				return []string{n}
			}
		}
	}
	return ids
}

// Area returns the identifier of an area level. Area names must resolve to
// exactly one identifier; the first match wins.
func (r *Resolver) Area(name string) (string, error) {
	for _, e := range r.areas {
		if e.FullName == name {
			return e.ShortName, nil
		}
	}
	return "", fmt.Errorf("unknown area level %q: %w", name, domain.ErrLookupMiss)
}

// Predictors resolves every predictor name independently, in request order
func (r *Resolver) Predictors(names []string) []Resolution {
	out := make([]Resolution, 0, len(names))
	for _, n := range names {
		res := Resolution{Name: n}
		for _, e := range r.predictors {
			if e.FullName == n {
				res.ID = e.ShortName
				res.Found = true
				break
			}
		}
		out = append(out, res)
	}
	return out
}

// Tables exposes the configured tables for listing
func (r *Resolver) Tables() map[string]Table {
	return map[string]Table{
		"conditions": r.conditions,
		"areas":      r.areas,
		"predictors": r.predictors,
	}
}
