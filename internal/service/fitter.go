package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/modelled-needs-server/internal/domain"
	"github.com/modelled-needs-server/internal/glm"
)

// ResponseVar is the synthetic response column
const ResponseVar = "predict_var"

// Secondary area fields compared when selecting training rows
const (
	NetworkField = "pcn"
	CCGField     = "ccg"
)

// trainAreaAliases rewrites known spelling variants of area names
var trainAreaAliases = strings.NewReplacer(
	"Fylde and Wyre", "Fylde & Wyre",
	"F and W", "F&W",
	"Ansdell and St Annes", "Ansdell & St Annes",
)

// CanonicalAreaName applies the known alias corrections to an area name
func CanonicalAreaName(name string) string {
	return trainAreaAliases.Replace(name)
}

// ModelFitter selects the training subset and fits the logistic model
type ModelFitter struct {
	logger *logrus.Logger
	config *glm.Config
}

// NewModelFitter creates a new model fitter
func NewModelFitter(logger *logrus.Logger, config *glm.Config) *ModelFitter {
	if config == nil {
		config = glm.DefaultConfig()
	}
	return &ModelFitter{
		logger: logger,
		config: config,
	}
}

// TrainingRecords returns the records the model is trained on. Training
// areas may be named at a coarser or finer level than the output areas,
// so which fields are compared depends on the area level.
func TrainingRecords(table *domain.FormattedTable, trainAreas []string, areaLevel string) []domain.FormattedRecord {
	if len(trainAreas) == 0 {
		return table.Records
	}

	wanted := make(map[string]bool, len(trainAreas))
	for _, a := range trainAreas {
		if a != "" {
			wanted[CanonicalAreaName(a)] = true
		}
	}

	var out []domain.FormattedRecord
	for _, rec := range table.Records {
		var first, second string
		switch areaLevel {
		case NetworkField:
			first, second = rec.AreaVar, fieldString(rec.Fields, CCGField)
		case CCGField:
			first, second = fieldString(rec.Fields, NetworkField), rec.AreaVar
		default:
			first, second = fieldString(rec.Fields, NetworkField), fieldString(rec.Fields, CCGField)
		}
		if wanted[first] || wanted[second] {
			out = append(out, rec)
		}
	}
	return out
}

// Fit trains predict_var ~ predictors on the selected training records
func (f *ModelFitter) Fit(table *domain.FormattedTable, trainAreas []string, areaLevel string, predictors []string) (*glm.Model, error) {
	training := TrainingRecords(table, trainAreas, areaLevel)

	f.logger.WithFields(logrus.Fields{
		"formula":       glm.Formula(ResponseVar, predictors),
		"training_rows": len(training),
		"total_rows":    table.Len(),
		"train_areas":   len(trainAreas),
	}).Info("Fitting logistic model")

	if len(training) == 0 {
		return nil, fmt.Errorf("training subset is empty: %w", domain.ErrModelFit)
	}

	obs := make([]glm.Observation, len(training))
	for i, rec := range training {
		obs[i] = glm.Observation{Response: rec.PredictVar, Fields: rec.Fields}
	}

	model, err := glm.FitLogistic(ResponseVar, predictors, obs, f.config)
	if err != nil {
		if errors.Is(err, domain.ErrModelFit) {
			return nil, err
		}
		return nil, fmt.Errorf("fitting %s: %v: %w", glm.Formula(ResponseVar, predictors), err, domain.ErrModelFit)
	}

	f.logger.WithFields(logrus.Fields{
		"iterations": model.Iterations,
		"deviance":   model.Deviance,
		"n_obs":      model.NObs,
	}).Debug("Logistic model converged")

	return model, nil
}

func fieldString(fields map[string]any, name string) string {
	v, ok := fields[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
