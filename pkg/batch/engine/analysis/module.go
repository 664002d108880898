package analysis

import (
	"go.uber.org/fx"

	"github.com/tigerroll/statreg/pkg/batch/core/config"
	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/statreg/pkg/batch/core/domain/repository"
)

// NewBuiltinRules builds the configured built-in rules in their fixed order.
func NewBuiltinRules(cfg *config.AnalysisConfig, units repository.UnitRepository) ([]Rule, error) {
	var rules []Rule
	if len(cfg.MandatoryFields) > 0 {
		r, err := NewMandatoryFieldsRule(cfg.MandatoryFields)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	if len(cfg.FieldFormats) > 0 {
		severity := model.SeverityWarning
		if cfg.FormatSeverity == "error" {
			severity = model.SeverityError
		}
		r, err := NewFieldFormatRule(cfg.FieldFormats, severity)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	if cfg.DateConsistency {
		rules = append(rules, DateConsistencyRule{})
	}
	if cfg.DuplicateCheck {
		rules = append(rules, NewDuplicateRule(units))
	}
	return rules, nil
}

// Module registers the built-in rules and provides the Engine. Additional rules
// join by providing a Rule into the "analysis_rules" group.
var Module = fx.Options(
	fx.Provide(fx.Annotate(NewBuiltinRules, fx.ResultTags(`group:"analysis_rules,flatten"`))),
	fx.Provide(NewEngineFromGroup),
)
