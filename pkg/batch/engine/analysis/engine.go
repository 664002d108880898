// Package analysis runs the configured rule set against entity drafts.
package analysis

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/fx"

	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	"github.com/tigerroll/statreg/pkg/batch/support/util/exception"
	"github.com/tigerroll/statreg/pkg/batch/support/util/logger"
)

const moduleName = "analysis"

// RuleGroup is the Fx value group rules are registered in.
const RuleGroup = "analysis_rules"

// Violation is one problem a rule found on a draft.
type Violation struct {
	Field    string
	Code     string
	Severity model.Severity
}

// Findings is what a rule reports for one draft.
type Findings struct {
	Violations []Violation
	Summary    []string
}

// Options are the per-job settings passed to every rule.
type Options struct {
	JobID string
	// MappedFields are the target fields the job's mapping declares.
	MappedFields []string
}

// Rule checks one aspect of a draft. A returned error is an engine fault, not a
// finding.
type Rule interface {
	Name() string
	Check(ctx context.Context, draft *model.Draft, opts Options) (Findings, error)
}

// EngineParams defines the dependencies of NewEngineFromGroup.
type EngineParams struct {
	fx.In
	Rules []Rule `group:"analysis_rules"`
}

// Engine applies rules in the order it was given them.
type Engine struct {
	rules []Rule
}

// NewEngine creates an engine over rules.
func NewEngine(rules ...Rule) *Engine {
	return &Engine{rules: rules}
}

// builtinOrder ranks the built-in rules ahead of any other group member.
var builtinOrder = map[string]int{
	"mandatory_fields": 0,
	"field_format":     1,
	"date_consistency": 2,
	"duplicates":       3,
}

// NewEngineFromGroup is the Fx constructor collecting the registered rules.
// Fx does not order a value group, so the rules are sorted: built-ins first in
// their fixed order, then the others by name.
func NewEngineFromGroup(p EngineParams) *Engine {
	rules := append([]Rule(nil), p.Rules...)
	rank := func(r Rule) int {
		if i, ok := builtinOrder[r.Name()]; ok {
			return i
		}
		return len(builtinOrder)
	}
	sort.SliceStable(rules, func(i, j int) bool {
		ri, rj := rank(rules[i]), rank(rules[j])
		if ri != rj {
			return ri < rj
		}
		return rules[i].Name() < rules[j].Name()
	})
	for _, r := range rules {
		logger.Debugf("Analysis rule registered: %s", r.Name())
	}
	return NewEngine(rules...)
}

// Rules returns the names of the registered rules.
func (e *Engine) Rules() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name()
	}
	return names
}

// Analyze runs every rule and merges the findings. The result's severity is the
// highest severity found. A rule error or panic stops the analysis and is
// returned as a record-level AnalysisFault.
func (e *Engine) Analyze(ctx context.Context, draft *model.Draft, opts Options) (model.AnalysisResult, error) {
	result := model.AnalysisResult{Errors: map[string][]string{}}
	for _, rule := range e.rules {
		findings, err := e.check(ctx, rule, draft, opts)
		if err != nil {
			return result, exception.NewRecordError(moduleName, exception.CodeAnalysisFault,
				fmt.Sprintf("rule %s failed on record %d", rule.Name(), draft.Position), err)
		}
		for _, v := range findings.Violations {
			result.Errors[v.Field] = append(result.Errors[v.Field], v.Code)
			result.Codes = append(result.Codes, v.Code)
			if v.Severity > result.Severity {
				result.Severity = v.Severity
			}
		}
		result.Summary = append(result.Summary, findings.Summary...)
	}
	return result, nil
}

func (e *Engine) check(ctx context.Context, rule Rule, draft *model.Draft, opts Options) (f Findings, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return rule.Check(ctx, draft, opts)
}

// EffectiveValue returns the value a field will have once the draft is saved:
// the draft's value when mapped, otherwise the stored unit's.
func EffectiveValue(draft *model.Draft, field string) any {
	if v, ok := draft.Values[field]; ok {
		return v
	}
	if draft.Existing != nil {
		if spec, ok := model.UnitSchema.Lookup(field); ok {
			return spec.Get(draft.Existing)
		}
	}
	return nil
}

// EffectiveString is EffectiveValue rendered as text.
func EffectiveString(draft *model.Draft, field string) string {
	return model.FormatValue(EffectiveValue(draft, field))
}
