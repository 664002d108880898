package analysis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/statreg/pkg/batch/core/config"
	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	"github.com/tigerroll/statreg/pkg/batch/engine/analysis"
	"github.com/tigerroll/statreg/pkg/batch/support/util/exception"
	"github.com/tigerroll/statreg/pkg/batch/test"
)

type funcRule struct {
	name string
	fn   func() (analysis.Findings, error)
}

func (r funcRule) Name() string { return r.name }
func (r funcRule) Check(context.Context, *model.Draft, analysis.Options) (analysis.Findings, error) {
	return r.fn()
}

func draft(values map[string]any) *model.Draft {
	return &model.Draft{UnitType: model.UnitTypeLegalUnit, Position: 1, ExternalID: "1", Values: values}
}

func TestEngine_MergesFindingsInOrder(t *testing.T) {
	warn := funcRule{"warn", func() (analysis.Findings, error) {
		return analysis.Findings{
			Violations: []analysis.Violation{{Field: "email", Code: "EmailIsInvalid", Severity: model.SeverityWarning}},
			Summary:    []string{"checked email"},
		}, nil
	}}
	fail := funcRule{"fail", func() (analysis.Findings, error) {
		return analysis.Findings{Violations: []analysis.Violation{{Field: "name", Code: "NameIsRequired", Severity: model.SeverityError}}}, nil
	}}

	e := analysis.NewEngine(warn, fail)
	assert.Equal(t, []string{"warn", "fail"}, e.Rules())

	res, err := e.Analyze(context.Background(), draft(nil), analysis.Options{})
	require.NoError(t, err)
	assert.Equal(t, model.SeverityError, res.Severity)
	assert.Equal(t, []string{"EmailIsInvalid", "NameIsRequired"}, res.Codes)
	assert.Equal(t, map[string][]string{"email": {"EmailIsInvalid"}, "name": {"NameIsRequired"}}, res.Errors)
	assert.Equal(t, []string{"checked email"}, res.Summary)

	res, err = analysis.NewEngine().Analyze(context.Background(), draft(nil), analysis.Options{})
	require.NoError(t, err)
	assert.Equal(t, model.SeverityNone, res.Severity)
}

func TestNewEngineFromGroup_OrdersRules(t *testing.T) {
	none := func() (analysis.Findings, error) { return analysis.Findings{}, nil }
	group := []analysis.Rule{
		funcRule{"zeta", none},
		funcRule{"duplicates", none},
		funcRule{"alpha", none},
		funcRule{"mandatory_fields", none},
	}

	e := analysis.NewEngineFromGroup(analysis.EngineParams{Rules: group})

	assert.Equal(t, []string{"mandatory_fields", "duplicates", "alpha", "zeta"}, e.Rules())
	assert.Equal(t, "zeta", group[0].Name(), "the group slice is left as provided")
}

func TestEngine_RuleFaults(t *testing.T) {
	boom := funcRule{"boom", func() (analysis.Findings, error) { panic("index out of range") }}
	broken := funcRule{"broken", func() (analysis.Findings, error) { return analysis.Findings{}, errors.New("lookup failed") }}

	for _, rule := range []analysis.Rule{boom, broken} {
		_, err := analysis.NewEngine(rule).Analyze(context.Background(), draft(nil), analysis.Options{})
		require.Error(t, err, rule.Name())
		assert.Equal(t, exception.CodeAnalysisFault, exception.CodeOf(err))
		assert.True(t, exception.IsSkippable(err))
		assert.Contains(t, err.Error(), rule.Name())
	}
}

func TestMandatoryFieldsRule(t *testing.T) {
	rule, err := analysis.NewMandatoryFieldsRule([]string{"name", "taxRegId"})
	require.NoError(t, err)

	f, err := rule.Check(context.Background(), draft(map[string]any{"externalId": "1", "taxRegId": "T"}), analysis.Options{})
	require.NoError(t, err)
	require.Len(t, f.Violations, 1)
	assert.Equal(t, analysis.Violation{Field: "name", Code: "NameIsRequired", Severity: model.SeverityError}, f.Violations[0])

	update := draft(map[string]any{"taxRegId": "T"})
	update.Existing = &model.StatUnit{UnitFields: model.UnitFields{Name: "Stored"}}
	f, err = rule.Check(context.Background(), update, analysis.Options{})
	require.NoError(t, err)
	assert.Empty(t, f.Violations)

	_, err = analysis.NewMandatoryFieldsRule([]string{"colour"})
	assert.Error(t, err)
}

func TestFieldFormatRule(t *testing.T) {
	rule, err := analysis.NewFieldFormatRule(map[string]string{"email": "email", "activityCode": "numeric,len=4"}, model.SeverityWarning)
	require.NoError(t, err)

	f, err := rule.Check(context.Background(), draft(map[string]any{"email": "not-an-email", "activityCode": "0111"}), analysis.Options{})
	require.NoError(t, err)
	require.Len(t, f.Violations, 1)
	assert.Equal(t, "EmailIsInvalid", f.Violations[0].Code)
	assert.Equal(t, model.SeverityWarning, f.Violations[0].Severity)

	f, err = rule.Check(context.Background(), draft(map[string]any{"email": "info@acme.kg"}), analysis.Options{})
	require.NoError(t, err)
	assert.Empty(t, f.Violations)

	_, err = analysis.NewFieldFormatRule(map[string]string{"email": "no_such_tag"}, model.SeverityError)
	assert.Error(t, err)
}

func TestDateConsistencyRule(t *testing.T) {
	reg := time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC)
	f, err := analysis.DateConsistencyRule{}.Check(context.Background(),
		draft(map[string]any{"registrationDate": reg, "liquidationDate": reg.AddDate(0, 0, -1)}), analysis.Options{})
	require.NoError(t, err)
	require.Len(t, f.Violations, 1)
	assert.Equal(t, analysis.CodeLiquidationBeforeRegistration, f.Violations[0].Code)

	f, err = analysis.DateConsistencyRule{}.Check(context.Background(),
		draft(map[string]any{"registrationDate": reg}), analysis.Options{})
	require.NoError(t, err)
	assert.Empty(t, f.Violations)
}

func TestDuplicateRule(t *testing.T) {
	units := &test.MockUnitRepository{}
	units.On("FindDuplicates", mock.Anything, model.UnitTypeLegalUnit, "1", "Acme", "").
		Return([]model.StatUnit{{RegID: 4}, {RegID: 7}}, nil).Once()
	units.On("FindDuplicates", mock.Anything, model.UnitTypeLegalUnit, "1", "Beta", "").
		Return(nil, nil).Once()

	rule := analysis.NewDuplicateRule(units)
	f, err := rule.Check(context.Background(), draft(map[string]any{"name": "Acme"}), analysis.Options{})
	require.NoError(t, err)
	require.Len(t, f.Violations, 1)
	assert.Equal(t, model.SeverityWarning, f.Violations[0].Severity)
	assert.Equal(t, []string{"DuplicatesFound: 4,7"}, f.Summary)

	f, err = rule.Check(context.Background(), draft(map[string]any{"name": "Beta"}), analysis.Options{})
	require.NoError(t, err)
	assert.Empty(t, f.Violations)
	units.AssertExpectations(t)
}

func TestNewBuiltinRules(t *testing.T) {
	cfg := config.NewConfig().Statreg.Analysis
	cfg.FieldFormats = map[string]string{"email": "email"}
	cfg.DateConsistency = true
	cfg.DuplicateCheck = true

	rules, err := analysis.NewBuiltinRules(&cfg, &test.MockUnitRepository{})
	require.NoError(t, err)
	assert.Equal(t, []string{"mandatory_fields", "field_format", "date_consistency", "duplicates"}, analysis.NewEngine(rules...).Rules())

	cfg.MandatoryFields = []string{"nope"}
	_, err = analysis.NewBuiltinRules(&cfg, &test.MockUnitRepository{})
	assert.Error(t, err)
}
