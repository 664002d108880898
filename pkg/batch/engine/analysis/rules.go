package analysis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/statreg/pkg/batch/core/domain/repository"
	"github.com/tigerroll/statreg/pkg/batch/support/util/exception"
)

// Codes raised by the built-in rules besides the field-scoped ones.
const (
	CodeLiquidationBeforeRegistration = "LiquidationDateBeforeRegistrationDate"
	CodePotentialDuplicate            = "PotentialDuplicate"
	SummaryDuplicatesFound            = "DuplicatesFound"
)

func checkFields(fields []string) error {
	for _, f := range fields {
		if _, ok := model.UnitSchema.Lookup(f); !ok {
			return fmt.Errorf("unknown field %q", f)
		}
	}
	return nil
}

// MandatoryFieldsRule requires non-blank values. A field kept from the stored
// unit counts as present.
type MandatoryFieldsRule struct {
	fields []string
}

// NewMandatoryFieldsRule validates field names against the unit schema.
func NewMandatoryFieldsRule(fields []string) (*MandatoryFieldsRule, error) {
	if err := checkFields(fields); err != nil {
		return nil, fmt.Errorf("mandatory fields: %w", err)
	}
	return &MandatoryFieldsRule{fields: fields}, nil
}

func (r *MandatoryFieldsRule) Name() string { return "mandatory_fields" }

func (r *MandatoryFieldsRule) Check(_ context.Context, draft *model.Draft, _ Options) (Findings, error) {
	var f Findings
	for _, field := range r.fields {
		if strings.TrimSpace(EffectiveString(draft, field)) == "" {
			f.Violations = append(f.Violations, Violation{
				Field:    field,
				Code:     string(exception.FieldCode(field, "IsRequired")),
				Severity: model.SeverityError,
			})
		}
	}
	return f, nil
}

// FieldFormatRule checks mapped values against validator tags, e.g. "email".
type FieldFormatRule struct {
	validate *validator.Validate
	formats  map[string]string
	fields   []string
	severity model.Severity
}

// NewFieldFormatRule compiles formats once; a bad tag is reported here rather
// than at analysis time.
func NewFieldFormatRule(formats map[string]string, severity model.Severity) (rule *FieldFormatRule, err error) {
	fields := make([]string, 0, len(formats))
	for f := range formats {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	if err := checkFields(fields); err != nil {
		return nil, fmt.Errorf("field formats: %w", err)
	}

	v := validator.New()
	defer func() {
		if r := recover(); r != nil {
			rule, err = nil, fmt.Errorf("field formats: %v", r)
		}
	}()
	for _, f := range fields {
		_ = v.Var("", formats[f])
	}
	return &FieldFormatRule{validate: v, formats: formats, fields: fields, severity: severity}, nil
}

func (r *FieldFormatRule) Name() string { return "field_format" }

func (r *FieldFormatRule) Check(_ context.Context, draft *model.Draft, _ Options) (Findings, error) {
	var f Findings
	for _, field := range r.fields {
		v, ok := draft.Values[field]
		if !ok || v == nil {
			continue
		}
		if err := r.validate.Var(model.FormatValue(v), r.formats[field]); err != nil {
			f.Violations = append(f.Violations, Violation{
				Field:    field,
				Code:     string(exception.FieldCode(field, "IsInvalid")),
				Severity: r.severity,
			})
		}
	}
	return f, nil
}

// DateConsistencyRule rejects a liquidation date before the registration date.
type DateConsistencyRule struct{}

func (DateConsistencyRule) Name() string { return "date_consistency" }

func (DateConsistencyRule) Check(_ context.Context, draft *model.Draft, _ Options) (Findings, error) {
	reg, okReg := EffectiveValue(draft, "registrationDate").(time.Time)
	liq, okLiq := EffectiveValue(draft, "liquidationDate").(time.Time)
	if okReg && okLiq && liq.Before(reg) {
		return Findings{Violations: []Violation{{
			Field:    "liquidationDate",
			Code:     CodeLiquidationBeforeRegistration,
			Severity: model.SeverityError,
		}}}, nil
	}
	return Findings{}, nil
}

// DuplicateRule warns about other units of the same type sharing the name or
// the tax registration id.
type DuplicateRule struct {
	units repository.UnitRepository
}

// NewDuplicateRule creates the rule on the unit store.
func NewDuplicateRule(units repository.UnitRepository) *DuplicateRule {
	return &DuplicateRule{units: units}
}

func (r *DuplicateRule) Name() string { return "duplicates" }

func (r *DuplicateRule) Check(ctx context.Context, draft *model.Draft, _ Options) (Findings, error) {
	name := EffectiveString(draft, "name")
	taxRegID := EffectiveString(draft, "taxRegId")
	dups, err := r.units.FindDuplicates(ctx, draft.UnitType, draft.ExternalID, name, taxRegID)
	if err != nil {
		return Findings{}, err
	}
	if len(dups) == 0 {
		return Findings{}, nil
	}
	ids := make([]string, len(dups))
	for i, u := range dups {
		ids[i] = strconv.FormatUint(u.RegID, 10)
	}
	return Findings{
		Violations: []Violation{{Field: "name", Code: CodePotentialDuplicate, Severity: model.SeverityWarning}},
		Summary:    []string{fmt.Sprintf("%s: %s", SummaryDuplicatesFound, strings.Join(ids, ","))},
	}, nil
}
