// Package mapper turns parsed records into entity drafts according to a job's
// field mapping, and resolves whether each draft creates or updates a unit.
package mapper

import (
	"context"
	"fmt"
	"strings"

	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/statreg/pkg/batch/core/domain/repository"
	"github.com/tigerroll/statreg/pkg/batch/support/util/exception"
)

const moduleName = "mapper"

// Error is a record-level mapping failure. Fields lists the codes raised per
// target field; the embedded BatchError carries the first one.
type Error struct {
	*exception.BatchError
	Fields map[string][]string
}

// Unwrap exposes the BatchError to errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.BatchError }

func newError(code exception.Code, message string, cause error, fields map[string][]string) *Error {
	return &Error{
		BatchError: exception.NewRecordError(moduleName, code, message, cause),
		Fields:     fields,
	}
}

type binding struct {
	source string
	spec   model.FieldSpec
}

// Mapper applies one validated mapping. It is built once per job.
type Mapper struct {
	unitType model.UnitType
	allowed  model.AllowedOperation
	bindings []binding
	units    repository.UnitRepository
}

// New validates mapping against model.UnitSchema. An unknown or repeated target,
// a missing externalId target, an unknown unit type or operation is a job-level
// InvalidMapping error.
func New(mapping model.Mapping, unitType model.UnitType, allowed model.AllowedOperation, units repository.UnitRepository) (*Mapper, error) {
	if !unitType.Valid() {
		return nil, invalidMapping(fmt.Sprintf("unknown unit type %q", unitType))
	}
	if !allowed.CanCreate() && !allowed.CanAlter() {
		return nil, invalidMapping(fmt.Sprintf("unknown allowed operation %q", allowed))
	}
	bindings := make([]binding, 0, len(mapping))
	seen := make(map[string]string, len(mapping))
	for _, pair := range mapping {
		spec, ok := model.UnitSchema.Lookup(pair.Target)
		if !ok {
			return nil, invalidMapping(fmt.Sprintf("unknown target field %q (source %q)", pair.Target, pair.Source))
		}
		if prev, dup := seen[pair.Target]; dup {
			return nil, invalidMapping(fmt.Sprintf("target field %q is mapped from both %q and %q", pair.Target, prev, pair.Source))
		}
		seen[pair.Target] = pair.Source
		bindings = append(bindings, binding{source: pair.Source, spec: spec})
	}
	if _, ok := seen[model.FieldExternalID]; !ok {
		return nil, invalidMapping(fmt.Sprintf("no source column is mapped to %s", model.FieldExternalID))
	}
	return &Mapper{unitType: unitType, allowed: allowed, bindings: bindings, units: units}, nil
}

// NewForJob is New with the job's settings.
func NewForJob(job *model.Job, units repository.UnitRepository) (*Mapper, error) {
	return New(job.Mapping, job.UnitType, job.AllowedOperations, units)
}

func invalidMapping(message string) error {
	return exception.NewJobError(moduleName, exception.CodeInvalidMapping, message, nil)
}

// Targets returns the mapped target fields in mapping order.
func (m *Mapper) Targets() []string {
	out := make([]string, len(m.bindings))
	for i, b := range m.bindings {
		out[i] = b.spec.Name
	}
	return out
}

// Map builds the draft of one record. Blank and absent source values leave the
// target field out of the draft, so an update keeps the stored value. Every
// returned error is record-level.
func (m *Mapper) Map(ctx context.Context, rec model.Record) (*model.Draft, error) {
	values := make(map[string]any, len(m.bindings))
	var (
		fieldErrs map[string][]string
		first     error
		firstCode exception.Code
	)
	for _, b := range m.bindings {
		raw, ok := rec.Get(b.source)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		v, err := b.spec.Coerce(raw)
		if err != nil {
			code := exception.FieldCode(b.spec.Name, string(exception.CodeInvalidValue))
			if fieldErrs == nil {
				fieldErrs = map[string][]string{}
				first, firstCode = err, code
			}
			fieldErrs[b.spec.Name] = append(fieldErrs[b.spec.Name], string(code))
			continue
		}
		values[b.spec.Name] = v
	}

	externalID, _ := values[model.FieldExternalID].(string)
	if externalID == "" && fieldErrs == nil {
		return nil, newError(exception.CodeExternalIDRequired, fmt.Sprintf("record %d has no %s", rec.Position, model.FieldExternalID), nil,
			map[string][]string{model.FieldExternalID: {string(exception.CodeExternalIDRequired)}})
	}
	if fieldErrs != nil {
		return nil, newError(firstCode, fmt.Sprintf("record %d has invalid values", rec.Position), first, fieldErrs)
	}

	existing, err := m.units.FindByExternalID(ctx, m.unitType, externalID)
	if err != nil {
		return nil, newError(exception.CodeUnitLookupFailed, fmt.Sprintf("failed to look up %s %s", m.unitType, externalID), err, nil)
	}
	switch {
	case existing != nil && !m.allowed.CanAlter():
		return nil, newError(exception.CodeUnitAlreadyExists, fmt.Sprintf("%s %s already exists", m.unitType, externalID), nil,
			map[string][]string{model.FieldExternalID: {string(exception.CodeUnitAlreadyExists)}})
	case existing == nil && !m.allowed.CanCreate():
		return nil, newError(exception.CodeUnitNotFound, fmt.Sprintf("%s %s does not exist", m.unitType, externalID), nil,
			map[string][]string{model.FieldExternalID: {string(exception.CodeUnitNotFound)}})
	}

	return &model.Draft{
		UnitType:   m.unitType,
		Position:   rec.Position,
		ExternalID: externalID,
		Values:     values,
		Raw:        rec,
		Existing:   existing,
	}, nil
}
