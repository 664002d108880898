package importer

import (
	"errors"
	"strings"

	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	"github.com/tigerroll/statreg/pkg/batch/engine/mapper"
	"github.com/tigerroll/statreg/pkg/batch/support/util/exception"
)

// Stage tells where a record left the pipeline.
type Stage int

const (
	// StageOK is a record that passed every stage (possibly with warnings).
	StageOK Stage = iota
	// StageMappingError is a record the mapper rejected.
	StageMappingError
	// StageValidationError is a record with error-severity findings or an analysis fault.
	StageValidationError
	// StageSaveError is a record the store refused.
	StageSaveError
)

func (s Stage) String() string {
	switch s {
	case StageMappingError:
		return "mapping"
	case StageValidationError:
		return "validation"
	case StageSaveError:
		return "save"
	}
	return "ok"
}

// StageResult is the typed outcome of one record.
type StageResult struct {
	Stage    Stage
	Draft    *model.Draft
	Analysis model.AnalysisResult
	// Gated is set when the priority prevented the save.
	Gated bool
	RegID *uint64
	Err   error
}

// Status derives the upload log status.
func (r StageResult) Status() model.LogStatus {
	switch {
	case r.Stage != StageOK:
		return model.LogStatusError
	case r.Gated || r.Analysis.Severity == model.SeverityWarning:
		return model.LogStatusWarning
	}
	return model.LogStatusDone
}

// Note is the text stored with the log entry.
func (r StageResult) Note() string {
	switch {
	case r.Err != nil:
		return exception.ExtractErrorMessage(r.Err)
	case r.Gated:
		notes := append([]string{string(exception.CodeNotSavedByPriority)}, r.Analysis.Codes...)
		return strings.Join(notes, ", ")
	}
	return strings.Join(r.Analysis.Codes, ", ")
}

// Code is the first code describing a failed or warned record, "" for Done.
func (r StageResult) Code() string {
	switch {
	case r.Err != nil:
		return string(exception.CodeOf(r.Err))
	case r.Gated:
		return string(exception.CodeNotSavedByPriority)
	case len(r.Analysis.Codes) > 0:
		return r.Analysis.Codes[0]
	}
	return ""
}

// FieldErrors returns the per-field codes to store with the entry.
func (r StageResult) FieldErrors() map[string][]string {
	var me *mapper.Error
	if errors.As(r.Err, &me) {
		return me.Fields
	}
	if len(r.Analysis.Errors) > 0 {
		return r.Analysis.Errors
	}
	return nil
}
