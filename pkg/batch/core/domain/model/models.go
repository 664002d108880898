// Package model defines the domain objects of the import pipeline: queued jobs,
// parsed records, entity drafts, analysis results, upload log entries and the
// statistical units they end up in.
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of an import job.
type JobStatus string

const (
	// JobStatusPending is a job waiting in the queue.
	JobStatusPending JobStatus = "Pending"
	// JobStatusInProgress is a job claimed by a worker.
	JobStatusInProgress JobStatus = "InProgress"
	// JobStatusDataLoadCompleted is a job whose records were all loaded without issues.
	JobStatusDataLoadCompleted JobStatus = "DataLoadCompleted"
	// JobStatusDataLoadCompletedPartially is a finished job with at least one Warning or Error entry.
	JobStatusDataLoadCompletedPartially JobStatus = "DataLoadCompletedPartially"
	// JobStatusDataLoadFailed is a job that failed as a whole (unreadable, empty or malformed upload).
	JobStatusDataLoadFailed JobStatus = "DataLoadFailed"
)

// IsTerminal reports whether the status is final.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusDataLoadCompleted, JobStatusDataLoadCompletedPartially, JobStatusDataLoadFailed:
		return true
	}
	return false
}

// UnitType is the kind of statistical unit a job loads.
type UnitType string

const (
	UnitTypeLegalUnit       UnitType = "LegalUnit"
	UnitTypeLocalUnit       UnitType = "LocalUnit"
	UnitTypeEnterpriseUnit  UnitType = "EnterpriseUnit"
	UnitTypeEnterpriseGroup UnitType = "EnterpriseGroup"
)

// Valid reports whether t is a known unit type.
func (t UnitType) Valid() bool {
	switch t {
	case UnitTypeLegalUnit, UnitTypeLocalUnit, UnitTypeEnterpriseUnit, UnitTypeEnterpriseGroup:
		return true
	}
	return false
}

// AllowedOperation restricts what a job may do with the units it touches.
type AllowedOperation string

const (
	OperationCreate         AllowedOperation = "Create"
	OperationAlter          AllowedOperation = "Alter"
	OperationCreateAndAlter AllowedOperation = "CreateAndAlter"
)

// CanCreate reports whether new units may be inserted.
func (o AllowedOperation) CanCreate() bool {
	return o == OperationCreate || o == OperationCreateAndAlter
}

// CanAlter reports whether existing units may be updated.
func (o AllowedOperation) CanAlter() bool {
	return o == OperationAlter || o == OperationCreateAndAlter
}

// Priority expresses how far the data source is trusted to overwrite the register.
type Priority string

const (
	// PriorityNotTrusted never writes; records are only analyzed and logged.
	PriorityNotTrusted Priority = "NotTrusted"
	// PriorityOk writes new units but never overwrites existing ones.
	PriorityOk Priority = "Ok"
	// PriorityTrusted writes new units and overwrites existing ones.
	PriorityTrusted Priority = "Trusted"
)

// FileFormat is the physical format of an uploaded file.
type FileFormat string

const (
	FormatCSV  FileFormat = "csv"
	FormatXML  FileFormat = "xml"
	FormatXLSX FileFormat = "xlsx"
)

// FormatFromFileName derives the format from the file extension (case-insensitive).
// It returns false for unsupported extensions.
func FormatFromFileName(name string) (FileFormat, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, true
	case ".xml":
		return FormatXML, true
	case ".xlsx":
		return FormatXLSX, true
	}
	return "", false
}

// MappingPair maps one source column onto one target field.
type MappingPair struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Mapping is the ordered field-mapping declaration of a job.
type Mapping []MappingPair

// ParseMapping builds a Mapping from the compact "source:target,source:target" form.
func ParseMapping(s string) (Mapping, error) {
	var m Mapping
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		source, target, ok := strings.Cut(part, ":")
		source, target = strings.TrimSpace(source), strings.TrimSpace(target)
		if !ok || source == "" || target == "" {
			return nil, fmt.Errorf("invalid mapping pair %q, expected source:target", part)
		}
		m = append(m, MappingPair{Source: source, Target: target})
	}
	return m, nil
}

// String renders the mapping in the compact form accepted by ParseMapping.
func (m Mapping) String() string {
	parts := make([]string, len(m))
	for i, p := range m {
		parts[i] = p.Source + ":" + p.Target
	}
	return strings.Join(parts, ",")
}

// SourceFor returns the source column mapped onto target.
func (m Mapping) SourceFor(target string) (string, bool) {
	for _, p := range m {
		if p.Target == target {
			return p.Source, true
		}
	}
	return "", false
}

// Value implements driver.Valuer, storing the mapping as JSON text.
func (m Mapping) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner for the JSON text written by Value.
func (m *Mapping) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for Mapping: %T", value)
	}
	if len(b) == 0 {
		*m = nil
		return nil
	}
	if err := json.Unmarshal(b, m); err != nil {
		return fmt.Errorf("failed to unmarshal Mapping JSON: %w", err)
	}
	return nil
}

// Job is one queued file-import request.
type Job struct {
	ID                string           `gorm:"primaryKey;size:36"`
	FileName          string           `gorm:"size:255;not null"`
	FilePath          string           `gorm:"size:1024;not null"`
	StorageRef        string           `gorm:"size:64"`
	UnitType          UnitType         `gorm:"size:32;not null"`
	Mapping           Mapping          `gorm:"type:text;not null"`
	CsvDelimiter      string           `gorm:"size:4"`
	SkipLines         int              `gorm:"not null;default:0"`
	AllowedOperations AllowedOperation `gorm:"size:32;not null"`
	Priority          Priority         `gorm:"size:32;not null"`
	Status            JobStatus        `gorm:"size:32;not null;index:ix_import_jobs_status_enqueued,priority:1"`
	UserID            string           `gorm:"size:64"`
	Note              string           `gorm:"type:text"`
	EnqueuedAt        time.Time        `gorm:"not null;index:ix_import_jobs_status_enqueued,priority:2"`
	StartedAt         *time.Time
	EndedAt           *time.Time
}

// TableName pins the table name used by migrations.
func (Job) TableName() string { return "import_jobs" }

// Format returns the file format derived from FileName.
func (j *Job) Format() (FileFormat, bool) {
	return FormatFromFileName(j.FileName)
}

// Delimiter returns the CSV delimiter, defaulting to a comma.
func (j *Job) Delimiter() rune {
	if j.CsvDelimiter == "" {
		return ','
	}
	if j.CsvDelimiter == `\t` {
		return '\t'
	}
	return []rune(j.CsvDelimiter)[0]
}

func (j *Job) String() string {
	return fmt.Sprintf("Job{ID: %s, File: %s, UnitType: %s, Status: %s}", j.ID, j.FileName, j.UnitType, j.Status)
}
