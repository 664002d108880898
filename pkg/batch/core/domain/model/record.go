package model

import (
	"encoding/json"
	"time"
)

// Field is one named raw value of a record.
type Field struct {
	Name  string
	Value string
}

// Record is one row or element of an uploaded file, in file order.
// Position is 1-based.
type Record struct {
	Position int
	Fields   []Field
}

// Get returns the value of the named field.
func (r Record) Get(name string) (string, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Len returns the number of fields.
func (r Record) Len() int { return len(r.Fields) }

// MarshalJSON renders the record as an ordered JSON object, which is how it is
// kept in upload log entries for later replay.
func (r Record) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, f := range r.Fields {
		if i > 0 {
			buf = append(buf, ',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, k...)
		buf = append(buf, ':')
		buf = append(buf, v...)
	}
	return append(buf, '}'), nil
}

// Draft is a record after field mapping, before analysis and save.
type Draft struct {
	UnitType   UnitType
	Position   int
	ExternalID string
	// Values holds coerced target values keyed by target field name.
	Values map[string]any
	Raw    Record
	// Existing is the stored unit this draft updates; nil for a new unit.
	Existing *StatUnit
}

// IsNew reports whether the draft creates a unit.
func (d *Draft) IsNew() bool { return d.Existing == nil }

// Value returns the coerced value of a target field.
func (d *Draft) Value(target string) (any, bool) {
	v, ok := d.Values[target]
	return v, ok
}

// String returns a target value as text, or "" when absent.
func (d *Draft) String(target string) string {
	v, ok := d.Values[target]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return FormatValue(v)
}

// Severity classifies analysis findings.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return "none"
}

// AnalysisResult is the outcome of running the rule set against one draft.
type AnalysisResult struct {
	// Errors maps a field name to the codes raised against it.
	Errors map[string][]string
	// Codes lists every raised code in the order the rules produced them.
	Codes    []string
	Summary  []string
	Severity Severity
}

// LogStatus is the outcome of one processed record.
type LogStatus string

const (
	LogStatusDone    LogStatus = "Done"
	LogStatusWarning LogStatus = "Warning"
	LogStatusError   LogStatus = "Error"
)

// UploadLogEntry is the durable, append-only outcome of one record.
type UploadLogEntry struct {
	ID            string    `gorm:"primaryKey;size:36"`
	JobID         string    `gorm:"size:36;not null;index:ix_upload_log_job_position,priority:1"`
	Position      int       `gorm:"not null;index:ix_upload_log_job_position,priority:2"`
	StartedAt     time.Time `gorm:"not null"`
	EndedAt       time.Time `gorm:"not null"`
	SerializedRaw string    `gorm:"type:text"`
	ExternalID    string    `gorm:"size:64"`
	RegID         *uint64
	UnitName      string    `gorm:"size:400"`
	Status        LogStatus `gorm:"size:16;not null"`
	Note          string    `gorm:"type:text"`
	Errors        string    `gorm:"type:text"`
	Summary       string    `gorm:"type:text"`
}

// TableName pins the table name used by migrations.
func (UploadLogEntry) TableName() string { return "upload_log_entries" }
