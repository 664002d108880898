package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UnitFields are the mappable attributes of a statistical unit. They are shared
// between the live row and its history snapshots.
type UnitFields struct {
	Name             string `gorm:"size:400"`
	ShortName        string `gorm:"size:200"`
	TaxRegID         string `gorm:"size:50;index"`
	Email            string `gorm:"size:200"`
	Telephone        string `gorm:"size:50"`
	Address          string `gorm:"size:400"`
	ActivityCode     string `gorm:"size:20"`
	RegistrationDate *time.Time
	LiquidationDate  *time.Time
	Employees        *int64
	Turnover         decimal.NullDecimal `gorm:"type:decimal(18,2)"`
}

// StatUnit is a registered statistical unit.
// (UnitType, ExternalID) is unique: it is what makes re-imports idempotent.
type StatUnit struct {
	RegID       uint64     `gorm:"primaryKey;autoIncrement"`
	UnitType    UnitType   `gorm:"size:32;not null;uniqueIndex:ux_stat_units_type_external_id"`
	ExternalID  string     `gorm:"size:64;not null;uniqueIndex:ux_stat_units_type_external_id"`
	UnitFields  `gorm:"embedded"`
	DataSource  string     `gorm:"size:255"`
	UserID      string     `gorm:"size:64"`
	EditComment string     `gorm:"size:255"`
	Version     int        `gorm:"not null;default:1"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName pins the table name used by migrations.
func (StatUnit) TableName() string { return "stat_units" }

// StatUnitHistory is the state of a unit before an update. Rows are never modified.
type StatUnitHistory struct {
	ID         uint64   `gorm:"primaryKey;autoIncrement"`
	RegID      uint64   `gorm:"not null;index"`
	UnitType   UnitType `gorm:"size:32;not null"`
	ExternalID string   `gorm:"size:64;not null"`
	UnitFields `gorm:"embedded"`
	Version    int    `gorm:"not null"`
	DataSource string `gorm:"size:255"`
	UserID     string `gorm:"size:64"`
	JobID      string `gorm:"size:36"`
	ValidFrom  time.Time
	ValidTo    time.Time
}

// TableName pins the table name used by migrations.
func (StatUnitHistory) TableName() string { return "stat_unit_history" }

// Snapshot returns the history row describing u as it is now, closed at validTo.
func (u *StatUnit) Snapshot(jobID string, validTo time.Time) *StatUnitHistory {
	return &StatUnitHistory{
		RegID:      u.RegID,
		UnitType:   u.UnitType,
		ExternalID: u.ExternalID,
		UnitFields: u.UnitFields,
		Version:    u.Version,
		DataSource: u.DataSource,
		UserID:     u.UserID,
		JobID:      jobID,
		ValidFrom:  u.UpdatedAt,
		ValidTo:    validTo,
	}
}

// FieldKind is the value type of a mappable target field.
type FieldKind int

const (
	KindString FieldKind = iota
	KindInt
	KindDecimal
	KindDate
)

func (k FieldKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindDecimal:
		return "decimal"
	case KindDate:
		return "date"
	}
	return "string"
}

// FieldExternalID is the identifier target every mapping must declare.
const FieldExternalID = "externalId"

// FieldSpec describes one mappable target field.
type FieldSpec struct {
	Name string
	Kind FieldKind
	get  func(u *StatUnit) any
	set  func(u *StatUnit, v any)
}

// Schema is the set of target fields a mapping may reference.
type Schema map[string]FieldSpec

// Lookup returns the spec of a target field.
func (s Schema) Lookup(name string) (FieldSpec, bool) {
	f, ok := s[name]
	return f, ok
}

// Names returns the sorted field names.
func (s Schema) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var dateLayouts = []string{"2006-01-02", "02.01.2006", time.RFC3339}

// Coerce converts a raw text value into the field's kind. Blank input yields
// nil for every kind except strings, which keep the empty string.
func (f FieldSpec) Coerce(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if f.Kind == KindString {
		return raw, nil
	}
	if raw == "" {
		return nil, nil
	}
	switch f.Kind {
	case KindInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not an integer", f.Name, raw)
		}
		return n, nil
	case KindDecimal:
		d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", "."))
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not a number", f.Name, raw)
		}
		return d, nil
	case KindDate:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("%s: %q is not a date", f.Name, raw)
	}
	return nil, fmt.Errorf("%s: unsupported kind %s", f.Name, f.Kind)
}

// Get reads the field from a unit.
func (f FieldSpec) Get(u *StatUnit) any { return f.get(u) }

// Set writes a coerced value into a unit.
func (f FieldSpec) Set(u *StatUnit, v any) { f.set(u, v) }

func stringField(name string, ptr func(u *StatUnit) *string) FieldSpec {
	return FieldSpec{
		Name: name,
		Kind: KindString,
		get:  func(u *StatUnit) any { return *ptr(u) },
		set: func(u *StatUnit, v any) {
			s, _ := v.(string)
			*ptr(u) = s
		},
	}
}

func dateField(name string, ptr func(u *StatUnit) **time.Time) FieldSpec {
	return FieldSpec{
		Name: name,
		Kind: KindDate,
		get: func(u *StatUnit) any {
			if p := *ptr(u); p != nil {
				return *p
			}
			return nil
		},
		set: func(u *StatUnit, v any) {
			if t, ok := v.(time.Time); ok {
				*ptr(u) = &t
				return
			}
			*ptr(u) = nil
		},
	}
}

// UnitSchema is the target schema of statistical units.
var UnitSchema = Schema{
	FieldExternalID: stringField(FieldExternalID, func(u *StatUnit) *string { return &u.ExternalID }),
	"name":          stringField("name", func(u *StatUnit) *string { return &u.Name }),
	"shortName":     stringField("shortName", func(u *StatUnit) *string { return &u.ShortName }),
	"taxRegId":      stringField("taxRegId", func(u *StatUnit) *string { return &u.TaxRegID }),
	"email":         stringField("email", func(u *StatUnit) *string { return &u.Email }),
	"telephone":     stringField("telephone", func(u *StatUnit) *string { return &u.Telephone }),
	"address":       stringField("address", func(u *StatUnit) *string { return &u.Address }),
	"activityCode":  stringField("activityCode", func(u *StatUnit) *string { return &u.ActivityCode }),
	"registrationDate": dateField("registrationDate", func(u *StatUnit) **time.Time {
		return &u.RegistrationDate
	}),
	"liquidationDate": dateField("liquidationDate", func(u *StatUnit) **time.Time {
		return &u.LiquidationDate
	}),
	"employees": {
		Name: "employees",
		Kind: KindInt,
		get: func(u *StatUnit) any {
			if u.Employees != nil {
				return *u.Employees
			}
			return nil
		},
		set: func(u *StatUnit, v any) {
			if n, ok := v.(int64); ok {
				u.Employees = &n
				return
			}
			u.Employees = nil
		},
	},
	"turnover": {
		Name: "turnover",
		Kind: KindDecimal,
		get: func(u *StatUnit) any {
			if u.Turnover.Valid {
				return u.Turnover.Decimal
			}
			return nil
		},
		set: func(u *StatUnit, v any) {
			if d, ok := v.(decimal.Decimal); ok {
				u.Turnover = decimal.NullDecimal{Decimal: d, Valid: true}
				return
			}
			u.Turnover = decimal.NullDecimal{}
		},
	},
}

// ApplyDraft writes the draft's mapped values onto u. Fields the draft does not
// carry keep their current value.
func ApplyDraft(u *StatUnit, d *Draft) {
	u.UnitType = d.UnitType
	for name, v := range d.Values {
		if spec, ok := UnitSchema.Lookup(name); ok {
			spec.Set(u, v)
		}
	}
}

// FormatValue renders a coerced value as text.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case decimal.Decimal:
		return t.String()
	case time.Time:
		return t.Format("2006-01-02")
	}
	return fmt.Sprint(v)
}
