package gorm

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// duplicateMarkers are the driver messages for a unique-constraint violation
// on sqlite, mysql and postgres, for drivers that GORM does not translate.
var duplicateMarkers = []string{
	"UNIQUE constraint failed",
	"Duplicate entry",
	"duplicate key value",
}

// IsDuplicateKey reports whether err is a unique-constraint violation.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	for _, m := range duplicateMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// IsTableNotExist reports whether err says a table is missing, which usually means
// migrations have not been applied.
func IsTableNotExist(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "doesn't exist") ||
		(strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist"))
}
