package gorm

import (
	"fmt"
	"strings"
	"time"

	"github.com/tigerroll/statreg/pkg/batch/support/util/logger"

	gormlogger "gorm.io/gorm/logger"
)

// NewGormLogger creates a GORM logger writing through the application logger.
// Unknown or empty levels are treated as silent.
func NewGormLogger(level string) gormlogger.Interface {
	var gormLevel gormlogger.LogLevel
	switch strings.ToLower(level) {
	case "error":
		gormLevel = gormlogger.Error
	case "warn":
		gormLevel = gormlogger.Warn
	case "info":
		gormLevel = gormlogger.Info
	default:
		gormLevel = gormlogger.Silent
	}
	return gormlogger.New(gormWriter{}, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormLevel,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// gormWriter routes GORM output to the application logger. Statement traces go
// to DEBUG, everything else to INFO.
type gormWriter struct{}

func (gormWriter) Printf(format string, v ...interface{}) {
	msg := strings.TrimSpace(fmt.Sprintf(format, v...))
	entry := logger.WithFields(map[string]interface{}{"component": "gorm"})
	if isStatement(msg) {
		entry.Debug(msg)
		return
	}
	entry.Info(msg)
}

func isStatement(msg string) bool {
	upper := strings.ToUpper(msg)
	for _, kw := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}
