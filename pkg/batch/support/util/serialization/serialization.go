// Package serialization provides the JSON helpers used for the values the import
// pipeline persists or publishes: upload log fields, job progress and completion
// messages.
package serialization

import (
	"encoding/json"
	"fmt"

	"github.com/tigerroll/statreg/pkg/batch/support/util/exception"
	"github.com/tigerroll/statreg/pkg/batch/support/util/logger"
)

// Marshal serializes v, wrapping failures in a BatchError attributed to module.
func Marshal(module string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, exception.NewJobError(module, "", fmt.Sprintf("failed to serialize %T", v), err)
	}
	return data, nil
}

// MarshalString serializes v into a string for a text column. Nil values and
// failures yield "", the failure is logged.
func MarshalString(module string, v any) string {
	if v == nil {
		return ""
	}
	data, err := Marshal(module, v)
	if err != nil {
		logger.Warnf("%v", err)
		return ""
	}
	return string(data)
}

// Unmarshal deserializes data into v. Empty input and a JSON null leave v untouched.
func Unmarshal(module string, data []byte, v any) error {
	if len(data) == 0 || string(data) == "null" {
		logger.Debugf("Nothing to deserialize into %T.", v)
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return exception.NewJobError(module, "", fmt.Sprintf("failed to deserialize %T", v), err)
	}
	return nil
}
