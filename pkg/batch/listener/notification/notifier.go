// Package notification announces finished import jobs.
package notification

import (
	"context"
	"fmt"

	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	"github.com/tigerroll/statreg/pkg/batch/core/ports"
	"github.com/tigerroll/statreg/pkg/batch/support/util/logger"
)

// LogNotifier is a notifier that only logs the completion.
type LogNotifier struct{}

// NewLogNotifier creates a new instance of LogNotifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// NotifyJobCompletion logs the summary; jobs that did not fully complete are
// logged as warnings.
func (n *LogNotifier) NotifyJobCompletion(ctx context.Context, summary model.JobSummary) error {
	duration := "n/a"
	if summary.StartedAt != nil {
		duration = summary.EndedAt.Sub(*summary.StartedAt).String()
	}
	message := fmt.Sprintf(
		"Job Notification: import of '%s' (ID: %s, %s) finished with Status: %s. Duration: %s, Done: %d, Warnings: %d, Errors: %d",
		summary.FileName,
		summary.JobID,
		summary.UnitType,
		summary.Status,
		duration,
		summary.Progress.Done,
		summary.Progress.Warnings,
		summary.Progress.Errors,
	)
	entry := logger.WithFields(map[string]interface{}{"job_id": summary.JobID, "user_id": summary.UserID})
	if summary.Status == model.JobStatusDataLoadCompleted {
		entry.Info(message)
		return nil
	}
	if summary.Note != "" {
		message += ". Note: " + summary.Note
	}
	entry.Warn(message)
	return nil
}

var _ ports.Notifier = (*LogNotifier)(nil)
