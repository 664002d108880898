package model

import "time"

// Progress is the running tally of one job. It is owned by the processing call
// chain of that job and handed to trackers by value.
type Progress struct {
	Total     int
	Processed int
	Done      int
	Warnings  int
	Errors    int
}

// Add counts one record outcome.
func (p *Progress) Add(status LogStatus) {
	p.Processed++
	switch status {
	case LogStatusDone:
		p.Done++
	case LogStatusWarning:
		p.Warnings++
	case LogStatusError:
		p.Errors++
	}
}

// Clean reports whether every processed record ended Done.
func (p Progress) Clean() bool {
	return p.Warnings == 0 && p.Errors == 0
}

// JobSummary describes a finished job for notifications.
type JobSummary struct {
	JobID     string     `json:"jobId"`
	FileName  string     `json:"fileName"`
	UnitType  UnitType   `json:"unitType"`
	UserID    string     `json:"userId"`
	Status    JobStatus  `json:"status"`
	Note      string     `json:"note,omitempty"`
	Progress  Progress   `json:"progress"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndedAt   time.Time  `json:"endedAt"`
}
