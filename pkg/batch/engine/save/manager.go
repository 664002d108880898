// Package save writes analyzed drafts to the unit store, either one by one or
// buffered into bulk upserts.
package save

import (
	"context"
	"errors"
	"fmt"
	"time"

	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/statreg/pkg/batch/core/domain/repository"
	"github.com/tigerroll/statreg/pkg/batch/core/metrics"
	"github.com/tigerroll/statreg/pkg/batch/support/util/exception"
	"github.com/tigerroll/statreg/pkg/batch/support/util/logger"
)

const moduleName = "save"

// Outcome is the immediate result of Save.
type Outcome struct {
	// Gated is set when the job's priority does not allow this write.
	Gated bool
	// Deferred is set when the draft waits in the bulk buffer. Its result is
	// reported later as a Settled.
	Deferred bool
	RegID    *uint64
	// Flushed holds buffered drafts that were written during this call.
	Flushed []Settled
}

// Settled is the final result of a deferred save.
type Settled struct {
	Position int
	RegID    *uint64
	Err      error
}

type pendingSave struct {
	draft   *model.Draft
	unit    *model.StatUnit
	history *model.StatUnitHistory
}

// Manager saves the drafts of one job. It is not safe for concurrent use.
type Manager struct {
	units    repository.UnitRepository
	job      *model.Job
	bulkSize int
	recorder metrics.MetricRecorder
	now      func() time.Time

	buffer []pendingSave
	keys   map[string]struct{}
}

// NewManager creates the save manager of job. bulkSize <= 1 writes every draft
// immediately.
func NewManager(units repository.UnitRepository, job *model.Job, bulkSize int, recorder metrics.MetricRecorder) *Manager {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	return &Manager{
		units:    units,
		job:      job,
		bulkSize: bulkSize,
		recorder: recorder,
		now:      time.Now,
		keys:     map[string]struct{}{},
	}
}

// Bulk reports whether saves are buffered.
func (m *Manager) Bulk() bool { return m.bulkSize > 1 }

// Pending returns the number of buffered drafts.
func (m *Manager) Pending() int { return len(m.buffer) }

// Allowed reports whether the job's priority permits saving the draft.
// Trusted sources write everything, Ok sources only create, NotTrusted never write.
func Allowed(priority model.Priority, draft *model.Draft) bool {
	switch priority {
	case model.PriorityTrusted:
		return true
	case model.PriorityOk:
		return draft.IsNew()
	}
	return false
}

// Save writes or buffers draft. The returned error is record-level; in bulk mode
// errors of flushed drafts travel in Outcome.Flushed instead.
func (m *Manager) Save(ctx context.Context, draft *model.Draft) (Outcome, error) {
	if !Allowed(m.job.Priority, draft) {
		return Outcome{Gated: true}, nil
	}
	ps := m.prepare(draft)
	if !m.Bulk() {
		regID, err := m.saveOne(ctx, ps)
		return Outcome{RegID: regID}, err
	}

	var out Outcome
	key := bufferKey(draft)
	if _, dup := m.keys[key]; dup {
		settled, err := m.Flush(ctx)
		out.Flushed = append(out.Flushed, settled...)
		if err != nil {
			return out, err
		}
		// draft was resolved against the store before the buffered save of
		// the same unit landed
		if err := m.resolve(ctx, draft); err != nil {
			return out, err
		}
		if !Allowed(m.job.Priority, draft) {
			out.Gated = true
			return out, nil
		}
		regID, err := m.saveOne(ctx, m.prepare(draft))
		out.RegID = regID
		return out, err
	}
	m.buffer = append(m.buffer, ps)
	m.keys[key] = struct{}{}
	out.Deferred = true
	if len(m.buffer) >= m.bulkSize {
		settled, err := m.Flush(ctx)
		out.Flushed = append(out.Flushed, settled...)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// Buffered reports whether a save of the same unit is waiting in the bulk buffer.
func (m *Manager) Buffered(draft *model.Draft) bool {
	_, ok := m.keys[bufferKey(draft)]
	return ok
}

func bufferKey(draft *model.Draft) string {
	return string(draft.UnitType) + "\x00" + draft.ExternalID
}

// resolve reloads the stored unit of draft and repeats the allowed-operation
// check the mapper made against the older state.
func (m *Manager) resolve(ctx context.Context, draft *model.Draft) error {
	existing, err := m.units.FindByExternalID(ctx, draft.UnitType, draft.ExternalID)
	if err != nil {
		if exception.IsCancellation(err) {
			return err
		}
		return exception.NewRecordError(moduleName, exception.CodeUnitLookupFailed,
			fmt.Sprintf("failed to look up %s %s", draft.UnitType, draft.ExternalID), err)
	}
	draft.Existing = existing
	if existing != nil && !m.job.AllowedOperations.CanAlter() {
		return exception.NewRecordError(moduleName, exception.CodeUnitAlreadyExists,
			fmt.Sprintf("%s %s already exists", draft.UnitType, draft.ExternalID), nil)
	}
	return nil
}

func (m *Manager) prepare(draft *model.Draft) pendingSave {
	now := m.now().UTC()
	unit := &model.StatUnit{}
	var history *model.StatUnitHistory
	if draft.Existing != nil {
		*unit = *draft.Existing
		history = draft.Existing.Snapshot(m.job.ID, now)
		unit.Version = draft.Existing.Version + 1
	} else {
		unit.Version = 1
	}
	model.ApplyDraft(unit, draft)
	unit.DataSource = m.job.FileName
	unit.UserID = m.job.UserID
	unit.EditComment = fmt.Sprintf("import job %s", m.job.ID)
	return pendingSave{draft: draft, unit: unit, history: history}
}

func (m *Manager) saveOne(ctx context.Context, ps pendingSave) (*uint64, error) {
	var err error
	if ps.draft.Existing == nil {
		err = m.units.Insert(ctx, ps.unit)
	} else {
		err = m.units.UpdateWithHistory(ctx, ps.unit, ps.history, ps.draft.Existing.Version)
	}
	if err != nil {
		return nil, m.classify(ps, err)
	}
	regID := ps.unit.RegID
	return &regID, nil
}

func (m *Manager) classify(ps pendingSave, err error) error {
	d := ps.draft
	switch {
	case exception.IsCancellation(err):
		return err
	case errors.Is(err, repository.ErrDuplicateUnit):
		return exception.NewRecordError(moduleName, exception.CodeUnitAlreadyExists,
			fmt.Sprintf("%s %s was created concurrently", d.UnitType, d.ExternalID), err)
	case errors.Is(err, repository.ErrStaleUnit):
		return exception.NewOptimisticLockingFailure(moduleName,
			fmt.Sprintf("%s %s was modified concurrently", d.UnitType, d.ExternalID), err)
	}
	return exception.NewRecordError(moduleName, exception.CodeSaveFailed,
		fmt.Sprintf("failed to save %s %s", d.UnitType, d.ExternalID), err)
}

// Flush writes the buffer as one bulk upsert. When the bulk write fails every
// buffered draft is retried on its own so that errors land on the record that
// caused them. The returned error is only set when the context is done.
func (m *Manager) Flush(ctx context.Context) ([]Settled, error) {
	if len(m.buffer) == 0 {
		return nil, nil
	}
	batch := m.buffer
	m.buffer = nil
	m.keys = map[string]struct{}{}

	start := m.now()
	units := make([]*model.StatUnit, len(batch))
	var histories []*model.StatUnitHistory
	for i, ps := range batch {
		units[i] = ps.unit
		if ps.history != nil {
			histories = append(histories, ps.history)
		}
	}

	settled := make([]Settled, len(batch))
	err := m.units.BulkUpsert(ctx, units, histories)
	m.recorder.RecordDuration(ctx, "bulk_flush", m.now().Sub(start), map[string]string{"ok": fmt.Sprint(err == nil)})
	if err == nil {
		for i, ps := range batch {
			regID := ps.unit.RegID
			settled[i] = Settled{Position: ps.draft.Position, RegID: &regID}
		}
		return settled, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	logger.Warnf("Bulk save of %d units failed, retrying one by one: %v", len(batch), err)
	for i, ps := range batch {
		if ps.draft.Existing == nil {
			ps.unit.RegID = 0
		}
		regID, err := m.saveOne(ctx, ps)
		if err != nil && exception.IsCancellation(err) {
			return settled[:i], err
		}
		settled[i] = Settled{Position: ps.draft.Position, RegID: regID, Err: err}
	}
	return settled, nil
}
