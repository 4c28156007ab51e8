package design

import (
	"context"

	"lodestone/internal/domain"
	"lodestone/internal/repository"
)

// Journal tracks the records a design run created or updated. When the
// environment carries a change set, every log entry also persists as a
// change record so the deployment can later be decommissioned.
//
// A record ID appears at most once in the created index and at most once in
// the updated index, no matter how many times the design touches it.
type Journal struct {
	store       repository.Store
	changeSetID string

	index     map[string]bool
	created   map[string][]string
	updated   map[string][]string
	nextIndex int64
}

// NewJournal creates a journal. changeSetID may be empty for ad-hoc runs
// that should not leave change records behind.
func NewJournal(store repository.Store, changeSetID string) *Journal {
	return &Journal{
		store:       store,
		changeSetID: changeSetID,
		index:       make(map[string]bool),
		created:     make(map[string][]string),
		updated:     make(map[string][]string),
	}
}

// Log records that a design saved a record. added/removed follow the change
// record convention from domain.DiffRecord.
func (j *Journal) Log(ctx context.Context, model string, record domain.Record, created bool, added, removed map[string]any) error {
	id := record.ID()
	if !j.index[id] {
		j.index[id] = true
		if created {
			j.created[model] = append(j.created[model], id)
		} else {
			j.updated[model] = append(j.updated[model], id)
		}
	}

	if j.changeSetID == "" {
		return nil
	}
	if !created && len(added) == 0 {
		// Nothing changed; an empty change record would only add noise
		// to decommissioning.
		return nil
	}
	j.nextIndex++
	_, err := j.store.Insert(ctx, domain.ModelChangeRecord, domain.Record{
		"change_set":   j.changeSetID,
		"index":        j.nextIndex,
		"model":        model,
		"record_id":    id,
		"full_control": created,
		"added":        added,
		"removed":      removed,
	})
	return err
}

// Created returns the IDs of records created per model path.
func (j *Journal) Created() map[string][]string { return j.created }

// Updated returns the IDs of records updated (but not created) per model.
func (j *Journal) Updated() map[string][]string { return j.updated }

// Touched reports whether the journal has seen the record at all.
func (j *Journal) Touched(id string) bool { return j.index[id] }
