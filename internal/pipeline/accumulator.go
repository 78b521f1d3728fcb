package pipeline

import "github.com/Ironcock/GameReleaseFetcher/internal/models"

// Accumulator collects the accepted records of a single feed together with
// the canonical keys seen so far. It is created per feed and discarded.
type Accumulator struct {
	records []models.OutputRecord
	keys    KeySet
	ids     map[int64]struct{}
}

// NewAccumulator creates an empty accumulator
func NewAccumulator() *Accumulator {
	return &Accumulator{
		records: make([]models.OutputRecord, 0),
		keys:    make(KeySet),
		ids:     make(map[int64]struct{}),
	}
}

// Add appends an accepted record
func (a *Accumulator) Add(rec models.OutputRecord) {
	a.records = append(a.records, rec)
	a.ids[rec.ID] = struct{}{}
}

// Contains reports whether a record with this upstream id was accepted.
// Pages can shift between requests, so the same record may arrive twice.
func (a *Accumulator) Contains(id int64) bool {
	_, ok := a.ids[id]
	return ok
}

// Keys returns the canonical key set shared with the deduplicator
func (a *Accumulator) Keys() KeySet {
	return a.keys
}

// Len returns the number of accepted records
func (a *Accumulator) Len() int {
	return len(a.records)
}

// Records returns the accepted records in acceptance order, never nil
func (a *Accumulator) Records() []models.OutputRecord {
	return a.records
}
