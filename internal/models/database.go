package models

import (
	"fmt"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// Database wraps the bolthold store holding feed run history
type Database struct {
	store *bolthold.Store
}

// NewDatabase creates a new database connection
func NewDatabase(path string) (*Database, error) {
	store, err := bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Database{store: store}, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.store.Close()
}

// CreateRun inserts a new feed run and assigns its ID
func (db *Database) CreateRun(run *FeedRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	return db.store.Insert(bolthold.NextSequence(), run)
}

// UpdateRun updates an existing feed run
func (db *Database) UpdateRun(run *FeedRun) error {
	return db.store.Update(run.ID, run)
}

// GetRunByID retrieves a feed run by ID
func (db *Database) GetRunByID(id uint64) (*FeedRun, error) {
	var run FeedRun
	if err := db.store.Get(id, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRecentRuns returns the most recent runs, newest first
func (db *Database) GetRecentRuns(limit int) ([]*FeedRun, error) {
	var runs []*FeedRun
	query := (&bolthold.Query{}).SortBy("StartedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := db.store.Find(&runs, query)
	return runs, err
}

// GetLastRun returns the newest run of a feed with the given status
func (db *Database) GetLastRun(feed FeedName, status RunStatus) (*FeedRun, error) {
	var runs []*FeedRun
	err := db.store.Find(&runs,
		bolthold.Where("Feed").Eq(feed).
			And("Status").Eq(status).
			SortBy("StartedAt").Reverse().Limit(1))
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, bolthold.ErrNotFound
	}
	return runs[0], nil
}

// PruneRuns deletes runs that started before the cutoff
func (db *Database) PruneRuns(before time.Time) (int, error) {
	var runs []*FeedRun
	if err := db.store.Find(&runs, bolthold.Where("StartedAt").Lt(before)); err != nil {
		return 0, err
	}

	for _, run := range runs {
		if err := db.store.Delete(run.ID, &FeedRun{}); err != nil {
			return 0, err
		}
	}

	return len(runs), nil
}
