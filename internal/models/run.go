package models

import "time"

// FeedRun records one feed generation for the status endpoint.
// It carries counters only; accepted titles are never stored between runs.
// Fetched counts raw records seen and Rejections maps each reject reason to
// its count. Error holds the transport error that ended paging, if any.
type FeedRun struct {
	ID     uint64    `json:"id" boltholdKey:"ID"`
	Feed   FeedName  `json:"feed" boltholdIndex:"Feed"`
	Source Source    `json:"source"`
	Status RunStatus `json:"status" boltholdIndex:"Status"`

	Pages      int            `json:"pages"`
	Fetched    int            `json:"fetched"`
	Accepted   int            `json:"accepted"`
	Rejections map[string]int `json:"rejections"`
	Error      string         `json:"error,omitempty"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
