package models

// Source identifies the upstream catalog a feed is built from
type Source string

const (
	SourceRAWG Source = "rawg"
	SourceIGDB Source = "igdb"
)

// FeedName identifies one generated list inside an output document
type FeedName string

const (
	FeedNewReleases FeedName = "NewReleases"
	FeedUpcoming    FeedName = "Upcoming"
	FeedHallOfFame  FeedName = "HallOfFame"
)

// RunStatus represents the outcome of one feed generation
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed" // Paging ended normally
	RunStatusPartial   RunStatus = "partial"   // Paging stopped on a transport error
)

// Ordering is the upstream sort key, translated per source
type Ordering string

const (
	OrderByPopularity Ordering = "popularity"
	OrderByScore      Ordering = "score"
	OrderByReleased   Ordering = "released"
)

// TBA is the placeholder for unknown dates and system requirements
const TBA = "TBA"
