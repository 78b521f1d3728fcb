package controllers

import (
	"time"

	"github.com/Ironcock/GameReleaseFetcher/internal/models"
	"github.com/Ironcock/GameReleaseFetcher/internal/pipeline"
)

const (
	newReleasesWindow = 30 * 24 * time.Hour
	upcomingWindow    = 180 * 24 * time.Hour
	hallOfFameYears   = 20

	dailyLimit      = 50
	dailyGenres     = 2
	hallOfFameLimit = 100
	hallOfFameGenre = 3

	hallOfFameMinScore   = 85
	hallOfFameMinRatings = 100
)

// FeedSpec describes one list inside an output document
type FeedSpec struct {
	Name            models.FeedName
	Query           pipeline.Query
	Limit           int  // Accepted records wanted
	GenreLimit      int  // Genre names kept per record
	CleanDuplicates bool // Drop re-released editions, bonus content and obscure titles
	TrailerHead     int  // Leading records that get a trailer lookup
}

// NewReleasesFeed lists the most popular titles released in the last 30 days
func NewReleasesFeed(now time.Time) FeedSpec {
	return FeedSpec{
		Name: models.FeedNewReleases,
		Query: pipeline.Query{
			From:          now.Add(-newReleasesWindow),
			To:            now,
			Ordering:      models.OrderByPopularity,
			MainGamesOnly: true,
		},
		Limit:      dailyLimit,
		GenreLimit: dailyGenres,
	}
}

// UpcomingFeed lists the most anticipated titles of the next 180 days
func UpcomingFeed(now time.Time) FeedSpec {
	return FeedSpec{
		Name: models.FeedUpcoming,
		Query: pipeline.Query{
			From:          now.AddDate(0, 0, 1),
			To:            now.Add(upcomingWindow),
			Ordering:      models.OrderByPopularity,
			MainGamesOnly: true,
		},
		Limit:      dailyLimit,
		GenreLimit: dailyGenres,
	}
}

// HallOfFameFeed lists the best rated titles of the last 20 years
func HallOfFameFeed(now time.Time, trailerHead int) FeedSpec {
	return FeedSpec{
		Name: models.FeedHallOfFame,
		Query: pipeline.Query{
			From:           now.AddDate(-hallOfFameYears, 0, 0),
			To:             now,
			Ordering:       models.OrderByScore,
			MinScore:       hallOfFameMinScore,
			MinRatingCount: hallOfFameMinRatings,
			NoParents:      true,
		},
		Limit:           hallOfFameLimit,
		GenreLimit:      hallOfFameGenre,
		CleanDuplicates: true,
		TrailerHead:     trailerHead,
	}
}
