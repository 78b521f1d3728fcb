package models

// CatalogRecord is one game as returned by the catalog search endpoint.
// Every nested field may be absent or null upstream; consumers must not
// assume any of the slices or pointers are set.
type CatalogRecord struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Slug            string  `json:"slug"`
	Released        *string `json:"released"`         // nil or "" when TBA
	BackgroundImage *string `json:"background_image"` // cover image
	Metacritic      *int    `json:"metacritic"`
	Added           int     `json:"added"` // popularity count
	Rating          float64 `json:"rating"`
	RatingsCount    int     `json:"ratings_count"`

	ShortScreenshots []Screenshot    `json:"short_screenshots"`
	Genres           []NamedRef      `json:"genres"`
	Tags             []Tag           `json:"tags"`
	ESRBRating       *ESRBRating     `json:"esrb_rating"`
	Platforms        []PlatformEntry `json:"platforms"`
	ParentPlatforms  []PlatformEntry `json:"parent_platforms"`
	Clip             *Clip           `json:"clip"`

	// Related listings, only populated by sources that expose them (IGDB)
	ExternalGames []ExternalListing `json:"external_games,omitempty"`
	ParentGame    *RelatedGame      `json:"parent_game,omitempty"`
	VersionParent *RelatedGame      `json:"version_parent,omitempty"`

	// Trailer is filled by the optional per-record trailer lookup
	Trailer string `json:"-"`
}

// Screenshot is a short screenshot entry
type Screenshot struct {
	ID    int64  `json:"id"`
	Image string `json:"image"`
}

// NamedRef is a {id, name, slug} reference such as a genre
type NamedRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Tag is a user-facing tag; slugs are lower-case-hyphenated upstream
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// ESRBRating holds the ESRB classification
type ESRBRating struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// PlatformEntry is a platform the game ships on, with optional requirements.
// Older API revisions name the requirements field "requirements_en".
type PlatformEntry struct {
	Platform       NamedRef      `json:"platform"`
	Requirements   *Requirements `json:"requirements"`
	RequirementsEn *Requirements `json:"requirements_en"`
}

// Requirements holds free-form system requirement text
type Requirements struct {
	Minimum     string `json:"minimum"`
	Recommended string `json:"recommended"`
}

// Clip is the hover-preview video object
type Clip struct {
	Clip  string            `json:"clip"`
	Clips map[string]string `json:"clips"` // keyed by resolution: "320", "640", "full"
}

// ExternalListing is a storefront entry. The store id arrives as either
// "category" or "external_game_source" depending on the API version.
type ExternalListing struct {
	Category           *int   `json:"category,omitempty"`
	ExternalGameSource *int   `json:"external_game_source,omitempty"`
	UID                string `json:"uid,omitempty"`
	URL                string `json:"url,omitempty"`
}

// RelatedGame is a parent or version-parent record carrying its own listings
type RelatedGame struct {
	ID            int64             `json:"id"`
	ExternalGames []ExternalListing `json:"external_games"`
}

// Audience is the larger of the popularity and rating counts. Sources
// whose popularity only counts pre-release interest (IGDB hypes) still
// report a meaningful audience for released games through their ratings.
func (r *CatalogRecord) Audience() int {
	if r.RatingsCount > r.Added {
		return r.RatingsCount
	}
	return r.Added
}
