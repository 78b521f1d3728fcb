package pipeline

import "github.com/Ironcock/GameReleaseFetcher/internal/models"

// clipKeys is the resolution preference for hover-preview clips,
// highest first with the generic key last
var clipKeys = []string{"640", "320", "full"}

// requirementAccessors read PC requirements under each known field name
var requirementAccessors = []func(models.PlatformEntry) *models.Requirements{
	func(p models.PlatformEntry) *models.Requirements { return p.Requirements },
	func(p models.PlatformEntry) *models.Requirements { return p.RequirementsEn },
}

const pcPlatformSlug = "pc"

// Mapper projects catalog records onto the published schema
type Mapper struct {
	storeURL   StoreURLFunc
	genreLimit int
}

// NewMapper creates a mapper. genreLimit <= 0 keeps every genre.
func NewMapper(storeURL StoreURLFunc, genreLimit int) *Mapper {
	return &Mapper{storeURL: storeURL, genreLimit: genreLimit}
}

// Map converts rec; it never fails and never leaves a field null
func (m *Mapper) Map(rec *models.CatalogRecord) models.OutputRecord {
	out := models.OutputRecord{
		ID:               rec.ID,
		Title:            rec.Name,
		ReleaseDate:      models.TBA,
		ImageURL:         deref(rec.BackgroundImage),
		VideoURL:         videoURL(rec),
		AddedCount:       rec.Added,
		Rating:           rec.Rating,
		ShortScreenshots: screenshotURLs(rec.ShortScreenshots),
		Genres:           genreNames(rec.Genres, m.genreLimit),
		Tags:             tagNames(rec.Tags),
		Platforms:        platformSlugs(rec),
		Specs:            pcSpecs(rec.Platforms),
	}

	if released := deref(rec.Released); released != "" {
		out.ReleaseDate = released
	}
	if rec.Metacritic != nil {
		out.Metacritic = *rec.Metacritic
	}
	if m.storeURL != nil {
		out.StoreURL = m.storeURL(rec)
	}

	return out
}

// videoURL prefers a looked-up trailer, then the preview clip
func videoURL(rec *models.CatalogRecord) string {
	if rec.Trailer != "" {
		return rec.Trailer
	}
	if rec.Clip == nil {
		return ""
	}
	if rec.Clip.Clip != "" {
		return rec.Clip.Clip
	}
	for _, key := range clipKeys {
		if url := rec.Clip.Clips[key]; url != "" {
			return url
		}
	}
	return ""
}

func pcSpecs(platforms []models.PlatformEntry) models.Specs {
	specs := models.Specs{Min: models.TBA, Rec: models.TBA}

	for _, p := range platforms {
		if p.Platform.Slug != pcPlatformSlug {
			continue
		}
		for _, requirementsOf := range requirementAccessors {
			req := requirementsOf(p)
			if req == nil {
				continue
			}
			if req.Minimum != "" {
				specs.Min = req.Minimum
			}
			if req.Recommended != "" {
				specs.Rec = req.Recommended
			}
			break
		}
		break
	}

	return specs
}

func screenshotURLs(shots []models.Screenshot) []string {
	urls := make([]string, 0, len(shots))
	for _, s := range shots {
		if s.Image != "" {
			urls = append(urls, s.Image)
		}
	}
	return urls
}

func genreNames(genres []models.NamedRef, limit int) []string {
	if limit > 0 && len(genres) > limit {
		genres = genres[:limit]
	}
	names := make([]string, 0, len(genres))
	for _, g := range genres {
		names = append(names, g.Name)
	}
	return names
}

func tagNames(tags []models.Tag) []string {
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	return names
}

// platformSlugs lists parent platforms, falling back to the platform list
func platformSlugs(rec *models.CatalogRecord) []string {
	entries := rec.ParentPlatforms
	if len(entries) == 0 {
		entries = rec.Platforms
	}
	slugs := make([]string, 0, len(entries))
	for _, p := range entries {
		if p.Platform.Slug != "" {
			slugs = append(slugs, p.Platform.Slug)
		}
	}
	return slugs
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
