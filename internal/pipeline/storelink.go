package pipeline

import (
	"fmt"

	"github.com/Ironcock/GameReleaseFetcher/internal/models"
)

// StoreRule is one storefront in resolution priority order
type StoreRule struct {
	ID       int    // External game source id
	Name     string
	Template string // fmt template receiving the listing uid
}

// DefaultStores is Steam, then Epic, then GOG
var DefaultStores = []StoreRule{
	{ID: 1, Name: "steam", Template: "https://store.steampowered.com/app/%s"},
	{ID: 26, Name: "epic", Template: "https://store.epicgames.com/p/%s"},
	{ID: 5, Name: "gog", Template: "https://www.gog.com/game/%s"},
}

// storeIDAccessors read the store id from a listing, one per field name
// the API has used for it. Append here when the schema drifts again.
var storeIDAccessors = []func(models.ExternalListing) (int, bool){
	func(l models.ExternalListing) (int, bool) {
		if l.Category == nil {
			return 0, false
		}
		return *l.Category, true
	},
	func(l models.ExternalListing) (int, bool) {
		if l.ExternalGameSource == nil {
			return 0, false
		}
		return *l.ExternalGameSource, true
	},
}

// StoreURLFunc produces the store link for a record
type StoreURLFunc func(rec *models.CatalogRecord) string

// SiteStoreURL links to the catalog's own page for the record
func SiteStoreURL(siteURL string) StoreURLFunc {
	return func(rec *models.CatalogRecord) string {
		return fmt.Sprintf("%s/games/%s", siteURL, rec.Slug)
	}
}

// StoreResolver finds an external storefront link for a record,
// falling back to its version parent and parent game
type StoreResolver struct {
	stores []StoreRule
}

// NewStoreResolver creates a resolver; nil stores means DefaultStores
func NewStoreResolver(stores []StoreRule) *StoreResolver {
	if stores == nil {
		stores = DefaultStores
	}
	return &StoreResolver{stores: stores}
}

// Resolve returns the first listing URL found, or "" when no source has
// a listing for any store in the priority list
func (r *StoreResolver) Resolve(rec *models.CatalogRecord) string {
	sources := listingSources(rec)
	if len(sources) == 0 {
		return ""
	}

	for _, store := range r.stores {
		for _, listings := range sources {
			listing, ok := findListing(listings, store.ID)
			if !ok {
				continue
			}
			if listing.URL != "" {
				return listing.URL
			}
			return fmt.Sprintf(store.Template, listing.UID)
		}
	}

	return ""
}

// listingSources orders the record's own listings before its version
// parent's and its parent game's
func listingSources(rec *models.CatalogRecord) [][]models.ExternalListing {
	var sources [][]models.ExternalListing
	if len(rec.ExternalGames) > 0 {
		sources = append(sources, rec.ExternalGames)
	}
	if rec.VersionParent != nil && len(rec.VersionParent.ExternalGames) > 0 {
		sources = append(sources, rec.VersionParent.ExternalGames)
	}
	if rec.ParentGame != nil && len(rec.ParentGame.ExternalGames) > 0 {
		sources = append(sources, rec.ParentGame.ExternalGames)
	}
	return sources
}

// findListing tries each store-id accessor in turn over the whole list
func findListing(listings []models.ExternalListing, storeID int) (models.ExternalListing, bool) {
	for _, storeIDOf := range storeIDAccessors {
		for _, listing := range listings {
			if listing.UID == "" && listing.URL == "" {
				continue
			}
			if id, ok := storeIDOf(listing); ok && id == storeID {
				return listing, true
			}
		}
	}
	return models.ExternalListing{}, false
}
