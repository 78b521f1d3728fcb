package pipeline

import (
	"strings"

	"github.com/Ironcock/GameReleaseFetcher/internal/models"
)

// KeySet holds the canonical title keys accepted so far in one feed
type KeySet map[string]struct{}

// Has reports whether key was already accepted
func (s KeySet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Add registers key as accepted
func (s KeySet) Add(key string) {
	s[key] = struct{}{}
}

// Deduplicator rejects re-released editions of titles already in a feed
type Deduplicator struct {
	markers  []string
	bonus    []string
	minAdded int
}

// NewDeduplicator creates a deduplicator from policy
func NewDeduplicator(policy Policy) *Deduplicator {
	return &Deduplicator{
		markers:  lowerAll(policy.EditionMarkers),
		bonus:    lowerAll(policy.BonusKeywords),
		minAdded: policy.ObscurityMinAdded,
	}
}

// Canonicalize lower-cases title, removes edition markers in order and
// drops everything but [a-z0-9]. The pass repeats until the key is stable,
// so Canonicalize(Canonicalize(t)) == Canonicalize(t).
func (d *Deduplicator) Canonicalize(title string) string {
	key := lower(title)
	for {
		next := d.canonicalPass(key)
		if next == key {
			return key
		}
		key = next
	}
}

func (d *Deduplicator) canonicalPass(s string) string {
	for _, marker := range d.markers {
		s = strings.ReplaceAll(s, marker, "")
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') {
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// Check rejects bonus content, obscure titles and editions whose canonical
// key is already in seen. An accepted record's key is added to seen.
func (d *Deduplicator) Check(rec *models.CatalogRecord, seen KeySet) Verdict {
	title := lower(rec.Name)
	for _, keyword := range d.bonus {
		if strings.Contains(title, keyword) {
			return reject(ReasonBonusContent, keyword)
		}
	}

	if rec.Audience() < d.minAdded {
		return reject(ReasonObscure, "")
	}

	key := d.Canonicalize(rec.Name)
	if key == "" {
		// Titles with no ASCII letters or digits cannot be compared
		return accept
	}
	if seen.Has(key) {
		return reject(ReasonDuplicate, key)
	}

	seen.Add(key)
	return accept
}

// ShouldAccept reports whether rec is a new title for this feed
func (d *Deduplicator) ShouldAccept(rec *models.CatalogRecord, seen KeySet) bool {
	return d.Check(rec, seen).Publishable
}
