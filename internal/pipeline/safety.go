package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Ironcock/GameReleaseFetcher/internal/models"
)

// RejectReason explains why a record was left out of a feed
type RejectReason string

const (
	ReasonAdultsOnly   RejectReason = "esrb_adults_only"
	ReasonHardBanTag   RejectReason = "hard_ban_tag"
	ReasonRiskyTag     RejectReason = "risky_tag_low_popularity"
	ReasonTitleKeyword RejectReason = "title_keyword"
	ReasonBonusContent RejectReason = "bonus_content"
	ReasonObscure      RejectReason = "below_obscurity_threshold"
	ReasonDuplicate    RejectReason = "duplicate_edition"
	ReasonRepeated     RejectReason = "repeated_record"
)

// Verdict is the outcome of a filter stage. Detail names the tag, keyword
// or canonical key that triggered a rejection.
type Verdict struct {
	Publishable bool
	Reason      RejectReason
	Detail      string
}

var accept = Verdict{Publishable: true}

func reject(reason RejectReason, detail string) Verdict {
	return Verdict{Reason: reason, Detail: detail}
}

// SafetyClassifier decides whether a catalog record may be published
type SafetyClassifier struct {
	adultsOnly    string
	hardBan       map[string]struct{}
	risky         map[string]struct{}
	riskyMinAdded int
	titleKeywords []string
}

// NewSafetyClassifier builds a classifier from policy.
// The hard-ban and risky tag sets must not overlap.
func NewSafetyClassifier(policy Policy) (*SafetyClassifier, error) {
	hardBan := toSet(policy.HardBanTags)
	risky := toSet(policy.RiskyTags)

	var overlap []string
	for slug := range risky {
		if _, ok := hardBan[slug]; ok {
			overlap = append(overlap, slug)
		}
	}
	if len(overlap) > 0 {
		sort.Strings(overlap)
		return nil, fmt.Errorf("tags listed as both hard-ban and risky: %s", strings.Join(overlap, ", "))
	}

	return &SafetyClassifier{
		adultsOnly:    policy.AdultsOnlyESRB,
		hardBan:       hardBan,
		risky:         risky,
		riskyMinAdded: policy.RiskyMinAdded,
		titleKeywords: lowerAll(policy.BannedTitleKeywords),
	}, nil
}

// Classify runs the checks in order; the first failing check wins.
// Only the record itself is inspected, never its parent records.
func (c *SafetyClassifier) Classify(rec *models.CatalogRecord) Verdict {
	if rec.ESRBRating != nil && c.adultsOnly != "" && rec.ESRBRating.Slug == c.adultsOnly {
		return reject(ReasonAdultsOnly, rec.ESRBRating.Slug)
	}

	// Tags may be null upstream; ranging over a nil slice is a no-op
	for _, tag := range rec.Tags {
		if _, ok := c.hardBan[tag.Slug]; ok {
			return reject(ReasonHardBanTag, tag.Slug)
		}
	}

	if rec.Added < c.riskyMinAdded {
		for _, tag := range rec.Tags {
			if _, ok := c.risky[tag.Slug]; ok {
				return reject(ReasonRiskyTag, tag.Slug)
			}
		}
	}

	title := lower(rec.Name)
	for _, keyword := range c.titleKeywords {
		if strings.Contains(title, keyword) {
			return reject(ReasonTitleKeyword, keyword)
		}
	}

	return accept
}

// IsPublishable reports whether the record passes every safety check
func (c *SafetyClassifier) IsPublishable(rec *models.CatalogRecord) bool {
	return c.Classify(rec).Publishable
}
