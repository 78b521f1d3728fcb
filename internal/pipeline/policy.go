package pipeline

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Policy holds the filter lists and thresholds used by the classifier and
// the deduplicator. It is plain data so tests can substitute fixtures.
type Policy struct {
	AdultsOnlyESRB      string   `yaml:"adults_only_esrb"`
	HardBanTags         []string `yaml:"hard_ban_tags"`
	RiskyTags           []string `yaml:"risky_tags"`
	RiskyMinAdded       int      `yaml:"risky_min_added"`
	BannedTitleKeywords []string `yaml:"banned_title_keywords"`

	EditionMarkers    []string `yaml:"edition_markers"`
	BonusKeywords     []string `yaml:"bonus_keywords"`
	ObscurityMinAdded int      `yaml:"obscurity_min_added"`
}

// DefaultPolicy returns the built-in filter lists
func DefaultPolicy() Policy {
	return Policy{
		AdultsOnlyESRB:      "adults-only",
		HardBanTags:         []string{"nsfw", "erotica", "hentai", "porn", "uncensored", "sex"},
		RiskyTags:           []string{"nudity", "sexual-content", "adult"},
		RiskyMinAdded:       10,
		BannedTitleKeywords: []string{"hentai", "porn", "nsfw", "erotic", "uncensored", "lewd", "strip poker"},

		// Applied in order; longer markers first so "game of the year edition"
		// is not left as " edition" by the shorter "game of the year".
		EditionMarkers: []string{
			"game of the year edition",
			"game of the year",
			"goty edition",
			"goty",
			"complete edition",
			"definitive edition",
			"director's cut",
			"directors cut",
			"final cut",
			"enhanced edition",
			"remastered",
		},
		BonusKeywords:     []string{"dlc", "soundtrack", "expansion pass", "season pass", "bonus content"},
		ObscurityMinAdded: 50,
	}
}

// LoadPolicy overlays the YAML file at path onto base.
// A missing file is not an error; base is returned unchanged.
func LoadPolicy(path string, base Policy) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return base, fmt.Errorf("failed to read policy file: %w", err)
	}

	policy := base
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return base, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}

	return policy, nil
}

// lower folds s to lower case. A new caser is built per call because
// cases.Caser keeps internal state.
func lower(s string) string {
	return cases.Lower(language.Und).String(s)
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item != "" {
			set[item] = struct{}{}
		}
	}
	return set
}

func lowerAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(lower(item))
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
