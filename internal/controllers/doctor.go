package controllers

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Ironcock/GameReleaseFetcher/internal/models"
	"github.com/Ironcock/GameReleaseFetcher/internal/pipeline"
	"github.com/agnivade/levenshtein"
	"github.com/sirupsen/logrus"
)

const (
	// nearDuplicateDistance is the largest edit distance between two
	// canonical keys that is still reported as a likely duplicate
	nearDuplicateDistance = 2
	nearDuplicateMinLen   = 5
)

// Diagnosis is the classifier outcome for one record
type Diagnosis struct {
	ID      int64
	Title   string
	Added   int
	Key     string // Canonical dedup key
	Verdict pipeline.Verdict
}

// NearDuplicate pairs two distinct canonical keys that differ by only a few
// edits; exact duplicates are already caught by the deduplicator
type NearDuplicate struct {
	A, B     string
	Distance int
}

// DoctorReport explains how the filters treat one page of new releases
type DoctorReport struct {
	From, To       time.Time
	Diagnoses      []Diagnosis
	NearDuplicates []NearDuplicate
}

// Accepted returns how many diagnosed records passed the classifier
func (r *DoctorReport) Accepted() int {
	n := 0
	for _, d := range r.Diagnoses {
		if d.Verdict.Publishable {
			n++
		}
	}
	return n
}

// DoctorController runs the filters against live data without writing feeds
type DoctorController struct {
	pager      *pipeline.Pager
	classifier *pipeline.SafetyClassifier
	dedup      *pipeline.Deduplicator
	logger     *logrus.Logger
}

// NewDoctorController creates a new doctor controller
func NewDoctorController(pager *pipeline.Pager, classifier *pipeline.SafetyClassifier, dedup *pipeline.Deduplicator, logger *logrus.Logger) *DoctorController {
	return &DoctorController{
		pager:      pager,
		classifier: classifier,
		dedup:      dedup,
		logger:     logger,
	}
}

// Diagnose fetches up to limit of the most recently released titles and
// records each verdict
func (c *DoctorController) Diagnose(ctx context.Context, now time.Time, limit int) (*DoctorReport, error) {
	query := pipeline.Query{
		From:     now.Add(-newReleasesWindow),
		To:       now,
		Ordering: models.OrderByReleased,
	}

	records, err := c.pager.Fetch(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog page: %w", err)
	}

	report := &DoctorReport{From: query.From, To: query.To}
	keys := make([]string, 0, len(records))
	seen := make(map[string]bool)

	for i := range records {
		rec := &records[i]
		d := Diagnosis{
			ID:      rec.ID,
			Title:   rec.Name,
			Added:   rec.Added,
			Key:     c.dedup.Canonicalize(rec.Name),
			Verdict: c.classifier.Classify(rec),
		}
		report.Diagnoses = append(report.Diagnoses, d)

		if d.Key != "" && !seen[d.Key] {
			seen[d.Key] = true
			keys = append(keys, d.Key)
		}
	}

	report.NearDuplicates = nearDuplicates(keys)

	c.logger.WithFields(logrus.Fields{
		"records":         len(report.Diagnoses),
		"accepted":        report.Accepted(),
		"near_duplicates": len(report.NearDuplicates),
	}).Info("Diagnosis complete")

	return report, nil
}

func nearDuplicates(keys []string) []NearDuplicate {
	var pairs []NearDuplicate
	for i := 0; i < len(keys); i++ {
		if len(keys[i]) < nearDuplicateMinLen {
			continue
		}
		for j := i + 1; j < len(keys); j++ {
			if len(keys[j]) < nearDuplicateMinLen {
				continue
			}
			if dist := levenshtein.ComputeDistance(keys[i], keys[j]); dist <= nearDuplicateDistance {
				pairs = append(pairs, NearDuplicate{A: keys[i], B: keys[j], Distance: dist})
			}
		}
	}
	return pairs
}

// Write prints the report in a human readable form
func (r *DoctorReport) Write(w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Date range: %s to %s\n", r.From.Format("2006-01-02"), r.To.Format("2006-01-02"))
	fmt.Fprintf(&b, "Games found: %d, accepted: %d\n\n", len(r.Diagnoses), r.Accepted())

	for _, d := range r.Diagnoses {
		fmt.Fprintf(&b, "GAME: %s (Added: %d)\n", d.Title, d.Added)
		if d.Verdict.Publishable {
			b.WriteString("   > ACCEPTED\n")
			continue
		}
		if d.Verdict.Detail != "" {
			fmt.Fprintf(&b, "   > REJECTED (%s: %s)\n", d.Verdict.Reason, d.Verdict.Detail)
		} else {
			fmt.Fprintf(&b, "   > REJECTED (%s)\n", d.Verdict.Reason)
		}
	}

	if len(r.NearDuplicates) > 0 {
		b.WriteString("\nPossible duplicates:\n")
		for _, p := range r.NearDuplicates {
			fmt.Fprintf(&b, "   %s ~ %s (distance %d)\n", p.A, p.B, p.Distance)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
