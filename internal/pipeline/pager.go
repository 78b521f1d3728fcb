package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ironcock/GameReleaseFetcher/internal/models"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Ironcock/GameReleaseFetcher/internal/pipeline"

// ErrNotFound is returned by optional lookups that found nothing; callers
// fall back to the default value
var ErrNotFound = errors.New("not found")

// Query describes a feed's search independently of the upstream API
type Query struct {
	From           time.Time // Release date lower bound, zero for none
	To             time.Time // Release date upper bound, zero for none
	Ordering       models.Ordering
	MinScore       int  // Critic score lower bound, 0 for none
	MinRatingCount int  // Rating count lower bound, 0 for none
	MainGamesOnly  bool // Exclude DLC, bundles and other additions
	NoParents      bool // Exclude records that have a parent or version parent
}

// PageRequest is one page fetch. Cursor, when set, is the opaque
// continuation returned by the previous page and takes precedence over Page.
type PageRequest struct {
	Query    Query
	Page     int
	PageSize int
	Cursor   string
}

// Page is one page of raw catalog records
type Page struct {
	Records []models.CatalogRecord
	Next    string // Cursor for the following page, if the API returns one
	Last    bool   // The source knows there are no further pages
}

// PageSource fetches single pages from an upstream catalog
type PageSource interface {
	FetchPage(ctx context.Context, req PageRequest) (*Page, error)
}

// TrailerSource looks up an official trailer for a record.
// It returns ErrNotFound when the record has none.
type TrailerSource interface {
	Trailer(ctx context.Context, id int64) (string, error)
}

// PagerOptions bounds pagination
type PagerOptions struct {
	PageSize int
	MaxPages int           // Hard ceiling on requests per walk
	Delay    time.Duration // Pause between consecutive page requests
}

// WalkStats summarizes one walk
type WalkStats struct {
	Pages   int // Page requests that returned successfully
	Fetched int // Raw records handed to the visitor
	Counted int // Records the visitor counted toward the target
}

// Pager drives sequential, rate-limited pagination against a PageSource
type Pager struct {
	source PageSource
	opts   PagerOptions
	logger *logrus.Logger
	tracer trace.Tracer
}

// NewPager creates a new pager
func NewPager(source PageSource, opts PagerOptions, logger *logrus.Logger) *Pager {
	if opts.PageSize <= 0 {
		opts.PageSize = 40
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 10
	}
	return &Pager{
		source: source,
		opts:   opts,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
}

// Walk pages through the query, handing each raw record to visit, until
// visit has counted target records, MaxPages requests were made, a page
// comes back empty, or the source reports the last page.
//
// A failed page ends the walk: the returned stats cover everything visited
// before the failure and the error is returned alongside them.
func (p *Pager) Walk(ctx context.Context, q Query, target int, visit func(rec *models.CatalogRecord) bool) (WalkStats, error) {
	var stats WalkStats
	if target <= 0 {
		return stats, nil
	}

	page := 1
	cursor := ""

	for stats.Pages < p.opts.MaxPages {
		if stats.Pages > 0 {
			if err := p.wait(ctx); err != nil {
				return stats, err
			}
		}

		result, err := p.fetch(ctx, PageRequest{Query: q, Page: page, PageSize: p.opts.PageSize, Cursor: cursor})
		if err != nil {
			return stats, fmt.Errorf("page %d: %w", page, err)
		}
		stats.Pages++

		p.logger.WithFields(logrus.Fields{
			"page":    page,
			"records": len(result.Records),
			"last":    result.Last,
		}).Debug("Fetched catalog page")

		if len(result.Records) == 0 {
			return stats, nil
		}

		for i := range result.Records {
			stats.Fetched++
			if visit(&result.Records[i]) {
				stats.Counted++
				if stats.Counted >= target {
					return stats, nil
				}
			}
		}

		if result.Last {
			return stats, nil
		}
		cursor = result.Next
		page++
	}

	p.logger.WithFields(logrus.Fields{
		"max_pages": p.opts.MaxPages,
		"counted":   stats.Counted,
		"target":    target,
	}).Info("Page ceiling reached before target")

	return stats, nil
}

// Fetch collects up to target raw records
func (p *Pager) Fetch(ctx context.Context, q Query, target int) ([]models.CatalogRecord, error) {
	records := make([]models.CatalogRecord, 0, target)
	_, err := p.Walk(ctx, q, target, func(rec *models.CatalogRecord) bool {
		records = append(records, *rec)
		return true
	})
	return records, err
}

func (p *Pager) fetch(ctx context.Context, req PageRequest) (*Page, error) {
	ctx, span := p.tracer.Start(ctx, "catalog.page", trace.WithAttributes(
		attribute.Int("page", req.Page),
		attribute.Int("page_size", req.PageSize),
		attribute.Bool("cursor", req.Cursor != ""),
	))
	defer span.End()

	result, err := p.source.FetchPage(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if result == nil {
		result = &Page{Last: true}
	}
	span.SetAttributes(attribute.Int("records", len(result.Records)))
	return result, nil
}

func (p *Pager) wait(ctx context.Context) error {
	if p.opts.Delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(p.opts.Delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
