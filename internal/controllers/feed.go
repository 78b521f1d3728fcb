package controllers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Ironcock/GameReleaseFetcher/internal/metrics"
	"github.com/Ironcock/GameReleaseFetcher/internal/models"
	"github.com/Ironcock/GameReleaseFetcher/internal/pipeline"
	"github.com/Ironcock/GameReleaseFetcher/internal/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Ironcock/GameReleaseFetcher/internal/controllers"

// ErrPartialFeed marks a published document whose feeds stopped early.
// The document was still written; the wrapped errors say why.
var ErrPartialFeed = errors.New("feed published with partial results")

// RunStore persists feed run history
type RunStore interface {
	CreateRun(run *models.FeedRun) error
	UpdateRun(run *models.FeedRun) error
}

// FeedController builds feeds: it pages the catalog, filters each record
// and maps the survivors onto the published schema
type FeedController struct {
	source     models.Source
	pager      *pipeline.Pager
	classifier *pipeline.SafetyClassifier
	dedup      *pipeline.Deduplicator
	storeURL   pipeline.StoreURLFunc
	trailers   pipeline.TrailerSource
	runs       RunStore
	metrics    *metrics.Metrics
	logger     *logrus.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewFeedController creates a new feed controller. trailers and runs may be nil.
func NewFeedController(
	source models.Source,
	pager *pipeline.Pager,
	classifier *pipeline.SafetyClassifier,
	dedup *pipeline.Deduplicator,
	storeURL pipeline.StoreURLFunc,
	trailers pipeline.TrailerSource,
	runs RunStore,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *FeedController {
	return &FeedController{
		source:     source,
		pager:      pager,
		classifier: classifier,
		dedup:      dedup,
		storeURL:   storeURL,
		trailers:   trailers,
		runs:       runs,
		metrics:    m,
		logger:     logger,
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
	}
}

// BuildFeed produces up to spec.Limit accepted records in upstream order.
//
// A transport error ends paging early; the records accepted so far are
// returned together with the error so the caller can still publish them.
func (c *FeedController) BuildFeed(ctx context.Context, spec FeedSpec) ([]models.OutputRecord, error) {
	ctx, span := c.tracer.Start(ctx, "feed.build", trace.WithAttributes(
		attribute.String("feed", string(spec.Name)),
		attribute.String("source", string(c.source)),
		attribute.Int("limit", spec.Limit),
	))
	defer span.End()

	run := &models.FeedRun{
		Feed:       spec.Name,
		Source:     c.source,
		Status:     models.RunStatusRunning,
		Rejections: make(map[string]int),
		StartedAt:  c.now(),
	}
	c.createRun(run)

	log := c.logger.WithFields(logrus.Fields{
		"feed":   spec.Name,
		"source": c.source,
		"limit":  spec.Limit,
	})
	log.Info("Building feed")

	acc := pipeline.NewAccumulator()
	mapper := pipeline.NewMapper(c.storeURL, spec.GenreLimit)

	stats, err := c.pager.Walk(ctx, spec.Query, spec.Limit, func(rec *models.CatalogRecord) bool {
		verdict := c.filter(spec, rec, acc)
		if !verdict.Publishable {
			c.recordRejection(run, spec, rec, verdict)
			return false
		}

		if acc.Len() < spec.TrailerHead {
			c.attachTrailer(ctx, rec)
		}
		acc.Add(mapper.Map(rec))
		return true
	})

	run.Pages = stats.Pages
	run.Fetched = stats.Fetched
	run.Accepted = acc.Len()
	run.Status = models.RunStatusCompleted
	if err != nil {
		run.Status = models.RunStatusPartial
		run.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	finished := c.now()
	run.FinishedAt = &finished
	c.updateRun(run)
	c.observe(spec, run)

	span.SetAttributes(
		attribute.Int("pages", stats.Pages),
		attribute.Int("accepted", acc.Len()),
	)

	fields := logrus.Fields{
		"pages":    stats.Pages,
		"fetched":  stats.Fetched,
		"accepted": acc.Len(),
		"rejected": stats.Fetched - acc.Len(),
	}
	if err != nil {
		log.WithFields(fields).WithError(err).Warn("Feed stopped early, keeping partial results")
		return acc.Records(), fmt.Errorf("feed %s: %w", spec.Name, err)
	}
	if acc.Len() < spec.Limit {
		log.WithFields(fields).Info("Feed built with fewer records than requested")
	} else {
		log.WithFields(fields).Info("Feed built")
	}

	return acc.Records(), nil
}

// filter runs the record through the safety classifier, the repeat check
// and, for curated feeds, the edition deduplicator
func (c *FeedController) filter(spec FeedSpec, rec *models.CatalogRecord, acc *pipeline.Accumulator) pipeline.Verdict {
	if verdict := c.classifier.Classify(rec); !verdict.Publishable {
		return verdict
	}

	if acc.Contains(rec.ID) {
		return pipeline.Verdict{Reason: pipeline.ReasonRepeated, Detail: strconv.FormatInt(rec.ID, 10)}
	}

	if spec.CleanDuplicates {
		return c.dedup.Check(rec, acc.Keys())
	}

	return pipeline.Verdict{Publishable: true}
}

func (c *FeedController) attachTrailer(ctx context.Context, rec *models.CatalogRecord) {
	if c.trailers == nil {
		return
	}

	trailer, err := c.trailers.Trailer(ctx, rec.ID)
	switch {
	case err == nil:
		rec.Trailer = trailer
		c.countTrailer("found")
	case errors.Is(err, pipeline.ErrNotFound):
		c.countTrailer("missing")
	default:
		c.countTrailer("error")
		c.logger.WithError(err).WithField("game_id", rec.ID).Warn("Trailer lookup failed, using preview clip")
	}
}

func (c *FeedController) recordRejection(run *models.FeedRun, spec FeedSpec, rec *models.CatalogRecord, verdict pipeline.Verdict) {
	run.Rejections[string(verdict.Reason)]++
	if c.metrics != nil {
		c.metrics.RecordsRejected.WithLabelValues(string(spec.Name), string(verdict.Reason)).Inc()
	}

	c.logger.WithFields(logrus.Fields{
		"feed":   spec.Name,
		"id":     rec.ID,
		"title":  rec.Name,
		"reason": verdict.Reason,
		"detail": verdict.Detail,
	}).Debug("Rejected record")
}

func (c *FeedController) observe(spec FeedSpec, run *models.FeedRun) {
	if c.metrics == nil {
		return
	}

	feed := string(spec.Name)
	c.metrics.RecordsFetched.WithLabelValues(feed).Add(float64(run.Fetched))
	c.metrics.RecordsAccepted.WithLabelValues(feed).Add(float64(run.Accepted))
	c.metrics.PagesFetched.WithLabelValues(feed).Add(float64(run.Pages))
	c.metrics.FeedRuns.WithLabelValues(feed, string(run.Status)).Inc()
	if run.Status == models.RunStatusCompleted {
		c.metrics.LastSuccess.WithLabelValues(feed).Set(float64(run.FinishedAt.Unix()))
	}
}

func (c *FeedController) countTrailer(outcome string) {
	if c.metrics != nil {
		c.metrics.TrailerLookups.WithLabelValues(outcome).Inc()
	}
}

func (c *FeedController) createRun(run *models.FeedRun) {
	if c.runs == nil {
		return
	}
	if err := c.runs.CreateRun(run); err != nil {
		c.logger.WithError(err).Warn("Failed to record feed run")
	}
}

func (c *FeedController) updateRun(run *models.FeedRun) {
	if c.runs == nil || run.ID == 0 {
		return
	}
	if err := c.runs.UpdateRun(run); err != nil {
		c.logger.WithError(err).Warn("Failed to update feed run")
	}
}

// GenerateDaily builds the new releases and upcoming feeds. Both feeds are
// always attempted and their errors are joined.
func (c *FeedController) GenerateDaily(ctx context.Context) (*models.DailyDocument, error) {
	now := c.now()

	newReleases, newErr := c.BuildFeed(ctx, NewReleasesFeed(now))
	upcoming, upErr := c.BuildFeed(ctx, UpcomingFeed(now))

	doc := &models.DailyDocument{NewReleases: newReleases, Upcoming: upcoming}
	return doc, errors.Join(newErr, upErr)
}

// GenerateMonthly builds the hall of fame feed
func (c *FeedController) GenerateMonthly(ctx context.Context, trailerHead int) (*models.MonthlyDocument, error) {
	hallOfFame, err := c.BuildFeed(ctx, HallOfFameFeed(c.now(), trailerHead))
	return &models.MonthlyDocument{HallOfFame: hallOfFame}, err
}

// PublishDaily generates the daily document and writes it to path. The
// file is written even when a feed stopped early, in which case the
// returned error wraps ErrPartialFeed.
func (c *FeedController) PublishDaily(ctx context.Context, path string) error {
	doc, genErr := c.GenerateDaily(ctx)
	if err := utils.WriteJSON(path, doc); err != nil {
		return fmt.Errorf("failed to write daily feed: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"path":         path,
		"new_releases": len(doc.NewReleases),
		"upcoming":     len(doc.Upcoming),
	}).Info("Published daily feed")

	return partial(genErr)
}

// PublishMonthly generates the monthly document and writes it to path
func (c *FeedController) PublishMonthly(ctx context.Context, path string, trailerHead int) error {
	doc, genErr := c.GenerateMonthly(ctx, trailerHead)
	if err := utils.WriteJSON(path, doc); err != nil {
		return fmt.Errorf("failed to write monthly feed: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"path":         path,
		"hall_of_fame": len(doc.HallOfFame),
	}).Info("Published monthly feed")

	return partial(genErr)
}

func partial(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPartialFeed, err)
}
