package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Ironcock/GameReleaseFetcher/internal/config"
	"github.com/Ironcock/GameReleaseFetcher/internal/metrics"
	"github.com/Ironcock/GameReleaseFetcher/internal/models"
	"github.com/Ironcock/GameReleaseFetcher/internal/pipeline"
	"github.com/Ironcock/GameReleaseFetcher/internal/services/igdb"
	"github.com/Ironcock/GameReleaseFetcher/internal/services/rawg"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
)

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// memoryRuns is an in-memory RunStore
type memoryRuns struct {
	runs []*models.FeedRun
}

func (m *memoryRuns) CreateRun(run *models.FeedRun) error {
	run.ID = uint64(len(m.runs) + 1)
	m.runs = append(m.runs, run)
	return nil
}

func (m *memoryRuns) UpdateRun(run *models.FeedRun) error {
	m.runs[run.ID-1] = run
	return nil
}

// pageList serves fixed pages in order and fails on request failAt
type pageList struct {
	pages    [][]models.CatalogRecord
	failAt   int
	requests int
}

func (p *pageList) FetchPage(ctx context.Context, req pipeline.PageRequest) (*pipeline.Page, error) {
	p.requests++
	if p.requests == p.failAt {
		return nil, errors.New("connection reset")
	}
	if p.requests > len(p.pages) {
		return &pipeline.Page{Last: true}, nil
	}
	return &pipeline.Page{Records: p.pages[p.requests-1], Last: p.requests == len(p.pages)}, nil
}

type trailerMap map[int64]string

func (m trailerMap) Trailer(ctx context.Context, id int64) (string, error) {
	if url, ok := m[id]; ok {
		return url, nil
	}
	return "", pipeline.ErrNotFound
}

func newTestController(t *testing.T, src pipeline.PageSource, trailers pipeline.TrailerSource, runs RunStore) (*FeedController, *metrics.Metrics) {
	t.Helper()
	logger := quietLogger()

	classifier, err := pipeline.NewSafetyClassifier(pipeline.DefaultPolicy())
	if err != nil {
		t.Fatalf("NewSafetyClassifier() error = %v", err)
	}

	m := metrics.New()
	c := NewFeedController(
		models.SourceRAWG,
		pipeline.NewPager(src, pipeline.PagerOptions{PageSize: 40, MaxPages: 5}, logger),
		classifier,
		pipeline.NewDeduplicator(pipeline.DefaultPolicy()),
		pipeline.SiteStoreURL("https://rawg.io"),
		trailers,
		runs,
		m,
		logger,
	)
	c.now = func() time.Time { return fixedNow }
	return c, m
}

func game(id int64, name string, added int, tagSlugs ...string) models.CatalogRecord {
	rec := models.CatalogRecord{ID: id, Name: name, Slug: fmt.Sprintf("game-%d", id), Added: added}
	for _, slug := range tagSlugs {
		rec.Tags = append(rec.Tags, models.Tag{Slug: slug, Name: slug})
	}
	return rec
}

// catalogServer fakes the RAWG search endpoint: 40 records with a next
// link, then 5 records with next null
func catalogServer(t *testing.T, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)

		start, count, next := 1, 40, fmt.Sprintf(`"%s/games?key=test-key&page=2"`, server.URL)
		if r.URL.Query().Get("page") == "2" {
			start, count, next = 41, 5, "null"
		}

		results := make([]string, 0, count)
		for id := start; id < start+count; id++ {
			results = append(results, fmt.Sprintf(`{"id": %d, "name": "Title %d", "slug": "title-%d", "added": 500, "tags": null}`, id, id, id))
		}
		fmt.Fprintf(w, `{"count": 45, "next": %s, "results": [%s]}`, next, strings.Join(results, ","))
	}))
	t.Cleanup(server.Close)
	return server
}

func rawgSource(serverURL string) *rawg.Client {
	return rawg.NewClient(&config.Config{
		RAWGAPIKey:         "test-key",
		RAWGBaseURL:        serverURL,
		PCParentPlatformID: 1,
		HTTPTimeout:        5 * time.Second,
	}, quietLogger())
}

func TestBuildFeedAcrossTwoPages(t *testing.T) {
	var requests atomic.Int32
	server := catalogServer(t, &requests)
	c, _ := newTestController(t, rawgSource(server.URL), nil, nil)

	records, err := c.BuildFeed(context.Background(), FeedSpec{Name: models.FeedNewReleases, Limit: 45, GenreLimit: 2})
	if err != nil {
		t.Fatalf("BuildFeed() error = %v", err)
	}
	if len(records) != 45 {
		t.Fatalf("Expected 45 records, got %d", len(records))
	}

	seen := make(map[int64]bool)
	for _, rec := range records {
		if seen[rec.ID] {
			t.Errorf("Duplicate id %d", rec.ID)
		}
		seen[rec.ID] = true
	}
	if got := requests.Load(); got != 2 {
		t.Errorf("Expected 2 requests, got %d", got)
	}
	if records[44].StoreURL != "https://rawg.io/games/title-45" {
		t.Errorf("Unexpected store URL %s", records[44].StoreURL)
	}
}

func TestBuildFeedStopsOnFirstPage(t *testing.T) {
	var requests atomic.Int32
	server := catalogServer(t, &requests)
	c, _ := newTestController(t, rawgSource(server.URL), nil, nil)

	records, err := c.BuildFeed(context.Background(), FeedSpec{Name: models.FeedNewReleases, Limit: 3, GenreLimit: 2})
	if err != nil {
		t.Fatalf("BuildFeed() error = %v", err)
	}
	if len(records) != 3 {
		t.Errorf("Expected 3 records, got %d", len(records))
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("Page 2 must never be requested, got %d requests", got)
	}
}

func TestBuildFeedFiltersAndCounts(t *testing.T) {
	src := &pageList{pages: [][]models.CatalogRecord{{
		game(1, "Sunny Farm", 300),
		game(2, "Night Club", 5000, "nsfw"),
		game(3, "Shy Painter", 3, "nudity"),
		game(1, "Sunny Farm", 300),
		game(4, "Sunny Farm: Game of the Year Edition", 800),
	}}}
	runs := &memoryRuns{}
	c, m := newTestController(t, src, nil, runs)

	records, err := c.BuildFeed(context.Background(), FeedSpec{Name: models.FeedNewReleases, Limit: 10})
	if err != nil {
		t.Fatalf("BuildFeed() error = %v", err)
	}

	// Daily feeds keep editions: only the classifier and the repeat check apply
	if len(records) != 2 || records[0].ID != 1 || records[1].ID != 4 {
		t.Fatalf("Unexpected records: %+v", records)
	}

	if len(runs.runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs.runs))
	}
	run := runs.runs[0]
	if run.Status != models.RunStatusCompleted || run.Fetched != 5 || run.Accepted != 2 || run.FinishedAt == nil {
		t.Errorf("Unexpected run: %+v", run)
	}
	for reason, want := range map[pipeline.RejectReason]int{
		pipeline.ReasonHardBanTag: 1,
		pipeline.ReasonRiskyTag:   1,
		pipeline.ReasonRepeated:   1,
	} {
		if got := run.Rejections[string(reason)]; got != want {
			t.Errorf("Rejections[%s] = %d, want %d", reason, got, want)
		}
	}

	if got := testutil.ToFloat64(m.RecordsRejected.WithLabelValues("NewReleases", "hard_ban_tag")); got != 1 {
		t.Errorf("Expected 1 hard ban rejection metric, got %v", got)
	}
	if got := testutil.ToFloat64(m.RecordsAccepted.WithLabelValues("NewReleases")); got != 2 {
		t.Errorf("Expected 2 accepted metric, got %v", got)
	}
}

func TestBuildFeedCleanDuplicates(t *testing.T) {
	page := []models.CatalogRecord{
		game(1, "Great Game", 500),
		game(2, "Great Game: Game of the Year Edition", 900),
		game(3, "Great Game Soundtrack", 900),
		game(4, "Tiny Indie", 10),
		game(5, "Other Game", 200),
	}
	c, _ := newTestController(t, &pageList{pages: [][]models.CatalogRecord{page}}, nil, nil)

	spec := FeedSpec{Name: models.FeedHallOfFame, Limit: 10, CleanDuplicates: true}
	records, err := c.BuildFeed(context.Background(), spec)
	if err != nil {
		t.Fatalf("BuildFeed() error = %v", err)
	}
	if len(records) != 2 || records[0].ID != 1 || records[1].ID != 5 {
		t.Errorf("Unexpected records: %+v", records)
	}

	// A second feed starts with an empty key set
	c2, _ := newTestController(t, &pageList{pages: [][]models.CatalogRecord{page}}, nil, nil)
	again, err := c2.BuildFeed(context.Background(), spec)
	if err != nil {
		t.Fatalf("BuildFeed() error = %v", err)
	}
	if len(again) != 2 || again[0].ID != 1 {
		t.Errorf("Dedup state leaked across feeds: %+v", again)
	}
}

func TestBuildFeedPartialOnError(t *testing.T) {
	first := make([]models.CatalogRecord, 0, 40)
	for i := int64(1); i <= 40; i++ {
		first = append(first, game(i, fmt.Sprintf("Title %d", i), 100))
	}
	src := &pageList{pages: [][]models.CatalogRecord{first, first}, failAt: 2}
	runs := &memoryRuns{}
	c, m := newTestController(t, src, nil, runs)

	records, err := c.BuildFeed(context.Background(), FeedSpec{Name: models.FeedUpcoming, Limit: 50})
	if err == nil {
		t.Fatal("Expected transport error")
	}
	if len(records) != 40 {
		t.Errorf("Expected 40 partial records, got %d", len(records))
	}
	if runs.runs[0].Status != models.RunStatusPartial || runs.runs[0].Error == "" {
		t.Errorf("Run should be partial with an error: %+v", runs.runs[0])
	}
	if got := testutil.ToFloat64(m.FeedRuns.WithLabelValues("Upcoming", "partial")); got != 1 {
		t.Errorf("Expected partial run metric, got %v", got)
	}
}

func TestBuildFeedTrailerHead(t *testing.T) {
	clip := &models.Clip{Clip: "preview.mp4"}
	page := []models.CatalogRecord{
		game(1, "First", 100),
		game(2, "Second", 100),
		game(3, "Third", 100),
	}
	for i := range page {
		page[i].Clip = clip
	}

	trailers := trailerMap{1: "trailer-1.mp4", 3: "trailer-3.mp4"}
	c, m := newTestController(t, &pageList{pages: [][]models.CatalogRecord{page}}, trailers, nil)

	records, err := c.BuildFeed(context.Background(), FeedSpec{Name: models.FeedHallOfFame, Limit: 3, TrailerHead: 2})
	if err != nil {
		t.Fatalf("BuildFeed() error = %v", err)
	}

	want := []string{"trailer-1.mp4", "preview.mp4", "preview.mp4"}
	for i, rec := range records {
		if rec.VideoURL != want[i] {
			t.Errorf("Record %d VideoURL = %q, want %q", i, rec.VideoURL, want[i])
		}
	}
	if got := testutil.ToFloat64(m.TrailerLookups.WithLabelValues("missing")); got != 1 {
		t.Errorf("Expected 1 missing trailer lookup, got %v", got)
	}
	if got := testutil.CollectAndCount(m.TrailerLookups); got != 2 {
		t.Errorf("Only the head should be looked up, got %d outcome series", got)
	}
}

func TestPublishDailyWritesPartialDocument(t *testing.T) {
	src := &pageList{pages: [][]models.CatalogRecord{{game(1, "Only One", 100)}}, failAt: 2}
	c, _ := newTestController(t, src, nil, nil)

	path := filepath.Join(t.TempDir(), "daily_games.json")
	err := c.PublishDaily(context.Background(), path)
	if !errors.Is(err, ErrPartialFeed) {
		t.Fatalf("Expected ErrPartialFeed, got %v", err)
	}

	data, readErr := os.ReadFile(path)
	if readErr != nil {
		t.Fatalf("Document should be written despite the error: %v", readErr)
	}

	var doc map[string][]map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if len(doc["NewReleases"]) != 1 {
		t.Errorf("Expected 1 new release, got %d", len(doc["NewReleases"]))
	}
	upcoming, ok := doc["Upcoming"]
	if !ok || upcoming == nil || len(upcoming) != 0 {
		t.Errorf("Upcoming should be an empty list, got %v", doc["Upcoming"])
	}
	if strings.Contains(string(data), "null") {
		t.Errorf("Document contains null: %s", data)
	}
}

func TestPublishMonthly(t *testing.T) {
	src := &pageList{pages: [][]models.CatalogRecord{{game(1, "Classic", 5000), game(2, "Classic Remastered", 9000)}}}
	c, _ := newTestController(t, src, trailerMap{}, nil)

	path := filepath.Join(t.TempDir(), "top_games.json")
	if err := c.PublishMonthly(context.Background(), path, 10); err != nil {
		t.Fatalf("PublishMonthly() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var doc models.MonthlyDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if len(doc.HallOfFame) != 1 || doc.HallOfFame[0].Title != "Classic" {
		t.Errorf("Unexpected hall of fame: %+v", doc.HallOfFame)
	}
}

// igdbServer fakes the Twitch token endpoint and the IGDB games endpoint
func igdbServer(t *testing.T, games string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token": "token", "expires_in": 5000000, "token_type": "bearer"}`)
	})
	mux.HandleFunc("/v4/games", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, games)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestGenerateMonthlyIGDBUsesRatingsForAudience(t *testing.T) {
	server := igdbServer(t, `[
		{"id": 1942, "name": "The Witcher 3: Wild Hunt", "rating": 92.6, "rating_count": 4000,
		 "external_games": [{"category": 1, "uid": "292030"}]},
		{"id": 72, "name": "Portal 2", "rating": 91.2, "rating_count": 2500, "hypes": 3},
		{"id": 9, "name": "Forgotten Game", "rating": 88.0, "rating_count": 12}
	]`)
	logger := quietLogger()
	source := igdb.NewClient(&config.Config{
		IGDBClientID:     "client",
		IGDBClientSecret: "secret",
		IGDBBaseURL:      server.URL + "/v4",
		IGDBAuthURL:      server.URL + "/oauth2/token",
		HTTPTimeout:      5 * time.Second,
	}, logger)

	classifier, err := pipeline.NewSafetyClassifier(pipeline.DefaultPolicy())
	if err != nil {
		t.Fatalf("NewSafetyClassifier() error = %v", err)
	}
	c := NewFeedController(
		models.SourceIGDB,
		pipeline.NewPager(source, pipeline.PagerOptions{PageSize: 40, MaxPages: 5}, logger),
		classifier,
		pipeline.NewDeduplicator(pipeline.DefaultPolicy()),
		pipeline.NewStoreResolver(nil).Resolve,
		nil,
		nil,
		metrics.New(),
		logger,
	)
	c.now = func() time.Time { return fixedNow }

	doc, err := c.GenerateMonthly(context.Background(), 10)
	if err != nil {
		t.Fatalf("GenerateMonthly() error = %v", err)
	}
	if len(doc.HallOfFame) != 2 {
		t.Fatalf("Expected 2 hall of fame entries, got %+v", doc.HallOfFame)
	}
	if doc.HallOfFame[0].Title != "The Witcher 3: Wild Hunt" || doc.HallOfFame[1].Title != "Portal 2" {
		t.Errorf("Unexpected hall of fame order: %s, %s", doc.HallOfFame[0].Title, doc.HallOfFame[1].Title)
	}
	if doc.HallOfFame[0].StoreURL != "https://store.steampowered.com/app/292030" {
		t.Errorf("Unexpected store URL: %s", doc.HallOfFame[0].StoreURL)
	}
}

func TestFeedSpecs(t *testing.T) {
	newReleases := NewReleasesFeed(fixedNow)
	if !newReleases.Query.To.Equal(fixedNow) || newReleases.Query.From.After(fixedNow) || newReleases.CleanDuplicates {
		t.Errorf("Unexpected new releases spec: %+v", newReleases)
	}

	upcoming := UpcomingFeed(fixedNow)
	if !upcoming.Query.From.After(fixedNow) || upcoming.GenreLimit != 2 {
		t.Errorf("Unexpected upcoming spec: %+v", upcoming)
	}

	hof := HallOfFameFeed(fixedNow, 10)
	if !hof.CleanDuplicates || hof.GenreLimit != 3 || hof.Query.Ordering != models.OrderByScore || !hof.Query.NoParents {
		t.Errorf("Unexpected hall of fame spec: %+v", hof)
	}
	if hof.Query.From.Year() != fixedNow.Year()-20 {
		t.Errorf("Hall of fame should reach back 20 years, got %s", hof.Query.From)
	}
}
