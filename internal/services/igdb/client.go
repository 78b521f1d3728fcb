package igdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/Ironcock/GameReleaseFetcher/internal/config"
	"github.com/Ironcock/GameReleaseFetcher/internal/models"
	"github.com/Ironcock/GameReleaseFetcher/internal/pipeline"
	"github.com/Ironcock/GameReleaseFetcher/internal/services"
	"github.com/sirupsen/logrus"
)

const (
	serviceName = "igdb"

	// pcPlatformID is IGDB's platform id for PC (Windows)
	pcPlatformID = 6

	maxScreenshots = 10
	dateLayout     = "2006-01-02"
)

// gameFields is requested for every query; the external listings of the
// game and its parents feed the store resolver
var gameFields = []string{
	"name", "slug", "cover.url", "screenshots.url",
	"rating", "rating_count", "first_release_date", "hypes", "genres.name",
	"external_games.category", "external_games.external_game_source", "external_games.uid", "external_games.url",
	"parent_game.external_games.category", "parent_game.external_games.external_game_source", "parent_game.external_games.uid", "parent_game.external_games.url",
	"version_parent.external_games.category", "version_parent.external_games.external_game_source", "version_parent.external_games.uid", "version_parent.external_games.url",
}

var sortClauses = map[models.Ordering]string{
	models.OrderByPopularity: "hypes desc",
	models.OrderByScore:      "rating desc",
	models.OrderByReleased:   "first_release_date desc",
}

// Client handles communication with the IGDB API
type Client struct {
	clientID   string
	baseURL    string
	auth       *Authenticator
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new IGDB API client
func NewClient(cfg *config.Config, logger *logrus.Logger) *Client {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	return &Client{
		clientID:   cfg.IGDBClientID,
		baseURL:    cfg.IGDBBaseURL,
		auth:       NewAuthenticator(cfg.IGDBClientID, cfg.IGDBClientSecret, cfg.IGDBAuthURL, httpClient, logger),
		httpClient: httpClient,
		logger:     logger,
	}
}

type image struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

// game is the subset of an IGDB game object this client requests
type game struct {
	ID               int64                    `json:"id"`
	Name             string                   `json:"name"`
	Slug             string                   `json:"slug"`
	Cover            *image                   `json:"cover"`
	Screenshots      []image                  `json:"screenshots"`
	Rating           *float64                 `json:"rating"`
	RatingCount      int                      `json:"rating_count"`
	FirstReleaseDate *int64                   `json:"first_release_date"`
	Hypes            int                      `json:"hypes"`
	Genres           []models.NamedRef        `json:"genres"`
	ExternalGames    []models.ExternalListing `json:"external_games"`
	ParentGame       *models.RelatedGame      `json:"parent_game"`
	VersionParent    *models.RelatedGame      `json:"version_parent"`
}

// FetchPage fetches one page using offset paging. IGDB has no cursor, so a
// short page is the last one.
func (c *Client) FetchPage(ctx context.Context, req pipeline.PageRequest) (*pipeline.Page, error) {
	body := buildQuery(req)

	var games []game
	err := c.doRequest(ctx, "/games", body, &games)
	if services.IsStatus(err, http.StatusUnauthorized) {
		c.logger.Warn("IGDB rejected the bearer token, re-authenticating")
		c.auth.Invalidate()
		err = c.doRequest(ctx, "/games", body, &games)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch games: %w", err)
	}

	records := make([]models.CatalogRecord, 0, len(games))
	for i := range games {
		records = append(records, games[i].toRecord())
	}

	return &pipeline.Page{Records: records, Last: len(games) < req.PageSize}, nil
}

// buildQuery renders the Apicalypse body for one page
func buildQuery(req pipeline.PageRequest) string {
	q := req.Query
	where := []string{"cover != null", fmt.Sprintf("platforms = (%d)", pcPlatformID)}

	if !q.From.IsZero() {
		where = append(where, fmt.Sprintf("first_release_date >= %d", q.From.Unix()))
	}
	if !q.To.IsZero() {
		where = append(where, fmt.Sprintf("first_release_date <= %d", q.To.Unix()))
	}
	if q.MinScore > 0 {
		where = append(where, fmt.Sprintf("rating >= %d", q.MinScore))
	}
	if q.MinRatingCount > 0 {
		where = append(where, fmt.Sprintf("rating_count > %d", q.MinRatingCount))
	}
	if q.MainGamesOnly {
		where = append(where, "game_type = 0")
	}
	if q.NoParents {
		where = append(where, "parent_game = null", "version_parent = null")
	}

	page := req.Page
	if page < 1 {
		page = 1
	}

	var b strings.Builder
	fmt.Fprintf(&b, "fields %s;\n", strings.Join(gameFields, ","))
	fmt.Fprintf(&b, "where %s;\n", strings.Join(where, " & "))
	if sort, ok := sortClauses[q.Ordering]; ok {
		fmt.Fprintf(&b, "sort %s;\n", sort)
	}
	fmt.Fprintf(&b, "limit %d;\n", req.PageSize)
	fmt.Fprintf(&b, "offset %d;\n", (page-1)*req.PageSize)
	return b.String()
}

// toRecord converts an IGDB game to the catalog shape. Rating stands in
// for the critic score and hypes for popularity; rating_count carries the
// audience of released games. IGDB has no tags worth publishing.
func (g *game) toRecord() models.CatalogRecord {
	rec := models.CatalogRecord{
		ID:            g.ID,
		Name:          g.Name,
		Slug:          g.Slug,
		Added:         g.Hypes,
		RatingsCount:  g.RatingCount,
		Genres:        g.Genres,
		ExternalGames: g.ExternalGames,
		ParentGame:    g.ParentGame,
		VersionParent: g.VersionParent,
		ParentPlatforms: []models.PlatformEntry{
			{Platform: models.NamedRef{ID: pcPlatformID, Name: "PC", Slug: "pc"}},
		},
	}

	if g.Cover != nil && g.Cover.URL != "" {
		cover := imageURL(g.Cover.URL, "t_cover_big")
		rec.BackgroundImage = &cover
	}

	shots := g.Screenshots
	if len(shots) > maxScreenshots {
		shots = shots[:maxScreenshots]
	}
	for _, s := range shots {
		if s.URL == "" {
			continue
		}
		rec.ShortScreenshots = append(rec.ShortScreenshots, models.Screenshot{ID: s.ID, Image: imageURL(s.URL, "t_screenshot_med")})
	}

	if g.FirstReleaseDate != nil {
		released := time.Unix(*g.FirstReleaseDate, 0).UTC().Format(dateLayout)
		rec.Released = &released
	}

	if g.Rating != nil {
		rec.Rating = *g.Rating
		score := int(math.Round(*g.Rating))
		rec.Metacritic = &score
	}

	return rec
}

// imageURL upsizes a thumbnail URL and makes it absolute
func imageURL(raw, size string) string {
	u := strings.Replace(raw, "t_thumb", size, 1)
	if strings.HasPrefix(u, "//") {
		u = "https:" + u
	}
	return u
}

// doRequest posts an Apicalypse body and decodes the JSON response
func (c *Client) doRequest(ctx context.Context, path, body string, result interface{}) error {
	token, err := c.auth.Token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Client-ID", c.clientID)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Accept", "application/json")

	c.logger.WithFields(logrus.Fields{
		"method": http.MethodPost,
		"path":   path,
	}).Debug("Making IGDB API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return services.NewAPIError(serviceName, resp.StatusCode, bodyBytes)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
