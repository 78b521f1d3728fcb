package rawg

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Ironcock/GameReleaseFetcher/internal/config"
	"github.com/Ironcock/GameReleaseFetcher/internal/models"
	"github.com/Ironcock/GameReleaseFetcher/internal/pipeline"
	"github.com/Ironcock/GameReleaseFetcher/internal/services"
	"github.com/sirupsen/logrus"
)

const (
	serviceName = "rawg"
	dateLayout  = "2006-01-02"
)

// orderings translates the source-neutral sort key to RAWG's ordering parameter
var orderings = map[models.Ordering]string{
	models.OrderByPopularity: "-added",
	models.OrderByScore:      "-metacritic",
	models.OrderByReleased:   "-released",
}

// Client handles communication with the RAWG API
type Client struct {
	apiKey         string
	baseURL        string
	parentPlatform int
	httpClient     *http.Client
	logger         *logrus.Logger
}

// NewClient creates a new RAWG API client
func NewClient(cfg *config.Config, logger *logrus.Logger) *Client {
	return &Client{
		apiKey:         cfg.RAWGAPIKey,
		baseURL:        cfg.RAWGBaseURL,
		parentPlatform: cfg.PCParentPlatformID,
		httpClient:     &http.Client{Timeout: cfg.HTTPTimeout},
		logger:         logger,
	}
}

// gamesResponse is one page of the /games search endpoint
type gamesResponse struct {
	Count   int                    `json:"count"`
	Next    *string                `json:"next"`
	Results []models.CatalogRecord `json:"results"`
}

// moviesResponse is the /games/{id}/movies endpoint
type moviesResponse struct {
	Results []struct {
		ID   int64             `json:"id"`
		Name string            `json:"name"`
		Data map[string]string `json:"data"`
	} `json:"results"`
}

// FetchPage fetches one page of the game search. A cursor from the previous
// page is followed verbatim; otherwise the query is built from req.
func (c *Client) FetchPage(ctx context.Context, req pipeline.PageRequest) (*pipeline.Page, error) {
	target := req.Cursor
	if target == "" {
		target = c.baseURL + "/games?" + c.searchParams(req).Encode()
	}

	var resp gamesResponse
	if err := c.doRequest(ctx, target, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch games: %w", err)
	}

	page := &pipeline.Page{Records: resp.Results, Last: resp.Next == nil}
	if resp.Next != nil {
		page.Next = *resp.Next
	}
	return page, nil
}

// Trailer returns the best available trailer for a game, or
// pipeline.ErrNotFound when the game has none
func (c *Client) Trailer(ctx context.Context, id int64) (string, error) {
	params := url.Values{}
	params.Set("key", c.apiKey)
	target := fmt.Sprintf("%s/games/%d/movies?%s", c.baseURL, id, params.Encode())

	var resp moviesResponse
	if err := c.doRequest(ctx, target, &resp); err != nil {
		if services.IsStatus(err, http.StatusNotFound) {
			return "", pipeline.ErrNotFound
		}
		return "", fmt.Errorf("failed to fetch trailers for game %d: %w", id, err)
	}

	if len(resp.Results) == 0 {
		return "", pipeline.ErrNotFound
	}
	data := resp.Results[0].Data
	if u := data["max"]; u != "" {
		return u, nil
	}
	if u := data["480"]; u != "" {
		return u, nil
	}
	return "", pipeline.ErrNotFound
}

func (c *Client) searchParams(req pipeline.PageRequest) url.Values {
	q := req.Query
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("page_size", strconv.Itoa(req.PageSize))
	params.Set("page", strconv.Itoa(req.Page))

	if !q.From.IsZero() && !q.To.IsZero() {
		params.Set("dates", q.From.Format(dateLayout)+","+q.To.Format(dateLayout))
	}
	if ordering, ok := orderings[q.Ordering]; ok {
		params.Set("ordering", ordering)
	}
	if c.parentPlatform > 0 {
		params.Set("parent_platforms", strconv.Itoa(c.parentPlatform))
	}
	if q.MinScore > 0 {
		params.Set("metacritic", fmt.Sprintf("%d,100", q.MinScore))
	}
	if q.MainGamesOnly {
		params.Set("exclude_additions", "true")
	}
	if q.NoParents {
		params.Set("exclude_parents", "true")
	}

	return params
}

// doRequest performs a GET request and decodes the JSON response
func (c *Client) doRequest(ctx context.Context, target string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.WithFields(logrus.Fields{
		"method": http.MethodGet,
		"path":   req.URL.Path,
	}).Debug("Making RAWG API request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logger.WithFields(logrus.Fields{
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("RAWG API response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return services.NewAPIError(serviceName, resp.StatusCode, bodyBytes)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
