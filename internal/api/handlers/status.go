package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Ironcock/GameReleaseFetcher/internal/models"
	"github.com/sirupsen/logrus"
)

const recentRunLimit = 20

// RunLister reads feed run history
type RunLister interface {
	GetRecentRuns(limit int) ([]*models.FeedRun, error)
}

// StatusHandler handles status requests
type StatusHandler struct {
	runs   RunLister
	source models.Source
	logger *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(runs RunLister, source models.Source, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		runs:   runs,
		source: source,
		logger: logger,
	}
}

// FeedStatus summarizes the newest run of one feed
type FeedStatus struct {
	Status     models.RunStatus `json:"status"`
	Accepted   int              `json:"accepted"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// StatusResponse represents the status response
type StatusResponse struct {
	Source     models.Source                  `json:"source"`
	Feeds      map[models.FeedName]FeedStatus `json:"feeds"`
	RecentRuns []*models.FeedRun              `json:"recent_runs"`
}

// ServeHTTP handles the status endpoint
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	runs, err := h.runs.GetRecentRuns(recentRunLimit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get feed runs")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := StatusResponse{
		Source:     h.source,
		Feeds:      make(map[models.FeedName]FeedStatus),
		RecentRuns: runs,
	}
	if response.RecentRuns == nil {
		response.RecentRuns = []*models.FeedRun{}
	}

	// Runs are newest first, so the first run seen per feed is its latest
	for _, run := range runs {
		if _, ok := response.Feeds[run.Feed]; ok {
			continue
		}
		response.Feeds[run.Feed] = FeedStatus{
			Status:     run.Status,
			Accepted:   run.Accepted,
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt,
			Error:      run.Error,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.WithError(err).Debug("Failed to write status response")
	}
}
