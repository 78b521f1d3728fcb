package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Ironcock/GameReleaseFetcher/internal/models"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps config keys to the command line flags that may override them
var flagKeys = map[string]string{
	"SOURCE":     "source",
	"OUTPUT_DIR": "output-dir",
	"LOG_LEVEL":  "log-level",
}

// Config holds all application configuration
type Config struct {
	// Upstream selection
	Source models.Source

	// RAWG
	RAWGAPIKey  string
	RAWGBaseURL string // API root, e.g. https://api.rawg.io/api
	RAWGSiteURL string // Public site used for store links, e.g. https://rawg.io

	// IGDB
	IGDBClientID     string
	IGDBClientSecret string
	IGDBBaseURL      string
	IGDBAuthURL      string

	// Paging
	PageSize    int
	MaxPages    int
	PageDelay   time.Duration
	HTTPTimeout time.Duration

	// Filtering
	RiskyMinAdded      int // Popularity below which risky tags reject
	HallOfFameMinAdded int // Obscurity threshold for the hall of fame
	PCParentPlatformID int
	TrailerHead        int // Hall of fame entries that get a trailer lookup

	// Server / scheduler
	ServerPort       string
	DailyCron        string
	MonthlyCron      string
	RunRetentionDays int

	// Paths
	OutputDir    string
	DailyFile    string // $OUTPUT_DIR/daily_games.json
	MonthlyFile  string // $OUTPUT_DIR/top_games.json
	FiltersFile  string // $CONFIG_DIR/filters.yaml
	DatabaseFile string // $CONFIG_DIR/gamefeeds.db

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables and .env file.
// A non-nil flag set lets command line flags override the environment.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = v.ReadInConfig()

	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
				}
			}
		}
	}

	return FromViper(v)
}

// FromViper builds the configuration from an already populated viper instance
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	configDir, err := resolveDir(v.GetString("CONFIG_DIR"), func() (string, error) {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", "gamefeeds"), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid CONFIG_DIR: %w", err)
	}

	outputDir, err := resolveDir(v.GetString("OUTPUT_DIR"), os.Getwd)
	if err != nil {
		return nil, fmt.Errorf("invalid OUTPUT_DIR: %w", err)
	}

	config := &Config{
		Source: models.Source(strings.ToLower(v.GetString("SOURCE"))),

		RAWGAPIKey:  v.GetString("RAWG_API_KEY"),
		RAWGBaseURL: strings.TrimRight(v.GetString("RAWG_BASE_URL"), "/"),
		RAWGSiteURL: strings.TrimRight(v.GetString("RAWG_SITE_URL"), "/"),

		IGDBClientID:     v.GetString("IGDB_CLIENT_ID"),
		IGDBClientSecret: v.GetString("IGDB_CLIENT_SECRET"),
		IGDBBaseURL:      strings.TrimRight(v.GetString("IGDB_BASE_URL"), "/"),
		IGDBAuthURL:      v.GetString("IGDB_AUTH_URL"),

		PageSize:    v.GetInt("PAGE_SIZE"),
		MaxPages:    v.GetInt("MAX_PAGES"),
		PageDelay:   time.Duration(v.GetInt("PAGE_DELAY_MS")) * time.Millisecond,
		HTTPTimeout: time.Duration(v.GetInt("HTTP_TIMEOUT_SECONDS")) * time.Second,

		RiskyMinAdded:      v.GetInt("RISKY_MIN_ADDED"),
		HallOfFameMinAdded: v.GetInt("HOF_MIN_ADDED"),
		PCParentPlatformID: v.GetInt("PC_PARENT_PLATFORM_ID"),
		TrailerHead:        v.GetInt("TRAILER_HEAD"),

		ServerPort:       v.GetString("SERVER_PORT"),
		DailyCron:        v.GetString("DAILY_CRON"),
		MonthlyCron:      v.GetString("MONTHLY_CRON"),
		RunRetentionDays: v.GetInt("RUN_RETENTION_DAYS"),

		OutputDir:    outputDir,
		DailyFile:    filepath.Join(outputDir, "daily_games.json"),
		MonthlyFile:  filepath.Join(outputDir, "top_games.json"),
		FiltersFile:  filepath.Join(configDir, "filters.yaml"),
		DatabaseFile: filepath.Join(configDir, "gamefeeds.db"),

		LogLevel: v.GetString("LOG_LEVEL"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks that the credentials for the selected source are present
func (c *Config) Validate() error {
	switch c.Source {
	case models.SourceRAWG:
		if c.RAWGAPIKey == "" {
			return fmt.Errorf("RAWG_API_KEY is required")
		}
	case models.SourceIGDB:
		if c.IGDBClientID == "" {
			return fmt.Errorf("IGDB_CLIENT_ID is required")
		}
		if c.IGDBClientSecret == "" {
			return fmt.Errorf("IGDB_CLIENT_SECRET is required")
		}
	default:
		return fmt.Errorf("unknown SOURCE %q (want %q or %q)", c.Source, models.SourceRAWG, models.SourceIGDB)
	}

	if c.PageSize <= 0 {
		return fmt.Errorf("PAGE_SIZE must be positive")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("MAX_PAGES must be positive")
	}

	return nil
}

// EnsureDirs creates the config and output directories
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{filepath.Dir(c.DatabaseFile), c.OutputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SOURCE", string(models.SourceRAWG))
	v.SetDefault("RAWG_BASE_URL", "https://api.rawg.io/api")
	v.SetDefault("RAWG_SITE_URL", "https://rawg.io")
	v.SetDefault("IGDB_BASE_URL", "https://api.igdb.com/v4")
	v.SetDefault("IGDB_AUTH_URL", "https://id.twitch.tv/oauth2/token")
	v.SetDefault("PAGE_SIZE", 40)
	v.SetDefault("MAX_PAGES", 10)
	v.SetDefault("PAGE_DELAY_MS", 250)
	v.SetDefault("HTTP_TIMEOUT_SECONDS", 30)
	v.SetDefault("RISKY_MIN_ADDED", 10)
	v.SetDefault("HOF_MIN_ADDED", 50)
	v.SetDefault("PC_PARENT_PLATFORM_ID", 1)
	v.SetDefault("TRAILER_HEAD", 10)
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("DAILY_CRON", "0 6 * * *")
	v.SetDefault("MONTHLY_CRON", "0 7 1 * *")
	v.SetDefault("RUN_RETENTION_DAYS", 90)
	v.SetDefault("LOG_LEVEL", "info")
}

// resolveDir returns dir as an absolute path, or the fallback when dir is empty
func resolveDir(dir string, fallback func() (string, error)) (string, error) {
	if dir == "" {
		return fallback()
	}
	return filepath.Abs(dir)
}
