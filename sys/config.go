package sys

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/joho/godotenv"
)

// Search backends accepted by SEARCH_BACKEND.
const (
	SearchBackendAPI      = "api"
	SearchBackendYTMusic  = "ytmusic"
	SearchBackendYTSearch = "ytsearch"
)

type Config struct {
	Token         string
	GuildID       string
	DatabasePath  string
	Silent        bool
	GoogleAPIKey  string
	SearchBackend string

	IdleTimeout     time.Duration
	AutoplayRetries int
	ExtractWorkers  int
	SearchResults   int
	SearchPageSize  int
}

var GlobalConfig *Config

// LoadConfig initializes the configuration from environment variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := configFromEnv(os.Getenv)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Silent {
		SetSilentMode(true)
	}

	GlobalConfig = cfg
	return cfg, nil
}

func configFromEnv(getenv func(string) string) (*Config, error) {
	dbPath := getenv("DATABASE_PATH")
	if dbPath == "" {
		folder := "."
		if info, err := os.Stat("data"); err == nil && info.IsDir() {
			folder = "./data"
		}
		dbPath = filepath.Join(folder, GetProjectName()+".db")
	}

	silent, _ := strconv.ParseBool(getenv("SILENT"))

	backend := strings.ToLower(strings.TrimSpace(getenv("SEARCH_BACKEND")))
	if backend == "" {
		backend = SearchBackendAPI
	}

	cfg := &Config{
		Token:         getenv("DISCORD_TOKEN"),
		GuildID:       getenv("GUILD_ID"),
		DatabasePath:  dbPath,
		Silent:        silent,
		GoogleAPIKey:  getenv("GOOGLE_API_KEY"),
		SearchBackend: backend,
	}

	var err error
	if cfg.IdleTimeout, err = envDuration(getenv, "VOICE_IDLE_TIMEOUT", 300*time.Second); err != nil {
		return nil, err
	}
	if cfg.AutoplayRetries, err = envInt(getenv, "VOICE_AUTOPLAY_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.ExtractWorkers, err = envInt(getenv, "VOICE_EXTRACT_WORKERS", 3); err != nil {
		return nil, err
	}
	if cfg.SearchResults, err = envInt(getenv, "VOICE_SEARCH_RESULTS", 20); err != nil {
		return nil, err
	}
	if cfg.SearchPageSize, err = envInt(getenv, "VOICE_SEARCH_PAGE", 5); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envDuration accepts a Go duration ("5m") or a plain number of seconds.
func envDuration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf(MsgConfigInvalidNumber, key, raw)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf(MsgConfigInvalidNumber, key, raw)
	}
	return d, nil
}

func envInt(getenv func(string) string, key string, def int) (int, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf(MsgConfigInvalidNumber, key, raw)
	}
	return n, nil
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf(MsgConfigMissingToken)
	}
	if c.GuildID != "" {
		if len(c.GuildID) < 17 || len(c.GuildID) > 20 {
			return fmt.Errorf(MsgConfigInvalidGuildID)
		}
		if _, err := snowflake.Parse(c.GuildID); err != nil {
			return fmt.Errorf(MsgConfigInvalidGuildID)
		}
	}
	switch c.SearchBackend {
	case SearchBackendAPI:
		if c.GoogleAPIKey == "" {
			return fmt.Errorf(MsgConfigMissingAPIKey)
		}
	case SearchBackendYTMusic, SearchBackendYTSearch:
	default:
		return fmt.Errorf(MsgConfigInvalidBackend, c.SearchBackend)
	}
	if c.SearchPageSize > c.SearchResults {
		c.SearchPageSize = c.SearchResults
	}
	return nil
}

func GetProjectName() string {
	exePath, err := os.Executable()
	projectName := "bot"
	if err == nil {
		projectName = filepath.Base(exePath)
		projectName = strings.TrimSuffix(projectName, ".exe")

		if projectName == "main" || strings.HasPrefix(projectName, "go_build_") || strings.HasSuffix(projectName, ".test") {
			if modData, err := os.ReadFile("go.mod"); err == nil {
				lines := strings.Split(string(modData), "\n")
				if len(lines) > 0 && strings.HasPrefix(lines[0], "module ") {
					parts := strings.Split(lines[0], "/")
					projectName = strings.TrimSpace(parts[len(parts)-1])
				}
			}
		}
	}
	return projectName
}
