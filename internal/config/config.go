package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the coordinator daemon.
type Config struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// Browser launch behavior when no debuggable browser is listening
	LaunchBrowser bool
	ProfileDir    string
	StartURL      string
	Headless      bool

	// API surface
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	// Storage
	DataDir           string
	JournalBufferSize int
	JournalMaxSizeMB  int

	// Blacklist rules file (yaml); empty means nothing is blacklisted
	BlacklistFile string

	// Lifecycle
	Version       string
	WelcomeURL    string
	ChangelogURL  string
	OpenChangelog bool
	BootstrapFile string

	// Session restore policy: keep the cursor on a slot whose restore
	// failed instead of advancing past it
	SessionRetryFailed bool

	// External editor command for editWithVim; empty disables it
	EditorCommand string

	// Logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:         getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:            getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9222),
		LaunchBrowser:      getEnvBoolOrDefault("COORDINATOR_LAUNCH_BROWSER", true),
		ProfileDir:         getEnvOrDefault("COORDINATOR_PROFILE_DIR", "./profile"),
		StartURL:           getEnvOrDefault("COORDINATOR_START_URL", "about:blank"),
		Headless:           getEnvBoolOrDefault("COORDINATOR_HEADLESS", false),
		BindAddr:           getEnvOrDefault("COORDINATOR_BIND_ADDR", "127.0.0.1:8333"),
		PortCandidates:     splitList(getEnvOrDefault("COORDINATOR_PORT_CANDIDATES", "127.0.0.1:8334,127.0.0.1:8335")),
		PortAutoFallback:   getEnvBoolOrDefault("COORDINATOR_PORT_AUTO_FALLBACK", true),
		DataDir:            getEnvOrDefault("COORDINATOR_DATA_DIR", "./coordinator_data"),
		JournalBufferSize:  getEnvIntOrDefault("COORDINATOR_JOURNAL_BUFFER_SIZE", 1000),
		JournalMaxSizeMB:   getEnvIntOrDefault("COORDINATOR_JOURNAL_MAX_SIZE_MB", 50),
		BlacklistFile:      getEnvOrDefault("COORDINATOR_BLACKLIST_FILE", ""),
		Version:            getEnvOrDefault("COORDINATOR_VERSION", "0.1.0"),
		WelcomeURL:         getEnvOrDefault("COORDINATOR_WELCOME_URL", ""),
		ChangelogURL:       getEnvOrDefault("COORDINATOR_CHANGELOG_URL", ""),
		OpenChangelog:      getEnvBoolOrDefault("COORDINATOR_OPEN_CHANGELOG", false),
		BootstrapFile:      getEnvOrDefault("COORDINATOR_BOOTSTRAP_FILE", ""),
		SessionRetryFailed: getEnvBoolOrDefault("COORDINATOR_SESSION_RETRY_FAILED", false),
		EditorCommand:      getEnvOrDefault("COORDINATOR_EDITOR", ""),
		LogLevel:           strings.ToLower(getEnvOrDefault("COORDINATOR_LOG_LEVEL", "info")),
		LogFile:            getEnvOrDefault("COORDINATOR_LOG_FILE", "logs/coordinator.log"),
	}

	if cfg.JournalBufferSize < 1 {
		cfg.JournalBufferSize = 1
	}
	return cfg, nil
}

// CDPURL returns the CDP HTTP endpoint used by the chromedp remote allocator.
func (c *Config) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
