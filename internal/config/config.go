package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Avatar generation API
	AvatarAPIBaseURL   string
	AvatarAPIToken     string
	AvatarAPISource    string
	AvatarAPILang      string
	AvatarAPITag       string
	AvatarAPITimeout   time.Duration
	AvatarAPIRateLimit float64
	AddAvatarProductID int

	// Polling
	PollInterval       time.Duration
	NotifyAfter        time.Duration
	AvatarPollInterval time.Duration
	PollMaxFailures    int
	PollDeadline       time.Duration
	JobRetention       time.Duration

	// Subscription
	RequireEntitlement bool
	DevEntitled        bool

	// Local storage
	DatabasePath string
	DatabaseURL  string
	CacheDir     string
	// Hosts the image cache may download from, subdomains included.
	ImageAllowedHosts []string

	// Redis fan-out (optional)
	RedisAddr    string
	RedisChannel string

	// Supabase result archive (optional)
	SupabaseURL           string
	SupabaseKey           string
	SupabaseStorageBucket string

	// Server
	LocalAPISecret string
	// BindAddr is the listen host; loopback keeps the local API off the network.
	BindAddr    string
	Port        string
	Environment string
	CORSOrigins []string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var errs []string
	duration := func(key, def string) time.Duration {
		raw := getEnv(key, def)
		d, err := time.ParseDuration(raw)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: invalid duration %q", key, raw))
		}
		return d
	}
	integer := func(key string, def int) int {
		raw := getEnv(key, strconv.Itoa(def))
		n, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: invalid integer %q", key, raw))
		}
		return n
	}
	float := func(key string, def float64) float64 {
		raw := getEnv(key, strconv.FormatFloat(def, 'f', -1, 64))
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: invalid number %q", key, raw))
		}
		return f
	}
	boolean := func(key string, def bool) bool {
		raw := getEnv(key, strconv.FormatBool(def))
		b, err := strconv.ParseBool(raw)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: invalid boolean %q", key, raw))
		}
		return b
	}

	cfg := &Config{
		AvatarAPIBaseURL:   getEnv("AVATAR_API_BASE_URL", "https://nextgenwebapps.shop/api/v1"),
		AvatarAPIToken:     getEnv("AVATAR_API_TOKEN", ""),
		AvatarAPISource:    getEnv("AVATAR_API_SOURCE", "com.test.test"),
		AvatarAPILang:      getEnv("AVATAR_API_LANG", "en"),
		AvatarAPITag:       getEnv("AVATAR_API_TAG", "056"),
		AvatarAPITimeout:   duration("AVATAR_API_TIMEOUT", "30s"),
		AvatarAPIRateLimit: float("AVATAR_API_RATE_LIMIT", 0),
		AddAvatarProductID: integer("ADD_AVATAR_PRODUCT_ID", 22),

		PollInterval:       duration("POLL_INTERVAL", "5s"),
		NotifyAfter:        duration("NOTIFY_AFTER", "10s"),
		AvatarPollInterval: duration("AVATAR_POLL_INTERVAL", "2s"),
		PollMaxFailures:    integer("POLL_MAX_FAILURES", 10),
		PollDeadline:       duration("POLL_DEADLINE", "20m"),
		JobRetention:       duration("JOB_RETENTION", "1h"),

		RequireEntitlement: boolean("REQUIRE_ENTITLEMENT", true),
		DevEntitled:        boolean("DEV_ENTITLED", false),

		DatabasePath: getEnv("DATABASE_PATH", "data/app056.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		CacheDir:     getEnv("CACHE_DIR", "data/image-cache"),

		ImageAllowedHosts: splitList(getEnv("IMAGE_ALLOWED_HOSTS", "nextgenwebapps.shop,selcdn.net")),

		RedisAddr:    getEnv("REDIS_ADDR", ""),
		RedisChannel: getEnv("REDIS_CHANNEL", "app056-events"),

		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseKey:           getEnv("SUPABASE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "generated-results"),

		LocalAPISecret: getEnv("LOCAL_API_SECRET", ""),
		BindAddr:       getEnv("BIND_ADDR", "127.0.0.1"),
		Port:           getEnv("PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		CORSOrigins:    splitList(getEnv("CORS_ORIGINS", "")),
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.AvatarAPIBaseURL == "" {
		return fmt.Errorf("AVATAR_API_BASE_URL is required")
	}
	if c.AvatarAPIToken == "" {
		return fmt.Errorf("AVATAR_API_TOKEN is required")
	}
	if c.LocalAPISecret == "" {
		return fmt.Errorf("LOCAL_API_SECRET is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if c.AvatarPollInterval <= 0 {
		return fmt.Errorf("AVATAR_POLL_INTERVAL must be positive")
	}
	if c.AvatarAPITimeout <= 0 {
		return fmt.Errorf("AVATAR_API_TIMEOUT must be positive")
	}
	if c.PollMaxFailures < 1 {
		return fmt.Errorf("POLL_MAX_FAILURES must be at least 1")
	}
	if c.AvatarAPIRateLimit < 0 {
		return fmt.Errorf("AVATAR_API_RATE_LIMIT must not be negative")
	}
	if c.DatabaseURL == "" && c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH or DATABASE_URL is required")
	}
	return nil
}

// ArchiveEnabled reports whether completed results should be mirrored to Supabase
// Storage.
func (c *Config) ArchiveEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseKey != ""
}

// ListenAddr is the address the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.BindAddr, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
