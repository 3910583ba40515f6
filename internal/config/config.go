package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"channel-clock/internal/availability"
)

const (
	// DefaultDispatchGridMinutes is the evaluation cadence during the day.
	DefaultDispatchGridMinutes = 10
	// DefaultGracePeriodSec is how late a wake-up may be and still count as on time.
	DefaultGracePeriodSec = 30
	// DefaultPublishTimeoutSec bounds a single directory call.
	DefaultPublishTimeoutSec = 30
	// DefaultHolidayRefreshSec is seconds between holiday feed refreshes.
	DefaultHolidayRefreshSec = 6 * 60 * 60
	// DefaultNightStart and DefaultDayStart bound night mode in the reference timezone.
	DefaultNightStart = "22:00"
	DefaultDayStart   = "07:00"
)

const (
	DirectoryTelegram = "telegram"
	DirectorySlack    = "slack"
)

// ErrConfig marks configuration problems that must stop the process.
var ErrConfig = errors.New("configuration error")

type Config struct {
	Directory        string // "telegram" or "slack"
	TelegramBotToken string
	SlackBotToken    string

	RegionsFile     string // optional YAML file overriding the built-in regions
	ReferenceRegion string // region whose clock drives night mode

	NightStart          string
	DayStart            string
	DispatchGridMinutes int
	GracePeriodSec      int
	PublishTimeoutSec   int
	HolidayRefreshSec   int

	Port        string
	RedisURL    string // optional holiday feed cache
	DatabaseURL string // optional label history
	RabbitMQURL string // optional label change events

	AdminLogin    string // Basic Auth for history and metrics
	AdminPassword string
}

func Load() *Config {
	return &Config{
		Directory:           strings.ToLower(getEnv("DIRECTORY", DirectoryTelegram)),
		TelegramBotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		SlackBotToken:       getEnv("SLACK_BOT_TOKEN", ""),
		RegionsFile:         getEnv("REGIONS_FILE", ""),
		ReferenceRegion:     getEnv("REFERENCE_REGION", ""),
		NightStart:          getEnv("NIGHT_START", DefaultNightStart),
		DayStart:            getEnv("DAY_START", DefaultDayStart),
		DispatchGridMinutes: getEnvInt("DISPATCH_GRID_MINUTES", DefaultDispatchGridMinutes),
		GracePeriodSec:      getEnvInt("GRACE_PERIOD_SEC", DefaultGracePeriodSec),
		PublishTimeoutSec:   getEnvInt("PUBLISH_TIMEOUT_SEC", DefaultPublishTimeoutSec),
		HolidayRefreshSec:   getEnvInt("HOLIDAY_REFRESH_SEC", DefaultHolidayRefreshSec),
		Port:                getEnv("PORT", "8080"),
		RedisURL:            getEnv("REDIS_URL", ""),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RabbitMQURL:         getEnv("RABBITMQ_URL", ""),
		AdminLogin:          getEnv("ADMIN_LOGIN", ""),
		AdminPassword:       getEnv("ADMIN_PASSWORD", ""),
	}
}

// Token returns the credential of the selected directory.
func (c *Config) Token() string {
	if c.Directory == DirectorySlack {
		return c.SlackBotToken
	}
	return c.TelegramBotToken
}

// Validate checks the global settings. Region tables are validated by Regions.
func (c *Config) Validate() error {
	switch c.Directory {
	case DirectoryTelegram:
		if c.TelegramBotToken == "" {
			return fmt.Errorf("%w: TELEGRAM_BOT_TOKEN is required", ErrConfig)
		}
	case DirectorySlack:
		if c.SlackBotToken == "" {
			return fmt.Errorf("%w: SLACK_BOT_TOKEN is required", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown DIRECTORY %q", ErrConfig, c.Directory)
	}

	night, err := availability.ParseClock(c.NightStart)
	if err != nil || night >= availability.MinutesPerDay {
		return fmt.Errorf("%w: NIGHT_START %q", ErrConfig, c.NightStart)
	}
	day, err := availability.ParseClock(c.DayStart)
	if err != nil || day >= availability.MinutesPerDay {
		return fmt.Errorf("%w: DAY_START %q", ErrConfig, c.DayStart)
	}
	if night == day {
		return fmt.Errorf("%w: NIGHT_START and DAY_START must differ", ErrConfig)
	}
	if c.DispatchGridMinutes <= 0 || c.DispatchGridMinutes > 60 || 60%c.DispatchGridMinutes != 0 {
		return fmt.Errorf("%w: DISPATCH_GRID_MINUTES must divide 60, got %d", ErrConfig, c.DispatchGridMinutes)
	}
	if c.GracePeriodSec < 0 {
		return fmt.Errorf("%w: GRACE_PERIOD_SEC must not be negative", ErrConfig)
	}
	if c.PublishTimeoutSec <= 0 {
		return fmt.Errorf("%w: PUBLISH_TIMEOUT_SEC must be positive", ErrConfig)
	}
	if c.HolidayRefreshSec <= 0 {
		return fmt.Errorf("%w: HOLIDAY_REFRESH_SEC must be positive", ErrConfig)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}
