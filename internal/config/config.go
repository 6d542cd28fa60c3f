package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"eventsync/internal"
)

// Config is the immutable run configuration, loaded once at startup and
// threaded explicitly through the pipeline.
type Config struct {
	Timezone      string
	MaxFutureDays int
	PastGrace     time.Duration
	FetchTimeout  time.Duration

	Dedup     DedupConfig
	Sources   SourcesConfig
	Calendars CalendarsConfig
	Google    GoogleConfig
	Logger    LoggerConfig

	// SourcePriority orders sources for representative selection during
	// deduplication, most preferred first.
	SourcePriority []internal.SourceName

	loc *time.Location
}

type DedupConfig struct {
	Threshold   float64
	MaxStartGap time.Duration
}

type SourcesConfig struct {
	Enabled    map[string]bool
	Meetup     MeetupConfig
	Eventbrite EventbriteConfig
	Partiful   PartifulConfig
}

type MeetupConfig struct {
	Groups []string
}

type EventbriteConfig struct {
	OrganizerIDs []string
}

type PartifulConfig struct {
	APIKey       string
	RefreshToken string
	UseICS       bool
}

type CalendarsConfig struct {
	Confirmed string
	Possible  string
}

type GoogleConfig struct {
	CredentialsFile string
}

type LoggerConfig struct {
	Level    string
	Mode     string
	Encoding string
}

// Load reads the yaml config file (if present) with EVENTSYNC_*
// environment overrides, applies defaults and validates. Validation
// failures are fatal: nothing is fetched with a broken configuration.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EVENTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("timezone", "America/New_York")
	v.SetDefault("max_future_days", 90)
	v.SetDefault("past_grace", "1h")
	v.SetDefault("fetch_timeout", "30s")
	v.SetDefault("dedup.threshold", 0.85)
	v.SetDefault("dedup.max_start_gap", "3h")
	v.SetDefault("source_priority", []string{"nycsystems", "eventbrite", "meetup", "partiful"})
	v.SetDefault("sources.enabled", map[string]bool{
		"partiful":   true,
		"meetup":     true,
		"eventbrite": true,
		"nycsystems": true,
	})
	v.SetDefault("calendars.confirmed", "")
	v.SetDefault("calendars.possible", "")
	v.SetDefault("google.credentials_file", "credentials.json")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.mode", "production")
	v.SetDefault("logger.encoding", "console")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	cfg := &Config{
		Timezone:      v.GetString("timezone"),
		MaxFutureDays: v.GetInt("max_future_days"),
		PastGrace:     v.GetDuration("past_grace"),
		FetchTimeout:  v.GetDuration("fetch_timeout"),
		Dedup: DedupConfig{
			Threshold:   v.GetFloat64("dedup.threshold"),
			MaxStartGap: v.GetDuration("dedup.max_start_gap"),
		},
		Sources: SourcesConfig{
			Enabled: toStringMapBool(v.GetStringMap("sources.enabled")),
			Meetup: MeetupConfig{
				Groups: v.GetStringSlice("sources.meetup.groups"),
			},
			Eventbrite: EventbriteConfig{
				OrganizerIDs: v.GetStringSlice("sources.eventbrite.organizers"),
			},
			Partiful: PartifulConfig{
				APIKey:       v.GetString("sources.partiful.api_key"),
				RefreshToken: v.GetString("sources.partiful.refresh_token"),
				UseICS:       v.GetBool("sources.partiful.use_ics"),
			},
		},
		Calendars: CalendarsConfig{
			Confirmed: v.GetString("calendars.confirmed"),
			Possible:  v.GetString("calendars.possible"),
		},
		Google: GoogleConfig{
			CredentialsFile: v.GetString("google.credentials_file"),
		},
		Logger: LoggerConfig{
			Level:    v.GetString("logger.level"),
			Mode:     v.GetString("logger.mode"),
			Encoding: v.GetString("logger.encoding"),
		},
	}
	for _, name := range v.GetStringSlice("source_priority") {
		cfg.SourcePriority = append(cfg.SourcePriority, internal.SourceName(name))
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func toStringMapBool(m map[string]any) map[string]bool {
	out := make(map[string]bool, len(m))
	for name, val := range m {
		out[name] = cast.ToBool(val)
	}
	return out
}

var knownSources = map[internal.SourceName]bool{
	internal.SourcePartiful:   true,
	internal.SourceMeetup:     true,
	internal.SourceEventbrite: true,
	internal.SourceNYCSystems: true,
}

func (c *Config) validate() error {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("config: unknown timezone %q: %w", c.Timezone, err)
	}
	c.loc = loc

	if c.MaxFutureDays <= 0 {
		return fmt.Errorf("config: max_future_days must be positive, got %d", c.MaxFutureDays)
	}
	if c.Dedup.Threshold < 0 || c.Dedup.Threshold > 1 {
		return fmt.Errorf("config: dedup.threshold must be in [0,1], got %g", c.Dedup.Threshold)
	}
	if c.Dedup.MaxStartGap <= 0 {
		return fmt.Errorf("config: dedup.max_start_gap must be positive")
	}
	if c.Calendars.Confirmed == "" {
		return fmt.Errorf("config: calendars.confirmed is required")
	}
	if c.Calendars.Possible == "" {
		return fmt.Errorf("config: calendars.possible is required")
	}
	if c.Calendars.Confirmed == c.Calendars.Possible {
		return fmt.Errorf("config: confirmed and possible calendars must differ")
	}
	for _, src := range c.SourcePriority {
		if !knownSources[src] {
			return fmt.Errorf("config: unknown source %q in source_priority", src)
		}
	}
	for name := range c.Sources.Enabled {
		if !knownSources[internal.SourceName(name)] {
			return fmt.Errorf("config: unknown source %q in sources.enabled", name)
		}
	}
	return nil
}

// Location returns the timezone used for day bucketing and horizon math.
func (c *Config) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// Horizon converts the max-future-days setting into a duration.
func (c *Config) Horizon() time.Duration {
	return time.Duration(c.MaxFutureDays) * 24 * time.Hour
}

// SourceEnabled reports whether a source should be fetched this run.
func (c *Config) SourceEnabled(name internal.SourceName) bool {
	return c.Sources.Enabled[name.String()]
}
