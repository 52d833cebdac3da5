// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// ARTICLE_CRAWLER_CRAWLER_CONCURRENCY=8.
const EnvPrefix = "ARTICLE_CRAWLER"

// DefaultUserAgent identifies the crawler to sites and robots.txt groups.
const DefaultUserAgent = "article-crawler/0.1 (+https://github.com/JakeFAU/article-crawler)"

// Config captures all crawler configuration knobs loaded via Viper.
type Config struct {
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Robots   RobotsConfig   `mapstructure:"robots"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Output   OutputConfig   `mapstructure:"output"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Seeds    SeedsConfig    `mapstructure:"seeds"`
}

// CrawlerConfig governs the per-URL state machine and batch execution.
type CrawlerConfig struct {
	UserAgent     string        `mapstructure:"user_agent"`
	Concurrency   int           `mapstructure:"concurrency"`
	MaxRetries    int           `mapstructure:"max_retries"`
	BackoffUnit   time.Duration `mapstructure:"backoff_unit"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
	OriginQPS     float64       `mapstructure:"origin_qps"`
}

// HTTPConfig sizes the session's pooled transport.
type HTTPConfig struct {
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	MaxBodyBytes        int           `mapstructure:"max_body_bytes"`
}

// RobotsConfig toggles robots.txt handling.
type RobotsConfig struct {
	Respect bool          `mapstructure:"respect"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// HeadlessConfig configures the rendered fetch strategy.
type HeadlessConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ExecPath    string        `mapstructure:"exec_path"`
	MaxParallel int           `mapstructure:"max_parallel"`
	NavTimeout  time.Duration `mapstructure:"nav_timeout"`
	Settle      time.Duration `mapstructure:"settle"`
}

// OutputConfig controls how results are written to stdout.
type OutputConfig struct {
	Pretty bool `mapstructure:"pretty"`
}

// ArchiveConfig selects where records are archived.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for handoff notifications.
type PubSubConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig controls the optional metrics listener.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SeedsConfig lists feeds whose item links are crawled.
type SeedsConfig struct {
	Feeds      []string      `mapstructure:"feeds"`
	MaxPerFeed int           `mapstructure:"max_per_feed"`
	MaxAge     time.Duration `mapstructure:"max_age"`
}

// flagKeys maps CLI flags onto config keys.
var flagKeys = map[string]string{
	"concurrency": "crawler.concurrency",
	"max-retries": "crawler.max_retries",
	"pretty":      "output.pretty",
}

// Load builds a Config from defaults, an optional file, the environment and
// flags, in increasing precedence. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
		if noRender, err := flags.GetBool("no-render"); err == nil && noRender {
			v.Set("headless.enabled", false)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Archive.Provider = strings.ToLower(strings.TrimSpace(cfg.Archive.Provider))
	cfg.PubSub.Provider = strings.ToLower(strings.TrimSpace(cfg.PubSub.Provider))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.user_agent", DefaultUserAgent)
	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.max_retries", 3)
	v.SetDefault("crawler.backoff_unit", "1s")
	v.SetDefault("crawler.shutdown_grace", "5s")
	v.SetDefault("crawler.origin_qps", 0)
	v.SetDefault("http.timeout", "15s")
	v.SetDefault("http.max_idle_conns", 100)
	v.SetDefault("http.max_idle_conns_per_host", 8)
	v.SetDefault("http.max_body_bytes", 10<<20)
	v.SetDefault("robots.respect", true)
	v.SetDefault("robots.timeout", "10s")
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.exec_path", "")
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout", "30s")
	v.SetDefault("headless.settle", "500ms")
	v.SetDefault("output.pretty", true)
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.base_dir", "")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "articles")
	v.SetDefault("pubsub.provider", "none")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("seeds.feeds", []string{})
	v.SetDefault("seeds.max_per_feed", 50)
	v.SetDefault("seeds.max_age", "0s")
}

// Validate enforces required values and reasonable limits.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Crawler.UserAgent) == "" {
		errs = append(errs, errors.New("crawler.user_agent must be set"))
	}
	if c.Crawler.Concurrency <= 0 {
		errs = append(errs, errors.New("crawler.concurrency must be > 0"))
	}
	if c.Crawler.MaxRetries <= 0 {
		errs = append(errs, errors.New("crawler.max_retries must be > 0"))
	}
	if c.Crawler.BackoffUnit < 0 {
		errs = append(errs, errors.New("crawler.backoff_unit must be >= 0"))
	}
	if c.Crawler.ShutdownGrace < 0 {
		errs = append(errs, errors.New("crawler.shutdown_grace must be >= 0"))
	}
	if c.Crawler.OriginQPS < 0 {
		errs = append(errs, errors.New("crawler.origin_qps must be >= 0"))
	}
	if c.HTTP.Timeout <= 0 {
		errs = append(errs, errors.New("http.timeout must be > 0"))
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("http.max_body_bytes must be > 0"))
	}
	if c.Robots.Respect && c.Robots.Timeout <= 0 {
		errs = append(errs, errors.New("robots.timeout must be > 0 when robots are respected"))
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		errs = append(errs, errors.New("headless.max_parallel must be > 0 when headless is enabled"))
	}
	switch c.Archive.Provider {
	case "", "none", "memory":
	case "local":
		if strings.TrimSpace(c.Archive.BaseDir) == "" {
			errs = append(errs, errors.New("archive.base_dir must be set for the local provider"))
		}
	case "gcs":
		if strings.TrimSpace(c.Archive.GCSBucket) == "" {
			errs = append(errs, errors.New("archive.gcs_bucket must be set for the gcs provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("archive.provider %q is not supported", c.Archive.Provider))
	}
	switch c.PubSub.Provider {
	case "", "none":
	case "memory", "gcp":
		if strings.TrimSpace(c.PubSub.TopicName) == "" {
			errs = append(errs, errors.New("pubsub.topic_name must be set when publishing"))
		}
		if c.PubSub.Provider == "gcp" && strings.TrimSpace(c.PubSub.ProjectID) == "" {
			errs = append(errs, errors.New("pubsub.project_id must be set for the gcp provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("pubsub.provider %q is not supported", c.PubSub.Provider))
	}
	if c.Seeds.MaxPerFeed <= 0 {
		errs = append(errs, errors.New("seeds.max_per_feed must be > 0"))
	}
	if c.Seeds.MaxAge < 0 {
		errs = append(errs, errors.New("seeds.max_age must be >= 0"))
	}
	return errors.Join(errs...)
}
