package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Schedule   ScheduleConfig   `yaml:"schedule" mapstructure:"schedule"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Discovery  DiscoveryConfig  `yaml:"discovery" mapstructure:"discovery"`
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	Brave      BraveConfig      `yaml:"brave" mapstructure:"brave"`
	OSM        OSMConfig        `yaml:"osm" mapstructure:"osm"`
	Hunter     HunterConfig     `yaml:"hunter" mapstructure:"hunter"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Enrich     EnrichConfig     `yaml:"enrich" mapstructure:"enrich"`
	Generate   GenerateConfig   `yaml:"generate" mapstructure:"generate"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OpenRouter OpenRouterConfig `yaml:"openrouter" mapstructure:"openrouter"`
	Sender     SenderConfig     `yaml:"sender" mapstructure:"sender"`
	SMTP       SMTPConfig       `yaml:"smtp" mapstructure:"smtp"`
	IMAP       IMAPConfig       `yaml:"imap" mapstructure:"imap"`
	Reply      ReplyConfig      `yaml:"reply" mapstructure:"reply"`
	Prototype  PrototypeConfig  `yaml:"prototype" mapstructure:"prototype"`
	Minio      MinioConfig      `yaml:"minio" mapstructure:"minio"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// ScheduleConfig sets how often each stage fires.
type ScheduleConfig struct {
	Discovery    time.Duration `yaml:"discovery" mapstructure:"discovery"`
	Enrichment   time.Duration `yaml:"enrichment" mapstructure:"enrichment"`
	Outreach     time.Duration `yaml:"outreach" mapstructure:"outreach"`
	Reply        time.Duration `yaml:"reply" mapstructure:"reply"`
	Prototype    time.Duration `yaml:"prototype" mapstructure:"prototype"`
	Conversation time.Duration `yaml:"conversation" mapstructure:"conversation"`
}

// PipelineConfig bounds the work a single stage invocation does.
type PipelineConfig struct {
	BatchSize       int `yaml:"batch_size" mapstructure:"batch_size"`
	LeadTimeoutSecs int `yaml:"lead_timeout_secs" mapstructure:"lead_timeout_secs"`
	// EnrichRetryHours is how long a lead rests after an enrichment attempt
	// before it is selected again.
	EnrichRetryHours int `yaml:"enrich_retry_hours" mapstructure:"enrich_retry_hours"`
}

// LeadTimeout returns the per-lead deadline.
func (p PipelineConfig) LeadTimeout() time.Duration {
	if p.LeadTimeoutSecs <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(p.LeadTimeoutSecs) * time.Second
}

// EnrichRetry returns the rest period between enrichment attempts on a lead.
func (p PipelineConfig) EnrichRetry() time.Duration {
	if p.EnrichRetryHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(p.EnrichRetryHours) * time.Hour
}

// Target is one niche/location pair the scheduled discovery run searches.
type Target struct {
	Niche        string `yaml:"niche" mapstructure:"niche"`
	Location     string `yaml:"location" mapstructure:"location"`
	BusinessType string `yaml:"business_type" mapstructure:"business_type"`
}

// DiscoveryConfig configures the discovery stage.
type DiscoveryConfig struct {
	Providers          []string `yaml:"providers" mapstructure:"providers"`
	Targets            []Target `yaml:"targets" mapstructure:"targets"`
	CampaignFile       string   `yaml:"campaign_file" mapstructure:"campaign_file"`
	MaxPages           int      `yaml:"max_pages" mapstructure:"max_pages"`
	DirectoryBlocklist []string `yaml:"directory_blocklist" mapstructure:"directory_blocklist"`
}

// GoogleConfig holds Google Places API settings.
type GoogleConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// BraveConfig holds Brave Search API settings.
type BraveConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// OSMConfig holds OpenStreetMap Nominatim settings.
type OSMConfig struct {
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent string  `yaml:"user_agent" mapstructure:"user_agent"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// HunterConfig holds Hunter.io domain search settings.
type HunterConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// EnrichConfig configures contact enrichment.
type EnrichConfig struct {
	Patterns        []string `yaml:"patterns" mapstructure:"patterns"`
	PhoneRegion     string   `yaml:"phone_region" mapstructure:"phone_region"`
	FallbackTLD     string   `yaml:"fallback_tld" mapstructure:"fallback_tld"`
	ScrapeRateLimit float64  `yaml:"scrape_rate_limit" mapstructure:"scrape_rate_limit"`
	TimeoutSecs     int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// GenerateConfig selects the text generation backend.
type GenerateConfig struct {
	Backend   string `yaml:"backend" mapstructure:"backend"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// OpenRouterConfig holds OpenRouter (OpenAI-compatible) settings.
type OpenRouterConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// SenderConfig identifies the outbound mailbox.
type SenderConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Email   string `yaml:"email" mapstructure:"email"`
	Company string `yaml:"company" mapstructure:"company"`
}

// SMTPConfig configures outbound mail.
type SMTPConfig struct {
	Host        string `yaml:"host" mapstructure:"host"`
	Port        int    `yaml:"port" mapstructure:"port"`
	Username    string `yaml:"username" mapstructure:"username"`
	Password    string `yaml:"password" mapstructure:"password"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// IMAPConfig configures the reply inbox.
type IMAPConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Folder   string `yaml:"folder" mapstructure:"folder"`

	// LookbackDays limits the UNSEEN search to recent mail.
	LookbackDays int `yaml:"lookback_days" mapstructure:"lookback_days"`
}

// ReplyConfig configures reply classification.
type ReplyConfig struct {
	Affirmative []string `yaml:"affirmative" mapstructure:"affirmative"`
}

// PrototypeConfig selects where demo sites are published.
type PrototypeConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"`
	Dir     string `yaml:"dir" mapstructure:"dir"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// MinioConfig holds object storage settings for published prototypes.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
	PublicURL string `yaml:"public_url" mapstructure:"public_url"`
}

// RetryConfig tunes retries of transient provider failures.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROSPECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if cfg.Discovery.CampaignFile != "" {
		targets, err := LoadCampaign(cfg.Discovery.CampaignFile)
		if err != nil {
			return nil, err
		}
		cfg.Discovery.Targets = append(cfg.Discovery.Targets, targets...)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "prospect.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("schedule.discovery", "24h")
	v.SetDefault("schedule.enrichment", "1h")
	v.SetDefault("schedule.outreach", "30m")
	v.SetDefault("schedule.reply", "5m")
	v.SetDefault("schedule.prototype", "10m")
	v.SetDefault("schedule.conversation", "5m")
	v.SetDefault("pipeline.batch_size", 50)
	v.SetDefault("pipeline.lead_timeout_secs", 120)
	v.SetDefault("pipeline.enrich_retry_hours", 24)
	v.SetDefault("discovery.providers", []string{"google", "osm"})
	v.SetDefault("discovery.campaign_file", "")
	v.SetDefault("discovery.max_pages", 3)
	v.SetDefault("discovery.directory_blocklist", []string{
		"yelp.com", "justdial.com", "facebook.com", "instagram.com", "linkedin.com",
		"tripadvisor.com", "yellowpages.com", "sulekha.com", "indiamart.com", "zomato.com",
	})
	v.SetDefault("google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("google.rate_limit", 5)
	v.SetDefault("brave.base_url", "https://api.search.brave.com/res/v1")
	v.SetDefault("brave.rate_limit", 1)
	v.SetDefault("osm.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("osm.user_agent", "prospect-cli/1.0")
	v.SetDefault("osm.rate_limit", 1)
	v.SetDefault("hunter.base_url", "https://api.hunter.io/v2")
	v.SetDefault("hunter.rate_limit", 0.8)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.rate_limit", 0.3)
	v.SetDefault("enrich.patterns", []string{"{first}.{last}@{domain}", "{first}@{domain}", "info@{domain}"})
	v.SetDefault("enrich.phone_region", "IN")
	v.SetDefault("enrich.fallback_tld", ".in")
	v.SetDefault("enrich.scrape_rate_limit", 0.5)
	v.SetDefault("enrich.timeout_secs", 15)
	v.SetDefault("generate.backend", "template")
	v.SetDefault("generate.max_tokens", 800)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("openrouter.model", "openai/gpt-4o-mini")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.timeout_secs", 15)
	v.SetDefault("imap.port", 993)
	v.SetDefault("imap.folder", "INBOX")
	v.SetDefault("imap.lookback_days", 14)
	v.SetDefault("reply.affirmative", []string{"yes"})
	v.SetDefault("prototype.backend", "fs")
	v.SetDefault("prototype.dir", "sites")
	v.SetDefault("prototype.base_url", "http://localhost:8080/sites")
	v.SetDefault("minio.bucket", "prototypes")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.failure_threshold", 5)
	v.SetDefault("retry.reset_timeout_secs", 60)

	// Secrets have no default but must be known keys for env overrides to bind.
	for _, key := range []string{
		"google.key", "brave.key", "hunter.key", "jina.key", "anthropic.key", "openrouter.key",
		"smtp.host", "smtp.username", "smtp.password",
		"imap.host", "imap.username", "imap.password",
		"sender.name", "sender.email", "sender.company",
		"minio.endpoint", "minio.access_key", "minio.secret_key", "minio.public_url",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("minio.use_ssl", true)
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
