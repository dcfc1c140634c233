package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Cache     CacheConfig
	Cortex    CortexConfig
	Grounding GroundingConfig
	Events    EventsConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins []string
	Development    bool
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

// CacheConfig selects the answer cache backend. Backend is one of
// "memory", "lru" or "redis".
type CacheConfig struct {
	Backend          string
	TTLSeconds       int
	MaxEntries       int
	SweepIntervalSec int
	KeyPrefix        string
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

func (c CacheConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

type CortexConfig struct {
	ConfidenceThreshold float64
	CoalesceInFlight    bool
	LexiconPath         string
	MaxQuestionLength   int
	HistoryLimit        int
}

type GroundingConfig struct {
	TimeoutMs  int
	MaxRetries int
}

func (g GroundingConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutMs) * time.Millisecond
}

type EventsConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
	GroupID string
}

type RateLimitConfig struct {
	MaxRequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/captain-cortex")

	return load(v)
}

// LoadFile reads configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("CORTEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "memory", "lru", "redis":
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %d", c.Cache.TTLSeconds)
	}
	if c.Cache.Backend == "lru" && c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("lru cache requires maxEntries > 0")
	}
	if c.Cortex.ConfidenceThreshold < 0 || c.Cortex.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be within [0,1], got %v", c.Cortex.ConfidenceThreshold)
	}
	if c.Events.Enabled && (len(c.Events.Brokers) == 0 || c.Events.Topic == "") {
		return fmt.Errorf("events require brokers and a topic")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 60)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.allowedOrigins", []string{})
	v.SetDefault("server.development", false)

	v.SetDefault("sqlite.path", "./data/hostpilot.db")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.maxTokens", 512)
	v.SetDefault("llm.timeoutSec", 30)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttlSeconds", 60)
	v.SetDefault("cache.maxEntries", 10000)
	v.SetDefault("cache.sweepIntervalSec", 0)
	v.SetDefault("cache.keyPrefix", "hostpilot:")

	v.SetDefault("cortex.confidenceThreshold", 0.15)
	v.SetDefault("cortex.coalesceInFlight", false)
	v.SetDefault("cortex.maxQuestionLength", 1000)
	v.SetDefault("cortex.historyLimit", 50)

	v.SetDefault("grounding.timeoutMs", 3000)
	v.SetDefault("grounding.maxRetries", 2)

	v.SetDefault("events.enabled", false)
	v.SetDefault("events.topic", "hostpilot.data-changes")
	v.SetDefault("events.groupID", "captain-cortex")

	v.SetDefault("rateLimit.maxRequestsPerMinute", 60)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
