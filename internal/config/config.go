package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is a plain record passed into the processor at construction time,
// replacing the module-scope settings singleton of the original service.
// Tests build one directly rather than reading it from the environment.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Processor ProcessorConfig `mapstructure:"processor"`
	MongoDB   MongoDBConfig   `mapstructure:"mongodb"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type AppConfig struct {
	Name            string        `mapstructure:"name"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Environment     string        `mapstructure:"environment"`
	Version         string        `mapstructure:"version"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ProcessorConfig is the domain configuration table: every field here maps
// directly to one of the environment variables the stream projector reads.
type ProcessorConfig struct {
	InboxStream    string `mapstructure:"inbox_stream"`
	InternalStream string `mapstructure:"internal_stream"`
	ConsumerGroup  string `mapstructure:"consumer_group"`
	DLQStream      string `mapstructure:"dlq_stream"`
	MaxRetries     int    `mapstructure:"max_retries"`
	// DedupTTL is in seconds and BlockTimeout in milliseconds, per the
	// documented external interface (spec §6) — both are plain integers,
	// not time.Duration, since viper's StringToTimeDurationHookFunc would
	// otherwise reject bare-integer env values like dedup_ttl_seconds=86400
	// ("missing unit in duration"). Convert at the call site instead.
	DedupTTL       int64  `mapstructure:"dedup_ttl_seconds"`
	BatchSize      int64  `mapstructure:"batch_size"`
	BlockTimeout   int64  `mapstructure:"block_timeout_ms"`
	ConsumerIDHost string `mapstructure:"consumer_id_host"`
}

type MongoDBConfig struct {
	URI               string        `mapstructure:"uri"`
	Database          string        `mapstructure:"database"`
	MaxPoolSize       uint64        `mapstructure:"max_pool_size"`
	MinPoolSize       uint64        `mapstructure:"min_pool_size"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	ServerSelection   time.Duration `mapstructure:"server_selection_timeout"`
}

type RedisConfig struct {
	URL             string        `mapstructure:"url"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	Database        int           `mapstructure:"database"`
	PoolSize        int           `mapstructure:"pool_size"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	MaxRetries      int           `mapstructure:"max_retries"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	TLSEnabled      bool          `mapstructure:"tls_enabled"`
}

// NATSConfig backs the lifecycle/DLQ notification channel (internal/notify),
// not the event stream itself — the broker for that is Redis.
type NATSConfig struct {
	URLs           []string      `mapstructure:"urls"`
	Subject        string        `mapstructure:"subject"`
	MaxReconnect   int           `mapstructure:"max_reconnect"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// MinIOConfig backs DLQ envelope archival (internal/archive).
type MinIOConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	UseSSL     bool   `mapstructure:"use_ssl"`
	Region     string `mapstructure:"region"`
	DLQBucket  string `mapstructure:"dlq_bucket"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	ExporterType string  `mapstructure:"exporter_type"` // stdout only, see pkg/tracer
	SamplerType  string  `mapstructure:"sampler_type"`  // always, never, ratio, parent
	SamplerRatio float64 `mapstructure:"sampler_ratio"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
	ErrorPath  string `mapstructure:"error_path"`
	AddSource  bool   `mapstructure:"add_source"`
	Caller     bool   `mapstructure:"caller"`
}

func Load(configPath string, configName string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/billie-servicing")
	}

	v.SetEnvPrefix("BILLIE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvAliases(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// bindEnvAliases exposes the bare, unprefixed variable names from §6 of the
// external interface table (redis_url, mongodb_url, ...) alongside the
// BILLIE_-prefixed ones Viper derives automatically, since operators expect
// to set them without the prefix.
func bindEnvAliases(v *viper.Viper) {
	_ = v.BindEnv("redis.url", "redis_url")
	_ = v.BindEnv("mongodb.uri", "mongodb_url")
	_ = v.BindEnv("mongodb.database", "db_name")
	_ = v.BindEnv("processor.inbox_stream", "inbox_stream")
	_ = v.BindEnv("processor.internal_stream", "internal_stream")
	_ = v.BindEnv("processor.consumer_group", "consumer_group")
	_ = v.BindEnv("processor.dlq_stream", "dlq_stream")
	_ = v.BindEnv("processor.max_retries", "max_retries")
	_ = v.BindEnv("processor.dedup_ttl_seconds", "dedup_ttl_seconds")
	_ = v.BindEnv("processor.batch_size", "batch_size")
	_ = v.BindEnv("processor.block_timeout_ms", "block_timeout_ms")
	_ = v.BindEnv("logging.level", "log_level")
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "billie-servicing-projector"
	}
	if c.App.Port == 0 {
		c.App.Port = 8080
	}
	if c.App.ShutdownTimeout == 0 {
		c.App.ShutdownTimeout = 30 * time.Second
	}

	if c.Redis.URL == "" {
		c.Redis.URL = "redis://localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 50
	}
	if c.Redis.MaxRetries == 0 {
		c.Redis.MaxRetries = 3
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}

	if c.MongoDB.URI == "" {
		c.MongoDB.URI = "mongodb://localhost:27017"
	}
	if c.MongoDB.Database == "" {
		c.MongoDB.Database = "billie-servicing"
	}
	if c.MongoDB.MaxPoolSize == 0 {
		c.MongoDB.MaxPoolSize = 100
	}
	if c.MongoDB.MinPoolSize == 0 {
		c.MongoDB.MinPoolSize = 10
	}
	if c.MongoDB.ConnectTimeout == 0 {
		c.MongoDB.ConnectTimeout = 10 * time.Second
	}
	if c.MongoDB.ServerSelection == 0 {
		c.MongoDB.ServerSelection = 5 * time.Second
	}

	if c.Processor.InboxStream == "" {
		c.Processor.InboxStream = "inbox:billie-servicing"
	}
	if c.Processor.InternalStream == "" {
		c.Processor.InternalStream = "internal:billie-servicing"
	}
	if c.Processor.ConsumerGroup == "" {
		c.Processor.ConsumerGroup = "billie-servicing-processor"
	}
	if c.Processor.DLQStream == "" {
		c.Processor.DLQStream = "dlq:billie-servicing"
	}
	if c.Processor.MaxRetries == 0 {
		c.Processor.MaxRetries = 3
	}
	if c.Processor.DedupTTL == 0 {
		c.Processor.DedupTTL = 86400
	}
	if c.Processor.BatchSize == 0 {
		c.Processor.BatchSize = 10
	}
	if c.Processor.BlockTimeout == 0 {
		c.Processor.BlockTimeout = 1000
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = c.App.Name
	}
	if c.Tracing.ExporterType == "" {
		c.Tracing.ExporterType = "stdout"
	}
	if c.Tracing.SamplerType == "" {
		c.Tracing.SamplerType = "always"
	}
	if c.Tracing.SamplerRatio == 0 {
		c.Tracing.SamplerRatio = 1.0
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.MinIO.DLQBucket == "" {
		c.MinIO.DLQBucket = "billie-servicing-dlq"
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "billie.servicing.processor.events"
	}
	if c.NATS.MaxReconnect == 0 {
		c.NATS.MaxReconnect = 60
	}
	if c.NATS.ReconnectWait == 0 {
		c.NATS.ReconnectWait = 2 * time.Second
	}
}

func (c *Config) validate() error {
	if c.MongoDB.URI == "" {
		return fmt.Errorf("mongodb.uri is required")
	}
	if c.MongoDB.Database == "" {
		return fmt.Errorf("mongodb.database is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required")
	}
	if c.Processor.ConsumerGroup == "" {
		return fmt.Errorf("processor.consumer_group is required")
	}
	if c.Processor.MaxRetries < 1 {
		return fmt.Errorf("processor.max_retries must be at least 1")
	}
	return nil
}

func (c *Config) GetMongoURI() string {
	return c.MongoDB.URI
}

func (c *Config) GetRedisAddr() string {
	return c.Redis.URL
}
