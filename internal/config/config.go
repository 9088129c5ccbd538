package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Redis         RedisConfig         `yaml:"redis"`
	ClickHouse    ClickHouseConfig    `yaml:"clickhouse"`
	Firestore     FirestoreConfig     `yaml:"firestore"`
	SQLite        SQLiteConfig        `yaml:"sqlite"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	NATS          NATSConfig          `yaml:"nats"`
	Cache         CacheConfig         `yaml:"cache"`
	Search        SearchConfig        `yaml:"search"`
	Query         QueryConfig         `yaml:"query"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxConcurrent   int           `yaml:"max_concurrent"`
}

type ElasticsearchConfig struct {
	Addresses      []string      `yaml:"addresses"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	MaxRetries     int           `yaml:"max_retries"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	PlacesIndex    string        `yaml:"places_index"`
	LocationsIndex string        `yaml:"locations_index"`
}

type RedisConfig struct {
	Addresses    []string      `yaml:"addresses"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	KeyPrefix    string        `yaml:"key_prefix"`
	RecordTTL    time.Duration `yaml:"record_ttl"`
}

type ClickHouseConfig struct {
	Addresses    []string      `yaml:"addresses"`
	Database     string        `yaml:"database"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	UserID       string        `yaml:"user_id"`
}

type FirestoreConfig struct {
	ProjectID       string        `yaml:"project_id"`
	CredentialsFile string        `yaml:"credentials_file"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	MaxBatchSize    int           `yaml:"max_batch_size"`
	Collection      string        `yaml:"collection"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type KafkaConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Brokers       []string      `yaml:"brokers"`
	TopicChanges  string        `yaml:"topic_changes"`
	TopicDLQ      string        `yaml:"topic_dlq"`
	ConsumerGroup string        `yaml:"consumer_group"`
	BatchSize     int           `yaml:"batch_size"`
	BatchTimeout  time.Duration `yaml:"batch_timeout"`
	MaxRetries    int           `yaml:"max_retries"`
}

type NATSConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	Subject        string        `yaml:"subject"`
	QueueGroup     string        `yaml:"queue_group"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type CacheConfig struct {
	// Store selects the persistent backend: redis, sqlite or firestore.
	Store             string        `yaml:"store"`
	SyncFlushInterval time.Duration `yaml:"sync_flush_interval"`
	GeocodeTTL        time.Duration `yaml:"geocode_ttl"`
	DetailsCacheSize  int           `yaml:"details_cache_size"`
	RefreshOnStart    bool          `yaml:"refresh_on_start"`
}

type SearchConfig struct {
	DefaultRadius     float64              `yaml:"default_radius"`
	DefaultLimit      int                  `yaml:"default_limit"`
	AutocompleteLimit int                  `yaml:"autocomplete_limit"`
	PrefetchCount     int                  `yaml:"prefetch_count"`
	QueryTimeout      time.Duration        `yaml:"query_timeout"`
	DefaultLocation   LocationConfig       `yaml:"default_location"`
	CircuitBreaker    CircuitBreakerConfig `yaml:"circuit_breaker"`
	Retry             RetryConfig          `yaml:"retry"`
	SlowQuery         SlowQueryConfig      `yaml:"slow_query"`
}

type LocationConfig struct {
	Name      string  `yaml:"name"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

type QueryConfig struct {
	TaxonomyPath           string `yaml:"taxonomy_path"`
	DomainModelPath        string `yaml:"domain_model_path"`
	LexicalModelPath       string `yaml:"lexical_model_path"`
	AbortOnUnmatchedParent bool   `yaml:"abort_on_unmatched_parent"`
}

type CircuitBreakerConfig struct {
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	InitialWait time.Duration `yaml:"initial_wait"`
	MaxWait     time.Duration `yaml:"max_wait"`
	Multiplier  float64       `yaml:"multiplier"`
}

type SlowQueryConfig struct {
	WarningThreshold  time.Duration `yaml:"warning_threshold"`
	CriticalThreshold time.Duration `yaml:"critical_threshold"`
}

type ObservabilityConfig struct {
	MetricsPort     int    `yaml:"metrics_port"`
	TracingEndpoint string `yaml:"tracing_endpoint"`
	LogLevel        string `yaml:"log_level"`
	ServiceName     string `yaml:"service_name"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxConcurrent:   500,
		},
		Elasticsearch: ElasticsearchConfig{
			Addresses:      []string{"http://localhost:9200"},
			MaxRetries:     3,
			RequestTimeout: 2 * time.Second,
			PlacesIndex:    "places",
			LocationsIndex: "locations",
		},
		Redis: RedisConfig{
			Addresses:    []string{"localhost:6379"},
			PoolSize:     20,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  1 * time.Second,
			WriteTimeout: 1 * time.Second,
			KeyPrefix:    "nearby",
		},
		ClickHouse: ClickHouseConfig{
			Addresses:    []string{"localhost:9000"},
			Database:     "nearby_assistant",
			DialTimeout:  5 * time.Second,
			QueryTimeout: 2 * time.Second,
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Firestore: FirestoreConfig{
			RequestTimeout: 2 * time.Second,
			MaxBatchSize:   100,
			Collection:     "user_cached_records",
		},
		SQLite: SQLiteConfig{
			Path: "nearby-cache.db",
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			TopicChanges:  "cache.changes",
			TopicDLQ:      "cache.changes.dlq",
			ConsumerGroup: "nearby-assistant",
			BatchSize:     100,
			BatchTimeout:  100 * time.Millisecond,
			MaxRetries:    3,
		},
		NATS: NATSConfig{
			URL:            "nats://localhost:4222",
			Subject:        "assistant.messages",
			QueueGroup:     "nearby-assistant",
			RequestTimeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			Store:             "redis",
			SyncFlushInterval: 2 * time.Second,
			GeocodeTTL:        10 * time.Minute,
			DetailsCacheSize:  1000,
			RefreshOnStart:    true,
		},
		Search: SearchConfig{
			DefaultRadius:     50000,
			DefaultLimit:      50,
			AutocompleteLimit: 5,
			PrefetchCount:     8,
			QueryTimeout:      5 * time.Second,
			DefaultLocation: LocationConfig{
				Name:      "New York",
				Latitude:  40.7128,
				Longitude: -74.0060,
			},
			CircuitBreaker: CircuitBreakerConfig{
				MaxRequests:      50,
				Interval:         30 * time.Second,
				Timeout:          30 * time.Second,
				FailureThreshold: 5,
			},
			Retry: RetryConfig{
				MaxAttempts: 2,
				InitialWait: 50 * time.Millisecond,
				MaxWait:     500 * time.Millisecond,
				Multiplier:  2.0,
			},
			SlowQuery: SlowQueryConfig{
				WarningThreshold:  500 * time.Millisecond,
				CriticalThreshold: 2 * time.Second,
			},
		},
		Query: QueryConfig{
			TaxonomyPath:           "data/integrated_category_taxonomy.json",
			AbortOnUnmatchedParent: true,
		},
		Observability: ObservabilityConfig{
			MetricsPort: 9090,
			LogLevel:    "info",
			ServiceName: "nearby-assistant",
		},
	}
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if len(c.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("at least one elasticsearch address required")
	}
	if c.Elasticsearch.PlacesIndex == "" || c.Elasticsearch.LocationsIndex == "" {
		return fmt.Errorf("elasticsearch places and locations indices required")
	}
	switch c.Cache.Store {
	case "redis":
		if len(c.Redis.Addresses) == 0 {
			return fmt.Errorf("at least one redis address required")
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite path required")
		}
	case "firestore":
		if c.Firestore.ProjectID == "" {
			return fmt.Errorf("firestore project id required")
		}
	default:
		return fmt.Errorf("unknown cache store %q", c.Cache.Store)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("at least one kafka broker required")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats url required")
	}
	if c.Search.DefaultLimit <= 0 || c.Search.DefaultLimit > 50 {
		return fmt.Errorf("default limit must be between 1 and 50")
	}
	if c.Search.DefaultRadius <= 0 {
		return fmt.Errorf("default radius must be positive")
	}
	if c.Search.AutocompleteLimit <= 0 {
		return fmt.Errorf("autocomplete limit must be positive")
	}
	if c.Search.PrefetchCount < 0 {
		return fmt.Errorf("prefetch count must not be negative")
	}
	if c.Query.TaxonomyPath == "" {
		return fmt.Errorf("taxonomy path required")
	}
	return nil
}
