package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Common contains Elasticsearch parameters shared by the indexing services.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Kafka describes where change events flow.
type Kafka struct {
	KafkaBrokers []string
	KafkaTopic   string
}

// S3 configures the optional output mirror. Bucket empty disables it.
type S3 struct {
	Bucket       string
	Prefix       string
	Region       string
	Profile      string
	UsePathStyle bool
}

// Crawler holds configuration for the crawl driver. Flags override it.
type Crawler struct {
	Kafka
	S3          S3
	SitesFile   string
	OutDir      string
	CacheDir    string
	Limit       int
	Retries     int
	Concurrency int
	HTTPTimeout time.Duration
	Schedule    string
}

// Worker holds configuration for the Kafka -> Elasticsearch worker.
type Worker struct {
	Common
	Kafka
	KafkaConsumer    string
	KeywordLimit     int
	KeywordMinLength int
	DedupeCapacity   int
	DedupeTTL        time.Duration
	BatchSize        int
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	BindAddr    string
	OutDir      string
	SitesFile   string
	DefaultPage int
	MaxPage     int
}

// Retention configures the cleanup loop.
type Retention struct {
	Common
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

func loadCommon() Common {
	return Common{
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "posts"),
	}
}

// LoadCrawler builds a Crawler config from environment variables. Kafka is
// optional for the crawler: no brokers means no events are published.
func LoadCrawler() (*Crawler, error) {
	c := &Crawler{
		Kafka: Kafka{
			KafkaBrokers: splitAndTrim(getEnv("KAFKA_BROKERS", "")),
			KafkaTopic:   getEnv("KAFKA_TOPIC", "post_events"),
		},
		S3: S3{
			Bucket:       getEnv("S3_BUCKET", ""),
			Prefix:       strings.Trim(getEnv("S3_PREFIX", ""), "/"),
			Region:       getEnv("S3_REGION", ""),
			Profile:      getEnv("AWS_PROFILE", ""),
			UsePathStyle: getBool("S3_USE_PATH_STYLE", false),
		},
		SitesFile:   getEnv("SITES_FILE", "sites.yaml"),
		OutDir:      getEnv("OUTPUT_DIR", "./out"),
		CacheDir:    getEnv("CACHE_DIR", "./.cache"),
		Limit:       getInt("CRAWLER_LIMIT", 100),
		Retries:     getInt("CRAWLER_RETRY", 3),
		Concurrency: getInt("CRAWLER_CONCURRENCY", 0),
		HTTPTimeout: getDuration("CRAWLER_HTTP_TIMEOUT", "30s"),
		Schedule:    getEnv("CRAWLER_SCHEDULE", ""),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks values after flags have been applied.
func (c *Crawler) Validate() error {
	if c.Limit <= 0 {
		return fmt.Errorf("CRAWLER_LIMIT must be positive")
	}
	if c.Retries <= 0 {
		return fmt.Errorf("CRAWLER_RETRY must be positive")
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("CRAWLER_CONCURRENCY cannot be negative")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("CRAWLER_HTTP_TIMEOUT must be positive")
	}
	if strings.TrimSpace(c.CacheDir) == "" {
		return fmt.Errorf("CACHE_DIR is required")
	}
	if strings.TrimSpace(c.OutDir) == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}
	return nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	c := &Worker{
		Common: loadCommon(),
		Kafka: Kafka{
			KafkaBrokers: splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
			KafkaTopic:   getEnv("KAFKA_TOPIC", "post_events"),
		},
		KafkaConsumer:    getEnv("KAFKA_CONSUMER_GROUP", "post-indexer"),
		KeywordLimit:     getInt("WORKER_KEYWORD_LIMIT", 8),
		KeywordMinLength: getInt("WORKER_KEYWORD_MIN_LEN", 2),
		DedupeCapacity:   getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:        getDuration("WORKER_DEDUPE_TTL", "24h"),
		BatchSize:        getInt("WORKER_BATCH_SIZE", 10),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}
	if c.KeywordLimit <= 0 {
		return nil, fmt.Errorf("WORKER_KEYWORD_LIMIT must be positive")
	}
	if c.KeywordMinLength < 0 {
		return nil, fmt.Errorf("WORKER_KEYWORD_MIN_LEN cannot be negative")
	}

	return c, nil
}

// DLQTopic is where the worker parks messages it could not index.
func (w *Worker) DLQTopic() string {
	return w.KafkaTopic + "_dlq"
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	c := &API{
		Common:      loadCommon(),
		BindAddr:    getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		OutDir:      getEnv("OUTPUT_DIR", "./out"),
		SitesFile:   getEnv("SITES_FILE", "sites.yaml"),
		DefaultPage: getInt("API_PAGE_SIZE", 20),
		MaxPage:     getInt("API_MAX_PAGE_SIZE", 100),
	}

	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	c := &Retention{
		Common:    loadCommon(),
		Interval:  getDuration("RETENTION_INTERVAL", "24h"),
		MaxAge:    getDuration("RETENTION_MAX_AGE", "8760h"),
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_INTERVAL must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	if d, err := time.ParseDuration(getEnv(key, fallback)); err == nil {
		return d
	}
	d, err := time.ParseDuration(fallback)
	if err != nil {
		panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, err))
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
