package config

import (
	"runtime"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/viper"
)

type Config struct {
	API       APIConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Storage   StorageConfig
	Cache     CacheConfig
	Transform TransformConfig
	Database  DatabaseConfig
	RateLimit RateLimitConfig
	Webhook   WebhookConfig
	Tracing   TracingConfig
	Log       LogConfig
}

type APIConfig struct {
	Addr string
}

type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Name          string
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency int
	MetricsAddr string
}

type StorageConfig struct {
	Driver    string
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// CacheConfig names the two logical buckets. The origin bucket is only read;
// the cache bucket receives every computed result.
type CacheConfig struct {
	OriginBucket string
	CacheBucket  string
	OriginPrefix string
	CachePrefix  string
}

type TransformConfig struct {
	Engine     string
	ScratchDir string
}

type DatabaseConfig struct {
	DSN string
}

type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   time.Duration
	Header   string
}

type WebhookConfig struct {
	SigningSecret string
	Timeout       time.Duration
	MaxAttempts   int
}

type TracingConfig struct {
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
	// SampleRatio is the share of new traces recorded, 0 to 1.
	SampleRatio float64
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads the configuration from the environment. It is read once at
// process start and never changes afterwards.
func Load() Config {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	return Config{
		API: APIConfig{
			Addr: v.GetString("PIXELCACHE_API_ADDR"),
		},
		Queue: QueueConfig{
			RedisAddr:     v.GetString("REDIS_ADDR"),
			RedisPassword: v.GetString("REDIS_PASSWORD"),
			RedisDB:       v.GetInt("REDIS_DB"),
			Name:          v.GetString("ASYNC_QUEUE"),
		},
		Worker: WorkerConfig{
			Concurrency: v.GetInt("WORKER_CONCURRENCY"),
			MetricsAddr: v.GetString("WORKER_METRICS_ADDR"),
		},
		Storage: StorageConfig{
			Driver:    v.GetString("STORAGE_DRIVER"),
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: v.GetString("MINIO_SECRET_KEY"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
		},
		Cache: CacheConfig{
			OriginBucket: v.GetString("ORIGIN_BUCKET"),
			CacheBucket:  v.GetString("CACHE_BUCKET"),
			OriginPrefix: v.GetString("ORIGIN_PREFIX"),
			CachePrefix:  v.GetString("CACHE_PREFIX"),
		},
		Transform: TransformConfig{
			Engine:     v.GetString("TRANSFORM_ENGINE"),
			ScratchDir: v.GetString("SCRATCH_DIR"),
		},
		Database: DatabaseConfig{
			DSN: v.GetString("POSTGRES_DSN"),
		},
		RateLimit: RateLimitConfig{
			Enabled:  v.GetBool("RATE_LIMIT_ENABLED"),
			Requests: v.GetInt("RATE_LIMIT_REQUESTS"),
			Window:   v.GetDuration("RATE_LIMIT_WINDOW"),
			Header:   v.GetString("RATE_LIMIT_USER_HEADER"),
		},
		Webhook: WebhookConfig{
			SigningSecret: v.GetString("WEBHOOK_SIGNING_SECRET"),
			Timeout:       v.GetDuration("WEBHOOK_TIMEOUT"),
			MaxAttempts:   v.GetInt("WEBHOOK_MAX_ATTEMPTS"),
		},
		Tracing: TracingConfig{
			Exporter:     v.GetString("OTEL_TRACES_EXPORTER"),
			OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			OTLPInsecure: v.GetBool("OTEL_EXPORTER_OTLP_INSECURE"),
			SampleRatio:  v.GetFloat64("OTEL_TRACES_SAMPLER_ARG"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PIXELCACHE_API_ADDR", ":8080")

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("ASYNC_QUEUE", "default")

	v.SetDefault("WORKER_CONCURRENCY", max(2, runtime.NumCPU()))
	v.SetDefault("WORKER_METRICS_ADDR", ":9091")

	v.SetDefault("STORAGE_DRIVER", "minio")
	v.SetDefault("MINIO_ENDPOINT", "localhost:9000")
	v.SetDefault("MINIO_ACCESS_KEY", "minioadmin")
	v.SetDefault("MINIO_SECRET_KEY", "minioadmin")
	v.SetDefault("MINIO_USE_SSL", false)

	v.SetDefault("ORIGIN_BUCKET", "pixelcache-origin")
	v.SetDefault("CACHE_BUCKET", "pixelcache-cache")
	v.SetDefault("ORIGIN_PREFIX", "")
	v.SetDefault("CACHE_PREFIX", "")

	v.SetDefault("TRANSFORM_ENGINE", "std")
	v.SetDefault("SCRATCH_DIR", "./.pixelcache-scratch")

	v.SetDefault("POSTGRES_DSN", "")

	v.SetDefault("RATE_LIMIT_ENABLED", false)
	v.SetDefault("RATE_LIMIT_REQUESTS", 60)
	v.SetDefault("RATE_LIMIT_WINDOW", time.Minute)
	v.SetDefault("RATE_LIMIT_USER_HEADER", "X-User-ID")

	v.SetDefault("WEBHOOK_SIGNING_SECRET", "")
	v.SetDefault("WEBHOOK_TIMEOUT", 10*time.Second)
	v.SetDefault("WEBHOOK_MAX_ATTEMPTS", 3)

	v.SetDefault("OTEL_TRACES_EXPORTER", "none")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_TRACES_SAMPLER_ARG", 1.0)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}
