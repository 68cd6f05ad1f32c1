package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-yaml/yaml"
	"github.com/kelseyhightower/envconfig"

	"github.com/totegamma/trustledger/internal/domain"
	"github.com/totegamma/trustledger/internal/usecase"
)

// EnvPrefix prefixes every environment override, e.g. TRUSTLEDGER_POSTGRES_DSN.
const EnvPrefix = "TRUSTLEDGER"

type Config struct {
	Server  Server  `yaml:"server"`
	Economy Economy `yaml:"economy"`
	Engine  Engine  `yaml:"engine"`
}

type Server struct {
	ListenAddr    string `yaml:"listenAddr" envconfig:"LISTEN_ADDR"`
	StorageDriver string `yaml:"storageDriver" envconfig:"STORAGE_DRIVER"` // postgres, memory
	PostgresDsn   string `yaml:"postgresDsn" envconfig:"POSTGRES_DSN"`
	RedisAddr     string `yaml:"redisAddr" envconfig:"REDIS_ADDR"`
	RedisPassword string `yaml:"redisPassword" envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redisDB" envconfig:"REDIS_DB"`
	MemcachedAddr string `yaml:"memcachedAddr" envconfig:"MEMCACHED_ADDR"`
	EnableTrace   bool   `yaml:"enableTrace" envconfig:"ENABLE_TRACE"`
	TraceEndpoint string `yaml:"traceEndpoint" envconfig:"TRACE_ENDPOINT"`
	LogLevel      string `yaml:"logLevel" envconfig:"LOG_LEVEL"`
}

// Economy is the operator-facing form of domain.Economy, keyed by tier name.
type Economy struct {
	Weights      map[string]int   `yaml:"weights"`
	Thresholds   map[string]int64 `yaml:"thresholds"`
	VerifiedTier string           `yaml:"verifiedTier"`
}

type Engine struct {
	MaxRetries     int           `yaml:"maxRetries" envconfig:"MAX_RETRIES"`
	InitialBackoff time.Duration `yaml:"initialBackoff" envconfig:"INITIAL_BACKOFF"`
	MaxBackoff     time.Duration `yaml:"maxBackoff" envconfig:"MAX_BACKOFF"`
	CacheTTL       time.Duration `yaml:"cacheTTL" envconfig:"CACHE_TTL"`
}

func Default() Config {
	retry := usecase.DefaultRetryPolicy()
	return Config{
		Server: Server{
			ListenAddr:    ":8000",
			StorageDriver: "postgres",
			PostgresDsn:   "host=db user=postgres password=postgres dbname=postgres port=5432 sslmode=disable",
			LogLevel:      "info",
		},
		Engine: Engine{
			MaxRetries:     retry.MaxRetries,
			InitialBackoff: retry.InitialBackoff,
			MaxBackoff:     retry.MaxBackoff,
			CacheTTL:       30 * time.Second,
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	config := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, err
		}
		defer file.Close()

		err = yaml.NewDecoder(file).Decode(&config)
		if err != nil {
			return Config{}, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &config.Server); err != nil {
		return Config{}, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, &config.Engine); err != nil {
		return Config{}, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if _, err := config.Economy.ToDomain(); err != nil {
		return Config{}, err
	}

	switch config.Server.StorageDriver {
	case "postgres", "memory":
	default:
		return Config{}, fmt.Errorf("unsupported storageDriver: %s", config.Server.StorageDriver)
	}

	return config, nil
}

// ToDomain overlays the configured tables on domain.DefaultEconomy and
// validates the result.
func (e Economy) ToDomain() (domain.Economy, error) {
	economy := domain.DefaultEconomy()

	for name, weight := range e.Weights {
		tier, err := domain.ParseTier(name)
		if err != nil {
			return domain.Economy{}, fmt.Errorf("economy.weights: %w", err)
		}
		economy.Weights[tier] = weight
	}
	for name, threshold := range e.Thresholds {
		tier, err := domain.ParseTier(name)
		if err != nil {
			return domain.Economy{}, fmt.Errorf("economy.thresholds: %w", err)
		}
		economy.Thresholds[tier] = threshold
	}
	if e.VerifiedTier != "" {
		tier, err := domain.ParseTier(e.VerifiedTier)
		if err != nil {
			return domain.Economy{}, fmt.Errorf("economy.verifiedTier: %w", err)
		}
		economy.VerifiedTier = tier
	}

	if err := economy.Validate(); err != nil {
		return domain.Economy{}, err
	}
	return economy, nil
}

func (e Engine) RetryPolicy() usecase.RetryPolicy {
	return usecase.RetryPolicy{
		MaxRetries:     e.MaxRetries,
		InitialBackoff: e.InitialBackoff,
		MaxBackoff:     e.MaxBackoff,
	}
}
