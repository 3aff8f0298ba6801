package cli

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/depsight/depsight/pkg/errors"
)

// Config is the server configuration. Values resolve in order: defaults,
// then the TOML file, then DEPSIGHT_* environment variables.
type Config struct {
	ListenAddr string `toml:"listen_addr"`

	Store struct {
		Backend  string `toml:"backend"` // memory | mongodb
		MongoURI string `toml:"mongo_uri"`
		MongoDB  string `toml:"mongo_db"`
	} `toml:"store"`

	Cache struct {
		Backend  string `toml:"backend"` // memory | redis | none
		Addr     string `toml:"addr"`
		Password string `toml:"password"`
		DB       int    `toml:"db"`
		Prefix   string `toml:"prefix"`
	} `toml:"cache"`

	Artifacts struct {
		Backend   string `toml:"backend"` // memory | minio
		Endpoint  string `toml:"endpoint"`
		AccessKey string `toml:"access_key"`
		SecretKey string `toml:"secret_key"`
		Bucket    string `toml:"bucket"`
		UseSSL    bool   `toml:"use_ssl"`
	} `toml:"artifacts"`

	Feed struct {
		BaseURL          string   `toml:"base_url"`
		Concurrency      int      `toml:"concurrency"`
		FailureThreshold float64  `toml:"failure_threshold"`
		CacheTTL         duration `toml:"cache_ttl"`
	} `toml:"feed"`
}

// duration lets TOML carry durations as strings like "6h".
type duration struct{ time.Duration }

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func defaultConfig() Config {
	var cfg Config
	cfg.ListenAddr = ":8080"
	cfg.Store.Backend = "memory"
	cfg.Store.MongoDB = "depsight"
	cfg.Cache.Backend = "memory"
	cfg.Cache.Prefix = "depsight"
	cfg.Artifacts.Backend = "memory"
	cfg.Artifacts.Bucket = "depsight-artifacts"
	return cfg
}

// LoadConfig resolves the configuration. path may be empty; a missing file
// is only an error when it was asked for explicitly.
func LoadConfig(path string) (Config, error) {
	// .env files are a development convenience, silently absent in prod.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	cfg := defaultConfig()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, errors.Wrap(errors.ErrCodeInvalidInput, err, "loading config %s", path)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.ListenAddr, "DEPSIGHT_LISTEN_ADDR")
	setString(&cfg.Store.Backend, "DEPSIGHT_STORE_BACKEND")
	setString(&cfg.Store.MongoURI, "DEPSIGHT_MONGO_URI")
	setString(&cfg.Store.MongoDB, "DEPSIGHT_MONGO_DB")
	setString(&cfg.Cache.Backend, "DEPSIGHT_CACHE_BACKEND")
	setString(&cfg.Cache.Addr, "DEPSIGHT_REDIS_ADDR")
	setString(&cfg.Cache.Password, "DEPSIGHT_REDIS_PASSWORD")
	setInt(&cfg.Cache.DB, "DEPSIGHT_REDIS_DB")
	setString(&cfg.Cache.Prefix, "DEPSIGHT_REDIS_PREFIX")
	setString(&cfg.Artifacts.Backend, "DEPSIGHT_ARTIFACTS_BACKEND")
	setString(&cfg.Artifacts.Endpoint, "DEPSIGHT_S3_ENDPOINT")
	setString(&cfg.Artifacts.AccessKey, "DEPSIGHT_S3_ACCESS_KEY")
	setString(&cfg.Artifacts.SecretKey, "DEPSIGHT_S3_SECRET_KEY")
	setString(&cfg.Artifacts.Bucket, "DEPSIGHT_S3_BUCKET")
	setBool(&cfg.Artifacts.UseSSL, "DEPSIGHT_S3_USE_SSL")
	setString(&cfg.Feed.BaseURL, "DEPSIGHT_FEED_URL")
	setInt(&cfg.Feed.Concurrency, "DEPSIGHT_FEED_CONCURRENCY")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
