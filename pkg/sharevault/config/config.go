// Package config loads the ShareVault server configuration from the
// environment and builds the components it describes.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Database types
const (
	DatabaseMemory   = "memory"
	DatabaseMongo    = "mongo"
	DatabasePostgres = "postgres"
)

// Config represents the server configuration. Every field can be set from
// the environment variable named in its env tag.
type Config struct {
	Host        string `env:"HOST" env-default:"0.0.0.0"`
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"` // development, production, testing

	SiteURL         string `env:"SITE_URL" env-default:"http://localhost:8080"`
	SiteName        string `env:"SITE_NAME" env-default:"ShareVault"`
	SiteShortName   string `env:"SITE_SHORT_NAME"`
	SiteDescription string `env:"SITE_DESCRIPTION" env-default:"Quotes, notes and posts worth keeping"`

	LogFormat string `env:"LOG_FORMAT" env-default:"json"` // json, text
	LogLevel  string `env:"LOG_LEVEL" env-default:"info"`

	Database DatabaseConfig
	S3       S3Config
	FS       FSConfig
	Auth     AuthConfig
	Cache    CacheConfig

	PaginationStrict  bool `env:"PAGINATION_STRICT" env-default:"false"`
	UploadConcurrency int  `env:"UPLOAD_CONCURRENCY" env-default:"4"`
}

// DatabaseConfig selects and locates the content repository
type DatabaseConfig struct {
	Type           string        `env:"DATABASE_TYPE" env-default:"memory"`
	URL            string        `env:"DATABASE_URL"`
	MongoDatabase  string        `env:"MONGO_DATABASE" env-default:"sharevault"`
	PostgresSchema string        `env:"POSTGRES_SCHEMA" env-default:"public"`
	QueryTimeout   time.Duration `env:"DATABASE_QUERY_TIMEOUT" env-default:"10s"`
}

// S3Config locates the object store used for uploads
type S3Config struct {
	Endpoint        string `env:"S3_ENDPOINT"`
	Region          string `env:"S3_REGION" env-default:"us-east-1"`
	Bucket          string `env:"S3_BUCKET"`
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	PublicURLPrefix string `env:"S3_PUBLIC_URL_PREFIX"`
	UsePathStyle    bool   `env:"S3_USE_PATH_STYLE" env-default:"false"`
	CreateBucket    bool   `env:"S3_CREATE_BUCKET" env-default:"false"`
}

// FSConfig configures local file storage for development
type FSConfig struct {
	BaseDir   string `env:"FS_BASE_DIR"`
	URLPrefix string `env:"FS_URL_PREFIX" env-default:"/media"`
}

// AuthConfig holds the credentials protected routes are checked against
type AuthConfig struct {
	JWTSecret              string `env:"AUTH_JWT_SECRET"`
	RevalidateAPIKeySHA256 string `env:"REVALIDATE_API_KEY_SHA256"`
}

// CacheConfig sizes the memoization engine and overrides freshness windows
type CacheConfig struct {
	Capacity      int           `env:"CACHE_CAPACITY" env-default:"10000"`
	Shards        int           `env:"CACHE_SHARDS" env-default:"16"`
	PostsTTL      time.Duration `env:"CACHE_POSTS_TTL" env-default:"5m"`
	CategoriesTTL time.Duration `env:"CACHE_CATEGORIES_TTL" env-default:"1h"`
	SitemapTTL    time.Duration `env:"CACHE_SITEMAP_TTL" env-default:"1h"`
}

// Option applies configuration to a Config instance.
type Option func(*Config) error

// Load reads the environment, applies opts on top and validates the result.
func Load(opts ...Option) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// IsProduction reports whether the server runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	u, err := url.Parse(c.SiteURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("site_url must be an absolute http(s) URL, got %q", c.SiteURL)
	}

	switch c.Database.Type {
	case DatabaseMemory:
	case DatabaseMongo, DatabasePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database_url is required when using %s", c.Database.Type)
		}
	default:
		return fmt.Errorf("database_type must be 'memory', 'mongo' or 'postgres', got %q", c.Database.Type)
	}
	if c.Database.Type == DatabaseMongo && c.Database.MongoDatabase == "" {
		return errors.New("mongo_database is required when using mongo")
	}

	if c.S3.Bucket != "" && (c.S3.AccessKeyID == "" || c.S3.SecretAccessKey == "") {
		return errors.New("s3 access key id and secret access key are required when a bucket is set")
	}

	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("log_format must be 'json' or 'text', got %q", c.LogFormat)
	}

	if c.Cache.Capacity <= 0 || c.Cache.Shards <= 0 {
		return errors.New("cache capacity and shards must be greater than 0")
	}
	if c.Cache.PostsTTL < 0 || c.Cache.CategoriesTTL < 0 || c.Cache.SitemapTTL < 0 {
		return errors.New("cache ttls cannot be negative")
	}
	if c.UploadConcurrency < 1 {
		return errors.New("upload_concurrency must be at least 1")
	}

	if c.IsProduction() && c.Auth.JWTSecret == "" {
		return errors.New("auth_jwt_secret is required in production")
	}
	return nil
}
