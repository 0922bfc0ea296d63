package config

import (
	"fmt"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *Config) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *Config) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithSiteURL sets the public base URL used in sitemaps and robots.txt
func WithSiteURL(siteURL string) Option {
	return func(c *Config) error {
		c.SiteURL = siteURL
		return nil
	}
}

// WithDatabase configures the repository backend
func WithDatabase(dbType, url string) Option {
	return func(c *Config) error {
		switch dbType {
		case DatabaseMemory, DatabaseMongo, DatabasePostgres:
		default:
			return fmt.Errorf("database type must be 'memory', 'mongo' or 'postgres', got: %s", dbType)
		}
		c.Database.Type = dbType
		c.Database.URL = url
		return nil
	}
}

// WithFilesystemStorage stores uploads under baseDir, served at urlPrefix
func WithFilesystemStorage(baseDir, urlPrefix string) Option {
	return func(c *Config) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.FS.BaseDir = baseDir
		if urlPrefix != "" {
			c.FS.URLPrefix = urlPrefix
		}
		return nil
	}
}

// WithS3Storage stores uploads in an S3 bucket
func WithS3Storage(bucket, region, accessKeyID, secretAccessKey string) Option {
	return func(c *Config) error {
		if bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
		if region == "" {
			region = "us-east-1"
		}
		c.S3.Bucket = bucket
		c.S3.Region = region
		c.S3.AccessKeyID = accessKeyID
		c.S3.SecretAccessKey = secretAccessKey
		return nil
	}
}

// WithS3Endpoint sets a custom S3 endpoint (for MinIO, R2, LocalStack, etc.)
func WithS3Endpoint(endpoint string, usePathStyle bool) Option {
	return func(c *Config) error {
		c.S3.Endpoint = endpoint
		c.S3.UsePathStyle = usePathStyle
		return nil
	}
}

// WithJWTSecret sets the secret admin tokens are verified with
func WithJWTSecret(secret string) Option {
	return func(c *Config) error {
		c.Auth.JWTSecret = secret
		return nil
	}
}

// WithStrictPagination rejects malformed offset/limit values
func WithStrictPagination(strict bool) Option {
	return func(c *Config) error {
		c.PaginationStrict = strict
		return nil
	}
}
