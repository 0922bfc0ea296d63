package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/sharevault/pkg/sharevault"
	"github.com/tendant/sharevault/pkg/sharevault/cache"
	memoryrepo "github.com/tendant/sharevault/pkg/sharevault/repo/memory"
	mongorepo "github.com/tendant/sharevault/pkg/sharevault/repo/mongo"
	postgresrepo "github.com/tendant/sharevault/pkg/sharevault/repo/postgres"
	"github.com/tendant/sharevault/pkg/sharevault/seo"
	fsstorage "github.com/tendant/sharevault/pkg/sharevault/storage/fs"
	s3storage "github.com/tendant/sharevault/pkg/sharevault/storage/s3"
	"github.com/tendant/sharevault/pkg/sharevault/upload"
)

// Closer releases what a builder opened. It is never nil.
type Closer func()

func noopCloser() {}

// BuildRepository opens the configured repository and prepares its schema.
func (c *Config) BuildRepository(ctx context.Context) (sharevault.Repository, Closer, error) {
	switch c.Database.Type {
	case DatabaseMemory:
		return memoryrepo.New(), noopCloser, nil

	case DatabasePostgres:
		pool, err := newPostgresPool(ctx, c.Database.URL, c.Database.PostgresSchema)
		if err != nil {
			return nil, nil, err
		}
		repo := postgresrepo.NewWithPool(pool, postgresrepo.WithQueryTimeout(c.Database.QueryTimeout))
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to ensure postgres schema: %w", err)
		}
		return repo, pool.Close, nil

	case DatabaseMongo:
		client, err := mongorepo.Connect(ctx, c.Database.URL)
		if err != nil {
			return nil, nil, err
		}
		closer := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		}
		repo := mongorepo.New(client.Database(c.Database.MongoDatabase), mongorepo.WithQueryTimeout(c.Database.QueryTimeout))
		if err := repo.EnsureIndexes(ctx); err != nil {
			closer()
			return nil, nil, err
		}
		return repo, closer, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
}

func newPostgresPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		searchPath := pgx.Identifier{schema}.Sanitize()
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+searchPath)
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return pool, nil
}

// PingPostgres verifies connectivity to Postgres with the configured search_path.
func PingPostgres(ctx context.Context, databaseURL, schema string) error {
	if databaseURL == "" {
		return errors.New("database_url is required")
	}
	pool, err := newPostgresPool(ctx, databaseURL, schema)
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// BuildBlobStore returns the upload destination: S3 when a bucket is set,
// the local filesystem when a base directory is set, and otherwise a store
// that fails every upload with sharevault.ErrStorageNotConfigured.
func (c *Config) BuildBlobStore(ctx context.Context) (sharevault.BlobStore, error) {
	switch {
	case c.S3.Bucket != "":
		backend, err := s3storage.New(ctx, s3storage.Config{
			Region:                 c.S3.Region,
			Bucket:                 c.S3.Bucket,
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               c.S3.Endpoint,
			UsePathStyle:           c.S3.UsePathStyle,
			PublicURLPrefix:        c.S3.PublicURLPrefix,
			CreateBucketIfNotExist: c.S3.CreateBucket,
		})
		if err != nil {
			return nil, err
		}
		return backend, nil
	case c.FS.BaseDir != "":
		backend, err := fsstorage.New(fsstorage.Config{BaseDir: c.FS.BaseDir, URLPrefix: c.FS.URLPrefix})
		if err != nil {
			return nil, err
		}
		return backend, nil
	default:
		return upload.Unconfigured(), nil
	}
}

// BuildCache creates the memoization engine
func (c *Config) BuildCache(logger *slog.Logger) (*cache.Engine, error) {
	cfg := cache.DefaultConfig()
	cfg.Capacity = c.Cache.Capacity
	cfg.NumShards = c.Cache.Shards
	return cache.NewEngine(cfg, cache.WithLogger(logger))
}

// Policies returns the default cache policies with the configured freshness
// windows applied. A zero duration keeps the default.
func (c *Config) Policies() cache.Policies {
	p := cache.DefaultPolicies()
	if d := c.Cache.PostsTTL; d > 0 {
		p.Posts.TTL, p.Posts.SharedMaxAge = d, d
		p.CategoryPosts.TTL, p.CategoryPosts.SharedMaxAge = d, d
	}
	if d := c.Cache.CategoriesTTL; d > 0 {
		p.Categories.TTL, p.Categories.SharedMaxAge = d, d
	}
	if d := c.Cache.SitemapTTL; d > 0 {
		p.Sitemap.TTL, p.Sitemap.SharedMaxAge = d, d
		p.ImageSitemap.TTL, p.ImageSitemap.SharedMaxAge = d, d
	}
	return p
}

// BuildUploader creates the upload pipeline on top of store
func (c *Config) BuildUploader(store sharevault.BlobStore, logger *slog.Logger) *upload.Uploader {
	policy := upload.DefaultPolicy()
	policy.Concurrency = c.UploadConcurrency
	return upload.New(store, upload.WithPolicy(policy), upload.WithLogger(logger))
}

// BuildService wires the repository, cache and policies into a Service.
// The returned Closer releases the repository connection.
func (c *Config) BuildService(ctx context.Context, logger *slog.Logger) (sharevault.Service, Closer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	repo, closeRepo, err := c.BuildRepository(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build repository: %w", err)
	}

	engine, err := c.BuildCache(logger)
	if err != nil {
		closeRepo()
		return nil, nil, fmt.Errorf("failed to build cache: %w", err)
	}

	svc, err := sharevault.New(
		sharevault.WithRepository(repo),
		sharevault.WithCache(engine),
		sharevault.WithPolicies(c.Policies()),
		sharevault.WithLogger(logger),
	)
	if err != nil {
		closeRepo()
		return nil, nil, err
	}
	return svc, closeRepo, nil
}

// Manifest returns the web app manifest for the site
func (c *Config) Manifest() seo.Manifest {
	short := c.SiteShortName
	if short == "" {
		short = c.SiteName
	}
	return seo.NewManifest(c.SiteName, short, c.SiteDescription)
}
