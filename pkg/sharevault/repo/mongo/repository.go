// Package mongo implements the content repository on a MongoDB document store.
//
// Posts live in the "posts" collection keyed by their string identifier.
// The category slug index lives in "category_slugs", keyed by slug.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tendant/sharevault/pkg/sharevault"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	postsCollection      = "posts"
	categoriesCollection = "category_slugs"
	slugIndexName        = "slug_unique"
)

// Repository implements sharevault.Repository using MongoDB
type Repository struct {
	posts      *mongo.Collection
	categories *mongo.Collection
	timeout    time.Duration
}

// Option configures the repository
type Option func(*Repository)

// WithQueryTimeout bounds every driver call. Zero leaves calls bounded only by the caller's context.
func WithQueryTimeout(d time.Duration) Option {
	return func(r *Repository) {
		r.timeout = d
	}
}

// New creates a repository over the given database
func New(db *mongo.Database, opts ...Option) *Repository {
	r := &Repository{
		posts:      db.Collection(postsCollection),
		categories: db.Collection(categoriesCollection),
		timeout:    10 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect dials uri and returns the client. Callers own Disconnect.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the listing and uniqueness indexes.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	listing := bson.D{{Key: "published", Value: 1}, {Key: "category", Value: 1}, {Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}
	// items awaiting backfill have no slug and must not collide
	slugOpts := options.Index().SetName(slugIndexName).SetUnique(true).
		SetPartialFilterExpression(bson.M{"slug": bson.M{"$gt": ""}})

	models := []mongo.IndexModel{
		{Keys: listing, Options: options.Index().SetName("listing")},
		{Keys: bson.D{{Key: "slug", Value: 1}}, Options: slugOpts},
	}
	if _, err := r.posts.Indexes().CreateMany(ctx, models); err != nil {
		return classify("ensure indexes", err)
	}
	return nil
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

// classify maps driver errors onto the repository error taxonomy.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return sharevault.ErrNotFound
	case mongo.IsTimeout(err), mongo.IsNetworkError(err),
		errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled),
		errors.Is(err, mongo.ErrClientDisconnected):
		return sharevault.Unavailable(op, err)
	case mongo.IsDuplicateKeyError(err):
		if strings.Contains(err.Error(), slugIndexName) {
			return sharevault.ErrSlugConflict
		}
		return &sharevault.RepositoryError{Op: op, Err: err}
	}

	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) && serverErr.HasErrorLabel("RetryableWriteError") {
		return sharevault.Unavailable(op, err)
	}
	return &sharevault.RepositoryError{Op: op, Err: err}
}

func filter(scope sharevault.Scope) bson.D {
	f := bson.D{}
	if !scope.IncludeDrafts {
		f = append(f, bson.E{Key: "published", Value: true})
	}
	if !scope.IsAll() {
		f = append(f, bson.E{Key: "category", Value: scope.Category})
	}
	return f
}

func (r *Repository) FetchPage(ctx context.Context, scope sharevault.Scope, offset, limit int) ([]sharevault.ContentItem, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(max(offset, 0)))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.posts.Find(ctx, filter(scope), opts)
	if err != nil {
		return nil, classify("fetch page", err)
	}

	items := []sharevault.ContentItem{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, classify("fetch page", err)
	}
	for i := range items {
		normalize(&items[i])
	}
	return items, nil
}

func (r *Repository) CountMatching(ctx context.Context, scope sharevault.Scope) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	n, err := r.posts.CountDocuments(ctx, filter(scope))
	if err != nil {
		return 0, classify("count matching", err)
	}
	return int(n), nil
}

func (r *Repository) CategoryCounts(ctx context.Context) ([]sharevault.CategorySummary, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "published", Value: true}}}},
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$category"}, {Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
	cursor, err := r.posts.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, classify("category counts", err)
	}

	var groups []struct {
		Name  string `bson:"_id"`
		Count int    `bson:"count"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, classify("category counts", err)
	}

	summaries := make([]sharevault.CategorySummary, 0, len(groups))
	for _, g := range groups {
		summaries = append(summaries, sharevault.CategorySummary{Name: g.Name, Slug: sharevault.ToSlug(g.Name), Count: g.Count})
	}
	return summaries, nil
}

func (r *Repository) findOne(ctx context.Context, op string, f bson.D) (*sharevault.ContentItem, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var item sharevault.ContentItem
	if err := r.posts.FindOne(ctx, f).Decode(&item); err != nil {
		return nil, classify(op, err)
	}
	normalize(&item)
	return &item, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*sharevault.ContentItem, error) {
	return r.findOne(ctx, "get by id", bson.D{{Key: "_id", Value: id}})
}

func (r *Repository) GetBySlug(ctx context.Context, slug string) (*sharevault.ContentItem, error) {
	if slug == "" {
		return nil, sharevault.ErrNotFound
	}
	return r.findOne(ctx, "get by slug", bson.D{{Key: "slug", Value: slug}})
}

func (r *Repository) SlugExists(ctx context.Context, slug string) (bool, error) {
	if slug == "" {
		return false, nil
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	n, err := r.posts.CountDocuments(ctx, bson.D{{Key: "slug", Value: slug}}, options.Count().SetLimit(1))
	if err != nil {
		return false, classify("slug exists", err)
	}
	return n > 0, nil
}

func (r *Repository) Create(ctx context.Context, item *sharevault.ContentItem) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if _, err := r.posts.InsertOne(ctx, item); err != nil {
		return classify("create item", err)
	}
	return nil
}

func (r *Repository) Update(ctx context.Context, item *sharevault.ContentItem) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.posts.ReplaceOne(ctx, bson.D{{Key: "_id", Value: item.ID}}, item)
	if err != nil {
		return classify("update item", err)
	}
	if res.MatchedCount == 0 {
		return sharevault.ErrNotFound
	}
	return nil
}

type categoryDoc struct {
	Slug      string    `bson:"_id"`
	Name      string    `bson:"name"`
	CreatedAt time.Time `bson:"createdAt"`
}

func (r *Repository) IndexCategory(ctx context.Context, slug, name string) (string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	update := bson.D{{Key: "$setOnInsert", Value: bson.D{
		{Key: "name", Value: name},
		{Key: "createdAt", Value: time.Now().UTC()},
	}}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc categoryDoc
	err := r.categories.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: slug}}, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		// a concurrent upsert won; read what it wrote
		err = r.categories.FindOne(ctx, bson.D{{Key: "_id", Value: slug}}).Decode(&doc)
	}
	if err != nil {
		return "", classify("index category", err)
	}
	return doc.Name, nil
}

func (r *Repository) ResolveCategorySlug(ctx context.Context, slug string) (string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var doc categoryDoc
	err := r.categories.FindOne(ctx, bson.D{{Key: "_id", Value: slug}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", sharevault.ErrCategoryNotIndexed
	}
	if err != nil {
		return "", classify("resolve category", err)
	}
	return doc.Name, nil
}

func normalize(item *sharevault.ContentItem) {
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	if len(item.Tags) == 0 {
		item.Tags = nil
	}
}

var _ sharevault.Repository = (*Repository)(nil)
