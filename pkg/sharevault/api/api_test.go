package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/sharevault/pkg/sharevault"
	"github.com/tendant/sharevault/pkg/sharevault/api"
	"github.com/tendant/sharevault/pkg/sharevault/cache"
	"github.com/tendant/sharevault/pkg/sharevault/repo/memory"
	"github.com/tendant/sharevault/pkg/sharevault/repo/repotest"
	"github.com/tendant/sharevault/pkg/sharevault/seo"
	memorystorage "github.com/tendant/sharevault/pkg/sharevault/storage/memory"
	"github.com/tendant/sharevault/pkg/sharevault/upload"
)

const jwtSecret = "test-secret"

// flakyRepo fails every listing read while down is set.
type flakyRepo struct {
	sharevault.Repository
	down atomic.Bool
}

func (r *flakyRepo) FetchPage(ctx context.Context, scope sharevault.Scope, offset, limit int) ([]sharevault.ContentItem, error) {
	if r.down.Load() {
		return nil, sharevault.Unavailable("fetch page", errors.New("dial tcp: connection refused"))
	}
	return r.Repository.FetchPage(ctx, scope, offset, limit)
}

func (r *flakyRepo) CategoryCounts(ctx context.Context) ([]sharevault.CategorySummary, error) {
	if r.down.Load() {
		return nil, sharevault.Unavailable("category counts", errors.New("dial tcp: connection refused"))
	}
	return r.Repository.CategoryCounts(ctx)
}

type testServer struct {
	router *chi.Mux
	repo   *flakyRepo
	store  *memorystorage.Backend
	token  string
}

func setupServer(t *testing.T, mutate func(*api.RouterConfig)) *testServer {
	t.Helper()
	repo := &flakyRepo{Repository: memory.New()}
	service, err := sharevault.New(sharevault.WithRepository(repo))
	require.NoError(t, err)

	store := memorystorage.New()
	tokenAuth := api.NewTokenAuth(jwtSecret)
	_, token, err := tokenAuth.Encode(map[string]interface{}{"sub": "author-42"})
	require.NoError(t, err)

	cfg := api.RouterConfig{
		Service:   service,
		Uploader:  upload.New(store),
		SiteURL:   "https://sharevault.example",
		Manifest:  seo.NewManifest("ShareVault", "", ""),
		AdminAuth: api.AdminAuth(tokenAuth),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	router := chi.NewRouter()
	api.Register(router, cfg)
	return &testServer{router: router, repo: repo, store: store, token: token}
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) get(t *testing.T, path string) *httptest.ResponseRecorder {
	return s.do(t, httptest.NewRequest(http.MethodGet, path, nil))
}

func (s *testServer) authed(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer "+s.token)
	return req
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestListPosts(t *testing.T) {
	s := setupServer(t, nil)
	repotest.Seed(t, s.repo, 15, "Alpha", "Beta")

	rec := s.get(t, "/posts")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, cache.DefaultPolicies().Posts.CacheControl(), rec.Header().Get("Cache-Control"))

	resp := decodeBody[api.PostsResponse](t, rec)
	assert.Len(t, resp.Posts, 12)
	assert.Equal(t, 0, resp.Offset)
	assert.Equal(t, 12, resp.Limit)
	assert.Equal(t, 15, resp.Total)

	rec = s.get(t, "/posts?offset=12&limit=500")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeBody[api.PostsResponse](t, rec)
	assert.Len(t, resp.Posts, 3)
	assert.Equal(t, sharevault.MaxLimit, resp.Limit)
}

func TestListPosts_Pagination(t *testing.T) {
	t.Run("LenientDefaultsMalformedValues", func(t *testing.T) {
		s := setupServer(t, nil)
		rec := s.get(t, "/posts?offset=abc&limit=-4")
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decodeBody[api.PostsResponse](t, rec)
		assert.Equal(t, 0, resp.Offset)
		assert.Equal(t, sharevault.DefaultLimit, resp.Limit)
		assert.NotNil(t, resp.Posts)
	})

	t.Run("StrictRejectsMalformedValues", func(t *testing.T) {
		s := setupServer(t, func(cfg *api.RouterConfig) { cfg.StrictPagination = true })
		rec := s.get(t, "/posts?offset=abc")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
		assert.NotEmpty(t, decodeBody[api.ErrorResponse](t, rec).Error)
	})
}

func TestListPosts_RepositoryUnavailable(t *testing.T) {
	s := setupServer(t, nil)
	s.repo.down.Store(true)

	rec := s.get(t, "/posts")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	body := decodeBody[api.ErrorResponse](t, rec)
	assert.NotContains(t, body.Error, "dial tcp")
}

func TestListPosts_Compressed(t *testing.T) {
	s := setupServer(t, nil)
	repotest.Seed(t, s.repo, 15, "Alpha")

	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := s.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
}

func TestGetPost(t *testing.T) {
	s := setupServer(t, nil)
	require.NoError(t, s.repo.Create(context.Background(), repotest.Item("a", "Alpha", 1)))

	rec := s.get(t, "/posts/slug-a")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a", decodeBody[sharevault.ContentItem](t, rec).ID)

	rec = s.get(t, "/posts/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListCategories(t *testing.T) {
	s := setupServer(t, nil)
	repotest.Seed(t, s.repo, 6, "Alpha", "Beta", "Self Discipline")

	rec := s.get(t, "/categories")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, cache.DefaultPolicies().Categories.CacheControl(), rec.Header().Get("Cache-Control"))

	resp := decodeBody[api.CategoriesResponse](t, rec)
	assert.Equal(t, 3, resp.Total)
	require.Len(t, resp.Categories, 3)
	assert.Equal(t, "self-discipline", resp.Categories[2].Slug)
}

func TestListCategoryPosts(t *testing.T) {
	s := setupServer(t, nil)
	repotest.Seed(t, s.repo, 6, "Alpha", "Self Discipline")

	rec := s.get(t, "/category/self-discipline/posts?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[api.CategoryPostsResponse](t, rec)
	assert.Len(t, resp.Posts, 2)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, "Self Discipline", resp.Category)
	assert.Equal(t, "self-discipline", resp.Slug)

	rec = s.get(t, "/category/unknown/posts")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeBody[api.CategoryPostsResponse](t, rec)
	assert.Equal(t, 0, resp.Total)
	assert.NotNil(t, resp.Posts)
	assert.Empty(t, resp.Posts)
}

type sitemapDoc struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

func parseSitemap(t *testing.T, rec *httptest.ResponseRecorder) sitemapDoc {
	t.Helper()
	var doc sitemapDoc
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &doc))
	return doc
}

func TestSitemaps(t *testing.T) {
	s := setupServer(t, nil)
	item := repotest.Item("a", "Alpha", 1)
	item.ImageURL = "/media/a.png"
	require.NoError(t, s.repo.Create(context.Background(), item))
	require.NoError(t, s.repo.Create(context.Background(), repotest.Item("b", "Alpha", 2)))

	rec := s.get(t, "/sitemap.xml")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/xml")
	doc := parseSitemap(t, rec)
	assert.Len(t, doc.URLs, len(seo.DefaultStaticPages)+3)

	rec = s.get(t, "/image-sitemap.xml")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, cache.DefaultPolicies().ImageSitemap.CacheControl(), rec.Header().Get("Cache-Control"))
	doc = parseSitemap(t, rec)
	require.Len(t, doc.URLs, 1)
	assert.Equal(t, "https://sharevault.example/blog/slug-a", doc.URLs[0].Loc)
}

func TestSitemaps_DegradeWhenRepositoryFails(t *testing.T) {
	s := setupServer(t, nil)
	repotest.Seed(t, s.repo, 3, "Alpha")
	s.repo.down.Store(true)

	for _, path := range []string{"/sitemap.xml", "/image-sitemap.xml"} {
		t.Run(path, func(t *testing.T) {
			rec := s.get(t, path)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
			assert.Empty(t, parseSitemap(t, rec).URLs)
		})
	}
}

func TestRobotsAndManifest(t *testing.T) {
	s := setupServer(t, nil)

	rec := s.get(t, "/robots.txt")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Disallow: /admin/")
	assert.Contains(t, rec.Body.String(), "Disallow: /api/")
	assert.Contains(t, rec.Body.String(), "Sitemap: https://sharevault.example/image-sitemap.xml")
	assert.Equal(t, "public, max-age=0, s-maxage=86400", rec.Header().Get("Cache-Control"))

	rec = s.get(t, "/manifest.webmanifest")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/manifest+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "ShareVault", decodeBody[seo.Manifest](t, rec).Name)
}

type part struct {
	name        string
	contentType string
	data        []byte
}

func multipartRequest(t *testing.T, parts ...part) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="files"; filename="`+p.name+`"`)
		h.Set("Content-Type", p.contentType)
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	t.Run("RequiresAuthentication", func(t *testing.T) {
		s := setupServer(t, nil)
		rec := s.do(t, multipartRequest(t, part{"a.txt", "text/plain", []byte("hello")}))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, s.store.Keys())
	})

	t.Run("StoresFiles", func(t *testing.T) {
		s := setupServer(t, nil)
		rec := s.do(t, s.authed(multipartRequest(t,
			part{"a.txt", "text/plain", []byte("hello")},
			part{"b.txt", "text/plain", []byte("world")},
		)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		resp := decodeBody[api.UploadResponse](t, rec)
		assert.True(t, resp.Success)
		require.Len(t, resp.Files, 2)
		for _, f := range resp.Files {
			assert.True(t, strings.HasPrefix(f.Key, "uploads/"))
			assert.NotContains(t, f.Key, f.Name)
			assert.Equal(t, "memory://"+f.Key, f.URL)
		}
		assert.Len(t, s.store.Keys(), 2)
	})

	t.Run("DisallowedTypeRejectsBatch", func(t *testing.T) {
		s := setupServer(t, nil)
		exe := append([]byte("MZ\x90\x00\x03\x00\x00\x00\x04\x00\x00\x00\xff\xff"), make([]byte, 128)...)
		rec := s.do(t, s.authed(multipartRequest(t,
			part{"a.txt", "text/plain", []byte("hello")},
			part{"setup.exe", "application/octet-stream", exe},
		)))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NotEmpty(t, decodeBody[api.ErrorResponse](t, rec).Error)
		assert.Empty(t, s.store.Keys())
	})

	t.Run("NotMultipart", func(t *testing.T) {
		s := setupServer(t, nil)
		req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json")
		rec := s.do(t, s.authed(req))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("PartialFailureReportsStoredFiles", func(t *testing.T) {
		s := setupServer(t, nil)
		var calls atomic.Int32
		s.store.SetFailure(func(string) error {
			if calls.Add(1) == 1 {
				return errors.New("bucket unavailable")
			}
			return nil
		})

		rec := s.do(t, s.authed(multipartRequest(t,
			part{"a.txt", "text/plain", []byte("one")},
			part{"b.txt", "text/plain", []byte("two")},
		)))
		require.Equal(t, http.StatusInternalServerError, rec.Code)

		resp := decodeBody[api.UploadResponse](t, rec)
		assert.False(t, resp.Success)
		assert.Len(t, resp.Files, 1)
		assert.Len(t, resp.Failed, 1)
		assert.Len(t, s.store.Keys(), 1)
	})

	t.Run("StorageNotConfigured", func(t *testing.T) {
		s := setupServer(t, func(cfg *api.RouterConfig) { cfg.Uploader = upload.New(nil) })
		rec := s.do(t, s.authed(multipartRequest(t, part{"a.txt", "text/plain", []byte("hello")})))
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, sharevault.ErrStorageNotConfigured.Error(), decodeBody[api.UploadResponse](t, rec).Error)
	})
}

func TestAdminPosts(t *testing.T) {
	s := setupServer(t, nil)

	body := `{"title":"Hello World","body":"Some words here","category":"R&D Tips","published":true}`
	req := httptest.NewRequest(http.MethodPost, "/admin/posts", strings.NewReader(body))
	rec := s.do(t, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin/posts", strings.NewReader(body))
	rec = s.do(t, s.authed(req))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[sharevault.ContentItem](t, rec)
	assert.Equal(t, "hello-world", created.Slug)
	assert.Equal(t, "author-42", created.AuthorID)

	rec = s.get(t, "/category/rd-tips/posts")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "R&D Tips", decodeBody[api.CategoryPostsResponse](t, rec).Category)

	update := `{"title":"Hello Again","body":"Other words","category":"R&D Tips","published":true}`
	req = httptest.NewRequest(http.MethodPut, "/admin/posts/"+created.ID, strings.NewReader(update))
	rec = s.do(t, s.authed(req))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "hello-world", decodeBody[sharevault.ContentItem](t, rec).Slug)

	req = httptest.NewRequest(http.MethodPost, "/admin/posts", strings.NewReader(`{"title":""}`))
	rec = s.do(t, s.authed(req))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin/posts", strings.NewReader(`not json`))
	rec = s.do(t, s.authed(req))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPut, "/admin/posts/missing", strings.NewReader(update))
	rec = s.do(t, s.authed(req))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminBackfill(t *testing.T) {
	s := setupServer(t, nil)
	item := repotest.Item("a", "Alpha", 1)
	item.Slug = ""
	require.NoError(t, s.repo.Create(context.Background(), item))

	req := httptest.NewRequest(http.MethodPost, "/admin/backfill-slugs", nil)
	rec := s.do(t, s.authed(req))
	require.Equal(t, http.StatusOK, rec.Code)

	report := decodeBody[sharevault.BackfillReport](t, rec)
	assert.Equal(t, 1, report.SlugsAssigned)
	assert.Equal(t, []string{"title-a"}, report.Assigned)
}

func TestRevalidate(t *testing.T) {
	t.Run("DeniedWithoutConfiguredAuth", func(t *testing.T) {
		s := setupServer(t, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/revalidate", strings.NewReader(`{"tags":["posts"]}`))
		assert.Equal(t, http.StatusUnauthorized, s.do(t, req).Code)
	})

	t.Run("DropsTaggedEntries", func(t *testing.T) {
		engine, err := cache.NewEngine(cache.DefaultConfig())
		require.NoError(t, err)
		repo := memory.New()
		service, err := sharevault.New(sharevault.WithRepository(repo), sharevault.WithCache(engine))
		require.NoError(t, err)
		repotest.Seed(t, repo, 3, "Alpha")

		router := chi.NewRouter()
		api.Register(router, api.RouterConfig{
			Service:        service,
			RevalidateAuth: func(next http.Handler) http.Handler { return next },
		})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/posts", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/revalidate", strings.NewReader(`{"tags":["posts"]}`)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decodeBody[api.RevalidateResponse](t, rec)
		assert.True(t, resp.Revalidated)
		assert.Equal(t, 1, resp.Dropped)

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/revalidate?tag=categories", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/revalidate", strings.NewReader(`{"tags":[]}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
