// Package postkit is a blog publishing engine built with Go, Echo, and templ.
// It stores posts as rich-text document trees with their media in a blob
// store, and moves them between installations as portable zip archives.
//
// Sites provide their own templ components via the ViewFuncs struct, and
// postkit handles the handler logic, middleware, and persistence.
package postkit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/eringen/postkit/archive"
	"github.com/eringen/postkit/asset"
	"github.com/eringen/postkit/blob"
	"github.com/eringen/postkit/views"
)

// ViewFuncs holds the templ components the framework calls when rendering
// pages. Sites replace any of them to own their markup.
type ViewFuncs struct {
	Home           func(page views.HomePage) templ.Component
	Post           func(page views.PostPage) templ.Component
	AdminLogin     func(site views.SiteConfig, showError bool, csrfToken string) templ.Component
	AdminDashboard func(page views.DashboardPage) templ.Component
	NotFound       func(site views.SiteConfig) templ.Component
	ServerError    func(site views.SiteConfig) templ.Component
}

// DefaultViews returns the built-in components.
func DefaultViews() ViewFuncs {
	return ViewFuncs{
		Home:           views.Home,
		Post:           views.Post,
		AdminLogin:     views.AdminLogin,
		AdminDashboard: views.AdminDashboard,
		NotFound:       views.NotFound,
		ServerError:    views.ServerError,
	}
}

// withDefaults fills nil components from DefaultViews.
func (v ViewFuncs) withDefaults() ViewFuncs {
	d := DefaultViews()
	if v.Home == nil {
		v.Home = d.Home
	}
	if v.Post == nil {
		v.Post = d.Post
	}
	if v.AdminLogin == nil {
		v.AdminLogin = d.AdminLogin
	}
	if v.AdminDashboard == nil {
		v.AdminDashboard = d.AdminDashboard
	}
	if v.NotFound == nil {
		v.NotFound = d.NotFound
	}
	if v.ServerError == nil {
		v.ServerError = d.ServerError
	}
	return v
}

// App is the central postkit application. It wires together the store,
// blob storage, cache, handlers, middleware, and background jobs.
type App struct {
	Config SiteConfig
	Echo   *echo.Echo
	Store  *Store
	Blobs  blob.Store
	Cache  *PostCache
	Views  ViewFuncs
	Log    *logrus.Logger

	fetcher       *asset.Fetcher
	httpClient    *http.Client
	loginLimiter  *RateLimiter
	importLimiter *RateLimiter
	uploads       *UploadRegistry
	jobs          *JobRunner
	sweeper       *OrphanSweepJob
	customRoutes  []func(*App)
	staticDir     string
}

// New creates a new App with the given configuration and view functions.
func New(cfg SiteConfig, vf ViewFuncs, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config:    cfg,
		Echo:      echo.New(),
		Views:     vf.withDefaults(),
		uploads:   NewUploadRegistry(),
		staticDir: "public",
	}
	a.Echo.HideBanner = true

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Init opens storage, sets up middleware, routes and background jobs. Start
// calls it; commands that only need storage may call it directly.
func (a *App) Init(ctx context.Context) error {
	if a.Log == nil {
		l, err := a.Config.newLogger()
		if err != nil {
			return fmt.Errorf("postkit: %w", err)
		}
		a.Log = l
	}

	store, err := NewStore(a.Config.DatabasePath)
	if err != nil {
		return fmt.Errorf("postkit: init store: %w", err)
	}
	a.Store = store
	if _, err := a.Store.EnsureAdmin(ctx, a.Config.Author); err != nil {
		return fmt.Errorf("postkit: ensure admin: %w", err)
	}

	if a.Blobs == nil {
		blobs, err := blob.NewStoreFromConfig(ctx, a.Config.Blob)
		if err != nil {
			return fmt.Errorf("postkit: init blob store: %w", err)
		}
		a.Blobs = blobs
	}

	if a.httpClient == nil {
		a.httpClient = &http.Client{Timeout: a.Config.FetchTimeout}
	}
	a.fetcher = asset.NewFetcher(a.Blobs,
		asset.WithHTTPClient(a.httpClient),
		asset.WithBaseURL(a.Config.URL),
		asset.WithLogger(a.Log),
	)

	a.Cache = NewPostCache(a.Store, a.Config.PostCacheTTL)
	a.loginLimiter = NewRateLimiter(5, time.Minute)
	a.importLimiter = NewRateLimiter(10, time.Minute)

	a.sweeper = NewOrphanSweepJob(a.Store, a.Blobs, a.Log, a.Config.CleanupSchedule)
	a.jobs = NewJobRunner(a.Log)
	if !strings.EqualFold(a.Config.CleanupSchedule, "off") {
		if err := a.jobs.Add(a.sweeper); err != nil {
			return fmt.Errorf("postkit: schedule %s: %w", a.sweeper.Name(), err)
		}
	}

	a.setupMiddleware()
	a.setupRoutes()
	for _, fn := range a.customRoutes {
		fn(a)
	}
	return nil
}

// Start initializes the app and serves until the server is closed.
func (a *App) Start(ctx context.Context) error {
	if a.Config.AdminPassword == "" {
		return fmt.Errorf("postkit: AdminPassword is required")
	}
	if a.Config.SessionSecret == "" {
		return fmt.Errorf("postkit: SessionSecret is required")
	}
	if err := a.Init(ctx); err != nil {
		return err
	}
	a.jobs.Start()

	a.Log.WithField("addr", a.Config.Addr).Info("listening")
	if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Echo.Shutdown(ctx)
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.Static("/public", a.staticDir)
	e.GET("/favicon.svg", a.handleFavicon)
	e.GET("/robots.txt", a.handleRobots)

	// Public pages
	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/feed.xml", a.handleFeed)
	e.GET("/", a.handleHome)
	e.GET("/p/:slug/", a.handlePost)

	// Media
	e.GET("/images/:filename", a.handleServeImage)
	e.GET("/posts/*", a.handleServeBlob)

	// Admin
	e.GET("/admin/", a.handleAdmin)
	e.POST("/admin/login/", a.handleAdminLogin)
	e.POST("/admin/logout/", handleAdminLogout)

	// API
	api := e.Group("/api")
	api.GET("/posts", a.handleListPosts)
	api.POST("/posts", a.handleCreatePost, requireViewer)
	api.GET("/posts/slug/check", a.handleSlugCheck)
	api.POST("/posts/export", a.handleBatchExport)
	api.POST("/posts/import", a.handleImport, requireViewer)
	api.GET("/posts/:identifier", a.handleGetPost)
	api.PUT("/posts/:identifier", a.handleUpdatePost, requireViewer)
	api.DELETE("/posts/:identifier", a.handleDeletePost, requireViewer)
	api.GET("/posts/:identifier/export", a.handleExport)
	api.POST("/posts/:identifier/duplicate", a.handleDuplicatePost, requireViewer)
	api.GET("/posts/:identifier/images", a.handleListImages, requireViewer)
	api.POST("/posts/:identifier/images", a.handleUploadImage, requireViewer)
	api.DELETE("/posts/:identifier/images", a.handleDeleteImage, requireViewer)
	api.POST("/posts/:identifier/videos", a.handleUploadVideo, requireViewer)
	api.GET("/uploads/:id", a.handleUploadProgress, requireViewer)
	api.DELETE("/uploads/:id", a.handleCancelUpload, requireViewer)
}

// builder returns an archive builder that fetches through the app's fetcher.
func (a *App) builder(includeAssets bool) *archive.Builder {
	return archive.NewBuilder(a.fetcher, archive.WithLogger(a.Log), archive.IncludeAssets(includeAssets))
}

// importer returns an importer reporting to fn.
func (a *App) importer(fn archive.ProgressFunc) *archive.Importer {
	opts := []archive.Option{archive.WithLogger(a.Log)}
	if fn != nil {
		opts = append(opts, archive.WithProgress(fn))
	}
	return archive.NewImporter(a.Store, a.Blobs, opts...)
}

// siteView is the view-facing subset of the configuration.
func (a *App) siteView() views.SiteConfig {
	return views.SiteConfig{
		Name:        a.Config.Name,
		URL:         a.Config.URL,
		Description: a.Config.Description,
		Author:      a.Config.Author,
	}
}

// Close stops background work and releases storage.
func (a *App) Close() error {
	if a.jobs != nil {
		a.jobs.Stop()
	}
	if a.loginLimiter != nil {
		a.loginLimiter.Stop()
	}
	if a.importLimiter != nil {
		a.importLimiter.Stop()
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}

// EnvOr returns the value of the environment variable key, or fallback if empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// MustEnv returns the value of the environment variable key, or fatally exits if empty.
func MustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("postkit: required environment variable %s is not set", key)
	}
	return v
}
