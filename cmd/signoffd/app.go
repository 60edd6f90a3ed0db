package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pitabwire/signoff/internal/assignee"
	"github.com/pitabwire/signoff/internal/audit"
	"github.com/pitabwire/signoff/internal/config"
	"github.com/pitabwire/signoff/internal/definition"
	"github.com/pitabwire/signoff/internal/directory"
	"github.com/pitabwire/signoff/internal/document"
	"github.com/pitabwire/signoff/internal/notify"
	"github.com/pitabwire/signoff/internal/observability"
	"github.com/pitabwire/signoff/internal/openapi"
	"github.com/pitabwire/signoff/internal/postgres"
	"github.com/pitabwire/signoff/internal/transport"
	"github.com/pitabwire/signoff/internal/workflow"
	"github.com/pitabwire/signoff/model"
)

// App is the wired application.
type App struct {
	Handler  http.Handler
	Engine   *workflow.Engine
	Registry *definition.Registry

	cfg      *config.Config
	metrics  *observability.Metrics
	loader   *definition.Loader
	static   *directory.StaticDirectory
	dirCache *directory.CachedDirectory
	closers  []func()
}

// Close releases pools and clients in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// Reload re-reads and validates the definition files and swaps the registry
// snapshot. On failure the previous definitions stay in place. The static
// user directory is re-read as well.
func (a *App) Reload() error {
	files, err := loadDefinitions(a.loader, a.cfg.Definitions.Directories)
	if err != nil {
		a.metrics.RecordDefinitionReload("error")
		return err
	}
	a.Registry.Replace(files)
	a.metrics.RecordDefinitionReload("success")
	a.metrics.SetDefinitionsLoaded(a.Registry.Len())

	if a.static != nil {
		if err := a.static.Sync(); err != nil {
			return err
		}
	}
	if a.dirCache != nil {
		a.dirCache.Invalidate()
	}
	return nil
}

func loadDefinitions(loader *definition.Loader, dirs []string) ([]model.CatalogFile, error) {
	files, err := loader.LoadAll(dirs)
	if err != nil {
		return nil, fmt.Errorf("loading definitions: %w", err)
	}
	if verrs := definition.NewValidator().Validate(files); len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, ve := range verrs {
			msgs[i] = ve.Error()
		}
		return nil, fmt.Errorf("invalid definitions: %s", strings.Join(msgs, "; "))
	}
	return files, nil
}

// build wires every component selected by the configuration.
func build(ctx context.Context, cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer, gatherer prometheus.Gatherer) (*App, error) {
	app := &App{cfg: cfg, loader: definition.NewLoader()}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	app.metrics = observability.InitMetrics(reg)

	spec, err := openapi.Load(ctx)
	if err != nil {
		return nil, err
	}

	files, err := loadDefinitions(app.loader, cfg.Definitions.Directories)
	if err != nil {
		return nil, err
	}
	app.Registry = definition.NewRegistry(files)
	app.metrics.SetDefinitionsLoaded(app.Registry.Len())

	readiness := observability.ReadinessChecks{
		DefinitionsLoaded: func() bool { return app.Registry.Len() > 0 },
		Dependencies:      map[string]observability.HealthChecker{},
	}

	var db *postgres.DB
	if cfg.UsesPostgres() {
		db, err = postgres.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, db.Close)
		if cfg.Database.MigrateOnStart {
			if err := db.Migrate(); err != nil {
				return nil, err
			}
			logger.Info("database migrations applied")
		}
		readiness.Dependencies["postgres"] = db
	}

	var (
		store    workflow.InstanceStore
		auditLog audit.Store
	)
	switch cfg.Workflow.Store.Driver {
	case config.DriverPostgres:
		store = workflow.NewPgInstanceStore(db.Pool)
		auditLog = audit.NewPgStore(db.Pool)
	default:
		logger.Warn("using in-memory instance and audit stores; state is lost on restart")
		store = workflow.NewMemoryInstanceStore()
		auditLog = audit.NewMemoryStore()
	}

	var documents model.DocumentStore
	switch cfg.Documents.Driver {
	case config.DriverPostgres:
		documents = document.NewPgStore(db.Pool)
	default:
		documents = document.NewMemoryStore()
	}

	var users model.UserDirectory
	switch cfg.Directory.Driver {
	case config.DriverPostgres:
		users = directory.NewPgDirectory(db.Pool)
	default:
		app.static, err = directory.NewStaticDirectory(cfg.Directory.File)
		if err != nil {
			return nil, err
		}
		users = app.static
	}
	if cfg.Directory.CacheTTL > 0 {
		app.dirCache = directory.NewCachedDirectory(users, cfg.Directory.CacheTTL, app.metrics.ObserveDirectoryCache)
		users = app.dirCache
	}

	var locker workflow.Locker
	switch cfg.Workflow.Lock.Driver {
	case config.DriverRedis:
		addr := os.Getenv(cfg.Workflow.Lock.AddrEnv)
		if addr == "" {
			return nil, fmt.Errorf("workflow lock: %s environment variable not set", cfg.Workflow.Lock.AddrEnv)
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.Workflow.Lock.DB})
		app.closers = append(app.closers, func() { client.Close() })
		redisLocker := workflow.NewRedisLocker(client, cfg.Workflow.Lock.Prefix, cfg.Workflow.Lock.TTL, cfg.Workflow.Lock.RetryInterval).
			WithLogger(logger)
		if err := redisLocker.HealthCheck(ctx); err != nil {
			return nil, fmt.Errorf("workflow lock: %w", err)
		}
		readiness.Dependencies["redis"] = redisLocker
		locker = redisLocker
	default:
		locker = workflow.NewMemoryLocker()
	}

	var notifier model.Notifier = notify.NewLogNotifier(logger)
	if cfg.Notifications.Driver == config.DriverWebhook {
		notifier = notify.Multi{notifier, notify.NewWebhookNotifier(cfg.Notifications.Webhook, logger)}
	}

	opts := workflow.DefaultOptions()
	opts.EnforceStepConditions = cfg.Workflow.EnforceStepConditions
	if cfg.Workflow.ResolveTimeout > 0 {
		opts.ResolveTimeout = cfg.Workflow.ResolveTimeout
	}
	if cfg.Workflow.Lock.WaitTimeout > 0 {
		opts.LockTimeout = cfg.Workflow.Lock.WaitTimeout
	}

	app.Engine = workflow.NewEngine(
		app.Registry,
		store,
		locker,
		audit.NewLogger(auditLog),
		assignee.NewResolver(users),
		documents,
		notifier,
		logger.Named("workflow"),
		workflow.WithOptions(opts),
		workflow.WithRecorder(app.metrics),
	)

	var authenticate func(http.Handler) http.Handler
	if cfg.Identity.Enabled {
		keyFunc, err := transport.NewKeyFunc(cfg.Identity)
		if err != nil {
			return nil, err
		}
		authenticate = transport.JWTAuthenticator(cfg.Identity, keyFunc)
	}

	app.Handler = transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Engine:       app.Engine,
		Documents:    documents,
		Spec:         spec,
		Logger:       logger,
		Authenticate: authenticate,
		Metrics:      app.metrics,
		Gatherer:     gatherer,
		Readiness:    readiness,
	})

	ok = true
	return app, nil
}
