// Package engine assembles the membership services from configuration.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/membership/pkg/audit"
	"github.com/platinummonkey/membership/pkg/cache"
	"github.com/platinummonkey/membership/pkg/config"
	"github.com/platinummonkey/membership/pkg/invitations"
	"github.com/platinummonkey/membership/pkg/locks"
	"github.com/platinummonkey/membership/pkg/observability"
	"github.com/platinummonkey/membership/pkg/orgs"
	"github.com/platinummonkey/membership/pkg/rbac"
	"github.com/platinummonkey/membership/pkg/store"
	"github.com/platinummonkey/membership/pkg/store/memory"
	"github.com/platinummonkey/membership/pkg/store/sqlstore"
	"github.com/platinummonkey/membership/pkg/users"
)

// Version is reported by health checks
var Version = "dev"

// Engine holds the wired services and the resources they share
type Engine struct {
	Config   *config.Config
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	Health   *observability.HealthChecker

	Store     store.Store
	Directory users.Registry
	Sink      audit.Sink
	Recorder  *audit.Recorder
	Cache     cache.PermissionCache
	Locker    locks.Locker

	Roles         *rbac.Service
	Organizations *orgs.Service
	Invitations   *invitations.Service

	redis   *redis.Client
	closers []namedCloser
}

type namedCloser struct {
	name string
	fn   func() error
}

type options struct {
	logger     *observability.Logger
	clock      clockwork.Clock
	directory  users.Registry
	conditions rbac.ConditionEvaluator
}

// Option customizes New
type Option func(*options)

// WithLogger sets the logger handed to every component
func WithLogger(l *observability.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock sets the clock handed to every service
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithDirectory replaces the user directory chosen from the store driver
func WithDirectory(d users.Registry) Option {
	return func(o *options) { o.directory = d }
}

// WithConditionEvaluator sets the evaluator for conditional role grants
func WithConditionEvaluator(e rbac.ConditionEvaluator) Option {
	return func(o *options) { o.conditions = e }
}

// New validates cfg and builds an Engine. On error every resource opened
// so far is closed.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *Engine, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = observability.NewLogger(cfg.LogLevel(), nil)
	}

	e := &Engine{
		Config: cfg,
		Logger: o.logger,
		Health: observability.NewHealthChecker(Version),
	}
	defer func() {
		if err != nil {
			if cerr := e.Close(); cerr != nil {
				e.Logger.WithError(cerr).Warn("Failed to release resources after setup error")
			}
		}
	}()

	if cfg.Observability.MetricsEnabled {
		e.Registry = prometheus.NewRegistry()
		e.Metrics = observability.NewMetrics(e.Registry)
	}

	if err := e.openStore(ctx, o.directory); err != nil {
		return nil, err
	}
	if err := e.openRedis(ctx); err != nil {
		return nil, err
	}
	e.buildCache()
	e.buildLocker()
	if err := e.buildAudit(ctx); err != nil {
		return nil, err
	}
	e.buildServices(o)

	e.Logger.WithFields(map[string]interface{}{
		"store":  cfg.Store.Driver,
		"cache":  cfg.Cache.Backend,
		"locks":  cfg.Locks.Backend,
		"audit":  e.auditDescription(),
		"expiry": cfg.Invitations.DefaultExpiry.String(),
	}).Info("Membership engine initialized")
	return e, nil
}

func (e *Engine) onClose(name string, fn func() error) {
	e.closers = append(e.closers, namedCloser{name: name, fn: fn})
}

func (e *Engine) openStore(ctx context.Context, directory users.Registry) error {
	cfg := e.Config.Store
	switch cfg.Driver {
	case config.DriverMemory:
		e.Store = memory.New()
		if directory == nil {
			directory = users.NewMemoryDirectory()
		}
	default:
		st, err := sqlstore.Open(ctx, cfg.Driver, cfg.DSN, sqlstore.Options{
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		})
		if err != nil {
			return err
		}
		e.Store = st
		if directory == nil {
			directory = users.NewSQLDirectory(st.DB())
		}
	}
	e.Directory = directory
	e.onClose("store", e.Store.Close)
	e.Health.AddCheck("store", true, observability.PingCheck(e.Store))
	return nil
}

func (e *Engine) openRedis(ctx context.Context) error {
	cfg := e.Config
	if cfg.Cache.Backend != config.BackendRedis && cfg.Locks.Backend != config.BackendRedis {
		return nil
	}
	e.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	e.onClose("redis", e.redis.Close)
	if err := e.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	// Losing redis locks stops writes, losing the cache only slows reads.
	e.Health.AddCheck("redis", cfg.Locks.Backend == config.BackendRedis, observability.RedisCheck(e.redis))
	return nil
}

func (e *Engine) buildCache() {
	cfg := e.Config.Cache
	switch cfg.Backend {
	case config.BackendMemory:
		e.Cache = cache.NewLRUPermissionCache(cfg.Size, cfg.TTL, e.Metrics)
	case config.BackendRedis:
		e.Cache = cache.NewRedisPermissionCache(e.redis, cfg.TTL, e.Metrics)
	}
}

func (e *Engine) buildLocker() {
	cfg := e.Config.Locks
	if cfg.Backend == config.BackendRedis {
		e.Locker = locks.NewRedisLocker(e.redis, locks.RedisLockerConfig{
			TTL:     cfg.TTL,
			MaxWait: cfg.MaxWait,
		}, e.Logger, e.Metrics)
		return
	}
	e.Locker = locks.NewMemoryLocker(e.Metrics)
}

func (e *Engine) buildAudit(ctx context.Context) error {
	cfg := e.Config.Audit
	var sinks []audit.Sink
	if cfg.FileDir != "" {
		fileCfg := audit.DefaultFileSinkConfig()
		fileCfg.Dir = cfg.FileDir
		if cfg.MaxSize > 0 {
			fileCfg.MaxSize = cfg.MaxSize
		}
		if cfg.MaxFiles > 0 {
			fileCfg.MaxFiles = cfg.MaxFiles
		}
		sink, err := audit.NewFileSink(fileCfg)
		if err != nil {
			return fmt.Errorf("failed to open audit file sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Database {
		st, ok := e.Store.(*sqlstore.Store)
		if !ok {
			return fmt.Errorf("the audit database sink needs a SQL store")
		}
		sink, err := audit.NewDBSink(ctx, st.DB())
		if err != nil {
			return fmt.Errorf("failed to open audit database sink: %w", err)
		}
		sinks = append(sinks, sink)
	}

	switch {
	case len(sinks) == 0:
		e.Sink = audit.NewNoOpSink()
	case len(sinks) == 1 && !cfg.Async:
		e.Sink = sinks[0]
	default:
		multi := audit.NewMultiSink(sinks...)
		multi.SetAsync(cfg.Async)
		multi.SetLogger(e.Logger)
		multi.SetMetrics(e.Metrics)
		e.Sink = multi
	}
	e.onClose("audit", e.Sink.Close)
	return nil
}

func (e *Engine) auditDescription() string {
	switch e.Sink.(type) {
	case *audit.FileSink:
		return "file"
	case *audit.DBSink:
		return "database"
	case *audit.MultiSink:
		if e.Config.Audit.Async {
			return "multi-async"
		}
		return "multi"
	default:
		return "none"
	}
}

func (e *Engine) buildServices(o options) {
	e.Recorder = audit.NewRecorder(e.Sink,
		audit.WithLogger(e.Logger),
		audit.WithMetrics(e.Metrics),
		audit.WithClock(o.clock),
	)

	roleOpts := []rbac.Option{
		rbac.WithAuditRecorder(e.Recorder),
		rbac.WithLogger(e.Logger),
		rbac.WithMetrics(e.Metrics),
		rbac.WithClock(o.clock),
	}
	orgOpts := []orgs.Option{
		orgs.WithAuditRecorder(e.Recorder),
		orgs.WithLocker(e.Locker),
		orgs.WithLogger(e.Logger),
		orgs.WithMetrics(e.Metrics),
		orgs.WithClock(o.clock),
	}
	if e.Cache != nil {
		roleOpts = append(roleOpts, rbac.WithPermissionCache(e.Cache))
		orgOpts = append(orgOpts, orgs.WithPermissionCache(e.Cache))
	}
	if o.conditions != nil {
		roleOpts = append(roleOpts, rbac.WithConditionEvaluator(o.conditions))
	}

	e.Roles = rbac.NewService(e.Store, roleOpts...)
	e.Organizations = orgs.NewService(e.Store, e.Directory, orgOpts...)
	e.Invitations = invitations.NewService(e.Store, e.Organizations, e.Directory,
		invitations.WithAuditRecorder(e.Recorder),
		invitations.WithLocker(e.Locker),
		invitations.WithDefaultExpiry(e.Config.Invitations.DefaultExpiry),
		invitations.WithLogger(e.Logger),
		invitations.WithMetrics(e.Metrics),
		invitations.WithClock(o.clock),
	)
}

// Bootstrap seeds the built-in roles and returns how many were created
func (e *Engine) Bootstrap(ctx context.Context) (int, error) {
	created, err := e.Roles.InitializeSystemRoles(ctx)
	if err != nil {
		return created, fmt.Errorf("failed to initialize system roles: %w", err)
	}
	if created > 0 {
		e.Logger.WithField("created", created).Info("Seeded system roles")
	}
	return created, nil
}

// Close releases resources in reverse order of acquisition
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		c := e.closers[i]
		if err := c.fn(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", c.name, err))
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
