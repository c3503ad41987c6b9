// Package app assembles the docverify process from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"docverify/internal/document/artifact"
	"docverify/internal/document/encoder"
	dochandler "docverify/internal/document/handler"
	docmetrics "docverify/internal/document/metrics"
	docservice "docverify/internal/document/service"
	"docverify/internal/document/signer"
	docmemory "docverify/internal/document/store/memory"
	docpostgres "docverify/internal/document/store/postgres"
	"docverify/internal/geoip"
	geomemory "docverify/internal/geoip/cache/memory"
	georedis "docverify/internal/geoip/cache/redis"
	geometrics "docverify/internal/geoip/metrics"
	"docverify/internal/geoip/providers"
	"docverify/internal/geoip/workers/sweep"
	jwttoken "docverify/internal/jwt_token"
	"docverify/internal/platform/config"
	"docverify/internal/platform/database"
	"docverify/internal/platform/health"
	"docverify/internal/platform/httpserver"
	"docverify/internal/platform/kafka"
	"docverify/internal/platform/metrics"
	"docverify/internal/platform/redis"
	"docverify/internal/platform/tracing"
	rlmetrics "docverify/internal/ratelimit/metrics"
	rlMiddleware "docverify/internal/ratelimit/middleware"
	rlModels "docverify/internal/ratelimit/models"
	"docverify/internal/ratelimit/ports"
	rlservice "docverify/internal/ratelimit/service"
	"docverify/internal/ratelimit/store/bucket"
	httptransport "docverify/internal/transport/http"
	verifyhandler "docverify/internal/verification/handler"
	verifymetrics "docverify/internal/verification/metrics"
	verifyservice "docverify/internal/verification/service"
	"docverify/migrations"
	audit "docverify/pkg/platform/audit"
	"docverify/pkg/platform/audit/outbox"
	outboxpostgres "docverify/pkg/platform/audit/outbox/store/postgres"
	"docverify/pkg/platform/audit/outbox/worker"
	auditmemory "docverify/pkg/platform/audit/store/memory"
	auditpostgres "docverify/pkg/platform/audit/store/postgres"
	"docverify/pkg/platform/circuit"
	"docverify/pkg/platform/middleware/metadata"
	"docverify/pkg/platform/middleware/request"
)

const (
	auditTopicPartitions = 3
	auditRecorderClose   = 5 * time.Second
)

// App owns every long-lived component of the process.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	handler http.Handler

	policy    *config.PolicyStore
	recorder  *audit.Recorder
	outbox    *worker.Worker
	geoSweep  *sweep.Worker
	documents *docservice.Service
	verifier  *verifyservice.Service
	jwt       *jwttoken.JWTService

	closers []func() error
}

type options struct {
	primary  providers.Provider
	fallback providers.Provider
	keyring  *signer.Keyring
	registry *prometheus.Registry
	tracer   tracing.Tracer
	redis    *redis.Client
}

type Option func(*options)

// WithGeoProviders replaces the configured HTTP GeoIP providers.
func WithGeoProviders(primary, fallback providers.Provider) Option {
	return func(o *options) {
		o.primary = primary
		o.fallback = fallback
	}
}

// WithKeyring replaces the keyring loaded from the signing keys directory.
func WithKeyring(k *signer.Keyring) Option {
	return func(o *options) { o.keyring = k }
}

// WithRedis uses c instead of dialing the configured Redis URL.
func WithRedis(c *redis.Client) Option {
	return func(o *options) { o.redis = c }
}

func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

func WithTracer(t tracing.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// Build connects to every configured backend and wires the HTTP surface.
// Backends that are not configured are replaced with in-memory stores,
// which config validation only permits outside production.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (_ *App, err error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
		o.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	if o.tracer == nil {
		o.tracer = tracing.NewOTel()
	}

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.closeAll()
		}
	}()

	reg := o.registry
	checks := health.New(string(cfg.Mode))

	policy, err := loadPolicy(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.policy = policy

	// Storage
	var (
		docStore   docservice.Store
		docReader  verifyservice.DocumentStore
		auditStore audit.Store
		outboxes   outbox.Store
		txRunner   docservice.TxRunner
	)
	pool, err := database.New(ctx, database.DefaultConfig(cfg.DatabaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if pool != nil {
		a.closers = append(a.closers, pool.Close)
		if err := database.Migrate(ctx, pool.DB(), migrations.FS, logger); err != nil {
			return nil, err
		}
		if err := metrics.RegisterDBStats(reg, pool.DB()); err != nil {
			return nil, err
		}
		checks.RegisterCheck("postgres", pool.Health)
		pg := docpostgres.New(pool.DB(), cfg.StoreTimeout)
		docStore, docReader = pg, pg
		txRunner = docpostgres.NewTxRunner(pool.DB())
		outboxes = outboxpostgres.New(pool.DB())
		auditStore = auditpostgres.New(pool.DB(), outboxes)
	} else {
		logger.Warn("DATABASE_URL not set, documents and audit events are kept in memory")
		mem := docmemory.New()
		docStore, docReader = mem, mem
		auditStore = auditmemory.NewInMemoryStore()
	}

	rdb := o.redis
	if rdb == nil {
		rdb, err = redis.New(ctx, cfg.Redis)
	}
	if err != nil {
		if cfg.Mode != config.ModeDegraded {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		logger.Warn("redis unavailable, continuing in degraded mode", "error", err)
		rdb = nil
	}
	if rdb != nil {
		a.closers = append(a.closers, rdb.Close)
		if err := metrics.RegisterRedisPool(reg, rdb.Client); err != nil {
			return nil, err
		}
		checks.RegisterCheck("redis", rdb.Health)
	}

	// Audit
	auditMetrics := audit.NewMetrics(reg)
	a.recorder = audit.NewRecorder(auditStore,
		audit.WithLogger(logger),
		audit.WithMetrics(auditMetrics),
		audit.WithAppendTimeout(cfg.AuditTimeout),
		audit.WithQueueSize(cfg.AuditQueue),
	)
	compliance := audit.NewComplianceWriter(auditStore, logger, auditMetrics)

	if cfg.KafkaBrokers != "" && pool != nil {
		producer, err := kafka.NewProducer(kafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, producer.Close)
		if err := kafka.EnsureTopic(ctx, producer.Client(), cfg.AuditTopic, auditTopicPartitions, 1); err != nil {
			logger.Warn("could not ensure audit topic", "topic", cfg.AuditTopic, "error", err)
		}
		checks.RegisterCheck("kafka", producer.Health)
		a.outbox = worker.New(outboxes, producer,
			worker.WithTopic(cfg.AuditTopic),
			worker.WithMetrics(outbox.NewMetrics(reg)),
			worker.WithLogger(logger),
		)
	}

	// Documents
	keys := o.keyring
	if keys == nil {
		keys, err = loadKeyring(cfg, logger)
		if err != nil {
			return nil, err
		}
	}
	sg := signer.New(keys)
	enc, err := encoder.New(cfg.VerifyBaseURL, []byte(cfg.Signing.MicroprintSecret))
	if err != nil {
		return nil, err
	}
	var artifacts artifact.Store = artifact.NewMemoryStore()
	if cfg.MinIO.Endpoint != "" {
		s3, err := artifact.NewMinIOStore(ctx, cfg.MinIO)
		if err != nil {
			return nil, err
		}
		artifacts = s3
		checks.RegisterCheck("minio", s3.Health)
	}
	docOpts := []docservice.Option{
		docservice.WithArtifacts(artifacts),
		docservice.WithMode(cfg.Mode),
		docservice.WithLogger(logger),
		docservice.WithMetrics(docmetrics.New(reg)),
		docservice.WithTracer(o.tracer),
	}
	if txRunner != nil {
		docOpts = append(docOpts, docservice.WithTx(txRunner))
	}
	a.documents = docservice.New(docStore, sg, enc, policy, compliance, docOpts...)

	// GeoIP
	geoPolicy := geoip.NewPolicy(policy)
	resolver, err := a.buildResolver(o, rdb, geoPolicy, geometrics.New(reg), o.tracer)
	if err != nil {
		return nil, err
	}

	// Rate limiting
	limiter, err := buildLimiter(cfg, rdb, rlmetrics.New(reg), logger)
	if err != nil {
		return nil, err
	}

	a.verifier = verifyservice.New(limiter, resolver, geoPolicy, docReader, sg, a.recorder,
		verifyservice.WithLogger(logger),
		verifyservice.WithMetrics(verifymetrics.New(reg)),
		verifyservice.WithTracer(o.tracer),
		verifyservice.WithHistory(auditStore),
	)

	trusted, err := metadata.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}
	a.jwt = jwttoken.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	a.handler = httptransport.NewRouter(httptransport.Deps{
		Logger:         logger,
		Gatherer:       reg,
		RequestMetrics: request.NewMetrics(reg),
		TrustedProxies: trusted,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		Validator:      jwttoken.NewJWTServiceAdapter(a.jwt),
		RateLimit:      rlMiddleware.New(limiter, logger),
		Health:         checks,
		Documents:      dochandler.New(a.documents, logger),
		Verification:   verifyhandler.New(a.verifier, logger),
	})
	return a, nil
}

func (a *App) Handler() http.Handler { return a.handler }

// Tokens issues bearer tokens for the configured issuer. Used by docctl and
// tests; production tokens come from the identity provider.
func (a *App) Tokens() *jwttoken.JWTService { return a.jwt }

// Run serves HTTP and runs the background workers until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(ctx, httpserver.New(a.cfg.Addr, a.handler), a.cfg.ShutdownTimeout, a.logger)
	})
	g.Go(func() error { return a.policy.Watch(ctx) })
	if a.outbox != nil {
		g.Go(func() error { return a.outbox.Run(ctx) })
	}
	if a.geoSweep != nil {
		g.Go(func() error { return a.geoSweep.Run(ctx) })
	}
	return g.Wait()
}

// Close drains the audit queue and releases backend connections.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), auditRecorderClose)
	defer cancel()
	var errs []error
	if a.recorder != nil {
		if err := a.recorder.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close audit recorder: %w", err))
		}
	}
	if err := a.closeAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func loadPolicy(cfg *config.Config, logger *slog.Logger) (*config.PolicyStore, error) {
	if cfg.PolicyFile == "" {
		return config.StaticPolicy(config.DefaultPolicy(cfg.GeoIP.DevCountry)), nil
	}
	return config.NewPolicyStore(cfg.PolicyFile, cfg.GeoIP.DevCountry, logger)
}

func loadKeyring(cfg *config.Config, logger *slog.Logger) (*signer.Keyring, error) {
	if cfg.Signing.KeysDir != "" {
		return signer.LoadDir(cfg.Signing.KeysDir, cfg.Signing.ActiveKeyID)
	}
	if cfg.Mode == config.ModeProduction {
		return nil, errors.New("signing keys directory is required in production")
	}
	key, err := signer.GenerateEd25519("dev-" + time.Now().UTC().Format("20060102"))
	if err != nil {
		return nil, err
	}
	keys := signer.NewKeyring()
	if err := keys.Add(key); err != nil {
		return nil, err
	}
	logger.Warn("using an ephemeral signing key, documents will not verify after restart", "key_id", key.ID)
	return keys, nil
}

func (a *App) buildResolver(o options, rdb *redis.Client, geoPolicy *geoip.Policy, m *geometrics.Metrics, tracer tracing.Tracer) (*geoip.Resolver, error) {
	cfg := a.cfg
	primary, fallback := o.primary, o.fallback
	if primary == nil {
		var err error
		primary, fallback, err = httpProviders(cfg.GeoIP)
		if err != nil {
			return nil, err
		}
	}
	opts := []geoip.Option{
		geoip.WithDevCountry(geoPolicy.DevCountry),
		geoip.WithLogger(a.logger),
		geoip.WithMetrics(m),
		geoip.WithTracer(tracer),
	}
	if fallback != nil {
		opts = append(opts, geoip.WithFallback(fallback))
	}
	if rdb != nil {
		opts = append(opts, geoip.WithCache(georedis.New(rdb.Client), cfg.GeoIP.CacheTTL))
	} else {
		cache := geomemory.New()
		opts = append(opts, geoip.WithCache(cache, cfg.GeoIP.CacheTTL))
		a.geoSweep = sweep.New(cache, cfg.GeoIP.SweepInterval, a.logger, m)
	}
	return geoip.NewResolver(primary, opts...), nil
}

// httpProviders builds the configured lookup services. Without a primary URL
// every public address is unresolved and therefore denied; loopback and
// private addresses still resolve to the development country.
func httpProviders(cfg config.GeoIPConfig) (primary, fallback providers.Provider, err error) {
	if cfg.PrimaryURL == "" {
		return providers.NewStatic("unconfigured", nil, ""), nil, nil
	}
	primary, err = providers.NewHTTPProvider("primary", cfg.PrimaryURL,
		providers.WithTimeout(cfg.Timeout),
		providers.WithQPS(cfg.ProviderQPS),
	)
	if err != nil {
		return nil, nil, err
	}
	if cfg.FallbackURL != "" {
		fallback, err = providers.NewHTTPProvider("fallback", cfg.FallbackURL,
			providers.WithTimeout(cfg.Timeout),
			providers.WithQPS(cfg.ProviderQPS),
		)
		if err != nil {
			return nil, nil, err
		}
	}
	return primary, fallback, nil
}

func buildLimiter(cfg *config.Config, rdb *redis.Client, m *rlmetrics.Metrics, logger *slog.Logger) (*rlservice.Limiter, error) {
	var primary ports.BucketStore = bucket.NewInMemoryBucketStore()
	if rdb != nil && cfg.Mode != config.ModeDegraded {
		primary = bucket.NewRedisBucketStore(rdb.Client)
	}
	return rlservice.New(primary,
		rlservice.WithLogger(logger),
		rlservice.WithMetrics(m),
		rlservice.WithFallback(bucket.NewInMemoryBucketStore()),
		rlservice.WithBreaker(circuit.New("ratelimit",
			circuit.WithFailureThreshold(5),
			circuit.WithSuccessThreshold(2),
		)),
		rlservice.WithLimit(rlModels.ScopeVerify, rlModels.Limit{
			RequestsPerWindow: cfg.RateLimit.MaxAttempts,
			Window:            cfg.RateLimit.Window,
		}),
		rlservice.WithLimit(rlModels.ScopeIssue, rlModels.Limit{
			RequestsPerWindow: cfg.RateLimit.IssueMaxAttempts,
			Window:            cfg.RateLimit.Window,
		}),
	)
}
