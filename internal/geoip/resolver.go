package geoip

import (
	"context"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"docverify/internal/geoip/metrics"
	"docverify/internal/geoip/providers"
	"docverify/internal/platform/tracing"
)

const defaultCacheTTL = 24 * time.Hour

// Resolver turns an address into a country: cache first, then the primary
// provider, then the fallback. It never returns an error; failure is the
// unresolved resolution.
type Resolver struct {
	primary    providers.Provider
	fallback   providers.Provider
	cache      Cache
	cacheTTL   time.Duration
	devCountry func() string
	flights    singleflight.Group
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     tracing.Tracer
}

type Option func(*Resolver)

func WithFallback(p providers.Provider) Option {
	return func(r *Resolver) { r.fallback = p }
}

func WithCache(c Cache, ttl time.Duration) Option {
	return func(r *Resolver) {
		r.cache = c
		if ttl > 0 {
			r.cacheTTL = ttl
		}
	}
}

// WithDevCountry sets what loopback and private addresses resolve to. The
// function is called per request so policy reloads take effect.
func WithDevCountry(country func() string) Option {
	return func(r *Resolver) { r.devCountry = country }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

func WithTracer(t tracing.Tracer) Option {
	return func(r *Resolver) { r.tracer = t }
}

func NewResolver(primary providers.Provider, opts ...Option) *Resolver {
	r := &Resolver{
		primary:    primary,
		cacheTTL:   defaultCacheTTL,
		devCountry: func() string { return "" },
		logger:     slog.Default(),
		tracer:     tracing.NewNoop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Resolve(ctx context.Context, rawIP string) Resolution {
	ctx, span := r.tracer.Start(ctx, tracing.SpanGeoResolve)
	res := r.resolve(ctx, rawIP)
	span.SetAttributes(
		tracing.String(tracing.AttrGeoSource, string(res.Source)),
		tracing.String(tracing.AttrCountry, res.Country),
	)
	span.End(nil)
	r.metrics.IncResolution(string(res.Source))
	return res
}

func (r *Resolver) resolve(ctx context.Context, rawIP string) Resolution {
	addr, err := netip.ParseAddr(strings.TrimSpace(rawIP))
	if err != nil {
		return unresolved()
	}
	addr = addr.WithZone("").Unmap()

	if isLocal(addr) {
		if dev := strings.ToUpper(r.devCountry()); providers.ValidCountry(dev) {
			return Resolution{Country: dev, Source: SourceDevelopment}
		}
		return unresolved()
	}

	key := cacheKey(addr)
	if r.cache != nil {
		country, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			r.metrics.IncCacheError()
			r.logger.WarnContext(ctx, "geoip_cache_read_failed", "error", err)
		} else if ok {
			return Resolution{Country: country, Source: SourceCache}
		}
	}

	// Concurrent misses for one address share a single provider round trip.
	// The shared lookup is detached from any one caller's cancellation; the
	// provider timeouts bound it.
	ch := r.flights.DoChan(key, func() (any, error) {
		return r.lookup(context.WithoutCancel(ctx), addr, key), nil
	})
	select {
	case <-ctx.Done():
		return unresolved()
	case out := <-ch:
		return out.Val.(Resolution)
	}
}

func (r *Resolver) lookup(ctx context.Context, addr netip.Addr, key string) Resolution {
	country, err := r.call(ctx, r.primary, addr)
	source := SourcePrimary
	if err != nil && r.fallback != nil {
		country, err = r.call(ctx, r.fallback, addr)
		source = SourceFallback
	}
	if err != nil {
		r.logger.WarnContext(ctx, "geoip_unresolved", "category", providers.GetCategory(err))
		return unresolved()
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, country, r.cacheTTL); err != nil {
			r.metrics.IncCacheError()
			r.logger.WarnContext(ctx, "geoip_cache_write_failed", "error", err)
		}
	}
	return Resolution{Country: country, Source: source}
}

func (r *Resolver) call(ctx context.Context, p providers.Provider, addr netip.Addr) (string, error) {
	if p == nil {
		return "", providers.NewProviderError(providers.ErrorUnavailable, "none", "no provider configured", nil)
	}
	ctx, span := r.tracer.Start(ctx, tracing.SpanGeoProvider, tracing.String(tracing.AttrGeoProvider, p.ID()))
	start := time.Now()
	country, err := p.Lookup(ctx, addr)
	r.metrics.ObserveProvider(p.ID(), time.Since(start).Seconds())
	span.End(err)
	if err != nil {
		category := providers.GetCategory(err)
		r.metrics.IncProviderFailure(p.ID(), string(category))
		r.logger.WarnContext(ctx, "geoip_provider_failed",
			"provider", p.ID(),
			"category", category,
		)
		return "", err
	}
	return country, nil
}
