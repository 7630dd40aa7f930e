package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/chomoku/kyoto-hexmap/internal/cache/redisstore"
	"github.com/chomoku/kyoto-hexmap/internal/cache/resultcache"
	"github.com/chomoku/kyoto-hexmap/internal/catalog"
	"github.com/chomoku/kyoto-hexmap/internal/core/config"
	"github.com/chomoku/kyoto-hexmap/internal/core/observability"
	"github.com/chomoku/kyoto-hexmap/internal/core/router"
	"github.com/chomoku/kyoto-hexmap/internal/core/server"
	"github.com/chomoku/kyoto-hexmap/internal/dataset/loader"
	"github.com/chomoku/kyoto-hexmap/internal/decision"
	"github.com/chomoku/kyoto-hexmap/internal/decision/simple"
	"github.com/chomoku/kyoto-hexmap/internal/hitevents"
	"github.com/chomoku/kyoto-hexmap/internal/hotness/expdecay"
	"github.com/chomoku/kyoto-hexmap/internal/hotness/metricswrap"
	"github.com/chomoku/kyoto-hexmap/internal/invalidation/kafkaconsumer"
	"github.com/chomoku/kyoto-hexmap/internal/logger"
	"github.com/chomoku/kyoto-hexmap/internal/metrics"
	"github.com/chomoku/kyoto-hexmap/internal/render"
	"github.com/chomoku/kyoto-hexmap/internal/variants"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load(".env.local", ".env")

	variantFlag := flag.String("variant", "", "dashboard variant ("+strings.Join(variants.Names(), "|")+")")
	flag.Parse()

	cfg := config.FromEnv()
	if *variantFlag != "" {
		cfg.Variant = strings.TrimSpace(*variantFlag)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Variant:   cfg.Variant,
		Component: "dashboard",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	v, err := variants.New(cfg.Variant, cfg, appLog)
	if err != nil {
		appLog.Error("variant setup failed", "err", err)
		return 1
	}
	cfg.Variant = v.Name
	observability.SetVariant(v.Name)

	prov, err := metrics.Init(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Addr:    cfg.Metrics.Addr,
		Path:    cfg.Metrics.Path,
		Build: metrics.BuildInfo{
			Version:   firstNonEmpty(os.Getenv("BUILD_VERSION"), Version),
			Revision:  os.Getenv("BUILD_REVISION"),
			Branch:    os.Getenv("BUILD_BRANCH"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})
	if err != nil {
		appLog.Error("metrics setup failed", "err", err)
		return 1
	}

	cat := catalog.Default(cfg.DataDir)
	if cfg.CatalogPath != "" {
		if cat, err = catalog.Load(cfg.CatalogPath); err != nil {
			appLog.Error("catalog load failed", "path", cfg.CatalogPath, "err", err)
			return 1
		}
	}
	if ok, missing := cat.Readiness(); !ok {
		appLog.Warn("catalog files missing; /readyz reports not ready", "missing", missing)
	}

	src, err := loader.NewCache(cfg.DatasetCacheSize, loader.Load, appLog)
	if err != nil {
		appLog.Error("dataset cache setup failed", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var events render.EventSink
	if cfg.HitEvents.Enabled && cfg.HitEvents.Brokers != "" {
		pub, err := hitevents.NewPublisher(strings.Split(cfg.HitEvents.Brokers, ","), cfg.HitEvents.Topic, 0, appLog)
		if err != nil {
			appLog.Error("hit events setup failed", "err", err)
			return 1
		}
		defer func() {
			if err := pub.Close(); err != nil {
				appLog.Warn("hit events close", "err", err)
			}
		}()
		events = pub
	}

	engine := render.New(cat, src, events, render.Options{
		ProjectedCRS: cfg.ProjectedCRS,
		DisplayCRS:   cfg.DisplayCRS,
		QuadSegs:     cfg.BufferQuadSegs,
		TopN:         cfg.TallyTopN,
		Variant:      v.Name,
	}, appLog)

	var (
		rd        render.Renderer = engine
		results   kafkaconsumer.ResultInvalidator
		admission *simple.Engine
		tracker   *metricswrap.WithMetrics
	)
	if cfg.RedisAddr != "" {
		store, err := redisstore.New(ctx, cfg.RedisAddr,
			redisstore.WithPoolSize(cfg.RedisPoolSize),
			redisstore.WithDialTimeout(cfg.RedisDialTimeout),
			redisstore.WithReadTimeout(cfg.RedisReadTimeout))
		if err != nil {
			appLog.Error("redis connect failed", "addr", cfg.RedisAddr, "err", err)
			return 1
		}
		defer func() { _ = store.Close() }()
		if cfg.HotThreshold > 0 {
			tracker = metricswrap.New(expdecay.New(cfg.HotHalfLife), appLog, cfg.HotThreshold, 0.01)
			admission = &simple.Engine{Hot: tracker, Threshold: cfg.HotThreshold, Res: cfg.HotRes}
		}
		rc := resultcache.New(engine, store, resultcache.Options{
			Variant:   v.Name,
			OpTimeout: cfg.CacheOpTimeout,
			TTL:       cfg.TTLFor,
			Canonical: func(name string) string {
				if ds, ok := cat.Dataset(name); ok {
					return ds.Key
				}
				return name
			},
			Admission: admissionOrNil(admission),
		}, appLog)
		rd, results = rc, rc
	}

	appLog.Info("starting dashboard",
		"addr", cfg.Addr,
		"version", Version,
		"variant", v.Name,
		"datasets", len(cat.Datasets),
		"result_cache", cfg.RedisAddr != "",
		"hit_events", events != nil,
		"invalidation", cfg.Invalidation.Enabled,
		"hot_threshold", cfg.HotThreshold)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return prov.Serve(gctx, appLog) })
	if admission != nil {
		g.Go(func() error {
			admission.RunPruner(gctx, time.Minute)
			return nil
		})
	}
	if cfg.Invalidation.Enabled && cfg.Invalidation.Brokers != "" {
		cons := kafkaconsumer.New(kafkaconsumer.FromConfig(cfg), appLog, results, src, cat.Dependents)
		if tracker != nil {
			cons.ForgetHotness(tracker)
		}
		g.Go(func() error { return cons.Start(gctx) })
	}
	g.Go(func() error {
		return server.Run(gctx, cfg, appLog, server.Routes{
			API: router.API{
				Logger:   appLog,
				Variant:  v,
				Renderer: rd,
				Catalog:  cat,
				Source:   src,
				Areas:    engine,
			},
			Ready:   cat,
			Metrics: prov.Handler(),
		})
	})
	if err := g.Wait(); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

// admissionOrNil keeps a nil engine from becoming a non-nil interface.
func admissionOrNil(e *simple.Engine) decision.Interface {
	if e == nil {
		return nil
	}
	return e
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
