package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type HitEventsCfg struct {
	Enabled bool
	Topic   string
	Brokers string
}

type InvalidationCfg struct {
	Enabled bool
	Topic   string
	GroupID string
	Brokers string
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr             string
	LogLevel         string
	LogConsole       bool
	LogSampleN       int
	Variant          string
	CatalogPath      string
	DataDir          string
	ProjectedCRS     string
	DisplayCRS       string
	BufferQuadSegs   int
	TallyTopN        int
	DatasetCacheSize int
	RedisAddr        string
	RedisPoolSize    int
	RedisDialTimeout time.Duration
	RedisReadTimeout time.Duration
	CacheOpTimeout   time.Duration
	CacheTTLDefault  time.Duration
	CacheTTLOvr      map[string]time.Duration
	HotThreshold     float64
	HotHalfLife      time.Duration
	HotRes           int
	HitEvents        HitEventsCfg
	Invalidation     InvalidationCfg
	Metrics          MetricsCfg
}

func FromEnv() Config {
	quadSegs := getint("BUFFER_QUAD_SEGS", 16)
	if quadSegs < 1 {
		quadSegs = 16
	}
	topN := getint("TALLY_TOP_N", 10)
	if topN < 1 {
		topN = 10
	}

	return Config{
		Addr:             getenv("ADDR", ":8090"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		LogConsole:       getbool("LOG_CONSOLE", false),
		LogSampleN:       getint("LOG_SAMPLE_N", 0),
		Variant:          getenv("VARIANT", "basic"),
		CatalogPath:      getenv("CATALOG_PATH", ""),
		DataDir:          getenv("DATA_DIR", "data"),
		ProjectedCRS:     getenv("PROJECTED_CRS", "EPSG:6674"),
		DisplayCRS:       getenv("DISPLAY_CRS", "EPSG:4326"),
		BufferQuadSegs:   quadSegs,
		TallyTopN:        topN,
		DatasetCacheSize: getint("DATASET_CACHE_SIZE", 16),
		RedisAddr:        getenv("REDIS_ADDR", ""),
		RedisPoolSize:    getint("REDIS_POOL_SIZE", 16),
		RedisDialTimeout: getduration("REDIS_DIAL_TIMEOUT", 2*time.Second),
		RedisReadTimeout: getduration("REDIS_READ_TIMEOUT", time.Second),
		CacheOpTimeout:   getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		CacheTTLDefault:  getduration("CACHE_TTL_DEFAULT", 60*time.Second),
		CacheTTLOvr:      parseDurationMap(getenv("CACHE_TTL_OVERRIDES", "")),
		HotThreshold:     getfloat("HOT_THRESHOLD", 0),
		HotHalfLife:      getduration("HOT_HALF_LIFE", 5*time.Minute),
		HotRes:           getint("HOT_RES", 8),
		HitEvents: HitEventsCfg{
			Enabled: getbool("HIT_EVENTS_ENABLED", false),
			Topic:   getenv("HIT_EVENTS_TOPIC", "tradearea-events"),
			Brokers: getenv("KAFKA_BROKERS", ""),
		},
		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Topic:   getenv("INVALIDATION_TOPIC", "dataset-updates"),
			GroupID: getenv("KAFKA_GROUP_ID", "hexmap-invalidator"),
			Brokers: getenv("KAFKA_BROKERS", ""),
		},
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", false),
			Addr:    getenv("METRICS_ADDR", ":9090"),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
	}
}

// TTLFor returns the per-dataset override or the default TTL.
func (c Config) TTLFor(dataset string) time.Duration {
	if d, ok := c.CacheTTLOvr[dataset]; ok && d > 0 {
		return d
	}
	return c.CacheTTLDefault
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "suikei=5m,chika=30s" into map
func parseDurationMap(s string) map[string]time.Duration {
	out := map[string]time.Duration{}
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		k := strings.TrimSpace(kv[0])
		v := strings.TrimSpace(kv[1])
		if k == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil {
			out[k] = d
		}
	}
	return out
}
