// Package config handles process configuration via environment variables.
//
// Store properties describe one graph and are loaded from YAML files; this
// package covers the settings of the gaffer process itself: where data and
// the graph library live, which cache and logging to use, and how the Go
// runtime is tuned. Values set here fill in store properties a graph
// leaves unset.
//
// Example Usage:
//
//	cfg := config.LoadFromEnv()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//	cfg.Memory.ApplyRuntimeMemory()
//	cfg.ApplyStoreDefaults(props)
//
// Environment Variables:
//   - GAFFER_STORE_CLASS="memory", "badger" or "file"
//   - GAFFER_DATA_DIR="./data"
//   - GAFFER_FILE_READERS=4
//   - GAFFER_LIBRARY="memory", "badger" or "etcd"
//   - GAFFER_LIBRARY_DIR="./data/library"
//   - GAFFER_ETCD_ENDPOINTS="localhost:2379,localhost:2380"
//   - GAFFER_ETCD_NAMESPACE="gaffer"
//   - GAFFER_REDIS_URL="redis://localhost:6379/0"
//   - GAFFER_CACHE_TTL=1h
//   - GAFFER_JOB_TRACKER_ENABLED=true
//   - GAFFER_JOB_EXECUTOR_THREADS=50
//   - GAFFER_LOG_LEVEL="info"
//   - GAFFER_LOG_FORMAT="text" or "json"
//   - GAFFER_MEMORY_LIMIT="2GB"
//   - GAFFER_GC_PERCENT=100
//   - GAFFER_POOL_ENABLED=true
//   - GAFFER_POOL_MAX_SIZE=4096
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/gadgetlabs/Gaffer/pkg/store"
)

// Library backends.
const (
	LibraryMemory = "memory"
	LibraryBadger = "badger"
	LibraryEtcd   = "etcd"
)

// Config holds all gaffer process configuration.
//
// Configuration is organized into logical sections:
//   - Store: defaults for graph store properties
//   - Library: where graph registrations are kept
//   - Cache: result cache backing
//   - Jobs: asynchronous job execution
//   - Logging: log level and format
//   - Memory: Go runtime and object pool tuning
type Config struct {
	Store   StoreConfig
	Library LibraryConfig
	Cache   CacheConfig
	Jobs    JobsConfig
	Logging LoggingConfig
	Memory  MemoryConfig
}

// StoreConfig holds store property defaults.
type StoreConfig struct {
	// Class is the store class used when a graph names none.
	Class string
	// DataDir is the root of badger and file store data.
	DataDir string
	// FileReaders bounds the concurrent readers of the file store.
	FileReaders int
}

// LibraryConfig selects the graph library backend.
type LibraryConfig struct {
	Backend string
	// Dir holds the badger library database.
	Dir             string
	EtcdEndpoints   []string
	EtcdNamespace   string
	EtcdDialTimeout time.Duration
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	// RedisURL selects the Redis result cache when set.
	RedisURL string
	TTL      time.Duration
}

// JobsConfig holds job executor settings.
type JobsConfig struct {
	TrackerEnabled  bool
	ExecutorThreads int
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level (debug, info, warn, error)
	Level string
	// Format (json, text)
	Format string
}

// MemoryConfig holds runtime memory management settings.
type MemoryConfig struct {
	// RuntimeLimit is the soft memory limit (GOMEMLIMIT) in bytes
	// 0 = unlimited
	RuntimeLimit int64
	// RuntimeLimitStr is the human-readable form (e.g., "2GB", "512MB")
	RuntimeLimitStr string
	// GCPercent controls GC aggressiveness (GOGC)
	// 100 = default, lower = more frequent GC
	GCPercent int
	// PoolEnabled enables element slice and buffer pooling
	PoolEnabled bool
	// PoolMaxSize is the largest slice capacity kept in the pools
	PoolMaxSize int

	limitErr error
}

// LoadFromEnv loads configuration from environment variables, falling
// back to defaults for anything unset or unparsable. A malformed
// GAFFER_MEMORY_LIMIT is reported by Validate.
func LoadFromEnv() *Config {
	config := &Config{}

	config.Store.Class = getEnv("GAFFER_STORE_CLASS", "memory")
	config.Store.DataDir = getEnv("GAFFER_DATA_DIR", "./data")
	config.Store.FileReaders = getEnvInt("GAFFER_FILE_READERS", store.DefaultFileReaders)

	config.Library.Backend = strings.ToLower(getEnv("GAFFER_LIBRARY", LibraryMemory))
	config.Library.Dir = getEnv("GAFFER_LIBRARY_DIR", filepath.Join(config.Store.DataDir, "library"))
	config.Library.EtcdEndpoints = getEnvStringSlice("GAFFER_ETCD_ENDPOINTS", nil)
	config.Library.EtcdNamespace = getEnv("GAFFER_ETCD_NAMESPACE", "gaffer")
	config.Library.EtcdDialTimeout = getEnvDuration("GAFFER_ETCD_DIAL_TIMEOUT", 5*time.Second)

	config.Cache.RedisURL = getEnv("GAFFER_REDIS_URL", "")
	config.Cache.TTL = getEnvDuration("GAFFER_CACHE_TTL", time.Hour)

	config.Jobs.TrackerEnabled = getEnvBool("GAFFER_JOB_TRACKER_ENABLED", false)
	config.Jobs.ExecutorThreads = getEnvInt("GAFFER_JOB_EXECUTOR_THREADS", store.DefaultJobExecutorThreads)

	config.Logging.Level = strings.ToLower(getEnv("GAFFER_LOG_LEVEL", "info"))
	config.Logging.Format = strings.ToLower(getEnv("GAFFER_LOG_FORMAT", "text"))

	config.Memory.RuntimeLimitStr = getEnv("GAFFER_MEMORY_LIMIT", "0")
	config.Memory.RuntimeLimit, config.Memory.limitErr = parseMemorySize(config.Memory.RuntimeLimitStr)
	config.Memory.GCPercent = getEnvInt("GAFFER_GC_PERCENT", 100)
	config.Memory.PoolEnabled = getEnvBool("GAFFER_POOL_ENABLED", true)
	config.Memory.PoolMaxSize = getEnvInt("GAFFER_POOL_MAX_SIZE", 4096)

	return config
}

// Validate checks the configuration for invalid or conflicting values.
func (c *Config) Validate() error {
	switch c.Library.Backend {
	case LibraryMemory:
	case LibraryBadger:
		if c.Library.Dir == "" {
			return fmt.Errorf("badger library requires GAFFER_LIBRARY_DIR")
		}
	case LibraryEtcd:
		if len(c.Library.EtcdEndpoints) == 0 {
			return fmt.Errorf("etcd library requires GAFFER_ETCD_ENDPOINTS")
		}
	default:
		return fmt.Errorf("unknown library backend: %q", c.Library.Backend)
	}

	if c.Store.FileReaders <= 0 {
		return fmt.Errorf("invalid file readers: %d", c.Store.FileReaders)
	}
	if c.Jobs.ExecutorThreads <= 0 {
		return fmt.Errorf("invalid job executor threads: %d", c.Jobs.ExecutorThreads)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("invalid cache ttl: %v", c.Cache.TTL)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}

	if c.Memory.limitErr != nil {
		return c.Memory.limitErr
	}
	if c.Memory.RuntimeLimit < 0 {
		return fmt.Errorf("invalid memory limit: %s", c.Memory.RuntimeLimitStr)
	}
	return nil
}

// ApplyStoreDefaults sets the store properties p leaves unset. p must not
// be frozen.
func (c *Config) ApplyStoreDefaults(p *store.Properties) error {
	defaults := [][2]string{
		{store.KeyStoreClass, c.Store.Class},
		{store.KeyDataDir, c.Store.DataDir},
		{store.KeyCacheRedisURL, c.Cache.RedisURL},
	}
	if c.Store.FileReaders > 0 {
		defaults = append(defaults, [2]string{store.KeyFileReaders, strconv.Itoa(c.Store.FileReaders)})
	}
	if c.Cache.TTL > 0 {
		defaults = append(defaults, [2]string{store.KeyCacheTTL, c.Cache.TTL.String()})
	}
	if c.Jobs.ExecutorThreads > 0 {
		defaults = append(defaults, [2]string{store.KeyJobExecutorThreads, strconv.Itoa(c.Jobs.ExecutorThreads)})
	}
	if c.Jobs.TrackerEnabled {
		defaults = append(defaults, [2]string{store.KeyJobTrackerEnabled, "true"})
	}
	for _, kv := range defaults {
		if kv[1] == "" || p.Get(kv[0]) != "" {
			continue
		}
		if err := p.Set(kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}

// String returns a representation of the Config safe for logging.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Store: %s, DataDir: %s, Library: %s, RedisCache: %v, Log: %s/%s}",
		c.Store.Class, c.Store.DataDir, c.Library.Backend,
		c.Cache.RedisURL != "", c.Logging.Level, c.Logging.Format,
	)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		// Try parsing as seconds
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultVal
}

// memoryUnits lists size suffixes, longest first so "KB" wins over "B".
var memoryUnits = []struct {
	suffix string
	shift  uint
}{
	{"TB", 40}, {"GB", 30}, {"MB", 20}, {"KB", 10},
	{"T", 40}, {"G", 30}, {"M", 20}, {"K", 10},
	{"B", 0},
}

// parseMemorySize reads sizes such as "512MB", "2G" or "1024". Units are
// binary. "", "0" and "unlimited" mean no limit.
func parseMemorySize(s string) (int64, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	switch v {
	case "", "0", "UNLIMITED":
		return 0, nil
	}
	var shift uint
	for _, u := range memoryUnits {
		if strings.HasSuffix(v, u.suffix) {
			v, shift = strings.TrimSpace(strings.TrimSuffix(v, u.suffix)), u.shift
			break
		}
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid memory size %q", s)
	}
	if n > math.MaxInt64>>shift {
		return 0, fmt.Errorf("memory size %q overflows", s)
	}
	return n << shift, nil
}

// ApplyRuntimeMemory sets the Go runtime's soft memory limit and GC
// percentage. A zero GCPercent leaves GOGC alone. The returned func puts
// back the previous settings.
func (c *MemoryConfig) ApplyRuntimeMemory() (restore func()) {
	prevLimit := debug.SetMemoryLimit(-1)
	if c.RuntimeLimit > 0 {
		debug.SetMemoryLimit(c.RuntimeLimit)
	}
	prevGC := 0
	if c.GCPercent != 0 {
		prevGC = debug.SetGCPercent(c.GCPercent)
	}
	return func() {
		debug.SetMemoryLimit(prevLimit)
		if c.GCPercent != 0 {
			debug.SetGCPercent(prevGC)
		}
	}
}
