// Package config loads runtime configuration for the query engine core.
//
// Values are merged, lowest to highest precedence: compiled-in defaults,
// a JSON config file ("config/app.json"), then a ".env" file. Call Load()
// once at startup, or rely on the typed accessors below — each calls Load()
// itself via sync.Once so callers never need to sequence initialization.
package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultAppEnv               = "local"
	defaultAppPort              = "8080"
	defaultRecordStoreDir       = "data/records"
	defaultExportDir            = "data/exports"
	defaultRetentionHours       = "24"
	defaultEnableCache          = "true"
	defaultEnableOptimization   = "true"
	defaultEnableProfiling      = "false"
	defaultMemoryLimitMB        = "512"
	defaultTTLSeconds           = "300"
	defaultMaxConcurrentExports = "5"
	defaultL3Enabled            = "false"
	defaultL3Dir                = "data/cache/l3"
	defaultL1CapacityBytes      = "67108864" // 64 MiB
	defaultRedisAddr            = "localhost:6379"
	defaultQueryTimeoutSeconds  = "30"
	defaultMaxFiltersPerQuery   = "64"
	defaultMaxIncludesPerQuery  = "8"
	defaultMaxUnfilteredReach   = "5000"
)

var (
	loadOnce sync.Once
	loadErr  error

	mu     sync.RWMutex
	values = defaultValues()
)

// Load reads config/app.json and .env, merging them over the compiled-in
// defaults. Safe to call many times; the actual read happens once.
func Load() error {
	loadOnce.Do(func() {
		loadErr = loadFromFiles("config/app.json", ".env")
	})
	return loadErr
}

func defaultValues() map[string]string {
	return map[string]string{
		"APP_ENV":                defaultAppEnv,
		"APP_PORT":               defaultAppPort,
		"RECORD_STORE_DIR":       defaultRecordStoreDir,
		"EXPORT_DIR":             defaultExportDir,
		"RETENTION_HOURS":        defaultRetentionHours,
		"ENABLE_CACHE":           defaultEnableCache,
		"ENABLE_OPTIMIZATION":    defaultEnableOptimization,
		"ENABLE_PROFILING":       defaultEnableProfiling,
		"MEMORY_LIMIT_MB":        defaultMemoryLimitMB,
		"DEFAULT_TTL":            defaultTTLSeconds,
		"MAX_CONCURRENT_EXPORTS": defaultMaxConcurrentExports,
		"L2_ENDPOINT":            "",
		"L3_ENABLED":             defaultL3Enabled,
		"L3_DIR":                 defaultL3Dir,
		"L1_CAPACITY_BYTES":      defaultL1CapacityBytes,
		"REDIS_ADDR":             defaultRedisAddr,
		"REDIS_PASSWORD":         "",
		"QUERY_TIMEOUT_SECONDS":  defaultQueryTimeoutSeconds,
		"MAX_FILTERS_PER_QUERY":  defaultMaxFiltersPerQuery,
		"MAX_INCLUDES_PER_QUERY": defaultMaxIncludesPerQuery,
		"MAX_UNFILTERED_REACH":   defaultMaxUnfilteredReach,
		"MONGO_URI":              "",
		"MONGO_LOG_DB":           "queryengine",
		"MONGO_LOG_COLLECTION":   "logs",
		"S3_BUCKET":              "",
		"S3_REGION":              "us-east-1",
		"S3_KEY":                 "",
		"S3_SECRET":              "",
		"S3_ENDPOINT":            "",
		"S3_URL":                 "",
		"STORAGE_DISK":           "local",
		"STORAGE_LOCAL_ROOT":     "data/exports",
		"STORAGE_URL":            "http://localhost:8080/exports",
	}
}

// ── Typed accessors ──────────────────────────────────────────────────────────

func AppEnv() string  { _ = Load(); return get("APP_ENV", defaultAppEnv) }
func AppPort() string { _ = Load(); return get("APP_PORT", defaultAppPort) }

// RecordStoreDir is the directory of JSON-backed database files (§6).
func RecordStoreDir() string { _ = Load(); return get("RECORD_STORE_DIR", defaultRecordStoreDir) }

// ExportDir is where export job artifacts are written (default disk "local").
func ExportDir() string { _ = Load(); return get("EXPORT_DIR", defaultExportDir) }

// RetentionHours is the export-artifact TTL (default 24h).
func RetentionHours() time.Duration {
	_ = Load()
	return time.Duration(getInt("RETENTION_HOURS", 24)) * time.Hour
}

func EnableCache() bool        { _ = Load(); return getBool("ENABLE_CACHE", true) }
func EnableOptimization() bool { _ = Load(); return getBool("ENABLE_OPTIMIZATION", true) }
func EnableProfiling() bool    { _ = Load(); return getBool("ENABLE_PROFILING", false) }

func MemoryLimitMB() int { _ = Load(); return getInt("MEMORY_LIMIT_MB", 512) }

// DefaultTTL is the cache entry lifetime applied when a query doesn't
// override it.
func DefaultTTL() time.Duration {
	_ = Load()
	return time.Duration(getInt("DEFAULT_TTL", 300)) * time.Second
}

func MaxConcurrentExports() int { _ = Load(); return getInt("MAX_CONCURRENT_EXPORTS", 5) }

// L2Endpoint is the remote cache address (Redis). Falls back to REDIS_ADDR.
func L2Endpoint() string {
	_ = Load()
	if v := get("L2_ENDPOINT", ""); v != "" {
		return v
	}
	return get("REDIS_ADDR", defaultRedisAddr)
}

func L3Enabled() bool { _ = Load(); return getBool("L3_ENABLED", false) }
func L3Dir() string   { _ = Load(); return get("L3_DIR", defaultL3Dir) }

func L1CapacityBytes() int64 {
	_ = Load()
	return int64(getInt("L1_CAPACITY_BYTES", 64*1024*1024))
}

func RedisAddr() string     { _ = Load(); return get("REDIS_ADDR", defaultRedisAddr) }
func RedisPassword() string { _ = Load(); return get("REDIS_PASSWORD", "") }

func QueryTimeout() time.Duration {
	_ = Load()
	return time.Duration(getInt("QUERY_TIMEOUT_SECONDS", 30)) * time.Second
}

func MaxFiltersPerQuery() int  { _ = Load(); return getInt("MAX_FILTERS_PER_QUERY", 64) }
func MaxIncludesPerQuery() int { _ = Load(); return getInt("MAX_INCLUDES_PER_QUERY", 8) }

// MaxUnfilteredReach bounds page*size for a query with no filters at all.
func MaxUnfilteredReach() int { _ = Load(); return getInt("MAX_UNFILTERED_REACH", 5000) }

func MongoURI() string           { _ = Load(); return get("MONGO_URI", "") }
func MongoLogDB() string         { _ = Load(); return get("MONGO_LOG_DB", "queryengine") }
func MongoLogCollection() string { _ = Load(); return get("MONGO_LOG_COLLECTION", "logs") }

// ── Storage ──────────────────────────────────────────────────────────────────

func StorageDefault() string    { _ = Load(); return get("STORAGE_DISK", "local") }
func StorageLocalRoot() string  { _ = Load(); return get("STORAGE_LOCAL_ROOT", "data/exports") }
func StorageURL() string        { _ = Load(); return get("STORAGE_URL", "http://localhost:8080/exports") }
func StorageS3Bucket() string   { _ = Load(); return get("S3_BUCKET", "") }
func StorageS3Region() string   { _ = Load(); return get("S3_REGION", "us-east-1") }
func StorageS3Key() string      { _ = Load(); return get("S3_KEY", "") }
func StorageS3Secret() string   { _ = Load(); return get("S3_SECRET", "") }
func StorageS3Endpoint() string { _ = Load(); return get("S3_ENDPOINT", "") }
func StorageS3URL() string      { _ = Load(); return get("S3_URL", "") }

// Get reads any config key by name with an optional fallback. Keys from
// .env and config/app.json are available once config.Load() has run.
func Get(key, fallback string) string {
	_ = Load()
	return get(key, fallback)
}

// ── Loading machinery ────────────────────────────────────────────────────────

func loadFromFiles(configPath, envPath string) error {
	loaded := defaultValues()

	if err := mergeJSONConfig(configPath, loaded); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
	}

	if err := mergeDotEnv(envPath, loaded); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
	}

	mu.Lock()
	values = loaded
	mu.Unlock()

	return nil
}

func mergeJSONConfig(path string, out map[string]string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var raw map[string]interface{}
	if err := json.NewDecoder(file).Decode(&raw); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	for key, val := range raw {
		s, ok := val.(string)
		if !ok {
			continue
		}

		k := strings.ToUpper(strings.TrimSpace(key))
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(s)
	}

	return nil
}

func mergeDotEnv(path string, out map[string]string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		idx := strings.IndexByte(line, '=')
		if idx <= 0 {
			continue
		}

		key := strings.ToUpper(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}
		out[key] = value
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	return nil
}

func get(key, fallback string) string {
	mu.RLock()
	defer mu.RUnlock()

	if value := strings.TrimSpace(values[key]); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := get(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := get(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
