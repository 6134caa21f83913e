// Package config provides application configuration management with support
// for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App        AppConfig
	Logger     LoggerConfig
	Catalog    CatalogConfig
	Metrics    MetricsConfig
	Graph      GraphConfig
	Cluster    ClusterConfig
	Classifier ClassifierConfig
	Evaluator  EvaluatorConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// CatalogConfig holds catalog storage configuration.
type CatalogConfig struct {
	// BasePath is the directory holding the catalog database, the closure
	// cache, and the search index.
	BasePath string
}

// MetricsConfig holds the Prometheus exposition endpoint configuration.
type MetricsConfig struct {
	// Addr is the listen address of the /metrics endpoint; empty disables it.
	Addr string
}

// GraphConfig holds identity-graph traversal defaults.
type GraphConfig struct {
	// Levels is the default hop limit for equivalence closure queries.
	Levels int
	// Threshold is the default minimum edge strength for closure queries.
	Threshold float64
	// CacheEnabled toggles the on-disk closure query cache.
	CacheEnabled bool
}

// ClusterConfig holds work clustering configuration.
type ClusterConfig struct {
	// BatchCommitSize is how many pools a batch reclustering job processes
	// between commits, bounding transaction size and lock duration.
	BatchCommitSize int
	// MaxEvictionPasses bounds the eviction worklist so a pathological data
	// set cannot loop forever.
	MaxEvictionPasses int
	// ReclusterInterval is how often the daemon sweeps unattached pools.
	ReclusterInterval time.Duration
}

// ClassifierConfig holds the external classification service configuration.
type ClassifierConfig struct {
	URL     string
	Timeout time.Duration
	// RPS limits outbound calls to the classifier.
	RPS float64
}

// EvaluatorConfig holds the external summary evaluator configuration.
type EvaluatorConfig struct {
	URL     string
	Timeout time.Duration
	RPS     float64
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	catalogPath := flag.String("catalog-path", "", "Base path for catalog storage")

	graphLevels := flag.String("graph-levels", "", "Default closure hop limit (default: 5)")
	graphThreshold := flag.String("graph-threshold", "", "Default closure strength threshold (default: 0.5)")
	graphCache := flag.String("graph-cache", "", "Enable closure query cache (default: true)")

	batchCommitSize := flag.String("batch-commit-size", "", "Pools per batch commit (default: 100)")
	maxEvictionPasses := flag.String("max-eviction-passes", "", "Eviction worklist bound (default: 50)")
	reclusterInterval := flag.String("recluster-interval", "", "Unattached-pool sweep interval (default: 15m)")
	metricsAddr := flag.String("metrics-addr", "", "Metrics listen address (default: :9187)")

	classifierURL := flag.String("classifier-url", "", "Classification service base URL")
	classifierTimeout := flag.String("classifier-timeout", "", "Classification call timeout (default: 60s)")
	evaluatorURL := flag.String("evaluator-url", "", "Summary evaluator base URL")
	evaluatorTimeout := flag.String("evaluator-timeout", "", "Evaluator call timeout (default: 60s)")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Catalog: CatalogConfig{
			BasePath: getConfigValue(*catalogPath, "CATALOG_PATH", ""),
		},
		Metrics: MetricsConfig{
			Addr: getConfigValue(*metricsAddr, "METRICS_ADDR", ":9187"),
		},
		Graph: GraphConfig{
			Levels:       getIntConfigValue(*graphLevels, "GRAPH_LEVELS", 5),
			Threshold:    getFloatConfigValue(*graphThreshold, "GRAPH_THRESHOLD", 0.5),
			CacheEnabled: getBoolConfigValue(*graphCache, "GRAPH_CACHE", true),
		},
		Cluster: ClusterConfig{
			BatchCommitSize:   getIntConfigValue(*batchCommitSize, "BATCH_COMMIT_SIZE", 100),
			MaxEvictionPasses: getIntConfigValue(*maxEvictionPasses, "MAX_EVICTION_PASSES", 50),
		},
		Classifier: ClassifierConfig{
			URL: getConfigValue(*classifierURL, "CLASSIFIER_URL", ""),
			RPS: getFloatConfigValue("", "CLASSIFIER_RPS", 5),
		},
		Evaluator: EvaluatorConfig{
			URL: getConfigValue(*evaluatorURL, "EVALUATOR_URL", ""),
			RPS: getFloatConfigValue("", "EVALUATOR_RPS", 5),
		},
	}

	classifierTimeoutStr := getConfigValue(*classifierTimeout, "CLASSIFIER_TIMEOUT", "60s")
	d, err := time.ParseDuration(classifierTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid classifier timeout %q: %w", classifierTimeoutStr, err)
	}
	cfg.Classifier.Timeout = d

	evaluatorTimeoutStr := getConfigValue(*evaluatorTimeout, "EVALUATOR_TIMEOUT", "60s")
	d, err = time.ParseDuration(evaluatorTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid evaluator timeout %q: %w", evaluatorTimeoutStr, err)
	}
	cfg.Evaluator.Timeout = d

	reclusterIntervalStr := getConfigValue(*reclusterInterval, "RECLUSTER_INTERVAL", "15m")
	d, err = time.ParseDuration(reclusterIntervalStr)
	if err != nil {
		return nil, fmt.Errorf("invalid recluster interval %q: %w", reclusterIntervalStr, err)
	}
	cfg.Cluster.ReclusterInterval = d

	if err := cfg.expandCatalogPath(); err != nil {
		return nil, fmt.Errorf("invalid catalog path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Catalog.BasePath == "" {
		return errors.New("catalog base path cannot be empty after expansion")
	}

	if c.Graph.Levels < 1 {
		return fmt.Errorf("graph levels must be at least 1, got %d", c.Graph.Levels)
	}
	if c.Graph.Threshold < -1 || c.Graph.Threshold > 1 {
		return fmt.Errorf("graph threshold must be in [-1, 1], got %g", c.Graph.Threshold)
	}
	if c.Cluster.BatchCommitSize < 1 {
		return fmt.Errorf("batch commit size must be at least 1, got %d", c.Cluster.BatchCommitSize)
	}

	return nil
}

// DatabasePath returns the path of the catalog SQLite database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Catalog.BasePath, "catalog.db")
}

// ClosureCachePath returns the directory of the closure query cache.
func (c *Config) ClosureCachePath() string {
	return filepath.Join(c.Catalog.BasePath, "cache", "closure")
}

// SearchIndexPath returns the directory of the work search index.
func (c *Config) SearchIndexPath() string {
	return filepath.Join(c.Catalog.BasePath, "index", "works.bleve")
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandCatalogPath expands ~ and makes the path absolute.
func (c *Config) expandCatalogPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "Openshelf", "catalog")

	expanded, err := expandPath(c.Catalog.BasePath, defaultPath)
	if err != nil {
		return err
	}
	c.Catalog.BasePath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// getFloatConfigValue returns a float64 from flag, env var, or default.
func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result float64
	if _, err := fmt.Sscanf(strValue, "%g", &result); err != nil {
		return defaultValue
	}
	return result
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
