package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything a run consumes from the environment. The pipeline
// itself never reads env vars; it is handed this struct.
type Config struct {
	EnterpriseURL   string
	EnterpriseToken string
	OnlineURL       string
	OnlineToken     string

	AuditDSN   string
	AuditTable string

	MaxItems   int
	MaxWorkers int
	BatchSize  int

	FirstRun      bool
	ReconcileMode string

	TestMode   bool
	TestItemID string

	ExcludeTag string

	Location *time.Location
}

// LoadEnvConfig loads configName (a dotenv file) and builds the run
// configuration. Missing optional keys fall back to the defaults the audit has
// always run with.
func LoadEnvConfig(configName string) (Config, error) {
	if err := godotenv.Load(configName); err != nil {
		return Config{}, fmt.Errorf("loading %s: %w", configName, err)
	}

	cfg := Config{
		EnterpriseURL:   os.Getenv("ENTERPRISE_PORTAL_URL"),
		EnterpriseToken: os.Getenv("ENTERPRISE_PORTAL_TOKEN"),
		OnlineURL:       os.Getenv("ONLINE_PORTAL_URL"),
		OnlineToken:     os.Getenv("ONLINE_PORTAL_TOKEN"),
		AuditDSN:        os.Getenv("AUDIT_DSN"),
		AuditTable:      getEnvDefault("AUDIT_TABLE", "gis_audit"),
		TestItemID:      os.Getenv("TEST_ITEM_ID"),
		ExcludeTag:      getEnvDefault("EXCLUDE_TAG", "collab"),
		ReconcileMode:   getEnvDefault("RECONCILE_MODE", "delta"),
	}

	var err error
	if cfg.MaxItems, err = getEnvInt("MAX_ITEMS", 1000); err != nil {
		return Config{}, err
	}
	if cfg.MaxWorkers, err = getEnvInt("MAX_WORKERS", 10); err != nil {
		return Config{}, err
	}
	if cfg.BatchSize, err = getEnvInt("BATCH_SIZE", 2000); err != nil {
		return Config{}, err
	}
	cfg.FirstRun = getEnvBool("FIRST_RUN")
	cfg.TestMode = getEnvBool("TEST_MODE")

	tzName := getEnvDefault("TIMEZONE", "America/Chicago")
	cfg.Location, err = time.LoadLocation(tzName)
	if err != nil {
		return Config{}, fmt.Errorf("loading timezone %q: %w", tzName, err)
	}

	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}

	return cfg, nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}
