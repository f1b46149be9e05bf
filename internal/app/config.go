package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/yungbote/companysync-backend/internal/data/db"
	"github.com/yungbote/companysync-backend/internal/modules/media"
	"github.com/yungbote/companysync-backend/internal/modules/reconcile"
)

// Config keys. They double as environment variable names.
const (
	KeyLogMode     = "LOG_MODE"
	KeyMetricsAddr = "METRICS_ADDR"
	KeyConfigFile  = "COMPANYSYNC_CONFIG"

	KeyDBDSN          = "POSTGRES_DSN"
	KeyDBHost         = "POSTGRES_HOST"
	KeyDBPort         = "POSTGRES_PORT"
	KeyDBUser         = "POSTGRES_USER"
	KeyDBPassword     = "POSTGRES_PASSWORD"
	KeyDBName         = "POSTGRES_NAME"
	KeyDBSSLMode      = "POSTGRES_SSLMODE"
	KeyDBMaxOpenConns = "POSTGRES_MAX_OPEN_CONNS"
	KeyDBAutoMigrate  = "DB_AUTO_MIGRATE"

	KeySourcePrefix       = "SOURCE_GCS_PREFIX"
	KeySourceCountry      = "SOURCE_COUNTRY"
	KeyMatchThreshold     = "MATCH_THRESHOLD"
	KeyReconcileBatchSize = "RECONCILE_BATCH_SIZE"
	KeyReconcileWorkers   = "RECONCILE_WORKERS"
	KeyMediaWorkers       = "MEDIA_WORKERS"

	KeyClassifyTimeout     = "CLASSIFY_TIMEOUT"
	KeyClassifyMaxEntities = "CLASSIFY_MAX_ENTITIES"
	KeyClassifyClaimTTL    = "CLASSIFY_CLAIM_TTL"
	KeyClassifyLockPath    = "CLASSIFY_LOCK_PATH"
	KeyClassifyPause       = "CLASSIFY_PAUSE"
	KeyClassifyImageDetail = "CLASSIFY_IMAGE_DETAIL"

	KeyApifyPhotosActor    = "APIFY_ACTOR_PHOTOS"
	KeyApifyPageActor      = "APIFY_ACTOR_PAGE"
	KeyApifyMaxCompanies   = "APIFY_MAX_COMPANIES"
	KeyApifyPhotosLimit    = "APIFY_PHOTOS_LIMIT"
	KeyIngestWorkers       = "INGEST_DOWNLOAD_WORKERS"
	KeyIngestRPS           = "INGEST_DOWNLOAD_RPS"
	KeyIngestTimeout       = "INGEST_DOWNLOAD_TIMEOUT"
	KeyIngestUserAgent     = "INGEST_USER_AGENT"
)

type Config struct {
	LogMode     string
	MetricsAddr string

	DB          db.PostgresConfig
	AutoMigrate bool

	Pipeline PipelineConfig
	Classify ClassifyConfig
	Ingest   IngestConfig
}

type PipelineConfig struct {
	SourcePrefix       string
	Country            string
	MatchThreshold     float64
	ReconcileBatchSize int
	ReconcileWorkers   int
	MediaWorkers       int
	// SkipMedia is set per invocation, never from the environment.
	SkipMedia bool
}

type ClassifyConfig struct {
	Timeout     time.Duration
	MaxEntities int
	ClaimTTL    time.Duration
	LockPath    string
	Pause       time.Duration
	ImageDetail string
}

type IngestConfig struct {
	PhotosActor     string
	PageActor       string
	MaxCompanies    int
	PhotosLimit     int
	DownloadWorkers int
	DownloadRPS     float64
	DownloadTimeout time.Duration
	UserAgent       string
}

// ConfigError reports a setting that is missing or out of range.
type ConfigError struct {
	Key    string
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid config"
	}
	if e.Value == "" {
		return fmt.Sprintf("invalid config %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("invalid config %s=%q: %s", e.Key, e.Value, e.Reason)
}

// IsConfigError reports whether err carries a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// NewViper returns a viper instance reading the environment with every default set.
// Callers bind cobra flags onto it before LoadConfig.
func NewViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	v.SetDefault(KeyLogMode, "development")
	v.SetDefault(KeyMetricsAddr, "")

	v.SetDefault(KeyDBHost, "localhost")
	v.SetDefault(KeyDBPort, "5432")
	v.SetDefault(KeyDBUser, "postgres")
	v.SetDefault(KeyDBName, "companysync")
	v.SetDefault(KeyDBSSLMode, "disable")
	v.SetDefault(KeyDBMaxOpenConns, 10)
	v.SetDefault(KeyDBAutoMigrate, true)

	v.SetDefault(KeySourcePrefix, "")
	v.SetDefault(KeySourceCountry, "")
	v.SetDefault(KeyMatchThreshold, 0.7)
	v.SetDefault(KeyReconcileBatchSize, reconcile.DefaultBatchSize)
	v.SetDefault(KeyReconcileWorkers, reconcile.DefaultWorkers)
	v.SetDefault(KeyMediaWorkers, media.DefaultWorkers)

	v.SetDefault(KeyClassifyTimeout, "60s")
	v.SetDefault(KeyClassifyMaxEntities, 10)
	v.SetDefault(KeyClassifyClaimTTL, "15m")
	v.SetDefault(KeyClassifyLockPath, "")
	v.SetDefault(KeyClassifyPause, "0s")
	v.SetDefault(KeyClassifyImageDetail, "auto")

	v.SetDefault(KeyApifyPhotosActor, "")
	v.SetDefault(KeyApifyPageActor, "")
	v.SetDefault(KeyApifyMaxCompanies, 10)
	v.SetDefault(KeyApifyPhotosLimit, 10)
	v.SetDefault(KeyIngestWorkers, 5)
	v.SetDefault(KeyIngestRPS, 5.0)
	v.SetDefault(KeyIngestTimeout, "30s")
	v.SetDefault(KeyIngestUserAgent, "")
	return v
}

// LoadConfig merges the optional config file into v and validates the result.
// Environment variables and bound flags win over the file.
func LoadConfig(v *viper.Viper, configFile string) (Config, error) {
	if v == nil {
		v = NewViper()
	}
	if configFile == "" {
		configFile = strings.TrimSpace(v.GetString(KeyConfigFile))
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	var errs []error
	dur := func(key string) time.Duration {
		d, err := parseDuration(v.GetString(key))
		if err != nil {
			errs = append(errs, &ConfigError{Key: key, Value: v.GetString(key), Reason: "expected a duration like 60s or a number of seconds"})
		}
		return d
	}

	cfg := Config{
		LogMode:     strings.TrimSpace(v.GetString(KeyLogMode)),
		MetricsAddr: strings.TrimSpace(v.GetString(KeyMetricsAddr)),
		DB: db.PostgresConfig{
			DSN:             strings.TrimSpace(v.GetString(KeyDBDSN)),
			Host:            strings.TrimSpace(v.GetString(KeyDBHost)),
			Port:            strings.TrimSpace(v.GetString(KeyDBPort)),
			User:            strings.TrimSpace(v.GetString(KeyDBUser)),
			Password:        v.GetString(KeyDBPassword),
			Name:            strings.TrimSpace(v.GetString(KeyDBName)),
			SSLMode:         strings.TrimSpace(v.GetString(KeyDBSSLMode)),
			ApplicationName: "companysync",
			MaxOpenConns:    v.GetInt(KeyDBMaxOpenConns),
		},
		AutoMigrate: v.GetBool(KeyDBAutoMigrate),
		Pipeline: PipelineConfig{
			SourcePrefix:       strings.Trim(strings.TrimSpace(v.GetString(KeySourcePrefix)), "/"),
			Country:            strings.TrimSpace(v.GetString(KeySourceCountry)),
			MatchThreshold:     v.GetFloat64(KeyMatchThreshold),
			ReconcileBatchSize: v.GetInt(KeyReconcileBatchSize),
			ReconcileWorkers:   v.GetInt(KeyReconcileWorkers),
			MediaWorkers:       v.GetInt(KeyMediaWorkers),
		},
		Classify: ClassifyConfig{
			Timeout:     dur(KeyClassifyTimeout),
			MaxEntities: v.GetInt(KeyClassifyMaxEntities),
			ClaimTTL:    dur(KeyClassifyClaimTTL),
			LockPath:    strings.TrimSpace(v.GetString(KeyClassifyLockPath)),
			Pause:       dur(KeyClassifyPause),
			ImageDetail: strings.TrimSpace(v.GetString(KeyClassifyImageDetail)),
		},
		Ingest: IngestConfig{
			PhotosActor:     strings.TrimSpace(v.GetString(KeyApifyPhotosActor)),
			PageActor:       strings.TrimSpace(v.GetString(KeyApifyPageActor)),
			MaxCompanies:    v.GetInt(KeyApifyMaxCompanies),
			PhotosLimit:     v.GetInt(KeyApifyPhotosLimit),
			DownloadWorkers: v.GetInt(KeyIngestWorkers),
			DownloadRPS:     v.GetFloat64(KeyIngestRPS),
			DownloadTimeout: dur(KeyIngestTimeout),
			UserAgent:       strings.TrimSpace(v.GetString(KeyIngestUserAgent)),
		},
	}
	if cfg.LogMode == "" {
		cfg.LogMode = "development"
	}
	if len(errs) > 0 {
		return cfg, errs[0]
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the settings every command depends on.
func (c Config) Validate() error {
	if c.DB.DSN == "" && (c.DB.Host == "" || c.DB.Name == "") {
		return &ConfigError{Key: KeyDBDSN, Reason: "set POSTGRES_DSN or POSTGRES_HOST and POSTGRES_NAME"}
	}
	if c.Pipeline.MatchThreshold <= 0 || c.Pipeline.MatchThreshold > 1 {
		return &ConfigError{Key: KeyMatchThreshold, Value: formatFloat(c.Pipeline.MatchThreshold), Reason: "must be in (0, 1]"}
	}
	positive := []struct {
		key string
		n   int
	}{
		{KeyReconcileBatchSize, c.Pipeline.ReconcileBatchSize},
		{KeyReconcileWorkers, c.Pipeline.ReconcileWorkers},
		{KeyMediaWorkers, c.Pipeline.MediaWorkers},
		{KeyClassifyMaxEntities, c.Classify.MaxEntities},
		{KeyApifyMaxCompanies, c.Ingest.MaxCompanies},
		{KeyIngestWorkers, c.Ingest.DownloadWorkers},
	}
	for _, p := range positive {
		if p.n <= 0 {
			return &ConfigError{Key: p.key, Value: strconv.Itoa(p.n), Reason: "must be positive"}
		}
	}
	if c.Classify.Timeout <= 0 {
		return &ConfigError{Key: KeyClassifyTimeout, Value: c.Classify.Timeout.String(), Reason: "must be positive"}
	}
	if c.Classify.ClaimTTL < c.Classify.Timeout {
		return &ConfigError{Key: KeyClassifyClaimTTL, Value: c.Classify.ClaimTTL.String(), Reason: "must not be shorter than " + KeyClassifyTimeout}
	}
	return nil
}

// RequireIngest checks the settings only the ingestion commands need.
func (c Config) RequireIngest() error {
	if c.Ingest.PhotosActor == "" {
		return &ConfigError{Key: KeyApifyPhotosActor, Reason: "required for ingestion"}
	}
	if c.Ingest.PageActor == "" {
		return &ConfigError{Key: KeyApifyPageActor, Reason: "required for ingestion"}
	}
	return nil
}

// parseDuration accepts Go durations ("45s") and bare seconds ("45", "2.5").
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(raw)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
