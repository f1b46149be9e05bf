package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, 0.7, cfg.Pipeline.MatchThreshold)
	assert.Equal(t, 50, cfg.Pipeline.ReconcileBatchSize)
	assert.Equal(t, 4, cfg.Pipeline.ReconcileWorkers)
	assert.Equal(t, 5, cfg.Pipeline.MediaWorkers)
	assert.Equal(t, 60*time.Second, cfg.Classify.Timeout)
	assert.Equal(t, 15*time.Minute, cfg.Classify.ClaimTTL)
	assert.Equal(t, 10, cfg.Classify.MaxEntities)
	assert.Equal(t, 10, cfg.Ingest.PhotosLimit)
	assert.True(t, cfg.AutoMigrate)
	assert.Equal(t, "companysync", cfg.DB.ApplicationName)
}

func TestLoadConfigReadsEnvironment(t *testing.T) {
	t.Setenv(KeyMatchThreshold, "0.85")
	t.Setenv(KeyClassifyTimeout, "20")
	t.Setenv(KeyClassifyPause, "1.5")
	t.Setenv(KeySourcePrefix, "/Chile/")
	t.Setenv(KeyDBDSN, "postgres://u:p@db:5432/companies")

	cfg, err := LoadConfig(NewViper(), "")
	require.NoError(t, err)
	assert.Equal(t, 0.85, cfg.Pipeline.MatchThreshold)
	assert.Equal(t, 20*time.Second, cfg.Classify.Timeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.Classify.Pause)
	assert.Equal(t, "Chile", cfg.Pipeline.SourcePrefix)
	assert.Equal(t, "postgres://u:p@db:5432/companies", cfg.DB.DSN)
}

func TestLoadConfigFileAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "companysync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("media_workers: 4\nmatch_threshold: 0.9\n"), 0o600))

	v := NewViper()
	v.Set(KeyMatchThreshold, 0.75)
	cfg, err := LoadConfig(v, path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Pipeline.MediaWorkers)
	assert.Equal(t, 0.75, cfg.Pipeline.MatchThreshold)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]struct {
		key   string
		value string
	}{
		"threshold above one": {KeyMatchThreshold, "1.5"},
		"zero workers":        {KeyMediaWorkers, "0"},
		"bad duration":        {KeyClassifyTimeout, "soon"},
		"ttl below timeout":   {KeyClassifyClaimTTL, "10s"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := LoadConfig(NewViper(), "")
			require.Error(t, err)
			assert.True(t, IsConfigError(err))

			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tc.key, ce.Key)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(NewViper(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.False(t, IsConfigError(err))
}

func TestRequireIngest(t *testing.T) {
	cfg, err := LoadConfig(NewViper(), "")
	require.NoError(t, err)

	err = cfg.RequireIngest()
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KeyApifyPhotosActor, ce.Key)

	cfg.Ingest.PhotosActor = "scraper/photos"
	cfg.Ingest.PageActor = "scraper/page"
	assert.NoError(t, cfg.RequireIngest())
}
