package config

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KRQUANT_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "KOSPI", cfg.Market)
	assert.Equal(t, 5, cfg.TopN)
	assert.Equal(t, 90, cfg.LookbackDays)
	assert.Equal(t, "0 5 9 * * MON-FRI", cfg.Schedule)
	assert.Equal(t, "Asia/Seoul", cfg.Timezone)
	assert.True(t, cfg.InitialCapital.Equal(decimal.NewFromInt(10_000_000)))
	assert.Equal(t, filepath.Join(cfg.DataDir, "ledger.json"), cfg.LedgerPath)
	assert.True(t, cfg.Regime.Enabled)
	assert.Equal(t, 200, cfg.Regime.Period)
	assert.False(t, cfg.Backup.Enabled)
	assert.Equal(t, 30, cfg.Backup.RetentionDays)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KRQUANT_DATA_DIR", t.TempDir())
	t.Setenv("KRQUANT_TOP_N", "3")
	t.Setenv("KRQUANT_LOOKBACK_DAYS", "120")
	t.Setenv("KRQUANT_INITIAL_CAPITAL", "5000000.50")
	t.Setenv("KRQUANT_REGIME_ENABLED", "false")
	t.Setenv("KRQUANT_BACKUP_RETENTION_DAYS", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.TopN)
	assert.Equal(t, 120, cfg.LookbackDays)
	assert.True(t, cfg.InitialCapital.Equal(decimal.RequireFromString("5000000.50")))
	assert.False(t, cfg.Regime.Enabled)
	assert.Equal(t, 7, cfg.Backup.RetentionDays)
}

func TestLoadRejectsBadCapital(t *testing.T) {
	t.Setenv("KRQUANT_DATA_DIR", t.TempDir())
	t.Setenv("KRQUANT_INITIAL_CAPITAL", "not-a-number")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{TopN: 5, LookbackDays: 90}
	assert.NoError(t, cfg.Validate())

	cfg.TopN = 0
	assert.Error(t, cfg.Validate())

	cfg.TopN = 5
	cfg.LookbackDays = -1
	assert.Error(t, cfg.Validate())

	cfg.LookbackDays = 90
	cfg.Backup = BackupConfig{Enabled: true}
	assert.Error(t, cfg.Validate())
}
