package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.False(t, cfg.FixEnabled)
	require.Equal(t, "MIRROR-", cfg.ClOrdIDPrefix)
	require.Equal(t, 4, cfg.TradingStartHour)
	require.Equal(t, 20, cfg.TradingEndHour)
	require.Equal(t, 6, cfg.NonTradingResumeHour)
	require.Equal(t, "America/New_York", cfg.TradingZone)
	require.Equal(t, 30*time.Second, cfg.LocateTimeout)
	require.Empty(t, cfg.ShadowSessions)
}

func TestLoad_FileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mirrorgate.yaml")
	content := `
trading:
  fix:
    enabled: true
    primary-session: PRIME
    shadow-sessions: [VENUE1, VENUE2]
    cl-ord-id-prefix: "MG-"
  initiator:
    trading-start-hour: 7
    trading-end-hour: 17
locate:
  timeout-seconds: 45
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.True(t, cfg.FixEnabled)
	require.Equal(t, "PRIME", cfg.PrimarySession)
	require.Equal(t, []string{"VENUE1", "VENUE2"}, cfg.ShadowSessions)
	require.Equal(t, "MG-", cfg.ClOrdIDPrefix)
	require.Equal(t, 7, cfg.TradingStartHour)
	require.Equal(t, 17, cfg.TradingEndHour)
	require.Equal(t, 45*time.Second, cfg.LocateTimeout)
}

func TestLoad_InvalidTradingWindowIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mirrorgate.yaml")
	content := `
trading:
  initiator:
    trading-start-hour: 20
    trading-end-hour: 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_MissingFileIsFatal(t *testing.T) {
	_, err := Load("/nonexistent/mirrorgate.yaml")
	require.Error(t, err)
}
