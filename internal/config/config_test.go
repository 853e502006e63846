package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100, cfg.Game.DefaultReward)
	assert.Equal(t, "/api/v1", cfg.Server.BasePath)
	assert.Equal(t, 1440, cfg.Server.TokenTTLMinutes)
	assert.Equal(t, 1, cfg.Notifications.RecapHourUTC)
	assert.True(t, cfg.Notifications.Log)
	assert.True(t, cfg.Notifications.RecapScheduler)
}

func TestRecapSchedulerCanBeDisabled(t *testing.T) {
	cfg, err := FromYAML([]byte("notifications:\n  recap_scheduler: false\n"))
	require.NoError(t, err)
	assert.False(t, cfg.Notifications.RecapScheduler)

	t.Setenv("SIDEQUEST_RECAP_SCHEDULER", "true")
	require.NoError(t, cfg.ApplyEnv())
	assert.True(t, cfg.Notifications.RecapScheduler)
}

func TestFromYAMLKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := FromYAML([]byte("game:\n  default_reward: 250\n"))
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Game.DefaultReward)
	assert.Equal(t, "/api/v1", cfg.Server.BasePath)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"negative reward": "game:\n  default_reward: -1\n",
		"recap hour":      "notifications:\n  recap_hour_utc: 24\n",
		"base path":       "server:\n  base_path: api\n",
		"log mode":        "logging:\n  mode: loud\n",
		"webhook url":     "notifications:\n  webhooks:\n    - secret: x\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoadFallsBackToDefaultAndAppliesEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SIDEQUEST_JWT_SECRET", "from-env")
	t.Setenv("SIDEQUEST_DB_PATH", filepath.Join(dir, "x.db"))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Server.JWTSecret)
	assert.Equal(t, filepath.Join(dir, "x.db"), cfg.Database.Path)
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(Path(dir), []byte("server:\n  addr: 0.0.0.0:9999\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9999", cfg.Server.Addr)
}
