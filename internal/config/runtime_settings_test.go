package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() RuntimeSettings {
	return RuntimeSettings{
		STTAPIURL:      "https://example.test/v1/audio/transcriptions",
		STTAPIKey:      "ak-test",
		STTModel:       "whisper-1",
		CronExpr:       "*/5 * * * *",
		TargetLanguage: "es",
	}
}

func TestRuntimeSettings_Validate(t *testing.T) {
	require.NoError(t, validSettings().Validate())

	invalid := validSettings()
	invalid.CronExpr = "bad cron"
	require.Error(t, invalid.Validate())

	invalidLang := validSettings()
	invalidLang.TargetLanguage = "!!"
	require.Error(t, invalidLang.Validate())

	missingKey := validSettings()
	missingKey.STTAPIKey = " "
	require.Error(t, missingKey.Validate())
}

func TestRuntimeSettingsFile_RoundTrip(t *testing.T) {
	tmp := t.TempDir()
	filePath := filepath.Join(tmp, "settings", "runtime.json")
	input := validSettings()

	require.NoError(t, WriteRuntimeSettingsFile(filePath, input))

	got, err := LoadRuntimeSettingsFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, input, got)

	info, err := os.Stat(filePath)
	require.NoError(t, err)
	assert.False(t, info.IsDir())
}

func TestWithRuntimeSettings_OverridesConfig(t *testing.T) {
	t.Setenv("STT_API_KEY", "env-key")
	t.Setenv("STT_API_URL", "https://env.example/v1")
	t.Setenv("STT_MODEL", "env-model")
	t.Setenv("CRON_EXPR", "0 1 * * *")

	override := RuntimeSettings{
		STTAPIURL:      "https://file.example/v1",
		STTAPIKey:      "file-key",
		STTModel:       "file-model",
		CronExpr:       "*/30 * * * *",
		TargetLanguage: "ja",
	}

	cfg, err := NewFromEnv(WithRuntimeSettings(override))
	require.NoError(t, err)
	assert.Equal(t, override.STTAPIURL, cfg.STT.APIURL)
	assert.Equal(t, override.STTAPIKey, cfg.STT.APIKey)
	assert.Equal(t, override.STTModel, cfg.STT.Model)
	assert.Equal(t, override.CronExpr, cfg.Translate.CronExpr)
	assert.Equal(t, "ja", cfg.Translate.TargetLanguage.String())
}

func TestRuntimeSettingsStore_UpdatePersistsFile(t *testing.T) {
	tmp := t.TempDir()
	filePath := filepath.Join(tmp, "runtime-settings.json")
	initial := validSettings()

	store, err := NewRuntimeSettingsStore(filePath, initial)
	require.NoError(t, err)

	next := initial
	next.TargetLanguage = "fr"
	next.CronExpr = "0 2 * * *"

	updated, err := store.UpdateRuntimeSettings(next)
	require.NoError(t, err)
	assert.Equal(t, next, updated)

	current, err := store.GetRuntimeSettings()
	require.NoError(t, err)
	assert.Equal(t, next, current)

	onDisk, err := LoadRuntimeSettingsFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, next, onDisk)
}

func TestRuntimeSettingsStore_RejectsInvalidUpdate(t *testing.T) {
	tmp := t.TempDir()
	filePath := filepath.Join(tmp, "runtime-settings.json")

	store, err := NewRuntimeSettingsStore(filePath, validSettings())
	require.NoError(t, err)

	bad := validSettings()
	bad.CronExpr = "not a cron"
	_, err = store.UpdateRuntimeSettings(bad)
	require.Error(t, err)

	// Nothing was written for the rejected update.
	_, statErr := os.Stat(filePath)
	assert.True(t, os.IsNotExist(statErr))
}
