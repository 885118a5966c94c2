package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorion-labs/cognigate/pkg/contracts"
)

func writeProfile(t *testing.T, dir, code, content string) {
	t.Helper()
	path := filepath.Join(dir, "profile_"+code+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadProfileMergesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "eu", `
name: EU deployment
code: eu
velocity_cap: 100
framework_ceilings:
  eu-ai-act: 699
`)

	p, err := LoadProfile(dir, "EU")
	require.NoError(t, err)
	assert.Equal(t, "eu", p.Code)
	assert.Equal(t, 100, p.VelocityCap)
	assert.Equal(t, 699, p.FrameworkCeilings["eu-ai-act"])

	// Everything unset keeps the production defaults.
	assert.Equal(t, 72*time.Hour, p.Lifecycle.OrgGracePeriod)
	assert.Equal(t, 15*time.Minute, p.Lifecycle.OperationTTL)
	assert.InDelta(t, 0.6, p.Consensus.RequiredAgreement, 1e-9)
	assert.Equal(t, time.Hour, p.Detector.Window)

	caps := p.CeilingOverrides()
	assert.Equal(t, 699, caps[contracts.FrameworkEUAIAct])
}

func TestLoadProfileMissingFile(t *testing.T) {
	_, err := LoadProfile(t.TempDir(), "ghost")
	assert.Error(t, err)
}

func TestLoadProfileRejectsUnsafeValues(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "bad", `
code: bad
velocity_cap: 0
`)
	_, err := LoadProfile(dir, "bad")
	assert.Error(t, err, "a zero velocity cap would disable rate protection")

	writeProfile(t, dir, "worse", `
code: worse
velocity_cap: 150
framework_ceilings:
  custom: 1500
`)
	_, err = LoadProfile(dir, "worse")
	assert.Error(t, err)
}

func TestLoadAllProfiles(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "eu", "code: eu\nvelocity_cap: 100\n")
	writeProfile(t, dir, "us", "code: us\nvelocity_cap: 200\n")

	profiles, err := LoadAllProfiles(dir)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, 100, profiles["eu"].VelocityCap)
	assert.Equal(t, 200, profiles["us"].VelocityCap)
}

func TestDefaultProfileIsValid(t *testing.T) {
	require.NoError(t, DefaultProfile().Validate())
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("COGNIGATE_DB", "/tmp/test.db")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("COGNIGATE_EVENT_STREAM", "")

	cfg := Load()
	assert.Equal(t, "/tmp/test.db", cfg.DatabasePath)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "cognigate:events", cfg.EventStream, "stream falls back to the default")
}
