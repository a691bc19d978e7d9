package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayConfigured(t *testing.T) {
	assert.False(t, RelayConfigured(""))
	assert.False(t, RelayConfigured("   "))
	assert.False(t, RelayConfigured(RelayURLPlaceholder))
	assert.False(t, RelayConfigured("https://script.google.com/{{ID}}/exec"))
	assert.True(t, RelayConfigured("https://script.google.com/macros/s/abc/exec"))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a.json", "https://x/config.json", "b.json"},
		splitList([]string{"a.json, https://x/config.json", "", "b.json"}))
}

func TestReadSecret(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret")
	require.NoError(t, os.WriteFile(path, []byte("s3cr3t\n"), 0o600))

	t.Setenv("HUMANSTUDY_TEST_SECRET", "")
	t.Setenv("HUMANSTUDY_TEST_SECRET_FILE", path)
	readSecret("HUMANSTUDY_TEST_SECRET")
	assert.Equal(t, "s3cr3t", os.Getenv("HUMANSTUDY_TEST_SECRET"))

	t.Setenv("HUMANSTUDY_TEST_SECRET", "direct")
	readSecret("HUMANSTUDY_TEST_SECRET")
	assert.Equal(t, "direct", os.Getenv("HUMANSTUDY_TEST_SECRET"))
}
