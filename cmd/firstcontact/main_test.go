package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firstcontact/internal/api"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, k := range []string{"PORT", "DELAY_MIN", "DELAY_MAX", "MAX_PER_SESSION", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(k, "")
	}
	t.Setenv("USER_DATA_DIR", t.TempDir())

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, api.Version+"\n", out)
}

func TestVersionFlag(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, api.Version+"\n", out)
}

func TestRunDryRun(t *testing.T) {
	recipients := writeTemp(t, "r.csv", "username,name\nalice,Alice\nbob,Bob\n")
	tmpl := writeTemp(t, "m.tmpl", "Hi {{.Name}}")

	_, err := execute(t, "run", "--recipients", recipients, "--template", tmpl, "--dry-run")
	assert.NoError(t, err)
}

func TestRunMissingRecipients(t *testing.T) {
	tmpl := writeTemp(t, "m.tmpl", "Hi")
	_, err := execute(t, "run", "--recipients", filepath.Join(t.TempDir(), "nope.csv"), "--template", tmpl, "--dry-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse recipients")
}

func TestRunBadTemplate(t *testing.T) {
	recipients := writeTemp(t, "r.csv", "username\nalice\n")
	tmpl := writeTemp(t, "m.tmpl", "Hi {{.Name")
	_, err := execute(t, "run", "--recipients", recipients, "--template", tmpl, "--dry-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load template")
}

func TestInvalidConfigFile(t *testing.T) {
	cfg := writeTemp(t, "config.yaml", "session:\n  delay_min_ms: 10\n  delay_max_ms: 5\n")
	_, err := execute(t, "--config", cfg, "version")
	require.NoError(t, err, "version skips config loading")

	_, err = execute(t, "--config", cfg, "run", "--dry-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}
