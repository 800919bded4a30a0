package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/lineagekit/pkg/core"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("state", "", "")
	fs.StringP("output", "o", "", "")
	fs.BoolP("verbose", "v", false, "")
	fs.Int("concurrency", 0, "")
	fs.String("addr", "", "")
	fs.StringSlice("cors-origin", nil, "")
	fs.String("default-dialect", "", "")
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultStateFile, cfg.StatePath)
	assert.Equal(t, OutputText, cfg.Output)
	assert.False(t, cfg.Verbose)
	assert.Equal(t, 0, cfg.Concurrency)
	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultRemote, cfg.Location.Remote)
	assert.False(t, cfg.Location.Enabled)
	assert.Empty(t, cfg.File)

	d, err := cfg.Dialect()
	require.NoError(t, err)
	assert.Equal(t, core.DialectNone, d)
}

func TestLoad_FileFound(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeConfig(t, dir, FileNameAlt, `
state_path: /var/lib/lineagekit/state.db
output: json
default_dialect: pg
server:
  addr: ":9090"
  cors_origins: ["https://catalog.example.com"]
location:
  enabled: true
connections:
  analytics_db:
    type: postgres
    dsn: postgres://etl:${LK_TEST_PASSWORD}@db:5432/analytics
`)
	t.Setenv("LK_TEST_PASSWORD", "s3cret")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, FileNameAlt, filepath.Base(cfg.File))
	assert.Equal(t, "/var/lib/lineagekit/state.db", cfg.StatePath)
	assert.Equal(t, OutputJSON, cfg.Output)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"https://catalog.example.com"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.Location.Enabled)
	assert.Equal(t, "postgres://etl:s3cret@db:5432/analytics", cfg.Connections["analytics_db"].DSN)

	d, err := cfg.Dialect()
	require.NoError(t, err)
	assert.Equal(t, core.DialectPostgres, d)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeConfig(t, dir, "custom.yaml", "output: json\nconcurrency: 2\nstate_path: from-file.db\n")
	writeConfig(t, dir, ".env", "LINEAGEKIT_CONCURRENCY=4\nLINEAGEKIT_SERVER__ADDR=:7070\n")
	t.Setenv("LINEAGEKIT_STATE_PATH", "from-env.db")
	// godotenv writes the process environment.
	t.Cleanup(func() {
		_ = os.Unsetenv("LINEAGEKIT_CONCURRENCY")
		_ = os.Unsetenv("LINEAGEKIT_SERVER__ADDR")
	})

	flags := testFlags()
	require.NoError(t, flags.Parse([]string{"--output", "text", "--addr", ":6060"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, OutputText, cfg.Output, "flag beats file")
	assert.Equal(t, "from-env.db", cfg.StatePath, "env beats file")
	assert.Equal(t, 4, cfg.Concurrency, ".env beats file")
	assert.Equal(t, ":6060", cfg.Server.Addr, "flag beats .env")
}

func TestLoad_UnsetFlagsDoNotOverride(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeConfig(t, dir, FileName, "output: json\n")

	flags := testFlags()
	require.NoError(t, flags.Parse(nil))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, OutputJSON, cfg.Output)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"bad output", "output: xml\n", `invalid output format "xml"`},
		{"negative concurrency", "concurrency: -1\n", "concurrency must not be negative"},
		{"bad dialect", "default_dialect: cobol\n", "invalid default_dialect"},
		{"incomplete connection", "connections:\n  a:\n    type: postgres\n", `connection "a"`},
		{"invalid yaml", "output: [\n", "error reading config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			t.Chdir(dir)
			path := writeConfig(t, dir, FileName, tt.content)

			_, err := Load(path, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("missing explicit file", func(t *testing.T) {
		t.Chdir(t.TempDir())
		_, err := Load("nope.yaml", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nope.yaml")
	})
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("LK_ONE", "value_one")
	t.Setenv("LK_EMPTY", "")

	tests := []struct {
		input    string
		expected string
	}{
		{"${LK_ONE}", "value_one"},
		{"a/${LK_ONE}/b", "a/value_one/b"},
		{"${LK_UNSET_VARIABLE}", "${LK_UNSET_VARIABLE}"},
		{"x${LK_EMPTY}y", "xy"},
		{"plain", "plain"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, expandEnvVars(tt.input))
		})
	}
}
