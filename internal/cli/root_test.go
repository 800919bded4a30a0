package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	root := NewRootCmd()
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetArgs(append([]string{}, args...))
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestRoot_ConfigFileAndFlags(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lineagekit.yaml"), []byte(`
output: json
default_dialect: snowflake
state_path: state/lineage.db
`), 0o600))

	out, _, err := runRoot(t, "parse", "INSERT INTO t SELECT * FROM s")
	require.NoError(t, err)

	var fact struct {
		InTables  []struct{ Name string } `json:"in_tables"`
		OutTables []struct{ Name string } `json:"out_tables"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &fact))
	require.Len(t, fact.InTables, 1)
	assert.Equal(t, "S", fact.InTables[0].Name)

	out, _, err = runRoot(t, "--output", "text", "--default-dialect", "postgres", "parse", "SELECT * FROM S")
	require.NoError(t, err)
	assert.Contains(t, out, " s ")

	_, err = os.Stat(filepath.Join(dir, "state"))
	assert.True(t, os.IsNotExist(err), "parse does not open the state database")

	out, _, err = runRoot(t, "history", "w.t")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
	assert.FileExists(t, filepath.Join(dir, "state", "lineage.db"))
}

func TestRoot_InvalidConfig(t *testing.T) {
	t.Chdir(t.TempDir())

	_, _, err := runRoot(t, "--output", "xml", "parse", "SELECT 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid output format "xml"`)
}

func TestRoot_VerboseLogsToStderr(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lineagekit.yml"), []byte("output: text\n"), 0o600))

	_, errOut, err := runRoot(t, "-v", "parse", "SELECT 1")
	require.NoError(t, err)
	assert.Contains(t, errOut, "using config file")
}

func TestRoot_Version(t *testing.T) {
	out, _, err := runRoot(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "lineagekit "+Version)
}

func TestCompletionCommand(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			out, _, err := runRoot(t, "completion", shell)
			require.NoError(t, err)
			assert.NotEmpty(t, out)
		})
	}

	_, _, err := runRoot(t, "completion", "tcsh")
	assert.Error(t, err)
}
