package code_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/SafeMPC/steamguard/cmd/code"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCode(t *testing.T, args ...string) (string, error) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "steamguard.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"shared_secret": "AAAAAAAAAAAAAAAAAAAAAAAAAAA=",
		"identity_secret": "AAAAAAAAAAAAAAAAAAAAAAAAAAA=",
		"account_id": "76561197960287930"
	}`), 0o600))
	t.Setenv("STEAM_CREDENTIALS_FILE", path)

	var out bytes.Buffer
	cmd := code.New()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestCodeAt(t *testing.T) {
	out, err := runCode(t, "--at", "1700000000")
	require.NoError(t, err)
	assert.Equal(t, "THTN4\n", out)

	out, err = runCode(t, "--at", "1700000029")
	require.NoError(t, err)
	assert.Equal(t, "NVRD8\n", out)
}

func TestCodeVerbose(t *testing.T) {
	out, err := runCode(t, "--at", "1700000000", "-v")
	require.NoError(t, err)
	assert.Contains(t, out, "THTN4 (valid ")
}

func TestCodeMissingCredentials(t *testing.T) {
	t.Setenv("STEAM_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "missing.json"))

	cmd := code.New()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	assert.Error(t, cmd.Execute())
}
