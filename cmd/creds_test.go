package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credkeep/cli/internal/creds"
)

// executeCommand executes the root command with args and captures stdout
// and stderr.
func executeCommand(t *testing.T, args ...string) (output string, err error) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stdout = w
	os.Stderr = w

	outC := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		outC <- buf.String()
	}()

	defer func() {
		w.Close()
		os.Stdout = oldStdout
		os.Stderr = oldStderr
		output = <-outC
	}()

	rootCmd.SetArgs(args)
	err = rootCmd.Execute()
	return output, err
}

func validKeyJSON(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"type":           "service_account",
		"project_id":     "p1",
		"private_key_id": "k1",
		"private_key":    "pk",
		"client_email":   "e@x.iam.gserviceaccount.com",
		"client_id":      "c1",
		"auth_uri":       "a",
		"token_uri":      "t",
	})
	require.NoError(t, err)
	return data
}

func TestVersionCommand(t *testing.T) {
	output, err := executeCommand(t, "version")
	assert.NoError(t, err)
	assert.Contains(t, output, "Credkeep CLI v")
}

func TestCredsCheck(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.json")
	require.NoError(t, os.WriteFile(valid, validKeyJSON(t), 0600))

	invalid := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`{"type":"user"}`), 0600))

	storePath := filepath.Join(dir, creds.FileName)

	output, err := executeCommand(t, "--credentials-file", storePath, "creds", "check", "--file", valid)
	assert.NoError(t, err)
	assert.Contains(t, output, "valid service-account key")

	_, err = executeCommand(t, "--credentials-file", storePath, "creds", "check", "--file", invalid)
	assert.Error(t, err)
}

func TestCredsSetStatusPathClear(t *testing.T) {
	dir := t.TempDir()

	keyFile := filepath.Join(dir, "key.json")
	require.NoError(t, os.WriteFile(keyFile, validKeyJSON(t), 0600))

	storePath := filepath.Join(dir, creds.FileName)

	output, err := executeCommand(t, "--credentials-file", storePath, "creds", "set", "--file", keyFile)
	assert.NoError(t, err)
	assert.Contains(t, output, "Credentials saved to "+storePath)
	assert.FileExists(t, storePath)

	output, err = executeCommand(t, "--credentials-file", storePath, "creds", "status")
	assert.NoError(t, err)
	assert.Contains(t, output, "p1")
	assert.Contains(t, output, "e@x.iam.gserviceaccount.com")

	output, err = executeCommand(t, "--credentials-file", storePath, "creds", "path")
	assert.NoError(t, err)
	assert.Contains(t, output, storePath)

	output, err = executeCommand(t, "--credentials-file", storePath, "creds", "clear")
	assert.NoError(t, err)
	assert.Contains(t, output, "Credentials removed")
	assert.NoFileExists(t, storePath)

	_, err = executeCommand(t, "--credentials-file", storePath, "creds", "path")
	assert.Error(t, err)
}

func TestCredsSet_RejectsInvalid(t *testing.T) {
	dir := t.TempDir()

	keyFile := filepath.Join(dir, "key.json")
	require.NoError(t, os.WriteFile(keyFile, []byte(`{"type":"user"}`), 0600))

	storePath := filepath.Join(dir, creds.FileName)

	_, err := executeCommand(t, "--credentials-file", storePath, "creds", "set", "--file", keyFile)
	assert.Error(t, err)
	assert.NoFileExists(t, storePath)
}

func TestCredsShow(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, creds.FileName)
	require.NoError(t, os.WriteFile(storePath, validKeyJSON(t), 0600))

	output, err := executeCommand(t, "--credentials-file", storePath, "creds", "show")
	assert.NoError(t, err)
	assert.Contains(t, output, `"project_id": "p1"`)

	output, err = executeCommand(t, "--credentials-file", storePath, "creds", "show", "-o", "yaml")
	assert.NoError(t, err)
	assert.Contains(t, output, "project_id: p1")
}
