package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"telemed/internal/infrastructure/archive"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runArchive(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newArchiveCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestArchiveCommand(t *testing.T) {
	dir := t.TempDir()
	cfgFile = filepath.Join(dir, "config.yaml")
	archiveDir := filepath.Join(dir, "archive")
	require.NoError(t, os.WriteFile(cfgFile, []byte("archive:\n  directory: "+archiveDir+"\n"), 0o600))

	name := strings.TrimSpace(runArchive(t, "create"))
	assert.True(t, strings.HasPrefix(name, "backup-"), name)
	assert.FileExists(t, filepath.Join(archiveDir, name))

	listed := strings.Fields(runArchive(t, "list"))
	assert.Equal(t, []string{name}, listed)

	var result archive.RestoreResult
	require.NoError(t, json.Unmarshal([]byte(runArchive(t, "restore", name, "--overwrite")), &result))
	assert.Empty(t, result.Restored)

	cmd := newArchiveCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"restore", "backup-missing.json"})
	assert.Error(t, cmd.Execute())
}
