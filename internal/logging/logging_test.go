package logging

import (
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "denapp.log")
	closer := Setup(Options{File: path, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1})
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	log.Printf("Agenda sync completed: %d entries", 2)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Agenda sync completed: 2 entries")
}

func TestSetupWithoutFile(t *testing.T) {
	closer := Setup(Options{})
	assert.NoError(t, closer.Close())
}
