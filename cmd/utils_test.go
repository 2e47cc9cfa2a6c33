package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagepack/pagepack/internal/config"
	"github.com/pagepack/pagepack/internal/gallery"
)

func TestReadIDLines(t *testing.T) {
	lines, err := readIDLines(strings.NewReader("123\n\n# comment\n  https://nhentai.net/g/456/  \n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"123", "https://nhentai.net/g/456/"}, lines)
}

func TestReadIDsFromFile_Missing(t *testing.T) {
	_, err := readIDsFromFile(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestCollectIDs(t *testing.T) {
	batch := filepath.Join(t.TempDir(), "ids.txt")
	require.NoError(t, os.WriteFile(batch, []byte("200\nhttps://nhentai.net/g/300/\n100\n"), 0o644))

	orig := readClipboard
	t.Cleanup(func() { readClipboard = orig })
	readClipboard = func() (string, error) { return "400 https://nhentai.net/g/100/", nil }

	ids, err := collectIDs([]string{"100", "500,600"}, batch, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"100", "500", "600", "200", "300", "400"}, ids)
}

func TestCollectIDs_InvalidArg(t *testing.T) {
	_, err := collectIDs([]string{"not-a-gallery"}, "", false)
	assert.ErrorIs(t, err, gallery.ErrInvalidID)
}

func TestCollectIDs_ClipboardError(t *testing.T) {
	orig := readClipboard
	t.Cleanup(func() { readClipboard = orig })
	readClipboard = func() (string, error) { return "", errors.New("no clipboard") }

	_, err := collectIDs(nil, "", true)
	assert.ErrorContains(t, err, "no clipboard")
}

func newFlagCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "test"}
	addRootFlags(c)
	require.NoError(t, c.ParseFlags(args))
	return c
}

func TestApplyFlagOverrides(t *testing.T) {
	s := config.DefaultSettings()
	c := newFlagCmd(t,
		"--output", "/tmp/out",
		"--format", "DIR",
		"--concurrency", "8",
		"--max-retries", "0",
		"--base-delay", "250ms",
		"--retry-status", "429,503",
	)
	require.NoError(t, applyFlagOverrides(c, s))

	assert.Equal(t, "/tmp/out", s.General.OutputDir)
	assert.Equal(t, config.FormatDir, s.General.OutputFormat)
	assert.Equal(t, 8, s.Connections.ConcurrentDownloads)
	assert.Equal(t, 0, s.Performance.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, s.Performance.BaseDelay)
	assert.Equal(t, []int{429, 503}, s.Performance.RetryableStatuses)
}

func TestApplyFlagOverrides_UnsetFlagsKeepSettings(t *testing.T) {
	s := config.DefaultSettings()
	want := *s
	require.NoError(t, applyFlagOverrides(newFlagCmd(t), s))
	assert.Equal(t, want.Performance, s.Performance)
	assert.Equal(t, want.General, s.General)
}

func TestApplyFlagOverrides_BadDelay(t *testing.T) {
	s := config.DefaultSettings()
	assert.Error(t, applyFlagOverrides(newFlagCmd(t, "--base-delay", "0s"), s))
}
