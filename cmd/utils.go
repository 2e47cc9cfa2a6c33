package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/pagepack/pagepack/internal/config"
	"github.com/pagepack/pagepack/internal/gallery"
	"github.com/pagepack/pagepack/internal/utils"
)

// readClipboard is swapped out in tests; CI machines have no clipboard.
var readClipboard = clipboard.ReadAll

// readIDsFromFile reads gallery ids or URLs from a file, one per line.
// Blank lines and lines starting with # are skipped.
func readIDsFromFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()
	return readIDLines(file)
}

func readIDLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)

	// Long URLs with query strings
	const maxCapacity = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxCapacity)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return lines, nil
}

// collectIDs gathers gallery ids from args, the batch file and the
// clipboard, in that order. Duplicates are dropped; an argument that is
// neither an id nor a gallery URL is an error.
func collectIDs(args []string, batchFile string, fromClipboard bool) ([]string, error) {
	raw := append([]string(nil), args...)

	if batchFile != "" {
		lines, err := readIDsFromFile(batchFile)
		if err != nil {
			return nil, fmt.Errorf("batch file: %w", err)
		}
		raw = append(raw, lines...)
	}

	if fromClipboard {
		text, err := readClipboard()
		if err != nil {
			return nil, fmt.Errorf("read clipboard: %w", err)
		}
		raw = append(raw, strings.Fields(text)...)
	}

	seen := make(map[string]bool, len(raw))
	ids := make([]string, 0, len(raw))
	for _, arg := range raw {
		// Commas are accepted as separators inside one argument
		for _, part := range strings.Split(arg, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := gallery.ParseGalleryID(part)
			if err != nil {
				return nil, err
			}
			if seen[id] {
				utils.Debug("Skipping duplicate id %s", id)
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// applyFlagOverrides copies explicitly set flags onto the loaded settings.
func applyFlagOverrides(cmd *cobra.Command, s *config.Settings) error {
	flags := cmd.Flags()

	if flags.Changed("output") {
		s.General.OutputDir, _ = flags.GetString("output")
	}
	if flags.Changed("format") {
		format, _ := flags.GetString("format")
		s.General.OutputFormat = strings.ToLower(format)
	}
	if flags.Changed("concurrency") {
		s.Connections.ConcurrentDownloads, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("max-retries") {
		s.Performance.MaxRetries, _ = flags.GetInt("max-retries")
	}
	if flags.Changed("base-delay") {
		d, _ := flags.GetDuration("base-delay")
		if d <= 0 {
			return fmt.Errorf("--base-delay must be positive, got %s", d)
		}
		s.Performance.BaseDelay = d
	}
	if flags.Changed("retry-status") {
		s.Performance.RetryableStatuses, _ = flags.GetIntSlice("retry-status")
	}
	if s.General.OutputDir == "" {
		s.General.OutputDir = "."
	}
	return nil
}
