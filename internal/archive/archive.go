package archive

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pagepack/pagepack/internal/engine/types"
	"github.com/pagepack/pagepack/internal/gallery"
)

var (
	ErrClosed          = errors.New("archive is closed")
	ErrConcurrentWrite = errors.New("archive does not accept concurrent writes")
	ErrUnsafePath      = errors.New("entry path escapes the archive root")
	ErrDuplicateEntry  = errors.New("entry already written by another item")
)

// Sink receives page bodies. Put is called by one goroutine at a time.
type Sink interface {
	Put(itemID, relPath string, data []byte) error
}

// Archive is a Sink that tracks sizes and must be closed.
type Archive interface {
	Sink
	BytesWritten(itemID string) int64
	Path() string // Final location, empty when nothing was written
	Close() error
	Abort() error // Discard partial output
}

// Format selects the Archive implementation.
type Format string

const (
	FormatZip Format = "zip"
	FormatDir Format = "dir"
)

// Open creates the archive for one run under outputDir.
func Open(format Format, outputDir string, now time.Time) (Archive, error) {
	switch format {
	case FormatZip, "":
		return NewZipSink(filepath.Join(outputDir, BatchArchiveName(now)))
	case FormatDir:
		return NewDirSink(outputDir)
	default:
		return nil, fmt.Errorf("unknown archive format %q", format)
	}
}

// BatchArchiveName returns the file name of a run's master zip.
func BatchArchiveName(now time.Time) string {
	return "pagepack_batch_" + now.UTC().Format("2006-01-02T15-04-05") + ".zip"
}

// PageFileName returns the zero-padded file name of a page, e.g. 007.png.
func PageFileName(p types.Page) string {
	return fmt.Sprintf("%03d.%s", p.Index+1, p.Ext)
}

// Layout decides where an item's pages go inside the archive.
type Layout struct {
	Template   string // Supports {title} and {id}
	Subfolders bool
}

// Folder returns the folder for a gallery, or "" when subfolders are off.
func (l Layout) Folder(id, title string) string {
	if !l.Subfolders {
		return ""
	}
	tmpl := l.Template
	if tmpl == "" {
		tmpl = "{title}"
	}
	name := strings.NewReplacer("{title}", title, "{id}", id).Replace(tmpl)
	name = gallery.SanitizeTitle(name, types.DefaultTitleRunes)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		name = id
	}
	return name
}

// EntryPath joins the item folder and the page file name.
func (l Layout) EntryPath(id, title string, p types.Page) string {
	folder := l.Folder(id, title)
	if folder == "" {
		// Without subfolders, prefix with the id so galleries don't collide.
		return id + "_" + PageFileName(p)
	}
	return folder + "/" + PageFileName(p)
}

// cleanEntry normalizes a slash-separated relative path and rejects escapes.
func cleanEntry(rel string) (string, error) {
	rel = strings.ReplaceAll(rel, `\`, "/")
	cleaned := path.Clean("/" + rel)[1:]
	if cleaned == "" || strings.HasPrefix(rel, "/") || strings.Contains("/"+rel+"/", "/../") {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, rel)
	}
	return cleaned, nil
}
