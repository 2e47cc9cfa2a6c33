// Package testutil provides testing utilities for pagepack.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// GalleryFixture is one gallery served by GalleryServer.
type GalleryFixture struct {
	ID        string
	MediaID   string
	English   string
	Japanese  string
	Pretty    string
	PageTypes []string // One of j, p, g, w per page
}

// GalleryServer is a scriptable HTTP server that mimics the gallery API and
// image hosts. Metadata lives under /api/gallery/<id>, images under
// /galleries/<media_id>/<n>.<ext>.
type GalleryServer struct {
	Server *httptest.Server

	// Configuration
	Latency    time.Duration // Artificial latency per request
	RetryAfter string        // Retry-After value sent with scripted error statuses

	// Tracking
	RequestCount   atomic.Int64
	ActiveRequests atomic.Int64
	PeakActive     atomic.Int64
	FailedRequests atomic.Int64

	mu        sync.Mutex
	galleries map[string]GalleryFixture
	scripts   map[string][]int
	bodies    map[string]scriptedBody
	hits      map[string]int

	onRequest     func(r *http.Request)
	CustomHandler http.HandlerFunc
}

type scriptedBody struct {
	contentType string
	data        []byte
}

// GalleryServerOption is a function that configures a GalleryServer.
type GalleryServerOption func(*GalleryServer)

// WithGallery registers a gallery.
func WithGallery(g GalleryFixture) GalleryServerOption {
	return func(s *GalleryServer) {
		s.galleries[g.ID] = g
	}
}

// WithLatency adds artificial latency per request.
func WithLatency(d time.Duration) GalleryServerOption {
	return func(s *GalleryServer) {
		s.Latency = d
	}
}

// WithStatusScript makes the next len(statuses) requests to path answer with
// those statuses in order. A zero entry means "serve normally".
func WithStatusScript(path string, statuses ...int) GalleryServerOption {
	return func(s *GalleryServer) {
		s.scripts[path] = append(s.scripts[path], statuses...)
	}
}

// WithRetryAfter sets the Retry-After header sent with scripted errors.
func WithRetryAfter(value string) GalleryServerOption {
	return func(s *GalleryServer) {
		s.RetryAfter = value
	}
}

// WithBody overrides the body and Content-Type served for path.
func WithBody(path, contentType string, data []byte) GalleryServerOption {
	return func(s *GalleryServer) {
		s.bodies[path] = scriptedBody{contentType: contentType, data: data}
	}
}

// WithRequestHook runs fn at the start of every request, before latency.
func WithRequestHook(fn func(r *http.Request)) GalleryServerOption {
	return func(s *GalleryServer) {
		s.onRequest = fn
	}
}

// WithHandler sets a custom request handler.
func WithHandler(h http.HandlerFunc) GalleryServerOption {
	return func(s *GalleryServer) {
		s.CustomHandler = h
	}
}

func newGalleryServer(opts []GalleryServerOption) *GalleryServer {
	s := &GalleryServer{
		galleries: make(map[string]GalleryFixture),
		scripts:   make(map[string][]int),
		bodies:    make(map[string]scriptedBody),
		hits:      make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewGalleryServer creates a new gallery server with the given options.
func NewGalleryServer(opts ...GalleryServerOption) *GalleryServer {
	s := newGalleryServer(opts)
	s.Server = NewHTTPServer(http.HandlerFunc(s.handleRequest))
	return s
}

// NewGalleryServerT creates a new gallery server and skips the test if binding fails.
func NewGalleryServerT(t *testing.T, opts ...GalleryServerOption) *GalleryServer {
	t.Helper()
	s := newGalleryServer(opts)
	s.Server = NewHTTPServerT(t, http.HandlerFunc(s.handleRequest))
	t.Cleanup(s.Close)
	return s
}

// URL returns the server's URL.
func (s *GalleryServer) URL() string {
	return s.Server.URL
}

// APIBaseURL returns the base URL to configure as the metadata API.
func (s *GalleryServer) APIBaseURL() string {
	return s.Server.URL + "/api"
}

// ImageBase ignores the host number; every image host is this server.
func (s *GalleryServer) ImageBase(int) string {
	return s.Server.URL
}

// Close shuts down the server.
func (s *GalleryServer) Close() {
	if s.Server != nil {
		s.Server.Close()
	}
}

// Hits returns how many requests reached path.
func (s *GalleryServer) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// Reset clears all tracking counters.
func (s *GalleryServer) Reset() {
	s.RequestCount.Store(0)
	s.ActiveRequests.Store(0)
	s.PeakActive.Store(0)
	s.FailedRequests.Store(0)
	s.mu.Lock()
	s.hits = make(map[string]int)
	s.mu.Unlock()
}

// GalleryPath returns the metadata path of a gallery.
func GalleryPath(id string) string {
	return "/api/gallery/" + id
}

// PagePath returns the image path of a 1-based page.
func PagePath(mediaID string, page int, ext string) string {
	return fmt.Sprintf("/galleries/%s/%d.%s", mediaID, page, ext)
}

func (s *GalleryServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	if s.onRequest != nil {
		s.onRequest(r)
	}
	if s.CustomHandler != nil {
		s.CustomHandler(w, r)
		return
	}

	s.RequestCount.Add(1)
	active := s.ActiveRequests.Add(1)
	defer s.ActiveRequests.Add(-1)
	for {
		peak := s.PeakActive.Load()
		if active <= peak || s.PeakActive.CompareAndSwap(peak, active) {
			break
		}
	}

	s.mu.Lock()
	s.hits[r.URL.Path]++
	status := 0
	if script := s.scripts[r.URL.Path]; len(script) > 0 {
		status = script[0]
		s.scripts[r.URL.Path] = script[1:]
	}
	override, hasOverride := s.bodies[r.URL.Path]
	s.mu.Unlock()

	if s.Latency > 0 {
		select {
		case <-time.After(s.Latency):
		case <-r.Context().Done():
			return
		}
	}

	if status != 0 {
		s.FailedRequests.Add(1)
		if s.RetryAfter != "" {
			w.Header().Set("Retry-After", s.RetryAfter)
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	if hasOverride {
		w.Header().Set("Content-Type", override.contentType)
		_, _ = w.Write(override.data)
		return
	}

	switch {
	case strings.HasPrefix(r.URL.Path, "/api/gallery/"):
		s.serveGallery(w, strings.TrimPrefix(r.URL.Path, "/api/gallery/"))
	case strings.HasPrefix(r.URL.Path, "/galleries/"):
		s.servePage(w, strings.TrimPrefix(r.URL.Path, "/galleries/"))
	default:
		http.NotFound(w, r)
	}
}

func (s *GalleryServer) serveGallery(w http.ResponseWriter, id string) {
	s.mu.Lock()
	g, ok := s.galleries[id]
	s.mu.Unlock()
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"does not exist"}`))
		return
	}

	type page struct {
		T string `json:"t"`
		W int    `json:"w"`
		H int    `json:"h"`
	}
	pages := make([]page, len(g.PageTypes))
	for i, t := range g.PageTypes {
		pages[i] = page{T: t, W: 1280, H: 1810}
	}

	numericID, _ := strconv.Atoi(g.ID)
	doc := map[string]any{
		"id":       numericID,
		"media_id": g.MediaID,
		"title": map[string]string{
			"english":  g.English,
			"japanese": g.Japanese,
			"pretty":   g.Pretty,
		},
		"images": map[string]any{
			"pages": pages,
		},
		"num_pages": len(pages),
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(doc)
}

func (s *GalleryServer) servePage(w http.ResponseWriter, rest string) {
	// rest is <media_id>/<n>.<ext>
	mediaID, file, ok := strings.Cut(rest, "/")
	if !ok {
		http.Error(w, "bad path", http.StatusNotFound)
		return
	}
	name, ext, ok := strings.Cut(file, ".")
	n, err := strconv.Atoi(name)
	if !ok || err != nil || n < 1 {
		http.Error(w, "bad page", http.StatusNotFound)
		return
	}

	s.mu.Lock()
	var found bool
	for _, g := range s.galleries {
		if g.MediaID == mediaID && n <= len(g.PageTypes) {
			found = true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		http.Error(w, "page not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", ContentTypeFor(ext))
	_, _ = w.Write(ImageBytes(ext, n))
}

// ContentTypeFor returns the MIME type served for an extension.
func ContentTypeFor(ext string) string {
	switch ext {
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// ImageBytes returns a small body whose magic number matches ext, followed
// by a page-specific suffix so bodies differ between pages.
func ImageBytes(ext string, page int) []byte {
	var magic []byte
	switch ext {
	case "png":
		magic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n', 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}
	case "gif":
		magic = []byte("GIF89a")
	case "webp":
		magic = []byte{'R', 'I', 'F', 'F', 0x24, 0, 0, 0, 'W', 'E', 'B', 'P', 'V', 'P', '8', ' '}
	default:
		magic = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F', 'I', 'F', 0}
	}
	return append(magic, []byte(fmt.Sprintf("page-%03d", page))...)
}
