package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestGalleryServer_ServesMetadata(t *testing.T) {
	s := NewGalleryServerT(t, WithGallery(GalleryFixture{
		ID: "123", MediaID: "m1", Pretty: "Pretty", English: "English", PageTypes: []string{"j", "p"},
	}))

	resp, body := get(t, s.APIBaseURL()+"/gallery/123")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc struct {
		MediaID string `json:"media_id"`
		Title   struct {
			Pretty string `json:"pretty"`
		} `json:"title"`
		Images struct {
			Pages []struct {
				T string `json:"t"`
			} `json:"pages"`
		} `json:"images"`
	}
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Equal(t, "m1", doc.MediaID)
	assert.Equal(t, "Pretty", doc.Title.Pretty)
	require.Len(t, doc.Images.Pages, 2)
	assert.Equal(t, "p", doc.Images.Pages[1].T)
}

func TestGalleryServer_UnknownGallery(t *testing.T) {
	s := NewGalleryServerT(t)
	resp, _ := get(t, s.APIBaseURL()+"/gallery/999")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGalleryServer_ServesPages(t *testing.T) {
	s := NewGalleryServerT(t, WithGallery(GalleryFixture{ID: "1", MediaID: "m", PageTypes: []string{"j", "p"}}))

	resp, body := get(t, s.URL()+PagePath("m", 2, "png"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, ImageBytes("png", 2), body)

	resp, _ = get(t, s.URL()+PagePath("m", 3, "jpg"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGalleryServer_StatusScript(t *testing.T) {
	path := PagePath("m", 1, "jpg")
	s := NewGalleryServerT(t,
		WithGallery(GalleryFixture{ID: "1", MediaID: "m", PageTypes: []string{"j"}}),
		WithStatusScript(path, 503, 429),
		WithRetryAfter("2"),
	)

	resp, _ := get(t, s.URL()+path)
	assert.Equal(t, 503, resp.StatusCode)
	assert.Equal(t, "2", resp.Header.Get("Retry-After"))

	resp, _ = get(t, s.URL()+path)
	assert.Equal(t, 429, resp.StatusCode)

	resp, _ = get(t, s.URL()+path)
	assert.Equal(t, 200, resp.StatusCode)

	assert.Equal(t, 3, s.Hits(path))
	assert.EqualValues(t, 2, s.FailedRequests.Load())

	s.Reset()
	assert.Equal(t, 0, s.Hits(path))
	assert.EqualValues(t, 0, s.RequestCount.Load())
}

func TestGalleryServer_BodyOverride(t *testing.T) {
	s := NewGalleryServerT(t, WithBody("/galleries/m/1.jpg", "text/html", []byte("<html>blocked</html>")))

	resp, body := get(t, s.URL()+"/galleries/m/1.jpg")
	assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))
	assert.Equal(t, "<html>blocked</html>", string(body))
}
