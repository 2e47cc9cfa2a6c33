package types

// PageDescriptor describes one fetchable page of a gallery.
type PageDescriptor struct {
	Index int    `json:"index"` // 0-based position inside the gallery
	URL   string `json:"url"`
	Ext   string `json:"ext"` // Expected extension, without the dot
}

// Number returns the 1-based page number used in file names.
func (p PageDescriptor) Number() int {
	return p.Index + 1
}

// Page is a successfully fetched page, tagged with its original index so it
// can be placed correctly regardless of completion order.
type Page struct {
	Index       int    `json:"index"`
	Ext         string `json:"ext"`          // Detected extension (falls back to the descriptor's)
	ContentType string `json:"content_type"` // As detected from the body or header
	Data        []byte `json:"-"`
}

// Gallery is the resolved page set of one item.
type Gallery struct {
	ID      string           `json:"id"`
	MediaID string           `json:"media_id"`
	Title   string           `json:"title"`
	Pages   []PageDescriptor `json:"pages"`
}

// HistoryEntry represents a completed gallery in the download history
type HistoryEntry struct {
	GalleryID     string `json:"gallery_id"`
	Title         string `json:"title"`
	PageCount     int    `json:"page_count"`
	FileSize      int64  `json:"file_size"`      // Bytes written to the archive
	DownloadedAt  int64  `json:"downloaded_at"`  // Unix milliseconds
	DownloadCount int    `json:"download_count"` // Times this gallery completed
}

// ItemStatus is the transient status of a queue item as reported to API/JSON consumers
type ItemStatus struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Status      string `json:"status"` // "pending", "downloading", "completed", "failed", "cancelled"
	Progress    int    `json:"progress"`
	CurrentPage int    `json:"current_page"`
	TotalPages  int    `json:"total_pages"`
	Error       string `json:"error,omitempty"`
	RetryCount  int    `json:"retry_count"`
}
