package batch

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/h2non/filetype"
	"github.com/vfaronov/httpheader"
	"golang.org/x/sync/errgroup"

	"github.com/pagepack/pagepack/internal/engine/retry"
	"github.com/pagepack/pagepack/internal/engine/types"
	"github.com/pagepack/pagepack/internal/utils"
)

// ErrUnexpectedContent is returned for a 2xx page whose body is clearly not
// an image, such as an HTML challenge page.
var ErrUnexpectedContent = errors.New("unexpected content for page")

// PageFetcher performs one request with retries. *retry.Fetcher satisfies it.
type PageFetcher interface {
	Fetch(ctx context.Context, url string, opts retry.RequestOptions, p retry.Policy) retry.Outcome
}

// PageError records why a single page was dropped.
type PageError struct {
	Index int
	URL   string
	Err   error
}

func (e PageError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Index+1, e.Err)
}

func (e PageError) Unwrap() error { return e.Err }

// Result of a FetchAll call.
type Result struct {
	Pages     []types.Page // Successful pages sorted by Index
	Failures  int          // Pages that failed terminally
	Errors    []PageError  // One entry per failure, in page order
	Attempted int          // Pages whose fetch finished, successful or not
	Cancelled bool         // A cancel check stopped the batch early
}

// Fetcher pulls the pages of one item in fixed windows.
type Fetcher struct {
	pages  PageFetcher
	policy retry.Policy
	header http.Header
}

// New creates a batch Fetcher. header is sent with every page request and may be nil.
func New(pages PageFetcher, policy retry.Policy, header http.Header) *Fetcher {
	return &Fetcher{pages: pages, policy: policy, header: header}
}

// FetchAll fetches pages in windows of limit, waiting for each window to
// finish before starting the next.
//
// cancelled is checked before every window; once it reports true no further
// window starts, but the window already in flight completes and its pages are
// kept. onProgress is called once per window, on the calling goroutine, with
// the cumulative number of attempted pages. A failing page never aborts the
// batch.
func (f *Fetcher) FetchAll(ctx context.Context, pages []types.PageDescriptor, limit int, cancelled func() bool, onProgress func(attempted, total int)) Result {
	if limit <= 0 {
		limit = types.DefaultConcurrency
	}
	total := len(pages)
	res := Result{Pages: make([]types.Page, 0, total)}

	for start := 0; start < total; start += limit {
		if (cancelled != nil && cancelled()) || ctx.Err() != nil {
			res.Cancelled = true
			break
		}

		end := min(start+limit, total)
		window := pages[start:end]

		// Each goroutine owns one slot, so no locking is needed.
		slots := make([]pageResult, len(window))
		var g errgroup.Group
		g.SetLimit(limit)
		for i, desc := range window {
			g.Go(func() error {
				page, err := f.fetchPage(ctx, desc)
				slots[i] = pageResult{page: page, err: err}
				return nil
			})
		}
		_ = g.Wait()

		for i, slot := range slots {
			if slot.err != nil {
				res.Failures++
				res.Errors = append(res.Errors, PageError{Index: window[i].Index, URL: window[i].URL, Err: slot.err})
				utils.Debug("Batch: page %d failed: %v", window[i].Number(), slot.err)
				continue
			}
			res.Pages = append(res.Pages, slot.page)
		}

		res.Attempted += len(window)
		if onProgress != nil {
			onProgress(res.Attempted, total)
		}
	}

	sortPages(res.Pages)
	return res
}

type pageResult struct {
	page types.Page
	err  error
}

func (f *Fetcher) fetchPage(ctx context.Context, desc types.PageDescriptor) (types.Page, error) {
	out := f.pages.Fetch(ctx, desc.URL, retry.RequestOptions{Header: f.header, MaxBytes: types.MaxPageBytes}, f.policy)

	switch o := out.(type) {
	case retry.Success:
		if !o.OK() {
			return types.Page{}, &retry.HTTPError{Status: o.Status, URL: desc.URL}
		}
		return classify(desc, o.Header, o.Body)
	case retry.TerminalFailure:
		return types.Page{}, o
	default:
		return types.Page{}, fmt.Errorf("unexpected outcome %T", out)
	}
}

// classify decides the stored extension. Sniffed bytes win over the
// Content-Type header, which wins over the extension the supplier expected.
func classify(desc types.PageDescriptor, header http.Header, body []byte) (types.Page, error) {
	page := types.Page{Index: desc.Index, Ext: desc.Ext, Data: body}
	mtype, _ := httpheader.ContentType(header)

	if kind, err := filetype.Match(body); err == nil && kind != filetype.Unknown {
		if kind.MIME.Type != "image" {
			return types.Page{}, fmt.Errorf("%w: body is %s", ErrUnexpectedContent, kind.MIME.Value)
		}
		page.Ext = kind.Extension
		page.ContentType = kind.MIME.Value
		return page, nil
	}

	switch {
	case strings.HasPrefix(mtype, "image/"):
		if ext := extForMIME(mtype); ext != "" {
			page.Ext = ext
		}
		page.ContentType = mtype
	case mtype == "text/html", mtype == "application/json", strings.HasPrefix(mtype, "text/"):
		return types.Page{}, fmt.Errorf("%w: %s", ErrUnexpectedContent, mtype)
	default:
		page.ContentType = "application/octet-stream"
	}

	if page.Ext == "" {
		page.Ext = "jpg"
	}
	return page, nil
}

func extForMIME(mtype string) string {
	switch mtype {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	default:
		return ""
	}
}

func sortPages(pages []types.Page) {
	slices.SortStableFunc(pages, func(a, b types.Page) int {
		return cmp.Compare(a.Index, b.Index)
	})
}
