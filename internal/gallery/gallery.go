package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/vfaronov/httpheader"

	"github.com/pagepack/pagepack/internal/engine/retry"
	"github.com/pagepack/pagepack/internal/engine/types"
	"github.com/pagepack/pagepack/internal/utils"
)

var (
	ErrNotFound  = errors.New("gallery not found")
	ErrInvalidID = errors.New("invalid gallery id")
)

// Fetcher performs one request with retries. *retry.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts retry.RequestOptions, p retry.Policy) retry.Outcome
}

// Client resolves gallery ids into ordered page descriptors.
type Client struct {
	fetcher   Fetcher
	policy    retry.Policy
	apiBase   string
	imageBase func(host int) string
	hosts     int
	pickHost  func(n int) int // returns [0,n)
}

// Option configures a Client.
type Option func(*Client)

// WithImageBase overrides how the base URL of image host N (1-based) is built.
func WithImageBase(fn func(host int) string) Option {
	return func(c *Client) { c.imageBase = fn }
}

// WithHostPicker sets the source used to spread pages over image hosts.
func WithHostPicker(fn func(n int) int) Option {
	return func(c *Client) { c.pickHost = fn }
}

// NewClient creates a metadata client.
func NewClient(f Fetcher, rc *types.RuntimeConfig, opts ...Option) *Client {
	domain := rc.GetImageDomain()
	c := &Client{
		fetcher: f,
		policy:  retry.PolicyFromConfig(rc),
		apiBase: strings.TrimRight(rc.GetAPIBaseURL(), "/"),
		imageBase: func(host int) string {
			return fmt.Sprintf("https://i%d.%s", host, domain)
		},
		hosts:    rc.GetImageHosts(),
		pickHost: rand.IntN,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiGallery struct {
	MediaID string `json:"media_id"`
	Title   struct {
		English  string `json:"english"`
		Japanese string `json:"japanese"`
		Pretty   string `json:"pretty"`
	} `json:"title"`
	Images struct {
		Pages []struct {
			T string `json:"t"`
		} `json:"pages"`
	} `json:"images"`
}

// Pages fetches the metadata of gallery id and builds one descriptor per page.
func (c *Client) Pages(ctx context.Context, id string) (types.Gallery, error) {
	url := fmt.Sprintf("%s/gallery/%s", c.apiBase, id)
	utils.Debug("Gallery: fetching metadata %s", url)

	out := c.fetcher.Fetch(ctx, url, retry.RequestOptions{
		Header:   http.Header{"Accept": []string{"application/json"}},
		MaxBytes: types.MaxMetadataBytes,
	}, c.policy)

	var body []byte
	switch o := out.(type) {
	case retry.Success:
		if o.Status == http.StatusNotFound {
			return types.Gallery{}, fmt.Errorf("%w: %s: %w", ErrNotFound, id, &retry.HTTPError{Status: o.Status, URL: url})
		}
		if !o.OK() {
			return types.Gallery{}, &retry.HTTPError{Status: o.Status, URL: url}
		}
		if mtype, _ := httpheader.ContentType(o.Header); mtype != "" && mtype != "application/json" && !strings.HasSuffix(mtype, "+json") {
			return types.Gallery{}, fmt.Errorf("gallery %s: unexpected content type %s", id, mtype)
		}
		body = o.Body
	case retry.TerminalFailure:
		return types.Gallery{}, o
	default:
		return types.Gallery{}, fmt.Errorf("gallery %s: unexpected outcome %T", id, out)
	}

	var doc apiGallery
	if err := json.Unmarshal(body, &doc); err != nil {
		return types.Gallery{}, fmt.Errorf("gallery %s: decode metadata: %w", id, err)
	}
	if doc.MediaID == "" {
		return types.Gallery{}, fmt.Errorf("gallery %s: metadata has no media_id", id)
	}

	title := doc.Title.Pretty
	if title == "" {
		title = doc.Title.English
	}
	if title == "" {
		title = "Gallery " + id
	}

	g := types.Gallery{
		ID:      id,
		MediaID: doc.MediaID,
		Title:   SanitizeTitle(title, types.DefaultTitleRunes),
		Pages:   make([]types.PageDescriptor, len(doc.Images.Pages)),
	}
	for i, p := range doc.Images.Pages {
		ext := ExtForType(p.T)
		host := c.pickHost(c.hosts) + 1
		g.Pages[i] = types.PageDescriptor{
			Index: i,
			URL:   fmt.Sprintf("%s/galleries/%s/%d.%s", c.imageBase(host), doc.MediaID, i+1, ext),
			Ext:   ext,
		}
	}
	return g, nil
}

// ExtForType maps the API's one-letter page type to a file extension.
func ExtForType(t string) string {
	switch t {
	case "p":
		return "png"
	case "g":
		return "gif"
	case "w":
		return "webp"
	default:
		return "jpg"
	}
}

var unsafeChars = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", `"`, "_", "/", "_",
	`\`, "_", "|", "_", "?", "_", "*", "_",
)

// SanitizeTitle replaces characters that are invalid in file names and cuts
// the result to maxRunes.
func SanitizeTitle(title string, maxRunes int) string {
	s := unsafeChars.Replace(title)
	if maxRunes > 0 && utf8.RuneCountInString(s) > maxRunes {
		s = string([]rune(s)[:maxRunes])
	}
	return s
}

var galleryPath = regexp.MustCompile(`/g/(\d+)`)

// ParseGalleryID accepts a numeric id or a URL containing /g/<id>.
func ParseGalleryID(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", ErrInvalidID
	}
	if isDigits(arg) {
		return arg, nil
	}
	if m := galleryPath.FindStringSubmatch(arg); m != nil {
		return m[1], nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidID, arg)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
