// Package linkpreview fetches title and Open Graph metadata for bookmark
// blocks. Starting a fetch for a key cancels the fetch already in flight for
// that key, and the superseded call returns ErrSuperseded.
package linkpreview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrSuperseded is returned by a fetch that was replaced by a newer fetch for
// the same key before it completed.
var ErrSuperseded = errors.New("linkpreview: superseded by a newer request")

// Preview is the metadata extracted from a page.
type Preview struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	SiteName    string `json:"siteName,omitempty"`
}

// Empty reports whether nothing was extracted.
func (p Preview) Empty() bool {
	return p.Title == "" && p.Description == "" && p.Image == "" && p.SiteName == ""
}

const (
	defaultMaxBytes  = 512 << 10
	defaultUserAgent = "kittpages-linkpreview/1.0"
)

type flight struct {
	seq    uint64
	cancel context.CancelFunc
}

// Fetcher fetches previews over HTTP.
type Fetcher struct {
	client    *http.Client
	maxBytes  int64
	userAgent string

	mu       sync.Mutex
	seq      uint64
	inflight map[string]flight
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient sets the HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithMaxBytes limits how much of a response body is read.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) { f.maxBytes = n }
}

// New creates a Fetcher. The default client times out after 10 seconds.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: 10 * time.Second},
		maxBytes:  defaultMaxBytes,
		userAgent: defaultUserAgent,
		inflight:  make(map[string]flight),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves the preview for rawURL. key identifies the requester,
// typically a block id.
func (f *Fetcher) Fetch(ctx context.Context, key, rawURL string) (Preview, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Preview{}, fmt.Errorf("linkpreview: invalid url %q", rawURL)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	seq := f.begin(key, cancel)

	p, err := f.fetch(ctx, u)

	if !f.finish(key, seq) {
		return Preview{}, ErrSuperseded
	}
	if err != nil {
		return Preview{}, err
	}
	return p, nil
}

// Cancel aborts the fetch in flight for key, if any.
func (f *Fetcher) Cancel(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fl, ok := f.inflight[key]; ok {
		fl.cancel()
		delete(f.inflight, key)
	}
}

// Pending returns the number of keys with a fetch in flight.
func (f *Fetcher) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inflight)
}

func (f *Fetcher) begin(key string, cancel context.CancelFunc) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if prev, ok := f.inflight[key]; ok {
		prev.cancel()
	}
	f.seq++
	f.inflight[key] = flight{seq: f.seq, cancel: cancel}
	return f.seq
}

// finish reports whether seq is still the current fetch for key.
func (f *Fetcher) finish(key string, seq uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.inflight[key]
	if !ok || cur.seq != seq {
		return false
	}
	delete(f.inflight, key)
	return true
}

func (f *Fetcher) fetch(ctx context.Context, u *url.URL) (Preview, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Preview{}, fmt.Errorf("linkpreview: build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return Preview{}, fmt.Errorf("linkpreview: fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Preview{}, fmt.Errorf("linkpreview: fetch %s: status %d", u, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return Preview{URL: u.String()}, nil
	}

	p := Parse(io.LimitReader(resp.Body, f.maxBytes), resp.Request.URL)
	return p, nil
}

// Parse extracts preview metadata from an HTML document. base resolves
// relative image URLs and may be nil.
func Parse(r io.Reader, base *url.URL) Preview {
	var p Preview
	if base != nil {
		p.URL = base.String()
	}
	var title, ogTitle, description, ogDescription string

	z := html.NewTokenizer(r)
	inTitle := false
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return finalize(p, title, ogTitle, description, ogDescription, base)
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Title:
				inTitle = tt == html.StartTagToken
			case atom.Meta:
				key, content := metaPair(tok)
				switch key {
				case "og:title":
					ogTitle = content
				case "og:description":
					ogDescription = content
				case "description":
					description = content
				case "og:image", "twitter:image":
					if p.Image == "" {
						p.Image = content
					}
				case "og:site_name":
					p.SiteName = content
				}
			case atom.Body:
				return finalize(p, title, ogTitle, description, ogDescription, base)
			}
		case html.EndTagToken:
			tok := z.Token()
			if tok.DataAtom == atom.Title {
				inTitle = false
			}
			if tok.DataAtom == atom.Head {
				return finalize(p, title, ogTitle, description, ogDescription, base)
			}
		case html.TextToken:
			if inTitle && title == "" {
				title = strings.TrimSpace(string(z.Text()))
			}
		}
	}
}

func metaPair(tok html.Token) (string, string) {
	var key, content string
	for _, a := range tok.Attr {
		switch strings.ToLower(a.Key) {
		case "property", "name":
			if key == "" {
				key = strings.ToLower(strings.TrimSpace(a.Val))
			}
		case "content":
			content = strings.TrimSpace(a.Val)
		}
	}
	return key, content
}

func finalize(p Preview, title, ogTitle, description, ogDescription string, base *url.URL) Preview {
	p.Title = firstNonEmpty(ogTitle, title)
	p.Description = firstNonEmpty(ogDescription, description)
	if p.Image != "" && base != nil {
		if ref, err := url.Parse(p.Image); err == nil {
			p.Image = base.ResolveReference(ref).String()
		}
	}
	if p.SiteName == "" && base != nil {
		p.SiteName = strings.TrimPrefix(base.Hostname(), "www.")
	}
	return p
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
