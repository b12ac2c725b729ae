package offline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultAPIPrefix = "/api"

// Fetcher intercepts requests with a network-first, cache-fallback policy.
// Only same-origin GET requests outside the API prefix are cached; API
// calls and mutations always hit the network so user data is never stale.
type Fetcher struct {
	Base       *url.URL
	Store      Store
	Generation string

	// Manifest lists the asset paths precached during Install.
	// OfflinePath is the navigation fallback; it should be in Manifest.
	Manifest    []string
	OfflinePath string

	APIPrefix string
	Client    *http.Client
}

func NewFetcher(baseURL string, store Store, generation string) (*Fetcher, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("offline: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("offline: base url %q must be absolute", baseURL)
	}
	if generation == "" {
		return nil, fmt.Errorf("offline: generation tag required")
	}
	return &Fetcher{
		Base:       base,
		Store:      store,
		Generation: generation,
		APIPrefix:  defaultAPIPrefix,
		Client:     &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Install precaches the manifest. Best-effort: an asset that fails to
// fetch or store is logged and skipped, never fatal.
func (f *Fetcher) Install(ctx context.Context) {
	for _, path := range f.Manifest {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.Base.JoinPath(path).String(), nil)
		if err != nil {
			log.Printf("[WARN] precache %s: %v", path, err)
			continue
		}
		resp, err := f.client().Do(req)
		if err != nil {
			log.Printf("[WARN] precache %s: %v", path, err)
			continue
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil || resp.StatusCode != http.StatusOK {
			log.Printf("[WARN] precache %s: status=%d err=%v", path, resp.StatusCode, readErr)
			continue
		}
		if err := f.Store.Put(ctx, f.Generation, Entry{
			URL:    path,
			Status: resp.StatusCode,
			Header: resp.Header.Clone(),
			Body:   body,
		}); err != nil {
			log.Printf("[WARN] precache store %s: %v", path, err)
		}
	}
}

// Activate purges every generation whose tag differs from this build's,
// leaving at most one live generation.
func (f *Fetcher) Activate(ctx context.Context) error {
	gens, err := f.Store.Generations(ctx)
	if err != nil {
		return fmt.Errorf("offline: list generations: %w", err)
	}
	for _, g := range gens {
		if g == f.Generation {
			continue
		}
		if err := f.Store.DeleteGeneration(ctx, g); err != nil {
			return fmt.Errorf("offline: purge generation %s: %w", g, err)
		}
	}
	return nil
}

// Fetch applies the interception policy to one request.
func (f *Fetcher) Fetch(req *http.Request) (*http.Response, error) {
	if !f.cacheable(req) {
		return f.client().Do(req)
	}

	key := req.URL.RequestURI()

	resp, err := f.client().Do(req)
	if err == nil {
		if resp.StatusCode == http.StatusOK {
			return f.storeCopy(req, resp, key), nil
		}
		return resp, nil
	}

	// Network failed: fall back to the cache.
	entry, hit, lookupErr := f.Store.Get(req.Context(), f.Generation, key)
	if lookupErr != nil {
		log.Printf("[WARN] cache lookup %s: %v", key, lookupErr)
	}
	if hit {
		return synthesize(req, entry), nil
	}

	if isNavigation(req) && f.OfflinePath != "" {
		page, ok, pageErr := f.Store.Get(req.Context(), f.Generation, f.OfflinePath)
		if pageErr != nil {
			log.Printf("[WARN] offline page lookup: %v", pageErr)
		}
		if ok {
			return synthesize(req, page), nil
		}
	}

	// Nothing usable cached: the caller observes the network failure.
	return nil, err
}

func (f *Fetcher) cacheable(req *http.Request) bool {
	if req.Method != http.MethodGet {
		return false
	}
	if req.URL.Scheme != f.Base.Scheme || req.URL.Host != f.Base.Host {
		return false
	}
	return !strings.Contains(req.URL.Path, f.apiPrefix())
}

// storeCopy caches the response body without holding up the caller: the
// live response is returned immediately and the cache write runs in the
// background. A store failure is logged and never fails the fetch.
func (f *Fetcher) storeCopy(req *http.Request, resp *http.Response, key string) *http.Response {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		resp.Body = io.NopCloser(bytes.NewReader(nil))
		return resp
	}

	entry := Entry{
		URL:    key,
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
	}
	bg := context.WithoutCancel(req.Context())
	go func() {
		if putErr := f.Store.Put(bg, f.Generation, entry); putErr != nil {
			log.Printf("[WARN] cache store %s: %v", key, putErr)
		}
	}()

	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp
}

func (f *Fetcher) apiPrefix() string {
	if f.APIPrefix != "" {
		return f.APIPrefix
	}
	return defaultAPIPrefix
}

func (f *Fetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}

// isNavigation reports whether the request represents a full-page load.
func isNavigation(req *http.Request) bool {
	if req.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

func synthesize(req *http.Request, e Entry) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set("X-Served-From", "offline-cache")
	return &http.Response{
		Status:        http.StatusText(e.Status),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}
