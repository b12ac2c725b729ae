package offline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// flakyTransport serves from an httptest upstream until cut, then fails
// every request like an unplugged network would.
type flakyTransport struct {
	upstream http.RoundTripper
	down     bool
}

func (t *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.down {
		return nil, errors.New("dial tcp: network is unreachable")
	}
	return t.upstream.RoundTrip(req)
}

func newTestFetcher(t *testing.T, handler http.Handler) (*Fetcher, *flakyTransport, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)

	f, err := NewFetcher(srv.URL, NewMemoryStore(), "v1")
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	transport := &flakyTransport{upstream: http.DefaultTransport}
	f.Client = &http.Client{Transport: transport, Timeout: 5 * time.Second}
	return f, transport, srv.Close
}

func getReq(t *testing.T, f *Fetcher, path string, header http.Header) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.Base.JoinPath(path).String(), nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	return req
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

// waitCached blocks until the background cache write for key lands.
func waitCached(t *testing.T, f *Fetcher, key string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, hit, _ := f.Store.Get(context.Background(), f.Generation, key); hit {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("entry %s never cached", key)
}

func appHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/app.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		io.WriteString(w, "console.log('hi')")
	})
	mux.HandleFunc("/offline.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<h1>offline</h1>")
	})
	mux.HandleFunc("/api/tasks", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[]`)
	})
	return mux
}

func TestFetchServesCachedCopyWhenNetworkFails(t *testing.T) {
	f, transport, done := newTestFetcher(t, appHandler())
	defer done()

	// Warm the cache from the live network.
	resp, err := f.Fetch(getReq(t, f, "/app.js", nil))
	if err != nil {
		t.Fatalf("online fetch: %v", err)
	}
	if got := readBody(t, resp); got != "console.log('hi')" {
		t.Fatalf("online body: %q", got)
	}
	waitCached(t, f, "/app.js")

	transport.down = true

	resp, err = f.Fetch(getReq(t, f, "/app.js", nil))
	if err != nil {
		t.Fatalf("offline fetch: %v", err)
	}
	if resp.Header.Get("X-Served-From") != "offline-cache" {
		t.Fatal("expected cache-served response")
	}
	if got := readBody(t, resp); got != "console.log('hi')" {
		t.Fatalf("cached body: %q", got)
	}
}

func TestFetchMissSurfacesNetworkError(t *testing.T) {
	f, transport, done := newTestFetcher(t, appHandler())
	defer done()
	transport.down = true

	if _, err := f.Fetch(getReq(t, f, "/never-seen.css", nil)); err == nil {
		t.Fatal("expected the network error for an uncached asset")
	}
}

func TestFetchNavigationFallsBackToOfflinePage(t *testing.T) {
	f, transport, done := newTestFetcher(t, appHandler())
	defer done()
	f.Manifest = []string{"/offline.html"}
	f.OfflinePath = "/offline.html"
	f.Install(context.Background())

	transport.down = true

	nav := http.Header{"Sec-Fetch-Mode": []string{"navigate"}}
	resp, err := f.Fetch(getReq(t, f, "/tasks/today", nav))
	if err != nil {
		t.Fatalf("navigation fetch: %v", err)
	}
	if got := readBody(t, resp); !strings.Contains(got, "offline") {
		t.Fatalf("expected offline page, got %q", got)
	}

	// A non-navigation miss still fails even with the page cached.
	if _, err := f.Fetch(getReq(t, f, "/tasks/today", nil)); err == nil {
		t.Fatal("non-navigation miss should surface the error")
	}
}

func TestFetchNeverCachesAPIOrMutations(t *testing.T) {
	f, transport, done := newTestFetcher(t, appHandler())
	defer done()

	resp, err := f.Fetch(getReq(t, f, "/api/tasks", nil))
	if err != nil {
		t.Fatalf("api fetch: %v", err)
	}
	resp.Body.Close()

	transport.down = true

	if _, err := f.Fetch(getReq(t, f, "/api/tasks", nil)); err == nil {
		t.Fatal("api response must not be served from cache")
	}

	post, _ := http.NewRequest(http.MethodPost, f.Base.JoinPath("/app.js").String(), nil)
	if _, err := f.Fetch(post); err == nil {
		t.Fatal("non-GET must pass through to the network")
	}
}

func TestFetchPassesThroughCrossOrigin(t *testing.T) {
	f, _, done := newTestFetcher(t, appHandler())
	defer done()

	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "cdn asset")
	}))
	defer other.Close()

	req, _ := http.NewRequest(http.MethodGet, other.URL+"/lib.js", nil)
	resp, err := f.Fetch(req)
	if err != nil {
		t.Fatalf("cross-origin fetch: %v", err)
	}
	resp.Body.Close()

	if _, hit, _ := f.Store.Get(context.Background(), f.Generation, "/lib.js"); hit {
		t.Fatal("cross-origin response must not be cached")
	}
}

// gatedStore holds every Put until released, exposing callers that wait
// on the cache write.
type gatedStore struct {
	Store
	release chan struct{}
}

func (g *gatedStore) Put(ctx context.Context, generation string, e Entry) error {
	<-g.release
	return g.Store.Put(ctx, generation, e)
}

func TestFetchDoesNotBlockOnCacheWrite(t *testing.T) {
	f, _, done := newTestFetcher(t, appHandler())
	defer done()
	gated := &gatedStore{Store: f.Store, release: make(chan struct{})}
	f.Store = gated

	req := getReq(t, f, "/app.js", nil)
	type result struct {
		body string
		err  error
	}
	got := make(chan result, 1)
	go func() {
		resp, err := f.Fetch(req)
		if err != nil {
			got <- result{err: err}
			return
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		got <- result{body: string(b), err: err}
	}()

	select {
	case r := <-got:
		if r.err != nil {
			t.Fatalf("fetch: %v", r.err)
		}
		if r.body != "console.log('hi')" {
			t.Fatalf("body: %q", r.body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fetch waited on the cache write")
	}

	// The write still lands once the store unblocks.
	close(gated.release)
	waitCached(t, f, "/app.js")
}

func TestActivatePurgesStaleGenerations(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for _, gen := range []string{"v1", "v2", "v3"} {
		if err := store.Put(ctx, gen, Entry{URL: "/app.js", Status: 200}); err != nil {
			t.Fatal(err)
		}
	}

	f, err := NewFetcher("http://app.local", store, "v2")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Activate(ctx); err != nil {
		t.Fatal(err)
	}

	gens, err := store.Generations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(gens) != 1 || gens[0] != "v2" {
		t.Fatalf("live generations: %v", gens)
	}
}

func TestInstallIsBestEffort(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok.js", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	})
	mux.HandleFunc("/missing.js", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	f, _, done := newTestFetcher(t, mux)
	defer done()
	f.Manifest = []string{"/missing.js", "/ok.js"}

	f.Install(context.Background())

	ctx := context.Background()
	if _, hit, _ := f.Store.Get(ctx, f.Generation, "/ok.js"); !hit {
		t.Fatal("healthy asset not precached")
	}
	if _, hit, _ := f.Store.Get(ctx, f.Generation, "/missing.js"); hit {
		t.Fatal("404 asset must not be cached")
	}
}

func TestNewFetcherValidation(t *testing.T) {
	store := NewMemoryStore()
	if _, err := NewFetcher("/relative", store, "v1"); err == nil {
		t.Fatal("relative base url accepted")
	}
	if _, err := NewFetcher("http://app.local", store, ""); err == nil {
		t.Fatal("empty generation accepted")
	}
}
