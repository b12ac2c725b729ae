package main

import (
	"io"
	"log"
	"net/http"

	"github.com/spf13/cobra"

	"flowtask-backend/internal/offline"
)

var (
	proxyAddr     string
	proxyUpstream string
	proxyCacheDB  string
	proxyTag      string
	proxyPrecache []string
	proxyOffline  string
)

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Run the offline-cache proxy in front of the app",
	Long: `Serve the app through a network-first cache: successful asset
responses are cached per generation tag, and when the upstream is
unreachable cached copies (or the offline fallback page for navigations)
are served instead. API calls always pass through.`,
	RunE: runProxy,
}

func init() {
	proxyCmd.Flags().StringVar(&proxyAddr, "addr", ":9090", "listen address")
	proxyCmd.Flags().StringVar(&proxyUpstream, "upstream", "http://localhost:8080", "app origin to proxy")
	proxyCmd.Flags().StringVar(&proxyCacheDB, "cache", "", "cache database path (empty: in-memory)")
	proxyCmd.Flags().StringVar(&proxyTag, "tag", "v1", "cache generation tag, bump on each deploy")
	proxyCmd.Flags().StringSliceVar(&proxyPrecache, "precache", []string{"/", "/offline.html"}, "asset paths to precache")
	proxyCmd.Flags().StringVar(&proxyOffline, "offline", "/offline.html", "offline fallback page path")
}

func runProxy(cmd *cobra.Command, args []string) error {
	var store offline.Store
	if proxyCacheDB != "" {
		s, err := offline.OpenSQLite(proxyCacheDB)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	} else {
		store = offline.NewMemoryStore()
	}

	fetcher, err := offline.NewFetcher(proxyUpstream, store, proxyTag)
	if err != nil {
		return err
	}
	fetcher.Manifest = proxyPrecache
	fetcher.OfflinePath = proxyOffline

	ctx := cmd.Context()
	if err := fetcher.Activate(ctx); err != nil {
		return err
	}
	fetcher.Install(ctx)

	log.Printf("offline proxy listening on %s (upstream %s, generation %s)",
		proxyAddr, proxyUpstream, proxyTag)
	return http.ListenAndServe(proxyAddr, proxyHandler(fetcher))
}

func proxyHandler(f *offline.Fetcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := r.Clone(r.Context())
		out.URL.Scheme = f.Base.Scheme
		out.URL.Host = f.Base.Host
		out.Host = f.Base.Host
		out.RequestURI = ""

		resp, err := f.Fetch(out)
		if err != nil {
			http.Error(w, "upstream unreachable", http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		for k, vals := range resp.Header {
			for _, v := range vals {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(resp.StatusCode)
		_, _ = io.Copy(w, resp.Body)
	})
}
