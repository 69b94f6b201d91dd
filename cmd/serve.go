package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/bizcrawl/internal/enrich"
	"github.com/sells-group/bizcrawl/internal/model"
	"github.com/sells-group/bizcrawl/internal/normalize"
	"github.com/sells-group/bizcrawl/internal/store"
)

var (
	servePort         int
	serveAllowPrivate bool
)

// hostCheck rejects hosts the API must not fetch.
type hostCheck func(ctx context.Context, host string) error

// websiteEnricher is the part of enrich.Enricher the API needs.
type websiteEnricher interface {
	Enrich(ctx context.Context, origin string) enrich.Result
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored records and on-demand enrichment over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		fetcher, err := newFetcher()
		if err != nil {
			return err
		}
		enr, err := newEnricher(fetcher)
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildMux(st, enr, serveHostCheck()),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildMux wires the API routes. st and enr may be nil; their routes then
// answer 503. A nil check means only public hosts may be enriched.
func buildMux(st store.Store, enr websiteEnricher, check hostCheck) http.Handler {
	if check == nil {
		check = publicHost
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/records", func(w http.ResponseWriter, req *http.Request) {
		if st == nil {
			writeError(w, http.StatusServiceUnavailable, "store not configured")
			return
		}
		q := req.URL.Query()
		limit, offset, err := pageParams(q.Get("limit"), q.Get("offset"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		hasEmail, _ := strconv.ParseBool(q.Get("has_email"))

		recs, err := st.ListRecords(req.Context(), store.RecordFilter{
			SourceURL: q.Get("source_url"),
			HasEmail:  hasEmail,
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			zap.L().Error("list records failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list records failed")
			return
		}
		writeJSON(w, http.StatusOK, recs)
	})

	r.Get("/failures", func(w http.ResponseWriter, req *http.Request) {
		if st == nil {
			writeError(w, http.StatusServiceUnavailable, "store not configured")
			return
		}
		q := req.URL.Query()
		limit, offset, err := pageParams(q.Get("limit"), q.Get("offset"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		failures, err := st.ListFailures(req.Context(), store.FailureFilter{
			Label:     model.Label(q.Get("label")),
			ErrorType: q.Get("error_type"),
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			zap.L().Error("list failures failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list failures failed")
			return
		}
		writeJSON(w, http.StatusOK, failures)
	})

	r.Post("/enrich", func(w http.ResponseWriter, req *http.Request) {
		if enr == nil {
			writeError(w, http.StatusServiceUnavailable, "enrichment not configured")
			return
		}
		var body struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.URL == "" {
			writeError(w, http.StatusBadRequest, "url is required")
			return
		}
		origin, ok := normalize.Origin(body.URL)
		if !ok {
			writeError(w, http.StatusBadRequest, "url must be an absolute http(s) URL")
			return
		}
		u, _ := url.Parse(origin)
		if err := check(req.Context(), u.Hostname()); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, enr.Enrich(req.Context(), origin))
	})

	return r
}

func serveHostCheck() hostCheck {
	if serveAllowPrivate {
		return func(context.Context, string) error { return nil }
	}
	return publicHost
}

// publicHost rejects localhost and any host that is, or resolves to, a
// loopback, private, link-local or unspecified address.
func publicHost(ctx context.Context, host string) error {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" || host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return eris.Errorf("host %q is not public", host)
	}

	var addrs []netip.Addr
	if addr, err := netip.ParseAddr(host); err == nil {
		addrs = append(addrs, addr)
	} else {
		ips, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
		if err != nil {
			return eris.Wrapf(err, "resolve host %q", host)
		}
		addrs = ips
	}
	for _, addr := range addrs {
		addr = addr.Unmap()
		if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() ||
			addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() ||
			addr.IsInterfaceLocalMulticast() || addr.IsMulticast() {
			return eris.Errorf("host %q is not public", host)
		}
	}
	return nil
}

func pageParams(limitStr, offsetStr string) (limit, offset int, err error) {
	limit = 50
	if limitStr != "" {
		if limit, err = strconv.Atoi(limitStr); err != nil || limit < 0 {
			return 0, 0, eris.Errorf("invalid limit %q", limitStr)
		}
	}
	if offsetStr != "" {
		if offset, err = strconv.Atoi(offsetStr); err != nil || offset < 0 {
			return 0, 0, eris.Errorf("invalid offset %q", offsetStr)
		}
	}
	return limit, offset, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveAllowPrivate, "allow-private-hosts", false, "let POST /enrich fetch loopback and private network hosts")
	rootCmd.AddCommand(serveCmd)
}
