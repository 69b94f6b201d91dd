package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bizcrawl/internal/resilience"
)

func TestLocalScraper_Fetch(t *testing.T) {
	t.Parallel()
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><a href="mailto:sales@acme.com">Email us</a></body></html>`))
	}))
	defer srv.Close()

	s := NewLocalScraper("", 0)
	resp, err := s.Fetch(context.Background(), srv.URL+"/contact")
	require.NoError(t, err)
	assert.Equal(t, "local_http", resp.Source)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, srv.URL+"/contact", resp.URL)
	assert.Contains(t, resp.Body, "sales@acme.com")
	assert.Equal(t, DefaultUserAgent, gotUA)
}

func TestLocalScraper_FollowsRedirect(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/contact", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/contact-us", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/contact-us", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<p>Call (555) 010-0100</p>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := NewLocalScraper("", 0).Fetch(context.Background(), srv.URL+"/contact")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/contact-us", resp.URL)
}

func TestLocalScraper_Cloudflare(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cf-Ray", "abc123")
		w.WriteHeader(403)
		_, _ = w.Write([]byte(`<html><body>Access denied</body></html>`))
	}))
	defer srv.Close()

	_, err := NewLocalScraper("", 0).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked (cloudflare)")
	assert.False(t, resilience.IsTransient(err))
}

func TestLocalScraper_RateLimitedIsTransient(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewLocalScraper("", 0).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestLocalScraper_HTTPStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"not found", 404, false},
		{"gone", 410, false},
		{"server error", 500, true},
		{"bad gateway", 502, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`<html><body>An ordinary error page with enough text to pass.</body></html>`))
			}))
			defer srv.Close()

			_, err := NewLocalScraper("", 0).Fetch(context.Background(), srv.URL)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "status")
			assert.Equal(t, tt.transient, resilience.IsTransient(err))
		})
	}
}

func TestLocalScraper_DecodesLatin1(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write([]byte("<p>Caf\xe9 Lumi\xe8re</p>"))
	}))
	defer srv.Close()

	resp, err := NewLocalScraper("", 0).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, resp.Body, "Café Lumière")
}

func TestLocalScraper_Supports(t *testing.T) {
	t.Parallel()
	s := NewLocalScraper("", 0)
	assert.Equal(t, "local_http", s.Name())
	assert.True(t, s.Supports("https://example.com"))
	assert.True(t, s.Supports("http://localhost:8080/contact"))
	assert.False(t, s.Supports("mailto:sales@acme.com"))
	assert.False(t, s.Supports("/relative/path"))
}

func TestDecodeBody(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		contentType string
		body        string
		want        string
	}{
		{"utf8 passthrough", "text/html; charset=utf-8", "<p>Café</p>", "<p>Café</p>"},
		{"no charset", "text/html", "<p>plain</p>", "<p>plain</p>"},
		{"header latin1", "text/html; charset=ISO-8859-1", "<p>Caf\xe9</p>", "<p>Café</p>"},
		{"meta charset", "text/html", "<meta charset=\"windows-1252\"><p>Caf\xe9</p>", "<meta charset=\"windows-1252\"><p>Café</p>"},
		{"unknown label", "text/html; charset=bogus-42", "<p>x</p>", "<p>x</p>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, decodeBody(tt.contentType, []byte(tt.body)))
		})
	}
}
