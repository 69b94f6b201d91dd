package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bizcrawl/internal/resilience"
)

func newTestColly(t *testing.T) *CollyScraper {
	t.Helper()
	s, err := NewCollyScraper(CollyOptions{})
	require.NoError(t, err)
	return s
}

func TestCollyScraper_Fetch(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><body>Reach us at info@acme.com</body></html>`))
	}))
	defer srv.Close()

	s := newTestColly(t)
	resp, err := s.Fetch(context.Background(), srv.URL+"/about")
	require.NoError(t, err)
	assert.Equal(t, "colly", resp.Source)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.Body, "info@acme.com")
}

func TestCollyScraper_RevisitAllowed(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`<p>ok</p>`))
	}))
	defer srv.Close()

	s := newTestColly(t)
	for range 2 {
		_, err := s.Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), hits.Load())
}

func TestCollyScraper_HTTPStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/down" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := newTestColly(t)

	_, err := s.Fetch(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.False(t, resilience.IsTransient(err))

	_, err = s.Fetch(context.Background(), srv.URL+"/down")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestCollyScraper_Captcha(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>Please verify you are a human</body></html>`))
	}))
	defer srv.Close()

	_, err := newTestColly(t).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked (captcha)")
}

func TestCollyScraper_Supports(t *testing.T) {
	t.Parallel()
	s := newTestColly(t)
	assert.Equal(t, "colly", s.Name())
	assert.True(t, s.Supports("https://acme.com/contact"))
	assert.False(t, s.Supports("ftp://acme.com"))
}
