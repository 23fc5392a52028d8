package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const postingHTML = `<html><head><style>.x{}</style><script>var a=1;</script></head>
<body><nav>Home Jobs</nav>
<div class="description">short</div>
<div id="jobDescriptionText"><p>We are hiring a senior Go engineer to build payment services.</p>
<ul><li>5 years of Go</li><li>PostgreSQL</li></ul></div>
</body></html>`

func TestExtractPrefersKnownSelector(t *testing.T) {
	text, err := Extract(strings.NewReader(postingHTML))
	require.NoError(t, err)
	assert.Equal(t, "We are hiring a senior Go engineer to build payment services.\n5 years of Go\nPostgreSQL", text)
}

func TestExtractShortSectionFallsBackToPage(t *testing.T) {
	page := `<html><body><nav>menu</nav><div class="job-description">Too short.</div><p>Full page text</p><script>x()</script></body></html>`
	text, err := Extract(strings.NewReader(page))
	require.NoError(t, err)
	assert.Contains(t, text, "Too short.")
	assert.Contains(t, text, "Full page text")
	assert.NotContains(t, text, "x()")
	assert.NotContains(t, text, "menu")
}

func TestExtractEmptyPage(t *testing.T) {
	_, err := Extract(strings.NewReader(`<html><body><script>x</script></body></html>`))
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestFetchCachesAndSetsUserAgent(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, userAgent, r.UserAgent())
		_, _ = w.Write([]byte(postingHTML))
	}))
	defer srv.Close()

	f := New(Options{CacheSize: 8})
	for i := 0; i < 2; i++ {
		text, err := f.Fetch(context.Background(), srv.URL+"/job/1")
		require.NoError(t, err)
		assert.Contains(t, text, "senior Go engineer")
	}
	assert.EqualValues(t, 1, hits.Load())
}

func TestFetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := New(Options{}).Fetch(context.Background(), srv.URL)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusForbidden, se.Code)
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := New(Options{Timeout: 50 * time.Millisecond}).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestFetchInvalidURL(t *testing.T) {
	f := New(Options{})
	for _, raw := range []string{"", "ftp://x/y", "not a url", "https://"} {
		_, err := f.Fetch(context.Background(), raw)
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
	}
}
