package redirect

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand_FollowsChain(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusFound)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := NewExpander(10, 2*time.Second)
	res := e.Expand(context.Background(), srv.URL+"/a")

	require.Empty(t, res.ErrCode)
	require.Len(t, res.Chain.Hops, 2)
	assert.Equal(t, srv.URL+"/a", res.Chain.OriginalURL)
	assert.Equal(t, srv.URL+"/final", res.Chain.FinalURL)
	assert.Equal(t, http.StatusFound, res.Chain.Hops[0].StatusCode)
	assert.Equal(t, "/b", res.Chain.Hops[0].RedirectTo)
	assert.Equal(t, 2, res.Analysis.Extra["hop_count"])
	assert.Equal(t, 0, res.Analysis.RiskScore, "same-host chain is clean")
}

func TestExpand_ResolvesRelativeLocations(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "../elsewhere")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/elsewhere", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := NewExpander(10, 2*time.Second)
	res := e.Expand(context.Background(), srv.URL+"/start")

	require.Empty(t, res.ErrCode)
	assert.Equal(t, srv.URL+"/elsewhere", res.Chain.FinalURL)
}

func TestExpand_TooManyRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/r", func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(r.URL.Query().Get("n"))
		http.Redirect(w, r, fmt.Sprintf("/r?n=%d", n+1), http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := NewExpander(3, 2*time.Second)
	res := e.Expand(context.Background(), srv.URL+"/r?n=0")

	assert.Equal(t, ErrCodeTooManyRedirects, res.ErrCode)
	assert.Empty(t, res.Chain.Hops, "error results carry an empty chain")
	assert.Equal(t, srv.URL+"/r?n=0", res.Chain.OriginalURL)
}

func TestExpand_InvalidURL(t *testing.T) {
	e := NewExpander(10, time.Second)

	for _, raw := range []string{"", "notaurl", "https://"} {
		res := e.Expand(context.Background(), raw)
		assert.Equal(t, ErrCodeInvalidURL, res.ErrCode, "input %q", raw)
	}
}

func TestExpand_ConnectionFailed(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	e := NewExpander(10, time.Second)
	res := e.Expand(context.Background(), url+"/gone")

	assert.Equal(t, ErrCodeConnectionFailed, res.ErrCode)
	assert.NotEmpty(t, res.ErrDesc)
}

func TestExpand_MissingLocationTerminates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/odd", func(w http.ResponseWriter, r *http.Request) {
		// 302 with no Location header.
		w.WriteHeader(http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := NewExpander(10, time.Second)
	res := e.Expand(context.Background(), srv.URL+"/odd")

	require.Empty(t, res.ErrCode)
	assert.Equal(t, srv.URL+"/odd", res.Chain.FinalURL)
	assert.Empty(t, res.Chain.Hops)
}
