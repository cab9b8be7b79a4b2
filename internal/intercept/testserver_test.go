package intercept

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

// newEchoServer starts a deterministic HTTP server for capture tests.
//
//	/echo          echoes method, query and body
//	/redirect      302 to /echo?from=redirect
//	/status/{code} replies with code and an empty body
//	/large         replies with 256 KiB of data
//	/block         waits for release before replying
func newEchoServer(t *testing.T, release <-chan struct{}) *httptest.Server {
	t.Helper()

	r := chi.NewRouter()
	r.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("X-Echo-Method", r.Method)
		w.Header().Add("X-Multi", "one")
		w.Header().Add("X-Multi", "two")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "%s %s\n%s", r.Method, r.URL.RawQuery, body)
	})
	r.Get("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/echo?from=redirect", http.StatusFound)
	})
	r.Get("/status/{code}", func(w http.ResponseWriter, r *http.Request) {
		code, err := strconv.Atoi(chi.URLParam(r, "code"))
		if err != nil {
			code = http.StatusBadRequest
		}
		w.WriteHeader(code)
	})
	r.Get("/large", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		io.WriteString(w, strings.Repeat("0123456789abcdef", 16*1024))
	})
	r.Get("/block", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		io.WriteString(w, "released")
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}
