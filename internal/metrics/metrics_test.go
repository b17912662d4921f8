package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistriesAreIndependent(t *testing.T) {
	require.NotPanics(t, func() {
		NewRegistry()
		NewRegistry()
	})
}

func TestHandlerExposesCollectors(t *testing.T) {
	r := NewRegistry()
	r.Players.Set(3)
	r.PingsForwarded.Add(7)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "chisel_players_connected 3")
	require.Contains(t, body, "chisel_ws_pings_forwarded_total 7")
}

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	r := NewRegistry()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/limits", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.Middleware(mux).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/limits", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	scrape := httptest.NewRecorder()
	r.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Contains(t, scrape.Body.String(),
		`chisel_http_request_duration_seconds_count{code="418",method="GET",route="GET /api/limits"} 1`)
}

func TestMiddlewareKeepsHijacker(t *testing.T) {
	r := NewRegistry()
	result := make(chan error, 1)
	handler := r.Middleware(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			result <- errors.New("writer lost the Hijacker interface")
			return
		}
		conn, rw, err := hj.Hijack()
		if err != nil {
			result <- err
			return
		}
		rw.WriteString("HTTP/1.1 204 No Content\r\n\r\n")
		rw.Flush()
		conn.Close()
		result <- nil
	}))

	srv := httptest.NewServer(handler)
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	require.NoError(t, <-result)
}
