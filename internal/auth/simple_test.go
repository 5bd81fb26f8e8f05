package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	cases := []struct {
		name   string
		token  string
		path   string
		header string
		want   int
		body   string
	}{
		{name: "healthz is public", token: "sekrit", path: "/healthz", want: http.StatusTeapot},
		{name: "readyz is public", token: "sekrit", path: "/readyz", want: http.StatusTeapot},
		{name: "metrics is public", token: "sekrit", path: "/metrics", want: http.StatusTeapot},
		{name: "missing token", token: "sekrit", path: "/v1/replications", want: http.StatusUnauthorized, body: "missing API token"},
		{name: "wrong scheme", token: "sekrit", path: "/v1/replications", header: "Basic sekrit", want: http.StatusUnauthorized},
		{name: "invalid token", token: "sekrit", path: "/v1/replications", header: "Bearer nope", want: http.StatusForbidden, body: "invalid API token"},
		{name: "valid token", token: "sekrit", path: "/v1/replications", header: "Bearer sekrit", want: http.StatusTeapot},
		{name: "query token", token: "sekrit", path: "/v1/events?access_token=sekrit", want: http.StatusTeapot},
		{name: "open when unset", token: "", path: "/v1/fetches", want: http.StatusTeapot},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			Middleware(tc.token)(ok).ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("expected status %d got %d", tc.want, rr.Code)
			}
			if tc.body != "" && strings.TrimSpace(rr.Body.String()) != tc.body {
				t.Fatalf("unexpected body %q", rr.Body.String())
			}
		})
	}
}
