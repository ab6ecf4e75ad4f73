package infrastructure

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewHTTPClient_SetsHeaders(t *testing.T) {
	var gotRequestID, gotUserAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequestID = r.Header.Get("X-Request-Id")
		gotUserAgent = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient(DefaultHTTPClientConfig("test"))

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()

	if _, err := uuid.Parse(gotRequestID); err != nil {
		t.Errorf("X-Request-Id = %q, want uuid", gotRequestID)
	}
	if gotUserAgent != "rebate-sync" {
		t.Errorf("User-Agent = %q, want rebate-sync", gotUserAgent)
	}
}

func TestNewHTTPClient_KeepsCallerRequestID(t *testing.T) {
	var gotRequestID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequestID = r.Header.Get("X-Request-Id")
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPClientConfig{Name: "test", Timeout: time.Second})

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-Request-Id", "fixed-id")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if gotRequestID != "fixed-id" {
		t.Errorf("X-Request-Id = %q, want fixed-id", gotRequestID)
	}
}

func TestChainHTTPRoundTripper_Order(t *testing.T) {
	var order []string
	mark := func(name string) httpRoundTripperMiddleware {
		return func(next http.RoundTripper) http.RoundTripper {
			return roundTripperFunc(func(r *http.Request) (*http.Response, error) {
				order = append(order, name)
				return next.RoundTrip(r)
			})
		}
	}

	base := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		order = append(order, "base")
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})

	rt := chainHTTPRoundTripper(base, mark("first"), mark("second"))
	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
	if _, err := rt.RoundTrip(req); err != nil {
		t.Fatal(err)
	}

	want := []string{"first", "second", "base"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}
