package proxy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStartForwardsRequests(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "hello from "+r.URL.Path)
	}))
	defer upstream.Close()

	s := New("", nil)
	defer s.Close(context.Background())

	proxyURL, err := s.Start(context.Background(), 1, upstream.URL)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	resp, err := http.Get(proxyURL + "/page")
	if err != nil {
		t.Fatalf("GET through proxy failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "hello from /page" {
		t.Errorf("unexpected body %q", body)
	}

	again, err := s.Start(context.Background(), 1, upstream.URL)
	if err != nil || again != proxyURL {
		t.Errorf("expected proxy reuse, got %s (%v)", again, err)
	}
}

func TestStartRejectsInvalidTarget(t *testing.T) {
	s := New("", nil)
	if _, err := s.Start(context.Background(), 1, "not a url"); err == nil {
		t.Error("expected error for invalid target")
	}
}

func TestStopClosesProxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer upstream.Close()

	s := New("", nil)
	proxyURL, err := s.Start(context.Background(), 7, upstream.URL)
	if err != nil {
		t.Fatal(err)
	}
	s.Stop(context.Background(), 7)
	if _, err := http.Get(proxyURL); err == nil {
		t.Error("expected request to fail after Stop")
	}
}
