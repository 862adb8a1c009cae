package resolver_test

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"testing"
	"time"

	"github.com/hookpost/hookpost/resolver"
)

func serverAddr(t *testing.T, srv *httptest.Server) (netip.Addr, string) {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	addr, err := netip.ParseAddr(u.Hostname())
	if err != nil {
		t.Fatal(err)
	}
	return addr, u.Port()
}

func TestPinnedClientConnects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	addr, port := serverAddr(t, srv)
	client := resolver.PinnedClient(addr, 2*time.Second, 2*time.Second)

	// The URL hostname is a name that does NOT resolve; the pinned dialer
	// must connect to the vetted address regardless.
	resp, err := client.Get("http://pinned.invalid:" + port)
	if err != nil {
		t.Fatalf("pinned request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
}

func TestPinnedClientDoesNotFollowRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/elsewhere" {
			t.Error("redirect was followed")
			return
		}
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	addr, port := serverAddr(t, srv)
	client := resolver.PinnedClient(addr, 2*time.Second, 2*time.Second)

	resp, err := client.Get("http://127.0.0.1:" + port + "/hook")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	// The 302 itself is the final response.
	if resp.StatusCode != http.StatusFound {
		t.Errorf("status = %d, want 302", resp.StatusCode)
	}
}
