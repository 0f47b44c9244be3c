package proxy

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/v3labs/demohub/hub/processes"
)

// fakeResolver routes a fixed set of app names to ports.
type fakeResolver struct {
	apps  map[string]int // name -> port; port 0 means registered but down
	ready bool
}

func (f *fakeResolver) GetAppInstanceByName(name string) (*processes.AppInstance, int, error) {
	port, ok := f.apps[name]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", processes.ErrAppNotFound, name)
	}
	if port == 0 {
		return nil, 0, fmt.Errorf("%w: %s", processes.ErrAppNotRunning, name)
	}
	return &processes.AppInstance{Name: name}, port, nil
}

func (f *fakeResolver) Statuses() []processes.AppStatus {
	var out []processes.AppStatus
	for name, port := range f.apps {
		state := "Running"
		if port == 0 {
			state = "Failed"
		}
		out = append(out, processes.AppStatus{Name: name, State: state, Port: port})
	}
	return out
}

func (f *fakeResolver) IsReady() bool { return f.ready }

type recordedAudit struct {
	mu      sync.Mutex
	records []string
}

func (a *recordedAudit) LogRequest(traceID, app, method, path string, status int, duration time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, fmt.Sprintf("%s %s %d", app, path, status))
	return nil
}

func backendPort(t *testing.T, backend *httptest.Server) int {
	t.Helper()
	u, err := url.Parse(backend.URL)
	if err != nil {
		t.Fatalf("parse backend URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("backend port: %v", err)
	}
	return port
}

func TestProxyRoutesToHealthyBackend(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "path=%s trace=%v", r.URL.Path, r.Header.Get("X-Trace-ID") != "")
	}))
	defer backend.Close()

	resolver := &fakeResolver{apps: map[string]int{"firstswap": backendPort(t, backend)}, ready: true}
	audit := &recordedAudit{}
	p := NewProxy(":0", resolver, audit, nil)

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/app/firstswap/swap/quote")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	// Prefix must be stripped and a trace ID attached.
	if string(body) != "path=/swap/quote trace=true" {
		t.Errorf("unexpected backend view of request: %s", body)
	}

	audit.mu.Lock()
	defer audit.mu.Unlock()
	if len(audit.records) != 1 || audit.records[0] != "firstswap /app/firstswap/swap/quote 200" {
		t.Errorf("unexpected audit records %v", audit.records)
	}
}

func TestProxyFailsFastOnDownBackend(t *testing.T) {
	resolver := &fakeResolver{apps: map[string]int{"explorer": 0}, ready: true}
	p := NewProxy(":0", resolver, nil, nil)

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/app/explorer/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502 for a down backend", resp.StatusCode)
	}
}

func TestProxyFailsFastOnUnreachableBackend(t *testing.T) {
	// Allocate a port and close the listener so nothing is serving there.
	backend := httptest.NewServer(http.NotFoundHandler())
	port := backendPort(t, backend)
	backend.Close()

	resolver := &fakeResolver{apps: map[string]int{"explorer": port}, ready: true}
	p := NewProxy(":0", resolver, nil, nil)

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/app/explorer/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502 for an unreachable backend", resp.StatusCode)
	}
}

func TestProxyUnknownAppIs404(t *testing.T) {
	resolver := &fakeResolver{apps: map[string]int{}, ready: true}
	p := NewProxy(":0", resolver, nil, nil)

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/app/nosuchapp/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for unknown app", resp.StatusCode)
	}
}

func TestProxyRedirectsToTrailingSlash(t *testing.T) {
	resolver := &fakeResolver{apps: map[string]int{"firstswap": 1}, ready: true}
	p := NewProxy(":0", resolver, nil, nil)

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Get(srv.URL + "/app/firstswap?x=1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMovedPermanently {
		t.Fatalf("status = %d, want 301", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/app/firstswap/?x=1" {
		t.Errorf("Location = %q", loc)
	}
}

func TestHealthzTracksReadiness(t *testing.T) {
	resolver := &fakeResolver{apps: map[string]int{}}
	p := NewProxy(":0", resolver, nil, nil)

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d before first reconcile, want 503", resp.StatusCode)
	}

	resolver.ready = true
	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d after ready, want 200", resp.StatusCode)
	}
}

func TestIndexListsApps(t *testing.T) {
	resolver := &fakeResolver{apps: map[string]int{"poolmanager": 9999}, ready: true}
	p := NewProxy(":0", resolver, nil, nil)

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `href="/app/poolmanager/"`) {
		t.Errorf("index page missing app link:\n%s", body)
	}
}

func TestSplitAppPath(t *testing.T) {
	cases := []struct {
		path string
		name string
		rest string
		ok   bool
	}{
		{"/app/firstswap/", "firstswap", "", true},
		{"/app/firstswap/swap", "firstswap", "swap", true},
		{"/app/firstswap", "firstswap", "", true},
		{"/app/", "", "", false},
		{"/apples", "", "", false},
		{"/", "", "", false},
	}
	for _, tc := range cases {
		name, rest, ok := splitAppPath(tc.path)
		if name != tc.name || rest != tc.rest || ok != tc.ok {
			t.Errorf("splitAppPath(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tc.path, name, rest, ok, tc.name, tc.rest, tc.ok)
		}
	}
}
