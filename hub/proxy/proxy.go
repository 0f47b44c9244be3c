package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/v3labs/demohub/hub/metrics"
	"github.com/v3labs/demohub/hub/processes"
)

// AppResolver maps an app name from the URL to a running backend. The
// ProcessManager implements it.
type AppResolver interface {
	GetAppInstanceByName(name string) (*processes.AppInstance, int, error)
	Statuses() []processes.AppStatus
	IsReady() bool
}

// AuditRecorder persists one record per proxied request.
type AuditRecorder interface {
	LogRequest(traceID, app, method, path string, status int, duration time.Duration) error
}

// Proxy is the hub's front door. It serves the index page, readiness
// and metrics endpoints, and routes /app/<name>/ traffic to the app's
// backend process by stripping the prefix. Routing is fail-fast: a
// crashed or unhealthy backend yields an immediate 502, never a retry
// that would mask the failure.
type Proxy struct {
	listenAddr string
	resolver   AppResolver
	audit      AuditRecorder
	logger     *slog.Logger
	transport  *http.Transport
	server     *http.Server
}

func NewProxy(listenAddr string, resolver AppResolver, audit AuditRecorder, logger *slog.Logger) *Proxy {
	if logger == nil {
		logger = slog.Default()
	}
	dialer := net.Dialer{
		Timeout:   60 * time.Second,
		KeepAlive: 60 * time.Second,
	}
	return &Proxy{
		listenAddr: listenAddr,
		resolver:   resolver,
		audit:      audit,
		logger:     logger.With("component", "Proxy"),
		transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: 30 * time.Second,
		},
	}
}

// Handler returns the proxy's root handler with middleware applied.
func (p *Proxy) Handler() http.Handler {
	return corsMiddleware(http.HandlerFunc(p.handleRequest))
}

// Start runs the HTTP server. It blocks until the server stops.
func (p *Proxy) Start(contextFn func(net.Listener) context.Context) error {
	p.server = &http.Server{
		BaseContext:  contextFn,
		Addr:         p.listenAddr,
		Handler:      p.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	p.logger.Info("Starting proxy server", "addr", p.listenAddr)
	return p.server.ListenAndServe()
}

// Stop gracefully shuts down the proxy server.
func (p *Proxy) Stop(ctx context.Context) error {
	if p.server == nil {
		return nil
	}
	p.logger.Info("Stopping proxy server")
	return p.server.Shutdown(ctx)
}

func (p *Proxy) handleRequest(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	w.Header().Set("X-Trace-ID", traceID)

	switch r.URL.Path {
	case "/healthz":
		p.handleHealthz(w, r)
		return
	case "/api/status":
		p.handleStatus(w, r)
		return
	case "/", "":
		p.handleIndex(w, r)
		return
	}
	if r.URL.Path == "/metrics" {
		metrics.Handler().ServeHTTP(w, r)
		return
	}

	if name, rest, ok := splitAppPath(r.URL.Path); ok {
		if rest == "" && !strings.HasSuffix(r.URL.Path, "/") {
			// /app/<name> without the trailing slash breaks the app's
			// relative links; redirect to the canonical form.
			target := r.URL.Path + "/"
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			http.Redirect(w, r, target, http.StatusMovedPermanently)
			return
		}
		p.proxyToApp(w, r, traceID, name, "/"+rest)
		return
	}

	http.Error(w, "Not Found", http.StatusNotFound)
	p.logger.Info("No route found", "traceID", traceID, "path", r.URL.Path, "status", http.StatusNotFound)
}

// splitAppPath parses /app/<name>[/rest] into its parts.
func splitAppPath(path string) (name, rest string, ok bool) {
	trimmed := strings.TrimPrefix(path, "/app/")
	if trimmed == path || trimmed == "" {
		return "", "", false
	}
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		return trimmed[:i], trimmed[i+1:], true
	}
	return trimmed, "", true
}

func (p *Proxy) proxyToApp(w http.ResponseWriter, r *http.Request, traceID, name, targetPath string) {
	start := time.Now()
	metrics.ProxyInFlightInc()
	defer metrics.ProxyInFlightDec()

	// The audit record keeps the public path; r.URL.Path is rewritten to
	// the stripped backend path below.
	origPath := r.URL.Path

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		duration := time.Since(start)
		metrics.RecordProxyRequest(name, r.Method, strconv.Itoa(rec.status), duration.Seconds())
		if p.audit != nil {
			if err := p.audit.LogRequest(traceID, name, r.Method, origPath, rec.status, duration); err != nil {
				p.logger.Error("Failed to write audit record", "traceID", traceID, "error", err)
			}
		}
	}()

	_, port, err := p.resolver.GetAppInstanceByName(name)
	if err != nil {
		if errors.Is(err, processes.ErrAppNotFound) {
			http.Error(rec, "No app named "+name, http.StatusNotFound)
			p.logger.Info("App not found", "traceID", traceID, "app", name, "status", http.StatusNotFound)
			return
		}
		http.Error(rec, "App "+name+" is unavailable", http.StatusBadGateway)
		p.logger.Warn("App unavailable", "traceID", traceID, "app", name, "error", err, "status", http.StatusBadGateway)
		return
	}

	targetURL := &url.URL{
		Scheme: "http",
		Host:   "localhost:" + strconv.Itoa(port),
	}

	reverseProxy := httputil.NewSingleHostReverseProxy(targetURL)
	reverseProxy.Transport = p.transport
	reverseProxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		// A connection error here means the backend died between the
		// health check and now. Surface it instead of retrying.
		p.logger.Error("Backend request failed", "traceID", traceID, "app", name, "error", err)
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
	}

	r.Host = targetURL.Host
	r.URL.Path = targetPath
	r.Header.Set("X-Trace-ID", traceID)

	p.logger.Info("Proxying request", "traceID", traceID, "app", name, "path", origPath, "target", targetURL.String())
	reverseProxy.ServeHTTP(rec, r)
}

// handleHealthz reports readiness: 200 once every configured app came up
// healthy after the first reconcile, 503 before that.
func (p *Proxy) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if p.resolver.IsReady() {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
		return
	}
	http.Error(w, "starting", http.StatusServiceUnavailable)
}

func (p *Proxy) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"ready": p.resolver.IsReady(),
		"apps":  p.resolver.Statuses(),
	})
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>Demo Hub</title></head>
<body>
<h1>Demo Hub</h1>
<ul>
{{range .}}
<li><a href="/app/{{.Name}}/">{{if .DisplayName}}{{.DisplayName}}{{else}}{{.Name}}{{end}}</a> ({{.State}})</li>
{{end}}
</ul>
</body>
</html>
`))

func (p *Proxy) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, p.resolver.Statuses()); err != nil {
		p.logger.Error("Failed to render index", "error", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (rec *statusRecorder) WriteHeader(code int) {
	if !rec.written {
		rec.status = code
		rec.written = true
		rec.ResponseWriter.WriteHeader(code)
	}
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if !rec.written {
		rec.WriteHeader(http.StatusOK)
	}
	return rec.ResponseWriter.Write(b)
}
