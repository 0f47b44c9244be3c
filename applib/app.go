package applib

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/v3labs/demohub/applib/httputils"
)

// Application is the per-process handle for a hosted demo app. The hub
// launches each app as a subprocess with an allocated port and an APP_NAME
// environment variable; the app serves its UI at "/" (the hub strips the
// /app/<name> prefix before forwarding) and uses BasePath to generate
// absolute links that route back through the hub.
type Application struct {
	version  string
	name     string
	port     int
	basePath string
	router   *mux.Router
}

var ContextApplicationKey = "application"

func NewApplication(version, name string, port int) *Application {
	app := &Application{
		version:  version,
		name:     name,
		port:     port,
		basePath: fmt.Sprintf("/app/%s/", name),
		router:   mux.NewRouter(),
	}
	app.router.HandleFunc("/api/status", app.handleStatus).Methods(http.MethodGet)
	return app
}

// Name returns the application name assigned by the launcher.
func (app *Application) Name() string {
	return app.name
}

// BasePath returns the public URL prefix for this app, including the
// trailing slash, e.g. "/app/firstswap/".
func (app *Application) BasePath() string {
	return app.basePath
}

// Router returns the request router. Apps register their handlers here;
// paths are relative to the stripped prefix, so "/" is the app's index.
func (app *Application) Router() *mux.Router {
	return app.router
}

// handleStatus is the health endpoint polled by the hub supervisor.
func (app *Application) handleStatus(w http.ResponseWriter, r *http.Request) {
	httputils.HandleAPIResponse(w, r, map[string]string{
		"app":     app.name,
		"version": app.version,
		"status":  "ok",
	}, nil, http.StatusOK)
}

// Serve runs the HTTP server, binding on all interfaces. It blocks until
// the server fails; the hub supervisor handles restarts.
func (app *Application) Serve() {
	listenAddr := fmt.Sprintf(":%d", app.port)
	log.Printf("%s %s serving on %s (base path %s)", app.name, app.version, listenAddr, app.basePath)

	contextFn := func(net.Listener) context.Context {
		return context.WithValue(context.Background(), ContextApplicationKey, app)
	}
	server := &http.Server{
		Addr:         listenAddr,
		Handler:      app.router,
		BaseContext:  contextFn,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	log.Fatal(server.ListenAndServe())
}
