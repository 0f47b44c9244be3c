package applib

import (
	"flag"
	"fmt"
	"os"
)

const (
	defaultAppName = "app"
	defaultPort    = 8501
)

// Init parses the launcher contract and returns the Application handle.
// The hub passes the listen port via -port; the application name arrives
// through the APP_NAME environment variable (default "app") and determines
// the base path app/<name> under which the hub exposes this process.
func Init(version string) (*Application, error) {
	port := flag.Int("port", defaultPort, "Port for the HTTP server")
	flag.Parse()

	if *port <= 0 || *port > 65535 {
		return nil, fmt.Errorf("invalid port %d", *port)
	}

	name := os.Getenv("APP_NAME")
	if name == "" {
		name = defaultAppName
	}

	return NewApplication(version, name, *port), nil
}
