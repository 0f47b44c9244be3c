package processes

// AppInstance is the desired state of one hosted demo app: everything the
// launcher needs to install its dependencies and start it.
type AppInstance struct {
	// Name is the unique route key; the proxy serves this app under
	// /app/<Name>/ and the process receives it as APP_NAME.
	Name string
	// DisplayName is used for logs and the hub index.
	DisplayName string
	// Binary is the path to the app executable.
	Binary string
	// Manifest optionally points at a dependency manifest. If the file
	// exists it is installed before the process starts; an install failure
	// aborts the start.
	Manifest string
	// Env holds extra environment variables for the process.
	Env map[string]string
}
