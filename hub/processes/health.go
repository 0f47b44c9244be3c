package processes

import (
	"fmt"
	"net/http"
	"time"
)

// HealthChecker probes a managed process and reports its state. An error
// describes why the check did not come back healthy.
type HealthChecker interface {
	Check(process *ManagedProcess) (ProcessState, error)
}

// HTTPHealthChecker probes the app's /api/status endpoint, which applib
// registers for every hosted app.
type HTTPHealthChecker struct {
	client *http.Client
}

func NewHTTPHealthChecker(requestTimeout time.Duration) *HTTPHealthChecker {
	return &HTTPHealthChecker{
		client: &http.Client{Timeout: requestTimeout},
	}
}

func (h *HTTPHealthChecker) Check(process *ManagedProcess) (ProcessState, error) {
	if process.Port <= 0 {
		return StateFailed, fmt.Errorf("invalid port %d for health check on app %s", process.Port, process.Instance.Name)
	}

	url := fmt.Sprintf("http://localhost:%d/api/status", process.Port)
	resp, err := h.client.Get(url)
	if err != nil {
		// Connection refused, timeout: process is up per the OS but not serving.
		return StateUnhealthy, fmt.Errorf("health check for %s failed: %w", process.Instance.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return StateRunning, nil
	}
	return StateUnhealthy, fmt.Errorf("health check for %s at %s returned %s", process.Instance.Name, url, resp.Status)
}
