package processes

import (
	"fmt"
	"net"
	"sync"
)

// PortManager allocates TCP ports for app subprocesses from a fixed range.
// A candidate port is verified by actually listening on it, so ports held
// by unrelated processes are skipped.
type PortManager struct {
	mu            sync.Mutex
	minPort       int
	maxPort       int
	allocated     map[int]bool
	nextCandidate int
}

func NewPortManager(minPort, maxPort int) (*PortManager, error) {
	if minPort <= 0 || maxPort <= 0 || minPort > maxPort {
		return nil, fmt.Errorf("invalid port range: min %d, max %d", minPort, maxPort)
	}
	return &PortManager{
		minPort:       minPort,
		maxPort:       maxPort,
		allocated:     make(map[int]bool),
		nextCandidate: minPort,
	}, nil
}

// Allocate finds and reserves an available port, or returns an error when
// the range is exhausted.
func (pm *PortManager) Allocate() (int, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	first := pm.nextCandidate
	for {
		candidate := pm.nextCandidate

		pm.nextCandidate++
		if pm.nextCandidate > pm.maxPort {
			pm.nextCandidate = pm.minPort
		}

		if !pm.allocated[candidate] {
			l, err := net.Listen("tcp", fmt.Sprintf(":%d", candidate))
			if err == nil {
				l.Close()
				pm.allocated[candidate] = true
				return candidate, nil
			}
		}

		if pm.nextCandidate == first {
			return 0, fmt.Errorf("no available ports in range [%d-%d]", pm.minPort, pm.maxPort)
		}
	}
}

// Release returns a previously allocated port to the pool. Ports outside
// the managed range are ignored.
func (pm *PortManager) Release(port int) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if port < pm.minPort || port > pm.maxPort {
		return
	}
	delete(pm.allocated, port)
}
