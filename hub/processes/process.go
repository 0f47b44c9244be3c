package processes

import (
	"os/exec"
	"sync"
	"time"
)

// ProcessState is the lifecycle/health state of a managed app process.
type ProcessState int

const (
	StateUnknown ProcessState = iota
	// StateInstalling means the dependency-install phase is running.
	StateInstalling
	StateStarting
	// StateRunning means the process is up and passing health checks.
	StateRunning
	// StateUnhealthy means the process is up but failing health checks.
	StateUnhealthy
	StateStopping
	StateStopped
	// StateFailed means the install phase failed, the process failed to
	// start, or it crashed.
	StateFailed
)

func (ps ProcessState) String() string {
	switch ps {
	case StateUnknown:
		return "Unknown"
	case StateInstalling:
		return "Installing"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateUnhealthy:
		return "Unhealthy"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	case StateFailed:
		return "Failed"
	default:
		return "InvalidState"
	}
}

// LogEntry is one captured line of app process output.
type LogEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // "stdout" or "stderr"
	Message   string    `json:"message"`
	PID       int       `json:"pid"`
}

// LogBuffer keeps a bounded ring of recent process output lines.
type LogBuffer struct {
	mu       sync.RWMutex
	entries  []LogEntry
	capacity int
	nextID   int64
}

func NewLogBuffer(capacity int) *LogBuffer {
	return &LogBuffer{
		entries:  make([]LogEntry, 0, capacity),
		capacity: capacity,
		nextID:   1,
	}
}

func (lb *LogBuffer) Add(source, message string, pid int) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if len(lb.entries) >= lb.capacity {
		lb.entries = lb.entries[1:]
	}
	lb.entries = append(lb.entries, LogEntry{
		ID:        lb.nextID,
		Timestamp: time.Now(),
		Source:    source,
		Message:   message,
		PID:       pid,
	})
	lb.nextID++
}

// Latest returns the most recent count entries, oldest first.
func (lb *LogBuffer) Latest(count int) []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	if count <= 0 || len(lb.entries) == 0 {
		return nil
	}
	start := len(lb.entries) - count
	if start < 0 {
		start = 0
	}
	out := make([]LogEntry, len(lb.entries)-start)
	copy(out, lb.entries[start:])
	return out
}

// ManagedProcess pairs a desired AppInstance with its running subprocess.
type ManagedProcess struct {
	Instance AppInstance
	Cmd      *exec.Cmd
	Port     int
	PID      int
	Logs     *LogBuffer

	mu             sync.Mutex
	state          ProcessState
	startTime      time.Time
	lastHealthy    time.Time
	unhealthySince time.Time
	restartCount   int
}

func NewManagedProcess(instance AppInstance, cmd *exec.Cmd, port int) *ManagedProcess {
	return &ManagedProcess{
		Instance:  instance,
		Cmd:       cmd,
		Port:      port,
		PID:       cmd.Process.Pid,
		Logs:      NewLogBuffer(1000),
		state:     StateStarting,
		startTime: time.Now(),
	}
}

func (mp *ManagedProcess) State() ProcessState {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.state
}

func (mp *ManagedProcess) SetState(newState ProcessState) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.state = newState

	switch newState {
	case StateRunning:
		mp.lastHealthy = time.Now()
		mp.unhealthySince = time.Time{}
	case StateUnhealthy:
		if mp.unhealthySince.IsZero() {
			mp.unhealthySince = time.Now()
		}
	case StateFailed, StateStopped:
		mp.Cmd = nil
	}
}

func (mp *ManagedProcess) markHealthy() {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.lastHealthy = time.Now()
	mp.unhealthySince = time.Time{}
	mp.restartCount = 0
}

func (mp *ManagedProcess) unhealthyFor() time.Duration {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if mp.unhealthySince.IsZero() {
		return 0
	}
	return time.Since(mp.unhealthySince)
}

// RecordRestart bumps the restart counter used for backoff.
func (mp *ManagedProcess) RecordRestart() {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.restartCount++
	mp.startTime = time.Now()
}

func (mp *ManagedProcess) RestartCount() int {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.restartCount
}
