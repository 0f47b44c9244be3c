package processes

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

const (
	defaultHealthCheckInterval    = 15 * time.Second
	defaultHealthCheckTimeout     = 5 * time.Second
	defaultConsecutiveFailures    = 3
	defaultRestartBackoffInitial  = 1 * time.Second
	defaultRestartBackoffMax      = 30 * time.Second
	defaultGracefulShutdownPeriod = 10 * time.Second
)

// ProcessManager keeps the set of running app subprocesses matching the
// desired set from an InstanceProvider. It monitors health, restarts
// crashed apps with backoff, and exposes lookup for the proxy.
type ProcessManager struct {
	mu sync.RWMutex

	provider    InstanceProvider
	actualState map[string]*ManagedProcess // keyed by app name

	portManager   *PortManager
	launcher      *Launcher
	healthChecker HealthChecker
	logger        *slog.Logger

	healthCheckInterval    time.Duration
	consecutiveFailures    int
	restartBackoffInitial  time.Duration
	restartBackoffMax      time.Duration
	gracefulShutdownPeriod time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup

	// Fired once the first reconcile cycle ends with every desired app
	// healthy; used to flip the hub's readiness endpoint.
	onReady       func()
	readyFired    bool
	readyMu       sync.Mutex
	restartNotify func(app string)
}

// Config holds the options for NewProcessManager. Provider, PortManager
// and Launcher are required; everything else has a sensible default.
type Config struct {
	Provider      InstanceProvider
	PortManager   *PortManager
	Launcher      *Launcher
	HealthChecker HealthChecker
	Logger        *slog.Logger

	HealthCheckInterval    time.Duration
	HealthCheckTimeout     time.Duration
	ConsecutiveFailures    int
	RestartBackoffInitial  time.Duration
	RestartBackoffMax      time.Duration
	GracefulShutdownPeriod time.Duration

	// OnReady fires exactly once, in its own goroutine, when the first
	// reconcile completes with all desired apps running and healthy.
	OnReady func()
	// RestartNotify is called whenever an app restart is initiated, for
	// metrics accounting.
	RestartNotify func(app string)
}

func NewProcessManager(config Config) (*ProcessManager, error) {
	if config.Provider == nil {
		return nil, fmt.Errorf("InstanceProvider is required")
	}
	if config.PortManager == nil {
		return nil, fmt.Errorf("PortManager is required")
	}
	if config.Launcher == nil {
		return nil, fmt.Errorf("Launcher is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	healthChecker := config.HealthChecker
	if healthChecker == nil {
		hcTimeout := config.HealthCheckTimeout
		if hcTimeout == 0 {
			hcTimeout = defaultHealthCheckTimeout
		}
		healthChecker = NewHTTPHealthChecker(hcTimeout)
	}

	hcInterval := config.HealthCheckInterval
	if hcInterval == 0 {
		hcInterval = defaultHealthCheckInterval
	}
	consFailures := config.ConsecutiveFailures
	if consFailures == 0 {
		consFailures = defaultConsecutiveFailures
	}
	restartInitial := config.RestartBackoffInitial
	if restartInitial == 0 {
		restartInitial = defaultRestartBackoffInitial
	}
	restartMax := config.RestartBackoffMax
	if restartMax == 0 {
		restartMax = defaultRestartBackoffMax
	}
	gracefulShutdown := config.GracefulShutdownPeriod
	if gracefulShutdown == 0 {
		gracefulShutdown = defaultGracefulShutdownPeriod
	}

	return &ProcessManager{
		provider:               config.Provider,
		actualState:            make(map[string]*ManagedProcess),
		portManager:            config.PortManager,
		launcher:               config.Launcher,
		healthChecker:          healthChecker,
		logger:                 logger.With("component", "ProcessManager"),
		healthCheckInterval:    hcInterval,
		consecutiveFailures:    consFailures,
		restartBackoffInitial:  restartInitial,
		restartBackoffMax:      restartMax,
		gracefulShutdownPeriod: gracefulShutdown,
		stopChan:               make(chan struct{}),
		onReady:                config.OnReady,
		restartNotify:          config.RestartNotify,
	}, nil
}

// IsReady reports whether the first reconcile has completed with every
// desired app healthy.
func (pm *ProcessManager) IsReady() bool {
	pm.readyMu.Lock()
	defer pm.readyMu.Unlock()
	return pm.readyFired
}

// Run starts the reconciliation and health monitoring loops and blocks
// until Stop is called or the context is cancelled.
func (pm *ProcessManager) Run(ctx context.Context) {
	pm.logger.Info("ProcessManager starting")
	pm.wg.Add(2)
	go pm.reconcilerLoop(ctx)
	go pm.healthMonitorLoop(ctx)

	select {
	case <-pm.stopChan:
		pm.logger.Info("ProcessManager received stop signal")
	case <-ctx.Done():
		pm.logger.Info("ProcessManager context cancelled")
	}

	pm.shutdown(context.Background())
}

// Stop shuts down the manager and all managed subprocesses.
func (pm *ProcessManager) Stop() {
	pm.logger.Info("Stopping ProcessManager")
	close(pm.stopChan)
	pm.wg.Wait()
	pm.logger.Info("ProcessManager stopped")
}

// ErrAppNotFound means no managed app has the requested name.
var ErrAppNotFound = errors.New("app not found")

// ErrAppNotRunning means the app exists but is not currently serving.
var ErrAppNotRunning = errors.New("app not running")

// GetAppInstanceByName returns a copy of the named instance and its
// allocated port if the app is currently running and healthy. The proxy
// uses this to resolve path prefixes; a non-running app is an error so
// the caller fails fast instead of masking a crashed backend.
func (pm *ProcessManager) GetAppInstanceByName(name string) (*AppInstance, int, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	process, exists := pm.actualState[name]
	if !exists {
		return nil, 0, fmt.Errorf("%w: %s", ErrAppNotFound, name)
	}
	if state := process.State(); state != StateRunning {
		return nil, 0, fmt.Errorf("%w: %s (state: %s)", ErrAppNotRunning, name, state)
	}
	instanceCopy := process.Instance
	return &instanceCopy, process.Port, nil
}

// AppStatus is a point-in-time snapshot of one managed app.
type AppStatus struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	State       string `json:"state"`
	Port        int    `json:"port,omitempty"`
	PID         int    `json:"pid,omitempty"`
	Restarts    int    `json:"restarts"`
}

// Statuses returns a snapshot of every managed app, for the hub's index
// page and status API.
func (pm *ProcessManager) Statuses() []AppStatus {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	statuses := make([]AppStatus, 0, len(pm.actualState))
	for _, process := range pm.actualState {
		statuses = append(statuses, AppStatus{
			Name:        process.Instance.Name,
			DisplayName: process.Instance.DisplayName,
			State:       process.State().String(),
			Port:        process.Port,
			PID:         process.PID,
			Restarts:    process.RestartCount(),
		})
	}
	return statuses
}

func (pm *ProcessManager) shutdown(ctx context.Context) {
	pm.logger.Info("Shutting down all managed processes")
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var shutdownWg sync.WaitGroup
	for name, process := range pm.actualState {
		state := process.State()
		if state == StateRunning || state == StateStarting || state == StateUnhealthy {
			shutdownWg.Add(1)
			go func(app string, proc *ManagedProcess) {
				defer shutdownWg.Done()
				if err := pm.stopProcess(ctx, proc, true); err != nil {
					pm.logger.Error("Error stopping process during shutdown", "app", app, "error", err)
				}
			}(name, process)
		}
	}
	shutdownWg.Wait()
}

func (pm *ProcessManager) reconcilerLoop(ctx context.Context) {
	defer pm.wg.Done()
	pm.logger.Info("Reconciler loop started")

	if err := pm.reconcileState(ctx); err != nil {
		pm.logger.Error("Initial reconciliation failed", "error", err)
	}

	ticker := time.NewTicker(pm.healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pm.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := pm.reconcileState(ctx); err != nil {
				pm.logger.Error("Reconciliation failed", "error", err)
			}
		}
	}
}

func (pm *ProcessManager) healthMonitorLoop(ctx context.Context) {
	defer pm.wg.Done()
	pm.logger.Info("Health monitor loop started")

	ticker := time.NewTicker(pm.healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pm.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.performHealthChecks(ctx)
		}
	}
}

// checkAndFireReady is called at the end of each reconcile cycle with
// pm.mu held.
func (pm *ProcessManager) checkAndFireReady() {
	pm.readyMu.Lock()
	defer pm.readyMu.Unlock()

	if pm.readyFired {
		return
	}

	desired, err := pm.provider.Instances(context.Background())
	if err != nil {
		return
	}
	if len(pm.actualState) != len(desired) {
		return
	}
	for _, instance := range desired {
		process, exists := pm.actualState[instance.Name]
		if !exists || process.State() != StateRunning {
			return
		}
	}

	pm.readyFired = true
	if pm.onReady != nil {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					pm.logger.Error("Ready callback panicked", "error", r)
				}
			}()
			pm.onReady()
		}()
	}
}

func (pm *ProcessManager) reconcileState(ctx context.Context) error {
	desired, err := pm.provider.Instances(ctx)
	if err != nil {
		return fmt.Errorf("failed to get desired app instances: %w", err)
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	desiredMap := make(map[string]AppInstance, len(desired))
	for _, inst := range desired {
		desiredMap[inst.Name] = inst
	}

	for name, want := range desiredMap {
		actual, exists := pm.actualState[name]
		if exists {
			state := actual.State()
			if state == StateRunning || state == StateUnhealthy || state == StateStarting || state == StateInstalling {
				if actual.Instance.Binary != want.Binary || actual.Instance.Manifest != want.Manifest {
					pm.logger.Info("App configuration changed, restarting",
						"app", name, "oldBinary", actual.Instance.Binary, "newBinary", want.Binary)
					go func(proc *ManagedProcess) {
						if err := pm.stopProcess(ctx, proc, true); err != nil {
							pm.logger.Error("Failed to stop process for config update", "app", proc.Instance.Name, "error", err)
						}
					}(actual)
				}
				continue
			}
		}

		actual, exists = pm.actualState[name]
		if !exists || actual.State() == StateStopped || actual.State() == StateFailed {
			pm.logger.Info("App needs to be started", "app", name)
			go pm.startProcess(ctx, want)
		}
	}

	for name, actual := range pm.actualState {
		if _, wanted := desiredMap[name]; !wanted {
			state := actual.State()
			if state == StateRunning || state == StateStarting || state == StateUnhealthy || state == StateInstalling {
				pm.logger.Info("App no longer desired, stopping", "app", name)
				go func(proc *ManagedProcess) {
					if err := pm.stopProcess(ctx, proc, true); err != nil {
						pm.logger.Error("Failed to stop undesired process", "app", proc.Instance.Name, "error", err)
					}
				}(actual)
			}
		}
	}

	pm.checkAndFireReady()
	return nil
}

// startProcess launches one app: install the dependency manifest first,
// then start the binary on a freshly allocated port. An install failure
// marks the app Failed without ever starting it.
func (pm *ProcessManager) startProcess(ctx context.Context, instance AppInstance) {
	pm.mu.Lock()
	existing, exists := pm.actualState[instance.Name]
	if exists {
		state := existing.State()
		if state == StateRunning || state == StateStarting || state == StateInstalling {
			pm.mu.Unlock()
			return
		}
		existing.RecordRestart()
		if pm.restartNotify != nil {
			pm.restartNotify(instance.Name)
		}
		backoff := calculateBackoff(existing.RestartCount(), pm.restartBackoffInitial, pm.restartBackoffMax)
		pm.logger.Info("Applying restart backoff", "app", instance.Name, "duration", backoff, "restartCount", existing.RestartCount())
		existing.SetState(StateInstalling)
		pm.mu.Unlock()

		select {
		case <-time.After(backoff):
		case <-pm.stopChan:
			return
		case <-ctx.Done():
			return
		}
	} else {
		placeholder := &ManagedProcess{Instance: instance, state: StateInstalling, Logs: NewLogBuffer(1000)}
		pm.actualState[instance.Name] = placeholder
		pm.mu.Unlock()
	}

	if err := pm.launcher.InstallDependencies(ctx, instance); err != nil {
		pm.logger.Error("Dependency install failed, app will not be started", "app", instance.Name, "error", err)
		pm.setFailed(instance.Name)
		return
	}

	port, err := pm.portManager.Allocate()
	if err != nil {
		pm.logger.Error("Failed to allocate port", "app", instance.Name, "error", err)
		pm.setFailed(instance.Name)
		return
	}

	cmd := pm.launcher.Command(ctx, instance, port)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		pm.logger.Error("Failed to get stdout pipe", "app", instance.Name, "error", err)
		pm.portManager.Release(port)
		pm.setFailed(instance.Name)
		return
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		pm.logger.Error("Failed to get stderr pipe", "app", instance.Name, "error", err)
		stdoutPipe.Close()
		pm.portManager.Release(port)
		pm.setFailed(instance.Name)
		return
	}

	if err := cmd.Start(); err != nil {
		pm.logger.Error("Failed to start subprocess", "app", instance.Name, "error", err, "command", cmd.String())
		pm.portManager.Release(port)
		pm.setFailed(instance.Name)
		return
	}

	mp := NewManagedProcess(instance, cmd, port)

	pm.mu.Lock()
	pm.actualState[instance.Name] = mp
	pm.mu.Unlock()

	pm.logger.Info("Subprocess started", "app", instance.Name, "pid", mp.PID, "port", port)

	pm.wg.Add(1)
	go func() {
		defer pm.wg.Done()
		defer stdoutPipe.Close()
		scanner := bufio.NewScanner(stdoutPipe)
		for scanner.Scan() {
			mp.Logs.Add("stdout", scanner.Text(), mp.PID)
			pm.logger.Info("App stdout", "app", instance.Name, "output", scanner.Text())
		}
	}()

	pm.wg.Add(1)
	go func() {
		defer pm.wg.Done()
		defer stderrPipe.Close()
		scanner := bufio.NewScanner(stderrPipe)
		for scanner.Scan() {
			mp.Logs.Add("stderr", scanner.Text(), mp.PID)
			pm.logger.Warn("App stderr", "app", instance.Name, "output", scanner.Text())
		}
	}()

	pm.wg.Add(1)
	go func() {
		defer pm.wg.Done()
		err := cmd.Wait()
		pm.handleProcessExit(ctx, mp, err)
	}()
}

func (pm *ProcessManager) setFailed(name string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if proc, ok := pm.actualState[name]; ok {
		proc.SetState(StateFailed)
	}
}

// stopProcess sends SIGTERM, waits for the graceful shutdown period and
// then SIGKILLs. removeFromActual drops the entry so the reconciler can
// cleanly restart it.
func (pm *ProcessManager) stopProcess(ctx context.Context, process *ManagedProcess, removeFromActual bool) error {
	process.SetState(StateStopping)
	pm.logger.Info("Stopping process", "app", process.Instance.Name, "pid", process.PID)

	if process.Cmd == nil || process.Cmd.Process == nil {
		process.SetState(StateStopped)
		if removeFromActual {
			pm.mu.Lock()
			delete(pm.actualState, process.Instance.Name)
			pm.mu.Unlock()
		}
		pm.portManager.Release(process.Port)
		return nil
	}

	if err := process.Cmd.Process.Signal(os.Interrupt); err != nil {
		pm.logger.Error("Failed to signal process", "app", process.Instance.Name, "pid", process.PID, "error", err)
	}

	timer := time.NewTimer(pm.gracefulShutdownPeriod)
	exitChan := make(chan error, 1)
	go func() {
		exitChan <- process.Cmd.Wait()
	}()

	select {
	case err := <-exitChan:
		timer.Stop()
		if err != nil {
			pm.logger.Info("Process exited after signal", "app", process.Instance.Name, "pid", process.PID, "error", err)
		}
	case <-timer.C:
		pm.logger.Warn("Process did not exit gracefully, killing", "app", process.Instance.Name, "pid", process.PID)
		if err := process.Cmd.Process.Kill(); err != nil {
			pm.logger.Error("Failed to kill process", "app", process.Instance.Name, "pid", process.PID, "error", err)
			process.SetState(StateFailed)
			return fmt.Errorf("failed to kill process %s (PID %d): %w", process.Instance.Name, process.PID, err)
		}
		<-exitChan
	case <-ctx.Done():
		process.Cmd.Process.Kill()
		process.SetState(StateFailed)
		return ctx.Err()
	}

	process.SetState(StateStopped)
	pm.portManager.Release(process.Port)

	if removeFromActual {
		pm.mu.Lock()
		delete(pm.actualState, process.Instance.Name)
		pm.mu.Unlock()
	}
	return nil
}

// handleProcessExit runs after cmd.Wait returns for an app. Unexpected
// exits trigger a restart if the app is still desired.
func (pm *ProcessManager) handleProcessExit(ctx context.Context, process *ManagedProcess, exitErr error) {
	priorState := process.State()
	pm.logger.Info("Process exited", "app", process.Instance.Name, "pid", process.PID,
		"exitError", exitErr, "priorState", priorState.String())

	if priorState != StateStopping && priorState != StateStopped {
		pm.portManager.Release(process.Port)
		process.SetState(StateFailed)
	}

	select {
	case <-pm.stopChan:
		return
	default:
	}
	if priorState == StateStopping || priorState == StateStopped {
		return
	}

	desired, err := pm.provider.Instances(ctx)
	if err != nil {
		pm.logger.Error("Failed to get desired instances after process exit", "app", process.Instance.Name, "error", err)
		return
	}
	for _, di := range desired {
		if di.Name == process.Instance.Name {
			pm.logger.Info("Process exited unexpectedly, restarting", "app", process.Instance.Name)
			go pm.startProcess(ctx, di)
			return
		}
	}

	pm.logger.Info("Exited process no longer desired, not restarting", "app", process.Instance.Name)
	pm.mu.Lock()
	delete(pm.actualState, process.Instance.Name)
	pm.mu.Unlock()
}

func (pm *ProcessManager) performHealthChecks(ctx context.Context) {
	pm.mu.RLock()
	toCheck := make([]*ManagedProcess, 0, len(pm.actualState))
	for _, process := range pm.actualState {
		state := process.State()
		if state == StateRunning || state == StateUnhealthy || state == StateStarting {
			toCheck = append(toCheck, process)
		}
	}
	pm.mu.RUnlock()

	for _, process := range toCheck {
		select {
		case <-ctx.Done():
			return
		case <-pm.stopChan:
			return
		default:
		}
		pm.checkAndUpdateHealth(ctx, process)
	}
}

func (pm *ProcessManager) checkAndUpdateHealth(ctx context.Context, process *ManagedProcess) {
	newState, err := pm.healthChecker.Check(process)

	pm.mu.Lock()
	current, exists := pm.actualState[process.Instance.Name]
	if !exists || current != process {
		pm.mu.Unlock()
		return
	}

	if err != nil {
		pm.logger.Warn("Health check failed", "app", process.Instance.Name, "error", err)
	}

	state := process.State()
	if newState == StateRunning {
		if state != StateRunning {
			pm.logger.Info("App is now healthy", "app", process.Instance.Name)
			process.SetState(StateRunning)
		}
		process.markHealthy()
		pm.mu.Unlock()
		return
	}

	switch state {
	case StateRunning:
		pm.logger.Warn("App became unhealthy", "app", process.Instance.Name)
		process.SetState(StateUnhealthy)
	case StateStarting:
		process.SetState(StateUnhealthy)
	case StateUnhealthy:
		if process.unhealthyFor() >= time.Duration(pm.consecutiveFailures)*pm.healthCheckInterval {
			pm.logger.Error("App persistently unhealthy, restarting",
				"app", process.Instance.Name, "unhealthyFor", process.unhealthyFor())
			process.SetState(StateFailed)
			instance := process.Instance
			pm.mu.Unlock()
			go pm.startProcess(ctx, instance)
			return
		}
	}
	pm.mu.Unlock()
}

// calculateBackoff grows exponentially from initialDelay, capped at
// maxDelay.
func calculateBackoff(restartCount int, initialDelay, maxDelay time.Duration) time.Duration {
	if restartCount <= 0 {
		return 0
	}
	backoff := initialDelay
	for i := 1; i < restartCount; i++ {
		backoff *= 2
		if backoff > maxDelay {
			return maxDelay
		}
	}
	return backoff
}
