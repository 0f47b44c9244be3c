package processes

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Launcher prepares and constructs app subprocess commands. Starting an app
// is a two-phase sequence: install the dependency manifest (if any), then
// exec the app binary. The install phase is a guarded setup step: if it
// fails, the app process is never started.
type Launcher struct {
	installer []string
	workDir   string
	logger    *slog.Logger
}

// DefaultInstaller installs Python-style requirement manifests; apps with
// compiled binaries simply ship no manifest.
var DefaultInstaller = []string{"pip", "install", "-r"}

func NewLauncher(installer []string, workDir string, logger *slog.Logger) *Launcher {
	if len(installer) == 0 {
		installer = DefaultInstaller
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		installer: installer,
		workDir:   workDir,
		logger:    logger.With("component", "Launcher"),
	}
}

// InstallDependencies runs the installer against the instance's manifest.
// No manifest, or a manifest path that does not exist, means nothing to
// install. Any installer failure is returned as an error; the caller must
// not start the app in that case.
func (l *Launcher) InstallDependencies(ctx context.Context, instance AppInstance) error {
	if instance.Manifest == "" {
		return nil
	}
	manifest := instance.Manifest
	if !strings.HasPrefix(manifest, "/") && l.workDir != "" {
		manifest = l.workDir + "/" + manifest
	}
	if _, err := os.Stat(manifest); os.IsNotExist(err) {
		l.logger.Debug("No dependency manifest present", "app", instance.Name, "manifest", manifest)
		return nil
	}

	args := append(append([]string{}, l.installer[1:]...), manifest)
	cmd := exec.CommandContext(ctx, l.installer[0], args...)
	cmd.Dir = l.workDir

	l.logger.Info("Installing dependencies", "app", instance.Name, "command", cmd.String())
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("dependency install for %s failed: %w (output: %s)",
			instance.Name, err, strings.TrimSpace(string(output)))
	}
	l.logger.Info("Dependencies installed", "app", instance.Name)
	return nil
}

// Command builds the exec.Cmd for the app process: the binary with the
// allocated port, APP_NAME in the environment, plus any instance extras.
func (l *Launcher) Command(ctx context.Context, instance AppInstance, port int) *exec.Cmd {
	cmd := exec.CommandContext(ctx, instance.Binary, "-port", fmt.Sprintf("%d", port))
	cmd.Dir = l.workDir
	cmd.Env = os.Environ()
	cmd.Env = append(cmd.Env, fmt.Sprintf("APP_NAME=%s", instance.Name))
	for k, v := range instance.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	return cmd
}
