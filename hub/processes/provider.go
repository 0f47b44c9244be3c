package processes

import (
	"context"
	"sync"

	"github.com/v3labs/demohub/hub/config"
)

// InstanceProvider yields the current set of desired app instances. The
// source can be a config file, an API, or a fixed list in tests.
type InstanceProvider interface {
	Instances(ctx context.Context) ([]AppInstance, error)
}

// ConfigProvider derives the desired state from the hub configuration.
// The config is immutable for the process lifetime, so this is a pure
// translation.
type ConfigProvider struct {
	apps []AppInstance
}

func NewConfigProvider(cfg *config.Config) *ConfigProvider {
	apps := make([]AppInstance, 0, len(cfg.Apps))
	for _, app := range cfg.EnabledApps() {
		apps = append(apps, AppInstance{
			Name:        app.Name,
			DisplayName: app.DisplayName,
			Binary:      app.Binary,
			Manifest:    app.Manifest,
			Env:         app.Env,
		})
	}
	return &ConfigProvider{apps: apps}
}

func (p *ConfigProvider) Instances(ctx context.Context) ([]AppInstance, error) {
	out := make([]AppInstance, len(p.apps))
	copy(out, p.apps)
	return out, nil
}

// StaticProvider is a mutable fixed-list provider, used by tests to
// simulate desired-state changes at runtime.
type StaticProvider struct {
	mu        sync.RWMutex
	instances []AppInstance
}

func NewStaticProvider(instances []AppInstance) *StaticProvider {
	return &StaticProvider{instances: instances}
}

func (p *StaticProvider) Instances(ctx context.Context) ([]AppInstance, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]AppInstance, len(p.instances))
	copy(out, p.instances)
	return out, nil
}

func (p *StaticProvider) Update(instances []AppInstance) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.instances = instances
}
