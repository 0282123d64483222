package settings

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// fileSchema is the YAML shape of a settings file. Durations are
// expressed in seconds to match what the admin layer persists.
type fileSchema struct {
	KeyRotationRequestCount *int    `yaml:"keyRotationRequestCount"`
	MaxFailureCount         *int    `yaml:"maxFailureCount"`
	RateLimitCooldown       *int    `yaml:"rateLimitCooldown"`
	LoadBalancingStrategy   *string `yaml:"loadBalancingStrategy"`
	MaxRetries              *int    `yaml:"maxRetries"`
	RequestRateLimit        *int    `yaml:"requestRateLimit"`
}

// FileProvider reads settings from a YAML file and reloads it when the
// file changes. Missing keys fall back to Default(); a file that fails
// to parse or validate keeps the previous snapshot.
type FileProvider struct {
	path   string
	logger *slog.Logger

	mu   sync.RWMutex
	snap Snapshot

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewFileProvider loads the settings file at path. The file must exist
// and parse; subsequent reload failures are logged and ignored.
func NewFileProvider(path string) (*FileProvider, error) {
	p := &FileProvider{
		path:   path,
		logger: slog.Default().With("component", "settings"),
		snap:   Default(),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	if err := p.reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Read returns the current snapshot.
func (p *FileProvider) Read() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

// Watch starts reloading the file on change. It returns after the
// watcher is installed; reloads happen on a background goroutine until
// Stop is called.
func (p *FileProvider) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(p.path); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %q: %w", p.path, err)
	}
	p.watcher = watcher

	go p.watchLoop()
	return nil
}

// Stop stops the reload goroutine. No-op if Watch was never called.
func (p *FileProvider) Stop() {
	if p.watcher == nil {
		return
	}
	close(p.stopCh)
	<-p.doneCh
	p.watcher.Close()
}

func (p *FileProvider) watchLoop() {
	defer close(p.doneCh)

	// Editors often emit bursts of events for one save; debounce them.
	var pending *time.Timer
	for {
		select {
		case <-p.stopCh:
			return

		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(100*time.Millisecond, func() {
				if err := p.reload(); err != nil {
					p.logger.Error("settings reload failed, keeping previous snapshot",
						"path", p.path,
						"error", err,
					)
					return
				}
				p.logger.Info("settings reloaded", "path", p.path)
			})

		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("settings watcher error", "error", err)
		}
	}
}

// reload parses the file and swaps the snapshot in atomically.
func (p *FileProvider) reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("failed to read settings file: %w", err)
	}

	var raw fileSchema
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse settings file: %w", err)
	}

	snap := Default()
	if raw.KeyRotationRequestCount != nil {
		snap.KeyRotationRequestCount = *raw.KeyRotationRequestCount
	}
	if raw.MaxFailureCount != nil {
		snap.MaxFailureCount = *raw.MaxFailureCount
	}
	if raw.RateLimitCooldown != nil {
		snap.RateLimitCooldown = time.Duration(*raw.RateLimitCooldown) * time.Second
	}
	if raw.LoadBalancingStrategy != nil {
		snap.LoadBalancingStrategy = Strategy(*raw.LoadBalancingStrategy)
	}
	if raw.MaxRetries != nil {
		snap.MaxRetries = *raw.MaxRetries
	}
	if raw.RequestRateLimit != nil {
		snap.RequestRateLimit = *raw.RequestRateLimit
	}

	if err := snap.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	p.mu.Lock()
	p.snap = snap
	p.mu.Unlock()
	return nil
}
