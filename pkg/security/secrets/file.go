package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileProvider resolves ${file:NAME} references from files in Dir, one
// secret per file as mounted by Kubernetes or Docker secrets. Files must be
// regular files with mode 0600 or 0400.
type FileProvider struct {
	Dir string

	mu      sync.RWMutex
	values  map[string]string
	watcher *fsnotify.Watcher
	done    chan struct{}
	logger  *slog.Logger
}

// NewFileProvider creates a file provider for dir. With watch set, cached
// values are dropped whenever a file in dir is written or replaced.
func NewFileProvider(dir string, watch bool) (*FileProvider, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat secrets dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("secrets dir %s is not a directory", dir)
	}

	p := &FileProvider{
		Dir:    dir,
		values: make(map[string]string),
		done:   make(chan struct{}),
		logger: slog.Default().With("component", "secrets.file"),
	}

	if watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create file watcher: %w", err)
		}
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		p.watcher = w
		go p.watchLoop()
	}
	return p, nil
}

// GetSecret reads the file named name, trimmed of surrounding whitespace.
func (p *FileProvider) GetSecret(_ context.Context, name string) (string, error) {
	p.mu.RLock()
	value, ok := p.values[name]
	p.mu.RUnlock()
	if ok {
		return value, nil
	}

	path, err := p.path(name)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("secret file %q not found", name)
		}
		return "", fmt.Errorf("failed to stat secret file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("secret %q is not a regular file", name)
	}
	if mode := info.Mode().Perm(); mode != 0o600 && mode != 0o400 {
		return "", fmt.Errorf("insecure permissions on secret %q: %o (expected 0600 or 0400)", name, mode)
	}

	// #nosec G304 - path is confined to Dir
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file: %w", err)
	}
	value = strings.TrimSpace(string(data))

	p.mu.Lock()
	p.values[name] = value
	p.mu.Unlock()
	return value, nil
}

func (p *FileProvider) path(name string) (string, error) {
	base, err := filepath.Abs(p.Dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve secrets dir: %w", err)
	}
	path, err := filepath.Abs(filepath.Join(base, name))
	if err != nil {
		return "", fmt.Errorf("failed to resolve secret path: %w", err)
	}
	if !strings.HasPrefix(path, base+string(filepath.Separator)) {
		return "", fmt.Errorf("secret name %q escapes the secrets dir", name)
	}
	return path, nil
}

// Scheme implements Provider.
func (p *FileProvider) Scheme() string {
	return SchemeFile
}

// Refresh drops cached file contents.
func (p *FileProvider) Refresh(context.Context) error {
	p.mu.Lock()
	p.values = make(map[string]string)
	p.mu.Unlock()
	return nil
}

// Close stops watching.
func (p *FileProvider) Close() error {
	if p.watcher == nil {
		return nil
	}
	close(p.done)
	return p.watcher.Close()
}

func (p *FileProvider) watchLoop() {
	for {
		select {
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) {
				p.logger.Debug("secret file changed", "file", filepath.Base(event.Name), "op", event.Op.String())
				_ = p.Refresh(context.Background())
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("secret watcher error", "error", err)
		case <-p.done:
			return
		}
	}
}
