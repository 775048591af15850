package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"mercator-hq/kate/pkg/service"
)

// FileStore keeps services in a single JSON or YAML file. The format is chosen
// by extension.
type FileStore struct {
	path string
	yaml bool
	mu   sync.Mutex
}

// NewFileStore opens the services file at path, creating it as an empty list
// when it does not exist.
func NewFileStore(path string) (*FileStore, error) {
	var isYAML bool
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
	case ".yaml", ".yml":
		isYAML = true
	default:
		return nil, newError("file", "open", ErrUnsupportedFormat)
	}

	s := &FileStore{path: path, yaml: isYAML}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := s.Save(context.Background(), []service.Service{}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, newError("file", "stat", err)
	}
	return s, nil
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads and decodes the file.
func (s *FileStore) Load(_ context.Context) ([]service.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, newError("file", "read", err)
	}
	return decode(data, s.yaml)
}

func decode(data []byte, isYAML bool) ([]service.Service, error) {
	services := []service.Service{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return services, nil
	}

	var err error
	if isYAML {
		err = yaml.Unmarshal(data, &services)
	} else {
		err = json.Unmarshal(data, &services)
	}
	if err != nil {
		return nil, newError("file", "decode", err)
	}
	if services == nil {
		services = []service.Service{}
	}
	return services, nil
}

// Save writes the services to a temporary file and renames it over the
// target, so readers never observe a partial document.
func (s *FileStore) Save(_ context.Context, services []service.Service) error {
	if services == nil {
		services = []service.Service{}
	}

	var (
		data []byte
		err  error
	)
	if s.yaml {
		data, err = yaml.Marshal(services)
	} else {
		data, err = json.MarshalIndent(services, "", "  ")
	}
	if err != nil {
		return newError("file", "encode", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return newError("file", "mkdir", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return newError("file", "create temp", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return newError("file", "write", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return newError("file", "sync", err)
	}
	if err := tmp.Close(); err != nil {
		return newError("file", "close", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return newError("file", "rename", err)
	}
	return nil
}

// Delete truncates the document to an empty list.
func (s *FileStore) Delete(ctx context.Context) error {
	return s.Save(ctx, []service.Service{})
}

// Ping checks that the file is still readable.
func (s *FileStore) Ping(_ context.Context) error {
	_, err := os.Stat(s.path)
	return err
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}
