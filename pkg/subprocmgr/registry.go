package subprocmgr

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/baketa-translate/core/pkg/util/xfile"
)

// PortRegistry maps a language-pair key ("ja-en") to the port its
// subprocess is currently listening on, persisted so clients can
// rediscover the server across restarts.
type PortRegistry interface {
	Lookup(langPair string) (port int, ok bool, err error)
	Store(langPair string, port int) error
}

// fileRegistry is a JSON-file-backed PortRegistry. Writes are
// atomic: the new content is written to a temp file in the same
// directory and renamed over the target, so readers never observe a
// partial write.
type fileRegistry struct {
	path string
}

// NewFileRegistry returns a PortRegistry backed by a local JSON file.
func NewFileRegistry(path string) PortRegistry {
	return &fileRegistry{path: path}
}

func (r *fileRegistry) read() (map[string]int, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return map[string]int{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("subprocmgr: read port registry: %w", err)
	}
	if len(data) == 0 {
		return map[string]int{}, nil
	}
	var m map[string]int
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("subprocmgr: parse port registry: %w", err)
	}
	return m, nil
}

func (r *fileRegistry) Lookup(langPair string) (int, bool, error) {
	m, err := r.read()
	if err != nil {
		return 0, false, err
	}
	port, ok := m[langPair]
	return port, ok, nil
}

func (r *fileRegistry) Store(langPair string, port int) error {
	if err := xfile.EnsureDir(r.path); err != nil {
		return fmt.Errorf("subprocmgr: ensure port registry directory: %w", err)
	}

	m, err := r.read()
	if err != nil {
		return err
	}
	m[langPair] = port

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("subprocmgr: marshal port registry: %w", err)
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, ".port-registry-*.tmp")
	if err != nil {
		return fmt.Errorf("subprocmgr: create temp registry file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("subprocmgr: write temp registry file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("subprocmgr: close temp registry file: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("subprocmgr: rename temp registry file: %w", err)
	}
	return nil
}
