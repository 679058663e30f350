// Package labels maps raw model output codes to the externally documented
// category names.
package labels

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// Unknown is the sentinel label for raw codes absent from the table. An
// unmapped code is recoverable information loss, not a fatal error.
const Unknown = "Unknown"

type tableFile struct {
	Version int               `yaml:"version"`
	Labels  map[string]string `yaml:"labels"`
}

// Mapper holds the versioned code-to-label table. The table is swapped
// atomically on reload, so Map never observes a half-loaded table.
type Mapper struct {
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	version int
	table   map[string]string
}

// NewMapper loads the mapping table from a YAML file. A missing or malformed
// table is fatal at startup.
func NewMapper(path string, logger *zap.Logger) (*Mapper, error) {
	m := &Mapper{path: path, logger: logger}
	if err := m.reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// Map translates a raw model code into its external label.
func (m *Mapper) Map(rawCode string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if label, ok := m.table[rawCode]; ok {
		return label
	}
	return Unknown
}

// Version reports the version of the currently loaded table.
func (m *Mapper) Version() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

func (m *Mapper) reload() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("reading label table: %w", err)
	}

	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing label table: %w", err)
	}
	if len(file.Labels) == 0 {
		return fmt.Errorf("label table %s has no labels", m.path)
	}

	m.mu.Lock()
	m.version = file.Version
	m.table = file.Labels
	m.mu.Unlock()
	return nil
}

// Watch reloads the table when its file changes, until ctx is cancelled. A
// malformed replacement is logged and ignored; the previous table stays live.
func (m *Mapper) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors and config pushes replace the file, which
	// drops a watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		return err
	}

	target := filepath.Clean(m.path)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := m.reload(); err != nil {
				m.logger.Warn("label table reload failed, keeping previous table",
					zap.String("path", m.path),
					zap.Error(err))
				continue
			}
			m.logger.Info("label table reloaded",
				zap.String("path", m.path),
				zap.Int("version", m.Version()))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("label table watcher error", zap.Error(err))

		case <-ctx.Done():
			return nil
		}
	}
}
