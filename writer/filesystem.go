package writer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gofrs/flock"

	"github.com/ethereum-optimism/infra/op-allure/types"
)

var _ Writer = (*FileSystemWriter)(nil)

// Config holds configuration for the file system writer
type Config struct {
	Directory    string // Results directory, created if missing
	IndentOutput bool   // Indent JSON output
	Log          log.Logger
}

// FileSystemWriter writes results into a directory consumed by the report generator.
//
// Writes to the same destination path are serialized by a named mutex. Across
// processes, writers hold a shared lock on the directory lock file and Cleanup
// holds it exclusively.
type FileSystemWriter struct {
	dir    string
	indent bool
	log    log.Logger

	cleanMu sync.RWMutex // writers read-lock, Cleanup write-locks

	mu            sync.Mutex             // Protects the fields below
	pathLocks     map[string]*namedMutex // Named mutexes of in-flight destination paths
	dirLock       *flock.Flock           // Cross-process lock on LockFileName
	sharedHolders int                    // In-process holders of the shared dirLock
}

type namedMutex struct {
	sync.Mutex
	refs int
}

// NewFileSystemWriter creates the results directory and returns a writer for it
func NewFileSystemWriter(cfg Config) (*FileSystemWriter, error) {
	if cfg.Directory == "" {
		return nil, fmt.Errorf("results directory cannot be empty")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	dir, err := filepath.Abs(cfg.Directory)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for results directory '%s': %w", cfg.Directory, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	cfg.Log.Debug("NewFileSystemWriter()", "dir", dir, "indent", cfg.IndentOutput)

	return &FileSystemWriter{
		dir:       dir,
		indent:    cfg.IndentOutput,
		log:       cfg.Log,
		pathLocks: make(map[string]*namedMutex),
		dirLock:   flock.New(filepath.Join(dir, LockFileName)),
	}, nil
}

// Directory returns the absolute results directory
func (w *FileSystemWriter) Directory() string {
	return w.dir
}

// WriteTest writes <uuid>-result.json
func (w *FileSystemWriter) WriteTest(result *types.TestResult) error {
	if result == nil {
		return types.NewArgumentError("test result")
	}
	return w.writeJSON(TestResultFileName(result.UUID), result)
}

// WriteContainer writes <uuid>-container.json
func (w *FileSystemWriter) WriteContainer(container *types.TestResultContainer) error {
	if container == nil {
		return types.NewArgumentError("container")
	}
	return w.writeJSON(ContainerFileName(container.UUID), container)
}

// WriteBinary writes attachment content under name
func (w *FileSystemWriter) WriteBinary(name string, content []byte) error {
	if name == "" || filepath.Base(name) != name {
		return fmt.Errorf("invalid attachment file name %q", name)
	}
	return w.writeFile(name, content)
}

// Cleanup removes every result file from the directory
func (w *FileSystemWriter) Cleanup() error {
	w.cleanMu.Lock()
	defer w.cleanMu.Unlock()

	if err := w.dirLock.Lock(); err != nil {
		return fmt.Errorf("failed to lock results directory %s: %w", w.dir, err)
	}
	defer func() {
		_ = w.dirLock.Unlock()
	}()

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read results directory %s: %w", w.dir, err)
	}

	var errs []error
	removed := 0
	for _, entry := range entries {
		if entry.Name() == LockFileName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(w.dir, entry.Name())); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", entry.Name(), err))
			continue
		}
		removed++
	}
	w.log.Info("Cleaned results directory", "dir", w.dir, "removed", removed)
	return errors.Join(errs...)
}

func (w *FileSystemWriter) writeJSON(name string, v any) error {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return w.writeFile(name, data)
}

// writeFile writes through a temp file and renames it into place so readers
// never observe a partially written result
func (w *FileSystemWriter) writeFile(name string, data []byte) error {
	w.cleanMu.RLock()
	defer w.cleanMu.RUnlock()

	release, err := w.acquireShared()
	if err != nil {
		return err
	}
	defer release()

	path := filepath.Join(w.dir, name)
	unlock := w.lockPath(path)
	defer unlock()

	tmp, err := os.CreateTemp(w.dir, ".tmp-"+name+"-")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}

	w.log.Debug("Wrote result file", "path", path, "bytes", len(data))
	return nil
}

// acquireShared takes the shared directory lock on behalf of one writer.
// The OS lock is held while at least one writer of this process is active.
func (w *FileSystemWriter) acquireShared() (func(), error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.sharedHolders == 0 {
		if err := w.dirLock.RLock(); err != nil {
			return nil, fmt.Errorf("failed to lock results directory %s: %w", w.dir, err)
		}
	}
	w.sharedHolders++

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()

		w.sharedHolders--
		if w.sharedHolders == 0 {
			if err := w.dirLock.Unlock(); err != nil {
				w.log.Warn("Failed to unlock results directory", "dir", w.dir, "err", err)
			}
		}
	}, nil
}

// lockPath locks the named mutex of path, creating it on first use and
// dropping it once no writer references it
func (w *FileSystemWriter) lockPath(path string) func() {
	w.mu.Lock()
	m, ok := w.pathLocks[path]
	if !ok {
		m = &namedMutex{}
		w.pathLocks[path] = m
	}
	m.refs++
	w.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()

		w.mu.Lock()
		defer w.mu.Unlock()
		m.refs--
		if m.refs == 0 {
			delete(w.pathLocks, path)
		}
	}
}
