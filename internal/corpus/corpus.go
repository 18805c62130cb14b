// Package corpus manages the on-disk queue and crash directories, per
// spec.md §6's "Outputs": populating queue_folder from seeds_folder and
// naming newly interesting and crashing inputs.
package corpus

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/lopfuzz/lopfuzz/internal/logger"
)

// Manager copies the initial corpus into the working queue directory and
// names newly saved interesting/crashing inputs.
type Manager struct {
	mu            sync.Mutex
	seedsFolder   string
	queueFolder   string
	crashesFolder string
}

// New returns a Manager rooted at the given seeds/queue/crashes folders.
func New(seedsFolder, queueFolder, crashesFolder string) *Manager {
	return &Manager{
		seedsFolder:   seedsFolder,
		queueFolder:   queueFolder,
		crashesFolder: crashesFolder,
	}
}

// Initialize creates queue_folder and crashes_folder and populates
// queue_folder by copying every regular file out of seeds_folder.
// Initialize is idempotent: re-running it on an already-populated
// queue_folder simply re-copies the seeds folder's contents over it.
func (m *Manager) Initialize() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.queueFolder, 0o755); err != nil {
		return nil, fmt.Errorf("create queue folder %s: %w", m.queueFolder, err)
	}
	if err := os.MkdirAll(m.crashesFolder, 0o755); err != nil {
		return nil, fmt.Errorf("create crashes folder %s: %w", m.crashesFolder, err)
	}

	entries, err := os.ReadDir(m.seedsFolder)
	if err != nil {
		return nil, fmt.Errorf("read seeds folder %s: %w", m.seedsFolder, err)
	}

	var copied []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		src := filepath.Join(m.seedsFolder, e.Name())
		dst := filepath.Join(m.queueFolder, e.Name())
		if err := copyFile(src, dst); err != nil {
			return nil, fmt.Errorf("copy seed %s: %w", src, err)
		}
		copied = append(copied, dst)
	}

	logger.Infof("corpus: populated queue folder with %d seeds from %s", len(copied), m.seedsFolder)
	return copied, nil
}

// SaveInteresting writes data into queue_folder under the spec.md §6
// filename convention id_<id>, returning the path written.
func (m *Manager) SaveInteresting(id uint64, data []byte) (string, error) {
	path := filepath.Join(m.queueFolder, fmt.Sprintf("id_%d", id))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("save interesting input %s: %w", path, err)
	}
	return path, nil
}

// SaveCrash writes data into crashes_folder under the spec.md §6 filename
// convention crash_<unix_time>_<origin_basename>, returning the path
// written. unixTime is passed in rather than read from the clock so
// callers control the timestamp (and tests stay deterministic).
func (m *Manager) SaveCrash(unixTime int64, originPath string, data []byte) (string, error) {
	base := filepath.Base(originPath)
	path := filepath.Join(m.crashesFolder, fmt.Sprintf("crash_%d_%s", unixTime, base))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("save crash %s: %w", path, err)
	}
	logger.Warnf("corpus: crash saved to %s", path)
	return path, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
