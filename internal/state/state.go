// Package state persists the fuzzing session's resumable progress: seed id
// allocation, cycle count, and bandit counters, mirroring the teacher's
// file-backed global-state manager.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileName is the name of the persisted session-state file.
const FileName = "global_state.json"

// BanditCounters has the same shape as internal/mutate.Bandit's
// per-operator stats. Only UpdateBandit sets these fields; internal/fuzz
// neither calls it nor loads saved counters back into its Bandit, so a
// resumed session's bandit starts from zero counts.
type BanditCounters struct {
	Uses    int `json:"uses"`
	Reward  int `json:"reward"`
	Crashes int `json:"crashes"`
}

// GlobalState is the persistent state of one fuzzing session.
type GlobalState struct {
	LastAllocatedID  uint64         `json:"last_allocated_id"`
	CurrentFuzzingID uint64         `json:"current_fuzzing_id"`
	CycleCount       int            `json:"cycle_count"`
	TotalCoverage    int            `json:"total_coverage"` // number of distinct edges
	Havoc            BanditCounters `json:"havoc"`
	Splice           BanditCounters `json:"splice"`
}

// Manager persists and mutates GlobalState.
type Manager interface {
	Load() error
	Save() error
	NextID() uint64
	UpdateCurrentID(id uint64)
	UpdateCoverage(edges int)
	IncrementCycle()
	UpdateBandit(havoc, splice BanditCounters)
	GetState() GlobalState
}

// FileManager is a file-backed, mutex-guarded Manager.
type FileManager struct {
	mu       sync.Mutex
	filePath string
	state    GlobalState
}

// NewFileManager returns a FileManager whose state file lives at
// dir/global_state.json.
func NewFileManager(dir string) *FileManager {
	return &FileManager{filePath: filepath.Join(dir, FileName)}
}

// Load reads the state from disk, initializing fresh defaults if the file
// does not yet exist.
func (m *FileManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.state = GlobalState{}
			return nil
		}
		return fmt.Errorf("read state file %s: %w", m.filePath, err)
	}

	if err := json.Unmarshal(data, &m.state); err != nil {
		return fmt.Errorf("parse state file %s: %w", m.filePath, err)
	}
	return nil
}

// Save writes the state to disk, creating the containing directory if
// needed.
func (m *FileManager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir := filepath.Dir(m.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if err := os.WriteFile(m.filePath, data, 0o644); err != nil {
		return fmt.Errorf("write state file %s: %w", m.filePath, err)
	}
	return nil
}

// NextID increments and returns the next dense seed id.
func (m *FileManager) NextID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.state.LastAllocatedID
	m.state.LastAllocatedID++
	return id
}

// UpdateCurrentID sets the id currently being fuzzed.
func (m *FileManager) UpdateCurrentID(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.CurrentFuzzingID = id
}

// UpdateCoverage sets the total distinct-edge count.
func (m *FileManager) UpdateCoverage(edges int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.TotalCoverage = edges
}

// IncrementCycle bumps the cycle counter.
func (m *FileManager) IncrementCycle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.CycleCount++
}

// UpdateBandit snapshots both operators' counters.
func (m *FileManager) UpdateBandit(havoc, splice BanditCounters) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Havoc = havoc
	m.state.Splice = splice
}

// GetState returns a copy of the current state.
func (m *FileManager) GetState() GlobalState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
