// Package shm owns the lifecycle of the SysV shared-memory segment that
// carries the coverage map between the fuzzer and the instrumented target,
// mirroring mini-lop's ctypes-based shmget/shmat/shmctl sequence.
package shm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Segment is an attached SysV shared-memory region owned by the fuzzer.
// The target merely attaches to it by id; only the fuzzer creates and
// destroys it.
type Segment struct {
	id   int
	data []byte
}

// Create allocates a new IPC-private shared-memory segment of the given
// size and attaches it into this process's address space. The segment is
// created with 0600 permissions, matching mini-lop-main/feedback.py's
// setup_shm.
func Create(size int) (*Segment, error) {
	id, err := unix.SysvShmGet(unix.IPC_PRIVATE, size, unix.IPC_CREAT|unix.IPC_EXCL|0o600)
	if err != nil {
		return nil, fmt.Errorf("shmget: %w", err)
	}

	data, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		_, _ = unix.SysvShmctl(id, unix.IPC_RMID, nil)
		return nil, fmt.Errorf("shmat: %w", err)
	}

	return &Segment{id: id, data: data}, nil
}

// ID returns the shared-memory identifier to export to the target via
// __AFL_SHM_ID.
func (s *Segment) ID() int {
	return s.id
}

// Bytes returns the mapped shared-memory region. Callers must not retain
// the slice beyond Close.
func (s *Segment) Bytes() []byte {
	return s.data
}

// Clear zeroes the entire segment. Must run before each target execution
// per spec.md's invariant that the coverage map is zeroed immediately
// before sending a run request.
func (s *Segment) Clear() {
	for i := range s.data {
		s.data[i] = 0
	}
}

// Close detaches the segment from this process and marks it for removal.
// IPC-private segments are reclaimed by the kernel once every attacher
// (including any fork-server grandchildren) has exited, but we remove it
// explicitly so a clean fuzzer exit never leaks the segment.
func (s *Segment) Close() error {
	if s.data == nil {
		return nil
	}
	detachErr := unix.SysvShmDetach(s.data)
	s.data = nil
	_, ctlErr := unix.SysvShmctl(s.id, unix.IPC_RMID, nil)
	if detachErr != nil {
		return fmt.Errorf("shmdt: %w", detachErr)
	}
	if ctlErr != nil {
		return fmt.Errorf("shmctl(IPC_RMID): %w", ctlErr)
	}
	return nil
}
