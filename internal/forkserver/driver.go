// Package forkserver drives an AFL-compatible fork-server target over the
// fixed fd 198/199 pipe protocol, per spec.md §4.1.
package forkserver

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// ForksrvFD is the control-read descriptor the instrumented target expects
// to find open in its own fd table; FORKSRV_FD+1 is the status-write
// descriptor.
const ForksrvFD = 198

// TimeoutSentinel is the synthetic status RunOnce returns when the target
// does not report back within the deadline. It is the numeric value of
// SIGKILL, reused throughout the system as the timeout marker (see
// internal/classify).
const TimeoutSentinel = 9

// driverState encodes where in the handshake/run protocol the driver is,
// per spec.md §9's design note: explicit states rather than interleaved
// reads and writes.
type driverState int

const (
	stateUninitialised driverState = iota
	stateHandshaken
	stateAwaitingPID
	stateAwaitingStatus
)

// Driver owns one persistent fork-server child process and the pipes used
// to talk to it.
type Driver struct {
	state driverState

	proc *os.Process

	ctlW    *os.File // parent's control-write end (child reads fd 198)
	statusR *os.File // parent's status-read end (child writes fd 199)

	lastChildPID int

	// drained is non-nil after a timed-out RunOnce: the killed
	// grandchild's status word still lands on statusR once the
	// fork-server stub's blocking wait() returns, so a goroutine is left
	// reading it in the background. The next RunOnce must wait for that
	// goroutine to finish before issuing its own read on the same fd, or
	// the two reads race and can tear/misroute a 4-byte frame.
	drained chan struct{}
}

// Start forks the target, wiring its fd 198/199 to a pair of fresh pipes,
// redirecting stdout/stderr to /dev/null, and exporting shmID via
// __AFL_SHM_ID. It blocks until the target's initial 4-byte hello arrives.
func Start(targetPath string, args []string, shmID int) (*Driver, error) {
	var ctlFDs, statusFDs [2]int
	if err := unix.Pipe2(ctlFDs[:], 0); err != nil {
		return nil, fmt.Errorf("create control pipe: %w", err)
	}
	if err := unix.Pipe2(statusFDs[:], 0); err != nil {
		return nil, fmt.Errorf("create status pipe: %w", err)
	}

	ctlR, ctlW := ctlFDs[0], ctlFDs[1]
	statusR, statusW := statusFDs[0], statusFDs[1]

	devNull, err := unix.Open(os.DevNull, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer unix.Close(devNull)

	// Files[i] becomes fd i in the child. Pad with /dev/null up to
	// ForksrvFD so the control/status ends land on the fixed descriptors
	// the instrumented target's startup stub looks for.
	files := make([]uintptr, ForksrvFD+2)
	for i := 0; i < 3; i++ {
		files[i] = uintptr(devNull)
	}
	for i := 3; i < ForksrvFD; i++ {
		files[i] = uintptr(devNull)
	}
	files[ForksrvFD] = uintptr(ctlR)
	files[ForksrvFD+1] = uintptr(statusW)

	env := append(os.Environ(), fmt.Sprintf("__AFL_SHM_ID=%d", shmID))
	argv := append([]string{targetPath}, args...)

	pid, err := unix.ForkExec(targetPath, argv, &unix.ProcAttr{
		Env:   env,
		Files: files,
	})
	if err != nil {
		unix.Close(ctlR)
		unix.Close(ctlW)
		unix.Close(statusR)
		unix.Close(statusW)
		return nil, fmt.Errorf("fork/exec target: %w", err)
	}

	// Parent keeps only its own ends.
	unix.Close(ctlR)
	unix.Close(statusW)

	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("find forked process %d: %w", pid, err)
	}

	d := &Driver{
		proc:    proc,
		ctlW:    os.NewFile(uintptr(ctlW), "forksrv-ctl-write"),
		statusR: os.NewFile(uintptr(statusR), "forksrv-status-read"),
	}

	hello := make([]byte, 4)
	if _, err := readFull(d.statusR, hello); err != nil {
		return nil, fmt.Errorf("fork-server handshake: %w", err)
	}
	d.state = stateHandshaken

	return d, nil
}

// RunOnce drives one fork-server round trip: write the control word, read
// back the grandchild pid, then wait for its wait-status with the given
// deadline. On timeout it kills the grandchild by the pid already reported
// and returns the timeout sentinel status.
func (d *Driver) RunOnce(timeout time.Duration) (status int32, elapsedSeconds float64, err error) {
	if d.state != stateHandshaken {
		return 0, 0, fmt.Errorf("run_once called in state %d, want handshaken", d.state)
	}

	if d.drained != nil {
		<-d.drained
		d.drained = nil
	}

	start := time.Now()

	if _, err := d.ctlW.Write([]byte{0, 0, 0, 0}); err != nil {
		return 0, 0, fmt.Errorf("write control word: %w", err)
	}
	d.state = stateAwaitingPID

	pidBuf := make([]byte, 4)
	if _, err := readFull(d.statusR, pidBuf); err != nil {
		return 0, 0, fmt.Errorf("read grandchild pid: %w", err)
	}
	pid := int32(binary.LittleEndian.Uint32(pidBuf))
	d.lastChildPID = int(pid)
	d.state = stateAwaitingStatus

	type result struct {
		status int32
		err    error
	}
	done := make(chan result, 1)
	go func() {
		buf := make([]byte, 4)
		if _, err := readFull(d.statusR, buf); err != nil {
			done <- result{0, err}
			return
		}
		done <- result{int32(binary.LittleEndian.Uint32(buf)), nil}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return 0, 0, fmt.Errorf("read status word: %w", r.err)
		}
		elapsedSeconds = time.Since(start).Seconds()
		d.state = stateHandshaken
		return r.status, elapsedSeconds, nil

	case <-time.After(timeout):
		if d.lastChildPID > 0 {
			_ = unix.Kill(int(d.lastChildPID), unix.SIGKILL)
		}
		elapsedSeconds = time.Since(start).Seconds()
		d.state = stateHandshaken

		// The killed grandchild's status word is still coming: the
		// fork-server stub's wait() unblocks once SIGKILL lands and it
		// writes the status right after. Let the goroutine above keep
		// reading it, and record a signal the next RunOnce waits on
		// before it touches statusR itself.
		drained := make(chan struct{})
		go func() {
			<-done
			close(drained)
		}()
		d.drained = drained

		return TimeoutSentinel, elapsedSeconds, nil
	}
}

// Close tears down the pipes and terminates the fork-server process.
func (d *Driver) Close() error {
	ctlErr := d.ctlW.Close()
	statusErr := d.statusR.Close()
	if d.proc != nil {
		_ = d.proc.Kill()
		_, _ = d.proc.Wait()
	}
	if ctlErr != nil {
		return fmt.Errorf("close control pipe: %w", ctlErr)
	}
	if statusErr != nil {
		return fmt.Errorf("close status pipe: %w", statusErr)
	}
	return nil
}

func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		if n > 0 {
			total += n
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
