// Command forksrv is a minimal AFL-compatible fork-server stub used only by
// internal/forkserver's integration tests, standing in for a real
// instrumented target. Its behavior is chosen by the FORKSRV_TEST_MODE
// environment variable: "normal" exits 0, "crash" raises SIGABRT, "hang"
// blocks forever so the driver's timeout path can be exercised, "hang-once"
// hangs on the first run only and exits 0 on every run after, for exercising
// a timeout immediately followed by a normal run.
package main

import (
	"encoding/binary"
	"os"

	"golang.org/x/sys/unix"
)

const forksrvFD = 198

func main() {
	ctl := os.NewFile(forksrvFD, "ctl")
	status := os.NewFile(forksrvFD+1, "status")
	if ctl == nil || status == nil {
		os.Exit(2)
	}

	if _, err := status.Write([]byte{0, 0, 0, 0}); err != nil {
		os.Exit(2)
	}

	buf := make([]byte, 4)
	for {
		if _, err := readFull(ctl, buf); err != nil {
			return
		}

		pid, err := spawnChild()
		if err != nil {
			os.Exit(2)
		}

		pidBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(pidBuf, uint32(pid))
		if _, err := status.Write(pidBuf); err != nil {
			os.Exit(2)
		}

		var ws unix.WaitStatus
		_, _ = unix.Wait4(pid, &ws, 0, nil)

		statusBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(statusBuf, uint32(ws))
		if _, err := status.Write(statusBuf); err != nil {
			os.Exit(2)
		}
	}
}

var runCount int

func spawnChild() (int, error) {
	runCount++
	switch os.Getenv("FORKSRV_TEST_MODE") {
	case "crash":
		return unix.ForkExec("/bin/sh", []string{"/bin/sh", "-c", "kill -ABRT $$"}, &unix.ProcAttr{})
	case "hang":
		return unix.ForkExec("/bin/sh", []string{"/bin/sh", "-c", "sleep 60"}, &unix.ProcAttr{})
	case "hang-once":
		if runCount == 1 {
			return unix.ForkExec("/bin/sh", []string{"/bin/sh", "-c", "sleep 60"}, &unix.ProcAttr{})
		}
		return unix.ForkExec("/bin/sh", []string{"/bin/sh", "-c", "exit 0"}, &unix.ProcAttr{})
	default:
		return unix.ForkExec("/bin/sh", []string{"/bin/sh", "-c", "exit 0"}, &unix.ProcAttr{})
	}
}

func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
