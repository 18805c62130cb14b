// Command target is a tiny fork-server-speaking test fixture used only by
// internal/fuzz's integration tests. It is not part of the lopfuzz module
// build (testdata/ is excluded by the Go toolchain).
//
// It reads FUZZ_TARGET_MODE to decide how to poke the shared coverage map
// and whether to crash:
//
//	identity - always marks edge 42, never crashes.
//	byte_edges - marks one edge per distinct input byte value, never crashes.
//	crash_on_A - marks edge 7, and aborts (SIGABRT) if the input's first
//	             byte is 0x41.
//
// Default (unset or unrecognised) marks no edges and always exits 0.
package main

import (
	"encoding/binary"
	"os"

	"golang.org/x/sys/unix"
)

const forksrvFD = 198

func main() {
	ctl := os.NewFile(uintptr(forksrvFD), "ctl")
	status := os.NewFile(uintptr(forksrvFD+1), "status")

	shmID := 0
	if v := os.Getenv("__AFL_SHM_ID"); v != "" {
		shmID = atoiOrZero(v)
	}
	var traceBits []byte
	if shmID != 0 {
		data, err := unix.SysvShmAttach(shmID, 0, 0)
		if err == nil {
			traceBits = data
		}
	}

	mode := os.Getenv("FUZZ_TARGET_MODE")
	inputPath := os.Getenv("FUZZ_TARGET_INPUT")

	status.Write([]byte{0, 0, 0, 0})

	ctlBuf := make([]byte, 4)
	for {
		if _, err := readFull(ctl, ctlBuf); err != nil {
			return
		}

		pid := os.Getpid()
		pidBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(pidBuf, uint32(pid))
		status.Write(pidBuf)

		exitStatus := runOnce(mode, inputPath, traceBits)

		statusBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(statusBuf, uint32(exitStatus))
		status.Write(statusBuf)
	}
}

func runOnce(mode, inputPath string, traceBits []byte) int {
	data, _ := os.ReadFile(inputPath)

	switch mode {
	case "identity":
		markEdge(traceBits, 42)
	case "byte_edges":
		for _, b := range data {
			markEdge(traceBits, uint16(b))
		}
	case "crash_on_A":
		markEdge(traceBits, 7)
		if len(data) > 0 && data[0] == 0x41 {
			return 6 // SIGABRT, no core-dump flag needed for classify's signal test
		}
	}
	return 0
}

func markEdge(traceBits []byte, edge uint16) {
	if traceBits != nil && int(edge) < len(traceBits) {
		traceBits[edge] = 1
	}
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

func atoiOrZero(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}
