// Package classify decodes a fork-server wait-status into crash, timeout,
// or normal-exit verdicts, per spec.md §4.3.
package classify

import "golang.org/x/sys/unix"

// Verdict is the outcome of classifying one run's wait-status.
type Verdict int

const (
	// Normal means the target exited without crashing or timing out.
	Normal Verdict = iota
	// Crash means the target died from a signal in the crash set, or
	// core-dumped.
	Crash
	// Timeout means the driver's run_once timed out; never counted as a
	// crash regardless of what the sentinel status happens to encode.
	Timeout
)

func (v Verdict) String() string {
	switch v {
	case Crash:
		return "crash"
	case Timeout:
		return "timeout"
	default:
		return "normal"
	}
}

// timeoutSentinel is the synthetic status the execution driver returns
// when run_once's deadline elapses before the child reports back. It
// collides with SIGKILL (9) in the crash signal set below, so the
// sentinel must be checked before the signal test.
const timeoutSentinel = 9

// crashSignals is the fixed set of terminating signals that classify a
// run as a crash.
var crashSignals = map[int32]struct{}{
	1: {}, 2: {}, 3: {}, 4: {}, 6: {}, 7: {}, 8: {}, 9: {},
	11: {}, 13: {}, 14: {}, 15: {}, 24: {}, 25: {}, 31: {},
}

// Classify decodes a raw wait-status word. timedOut must be true when the
// caller is the driver's timeout path reporting the synthetic sentinel
// status, so the sentinel is never mistaken for a real SIGKILL.
func Classify(status int32, timedOut bool) Verdict {
	if timedOut {
		return Timeout
	}

	signal := status & 0x7F
	coreFlag := status & 0x80

	if _, crashed := crashSignals[signal]; crashed || coreFlag != 0 {
		return Crash
	}
	return Normal
}

// ClassifyWaitStatus classifies a real unix.WaitStatus, as returned by
// unix.Wait4 on a grandchild process, rather than the fork-server's
// synthetic 4-byte status word. Used by callers sitting closer to the OS
// than the fork-server protocol — the protocol's own status word already
// carries the same bit layout Linux uses for wait-status, so both paths
// converge on Classify.
func ClassifyWaitStatus(ws unix.WaitStatus, timedOut bool) Verdict {
	if timedOut {
		return Timeout
	}
	if !ws.Signaled() {
		return Normal
	}
	if _, crashed := crashSignals[int32(ws.Signal())]; crashed || ws.CoreDump() {
		return Crash
	}
	return Normal
}
