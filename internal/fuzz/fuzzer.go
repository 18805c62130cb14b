// Package fuzz wires the fork-server driver, coverage extraction, seed
// queue, scheduler, mutation engine, and corpus/state persistence into the
// dry-run-then-loop main fuzzing sequence, per spec.md §5.
package fuzz

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/lopfuzz/lopfuzz/internal/classify"
	"github.com/lopfuzz/lopfuzz/internal/config"
	"github.com/lopfuzz/lopfuzz/internal/corpus"
	"github.com/lopfuzz/lopfuzz/internal/coverage"
	"github.com/lopfuzz/lopfuzz/internal/forkserver"
	"github.com/lopfuzz/lopfuzz/internal/logger"
	"github.com/lopfuzz/lopfuzz/internal/mutate"
	"github.com/lopfuzz/lopfuzz/internal/scheduler"
	"github.com/lopfuzz/lopfuzz/internal/seed"
	"github.com/lopfuzz/lopfuzz/internal/shm"
	"github.com/lopfuzz/lopfuzz/internal/state"
)

// defaultAvgExecTime is the fallback average execution time used when the
// dry run produces zero successful executions, per spec.md §4.5.
const defaultAvgExecTime = 0.1

// Fuzzer orchestrates one fuzzing session: the dry run over the initial
// corpus followed by the indefinite mutate-execute-triage loop.
type Fuzzer struct {
	cfg *config.Settings

	driver *forkserver.Driver
	seg    *shm.Segment

	corpus *corpus.Manager
	state  state.Manager

	queue     *seed.Queue
	scheduler *scheduler.Scheduler
	bandit    *mutate.Bandit
	havoc     *mutate.Havoc
	splice    *mutate.Splice

	global       coverage.EdgeSet
	avgExecTime  float64
	totalExec    float64
	execCount    int
	timeoutAfter time.Duration

	// StopAfterRuns caps the main loop's total executed runs, for tests;
	// zero means run forever, the production default.
	StopAfterRuns int
}

// New constructs a Fuzzer from its settings and dependencies. The shared
// memory segment and fork-server driver are started by Start, not here,
// since both require spawning the target process.
func New(cfg *config.Settings, corpusMgr *corpus.Manager, stateMgr state.Manager) *Fuzzer {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	dict, err := mutate.LoadDictionary(cfg.DictionaryFile)
	if err != nil {
		logger.Warnf("fuzz: failed to load dictionary %s: %v (continuing without one)", cfg.DictionaryFile, err)
		dict = &mutate.Dictionary{}
	}
	havoc := mutate.NewHavoc(rng, dict)

	return &Fuzzer{
		cfg:          cfg,
		corpus:       corpusMgr,
		state:        stateMgr,
		queue:        seed.NewQueue(),
		scheduler:    scheduler.New(),
		bandit:       mutate.NewBandit(rng),
		havoc:        havoc,
		splice:       mutate.NewSplice(rng, havoc),
		global:       coverage.NewEdgeSet(0),
		avgExecTime:  defaultAvgExecTime,
		timeoutAfter: time.Duration(cfg.TimeoutMS) * time.Millisecond,
	}
}

// Start allocates the coverage shared-memory segment and boots the
// fork-server child, blocking until its handshake completes.
func (f *Fuzzer) Start() error {
	seg, err := shm.Create(coverage.MapSize)
	if err != nil {
		return fmt.Errorf("allocate coverage map: %w", err)
	}
	f.seg = seg

	driver, err := forkserver.Start(f.cfg.Target, f.cfg.TargetArgs, seg.ID())
	if err != nil {
		_ = seg.Close()
		return fmt.Errorf("start fork server: %w", err)
	}
	f.driver = driver
	return nil
}

// Close tears down the fork-server process and the coverage segment.
func (f *Fuzzer) Close() error {
	var driverErr, segErr error
	if f.driver != nil {
		driverErr = f.driver.Close()
	}
	if f.seg != nil {
		segErr = f.seg.Close()
	}
	if driverErr != nil {
		return fmt.Errorf("close fork server: %w", driverErr)
	}
	if segErr != nil {
		return fmt.Errorf("close coverage map: %w", segErr)
	}
	return nil
}

// runOnce zeroes the coverage map and drives one fork-server round trip
// against whatever bytes currently sit at cfg.CurrentInput, returning the
// verdict, elapsed time, and the edges hit.
func (f *Fuzzer) runOnce() (classify.Verdict, float64, coverage.EdgeSet, error) {
	f.seg.Clear()

	status, elapsed, err := f.driver.RunOnce(f.timeoutAfter)
	if err != nil {
		return classify.Normal, elapsed, nil, fmt.Errorf("run target: %w", err)
	}

	timedOut := status == forkserver.TimeoutSentinel
	verdict := classify.Classify(status, timedOut)
	edges := coverage.ExtractEdges(f.seg.Bytes())
	return verdict, elapsed, edges, nil
}

// recordExecTime folds one run's elapsed time into the rolling average.
func (f *Fuzzer) recordExecTime(elapsed float64) {
	f.totalExec += elapsed
	f.execCount++
	f.avgExecTime = f.totalExec / float64(f.execCount)
}

// DryRun seeds the queue from the initial corpus: every file copied into
// queue_folder is run once, its coverage recorded, and seeds that crash
// or time out during the dry run are dropped rather than queued. It ends
// by computing the rolling average execution time (falling back to
// defaultAvgExecTime if every dry-run execution was dropped) and running
// the first favored-seed recomputation.
func (f *Fuzzer) DryRun() error {
	paths, err := f.corpus.Initialize()
	if err != nil {
		return fmt.Errorf("initialize corpus: %w", err)
	}

	for _, path := range paths {
		if err := copyFile(path, f.cfg.CurrentInput); err != nil {
			return fmt.Errorf("stage dry-run input %s: %w", path, err)
		}

		verdict, elapsed, edges, err := f.runOnce()
		if err != nil {
			return err
		}

		switch verdict {
		case classify.Timeout:
			logger.Warnf("fuzz: seed %s timed out during dry run, dropping", path)
			continue
		case classify.Crash:
			logger.Warnf("fuzz: seed %s crashed during dry run, dropping", path)
			continue
		}

		_, seedCoverage := coverage.Classify(edges, f.global)
		coverage.Merge(f.global, seedCoverage)

		s, err := seed.New(f.state.NextID(), path, seedCoverage, elapsed)
		if err != nil {
			return fmt.Errorf("build seed for %s: %w", path, err)
		}
		f.queue.Add(s)
		f.recordExecTime(elapsed)
	}

	if f.execCount == 0 {
		f.avgExecTime = defaultAvgExecTime
	}

	f.queue.RecomputeFavored()
	f.state.UpdateCoverage(len(f.global))
	logger.Infof("fuzz: dry run finished, %d seeds queued, %d edges covered", f.queue.Len(), len(f.global))
	return nil
}

// Run executes the indefinite mutate-execute-triage loop of spec.md §4.5
// and §9: select a seed, size its mutation budget with the power
// schedule, repeatedly mutate and run, saving crashes and newly
// interesting inputs as they're found, and reporting the outcome to the
// bandit so its selection improves over the session.
//
// If StopAfterRuns is positive, Run returns once that many executions
// have completed instead of running forever; this exists for tests.
func (f *Fuzzer) Run() error {
	runs := 0
	for {
		current, newCycle := f.scheduler.Next(f.queue)
		if current == nil {
			logger.Warnf("fuzz: seed queue is empty, stopping")
			return nil
		}
		if newCycle {
			f.state.IncrementCycle()
			f.queue.RecomputeFavored()
			logger.Infof("fuzz: starting cycle %d", f.state.GetState().CycleCount)
		}

		power := scheduler.Power(current, f.avgExecTime)
		pool := f.queue.All()

		for i := 0; i < power; i++ {
			op := f.bandit.Select()
			var mutErr error
			if op == mutate.OpHavoc {
				mutErr = f.havoc.Mutate(current.Path, f.cfg.CurrentInput)
			} else {
				mutErr = f.splice.Mutate(current, pool, f.cfg.CurrentInput)
			}
			if mutErr != nil {
				return fmt.Errorf("mutate seed %s: %w", current.Path, mutErr)
			}

			verdict, elapsed, edges, err := f.runOnce()
			if err != nil {
				return err
			}
			f.recordExecTime(elapsed)
			runs++

			switch verdict {
			case classify.Timeout:
				f.bandit.Report(op, 0, false)

			case classify.Crash:
				path, err := f.saveCrash(current.Path)
				if err != nil {
					return err
				}
				logger.Warnf("fuzz: crash saved to %s", path)
				f.bandit.Report(op, 0, true)

			default:
				// Diff must run before Merge folds seedCoverage into global
				// coverage, or the bandit's reward is always zero (spec.md
				// §9's fixed open question).
				hasNew, seedCoverage := coverage.Classify(edges, f.global)
				newlyDiscovered := coverage.Diff(seedCoverage, f.global)
				if hasNew {
					coverage.Merge(f.global, seedCoverage)
					f.state.UpdateCoverage(len(f.global))
					logger.Infof("fuzz: new coverage! total %d edges", len(f.global))

					path, err := f.saveInteresting()
					if err != nil {
						return err
					}
					s, err := seed.New(f.state.NextID(), path, seedCoverage, elapsed)
					if err != nil {
						return fmt.Errorf("build seed for %s: %w", path, err)
					}
					f.queue.Add(s)
				}
				f.bandit.Report(op, len(newlyDiscovered), false)
			}

			f.persistState()

			if f.StopAfterRuns > 0 && runs >= f.StopAfterRuns {
				return nil
			}
		}
	}
}

func (f *Fuzzer) saveCrash(originPath string) (string, error) {
	data, err := os.ReadFile(f.cfg.CurrentInput)
	if err != nil {
		return "", fmt.Errorf("read crashing input: %w", err)
	}
	return f.corpus.SaveCrash(time.Now().Unix(), originPath, data)
}

func (f *Fuzzer) saveInteresting() (string, error) {
	data, err := os.ReadFile(f.cfg.CurrentInput)
	if err != nil {
		return "", fmt.Errorf("read interesting input: %w", err)
	}
	return f.corpus.SaveInteresting(f.state.GetState().LastAllocatedID, data)
}

func (f *Fuzzer) persistState() {
	if err := f.state.Save(); err != nil {
		logger.Warnf("fuzz: failed to persist session state: %v", err)
	}
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
