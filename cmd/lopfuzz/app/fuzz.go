package app

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lopfuzz/lopfuzz/internal/config"
	"github.com/lopfuzz/lopfuzz/internal/corpus"
	"github.com/lopfuzz/lopfuzz/internal/fuzz"
	"github.com/lopfuzz/lopfuzz/internal/logger"
	"github.com/lopfuzz/lopfuzz/internal/state"
)

// NewFuzzCommand creates the "fuzz" subcommand.
func NewFuzzCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "fuzz",
		Short: "Run the dry run followed by the indefinite fuzzing loop.",
		Long: `Run the dry run followed by the indefinite fuzzing loop.

Examples:
  lopfuzz fuzz --config settings.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFuzz(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "settings.yaml", "Path to the settings file")
	return cmd
}

func runFuzz(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	logger.Init(logger.ParseLevel(cfg.LogLevel))
	if cfg.LogDir != "" {
		path, err := logger.WithFile(cfg.LogDir)
		if err != nil {
			logger.Warnf("could not attach log file: %v", err)
		} else {
			logger.Infof("logging to %s", path)
		}
	}
	defer logger.Close()

	logger.Infof("target: %s %v", cfg.Target, cfg.TargetArgs)

	stateDir := filepath.Dir(configPath)
	stateMgr := state.NewFileManager(stateDir)
	if err := stateMgr.Load(); err != nil {
		return fmt.Errorf("load session state: %w", err)
	}

	corpusMgr := corpus.New(cfg.SeedsFolder, cfg.QueueFolder, cfg.CrashesFolder)

	f := fuzz.New(cfg, corpusMgr, stateMgr)
	if err := f.Start(); err != nil {
		return fmt.Errorf("start fork server: %w", err)
	}
	defer f.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Infof("caught interrupt, shutting down")
		f.Close()
		os.Exit(0)
	}()

	logger.Infof("running dry run over %s", cfg.SeedsFolder)
	if err := f.DryRun(); err != nil {
		return fmt.Errorf("dry run: %w", err)
	}

	logger.Infof("dry run complete, entering main fuzzing loop")
	return f.Run()
}
