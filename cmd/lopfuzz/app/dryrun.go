package app

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lopfuzz/lopfuzz/internal/config"
	"github.com/lopfuzz/lopfuzz/internal/corpus"
	"github.com/lopfuzz/lopfuzz/internal/fuzz"
	"github.com/lopfuzz/lopfuzz/internal/logger"
	"github.com/lopfuzz/lopfuzz/internal/state"
)

// NewDryRunCommand creates the "dryrun" subcommand: admit the initial
// corpus and report coverage without entering the indefinite loop. Useful
// for sanity-checking a target/seed corpus pairing before a long session.
func NewDryRunCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "dryrun",
		Short: "Run only the dry run over the initial corpus and report coverage.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDryRun(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "settings.yaml", "Path to the settings file")
	return cmd
}

func runDryRun(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	logger.Init(logger.ParseLevel(cfg.LogLevel))

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

	if err := f.DryRun(); err != nil {
		return fmt.Errorf("dry run: %w", err)
	}

	if err := stateMgr.Save(); err != nil {
		return fmt.Errorf("save session state: %w", err)
	}

	logger.Infof("dry run finished, total coverage: %d edges", stateMgr.GetState().TotalCoverage)
	return nil
}
