// Package config loads the fuzzer's settings file: the external collaborator
// spec.md treats as out of scope for this core, surfaced here only as a
// plain struct and a thin viper-backed loader.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// Settings is the configuration record spec.md §6 "Inputs" describes.
type Settings struct {
	Target         string   `mapstructure:"target"`
	TargetArgs     []string `mapstructure:"target_args"`
	SeedsFolder    string   `mapstructure:"seeds_folder"`
	QueueFolder    string   `mapstructure:"queue_folder"`
	CrashesFolder  string   `mapstructure:"crashes_folder"`
	CurrentInput   string   `mapstructure:"current_input"`
	DictionaryFile string   `mapstructure:"dictionary_file"`
	TimeoutMS      int      `mapstructure:"timeout_ms"`
	LogLevel       string   `mapstructure:"log_level"`
	LogDir         string   `mapstructure:"log_dir"`
}

// envVarPattern matches ${VAR} and $VAR placeholders in string settings.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

func resolveEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "$")
		name = strings.TrimPrefix(name, "{")
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return match
	})
}

func applyDefaults(s *Settings) {
	if s.CurrentInput == "" {
		s.CurrentInput = "current_input"
	}
	if s.QueueFolder == "" {
		s.QueueFolder = "queue"
	}
	if s.CrashesFolder == "" {
		s.CrashesFolder = "crashes"
	}
	if s.TimeoutMS <= 0 {
		s.TimeoutMS = 1000
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
}

// Load reads a YAML settings file from path, resolves ${VAR}/$VAR
// placeholders against the environment, and applies defaults for fields
// spec.md leaves to the external collaborator's discretion.
func Load(path string) (*Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read settings file %s: %w", path, err)
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	s.Target = resolveEnvVars(s.Target)
	for i, a := range s.TargetArgs {
		s.TargetArgs[i] = resolveEnvVars(a)
	}
	s.SeedsFolder = resolveEnvVars(s.SeedsFolder)
	s.QueueFolder = resolveEnvVars(s.QueueFolder)
	s.CrashesFolder = resolveEnvVars(s.CrashesFolder)
	s.CurrentInput = resolveEnvVars(s.CurrentInput)
	s.DictionaryFile = resolveEnvVars(s.DictionaryFile)

	applyDefaults(&s)

	if s.Target == "" {
		return nil, fmt.Errorf("settings: target is required")
	}
	if s.SeedsFolder == "" {
		return nil, fmt.Errorf("settings: seeds_folder is required")
	}

	return &s, nil
}
