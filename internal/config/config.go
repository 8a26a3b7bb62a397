package config

// config.go: mirepoix configuration loaded from .mirepoix/settings.yaml,
// with overrides from the environment (and a .env file next to it).
//
// Every accessor is safe on a nil *Settings and returns the built-in
// default, so a missing settings file needs no special casing.

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/xamarin/mirepoix/internal/consolidate"
	"github.com/xamarin/mirepoix/internal/msbuild"
	"github.com/xamarin/mirepoix/internal/solution"
)

// Environment variables that override settings.
const (
	EnvLog            = "MIREPOIX_LOG"
	EnvConflictPolicy = "MIREPOIX_CONFLICT_POLICY"
	EnvParallelism    = "MIREPOIX_PARALLELISM"
	EnvCacheSize      = "MIREPOIX_CACHE_SIZE"
)

// Settings holds mirepoix configuration from .mirepoix/settings.yaml.
type Settings struct {
	Log         LogSettings         `yaml:"log"`
	Solution    SolutionSettings    `yaml:"solution"`
	Evaluator   EvaluatorSettings   `yaml:"evaluator"`
	Consolidate ConsolidateSettings `yaml:"consolidate"`
}

// LogSettings controls diagnostic output.
type LogSettings struct {
	// Level is one of debug, info, warn, error. Empty means silent.
	Level string `yaml:"level"`
}

// SolutionSettings controls solution generation.
type SolutionSettings struct {
	ConflictPolicy         string `yaml:"conflictPolicy"`
	Parallelism            int    `yaml:"parallelism"`
	AddTransientReferences *bool  `yaml:"addTransientReferences"`
	Strict                 bool   `yaml:"strict"`

	// Exclude lists globs, relative to the solution directory, of projects
	// that are never added. Example: ["samples/**"]
	Exclude []string `yaml:"exclude"`
}

// EvaluatorSettings controls project evaluation.
type EvaluatorSettings struct {
	CacheSize        int               `yaml:"cacheSize"`
	GlobalProperties map[string]string `yaml:"globalProperties"`
}

// ConsolidateSettings controls the consolidate command.
type ConsolidateSettings struct {
	ConditionMetadata string                   `yaml:"conditionMetadata"`
	Remove            []consolidate.RemoveRule `yaml:"remove"`
}

// LoadSettings reads .mirepoix/settings.yaml relative to root.
// Returns nil (not an error) if the file does not exist.
func LoadSettings(root string) (*Settings, error) {
	path := filepath.Join(root, ".mirepoix", "settings.yaml")
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return &s, nil
}

// Load reads root/.env into the environment (existing variables win), then
// the settings file, then applies the MIREPOIX_* overrides. The result is
// never nil.
func Load(root string) (*Settings, error) {
	envFile := filepath.Join(root, ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}
	s, err := LoadSettings(root)
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = &Settings{}
	}
	if err := s.applyEnv(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) applyEnv() error {
	if v, ok := lookupEnv(EnvLog); ok {
		s.Log.Level = v
	}
	if v, ok := lookupEnv(EnvConflictPolicy); ok {
		s.Solution.ConflictPolicy = v
	}
	if v, ok := lookupEnv(EnvParallelism); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvParallelism, err)
		}
		s.Solution.Parallelism = n
	}
	if v, ok := lookupEnv(EnvCacheSize); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCacheSize, err)
		}
		s.Evaluator.CacheSize = n
	}
	return nil
}

// lookupEnv returns the trimmed value of name. Empty counts as unset.
func lookupEnv(name string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	return v, v != ""
}

// LogLevel returns the configured log level, or "" for silent.
func (s *Settings) LogLevel() string {
	if s == nil {
		return ""
	}
	return s.Log.Level
}

// ConflictPolicy returns the configured override conflict policy.
func (s *Settings) ConflictPolicy() (solution.ConflictPolicy, error) {
	if s == nil {
		return solution.ConflictPolicyLastWins, nil
	}
	return solution.ParseConflictPolicy(s.Solution.ConflictPolicy)
}

// Parallelism returns how many configuration passes load at once (at least 1).
func (s *Settings) Parallelism() int {
	if s == nil || s.Solution.Parallelism < 1 {
		return 1
	}
	return s.Solution.Parallelism
}

// AddTransientReferences reports whether indirectly referenced projects are
// added to solutions. Defaults to true.
func (s *Settings) AddTransientReferences() bool {
	if s == nil || s.Solution.AddTransientReferences == nil {
		return true
	}
	return *s.Solution.AddTransientReferences
}

// Strict reports whether any project load failure aborts generation.
func (s *Settings) Strict() bool {
	return s != nil && s.Solution.Strict
}

// CacheSize returns the evaluation cache size. Unset means the default; a
// negative size disables the cache.
func (s *Settings) CacheSize() int {
	if s == nil || s.Evaluator.CacheSize == 0 {
		return msbuild.DefaultCacheSize
	}
	return s.Evaluator.CacheSize
}

// GlobalProperties returns a copy of the configured global properties.
func (s *Settings) GlobalProperties() map[string]string {
	if s == nil || len(s.Evaluator.GlobalProperties) == 0 {
		return nil
	}
	out := make(map[string]string, len(s.Evaluator.GlobalProperties))
	for k, v := range s.Evaluator.GlobalProperties {
		out[k] = v
	}
	return out
}

// ConsolidateOptions returns the consolidation options from settings.
func (s *Settings) ConsolidateOptions() consolidate.Options {
	if s == nil {
		return consolidate.Options{}
	}
	return consolidate.Options{
		ConditionMetadata: s.Consolidate.ConditionMetadata,
		RemoveRules:       append([]consolidate.RemoveRule(nil), s.Consolidate.Remove...),
		GlobalProperties:  s.GlobalProperties(),
	}
}

// IsExcluded reports whether relPath (relative to the solution directory,
// either separator) matches an exclude glob. Safe to call on a nil
// *Settings receiver.
func (s *Settings) IsExcluded(relPath string) bool {
	if s == nil {
		return false
	}
	relPath = strings.ReplaceAll(relPath, `\`, "/")
	for _, pattern := range s.Solution.Exclude {
		if matchExclude(strings.TrimPrefix(strings.ReplaceAll(pattern, `\`, "/"), "./"), relPath) {
			return true
		}
	}
	return false
}

// matchExclude reports whether path matches an exclude glob.
//
// "prefix/**" matches the prefix directory itself and every path beneath it.
// Other patterns use doublestar semantics (single * does not cross /).
func matchExclude(pattern, path string) bool {
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
	matched, _ := doublestar.Match(pattern, path)
	return matched
}
