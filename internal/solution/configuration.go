package solution

import (
	"strings"
)

// Defaults used when a configuration or platform is empty.
const (
	DefaultConfiguration = "Debug"
	DefaultPlatform      = "AnyCPU"

	anyCPUDisplay = "Any CPU"
)

// ConfigurationPlatform is a configuration/platform pair such as
// Debug|AnyCPU. Comparison ignores case.
type ConfigurationPlatform struct {
	Configuration string
	Platform      string
}

// NewConfigurationPlatform trims both values, applies the defaults to
// empty values and maps the "Any CPU" display form to AnyCPU.
func NewConfigurationPlatform(configuration, platform string) ConfigurationPlatform {
	configuration = strings.TrimSpace(configuration)
	if configuration == "" {
		configuration = DefaultConfiguration
	}
	platform = strings.TrimSpace(platform)
	if platform == "" || strings.EqualFold(platform, anyCPUDisplay) {
		platform = DefaultPlatform
	}
	return ConfigurationPlatform{Configuration: configuration, Platform: platform}
}

// ParseConfigurationPlatform parses "Configuration|Platform", optionally
// wrapped in single quotes. Missing parts take the defaults.
func ParseConfigurationPlatform(s string) ConfigurationPlatform {
	s = strings.Trim(s, "'")
	configuration, platform, _ := strings.Cut(s, "|")
	if i := strings.IndexByte(platform, '|'); i >= 0 {
		platform = platform[:i]
	}
	return NewConfigurationPlatform(configuration, platform)
}

// WithConfiguration returns c with its configuration replaced, or c itself
// when configuration is blank.
func (c ConfigurationPlatform) WithConfiguration(configuration string) ConfigurationPlatform {
	if strings.TrimSpace(configuration) == "" {
		return c
	}
	return NewConfigurationPlatform(configuration, c.Platform)
}

// WithPlatform returns c with its platform replaced, or c itself when
// platform is blank.
func (c ConfigurationPlatform) WithPlatform(platform string) ConfigurationPlatform {
	if strings.TrimSpace(platform) == "" {
		return c
	}
	return NewConfigurationPlatform(c.Configuration, platform)
}

// Equal compares both parts without regard to case.
func (c ConfigurationPlatform) Equal(o ConfigurationPlatform) bool {
	return strings.EqualFold(c.Configuration, o.Configuration) &&
		strings.EqualFold(c.Platform, o.Platform)
}

func (c ConfigurationPlatform) String() string {
	return c.Configuration + "|" + c.Platform
}

// SolutionString renders c as solution files expect, spelling AnyCPU as
// "Any CPU".
func (c ConfigurationPlatform) SolutionString() string {
	platform := c.Platform
	if strings.EqualFold(platform, DefaultPlatform) {
		platform = anyCPUDisplay
	}
	return c.Configuration + "|" + platform
}

// ConfigurationMap is one row of a project's build matrix: which project
// configuration is active for a solution configuration and whether it is
// built. Rows are identified by the (Solution, Project) pair.
type ConfigurationMap struct {
	Solution     ConfigurationPlatform
	Project      ConfigurationPlatform
	BuildEnabled bool
}

// NewConfigurationMap returns a row with building enabled.
func NewConfigurationMap(solution, project ConfigurationPlatform) ConfigurationMap {
	return ConfigurationMap{Solution: solution, Project: project, BuildEnabled: true}
}

// SameKey reports whether m and o describe the same (Solution, Project)
// pair.
func (m ConfigurationMap) SameKey(o ConfigurationMap) bool {
	return m.Solution.Equal(o.Solution) && m.Project.Equal(o.Project)
}

func (m ConfigurationMap) String() string {
	return m.Solution.String() + " = " + m.Project.String()
}
