// config.go loads preprocessing profiles from YAML.
package main

import (
	"fmt"
	"os"

	"github.com/cpptools/gocpp/pkg/cpp"
	"gopkg.in/yaml.v3"
)

// Profile is a reusable preprocessing configuration. Command-line flags
// layer on top of a loaded profile.
type Profile struct {
	Defines            map[string]string `yaml:"defines"`
	Undefines          []string          `yaml:"undefines"`
	SystemIncludePaths []string          `yaml:"system_include_paths"`
	QuoteIncludePaths  []string          `yaml:"quote_include_paths"`
	FrameworkPaths     []string          `yaml:"framework_paths"`
	Features           []string          `yaml:"features"`
	Warnings           []string          `yaml:"warnings"`
	ExternalFeatures   []string          `yaml:"external_features"`
	KeepDirectives     bool              `yaml:"keep_directives"`
}

// loadProfile reads a profile from a YAML file.
func loadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &p, nil
}

// apply configures the preprocessor from the profile.
func (p *Profile) apply(pp *cpp.Preprocessor) error {
	for name, value := range p.Defines {
		if err := pp.AddMacroDefinition(name, value); err != nil {
			return fmt.Errorf("define %s: %w", name, err)
		}
	}
	for _, name := range p.Undefines {
		pp.RemoveMacro(name)
	}
	if len(p.SystemIncludePaths) > 0 {
		pp.SetSystemIncludePath(append(pp.SystemIncludePath(), p.SystemIncludePaths...))
	}
	if len(p.QuoteIncludePaths) > 0 {
		pp.SetQuoteIncludePath(append(pp.QuoteIncludePath(), p.QuoteIncludePaths...))
	}
	if len(p.FrameworkPaths) > 0 {
		pp.SetFrameworksPath(append(pp.FrameworksPath(), p.FrameworkPaths...))
	}
	for _, name := range p.Features {
		f, err := cpp.ParseFeature(name)
		if err != nil {
			return err
		}
		pp.AddFeature(f)
	}
	for _, name := range p.Warnings {
		w, err := cpp.ParseWarning(name)
		if err != nil {
			return err
		}
		pp.AddWarning(w)
	}
	return nil
}
