package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/cpptools/gocpp/pkg/cpp"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// Preprocessor options
var (
	defineFlags      []string
	undefineFlags    []string
	includePaths     []string
	quotePaths       []string
	frameworkPaths   []string
	outputPath       string
	configPath       string
	lineMarkers      bool
	keepComments     bool
	keepAllComments  bool
	pragmaOnce       bool
	includeNext      bool
	csyntax          bool
	warnFlags        []string
	debugMode        bool
	keepDirectives   bool
	externalFeatures []string
	cacheSize        int
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	// Normalize cpp-style single-dash long flags for pflag compatibility
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

// longFlagNames lists long flags that should also accept single-dash
// spelling (cpp compatibility).
var longFlagNames = []string{"iquote", "isystem", "linemarkers", "pragma-once", "include-next"}

// normalizeFlags converts single-dash long flags like -iquote to the
// double-dash form pflag expects.
func normalizeFlags(args []string) []string {
	normalized := make([]string, 0, len(args))
	for _, arg := range args {
		converted := arg
		for _, name := range longFlagNames {
			if arg == "-"+name || strings.HasPrefix(arg, "-"+name+"=") {
				converted = "-" + arg
				break
			}
		}
		normalized = append(normalized, converted)
	}
	return normalized
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gocpp [flags] file...",
		Short:         "gocpp is a controllable C/C++/Objective-C preprocessor",
		Version:       version,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := preprocess(stdout, stderr, args); err != nil {
				fmt.Fprintf(stderr, "gocpp: error: %v\n", err)
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&defineFlags, "define", "D", nil, "define a macro: NAME or NAME=VALUE")
	flags.StringArrayVarP(&undefineFlags, "undefine", "U", nil, "undefine a macro")
	flags.StringArrayVarP(&includePaths, "include-dir", "I", nil, "add a system include directory")
	flags.StringArrayVar(&quotePaths, "iquote", nil, "add a quote include directory")
	flags.StringArrayVarP(&frameworkPaths, "framework-dir", "F", nil, "add a frameworks directory")
	flags.StringVarP(&outputPath, "output", "o", "", "write output to file instead of stdout")
	flags.StringVar(&configPath, "config", "", "load a YAML preprocessing profile")
	flags.BoolVar(&lineMarkers, "linemarkers", false, "emit #line markers at source transitions")
	flags.BoolVarP(&keepComments, "keep-comments", "C", false, "keep comments in active code")
	flags.BoolVar(&keepAllComments, "keep-all-comments", false, "keep comments even in skipped branches")
	flags.BoolVar(&pragmaOnce, "pragma-once", true, "honor #pragma once")
	flags.BoolVar(&includeNext, "include-next", true, "enable #include_next")
	flags.BoolVar(&csyntax, "csyntax", false, "treat invalid tokens as errors")
	flags.StringSliceVarP(&warnFlags, "warn", "W", nil, "enable warnings: undef, error, endif-labels")
	flags.BoolVar(&debugMode, "debug", false, "trace preprocessor decisions")
	flags.BoolVar(&keepDirectives, "keep-directives", false,
		"keep define, undef, include and conditional directives in the output, expanding macros only inside conditions")
	flags.StringArrayVar(&externalFeatures, "external-feature", nil,
		"resolve all conditionals except those mentioning this feature name")
	flags.IntVar(&cacheSize, "cache-size", 64, "header content cache size, 0 disables caching")

	return cmd
}

var warnByFlag = map[string]cpp.Warning{
	"undef":        cpp.WarningUndef,
	"error":        cpp.WarningError,
	"endif-labels": cpp.WarningEndifLabels,
}

func buildPreprocessor(stderr io.Writer) (*cpp.Preprocessor, *cpp.DefaultListener, error) {
	pp := cpp.NewPreprocessor()

	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
		pp.AddFeature(cpp.FeatureDebug)
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	pp.SetLogger(logger)
	listener := cpp.NewDefaultListener(logger)
	pp.SetListener(listener)

	if cacheSize > 0 {
		fs, err := cpp.NewCachingFileSystem(cacheSize)
		if err != nil {
			return nil, nil, err
		}
		pp.SetFileSystem(fs)
	}

	if configPath != "" {
		profile, err := loadProfile(configPath)
		if err != nil {
			return nil, nil, err
		}
		if err := profile.apply(pp); err != nil {
			return nil, nil, err
		}
		if profile.KeepDirectives {
			keepDirectives = true
		}
		externalFeatures = append(externalFeatures, profile.ExternalFeatures...)
	}

	for _, def := range defineFlags {
		name, value, found := strings.Cut(def, "=")
		if !found {
			value = "1"
		}
		if err := pp.AddMacroDefinition(name, value); err != nil {
			return nil, nil, fmt.Errorf("-D %s: %w", def, err)
		}
	}
	for _, name := range undefineFlags {
		pp.RemoveMacro(name)
	}

	pp.SetSystemIncludePath(append(pp.SystemIncludePath(), includePaths...))
	pp.SetQuoteIncludePath(append(pp.QuoteIncludePath(), quotePaths...))
	pp.SetFrameworksPath(append(pp.FrameworksPath(), frameworkPaths...))

	if lineMarkers {
		pp.AddFeature(cpp.FeatureLineMarkers)
	}
	if keepComments {
		pp.AddFeature(cpp.FeatureKeepComments)
	}
	if keepAllComments {
		pp.AddFeature(cpp.FeatureKeepAllComments)
	}
	if pragmaOnce {
		pp.AddFeature(cpp.FeaturePragmaOnce)
	}
	if includeNext {
		pp.AddFeature(cpp.FeatureIncludeNext)
	}
	if csyntax {
		pp.AddFeature(cpp.FeatureCSyntax)
	}
	for _, name := range warnFlags {
		w, ok := warnByFlag[strings.ToLower(name)]
		if !ok {
			return nil, nil, fmt.Errorf("unknown warning class %q", name)
		}
		pp.AddWarning(w)
	}

	if keepDirectives && len(externalFeatures) > 0 {
		return nil, nil, fmt.Errorf("--keep-directives and --external-feature are mutually exclusive")
	}
	if keepDirectives {
		pp.SetControlListener(cpp.NewOnlyExpandMacrosInIfs())
	} else if len(externalFeatures) > 0 {
		pp.SetControlListener(cpp.NewReduceToExternalFeatures(externalFeatures...))
	}

	return pp, listener, nil
}

func preprocess(stdout, stderr io.Writer, inputs []string) error {
	pp, listener, err := buildPreprocessor(stderr)
	if err != nil {
		return err
	}
	defer pp.Close()

	for _, input := range inputs {
		if err := pp.AddInputFile(input); err != nil {
			return err
		}
	}

	out := stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	if _, err := io.Copy(out, cpp.NewReader(pp)); err != nil {
		return err
	}
	if listener.Errors() > 0 {
		return fmt.Errorf("%d error(s) during preprocessing", listener.Errors())
	}
	return nil
}
