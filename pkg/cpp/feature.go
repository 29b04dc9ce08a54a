// feature.go enumerates the optional features and warning classes.
package cpp

import "fmt"

// Feature is an optional preprocessor behavior.
type Feature int

const (
	// FeatureLineMarkers emits #line tokens at source transitions.
	FeatureLineMarkers Feature = iota
	// FeaturePragmaOnce honors #pragma once.
	FeaturePragmaOnce
	// FeatureIncludeNext enables the #include_next directive.
	FeatureIncludeNext
	// FeatureCSyntax reports invalid tokens as errors.
	FeatureCSyntax
	// FeatureKeepComments passes comments in active code through.
	FeatureKeepComments
	// FeatureKeepAllComments passes comments through in active code and
	// in inactive branches; in an inactive branch, a comment that follows
	// other tokens on a skipped line is dropped with that line.
	FeatureKeepAllComments
	// FeatureDebug traces driver decisions to the logger.
	FeatureDebug
)

var featureNames = map[Feature]string{
	FeatureLineMarkers:     "LINEMARKERS",
	FeaturePragmaOnce:      "PRAGMA_ONCE",
	FeatureIncludeNext:     "INCLUDENEXT",
	FeatureCSyntax:         "CSYNTAX",
	FeatureKeepComments:    "KEEPCOMMENTS",
	FeatureKeepAllComments: "KEEPALLCOMMENTS",
	FeatureDebug:           "DEBUG",
}

func (f Feature) String() string {
	if name, ok := featureNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Feature(%d)", int(f))
}

// ParseFeature resolves a feature by its canonical name.
func ParseFeature(name string) (Feature, error) {
	for f, n := range featureNames {
		if n == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown feature %q", name)
}

// Warning is a warning class that can be enabled.
type Warning int

const (
	// WarningError escalates every warning to an error.
	WarningError Warning = iota
	// WarningUndef reports undefined identifiers evaluated in #if.
	WarningUndef
	// WarningEndifLabels reports text after #else and #endif.
	WarningEndifLabels
)

var warningNames = map[Warning]string{
	WarningError:       "ERROR",
	WarningUndef:       "UNDEF",
	WarningEndifLabels: "ENDIF_LABELS",
}

func (w Warning) String() string {
	if name, ok := warningNames[w]; ok {
		return name
	}
	return fmt.Sprintf("Warning(%d)", int(w))
}

// ParseWarning resolves a warning class by its canonical name.
func ParseWarning(name string) (Warning, error) {
	for w, n := range warningNames {
		if n == name {
			return w, nil
		}
	}
	return 0, fmt.Errorf("unknown warning %q", name)
}
