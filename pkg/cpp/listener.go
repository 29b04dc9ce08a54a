// listener.go defines the diagnostic listener interface.
package cpp

import (
	"fmt"
	"log/slog"
)

// LexerError is the failure mode of Token when no listener is installed.
type LexerError struct {
	Line   int
	Column int
	Msg    string
}

func (e *LexerError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Msg)
}

// SourceChangeEvent describes a transition of the source stack.
type SourceChangeEvent int

const (
	SourceChangeSuspend SourceChangeEvent = iota
	SourceChangePush
	SourceChangePop
	SourceChangeResume
)

func (e SourceChangeEvent) String() string {
	switch e {
	case SourceChangeSuspend:
		return "SUSPEND"
	case SourceChangePush:
		return "PUSH"
	case SourceChangePop:
		return "POP"
	case SourceChangeResume:
		return "RESUME"
	}
	return fmt.Sprintf("SourceChangeEvent(%d)", int(e))
}

// Listener receives diagnostics and bookkeeping events from the
// preprocessor. Callbacks fire synchronously between token pulls; a
// listener may read preprocessor state but must not mutate it.
type Listener interface {
	HandleWarning(source Source, line, column int, msg string)
	HandleError(source Source, line, column int, msg string)
	HandleSourceChange(source Source, event SourceChangeEvent)
	HandleDefine(m *Macro, source Source)
	HandleUndefine(m *Macro, source Source)
	HandleInclude(text string, next bool, from, to Source)
}

// DefaultListener logs diagnostics and counts them.
type DefaultListener struct {
	logger   *slog.Logger
	errors   int
	warnings int
}

// NewDefaultListener returns a listener logging through the given logger,
// or slog.Default() if nil.
func NewDefaultListener(logger *slog.Logger) *DefaultListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultListener{logger: logger}
}

func sourceName(source Source) string {
	if source == nil || source.Name() == "" {
		return "<no file>"
	}
	return source.Name()
}

func (l *DefaultListener) HandleWarning(source Source, line, column int, msg string) {
	l.warnings++
	l.logger.Warn(msg, "source", sourceName(source), "line", line, "column", column)
}

func (l *DefaultListener) HandleError(source Source, line, column int, msg string) {
	l.errors++
	l.logger.Error(msg, "source", sourceName(source), "line", line, "column", column)
}

func (l *DefaultListener) HandleSourceChange(source Source, event SourceChangeEvent) {
}

func (l *DefaultListener) HandleDefine(m *Macro, source Source) {
}

func (l *DefaultListener) HandleUndefine(m *Macro, source Source) {
}

func (l *DefaultListener) HandleInclude(text string, next bool, from, to Source) {
}

// Errors returns the number of errors handled.
func (l *DefaultListener) Errors() int { return l.errors }

// Warnings returns the number of warnings handled.
func (l *DefaultListener) Warnings() int { return l.warnings }
