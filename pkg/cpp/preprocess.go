// preprocess.go implements the preprocessor driver: the source stack, the
// token pull loop, macro invocation, and the non-conditional directives.
package cpp

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// A directive is one of the closed set of preprocessor commands.
type directive int

const (
	dirDefine directive = iota
	dirUndef
	dirInclude
	dirIncludeNext
	dirIf
	dirIfdef
	dirIfndef
	dirElif
	dirElse
	dirEndif
	dirLine
	dirPragma
	dirError
	dirWarning
)

var directives = map[string]directive{
	"define":       dirDefine,
	"undef":        dirUndef,
	"include":      dirInclude,
	"include_next": dirIncludeNext,
	"if":           dirIf,
	"ifdef":        dirIfdef,
	"ifndef":       dirIfndef,
	"elif":         dirElif,
	"else":         dirElse,
	"endif":        dirEndif,
	"line":         dirLine,
	"pragma":       dirPragma,
	"error":        dirError,
	"warning":      dirWarning,
}

// Preprocessor pulls tokens through the directive and macro machinery.
// The output token stream does not need re-lexing for C or C++; the
// output text is reconstructed by concatenating token spellings (see
// Reader).
type Preprocessor struct {
	inputs []Source

	macros *MacroTable
	states []*State
	source Source

	counter  int
	onceSeen map[string]bool
	includes []VirtualFile

	quoteIncludePath []string
	sysIncludePath   []string
	frameworksPath   []string

	features map[Feature]bool
	warnings map[Warning]bool

	filesystem VirtualFileSystem
	listener   Listener
	control    ControlListener
	logger     *slog.Logger

	sourceTok *Token // source-level unget slot
	exprTok   *Token // expression-level unget slot
}

// NewPreprocessor returns a preprocessor with no inputs, the predefined
// macros, and the OS filesystem.
func NewPreprocessor() *Preprocessor {
	pp := &Preprocessor{
		macros:     NewMacroTable(),
		onceSeen:   make(map[string]bool),
		features:   make(map[Feature]bool),
		warnings:   make(map[Warning]bool),
		filesystem: NewOSFileSystem(),
		logger:     slog.Default(),
	}
	pp.states = append(pp.states, newState())
	return pp
}

// SetFileSystem replaces the virtual filesystem used for includes.
func (pp *Preprocessor) SetFileSystem(fs VirtualFileSystem) { pp.filesystem = fs }

// FileSystem returns the virtual filesystem in use.
func (pp *Preprocessor) FileSystem() VirtualFileSystem { return pp.filesystem }

// SetListener installs the diagnostic listener.
func (pp *Preprocessor) SetListener(l Listener) { pp.listener = l }

// Listener returns the installed diagnostic listener, or nil.
func (pp *Preprocessor) Listener() Listener { return pp.listener }

// SetControlListener installs the control listener steering directive
// processing.
func (pp *Preprocessor) SetControlListener(c ControlListener) { pp.control = c }

// SetLogger replaces the logger used for DEBUG traces.
func (pp *Preprocessor) SetLogger(l *slog.Logger) { pp.logger = l }

// AddFeature enables features.
func (pp *Preprocessor) AddFeature(fs ...Feature) {
	for _, f := range fs {
		pp.features[f] = true
	}
}

// Feature reports whether f is enabled.
func (pp *Preprocessor) Feature(f Feature) bool { return pp.features[f] }

// AddWarning enables warning classes.
func (pp *Preprocessor) AddWarning(ws ...Warning) {
	for _, w := range ws {
		pp.warnings[w] = true
	}
}

// Warning reports whether w is enabled.
func (pp *Preprocessor) Warning(w Warning) bool { return pp.warnings[w] }

// AddInput appends an input source. Inputs are processed in the order in
// which they are added.
func (pp *Preprocessor) AddInput(s Source) {
	s.init(pp)
	pp.inputs = append(pp.inputs, s)
}

// AddInputFile appends a file input resolved through the virtual
// filesystem.
func (pp *Preprocessor) AddInputFile(path string) error {
	file := pp.filesystem.GetFile(path)
	if !file.IsFile() {
		return &LexerError{Msg: "File not found: " + path}
	}
	src, err := file.Source()
	if err != nil {
		return err
	}
	pp.AddInput(src)
	return nil
}

// AddMacroDefinition defines name with the given replacement text.
func (pp *Preprocessor) AddMacroDefinition(name, value string) error {
	m := NewMacro(nil, name)
	lexer := NewStringLexerSource(value)
	for {
		tok, err := lexer.Token()
		if err != nil {
			return err
		}
		if tok.Type == EOF {
			break
		}
		m.AddToken(tok)
	}
	return pp.macros.Put(m)
}

// AddMacro defines name as 1.
func (pp *Preprocessor) AddMacro(name string) error {
	return pp.AddMacroDefinition(name, "1")
}

// RemoveMacro removes a macro definition by name.
func (pp *Preprocessor) RemoveMacro(name string) { pp.macros.Remove(name) }

// Macros returns the live macro table contents.
func (pp *Preprocessor) Macros() map[string]*Macro { return pp.macros.All() }

// Macro returns the named macro, or nil.
func (pp *Preprocessor) Macro(name string) *Macro { return pp.macros.Get(name) }

// IsDefined reports whether name is currently defined.
func (pp *Preprocessor) IsDefined(name string) bool { return pp.macros.IsDefined(name) }

// Includes returns the virtual files included so far, in inclusion order.
func (pp *Preprocessor) Includes() []VirtualFile { return pp.includes }

// SetQuoteIncludePath sets the quote include path (-iquote).
func (pp *Preprocessor) SetQuoteIncludePath(path []string) { pp.quoteIncludePath = path }

// QuoteIncludePath returns the quote include path.
func (pp *Preprocessor) QuoteIncludePath() []string { return pp.quoteIncludePath }

// SetSystemIncludePath sets the system include path (-I).
func (pp *Preprocessor) SetSystemIncludePath(path []string) { pp.sysIncludePath = path }

// SystemIncludePath returns the system include path.
func (pp *Preprocessor) SystemIncludePath() []string { return pp.sysIncludePath }

// SetFrameworksPath sets the Objective-C frameworks path.
func (pp *Preprocessor) SetFrameworksPath(path []string) { pp.frameworksPath = path }

// FrameworksPath returns the Objective-C frameworks path.
func (pp *Preprocessor) FrameworksPath() []string { return pp.frameworksPath }

/* Diagnostics */

func (pp *Preprocessor) error(line, column int, msg string) error {
	if pp.listener != nil {
		pp.listener.HandleError(pp.source, line, column, msg)
		return nil
	}
	return &LexerError{Line: line, Column: column, Msg: msg}
}

func (pp *Preprocessor) errorTok(tok Token, msg string) error {
	return pp.error(tok.Line, tok.Column, msg)
}

func (pp *Preprocessor) warning(line, column int, msg string) error {
	if pp.warnings[WarningError] {
		return pp.error(line, column, msg)
	}
	if pp.listener != nil {
		pp.listener.HandleWarning(pp.source, line, column, msg)
		return nil
	}
	return &LexerError{Line: line, Column: column, Msg: msg}
}

func (pp *Preprocessor) warningTok(tok Token, msg string) error {
	return pp.warning(tok.Line, tok.Column, msg)
}

/* Source stack */

// Source returns the top of the input stack.
func (pp *Preprocessor) Source() Source { return pp.source }

func (pp *Preprocessor) pushSource(s Source, autopop bool) {
	s.init(pp)
	s.setParent(pp.source, autopop)
	if pp.listener != nil {
		pp.listener.HandleSourceChange(pp.source, SourceChangeSuspend)
	}
	pp.source = s
	if pp.listener != nil {
		pp.listener.HandleSourceChange(pp.source, SourceChangePush)
	}
}

// popSource removes the top source. If linemarker is true and the popped
// source contributed line numbering, the returned token marks the return
// to the parent file.
func (pp *Preprocessor) popSource(linemarker bool) (*Token, error) {
	if pp.listener != nil {
		pp.listener.HandleSourceChange(pp.source, SourceChangePop)
	}
	s := pp.source
	pp.source = s.Parent()
	err := s.Close()
	if pp.listener != nil && pp.source != nil {
		pp.listener.HandleSourceChange(pp.source, SourceChangeResume)
	}

	if linemarker && pp.Feature(FeatureLineMarkers) && s.Numbered() && pp.source != nil {
		tok := pp.lineToken(pp.source.Line(), pp.source.Name(), " 2")
		return &tok, err
	}
	return nil, err
}

func (pp *Preprocessor) nextSource() Token {
	if len(pp.inputs) == 0 {
		return Token{Type: EOF}
	}
	s := pp.inputs[0]
	pp.inputs = pp.inputs[1:]
	pp.pushSource(s, true)
	return pp.lineToken(s.Line(), s.Name(), " 1")
}

// lineToken builds a GCC-style linemarker: flag 1 marks file entry, 2 the
// return from an include.
func (pp *Preprocessor) lineToken(line int, name, extra string) Token {
	var buf strings.Builder
	buf.WriteString("#line ")
	buf.WriteString(strconv.Itoa(line))
	buf.WriteString(" \"")
	if name == "" {
		buf.WriteString("<no file>")
	} else {
		escapeInto(&buf, name)
	}
	buf.WriteString("\"")
	buf.WriteString(extra)
	buf.WriteString("\n")
	return Token{Type: P_LINE, Line: line, Text: buf.String()}
}

/* Source tokens */

func (pp *Preprocessor) sourceToken() (Token, error) {
	if pp.sourceTok != nil {
		tok := *pp.sourceTok
		pp.sourceTok = nil
		return tok, nil
	}

	for {
		s := pp.source
		if s == nil {
			t := pp.nextSource()
			if t.Type == P_LINE && !pp.Feature(FeatureLineMarkers) {
				continue
			}
			return t, nil
		}
		tok, err := s.Token()
		if err != nil {
			return tok, err
		}
		if tok.Type == EOF && s.Autopop() {
			mark, err := pp.popSource(true)
			if err != nil {
				return tok, err
			}
			if mark != nil {
				return *mark, nil
			}
			continue
		}
		return tok, nil
	}
}

func (pp *Preprocessor) sourceUntoken(tok Token) {
	if pp.sourceTok != nil {
		panic("cpp: cannot unget two source tokens")
	}
	t := tok
	pp.sourceTok = &t
}

func (pp *Preprocessor) sourceTokenNonwhite() (Token, error) {
	for {
		tok, err := pp.sourceToken()
		if err != nil || !isWhite(tok) {
			return tok, err
		}
	}
}

// sourceSkipline consumes the rest of the line and returns the NL or EOF
// token. If white is set, non-white tokens on the way are reported.
func (pp *Preprocessor) sourceSkipline(white bool) (Token, error) {
	for {
		tok, err := pp.sourceToken()
		if err != nil {
			return tok, err
		}
		switch tok.Type {
		case EOF, NL, P_LINE:
			return tok, nil
		case WHITESPACE, CCOMMENT, CPPCOMMENT:
		default:
			if white {
				if werr := pp.warningTok(tok, "Unexpected nonwhite token"); werr != nil {
					return tok, werr
				}
			}
		}
	}
}

// captureLine collects the remainder of the current directive line. The
// returned slice starts with first (the directive name token) and excludes
// the terminator, which is returned separately (NL, or EOF at end of
// input).
func (pp *Preprocessor) captureLine(first Token) ([]Token, Token, error) {
	tokens := []Token{first}
	for {
		tok, err := pp.sourceToken()
		if err != nil {
			return tokens, tok, err
		}
		switch tok.Type {
		case NL, EOF, P_LINE:
			return tokens, tok, nil
		default:
			tokens = append(tokens, tok)
		}
	}
}

// withNewline appends the line terminator to a directive replay so the
// output keeps its line structure.
func withNewline(tokens []Token, terminator Token) []Token {
	out := append([]Token{}, tokens...)
	if terminator.Type == NL {
		return append(out, terminator)
	}
	return append(out, Token{Type: NL, Text: "\n"})
}

// rebuildDirective re-lexes a rewritten condition behind the original
// directive name token.
func rebuildDirective(dirTokens []Token, condition string) []Token {
	out := []Token{dirTokens[0], spaceToken}
	lexer := NewStringLexerSource(condition)
	for {
		tok, err := lexer.Token()
		if err != nil || tok.Type == EOF {
			break
		}
		if tok.Type == NL {
			continue
		}
		out = append(out, tok)
	}
	return out
}

/* Macro expansion */

// macroCall parses a (possible) invocation of m and pushes its expansion.
// Returns false if the identifier turned out not to be an invocation.
func (pp *Preprocessor) macroCall(m *Macro, orig Token) (bool, error) {
	var args []*Argument

	if m.IsFunctionLike() {
	open:
		for {
			tok, err := pp.sourceToken()
			if err != nil {
				return false, err
			}
			switch tok.Type {
			case WHITESPACE, CCOMMENT, CPPCOMMENT, NL:
				// continue scanning for the open paren
			case TokenType('('):
				break open
			default:
				pp.sourceUntoken(tok)
				return false, nil
			}
		}

		tok, err := pp.sourceTokenNonwhite()
		if err != nil {
			return false, err
		}

		// We either have, or we should have args. This deals with the
		// case of a single empty argument to a zero-parameter macro.
		if tok.Type != TokenType(')') || m.NumArgs() > 0 {
			arg := newArgument()
			depth := 0
			space := false

		argloop:
			for {
				switch tok.Type {
				case EOF:
					if err := pp.errorTok(tok, "EOF in macro args"); err != nil {
						return false, err
					}
					return false, nil

				case TokenType(','):
					if depth == 0 {
						if m.IsVariadic() && len(args) == m.NumArgs()-1 {
							// Collecting __VA_ARGS__; the comma stays.
							arg.addToken(tok)
						} else {
							args = append(args, arg)
							arg = newArgument()
						}
					} else {
						arg.addToken(tok)
					}
					space = false
				case TokenType(')'):
					if depth == 0 {
						args = append(args, arg)
						break argloop
					}
					depth--
					arg.addToken(tok)
					space = false
				case TokenType('('):
					depth++
					arg.addToken(tok)
					space = false

				case WHITESPACE, CCOMMENT, CPPCOMMENT, NL:
					space = true

				default:
					if space && !arg.isEmpty() {
						arg.addToken(spaceToken)
					}
					arg.addToken(tok)
					space = false
				}
				tok, err = pp.sourceToken()
				if err != nil {
					return false, err
				}
			}

			if len(args) != m.NumArgs() {
				if m.IsVariadic() && len(args) == m.NumArgs()-1 {
					args = append(args, newArgument())
				} else if m.IsVariadic() {
					if err := pp.errorTok(tok, fmt.Sprintf(
						"variadic macro %s has at least %d parameters but given %d args",
						m.Name(), m.NumArgs()-1, len(args))); err != nil {
						return false, err
					}
					return false, nil
				} else {
					if err := pp.errorTok(tok, fmt.Sprintf(
						"macro %s has %d parameters but given %d args",
						m.Name(), m.NumArgs(), len(args))); err != nil {
						return false, err
					}
					return false, nil
				}
			}

			for _, a := range args {
				if err := a.expand(pp); err != nil {
					return false, err
				}
			}
		} else {
			args = nil
		}
	}

	switch m {
	case pp.macros.lineMacro:
		text := strconv.Itoa(orig.Line)
		pp.pushSource(NewFixedTokenSource([]Token{{
			Type: NUMBER, Line: orig.Line, Column: orig.Column,
			Text: text, Value: newNumericValue(10, text),
		}}), true)
	case pp.macros.fileMacro:
		name := ""
		if pp.source != nil {
			name = pp.source.Name()
		}
		if name == "" {
			name = "<no file>"
		}
		var buf strings.Builder
		buf.WriteString("\"")
		escapeInto(&buf, name)
		buf.WriteString("\"")
		pp.pushSource(NewFixedTokenSource([]Token{{
			Type: STRING, Line: orig.Line, Column: orig.Column,
			Text: buf.String(), Value: name,
		}}), true)
	case pp.macros.counterMacro:
		text := strconv.Itoa(pp.counter)
		pp.counter++
		pp.pushSource(NewFixedTokenSource([]Token{{
			Type: NUMBER, Line: orig.Line, Column: orig.Column,
			Text: text, Value: newNumericValue(10, text),
		}}), true)
	default:
		pp.pushSource(NewMacroTokenSource(m, args), true)
	}

	return true, nil
}

// expandTokens runs the expander over an isolated token list, collapsing
// whitespace. Arguments are pre-expanded through here exactly once.
func (pp *Preprocessor) expandTokens(arg []Token) ([]Token, error) {
	var expansion []Token
	space := false

	prev := pp.source
	pp.pushSource(NewFixedTokenSource(arg), false)

	cleanup := func() {
		for pp.source != nil && pp.source != prev {
			pp.popSource(false)
		}
	}

	for {
		tok, err := pp.expandedToken()
		if err != nil {
			cleanup()
			return nil, err
		}
		if tok.Type == EOF {
			break
		}
		if isWhite(tok) || tok.Type == NL {
			space = true
			continue
		}
		if space && len(expansion) > 0 {
			expansion = append(expansion, spaceToken)
		}
		expansion = append(expansion, tok)
		space = false
	}

	cleanup()
	return expansion, nil
}

// Expand lexes and fully expands a macro call given as text, outside the
// main token stream.
func (pp *Preprocessor) Expand(text string) ([]Token, error) {
	lexer := NewStringLexerSource(text)
	var tokens []Token
	for {
		tok, err := lexer.Token()
		if err != nil {
			return nil, err
		}
		if tok.Type == EOF {
			break
		}
		tokens = append(tokens, tok)
	}
	return pp.expandTokens(tokens)
}

// ExpandWith expands the given call with m temporarily defined, restoring
// any previous definition of the same name afterwards.
func (pp *Preprocessor) ExpandWith(m *Macro, call string) ([]Token, error) {
	before := pp.macros.Get(m.Name())
	if err := pp.macros.Put(m); err != nil {
		return nil, err
	}
	expanded, err := pp.Expand(call)
	if before != nil {
		pp.macros.Put(before)
	} else {
		pp.macros.Remove(m.Name())
	}
	return expanded, err
}

// expandedToken pulls one token with macro expansion applied. This
// bypasses directive handling, so conditional expressions can expand
// macros even while the enclosing region is being skipped.
func (pp *Preprocessor) expandedToken() (Token, error) {
	for {
		tok, err := pp.sourceToken()
		if err != nil {
			return tok, err
		}
		if tok.Type == IDENTIFIER {
			m := pp.macros.Get(tok.Text)
			if m == nil {
				return tok, nil
			}
			if isExpanding(pp.source, m) {
				return tok, nil
			}
			if pp.control != nil && !pp.control.ExpandMacro(m, pp.source, tok.Line, tok.Column, true) {
				return tok, nil
			}
			ok, err := pp.macroCall(m, tok)
			if err != nil {
				return tok, err
			}
			if ok {
				continue
			}
		}
		return tok, nil
	}
}

func (pp *Preprocessor) expandedTokenNonwhite() (Token, error) {
	for {
		tok, err := pp.expandedToken()
		if err != nil || !isWhite(tok) {
			return tok, err
		}
	}
}

/* Directives */

// parseDefine parses the remainder of a #define directive. origSource is
// the source the directive came from; the tokens themselves are read from
// the replayed capture.
func (pp *Preprocessor) parseDefine(origSource Source) (*Macro, error) {
	tok, err := pp.sourceTokenNonwhite()
	if err != nil {
		return nil, err
	}
	if tok.Type != IDENTIFIER {
		if err := pp.errorTok(tok, "Expected identifier"); err != nil {
			return nil, err
		}
		return nil, nil
	}
	name := tok.Text
	if name == "defined" {
		if err := pp.errorTok(tok, "Cannot redefine name 'defined'"); err != nil {
			return nil, err
		}
		return nil, nil
	}

	m := NewMacro(origSource, name)
	var argNames []string

	tok, err = pp.sourceToken()
	if err != nil {
		return nil, err
	}
	if tok.Type == TokenType('(') {
		tok, err = pp.sourceTokenNonwhite()
		if err != nil {
			return nil, err
		}
		if tok.Type != TokenType(')') {
		argloop:
			for {
				switch tok.Type {
				case IDENTIFIER:
					argNames = append(argNames, tok.Text)
				case ELLIPSIS:
					// Unnamed variadic parameter list; name it and let
					// the separator handling below see the ellipsis.
					argNames = append(argNames, "__VA_ARGS__")
					pp.sourceUntoken(tok)
				case NL, EOF:
					if err := pp.errorTok(tok, "Unterminated macro parameter list"); err != nil {
						return nil, err
					}
					return nil, nil
				default:
					if err := pp.errorTok(tok, "error in macro parameters: "+tok.Text); err != nil {
						return nil, err
					}
					return nil, nil
				}
				tok, err = pp.sourceTokenNonwhite()
				if err != nil {
					return nil, err
				}
				switch tok.Type {
				case TokenType(','):
				case ELLIPSIS:
					tok, err = pp.sourceTokenNonwhite()
					if err != nil {
						return nil, err
					}
					if tok.Type != TokenType(')') {
						if err := pp.errorTok(tok, "ellipsis must be on last argument"); err != nil {
							return nil, err
						}
					}
					m.SetVariadic(true)
					break argloop
				case TokenType(')'):
					break argloop
				case NL, EOF:
					if err := pp.errorTok(tok, "Unterminated macro parameters"); err != nil {
						return nil, err
					}
					return nil, nil
				default:
					if err := pp.errorTok(tok, "Bad token in macro parameters: "+tok.Text); err != nil {
						return nil, err
					}
					return nil, nil
				}
				tok, err = pp.sourceTokenNonwhite()
				if err != nil {
					return nil, err
				}
			}
		}
		m.SetArgs(argNames)
	} else {
		pp.sourceUntoken(tok)
	}

	indexOf := func(name string) int {
		for i, a := range argNames {
			if a == name {
				return i
			}
		}
		return -1
	}

	// Parse the replacement list. No space token is emitted at the
	// start, nor around a paste.
	space := false
	paste := false

	tok, err = pp.sourceTokenNonwhite()
	if err != nil {
		return nil, err
	}
expansion:
	for {
		switch tok.Type {
		case EOF, NL:
			break expansion

		case CCOMMENT, CPPCOMMENT, WHITESPACE:
			if !paste {
				space = true
			}

		case PASTE:
			space = false
			paste = true
			m.AddPaste(Token{Type: M_PASTE, Line: tok.Line, Column: tok.Column, Text: "##"})

		case HASH:
			if space {
				m.AddToken(spaceToken)
			}
			space = false
			la, err := pp.sourceTokenNonwhite()
			if err != nil {
				return nil, err
			}
			if la.Type == IDENTIFIER && indexOf(la.Text) != -1 {
				m.AddToken(Token{
					Type: M_STRING, Line: la.Line, Column: la.Column,
					Text: "#" + la.Text, Value: indexOf(la.Text),
				})
			} else {
				m.AddToken(tok)
				pp.sourceUntoken(la)
			}

		case IDENTIFIER:
			if space {
				m.AddToken(spaceToken)
			}
			space = false
			paste = false
			if idx := indexOf(tok.Text); idx != -1 {
				m.AddToken(Token{
					Type: M_ARG, Line: tok.Line, Column: tok.Column,
					Text: tok.Text, Value: idx,
				})
			} else {
				m.AddToken(tok)
			}

		default:
			if space {
				m.AddToken(spaceToken)
			}
			space = false
			paste = false
			m.AddToken(tok)
		}
		tok, err = pp.sourceToken()
		if err != nil {
			return nil, err
		}
	}

	return m, nil
}

// define handles #define. The directive line is captured first so a
// declined definition can be replayed verbatim.
func (pp *Preprocessor) define(hash, nameTok Token) (Token, error) {
	origSource := pp.source
	dirTokens, nl, err := pp.captureLine(nameTok)
	if err != nil {
		return nl, err
	}

	prev := pp.source
	pp.pushSource(NewFixedTokenSource(withNewline(dirTokens[1:], nl)), false)
	m, perr := pp.parseDefine(origSource)
	for pp.source != nil && pp.source != prev {
		pp.popSource(false)
	}
	pp.sourceTok = nil
	if perr != nil {
		return nl, perr
	}
	if m == nil {
		return nl, nil
	}

	if pp.Feature(FeatureDebug) {
		pp.logger.Debug("defined macro", "macro", m.String())
	}

	declined := pp.control != nil && !pp.control.AddMacro(m, origSource)
	if pp.listener != nil {
		pp.listener.HandleDefine(m, origSource)
	}
	if err := pp.macros.Put(m); err != nil {
		if derr := pp.errorTok(nameTok, err.Error()); derr != nil {
			return nl, derr
		}
		return nl, nil
	}
	if declined {
		pp.pushSource(NewUnprocessedFixedTokenSource(withNewline(dirTokens, nl)), true)
		return hash, nil
	}
	return nl, nil
}

// undef handles #undef, with the same capture-and-replay contract as
// define.
func (pp *Preprocessor) undef(hash, nameTok Token) (Token, error) {
	origSource := pp.source
	dirTokens, nl, err := pp.captureLine(nameTok)
	if err != nil {
		return nl, err
	}

	var ident *Token
	for i := 1; i < len(dirTokens); i++ {
		if !isWhite(dirTokens[i]) {
			ident = &dirTokens[i]
			break
		}
	}
	if ident == nil || ident.Type != IDENTIFIER {
		bad := nl
		if ident != nil {
			bad = *ident
		}
		if err := pp.errorTok(bad, "Expected identifier, not "+bad.Text); err != nil {
			return nl, err
		}
		return nl, nil
	}

	m := pp.macros.Get(ident.Text)
	if m == nil {
		m = NewMacro(nil, ident.Text)
	}
	declined := pp.control != nil && !pp.control.RemoveMacro(m, origSource)
	if pp.listener != nil {
		pp.listener.HandleUndefine(m, origSource)
	}
	pp.macros.Remove(ident.Text)
	if declined {
		pp.pushSource(NewUnprocessedFixedTokenSource(withNewline(dirTokens, nl)), true)
		return hash, nil
	}
	return nl, nil
}

// errorDirective handles #error and #warning.
func (pp *Preprocessor) errorDirective(nameTok Token, isError bool) (Token, error) {
	var buf strings.Builder
	buf.WriteString("#")
	buf.WriteString(nameTok.Text)
	buf.WriteString(" ")

	tok, err := pp.sourceTokenNonwhite()
	if err != nil {
		return tok, err
	}
	for tok.Type != NL && tok.Type != EOF {
		buf.WriteString(tok.Text)
		tok, err = pp.sourceToken()
		if err != nil {
			return tok, err
		}
	}
	if isError {
		if err := pp.errorTok(nameTok, buf.String()); err != nil {
			return tok, err
		}
	} else {
		if err := pp.warningTok(nameTok, buf.String()); err != nil {
			return tok, err
		}
	}
	return tok, nil
}

// pragmaOnce suppresses the remainder of a file that was already seen.
func (pp *Preprocessor) pragmaOnce() error {
	s := pp.source
	if pp.onceSeen[s.Path()] {
		mark, err := pp.popSource(true)
		if err != nil {
			return err
		}
		if mark != nil {
			// A replay source never emits a linemarker of its own on
			// exit, so hand the pending one through it.
			pp.pushSource(NewFixedTokenSource([]Token{*mark}), true)
		}
		return nil
	}
	pp.onceSeen[s.Path()] = true
	return nil
}

// pragmaDirective handles #pragma.
func (pp *Preprocessor) pragmaDirective() (Token, error) {
	var name Token
nameloop:
	for {
		tok, err := pp.sourceToken()
		if err != nil {
			return tok, err
		}
		switch tok.Type {
		case EOF:
			if err := pp.warningTok(tok, "End of file in #pragma"); err != nil {
				return tok, err
			}
			return tok, nil
		case NL:
			if err := pp.warningTok(tok, "Empty #pragma"); err != nil {
				return tok, err
			}
			return tok, nil
		case CCOMMENT, CPPCOMMENT, WHITESPACE:
		case IDENTIFIER:
			name = tok
			break nameloop
		default:
			if err := pp.warningTok(tok, "Illegal #pragma "+tok.Text); err != nil {
				return tok, err
			}
			return pp.sourceSkipline(false)
		}
	}

	var value []Token
	var tok Token
	var err error
valueloop:
	for {
		tok, err = pp.sourceToken()
		if err != nil {
			return tok, err
		}
		switch tok.Type {
		case EOF:
			if werr := pp.warningTok(tok, "End of file in #pragma"); werr != nil {
				return tok, werr
			}
			break valueloop
		case NL:
			break valueloop
		case CCOMMENT, CPPCOMMENT:
		default:
			value = append(value, tok)
		}
	}

	if err := pp.pragma(name, value); err != nil {
		return tok, err
	}
	return tok, nil
}

// pragma acts on a parsed #pragma. Only "once" is recognized; anything
// else warns.
func (pp *Preprocessor) pragma(name Token, value []Token) error {
	if pp.Feature(FeaturePragmaOnce) && name.Text == "once" {
		return pp.pragmaOnce()
	}
	return pp.warningTok(name, "Unknown #pragma: "+name.Text)
}

/* Driver */

// toWhitespace reduces a token to the newlines it contains, preserving
// line numbering without leaking the token text.
func toWhitespace(tok Token) Token {
	nls := strings.Count(tok.Text, "\n")
	return Token{
		Type:   WHITESPACE,
		Line:   tok.Line,
		Column: tok.Column,
		Text:   strings.Repeat("\n", nls),
	}
}

func (pp *Preprocessor) isActive() bool {
	state := pp.states[len(pp.states)-1]
	return state.parentActive && state.active
}

func (pp *Preprocessor) nextToken() (Token, error) {
	for {
		var tok Token
		var err error

		if !pp.isActive() {
			s := pp.source
			if s == nil {
				t := pp.nextSource()
				if t.Type == P_LINE && !pp.Feature(FeatureLineMarkers) {
					continue
				}
				return t, nil
			}

			// Quiet mode: the lexer suppresses warnings while skipping.
			s.setActive(false)
			tok, err = pp.sourceToken()
			if err != nil {
				s.setActive(true)
				return tok, err
			}
			switch tok.Type {
			case HASH, NL, EOF:
				// The preprocessor has to take action here.
				s.setActive(true)
			case WHITESPACE:
				s.setActive(true)
				return tok, nil
			case CCOMMENT, CPPCOMMENT:
				s.setActive(true)
				if pp.Feature(FeatureKeepAllComments) {
					return tok, nil
				}
				return toWhitespace(tok), nil
			default:
				// Discarded; return the NL to preserve line counts.
				nl, err := pp.sourceSkipline(false)
				s.setActive(true)
				return nl, err
			}
		} else {
			tok, err = pp.sourceToken()
			if err != nil {
				return tok, err
			}
			if _, ok := pp.source.(*UnprocessedFixedTokenSource); ok {
				return tok, nil
			}
		}

		switch tok.Type {
		case EOF:
			return tok, nil

		case WHITESPACE, NL:
			return tok, nil

		case CCOMMENT, CPPCOMMENT:
			if pp.Feature(FeatureKeepComments) || pp.Feature(FeatureKeepAllComments) {
				return tok, nil
			}
			return toWhitespace(tok), nil

		case IDENTIFIER:
			m := pp.macros.Get(tok.Text)
			if m == nil {
				return tok, nil
			}
			if isExpanding(pp.source, m) {
				return tok, nil
			}
			if pp.control != nil && !pp.control.ExpandMacro(m, pp.source, tok.Line, tok.Column, false) {
				return tok, nil
			}
			ok, err := pp.macroCall(m, tok)
			if err != nil {
				return tok, err
			}
			if ok {
				continue
			}
			return tok, nil

		case P_LINE:
			if pp.Feature(FeatureLineMarkers) {
				return tok, nil
			}
			continue

		case INVALID:
			if pp.Feature(FeatureCSyntax) {
				if err := pp.errorTok(tok, fmt.Sprint(tok.Value)); err != nil {
					return tok, err
				}
			}
			return tok, nil

		case HASH:
			out, err := pp.directive(tok)
			if err != nil {
				return out, err
			}
			return out, nil

		default:
			return tok, nil
		}
	}
}

// directive dispatches one preprocessor directive introduced by hash.
func (pp *Preprocessor) directive(hash Token) (Token, error) {
	tok, err := pp.sourceTokenNonwhite()
	if err != nil {
		return tok, err
	}
	switch tok.Type {
	case NL:
		// Some code has a bare # on a line.
		return tok, nil
	case IDENTIFIER:
	default:
		if err := pp.errorTok(tok, "Preprocessor directive not a word "+tok.Text); err != nil {
			return tok, err
		}
		return pp.sourceSkipline(false)
	}

	cmd, ok := directives[tok.Text]
	if !ok {
		if err := pp.errorTok(tok, "Unknown preprocessor directive "+tok.Text); err != nil {
			return tok, err
		}
		return pp.sourceSkipline(false)
	}

	switch cmd {
	case dirDefine:
		if !pp.isActive() {
			return pp.sourceSkipline(false)
		}
		return pp.define(hash, tok)

	case dirUndef:
		if !pp.isActive() {
			return pp.sourceSkipline(false)
		}
		return pp.undef(hash, tok)

	case dirInclude, dirIncludeNext:
		if !pp.isActive() {
			return pp.sourceSkipline(false)
		}
		next := cmd == dirIncludeNext
		if next && !pp.Feature(FeatureIncludeNext) {
			if err := pp.errorTok(tok, "Directive include_next not enabled"); err != nil {
				return tok, err
			}
			return pp.sourceSkipline(false)
		}
		return pp.includeDirective(hash, tok, next)

	case dirError, dirWarning:
		if !pp.isActive() {
			return pp.sourceSkipline(false)
		}
		return pp.errorDirective(tok, cmd == dirError)

	case dirIf:
		return pp.directiveIf(hash, tok)
	case dirIfdef:
		return pp.directiveIfdef(hash, tok, IfKindIfdef)
	case dirIfndef:
		return pp.directiveIfdef(hash, tok, IfKindIfndef)
	case dirElif:
		return pp.directiveElif(hash, tok)
	case dirElse:
		return pp.directiveElse(hash, tok)
	case dirEndif:
		return pp.directiveEndif(hash, tok)

	case dirLine:
		// Accepted and discarded.
		return pp.sourceSkipline(false)

	case dirPragma:
		if !pp.isActive() {
			return pp.sourceSkipline(false)
		}
		return pp.pragmaDirective()
	}

	return tok, pp.errorTok(tok, "Unknown preprocessor directive "+tok.Text)
}

// tokenNonwhite pulls fully-processed tokens, skipping whitespace.
func (pp *Preprocessor) tokenNonwhite() (Token, error) {
	for {
		tok, err := pp.nextToken()
		if err != nil || !isWhite(tok) {
			return tok, err
		}
	}
}

// Token returns the next fully preprocessed token. At end of input an EOF
// token is returned. Without a listener installed, diagnostics surface as
// the returned error.
func (pp *Preprocessor) Token() (Token, error) {
	tok, err := pp.nextToken()
	if pp.Feature(FeatureDebug) {
		pp.logger.Debug("pp: returning", "token", tok.String())
	}
	return tok, err
}

// Close shuts down the preprocessor, closing every live source.
func (pp *Preprocessor) Close() error {
	var first error
	for s := pp.source; s != nil; s = s.Parent() {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	pp.source = nil
	for _, s := range pp.inputs {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	pp.inputs = nil
	return first
}

func (pp *Preprocessor) String() string {
	var buf strings.Builder
	for s := pp.source; s != nil; s = s.Parent() {
		fmt.Fprintf(&buf, " -> %s\n", s.Name())
	}
	for _, m := range pp.macros.All() {
		fmt.Fprintf(&buf, "#macro %s\n", m)
	}
	return buf.String()
}
