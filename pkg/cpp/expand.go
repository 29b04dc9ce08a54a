// expand.go drives the substitution of a macro's replacement list with its
// arguments: parameter splicing, stringification and token pasting.
package cpp

import (
	"strings"
)

// Argument is one captured macro argument: the raw token sequence plus a
// pre-expanded copy computed exactly once per invocation.
type Argument struct {
	tokens    []Token
	expansion []Token
	expanded  bool
}

func newArgument() *Argument { return &Argument{} }

func (a *Argument) addToken(tok Token) { a.tokens = append(a.tokens, tok) }
func (a *Argument) isEmpty() bool      { return len(a.tokens) == 0 }

// expand computes the pre-expanded form of the argument. Stringification
// and pasting keep using the raw tokens.
func (a *Argument) expand(pp *Preprocessor) error {
	if a.expanded {
		return nil
	}
	expansion, err := pp.expandTokens(a.tokens)
	if err != nil {
		return err
	}
	a.expansion = expansion
	a.expanded = true
	return nil
}

// MacroTokenSource produces the replacement stream of one macro
// invocation. While it is on the source stack, the macro is painted blue:
// the driver will not expand it again underneath.
type MacroTokenSource struct {
	sourceBase
	macro *Macro
	args  []*Argument

	idx int
	// arg is the token run currently being spliced in: an expanded
	// argument, or the re-lexed result of a paste.
	arg    []Token
	argIdx int
}

// NewMacroTokenSource returns the expansion source for one invocation of
// m. args is nil for object-like macros and parameterless invocations.
func NewMacroTokenSource(m *Macro, args []*Argument) *MacroTokenSource {
	return &MacroTokenSource{macro: m, args: args}
}

func (s *MacroTokenSource) expanding(m *Macro) bool { return s.macro == m }

func (s *MacroTokenSource) Name() string {
	return "expansion of " + s.macro.Name()
}

func (s *MacroTokenSource) Token() (Token, error) {
	for {
		if s.arg != nil {
			if s.argIdx < len(s.arg) {
				tok := s.arg[s.argIdx]
				s.argIdx++
				return tok, nil
			}
			s.arg = nil
		}

		tokens := s.macro.Tokens()
		if s.idx >= len(tokens) {
			return Token{Type: EOF, Text: "<macro-eof>"}, nil
		}
		tok := tokens[s.idx]
		s.idx++

		switch tok.Type {
		case M_STRING:
			return s.stringify(tok), nil
		case M_ARG:
			idx := tok.Value.(int)
			s.arg = s.args[idx].expansion
			s.argIdx = 0
			if s.arg == nil {
				// Empty expansion; make the slice non-nil so the
				// splice loop terminates it.
				s.arg = []Token{}
			}
		case M_PASTE:
			if err := s.paste(tok); err != nil {
				if lerr, ok := err.(*LexerError); ok && s.pp != nil {
					if rerr := s.pp.error(lerr.Line, lerr.Column, lerr.Msg); rerr != nil {
						return Token{Type: INVALID, Line: tok.Line, Column: tok.Column, Value: err.Error()}, rerr
					}
					continue
				}
				return Token{Type: INVALID, Line: tok.Line, Column: tok.Column, Value: err.Error()}, err
			}
		default:
			return tok, nil
		}
	}
}

// stringify turns the raw tokens of the referenced argument into a single
// string token, escaping backslashes and double quotes.
func (s *MacroTokenSource) stringify(tok Token) Token {
	var raw strings.Builder
	for _, t := range s.args[tok.Value.(int)].tokens {
		raw.WriteString(t.Text)
	}
	var buf strings.Builder
	buf.WriteString("\"")
	escapeInto(&buf, raw.String())
	buf.WriteString("\"")
	return Token{
		Type:   STRING,
		Line:   tok.Line,
		Column: tok.Column,
		Text:   buf.String(),
		Value:  raw.String(),
	}
}

// paste collects the operands of a ## marker, concatenates their raw
// spellings and re-lexes the result. Pastes are stored in prefix position,
// so a nested paste among the operands simply requires one more operand.
func (s *MacroTokenSource) paste(ptok Token) error {
	var buf strings.Builder
	tokens := s.macro.Tokens()
	need := 2
	for i := 0; i < need; i++ {
		if s.idx >= len(tokens) {
			return &LexerError{
				Line:   ptok.Line,
				Column: ptok.Column,
				Msg:    "Paste at end of expansion",
			}
		}
		tok := tokens[s.idx]
		s.idx++
		switch tok.Type {
		case M_PASTE:
			// The marker itself is not an operand, and it brings one
			// more operand of its own.
			need += 2
		case M_ARG:
			for _, t := range s.args[tok.Value.(int)].tokens {
				buf.WriteString(t.Text)
			}
		case CCOMMENT, CPPCOMMENT:
			// Ignored between paste operands.
		default:
			buf.WriteString(tok.Text)
		}
	}

	lexer := NewStringLexerSource(buf.String())
	var pasted []Token
	for {
		t, err := lexer.Token()
		if err != nil {
			return err
		}
		if t.Type == EOF {
			break
		}
		t.Line, t.Column = ptok.Line, ptok.Column
		pasted = append(pasted, t)
	}
	s.arg = pasted
	s.argIdx = 0
	if s.arg == nil {
		s.arg = []Token{}
	}
	return nil
}

func (s *MacroTokenSource) String() string {
	var buf strings.Builder
	buf.WriteString("expansion of ")
	buf.WriteString(s.macro.Name())
	if s.parent != nil {
		buf.WriteString(" in ")
		buf.WriteString(s.parent.Name())
	}
	return buf.String()
}
