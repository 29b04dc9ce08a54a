// expr.go evaluates preprocessor integer expressions for #if and #elif.
// A precedence-climbing parser over the expanded token stream; all
// arithmetic is signed 64-bit.
package cpp

import "fmt"

// exprNext pulls the next expression token. defined is handled here, as a
// pre-expander primary: its operand is read raw, never expanded.
func (pp *Preprocessor) exprNext() (Token, error) {
	if pp.exprTok != nil {
		tok := *pp.exprTok
		pp.exprTok = nil
		return tok, nil
	}

	tok, err := pp.expandedTokenNonwhite()
	if err != nil {
		return tok, err
	}
	if tok.Type != IDENTIFIER || tok.Text != "defined" {
		return tok, nil
	}

	la, err := pp.sourceTokenNonwhite()
	if err != nil {
		return la, err
	}
	paren := false
	if la.Type == TokenType('(') {
		paren = true
		la, err = pp.sourceTokenNonwhite()
		if err != nil {
			return la, err
		}
	}

	value := "0"
	if la.Type != IDENTIFIER {
		if err := pp.errorTok(la, "defined() needs identifier, not "+la.Text); err != nil {
			return la, err
		}
	} else if pp.macros.IsDefined(la.Text) {
		value = "1"
	}
	tok = Token{
		Type: NUMBER, Line: la.Line, Column: la.Column,
		Text: value, Value: newNumericValue(10, value),
	}

	if paren {
		la, err = pp.sourceTokenNonwhite()
		if err != nil {
			return la, err
		}
		if la.Type != TokenType(')') {
			pp.exprUnget(la)
			if err := pp.errorTok(la, "Missing ) in defined(). Got "+la.Text); err != nil {
				return la, err
			}
		}
	}
	return tok, nil
}

func (pp *Preprocessor) exprUnget(tok Token) {
	if pp.exprTok != nil {
		panic("cpp: cannot unget two expression tokens")
	}
	t := tok
	pp.exprTok = &t
}

// exprPriority returns the binding priority of a binary operator, or 0
// for anything else.
func exprPriority(op Token) int {
	switch op.Type {
	case TokenType('/'), TokenType('%'), TokenType('*'):
		return 11
	case TokenType('+'), TokenType('-'):
		return 10
	case LSH, RSH:
		return 9
	case TokenType('<'), TokenType('>'), LE, GE:
		return 8
	case EQ, NE:
		return 7
	case TokenType('&'):
		return 6
	case TokenType('^'):
		return 5
	case TokenType('|'):
		return 4
	case LAND:
		return 3
	case LOR:
		return 2
	case TokenType('?'):
		return 1
	}
	return 0
}

func exprChar(tok Token) int64 {
	switch v := tok.Value.(type) {
	case rune:
		return int64(v)
	case string:
		if v == "" {
			return 0
		}
		return int64([]rune(v)[0])
	}
	return 0
}

// Expr evaluates an expression given as text against the current macro
// table.
func (pp *Preprocessor) Expr(text string) (int64, error) {
	prev := pp.source
	pp.pushSource(NewStringLexerSource(text), false)
	saved := pp.exprTok
	pp.exprTok = nil

	val, err := pp.expr(0)

	pp.exprTok = saved
	for pp.source != nil && pp.source != prev {
		pp.popSource(false)
	}
	return val, err
}

func (pp *Preprocessor) expr(priority int) (int64, error) {
	tok, err := pp.exprNext()
	if err != nil {
		return 0, err
	}

	var lhs int64
	switch tok.Type {
	case TokenType('('):
		lhs, err = pp.expr(0)
		if err != nil {
			return 0, err
		}
		tok, err = pp.exprNext()
		if err != nil {
			return 0, err
		}
		if tok.Type != TokenType(')') {
			pp.exprUnget(tok)
			if err := pp.errorTok(tok, "Missing ) in expression. Got "+tok.Text); err != nil {
				return 0, err
			}
			return 0, nil
		}

	case TokenType('~'):
		lhs, err = pp.expr(11)
		if err != nil {
			return 0, err
		}
		lhs = ^lhs
	case TokenType('!'):
		lhs, err = pp.expr(11)
		if err != nil {
			return 0, err
		}
		if lhs == 0 {
			lhs = 1
		} else {
			lhs = 0
		}
	case TokenType('-'):
		lhs, err = pp.expr(11)
		if err != nil {
			return 0, err
		}
		lhs = -lhs

	case NUMBER:
		if v, ok := tok.Value.(*NumericValue); ok {
			lhs = v.Int()
		}
	case CHARACTER, SQSTRING:
		lhs = exprChar(tok)
	case IDENTIFIER:
		if pp.Warning(WarningUndef) {
			if err := pp.warningTok(tok, fmt.Sprintf(
				"Undefined token %q encountered in conditional.", tok.Text)); err != nil {
				return 0, err
			}
		}
		lhs = 0

	default:
		pp.exprUnget(tok)
		return 0, nil
	}

	for {
		op, err := pp.exprNext()
		if err != nil {
			return 0, err
		}
		pri := exprPriority(op) // 0 if not a binop
		if pri == 0 || priority >= pri {
			pp.exprUnget(op)
			break
		}
		rhs, err := pp.expr(pri)
		if err != nil {
			return 0, err
		}

		switch op.Type {
		case TokenType('/'):
			if rhs == 0 {
				if err := pp.errorTok(op, "Division by zero"); err != nil {
					return 0, err
				}
				lhs = 0
			} else {
				lhs = lhs / rhs
			}
		case TokenType('%'):
			if rhs == 0 {
				if err := pp.errorTok(op, "Modulus by zero"); err != nil {
					return 0, err
				}
				lhs = 0
			} else {
				lhs = lhs % rhs
			}
		case TokenType('*'):
			lhs = lhs * rhs
		case TokenType('+'):
			lhs = lhs + rhs
		case TokenType('-'):
			lhs = lhs - rhs
		case TokenType('<'):
			lhs = boolVal(lhs < rhs)
		case TokenType('>'):
			lhs = boolVal(lhs > rhs)
		case TokenType('&'):
			lhs = lhs & rhs
		case TokenType('^'):
			lhs = lhs ^ rhs
		case TokenType('|'):
			lhs = lhs | rhs

		case LSH:
			lhs = lhs << uint64(rhs)
		case RSH:
			lhs = lhs >> uint64(rhs)
		case LE:
			lhs = boolVal(lhs <= rhs)
		case GE:
			lhs = boolVal(lhs >= rhs)
		case EQ:
			lhs = boolVal(lhs == rhs)
		case NE:
			lhs = boolVal(lhs != rhs)
		case LAND:
			// Both sides are always evaluated; see the design notes.
			lhs = boolVal(lhs != 0 && rhs != 0)
		case LOR:
			lhs = boolVal(lhs != 0 || rhs != 0)

		case TokenType('?'):
			tok, err = pp.exprNext()
			if err != nil {
				return 0, err
			}
			if tok.Type != TokenType(':') {
				pp.exprUnget(tok)
				if err := pp.errorTok(tok, "Missing : in conditional expression. Got "+tok.Text); err != nil {
					return 0, err
				}
				return 0, nil
			}
			falseResult, err := pp.expr(0)
			if err != nil {
				return 0, err
			}
			if lhs != 0 {
				lhs = rhs
			} else {
				lhs = falseResult
			}

		default:
			if err := pp.errorTok(op, "Unexpected operator "+op.Text); err != nil {
				return 0, err
			}
			return 0, nil
		}
	}

	return lhs, nil
}

func boolVal(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
