// conditional.go is the conditional-compilation state machine: nested
// #if groups, branch selection, and the partial-evaluation extension that
// preserves declined directives in the output.
package cpp

// pushState opens a new conditional frame capturing the directive tokens.
func (pp *Preprocessor) pushState(tokens []Token) {
	top := pp.states[len(pp.states)-1]
	pp.states = append(pp.states, newNestedState(top, tokens))
}

// popState closes the innermost frame. The sentinel bottom frame is never
// popped; a stray #endif reports and leaves the stack intact.
func (pp *Preprocessor) popState() error {
	s := pp.states[len(pp.states)-1]
	pp.states = pp.states[:len(pp.states)-1]
	if len(pp.states) == 0 {
		pp.states = append(pp.states, s)
		return pp.error(0, 0, "#endif without #if")
	}
	return nil
}

func (pp *Preprocessor) topState() *State {
	return pp.states[len(pp.states)-1]
}

// StateDepth returns the conditional nesting depth, including the
// sentinel frame.
func (pp *Preprocessor) StateDepth() int { return len(pp.states) }

// evaluateCondition expands and evaluates the captured condition tokens
// of a #if or #elif.
func (pp *Preprocessor) evaluateCondition(cond []Token) (bool, error) {
	prev := pp.source
	replay := append(append([]Token{}, cond...), Token{Type: NL, Text: "\n"})
	pp.pushSource(NewFixedTokenSource(replay), false)
	pp.exprTok = nil

	val, err := pp.expr(0)

	pp.exprTok = nil
	pp.sourceTok = nil
	for pp.source != nil && pp.source != prev {
		pp.popSource(false)
	}
	return val != 0, err
}

// reemit preserves a declined directive in the output: the caller returns
// the hash token and the rest of the line replays through an unprocessed
// source.
func (pp *Preprocessor) reemit(dirTokens []Token, nl Token) {
	pp.pushSource(NewUnprocessedFixedTokenSource(withNewline(dirTokens, nl)), true)
}

// checkLabels warns about spurious tokens after #else/#endif when
// ENDIF_LABELS is enabled.
func (pp *Preprocessor) checkLabels(dirTokens []Token) error {
	if !pp.Warning(WarningEndifLabels) {
		return nil
	}
	for _, tok := range dirTokens[1:] {
		if !isWhite(tok) {
			return pp.warningTok(tok, "Unexpected nonwhite token")
		}
	}
	return nil
}

func (pp *Preprocessor) directiveIf(hash, nameTok Token) (Token, error) {
	dirTokens, nl, err := pp.captureLine(nameTok)
	if err != nil {
		return nl, err
	}
	pp.pushState(dirTokens)
	if !pp.isActive() {
		return nl, nil
	}

	top := pp.topState()
	process := pp.control == nil || pp.control.ProcessIf(dirTokens, pp.source, IfKindIf)
	top.processed = process

	if !process {
		// The whole group is preserved; every branch body is emitted.
		top.active = true
		if text, ok := pp.control.PartiallyProcessedCondition(dirTokens[1:], pp.source, IfKindIf, pp); ok {
			replay := rebuildDirective(dirTokens, text)
			top.tokens = replay
			pp.reemit(replay, nl)
		} else {
			pp.reemit(dirTokens, nl)
		}
		return hash, nil
	}

	active, err := pp.evaluateCondition(dirTokens[1:])
	top.active = active
	return nl, err
}

func (pp *Preprocessor) directiveIfdef(hash, nameTok Token, kind IfKind) (Token, error) {
	dirTokens, nl, err := pp.captureLine(nameTok)
	if err != nil {
		return nl, err
	}
	pp.pushState(dirTokens)
	if !pp.isActive() {
		return nl, nil
	}

	var ident *Token
	rest := -1
	for i := 1; i < len(dirTokens); i++ {
		if !isWhite(dirTokens[i]) {
			ident = &dirTokens[i]
			rest = i + 1
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

	exists := pp.macros.IsDefined(ident.Text)
	top := pp.topState()
	process := pp.control == nil || pp.control.ProcessIf(dirTokens, pp.source, kind)
	top.processed = process
	if kind == IfKindIfdef {
		top.active = !process || exists
	} else {
		top.active = !process || !exists
	}

	if !process {
		if text, ok := pp.control.PartiallyProcessedCondition([]Token{*ident}, pp.source, kind, pp); ok {
			replay := rebuildDirective(dirTokens, text)
			top.tokens = replay
			pp.reemit(replay, nl)
		} else {
			pp.reemit(dirTokens, nl)
		}
		return hash, nil
	}

	// Anything after the tested name is junk.
	for i := rest; i > 0 && i < len(dirTokens); i++ {
		if !isWhite(dirTokens[i]) {
			if err := pp.warningTok(dirTokens[i], "Unexpected nonwhite token"); err != nil {
				return nl, err
			}
			break
		}
	}
	return nl, nil
}

func (pp *Preprocessor) directiveElif(hash, nameTok Token) (Token, error) {
	dirTokens, nl, err := pp.captureLine(nameTok)
	if err != nil {
		return nl, err
	}
	if len(pp.states) == 1 {
		if err := pp.errorTok(nameTok, "#elif without #if"); err != nil {
			return nl, err
		}
		return nl, nil
	}

	state := pp.topState()
	state.tokens = dirTokens
	switch {
	case state.sawElse:
		if err := pp.errorTok(nameTok, "#elif after #else"); err != nil {
			return nl, err
		}
		return nl, nil

	case !state.parentActive:
		// Nested in a skipped group.
		return nl, nil

	case state.processed && state.active:
		// An earlier branch was taken; nothing further may fire.
		state.parentActive = false
		state.active = false
		return nl, nil

	default:
		if !state.processed {
			if text, ok := pp.control.PartiallyProcessedCondition(dirTokens[1:], pp.source, IfKindElif, pp); ok {
				replay := rebuildDirective(dirTokens, text)
				state.tokens = replay
				pp.reemit(replay, nl)
			} else {
				pp.reemit(dirTokens, nl)
			}
			return hash, nil
		}

		active, err := pp.evaluateCondition(dirTokens[1:])
		state.active = active
		return nl, err
	}
}

func (pp *Preprocessor) directiveElse(hash, nameTok Token) (Token, error) {
	dirTokens, nl, err := pp.captureLine(nameTok)
	if err != nil {
		return nl, err
	}
	if len(pp.states) == 1 {
		if err := pp.errorTok(nameTok, "#else without #if"); err != nil {
			return nl, err
		}
		return nl, nil
	}

	state := pp.topState()
	if state.sawElse {
		if err := pp.errorTok(nameTok, "#else after #else"); err != nil {
			return nl, err
		}
		return nl, nil
	}

	state.sawElse = true
	state.active = !state.processed || !state.active
	if !state.processed {
		pp.reemit(dirTokens, nl)
		return hash, nil
	}
	if err := pp.checkLabels(dirTokens); err != nil {
		return nl, err
	}
	return nl, nil
}

func (pp *Preprocessor) directiveEndif(hash, nameTok Token) (Token, error) {
	dirTokens, nl, err := pp.captureLine(nameTok)
	if err != nil {
		return nl, err
	}

	state := pp.topState()
	if err := pp.popState(); err != nil {
		return nl, err
	}
	if !state.processed {
		pp.reemit(dirTokens, nl)
		return hash, nil
	}
	if err := pp.checkLabels(dirTokens); err != nil {
		return nl, err
	}
	return nl, nil
}
