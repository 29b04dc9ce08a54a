// include.go handles #include and #include_next: header-name parsing and
// resolution across the quote, framework and system search paths.
package cpp

import (
	"path/filepath"
	"strings"
)

// includeFile pushes a lexer source for the file if it exists.
func (pp *Preprocessor) includeFile(file VirtualFile) (bool, error) {
	if file == nil || !file.IsFile() {
		return false, nil
	}
	if pp.Feature(FeatureDebug) {
		pp.logger.Debug("pp: including", "file", file.Path())
	}
	src, err := file.Source()
	if err != nil {
		return false, err
	}
	pp.includes = append(pp.includes, file)
	pp.pushSource(src, true)
	return true, nil
}

type includeCandidate struct {
	dir  string
	name string
}

func sameDir(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}

// includeByName resolves an include name and pushes the file found.
//
// Resolution order: absolute names resolve directly; quoted names search
// the including file's directory and then the quote path; angled names
// with a slash try the framework transformation; everything falls back to
// the system path. include_next resumes the search after the directory
// that produced the current file; with no such directory (a string
// source) it degenerates to a plain include.
func (pp *Preprocessor) includeByName(parent string, line int, name string, quoted, next bool) error {
	if isAbsoluteInclude(name) {
		ok, err := pp.includeFile(pp.filesystem.GetFile(name))
		if ok || err != nil {
			return err
		}
		return pp.error(line, 0, "File not found: "+name)
	}

	var pdir string
	if parent != "" {
		if p := pp.filesystem.GetFile(parent).ParentFile(); p != nil {
			pdir = p.Path()
		}
	}

	var cands []includeCandidate
	if quoted {
		if pdir != "" {
			cands = append(cands, includeCandidate{pdir, name})
		}
		for _, d := range pp.quoteIncludePath {
			cands = append(cands, includeCandidate{d, name})
		}
	} else if idx := strings.Index(name, "/"); idx != -1 {
		framework := name[:idx] + ".framework/Headers/" + name[idx+1:]
		for _, d := range pp.frameworksPath {
			cands = append(cands, includeCandidate{d, framework})
		}
	}
	for _, d := range pp.sysIncludePath {
		cands = append(cands, includeCandidate{d, name})
	}

	start := 0
	if next && pdir != "" {
		for i, c := range cands {
			if sameDir(c.dir, pdir) {
				start = i + 1
				break
			}
		}
	}

	for _, c := range cands[start:] {
		ok, err := pp.includeFile(pp.filesystem.GetFileIn(c.dir, c.name))
		if ok || err != nil {
			return err
		}
	}

	var buf strings.Builder
	buf.WriteString("File not found: ")
	buf.WriteString(name)
	buf.WriteString(" in")
	if quoted {
		buf.WriteString(" .(")
		buf.WriteString(pdir)
		buf.WriteString(")")
		for _, d := range pp.quoteIncludePath {
			buf.WriteString(" ")
			buf.WriteString(d)
		}
	} else if strings.Contains(name, "/") {
		for _, d := range pp.frameworksPath {
			buf.WriteString(" ")
			buf.WriteString(d)
		}
	}
	for _, d := range pp.sysIncludePath {
		buf.WriteString(" ")
		buf.WriteString(d)
	}
	return pp.error(line, 0, buf.String())
}

// includeDirective parses and performs one #include or #include_next.
func (pp *Preprocessor) includeDirective(hash, nameTok Token, next bool) (Token, error) {
	lexer, _ := pp.source.(*LexerSource)
	if lexer != nil {
		lexer.setInclude(true)
		defer lexer.setInclude(false)
	}

	from := pp.source
	tok, err := pp.tokenNonwhite()
	if err != nil {
		return tok, err
	}

	var name string
	var quoted bool
	var headerToks []Token
	var nl Token

	switch tok.Type {
	case STRING:
		// Adjacent string literals concatenate into one name. The
		// cooked values are used; backslashes have already been
		// interpreted by the lexer.
		quoted = true
		var buf strings.Builder
		buf.WriteString(tok.Value.(string))
		headerToks = append(headerToks, tok)
	header:
		for {
			tok2, err := pp.tokenNonwhite()
			if err != nil {
				return tok2, err
			}
			switch tok2.Type {
			case STRING:
				buf.WriteString(tok2.Value.(string))
				headerToks = append(headerToks, tok2)
			case NL, EOF:
				nl = tok2
				break header
			default:
				if werr := pp.warningTok(tok2, "Unexpected token on #include line"); werr != nil {
					return tok2, werr
				}
				return pp.sourceSkipline(false)
			}
		}
		name = buf.String()

	case HEADER:
		name = tok.Value.(string)
		headerToks = append(headerToks, tok)
		nl, err = pp.sourceSkipline(true)
		if err != nil {
			return nl, err
		}

	default:
		if werr := pp.errorTok(tok, "Expected string or header, not "+tok.Text); werr != nil {
			return tok, werr
		}
		switch tok.Type {
		case NL, EOF:
			return tok, nil
		default:
			return pp.sourceSkipline(false)
		}
	}

	includeText := TokensToString(headerToks)

	if pp.control != nil && !pp.control.Include(from, tok.Line, name, quoted, next) {
		replay := append([]Token{nameTok, spaceToken}, headerToks...)
		pp.reemit(replay, nl)
		return hash, nil
	}

	if err := pp.includeByName(from.Path(), nameTok.Line, name, quoted, next); err != nil {
		return nl, err
	}
	if pp.listener != nil {
		pp.listener.HandleInclude(includeText, next, from, pp.source)
	}

	// nl is the newline after the directive; with linemarkers on, the
	// entry marker replaces it.
	if pp.Feature(FeatureLineMarkers) {
		name := ""
		if pp.source != nil {
			name = pp.source.Name()
		}
		return pp.lineToken(1, name, " 1"), nil
	}
	return nl, nil
}
