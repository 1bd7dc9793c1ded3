package parser

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"pfls/internal/model"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokPunct
	tokArrow
	tokIllegal
)

type token struct {
	kind      tokenKind
	text      string // identifier, unquoted string, or punctuation
	span      model.Span
	lineStart bool // first token on its line
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of file"
	case tokString:
		return fmt.Sprintf("string %q", t.text)
	case tokIllegal:
		return fmt.Sprintf("invalid input %q", t.text)
	default:
		return fmt.Sprintf("%q", t.text)
	}
}

func (t token) is(kind tokenKind, text string) bool {
	return t.kind == kind && t.text == text
}

// lexer splits source text into tokens, tracking LSP positions
// (zero-based line, UTF-16 column).
type lexer struct {
	src       string
	off       int
	line      uint32
	char      uint32
	lineStart bool
	errs      []model.Diagnostic
}

func newLexer(src string) *lexer {
	return &lexer{src: src, lineStart: true}
}

func (l *lexer) pos() model.Position {
	return model.Position{Line: l.line, Character: l.char}
}

func (l *lexer) peekRune() (rune, int) {
	if l.off >= len(l.src) {
		return utf8.RuneError, 0
	}
	return utf8.DecodeRuneInString(l.src[l.off:])
}

func (l *lexer) advance() rune {
	r, w := l.peekRune()
	if w == 0 {
		return r
	}
	l.off += w
	switch {
	case r == '\n':
		l.line++
		l.char = 0
		l.lineStart = true
	case r >= 0x10000:
		l.char += 2
	default:
		l.char++
	}
	return r
}

func (l *lexer) skipTrivia() {
	for l.off < len(l.src) {
		r, _ := l.peekRune()
		switch {
		case r == '#':
			l.skipLine()
		case r == '/' && strings.HasPrefix(l.src[l.off:], "//"):
			l.skipLine()
		case unicode.IsSpace(r):
			l.advance()
		default:
			return
		}
	}
}

func (l *lexer) skipLine() {
	for l.off < len(l.src) {
		if r, _ := l.peekRune(); r == '\n' {
			return
		}
		l.advance()
	}
}

func (l *lexer) next() token {
	l.skipTrivia()
	start := l.pos()
	first := l.lineStart
	l.lineStart = false

	if l.off >= len(l.src) {
		return token{kind: tokEOF, span: model.Span{Start: start, End: start}, lineStart: first}
	}

	r, _ := l.peekRune()
	var tok token
	switch {
	case isIdentStart(r):
		begin := l.off
		for l.off < len(l.src) {
			r, _ := l.peekRune()
			if !isIdentPart(r) {
				break
			}
			l.advance()
		}
		tok = token{kind: tokIdent, text: l.src[begin:l.off]}
	case r == '"':
		tok = l.lexString(start)
	case r == '-' && strings.HasPrefix(l.src[l.off:], "->"):
		l.advance()
		l.advance()
		tok = token{kind: tokArrow, text: "->"}
	case strings.ContainsRune("{}[](),:;", r):
		l.advance()
		tok = token{kind: tokPunct, text: string(r)}
	default:
		l.advance()
		tok = token{kind: tokIllegal, text: string(r)}
	}
	tok.span = model.Span{Start: start, End: l.pos()}
	tok.lineStart = first
	return tok
}

func (l *lexer) lexString(start model.Position) token {
	l.advance() // opening quote
	var sb strings.Builder
	for {
		if l.off >= len(l.src) {
			l.errs = append(l.errs, model.Diagnostic{
				Span:     model.Span{Start: start, End: l.pos()},
				Severity: model.SeverityError,
				Code:     "unterminated-string",
				Message:  "unterminated string literal",
			})
			return token{kind: tokIllegal, text: sb.String()}
		}
		r := l.advance()
		switch r {
		case '"':
			return token{kind: tokString, text: sb.String()}
		case '\n':
			l.errs = append(l.errs, model.Diagnostic{
				Span:     model.Span{Start: start, End: l.pos()},
				Severity: model.SeverityError,
				Code:     "unterminated-string",
				Message:  "unterminated string literal",
			})
			return token{kind: tokIllegal, text: sb.String()}
		case '\\':
			next := l.advance()
			switch next {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			default:
				sb.WriteRune(next)
			}
		default:
			sb.WriteRune(r)
		}
	}
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// tokenize lexes the whole source. The final token is always tokEOF.
func tokenize(src string) ([]token, []model.Diagnostic) {
	l := newLexer(src)
	var toks []token
	for {
		tok := l.next()
		toks = append(toks, tok)
		if tok.kind == tokEOF {
			break
		}
	}
	return toks, l.errs
}
