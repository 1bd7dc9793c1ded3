// Package parser reads the Problem Frames DSL into a model.Document.
//
// The parser is tolerant: it never panics on bad input and always returns a
// document. Syntax errors are reported as diagnostics with precise spans and
// mark the document as Failed, which keeps a half-typed file out of the
// graph. Unknown top-level blocks such as `worldProperties W { ... }` are
// skipped with balanced braces.
//
// Supported statements:
//
//	problem: Name
//	import "other.pf"
//	domain Name kind causal role given
//	domain Name [Machine]
//	interface "Name" connects A, B { shared: { phenomenon P : event [A -> B] controlledBy A } }
//	requirement "Name" { frame: F  constraint: "..."  constrains: D  reference: E  phenomena: P }
//	subproblem Name { machine: M  participants: A, B  requirements: "R" }
package parser

import (
	"fmt"

	"pfls/internal/model"
)

// Source identifies diagnostics produced by this package.
const Source = "pfls"

var topKeywords = map[string]bool{
	"problem":     true,
	"import":      true,
	"domain":      true,
	"interface":   true,
	"requirement": true,
	"subproblem":  true,
}

// keywords lists every word with a meaning in the DSL, for completion.
var keywords = []string{
	"biddable", "causal", "command", "connects", "constrains", "constraint",
	"controlledBy", "designed", "domain", "event", "frame", "given", "import",
	"interface", "kind", "lexical", "machine", "participants", "phenomena",
	"phenomenon", "problem", "reference", "requirement", "requirements",
	"role", "shared", "state", "subproblem", "value",
}

// Keywords returns the DSL keywords in sorted order.
func Keywords() []string {
	return append([]string(nil), keywords...)
}

var phenomenonTypes = map[string]model.PhenomenonType{
	"event":   model.PhenomenonEvent,
	"command": model.PhenomenonCommand,
	"state":   model.PhenomenonState,
	"value":   model.PhenomenonValue,
}

var domainKinds = map[string]model.DomainKind{
	"causal":   model.DomainCausal,
	"biddable": model.DomainBiddable,
	"lexical":  model.DomainLexical,
}

var domainRoles = map[string]model.DomainRole{
	"given":    model.RoleGiven,
	"designed": model.RoleDesigned,
	"machine":  model.RoleMachine,
}

// syntaxError aborts the current statement.
type syntaxError struct {
	span model.Span
	msg  string
}

func (e *syntaxError) Error() string { return e.msg }

type parser struct {
	toks []token
	pos  int
	doc  *model.Document
}

// Parse parses text into a Document. It never returns nil.
func Parse(uri string, version int32, text string) *model.Document {
	toks, lexErrs := tokenize(text)
	p := &parser{
		toks: toks,
		doc:  &model.Document{URI: uri, Version: version},
	}
	p.doc.Diagnostics = append(p.doc.Diagnostics, lexErrs...)
	p.parseFile()
	p.doc.Failed = p.doc.HasErrors()
	return p.doc
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

// prev returns the last consumed token.
func (p *parser) prev() token {
	if p.pos == 0 {
		return p.toks[0]
	}
	return p.toks[p.pos-1]
}

func (p *parser) atEOF() bool { return p.peek().kind == tokEOF }

func (p *parser) fail(tok token, format string, args ...any) error {
	return &syntaxError{span: tok.span, msg: fmt.Sprintf(format, args...)}
}

func (p *parser) expectPunct(text string) (token, error) {
	tok := p.peek()
	if !tok.is(tokPunct, text) {
		return tok, p.fail(tok, "expected %q, found %s", text, tok)
	}
	return p.next(), nil
}

func (p *parser) expectIdent(what string) (token, error) {
	tok := p.peek()
	if tok.kind != tokIdent {
		return tok, p.fail(tok, "expected %s, found %s", what, tok)
	}
	return p.next(), nil
}

// expectName accepts an identifier or a quoted string.
func (p *parser) expectName(what string) (token, error) {
	tok := p.peek()
	if tok.kind != tokIdent && tok.kind != tokString {
		return tok, p.fail(tok, "expected %s, found %s", what, tok)
	}
	return p.next(), nil
}

func (p *parser) acceptPunct(text string) bool {
	if p.peek().is(tokPunct, text) {
		p.next()
		return true
	}
	return false
}

func (p *parser) report(err error) {
	se, ok := err.(*syntaxError)
	if !ok {
		se = &syntaxError{span: p.peek().span, msg: err.Error()}
	}
	p.doc.Diagnostics = append(p.doc.Diagnostics, model.Diagnostic{
		Span:     se.span,
		Severity: model.SeverityError,
		Code:     "syntax",
		Message:  se.msg,
	})
}

func (p *parser) warn(span model.Span, code, format string, args ...any) {
	p.doc.Diagnostics = append(p.doc.Diagnostics, model.Diagnostic{
		Span:     span,
		Severity: model.SeverityWarning,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
	})
}

// resync skips to the next top-level keyword that starts a line. It always
// makes progress past the token at start.
func (p *parser) resync(start int) {
	if p.pos == start && !p.atEOF() {
		p.next()
	}
	for !p.atEOF() {
		tok := p.peek()
		if tok.lineStart && tok.kind == tokIdent && topKeywords[tok.text] {
			return
		}
		p.next()
	}
}

func (p *parser) parseFile() {
	for !p.atEOF() {
		tok := p.peek()
		start := p.pos
		var err error
		if tok.kind != tokIdent {
			err = p.fail(tok, "expected a declaration, found %s", tok)
		} else {
			switch tok.text {
			case "problem":
				err = p.parseProblem()
			case "import":
				err = p.parseImport()
			case "domain":
				err = p.parseDomain()
			case "interface":
				err = p.parseInterface()
			case "requirement":
				err = p.parseRequirement()
			case "subproblem":
				err = p.parseSubproblem()
			default:
				err = p.skipUnknownBlock()
			}
		}
		if err != nil {
			p.report(err)
			p.resync(start)
		}
	}
}

func (p *parser) parseProblem() error {
	p.next()
	if _, err := p.expectPunct(":"); err != nil {
		return err
	}
	name, err := p.expectName("problem name")
	if err != nil {
		return err
	}
	if p.doc.Problem != "" {
		p.warn(name.span, "duplicate-problem", "problem name already set to %q", p.doc.Problem)
	}
	p.doc.Problem = name.text
	return nil
}

func (p *parser) parseImport() error {
	kw := p.next()
	path := p.peek()
	if path.kind != tokString {
		return p.fail(path, "expected import path string, found %s", path)
	}
	p.next()
	p.doc.Imports = append(p.doc.Imports, model.Import{
		Path: path.text,
		Span: model.Span{Start: kw.span.Start, End: path.span.End},
	})
	return nil
}

func (p *parser) parseDomain() error {
	kw := p.next()
	name, err := p.expectIdent("domain name")
	if err != nil {
		return err
	}
	d := model.Domain{
		Name:     name.text,
		Kind:     model.DomainUnknown,
		Role:     model.RoleGiven,
		NameSpan: name.span,
	}

	if p.acceptPunct("[") {
		typ, err := p.expectIdent("domain type")
		if err != nil {
			return err
		}
		switch typ.text {
		case "Machine":
			d.Kind, d.Role = model.DomainCausal, model.RoleMachine
		case "Causal":
			d.Kind = model.DomainCausal
		case "Biddable":
			d.Kind = model.DomainBiddable
		case "Lexical":
			d.Kind = model.DomainLexical
		default:
			p.warn(typ.span, "unknown-domain-type", "unknown domain type %q", typ.text)
		}
		if _, err := p.expectPunct("]"); err != nil {
			return err
		}
	}

	for {
		attr := p.peek()
		if attr.kind != tokIdent || attr.lineStart || (attr.text != "kind" && attr.text != "role") {
			break
		}
		p.next()
		val, err := p.expectIdent(attr.text)
		if err != nil {
			return err
		}
		if attr.text == "kind" {
			kind, ok := domainKinds[val.text]
			if !ok {
				p.warn(val.span, "unknown-domain-kind", "unknown domain kind %q", val.text)
				kind = model.DomainUnknown
			}
			d.Kind = kind
		} else {
			role, ok := domainRoles[val.text]
			if !ok {
				p.warn(val.span, "unknown-domain-role", "unknown domain role %q", val.text)
				role = model.RoleGiven
			}
			d.Role = role
		}
	}

	d.Span = model.Span{Start: kw.span.Start, End: p.prev().span.End}
	p.doc.Domains = append(p.doc.Domains, d)
	return nil
}

func (p *parser) parseInterface() error {
	kw := p.next()
	name, err := p.expectName("interface name")
	if err != nil {
		return err
	}
	iface := model.Interface{Name: name.text}

	if tok := p.peek(); tok.is(tokIdent, "connects") {
		p.next()
		refs, err := p.parseRefList()
		if err != nil {
			return err
		}
		iface.Connects = refs
	}

	if _, err := p.expectPunct("{"); err != nil {
		return err
	}
	for !p.acceptPunct("}") {
		tok := p.peek()
		switch {
		case tok.kind == tokEOF:
			return p.fail(tok, "unterminated interface %q", iface.Name)
		case tok.is(tokIdent, "shared"):
			p.next()
			if _, err := p.expectPunct(":"); err != nil {
				return err
			}
			if _, err := p.expectPunct("{"); err != nil {
				return err
			}
			for !p.acceptPunct("}") {
				if p.atEOF() {
					return p.fail(p.peek(), "unterminated shared block")
				}
				if p.acceptPunct(",") || p.acceptPunct(";") {
					continue
				}
				ph, err := p.parsePhenomenon()
				if err != nil {
					return err
				}
				iface.Phenomena = append(iface.Phenomena, ph)
			}
		case tok.is(tokIdent, "connects") && p.peekAt(1).is(tokPunct, ":"):
			p.next()
			p.next()
			refs, err := p.parseRefList()
			if err != nil {
				return err
			}
			iface.Connects = append(iface.Connects, refs...)
		case tok.is(tokPunct, ",") || tok.is(tokPunct, ";"):
			p.next()
		default:
			ph, err := p.parsePhenomenon()
			if err != nil {
				return err
			}
			iface.Phenomena = append(iface.Phenomena, ph)
		}
	}

	iface.Span = model.Span{Start: kw.span.Start, End: p.prev().span.End}
	p.doc.Interfaces = append(p.doc.Interfaces, iface)
	return nil
}

// parsePhenomenon accepts both
//
//	phenomenon P : event [A -> B] controlledBy A
//	event P [A -> B]
func (p *parser) parsePhenomenon() (model.Phenomenon, error) {
	var ph model.Phenomenon
	first := p.peek()

	if first.is(tokIdent, "phenomenon") {
		p.next()
		name, err := p.expectName("phenomenon name")
		if err != nil {
			return ph, err
		}
		ph.Name = name.text
		if _, err := p.expectPunct(":"); err != nil {
			return ph, err
		}
		typ, err := p.expectIdent("phenomenon type")
		if err != nil {
			return ph, err
		}
		t, ok := phenomenonTypes[typ.text]
		if !ok {
			return ph, p.fail(typ, "unknown phenomenon type %q", typ.text)
		}
		ph.Type = t
	} else {
		typ, err := p.expectIdent("phenomenon")
		if err != nil {
			return ph, err
		}
		t, ok := phenomenonTypes[typ.text]
		if !ok {
			return ph, p.fail(typ, "expected phenomenon, found %s", typ)
		}
		ph.Type = t
		name, err := p.expectName("phenomenon name")
		if err != nil {
			return ph, err
		}
		ph.Name = name.text
	}

	if _, err := p.expectPunct("["); err != nil {
		return ph, err
	}
	from, err := p.expectIdent("source domain")
	if err != nil {
		return ph, err
	}
	arrow := p.peek()
	if arrow.kind != tokArrow {
		return ph, p.fail(arrow, "expected \"->\", found %s", arrow)
	}
	p.next()
	to, err := p.expectIdent("target domain")
	if err != nil {
		return ph, err
	}
	if _, err := p.expectPunct("]"); err != nil {
		return ph, err
	}
	ph.From = model.Reference{Name: from.text, Span: from.span}
	ph.To = model.Reference{Name: to.text, Span: to.span}

	if p.peek().is(tokIdent, "controlledBy") {
		p.next()
		ctl, err := p.expectIdent("controlling domain")
		if err != nil {
			return ph, err
		}
		ph.ControlledBy = &model.Reference{Name: ctl.text, Span: ctl.span}
	}

	ph.Span = model.Span{Start: first.span.Start, End: p.prev().span.End}
	return ph, nil
}

func (p *parser) parseRequirement() error {
	kw := p.next()
	name, err := p.expectName("requirement name")
	if err != nil {
		return err
	}
	req := model.Requirement{Name: name.text, NameSpan: name.span}

	if _, err := p.expectPunct("{"); err != nil {
		return err
	}
	for !p.acceptPunct("}") {
		if p.atEOF() {
			return p.fail(p.peek(), "unterminated requirement %q", req.Name)
		}
		if p.acceptPunct(",") || p.acceptPunct(";") {
			continue
		}
		field, err := p.expectIdent("requirement field")
		if err != nil {
			return err
		}
		if _, err := p.expectPunct(":"); err != nil {
			return err
		}
		switch field.text {
		case "frame":
			frame, err := p.expectIdent("frame type")
			if err != nil {
				return err
			}
			req.Frame = frame.text
		case "constraint":
			tok := p.peek()
			if tok.kind != tokString {
				return p.fail(tok, "expected constraint string, found %s", tok)
			}
			req.Constraint = p.next().text
		case "constrains":
			refs, err := p.parseRefList()
			if err != nil {
				return err
			}
			req.Constrains = append(req.Constrains, refs...)
		case "reference", "references":
			refs, err := p.parseRefList()
			if err != nil {
				return err
			}
			req.References = append(req.References, refs...)
		case "phenomena":
			refs, err := p.parseRefList()
			if err != nil {
				return err
			}
			req.Phenomena = append(req.Phenomena, refs...)
		default:
			if err := p.skipFieldValue(); err != nil {
				return err
			}
		}
	}

	req.Span = model.Span{Start: kw.span.Start, End: p.prev().span.End}
	p.doc.Requirements = append(p.doc.Requirements, req)
	return nil
}

func (p *parser) parseSubproblem() error {
	kw := p.next()
	name, err := p.expectName("subproblem name")
	if err != nil {
		return err
	}
	sp := model.Subproblem{Name: name.text}

	if _, err := p.expectPunct("{"); err != nil {
		return err
	}
	for !p.acceptPunct("}") {
		if p.atEOF() {
			return p.fail(p.peek(), "unterminated subproblem %q", sp.Name)
		}
		if p.acceptPunct(",") || p.acceptPunct(";") {
			continue
		}
		field, err := p.expectIdent("subproblem field")
		if err != nil {
			return err
		}
		if _, err := p.expectPunct(":"); err != nil {
			return err
		}
		switch field.text {
		case "machine":
			m, err := p.expectName("machine domain")
			if err != nil {
				return err
			}
			sp.Machine = &model.Reference{Name: m.text, Span: m.span}
		case "participants":
			refs, err := p.parseRefList()
			if err != nil {
				return err
			}
			sp.Participants = append(sp.Participants, refs...)
		case "requirements":
			refs, err := p.parseRefList()
			if err != nil {
				return err
			}
			sp.Requirements = append(sp.Requirements, refs...)
		default:
			if err := p.skipFieldValue(); err != nil {
				return err
			}
		}
	}

	sp.Span = model.Span{Start: kw.span.Start, End: p.prev().span.End}
	p.doc.Subproblems = append(p.doc.Subproblems, sp)
	return nil
}

// parseRefList parses `Name (, Name)*` where each name is an identifier or
// a quoted string.
func (p *parser) parseRefList() ([]model.Reference, error) {
	var refs []model.Reference
	for {
		tok, err := p.expectName("name")
		if err != nil {
			return nil, err
		}
		refs = append(refs, model.Reference{Name: tok.text, Span: tok.span})
		if !p.peek().is(tokPunct, ",") {
			return refs, nil
		}
		// A trailing comma before the next field or closing brace ends the list.
		after := p.peekAt(1)
		if after.kind != tokIdent && after.kind != tokString {
			return refs, nil
		}
		if after.kind == tokIdent && p.peekAt(2).is(tokPunct, ":") {
			return refs, nil
		}
		p.next()
	}
}

// skipFieldValue consumes an unrecognized field value, stopping before the
// next `name:` pair or the closing brace of the enclosing block.
func (p *parser) skipFieldValue() error {
	depth := 0
	for {
		tok := p.peek()
		switch {
		case tok.kind == tokEOF:
			return p.fail(tok, "unexpected end of file")
		case tok.is(tokPunct, "{") || tok.is(tokPunct, "["):
			depth++
		case tok.is(tokPunct, "}") || tok.is(tokPunct, "]"):
			if depth == 0 {
				return nil
			}
			depth--
		case depth == 0 && tok.kind == tokIdent && p.peekAt(1).is(tokPunct, ":") && p.pos > 0 && !p.prev().is(tokPunct, ":"):
			return nil
		}
		p.next()
	}
}

// skipUnknownBlock skips `keyword ... { ... }` for declarations this parser
// does not model. A keyword without a block is an error.
func (p *parser) skipUnknownBlock() error {
	kw := p.next()
	for {
		tok := p.peek()
		switch {
		case tok.kind == tokEOF:
			return p.fail(kw, "unknown statement %q", kw.text)
		case tok.lineStart && tok.kind == tokIdent && topKeywords[tok.text]:
			return p.fail(kw, "unknown statement %q", kw.text)
		case tok.is(tokPunct, "{"):
			return p.skipBalanced()
		}
		p.next()
	}
}

func (p *parser) skipBalanced() error {
	open := p.next()
	depth := 1
	for depth > 0 {
		tok := p.next()
		switch {
		case tok.kind == tokEOF:
			return p.fail(open, "unterminated block")
		case tok.is(tokPunct, "{"):
			depth++
		case tok.is(tokPunct, "}"):
			depth--
		}
	}
	return nil
}
