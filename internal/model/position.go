package model

import "fmt"

// Position is a zero-based LSP position. Character counts UTF-16 code units.
type Position struct {
	Line      uint32 `json:"line"`
	Character uint32 `json:"character"`
}

// Before reports whether p sorts strictly before o.
func (p Position) Before(o Position) bool {
	if p.Line != o.Line {
		return p.Line < o.Line
	}
	return p.Character < o.Character
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line+1, p.Character+1)
}

// Span is a half-open range [Start, End) in a document.
type Span struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Contains reports whether pos falls inside the span.
func (s Span) Contains(pos Position) bool {
	return !pos.Before(s.Start) && pos.Before(s.End)
}

// Encloses reports whether o lies entirely within s.
func (s Span) Encloses(o Span) bool {
	return !o.Start.Before(s.Start) && !s.End.Before(o.End)
}

// StrictlyEncloses reports whether o lies within s and the two differ.
func (s Span) StrictlyEncloses(o Span) bool {
	return s.Encloses(o) && s != o
}

// IsZero reports whether the span was never set.
func (s Span) IsZero() bool {
	return s == Span{}
}

func (s Span) String() string {
	return fmt.Sprintf("%s-%s", s.Start, s.End)
}
