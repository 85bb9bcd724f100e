// internal/markup/markup.go

// Package markup turns the inline chat markup into the display markup sent to
// clients. The token set is fixed:
//
//	**bold**  *italic*  __underline__  _underline_
//	#r red r#  #g green g#  #b blue b#  #RRGGBB hex #
//
// Scanning is a single left-to-right pass. At every position the two-character
// tokens win over their one-character prefixes. Any style still open at the end
// of the input is closed, so the output never contains unterminated tags.
// Closing a style that has others opened inside it closes those first and
// reopens them afterwards, so tags always nest.
package markup

import (
	"bytes"
	"slices"
	"strings"
)

// Messages starting with one of these are server announcements and are never formatted.
const (
	RollPrefix = "ROLL:"
	FlipPrefix = "FLIP:"
)

type style int

const (
	bold style = iota
	italic
	underline
	color
)

var namedColors = map[byte]string{
	'r': "red",
	'g': "green",
	'b': "blue",
}

// state is the per-call formatter state. Nothing survives between calls.
type state struct {
	out      bytes.Buffer
	open     []style
	isOn     [4]bool
	openedAt [4]span
	color    string // value of the open color span
	close    string // token that ends the current color span
}

// span is the byte range of an open tag in out.
type span struct{ start, end int }

// Format converts text to display markup.
func Format(text string) string {
	if strings.HasPrefix(text, RollPrefix) || strings.HasPrefix(text, FlipPrefix) {
		return text
	}

	s := &state{}
	s.out.Grow(len(text) + 16)

	for i := 0; i < len(text); {
		switch {
		case strings.HasPrefix(text[i:], "**"):
			s.toggle(bold)
			i += 2
		case strings.HasPrefix(text[i:], "__"):
			s.toggle(underline)
			i += 2
		case s.isOn[color] && s.close != "#" && strings.HasPrefix(text[i:], s.close):
			n := len(s.close)
			s.turnOff(color)
			i += n
		case text[i] == '#':
			i += s.hash(text[i:])
		case text[i] == '*':
			s.toggle(italic)
			i++
		case text[i] == '_':
			s.toggle(underline)
			i++
		default:
			s.out.WriteByte(text[i])
			i++
		}
	}

	for len(s.open) > 0 {
		s.closeTop()
	}
	return s.out.String()
}

// hash handles a '#' at the start of rest and returns how many bytes it consumed.
func (s *state) hash(rest string) int {
	if len(rest) >= 7 && isHex(rest[1:7]) {
		s.openColor("#"+rest[1:7], "#")
		return 7
	}
	if len(rest) >= 2 {
		if name, ok := namedColors[rest[1]]; ok {
			s.openColor(name, string(rest[1])+"#")
			return 2
		}
	}
	if s.isOn[color] && s.close == "#" {
		s.turnOff(color)
		return 1
	}
	s.out.WriteByte('#')
	return 1
}

func (s *state) openColor(value, closeToken string) {
	if s.isOn[color] {
		s.turnOff(color)
	}
	s.color = value
	s.close = closeToken
	s.push(color)
}

func (s *state) toggle(st style) {
	if s.isOn[st] {
		s.turnOff(st)
		return
	}
	s.push(st)
}

// turnOff closes st. Styles opened after st are closed before it and reopened after.
func (s *state) turnOff(st style) {
	k := slices.Index(s.open, st)
	if k < 0 {
		return
	}
	inner := slices.Clone(s.open[k+1:])
	for len(s.open) > k {
		s.closeTop()
	}
	for _, in := range inner {
		s.push(in)
	}
	if st == color {
		s.color = ""
		s.close = ""
	}
}

func (s *state) push(st style) {
	start := s.out.Len()
	s.out.WriteString(s.openTag(st))
	s.openedAt[st] = span{start: start, end: s.out.Len()}
	s.isOn[st] = true
	s.open = append(s.open, st)
}

// closeTop closes the innermost open style. A span with nothing inside is
// removed instead of closed.
func (s *state) closeTop() {
	top := s.open[len(s.open)-1]
	s.open = s.open[:len(s.open)-1]
	s.isOn[top] = false
	if s.out.Len() == s.openedAt[top].end {
		s.out.Truncate(s.openedAt[top].start)
		return
	}
	s.out.WriteString(closeTag(top))
}

func (s *state) openTag(st style) string {
	switch st {
	case bold:
		return "<b>"
	case italic:
		return "<i>"
	case underline:
		return "<u>"
	case color:
		return "<font color='" + s.color + "'>"
	}
	return ""
}

func closeTag(st style) string {
	switch st {
	case bold:
		return "</b>"
	case italic:
		return "</i>"
	case underline:
		return "</u>"
	case color:
		return "</font>"
	}
	return ""
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}
