// parse.go - Parser fuer Backend-Options-Strings
//
// Syntax:
//   list  := item { "," item }
//   item  := key "=" value | key "(" list ")" | "(" list ")" | key
//   value := quoted string | bare token
//
// Ein Schluessel ohne Wert wird als bool true gespeichert. Unbenannte
// Gruppen "(...)" bekommen die Namen "#1", "#2", ...
package optionsdict

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseError describes a syntax error in an options string.
type ParseError struct {
	Input string
	Pos   int
	Msg   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid options %q at offset %d: %s", e.Input, e.Pos, e.Msg)
}

// Parse parses a backend-opts string such as
// `threads=4,precision=fp16,child(backend=random,seed=7)` into a new root Dict.
func Parse(s string) (*Dict, error) {
	d := New()
	if err := ParseInto(d, s); err != nil {
		return nil, err
	}
	return d, nil
}

// ParseInto merges the parsed options into d.
func ParseInto(d *Dict, s string) error {
	p := &parser{input: s}
	p.skipSpace()
	if p.eof() {
		return nil
	}
	if err := p.parseList(d); err != nil {
		return err
	}
	p.skipSpace()
	if !p.eof() {
		return p.errorf("unexpected %q", p.peek())
	}
	return nil
}

type parser struct {
	input   string
	pos     int
	unnamed int
}

func (p *parser) eof() bool  { return p.pos >= len(p.input) }
func (p *parser) peek() byte { return p.input[p.pos] }

func (p *parser) skipSpace() {
	for !p.eof() && (p.peek() == ' ' || p.peek() == '\t') {
		p.pos++
	}
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Input: p.input, Pos: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseList(d *Dict) error {
	for {
		if err := p.parseItem(d); err != nil {
			return err
		}
		p.skipSpace()
		if p.eof() || p.peek() != ',' {
			return nil
		}
		p.pos++
	}
}

func (p *parser) parseItem(d *Dict) error {
	p.skipSpace()
	if !p.eof() && p.peek() == '(' {
		p.unnamed++
		return p.parseGroup(d.AddSubdict(fmt.Sprintf("#%d", p.unnamed)))
	}

	key := p.parseKey()
	if key == "" {
		if p.eof() {
			return p.errorf("expected key")
		}
		return p.errorf("expected key, got %q", p.peek())
	}

	p.skipSpace()
	if p.eof() {
		d.Set(key, true)
		return nil
	}

	switch p.peek() {
	case '=':
		p.pos++
		v, err := p.parseValue()
		if err != nil {
			return err
		}
		d.Set(key, v)
	case '(':
		return p.parseGroup(d.AddSubdict(key))
	case ',', ')':
		d.Set(key, true)
	default:
		return p.errorf("unexpected %q after key %q", p.peek(), key)
	}
	return nil
}

func (p *parser) parseGroup(sub *Dict) error {
	p.pos++ // '('
	p.skipSpace()
	if !p.eof() && p.peek() == ')' {
		p.pos++
		return nil
	}
	if err := p.parseList(sub); err != nil {
		return err
	}
	p.skipSpace()
	if p.eof() || p.peek() != ')' {
		return p.errorf("missing ')'")
	}
	p.pos++
	return nil
}

func (p *parser) parseKey() string {
	start := p.pos
	for !p.eof() {
		c := p.peek()
		if c == '_' || c == '-' || c == '.' ||
			('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') {
			p.pos++
			continue
		}
		break
	}
	return p.input[start:p.pos]
}

func (p *parser) parseValue() (any, error) {
	p.skipSpace()
	if p.eof() {
		return "", nil
	}

	if q := p.peek(); q == '"' || q == '\'' {
		start := p.pos
		p.pos++
		var sb strings.Builder
		for {
			if p.eof() {
				p.pos = start
				return nil, p.errorf("unterminated quoted value")
			}
			c := p.peek()
			p.pos++
			if c == '\\' && !p.eof() {
				sb.WriteByte(p.peek())
				p.pos++
				continue
			}
			if c == q {
				return sb.String(), nil
			}
			sb.WriteByte(c)
		}
	}

	start := p.pos
	for !p.eof() && p.peek() != ',' && p.peek() != ')' && p.peek() != '(' {
		p.pos++
	}
	if !p.eof() && p.peek() == '(' {
		return nil, p.errorf("unexpected '(' in value")
	}
	return typedValue(strings.TrimSpace(p.input[start:p.pos])), nil
}

// typedValue waehlt den ersten passenden Typ: int, float64, bool, string.
func typedValue(s string) any {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return b
	}
	return s
}

// String serializes d back into the syntax accepted by Parse.
func (d *Dict) String() string {
	var parts []string
	for p := d.values.Oldest(); p != nil; p = p.Next() {
		parts = append(parts, p.Key+"="+formatValue(p.Value.value))
	}
	for p := d.subdicts.Oldest(); p != nil; p = p.Next() {
		name := p.Key
		if strings.HasPrefix(name, "#") {
			name = ""
		}
		parts = append(parts, name+"("+p.Value.String()+")")
	}
	return strings.Join(parts, ",")
}

func formatValue(v any) string {
	switch v := v.(type) {
	case string:
		if v == "" || strings.ContainsAny(v, ",()=\"' ") || typedValue(v) != any(v) {
			return strconv.Quote(v)
		}
		return v
	case float64:
		s := strconv.FormatFloat(v, 'g', -1, 64)
		// NaN und +-Inf liest ParseFloat nur ohne Suffix zurueck
		if !math.IsNaN(v) && !math.IsInf(v, 0) && !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s
	default:
		return fmt.Sprint(v)
	}
}
