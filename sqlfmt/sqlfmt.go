// Package sqlfmt builds SQL text from a template and arguments using
// the quoting conversions of sqlite3_mprintf.
//
// The conversions that matter for building safe SQL are:
//
//	%q  the argument as text with every ' doubled
//	%Q  like %q, surrounded by single quotes; a nil argument is NULL
//	%w  the argument as text with every " doubled, for identifiers
//
// Alongside those, %s (verbatim text), %d %i %u %x %X %o (integers),
// %f %e %E %g %G (floats), %c (one character) and %% are supported,
// with the usual flag, width and precision modifiers. A width or
// precision of * takes its value from the next argument.
//
// Text arguments end at their first NUL byte, as C strings do.
//
// Format never fails. A conversion with no argument left renders as
// the empty string (NULL for %Q), and an unknown conversion is copied
// to the output unchanged.
//
// See https://www.sqlite.org/printf.html.
package sqlfmt

import (
	"fmt"
	"reflect"
	"strconv"
	"unicode/utf8"

	"go4.org/mem"
)

// Format returns template with each conversion replaced by the
// formatting of the corresponding argument.
func Format(template string, args ...any) string {
	return string(AppendFormat(nil, template, args...))
}

// AppendFormat is like Format but appends to dst.
func AppendFormat(dst []byte, template string, args ...any) []byte {
	p := printer{buf: dst, args: args}
	p.run(mem.S(template))
	return p.buf
}

type printer struct {
	buf  []byte
	args []any
	next int
}

// directive is one parsed conversion.
type directive struct {
	flags string
	width int // -1 when absent
	prec  int // -1 when absent
	verb  byte
}

func (p *printer) arg() (any, bool) {
	if p.next >= len(p.args) {
		return nil, false
	}
	a := p.args[p.next]
	p.next++
	return a, true
}

func (p *printer) run(t mem.RO) {
	for t.Len() > 0 {
		i := mem.IndexByte(t, '%')
		if i < 0 {
			p.buf = mem.Append(p.buf, t)
			return
		}
		p.buf = mem.Append(p.buf, t.SliceTo(i))
		t = t.SliceFrom(i)
		n, s, ok := p.parse(t)
		if !ok {
			// Incomplete or unknown conversion.
			p.buf = mem.Append(p.buf, t.SliceTo(n))
			t = t.SliceFrom(n)
			continue
		}
		p.convert(s)
		t = t.SliceFrom(n)
	}
}

// parse reads the conversion at the start of t, which begins with '%'.
// It reports the conversion's length in bytes and whether it is known.
func (p *printer) parse(t mem.RO) (n int, s directive, ok bool) {
	s.width, s.prec = -1, -1
	n = 1
	start := n
	for n < t.Len() && isFlag(t.At(n)) {
		n++
	}
	s.flags = t.Slice(start, n).StringCopy()

	n, s.width = p.number(t, n)
	if n < t.Len() && t.At(n) == '.' {
		n++
		n, s.prec = p.number(t, n)
		if s.prec < 0 {
			s.prec = 0
		}
	}
	if n >= t.Len() {
		return n, s, false
	}
	s.verb = t.At(n)
	n++
	switch s.verb {
	case 'q', 'Q', 'w', 's', 'z', 'd', 'i', 'u', 'x', 'X', 'o',
		'f', 'e', 'E', 'g', 'G', 'c', '%':
		return n, s, true
	}
	return n, s, false
}

func isFlag(c byte) bool {
	switch c {
	case '-', '+', ' ', '0', '#', '!', ',':
		return true
	}
	return false
}

// number parses a decimal or * width/precision starting at t[n].
func (p *printer) number(t mem.RO, n int) (int, int) {
	if n < t.Len() && t.At(n) == '*' {
		a, _ := p.arg()
		v, _ := toInt64(a)
		if v < 0 {
			v = 0
		}
		return n + 1, int(v)
	}
	start := n
	for n < t.Len() && t.At(n) >= '0' && t.At(n) <= '9' {
		n++
	}
	if n == start {
		return n, -1
	}
	v, err := mem.ParseInt(t.Slice(start, n), 10, 0)
	if err != nil {
		return n, -1
	}
	return n, int(v)
}

func (p *printer) convert(s directive) {
	if s.verb == '%' {
		p.buf = append(p.buf, '%')
		return
	}
	a, present := p.arg()
	switch s.verb {
	case 'q', 'Q', 'w', 's', 'z':
		p.text(s, a, present)
	case 'c':
		p.char(s, a, present)
	case 'd', 'i', 'u', 'x', 'X', 'o':
		if !present {
			return
		}
		p.integer(s, a)
	case 'f', 'e', 'E', 'g', 'G':
		if !present {
			return
		}
		f, _ := toFloat64(a)
		p.buf = fmt.Appendf(p.buf, goVerb(s, s.verb), f)
	}
}

func (p *printer) text(s directive, a any, present bool) {
	v, isNull := toText(a)
	if i := mem.IndexByte(v, 0); i >= 0 {
		v = v.SliceTo(i)
	}
	if !present {
		isNull = true
	}
	var out []byte
	switch s.verb {
	case 'Q':
		if isNull {
			out = []byte("NULL")
			break
		}
		out = append(out, '\'')
		out = appendEscaped(out, truncate(s, v), '\'')
		out = append(out, '\'')
	case 'q':
		if isNull && present {
			// sqlite3_mprintf prints a NULL %q as (NULL).
			v = mem.S("(NULL)")
		}
		out = appendEscaped(out, truncate(s, v), '\'')
	case 'w':
		if isNull && present {
			v = mem.S("(NULL)")
		}
		out = appendEscaped(out, truncate(s, v), '"')
	default:
		out = mem.Append(out, truncate(s, v))
	}
	p.pad(s, out)
}

func (p *printer) char(s directive, a any, present bool) {
	if !present {
		return
	}
	var r rune
	switch v := a.(type) {
	case string:
		r, _ = utf8.DecodeRuneInString(v)
	case []byte:
		r, _ = utf8.DecodeRune(v)
	default:
		n, _ := toInt64(a)
		r = rune(n)
	}
	count := 1
	if s.prec > 0 {
		// %.Nc repeats the character N times.
		count = s.prec
	}
	var out []byte
	for j := 0; j < count; j++ {
		out = utf8.AppendRune(out, r)
	}
	p.pad(s, out)
}

func (p *printer) integer(s directive, a any) {
	n, _ := toInt64(a)
	if s.verb == 'u' {
		p.buf = fmt.Appendf(p.buf, goVerb(s, 'd'), uint64(n))
		return
	}
	if s.verb == 'i' {
		p.buf = fmt.Appendf(p.buf, goVerb(s, 'd'), n)
		return
	}
	if s.verb == 'x' || s.verb == 'X' || s.verb == 'o' {
		p.buf = fmt.Appendf(p.buf, goVerb(s, s.verb), uint64(n))
		return
	}
	p.buf = fmt.Appendf(p.buf, goVerb(s, s.verb), n)
}

// pad applies width and the '-' flag to an already rendered value.
func (p *printer) pad(s directive, out []byte) {
	fill := s.width - utf8.RuneCount(out)
	left := mem.IndexByte(mem.S(s.flags), '-') >= 0
	if left {
		p.buf = append(p.buf, out...)
	}
	for ; fill > 0; fill-- {
		p.buf = append(p.buf, ' ')
	}
	if !left {
		p.buf = append(p.buf, out...)
	}
}

// goVerb rebuilds s as a fmt verb, dropping flags fmt does not know.
func goVerb(s directive, verb byte) string {
	b := []byte{'%'}
	for i := 0; i < len(s.flags); i++ {
		switch c := s.flags[i]; c {
		case '-', '+', ' ', '0', '#':
			b = append(b, c)
		}
	}
	if s.width >= 0 {
		b = strconv.AppendInt(b, int64(s.width), 10)
	}
	if s.prec >= 0 {
		b = append(b, '.')
		b = strconv.AppendInt(b, int64(s.prec), 10)
	}
	return string(append(b, verb))
}

// truncate applies the precision of a text conversion, counted in bytes.
func truncate(s directive, v mem.RO) mem.RO {
	if s.prec >= 0 && s.prec < v.Len() {
		return v.SliceTo(s.prec)
	}
	return v
}

func appendEscaped(dst []byte, v mem.RO, q byte) []byte {
	for {
		i := mem.IndexByte(v, q)
		if i < 0 {
			return mem.Append(dst, v)
		}
		dst = mem.Append(dst, v.SliceTo(i+1))
		dst = append(dst, q)
		v = v.SliceFrom(i + 1)
	}
}

// toText renders a as text. A nil argument, nil []byte or nil pointer
// reports isNull.
func toText(a any) (v mem.RO, isNull bool) {
	switch a := a.(type) {
	case nil:
		return mem.RO{}, true
	case string:
		return mem.S(a), false
	case []byte:
		if a == nil {
			return mem.RO{}, true
		}
		return mem.B(a), false
	case mem.RO:
		return a, false
	case fmt.Stringer:
		if rv := reflect.ValueOf(a); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return mem.RO{}, true
		}
		return mem.S(a.String()), false
	}
	rv := reflect.ValueOf(a)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return mem.RO{}, true
		}
		return toText(rv.Elem().Interface())
	}
	return mem.S(fmt.Sprint(a)), false
}

func toInt64(a any) (int64, bool) {
	rv := reflect.ValueOf(a)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return int64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return int64(rv.Float()), true
	case reflect.Bool:
		if rv.Bool() {
			return 1, true
		}
		return 0, true
	case reflect.String:
		n, err := strconv.ParseInt(rv.String(), 10, 64)
		return n, err == nil
	case reflect.Pointer:
		if rv.IsNil() {
			return 0, false
		}
		return toInt64(rv.Elem().Interface())
	}
	return 0, false
}

func toFloat64(a any) (float64, bool) {
	rv := reflect.ValueOf(a)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.String:
		f, err := strconv.ParseFloat(rv.String(), 64)
		return f, err == nil
	case reflect.Pointer:
		if rv.IsNil() {
			return 0, false
		}
		return toFloat64(rv.Elem().Interface())
	}
	n, ok := toInt64(a)
	return float64(n), ok
}
