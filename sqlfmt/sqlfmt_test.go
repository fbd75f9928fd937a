package sqlfmt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type name string

func (n name) String() string { return "name:" + string(n) }

func TestFormat(t *testing.T) {
	var nilBytes []byte
	var nilName *name
	tests := []struct {
		tmpl string
		args []any
		want string
	}{
		{"plain", nil, "plain"},
		{"%%", nil, "%"},
		{"name=%Q;", []any{"users"}, "name='users';"},
		{"name=%Q;", []any{"o'brien"}, "name='o''brien';"},
		{"name=%Q;", []any{nil}, "name=NULL;"},
		{"name=%Q;", []any{nilBytes}, "name=NULL;"},
		{"name=%Q;", []any{nilName}, "name=NULL;"},
		{"name=%Q;", nil, "name=NULL;"},
		{"'%q'", []any{"it's"}, "'it''s'"},
		{"'%q'", []any{"''"}, "''''''"},
		{"%q", []any{nil}, "(NULL)"},
		{"%q", nil, ""},
		{`"%w"`, []any{`a"b`}, `"a""b"`},
		{"%s", []any{"it's"}, "it's"},
		{"%s", nil, ""},
		{"%s|%s", []any{[]byte("x"), name("y")}, "x|name:y"},
		{"%d %i %u", []any{-3, int8(7), uint16(9)}, "-3 7 9"},
		{"%5d|%-5d|%05d", []any{42, 42, 42}, "   42|42   |00042"},
		{"%x %X %o", []any{255, 255, 8}, "ff FF 10"},
		{"%d", []any{true}, "1"},
		{"%.2f", []any{3.14159}, "3.14"},
		{"%g", []any{0.5}, "0.5"},
		{"%e", []any{float32(1)}, "1.000000e+00"},
		{"%f", []any{2}, "2.000000"},
		{"%c%c", []any{'a', "bc"}, "ab"},
		{"%.3c", []any{'-'}, "---"},
		{"%.3s", []any{"abcdef"}, "abc"},
		{"%.2Q", []any{"o'brien"}, "'o'''"},
		{"[%6s]", []any{"ab"}, "[    ab]"},
		{"[%-6s]", []any{"ab"}, "[ab    ]"},
		{"[%*d]", []any{4, 7}, "[   7]"},
		{"%y keep", []any{1}, "%y keep"},
		{"trailing %", nil, "trailing %"},
		{"%d %d", []any{1}, "1 "},
		{"name=%Q;", []any{"users\x00' OR 1"}, "name='users';"},
		{`"%w"`, []any{[]byte("a\x00b")}, `"a"`},
		{"%q|%s", []any{"x\x00y", "\x00"}, "x|"},
	}
	for _, tt := range tests {
		t.Run(tt.tmpl, func(t *testing.T) {
			require.Equal(t, tt.want, Format(tt.tmpl, tt.args...))
		})
	}
}

func TestAppendFormat(t *testing.T) {
	dst := []byte("SELECT ")
	got := AppendFormat(dst, "%Q;", "x")
	require.Equal(t, "SELECT 'x';", string(got))
}

func TestTableExistsQuery(t *testing.T) {
	got := Format("SELECT count(*) FROM sqlite_master WHERE type='table' AND name=%Q;", "bob's table")
	require.Equal(t, "SELECT count(*) FROM sqlite_master WHERE type='table' AND name='bob''s table';", got)
}
