package gopher

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, text string) (Menu, []Diagnostic) {
	t.Helper()
	menu, diagnostics, err := ParseGophermap(strings.NewReader(text), "h", 70)
	require.NoError(t, err)
	return menu, diagnostics
}

func render(t *testing.T, m Menu) string {
	t.Helper()
	var buf bytes.Buffer
	n, err := m.WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)
	return buf.String()
}

func TestParseGophermap_CommentsInfoAndLinks(t *testing.T) {
	menu, diagnostics := parse(t, "#comment\n1Sub\t/c\nhello world\n")

	assert.Empty(t, diagnostics)
	assert.Equal(t, Menu{
		{Type: TypeDirectory, Display: "Sub", Selector: "/c", Host: "h", Port: 70},
		{Type: TypeInfo, Display: "hello world", Host: "h", Port: 70},
	}, menu)

	assert.Equal(t, "1Sub\t/c\th\t70\r\nihello world\t\th\t70\r\n.\r\n", render(t, menu))
}

func TestParseGophermap_ExplicitHostAndPort(t *testing.T) {
	menu, diagnostics := parse(t, "0About\t/about.txt\texample.org\t7070\n9Tarball\t/files/x.tgz\t\t\n")

	assert.Empty(t, diagnostics)
	require.Len(t, menu, 2)
	assert.Equal(t, MenuEntry{Type: TypeText, Display: "About", Selector: "/about.txt", Host: "example.org", Port: 7070}, menu[0])
	assert.Equal(t, MenuEntry{Type: TypeBinary, Display: "Tarball", Selector: "/files/x.tgz", Host: "h", Port: 70}, menu[1])
}

func TestParseGophermap_DropsMalformedLines(t *testing.T) {
	text := strings.Join([]string{
		"1ok\t/a",
		"?Name\t/x",
		"\t/no-type",
		"1Port\t/p\thost\tabc",
		"1Range\t/r\thost\t70000",
		"9Bin\t/b",
	}, "\n")

	menu, diagnostics := parse(t, text)

	require.Len(t, menu, 2)
	assert.Equal(t, "/a", menu[0].Selector)
	assert.Equal(t, TypeBinary, menu[1].Type)

	require.Len(t, diagnostics, 4)
	lines := make([]int, 0, len(diagnostics))
	for _, d := range diagnostics {
		lines = append(lines, d.Line)
	}
	assert.Equal(t, []int{2, 3, 4, 5}, lines)
	assert.Contains(t, diagnostics[0].Reason, "unknown type code")
	assert.Equal(t, "?Name\t/x", diagnostics[0].Text)
	assert.Equal(t, "missing type code", diagnostics[1].Reason)
	assert.Contains(t, diagnostics[2].Reason, "invalid port")
	assert.Contains(t, diagnostics[3].Reason, "invalid port")
}

func TestParseGophermap_LineEndings(t *testing.T) {
	want := Menu{
		{Type: TypeInfo, Display: "Welcome", Host: "h", Port: 70},
		{Type: TypeDirectory, Display: "Sub", Selector: "/c", Host: "h", Port: 70},
	}

	for name, text := range map[string]string{
		"lf":                  "Welcome\n1Sub\t/c\n",
		"crlf":                "Welcome\r\n1Sub\t/c\r\n",
		"cr only":             "Welcome\r1Sub\t/c\r",
		"no final line break": "Welcome\n1Sub\t/c",
	} {
		t.Run(name, func(t *testing.T) {
			menu, diagnostics := parse(t, text)
			assert.Empty(t, diagnostics)
			assert.Equal(t, want, menu)
		})
	}
}

func TestParseGophermap_GopherPlusFieldsIgnored(t *testing.T) {
	menu, diagnostics := parse(t, "0About\t/about.txt\texample.org\t70\t+\n")

	assert.Empty(t, diagnostics)
	require.Len(t, menu, 1)
	assert.Equal(t, "0About\t/about.txt\texample.org\t70", menu[0].String())
}

func TestParseGophermap_BlankLinesBecomeInfo(t *testing.T) {
	menu, _ := parse(t, "Title\n\nBody\n")

	require.Len(t, menu, 3)
	assert.Equal(t, TypeInfo, menu[1].Type)
	assert.Equal(t, "", menu[1].Display)
}

func TestParseGophermap_Empty(t *testing.T) {
	for _, text := range []string{"", "\n", "#only a comment\n"} {
		menu, diagnostics := parse(t, text)
		assert.Empty(t, menu)
		assert.Empty(t, diagnostics)
		assert.Equal(t, LastLine, render(t, menu))
	}
}

func TestParseGophermap_TooLarge(t *testing.T) {
	big := bytes.Repeat([]byte("x"), maxGophermapSize+1)

	_, _, err := ParseGophermap(bytes.NewReader(big), "h", 70)
	assert.Error(t, err)
}
