package gopher

import (
	"io"
	"strconv"
	"strings"
	"unicode"
)

const (
	// CRLF terminates every line the server sends.
	CRLF = "\r\n"

	// LastLine marks the end of a menu.
	LastLine = "." + CRLF
)

// MenuEntry is one line of a Gopher menu.
type MenuEntry struct {
	Type     TypeTag
	Display  string
	Selector string
	Host     string
	Port     int
}

// String renders the entry without its line terminator:
// type code + display, selector, host and port separated by tabs.
func (e MenuEntry) String() string {
	var b strings.Builder
	b.Grow(len(e.Display) + len(e.Selector) + len(e.Host) + 10)
	b.WriteByte(CodeFor(e.Type))
	b.WriteString(e.Display)
	b.WriteByte('\t')
	b.WriteString(e.Selector)
	b.WriteByte('\t')
	b.WriteString(e.Host)
	b.WriteByte('\t')
	b.WriteString(strconv.Itoa(e.Port))
	return b.String()
}

// Menu is an ordered list of entries. Order is significant and preserved
// exactly as entries were appended.
type Menu []MenuEntry

// WriteTo renders the menu followed by the terminating "." line. Callers
// writing to a socket should pass a buffered writer.
func (m Menu) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for _, entry := range m {
		written, err := io.WriteString(w, entry.String()+CRLF)
		n += int64(written)
		if err != nil {
			return n, err
		}
	}
	written, err := io.WriteString(w, LastLine)
	n += int64(written)
	return n, err
}

// infoEntry builds an informational line with the server's own host/port,
// matching what widely deployed servers emit for text-only gophermap lines.
func infoEntry(text, host string, port int) MenuEntry {
	return MenuEntry{
		Type:    TypeInfo,
		Display: text,
		Host:    host,
		Port:    port,
	}
}

// errorEntry builds the single line sent when a selector cannot be served.
func errorEntry(selector, host string, port int) MenuEntry {
	selector = displayName(TrimSelector(selector))
	return MenuEntry{
		Type:    TypeError,
		Display: " '" + selector + "' doesn't exist!",
		Host:    host,
		Port:    port,
	}
}

// displayName makes text safe for a display field: control
// characters, including tab, CR and LF, become spaces.
func displayName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, name)
}
