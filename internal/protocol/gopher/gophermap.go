package gopher

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// maxGophermapSize bounds how much of an override file is read into memory.
const maxGophermapSize = 1 << 20

// Diagnostic describes a gophermap line that was dropped while parsing.
type Diagnostic struct {
	// Line is the 1-based line number in the override file
	Line int

	// Text is the offending line, verbatim
	Text string

	// Reason says why the line was dropped
	Reason string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("line %d: %s: %q", d.Line, d.Reason, d.Text)
}

// ParseGophermap reads an override file and returns the menu it describes.
//
// Line handling:
//   - "#..." lines are comments and produce nothing
//   - lines without a tab become Info entries displaying the whole line
//   - other lines are "<type><name>\t<selector>[\t<host>[\t<port>]]"; empty
//     or missing host and port take the supplied defaults, and fields past
//     the fourth are ignored
//
// Lines with an unknown type code or an unusable port are dropped and
// reported as diagnostics; parsing always continues. The returned error is
// only set when the reader itself fails or the file is too large.
func ParseGophermap(r io.Reader, host string, port int) (Menu, []Diagnostic, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxGophermapSize+1))
	if err != nil {
		return nil, nil, fmt.Errorf("read gophermap: %w", err)
	}
	if len(data) > maxGophermapSize {
		return nil, nil, fmt.Errorf("gophermap exceeds %d bytes", maxGophermapSize)
	}

	text := normalizeLineBreaks(string(data))
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return Menu{}, nil, nil
	}

	var (
		menu        = make(Menu, 0, strings.Count(text, "\n")+1)
		diagnostics []Diagnostic
	)

	for i, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "#") {
			continue
		}

		if !strings.Contains(line, "\t") {
			menu = append(menu, infoEntry(line, host, port))
			continue
		}

		entry, reason := parseMenuLine(line, host, port)
		if reason != "" {
			diagnostics = append(diagnostics, Diagnostic{Line: i + 1, Text: line, Reason: reason})
			continue
		}
		menu = append(menu, entry)
	}

	return menu, diagnostics, nil
}

// parseMenuLine parses a tab-separated gophermap record. A non-empty reason
// means the line must be dropped.
func parseMenuLine(line, defaultHost string, defaultPort int) (MenuEntry, string) {
	fields := strings.Split(line, "\t")

	typeAndName := fields[0]
	if typeAndName == "" {
		return MenuEntry{}, "missing type code"
	}

	tag, ok := ClassifyByCode(typeAndName[0])
	if !ok {
		return MenuEntry{}, fmt.Sprintf("unknown type code %q", typeAndName[0])
	}

	entry := MenuEntry{
		Type:     tag,
		Display:  typeAndName[1:],
		Selector: fields[1],
		Host:     defaultHost,
		Port:     defaultPort,
	}

	if len(fields) > 2 && fields[2] != "" {
		entry.Host = fields[2]
	}

	if len(fields) > 3 && fields[3] != "" {
		p, err := strconv.Atoi(strings.TrimSpace(fields[3]))
		if err != nil || p < 0 || p > 65535 {
			return MenuEntry{}, fmt.Sprintf("invalid port %q", fields[3])
		}
		entry.Port = p
	}

	return entry, ""
}

// normalizeLineBreaks rewrites CRLF and lone CR to LF.
func normalizeLineBreaks(s string) string {
	if !strings.Contains(s, "\r") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
