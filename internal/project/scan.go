package project

import (
	"bytes"
	"regexp"
)

// directive is an include found by the textual scan, before resolution.
type directive struct {
	name   string
	system bool
	line   int
}

var mainRegex = regexp.MustCompile(`^(?:extern\s+"C"\s+)?(?:int|auto|void)\s+w?main\s*\(`)

// scanDirectives extracts #include, #include_next and #import directives from
// buf. It does not evaluate #if/#ifdef, so an include in a disabled branch is
// still reported, and it does not expand macros: `#include FOO_H` is ignored.
// Block comments are not tracked either, so a directive line inside /* */
// counts.
// It also reports whether buf seems to define main().
func scanDirectives(buf []byte) (incs []directive, hasMain bool) {
	lineno := 0
	for len(buf) > 0 {
		var line []byte
		line, buf, _ = bytes.Cut(buf, []byte{'\n'})
		lineno++
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if line[0] != '#' {
			if !hasMain && mainRegex.Match(line) {
				hasMain = true
			}
			continue
		}
		line = bytes.TrimSpace(line[1:])

		var found bool
		for _, kw := range [][]byte{[]byte("include_next"), []byte("include"), []byte("import")} {
			if rest, ok := bytes.CutPrefix(line, kw); ok {
				line, found = rest, true
				break
			}
		}
		if !found {
			continue
		}
		line = bytes.TrimSpace(line)
		if len(line) < 2 {
			continue
		}

		var closing byte
		switch line[0] {
		case '"':
			closing = '"'
		case '<':
			closing = '>'
		default:
			// #include MACRO, or something like #includes
			continue
		}
		end := bytes.IndexByte(line[1:], closing)
		if end <= 0 {
			// unclosed or empty path
			continue
		}
		incs = append(incs, directive{
			name:   string(line[1 : end+1]),
			system: closing == '>',
			line:   lineno,
		})
	}
	return incs, hasMain
}
