package sanitize

import (
	"strings"

	"github.com/gorilla/css/scanner"
)

// allowedProperties holds the inline CSS properties that survive
// sanitization.  Anything else is dropped along with its value.
var allowedProperties = map[string]struct{}{
	"align":            {},
	"background-color": {},
	"border":           {},
	"border-bottom":    {},
	"border-left":      {},
	"border-radius":    {},
	"border-right":     {},
	"border-top":       {},
	"box-sizing":       {},
	"clear":            {},
	"color":            {},
	"display":          {},
	"font-family":      {},
	"font-size":        {},
	"font-weight":      {},
	"height":           {},
	"line-height":      {},
	"margin":           {},
	"margin-bottom":    {},
	"margin-left":      {},
	"margin-right":     {},
	"margin-top":       {},
	"max-height":       {},
	"max-width":        {},
	"overflow":         {},
	"padding":          {},
	"padding-bottom":   {},
	"padding-left":     {},
	"padding-right":    {},
	"padding-top":      {},
	"table-layout":     {},
	"text-align":       {},
	"text-decoration":  {},
	"vertical-align":   {},
	"width":            {},
	"word-break":       {},
}

// Style filters a style attribute value, keeping only declarations whose
// property is on the allow-list.  A scan error rejects the whole value.
func Style(input string) string {
	var b strings.Builder
	scan := scanner.New(input)
	keeping := false
	started := false
	for {
		t := scan.Next()
		switch t.Type {
		case scanner.TokenEOF:
			return b.String()
		case scanner.TokenError:
			return ""
		case scanner.TokenIdent:
			if !started {
				started = true
				_, keeping = allowedProperties[strings.ToLower(t.Value)]
			}
			if keeping {
				b.WriteString(t.Value)
			}
		case scanner.TokenChar:
			if t.Value == ";" {
				if keeping {
					b.WriteString(";")
				}
				started = false
				keeping = false
				continue
			}
			if keeping {
				b.WriteString(t.Value)
			}
		case scanner.TokenS:
			if keeping {
				b.WriteString(t.Value)
			}
		default:
			if keeping {
				b.WriteString(t.Value)
			}
		}
	}
}
