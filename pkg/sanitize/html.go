// Package sanitize cleans untrusted message HTML before it is stored or
// rendered, preserving benign inline styling.
package sanitize

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var policy = bluemonday.UGCPolicy().
	AllowElements("center").
	AllowAttrs("style").Globally()

// HTML sanitizes the provided markup.  Inline style attributes are filtered
// down to an allow-list of CSS properties before the bluemonday pass.
func HTML(input string) (string, error) {
	filtered, err := filterStyleAttrs(input)
	if err != nil {
		return "", err
	}
	return policy.Sanitize(filtered), nil
}

// filterStyleAttrs rewrites every style attribute through the CSS property
// allow-list, leaving all other markup untouched for bluemonday to judge.
func filterStyleAttrs(input string) (string, error) {
	var out bytes.Buffer
	bw := bufio.NewWriter(&out)
	z := html.NewTokenizer(strings.NewReader(input))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", err
			}
			if err := bw.Flush(); err != nil {
				return "", err
			}
			return out.String(), nil
		case html.StartTagToken, html.SelfClosingTagToken:
			if err := writeTag(bw, z, tt); err != nil {
				return "", err
			}
		default:
			if _, err := bw.Write(z.Raw()); err != nil {
				return "", err
			}
		}
	}
}

func writeTag(bw *bufio.Writer, z *html.Tokenizer, tt html.TokenType) error {
	name, hasAttr := z.TagName()
	if !hasAttr {
		_, err := bw.Write(z.Raw())
		return err
	}
	b := make([]byte, 0, 256)
	b = append(b, '<')
	b = append(b, name...)
	for {
		key, val, more := z.TagAttr()
		strval := string(val)
		style := strings.EqualFold(string(key), "style")
		if style {
			strval = Style(strval)
		}
		if !style || strval != "" {
			b = append(b, ' ')
			b = append(b, key...)
			b = append(b, '=', '"')
			b = append(b, []byte(html.EscapeString(strval))...)
			b = append(b, '"')
		}
		if !more {
			break
		}
	}
	if tt == html.SelfClosingTagToken {
		b = append(b, '/')
	}
	_, err := bw.Write(append(b, '>'))
	return err
}
