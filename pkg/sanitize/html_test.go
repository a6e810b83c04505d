package sanitize_test

import (
	"testing"

	"github.com/driftmail/driftmail/pkg/sanitize"
)

// TestHTMLPlainStrings tests plain text passthrough
func TestHTMLPlainStrings(t *testing.T) {
	testStrings := []string{
		"",
		"plain string",
		"one &lt; two",
	}
	for _, ts := range testStrings {
		t.Run(ts, func(t *testing.T) {
			got, err := sanitize.HTML(ts)
			if err != nil {
				t.Fatal(err)
			}
			if got != ts {
				t.Errorf("Got: %q, want: %q", got, ts)
			}
		})
	}
}

// TestHTMLSimpleFormatting tests basic tags we should allow
func TestHTMLSimpleFormatting(t *testing.T) {
	testStrings := []string{
		"<p>paragraph</p>",
		"<b>bold</b>",
		"<em>emphasis</em>",
		"<strong>strong</strong>",
		"<div><span>text</span></div>",
		"<center>text</center>",
	}
	for _, ts := range testStrings {
		t.Run(ts, func(t *testing.T) {
			got, err := sanitize.HTML(ts)
			if err != nil {
				t.Fatal(err)
			}
			if got != ts {
				t.Errorf("Got: %q, want: %q", got, ts)
			}
		})
	}
}

// TestHTMLScriptTags tests strings with JavaScript
func TestHTMLScriptTags(t *testing.T) {
	testCases := []struct {
		input, want string
	}{
		{
			`safe<script>nope</script>`,
			`safe`,
		},
		{
			`<div onclick="alert('pwned')">hi</div>`,
			`<div>hi</div>`,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := sanitize.HTML(tc.input)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("Got: %q, want: %q", got, tc.want)
			}
		})
	}
}

// TestHTMLStyleAttrs tests the inline style allow-list
func TestHTMLStyleAttrs(t *testing.T) {
	testCases := []struct {
		input, want string
	}{
		{
			`<span style="color: red;">x</span>`,
			`<span style="color: red;">x</span>`,
		},
		{
			`<span style="position: absolute">x</span>`,
			`<span>x</span>`,
		},
		{
			`<span style="color: red; position: absolute">x</span>`,
			`<span style="color: red;">x</span>`,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := sanitize.HTML(tc.input)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("Got: %q, want: %q", got, tc.want)
			}
		})
	}
}
