package mail

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSubjectStripsPrefixes(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Hello", "hello"},
		{"Re: Hello", "hello"},
		{"RE: FWD: Hello", "hello"},
		{"Re: Re: Fwd: Hello", "hello"},
		{"Fw:Hello", "hello"},
		{"  Trip   plans  ", "trip plans"},
		{"Reply requested", "reply requested"}, // "Re" must not match mid-word
		{"", ""},
		{"Re:", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, NormalizeSubject(tc.input), "input %q", tc.input)
	}
}

func TestNormalizeSubjectIdempotent(t *testing.T) {
	subjects := []string{"Re: Re: Fwd: Hello", "Hello", "FW: budget Q3", "  spaced   out "}
	for _, s := range subjects {
		once := NormalizeSubject(s)
		assert.Equal(t, once, NormalizeSubject(once), "input %q", s)
	}
}

func TestConversationKeyMatchesAcrossReplies(t *testing.T) {
	a := ConversationKey("Re: Re: Fwd: Hello", "<a@example.com>")
	b := ConversationKey("Hello", "<b@example.com>")
	assert.Equal(t, a, b)
}

func TestConversationKeyEmptySubjectFallsBack(t *testing.T) {
	a := ConversationKey("", "<id1@example.com>")
	b := ConversationKey("", "<id1@example.com>")
	c := ConversationKey("", "<id2@example.com>")

	assert.Equal(t, a, b, "fallback key must be stable across re-fetches")
	assert.NotEqual(t, a, c)
	assert.NotEmpty(t, a)
}
