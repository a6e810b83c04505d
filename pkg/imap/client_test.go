package imap

import (
	"testing"

	goimap "github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"

	"github.com/driftmail/driftmail/pkg/mail"
)

func TestSpecialUse(t *testing.T) {
	testCases := []struct {
		name  string
		attrs []string
		want  string
	}{
		{"INBOX", nil, mail.UseInbox},
		{"inbox", nil, mail.UseInbox},
		{"Gesendet", []string{`\HasNoChildren`, `\Sent`}, mail.UseSent},
		{"Papierkorb", []string{`\Trash`}, mail.UseTrash},
		{"Entwürfe", []string{`\Drafts`}, mail.UseDrafts},
		{"Spamverdacht", []string{`\Junk`}, mail.UseJunk},
		{"Archiv", []string{`\Archive`}, mail.UseArchive},
		// No attributes advertised; fall back to well-known names.
		{"Sent Items", nil, mail.UseSent},
		{"Deleted", nil, mail.UseTrash},
		{"Spam", nil, mail.UseJunk},
		{"Projects", []string{`\HasChildren`}, ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SpecialUse(tc.name, tc.attrs))
		})
	}
}

func TestSpecialUseAttributeWins(t *testing.T) {
	// Attributes beat a misleading display name.
	assert.Equal(t, mail.UseArchive, SpecialUse("Trash", []string{`\Archive`}))
}

func TestFlagsOp(t *testing.T) {
	assert.Equal(t, goimap.FormatFlagsOp(goimap.AddFlags, true), goimap.FormatFlagsOp(flagsOp(true), true))
	assert.Equal(t, goimap.FormatFlagsOp(goimap.RemoveFlags, true), goimap.FormatFlagsOp(flagsOp(false), true))
}
