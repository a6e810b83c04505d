package rules_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftmail/driftmail/pkg/mail"
	"github.com/driftmail/driftmail/pkg/rules"
)

func testEmail() *mail.Email {
	return &mail.Email{
		AccountID:      "acct1",
		MessageID:      "<m1@example.com>",
		SenderName:     "Billing Dept",
		SenderEmail:    "billing@vendor.example",
		RecipientEmail: "me@example.com",
		Subject:        "Your March invoice",
		Snippet:        "Invoice 1042 is attached",
		Body:           "<div>Invoice 1042 is attached</div>",
		FolderID:       "INBOX",
	}
}

func TestMatches(t *testing.T) {
	e := testEmail()
	testCases := []struct {
		name string
		rule mail.Rule
		want bool
	}{
		{"sender substring", mail.Rule{Field: "sender", Contains: "billing@"}, true},
		{"sender display name", mail.Rule{Field: "sender", Contains: "billing dept"}, true},
		{"subject case insensitive", mail.Rule{Field: "subject", Contains: "INVOICE"}, true},
		{"body", mail.Rule{Field: "body", Contains: "1042"}, true},
		{"recipient miss", mail.Rule{Field: "recipient", Contains: "other@"}, false},
		{"unknown field", mail.Rule{Field: "header", Contains: "x"}, false},
		{"empty condition", mail.Rule{Field: "subject", Contains: ""}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, rules.Matches(&tc.rule, e))
		})
	}
}

func TestApplyActions(t *testing.T) {
	e := testEmail()
	r := &mail.Rule{
		Field: "sender", Contains: "billing@",
		AddLabel: "finance", MoveTo: "Receipts", Star: true, MarkRead: true,
	}
	m := rules.Apply(r, e)
	require.NotNil(t, m)
	assert.Contains(t, m.AddLabels, "finance")
	assert.Contains(t, m.AddLabels, mail.LabelStarred)
	require.NotNil(t, m.SetFolder)
	assert.Equal(t, "Receipts", *m.SetFolder)
	require.NotNil(t, m.SetRead)
	assert.True(t, *m.SetRead)
}

func TestApplyIdempotent(t *testing.T) {
	e := testEmail()
	r := &mail.Rule{
		Field: "sender", Contains: "billing@",
		AddLabel: "finance", MoveTo: "Receipts", Star: true, MarkRead: true,
	}
	m := rules.Apply(r, e)
	require.NotNil(t, m)
	m.Apply(e)

	// Everything is in effect now; the rule has nothing left to do.
	assert.Nil(t, rules.Apply(r, e))
}

func TestEvaluateCombines(t *testing.T) {
	e := testEmail()
	rs := []*mail.Rule{
		{Field: "sender", Contains: "billing@", AddLabel: "finance"},
		{Field: "subject", Contains: "invoice", MoveTo: "Receipts"},
		{Field: "recipient", Contains: "nobody@", AddLabel: "ignored"},
	}
	m := rules.Evaluate(rs, e)
	require.NotNil(t, m)
	assert.Equal(t, []string{"finance"}, m.AddLabels)
	require.NotNil(t, m.SetFolder)
	assert.Equal(t, "Receipts", *m.SetFolder)

	// Applying the combined mutation settles the message; a rerun is a
	// no-op.
	m.Apply(e)
	assert.Nil(t, rules.Evaluate(rs, e))
}
