// Package rules evaluates user defined filter rules against synced
// messages.  Evaluation is idempotent; re-running a rule over an already
// processed message changes nothing.
package rules

import (
	"strings"

	"github.com/driftmail/driftmail/pkg/mail"
)

// Rule condition fields.
const (
	FieldSender    = "sender"
	FieldRecipient = "recipient"
	FieldSubject   = "subject"
	FieldBody      = "body"
)

// Matches reports whether the rule's condition holds for the email.
// Matching is a case-insensitive substring test on the selected field.
func Matches(r *mail.Rule, e *mail.Email) bool {
	if r.Contains == "" {
		return false
	}
	var field string
	switch r.Field {
	case FieldSender:
		field = e.SenderEmail + " " + e.SenderName
	case FieldRecipient:
		field = e.RecipientEmail
	case FieldSubject:
		field = e.Subject
	case FieldBody:
		field = e.Snippet + " " + e.Body
	default:
		return false
	}
	return strings.Contains(strings.ToLower(field), strings.ToLower(r.Contains))
}

// Apply returns the mutation the rule's actions imply for the email, or
// nil when every action is already in effect.
func Apply(r *mail.Rule, e *mail.Email) *mail.LocalMutation {
	var m mail.LocalMutation
	changed := false
	if r.AddLabel != "" && !e.HasLabel(r.AddLabel) {
		m.AddLabels = append(m.AddLabels, r.AddLabel)
		changed = true
	}
	if r.Star && !e.HasLabel(mail.LabelStarred) {
		m.AddLabels = append(m.AddLabels, mail.LabelStarred)
		changed = true
	}
	if r.MoveTo != "" && e.FolderID != r.MoveTo {
		dest := r.MoveTo
		m.SetFolder = &dest
		changed = true
	}
	if r.MarkRead && !e.IsRead {
		read := true
		m.SetRead = &read
		changed = true
	}
	if !changed {
		return nil
	}
	return &m
}

// Evaluate runs every rule against the email and folds the resulting
// mutations into one.  Later rules win on folder conflicts.
func Evaluate(rs []*mail.Rule, e *mail.Email) *mail.LocalMutation {
	var combined *mail.LocalMutation
	// Work on a scratch copy so each rule sees prior rules' effects and
	// stays a no-op the second time around.
	scratch := *e
	for _, r := range rs {
		if !Matches(r, &scratch) {
			continue
		}
		m := Apply(r, &scratch)
		if m == nil {
			continue
		}
		m.Apply(&scratch)
		if combined == nil {
			combined = &mail.LocalMutation{}
		}
		combined.AddLabels = append(combined.AddLabels, m.AddLabels...)
		if m.SetFolder != nil {
			combined.SetFolder = m.SetFolder
		}
		if m.SetRead != nil {
			combined.SetRead = m.SetRead
		}
	}
	return combined
}
