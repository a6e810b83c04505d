// Package mail contains the canonical message model, the normalizer that
// produces it, and the conversation aggregation logic shared by the server
// and client read models.
package mail

import (
	"time"
)

// Attachment describes a non-inline MIME part carried by an Email.  URL is
// empty until the attachment content has been explicitly fetched.
type Attachment struct {
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
	URL      string `json:"url,omitempty"`
}

// Email is the canonical unit of mail.  ID is the provider assigned UID and
// is unique only within (account, folder); MessageID is the global RFC822
// identity used to deduplicate a message across folders.
type Email struct {
	ID             uint32       `json:"id"`
	AccountID      string       `json:"accountId"`
	MessageID      string       `json:"messageId"`
	ConversationID string       `json:"conversationId"`
	SenderName     string       `json:"senderName"`
	SenderEmail    string       `json:"senderEmail"`
	RecipientEmail string       `json:"recipientEmail"`
	CC             []string     `json:"cc,omitempty"`
	BCC            []string     `json:"bcc,omitempty"`
	Subject        string       `json:"subject"`
	Body           string       `json:"body"`
	Snippet        string       `json:"snippet"`
	Date           time.Time    `json:"date"`
	IsRead         bool         `json:"isRead"`
	LabelIDs       []string     `json:"labelIds,omitempty"`
	FolderID       string       `json:"folderId"`
	SnoozedUntil   time.Time    `json:"snoozedUntil,omitempty"`
	ScheduledSend  time.Time    `json:"scheduledSendTime,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// HasLabel reports whether the email carries the given label.
func (e *Email) HasLabel(label string) bool {
	for _, l := range e.LabelIDs {
		if l == label {
			return true
		}
	}
	return false
}

// Snoozed reports whether the email is hidden from normal views at the
// given instant.
func (e *Email) Snoozed(now time.Time) bool {
	return !e.SnoozedUntil.IsZero() && e.SnoozedUntil.After(now)
}

// Folder is a named container of messages on the mail server.  SpecialUse
// identifies the system role independent of the display name, since
// providers localize folder names.
type Folder struct {
	AccountID  string `json:"accountId"`
	Path       string `json:"path"`
	Name       string `json:"name"`
	Delimiter  string `json:"delimiter"`
	SpecialUse string `json:"specialUse,omitempty"`
}

// Special-use folder roles.
const (
	UseInbox   = "inbox"
	UseSent    = "sent"
	UseDrafts  = "drafts"
	UseTrash   = "trash"
	UseJunk    = "junk"
	UseArchive = "archive"
)

// Account identifies a remote mailbox plus the credentials needed to reach
// it.  Password is AES-GCM sealed at rest and decrypted only inside the
// request or worker that needs it.
type Account struct {
	ID             string `json:"id"`
	Address        string `json:"address"`
	IMAPHost       string `json:"imapHost"`
	IMAPPort       int    `json:"imapPort"`
	SMTPHost       string `json:"smtpHost"`
	SMTPPort       int    `json:"smtpPort"`
	Username       string `json:"username"`
	SealedPassword []byte `json:"-"`
}

// OutgoingAttachment is an attachment on a message being composed.
type OutgoingAttachment struct {
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	Content  []byte `json:"content"`
}

// Outgoing is a composed message bound for the send pipeline.
type Outgoing struct {
	AccountID   string               `json:"accountId"`
	FromName    string               `json:"fromName"`
	From        string               `json:"from"`
	To          []string             `json:"to"`
	CC          []string             `json:"cc,omitempty"`
	BCC         []string             `json:"bcc,omitempty"`
	Subject     string               `json:"subject"`
	Text        string               `json:"text"`
	HTML        string               `json:"html,omitempty"`
	InReplyTo   string               `json:"inReplyTo,omitempty"`
	Attachments []OutgoingAttachment `json:"attachments,omitempty"`
}

// RawMessage is a message as fetched from the protocol adapter, before
// normalization.
type RawMessage struct {
	AccountID string
	FolderID  string
	UID       uint32
	Flags     []string
	Date      time.Time
	Source    []byte
}

// OpOutcome reports the result of a remote mutation for a single UID.  A
// batch flag or move operation tolerates UIDs that no longer exist; each
// failure is recorded here rather than failing the whole batch.
type OpOutcome struct {
	UID uint32
	Err error
}

// Rule is a user defined condition/action pair evaluated against newly
// synced messages.  All actions are idempotent.
type Rule struct {
	ID        string `json:"id"`
	AccountID string `json:"accountId"`
	Field     string `json:"field"` // sender, recipient, subject or body
	Contains  string `json:"contains"`
	AddLabel  string `json:"addLabel,omitempty"`
	MoveTo    string `json:"moveTo,omitempty"`
	Star      bool   `json:"star,omitempty"`
	MarkRead  bool   `json:"markRead,omitempty"`
}
