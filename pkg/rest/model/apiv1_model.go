package model

import (
	"time"

	"github.com/driftmail/driftmail/pkg/mail"
)

// JSONAccountV1 describes a registered mail account, credentials omitted.
type JSONAccountV1 struct {
	ID       string `json:"id"`
	Address  string `json:"address"`
	IMAPHost string `json:"imapHost"`
	IMAPPort int    `json:"imapPort"`
	SMTPHost string `json:"smtpHost"`
	SMTPPort int    `json:"smtpPort"`
	Username string `json:"username"`
}

// JSONNewAccountV1 is the request body for registering an account.  The
// password is sealed before it is stored and never echoed back.
type JSONNewAccountV1 struct {
	JSONAccountV1
	Password string `json:"password"`
}

// JSONEmailHeaderV1 contains the basic header data for one message inside
// a conversation.
type JSONEmailHeaderV1 struct {
	ID            uint32    `json:"id"`
	MessageID     string    `json:"messageId"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	Subject       string    `json:"subject"`
	Snippet       string    `json:"snippet"`
	Date          time.Time `json:"date"`
	IsRead        bool      `json:"isRead"`
	Labels        []string  `json:"labels,omitempty"`
	Folder        string    `json:"folder"`
	HasAttachment bool      `json:"hasAttachment"`
}

// JSONConversationV1 is one aggregated conversation, members newest first.
type JSONConversationV1 struct {
	ID            string               `json:"id"`
	Subject       string               `json:"subject"`
	Folder        string               `json:"folder"`
	Labels        []string             `json:"labels,omitempty"`
	IsRead        bool                 `json:"isRead"`
	IsSnoozed     bool                 `json:"isSnoozed"`
	LastDate      time.Time            `json:"lastDate"`
	Participants  []string             `json:"participants"`
	HasAttachment bool                 `json:"hasAttachment"`
	Emails        []*JSONEmailHeaderV1 `json:"emails"`
}

// JSONSendRequestV1 is the request body for sending or scheduling a
// message.  At is honored only by the schedule endpoint.
type JSONSendRequestV1 struct {
	mail.Outgoing
	At time.Time `json:"at,omitempty"`
}

// JSONJobRefV1 acknowledges queued work.  Scheduled sends remain
// cancelable by job ID until a worker picks them up.
type JSONJobRefV1 struct {
	JobID string `json:"jobId"`
}

// JSONSendFailureV1 describes a send that exhausted its retries.
type JSONSendFailureV1 struct {
	JobID     string    `json:"jobId"`
	AccountID string    `json:"accountId"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError"`
	Enqueued  time.Time `json:"enqueued"`
}

// JSONConversationActionV1 is the request body for conversation mutations.
// Dest applies to move, Label to label/unlabel, Until to snooze.
type JSONConversationActionV1 struct {
	ConversationIDs []string  `json:"conversationIds"`
	Dest            string    `json:"dest,omitempty"`
	Label           string    `json:"label,omitempty"`
	Until           time.Time `json:"until,omitempty"`
}

// JSONRuleV1 is a mail filtering rule.
type JSONRuleV1 struct {
	ID       string `json:"id"`
	Field    string `json:"field"`
	Contains string `json:"contains"`
	AddLabel string `json:"addLabel,omitempty"`
	MoveTo   string `json:"moveTo,omitempty"`
	Star     bool   `json:"star,omitempty"`
	MarkRead bool   `json:"markRead,omitempty"`
}

// JSONMonitorEventV1 is pushed over the monitor WebSocket.  Variant is one
// of `new-email`, `sync-complete`, `send-failed`.  Events are invalidation
// hints; clients re-query the REST API for current state.
type JSONMonitorEventV1 struct {
	Variant        string    `json:"variant"`
	AccountID      string    `json:"accountId"`
	ConversationID string    `json:"conversationId,omitempty"`
	MessageID      string    `json:"messageId,omitempty"`
	Date           time.Time `json:"date"`
}
