package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	nmail "net/mail"

	"github.com/driftmail/driftmail/pkg/mail"
	"github.com/driftmail/driftmail/pkg/queue"
	"github.com/driftmail/driftmail/pkg/rest/model"
	"github.com/driftmail/driftmail/pkg/rules"
	"github.com/driftmail/driftmail/pkg/server/web"
	"github.com/driftmail/driftmail/pkg/storage"
	"github.com/google/uuid"
)

// AccountListV1 renders the registered accounts.
func AccountListV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	accounts, err := ctx.Manager.Accounts(req.Context())
	if err != nil {
		return fmt.Errorf("failed to list accounts: %v", err)
	}
	jaccounts := make([]*model.JSONAccountV1, len(accounts))
	for i, a := range accounts {
		jaccounts[i] = accountToJSON(a)
	}
	return web.RenderJSON(w, jaccounts)
}

// AccountAddV1 registers a new account and kicks off its first full sync.
func AccountAddV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	var body model.JSONNewAccountV1
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "Malformed JSON body", http.StatusBadRequest)
		return nil
	}
	if body.Address == "" || body.Password == "" {
		http.Error(w, "address and password are required", http.StatusBadRequest)
		return nil
	}
	account := &mail.Account{
		ID:       body.ID,
		Address:  body.Address,
		IMAPHost: body.IMAPHost,
		IMAPPort: body.IMAPPort,
		SMTPHost: body.SMTPHost,
		SMTPPort: body.SMTPPort,
		Username: body.Username,
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.Username == "" {
		account.Username = account.Address
	}
	if err := ctx.Manager.AddAccount(req.Context(), account, body.Password); err != nil {
		return fmt.Errorf("failed to add account %v: %v", account.Address, err)
	}
	return web.RenderJSONStatus(w, http.StatusCreated, accountToJSON(account))
}

// ConversationListV1 renders an account's conversations, newest first.
// Query parameters folder, label, search and snoozed narrow the result.
func ConversationListV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	q := mail.Query{
		Folder:  req.URL.Query().Get("folder"),
		Label:   req.URL.Query().Get("label"),
		Search:  req.URL.Query().Get("search"),
		Snoozed: req.URL.Query().Get("snoozed") == "true",
	}
	convs, err := ctx.Manager.ListConversations(req.Context(), ctx.Vars["id"], q)
	if err != nil {
		return fmt.Errorf("failed to list conversations: %v", err)
	}
	jconvs := make([]*model.JSONConversationV1, len(convs))
	for i, c := range convs {
		jconvs[i] = conversationToJSON(c)
	}
	return web.RenderJSON(w, jconvs)
}

// ConversationMoveV1 moves conversations to another folder.  The local
// store updates immediately; the remote move is queued.
func ConversationMoveV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	return conversationAction(w, req, ctx, func(body *model.JSONConversationActionV1) error {
		if body.Dest == "" {
			return errBadRequest("dest is required")
		}
		return ctx.Manager.Move(req.Context(), ctx.Vars["id"], body.ConversationIDs, body.Dest)
	})
}

// ConversationLabelV1 adds a label to conversations.
func ConversationLabelV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	return conversationAction(w, req, ctx, func(body *model.JSONConversationActionV1) error {
		if body.Label == "" {
			return errBadRequest("label is required")
		}
		return ctx.Manager.Label(req.Context(), ctx.Vars["id"], body.ConversationIDs, body.Label, true)
	})
}

// ConversationUnlabelV1 removes a label from conversations.
func ConversationUnlabelV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	return conversationAction(w, req, ctx, func(body *model.JSONConversationActionV1) error {
		if body.Label == "" {
			return errBadRequest("label is required")
		}
		return ctx.Manager.Label(req.Context(), ctx.Vars["id"], body.ConversationIDs, body.Label, false)
	})
}

// ConversationReadV1 marks conversations read.
func ConversationReadV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	return conversationAction(w, req, ctx, func(body *model.JSONConversationActionV1) error {
		return ctx.Manager.MarkRead(req.Context(), ctx.Vars["id"], body.ConversationIDs, true)
	})
}

// ConversationUnreadV1 marks conversations unread.
func ConversationUnreadV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	return conversationAction(w, req, ctx, func(body *model.JSONConversationActionV1) error {
		return ctx.Manager.MarkRead(req.Context(), ctx.Vars["id"], body.ConversationIDs, false)
	})
}

// ConversationSnoozeV1 hides conversations until the given time.  A zero
// time wakes them immediately.  Snoozing is local only and never queues a
// remote job.
func ConversationSnoozeV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	return conversationAction(w, req, ctx, func(body *model.JSONConversationActionV1) error {
		return ctx.Manager.Snooze(req.Context(), ctx.Vars["id"], body.ConversationIDs, body.Until)
	})
}

// ConversationDeleteV1 moves conversations to the account's trash folder.
func ConversationDeleteV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	return conversationAction(w, req, ctx, func(body *model.JSONConversationActionV1) error {
		return ctx.Manager.Delete(req.Context(), ctx.Vars["id"], body.ConversationIDs)
	})
}

// AccountSyncV1 queues a sync for the account.  full=true forces a full
// window fetch instead of an incremental one.
func AccountSyncV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	full := req.URL.Query().Get("full") == "true"
	if err := ctx.Manager.SyncNow(req.Context(), ctx.Vars["id"], full); err != nil {
		return fmt.Errorf("failed to queue sync: %v", err)
	}
	return web.RenderJSONStatus(w, http.StatusAccepted, "OK")
}

// RuleListV1 renders the account's filtering rules.
func RuleListV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	rules, err := ctx.Manager.Rules(req.Context(), ctx.Vars["id"])
	if err != nil {
		return fmt.Errorf("failed to list rules: %v", err)
	}
	jrules := make([]*model.JSONRuleV1, len(rules))
	for i, r := range rules {
		jrules[i] = &model.JSONRuleV1{
			ID:       r.ID,
			Field:    r.Field,
			Contains: r.Contains,
			AddLabel: r.AddLabel,
			MoveTo:   r.MoveTo,
			Star:     r.Star,
			MarkRead: r.MarkRead,
		}
	}
	return web.RenderJSON(w, jrules)
}

// RuleAddV1 registers a filtering rule for the account.
func RuleAddV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	var body model.JSONRuleV1
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "Malformed JSON body", http.StatusBadRequest)
		return nil
	}
	rule := &mail.Rule{
		ID:        body.ID,
		AccountID: ctx.Vars["id"],
		Field:     body.Field,
		Contains:  body.Contains,
		AddLabel:  body.AddLabel,
		MoveTo:    body.MoveTo,
		Star:      body.Star,
		MarkRead:  body.MarkRead,
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	switch rule.Field {
	case rules.FieldSender, rules.FieldRecipient, rules.FieldSubject, rules.FieldBody:
	default:
		http.Error(w, "field must be sender, recipient, subject or body", http.StatusBadRequest)
		return nil
	}
	if rule.Contains == "" {
		http.Error(w, "contains is required", http.StatusBadRequest)
		return nil
	}
	if err := ctx.Manager.AddRule(req.Context(), rule); err != nil {
		return fmt.Errorf("failed to add rule: %v", err)
	}
	body.ID = rule.ID
	return web.RenderJSONStatus(w, http.StatusCreated, &body)
}

// SendMessageV1 queues a message for immediate submission and acknowledges
// with the job ID.
func SendMessageV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	msg, ok := decodeSendRequest(w, req)
	if !ok {
		return nil
	}
	jobID, err := ctx.Manager.SendEmail(req.Context(), msg)
	if err != nil {
		return sendError(w, err)
	}
	return web.RenderJSONStatus(w, http.StatusAccepted, &model.JSONJobRefV1{JobID: jobID})
}

// ScheduleSendV1 queues a message to be sent at the requested time.  Until
// the job fires it can be canceled by DELETE on the returned job ID, which
// implements undo-send.
func ScheduleSendV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	var body model.JSONSendRequestV1
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "Malformed JSON body", http.StatusBadRequest)
		return nil
	}
	if body.At.IsZero() {
		http.Error(w, "at is required", http.StatusBadRequest)
		return nil
	}
	if len(body.To) == 0 {
		http.Error(w, "at least one recipient is required", http.StatusBadRequest)
		return nil
	}
	jobID, err := ctx.Manager.ScheduleSend(req.Context(), &body.Outgoing, body.At)
	if err != nil {
		return sendError(w, err)
	}
	return web.RenderJSONStatus(w, http.StatusAccepted, &model.JSONJobRefV1{JobID: jobID})
}

// CancelScheduledSendV1 recalls a scheduled send that has not fired.  A
// send already picked up by a worker is not preemptible and yields 409.
func CancelScheduledSendV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	err := ctx.Manager.CancelScheduledSend(req.Context(), ctx.Vars["id"])
	switch {
	case errors.Is(err, queue.ErrNotCancelable):
		http.Error(w, err.Error(), http.StatusConflict)
		return nil
	case err != nil:
		return fmt.Errorf("failed to cancel send: %v", err)
	}
	return web.RenderJSON(w, "OK")
}

// SendFailureListV1 renders sends that exhausted their retries.
func SendFailureListV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	jobs, err := ctx.Manager.SendFailures(req.Context())
	if err != nil {
		return fmt.Errorf("failed to list send failures: %v", err)
	}
	jfailures := make([]*model.JSONSendFailureV1, len(jobs))
	for i, j := range jobs {
		jfailures[i] = &model.JSONSendFailureV1{
			JobID:     j.ID,
			AccountID: j.AccountID,
			Attempts:  j.Attempts,
			LastError: j.LastError,
			Enqueued:  j.Enqueued,
		}
	}
	return web.RenderJSON(w, jfailures)
}

// conversationAction decodes the shared mutation body, runs the action and
// acknowledges with 202.  The mutation has been applied to the local store
// when the response is written; the remote mailbox catches up via the job
// queue.
func conversationAction(
	w http.ResponseWriter,
	req *http.Request,
	ctx *web.Context,
	action func(*model.JSONConversationActionV1) error) error {

	var body model.JSONConversationActionV1
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "Malformed JSON body", http.StatusBadRequest)
		return nil
	}
	if len(body.ConversationIDs) == 0 {
		http.Error(w, "conversationIds is required", http.StatusBadRequest)
		return nil
	}
	err := action(&body)
	switch {
	case errors.Is(err, errBadRequestSentinel):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	case errors.Is(err, storage.ErrNotExist):
		http.NotFound(w, req)
		return nil
	case err != nil:
		return err
	}
	return web.RenderJSONStatus(w, http.StatusAccepted, "OK")
}

func decodeSendRequest(w http.ResponseWriter, req *http.Request) (*mail.Outgoing, bool) {
	var body model.JSONSendRequestV1
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "Malformed JSON body", http.StatusBadRequest)
		return nil, false
	}
	if len(body.To) == 0 {
		http.Error(w, "at least one recipient is required", http.StatusBadRequest)
		return nil, false
	}
	return &body.Outgoing, true
}

func sendError(w http.ResponseWriter, err error) error {
	if errors.Is(err, mail.ErrDataQuality) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	return fmt.Errorf("failed to queue send: %v", err)
}

var errBadRequestSentinel = errors.New("bad request")

func errBadRequest(msg string) error {
	return fmt.Errorf("%w: %s", errBadRequestSentinel, msg)
}

func accountToJSON(a *mail.Account) *model.JSONAccountV1 {
	return &model.JSONAccountV1{
		ID:       a.ID,
		Address:  a.Address,
		IMAPHost: a.IMAPHost,
		IMAPPort: a.IMAPPort,
		SMTPHost: a.SMTPHost,
		SMTPPort: a.SMTPPort,
		Username: a.Username,
	}
}

func conversationToJSON(c *mail.Conversation) *model.JSONConversationV1 {
	jemails := make([]*model.JSONEmailHeaderV1, len(c.Emails))
	for i, e := range c.Emails {
		from := (&nmail.Address{Name: e.SenderName, Address: e.SenderEmail}).String()
		jemails[i] = &model.JSONEmailHeaderV1{
			ID:            e.ID,
			MessageID:     e.MessageID,
			From:          from,
			To:            e.RecipientEmail,
			Subject:       e.Subject,
			Snippet:       e.Snippet,
			Date:          e.Date,
			IsRead:        e.IsRead,
			Labels:        e.LabelIDs,
			Folder:        e.FolderID,
			HasAttachment: len(e.Attachments) > 0,
		}
	}
	return &model.JSONConversationV1{
		ID:            c.ID,
		Subject:       c.Head().Subject,
		Folder:        c.FolderID,
		Labels:        c.LabelIDs,
		IsRead:        c.IsRead,
		IsSnoozed:     c.IsSnoozed,
		LastDate:      c.LastDate,
		Participants:  c.Participants,
		HasAttachment: c.HasAttachment,
		Emails:        jemails,
	}
}
