// Package client provides a basic REST client for the Driftmail API.
package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/driftmail/driftmail/pkg/rest/model"
)

// Client accesses the Driftmail REST API v1.
type Client struct {
	restClient
}

// New creates a new v1 REST API client given the base URL of a Driftmail
// server, ex: "http://localhost:9100".
func New(baseURL string, opts ...func(*ClientOptions)) (*Client, error) {
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	options := getDefaultClientOptions()
	for _, opt := range opts {
		opt(options)
	}
	c := &Client{
		restClient{
			client: &http.Client{
				Timeout:   options.timeout,
				Transport: options.transport,
			},
			baseURL: parsedURL,
		},
	}
	return c, nil
}

// Accounts returns the registered accounts.
func (c *Client) Accounts(ctx context.Context) (accounts []*model.JSONAccountV1, err error) {
	err = c.doJSON(ctx, "GET", "/api/v1/accounts", nil, &accounts)
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// AddAccount registers a new account; the server kicks off its first full
// sync before returning.
func (c *Client) AddAccount(
	ctx context.Context, account *model.JSONNewAccountV1) (*model.JSONAccountV1, error) {
	body, err := json.Marshal(account)
	if err != nil {
		return nil, err
	}
	created := &model.JSONAccountV1{}
	if err := c.doJSON(ctx, "POST", "/api/v1/accounts", body, created); err != nil {
		return nil, err
	}
	return created, nil
}

// ConversationQuery narrows a conversation listing.
type ConversationQuery struct {
	Folder  string
	Label   string
	Search  string
	Snoozed bool
}

// ListConversations returns an account's conversations, newest first.
func (c *Client) ListConversations(
	ctx context.Context, accountID string, q ConversationQuery,
) (convs []*model.JSONConversationV1, err error) {
	params := url.Values{}
	if q.Folder != "" {
		params.Set("folder", q.Folder)
	}
	if q.Label != "" {
		params.Set("label", q.Label)
	}
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	if q.Snoozed {
		params.Set("snoozed", "true")
	}
	uri := "/api/v1/accounts/" + url.PathEscape(accountID) + "/conversations"
	if len(params) > 0 {
		uri += "?" + params.Encode()
	}
	err = c.doJSON(ctx, "GET", uri, nil, &convs)
	if err != nil {
		return nil, err
	}
	return convs, nil
}

// Send queues a message for immediate submission and returns the job ID.
func (c *Client) Send(ctx context.Context, msg *model.JSONSendRequestV1) (string, error) {
	return c.postSend(ctx, "/api/v1/send", msg)
}

// ScheduleSend queues a message to be sent at msg.At and returns the job
// ID, which can cancel the send until it fires.
func (c *Client) ScheduleSend(ctx context.Context, msg *model.JSONSendRequestV1) (string, error) {
	return c.postSend(ctx, "/api/v1/send/schedule", msg)
}

func (c *Client) postSend(
	ctx context.Context, uri string, msg *model.JSONSendRequestV1) (string, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	ref := &model.JSONJobRefV1{}
	if err := c.doJSON(ctx, "POST", uri, body, ref); err != nil {
		return "", err
	}
	return ref.JobID, nil
}

// CancelScheduledSend recalls a scheduled send that has not fired.
func (c *Client) CancelScheduledSend(ctx context.Context, jobID string) error {
	uri := "/api/v1/send/schedule/" + url.PathEscape(jobID)
	return c.doJSON(ctx, "DELETE", uri, nil, nil)
}

// SendFailures returns sends that exhausted their retries.
func (c *Client) SendFailures(ctx context.Context) (fails []*model.JSONSendFailureV1, err error) {
	err = c.doJSON(ctx, "GET", "/api/v1/send/failures", nil, &fails)
	if err != nil {
		return nil, err
	}
	return fails, nil
}

// Move relocates conversations to the destination folder.
func (c *Client) Move(ctx context.Context, accountID string, conversationIDs []string, dest string) error {
	return c.postAction(ctx, accountID, "move",
		&model.JSONConversationActionV1{ConversationIDs: conversationIDs, Dest: dest})
}

// Label adds a label to conversations.
func (c *Client) Label(ctx context.Context, accountID string, conversationIDs []string, label string) error {
	return c.postAction(ctx, accountID, "label",
		&model.JSONConversationActionV1{ConversationIDs: conversationIDs, Label: label})
}

// Unlabel removes a label from conversations.
func (c *Client) Unlabel(ctx context.Context, accountID string, conversationIDs []string, label string) error {
	return c.postAction(ctx, accountID, "unlabel",
		&model.JSONConversationActionV1{ConversationIDs: conversationIDs, Label: label})
}

// MarkRead marks conversations read or unread.
func (c *Client) MarkRead(ctx context.Context, accountID string, conversationIDs []string, read bool) error {
	action := "read"
	if !read {
		action = "unread"
	}
	return c.postAction(ctx, accountID, action,
		&model.JSONConversationActionV1{ConversationIDs: conversationIDs})
}

// Snooze hides conversations until the given time.  A zero time wakes them.
func (c *Client) Snooze(ctx context.Context, accountID string, conversationIDs []string, until time.Time) error {
	return c.postAction(ctx, accountID, "snooze",
		&model.JSONConversationActionV1{ConversationIDs: conversationIDs, Until: until})
}

// Delete moves conversations to the account's trash folder.
func (c *Client) Delete(ctx context.Context, accountID string, conversationIDs []string) error {
	return c.postAction(ctx, accountID, "delete",
		&model.JSONConversationActionV1{ConversationIDs: conversationIDs})
}

func (c *Client) postAction(
	ctx context.Context, accountID, action string, body *model.JSONConversationActionV1) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	uri := "/api/v1/accounts/" + url.PathEscape(accountID) + "/conversations/" + action
	return c.doJSON(ctx, "POST", uri, b, nil)
}

// SyncNow queues a sync pass for the account.
func (c *Client) SyncNow(ctx context.Context, accountID string, full bool) error {
	uri := "/api/v1/accounts/" + url.PathEscape(accountID) + "/sync"
	if full {
		uri += "?full=true"
	}
	return c.doJSON(ctx, "POST", uri, nil, nil)
}

// Rules returns the account's filtering rules.
func (c *Client) Rules(ctx context.Context, accountID string) (rules []*model.JSONRuleV1, err error) {
	uri := "/api/v1/accounts/" + url.PathEscape(accountID) + "/rules"
	err = c.doJSON(ctx, "GET", uri, nil, &rules)
	if err != nil {
		return nil, err
	}
	return rules, nil
}

// AddRule registers a filtering rule for the account.
func (c *Client) AddRule(
	ctx context.Context, accountID string, rule *model.JSONRuleV1) (*model.JSONRuleV1, error) {
	body, err := json.Marshal(rule)
	if err != nil {
		return nil, err
	}
	created := &model.JSONRuleV1{}
	uri := "/api/v1/accounts/" + url.PathEscape(accountID) + "/rules"
	if err := c.doJSON(ctx, "POST", uri, body, created); err != nil {
		return nil, err
	}
	return created, nil
}
