package client

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/driftmail/driftmail/pkg/rest/model"
)

func TestClientV1Accounts(t *testing.T) {
	var want, got string

	c, err := New(baseURLStr)
	if err != nil {
		t.Fatal(err)
	}
	mth := &mockHTTPClient{body: `[{"id": "acct1", "address": "me@example.com"}]`}
	c.client = mth

	// Method under test
	accounts, err := c.Accounts(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	want = "GET"
	got = mth.req.Method
	if got != want {
		t.Errorf("req.Method == %q, want %q", got, want)
	}

	want = baseURLStr + "/api/v1/accounts"
	got = mth.req.URL.String()
	if got != want {
		t.Errorf("req.URL == %q, want %q", got, want)
	}

	if len(accounts) != 1 || accounts[0].ID != "acct1" {
		t.Errorf("accounts == %+v, want one with ID acct1", accounts)
	}
}

func TestClientV1ListConversations(t *testing.T) {
	var want, got string

	c, err := New(baseURLStr)
	if err != nil {
		t.Fatal(err)
	}
	mth := &mockHTTPClient{body: `[]`}
	c.client = mth

	// Method under test
	_, _ = c.ListConversations(context.Background(), "acct1",
		ConversationQuery{Folder: "INBOX", Search: "invoice"})

	want = "GET"
	got = mth.req.Method
	if got != want {
		t.Errorf("req.Method == %q, want %q", got, want)
	}

	want = baseURLStr + "/api/v1/accounts/acct1/conversations?folder=INBOX&search=invoice"
	got = mth.req.URL.String()
	if got != want {
		t.Errorf("req.URL == %q, want %q", got, want)
	}
}

func TestClientV1Send(t *testing.T) {
	var want, got string

	c, err := New(baseURLStr)
	if err != nil {
		t.Fatal(err)
	}
	mth := &mockHTTPClient{statusCode: 202, body: `{"jobId": "job1"}`}
	c.client = mth

	// Method under test
	msg := &model.JSONSendRequestV1{}
	msg.AccountID = "acct1"
	msg.To = []string{"you@example.com"}
	msg.Subject = "Hello"
	jobID, err := c.Send(context.Background(), msg)
	if err != nil {
		t.Fatal(err)
	}

	want = "POST"
	got = mth.req.Method
	if got != want {
		t.Errorf("req.Method == %q, want %q", got, want)
	}

	want = baseURLStr + "/api/v1/send"
	got = mth.req.URL.String()
	if got != want {
		t.Errorf("req.URL == %q, want %q", got, want)
	}

	if jobID != "job1" {
		t.Errorf("jobID == %q, want %q", jobID, "job1")
	}

	var sent map[string]interface{}
	if err := json.Unmarshal(mth.ReqBody(), &sent); err != nil {
		t.Fatal(err)
	}
	if sent["accountId"] != "acct1" {
		t.Errorf("body accountId == %v, want %q", sent["accountId"], "acct1")
	}
}

func TestClientV1CancelScheduledSend(t *testing.T) {
	var want, got string

	c, err := New(baseURLStr)
	if err != nil {
		t.Fatal(err)
	}
	mth := &mockHTTPClient{}
	c.client = mth

	// Method under test
	_ = c.CancelScheduledSend(context.Background(), "job1")

	want = "DELETE"
	got = mth.req.Method
	if got != want {
		t.Errorf("req.Method == %q, want %q", got, want)
	}

	want = baseURLStr + "/api/v1/send/schedule/job1"
	got = mth.req.URL.String()
	if got != want {
		t.Errorf("req.URL == %q, want %q", got, want)
	}
}

func TestClientV1Snooze(t *testing.T) {
	var want, got string

	c, err := New(baseURLStr)
	if err != nil {
		t.Fatal(err)
	}
	mth := &mockHTTPClient{statusCode: 202}
	c.client = mth

	// Method under test
	until := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	_ = c.Snooze(context.Background(), "acct1", []string{"trip"}, until)

	want = "POST"
	got = mth.req.Method
	if got != want {
		t.Errorf("req.Method == %q, want %q", got, want)
	}

	want = baseURLStr + "/api/v1/accounts/acct1/conversations/snooze"
	got = mth.req.URL.String()
	if got != want {
		t.Errorf("req.URL == %q, want %q", got, want)
	}

	var sent map[string]interface{}
	if err := json.Unmarshal(mth.ReqBody(), &sent); err != nil {
		t.Fatal(err)
	}
	if sent["until"] != "2026-04-01T09:00:00Z" {
		t.Errorf("body until == %v, want %q", sent["until"], "2026-04-01T09:00:00Z")
	}
}

func TestClientV1SyncNow(t *testing.T) {
	var want, got string

	c, err := New(baseURLStr)
	if err != nil {
		t.Fatal(err)
	}
	mth := &mockHTTPClient{statusCode: 202}
	c.client = mth

	// Method under test
	_ = c.SyncNow(context.Background(), "acct1", true)

	want = "POST"
	got = mth.req.Method
	if got != want {
		t.Errorf("req.Method == %q, want %q", got, want)
	}

	want = baseURLStr + "/api/v1/accounts/acct1/sync?full=true"
	got = mth.req.URL.String()
	if got != want {
		t.Errorf("req.URL == %q, want %q", got, want)
	}
}
