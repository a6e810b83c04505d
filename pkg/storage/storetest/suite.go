// Package storetest provides a conformance suite run against every Store
// implementation.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/driftmail/driftmail/pkg/mail"
	"github.com/driftmail/driftmail/pkg/storage"
)

// StoreFactory returns a new empty store for the test suite.
type StoreFactory func() (store storage.Store, destroy func(), err error)

// StoreSuite runs a set of general tests on the provided Store.
func StoreSuite(t *testing.T, factory StoreFactory) {
	testCases := []struct {
		name string
		test func(*testing.T, storage.Store)
	}{
		{"upsert and get", testUpsertGet},
		{"dedup on move", testDedupOnMove},
		{"merge preserves local state", testMergePreservesLocal},
		{"apply local", testApplyLocal},
		{"delete", testDelete},
		{"folders", testFolders},
		{"high water mark", testHighWaterMark},
		{"accounts", testAccounts},
		{"rules", testRules},
		{"auto reply once", testAutoReplyOnce},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store, destroy, err := factory()
			if err != nil {
				t.Fatal(err)
			}
			tc.test(t, store)
			destroy()
		})
	}
}

// testEmail builds a minimal valid email for the given identity.
func testEmail(accountID, messageID string) *mail.Email {
	return &mail.Email{
		ID:             100,
		AccountID:      accountID,
		MessageID:      messageID,
		ConversationID: "weekend plans",
		SenderName:     "Avery Chen",
		SenderEmail:    "avery@example.com",
		RecipientEmail: "me@example.com",
		Subject:        "Weekend plans",
		Body:           "<div>Kayaking?</div>",
		Snippet:        "Kayaking?",
		Date:           time.Date(2024, 4, 8, 10, 30, 0, 0, time.UTC),
		FolderID:       "INBOX",
	}
}

func testUpsertGet(t *testing.T, store storage.Store) {
	ctx := context.Background()
	e := testEmail("acct1", "<m1@example.com>")
	e.CC = []string{"cc@example.com"}
	e.LabelIDs = []string{"starred"}
	e.Attachments = []mail.Attachment{{FileName: "route.pdf", FileSize: 2048, MimeType: "application/pdf"}}
	created, err := store.UpsertEmail(ctx, e)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Error("expected first upsert to report created")
	}
	got, err := store.GetEmail(ctx, "acct1", "<m1@example.com>")
	if err != nil {
		t.Fatal(err)
	}
	if got.Subject != e.Subject {
		t.Errorf("got subject %q, want: %q", got.Subject, e.Subject)
	}
	if got.ConversationID != e.ConversationID {
		t.Errorf("got conversation %q, want: %q", got.ConversationID, e.ConversationID)
	}
	if len(got.CC) != 1 || got.CC[0] != "cc@example.com" {
		t.Errorf("got cc %v, want [cc@example.com]", got.CC)
	}
	if len(got.Attachments) != 1 || got.Attachments[0].FileName != "route.pdf" {
		t.Errorf("got attachments %v, want route.pdf", got.Attachments)
	}
	if !got.Date.Equal(e.Date) {
		t.Errorf("got date %v, want: %v", got.Date, e.Date)
	}

	// Unknown identities are reported, not invented.
	if _, err := store.GetEmail(ctx, "acct1", "<nope@example.com>"); err != storage.ErrNotExist {
		t.Errorf("got err %v, want ErrNotExist", err)
	}
	if _, err := store.GetEmail(ctx, "acct2", "<m1@example.com>"); err != storage.ErrNotExist {
		t.Errorf("got err %v for foreign account, want ErrNotExist", err)
	}
}

// testDedupOnMove verifies that re-seeing a message in a different folder
// updates the single stored copy instead of inserting a second one.
func testDedupOnMove(t *testing.T, store storage.Store) {
	ctx := context.Background()
	first := testEmail("acct1", "<m1@example.com>")
	if _, err := store.UpsertEmail(ctx, first); err != nil {
		t.Fatal(err)
	}
	moved := testEmail("acct1", "<m1@example.com>")
	moved.ID = 7
	moved.FolderID = "Archive"
	created, err := store.UpsertEmail(ctx, moved)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("expected second upsert of same message-id to report updated")
	}
	all, err := store.GetEmails(ctx, "acct1")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("got %d emails, want 1", len(all))
	}
	if all[0].FolderID != "Archive" {
		t.Errorf("got folder %q, want: Archive", all[0].FolderID)
	}
	if all[0].ID != 7 {
		t.Errorf("got uid %d, want: 7", all[0].ID)
	}
}

// testMergePreservesLocal verifies that a remote refresh keeps local-only
// state: snooze, schedule and non remote-backed labels.
func testMergePreservesLocal(t *testing.T, store storage.Store) {
	ctx := context.Background()
	e := testEmail("acct1", "<m1@example.com>")
	e.SnoozedUntil = time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC)
	e.LabelIDs = []string{"travel"}
	if _, err := store.UpsertEmail(ctx, e); err != nil {
		t.Fatal(err)
	}

	refresh := testEmail("acct1", "<m1@example.com>")
	refresh.IsRead = true
	refresh.LabelIDs = []string{"starred"}
	if _, err := store.UpsertEmail(ctx, refresh); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetEmail(ctx, "acct1", "<m1@example.com>")
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsRead {
		t.Error("expected remote read state to win")
	}
	if got.SnoozedUntil.IsZero() {
		t.Error("expected snooze to survive remote refresh")
	}
	if !got.HasLabel("travel") {
		t.Errorf("expected local label to survive, got %v", got.LabelIDs)
	}
	if !got.HasLabel("starred") {
		t.Errorf("expected remote backed label to be adopted, got %v", got.LabelIDs)
	}
}

func testApplyLocal(t *testing.T, store storage.Store) {
	ctx := context.Background()
	for _, id := range []string{"<m1@example.com>", "<m2@example.com>"} {
		if _, err := store.UpsertEmail(ctx, testEmail("acct1", id)); err != nil {
			t.Fatal(err)
		}
	}
	read := true
	dest := "Archive"
	m := mail.LocalMutation{
		SetRead:   &read,
		AddLabels: []string{"travel"},
		SetFolder: &dest,
	}
	err := store.ApplyLocal(ctx, "acct1", []string{"<m1@example.com>", "<m2@example.com>"}, m)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"<m1@example.com>", "<m2@example.com>"} {
		got, err := store.GetEmail(ctx, "acct1", id)
		if err != nil {
			t.Fatal(err)
		}
		if !got.IsRead || !got.HasLabel("travel") || got.FolderID != "Archive" {
			t.Errorf("mutation not applied to %s: %+v", id, got)
		}
	}

	// Snooze then clear.
	snooze := true
	err = store.ApplyLocal(ctx, "acct1", []string{"<m1@example.com>"}, mail.LocalMutation{
		SetSnooze:   &snooze,
		SnoozeUntil: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := store.GetEmail(ctx, "acct1", "<m1@example.com>")
	if err != nil {
		t.Fatal(err)
	}
	if got.SnoozedUntil.IsZero() {
		t.Fatal("expected snooze to be set")
	}
	wake := false
	err = store.ApplyLocal(ctx, "acct1", []string{"<m1@example.com>"}, mail.LocalMutation{SetSnooze: &wake})
	if err != nil {
		t.Fatal(err)
	}
	got, err = store.GetEmail(ctx, "acct1", "<m1@example.com>")
	if err != nil {
		t.Fatal(err)
	}
	if !got.SnoozedUntil.IsZero() {
		t.Error("expected snooze to be cleared")
	}

	// Unknown ids are skipped, not an error.
	err = store.ApplyLocal(ctx, "acct1", []string{"<ghost@example.com>"}, mail.LocalMutation{SetRead: &read})
	if err != nil {
		t.Errorf("got err %v for unknown id, want nil", err)
	}
}

func testDelete(t *testing.T, store storage.Store) {
	ctx := context.Background()
	if _, err := store.UpsertEmail(ctx, testEmail("acct1", "<m1@example.com>")); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteEmail(ctx, "acct1", "<m1@example.com>"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetEmail(ctx, "acct1", "<m1@example.com>"); err != storage.ErrNotExist {
		t.Errorf("got err %v after delete, want ErrNotExist", err)
	}
	// Deleting again is harmless.
	if err := store.DeleteEmail(ctx, "acct1", "<m1@example.com>"); err != nil {
		t.Errorf("got err %v on repeat delete, want nil", err)
	}
}

func testFolders(t *testing.T, store storage.Store) {
	ctx := context.Background()
	folders := []*mail.Folder{
		{AccountID: "acct1", Path: "INBOX", Name: "INBOX", Delimiter: "/", SpecialUse: mail.UseInbox},
		{AccountID: "acct1", Path: "Papierkorb", Name: "Papierkorb", Delimiter: "/", SpecialUse: mail.UseTrash},
		{AccountID: "acct2", Path: "INBOX", Name: "INBOX", Delimiter: "/", SpecialUse: mail.UseInbox},
	}
	for _, f := range folders {
		if err := store.UpsertFolder(ctx, f); err != nil {
			t.Fatal(err)
		}
	}
	got, err := store.Folders(ctx, "acct1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d folders, want 2", len(got))
	}
	trash, err := storage.FindSpecialUse(ctx, store, "acct1", mail.UseTrash)
	if err != nil {
		t.Fatal(err)
	}
	if trash.Path != "Papierkorb" {
		t.Errorf("got trash path %q, want: Papierkorb", trash.Path)
	}

	// Upsert updates in place.
	err = store.UpsertFolder(ctx, &mail.Folder{
		AccountID: "acct1", Path: "Papierkorb", Name: "Trash", Delimiter: "/", SpecialUse: mail.UseTrash,
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err = store.Folders(ctx, "acct1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("got %d folders after update, want 2", len(got))
	}
}

func testHighWaterMark(t *testing.T, store storage.Store) {
	ctx := context.Background()
	uid, err := store.HighWaterMark(ctx, "acct1", "INBOX")
	if err != nil {
		t.Fatal(err)
	}
	if uid != 0 {
		t.Errorf("got initial mark %d, want 0", uid)
	}
	if err := store.SetHighWaterMark(ctx, "acct1", "INBOX", 40); err != nil {
		t.Fatal(err)
	}
	// Marks only advance.
	if err := store.SetHighWaterMark(ctx, "acct1", "INBOX", 10); err != nil {
		t.Fatal(err)
	}
	uid, err = store.HighWaterMark(ctx, "acct1", "INBOX")
	if err != nil {
		t.Fatal(err)
	}
	if uid != 40 {
		t.Errorf("got mark %d, want 40", uid)
	}
	// Marks are scoped per folder.
	uid, err = store.HighWaterMark(ctx, "acct1", "Archive")
	if err != nil {
		t.Fatal(err)
	}
	if uid != 0 {
		t.Errorf("got mark %d for untouched folder, want 0", uid)
	}
}

func testAccounts(t *testing.T, store storage.Store) {
	ctx := context.Background()
	a := &mail.Account{
		ID:             "acct1",
		Address:        "me@example.com",
		IMAPHost:       "imap.example.com",
		IMAPPort:       993,
		SMTPHost:       "smtp.example.com",
		SMTPPort:       465,
		Username:       "me@example.com",
		SealedPassword: []byte{0xde, 0xad, 0xbe, 0xef},
	}
	if err := store.UpsertAccount(ctx, a); err != nil {
		t.Fatal(err)
	}
	got, err := store.Account(ctx, "acct1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Address != a.Address || got.IMAPPort != 993 {
		t.Errorf("got account %+v, want %+v", got, a)
	}
	if len(got.SealedPassword) != 4 {
		t.Errorf("got sealed password %v, want 4 bytes", got.SealedPassword)
	}
	if _, err := store.Account(ctx, "ghost"); err != storage.ErrNotExist {
		t.Errorf("got err %v, want ErrNotExist", err)
	}
	all, err := store.Accounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("got %d accounts, want 1", len(all))
	}
}

func testRules(t *testing.T, store storage.Store) {
	ctx := context.Background()
	r := &mail.Rule{
		ID:        "rule1",
		AccountID: "acct1",
		Field:     "sender",
		Contains:  "billing@",
		AddLabel:  "finance",
		MarkRead:  true,
	}
	if err := store.UpsertRule(ctx, r); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertRule(ctx, &mail.Rule{ID: "rule2", AccountID: "acct2", Field: "subject", Contains: "invoice"}); err != nil {
		t.Fatal(err)
	}
	got, err := store.Rules(ctx, "acct1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d rules, want 1", len(got))
	}
	if got[0].AddLabel != "finance" || !got[0].MarkRead {
		t.Errorf("got rule %+v, want %+v", got[0], r)
	}
}

func testAutoReplyOnce(t *testing.T, store storage.Store) {
	ctx := context.Background()
	first, err := store.AutoReplied(ctx, "acct1", "avery@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if !first {
		t.Error("expected first sighting of sender to report first")
	}
	first, err = store.AutoReplied(ctx, "acct1", "avery@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if first {
		t.Error("expected repeat sighting to report not-first")
	}
	// Scoped per account.
	first, err = store.AutoReplied(ctx, "acct2", "avery@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if !first {
		t.Error("expected other account to track its own senders")
	}
}
