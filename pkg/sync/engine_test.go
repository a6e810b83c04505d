package sync_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftmail/driftmail/pkg/config"
	"github.com/driftmail/driftmail/pkg/mail"
	"github.com/driftmail/driftmail/pkg/msghub"
	"github.com/driftmail/driftmail/pkg/storage"
	"github.com/driftmail/driftmail/pkg/storage/mem"
	"github.com/driftmail/driftmail/pkg/sync"
)

// fakeSession serves canned folders and messages in place of a live IMAP
// connection.
type fakeSession struct {
	folders  []*mail.Folder
	messages map[string][]*mail.RawMessage
	closed   bool
}

func (f *fakeSession) ListMailboxes() ([]*mail.Folder, error) {
	return f.folders, nil
}

func (f *fakeSession) FetchRecent(folder string, n uint32) ([]*mail.RawMessage, error) {
	msgs := f.messages[folder]
	if uint32(len(msgs)) > n {
		msgs = msgs[uint32(len(msgs))-n:]
	}
	return msgs, nil
}

func (f *fakeSession) FetchSince(folder string, sinceUID uint32) ([]*mail.RawMessage, error) {
	var out []*mail.RawMessage
	for _, m := range f.messages[folder] {
		if m.UID > sinceUID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func rawMessage(folder string, uid uint32, messageID, subject string) *mail.RawMessage {
	source := fmt.Sprintf(
		"From: Avery Chen <avery@example.com>\r\n"+
			"To: me@example.com\r\n"+
			"Subject: %s\r\n"+
			"Message-ID: <%s>\r\n"+
			"Content-Type: text/plain\r\n"+
			"\r\n"+
			"Some body text.\r\n", subject, messageID)
	return &mail.RawMessage{
		AccountID: "acct1",
		FolderID:  folder,
		UID:       uid,
		Date:      time.Date(2024, 4, 8, 10, 0, 0, 0, time.UTC).Add(time.Duration(uid) * time.Minute),
		Source:    []byte(source),
	}
}

func testAccount() *mail.Account {
	return &mail.Account{ID: "acct1", Address: "me@example.com", Username: "me@example.com"}
}

func newEngine(t *testing.T, session *fakeSession) (*sync.Engine, storage.Store) {
	t.Helper()
	store, err := mem.New(config.Storage{})
	require.NoError(t, err)
	hub := msghub.New(10)
	go hub.Start(context.Background())
	dial := func(a *mail.Account, password string) (sync.Adapter, error) {
		return session, nil
	}
	return sync.NewEngine(store, hub, dial, config.IMAP{FetchWindow: 50}), store
}

func TestFullSync(t *testing.T) {
	session := &fakeSession{
		folders: []*mail.Folder{
			{AccountID: "acct1", Path: "INBOX", Name: "INBOX", SpecialUse: mail.UseInbox},
			{AccountID: "acct1", Path: "Sent", Name: "Sent", SpecialUse: mail.UseSent},
		},
		messages: map[string][]*mail.RawMessage{
			"INBOX": {
				rawMessage("INBOX", 1, "m1@example.com", "Trip"),
				rawMessage("INBOX", 2, "m2@example.com", "Re: Trip"),
			},
		},
	}
	engine, store := newEngine(t, session)
	ctx := context.Background()

	sum, err := engine.FullSync(ctx, testAccount(), "pw")
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Folders)
	assert.Equal(t, 2, sum.Fetched)
	assert.Equal(t, []string{"m1@example.com", "m2@example.com"}, sum.NewMessageIDs)
	assert.True(t, session.closed)

	emails, err := store.GetEmails(ctx, "acct1")
	require.NoError(t, err)
	assert.Len(t, emails, 2)

	// Both messages land in one conversation.
	got, err := store.GetEmail(ctx, "acct1", "m2@example.com")
	require.NoError(t, err)
	assert.Equal(t, "trip", got.ConversationID)

	mark, err := store.HighWaterMark(ctx, "acct1", "INBOX")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), mark)

	folders, err := store.Folders(ctx, "acct1")
	require.NoError(t, err)
	assert.Len(t, folders, 2)
}

func TestFullSyncIdempotent(t *testing.T) {
	session := &fakeSession{
		folders: []*mail.Folder{{AccountID: "acct1", Path: "INBOX", Name: "INBOX"}},
		messages: map[string][]*mail.RawMessage{
			"INBOX": {rawMessage("INBOX", 1, "m1@example.com", "Trip")},
		},
	}
	engine, store := newEngine(t, session)
	ctx := context.Background()

	_, err := engine.FullSync(ctx, testAccount(), "pw")
	require.NoError(t, err)
	sum, err := engine.FullSync(ctx, testAccount(), "pw")
	require.NoError(t, err)
	assert.Empty(t, sum.NewMessageIDs, "replayed sync must not report new messages")

	emails, err := store.GetEmails(ctx, "acct1")
	require.NoError(t, err)
	assert.Len(t, emails, 1)
}

// TestSyncDedupOnMove verifies that a message re-fetched from another
// folder after a server-side move updates the stored copy in place.
func TestSyncDedupOnMove(t *testing.T) {
	session := &fakeSession{
		folders: []*mail.Folder{
			{AccountID: "acct1", Path: "INBOX", Name: "INBOX"},
			{AccountID: "acct1", Path: "Archive", Name: "Archive", SpecialUse: mail.UseArchive},
		},
		messages: map[string][]*mail.RawMessage{
			"INBOX": {rawMessage("INBOX", 1, "m1@example.com", "Trip")},
		},
	}
	engine, store := newEngine(t, session)
	ctx := context.Background()
	_, err := engine.FullSync(ctx, testAccount(), "pw")
	require.NoError(t, err)

	// The server moves the message; it shows up under Archive with a
	// fresh UID on the next pass.
	session.messages["INBOX"] = nil
	session.messages["Archive"] = []*mail.RawMessage{
		rawMessage("Archive", 9, "m1@example.com", "Trip"),
	}
	sum, err := engine.IncrementalSync(ctx, testAccount(), "pw")
	require.NoError(t, err)
	assert.Empty(t, sum.NewMessageIDs)

	emails, err := store.GetEmails(ctx, "acct1")
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, "Archive", emails[0].FolderID)
	assert.Equal(t, uint32(9), emails[0].ID)
}

// TestSyncSkipsMalformed verifies one unparseable message does not abort
// the folder.
func TestSyncSkipsMalformed(t *testing.T) {
	broken := &mail.RawMessage{
		AccountID: "acct1",
		FolderID:  "INBOX",
		UID:       2,
		Date:      time.Now(),
		Source:    []byte("Subject: no sender\r\n\r\nbody\r\n"),
	}
	session := &fakeSession{
		folders: []*mail.Folder{{AccountID: "acct1", Path: "INBOX", Name: "INBOX"}},
		messages: map[string][]*mail.RawMessage{
			"INBOX": {rawMessage("INBOX", 1, "m1@example.com", "Trip"), broken},
		},
	}
	engine, store := newEngine(t, session)
	ctx := context.Background()

	sum, err := engine.FullSync(ctx, testAccount(), "pw")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, []string{"m1@example.com"}, sum.NewMessageIDs)

	// The mark still advances past the bad message.
	mark, err := store.HighWaterMark(ctx, "acct1", "INBOX")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), mark)
}

func TestIncrementalSyncUsesHighWaterMark(t *testing.T) {
	session := &fakeSession{
		folders: []*mail.Folder{{AccountID: "acct1", Path: "INBOX", Name: "INBOX"}},
		messages: map[string][]*mail.RawMessage{
			"INBOX": {rawMessage("INBOX", 1, "m1@example.com", "Trip")},
		},
	}
	engine, store := newEngine(t, session)
	ctx := context.Background()
	_, err := engine.FullSync(ctx, testAccount(), "pw")
	require.NoError(t, err)

	session.messages["INBOX"] = append(session.messages["INBOX"],
		rawMessage("INBOX", 2, "m2@example.com", "Re: Trip"))
	sum, err := engine.IncrementalSync(ctx, testAccount(), "pw")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Fetched, "only the message above the mark is fetched")
	assert.Equal(t, []string{"m2@example.com"}, sum.NewMessageIDs)

	mark, err := store.HighWaterMark(ctx, "acct1", "INBOX")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), mark)
}
