package mail

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBase = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testEmail(uid uint32, subject string, sender string, at time.Time) *Email {
	return &Email{
		ID:             uid,
		AccountID:      "acct1",
		MessageID:      fmt.Sprintf("<%d@example.com>", uid),
		ConversationID: ConversationKey(subject, fmt.Sprintf("<%d@example.com>", uid)),
		SenderEmail:    sender,
		RecipientEmail: "me@example.com",
		Subject:        subject,
		Date:           at,
		IsRead:         true,
		FolderID:       "INBOX",
	}
}

func TestAggregateGroupsReplies(t *testing.T) {
	emails := []*Email{
		testEmail(1, "Trip", "alice@example.com", testBase),
		testEmail(2, "Re: Trip", "bob@example.com", testBase.Add(time.Hour)),
		testEmail(3, "Fwd: Trip", "carol@example.com", testBase.Add(2*time.Hour)),
	}
	convs := Aggregate(emails, testBase)
	require.Len(t, convs, 1)

	c := convs[0]
	assert.Len(t, c.Emails, 3)
	assert.Equal(t, testBase.Add(2*time.Hour), c.LastDate)
	assert.Len(t, c.Participants, 3)
	assert.Equal(t, uint32(3), c.Head().ID, "newest email leads")
}

func TestAggregateIsReadIsConjunction(t *testing.T) {
	a := testEmail(1, "Status", "a@example.com", testBase)
	b := testEmail(2, "Re: Status", "b@example.com", testBase.Add(time.Minute))
	b.IsRead = false

	convs := Aggregate([]*Email{a, b}, testBase)
	require.Len(t, convs, 1)
	assert.False(t, convs[0].IsRead)

	b.IsRead = true
	convs = Aggregate([]*Email{a, b}, testBase)
	assert.True(t, convs[0].IsRead)
}

func TestAggregateLabelsAreUnion(t *testing.T) {
	a := testEmail(1, "Labels", "a@example.com", testBase)
	a.LabelIDs = []string{"work", LabelStarred}
	b := testEmail(2, "Re: Labels", "b@example.com", testBase.Add(time.Minute))
	b.LabelIDs = []string{"work", "travel"}

	convs := Aggregate([]*Email{a, b}, testBase)
	require.Len(t, convs, 1)
	assert.ElementsMatch(t, []string{"work", "travel", LabelStarred}, convs[0].LabelIDs)
}

func TestAggregateFolderFollowsHead(t *testing.T) {
	a := testEmail(1, "Moved", "a@example.com", testBase)
	a.FolderID = "Archive"
	b := testEmail(2, "Re: Moved", "b@example.com", testBase.Add(time.Minute))
	b.FolderID = "INBOX"

	convs := Aggregate([]*Email{a, b}, testBase)
	require.Len(t, convs, 1)
	assert.Equal(t, "INBOX", convs[0].FolderID)
}

func TestAggregateTiebreakIsDeterministic(t *testing.T) {
	a := testEmail(7, "Tie", "a@example.com", testBase)
	b := testEmail(9, "Re: Tie", "b@example.com", testBase)

	for i := 0; i < 10; i++ {
		convs := Aggregate([]*Email{a, b}, testBase)
		require.Len(t, convs, 1)
		assert.Equal(t, uint32(9), convs[0].Head().ID)
	}
}

func TestAggregateAttachmentPresence(t *testing.T) {
	a := testEmail(1, "Files", "a@example.com", testBase)
	a.Attachments = []Attachment{{FileName: "report.pdf", FileSize: 1024, MimeType: "application/pdf"}}
	b := testEmail(2, "Plain", "b@example.com", testBase)

	convs := Aggregate([]*Email{a, b}, testBase)
	require.Len(t, convs, 2)
	for _, c := range convs {
		if c.ID == a.ConversationID {
			assert.True(t, c.HasAttachment)
		} else {
			assert.False(t, c.HasAttachment)
		}
	}
}

func TestFilterByFolderAndLabel(t *testing.T) {
	a := testEmail(1, "Inbox mail", "a@example.com", testBase)
	b := testEmail(2, "Archived mail", "b@example.com", testBase)
	b.FolderID = "Archive"
	b.LabelIDs = []string{"travel"}

	convs := Aggregate([]*Email{a, b}, testBase)

	inbox := Filter(convs, Query{Folder: "INBOX"}, testBase)
	require.Len(t, inbox, 1)
	assert.Equal(t, a.ConversationID, inbox[0].ID)

	travel := Filter(convs, Query{Label: "travel"}, testBase)
	require.Len(t, travel, 1)
	assert.Equal(t, b.ConversationID, travel[0].ID)
}

func TestFilterSearch(t *testing.T) {
	a := testEmail(1, "Quarterly budget", "finance@example.com", testBase)
	a.Snippet = "numbers attached"
	b := testEmail(2, "Lunch", "kitchen@example.com", testBase)

	convs := Aggregate([]*Email{a, b}, testBase)

	assert.Len(t, Filter(convs, Query{Search: "budget"}, testBase), 1)
	assert.Len(t, Filter(convs, Query{Search: "numbers"}, testBase), 1)
	assert.Len(t, Filter(convs, Query{Search: "finance"}, testBase), 1)
	assert.Len(t, Filter(convs, Query{Search: "nothing here"}, testBase), 0)
}

func TestSnoozeHidesUntilElapsed(t *testing.T) {
	now := testBase
	a := testEmail(1, "Snoozed thread", "a@example.com", now)
	a.SnoozedUntil = now.Add(time.Hour)
	b := testEmail(2, "Visible thread", "b@example.com", now)

	// While snoozed: hidden from Inbox, present in the Snoozed view.
	convs := Aggregate([]*Email{a, b}, now)
	inbox := Filter(convs, Query{Folder: "INBOX"}, now)
	require.Len(t, inbox, 1)
	assert.Equal(t, b.ConversationID, inbox[0].ID)

	snoozed := Filter(convs, Query{Snoozed: true}, now)
	require.Len(t, snoozed, 1)
	assert.Equal(t, a.ConversationID, snoozed[0].ID)
	assert.True(t, snoozed[0].IsSnoozed)

	// Clock advances past the snooze: reappears with no explicit unsnooze.
	later := now.Add(2 * time.Hour)
	convs = Aggregate([]*Email{a, b}, later)
	inbox = Filter(convs, Query{Folder: "INBOX"}, later)
	assert.Len(t, inbox, 2)
	for _, c := range convs {
		assert.False(t, c.IsSnoozed)
	}
	assert.Empty(t, Filter(convs, Query{Snoozed: true}, later))
}

func TestMergeRemotePreservesLocalOnlyState(t *testing.T) {
	existing := testEmail(1, "Merge", "a@example.com", testBase)
	existing.SnoozedUntil = testBase.Add(time.Hour)
	existing.LabelIDs = []string{"local-project", LabelStarred}
	existing.FolderID = "INBOX"
	existing.IsRead = false

	incoming := testEmail(1, "Merge", "a@example.com", testBase)
	incoming.FolderID = "Archive" // moved remotely
	incoming.IsRead = true        // seen remotely
	incoming.LabelIDs = nil       // unflagged remotely

	merged := MergeRemote(existing, incoming)

	// Remote truth wins.
	assert.Equal(t, "Archive", merged.FolderID)
	assert.True(t, merged.IsRead)
	assert.NotContains(t, merged.LabelIDs, LabelStarred)

	// Local-only state survives.
	assert.Equal(t, existing.SnoozedUntil, merged.SnoozedUntil)
	assert.Contains(t, merged.LabelIDs, "local-project")
}

func TestLocalMutationApply(t *testing.T) {
	e := testEmail(1, "Mutate", "a@example.com", testBase)
	e.LabelIDs = []string{"keep"}

	read := false
	folder := "Trash"
	m := LocalMutation{
		SetRead:      &read,
		AddLabels:    []string{LabelStarred},
		RemoveLabels: []string{"keep"},
		SetFolder:    &folder,
	}
	m.Apply(e)

	assert.False(t, e.IsRead)
	assert.Equal(t, []string{LabelStarred}, e.LabelIDs)
	assert.Equal(t, "Trash", e.FolderID)
}
