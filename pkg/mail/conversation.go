package mail

import (
	"sort"
	"strings"
	"time"
)

// Conversation is the derived aggregate of emails sharing a conversation
// key.  It is never stored; it is rebuilt from its members on every read so
// the server and client projections cannot diverge.
type Conversation struct {
	ID            string    `json:"id"`
	Emails        []*Email  `json:"emails"` // newest first
	IsRead        bool      `json:"isRead"`
	LabelIDs      []string  `json:"labelIds,omitempty"`
	FolderID      string    `json:"folderId"`
	IsSnoozed     bool      `json:"isSnoozed"`
	LastDate      time.Time `json:"lastDate"`
	Participants  []string  `json:"participants"`
	HasAttachment bool      `json:"hasAttachment"`
}

// Head returns the most recent member.
func (c *Conversation) Head() *Email {
	return c.Emails[0]
}

// Aggregate groups emails into conversations and derives the aggregate
// state for each.  Members sort newest first; timestamp ties break on UID
// so the ordering is deterministic.  Conversations themselves order by head
// date descending with the same tie-break.
func Aggregate(emails []*Email, now time.Time) []*Conversation {
	groups := make(map[string][]*Email)
	for _, e := range emails {
		groups[e.ConversationID] = append(groups[e.ConversationID], e)
	}
	convs := make([]*Conversation, 0, len(groups))
	for id, members := range groups {
		sort.Slice(members, func(i, j int) bool {
			if !members[i].Date.Equal(members[j].Date) {
				return members[i].Date.After(members[j].Date)
			}
			return members[i].ID > members[j].ID
		})
		convs = append(convs, buildConversation(id, members, now))
	}
	sort.Slice(convs, func(i, j int) bool {
		if !convs[i].LastDate.Equal(convs[j].LastDate) {
			return convs[i].LastDate.After(convs[j].LastDate)
		}
		return convs[i].Head().ID > convs[j].Head().ID
	})
	return convs
}

func buildConversation(id string, members []*Email, now time.Time) *Conversation {
	head := members[0]
	c := &Conversation{
		ID:        id,
		Emails:    members,
		IsRead:    true,
		FolderID:  head.FolderID,
		IsSnoozed: head.Snoozed(now),
		LastDate:  head.Date,
	}
	labels := make(map[string]struct{})
	participants := make(map[string]struct{})
	for _, e := range members {
		if !e.IsRead {
			c.IsRead = false
		}
		for _, l := range e.LabelIDs {
			labels[l] = struct{}{}
		}
		if e.SenderEmail != "" {
			participants[e.SenderEmail] = struct{}{}
		}
		if len(e.Attachments) > 0 {
			c.HasAttachment = true
		}
	}
	c.LabelIDs = sortedKeys(labels)
	c.Participants = sortedKeys(participants)
	return c
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Query selects a subset of conversations for display.
type Query struct {
	Folder  string // folder filter, "" for all
	Label   string // label filter, "" for all
	Search  string // free text over subject, participants and snippets
	Snoozed bool   // the dedicated Snoozed view
}

// Filter applies folder, label, search and snooze visibility rules.
// Snoozed conversations are hidden from every normal view while the snooze
// is in the future; once elapsed they reappear in their real folder without
// any explicit unsnooze.
func Filter(convs []*Conversation, q Query, now time.Time) []*Conversation {
	var out []*Conversation
	for _, c := range convs {
		if q.Snoozed {
			if c.IsSnoozed {
				out = append(out, c)
			}
			continue
		}
		if c.IsSnoozed {
			continue
		}
		if q.Folder != "" && c.FolderID != q.Folder {
			continue
		}
		if q.Label != "" && !containsString(c.LabelIDs, q.Label) {
			continue
		}
		if q.Search != "" && !matchesSearch(c, q.Search) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func matchesSearch(c *Conversation, term string) bool {
	term = strings.ToLower(term)
	for _, e := range c.Emails {
		if strings.Contains(strings.ToLower(e.Subject), term) ||
			strings.Contains(strings.ToLower(e.SenderEmail), term) ||
			strings.Contains(strings.ToLower(e.SenderName), term) ||
			strings.Contains(strings.ToLower(e.Snippet), term) {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
