package mail

import (
	"sort"
	"time"
)

// MergeRemote folds a freshly synced copy of a message into the locally
// stored one.  Fields representing remote truth (folder, seen state,
// remote-backed labels, envelope and content) come from the incoming copy;
// purely local state (snooze, scheduled send, local-only labels) is
// preserved from the existing record.  This is a field-level merge, never a
// whole-record overwrite.
func MergeRemote(existing, incoming *Email) *Email {
	if existing == nil {
		return incoming
	}
	merged := *incoming
	merged.SnoozedUntil = existing.SnoozedUntil
	merged.ScheduledSend = existing.ScheduledSend

	labels := make(map[string]struct{})
	for _, l := range incoming.LabelIDs {
		labels[l] = struct{}{}
	}
	for _, l := range existing.LabelIDs {
		if !RemoteBacked(l) {
			labels[l] = struct{}{}
		}
	}
	merged.LabelIDs = sortedKeys(labels)
	return &merged
}

// LocalMutation describes an optimistic field-level change applied to
// locally stored emails ahead of the remote confirmation.
type LocalMutation struct {
	SetRead       *bool
	AddLabels     []string
	RemoveLabels  []string
	SetFolder     *string
	SetSnooze     *bool // when true, SnoozeUntil applies; when false, snooze clears
	SnoozeUntil   time.Time
	ClearSchedule bool
}

// Apply mutates the email in place.
func (m LocalMutation) Apply(e *Email) {
	if m.SetRead != nil {
		e.IsRead = *m.SetRead
	}
	if len(m.AddLabels) > 0 || len(m.RemoveLabels) > 0 {
		labels := make(map[string]struct{})
		for _, l := range e.LabelIDs {
			labels[l] = struct{}{}
		}
		for _, l := range m.AddLabels {
			labels[l] = struct{}{}
		}
		for _, l := range m.RemoveLabels {
			delete(labels, l)
		}
		keys := make([]string, 0, len(labels))
		for k := range labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		e.LabelIDs = keys
	}
	if m.SetFolder != nil {
		e.FolderID = *m.SetFolder
	}
	if m.SetSnooze != nil {
		if *m.SetSnooze {
			e.SnoozedUntil = m.SnoozeUntil
		} else {
			e.SnoozedUntil = time.Time{}
		}
	}
	if m.ClearSchedule {
		e.ScheduledSend = time.Time{}
	}
}
