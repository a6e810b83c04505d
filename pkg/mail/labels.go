package mail

// Well-known label IDs.  Starred is remote-backed: it mirrors the IMAP
// \Flagged flag on the server.  Every other label is local-only and must
// survive sync merges untouched.
const (
	LabelStarred = "starred"

	flagSeen    = `\Seen`
	flagFlagged = `\Flagged`
	flagDeleted = `\Deleted`
)

// labelFlags is the bidirectional mapping between remote-backed labels and
// the IMAP flag that represents them.  Checked at every sync merge point.
var labelFlags = map[string]string{
	LabelStarred: flagFlagged,
}

var flagLabels = func() map[string]string {
	m := make(map[string]string, len(labelFlags))
	for label, flag := range labelFlags {
		m[flag] = label
	}
	return m
}()

// RemoteFlagFor returns the IMAP flag mirroring the given label, if any.
func RemoteFlagFor(label string) (flag string, ok bool) {
	flag, ok = labelFlags[label]
	return
}

// LabelForFlag returns the label mirroring the given IMAP flag, if any.
func LabelForFlag(flag string) (label string, ok bool) {
	label, ok = flagLabels[flag]
	return
}

// RemoteBacked reports whether the label is represented by an IMAP flag on
// the server, as opposed to existing only in the local store.
func RemoteBacked(label string) bool {
	_, ok := labelFlags[label]
	return ok
}

// FlagSeen and friends expose the protocol flag strings to the adapter
// without the adapter needing to know the mapping policy.
const (
	FlagSeen    = flagSeen
	FlagFlagged = flagFlagged
	FlagDeleted = flagDeleted
)

// labelsFromFlags derives the remote-backed label set from protocol flags.
func labelsFromFlags(flags []string) []string {
	var labels []string
	for _, f := range flags {
		if label, ok := flagLabels[f]; ok {
			labels = append(labels, label)
		}
	}
	return labels
}

// hasFlag reports whether the flag list contains the given flag.
func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}
