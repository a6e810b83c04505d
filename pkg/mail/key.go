package mail

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// replyPrefixes matches one or more leading Re:/Fwd:/Fw: tokens, anchored at
// the start of the subject.
var replyPrefixes = regexp.MustCompile(`^(?i:(re|fwd|fw)\s*:\s*)+`)

// NormalizeSubject strips reply/forward prefixes, collapses whitespace and
// case-folds the subject.  Idempotent: the result of a prior normalization
// normalizes to itself.
func NormalizeSubject(subject string) string {
	s := strings.TrimSpace(subject)
	s = replyPrefixes.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	return strings.ToLower(s)
}

// ConversationKey derives the conversation grouping key for a message.  The
// normalized subject is preferred; an empty subject falls back to a key
// derived from the Message-ID so the result stays stable across re-fetches.
func ConversationKey(subject, messageID string) string {
	if s := NormalizeSubject(subject); s != "" {
		return s
	}
	return derivedKey(messageID)
}

// derivedKey hashes an identity string into a short stable key.
func derivedKey(id string) string {
	sum := sha256.Sum256([]byte(id))
	return "msg-" + hex.EncodeToString(sum[:8])
}
