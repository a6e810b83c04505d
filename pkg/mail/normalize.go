package mail

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/jhillyerd/enmime/v2"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog/log"

	"github.com/driftmail/driftmail/pkg/sanitize"
)

// SnippetLength is the maximum snippet size in runes.
const SnippetLength = 150

// stripTags reduces HTML to bare text for snippet extraction.
var stripTags = bluemonday.StrictPolicy()

// Normalize converts a raw fetched message into the canonical Email.  A
// message missing its From or To header cannot produce a usable record and
// is rejected with ErrDataQuality; the caller logs and continues.
func Normalize(raw *RawMessage) (*Email, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw.Source))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing MIME: %v", ErrDataQuality, err)
	}

	from, err := env.AddressList("From")
	if err != nil || len(from) == 0 {
		return nil, fmt.Errorf("%w: missing From header", ErrDataQuality)
	}
	to, err := env.AddressList("To")
	if err != nil || len(to) == 0 {
		return nil, fmt.Errorf("%w: missing To header", ErrDataQuality)
	}

	messageID := strings.Trim(env.GetHeader("Message-Id"), "<> ")
	if messageID == "" {
		// Some providers omit Message-ID; derive a stable approximation
		// from content identity so dedup still has something to key on.
		messageID = derivedKey(env.GetHeader("Subject") + "|" + from[0].Address + "|" + raw.Date.UTC().String())
		log.Warn().Str("module", "mail").Str("folder", raw.FolderID).Uint32("uid", raw.UID).
			Msg("Message lacks Message-ID, derived fallback identity")
	}

	subject := env.GetHeader("Subject")
	body, err := normalBody(env)
	if err != nil {
		return nil, err
	}

	e := &Email{
		ID:             raw.UID,
		AccountID:      raw.AccountID,
		MessageID:      messageID,
		ConversationID: ConversationKey(subject, messageID),
		SenderName:     from[0].Name,
		SenderEmail:    from[0].Address,
		RecipientEmail: to[0].Address,
		Subject:        subject,
		Body:           body,
		Snippet:        Snippet(env.Text, env.HTML),
		Date:           raw.Date,
		IsRead:         hasFlag(raw.Flags, flagSeen),
		LabelIDs:       labelsFromFlags(raw.Flags),
		FolderID:       raw.FolderID,
	}
	if cc, err := env.AddressList("Cc"); err == nil {
		for _, a := range cc {
			e.CC = append(e.CC, a.Address)
		}
	}
	if bcc, err := env.AddressList("Bcc"); err == nil {
		for _, a := range bcc {
			e.BCC = append(e.BCC, a.Address)
		}
	}
	for _, part := range env.Attachments {
		if part.FileName == "" {
			continue
		}
		e.Attachments = append(e.Attachments, Attachment{
			FileName: part.FileName,
			// Decoded length; enmime decodes parts on parse and MIME
			// carries no trustworthy declared size to prefer.
			FileSize: int64(len(part.Content)),
			MimeType: part.ContentType,
		})
	}
	return e, nil
}

// normalBody prefers the sanitized HTML part; plain text is wrapped in a
// minimal fragment so downstream rendering is uniform.
func normalBody(env *enmime.Envelope) (string, error) {
	if env.HTML != "" {
		clean, err := sanitize.HTML(env.HTML)
		if err != nil {
			return "", fmt.Errorf("%w: sanitizing body: %v", ErrDataQuality, err)
		}
		return clean, nil
	}
	return "<div>" + html.EscapeString(env.Text) + "</div>", nil
}

// Snippet extracts a whitespace-collapsed plain text prefix of the message.
// The plain text part is preferred; otherwise tags are stripped from the
// HTML part.  Truncation never splits a multi-byte rune.
func Snippet(text, htmlPart string) string {
	s := text
	if s == "" && htmlPart != "" {
		s = html.UnescapeString(stripTags.Sanitize(htmlPart))
	}
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) > SnippetLength {
		return string(runes[:SnippetLength])
	}
	return s
}
