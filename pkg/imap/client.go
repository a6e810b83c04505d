// Package imap adapts remote IMAP mailboxes to the sync engine.  The
// client performs no internal retries; transient failures surface wrapped
// as mail.ErrTransient and the job queue decides when to try again.
package imap

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/driftmail/driftmail/pkg/config"
	"github.com/driftmail/driftmail/pkg/mail"
)

// Client wraps one logged-in IMAP session for an account.
type Client struct {
	c         *client.Client
	accountID string
}

// Dial connects over implicit TLS and logs in.  A rejected login returns
// an error wrapping mail.ErrAuth; connection failures wrap
// mail.ErrTransient.
func Dial(a *mail.Account, password string, cfg config.IMAP) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", a.IMAPHost, a.IMAPPort)
	dialer := &net.Dialer{Timeout: cfg.DialTimeout}
	c, err := client.DialWithDialerTLS(dialer, addr, &tls.Config{
		ServerName: a.IMAPHost,
		MinVersion: tls.VersionTLS12,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w: %v", addr, mail.ErrTransient, err)
	}
	c.Timeout = cfg.CommandTimeout
	if err := c.Login(a.Username, password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("logging in %s: %w: %v", a.Username, mail.ErrAuth, err)
	}
	return &Client{c: c, accountID: a.ID}, nil
}

// Close logs out and drops the connection.
func (c *Client) Close() error {
	return c.c.Logout()
}

// specialUse maps RFC 6154 mailbox attributes onto folder roles.
var specialUse = map[string]string{
	imap.SentAttr:    mail.UseSent,
	imap.DraftsAttr:  mail.UseDrafts,
	imap.TrashAttr:   mail.UseTrash,
	imap.JunkAttr:    mail.UseJunk,
	imap.ArchiveAttr: mail.UseArchive,
}

// nameUse is the fallback for servers that do not advertise special-use
// attributes; the common English names cover most of them.
var nameUse = map[string]string{
	"inbox":      mail.UseInbox,
	"sent":       mail.UseSent,
	"sent items": mail.UseSent,
	"sent mail":  mail.UseSent,
	"drafts":     mail.UseDrafts,
	"trash":      mail.UseTrash,
	"deleted":    mail.UseTrash,
	"junk":       mail.UseJunk,
	"spam":       mail.UseJunk,
	"archive":    mail.UseArchive,
	"all mail":   mail.UseArchive,
}

// SpecialUse derives the folder role from mailbox attributes, falling back
// to well-known names.  INBOX is special-cased; its role is defined by the
// protocol, not an attribute.
func SpecialUse(name string, attrs []string) string {
	if strings.EqualFold(name, "INBOX") {
		return mail.UseInbox
	}
	for _, a := range attrs {
		if use, ok := specialUse[a]; ok {
			return use
		}
	}
	return nameUse[strings.ToLower(name)]
}

// ListMailboxes enumerates the account's folders.
func (c *Client) ListMailboxes() ([]*mail.Folder, error) {
	infos := make(chan *imap.MailboxInfo, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.c.List("", "*", infos)
	}()
	var folders []*mail.Folder
	for info := range infos {
		name := info.Name
		if i := strings.LastIndex(name, info.Delimiter); i >= 0 && info.Delimiter != "" {
			name = name[i+len(info.Delimiter):]
		}
		folders = append(folders, &mail.Folder{
			AccountID:  c.accountID,
			Path:       info.Name,
			Name:       name,
			Delimiter:  info.Delimiter,
			SpecialUse: SpecialUse(info.Name, info.Attributes),
		})
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("listing mailboxes: %w: %v", mail.ErrTransient, err)
	}
	return folders, nil
}

// FetchRecent returns the newest n messages in a folder, full source
// included.
func (c *Client) FetchRecent(folder string, n uint32) ([]*mail.RawMessage, error) {
	mbox, err := c.c.Select(folder, true)
	if err != nil {
		return nil, fmt.Errorf("selecting %s: %w: %v", folder, mail.ErrTransient, err)
	}
	if mbox.Messages == 0 || n == 0 {
		return nil, nil
	}
	start := uint32(1)
	if mbox.Messages > n {
		start = mbox.Messages - n + 1
	}
	seqSet := new(imap.SeqSet)
	seqSet.AddRange(start, mbox.Messages)
	return c.fetch(folder, seqSet, false, 0)
}

// FetchSince returns messages with UID greater than sinceUID in a folder.
func (c *Client) FetchSince(folder string, sinceUID uint32) ([]*mail.RawMessage, error) {
	mbox, err := c.c.Select(folder, true)
	if err != nil {
		return nil, fmt.Errorf("selecting %s: %w: %v", folder, mail.ErrTransient, err)
	}
	if mbox.Messages == 0 {
		return nil, nil
	}
	seqSet := new(imap.SeqSet)
	seqSet.AddRange(sinceUID+1, 0) // 0 means *
	return c.fetch(folder, seqSet, true, sinceUID)
}

// fetch pulls message source, flags and UIDs for a sequence set.  The body
// section uses PEEK so syncing never flips read state on the server.
func (c *Client) fetch(folder string, seqSet *imap.SeqSet, uidMode bool, sinceUID uint32) ([]*mail.RawMessage, error) {
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchFlags, imap.FetchInternalDate, section.FetchItem()}
	messages := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		if uidMode {
			done <- c.c.UidFetch(seqSet, items, messages)
		} else {
			done <- c.c.Fetch(seqSet, items, messages)
		}
	}()
	var raws []*mail.RawMessage
	for msg := range messages {
		// A UID range of n+1:* matches the last message even when its
		// UID is below the floor; filter it out.
		if uidMode && msg.Uid <= sinceUID {
			continue
		}
		literal := msg.GetBody(section)
		if literal == nil {
			continue
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(literal); err != nil {
			return nil, fmt.Errorf("reading message %d body: %w: %v", msg.Uid, mail.ErrTransient, err)
		}
		raws = append(raws, &mail.RawMessage{
			AccountID: c.accountID,
			FolderID:  folder,
			UID:       msg.Uid,
			Flags:     append([]string(nil), msg.Flags...),
			Date:      msg.InternalDate,
			Source:    buf.Bytes(),
		})
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetching from %s: %w: %v", folder, mail.ErrTransient, err)
	}
	return raws, nil
}

// flagsOp maps the add/remove direction onto the STORE operation.  The
// go-imap add/remove constants are untyped, so the conversion is explicit.
func flagsOp(add bool) imap.FlagsOp {
	if add {
		return imap.AddFlags
	}
	return imap.FlagsOp(imap.RemoveFlags)
}

// SetFlags adds or removes flags on each UID.  A UID that no longer exists
// fails individually; the rest of the batch proceeds.
func (c *Client) SetFlags(folder string, uids []uint32, add bool, flags []string) ([]mail.OpOutcome, error) {
	if _, err := c.c.Select(folder, false); err != nil {
		return nil, fmt.Errorf("selecting %s: %w: %v", folder, mail.ErrTransient, err)
	}
	item := imap.FormatFlagsOp(flagsOp(add), true)
	args := make([]interface{}, len(flags))
	for i, f := range flags {
		args[i] = f
	}
	outcomes := make([]mail.OpOutcome, 0, len(uids))
	for _, uid := range uids {
		seqSet := new(imap.SeqSet)
		seqSet.AddNum(uid)
		err := c.c.UidStore(seqSet, item, args, nil)
		if err != nil {
			err = fmt.Errorf("storing flags on uid %d: %w: %v", uid, mail.ErrTransient, err)
		}
		outcomes = append(outcomes, mail.OpOutcome{UID: uid, Err: err})
	}
	return outcomes, nil
}

// Move relocates each UID to the destination folder, one at a time so a
// vanished UID does not abort its siblings.
func (c *Client) Move(folder string, uids []uint32, dest string) ([]mail.OpOutcome, error) {
	if _, err := c.c.Select(folder, false); err != nil {
		return nil, fmt.Errorf("selecting %s: %w: %v", folder, mail.ErrTransient, err)
	}
	outcomes := make([]mail.OpOutcome, 0, len(uids))
	for _, uid := range uids {
		seqSet := new(imap.SeqSet)
		seqSet.AddNum(uid)
		err := c.c.UidMove(seqSet, dest)
		if err != nil {
			err = fmt.Errorf("moving uid %d to %s: %w: %v", uid, dest, mail.ErrTransient, err)
		}
		outcomes = append(outcomes, mail.OpOutcome{UID: uid, Err: err})
	}
	return outcomes, nil
}

// Append stores a raw message into a folder, used to file sent mail.
func (c *Client) Append(folder string, raw []byte, flags []string) error {
	err := c.c.Append(folder, flags, time.Now(), bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("appending to %s: %w: %v", folder, mail.ErrTransient, err)
	}
	return nil
}
