// Package sqlite implements the durable mail store on a local SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/driftmail/driftmail/pkg/config"
	"github.com/driftmail/driftmail/pkg/mail"
	"github.com/driftmail/driftmail/pkg/storage"
)

// Store implements storage.Store backed by SQLite.
type Store struct {
	db *sqlx.DB
}

var _ storage.Store = &Store{}

// New opens (or creates) the database at the configured path, enables WAL
// mode, and applies pending migrations.
func New(cfg config.Storage) (storage.Store, error) {
	path, ok := cfg.Params["path"]
	if !ok || path == "" {
		return nil, errors.New("sqlite storage requires a path param")
	}
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewOnDB wraps an already opened database; used when the job queue shares
// the same file.
func NewOnDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open prepares a SQLite handle shared by the store and the durable queue.
func Open(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// A single writer connection sidesteps SQLITE_BUSY under concurrent
	// workers; reads still overlap through WAL.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

func migrate(db *sqlx.DB) error {
	currentVersion := 0
	var tableCount int
	err := db.Get(&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return err
	}
	if tableCount > 0 {
		if err := db.Get(&currentVersion,
			"SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return err
		}
	}
	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

type emailRow struct {
	AccountID      string       `db:"account_id"`
	MessageID      string       `db:"message_id"`
	UID            int64        `db:"uid"`
	ConversationID string       `db:"conversation_id"`
	SenderName     string       `db:"sender_name"`
	SenderEmail    string       `db:"sender_email"`
	RecipientEmail string       `db:"recipient_email"`
	CC             string       `db:"cc"`
	BCC            string       `db:"bcc"`
	Subject        string       `db:"subject"`
	Body           string       `db:"body"`
	Snippet        string       `db:"snippet"`
	Date           time.Time    `db:"date"`
	IsRead         bool         `db:"is_read"`
	LabelIDs       string       `db:"label_ids"`
	FolderID       string       `db:"folder_id"`
	SnoozedUntil   sql.NullTime `db:"snoozed_until"`
	ScheduledSend  sql.NullTime `db:"scheduled_send"`
	Attachments    string       `db:"attachments"`
}

func toRow(e *mail.Email) (*emailRow, error) {
	cc, err := json.Marshal(orEmpty(e.CC))
	if err != nil {
		return nil, err
	}
	bcc, err := json.Marshal(orEmpty(e.BCC))
	if err != nil {
		return nil, err
	}
	labels, err := json.Marshal(orEmpty(e.LabelIDs))
	if err != nil {
		return nil, err
	}
	atts, err := json.Marshal(e.Attachments)
	if err != nil {
		return nil, err
	}
	if e.Attachments == nil {
		atts = []byte("[]")
	}
	return &emailRow{
		AccountID:      e.AccountID,
		MessageID:      e.MessageID,
		UID:            int64(e.ID),
		ConversationID: e.ConversationID,
		SenderName:     e.SenderName,
		SenderEmail:    e.SenderEmail,
		RecipientEmail: e.RecipientEmail,
		CC:             string(cc),
		BCC:            string(bcc),
		Subject:        e.Subject,
		Body:           e.Body,
		Snippet:        e.Snippet,
		Date:           e.Date.UTC(),
		IsRead:         e.IsRead,
		LabelIDs:       string(labels),
		FolderID:       e.FolderID,
		SnoozedUntil:   nullTime(e.SnoozedUntil),
		ScheduledSend:  nullTime(e.ScheduledSend),
		Attachments:    string(atts),
	}, nil
}

func (r *emailRow) toEmail() (*mail.Email, error) {
	e := &mail.Email{
		ID:             uint32(r.UID),
		AccountID:      r.AccountID,
		MessageID:      r.MessageID,
		ConversationID: r.ConversationID,
		SenderName:     r.SenderName,
		SenderEmail:    r.SenderEmail,
		RecipientEmail: r.RecipientEmail,
		Subject:        r.Subject,
		Body:           r.Body,
		Snippet:        r.Snippet,
		Date:           r.Date,
		IsRead:         r.IsRead,
		FolderID:       r.FolderID,
	}
	if r.SnoozedUntil.Valid {
		e.SnoozedUntil = r.SnoozedUntil.Time
	}
	if r.ScheduledSend.Valid {
		e.ScheduledSend = r.ScheduledSend.Time
	}
	cols := []struct {
		raw string
		dst interface{}
	}{
		{r.CC, &e.CC},
		{r.BCC, &e.BCC},
		{r.LabelIDs, &e.LabelIDs},
		{r.Attachments, &e.Attachments},
	}
	for _, c := range cols {
		if err := json.Unmarshal([]byte(c.raw), c.dst); err != nil {
			return nil, fmt.Errorf("decoding email %s column: %w", r.MessageID, err)
		}
	}
	if len(e.CC) == 0 {
		e.CC = nil
	}
	if len(e.BCC) == 0 {
		e.BCC = nil
	}
	if len(e.LabelIDs) == 0 {
		e.LabelIDs = nil
	}
	return e, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

const upsertEmailSQL = `
INSERT OR REPLACE INTO emails (
	account_id, message_id, uid, conversation_id,
	sender_name, sender_email, recipient_email, cc, bcc,
	subject, body, snippet, date, is_read, label_ids, folder_id,
	snoozed_until, scheduled_send, attachments
) VALUES (
	:account_id, :message_id, :uid, :conversation_id,
	:sender_name, :sender_email, :recipient_email, :cc, :bcc,
	:subject, :body, :snippet, :date, :is_read, :label_ids, :folder_id,
	:snoozed_until, :scheduled_send, :attachments
)`

// UpsertEmail merges a synced email into the store inside one transaction.
func (s *Store) UpsertEmail(ctx context.Context, e *mail.Email) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	existing, err := getEmailTx(ctx, tx, e.AccountID, e.MessageID)
	if err != nil && !errors.Is(err, storage.ErrNotExist) {
		return false, err
	}
	row, err := toRow(mail.MergeRemote(existing, e))
	if err != nil {
		return false, err
	}
	if _, err := tx.NamedExecContext(ctx, upsertEmailSQL, row); err != nil {
		return false, fmt.Errorf("upserting email %s: %w", e.MessageID, err)
	}
	return existing == nil, tx.Commit()
}

func getEmailTx(
	ctx context.Context, q sqlx.QueryerContext, accountID, messageID string,
) (*mail.Email, error) {
	var r emailRow
	err := sqlx.GetContext(ctx, q, &r,
		"SELECT * FROM emails WHERE account_id = ? AND message_id = ?", accountID, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotExist
	}
	if err != nil {
		return nil, err
	}
	return r.toEmail()
}

// GetEmail fetches one email.
func (s *Store) GetEmail(ctx context.Context, accountID, messageID string) (*mail.Email, error) {
	return getEmailTx(ctx, s.db, accountID, messageID)
}

// GetEmails returns all emails for an account.
func (s *Store) GetEmails(ctx context.Context, accountID string) ([]*mail.Email, error) {
	var rows []emailRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM emails WHERE account_id = ?", accountID)
	if err != nil {
		return nil, err
	}
	emails := make([]*mail.Email, 0, len(rows))
	for i := range rows {
		e, err := rows[i].toEmail()
		if err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, nil
}

// ApplyLocal applies an optimistic mutation to the given messages.
func (s *Store) ApplyLocal(
	ctx context.Context, accountID string, messageIDs []string, m mail.LocalMutation,
) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range messageIDs {
		e, err := getEmailTx(ctx, tx, accountID, id)
		if errors.Is(err, storage.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		m.Apply(e)
		row, err := toRow(e)
		if err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, upsertEmailSQL, row); err != nil {
			return fmt.Errorf("mutating email %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// DeleteEmail removes a row entirely.
func (s *Store) DeleteEmail(ctx context.Context, accountID, messageID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM emails WHERE account_id = ? AND message_id = ?", accountID, messageID)
	return err
}

// UpsertFolder records a folder seen during mailbox enumeration.
func (s *Store) UpsertFolder(ctx context.Context, f *mail.Folder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO folders (account_id, path, name, delimiter, special_use)
		VALUES (?, ?, ?, ?, ?)`,
		f.AccountID, f.Path, f.Name, f.Delimiter, f.SpecialUse)
	return err
}

// Folders lists known folders for an account.
func (s *Store) Folders(ctx context.Context, accountID string) ([]*mail.Folder, error) {
	var fs []*mail.Folder
	err := s.db.SelectContext(ctx, &fs, `
		SELECT account_id "accountid", path, name, delimiter, special_use "specialuse"
		FROM folders WHERE account_id = ? ORDER BY path`, accountID)
	return fs, err
}

// HighWaterMark returns the highest UID synced for a folder.
func (s *Store) HighWaterMark(ctx context.Context, accountID, folder string) (uint32, error) {
	var uid int64
	err := s.db.GetContext(ctx, &uid,
		"SELECT COALESCE(MAX(uid), 0) FROM sync_marks WHERE account_id = ? AND folder = ?",
		accountID, folder)
	return uint32(uid), err
}

// SetHighWaterMark records sync progress; a lower mark never overwrites a
// higher one.
func (s *Store) SetHighWaterMark(ctx context.Context, accountID, folder string, uid uint32) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_marks (account_id, folder, uid) VALUES (?, ?, ?)
		ON CONFLICT (account_id, folder) DO UPDATE SET uid = MAX(uid, excluded.uid)`,
		accountID, folder, int64(uid))
	return err
}

// UpsertAccount registers an account.
func (s *Store) UpsertAccount(ctx context.Context, a *mail.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO accounts
		(id, address, imap_host, imap_port, smtp_host, smtp_port, username, sealed_password)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Address, a.IMAPHost, a.IMAPPort, a.SMTPHost, a.SMTPPort,
		a.Username, a.SealedPassword)
	return err
}

type accountRow struct {
	ID             string `db:"id"`
	Address        string `db:"address"`
	IMAPHost       string `db:"imap_host"`
	IMAPPort       int    `db:"imap_port"`
	SMTPHost       string `db:"smtp_host"`
	SMTPPort       int    `db:"smtp_port"`
	Username       string `db:"username"`
	SealedPassword []byte `db:"sealed_password"`
}

func (r *accountRow) toAccount() *mail.Account {
	return &mail.Account{
		ID:             r.ID,
		Address:        r.Address,
		IMAPHost:       r.IMAPHost,
		IMAPPort:       r.IMAPPort,
		SMTPHost:       r.SMTPHost,
		SMTPPort:       r.SMTPPort,
		Username:       r.Username,
		SealedPassword: r.SealedPassword,
	}
}

// Account fetches one account.
func (s *Store) Account(ctx context.Context, id string) (*mail.Account, error) {
	var r accountRow
	err := s.db.GetContext(ctx, &r, "SELECT * FROM accounts WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotExist
	}
	if err != nil {
		return nil, err
	}
	return r.toAccount(), nil
}

// Accounts lists registered accounts.
func (s *Store) Accounts(ctx context.Context) ([]*mail.Account, error) {
	var rows []accountRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM accounts ORDER BY id"); err != nil {
		return nil, err
	}
	as := make([]*mail.Account, len(rows))
	for i := range rows {
		as[i] = rows[i].toAccount()
	}
	return as, nil
}

// UpsertRule stores a user rule.
func (s *Store) UpsertRule(ctx context.Context, r *mail.Rule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO rules
		(id, account_id, field, contains, add_label, move_to, star, mark_read)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.AccountID, r.Field, r.Contains, r.AddLabel, r.MoveTo, r.Star, r.MarkRead)
	return err
}

type ruleRow struct {
	ID        string `db:"id"`
	AccountID string `db:"account_id"`
	Field     string `db:"field"`
	Contains  string `db:"contains"`
	AddLabel  string `db:"add_label"`
	MoveTo    string `db:"move_to"`
	Star      bool   `db:"star"`
	MarkRead  bool   `db:"mark_read"`
}

// Rules lists rules for an account.
func (s *Store) Rules(ctx context.Context, accountID string) ([]*mail.Rule, error) {
	var rows []ruleRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM rules WHERE account_id = ? ORDER BY id", accountID)
	if err != nil {
		return nil, err
	}
	rs := make([]*mail.Rule, len(rows))
	for i, r := range rows {
		rs[i] = &mail.Rule{
			ID: r.ID, AccountID: r.AccountID, Field: r.Field, Contains: r.Contains,
			AddLabel: r.AddLabel, MoveTo: r.MoveTo, Star: r.Star, MarkRead: r.MarkRead,
		}
	}
	return rs, nil
}

// AutoReplied returns true only the first time a sender is recorded.
func (s *Store) AutoReplied(ctx context.Context, accountID, sender string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO auto_replies (account_id, sender) VALUES (?, ?)",
		accountID, sender)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
