package sqlite

// migrations are applied in order; each entry runs at most once per
// database, tracked in schema_version.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE schema_version (
	version INTEGER NOT NULL,
	applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE accounts (
	id TEXT PRIMARY KEY,
	address TEXT NOT NULL,
	imap_host TEXT NOT NULL,
	imap_port INTEGER NOT NULL,
	smtp_host TEXT NOT NULL,
	smtp_port INTEGER NOT NULL,
	username TEXT NOT NULL,
	sealed_password BLOB
);

CREATE TABLE emails (
	account_id TEXT NOT NULL,
	message_id TEXT NOT NULL,
	uid INTEGER NOT NULL,
	conversation_id TEXT NOT NULL,
	sender_name TEXT NOT NULL DEFAULT '',
	sender_email TEXT NOT NULL,
	recipient_email TEXT NOT NULL,
	cc TEXT NOT NULL DEFAULT '[]',
	bcc TEXT NOT NULL DEFAULT '[]',
	subject TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL DEFAULT '',
	snippet TEXT NOT NULL DEFAULT '',
	date TIMESTAMP NOT NULL,
	is_read INTEGER NOT NULL DEFAULT 0,
	label_ids TEXT NOT NULL DEFAULT '[]',
	folder_id TEXT NOT NULL,
	snoozed_until TIMESTAMP,
	scheduled_send TIMESTAMP,
	attachments TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (account_id, message_id)
);
CREATE INDEX emails_by_folder ON emails (account_id, folder_id, uid);
CREATE INDEX emails_by_conversation ON emails (account_id, conversation_id);

CREATE TABLE folders (
	account_id TEXT NOT NULL,
	path TEXT NOT NULL,
	name TEXT NOT NULL,
	delimiter TEXT NOT NULL DEFAULT '/',
	special_use TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (account_id, path)
);

CREATE TABLE sync_marks (
	account_id TEXT NOT NULL,
	folder TEXT NOT NULL,
	uid INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (account_id, folder)
);

CREATE TABLE rules (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	field TEXT NOT NULL,
	contains TEXT NOT NULL,
	add_label TEXT NOT NULL DEFAULT '',
	move_to TEXT NOT NULL DEFAULT '',
	star INTEGER NOT NULL DEFAULT 0,
	mark_read INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX rules_by_account ON rules (account_id);

CREATE TABLE auto_replies (
	account_id TEXT NOT NULL,
	sender TEXT NOT NULL,
	PRIMARY KEY (account_id, sender)
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
