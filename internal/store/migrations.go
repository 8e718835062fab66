package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
// Statements stay within the SQL shared by SQLite and PostgreSQL.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS addresses (
	id           TEXT PRIMARY KEY,
	address      TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	code       TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

CREATE TABLE IF NOT EXISTS teams (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id            TEXT PRIMARY KEY,
	type          TEXT NOT NULL CHECK(type IN ('plain', 'notification', 'email')),
	subject       TEXT NOT NULL DEFAULT '',
	body          TEXT NOT NULL DEFAULT '',
	summary       TEXT NOT NULL DEFAULT '',
	message_id    TEXT NOT NULL UNIQUE,
	parent_id     TEXT REFERENCES messages(id),
	root_id       TEXT REFERENCES messages(id),
	related_model TEXT NOT NULL DEFAULT '',
	related_id    TEXT NOT NULL DEFAULT '',
	related_name  TEXT NOT NULL DEFAULT '',
	author_id     TEXT REFERENCES users(id),
	from_id       TEXT REFERENCES addresses(id),
	created_by    TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL,
	sent_at       TIMESTAMP,
	CHECK(parent_id IS NULL OR root_id IS NOT NULL)
);

CREATE INDEX IF NOT EXISTS idx_messages_parent_id ON messages(parent_id);
CREATE INDEX IF NOT EXISTS idx_messages_root_id ON messages(root_id);
CREATE INDEX IF NOT EXISTS idx_messages_related ON messages(related_model, related_id);

CREATE TABLE IF NOT EXISTS message_recipients (
	message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	address_id TEXT NOT NULL REFERENCES addresses(id),
	position   INTEGER NOT NULL,
	PRIMARY KEY (message_id, address_id)
);

CREATE TABLE IF NOT EXISTS followers (
	id            TEXT PRIMARY KEY,
	related_model TEXT NOT NULL,
	related_id    TEXT NOT NULL,
	user_id       TEXT REFERENCES users(id),
	address_id    TEXT REFERENCES addresses(id),
	archived      INTEGER NOT NULL DEFAULT 0 CHECK(archived IN (0, 1)),
	created_at    TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_followers_related ON followers(related_model, related_id);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS files (
	id         TEXT PRIMARY KEY,
	file_name  TEXT NOT NULL,
	file_path  TEXT NOT NULL,
	file_type  TEXT NOT NULL DEFAULT '',
	file_size  INTEGER NOT NULL DEFAULT 0,
	created_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS attachments (
	id           TEXT PRIMARY KEY,
	file_id      TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	object_model TEXT NOT NULL,
	object_id    TEXT NOT NULL,
	created_at   TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attachments_object ON attachments(object_model, object_id);
`,
	},
}
